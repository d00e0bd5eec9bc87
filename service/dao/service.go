// Package dao defines the storage contract shared by the simulator tables.
package dao

import (
	"context"
)

// Service is a keyed store of *T entities
type Service[K comparable, T any] interface {
	Save(ctx context.Context, t *T) error

	Load(ctx context.Context, id K) (*T, error)

	Delete(ctx context.Context, id K) error

	List(ctx context.Context, parameters ...*Parameter) ([]*T, error)
}
