// Package idgen wraps the UUID generator so that it can be stubbed in tests.
// Session and message identifiers are opaque strings.
package idgen

import "github.com/google/uuid"

// NewFunc returns a new globally unique identifier. Tests may replace it.
var NewFunc = func() string { return uuid.New().String() }

// New returns a new globally unique identifier as string.
func New() string { return NewFunc() }
