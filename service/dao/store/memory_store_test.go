package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/viant/schedsim/service/dao"
)

type record struct {
	ID   int
	Name string
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore[int, record](func(r *record) int { return r.ID })
	assert.ErrorIs(t, s.Save(ctx, nil), dao.ErrNilEntity)
	for _, r := range []*record{{ID: 3, Name: "c"}, {ID: 1, Name: "a"}, {ID: 2, Name: "b"}} {
		assert.NoError(t, s.Save(ctx, r))
	}
	assert.NoError(t, s.Save(ctx, &record{ID: 1, Name: "a2"}))

	list, err := s.List(ctx)
	assert.NoError(t, err)
	assert.Equal(t, []*record{{ID: 3, Name: "c"}, {ID: 1, Name: "a2"}, {ID: 2, Name: "b"}}, list)

	loaded, err := s.Load(ctx, 2)
	assert.NoError(t, err)
	assert.Equal(t, "b", loaded.Name)

	assert.NoError(t, s.Delete(ctx, 3))
	assert.ErrorIs(t, s.Delete(ctx, 3), dao.ErrNotFound)
	_, err = s.Load(ctx, 3)
	assert.ErrorIs(t, err, dao.ErrNotFound)
	assert.Equal(t, 2, s.Len())
}
