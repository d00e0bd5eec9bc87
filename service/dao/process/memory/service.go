package memory

import (
	"context"
	"sync"

	"github.com/viant/schedsim/model/process"
	"github.com/viant/schedsim/service/dao"
	"github.com/viant/schedsim/service/dao/criteria"
	"github.com/viant/schedsim/service/dao/store"
)

// Service implements an in-memory, thread-safe process table keyed by id with a
// unique name index. Descriptors are stored by pointer; callers mutate them
// through their own synchronised accessors.
type Service struct {
	*store.MemoryStore[int, process.Descriptor]
	names map[string]int
	mux   sync.RWMutex
}

var _ dao.Service[int, process.Descriptor] = (*Service)(nil)

// Save stores the descriptor; a name already bound to another id returns dao.ErrDuplicate.
func (s *Service) Save(ctx context.Context, d *process.Descriptor) error {
	if d == nil {
		return dao.ErrNilEntity
	}
	if d.ID <= 0 || d.Name == "" {
		return dao.ErrInvalidID
	}
	s.mux.Lock()
	defer s.mux.Unlock()
	if id, ok := s.names[d.Name]; ok && id != d.ID {
		return dao.ErrDuplicate
	}
	if err := s.MemoryStore.Save(ctx, d); err != nil {
		return err
	}
	s.names[d.Name] = d.ID
	return nil
}

// Load returns the descriptor with id
func (s *Service) Load(ctx context.Context, id int) (*process.Descriptor, error) {
	if id <= 0 {
		return nil, dao.ErrInvalidID
	}
	return s.MemoryStore.Load(ctx, id)
}

// LoadByName returns the descriptor registered under name
func (s *Service) LoadByName(ctx context.Context, name string) (*process.Descriptor, error) {
	if name == "" {
		return nil, dao.ErrInvalidID
	}
	s.mux.RLock()
	id, ok := s.names[name]
	s.mux.RUnlock()
	if !ok {
		return nil, dao.ErrNotFound
	}
	return s.MemoryStore.Load(ctx, id)
}

// Delete removes the descriptor and releases its name
func (s *Service) Delete(ctx context.Context, id int) error {
	if id <= 0 {
		return dao.ErrInvalidID
	}
	s.mux.Lock()
	defer s.mux.Unlock()
	d, err := s.MemoryStore.Load(ctx, id)
	if err != nil {
		return err
	}
	if err = s.MemoryStore.Delete(ctx, id); err != nil {
		return err
	}
	delete(s.names, d.Name)
	return nil
}

// List returns descriptors in submission order, filtered by the "State" and
// "Name" parameters.
func (s *Service) List(ctx context.Context, parameters ...*dao.Parameter) ([]*process.Descriptor, error) {
	all, err := s.MemoryStore.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*process.Descriptor, 0, len(all))
	for _, d := range all {
		if !criteria.FilterByState(string(d.GetState()), parameters) {
			continue
		}
		if !criteria.Match("Name", d.Name, parameters) {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

// New creates a new in-memory process table
func New() *Service {
	return &Service{
		MemoryStore: store.NewMemoryStore[int, process.Descriptor](func(d *process.Descriptor) int { return d.ID }),
		names:       make(map[string]int),
	}
}
