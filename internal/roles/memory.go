package roles

import (
	"context"
	"sync"

	"github.com/Sakshee21/SafeHavenWS/internal/principal"
)

// InMemory is the mutex-guarded reference Store. The Postgres projection
// lives in internal/store/pg.
type InMemory struct {
	mu     sync.RWMutex
	grants map[principal.Address]map[Label]struct{}
	order  map[principal.Address][]Label // first-grant order for RolesOf
}

// NewInMemory creates an empty role store.
func NewInMemory() *InMemory {
	return &InMemory{
		grants: make(map[principal.Address]map[Label]struct{}),
		order:  make(map[principal.Address][]Label),
	}
}

var _ Store = (*InMemory)(nil)

func (s *InMemory) Grant(ctx context.Context, p principal.Address, role Label) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.grants[p]
	if !ok {
		set = make(map[Label]struct{})
		s.grants[p] = set
	}
	if _, held := set[role]; held {
		return nil // idempotent
	}
	set[role] = struct{}{}
	s.order[p] = append(s.order[p], role)
	return nil
}

func (s *InMemory) HasRole(ctx context.Context, p principal.Address, role Label) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, held := s.grants[p][role]
	return held, nil
}

func (s *InMemory) RolesOf(ctx context.Context, p principal.Address) ([]Label, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	held := s.order[p]
	out := make([]Label, len(held))
	copy(out, held)
	return out, nil
}
