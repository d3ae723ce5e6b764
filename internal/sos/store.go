package sos

import (
	"context"
	"sort"
	"sync"

	"github.com/Sakshee21/SafeHavenWS/internal/principal"
)

// Store holds the authoritative set of cases and their per-case history.
// Create assigns the next id from a single-writer counter (1-based,
// gapless). Update runs fn with the case locked so lifecycle rules are
// re-checked against current state at commit time, not at authorization
// time.
type Store interface {
	Create(ctx context.Context, c Case) (Case, error)
	Get(ctx context.Context, id int64) (Case, error)
	Update(ctx context.Context, id int64, fn func(*Case) error) (Case, error)
	List(ctx context.Context) ([]Case, error)
	ByVictim(ctx context.Context, victim principal.Address) ([]Case, error)
	AppendAction(ctx context.Context, rec ActionRecord) error
	Actions(ctx context.Context, caseID int64) ([]ActionRecord, error)
}

// InMemory implements Store with in-process concurrency safety.
// The Postgres projection lives in internal/store/pg.
type InMemory struct {
	mu      sync.RWMutex
	counter int64
	cases   map[int64]*Case
	history map[int64][]ActionRecord
}

// NewInMemory creates an empty case store.
func NewInMemory() *InMemory {
	return &InMemory{
		cases:   make(map[int64]*Case),
		history: make(map[int64][]ActionRecord),
	}
}

var _ Store = (*InMemory)(nil)

func (s *InMemory) Create(ctx context.Context, c Case) (Case, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counter++
	c.ID = s.counter
	stored := c
	s.cases[c.ID] = &stored
	return c, nil
}

func (s *InMemory) Get(ctx context.Context, id int64) (Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cases[id]
	if !ok {
		return Case{}, ErrNotFound
	}
	return *c, nil
}

func (s *InMemory) Update(ctx context.Context, id int64, fn func(*Case) error) (Case, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cases[id]
	if !ok {
		return Case{}, ErrNotFound
	}
	scratch := *c
	if err := fn(&scratch); err != nil {
		return Case{}, err
	}
	// Immutable fields never move, whatever fn did.
	scratch.ID = c.ID
	scratch.Victim = c.Victim
	scratch.CreatedAt = c.CreatedAt
	*c = scratch
	return scratch, nil
}

func (s *InMemory) List(ctx context.Context) ([]Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Case, 0, len(s.cases))
	for _, c := range s.cases {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemory) ByVictim(ctx context.Context, victim principal.Address) ([]Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Case
	for _, c := range s.cases {
		if c.Victim == victim {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemory) AppendAction(ctx context.Context, rec ActionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cases[rec.CaseID]; !ok {
		return ErrNotFound
	}
	s.history[rec.CaseID] = append(s.history[rec.CaseID], rec)
	return nil
}

func (s *InMemory) Actions(ctx context.Context, caseID int64) ([]ActionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.cases[caseID]; !ok {
		return nil, ErrNotFound
	}
	recs := s.history[caseID]
	out := make([]ActionRecord, len(recs))
	copy(out, recs)
	return out, nil
}
