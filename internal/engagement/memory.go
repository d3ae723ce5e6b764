package engagement

import (
	"context"
	"fmt"
	"sync"

	"github.com/Sakshee21/SafeHavenWS/internal/principal"
	"github.com/Sakshee21/SafeHavenWS/internal/sos"
)

type caseKey struct {
	caseID    int64
	volunteer principal.Address
}

// InMemory is the mutex-guarded reference Store.
type InMemory struct {
	mu       sync.RWMutex
	logs     map[int64][]Entry
	accepted map[caseKey]struct{}
	order    map[int64][]principal.Address // first-accept order
}

// NewInMemory creates an empty engagement log.
func NewInMemory() *InMemory {
	return &InMemory{
		logs:     make(map[int64][]Entry),
		accepted: make(map[caseKey]struct{}),
		order:    make(map[int64][]principal.Address),
	}
}

var _ Store = (*InMemory)(nil)

func (s *InMemory) Append(ctx context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := caseKey{e.CaseID, e.Volunteer}
	switch e.Kind {
	case Accept:
		if _, ok := s.accepted[key]; ok {
			return fmt.Errorf("%w: case %d volunteer %s", sos.ErrAlreadyAccepted, e.CaseID, e.Volunteer)
		}
		s.accepted[key] = struct{}{}
		s.order[e.CaseID] = append(s.order[e.CaseID], e.Volunteer)
	case Report:
		if _, ok := s.accepted[key]; !ok {
			return fmt.Errorf("%w: case %d volunteer %s", sos.ErrMustAcceptFirst, e.CaseID, e.Volunteer)
		}
	case Query:
		// no precondition, logged for audit only
	default:
		return fmt.Errorf("%w: unknown engagement kind %d", sos.ErrValidation, e.Kind)
	}

	s.logs[e.CaseID] = append(s.logs[e.CaseID], e)
	return nil
}

func (s *InMemory) HasAccepted(ctx context.Context, caseID int64, volunteer principal.Address) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.accepted[caseKey{caseID, volunteer}]
	return ok, nil
}

func (s *InMemory) AcceptedVolunteers(ctx context.Context, caseID int64) ([]principal.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	accepted := s.order[caseID]
	out := make([]principal.Address, len(accepted))
	copy(out, accepted)
	return out, nil
}

func (s *InMemory) LogsByCase(ctx context.Context, caseID int64) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := s.logs[caseID]
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out, nil
}
