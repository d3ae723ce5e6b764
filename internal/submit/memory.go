package submit

import (
	"context"
	"sync"
	"time"

	"github.com/Sakshee21/SafeHavenWS/internal/principal"
	"github.com/Sakshee21/SafeHavenWS/internal/sos"
)

// CommittedAction is an action plus the commit timestamp the ledger
// assigned to it.
type CommittedAction struct {
	Action
	CommittedAt time.Time
}

// InMemoryLedger is the in-process stand-in for the external ledger.
// It enforces per-identity sequence order, stamps commits from its own
// clock, and can inject transient failures for tests and the smoke tool.
type InMemoryLedger struct {
	mu       sync.Mutex
	expected map[principal.Address]uint64
	log      []CommittedAction
	failNext int
	now      func() time.Time
}

// NewInMemoryLedger creates an empty ledger.
func NewInMemoryLedger() *InMemoryLedger {
	return &InMemoryLedger{
		expected: make(map[principal.Address]uint64),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

var _ Ledger = (*InMemoryLedger)(nil)

// SetClock replaces the commit timestamp source.
func (l *InMemoryLedger) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// FailNext makes the next n commits fail with sos.ErrCommitFailed.
func (l *InMemoryLedger) FailNext(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failNext = n
}

func (l *InMemoryLedger) Commit(ctx context.Context, a Action) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	want, ok := l.expected[a.Identity]
	if !ok {
		want = 1
	}
	if a.Sequence != want {
		return Receipt{}, &SequenceError{Got: a.Sequence, Expected: want}
	}
	if l.failNext > 0 {
		l.failNext--
		return Receipt{}, sos.ErrCommitFailed
	}

	at := l.now()
	l.expected[a.Identity] = want + 1
	l.log = append(l.log, CommittedAction{Action: a, CommittedAt: at})
	return Receipt{Sequence: a.Sequence, CommittedAt: at}, nil
}

// Committed returns a copy of the commit log in commit order.
func (l *InMemoryLedger) Committed() []CommittedAction {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]CommittedAction, len(l.log))
	copy(out, l.log)
	return out
}
