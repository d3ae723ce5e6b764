// Package submit serializes outbound mutating actions against the
// authoritative ledger. Each signing identity gets its own lane with a
// monotonically increasing sequence number, so bursts of same-identity
// actions commit in program order while different identities proceed in
// parallel.
package submit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sakshee21/SafeHavenWS/internal/principal"
	"github.com/Sakshee21/SafeHavenWS/internal/sos"
)

// Action is one mutating operation headed for the ledger.
type Action struct {
	Identity principal.Address `json:"identity"`
	Kind     string            `json:"kind"`
	CaseID   int64             `json:"case_id,omitempty"`
	Params   map[string]string `json:"params,omitempty"`
	Sequence uint64            `json:"sequence"`
}

// Receipt acknowledges a durable commit. CommittedAt is the ledger's
// timestamp and is the only clock the core trusts for ordering.
type Receipt struct {
	Sequence    uint64    `json:"sequence"`
	CommittedAt time.Time `json:"committed_at"`
}

// Ledger is the external commit channel. It processes one action at a
// time per signing identity and is assumed atomic, ordered and durable.
// Transient dispatch failures are reported as sos.ErrCommitFailed; an
// out-of-order sequence as a SequenceError.
type Ledger interface {
	Commit(ctx context.Context, a Action) (Receipt, error)
}

// SequenceError reports the sequence number the ledger expected. It
// unwraps to sos.ErrSequenceConflict.
type SequenceError struct {
	Got      uint64
	Expected uint64
}

func (e *SequenceError) Error() string {
	return fmt.Sprintf("sequence conflict: got %d, ledger expects %d", e.Got, e.Expected)
}

func (e *SequenceError) Unwrap() error { return sos.ErrSequenceConflict }

// Submitter owns the per-identity sequence counters. The counter is the
// only shared mutable resource contended by concurrent submitters and is
// protected by a per-lane mutex: reserve, commit, then advance, all
// under the lane lock, so sequence numbers are strictly increasing and
// gapless on success. A failed commit returns the reservation, and a
// caller retry reuses the same number.
type Submitter struct {
	ledger Ledger
	lanes  laneMap

	maxAttempts int
	baseBackoff time.Duration
}

// Option configures a Submitter.
type Option func(*Submitter)

// WithRetry overrides the bounded retry policy for CommitFailed.
func WithRetry(attempts int, base time.Duration) Option {
	return func(s *Submitter) {
		if attempts > 0 {
			s.maxAttempts = attempts
		}
		if base > 0 {
			s.baseBackoff = base
		}
	}
}

// New builds a Submitter over the ledger.
func New(ledger Ledger, opts ...Option) *Submitter {
	s := &Submitter{
		ledger:      ledger,
		maxAttempts: 3,
		baseBackoff: 50 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit blocks until the ledger durably commits the action, or fails.
// Only CommitFailed is retried here (exponential backoff, fixed cap):
// the action's content did not change, only dispatch failed. A
// SequenceError resynchronizes the lane and retries the reservation.
// Every other failure surfaces immediately.
func (s *Submitter) Submit(ctx context.Context, identity principal.Address, kind string, caseID int64, params map[string]string) (Receipt, error) {
	lane := s.lanes.get(identity)
	lane.mu.Lock()
	defer lane.mu.Unlock()

	a := Action{
		Identity: identity,
		Kind:     kind,
		CaseID:   caseID,
		Params:   params,
	}

	backoff := s.baseBackoff
	var lastErr error
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return Receipt{}, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		a.Sequence = lane.next
		receipt, err := s.ledger.Commit(ctx, a)
		if err == nil {
			lane.next = a.Sequence + 1
			return receipt, nil
		}
		lastErr = err

		var seqErr *SequenceError
		switch {
		case errors.As(err, &seqErr):
			// Out-of-order commit detected; adopt the ledger's view
			// and retry with a fresh reservation.
			lane.next = seqErr.Expected
		case errors.Is(err, sos.ErrCommitFailed):
			// Reservation stays at lane.next for the retry.
		default:
			return Receipt{}, err
		}
	}
	return Receipt{}, fmt.Errorf("%w: gave up after %d attempts: %v", sos.ErrCommitFailed, s.maxAttempts, lastErr)
}

// Sequence reports the next sequence number a submission by identity
// would reserve. Read-only, for introspection and tests.
func (s *Submitter) Sequence(identity principal.Address) uint64 {
	lane := s.lanes.get(identity)
	lane.mu.Lock()
	defer lane.mu.Unlock()
	return lane.next
}
