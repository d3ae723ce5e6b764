package sos

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Sakshee21/SafeHavenWS/internal/ids"
	"github.com/Sakshee21/SafeHavenWS/internal/principal"
)

// Event is emitted after every committed state change, for the SSE stream
// and metrics. Kind names the action, not the resulting status. ID is a
// ULID so clients can resume with Last-Event-ID ordering intact.
type Event struct {
	ID        string            `json:"id"`
	CaseID    int64             `json:"case_id"`
	Kind      string            `json:"kind"`
	Status    Status            `json:"status"`
	Actor     principal.Address `json:"actor"`
	Latitude  string            `json:"latitude"`
	Longitude string            `json:"longitude"`
	At        time.Time         `json:"at"`
}

// Lifecycle validates and applies case transitions against a Store.
// Timestamps are always the ledger commit time handed in by the caller,
// never wall-clock reads of its own, so replays stay deterministic.
type Lifecycle struct {
	store  Store
	notify func(Event)
}

// NewLifecycle wires the state machine to its store. notify may be nil.
func NewLifecycle(store Store, notify func(Event)) *Lifecycle {
	return &Lifecycle{store: store, notify: notify}
}

func (l *Lifecycle) emit(c Case, kind string, actor principal.Address, at time.Time) {
	if l.notify != nil {
		l.notify(Event{
			ID:        ids.New(),
			CaseID:    c.ID,
			Kind:      kind,
			Status:    c.Status,
			Actor:     actor,
			Latitude:  c.Latitude,
			Longitude: c.Longitude,
			At:        at,
		})
	}
}

func (l *Lifecycle) record(ctx context.Context, c Case, action string, actor principal.Address, at time.Time) error {
	return l.store.AppendAction(ctx, ActionRecord{CaseID: c.ID, Action: action, Actor: actor, At: at})
}

// Create opens a new Pending case for the victim. Coordinates are kept
// verbatim; only a presence check happens here.
func (l *Lifecycle) Create(ctx context.Context, victim principal.Address, lat, lon string, at time.Time) (Case, error) {
	if strings.TrimSpace(lat) == "" || strings.TrimSpace(lon) == "" {
		return Case{}, fmt.Errorf("%w: latitude and longitude are required", ErrValidation)
	}
	c, err := l.store.Create(ctx, Case{
		Victim:    victim,
		Status:    StatusPending,
		Latitude:  strings.TrimSpace(lat),
		Longitude: strings.TrimSpace(lon),
		CreatedAt: at,
	})
	if err != nil {
		return Case{}, err
	}
	if err := l.record(ctx, c, "create", victim, at); err != nil {
		return Case{}, err
	}
	l.emit(c, "create", victim, at)
	return c, nil
}

// Acknowledge moves Pending -> Acknowledged and pins the first
// acknowledging principal. Re-acknowledge by the same principal is an
// idempotent no-op; by a different one it fails.
func (l *Lifecycle) Acknowledge(ctx context.Context, id int64, by principal.Address, at time.Time) (Case, error) {
	changed := true
	c, err := l.store.Update(ctx, id, func(c *Case) error {
		if c.Status == StatusAcknowledged {
			if c.AcknowledgedBy == by {
				changed = false
				return nil
			}
			return fmt.Errorf("%w: case %d already acknowledged by %s", ErrInvalidState, c.ID, c.AcknowledgedBy)
		}
		if c.Status != StatusPending {
			return transitionError(c, "acknowledge")
		}
		c.Status = StatusAcknowledged
		c.AcknowledgedBy = by
		return nil
	})
	if err != nil {
		return Case{}, err
	}
	if changed {
		if err := l.record(ctx, c, "acknowledge", by, at); err != nil {
			return Case{}, err
		}
		l.emit(c, "acknowledge", by, at)
	}
	return c, nil
}

// Escalate moves Pending or Acknowledged to Escalated. An already
// Escalated case is a guarded no-op: the scheduler must be safely
// re-entrant, so it reports success and no change.
func (l *Lifecycle) Escalate(ctx context.Context, id int64, by principal.Address, at time.Time) (Case, bool, error) {
	changed := true
	c, err := l.store.Update(ctx, id, func(c *Case) error {
		switch c.Status {
		case StatusPending, StatusAcknowledged:
			c.Status = StatusEscalated
			return nil
		case StatusEscalated:
			changed = false
			return nil
		default:
			return transitionError(c, "escalate")
		}
	})
	if err != nil {
		return Case{}, false, err
	}
	if changed {
		if err := l.record(ctx, c, "escalate", by, at); err != nil {
			return Case{}, false, err
		}
		l.emit(c, "escalate", by, at)
	}
	return c, changed, nil
}

// Resolve closes an Acknowledged or Escalated case.
func (l *Lifecycle) Resolve(ctx context.Context, id int64, by principal.Address, at time.Time) (Case, error) {
	c, err := l.store.Update(ctx, id, func(c *Case) error {
		if c.Status != StatusAcknowledged && c.Status != StatusEscalated {
			return transitionError(c, "resolve")
		}
		c.Status = StatusResolved
		return nil
	})
	if err != nil {
		return Case{}, err
	}
	if err := l.record(ctx, c, "resolve", by, at); err != nil {
		return Case{}, err
	}
	l.emit(c, "resolve", by, at)
	return c, nil
}

// MarkFalseAlarm retires a Pending case. Ownership (only the victim) is
// the guard's job; the state precondition is enforced here regardless.
func (l *Lifecycle) MarkFalseAlarm(ctx context.Context, id int64, by principal.Address, at time.Time) (Case, error) {
	c, err := l.store.Update(ctx, id, func(c *Case) error {
		if c.Status != StatusPending {
			return transitionError(c, "mark_false_alarm")
		}
		c.Status = StatusFalseAlarm
		return nil
	})
	if err != nil {
		return Case{}, err
	}
	if err := l.record(ctx, c, "mark_false_alarm", by, at); err != nil {
		return Case{}, err
	}
	l.emit(c, "mark_false_alarm", by, at)
	return c, nil
}

// AssignVolunteer designates a volunteer on a non-terminal case.
// Last writer wins; there is no queue.
func (l *Lifecycle) AssignVolunteer(ctx context.Context, id int64, volunteer, by principal.Address, at time.Time) (Case, error) {
	c, err := l.store.Update(ctx, id, func(c *Case) error {
		if c.Status.Terminal() {
			return transitionError(c, "assign_volunteer")
		}
		c.AssignedVolunteer = volunteer
		return nil
	})
	if err != nil {
		return Case{}, err
	}
	if err := l.record(ctx, c, "assign_volunteer", by, at); err != nil {
		return Case{}, err
	}
	l.emit(c, "assign_volunteer", by, at)
	return c, nil
}

func transitionError(c *Case, action string) error {
	return fmt.Errorf("%w: cannot %s case %d in status %s", ErrInvalidState, action, c.ID, c.Status)
}
