// Package escalate runs the periodic scan that forces time-based case
// transitions. It produces the same escalate action a human NGO would,
// re-entering the identical authorization and commit path.
package escalate

import (
	"context"
	"time"

	"github.com/Sakshee21/SafeHavenWS/internal/obs"
	"github.com/Sakshee21/SafeHavenWS/internal/principal"
	"github.com/Sakshee21/SafeHavenWS/internal/service"
	"github.com/Sakshee21/SafeHavenWS/internal/sos"
)

const (
	// DefaultInterval is the scan period.
	DefaultInterval = 60 * time.Second
	// DefaultThreshold is the case age past which Pending and
	// Acknowledged cases escalate. Age is measured from CreatedAt,
	// never reset by acknowledgment: the SLA tracked here is
	// time-to-resolution, not per-stage.
	DefaultThreshold = 60 * time.Minute
)

// Actions is the slice of the service the scheduler drives.
type Actions interface {
	AllCases(ctx context.Context) ([]sos.Case, error)
	EscalateCase(ctx context.Context, p principal.Address, id int64) (service.CaseView, bool, error)
}

// Bootstrap provisions the scheduler's own service identity.
type Bootstrap interface {
	EnsureServiceRole(ctx context.Context) error
}

// Scheduler scans all non-terminal cases every interval and escalates
// those older than the threshold. Restart-safe by construction: age is
// recomputed from immutable CreatedAt and escalating an Escalated case
// is a guarded no-op, so a missed or duplicate tick never double-fires.
type Scheduler struct {
	actions   Actions
	bootstrap Bootstrap
	identity  principal.Address
	interval  time.Duration
	threshold time.Duration
	now       func() time.Time
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithInterval overrides the scan period.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithThreshold overrides the escalation age threshold.
func WithThreshold(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.threshold = d
		}
	}
}

// WithClock overrides the scan clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// New builds a Scheduler acting as the given service identity.
func New(actions Actions, bootstrap Bootstrap, identity principal.Address, opts ...Option) *Scheduler {
	s := &Scheduler{
		actions:   actions,
		bootstrap: bootstrap,
		identity:  identity,
		interval:  DefaultInterval,
		threshold: DefaultThreshold,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run scans immediately, then on every tick until ctx ends. A tick that
// errors entirely is retried on the next tick, not immediately; its
// failure is an operational log event, never user-visible.
func (s *Scheduler) Run(ctx context.Context) {
	obs.LogEvent(map[string]any{
		"msg":       "escalation scheduler started",
		"interval":  s.interval.String(),
		"threshold": s.threshold.String(),
		"identity":  s.identity.String(),
	})
	if _, err := s.Scan(ctx); err != nil {
		s.logScanError(err)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			obs.LogEvent(map[string]any{"msg": "escalation scheduler stopped"})
			return
		case <-ticker.C:
			if _, err := s.Scan(ctx); err != nil {
				s.logScanError(err)
			}
		}
	}
}

// Scan runs one full pass and reports how many cases it escalated.
// A failure on one case is logged and counted; the scan continues
// with the rest.
func (s *Scheduler) Scan(ctx context.Context) (int, error) {
	if err := s.bootstrap.EnsureServiceRole(ctx); err != nil {
		return 0, err
	}
	list, err := s.actions.AllCases(ctx)
	if err != nil {
		return 0, err
	}

	now := s.now()
	escalated := 0
	for _, c := range list {
		switch c.Status {
		case sos.StatusPending, sos.StatusAcknowledged:
		default:
			continue
		}
		if now.Sub(c.CreatedAt) <= s.threshold {
			continue
		}
		_, changed, err := s.actions.EscalateCase(ctx, s.identity, c.ID)
		if err != nil {
			obs.SchedulerCaseFault()
			obs.LogEvent(map[string]any{
				"msg":     "escalation failed",
				"case_id": c.ID,
				"error":   err.Error(),
			})
			continue
		}
		if changed {
			escalated++
			obs.EscalationApplied()
			obs.LogEvent(map[string]any{
				"msg":     "case auto-escalated",
				"case_id": c.ID,
				"age":     now.Sub(c.CreatedAt).String(),
			})
		}
	}
	obs.SchedulerScan()
	return escalated, nil
}

func (s *Scheduler) logScanError(err error) {
	obs.LogEvent(map[string]any{
		"msg":   "escalation scan failed",
		"error": err.Error(),
	})
}
