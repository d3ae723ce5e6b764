// Package service is the narrow action interface the outer layers call:
// one synchronous method per action. Every mutation follows the same
// path: authorize, commit to the ledger through the submitter, then
// apply the state change with the commit timestamp.
package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Sakshee21/SafeHavenWS/internal/audit"
	"github.com/Sakshee21/SafeHavenWS/internal/engagement"
	"github.com/Sakshee21/SafeHavenWS/internal/guard"
	"github.com/Sakshee21/SafeHavenWS/internal/obs"
	"github.com/Sakshee21/SafeHavenWS/internal/principal"
	"github.com/Sakshee21/SafeHavenWS/internal/roles"
	"github.com/Sakshee21/SafeHavenWS/internal/sos"
	"github.com/Sakshee21/SafeHavenWS/internal/submit"
)

// defaultWarnAfter is the advisory age mark for UI warning coloring.
// It never triggers a transition; only the scheduler threshold does.
const defaultWarnAfter = 30 * time.Minute

// CaseView is the read model handed across the boundary.
type CaseView struct {
	sos.Case
	Warning    bool     `json:"warning"`
	DistanceKm *float64 `json:"distance_km,omitempty"`
}

// Config wires the service dependencies.
type Config struct {
	Roles      roles.Store
	Cases      sos.Store
	Engagement engagement.Store
	Guard      *guard.Guard
	Submitter  *submit.Submitter

	// Notify receives every committed domain event (SSE stream). Optional.
	Notify func(sos.Event)
	// WarnAfter overrides the advisory warning age. Optional.
	WarnAfter time.Duration
	// Now overrides the read-side clock, for tests. Commit timestamps
	// always come from ledger receipts regardless.
	Now func() time.Time
}

// Service coordinates guard, lifecycle, engagement log and submitter.
type Service struct {
	roles      roles.Store
	cases      sos.Store
	engagement engagement.Store
	guard      *guard.Guard
	submitter  *submit.Submitter
	lifecycle  *sos.Lifecycle
	warnAfter  time.Duration
	now        func() time.Time

	idemMu sync.Mutex
	idem   map[string]CaseView // client idempotency keys for createCase
}

// New builds the service.
func New(cfg Config) (*Service, error) {
	if cfg.Roles == nil || cfg.Cases == nil || cfg.Engagement == nil || cfg.Guard == nil || cfg.Submitter == nil {
		return nil, errors.New("service: roles, cases, engagement, guard and submitter are required")
	}
	s := &Service{
		roles:      cfg.Roles,
		cases:      cfg.Cases,
		engagement: cfg.Engagement,
		guard:      cfg.Guard,
		submitter:  cfg.Submitter,
		lifecycle:  sos.NewLifecycle(cfg.Cases, cfg.Notify),
		warnAfter:  cfg.WarnAfter,
		now:        cfg.Now,
		idem:       make(map[string]CaseView),
	}
	if s.warnAfter <= 0 {
		s.warnAfter = defaultWarnAfter
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s, nil
}

func (s *Service) view(c sos.Case) CaseView {
	warning := !c.Status.Terminal() && s.now().Sub(c.CreatedAt) > s.warnAfter
	return CaseView{Case: c, Warning: warning}
}

// CreateCase opens a new case for the caller. Creation is not
// idempotent by nature (a resubmission is a new case id), so callers
// that retry must pass a client-generated idempotency key; a repeated
// key replays the original response.
func (s *Service) CreateCase(ctx context.Context, p principal.Address, lat, lon, idemKey string) (CaseView, error) {
	if idemKey != "" {
		s.idemMu.Lock()
		prior, ok := s.idem[idemKey]
		s.idemMu.Unlock()
		if ok {
			return prior, nil
		}
	}

	if err := s.guard.Authorize(ctx, p, guard.ActionCreateCase, nil); err != nil {
		return CaseView{}, err
	}
	receipt, err := s.submitter.Submit(ctx, p, "create_case", 0, map[string]string{
		"latitude":  lat,
		"longitude": lon,
	})
	if err != nil {
		return CaseView{}, err
	}
	c, err := s.lifecycle.Create(ctx, p, lat, lon, receipt.CommittedAt)
	if err != nil {
		return CaseView{}, err
	}
	obs.ActionCommitted("create_case")
	_ = audit.LogEvent(ctx, "case.create", map[string]any{
		"case_id": c.ID,
		"victim":  p.String(),
	})

	view := s.view(c)
	if idemKey != "" {
		s.idemMu.Lock()
		s.idem[idemKey] = view
		s.idemMu.Unlock()
	}
	return view, nil
}

// GetCase returns the current view of one case.
func (s *Service) GetCase(ctx context.Context, id int64) (CaseView, error) {
	c, err := s.cases.Get(ctx, id)
	if err != nil {
		return CaseView{}, err
	}
	return s.view(c), nil
}

// GetCasesByVictim lists all cases opened by the given victim, in id order.
func (s *Service) GetCasesByVictim(ctx context.Context, victim principal.Address) ([]CaseView, error) {
	list, err := s.cases.ByVictim(ctx, victim)
	if err != nil {
		return nil, err
	}
	return s.views(list), nil
}

// AcknowledgeCase records the first responding NGO on a pending case.
func (s *Service) AcknowledgeCase(ctx context.Context, p principal.Address, id int64) (CaseView, error) {
	c, err := s.transition(ctx, p, id, guard.ActionAcknowledge, "acknowledge",
		func(ctx context.Context, at time.Time) (sos.Case, error) {
			return s.lifecycle.Acknowledge(ctx, id, p, at)
		})
	if err != nil {
		return CaseView{}, err
	}
	return s.view(c), nil
}

// EscalateCase escalates a pending or acknowledged case. The second
// return reports whether anything changed: escalating an already
// escalated case is a guarded no-op so the scheduler can re-enter.
func (s *Service) EscalateCase(ctx context.Context, p principal.Address, id int64) (CaseView, bool, error) {
	var changed bool
	c, err := s.transition(ctx, p, id, guard.ActionEscalate, "escalate",
		func(ctx context.Context, at time.Time) (sos.Case, error) {
			var err error
			var out sos.Case
			out, changed, err = s.lifecycle.Escalate(ctx, id, p, at)
			return out, err
		})
	if err != nil {
		return CaseView{}, false, err
	}
	return s.view(c), changed, nil
}

// ResolveCase closes an acknowledged or escalated case.
func (s *Service) ResolveCase(ctx context.Context, p principal.Address, id int64) (CaseView, error) {
	c, err := s.transition(ctx, p, id, guard.ActionResolve, "resolve",
		func(ctx context.Context, at time.Time) (sos.Case, error) {
			return s.lifecycle.Resolve(ctx, id, p, at)
		})
	if err != nil {
		return CaseView{}, err
	}
	return s.view(c), nil
}

// MarkFalseAlarm lets the victim retire their own pending case.
func (s *Service) MarkFalseAlarm(ctx context.Context, p principal.Address, id int64) (CaseView, error) {
	c, err := s.transition(ctx, p, id, guard.ActionMarkFalseAlarm, "mark_false_alarm",
		func(ctx context.Context, at time.Time) (sos.Case, error) {
			return s.lifecycle.MarkFalseAlarm(ctx, id, p, at)
		})
	if err != nil {
		return CaseView{}, err
	}
	return s.view(c), nil
}

// AssignVolunteer designates a volunteer on a non-terminal case.
func (s *Service) AssignVolunteer(ctx context.Context, p principal.Address, id int64, volunteer principal.Address) (CaseView, error) {
	c, err := s.transition(ctx, p, id, guard.ActionAssignVolunteer, "assign_volunteer",
		func(ctx context.Context, at time.Time) (sos.Case, error) {
			return s.lifecycle.AssignVolunteer(ctx, id, volunteer, p, at)
		})
	if err != nil {
		return CaseView{}, err
	}
	return s.view(c), nil
}

// transition is the shared authorize, commit, apply path for case
// state changes. Authorization reads current state; the lifecycle
// re-checks it at apply time, so a commit that lost a race with another
// identity fails with InvalidState rather than corrupting the graph.
func (s *Service) transition(
	ctx context.Context,
	p principal.Address,
	id int64,
	action guard.Action,
	kind string,
	apply func(context.Context, time.Time) (sos.Case, error),
) (sos.Case, error) {
	current, err := s.cases.Get(ctx, id)
	if err != nil {
		return sos.Case{}, err
	}
	if err := s.guard.Authorize(ctx, p, action, &current); err != nil {
		return sos.Case{}, err
	}
	receipt, err := s.submitter.Submit(ctx, p, kind, id, nil)
	if err != nil {
		return sos.Case{}, err
	}
	c, err := apply(ctx, receipt.CommittedAt)
	if err != nil {
		return sos.Case{}, err
	}
	obs.ActionCommitted(kind)
	_ = audit.LogEvent(ctx, "case."+kind, map[string]any{
		"case_id": id,
		"actor":   p.String(),
		"status":  c.Status.String(),
	})
	return c, nil
}

// GrantRole grants a role label to a principal. Idempotent: granting a
// held role commits to the ledger but changes nothing.
func (s *Service) GrantRole(ctx context.Context, granter, target principal.Address, raw string) error {
	label, err := roles.Normalize(raw)
	if err != nil {
		return err
	}
	receipt, err := s.submitter.Submit(ctx, granter, "grant_role", 0, map[string]string{
		"target": target.String(),
		"role":   string(label),
	})
	if err != nil {
		return err
	}
	if err := s.roles.Grant(ctx, target, label); err != nil {
		return err
	}
	obs.ActionCommitted("grant_role")
	_ = audit.LogEvent(ctx, "role.grant", map[string]any{
		"target":   target.String(),
		"role":     string(label),
		"sequence": receipt.Sequence,
	})
	return nil
}

// HasRole answers a single membership query.
func (s *Service) HasRole(ctx context.Context, p principal.Address, raw string) (bool, error) {
	label, err := roles.Normalize(raw)
	if err != nil {
		return false, err
	}
	return s.roles.HasRole(ctx, p, label)
}

// GetRoles lists the labels a principal holds, in first-grant order.
func (s *Service) GetRoles(ctx context.Context, p principal.Address) ([]roles.Label, error) {
	return s.roles.RolesOf(ctx, p)
}

// ReconcileRoles merges a batch of externally sourced role labels into
// the store: canonical casing, duplicates collapsed, unknown labels
// rejected before anything is granted.
func (s *Service) ReconcileRoles(ctx context.Context, granter, target principal.Address, raw []string) ([]roles.Label, error) {
	labels, err := roles.Reconcile(raw)
	if err != nil {
		return nil, err
	}
	for _, label := range labels {
		if err := s.GrantRole(ctx, granter, target, string(label)); err != nil {
			return nil, err
		}
	}
	return labels, nil
}

// AcceptCase records a volunteer's engagement. Distinct volunteers may
// each accept the same case; the case is never claimed exclusively.
func (s *Service) AcceptCase(ctx context.Context, p principal.Address, id int64) error {
	return s.engage(ctx, p, id, guard.ActionAcceptCase, engagement.Accept)
}

// SubmitReport records a report from a volunteer who accepted earlier.
func (s *Service) SubmitReport(ctx context.Context, p principal.Address, id int64) error {
	return s.engage(ctx, p, id, guard.ActionSubmitReport, engagement.Report)
}

// QueryCase is open to any principal, including those with zero roles,
// but still commits an engagement entry for audit.
func (s *Service) QueryCase(ctx context.Context, p principal.Address, id int64) error {
	return s.engage(ctx, p, id, guard.ActionQueryCase, engagement.Query)
}

func (s *Service) engage(ctx context.Context, p principal.Address, id int64, action guard.Action, kind engagement.Kind) error {
	current, err := s.cases.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.guard.Authorize(ctx, p, action, &current); err != nil {
		return err
	}
	receipt, err := s.submitter.Submit(ctx, p, "engagement_"+kind.String(), id, nil)
	if err != nil {
		return err
	}
	if err := s.engagement.Append(ctx, engagement.Entry{
		CaseID:    id,
		Volunteer: p,
		Kind:      kind,
		At:        receipt.CommittedAt,
	}); err != nil {
		return err
	}
	obs.ActionCommitted("engagement_" + kind.String())
	_ = audit.LogEvent(ctx, "engagement."+kind.String(), map[string]any{
		"case_id":   id,
		"volunteer": p.String(),
	})
	return nil
}

// AcceptedVolunteers lists distinct accepting volunteers in first-accept order.
func (s *Service) AcceptedVolunteers(ctx context.Context, id int64) ([]principal.Address, error) {
	if _, err := s.cases.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.engagement.AcceptedVolunteers(ctx, id)
}

// EngagementLog returns the full engagement log for one case.
func (s *Service) EngagementLog(ctx context.Context, id int64) ([]engagement.Entry, error) {
	if _, err := s.cases.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.engagement.LogsByCase(ctx, id)
}

// CaseHistory returns the append-only action history for one case.
func (s *Service) CaseHistory(ctx context.Context, id int64) ([]sos.ActionRecord, error) {
	return s.cases.Actions(ctx, id)
}

// ActiveCases lists every non-terminal case, in id order.
func (s *Service) ActiveCases(ctx context.Context) ([]CaseView, error) {
	list, err := s.cases.List(ctx)
	if err != nil {
		return nil, err
	}
	var open []sos.Case
	for _, c := range list {
		if !c.Status.Terminal() {
			open = append(open, c)
		}
	}
	return s.views(open), nil
}

// AllCases lists every case. Used by the escalation scheduler's scan.
func (s *Service) AllCases(ctx context.Context) ([]sos.Case, error) {
	return s.cases.List(ctx)
}

// Stats aggregates per-status counts across all cases.
type Stats struct {
	Total        int `json:"total"`
	Pending      int `json:"pending"`
	Acknowledged int `json:"acknowledged"`
	Escalated    int `json:"escalated"`
	Resolved     int `json:"resolved"`
	FalseAlarm   int `json:"false_alarm"`
}

// CaseStats counts cases per status.
func (s *Service) CaseStats(ctx context.Context) (Stats, error) {
	list, err := s.cases.List(ctx)
	if err != nil {
		return Stats{}, err
	}
	var st Stats
	st.Total = len(list)
	for _, c := range list {
		switch c.Status {
		case sos.StatusPending:
			st.Pending++
		case sos.StatusAcknowledged:
			st.Acknowledged++
		case sos.StatusEscalated:
			st.Escalated++
		case sos.StatusResolved:
			st.Resolved++
		case sos.StatusFalseAlarm:
			st.FalseAlarm++
		}
	}
	return st, nil
}

func (s *Service) views(list []sos.Case) []CaseView {
	out := make([]CaseView, 0, len(list))
	for _, c := range list {
		out = append(out, s.view(c))
	}
	return out
}

// Guard exposes the authorization guard for bootstrap wiring.
func (s *Service) Guard() *guard.Guard { return s.guard }
