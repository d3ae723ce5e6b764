// Package guard decides whether a principal may perform an action on a
// case, using role grants and case ownership fields. Denials carry a
// stable machine-readable reason, never a raw error string.
package guard

import (
	"context"
	"fmt"
	"sync"

	"github.com/Sakshee21/SafeHavenWS/internal/audit"
	"github.com/Sakshee21/SafeHavenWS/internal/engagement"
	"github.com/Sakshee21/SafeHavenWS/internal/principal"
	"github.com/Sakshee21/SafeHavenWS/internal/roles"
	"github.com/Sakshee21/SafeHavenWS/internal/sos"
)

// Action identifies the requested operation.
type Action string

const (
	ActionCreateCase      Action = "create_case"
	ActionAcknowledge     Action = "acknowledge"
	ActionEscalate        Action = "escalate"
	ActionResolve         Action = "resolve"
	ActionAssignVolunteer Action = "assign_volunteer"
	ActionMarkFalseAlarm  Action = "mark_false_alarm"
	ActionAcceptCase      Action = "accept_case"
	ActionSubmitReport    Action = "submit_report"
	ActionQueryCase       Action = "query_case"
)

// Reason classifies a denial.
type Reason string

const (
	ReasonNotAuthorized Reason = "NotAuthorized"
	ReasonWrongRole     Reason = "WrongRole"
	ReasonNotOwner      Reason = "NotOwner"
	ReasonInvalidState  Reason = "InvalidState"
)

// DeniedError is the only error type Authorize produces for policy
// denials. It unwraps to the taxonomy sentinel the boundary maps on.
type DeniedError struct {
	Action    Action
	Reason    Reason
	Principal principal.Address
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("denied %s for %s: %s", e.Action, e.Principal, e.Reason)
}

func (e *DeniedError) Unwrap() error {
	if e.Reason == ReasonInvalidState {
		return sos.ErrInvalidState
	}
	return sos.ErrNotAuthorized
}

// Guard evaluates the authorization rules.
//
// Two policies are configurable. SelfHealUser grants User on a first
// createCase instead of denying (off by default: the authoritative
// contract rejects unregistered victims). Service self-provisioning
// grants NGO to the configured service identity the first time it needs
// it, as an audited privileged action (on whenever a service identity is
// set), so the escalation scheduler can act without manual bootstrap.
type Guard struct {
	roles      roles.Store
	engagement engagement.Store
	service    principal.Address

	selfHealUser bool

	mu          sync.Mutex
	provisioned bool
}

// Option configures a Guard.
type Option func(*Guard)

// WithSelfHealUser enables granting User on first case creation.
func WithSelfHealUser() Option {
	return func(g *Guard) { g.selfHealUser = true }
}

// WithServiceIdentity names the system's own signing identity, enabling
// one-time NGO self-provisioning for it.
func WithServiceIdentity(p principal.Address) Option {
	return func(g *Guard) { g.service = p }
}

// New builds a Guard over the given stores.
func New(roleStore roles.Store, engagementStore engagement.Store, opts ...Option) *Guard {
	g := &Guard{roles: roleStore, engagement: engagementStore}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Authorize applies the rules in precedence order; the first matching
// rule decides. c may be nil only for ActionCreateCase.
func (g *Guard) Authorize(ctx context.Context, p principal.Address, action Action, c *sos.Case) error {
	switch action {
	case ActionCreateCase:
		return g.authorizeCreate(ctx, p)

	case ActionMarkFalseAlarm:
		if c == nil {
			return sos.ErrNotFound
		}
		if p != c.Victim {
			return &DeniedError{Action: action, Reason: ReasonNotOwner, Principal: p}
		}
		return nil

	case ActionAcknowledge, ActionEscalate, ActionResolve, ActionAssignVolunteer:
		return g.authorizeNGO(ctx, p, action)

	case ActionAcceptCase:
		if c == nil {
			return sos.ErrNotFound
		}
		held, err := g.roles.HasRole(ctx, p, roles.Volunteer)
		if err != nil {
			return err
		}
		if !held {
			return &DeniedError{Action: action, Reason: ReasonWrongRole, Principal: p}
		}
		if c.Status.Terminal() {
			return &DeniedError{Action: action, Reason: ReasonInvalidState, Principal: p}
		}
		return nil

	case ActionSubmitReport:
		if c == nil {
			return sos.ErrNotFound
		}
		accepted, err := g.engagement.HasAccepted(ctx, c.ID, p)
		if err != nil {
			return err
		}
		if !accepted {
			return fmt.Errorf("%w: %s never accepted case %d", sos.ErrMustAcceptFirst, p, c.ID)
		}
		return nil

	case ActionQueryCase:
		// Read-only, any principal, zero roles included. Still logged
		// as an engagement entry by the caller.
		return nil

	default:
		return fmt.Errorf("%w: unknown action %q", sos.ErrValidation, action)
	}
}

func (g *Guard) authorizeCreate(ctx context.Context, p principal.Address) error {
	held, err := g.roles.HasRole(ctx, p, roles.User)
	if err != nil {
		return err
	}
	if held {
		return nil
	}
	if !g.selfHealUser {
		return &DeniedError{Action: ActionCreateCase, Reason: ReasonWrongRole, Principal: p}
	}
	if err := g.roles.Grant(ctx, p, roles.User); err != nil {
		return err
	}
	_ = audit.LogEvent(ctx, "guard.self_heal_user", map[string]any{
		"principal": p.String(),
	})
	return nil
}

func (g *Guard) authorizeNGO(ctx context.Context, p principal.Address, action Action) error {
	held, err := g.roles.HasRole(ctx, p, roles.NGO)
	if err != nil {
		return err
	}
	if held {
		return nil
	}
	if !g.service.IsZero() && p == g.service {
		if err := g.EnsureServiceRole(ctx); err != nil {
			return err
		}
		return nil
	}
	return &DeniedError{Action: action, Reason: ReasonWrongRole, Principal: p}
}

// EnsureServiceRole grants NGO to the service identity if it does not
// hold it yet. The grant is privileged and audited; repeated calls are
// no-ops. The escalation scheduler runs this at the start of every scan.
func (g *Guard) EnsureServiceRole(ctx context.Context) error {
	if g.service.IsZero() {
		return fmt.Errorf("%w: no service identity configured", sos.ErrNotAuthorized)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.provisioned {
		return nil
	}
	held, err := g.roles.HasRole(ctx, g.service, roles.NGO)
	if err != nil {
		return err
	}
	if !held {
		if err := g.roles.Grant(ctx, g.service, roles.NGO); err != nil {
			return err
		}
		_ = audit.LogEvent(ctx, "guard.service_self_provision", map[string]any{
			"principal": g.service.String(),
			"role":      string(roles.NGO),
		})
	}
	g.provisioned = true
	return nil
}
