package guard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Sakshee21/SafeHavenWS/internal/engagement"
	"github.com/Sakshee21/SafeHavenWS/internal/principal"
	"github.com/Sakshee21/SafeHavenWS/internal/roles"
	"github.com/Sakshee21/SafeHavenWS/internal/sos"
)

var (
	victim    = principal.MustParse("0x00000000000000000000000000000000000000a1")
	ngo       = principal.MustParse("0x00000000000000000000000000000000000000b2")
	volunteer = principal.MustParse("0x00000000000000000000000000000000000000c3")
	nobody    = principal.MustParse("0x00000000000000000000000000000000000000d4")
	system    = principal.MustParse("0x0000000000000000000000000000000000000001")
)

func newGuard(t *testing.T, opts ...Option) (*Guard, *roles.InMemory, *engagement.InMemory) {
	t.Helper()
	roleStore := roles.NewInMemory()
	engagementStore := engagement.NewInMemory()
	ctx := context.Background()
	roleStore.Grant(ctx, victim, roles.User)
	roleStore.Grant(ctx, ngo, roles.NGO)
	roleStore.Grant(ctx, volunteer, roles.Volunteer)
	return New(roleStore, engagementStore, opts...), roleStore, engagementStore
}

func pendingCase() *sos.Case {
	return &sos.Case{ID: 1, Victim: victim, Status: sos.StatusPending, CreatedAt: time.Now().UTC()}
}

func wantDenied(t *testing.T, err error, reason Reason) {
	t.Helper()
	var denied *DeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected DeniedError, got %v", err)
	}
	if denied.Reason != reason {
		t.Fatalf("reason = %s, want %s", denied.Reason, reason)
	}
}

func TestCreateRequiresUserRole(t *testing.T) {
	g, _, _ := newGuard(t)
	ctx := context.Background()

	if err := g.Authorize(ctx, victim, ActionCreateCase, nil); err != nil {
		t.Fatal(err)
	}
	err := g.Authorize(ctx, nobody, ActionCreateCase, nil)
	wantDenied(t, err, ReasonWrongRole)
	if !errors.Is(err, sos.ErrNotAuthorized) {
		t.Fatalf("DeniedError does not unwrap to ErrNotAuthorized: %v", err)
	}
}

func TestSelfHealUserGrantsOnFirstCreate(t *testing.T) {
	g, roleStore, _ := newGuard(t, WithSelfHealUser())
	ctx := context.Background()

	if err := g.Authorize(ctx, nobody, ActionCreateCase, nil); err != nil {
		t.Fatal(err)
	}
	held, _ := roleStore.HasRole(ctx, nobody, roles.User)
	if !held {
		t.Fatal("User role was not granted")
	}
}

func TestNGOOnlyTransitions(t *testing.T) {
	g, _, _ := newGuard(t)
	ctx := context.Background()
	c := pendingCase()

	for _, action := range []Action{ActionAcknowledge, ActionEscalate, ActionResolve, ActionAssignVolunteer} {
		if err := g.Authorize(ctx, ngo, action, c); err != nil {
			t.Fatalf("%s as ngo: %v", action, err)
		}
		wantDenied(t, g.Authorize(ctx, volunteer, action, c), ReasonWrongRole)
		wantDenied(t, g.Authorize(ctx, victim, action, c), ReasonWrongRole)
	}
}

func TestFalseAlarmOwnerOnly(t *testing.T) {
	g, _, _ := newGuard(t)
	ctx := context.Background()
	c := pendingCase()

	if err := g.Authorize(ctx, victim, ActionMarkFalseAlarm, c); err != nil {
		t.Fatal(err)
	}
	// Not even an NGO may retire someone else's case.
	wantDenied(t, g.Authorize(ctx, ngo, ActionMarkFalseAlarm, c), ReasonNotOwner)
}

func TestAcceptRequiresVolunteerAndOpenCase(t *testing.T) {
	g, _, _ := newGuard(t)
	ctx := context.Background()
	c := pendingCase()

	if err := g.Authorize(ctx, volunteer, ActionAcceptCase, c); err != nil {
		t.Fatal(err)
	}
	wantDenied(t, g.Authorize(ctx, victim, ActionAcceptCase, c), ReasonWrongRole)

	c.Status = sos.StatusResolved
	err := g.Authorize(ctx, volunteer, ActionAcceptCase, c)
	wantDenied(t, err, ReasonInvalidState)
	if !errors.Is(err, sos.ErrInvalidState) {
		t.Fatalf("InvalidState denial does not unwrap: %v", err)
	}
}

func TestReportRequiresPriorAccept(t *testing.T) {
	g, _, engagementStore := newGuard(t)
	ctx := context.Background()
	c := pendingCase()

	if err := g.Authorize(ctx, volunteer, ActionSubmitReport, c); !errors.Is(err, sos.ErrMustAcceptFirst) {
		t.Fatalf("got %v", err)
	}

	engagementStore.Append(ctx, engagement.Entry{CaseID: c.ID, Volunteer: volunteer, Kind: engagement.Accept, At: time.Now()})
	if err := g.Authorize(ctx, volunteer, ActionSubmitReport, c); err != nil {
		t.Fatal(err)
	}
}

func TestQueryOpenToAnyone(t *testing.T) {
	g, _, _ := newGuard(t)
	if err := g.Authorize(context.Background(), nobody, ActionQueryCase, pendingCase()); err != nil {
		t.Fatal(err)
	}
}

func TestServiceIdentitySelfProvisions(t *testing.T) {
	g, roleStore, _ := newGuard(t, WithServiceIdentity(system))
	ctx := context.Background()

	if err := g.Authorize(ctx, system, ActionEscalate, pendingCase()); err != nil {
		t.Fatal(err)
	}
	held, _ := roleStore.HasRole(ctx, system, roles.NGO)
	if !held {
		t.Fatal("service identity was not provisioned")
	}
	// Second call is a no-op, not a second grant.
	if err := g.EnsureServiceRole(ctx); err != nil {
		t.Fatal(err)
	}
	got, _ := roleStore.RolesOf(ctx, system)
	if len(got) != 1 {
		t.Fatalf("roles = %v", got)
	}
}

func TestEnsureServiceRoleWithoutIdentity(t *testing.T) {
	g, _, _ := newGuard(t)
	if err := g.EnsureServiceRole(context.Background()); !errors.Is(err, sos.ErrNotAuthorized) {
		t.Fatalf("got %v", err)
	}
}
