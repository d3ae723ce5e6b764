package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Sakshee21/SafeHavenWS/internal/engagement"
	"github.com/Sakshee21/SafeHavenWS/internal/guard"
	"github.com/Sakshee21/SafeHavenWS/internal/principal"
	"github.com/Sakshee21/SafeHavenWS/internal/roles"
	"github.com/Sakshee21/SafeHavenWS/internal/sos"
	"github.com/Sakshee21/SafeHavenWS/internal/submit"
)

var (
	victim     = principal.MustParse("0x00000000000000000000000000000000000000a1")
	ngo        = principal.MustParse("0x00000000000000000000000000000000000000b2")
	volunteer  = principal.MustParse("0x00000000000000000000000000000000000000c3")
	volunteer2 = principal.MustParse("0x00000000000000000000000000000000000000c4")
	nobody     = principal.MustParse("0x00000000000000000000000000000000000000d5")
)

type env struct {
	svc    *Service
	ledger *submit.InMemoryLedger
	events []sos.Event
}

func newEnv(t *testing.T, cfgFn ...func(*Config)) *env {
	t.Helper()
	ctx := context.Background()
	roleStore := roles.NewInMemory()
	roleStore.Grant(ctx, victim, roles.User)
	roleStore.Grant(ctx, ngo, roles.NGO)
	roleStore.Grant(ctx, volunteer, roles.Volunteer)
	roleStore.Grant(ctx, volunteer2, roles.Volunteer)

	engagementStore := engagement.NewInMemory()
	ledger := submit.NewInMemoryLedger()
	e := &env{ledger: ledger}

	cfg := Config{
		Roles:      roleStore,
		Cases:      sos.NewInMemory(),
		Engagement: engagementStore,
		Guard:      guard.New(roleStore, engagementStore),
		Submitter:  submit.New(ledger, submit.WithRetry(3, time.Millisecond)),
		Notify:     func(evt sos.Event) { e.events = append(e.events, evt) },
	}
	for _, fn := range cfgFn {
		fn(&cfg)
	}
	svc, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	e.svc = svc
	return e
}

func TestFullLifecycle(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	c, err := e.svc.CreateCase(ctx, victim, "43.238949", "76.889709", "")
	if err != nil {
		t.Fatal(err)
	}
	if c.Status != sos.StatusPending {
		t.Fatalf("status = %s", c.Status)
	}

	acked, err := e.svc.AcknowledgeCase(ctx, ngo, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if acked.AcknowledgedBy != ngo {
		t.Fatalf("acknowledged_by = %s", acked.AcknowledgedBy)
	}

	if err := e.svc.AcceptCase(ctx, volunteer, c.ID); err != nil {
		t.Fatal(err)
	}
	if err := e.svc.SubmitReport(ctx, volunteer, c.ID); err != nil {
		t.Fatal(err)
	}

	resolved, err := e.svc.ResolveCase(ctx, ngo, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if resolved.Status != sos.StatusResolved {
		t.Fatalf("status = %s", resolved.Status)
	}

	// Every committed action produced a history record.
	history, _ := e.svc.CaseHistory(ctx, c.ID)
	if len(history) != 3 { // create, acknowledge, resolve
		t.Fatalf("history has %d records: %+v", len(history), history)
	}
}

func TestDeniedActionsCommitNothing(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	c, _ := e.svc.CreateCase(ctx, victim, "1", "2", "")
	before := len(e.ledger.Committed())

	if _, err := e.svc.AcknowledgeCase(ctx, volunteer, c.ID); !errors.Is(err, sos.ErrNotAuthorized) {
		t.Fatalf("got %v", err)
	}
	if _, err := e.svc.CreateCase(ctx, nobody, "1", "2", ""); !errors.Is(err, sos.ErrNotAuthorized) {
		t.Fatalf("got %v", err)
	}
	if _, err := e.svc.MarkFalseAlarm(ctx, ngo, c.ID); !errors.Is(err, sos.ErrNotAuthorized) {
		t.Fatalf("false alarm by non-owner: got %v", err)
	}

	if got := len(e.ledger.Committed()); got != before {
		t.Fatalf("denied actions reached the ledger: %d -> %d", before, got)
	}
}

func TestCreateCaseIdempotencyKey(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	first, err := e.svc.CreateCase(ctx, victim, "1", "2", "retry-key")
	if err != nil {
		t.Fatal(err)
	}
	second, err := e.svc.CreateCase(ctx, victim, "1", "2", "retry-key")
	if err != nil {
		t.Fatal(err)
	}
	if first.ID != second.ID {
		t.Fatalf("idempotent create opened a second case: %d vs %d", first.ID, second.ID)
	}

	third, _ := e.svc.CreateCase(ctx, victim, "1", "2", "other-key")
	if third.ID == first.ID {
		t.Fatal("distinct keys must open distinct cases")
	}
}

func TestTimestampsComeFromLedger(t *testing.T) {
	committed := time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)
	e := newEnv(t)
	e.ledger.SetClock(func() time.Time { return committed })
	ctx := context.Background()

	c, err := e.svc.CreateCase(ctx, victim, "1", "2", "")
	if err != nil {
		t.Fatal(err)
	}
	if !c.CreatedAt.Equal(committed) {
		t.Fatalf("created_at = %v, want ledger time %v", c.CreatedAt, committed)
	}

	history, _ := e.svc.CaseHistory(ctx, c.ID)
	if !history[0].At.Equal(committed) {
		t.Fatalf("history at = %v", history[0].At)
	}
}

func TestMultipleVolunteersAccept(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	c, _ := e.svc.CreateCase(ctx, victim, "1", "2", "")
	if err := e.svc.AcceptCase(ctx, volunteer, c.ID); err != nil {
		t.Fatal(err)
	}
	if err := e.svc.AcceptCase(ctx, volunteer2, c.ID); err != nil {
		t.Fatalf("second volunteer accept: %v", err)
	}
	if err := e.svc.AcceptCase(ctx, volunteer, c.ID); !errors.Is(err, sos.ErrAlreadyAccepted) {
		t.Fatalf("double accept: got %v", err)
	}

	got, _ := e.svc.AcceptedVolunteers(ctx, c.ID)
	if len(got) != 2 || got[0] != volunteer || got[1] != volunteer2 {
		t.Fatalf("volunteers = %v", got)
	}
}

func TestQueryCaseOpenToAnyoneAndLogged(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	c, _ := e.svc.CreateCase(ctx, victim, "1", "2", "")
	if err := e.svc.QueryCase(ctx, nobody, c.ID); err != nil {
		t.Fatal(err)
	}
	logs, _ := e.svc.EngagementLog(ctx, c.ID)
	if len(logs) != 1 || logs[0].Kind != engagement.Query {
		t.Fatalf("logs = %+v", logs)
	}
}

func TestWarningFlag(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	e := newEnv(t, func(cfg *Config) {
		cfg.Now = func() time.Time { return now }
	})
	e.ledger.SetClock(func() time.Time { return now })
	ctx := context.Background()

	c, _ := e.svc.CreateCase(ctx, victim, "1", "2", "")
	if c.Warning {
		t.Fatal("fresh case carries warning")
	}

	// Past the advisory mark the view warns but the status is untouched.
	now = now.Add(31 * time.Minute)
	got, _ := e.svc.GetCase(ctx, c.ID)
	if !got.Warning {
		t.Fatal("aged case missing warning")
	}
	if got.Status != sos.StatusPending {
		t.Fatalf("status = %s", got.Status)
	}
}

func TestCaseStats(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	a, _ := e.svc.CreateCase(ctx, victim, "1", "2", "")
	b, _ := e.svc.CreateCase(ctx, victim, "1", "2", "")
	e.svc.CreateCase(ctx, victim, "1", "2", "")

	e.svc.AcknowledgeCase(ctx, ngo, a.ID)
	e.svc.ResolveCase(ctx, ngo, a.ID)
	e.svc.MarkFalseAlarm(ctx, victim, b.ID)

	stats, err := e.svc.CaseStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := Stats{Total: 3, Pending: 1, Resolved: 1, FalseAlarm: 1}
	if stats != want {
		t.Fatalf("stats = %+v, want %+v", stats, want)
	}

	active, _ := e.svc.ActiveCases(ctx)
	if len(active) != 1 {
		t.Fatalf("active = %d", len(active))
	}
}

func TestReconcileRoles(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	labels, err := e.svc.ReconcileRoles(ctx, ngo, nobody, []string{"volunteer", "VOLUNTEER", "user"})
	if err != nil {
		t.Fatal(err)
	}
	if len(labels) != 2 {
		t.Fatalf("labels = %v", labels)
	}

	if _, err := e.svc.ReconcileRoles(ctx, ngo, nobody, []string{"user", "root"}); !errors.Is(err, roles.ErrUnknownRole) {
		t.Fatalf("got %v", err)
	}

	held, _ := e.svc.HasRole(ctx, nobody, "volunteer")
	if !held {
		t.Fatal("reconciled role not visible")
	}
}

func TestNotifyReceivesCommittedEvents(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	c, _ := e.svc.CreateCase(ctx, victim, "1", "2", "")
	e.svc.AcknowledgeCase(ctx, ngo, c.ID)

	if len(e.events) != 2 {
		t.Fatalf("got %d events", len(e.events))
	}
	if e.events[0].Kind != "create" || e.events[1].Kind != "acknowledge" {
		t.Fatalf("events = %+v", e.events)
	}
}

func TestGetCasesByVictim(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.svc.CreateCase(ctx, victim, "1", "2", "")
	e.svc.CreateCase(ctx, victim, "3", "4", "")

	list, err := e.svc.GetCasesByVictim(ctx, victim)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID >= list[1].ID {
		t.Fatalf("list = %+v", list)
	}

	empty, _ := e.svc.GetCasesByVictim(ctx, nobody)
	if len(empty) != 0 {
		t.Fatalf("unexpected cases for stranger: %+v", empty)
	}
}
