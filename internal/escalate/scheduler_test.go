package escalate

import (
	"context"
	"testing"
	"time"

	"github.com/Sakshee21/SafeHavenWS/internal/engagement"
	"github.com/Sakshee21/SafeHavenWS/internal/guard"
	"github.com/Sakshee21/SafeHavenWS/internal/principal"
	"github.com/Sakshee21/SafeHavenWS/internal/roles"
	"github.com/Sakshee21/SafeHavenWS/internal/service"
	"github.com/Sakshee21/SafeHavenWS/internal/sos"
	"github.com/Sakshee21/SafeHavenWS/internal/submit"
)

var (
	victim = principal.MustParse("0x00000000000000000000000000000000000000a1")
	ngo    = principal.MustParse("0x00000000000000000000000000000000000000b2")
	system = principal.MustParse("0x0000000000000000000000000000000000000001")
)

type fixture struct {
	svc   *service.Service
	guard *guard.Guard
	clock time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	roleStore := roles.NewInMemory()
	ctx := context.Background()
	roleStore.Grant(ctx, victim, roles.User)
	roleStore.Grant(ctx, ngo, roles.NGO)

	engagementStore := engagement.NewInMemory()
	g := guard.New(roleStore, engagementStore, guard.WithServiceIdentity(system))
	svc, err := service.New(service.Config{
		Roles:      roleStore,
		Cases:      sos.NewInMemory(),
		Engagement: engagementStore,
		Guard:      g,
		Submitter:  submit.New(submit.NewInMemoryLedger()),
	})
	if err != nil {
		t.Fatal(err)
	}
	return &fixture{svc: svc, guard: g, clock: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fixture) scheduler(opts ...Option) *Scheduler {
	opts = append(opts, WithClock(func() time.Time { return f.clock }))
	return New(f.svc, f.guard, system, opts...)
}

func TestScanEscalatesAgedCases(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, _ := f.svc.CreateCase(ctx, victim, "1", "2", "")
	b, _ := f.svc.CreateCase(ctx, victim, "1", "2", "")

	sched := f.scheduler()
	f.clock = b.CreatedAt.Add(61 * time.Minute)

	n, err := sched.Scan(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("escalated %d, want both aged cases", n)
	}
	for _, id := range []int64{a.ID, b.ID} {
		got, _ := f.svc.GetCase(ctx, id)
		if got.Status != sos.StatusEscalated {
			t.Fatalf("case %d status = %s", id, got.Status)
		}
	}
}

func TestScanLeavesYoungCasesAlone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c, _ := f.svc.CreateCase(ctx, victim, "1", "2", "")
	sched := f.scheduler()
	f.clock = c.CreatedAt.Add(59 * time.Minute)

	n, err := sched.Scan(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("escalated %d young cases", n)
	}
	got, _ := f.svc.GetCase(ctx, c.ID)
	if got.Status != sos.StatusPending {
		t.Fatalf("status = %s", got.Status)
	}
}

func TestAcknowledgeDoesNotResetThreshold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c, _ := f.svc.CreateCase(ctx, victim, "1", "2", "")
	// Acknowledged at minute 50: the case still escalates at minute 61
	// because age runs from creation.
	if _, err := f.svc.AcknowledgeCase(ctx, ngo, c.ID); err != nil {
		t.Fatal(err)
	}

	sched := f.scheduler()
	f.clock = c.CreatedAt.Add(61 * time.Minute)
	n, err := sched.Scan(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("escalated %d", n)
	}
	got, _ := f.svc.GetCase(ctx, c.ID)
	if got.Status != sos.StatusEscalated {
		t.Fatalf("status = %s", got.Status)
	}
}

func TestDoubleScanIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c, _ := f.svc.CreateCase(ctx, victim, "1", "2", "")
	sched := f.scheduler()
	f.clock = c.CreatedAt.Add(2 * time.Hour)

	if n, _ := sched.Scan(ctx); n != 1 {
		t.Fatalf("first scan escalated %d", n)
	}
	if n, _ := sched.Scan(ctx); n != 0 {
		t.Fatalf("second scan escalated %d", n)
	}

	history, _ := f.svc.CaseHistory(ctx, c.ID)
	escalations := 0
	for _, rec := range history {
		if rec.Action == "escalate" {
			escalations++
		}
	}
	if escalations != 1 {
		t.Fatalf("history has %d escalate records", escalations)
	}
}

func TestScanSkipsTerminalCases(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c, _ := f.svc.CreateCase(ctx, victim, "1", "2", "")
	if _, err := f.svc.MarkFalseAlarm(ctx, victim, c.ID); err != nil {
		t.Fatal(err)
	}

	sched := f.scheduler()
	f.clock = c.CreatedAt.Add(2 * time.Hour)
	n, err := sched.Scan(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("escalated %d terminal cases", n)
	}
}

func TestCustomThreshold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c, _ := f.svc.CreateCase(ctx, victim, "1", "2", "")
	sched := f.scheduler(WithThreshold(10 * time.Minute))
	f.clock = c.CreatedAt.Add(11 * time.Minute)

	if n, _ := sched.Scan(ctx); n != 1 {
		t.Fatalf("escalated %d with 10m threshold", n)
	}
}
