// smoke-sos drives one full case lifecycle against the in-memory stack
// and fails loudly if any invariant breaks. Run it after changes to the
// guard, lifecycle or submitter wiring.
package main

import (
	"context"
	"log"
	"time"

	"github.com/Sakshee21/SafeHavenWS/internal/engagement"
	"github.com/Sakshee21/SafeHavenWS/internal/escalate"
	"github.com/Sakshee21/SafeHavenWS/internal/guard"
	"github.com/Sakshee21/SafeHavenWS/internal/principal"
	"github.com/Sakshee21/SafeHavenWS/internal/roles"
	"github.com/Sakshee21/SafeHavenWS/internal/service"
	"github.com/Sakshee21/SafeHavenWS/internal/sos"
	"github.com/Sakshee21/SafeHavenWS/internal/submit"
)

var (
	victim    = principal.MustParse("0x00000000000000000000000000000000000000a1")
	ngo       = principal.MustParse("0x00000000000000000000000000000000000000b2")
	volunteer = principal.MustParse("0x00000000000000000000000000000000000000c3")
	system    = principal.MustParse("0x0000000000000000000000000000000000000001")
)

func main() {
	log.SetFlags(0)
	ctx := context.Background()

	roleStore := roles.NewInMemory()
	caseStore := sos.NewInMemory()
	engagementStore := engagement.NewInMemory()
	ledger := submit.NewInMemoryLedger()
	g := guard.New(roleStore, engagementStore, guard.WithServiceIdentity(system))

	svc, err := service.New(service.Config{
		Roles:      roleStore,
		Cases:      caseStore,
		Engagement: engagementStore,
		Guard:      g,
		Submitter:  submit.New(ledger),
	})
	if err != nil {
		log.Fatalf("service: %v", err)
	}

	must := func(step string, err error) {
		if err != nil {
			log.Fatalf("%s: %v", step, err)
		}
	}

	must("grant user", roleStore.Grant(ctx, victim, roles.User))
	must("grant ngo", roleStore.Grant(ctx, ngo, roles.NGO))
	must("grant volunteer", roleStore.Grant(ctx, volunteer, roles.Volunteer))

	// Happy path: create, acknowledge, accept, report, resolve.
	c, err := svc.CreateCase(ctx, victim, "43.238949", "76.889709", "")
	must("create case", err)
	if c.Status != sos.StatusPending {
		log.Fatalf("new case status = %s, want pending", c.Status)
	}

	_, err = svc.AcknowledgeCase(ctx, ngo, c.ID)
	must("acknowledge", err)

	must("accept", svc.AcceptCase(ctx, volunteer, c.ID))
	must("report", svc.SubmitReport(ctx, volunteer, c.ID))

	if err := svc.SubmitReport(ctx, victim, c.ID); err == nil {
		log.Fatal("report without accept should fail")
	}

	_, err = svc.ResolveCase(ctx, ngo, c.ID)
	must("resolve", err)

	// Stale case: the scheduler escalates it on the next scan.
	stale, err := svc.CreateCase(ctx, victim, "43.2", "76.8", "")
	must("create stale case", err)
	scheduler := escalate.New(svc, g, system,
		escalate.WithClock(func() time.Time { return time.Now().UTC().Add(90 * time.Minute) }))
	n, err := scheduler.Scan(ctx)
	must("scan", err)
	if n != 1 {
		log.Fatalf("scan escalated %d cases, want 1", n)
	}
	got, err := svc.GetCase(ctx, stale.ID)
	must("get stale case", err)
	if got.Status != sos.StatusEscalated {
		log.Fatalf("stale case status = %s, want escalated", got.Status)
	}

	// Sequence conservation: the commit log is gapless per identity.
	counts := map[string]uint64{}
	for _, committed := range ledger.Committed() {
		id := committed.Identity.String()
		counts[id]++
		if committed.Sequence != counts[id] {
			log.Fatalf("identity %s: sequence %d at position %d", id, committed.Sequence, counts[id])
		}
	}

	stats, err := svc.CaseStats(ctx)
	must("stats", err)
	log.Printf("smoke ok: %d cases (%d resolved, %d escalated), %d ledger commits",
		stats.Total, stats.Resolved, stats.Escalated, len(ledger.Committed()))
}
