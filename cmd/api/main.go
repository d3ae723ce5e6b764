package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/Sakshee21/SafeHavenWS/internal/engagement"
	"github.com/Sakshee21/SafeHavenWS/internal/escalate"
	"github.com/Sakshee21/SafeHavenWS/internal/guard"
	"github.com/Sakshee21/SafeHavenWS/internal/httpapi"
	"github.com/Sakshee21/SafeHavenWS/internal/obs"
	"github.com/Sakshee21/SafeHavenWS/internal/principal"
	"github.com/Sakshee21/SafeHavenWS/internal/roles"
	"github.com/Sakshee21/SafeHavenWS/internal/service"
	"github.com/Sakshee21/SafeHavenWS/internal/sos"
	pgstore "github.com/Sakshee21/SafeHavenWS/internal/store/pg"
	"github.com/Sakshee21/SafeHavenWS/internal/stream"
	"github.com/Sakshee21/SafeHavenWS/internal/submit"
)

var version = "0.3.0"

// defaultServiceIdentity signs scheduler-driven escalations when
// SAFEHAVEN_SERVICE_IDENTITY is not set. Any stable non-zero address
// works; it is granted ngo on first use.
const defaultServiceIdentity = "0x0000000000000000000000000000000000000001"

func main() {
	// Observability first: metrics registration, JSON event logger.
	obs.Init()

	serviceIdentity := principal.MustParse(defaultServiceIdentity)
	if raw := os.Getenv("SAFEHAVEN_SERVICE_IDENTITY"); raw != "" {
		p, err := principal.Parse(raw)
		if err != nil {
			log.Fatalf("SAFEHAVEN_SERVICE_IDENTITY: %v", err)
		}
		serviceIdentity = p
	}

	// Stores: Postgres when a DSN is configured, in-memory otherwise.
	var (
		db              *sql.DB
		caseStore       sos.Store
		roleStore       roles.Store
		engagementStore engagement.Store
		ledger          submit.Ledger
	)
	if dsn := os.Getenv("SAFEHAVEN_PG_DSN"); dsn != "" {
		store, err := pgstore.Open(dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db = store.DB()
		caseStore = store
		roleStore = store
		engagementStore = store
		ledger = pgstore.NewLedger(db)
	} else {
		caseStore = sos.NewInMemory()
		roleStore = roles.NewInMemory()
		engagementStore = engagement.NewInMemory()
		ledger = submit.NewInMemoryLedger()
		log.Printf("SAFEHAVEN_PG_DSN not set, using in-memory stores")
	}

	gOpts := []guard.Option{guard.WithServiceIdentity(serviceIdentity)}
	if os.Getenv("SAFEHAVEN_SELF_HEAL_USER") == "1" {
		gOpts = append(gOpts, guard.WithSelfHealUser())
	}
	g := guard.New(roleStore, engagementStore, gOpts...)

	st := stream.New()
	svc, err := service.New(service.Config{
		Roles:      roleStore,
		Cases:      caseStore,
		Engagement: engagementStore,
		Guard:      g,
		Submitter:  submit.New(ledger),
		Notify:     st.Publish,
	})
	if err != nil {
		log.Fatalf("service: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	schedOpts := []escalate.Option{}
	if d := envMinutes("SAFEHAVEN_ESCALATE_AFTER_MIN"); d > 0 {
		schedOpts = append(schedOpts, escalate.WithThreshold(d))
	}
	if d := envSeconds("SAFEHAVEN_SCAN_INTERVAL_SEC"); d > 0 {
		schedOpts = append(schedOpts, escalate.WithInterval(d))
	}
	scheduler := escalate.New(svc, g, serviceIdentity, schedOpts...)
	go scheduler.Run(ctx)

	api := httpapi.New(httpapi.ReadyProbe{DB: db}, version, svc, st)

	addr := os.Getenv("SAFEHAVEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      0, // SSE connections stay open
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting safehaven-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	_ = srv.Shutdown(shutdownCtx)
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}

func envMinutes(name string) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		log.Fatalf("%s must be a positive integer, got %q", name, raw)
	}
	return time.Duration(n) * time.Minute
}

func envSeconds(name string) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		log.Fatalf("%s must be a positive integer, got %q", name, raw)
	}
	return time.Duration(n) * time.Second
}
