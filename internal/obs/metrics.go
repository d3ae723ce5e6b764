package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Shared HTTP metrics.
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// Domain metrics.
var (
	actionsCommitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sos_actions_committed_total",
			Help: "Mutating actions durably committed to the ledger.",
		},
		[]string{"kind"},
	)

	escalationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sos_escalations_total",
		Help: "Cases escalated by the scheduler.",
	})

	schedulerScans = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sos_scheduler_scans_total",
		Help: "Completed escalation scheduler scans.",
	})

	schedulerFaults = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sos_scheduler_case_faults_total",
		Help: "Per-case failures isolated during scheduler scans.",
	})
)

// Init registers all metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		actionsCommitted, escalationsTotal, schedulerScans, schedulerFaults,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ActionCommitted counts one committed mutating action.
func ActionCommitted(kind string) { actionsCommitted.WithLabelValues(kind).Inc() }

// EscalationApplied counts one scheduler-driven escalation.
func EscalationApplied() { escalationsTotal.Inc() }

// SchedulerScan counts one completed scan.
func SchedulerScan() { schedulerScans.Inc() }

// SchedulerCaseFault counts one isolated per-case failure.
func SchedulerCaseFault() { schedulerFaults.Inc() }

// Instrument wraps a handler with RPS/latency/in-flight measurement.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// CanonicalPath collapses per-resource ids so metric cardinality stays
// bounded: /v1/cases/7 -> /v1/cases/:id.
func CanonicalPath(path string) string {
	if path == "" {
		return "/"
	}
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	parts := strings.Split(path, "/")
	if path == "/v1/cases/nearby" {
		return path
	}
	for prefix, tails := range map[string][]string{
		"cases":      {"", "false-alarm", "acknowledge", "escalate", "resolve", "assign", "accept", "report", "query", "logs", "volunteers", "history"},
		"victims":    {"", "cases"},
		"principals": {"", "roles"},
	} {
		if len(parts) >= 4 && parts[1] == "v1" && parts[2] == prefix {
			tail := ""
			if len(parts) == 5 {
				tail = parts[4]
			}
			if len(parts) > 5 {
				return path
			}
			for _, t := range tails {
				if tail == t {
					parts[3] = ":id"
					return strings.Join(parts, "/")
				}
			}
		}
	}
	return path
}

// statusWriter captures the response code for labeling.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
