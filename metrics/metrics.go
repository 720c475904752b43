/*
metrics.go - Prometheus collectors

PURPOSE:
  Owns the application registry and the counters recorded by the HTTP
  layer and the birthday sweep.

COLLECTORS:
  stampcard_http_*       Requests, latency and in-flight by chi route
  stampcard_ledger_*     Scan outcomes, stamps, birthday bonuses,
                         redemptions and throttled scans
  stampcard_scheduler_*  Birthday sweep runs, reminders and duration

SEE ALSO:
  - api/server.go: InstrumentHandler and /metrics
*/
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "stampcard"

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "route"},
	)

	scans = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "scans_total",
			Help:      "Staff scans by outcome (stamp, reward, rejected, error).",
		},
		[]string{"outcome"},
	)

	stampsAdded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "stamps_added_total",
			Help:      "Stamps added by scans, birthday bonus included.",
		},
	)

	birthdayBonuses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "birthday_bonuses_total",
			Help:      "Scans that granted the yearly birthday bonus.",
		},
	)

	redemptions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "redemptions_total",
			Help:      "Reward redemptions and claims by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	scansThrottled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "scans_throttled_total",
			Help:      "Scans rejected by the duplicate-scan guard.",
		},
	)

	sweepRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "birthday_sweep_runs_total",
			Help:      "Birthday sweep runs by outcome.",
		},
		[]string{"success"},
	)

	sweepReminders = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "birthday_reminders_total",
			Help:      "Birthday reminders queued by the sweep.",
		},
	)

	sweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "birthday_sweep_duration_seconds",
			Help:      "Duration of birthday sweep runs.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		scans,
		stampsAdded,
		birthdayBonuses,
		redemptions,
		scansThrottled,
		sweepRuns,
		sweepReminders,
		sweepDuration,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler records request count, duration and in-flight requests.
// Routes are labelled by their chi pattern so IDs do not explode cardinality.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := routePattern(r)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
		httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	})
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// Scan outcomes.
const (
	ScanStamp    = "stamp"
	ScanReward   = "reward"
	ScanRejected = "rejected"
	ScanError    = "error"
)

// RecordScan records one scan. added and birthday are ignored unless the
// outcome is ScanStamp or ScanReward.
func RecordScan(outcome string, added int, birthday bool) {
	scans.WithLabelValues(outcome).Inc()
	if outcome != ScanStamp && outcome != ScanReward {
		return
	}
	stampsAdded.Add(float64(added))
	if birthday {
		birthdayBonuses.Inc()
	}
}

// RecordThrottledScan counts a scan rejected by the duplicate-scan guard.
func RecordThrottledScan() {
	scansThrottled.Inc()
	scans.WithLabelValues(ScanRejected).Inc()
}

// RecordRedemption records a redemption ("redeem") or claim ("claim").
func RecordRedemption(kind string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	redemptions.WithLabelValues(kind, outcome).Inc()
}

// RecordBirthdaySweep records one sweep run.
func RecordBirthdaySweep(reminders int, duration time.Duration, err error) {
	sweepRuns.WithLabelValues(strconv.FormatBool(err == nil)).Inc()
	sweepReminders.Add(float64(reminders))
	sweepDuration.Observe(duration.Seconds())
}
