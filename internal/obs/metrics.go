package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP metrics shared by every handler.
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

// Ledger engine metrics.
var (
	postingsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_postings_total",
			Help: "Balance postings applied, by transaction type and operation.",
		},
		[]string{"operation", "type"},
	)

	importRows = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_import_rows_total",
			Help: "Bulk import rows by outcome.",
		},
		[]string{"outcome"},
	)

	recomputeDrift = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ledger_recompute_drift_minor_units",
			Help: "Absolute drift found by the last recomputation, per checkbook.",
		},
		[]string{"checkbook"},
	)
)

// Init registers all metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		postingsTotal, importRows, recomputeDrift,
	)
}

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePosting records one applied posting operation.
func ObservePosting(operation, txType string) {
	postingsTotal.WithLabelValues(operation, txType).Inc()
}

// ObserveImport records a bulk import outcome.
func ObserveImport(inserted, skipped int) {
	importRows.WithLabelValues("inserted").Add(float64(inserted))
	importRows.WithLabelValues("duplicate").Add(float64(skipped))
}

// ObserveRecomputeDrift publishes the total absolute drift a recomputation
// found in one checkbook.
func ObserveRecomputeDrift(checkbookID string, drift int64) {
	if drift < 0 {
		drift = -drift
	}
	recomputeDrift.WithLabelValues(checkbookID).Set(float64(drift))
}

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

// CanonicalPath collapses resource identifiers so metric cardinality stays
// bounded: /v1/accounts/<id>/register -> /v1/accounts/:id/register.
func CanonicalPath(p string) string {
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	if p == "" {
		return "/"
	}
	parts := strings.Split(p, "/")
	for i := 1; i < len(parts); i++ {
		prev := parts[i-1]
		if prev == "accounts" || prev == "transactions" || prev == "checkbooks" {
			if parts[i] != "" && parts[i] != "reconcile" {
				parts[i] = ":id"
			}
		}
	}
	return strings.Join(parts, "/")
}

// statusWriter captures the response code for labelling.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
