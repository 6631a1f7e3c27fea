package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatidea_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatidea_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	httpPanicsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chatidea_http_panics_total",
			Help: "Handler panics recovered by the HTTP stack.",
		},
	)

	chatTurnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatidea_turns_total",
			Help: "Conversation turns by intent and outcome.",
		},
		[]string{"intent", "outcome"},
	)
	chatTurnLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chatidea_turn_latency_ms",
			Help:    "End-to-end turn latency in milliseconds, classification included.",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
	)
	queryLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatidea_query_latency_ms",
			Help:    "Storage query latency in milliseconds by plan kind.",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		},
		[]string{"kind"},
	)
	queryRows = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chatidea_query_rows",
			Help:    "Rows returned per storage query.",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
		},
	)
	queryFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatidea_query_failures_total",
			Help: "Storage queries that failed, split by timeout.",
		},
		[]string{"reason"},
	)
	ambiguityCandidates = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chatidea_ambiguity_candidates",
			Help:    "Candidate phrases offered per ambiguity resolution.",
			Buckets: []float64{1, 2, 3, 5, 8, 13},
		},
	)
	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatidea_active_sessions",
			Help: "Sessions currently held by the in-memory session store.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDurationSeconds,
		httpPanicsTotal,
		chatTurnsTotal,
		chatTurnLatencyMs,
		queryLatencyMs,
		queryRows,
		queryFailuresTotal,
		ambiguityCandidates,
		activeSessions,
	)
}

func ObserveTurn(intent, outcome string, elapsed time.Duration) {
	chatTurnsTotal.WithLabelValues(intent, outcome).Inc()
	chatTurnLatencyMs.Observe(float64(elapsed.Milliseconds()))
}

func ObserveQuery(kind string, rows int, elapsed time.Duration) {
	queryLatencyMs.WithLabelValues(kind).Observe(float64(elapsed.Milliseconds()))
	queryRows.Observe(float64(rows))
}

func IncrementQueryFailure(timeout bool) {
	reason := "error"
	if timeout {
		reason = "timeout"
	}
	queryFailuresTotal.WithLabelValues(reason).Inc()
}

func ObserveAmbiguity(candidates int) {
	ambiguityCandidates.Observe(float64(candidates))
}

func SetActiveSessions(count int) {
	activeSessions.Set(float64(max(count, 0)))
}
