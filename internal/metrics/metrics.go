// Package metrics defines Prometheus metrics for moodboard.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	BackendRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moodboard_backend_requests_total",
			Help: "Backend generate/edit calls by outcome",
		},
		[]string{"op", "outcome"},
	)

	BackendDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "moodboard_backend_request_duration_seconds",
			Help:    "Backend call duration in seconds",
			Buckets: []float64{1, 2.5, 5, 10, 20, 40, 60, 90, 120},
		},
		[]string{"op"},
	)

	Submissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moodboard_submissions_total",
			Help: "Submit attempts by mode and result",
		},
		[]string{"mode", "result"},
	)

	HistoryEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "moodboard_history_entries",
			Help: "Entries currently in the version history",
		},
	)

	AutoPlaySelections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "moodboard_autoplay_selections_total",
			Help: "Versions shown by auto-play",
		},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "moodboard_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	WSConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "moodboard_websocket_connections",
			Help: "Active WebSocket connections",
		},
	)
)

// Outcome labels for BackendRequests.
const (
	OutcomeOK        = "ok"
	OutcomeNetwork   = "network"
	OutcomeRemote    = "remote"
	OutcomeMalformed = "malformed"
)

func init() {
	prometheus.MustRegister(
		BackendRequests, BackendDuration,
		Submissions, HistoryEntries, AutoPlaySelections,
		RequestDuration, WSConnections,
	)
}
