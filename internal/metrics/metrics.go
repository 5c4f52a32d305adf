package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatup_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatup_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "route"},
	)

	// Presence
	OnlineUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatup_online_users",
			Help: "Users with a registered live connection",
		},
	)

	PresenceBroadcasts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatup_presence_broadcasts_total",
			Help: "Online-set broadcasts emitted",
		},
	)

	ReplacedConnections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatup_replaced_connections_total",
			Help: "Registrations for a user that already had a live connection",
		},
		[]string{"policy"},
	)

	// Messaging
	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatup_messages_sent_total",
			Help: "Messages persisted",
		},
		[]string{"kind"}, // "text", "image" or "mixed"
	)

	Pushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatup_pushes_total",
			Help: "Live push attempts by event and outcome",
		},
		[]string{"event", "result"}, // result: "delivered", "offline", "failed"
	)

	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatup_rate_limit_hits_total",
			Help: "Requests rejected by the rate limiter",
		},
		[]string{"route"},
	)
)
