package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry-backed counters for the delivery pipeline. All vectors are
// registered on the default registry and exposed on /metrics.
var (
	DispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "notification",
		Name:      "dispatch_total",
		Help:      "Dispatch outcomes by channel and terminal status.",
	}, []string{"channel", "status"})

	DispatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "notification",
		Name:      "dispatch_duration_seconds",
		Help:      "End-to-end dispatch latency by channel.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"channel"})

	RateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "notification",
		Name:      "rate_limited_total",
		Help:      "Dispatches cancelled by the rate limiter.",
	}, []string{"channel"})

	IngestEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "notification",
		Name:      "ingest_events_total",
		Help:      "Consumed upstream events by topic and result (handled, filtered, parse_error, mapping_error, rate_limited, dead_lettered).",
	}, []string{"topic", "result"})

	BreakerTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "notification",
		Name:      "breaker_transitions_total",
		Help:      "Circuit breaker state transitions by channel and new state.",
	}, []string{"channel", "state"})

	DeadLetters = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "notification",
		Name:      "dead_letters_total",
		Help:      "Dead-letter records by event type and criticality.",
	}, []string{"event_type", "critical"})

	SocketSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "notification",
		Name:      "socket_sessions",
		Help:      "Currently connected in-app socket sessions.",
	})
)
