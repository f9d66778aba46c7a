package syncer

import "github.com/prometheus/client_golang/prometheus"

var (
	cyclesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "liftsync",
		Subsystem: "sync",
		Name:      "cycles_total",
		Help:      "Sync cycles run, labeled by outcome.",
	}, []string{"outcome"})

	sessionsSent = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "liftsync",
		Subsystem: "sync",
		Name:      "sessions_sent_total",
		Help:      "Sessions acknowledged by the peer.",
	})

	sendFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "liftsync",
		Subsystem: "sync",
		Name:      "send_failures_total",
		Help:      "Sends that failed or were rejected by the peer.",
	})

	healthExports = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "liftsync",
		Subsystem: "sync",
		Name:      "health_exports_total",
		Help:      "Health sink exports, labeled by outcome.",
	}, []string{"outcome"})

	sessionsIngested = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "liftsync",
		Subsystem: "sync",
		Name:      "sessions_ingested_total",
		Help:      "Sessions received from the peer and stored.",
	})

	pendingSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "liftsync",
		Subsystem: "sync",
		Name:      "pending_sessions",
		Help:      "Sessions waiting to be sent to the peer.",
	})

	cycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "liftsync",
		Subsystem: "sync",
		Name:      "cycle_duration_seconds",
		Help:      "Time spent in one sync cycle.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	})
)

func init() {
	prometheus.MustRegister(cyclesTotal, sessionsSent, sendFailures, healthExports, sessionsIngested, pendingSessions, cycleDuration)
}
