package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	rpcRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "capcanon",
			Subsystem: "grpc",
			Name:      "requests_total",
			Help:      "Total CAS gRPC requests.",
		},
		[]string{"method", "code"},
	)
	rpcDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "capcanon",
			Subsystem: "grpc",
			Name:      "request_duration_seconds",
			Help:      "CAS gRPC request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "code"},
	)
	payloadBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "capcanon",
			Subsystem: "grpc",
			Name:      "payload_bytes",
			Help:      "Size of blocks stored and served.",
			Buckets:   prometheus.ExponentialBuckets(64, 4, 10),
		},
		[]string{"method"},
	)
	canonicalChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "capcanon",
			Subsystem: "canon",
			Name:      "checks_total",
			Help:      "Canonical-form checks by outcome and violated rule.",
		},
		[]string{"outcome", "rule"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(rpcRequests, rpcDuration, payloadBytes, canonicalChecks)
	})
}

func RecordRPC(method, code string, duration time.Duration) {
	RegisterMetrics()
	rpcRequests.WithLabelValues(method, code).Inc()
	rpcDuration.WithLabelValues(method, code).Observe(duration.Seconds())
}

func RecordPayload(method string, n int) {
	RegisterMetrics()
	payloadBytes.WithLabelValues(method).Observe(float64(n))
}

// RecordCanonicalCheck counts one check. rule is empty when the message was
// canonical.
func RecordCanonicalCheck(rule string) {
	RegisterMetrics()
	outcome := "canonical"
	if rule != "" {
		outcome = "rejected"
	}
	canonicalChecks.WithLabelValues(outcome, rule).Inc()
}
