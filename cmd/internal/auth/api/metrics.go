package authapi

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	authRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "credo_auth_requests_total",
		Help: "Auth endpoint outcomes by operation.",
	}, []string{"op", "outcome"})

	rateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "credo_auth_rate_limited_total",
		Help: "Requests rejected by the per-IP rate limiter.",
	})
)

func countOutcome(op, outcome string) {
	authRequestsTotal.WithLabelValues(op, outcome).Inc()
}
