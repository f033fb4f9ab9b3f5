package app

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "credo_http_request_duration_seconds",
	Help:    "HTTP request latency by method and status class.",
	Buckets: prometheus.DefBuckets,
}, []string{"method", "class"})

func observeHTTPRequest(method string, status int, elapsed time.Duration) {
	httpRequestDuration.WithLabelValues(method, statusClass(status)).Observe(elapsed.Seconds())
}
