package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	responseTime = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "response_time",
			Help:    "http response time.",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		},
	)

	totalHttpRequestsToUri = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "total_http_requests_to_uri", Help: "http requests to uri"},
		[]string{"code", "uri", "method"},
	)

	totalHttpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "total_http_requests", Help: "http requests by code, and method"},
		[]string{"code", "method"},
	)

	tokenRefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "token_refresh_total", Help: "token refreshes by path prefix and result"},
		[]string{"prefix", "result"},
	)

	tokenRefreshSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "token_refresh_seconds",
			Help:    "time spent signing and exchanging a client assertion.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"prefix"},
	)

	proxiedRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "proxied_requests_total", Help: "requests handled for a path prefix"},
		[]string{"prefix", "method", "code"},
	)
)

func init() {
	prometheus.MustRegister(
		responseTime,
		totalHttpRequestsToUri,
		totalHttpRequests,
		tokenRefreshTotal,
		tokenRefreshSeconds,
		proxiedRequestsTotal,
	)
}
