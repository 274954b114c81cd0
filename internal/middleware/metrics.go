package middleware

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names exported by the HTTP stack.
const (
	MetricRateLimitRequests     = "rate_limit_requests_total"
	MetricRateLimitBlocked      = "rate_limit_blocked_total"
	MetricRateLimitRedisErrors  = "rate_limit_redis_errors_total"
	MetricHTTPRequestDuration   = "http_request_duration_seconds"
	MetricHTTPRequestsTotal     = "http_requests_total"
	MetricHTTPRequestSizeBytes  = "http_request_size_bytes"
	MetricHTTPResponseSizeBytes = "http_response_size_bytes"
)

var (
	httpLabels    = []string{"method", "path", "status"}
	limiterLabels = []string{"limiter", "key_type"}

	// Most handlers answer from memory; uploads are the slow tail.
	durationBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5}
	sizeBuckets     = prometheus.ExponentialBuckets(64, 8, 8)
)

// Metrics holds the request and rate limiter collectors. A nil *Metrics
// records nothing.
type Metrics struct {
	requests     *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	requestSize  *prometheus.HistogramVec
	responseSize *prometheus.HistogramVec

	limited     *prometheus.CounterVec
	blocked     *prometheus.CounterVec
	redisErrors prometheus.Counter
}

// NewMetrics builds unregistered collectors. Call Register before serving.
func NewMetrics() *Metrics {
	return &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricHTTPRequestsTotal,
			Help: "HTTP requests served, by route and status",
		}, httpLabels),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricHTTPRequestDuration,
			Help:    "Time spent serving HTTP requests",
			Buckets: durationBuckets,
		}, httpLabels),
		requestSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricHTTPRequestSizeBytes,
			Help:    "Declared size of HTTP request bodies",
			Buckets: sizeBuckets,
		}, httpLabels),
		responseSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricHTTPResponseSizeBytes,
			Help:    "Bytes written in HTTP responses",
			Buckets: sizeBuckets,
		}, httpLabels),
		limited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricRateLimitRequests,
			Help: "Requests checked by a rate limiter",
		}, limiterLabels),
		blocked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricRateLimitBlocked,
			Help: "Requests rejected by a rate limiter",
		}, limiterLabels),
		redisErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricRateLimitRedisErrors,
			Help: "Redis failures during rate limiting; the request was let through",
		}),
	}
}

// Collectors lists every collector owned by m.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.requests, m.duration, m.requestSize, m.responseSize,
		m.limited, m.blocked, m.redisErrors,
	}
}

// Register adds all collectors to reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// IncRateLimitRequests counts a request seen by the named limiter.
func (m *Metrics) IncRateLimitRequests(limiter, keyType string) {
	if m == nil {
		return
	}
	m.limited.WithLabelValues(limiter, keyType).Inc()
}

// IncRateLimitBlocked counts a request the named limiter rejected.
func (m *Metrics) IncRateLimitBlocked(limiter, keyType string) {
	if m == nil {
		return
	}
	m.blocked.WithLabelValues(limiter, keyType).Inc()
}

// IncRateLimitRedisErrors counts a fail-open Redis error.
func (m *Metrics) IncRateLimitRedisErrors() {
	if m == nil {
		return
	}
	m.redisErrors.Inc()
}

// ObserveHTTPRequest records one served request. Duration is in seconds.
func (m *Metrics) ObserveHTTPRequest(method, path, status string, duration float64, requestSize, responseSize int64) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, path, status).Inc()
	m.duration.WithLabelValues(method, path, status).Observe(duration)
	m.requestSize.WithLabelValues(method, path, status).Observe(float64(requestSize))
	m.responseSize.WithLabelValues(method, path, status).Observe(float64(responseSize))
}
