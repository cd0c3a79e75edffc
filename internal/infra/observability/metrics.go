package observability

import (
	"time"

	"github.com/eloscloud/caixinha-banking-go/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the banking service.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	externalErrors  *prometheus.CounterVec
	cacheHits       *prometheus.CounterVec
	cacheMisses     *prometheus.CounterVec
	paymentsCreated *prometheus.CounterVec
	validations     *prometheus.CounterVec
	statusPolls     prometheus.Counter
	requestsTotal   *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "banking_request_duration_seconds",
				Help:    "Duration of requests by operation.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "banking_external_errors_total",
				Help: "Total errors from external services.",
			},
			[]string{"service"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "banking_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "banking_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		paymentsCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "banking_payments_created_total",
				Help: "Total payments created, by method.",
			},
			[]string{"method"},
		),
		validations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "banking_account_validations_total",
				Help: "Account validation flow outcomes.",
			},
			[]string{"outcome"},
		),
		statusPolls: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "banking_status_polls_total",
				Help: "Total transaction status poll requests.",
			},
		),
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "banking_requests_total",
				Help: "Total requests processed.",
			},
			[]string{"status"},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// IncrPaymentCreated counts a created payment by method ("pix" or "card").
func (m *Metrics) IncrPaymentCreated(method string) {
	m.paymentsCreated.WithLabelValues(method).Inc()
}

// IncrValidation counts a validation flow outcome
// ("succeeded", "failed", "expired" or "not_validated").
func (m *Metrics) IncrValidation(outcome string) {
	m.validations.WithLabelValues(outcome).Inc()
}

// IncrStatusPoll counts one transaction status poll.
func (m *Metrics) IncrStatusPoll() {
	m.statusPolls.Inc()
}

// IncrRequest increments the request counter with a status label.
func (m *Metrics) IncrRequest(status string) {
	m.requestsTotal.WithLabelValues(status).Inc()
}

// PaymentSnapshot returns a snapshot of payment metrics suitable for the
// GET /v1/metrics/payments endpoint.
func (m *Metrics) PaymentSnapshot() *domain.PaymentMetrics {
	// Prometheus counters expose cumulative values.
	totalRequests := getCounterValue(m.requestsTotal, "success") +
		getCounterValue(m.requestsTotal, "error")
	errorCount := getCounterValue(m.requestsTotal, "error")

	infoHits := getCounterValue(m.cacheHits, "banking_info") +
		getCounterValue(m.cacheHits, "banking_history")
	infoMisses := getCounterValue(m.cacheMisses, "banking_info") +
		getCounterValue(m.cacheMisses, "banking_history")

	errorRate := float64(0)
	if totalRequests > 0 {
		errorRate = errorCount / totalRequests
	}
	cacheHitRate := float64(0)
	if infoHits+infoMisses > 0 {
		cacheHitRate = infoHits / (infoHits + infoMisses)
	}

	return &domain.PaymentMetrics{
		TotalRequests:      int64(totalRequests),
		ErrorRate:          errorRate,
		PixPaymentsCreated: int64(getCounterValue(m.paymentsCreated, "pix")),
		CardPaymentsMade:   int64(getCounterValue(m.paymentsCreated, "card")),
		ValidationsOK:      int64(getCounterValue(m.validations, "succeeded")),
		ValidationsFailed:  int64(getCounterValue(m.validations, "failed")),
		ValidationsExpired: int64(getCounterValue(m.validations, "expired")),
		StatusPolls:        counterValue(m.statusPolls),
		CacheHitRate:       cacheHitRate,
		Period:             "all_time",
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	counter := cv.WithLabelValues(label)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}

func counterValue(c prometheus.Counter) int64 {
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return int64(*m.Counter.Value)
	}
	return 0
}
