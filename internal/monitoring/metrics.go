package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type MetricsService interface {
	RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration)
	RecordMovement(tipo, estado string, amount float64)
	RecordRefund(estado string)
	RecordAuctionTransition(to string)
	RecordSweep(processed, errored int)
	RecordLockContention(scope string)
}

type prometheusMetrics struct {
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	movementsTotal  *prometheus.CounterVec
	movementsAmount *prometheus.CounterVec

	refundsTotal            *prometheus.CounterVec
	auctionTransitionsTotal *prometheus.CounterVec

	sweepProcessedTotal prometheus.Counter
	sweepErroredTotal   prometheus.Counter

	lockContentionTotal *prometheus.CounterVec
}

func NewPrometheusMetrics() MetricsService {
	m := &prometheusMetrics{}

	m.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagos_api_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	m.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pagos_api_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	m.movementsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagos_api_movements_total",
			Help: "Total number of ledger movements by kind and state",
		},
		[]string{"tipo", "estado"},
	)

	m.movementsAmount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagos_api_movements_amount_total",
			Help: "Accumulated movement amounts by kind",
		},
		[]string{"tipo"},
	)

	m.refundsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagos_api_refunds_total",
			Help: "Refund lifecycle events by resulting state",
		},
		[]string{"estado"},
	)

	m.auctionTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagos_api_auction_transitions_total",
			Help: "Auction state transitions by target state",
		},
		[]string{"estado"},
	)

	m.sweepProcessedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pagos_api_sweep_expired_total",
			Help: "Auctions expired by the deadline sweep",
		},
	)

	m.sweepErroredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pagos_api_sweep_errors_total",
			Help: "Row errors during the deadline sweep",
		},
	)

	m.lockContentionTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagos_api_lock_contention_total",
			Help: "Lock acquisitions rejected because another operation held the lock",
		},
		[]string{"scope"},
	)

	return m
}

func (m *prometheusMetrics) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, endpoint, httpStatusLabel(statusCode)).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

func (m *prometheusMetrics) RecordMovement(tipo, estado string, amount float64) {
	m.movementsTotal.WithLabelValues(tipo, estado).Inc()
	m.movementsAmount.WithLabelValues(tipo).Add(amount)
}

func (m *prometheusMetrics) RecordRefund(estado string) {
	m.refundsTotal.WithLabelValues(estado).Inc()
}

func (m *prometheusMetrics) RecordAuctionTransition(to string) {
	m.auctionTransitionsTotal.WithLabelValues(to).Inc()
}

func (m *prometheusMetrics) RecordSweep(processed, errored int) {
	m.sweepProcessedTotal.Add(float64(processed))
	m.sweepErroredTotal.Add(float64(errored))
}

func (m *prometheusMetrics) RecordLockContention(scope string) {
	m.lockContentionTotal.WithLabelValues(scope).Inc()
}

func httpStatusLabel(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

// NoopMetrics discards all measurements. Used in tests.
type NoopMetrics struct{}

func (NoopMetrics) RecordHTTPRequest(string, string, int, time.Duration) {}
func (NoopMetrics) RecordMovement(string, string, float64)               {}
func (NoopMetrics) RecordRefund(string)                                  {}
func (NoopMetrics) RecordAuctionTransition(string)                       {}
func (NoopMetrics) RecordSweep(int, int)                                 {}
func (NoopMetrics) RecordLockContention(string)                          {}
