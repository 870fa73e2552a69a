// internal/pkg/metrics/metrics.go
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Billing metrics
	BillingRunsTotal      *prometheus.CounterVec
	BillingRunDuration    prometheus.Histogram
	BillingChargesTotal   *prometheus.CounterVec
	BillingCollectedTotal *prometheus.CounterVec
	BillingAccountsOnHold prometheus.Counter
	BillingLockContention prometheus.Counter

	// Vault metrics
	PaymentMethodOpsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "propdesk_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "propdesk_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		BillingRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "propdesk_billing_runs_total",
				Help: "Billing runs by outcome (completed, skipped, error)",
			},
			[]string{"outcome"},
		),
		BillingRunDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "propdesk_billing_run_duration_seconds",
				Help:    "Billing run duration in seconds",
				Buckets: []float64{.1, .5, 1, 5, 15, 60, 300, 900},
			},
		),
		BillingChargesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "propdesk_billing_charges_total",
				Help: "Charge attempts by status",
			},
			[]string{"status"},
		),
		BillingCollectedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "propdesk_billing_collected_total",
				Help: "Amount collected by successful charges",
			},
			[]string{"currency"},
		),
		BillingAccountsOnHold: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "propdesk_billing_account_holds_total",
				Help: "Accounts placed on hold after a failed charge",
			},
		),
		BillingLockContention: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "propdesk_billing_lock_skips_total",
				Help: "Accounts skipped because another worker held the lock",
			},
		),

		PaymentMethodOpsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "propdesk_payment_method_operations_total",
				Help: "Payment method operations by kind and status",
			},
			[]string{"operation", "status"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.BillingRunsTotal,
		m.BillingRunDuration,
		m.BillingChargesTotal,
		m.BillingCollectedTotal,
		m.BillingAccountsOnHold,
		m.BillingLockContention,
		m.PaymentMethodOpsTotal,
	)

	return m
}

// GinMiddleware instruments requests using the matched route template as the path label.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())

		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(gatherer prometheus.Gatherer) gin.HandlerFunc {
	h := promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
	return gin.WrapH(h)
}
