package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the HTTP and domain collectors of one service instance.
type Metrics struct {
	ServiceName string

	requestCounter   *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	receiptsUploaded *prometheus.CounterVec
	quotaRejections  prometheus.Counter
	planChanges      *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New registers every collector with reg.
func New(serviceName string, reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		ServiceName: serviceName,
		requestCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"service", "method", "path", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"service", "method", "path", "status"},
		),
		receiptsUploaded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "receipts_uploaded_total",
				Help: "Receipts stored by upload, by tenant plan",
			},
			[]string{"plan"},
		),
		quotaRejections: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "upload_quota_rejections_total",
				Help: "Upload batches rejected by the monthly receipt quota",
			},
		),
		planChanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plan_changes_total",
				Help: "Subscription transitions by kind",
			},
			[]string{"kind"},
		),
		gatherer: reg,
	}

	reg.MustRegister(
		m.requestCounter,
		m.requestDuration,
		m.receiptsUploaded,
		m.quotaRejections,
		m.planChanges,
	)
	return m
}

// Middleware records request count and latency per route.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok && !c.Response().Committed {
				status = he.Code
			}
			statusStr := strconv.Itoa(status)
			method := c.Request().Method
			path := c.Path()

			m.requestCounter.WithLabelValues(m.ServiceName, method, path, statusStr).Inc()
			m.requestDuration.WithLabelValues(m.ServiceName, method, path, statusStr).Observe(time.Since(start).Seconds())

			return err
		}
	}
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// The recorders below are nil-safe so services can run without metrics.

func (m *Metrics) ReceiptsUploaded(plan string, n int) {
	if m == nil {
		return
	}
	m.receiptsUploaded.WithLabelValues(plan).Add(float64(n))
}

func (m *Metrics) QuotaRejected() {
	if m == nil {
		return
	}
	m.quotaRejections.Inc()
}

func (m *Metrics) PlanChanged(kind string) {
	if m == nil {
		return
	}
	m.planChanges.WithLabelValues(kind).Inc()
}
