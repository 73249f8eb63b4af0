package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus HTTP metrics collectors
type Metrics struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight prometheus.Gauge
	responseSize     *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// NewMetrics creates HTTP metrics and registers them on reg.
// gatherer backs Handler; pass the registry that reg writes to.
func NewMetrics(namespace string, reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	if namespace == "" {
		namespace = "dbcart"
	}
	factory := promauto.With(reg)

	return &Metrics{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method", "path", "status"},
		),
		requestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Number of HTTP requests currently being processed",
			},
		),
		responseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_response_size_bytes",
				Help:      "HTTP response size in bytes",
				Buckets:   []float64{100, 1000, 10000, 100000},
			},
			[]string{"method", "path", "status"},
		),
		gatherer: gatherer,
	}
}

// Middleware records request count, latency and response size. A returned
// error is rendered first so the recorded status matches the response.
func (m *Metrics) Middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()

		m.requestsInFlight.Inc()
		defer m.requestsInFlight.Dec()

		if err := next(c); err != nil {
			c.Error(err)
		}

		res := c.Response()
		duration := time.Since(start).Seconds()
		status := strconv.Itoa(res.Status)
		path := normalizePath(c.Request().URL.Path)

		m.requestsTotal.WithLabelValues(c.Request().Method, path, status).Inc()
		m.requestDuration.WithLabelValues(c.Request().Method, path, status).Observe(duration)
		m.responseSize.WithLabelValues(c.Request().Method, path, status).Observe(float64(res.Size))
		return nil
	}
}

// Handler returns the Prometheus metrics HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// normalizePath replaces cart instance names and product ids with route
// placeholders so label cardinality stays bounded.
//
//	/carts/{instance}
//	/carts/{instance}/items
//	/carts/{instance}/items/{product}
//	/carts/{instance}/{action}
func normalizePath(path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments) < 2 || segments[0] != "carts" {
		return path
	}

	switch len(segments) {
	case 2:
		return "/carts/:instance"
	case 3:
		return "/carts/:instance/" + segments[2]
	case 4:
		if segments[2] == "items" {
			return "/carts/:instance/items/:product"
		}
	}
	return "/carts/*"
}
