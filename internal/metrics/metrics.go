package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

type Metrics struct {
	Registry       *prometheus.Registry
	OrdersCreated  prometheus.Counter
	CartOperations *prometheus.CounterVec
	EmailsSent     *prometheus.CounterVec
	HTTPRequests   *prometheus.CounterVec
	HTTPDuration   *prometheus.HistogramVec
}

// New registers every collector on a fresh registry so tests can build as
// many instances as they like.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,
		OrdersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ravolux_orders_created_total",
			Help: "Number of orders created.",
		}),
		CartOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ravolux_cart_operations_total",
			Help: "Number of cart mutations by operation.",
		}, []string{"operation"}),
		EmailsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ravolux_emails_sent_total",
			Help: "Number of emails sent by template and result.",
		}, []string{"template", "result"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ravolux_http_requests_total",
			Help: "Number of HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ravolux_http_request_duration_seconds",
			Help:    "HTTP request latency by method and route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.OrdersCreated,
		m.CartOperations,
		m.EmailsSent,
		m.HTTPRequests,
		m.HTTPDuration,
	)

	return m
}
