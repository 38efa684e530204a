package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so tests can build as many instances as they like.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequests    *prometheus.CounterVec
	HTTPDuration    *prometheus.HistogramVec
	EventsDelivered *prometheus.CounterVec
	EventsDropped   *prometheus.CounterVec
	Connections     prometheus.Gauge
	ReapedExpired   prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fly8",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "fly8",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		EventsDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fly8",
			Name:      "realtime_events_delivered_total",
			Help:      "Events queued to a live connection.",
		}, []string{"event"}),
		EventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fly8",
			Name:      "realtime_events_dropped_total",
			Help:      "Events dropped because no live connection was subscribed or its buffer was full.",
		}, []string{"event", "reason"}),
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fly8",
			Name:      "realtime_connections",
			Help:      "Live websocket connections.",
		}),
		ReapedExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fly8",
			Name:      "notifications_reaped_total",
			Help:      "Expired notifications evicted by the reaper.",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequests, m.HTTPDuration, m.EventsDelivered, m.EventsDropped, m.Connections, m.ReapedExpired,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
