package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles Prometheus collectors for the wall daemon.
type Metrics struct {
	registry        *prometheus.Registry
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	sseClients      prometheus.Gauge
	broadcastDrops  prometheus.Counter
	rateLimited     prometheus.Counter
	stateChanges    prometheus.Counter
	feedRefreshes   prometheus.Counter
	pollErrors      *prometheus.CounterVec
}

func newMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "streamwall",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests received",
		}, []string{"route", "method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "streamwall",
			Name:      "http_request_duration_seconds",
			Help:      "Histogram of HTTP request durations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		sseClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "streamwall",
			Name:      "sse_clients",
			Help:      "Current connected SSE clients",
		}),
		broadcastDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "streamwall",
			Name:      "broadcast_drops_total",
			Help:      "Number of snapshots dropped due to slow clients",
		}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "streamwall",
			Name:      "http_rate_limited_total",
			Help:      "Number of HTTP requests rejected due to rate limiting",
		}),
		stateChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "streamwall",
			Name:      "state_changes_total",
			Help:      "Number of wall state changes broadcast",
		}),
		feedRefreshes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "streamwall",
			Name:      "feed_refreshes_total",
			Help:      "Number of live-feed refreshes applied",
		}),
		pollErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "streamwall",
			Name:      "poll_errors_total",
			Help:      "Number of failed bookmark liveness lookups",
		}, []string{"platform"}),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.sseClients,
		m.broadcastDrops,
		m.rateLimited,
		m.stateChanges,
		m.feedRefreshes,
		m.pollErrors,
	)

	return m
}

// Handler returns an HTTP handler exposing the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRequest records timing and status information.
func (m *Metrics) ObserveRequest(route, method string, status int, dur time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route, method).Observe(dur.Seconds())
}

// IncSSEClients adjusts the SSE client gauge by delta.
func (m *Metrics) IncSSEClients(delta float64) {
	if m == nil {
		return
	}
	m.sseClients.Add(delta)
}

// IncBroadcastDrops increments the drop counter.
func (m *Metrics) IncBroadcastDrops() {
	if m == nil {
		return
	}
	m.broadcastDrops.Inc()
}

// IncRateLimited increments the rate limit counter.
func (m *Metrics) IncRateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

// IncStateChanges increments the state change counter.
func (m *Metrics) IncStateChanges() {
	if m == nil {
		return
	}
	m.stateChanges.Inc()
}

// IncFeedRefreshes increments the feed refresh counter.
func (m *Metrics) IncFeedRefreshes() {
	if m == nil {
		return
	}
	m.feedRefreshes.Inc()
}

// IncPollErrors increments the poll error counter for a platform.
func (m *Metrics) IncPollErrors(platform string) {
	if m == nil {
		return
	}
	m.pollErrors.WithLabelValues(platform).Inc()
}
