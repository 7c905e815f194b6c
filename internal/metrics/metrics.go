package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the sync server.
type Metrics struct {
	registry          *prometheus.Registry
	requestsTotal     prometheus.Counter
	errorsTotal       prometheus.Counter
	roomsCreatedTotal prometheus.Counter
	eventsTotal       prometheus.Counter
	activeRooms       prometheus.Gauge
	activeConnections prometheus.Gauge
}

// New creates and registers Prometheus metrics on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "syncplay_requests_total",
		Help: "Total number of HTTP requests received",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "syncplay_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})
	roomsCreatedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "syncplay_rooms_created_total",
		Help: "Total number of rooms created",
	})
	eventsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "syncplay_events_total",
		Help: "Total number of websocket events processed",
	})
	activeRooms := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "syncplay_active_rooms",
		Help: "Number of currently live rooms",
	})
	activeConnections := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "syncplay_active_connections",
		Help: "Number of currently live websocket connections",
	})

	registry.MustRegister(
		requestsTotal,
		errorsTotal,
		roomsCreatedTotal,
		eventsTotal,
		activeRooms,
		activeConnections,
	)

	return &Metrics{
		registry:          registry,
		requestsTotal:     requestsTotal,
		errorsTotal:       errorsTotal,
		roomsCreatedTotal: roomsCreatedTotal,
		eventsTotal:       eventsTotal,
		activeRooms:       activeRooms,
		activeConnections: activeConnections,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() { m.requestsTotal.Inc() }

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() { m.errorsTotal.Inc() }

// IncRoomsCreated increments the rooms created counter.
func (m *Metrics) IncRoomsCreated() { m.roomsCreatedTotal.Inc() }

// IncEvents increments the processed events counter.
func (m *Metrics) IncEvents() { m.eventsTotal.Inc() }

// SetActiveRooms sets the live rooms gauge.
func (m *Metrics) SetActiveRooms(n int) { m.activeRooms.Set(float64(n)) }

// SetActiveConnections sets the live connections gauge.
func (m *Metrics) SetActiveConnections(n int) { m.activeConnections.Set(float64(n)) }

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
