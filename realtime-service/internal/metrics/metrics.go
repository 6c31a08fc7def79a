// Package metrics exposes realtime-service counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "canvas_realtime"

// Gauges is the live state sampled at scrape time.
type Gauges interface {
	ClientCount() int
	RoomCount() int
}

// Metrics implements hub.Recorder and service.Observer.
type Metrics struct {
	registry *prometheus.Registry

	framesDelivered prometheus.Counter
	framesDropped   prometheus.Counter
	framesRelayed   *prometheus.CounterVec
	joins           *prometheus.CounterVec
	contentEvents   *prometheus.CounterVec
}

// New registers every collector on a fresh registry. Connection and room
// gauges are read from g on each scrape.
func New(g Gauges) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Metrics{
		registry: reg,
		framesDelivered: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "frames_delivered_total",
			Help:      "Frames queued to local websocket clients",
		}),
		framesDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "frames_dropped_total",
			Help:      "Frames dropped because a client's send buffer was full",
		}),
		framesRelayed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_relayed_total",
			Help:      "Client frames relayed to the room, by category",
		}, []string{"category"}),
		joins: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "joins_total",
			Help:      "JoinRoom requests, by result",
		}, []string{"result"}),
		contentEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "content_events_total",
			Help:      "Persisted change events received from content-service, by type",
		}, []string{"type"}),
	}

	if g != nil {
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "connections",
			Help:      "Open websocket connections on this instance",
		}, func() float64 { return float64(g.ClientCount()) })
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "rooms",
			Help:      "Rooms with at least one local connection",
		}, func() float64 { return float64(g.RoomCount()) })
	}

	return m
}

func (m *Metrics) FrameDelivered() { m.framesDelivered.Inc() }

func (m *Metrics) FrameDropped() { m.framesDropped.Inc() }

func (m *Metrics) FrameRelayed(category string) {
	m.framesRelayed.WithLabelValues(category).Inc()
}

func (m *Metrics) JoinObserved(result string) {
	m.joins.WithLabelValues(result).Inc()
}

func (m *Metrics) ContentEventObserved(eventType string) {
	m.contentEvents.WithLabelValues(eventType).Inc()
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
