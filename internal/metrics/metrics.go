// Package metrics holds the prometheus collectors for the scheduling engine.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "salonsched"

type Metrics struct {
	registry *prometheus.Registry

	bookings            *prometheus.CounterVec
	transitions         *prometheus.CounterVec
	waitlistTransitions *prometheus.CounterVec
	slotQuery           *prometheus.HistogramVec
	slotsReturned       prometheus.Histogram
	eventsPublished     *prometheus.CounterVec
	rateLimited         *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		bookings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_total",
			Help:      "Booking attempts by operation and outcome.",
		}, []string{"operation", "outcome"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "appointment_transitions_total",
			Help:      "Committed appointment status transitions.",
		}, []string{"from", "to"}),
		waitlistTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "waitlist_transitions_total",
			Help:      "Committed waitlist status transitions.",
		}, []string{"from", "to"}),
		slotQuery: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "slot_query_duration_seconds",
			Help:      "Latency of availability computations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		slotsReturned: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "slots_returned",
			Help:      "Number of slots returned per availability query.",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250},
		}),
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_events_total",
			Help:      "Outbox events handed to the sink, by type and outcome.",
		}, []string{"event_type", "outcome"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter.",
		}, []string{"method"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.bookings,
		m.transitions,
		m.waitlistTransitions,
		m.slotQuery,
		m.slotsReturned,
		m.eventsPublished,
		m.rateLimited,
	)
	return m
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Booking(operation, outcome string) {
	if m == nil {
		return
	}
	m.bookings.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) Transition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) WaitlistTransition(from, to string) {
	if m == nil {
		return
	}
	m.waitlistTransitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) SlotQuery(outcome string, elapsed time.Duration, slots int) {
	if m == nil {
		return
	}
	m.slotQuery.WithLabelValues(outcome).Observe(elapsed.Seconds())
	if outcome == "ok" {
		m.slotsReturned.Observe(float64(slots))
	}
}

func (m *Metrics) EventPublished(eventType, outcome string) {
	if m == nil {
		return
	}
	m.eventsPublished.WithLabelValues(eventType, outcome).Inc()
}

func (m *Metrics) RateLimited(method string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(method).Inc()
}
