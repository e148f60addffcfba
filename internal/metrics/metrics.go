// Package metrics exposes Prometheus collectors for the chat and notification
// pipeline. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "myconnect"

// Metrics holds every collector on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	messagesAppended  prometheus.Counter
	eventsPublished   *prometheus.CounterVec
	eventsDropped     *prometheus.CounterVec
	wsConnections     prometheus.Gauge
	pushAttempts      *prometheus.CounterVec
	notificationsSent *prometheus.CounterVec
	deadLetters       *prometheus.CounterVec
	dispatchQueue     prometheus.Gauge
}

// New registers all collectors, plus the Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		messagesAppended: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_appended_total",
			Help:      "Messages persisted to chat logs.",
		}),
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Real-time events accepted by the hub, by kind.",
		}, []string{"kind"}),
		eventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Real-time events dropped, by reason.",
		}, []string{"reason"}),
		wsConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_active_connections",
			Help:      "Active websocket connections.",
		}),
		pushAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_attempts_total",
			Help:      "Push deliveries per recipient token, by result.",
		}, []string{"result"}),
		notificationsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_persisted_total",
			Help:      "Inbox records written, by result.",
		}, []string{"result"}),
		deadLetters: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dead_letters_total",
			Help:      "Dispatch work handed to the dead-letter sink, by reason.",
		}, []string{"reason"}),
		dispatchQueue: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dispatch_queue_depth",
			Help:      "Dispatch jobs waiting for a worker.",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.messagesAppended,
		m.eventsPublished,
		m.eventsDropped,
		m.wsConnections,
		m.pushAttempts,
		m.notificationsSent,
		m.deadLetters,
		m.dispatchQueue,
	)
	return m
}

// Handler returns an http.Handler for Prometheus scraping.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) MessageAppended() {
	if m == nil {
		return
	}
	m.messagesAppended.Inc()
}

func (m *Metrics) EventPublished(kind string) {
	if m == nil {
		return
	}
	m.eventsPublished.WithLabelValues(kind).Inc()
}

func (m *Metrics) EventDropped(reason string) {
	if m == nil {
		return
	}
	m.eventsDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.wsConnections.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.wsConnections.Dec()
}

// PushResult counts delivered and failed tokens of one push call.
func (m *Metrics) PushResult(success, failure int) {
	if m == nil {
		return
	}
	m.pushAttempts.WithLabelValues("success").Add(float64(success))
	m.pushAttempts.WithLabelValues("failure").Add(float64(failure))
}

func (m *Metrics) NotificationPersisted(ok bool) {
	if m == nil {
		return
	}
	result := "success"
	if !ok {
		result = "failure"
	}
	m.notificationsSent.WithLabelValues(result).Inc()
}

func (m *Metrics) DeadLetter(reason string) {
	if m == nil {
		return
	}
	m.deadLetters.WithLabelValues(reason).Inc()
}

func (m *Metrics) SetDispatchQueueDepth(n int) {
	if m == nil {
		return
	}
	m.dispatchQueue.Set(float64(n))
}
