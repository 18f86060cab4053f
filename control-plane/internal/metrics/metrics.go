// Package metrics provides Prometheus metrics and process health for the
// coordination service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pilot-net/sdn-balance/pkg/types"
)

const namespace = "sdnlb"

// Metrics holds the coordinator's Prometheus collectors on a private
// registry, so several services can live in one process.
type Metrics struct {
	registry *prometheus.Registry

	snapshotsReceived  *prometheus.CounterVec
	malformedMessages  *prometheus.CounterVec
	evaluations        *prometheus.CounterVec
	directives         *prometheus.CounterVec
	controllerLoad     *prometheus.GaugeVec
	controllerLatency  *prometheus.GaugeVec
	controllerOverload *prometheus.GaugeVec
	controllerSwitches *prometheus.GaugeVec
}

// New creates the metrics and registers them together with the Go runtime
// and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		snapshotsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_received_total",
			Help:      "Metric snapshots received, by controller.",
		}, []string{"controller"}),
		malformedMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malformed_messages_total",
			Help:      "Bus messages dropped because they could not be decoded.",
		}, []string{"channel"}),
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "Window evaluations, by kind (full or partial).",
		}, []string{"kind"}),
		directives: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "directives_total",
			Help:      "Migration directives, by overloaded controller and result.",
		}, []string{"from", "result"}),
		controllerLoad: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "controller_load",
			Help:      "Total flow load in the controller's last evaluated snapshot.",
		}, []string{"controller"}),
		controllerLatency: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "controller_latency_ms",
			Help:      "Average switch latency in the controller's last evaluated snapshot.",
		}, []string{"controller"}),
		controllerOverload: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "controller_overloaded",
			Help:      "1 if the controller was overloaded at the last evaluation.",
		}, []string{"controller"}),
		controllerSwitches: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "controller_switches",
			Help:      "Switches connected to the controller at its last evaluated snapshot.",
		}, []string{"controller"}),
	}

	m.registry.MustRegister(
		m.snapshotsReceived,
		m.malformedMessages,
		m.evaluations,
		m.directives,
		m.controllerLoad,
		m.controllerLatency,
		m.controllerOverload,
		m.controllerSwitches,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) SnapshotReceived(id types.ControllerID) {
	m.snapshotsReceived.WithLabelValues(string(id)).Inc()
}

func (m *Metrics) MalformedMessage(channel string) {
	m.malformedMessages.WithLabelValues(channel).Inc()
}

func (m *Metrics) Evaluated(partial bool) {
	kind := "full"
	if partial {
		kind = "partial"
	}
	m.evaluations.WithLabelValues(kind).Inc()
}

func (m *Metrics) ControllerObserved(s types.MetricSnapshot, overloaded bool) {
	id := string(s.Controller)
	m.controllerLoad.WithLabelValues(id).Set(float64(s.TotalLoad))
	m.controllerLatency.WithLabelValues(id).Set(s.AvgLatencyMs)
	m.controllerSwitches.WithLabelValues(id).Set(float64(len(s.ConnectedSwitches)))
	flag := 0.0
	if overloaded {
		flag = 1
	}
	m.controllerOverload.WithLabelValues(id).Set(flag)
}

func (m *Metrics) DirectiveDispatched(d types.MigrationDirective) {
	m.directives.WithLabelValues(string(d.From), "dispatched").Inc()
}

func (m *Metrics) DirectiveFailed(d types.MigrationDirective) {
	m.directives.WithLabelValues(string(d.From), "failed").Inc()
}
