// Package metrics exposes agent state as Prometheus metrics.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sweeney/gpiomem/internal/gpiomem"
)

// Metrics holds the collectors of one agent on a private registry, so tests
// and multiple agents never collide on the default registerer.
type Metrics struct {
	Registry *prometheus.Registry

	pinLevel      *prometheus.GaugeVec
	commands      *prometheus.CounterVec
	readErrors    prometheus.Counter
	mqttConnected prometheus.Gauge
	mqttQueued    prometheus.Gauge
	mqttDropped   prometheus.Counter
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		pinLevel: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "gpiomem",
			Name:      "pin_level",
			Help:      "Last sampled level of a configured pin (0 low, 1 high)",
		}, []string{"name", "pin"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gpiomem",
			Name:      "commands_total",
			Help:      "Pin commands received, by source and result",
		}, []string{"source", "result"}),
		readErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gpiomem",
			Name:      "read_errors_total",
			Help:      "Failed pin level reads",
		}),
		mqttConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gpiomem",
			Name:      "mqtt_connected",
			Help:      "Whether the MQTT client is connected",
		}),
		mqttQueued: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gpiomem",
			Name:      "mqtt_queued",
			Help:      "Messages waiting for the broker to come back",
		}),
		mqttDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gpiomem",
			Name:      "mqtt_dropped_total",
			Help:      "Queued messages evicted while the broker was unreachable",
		}),
	}
	m.Registry.MustRegister(m.pinLevel, m.commands, m.readErrors, m.mqttConnected, m.mqttQueued, m.mqttDropped)
	return m
}

// SetPinLevel records a sampled level.
func (m *Metrics) SetPinLevel(name string, pin uint, level gpiomem.Level) {
	m.pinLevel.WithLabelValues(name, strconv.FormatUint(uint64(pin), 10)).Set(float64(level))
}

// RecordCommand counts a command from source; err decides the result label.
func (m *Metrics) RecordCommand(source string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.commands.WithLabelValues(source, result).Inc()
}

// RecordReadError counts a failed read.
func (m *Metrics) RecordReadError() {
	m.readErrors.Inc()
}

// SetMQTTConnected records the MQTT connection state.
func (m *Metrics) SetMQTTConnected(connected bool) {
	v := 0.0
	if connected {
		v = 1
	}
	m.mqttConnected.Set(v)
}

// SetMQTTQueued records the depth of the offline outbox.
func (m *Metrics) SetMQTTQueued(n int) {
	m.mqttQueued.Set(float64(n))
}

// RecordMQTTDropped counts a message evicted from the offline outbox.
func (m *Metrics) RecordMQTTDropped() {
	m.mqttDropped.Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
