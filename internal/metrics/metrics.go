// Package metrics exports controller state as Prometheus metrics.
package metrics

import (
	"math"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sweeney/valve-controller/internal/logic"
)

const namespace = "valve_controller"

// Recorder is a controller observer that keeps Prometheus collectors up to
// date. It owns its registry so several recorders can coexist in tests.
type Recorder struct {
	registry *prometheus.Registry

	temperature   prometheus.Gauge
	position      prometheus.Gauge
	pumpOn        prometheus.Gauge
	thermostat    prometheus.Gauge
	cycles        prometheus.Counter
	interlocks    prometheus.Counter
	actuations    *prometheus.CounterVec
	faults        *prometheus.CounterVec
	sensorHealthy prometheus.Gauge
}

// New creates a Recorder with its collectors registered.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		temperature: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "water_temperature_celsius",
			Help:      "Last plausible water temperature.",
		}),
		position: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "valve_closed_eighths",
			Help:      "Believed valve position in eighths closed (0 open, 8 closed).",
		}),
		pumpOn: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pump_on",
			Help:      "1 while the circulation pump is believed to run.",
		}),
		thermostat: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "thermostat_calling",
			Help:      "1 while the thermostat calls for heat.",
		}),
		sensorHealthy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sensor_healthy",
			Help:      "0 after a cycle with an implausible or failed temperature reading.",
		}),
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Completed control cycles.",
		}),
		interlocks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interlocks_total",
			Help:      "Times the closed-valve interlock forced the pump off.",
		}),
		actuations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actuations_total",
			Help:      "Confirmed actuator commands.",
		}, []string{"actuator", "action"}),
		faults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "faults_total",
			Help:      "Faults reported by the controller.",
		}, []string{"type"}),
	}

	r.registry.MustRegister(
		r.temperature, r.position, r.pumpOn, r.thermostat, r.sensorHealthy,
		r.cycles, r.interlocks, r.actuations, r.faults,
	)
	r.sensorHealthy.Set(1)
	return r
}

// Registry returns the registry holding the controller collectors.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Observe updates the collectors from a controller event.
func (r *Recorder) Observe(e logic.Event) {
	r.position.Set(float64(e.State.Position))
	r.pumpOn.Set(boolGauge(e.State.PumpOn))

	switch e.Type {
	case logic.EventCycle:
		r.cycles.Inc()
		r.thermostat.Set(boolGauge(e.CallingForHeat))
		if e.Band == logic.BandInvalid || math.IsNaN(e.Temperature) {
			r.sensorHealthy.Set(0)
		} else {
			r.sensorHealthy.Set(1)
			r.temperature.Set(e.Temperature)
		}
	case logic.EventStartup:
		if !math.IsNaN(e.Temperature) {
			r.temperature.Set(e.Temperature)
		}
	case logic.EventValveOpen:
		r.actuations.WithLabelValues("valve", "open").Inc()
	case logic.EventValveClose:
		r.actuations.WithLabelValues("valve", "close").Inc()
	case logic.EventPumpOn:
		r.actuations.WithLabelValues("pump", "on").Inc()
	case logic.EventPumpOff:
		r.actuations.WithLabelValues("pump", "off").Inc()
	case logic.EventInterlock:
		r.interlocks.Inc()
	}

	if e.Type.IsFault() {
		r.faults.WithLabelValues(string(e.Type)).Inc()
	}
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
