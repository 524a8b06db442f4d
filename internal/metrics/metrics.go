// Package metrics exposes encoder and control-API metrics for Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// States reported by the state gauge, one series each.
var States = []string{"idle", "starting", "running", "stopping", "crashed_pending_restart"}

// Metrics holds Prometheus counters and gauges for the stream supervisor.
type Metrics struct {
	registry *prometheus.Registry

	starts       prometheus.Counter
	crashes      prometheus.Counter
	autoRestarts prometheus.Counter
	reconnects   prometheus.Counter
	requests     prometheus.Counter
	errors       prometheus.Counter

	state       *prometheus.GaugeVec
	fps         prometheus.Gauge
	bitrateKbps prometheus.Gauge
	uptime      prometheus.Gauge
}

// New creates and registers the metrics on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		starts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "loopcast_encoder_starts_total",
			Help: "Total number of encoder processes spawned",
		}),
		crashes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "loopcast_encoder_crashes_total",
			Help: "Total number of unexpected encoder exits",
		}),
		autoRestarts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "loopcast_encoder_auto_restarts_total",
			Help: "Total number of automatic restarts after a crash",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "loopcast_encoder_reconnects_total",
			Help: "Total number of reconnect attempts reported by the encoder",
		}),
		requests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "loopcast_http_requests_total",
			Help: "Total number of control API requests",
		}),
		errors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "loopcast_http_errors_total",
			Help: "Total number of control API responses with status >= 400",
		}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "loopcast_encoder_state",
			Help: "Supervisor state; 1 for the current state, 0 otherwise",
		}, []string{"state"}),
		fps: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "loopcast_encoder_fps",
			Help: "Last frame rate reported by the encoder",
		}),
		bitrateKbps: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "loopcast_encoder_bitrate_kbps",
			Help: "Last output bitrate reported by the encoder, kbit/s",
		}),
		uptime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "loopcast_encoder_uptime_seconds",
			Help: "Seconds since the current encoder was started; 0 when idle",
		}),
	}

	m.registry.MustRegister(
		m.starts,
		m.crashes,
		m.autoRestarts,
		m.reconnects,
		m.requests,
		m.errors,
		m.state,
		m.fps,
		m.bitrateKbps,
		m.uptime,
	)
	m.SetState("idle")

	return m
}

// Registry exposes the underlying registry (tests, extra collectors).
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) IncStarts()       { m.starts.Inc() }
func (m *Metrics) IncCrashes()      { m.crashes.Inc() }
func (m *Metrics) IncAutoRestarts() { m.autoRestarts.Inc() }
func (m *Metrics) IncReconnects()   { m.reconnects.Inc() }
func (m *Metrics) IncRequests()     { m.requests.Inc() }
func (m *Metrics) IncErrors()       { m.errors.Inc() }

func (m *Metrics) ObserveFPS(fps float64)      { m.fps.Set(fps) }
func (m *Metrics) ObserveBitrate(kbps float64) { m.bitrateKbps.Set(kbps) }

// SetState marks state as current and every other known state as not.
func (m *Metrics) SetState(state string) {
	for _, s := range States {
		v := 0.0
		if s == state {
			v = 1
		}
		m.state.WithLabelValues(s).Set(v)
	}
}

// SetUptime sets the uptime gauge.
func (m *Metrics) SetUptime(seconds float64) { m.uptime.Set(seconds) }

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values (state, uptime).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
