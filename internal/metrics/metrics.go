// Package metrics exposes the daemon's Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Airminal metrics. Each instance has its own registry so
// several can coexist in tests.
type Metrics struct {
	registry *prometheus.Registry

	// Verdicts by platform and action (REPLY, SKIP, ERROR).
	Verdicts *prometheus.CounterVec
	// Skips by reason.
	Skips *prometheus.CounterVec

	AgentLatency *prometheus.HistogramVec
	AgentErrors  *prometheus.CounterVec

	// Injections by platform and result (sent, failed).
	Injections *prometheus.CounterVec

	// AutomationRuns by automation and result (success, failure).
	AutomationRuns     *prometheus.CounterVec
	AutomationDuration *prometheus.HistogramVec

	ConfigSaves prometheus.Counter
}

// New creates the metrics. sessions, when set, backs the active sessions
// gauge.
func New(sessions func() int) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	m := &Metrics{
		registry: reg,
		Verdicts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "airminal_verdicts_total",
			Help: "Dispatcher verdicts by platform and action",
		}, []string{"platform", "action"}),
		Skips: f.NewCounterVec(prometheus.CounterOpts{
			Name: "airminal_skips_total",
			Help: "Skipped messages by reason",
		}, []string{"reason"}),
		AgentLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "airminal_agent_request_duration_seconds",
			Help:    "Agent endpoint latency in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"platform"}),
		AgentErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "airminal_agent_errors_total",
			Help: "Failed agent calls by platform",
		}, []string{"platform"}),
		Injections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "airminal_injections_total",
			Help: "Reply injections by platform and result",
		}, []string{"platform", "result"}),
		AutomationRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "airminal_automation_runs_total",
			Help: "Automation runs by automation and result",
		}, []string{"automation", "result"}),
		AutomationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "airminal_automation_duration_seconds",
			Help:    "Automation run duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
		}, []string{"automation"}),
		ConfigSaves: f.NewCounter(prometheus.CounterOpts{
			Name: "airminal_config_saves_total",
			Help: "Saved configurations",
		}),
	}

	if sessions != nil {
		f.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "airminal_sessions_active",
			Help: "Conversation sessions currently held",
		}, func() float64 { return float64(sessions()) })
	}
	return m
}

// Registry returns the registry the metrics are registered with.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the metrics in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveVerdict counts one dispatcher verdict.
func (m *Metrics) ObserveVerdict(platform, action, reason string) {
	m.Verdicts.WithLabelValues(platform, action).Inc()
	if action == "SKIP" && reason != "" {
		m.Skips.WithLabelValues(reason).Inc()
	}
}

// ObserveAgent records one agent call.
func (m *Metrics) ObserveAgent(platform string, d time.Duration, err error) {
	m.AgentLatency.WithLabelValues(platform).Observe(d.Seconds())
	if err != nil {
		m.AgentErrors.WithLabelValues(platform).Inc()
	}
}

// ObserveInjection records one reply injection.
func (m *Metrics) ObserveInjection(platform string, err error) {
	result := "sent"
	if err != nil {
		result = "failed"
	}
	m.Injections.WithLabelValues(platform, result).Inc()
}

// ObserveAutomation records one automation run.
func (m *Metrics) ObserveAutomation(id string, success bool, d time.Duration) {
	result := "success"
	if !success {
		result = "failure"
	}
	m.AutomationRuns.WithLabelValues(id, result).Inc()
	m.AutomationDuration.WithLabelValues(id).Observe(d.Seconds())
}
