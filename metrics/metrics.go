// Package metrics exposes playback session counters for prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cinethos"

// Metrics groups the collectors of one process. A nil *Metrics records
// nothing.
type Metrics struct {
	registry *prometheus.Registry

	stageEntered    *prometheus.CounterVec
	notifications   *prometheus.CounterVec
	qualitySwitches *prometheus.CounterVec
	manifestParses  prometheus.Counter
	manifestReloads prometheus.Counter
	staleEvents     prometheus.Counter
	progress        prometheus.Gauge
	activeBitrate   prometheus.Gauge
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		stageEntered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lifecycle_stage_entered_total",
			Help:      "Lifecycle stages entered, by stage.",
		}, []string{"stage"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "User-visible notifications raised, by kind.",
		}, []string{"kind"}),
		qualitySwitches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quality_switches_total",
			Help:      "Rendition switches, by origin (manual or auto).",
		}, []string{"origin"}),
		manifestParses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "manifest_parses_total",
			Help:      "Successful master playlist parses.",
		}),
		manifestReloads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "manifest_reloads_total",
			Help:      "Manifest reloads triggered by stream readiness.",
		}),
		staleEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_events_dropped_total",
			Help:      "Events dropped because their session generation was superseded.",
		}),
		progress: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "preparation_progress_percent",
			Help:      "Last reported server-side preparation progress.",
		}),
		activeBitrate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_bitrate_bps",
			Help:      "Bitrate of the rendition currently playing.",
		}),
	}
	reg.MustRegister(
		m.stageEntered,
		m.notifications,
		m.qualitySwitches,
		m.manifestParses,
		m.manifestReloads,
		m.staleEvents,
		m.progress,
		m.activeBitrate,
	)
	return m
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) StageEntered(stage string) {
	if m == nil {
		return
	}
	m.stageEntered.WithLabelValues(stage).Inc()
}

func (m *Metrics) Notified(kind string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(kind).Inc()
}

func (m *Metrics) QualitySwitched(manual bool) {
	if m == nil {
		return
	}
	origin := "auto"
	if manual {
		origin = "manual"
	}
	m.qualitySwitches.WithLabelValues(origin).Inc()
}

func (m *Metrics) ManifestParsed() {
	if m == nil {
		return
	}
	m.manifestParses.Inc()
}

func (m *Metrics) ManifestReloaded() {
	if m == nil {
		return
	}
	m.manifestReloads.Inc()
}

func (m *Metrics) StaleEventDropped() {
	if m == nil {
		return
	}
	m.staleEvents.Inc()
}

func (m *Metrics) Progress(percent float64) {
	if m == nil {
		return
	}
	m.progress.Set(percent)
}

func (m *Metrics) ActiveBitrate(bps int) {
	if m == nil {
		return
	}
	m.activeBitrate.Set(float64(bps))
}
