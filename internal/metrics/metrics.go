// Package metrics exposes scanner counters to Prometheus on a private
// registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "arbscan"

// Metrics holds every collector the scanner reports.
type Metrics struct {
	registry *prometheus.Registry

	Cycles          *prometheus.CounterVec
	CycleDuration   prometheus.Histogram
	VenueQuotes     *prometheus.GaugeVec
	VenueOutcomes   *prometheus.CounterVec
	Opportunities   prometheus.Gauge
	BestNetPercent  prometheus.Gauge
	Signals         *prometheus.CounterVec
	RiskDenials     *prometheus.CounterVec
	RealizedPnL     prometheus.Gauge
	DroppedPairs    *prometheus.CounterVec
	SinkFailures    *prometheus.CounterVec
	LastCycleUnixTS prometheus.Gauge
}

// New registers all scanner metrics on a fresh registry together with the
// Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		Cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Scan cycles by result.",
		}, []string{"result"}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of one scan cycle.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}),
		VenueQuotes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "venue_quotes",
			Help:      "Quotes collected from a venue in the last cycle.",
		}, []string{"venue"}),
		VenueOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "venue_collections_total",
			Help:      "Venue collections by outcome.",
		}, []string{"venue", "outcome"}),
		Opportunities: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "opportunities",
			Help:      "Opportunities found in the last cycle.",
		}),
		BestNetPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "best_net_percent",
			Help:      "Highest net percent found in the last cycle.",
		}),
		Signals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_total",
			Help:      "Gated signals by status.",
		}, []string{"status"}),
		RiskDenials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "risk_denials_total",
			Help:      "Risk manager denials by reason.",
		}, []string{"reason"}),
		RealizedPnL: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "realized_pnl",
			Help:      "Realized P&L of the current trading day in the reference currency.",
		}),
		DroppedPairs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_dropped_pairs_total",
			Help:      "Source pairs the engine discarded, by cause.",
		}, []string{"cause"}),
		SinkFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_failures_total",
			Help:      "Failed signal deliveries by sink.",
		}, []string{"sink"}),
		LastCycleUnixTS: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_cycle_timestamp_seconds",
			Help:      "Unix time the last successful cycle finished.",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Cycles,
		m.CycleDuration,
		m.VenueQuotes,
		m.VenueOutcomes,
		m.Opportunities,
		m.BestNetPercent,
		m.Signals,
		m.RiskDenials,
		m.RealizedPnL,
		m.DroppedPairs,
		m.SinkFailures,
		m.LastCycleUnixTS,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}

// ObserveCycle records a finished cycle.
func (m *Metrics) ObserveCycle(took time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	} else {
		m.LastCycleUnixTS.Set(float64(time.Now().Unix()))
	}
	m.Cycles.WithLabelValues(result).Inc()
	m.CycleDuration.Observe(took.Seconds())
}
