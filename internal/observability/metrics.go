package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// fetch/render loop.
type Metrics struct {
	FetchesTotal      *prometheus.CounterVec // label: outcome={success,failure}
	FetchDuration     prometheus.Histogram
	StationsReporting prometheus.Gauge
	LightningStations prometheus.Gauge
	HighWindStations  prometheus.Gauge

	FramesTotal     prometheus.Counter
	LEDCommitErrors prometheus.Counter
	StoreStale      prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.FetchesTotal,
		m.FetchDuration,
		m.StationsReporting,
		m.LightningStations,
		m.HighWindStations,
		m.FramesTotal,
		m.LEDCommitErrors,
		m.StoreStale,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		FetchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "metarmap",
			Name:      "fetches_total",
			Help:      "Total METAR fetch attempts by outcome.",
		}, []string{"outcome"}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "metarmap",
			Name:      "fetch_duration_seconds",
			Help:      "Duration of successful METAR fetch cycles.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		StationsReporting: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "metarmap",
			Name:      "stations_reporting",
			Help:      "Stations with a current condition after the last fetch.",
		}),
		LightningStations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "metarmap",
			Name:      "lightning_stations",
			Help:      "Stations currently reporting lightning.",
		}),
		HighWindStations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "metarmap",
			Name:      "highwind_stations",
			Help:      "Stations at or above the wind animation threshold.",
		}),
		FramesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "metarmap",
			Name:      "frames_total",
			Help:      "Total frames rendered to the LED strip.",
		}),
		LEDCommitErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "metarmap",
			Name:      "led_commit_errors_total",
			Help:      "Total LED strip commit failures (non-fatal).",
		}),
		StoreStale: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "metarmap",
			Name:      "store_stale",
			Help:      "1 when the condition store is older than the stale threshold.",
		}),
	}
}
