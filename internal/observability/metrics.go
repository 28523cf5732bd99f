package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// enrichment pipeline.
type Metrics struct {
	ArticlesConsumed prometheus.Counter
	ArticlesEnriched prometheus.Counter
	ArticlesSkipped  prometheus.Counter // dedup hits: source URL already enriched
	ArticlesDropped  prometheus.Counter // persistence gave up after retries
	ParseErrors      prometheus.Counter
	PipelineRunning  prometheus.Gauge

	// Batch processing metrics.
	BatchSize               prometheus.Histogram
	BatchProcessingDuration prometheus.Histogram

	// Classification chain metrics.
	ClassifyStepErrors   *prometheus.CounterVec   // labels: step, kind={transport,label}
	ClassifyStepDuration *prometheus.HistogramVec // labels: step

	// Geocoding metrics.
	GeocodeRequests *prometheus.CounterVec   // labels: outcome={success,error,empty}
	GeocodeCache    *prometheus.CounterVec   // labels: result={hit,miss}
	GeocodeDuration prometheus.Histogram

	// Storage metrics.
	StoreRetries  prometheus.Counter
	SinkPublished prometheus.Counter
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.ArticlesConsumed,
		m.ArticlesEnriched,
		m.ArticlesSkipped,
		m.ArticlesDropped,
		m.ParseErrors,
		m.PipelineRunning,
		m.BatchSize,
		m.BatchProcessingDuration,
		m.ClassifyStepErrors,
		m.ClassifyStepDuration,
		m.GeocodeRequests,
		m.GeocodeCache,
		m.GeocodeDuration,
		m.StoreRetries,
		m.SinkPublished,
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
		ArticlesConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "article_enricher",
			Name:      "articles_consumed_total",
			Help:      "Total articles read from the source topic.",
		}),
		ArticlesEnriched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "article_enricher",
			Name:      "articles_enriched_total",
			Help:      "Total enrichment records persisted.",
		}),
		ArticlesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "article_enricher",
			Name:      "articles_skipped_total",
			Help:      "Articles skipped because their source URL was already enriched.",
		}),
		ArticlesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "article_enricher",
			Name:      "articles_dropped_total",
			Help:      "Articles dropped after exhausting storage write retries.",
		}),
		ParseErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "article_enricher",
			Name:      "parse_errors_total",
			Help:      "Raw messages that could not be parsed as articles.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "article_enricher",
			Name:      "pipeline_running",
			Help:      "1 when the pipeline is active, 0 when shut down.",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "article_enricher",
			Name:      "batch_size",
			Help:      "Number of messages per batch extracted from the source topic.",
			Buckets:   []float64{1, 5, 10, 20, 30, 40, 50, 75, 100},
		}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "article_enricher",
			Name:      "batch_processing_duration_seconds",
			Help:      "Duration of a complete extract-enrich-persist cycle.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}),
		ClassifyStepErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "article_enricher",
			Name:      "classify_step_errors_total",
			Help:      "Classification soft failures by step and kind.",
		}, []string{"step", "kind"}),
		ClassifyStepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "article_enricher",
			Name:      "classify_step_duration_seconds",
			Help:      "Chat-completion request duration per chain step.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"step"}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "article_enricher",
			Name:      "geocode_requests_total",
			Help:      "Geocoding API requests by outcome.",
		}, []string{"outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "article_enricher",
			Name:      "geocode_cache_total",
			Help:      "Geocoding cache lookups by result.",
		}, []string{"result"}),
		GeocodeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "article_enricher",
			Name:      "geocode_duration_seconds",
			Help:      "Geocoding API request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		StoreRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "article_enricher",
			Name:      "store_retries_total",
			Help:      "Storage write attempts that failed and were retried.",
		}),
		SinkPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "article_enricher",
			Name:      "sink_published_total",
			Help:      "Enriched records published to the sink topic.",
		}),
	}
}
