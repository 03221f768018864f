package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "parking_recommender"

// Metrics holds the Prometheus counters, histograms, and gauges for the recommender.
type Metrics struct {
	// Kafka batch pipeline metrics.
	MessagesConsumed        prometheus.Counter
	MessagesProduced        prometheus.Counter
	TransformErrors         prometheus.Counter
	PipelineRunning         prometheus.Gauge
	BatchSize               prometheus.Histogram
	BatchProcessingDuration prometheus.Histogram

	// Recommendation metrics.
	Recommendations     *prometheus.CounterVec // labels: transport={http,kafka}, outcome={success,malformed,too_large,read_error,error}
	CandidatesResolved  *prometheus.CounterVec // labels: source={override,model,fallback}, registry={legacy,realtime}
	PredictionFailures  *prometheus.CounterVec // labels: reason={no_history,nan_features,model_error,timeout}
	UnknownFacilities   prometheus.Counter
	PredictionDuration  prometheus.Histogram
	PredictionCache     *prometheus.CounterVec // labels: result={hit,miss}
	ReferenceFacilities *prometheus.GaugeVec   // labels: registry={legacy,realtime,history}
	RecommendDuration   prometheus.Histogram

	// Remote inference metrics.
	InferenceRequests *prometheus.CounterVec // labels: outcome={success,error,rejected}
	InferenceDuration prometheus.Histogram
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		MessagesConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_consumed_total",
			Help:      "Total request messages read from the source topic.",
		}),
		MessagesProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_produced_total",
			Help:      "Total response messages written to the sink topic.",
		}),
		TransformErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transform_errors_total",
			Help:      "Total request messages that could not be scored.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 when the pipeline is active, 0 when shut down.",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Number of messages per batch extracted from Kafka.",
			Buckets:   []float64{1, 5, 10, 20, 30, 40, 50, 75, 100},
		}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_processing_duration_seconds",
			Help:      "Duration of a complete batch extract-transform-load cycle.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
		Recommendations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recommendations_total",
			Help:      "Recommendation requests by transport and outcome.",
		}, []string{"transport", "outcome"}),
		CandidatesResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidates_resolved_total",
			Help:      "Candidates resolved by congestion source and tariff registry.",
		}, []string{"source", "registry"}),
		PredictionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prediction_failures_total",
			Help:      "Congestion predictions replaced by the worst case, by reason.",
		}, []string{"reason"}),
		UnknownFacilities: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unknown_facilities_total",
			Help:      "Candidates with no tariff row in the selected registry.",
		}),
		PredictionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "prediction_duration_seconds",
			Help:      "Duration of one congestion model prediction.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
		PredictionCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prediction_cache_total",
			Help:      "Prediction cache lookups by result.",
		}, []string{"result"}),
		ReferenceFacilities: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reference_facilities",
			Help:      "Facilities loaded per reference table.",
		}, []string{"registry"}),
		RecommendDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "recommendation_duration_seconds",
			Help:      "Duration of scoring one recommendation request.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		InferenceRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inference_requests_total",
			Help:      "Remote inference requests by outcome.",
		}, []string{"outcome"}),
		InferenceDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "inference_duration_seconds",
			Help:      "Remote inference request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.MessagesConsumed,
		m.MessagesProduced,
		m.TransformErrors,
		m.PipelineRunning,
		m.BatchSize,
		m.BatchProcessingDuration,
		m.Recommendations,
		m.CandidatesResolved,
		m.PredictionFailures,
		m.UnknownFacilities,
		m.PredictionDuration,
		m.PredictionCache,
		m.ReferenceFacilities,
		m.RecommendDuration,
		m.InferenceRequests,
		m.InferenceDuration,
	}
}
