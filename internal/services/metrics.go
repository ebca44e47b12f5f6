package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all custom Prometheus metrics for the memory core
type Metrics struct {
	// Store metrics
	NeuronsSaved  prometheus.Counter
	NeuronsPruned prometheus.Counter

	// Retrieval metrics
	Retrievals       prometheus.Counter
	RetrievalLatency prometheus.Histogram
	IndexRebuilds    prometheus.Counter
	IndexedNeurons   prometheus.Gauge

	// Evolution metrics
	RulesGenerated prometheus.Counter
	RulesSaved     prometheus.Counter
}

var globalMetrics *Metrics

// InitMetrics initializes the Prometheus metrics. Call once at startup;
// services degrade to no-op when metrics were never initialized.
func InitMetrics() *Metrics {
	metrics := &Metrics{
		NeuronsSaved: promauto.NewCounter(prometheus.CounterOpts{
			Name: "evomemory_neurons_saved_total",
			Help: "Total number of neurons persisted",
		}),
		NeuronsPruned: promauto.NewCounter(prometheus.CounterOpts{
			Name: "evomemory_neurons_pruned_total",
			Help: "Total number of neurons deleted by the pruning policy",
		}),
		Retrievals: promauto.NewCounter(prometheus.CounterOpts{
			Name: "evomemory_retrievals_total",
			Help: "Total number of ranked retrieval queries",
		}),
		RetrievalLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "evomemory_retrieval_duration_seconds",
			Help:    "Ranked retrieval latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
		IndexRebuilds: promauto.NewCounter(prometheus.CounterOpts{
			Name: "evomemory_index_rebuilds_total",
			Help: "Total number of retrieval snapshot rebuilds",
		}),
		IndexedNeurons: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "evomemory_indexed_neurons",
			Help: "Number of neurons in the current retrieval snapshot",
		}),
		RulesGenerated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "evomemory_rules_generated_total",
			Help: "Total number of rules produced by the miner",
		}),
		RulesSaved: promauto.NewCounter(prometheus.CounterOpts{
			Name: "evomemory_rules_saved_total",
			Help: "Total number of mined rules actually inserted (after de-duplication)",
		}),
	}

	globalMetrics = metrics
	return metrics
}

// GetMetrics returns the global metrics instance, or nil if never initialized
func GetMetrics() *Metrics {
	return globalMetrics
}
