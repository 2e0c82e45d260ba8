// Package metrics holds the Prometheus collectors for text generation.
//
// Collectors register with the default registry on package load; the HTTP
// router exposes them at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "markov"

var (
	// Generations counts finished generation calls by mode (pseudorandom, markov)
	Generations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "generations_total",
		Help:      "Total generation calls by mode",
	}, []string{"mode"})

	// LadderRungs counts successor choices by the ladder rung that produced them
	LadderRungs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ladder_rungs_total",
		Help:      "Successor choices by ladder rung (constrained, relaxed, forced)",
	}, []string{"rung"})

	// Aborts counts constrained generations that stopped early
	Aborts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "aborts_total",
		Help:      "Constrained generations stopped early by reason",
	}, []string{"reason"})

	// GeneratedTokens records output lengths in tokens
	GeneratedTokens = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "generated_tokens",
		Help:      "Tokens produced per generation",
		Buckets:   prometheus.ExponentialBuckets(8, 2, 10),
	})

	// CacheResults counts index cache outcomes at generator construction
	CacheResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "index_cache_results_total",
		Help:      "Index cache outcomes (disabled, hit, miss, corrupt)",
	}, []string{"result"})

	// Corpora tracks the number of registered corpora
	Corpora = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "corpora",
		Help:      "Registered corpora",
	})
)
