package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	GraphDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "supportmind_graph_duration_seconds",
			Help:    "Pipeline graph run duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"graph_kind"},
	)

	GraphTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supportmind_graph_total",
			Help: "Total number of pipeline graph runs",
		},
		[]string{"graph_kind", "status"},
	)

	RetrievalEvidenceCount = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "supportmind_retrieval_evidence_count",
			Help:    "Number of corpus entries retrieved per run",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		},
	)

	TopSimilarity = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "supportmind_top_similarity",
			Help:    "Cosine similarity of the best-matching evidence per run",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
		[]string{"graph_kind"},
	)

	GapClassifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supportmind_gap_classifications_total",
			Help: "Gap detection verdicts by classification",
		},
		[]string{"verdict"},
	)

	ConfidenceDelta = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "supportmind_confidence_delta",
			Help:    "Signed confidence adjustments applied to corpus entries",
			Buckets: []float64{-0.3, -0.2, -0.1, -0.05, 0, 0.05, 0.1, 0.2, 0.3},
		},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supportmind_llm_tokens_total",
			Help: "Total LLM tokens used",
		},
		[]string{"model", "direction"},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supportmind_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supportmind_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	ArticlesIngested = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "supportmind_articles_ingested_total",
			Help: "Total seed articles ingested into the corpus",
		},
	)

	LearningEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supportmind_learning_events_total",
			Help: "Total learning events by kind and final status",
		},
		[]string{"kind", "status"},
	)

	ReviewDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supportmind_review_decisions_total",
			Help: "Total reviewer decisions on pending drafts",
		},
		[]string{"decision"},
	)

	CorpusEntriesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "supportmind_corpus_entries_total",
			Help: "Current corpus entry count by source kind",
		},
		[]string{"source_kind"},
	)
)

func Init() {
	prometheus.MustRegister(GraphDuration)
	prometheus.MustRegister(GraphTotal)
	prometheus.MustRegister(RetrievalEvidenceCount)
	prometheus.MustRegister(TopSimilarity)
	prometheus.MustRegister(GapClassifications)
	prometheus.MustRegister(ConfidenceDelta)
	prometheus.MustRegister(LLMTokensUsed)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
	prometheus.MustRegister(ArticlesIngested)
	prometheus.MustRegister(LearningEventsTotal)
	prometheus.MustRegister(ReviewDecisions)
	prometheus.MustRegister(CorpusEntriesTotal)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
