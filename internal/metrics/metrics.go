package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Pipeline metrics
	PipelinesStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "inquiro_pipelines_started_total",
			Help: "Total number of research pipelines started",
		},
	)

	PipelinesCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inquiro_pipelines_completed_total",
			Help: "Total number of research pipelines completed",
		},
		[]string{"status"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "inquiro_stage_duration_seconds",
			Help:    "Pipeline stage execution duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	// Research metrics
	ResearchIterations = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "inquiro_research_iterations",
			Help:    "Iterations completed per research loop run",
			Buckets: []float64{0, 1, 2, 3, 4, 5},
		},
	)

	ResearchSourcesFound = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "inquiro_research_sources_found",
			Help:    "Sources discovered per research run",
			Buckets: []float64{0, 5, 10, 20, 40, 80},
		},
	)

	ParallelTasks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inquiro_parallel_tasks_total",
			Help: "Parallel research tasks by settled status",
		},
		[]string{"status"},
	)

	// Search gateway metrics
	SearchRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inquiro_search_requests_total",
			Help: "Search backend requests by outcome",
		},
		[]string{"depth", "status"},
	)

	SearchRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "inquiro_search_request_duration_seconds",
			Help:    "Search backend request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// LLM metrics
	LLMCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inquiro_llm_calls_total",
			Help: "LLM judgment calls by model and outcome",
		},
		[]string{"model", "status"},
	)

	LLMTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inquiro_llm_tokens_total",
			Help: "LLM tokens consumed by direction",
		},
		[]string{"direction"},
	)

	// Session metrics
	SessionsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "inquiro_sessions_created_total",
			Help: "Total number of research sessions created",
		},
	)

	SessionCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "inquiro_session_cache_hits_total",
			Help: "Session local cache hits",
		},
	)

	SessionCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "inquiro_session_cache_misses_total",
			Help: "Session local cache misses",
		},
	)

	SessionCacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "inquiro_session_cache_size",
			Help: "Number of sessions in the local cache",
		},
	)

	// Fact store metrics
	FactsStored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inquiro_facts_stored_total",
			Help: "Fact store records appended by category",
		},
		[]string{"category"},
	)

	// Checkpoint metrics
	CheckpointSaves = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inquiro_checkpoint_saves_total",
			Help: "Checkpoint save operations by outcome",
		},
		[]string{"status"},
	)

	// Bus metrics
	BusPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inquiro_bus_published_total",
			Help: "Messages published to the agent bus by topic class",
		},
		[]string{"topic"},
	)

	BusHandlerPanics = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "inquiro_bus_handler_panics_total",
			Help: "Agent bus handler panics recovered during publish",
		},
	)
)
