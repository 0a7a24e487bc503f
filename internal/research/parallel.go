package research

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/helicon-ai/inquiro/internal/metrics"
)

// DefaultMaxWorkers bounds concurrent question research.
const DefaultMaxWorkers = 3

// DefaultParallelResults is how many sources each question requests.
const DefaultParallelResults = 5

// Coordinator researches multiple sub-questions concurrently, one
// worker per question up to a bound, and collects results in
// completion order. A failed question is recorded in the task log and
// never disturbs the others.
type Coordinator struct {
	searcher   Searcher
	sink       SourceSink
	logger     *zap.Logger
	maxWorkers int
}

// NewCoordinator wires a parallel research coordinator.
func NewCoordinator(searcher Searcher, sink SourceSink, maxWorkers int, logger *zap.Logger) *Coordinator {
	if maxWorkers <= 0 {
		maxWorkers = DefaultMaxWorkers
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("Parallel research coordinator ready", zap.Int("max_workers", maxWorkers))
	return &Coordinator{
		searcher:   searcher,
		sink:       sink,
		logger:     logger,
		maxWorkers: maxWorkers,
	}
}

type taskOutcome struct {
	question string
	sources  []Source
	err      error
}

// Research fans the sub-questions out over the worker pool and merges
// everything found, ranked by relevance.
func (c *Coordinator) Research(ctx context.Context, req Request) (*Result, error) {
	c.logger.Info("Starting parallel research", zap.Int("sub_questions", len(req.SubQuestions)))

	outcomes := make(chan taskOutcome, len(req.SubQuestions))
	sem := make(chan struct{}, c.maxWorkers)
	var wg sync.WaitGroup

	for _, sq := range req.SubQuestions {
		wg.Add(1)
		go func(sq SubQuestion) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			sources, err := c.researchQuestion(ctx, req.SessionID, sq)
			outcomes <- taskOutcome{question: sq.Question, sources: sources, err: err}
		}(sq)
	}

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	var allSources []Source
	var taskLog []TaskRecord
	for out := range outcomes {
		if out.err != nil {
			c.logger.Error("Sub-question research failed",
				zap.String("question", out.question),
				zap.Error(out.err),
			)
			metrics.ParallelTasks.WithLabelValues("failed").Inc()
			taskLog = append(taskLog, TaskRecord{
				Question: out.question,
				Status:   TaskFailed,
				Error:    out.err.Error(),
			})
			continue
		}
		allSources = append(allSources, out.sources...)
		metrics.ParallelTasks.WithLabelValues("completed").Inc()
		taskLog = append(taskLog, TaskRecord{
			Question:     out.question,
			SourcesFound: len(out.sources),
			Status:       TaskCompleted,
		})
		c.logger.Info("Sub-question completed",
			zap.String("question", out.question),
			zap.Int("sources", len(out.sources)),
		)
	}

	ranked := RankSources(allSources)
	c.logger.Info("Parallel research complete", zap.Int("total_sources", len(ranked)))

	return &Result{
		Sources:             ranked,
		TaskLog:             taskLog,
		IterationsCompleted: 1,
		TotalSources:        len(ranked),
	}, nil
}

func (c *Coordinator) researchQuestion(ctx context.Context, sessionID string, sq SubQuestion) ([]Source, error) {
	strategy := sq.SearchStrategy
	if strategy == "" {
		strategy = StrategyGeneral
	}

	sources, err := c.searcher.Search(ctx, sq.Question, strategy, DefaultParallelResults)
	if err != nil {
		return nil, err
	}

	for i := range sources {
		if sources[i].Metadata == nil {
			sources[i].Metadata = map[string]interface{}{}
		}
		sources[i].Metadata["sub_question"] = sq.Question
		sources[i].Metadata["strategy"] = string(strategy)
		if sessionID != "" {
			sources[i].Metadata["session_id"] = sessionID
		}
		if c.sink != nil {
			c.sink.StoreSource(sources[i])
		}
	}
	return sources, nil
}
