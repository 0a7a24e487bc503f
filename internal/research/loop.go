package research

import (
	"context"

	"go.uber.org/zap"

	"github.com/helicon-ai/inquiro/internal/metrics"
)

// Loop defaults.
const (
	DefaultMaxIterations   = 3
	DefaultQueriesPerTurn  = 2
	DefaultResultsPerQuery = 4
)

// Loop runs iterative research: an initial sweep over the planned
// sub-questions, then gap-driven follow-up turns until the analyzer
// is satisfied or the iteration budget runs out.
type Loop struct {
	searcher Searcher
	gaps     *GapAnalyzer
	sink     SourceSink
	logger   *zap.Logger

	maxIterations   int
	queriesPerTurn  int
	resultsPerQuery int
}

// LoopOption adjusts loop behavior.
type LoopOption func(*Loop)

// WithMaxIterations bounds the number of loop turns.
func WithMaxIterations(n int) LoopOption {
	return func(l *Loop) {
		if n > 0 {
			l.maxIterations = n
		}
	}
}

// WithQueriesPerTurn bounds how many queries run in one turn.
func WithQueriesPerTurn(n int) LoopOption {
	return func(l *Loop) {
		if n > 0 {
			l.queriesPerTurn = n
		}
	}
}

// WithResultsPerQuery bounds results requested per search.
func WithResultsPerQuery(n int) LoopOption {
	return func(l *Loop) {
		if n > 0 {
			l.resultsPerQuery = n
		}
	}
}

// NewLoop wires a research loop. The sink may be nil when discovered
// sources should not be persisted.
func NewLoop(searcher Searcher, gaps *GapAnalyzer, sink SourceSink, logger *zap.Logger, opts ...LoopOption) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Loop{
		searcher:        searcher,
		gaps:            gaps,
		sink:            sink,
		logger:          logger,
		maxIterations:   DefaultMaxIterations,
		queriesPerTurn:  DefaultQueriesPerTurn,
		resultsPerQuery: DefaultResultsPerQuery,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run executes the loop. The first turn searches the planned
// sub-questions; later turns search whatever the gap analyzer asks
// for. A failing search contributes zero sources but never aborts the
// run.
func (l *Loop) Run(ctx context.Context, req Request) (*Result, error) {
	var allSources []Source
	var log []IterationRecord

	budget := l.maxIterations
	if req.MaxIterations > 0 {
		budget = req.MaxIterations
	}

	for iteration := 0; iteration < budget; iteration++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var queries []string
		if iteration == 0 {
			queries = QuestionTexts(req.SubQuestions)
		} else {
			report := l.gaps.Analyze(ctx, allSources, req.SubQuestions)
			if !report.NeedMore || len(report.NextSearch) == 0 {
				break
			}
			queries = report.NextSearch
		}

		var turnSources []Source
		executed := 0
		for _, q := range queries {
			if executed == l.queriesPerTurn {
				break
			}
			if q == "" {
				continue
			}
			executed++

			found, err := l.searcher.Search(ctx, q, StrategyGeneral, l.resultsPerQuery)
			if err != nil {
				l.logger.Warn("Search failed",
					zap.String("query", q),
					zap.Int("iteration", iteration+1),
					zap.Error(err),
				)
				continue
			}
			for _, src := range found {
				if src.Metadata == nil {
					src.Metadata = map[string]interface{}{}
				}
				src.Metadata["iteration"] = iteration
				src.Metadata["query"] = q
				if req.SessionID != "" {
					src.Metadata["session_id"] = req.SessionID
				}
				turnSources = append(turnSources, src)
				if l.sink != nil {
					l.sink.StoreSource(src)
				}
			}
		}

		allSources = append(allSources, turnSources...)
		log = append(log, IterationRecord{
			Iteration:    iteration + 1,
			Queries:      queries,
			SourcesFound: len(turnSources),
		})
	}

	metrics.ResearchIterations.Observe(float64(len(log)))
	metrics.ResearchSourcesFound.Observe(float64(len(allSources)))
	l.logger.Info("Research loop finished",
		zap.Int("iterations", len(log)),
		zap.Int("sources", len(allSources)),
	)

	return &Result{
		Sources:             allSources,
		IterationLog:        log,
		IterationsCompleted: len(log),
		TotalSources:        len(allSources),
	}, nil
}
