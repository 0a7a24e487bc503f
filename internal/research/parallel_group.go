package research

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// GroupResearch is the cooperative variant of the coordinator: every
// sub-question runs in its own goroutine under an errgroup with the
// same concurrency bound, but results land in per-question slots so
// the task log keeps submission order. Failures are still isolated.
func (c *Coordinator) GroupResearch(ctx context.Context, req Request) (*Result, error) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.maxWorkers)

	slots := make([]taskOutcome, len(req.SubQuestions))
	for i, sq := range req.SubQuestions {
		g.Go(func() error {
			sources, err := c.researchQuestion(ctx, req.SessionID, sq)
			slots[i] = taskOutcome{question: sq.Question, sources: sources, err: err}
			// Errors are reported through the slot, not the group, so
			// one bad question cannot cancel its siblings.
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var allSources []Source
	taskLog := make([]TaskRecord, 0, len(slots))
	for _, out := range slots {
		if out.err != nil {
			c.logger.Error("Sub-question research failed",
				zap.String("question", out.question),
				zap.Error(out.err),
			)
			taskLog = append(taskLog, TaskRecord{
				Question: out.question,
				Status:   TaskFailed,
				Error:    out.err.Error(),
			})
			continue
		}
		allSources = append(allSources, out.sources...)
		taskLog = append(taskLog, TaskRecord{
			Question:     out.question,
			SourcesFound: len(out.sources),
			Status:       TaskCompleted,
		})
	}

	ranked := RankSources(allSources)
	return &Result{
		Sources:             ranked,
		TaskLog:             taskLog,
		IterationsCompleted: 1,
		TotalSources:        len(ranked),
	}, nil
}
