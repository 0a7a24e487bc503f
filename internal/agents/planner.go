package agents

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/helicon-ai/inquiro/internal/llm"
	"github.com/helicon-ai/inquiro/internal/research"
)

const plannerSystemPrompt = `
You quickly convert any topic into a compact, valid JSON research plan.
Keep output minimal and valid JSON. Use the exact JSON shape shown.

Format:
{
 "main_topic": "...",
 "sub_questions": [
   {"question":"...", "priority":1, "keywords":["..."]}
 ],
 "estimated_sources_needed": 6
}
`

// Planner turns a free-form query into a research plan.
type Planner struct {
	llm    research.Completer
	logger *zap.Logger
}

// NewPlanner returns a planner backed by the given completer.
func NewPlanner(completer research.Completer, logger *zap.Logger) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{llm: completer, logger: logger}
}

// Plan asks the model for a research plan and normalizes the reply.
// Any failure yields the deterministic single-question fallback plan.
func (p *Planner) Plan(ctx context.Context, query string) research.Plan {
	p.logger.Info("Planning research", zap.String("query", query))

	reply, err := p.llm.Complete(ctx, plannerSystemPrompt,
		fmt.Sprintf("Generate a minimal JSON research plan for: %s", query), 700)
	if err != nil {
		p.logger.Warn("Planner call failed, using fallback", zap.Error(err))
		return FallbackPlan(query)
	}

	var plan research.Plan
	if err := llm.ExtractJSON(reply, &plan); err != nil {
		p.logger.Warn("Planner reply unparseable, using fallback", zap.Error(err))
		return FallbackPlan(query)
	}

	// Normalize partial replies instead of discarding them.
	if len(plan.SubQuestions) == 0 {
		plan.SubQuestions = FallbackPlan(query).SubQuestions
	}
	if plan.MainTopic == "" {
		plan.MainTopic = query
	}
	if plan.EstimatedSourcesNeeded == 0 {
		plan.EstimatedSourcesNeeded = 6
	}
	return plan
}

// FallbackPlan is the deterministic plan used when the model cannot
// produce one: the query itself as the single sub-question.
func FallbackPlan(query string) research.Plan {
	return research.Plan{
		MainTopic: query,
		SubQuestions: []research.SubQuestion{
			{Question: query, Priority: 5, Keywords: strings.Fields(query)},
		},
		EstimatedSourcesNeeded: 6,
	}
}
