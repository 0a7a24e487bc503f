// Package evaluation scores finished research runs across several
// dimensions. Two dimensions ask a model to judge the content; the
// rest are cheap heuristics over the run's own outputs.
package evaluation

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/helicon-ai/inquiro/internal/agents"
	"github.com/helicon-ai/inquiro/internal/llm"
	"github.com/helicon-ai/inquiro/internal/research"
)

// Metrics holds the 0-100 dimension scores for one run.
type Metrics struct {
	Completeness float64 `json:"completeness"`
	Accuracy     float64 `json:"accuracy"`
	Relevance    float64 `json:"relevance"`
	Quality      float64 `json:"quality"`
	Efficiency   float64 `json:"efficiency"`
	Citations    float64 `json:"citations"`
	Overall      float64 `json:"overall"`
}

// RunResults is the subset of pipeline output the evaluator inspects.
type RunResults struct {
	Query        string
	Content      string
	Validation   agents.ValidationResult
	Iterations   int
	TotalSources int
}

// HistoryEntry records one completed evaluation.
type HistoryEntry struct {
	Query     string    `json:"query"`
	Metrics   Metrics   `json:"metrics"`
	Timestamp time.Time `json:"timestamp"`
}

// Evaluator scores research output quality.
type Evaluator struct {
	llm    research.Completer
	logger *zap.Logger

	mu      sync.Mutex
	history []HistoryEntry
}

// NewEvaluator returns an evaluator backed by the given completer.
func NewEvaluator(completer research.Completer, logger *zap.Logger) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{llm: completer, logger: logger}
}

// Evaluate scores a run. Model-judged dimensions fall back to fixed
// defaults when the judge is unavailable.
func (e *Evaluator) Evaluate(ctx context.Context, results RunResults) Metrics {
	e.logger.Info("Evaluating research", zap.String("query", results.Query))

	m := Metrics{
		Completeness: e.judgeScore(ctx, completenessPrompt, results.Query, results.Content, 70),
		Accuracy:     scoreAccuracy(results.Validation),
		Relevance:    e.judgeScore(ctx, relevancePrompt, results.Query, results.Content, 75),
		Quality:      scoreQuality(results.Content),
		Efficiency:   scoreEfficiency(results.Iterations, results.TotalSources),
		Citations:    scoreCitations(results.Content),
	}
	m.Overall = m.Completeness*0.20 + m.Accuracy*0.25 + m.Relevance*0.20 +
		m.Quality*0.15 + m.Efficiency*0.10 + m.Citations*0.10

	e.mu.Lock()
	e.history = append(e.history, HistoryEntry{
		Query:     results.Query,
		Metrics:   m,
		Timestamp: time.Now(),
	})
	e.mu.Unlock()

	e.logger.Info("Evaluation complete", zap.Float64("overall", m.Overall))
	return m
}

// History returns a copy of all completed evaluations.
func (e *Evaluator) History() []HistoryEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]HistoryEntry, len(e.history))
	copy(out, e.history)
	return out
}

const completenessPrompt = `You are an expert evaluator. Assess if the research content completely addresses the query.

Consider:
- Are all aspects of the query covered?
- Is sufficient depth provided?
- Are there obvious gaps?

Return ONLY a JSON with:
{
    "score": 0-100,
    "reasoning": "..."
}`

const relevancePrompt = `You are an expert evaluator. Assess how relevant the content is to the query.

Consider:
- Does content directly address the query?
- Is there off-topic information?
- Is the focus appropriate?

Return ONLY a JSON with:
{
    "score": 0-100,
    "reasoning": "..."
}`

func (e *Evaluator) judgeScore(ctx context.Context, systemPrompt, query, content string, fallback float64) float64 {
	excerpt := content
	if len(excerpt) > 2000 {
		excerpt = excerpt[:2000]
	}
	userMessage := fmt.Sprintf("Query: %s\n\nContent: %s\n\nScore 0-100.", query, excerpt)

	reply, err := e.llm.Complete(ctx, systemPrompt, userMessage, 500)
	if err != nil {
		e.logger.Warn("Judge call failed, using default", zap.Error(err))
		return fallback
	}
	var parsed struct {
		Score float64 `json:"score"`
	}
	if err := llm.ExtractJSON(reply, &parsed); err != nil {
		e.logger.Warn("Judge reply unparseable, using default", zap.Error(err))
		return fallback
	}
	return clamp(parsed.Score)
}

func scoreAccuracy(validation agents.ValidationResult) float64 {
	confidence := float64(validation.Confidence)
	if confidence == 0 {
		confidence = 70
	}
	// Each open gap costs a little confidence.
	confidence -= float64(len(validation.Gaps)) * 5
	return clamp(confidence)
}

func scoreQuality(content string) float64 {
	score := 70.0

	words := len(strings.Fields(content))
	switch {
	case words >= 500 && words <= 3000:
		score += 10
	case words < 200:
		score -= 20
	}

	lower := strings.ToLower(content)
	for _, ind := range []string{"introduction", "conclusion", "summary", "##", "###"} {
		if strings.Contains(lower, ind) {
			score += 10
			break
		}
	}

	if len(strings.Split(content, "\n\n")) >= 3 {
		score += 10
	}
	return clamp(score)
}

func scoreEfficiency(iterations, totalSources int) float64 {
	score := 100.0
	if iterations > 3 {
		score -= float64(iterations-3) * 10
	}
	if totalSources < 5 {
		score -= 20
	} else if totalSources > 50 {
		score -= float64(totalSources - 50)
	}
	return clamp(score)
}

var citationMarker = regexp.MustCompile(`\[\d+\]`)

func scoreCitations(content string) float64 {
	score := 70.0
	markers := citationMarker.FindAllString(content, -1)
	if len(markers) > 0 {
		score += 20
	}
	if len(markers) >= 5 {
		score += 10
	}
	return clamp(score)
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
