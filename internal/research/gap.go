package research

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/helicon-ai/inquiro/internal/llm"
)

const gapSystemPrompt = `
Identify missing info and propose next search queries.
Return compact JSON:
{
 "next_search":["..."],
 "need_more": true/false
}
`

// Bounds on the gap prompt so it stays cheap regardless of how much
// the loop has accumulated.
const (
	gapMaxSources      = 4
	gapSourceChars     = 220
	gapMaxSubQuestions = 6
)

// GapReport is the analyzer's verdict after a loop turn.
type GapReport struct {
	NextSearch []string `json:"next_search"`
	NeedMore   bool     `json:"need_more"`
}

// GapAnalyzer asks the model what is still missing from the collected
// sources. Any failure, from transport to malformed JSON, yields an
// empty report so the loop terminates instead of erroring.
type GapAnalyzer struct {
	llm    Completer
	logger *zap.Logger
}

// NewGapAnalyzer returns a gap analyzer backed by the given completer.
func NewGapAnalyzer(completer Completer, logger *zap.Logger) *GapAnalyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GapAnalyzer{llm: completer, logger: logger}
}

// Analyze summarizes the collected sources against the sub-questions
// and returns follow-up queries, if any.
func (g *GapAnalyzer) Analyze(ctx context.Context, sources []Source, subQuestions []SubQuestion) GapReport {
	var sourceLines []string
	for i, src := range sources {
		if i == gapMaxSources {
			break
		}
		content := src.Content
		if len(content) > gapSourceChars {
			content = content[:gapSourceChars]
		}
		sourceLines = append(sourceLines, content)
	}

	var questionLines []string
	for i, sq := range subQuestions {
		if i == gapMaxSubQuestions {
			break
		}
		questionLines = append(questionLines, fmt.Sprintf("- %s", sq.Question))
	}

	userMessage := fmt.Sprintf(
		"Sub-questions:\n%s\n\nSources summary:\n%s\n\nReturn JSON with next_search (list) and need_more boolean.",
		strings.Join(questionLines, "\n"),
		strings.Join(sourceLines, "\n"),
	)

	reply, err := g.llm.Complete(ctx, gapSystemPrompt, userMessage, 300)
	if err != nil {
		g.logger.Warn("Gap analysis call failed", zap.Error(err))
		return GapReport{NextSearch: []string{}}
	}

	var report GapReport
	if err := llm.ExtractJSON(reply, &report); err != nil {
		g.logger.Warn("Gap analysis reply unparseable", zap.Error(err))
		return GapReport{NextSearch: []string{}}
	}
	if report.NextSearch == nil {
		report.NextSearch = []string{}
	}
	return report
}
