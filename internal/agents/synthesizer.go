package agents

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/helicon-ai/inquiro/internal/research"
)

const synthesisSystemPrompt = "Write a short, fast synthesis from the given sources. Focus on main findings and confidence."

// Prompt bounds for the synthesis context.
const (
	synthesisMaxSources  = 8
	synthesisSourceChars = 400
)

// Synthesizer condenses collected sources into a few paragraphs.
type Synthesizer struct {
	llm    research.Completer
	logger *zap.Logger
}

// NewSynthesizer returns a synthesizer backed by the given completer.
func NewSynthesizer(completer research.Completer, logger *zap.Logger) *Synthesizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synthesizer{llm: completer, logger: logger}
}

// Synthesize builds a compact context from the sources and asks the
// model for a synthesis. On failure it returns an empty synthesis
// rather than an error.
func (s *Synthesizer) Synthesize(ctx context.Context, sources []research.Source, query string) SynthesisResult {
	used := len(sources)
	if used > synthesisMaxSources {
		used = synthesisMaxSources
	}

	var blocks []string
	for _, src := range sources[:used] {
		content := src.Content
		if len(content) > synthesisSourceChars {
			content = content[:synthesisSourceChars]
		}
		blocks = append(blocks, src.Title+"\n"+content)
	}

	userMessage := fmt.Sprintf(
		"Query: %s\n\nSources:\n%s\n\nWrite a concise synthesis (2-4 paragraphs).",
		query, strings.Join(blocks, "\n\n"),
	)

	out, err := s.llm.Complete(ctx, synthesisSystemPrompt, userMessage, 900)
	if err != nil {
		s.logger.Warn("Synthesis failed", zap.Error(err))
		return SynthesisResult{SourcesUsed: used}
	}

	return SynthesisResult{
		Synthesis:       out,
		SourcesUsed:     used,
		SynthesisLength: len(strings.Fields(out)),
	}
}
