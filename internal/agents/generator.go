package agents

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/helicon-ai/inquiro/internal/research"
)

const generatorSystemPrompt = "Write clear, concise content from synthesis and validation notes."

const generatorMaxCitations = 6

// Generator produces the final deliverable in the requested format.
type Generator struct {
	llm    research.Completer
	logger *zap.Logger
}

// NewGenerator returns a content generator backed by the given completer.
func NewGenerator(completer research.Completer, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{llm: completer, logger: logger}
}

// Generate writes the final content. Citations cover the top sources
// and survive even when the model call fails.
func (g *Generator) Generate(ctx context.Context, synthesis string, validation ValidationResult, sources []research.Source, format string) GeneratedContent {
	if format == "" {
		format = "report"
	}

	cited := sources
	if len(cited) > generatorMaxCitations {
		cited = cited[:generatorMaxCitations]
	}
	citations := FormatCitations(cited)

	userMessage := fmt.Sprintf(
		"Format: %s\n\nSYNTHESIS:\n%s\n\nVALIDATION:\nstatus=%s confidence=%d gaps=%s\n\nCITATIONS:\n%s\n\nWrite the final deliverable.",
		format, synthesis, validation.Status, validation.Confidence,
		strings.Join(validation.Gaps, "; "), strings.Join(citations, "\n"),
	)

	out, err := g.llm.Complete(ctx, generatorSystemPrompt, userMessage, 1200)
	if err != nil {
		g.logger.Warn("Content generation failed", zap.Error(err))
		return GeneratedContent{Citations: citations, Format: format}
	}

	return GeneratedContent{
		Content:   out,
		WordCount: len(strings.Fields(out)),
		Citations: citations,
		Format:    format,
	}
}
