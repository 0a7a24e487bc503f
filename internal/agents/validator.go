package agents

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/helicon-ai/inquiro/internal/llm"
	"github.com/helicon-ai/inquiro/internal/research"
)

const validatorSystemPrompt = "Validate the synthesis against the listed sources. Return minimal JSON."

const validatorMaxRefs = 6

// Validator checks a synthesis against its sources.
type Validator struct {
	llm    research.Completer
	logger *zap.Logger
}

// NewValidator returns a validator backed by the given completer.
func NewValidator(completer research.Completer, logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{llm: completer, logger: logger}
}

// Validate asks the model to judge the synthesis. Confidence is
// clamped to 0-100. Any failure yields the needs_review fallback.
func (v *Validator) Validate(ctx context.Context, synthesis string, sources []research.Source) ValidationResult {
	var refs []string
	for i, src := range sources {
		if i == validatorMaxRefs {
			break
		}
		refs = append(refs, src.Title+" - "+src.URL)
	}

	userMessage := fmt.Sprintf(
		"SYNTHESIS:\n%s\n\nSOURCES:\n%s\n\nReturn JSON with keys: status, confidence (0-100), gaps (list)",
		synthesis, strings.Join(refs, "\n"),
	)

	reply, err := v.llm.Complete(ctx, validatorSystemPrompt, userMessage, 400)
	if err != nil {
		v.logger.Warn("Validation fallback", zap.Error(err))
		return fallbackValidation()
	}

	var parsed ValidationResult
	if err := llm.ExtractJSON(reply, &parsed); err != nil {
		v.logger.Warn("Validation reply unparseable", zap.Error(err))
		return fallbackValidation()
	}

	if parsed.Status == "" {
		parsed.Status = "needs_review"
	}
	if parsed.Confidence < 0 {
		parsed.Confidence = 0
	}
	if parsed.Confidence > 100 {
		parsed.Confidence = 100
	}
	if parsed.Gaps == nil {
		parsed.Gaps = []string{}
	}
	return parsed
}

func fallbackValidation() ValidationResult {
	return ValidationResult{Status: "needs_review", Confidence: 70, Gaps: []string{}}
}
