// Package agents implements the model-backed pipeline agents. Every
// agent degrades to a deterministic fallback when the model call or
// its reply parsing fails, so the pipeline always moves forward.
package agents

// Agent names used as session output keys.
const (
	NameQueryPlanner     = "QueryPlanner"
	NameResearcher       = "Researcher"
	NameSynthesizer      = "Synthesizer"
	NameValidator        = "Validator"
	NameContentGenerator = "ContentGenerator"
)

// SynthesisResult is the synthesizer's output.
type SynthesisResult struct {
	Synthesis       string `json:"synthesis"`
	SourcesUsed     int    `json:"sources_used"`
	SynthesisLength int    `json:"synthesis_length"`
}

// ValidationResult is the validator's output. Confidence is a 0-100
// score.
type ValidationResult struct {
	Status     string   `json:"status"`
	Confidence int      `json:"confidence"`
	Gaps       []string `json:"gaps"`
}

// GeneratedContent is the final deliverable from the content generator.
type GeneratedContent struct {
	Content   string   `json:"content"`
	WordCount int      `json:"word_count"`
	Citations []string `json:"citations"`
	Format    string   `json:"format"`
}
