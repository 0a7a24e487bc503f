// Package orchestrator drives the five-stage research pipeline:
// planning, iterative research, synthesis, validation, and content
// generation. Stages run sequentially; progress is persisted to the
// session store and checkpointed after every stage so an interrupted
// run can be restarted.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/helicon-ai/inquiro/internal/agents"
	"github.com/helicon-ai/inquiro/internal/bus"
	"github.com/helicon-ai/inquiro/internal/checkpoint"
	"github.com/helicon-ai/inquiro/internal/memory"
	"github.com/helicon-ai/inquiro/internal/metrics"
	"github.com/helicon-ai/inquiro/internal/observability"
	"github.com/helicon-ai/inquiro/internal/research"
	"github.com/helicon-ai/inquiro/internal/session"
	"github.com/helicon-ai/inquiro/internal/tracing"
)

// SessionStore is the session persistence surface the pipeline needs.
type SessionStore interface {
	Create(ctx context.Context, query string) (*session.Session, error)
	Get(ctx context.Context, sessionID string) (*session.Session, error)
	AdvanceStage(ctx context.Context, sessionID string, stage session.Stage) error
	Restart(ctx context.Context, sessionID string) error
	SetStatus(ctx context.Context, sessionID string, status session.Status, errMsg string) error
	SetOutput(ctx context.Context, sessionID, agentName string, output interface{}) error
}

// Researcher executes the research stage for a set of sub-questions.
type Researcher interface {
	Run(ctx context.Context, req research.Request) (*research.Result, error)
}

// RunOptions tunes one pipeline run. The zero value uses defaults.
type RunOptions struct {
	OutputFormat  string
	MaxIterations int
}

// Archiver persists completed runs. Optional.
type Archiver interface {
	Save(ctx context.Context, sessionID, query, status, report string, outputs map[string]interface{}, sourceCount int) error
}

// ResearchSummary condenses the research stage for the final results.
type ResearchSummary struct {
	TotalSources int `json:"total_sources"`
	Iterations   int `json:"iterations"`
}

// Results is the complete output of one pipeline run.
type Results struct {
	SessionID       string                  `json:"session_id"`
	Query           string                  `json:"query"`
	Plan            research.Plan           `json:"plan"`
	ResearchSummary ResearchSummary         `json:"research_summary"`
	Synthesis       string                  `json:"synthesis"`
	Validation      agents.ValidationResult `json:"validation"`
	FinalContent    agents.GeneratedContent `json:"final_content"`
	Metrics         observability.Summary   `json:"metrics"`
	MemoryStats     memory.Statistics       `json:"memory_stats"`
}

// Orchestrator wires the agents, stores, and event bus into a pipeline.
type Orchestrator struct {
	planner     *agents.Planner
	researcher  Researcher
	synthesizer *agents.Synthesizer
	validator   *agents.Validator
	generator   *agents.Generator

	sessions    SessionStore
	facts       *memory.FactStore
	checkpoints *checkpoint.Store
	events      *bus.Bus
	archive     Archiver
	logger      *zap.Logger
}

// Deps collects the orchestrator's collaborators. Archive may be nil.
type Deps struct {
	Planner     *agents.Planner
	Researcher  Researcher
	Synthesizer *agents.Synthesizer
	Validator   *agents.Validator
	Generator   *agents.Generator
	Sessions    SessionStore
	Facts       *memory.FactStore
	Checkpoints *checkpoint.Store
	Events      *bus.Bus
	Archive     Archiver
	Logger      *zap.Logger
}

// New assembles an orchestrator from its dependencies.
func New(d Deps) *Orchestrator {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("Research orchestrator initialized")
	return &Orchestrator{
		planner:     d.Planner,
		researcher:  d.Researcher,
		synthesizer: d.Synthesizer,
		validator:   d.Validator,
		generator:   d.Generator,
		sessions:    d.Sessions,
		facts:       d.Facts,
		checkpoints: d.Checkpoints,
		events:      d.Events,
		archive:     d.Archive,
		logger:      logger,
	}
}

// Run creates a session for the query and executes the full pipeline.
func (o *Orchestrator) Run(ctx context.Context, query string, opts RunOptions) (*Results, error) {
	sess, err := o.sessions.Create(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return o.run(ctx, sess, opts)
}

// RunExisting executes the pipeline against a session that was
// already created, typically by the HTTP layer at submit time.
func (o *Orchestrator) RunExisting(ctx context.Context, sessionID string, opts RunOptions) (*Results, error) {
	sess, err := o.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	return o.run(ctx, sess, opts)
}

// Resume restarts an interrupted session from scratch using its
// original query. The session is rewound to the planning stage first;
// resuming a completed session is an idempotent no-op that returns the
// stored results without rerunning anything.
func (o *Orchestrator) Resume(ctx context.Context, sessionID string, opts RunOptions) (*Results, error) {
	sess, err := o.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("resume session: %w", err)
	}
	if sess.Status == session.StatusCompleted {
		o.logger.Info("Session already completed", zap.String("session_id", sessionID))
		return o.resultsFromSession(sess), nil
	}
	o.logger.Info("Resuming session by restart",
		zap.String("session_id", sessionID),
		zap.String("stage", string(sess.CurrentStage)),
	)
	if err := o.sessions.Restart(ctx, sessionID); err != nil {
		return nil, fmt.Errorf("restart session: %w", err)
	}
	sess, err = o.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("resume session: %w", err)
	}
	return o.run(ctx, sess, opts)
}

// resultsFromSession rebuilds pipeline results from the outputs stored
// on a completed session. Outputs loaded from Redis arrive as generic
// maps, so they are round-tripped through JSON into their types.
func (o *Orchestrator) resultsFromSession(sess *session.Session) *Results {
	results := &Results{SessionID: sess.ID, Query: sess.Query}
	if o.facts != nil {
		results.MemoryStats = o.facts.Stats()
	}

	raw, err := json.Marshal(sess.Outputs)
	if err != nil {
		return results
	}
	var stored struct {
		Plan       research.Plan           `json:"QueryPlanner"`
		Research   research.Result         `json:"Researcher"`
		Synthesis  agents.SynthesisResult  `json:"Synthesizer"`
		Validation agents.ValidationResult `json:"Validator"`
		Content    agents.GeneratedContent `json:"ContentGenerator"`
	}
	if err := json.Unmarshal(raw, &stored); err != nil {
		return results
	}
	results.Plan = stored.Plan
	results.ResearchSummary = ResearchSummary{
		TotalSources: stored.Research.TotalSources,
		Iterations:   stored.Research.IterationsCompleted,
	}
	results.Synthesis = stored.Synthesis.Synthesis
	results.Validation = stored.Validation
	results.FinalContent = stored.Content
	return results
}

func (o *Orchestrator) run(ctx context.Context, sess *session.Session, opts RunOptions) (*Results, error) {
	query := sess.Query
	collector := observability.NewCollector()
	metrics.PipelinesStarted.Inc()

	ctx, span := tracing.StartSpan(ctx, "pipeline.run")
	defer span.End()
	ctx = observability.WithCollector(ctx, collector)

	o.logger.Info("Starting research session",
		zap.String("session_id", sess.ID),
		zap.String("query", query),
	)
	if err := o.sessions.SetStatus(ctx, sess.ID, session.StatusRunning, ""); err != nil {
		return nil, o.fail(ctx, collector, sess.ID, "start", err)
	}

	// Stage 1: planning
	var plan research.Plan
	err := o.stage(ctx, collector, sess.ID, "planning", func(ctx context.Context) error {
		plan = o.planner.Plan(ctx, query)
		o.facts.Store(fmt.Sprintf("Research plan for: %s", query), "planning", 0.8,
			map[string]interface{}{"session_id": sess.ID})
		if err := o.sessions.SetOutput(ctx, sess.ID, agents.NameQueryPlanner, plan); err != nil {
			return err
		}
		return o.sessions.AdvanceStage(ctx, sess.ID, session.StageResearching)
	})
	if err != nil {
		return nil, o.fail(ctx, collector, sess.ID, "planning", err)
	}
	o.checkpointStage(sess.ID, query, session.StageResearching)

	// Stage 2: research loop
	var researchResults *research.Result
	err = o.stage(ctx, collector, sess.ID, "researching", func(ctx context.Context) error {
		var rerr error
		researchResults, rerr = o.researcher.Run(ctx, research.Request{
			SessionID:     sess.ID,
			SubQuestions:  plan.SubQuestions,
			MaxIterations: opts.MaxIterations,
		})
		if rerr != nil {
			return rerr
		}
		if err := o.sessions.SetOutput(ctx, sess.ID, agents.NameResearcher, researchResults); err != nil {
			return err
		}
		return o.sessions.AdvanceStage(ctx, sess.ID, session.StageSynthesizing)
	})
	if err != nil {
		return nil, o.fail(ctx, collector, sess.ID, "researching", err)
	}
	o.checkpointStage(sess.ID, query, session.StageSynthesizing)

	// Stage 3: synthesis
	var synthesis agents.SynthesisResult
	err = o.stage(ctx, collector, sess.ID, "synthesizing", func(ctx context.Context) error {
		synthesis = o.synthesizer.Synthesize(ctx, researchResults.Sources, query)
		o.facts.Store(synthesis.Synthesis, "synthesis", 0.9,
			map[string]interface{}{"session_id": sess.ID, "query": query})
		if err := o.sessions.SetOutput(ctx, sess.ID, agents.NameSynthesizer, synthesis); err != nil {
			return err
		}
		return o.sessions.AdvanceStage(ctx, sess.ID, session.StageValidating)
	})
	if err != nil {
		return nil, o.fail(ctx, collector, sess.ID, "synthesizing", err)
	}
	o.checkpointStage(sess.ID, query, session.StageValidating)

	// Stage 4: validation
	var validation agents.ValidationResult
	err = o.stage(ctx, collector, sess.ID, "validating", func(ctx context.Context) error {
		validation = o.validator.Validate(ctx, synthesis.Synthesis, researchResults.Sources)
		if len(validation.Gaps) > 0 {
			o.facts.Store(fmt.Sprintf("Validation issues: %v", validation.Gaps), "validation", 0.7,
				map[string]interface{}{"session_id": sess.ID})
		}
		if err := o.sessions.SetOutput(ctx, sess.ID, agents.NameValidator, validation); err != nil {
			return err
		}
		return o.sessions.AdvanceStage(ctx, sess.ID, session.StageGenerating)
	})
	if err != nil {
		return nil, o.fail(ctx, collector, sess.ID, "validating", err)
	}
	o.checkpointStage(sess.ID, query, session.StageGenerating)

	// Stage 5: content generation
	var content agents.GeneratedContent
	err = o.stage(ctx, collector, sess.ID, "generating", func(ctx context.Context) error {
		content = o.generator.Generate(ctx, synthesis.Synthesis, validation, researchResults.Sources, opts.OutputFormat)
		excerpt := content.Content
		if len(excerpt) > 1000 {
			excerpt = excerpt[:1000]
		}
		o.facts.Store(excerpt, "final_content", 1.0, map[string]interface{}{
			"session_id": sess.ID,
			"format":     content.Format,
			"word_count": content.WordCount,
		})
		if err := o.sessions.SetOutput(ctx, sess.ID, agents.NameContentGenerator, content); err != nil {
			return err
		}
		return o.sessions.AdvanceStage(ctx, sess.ID, session.StageDone)
	})
	if err != nil {
		return nil, o.fail(ctx, collector, sess.ID, "generating", err)
	}

	if err := o.sessions.SetStatus(ctx, sess.ID, session.StatusCompleted, ""); err != nil {
		return nil, o.fail(ctx, collector, sess.ID, "finalize", err)
	}
	o.facts.StoreSessionRecord(sess.ID, fmt.Sprintf("query=%s sources=%d format=%s",
		query, researchResults.TotalSources, content.Format))

	if o.archive != nil {
		outputs := map[string]interface{}{
			agents.NameQueryPlanner:     plan,
			agents.NameResearcher:       researchResults,
			agents.NameSynthesizer:      synthesis,
			agents.NameValidator:        validation,
			agents.NameContentGenerator: content,
		}
		if err := o.archive.Save(ctx, sess.ID, query, string(session.StatusCompleted),
			content.Content, outputs, researchResults.TotalSources); err != nil {
			// Archival is best-effort; the run already succeeded.
			o.logger.Warn("Session archival failed",
				zap.String("session_id", sess.ID),
				zap.Error(err),
			)
		}
	}

	collector.End("completed")
	metrics.PipelinesCompleted.WithLabelValues("completed").Inc()

	results := &Results{
		SessionID: sess.ID,
		Query:     query,
		Plan:      plan,
		ResearchSummary: ResearchSummary{
			TotalSources: researchResults.TotalSources,
			Iterations:   researchResults.IterationsCompleted,
		},
		Synthesis:    synthesis.Synthesis,
		Validation:   validation,
		FinalContent: content,
		Metrics:      collector.Summary(),
		MemoryStats:  o.facts.Stats(),
	}

	o.publish(sess.ID, bus.TopicResult, "orchestrator", map[string]interface{}{
		"total_sources": researchResults.TotalSources,
		"word_count":    content.WordCount,
	})
	o.logger.Info("Research completed", zap.String("session_id", sess.ID))
	return results, nil
}

// stage runs fn with timing, tracing, and a bus announcement.
func (o *Orchestrator) stage(ctx context.Context, collector *observability.Collector, sessionID, name string, fn func(context.Context) error) error {
	o.logger.Info("Stage starting",
		zap.String("session_id", sessionID),
		zap.String("stage", name),
	)
	o.publish(sessionID, bus.TopicStage, "orchestrator", map[string]interface{}{"stage": name})

	start := time.Now()
	err := collector.ObserveStage(name, func() error {
		ctx, span := tracing.StartStageSpan(ctx, name, sessionID)
		defer span.End()
		return fn(ctx)
	})
	metrics.StageDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	return err
}

func (o *Orchestrator) fail(ctx context.Context, collector *observability.Collector, sessionID, stage string, err error) error {
	collector.End("failed")
	metrics.PipelinesCompleted.WithLabelValues("error").Inc()
	o.logger.Error("Research failed",
		zap.String("session_id", sessionID),
		zap.String("stage", stage),
		zap.Error(err),
	)
	o.publish(sessionID, bus.TopicError, "orchestrator", map[string]interface{}{
		"stage": stage,
		"error": err.Error(),
	})
	if serr := o.sessions.SetStatus(ctx, sessionID, session.StatusError, err.Error()); serr != nil {
		o.logger.Error("Failed to record session error",
			zap.String("session_id", sessionID),
			zap.Error(serr),
		)
	}
	return fmt.Errorf("stage %s: %w", stage, err)
}

func (o *Orchestrator) checkpointStage(sessionID, query string, next session.Stage) {
	if o.checkpoints == nil {
		return
	}
	if _, err := o.checkpoints.Save(sessionID, map[string]interface{}{
		"query": query,
		"stage": string(next),
	}); err != nil {
		o.logger.Warn("Checkpoint save failed",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}
}

func (o *Orchestrator) publish(sessionID, topic, sender string, payload interface{}) {
	if o.events == nil {
		return
	}
	o.events.Publish(sessionID, bus.Message{
		Topic:   topic,
		Sender:  sender,
		Payload: payload,
	})
}
