package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/helicon-ai/inquiro/internal/agents"
	"github.com/helicon-ai/inquiro/internal/bus"
	"github.com/helicon-ai/inquiro/internal/checkpoint"
	"github.com/helicon-ai/inquiro/internal/memory"
	"github.com/helicon-ai/inquiro/internal/observability"
	"github.com/helicon-ai/inquiro/internal/research"
	"github.com/helicon-ai/inquiro/internal/session"
)

// memSessions is an in-memory SessionStore for pipeline tests.
type memSessions struct {
	mu       sync.Mutex
	sessions map[string]*session.Session
}

func newMemSessions() *memSessions {
	return &memSessions{sessions: make(map[string]*session.Session)}
}

func (m *memSessions) Create(ctx context.Context, query string) (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess := &session.Session{
		ID:           uuid.New().String(),
		Query:        query,
		Status:       session.StatusPending,
		CurrentStage: session.StagePlanning,
		Outputs:      make(map[string]interface{}),
	}
	m.sessions[sess.ID] = sess
	return sess, nil
}

func (m *memSessions) Get(ctx context.Context, sessionID string) (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[sessionID]
	if !ok {
		return nil, session.ErrNotFound
	}
	return sess, nil
}

// stageRank mirrors the store's forward-only ordering so the fake
// rejects the same transitions the real store does.
var stageRank = map[session.Stage]int{
	session.StagePlanning:     0,
	session.StageResearching:  1,
	session.StageSynthesizing: 2,
	session.StageValidating:   3,
	session.StageGenerating:   4,
	session.StageDone:         5,
}

func (m *memSessions) AdvanceStage(ctx context.Context, sessionID string, stage session.Stage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess := m.sessions[sessionID]
	if stageRank[stage] < stageRank[sess.CurrentStage] {
		return fmt.Errorf("cannot move session %s backward from %s to %s",
			sessionID, sess.CurrentStage, stage)
	}
	sess.CurrentStage = stage
	return nil
}

func (m *memSessions) Restart(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[sessionID]
	if !ok {
		return session.ErrNotFound
	}
	if sess.Status == session.StatusCompleted {
		return fmt.Errorf("cannot restart completed session %s", sessionID)
	}
	sess.CurrentStage = session.StagePlanning
	sess.Status = session.StatusPending
	sess.Error = ""
	return nil
}

func (m *memSessions) SetStatus(ctx context.Context, sessionID string, status session.Status, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sessionID].Status = status
	m.sessions[sessionID].Error = errMsg
	return nil
}

func (m *memSessions) SetOutput(ctx context.Context, sessionID, agentName string, output interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sessionID].Outputs[agentName] = output
	return nil
}

// fakeResearcher returns a fixed result or error.
type fakeResearcher struct {
	mu      sync.Mutex
	result  *research.Result
	err     error
	runs    int
	lastReq research.Request
}

func (f *fakeResearcher) Run(ctx context.Context, req research.Request) (*research.Result, error) {
	f.mu.Lock()
	f.runs++
	f.lastReq = req
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeResearcher) runCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs
}

// scriptedCompleter replays replies to all agents in call order. Each
// call is logged to the run collector when one rides on the context,
// the way the real model client reports usage.
type scriptedCompleter struct {
	mu      sync.Mutex
	replies []string
}

func (s *scriptedCompleter) Complete(ctx context.Context, systemPrompt, userContent string, maxTokens int) (string, error) {
	if collector := observability.FromContext(ctx); collector != nil {
		collector.RecordCall("scripted-model", 12, 6)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.replies) == 0 {
		return "", fmt.Errorf("no scripted reply left")
	}
	reply := s.replies[0]
	s.replies = s.replies[1:]
	return reply, nil
}

type recordingArchiver struct {
	mu    sync.Mutex
	saved []string
	err   error
}

func (r *recordingArchiver) Save(ctx context.Context, sessionID, query, status, report string, outputs map[string]interface{}, sourceCount int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.saved = append(r.saved, sessionID)
	return nil
}

func testDeps(t *testing.T, completer research.Completer, researcher Researcher) (Deps, *memSessions, *memory.FactStore) {
	t.Helper()
	sessions := newMemSessions()
	facts := memory.NewFactStore(zap.NewNop())
	checkpoints, err := checkpoint.NewStore(t.TempDir(), zap.NewNop())
	require.NoError(t, err)

	return Deps{
		Planner:     agents.NewPlanner(completer, zap.NewNop()),
		Researcher:  researcher,
		Synthesizer: agents.NewSynthesizer(completer, zap.NewNop()),
		Validator:   agents.NewValidator(completer, zap.NewNop()),
		Generator:   agents.NewGenerator(completer, zap.NewNop()),
		Sessions:    sessions,
		Facts:       facts,
		Checkpoints: checkpoints,
		Events:      bus.New(64, zap.NewNop()),
		Logger:      zap.NewNop(),
	}, sessions, facts
}

func happyPathCompleter() *scriptedCompleter {
	return &scriptedCompleter{replies: []string{
		// planner
		`{"main_topic":"ev adoption","sub_questions":[{"question":"charging infrastructure","priority":4,"keywords":["charging"]}],"estimated_sources_needed":6}`,
		// synthesizer
		"EV adoption keeps accelerating across major markets.",
		// validator
		`{"status":"validated","confidence":90,"gaps":[]}`,
		// generator
		"Final report on EV adoption [1].",
	}}
}

func fixedResearch() *fakeResearcher {
	return &fakeResearcher{result: &research.Result{
		Sources: []research.Source{
			{Title: "Grid report", URL: "https://x/1", Content: "grid data", RelevanceScore: 0.9},
			{Title: "Market study", URL: "https://x/2", Content: "market data", RelevanceScore: 0.7},
		},
		IterationsCompleted: 2,
		TotalSources:        2,
	}}
}

func TestPipelineHappyPath(t *testing.T) {
	deps, sessions, facts := testDeps(t, happyPathCompleter(), fixedResearch())
	archiver := &recordingArchiver{}
	deps.Archive = archiver
	o := New(deps)

	results, err := o.Run(context.Background(), "ev adoption outlook", RunOptions{OutputFormat: "report"})
	require.NoError(t, err)

	assert.Equal(t, "ev adoption outlook", results.Query)
	assert.Equal(t, "ev adoption", results.Plan.MainTopic)
	assert.Equal(t, 2, results.ResearchSummary.TotalSources)
	assert.Equal(t, 2, results.ResearchSummary.Iterations)
	assert.Equal(t, "EV adoption keeps accelerating across major markets.", results.Synthesis)
	assert.Equal(t, "validated", results.Validation.Status)
	assert.Equal(t, "Final report on EV adoption [1].", results.FinalContent.Content)
	assert.Equal(t, "completed", results.Metrics.Status)
	assert.Len(t, results.Metrics.Stages, 5)
	// Planner, synthesizer, validator, and generator each made one call.
	require.Len(t, results.Metrics.Calls, 4)
	assert.Equal(t, "scripted-model", results.Metrics.Calls[0].Model)
	assert.Equal(t, 12, results.Metrics.Calls[0].InputTokens)
	assert.Equal(t, 6, results.Metrics.Calls[0].OutputTokens)

	sess, err := sessions.Get(context.Background(), results.SessionID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusCompleted, sess.Status)
	assert.Equal(t, session.StageDone, sess.CurrentStage)
	for _, name := range []string{
		agents.NameQueryPlanner, agents.NameResearcher,
		agents.NameSynthesizer, agents.NameValidator, agents.NameContentGenerator,
	} {
		assert.Contains(t, sess.Outputs, name)
	}

	stats := facts.Stats()
	assert.Equal(t, 1, stats.CompletedSessions)
	assert.Greater(t, stats.TotalFacts, 3)

	assert.Equal(t, []string{results.SessionID}, archiver.saved)
}

func TestPipelineCheckpointsBetweenStages(t *testing.T) {
	checkpoints, err := checkpoint.NewStore(t.TempDir(), zap.NewNop())
	require.NoError(t, err)

	deps, _, _ := testDeps(t, happyPathCompleter(), fixedResearch())
	deps.Checkpoints = checkpoints
	o := New(deps)

	results, err := o.Run(context.Background(), "q", RunOptions{OutputFormat: "report"})
	require.NoError(t, err)

	state, err := checkpoints.Load(results.SessionID)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, "q", state["query"])
	assert.Equal(t, string(session.StageGenerating), state["stage"])
}

func TestPipelinePublishesStageEvents(t *testing.T) {
	deps, _, _ := testDeps(t, happyPathCompleter(), fixedResearch())
	o := New(deps)

	results, err := o.Run(context.Background(), "q", RunOptions{OutputFormat: "report"})
	require.NoError(t, err)

	// Replay skips seq 0, so the planning announcement is not visible here.
	replay := deps.Events.ReplaySince(results.SessionID, 0)
	var stages []string
	sawResult := false
	for _, msg := range replay {
		switch msg.Topic {
		case bus.TopicStage:
			payload := msg.Payload.(map[string]interface{})
			stages = append(stages, payload["stage"].(string))
		case bus.TopicResult:
			sawResult = true
		}
	}
	assert.Equal(t, []string{"researching", "synthesizing", "validating", "generating"}, stages)
	assert.True(t, sawResult)
}

func TestPipelineResearchFailureMarksSessionError(t *testing.T) {
	deps, sessions, _ := testDeps(t, happyPathCompleter(), &fakeResearcher{err: fmt.Errorf("search backend down")})
	o := New(deps)

	_, err := o.Run(context.Background(), "q", RunOptions{OutputFormat: "report"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stage researching")

	var sess *session.Session
	for _, s := range sessions.sessions {
		sess = s
	}
	require.NotNil(t, sess)
	assert.Equal(t, session.StatusError, sess.Status)
	assert.Contains(t, sess.Error, "search backend down")
}

func TestPipelineSurvivesAgentFallbacks(t *testing.T) {
	// The completer runs dry immediately: every agent falls back.
	deps, _, _ := testDeps(t, &scriptedCompleter{}, fixedResearch())
	o := New(deps)

	results, err := o.Run(context.Background(), "resilient query", RunOptions{OutputFormat: "report"})
	require.NoError(t, err)

	assert.Equal(t, "resilient query", results.Plan.MainTopic)
	assert.Empty(t, results.Synthesis)
	assert.Equal(t, "needs_review", results.Validation.Status)
	assert.Equal(t, 70, results.Validation.Confidence)
	assert.Empty(t, results.FinalContent.Content)
	assert.Len(t, results.FinalContent.Citations, 2)
}

func TestPipelineArchiveFailureDoesNotFailRun(t *testing.T) {
	deps, _, _ := testDeps(t, happyPathCompleter(), fixedResearch())
	deps.Archive = &recordingArchiver{err: fmt.Errorf("db unreachable")}
	o := New(deps)

	_, err := o.Run(context.Background(), "q", RunOptions{OutputFormat: "report"})
	assert.NoError(t, err)
}

func TestResearchRequestCarriesSessionAndBudget(t *testing.T) {
	researcher := fixedResearch()
	deps, _, _ := testDeps(t, happyPathCompleter(), researcher)
	o := New(deps)

	results, err := o.Run(context.Background(), "q", RunOptions{OutputFormat: "report", MaxIterations: 2})
	require.NoError(t, err)

	researcher.mu.Lock()
	req := researcher.lastReq
	researcher.mu.Unlock()
	assert.Equal(t, results.SessionID, req.SessionID)
	assert.Equal(t, 2, req.MaxIterations)
	require.Len(t, req.SubQuestions, 1)
	assert.Equal(t, "charging infrastructure", req.SubQuestions[0].Question)
}

func TestResumeCompletedSessionIsNoOp(t *testing.T) {
	researcher := fixedResearch()
	deps, sessions, _ := testDeps(t, happyPathCompleter(), researcher)
	o := New(deps)

	results, err := o.Run(context.Background(), "q", RunOptions{OutputFormat: "report"})
	require.NoError(t, err)
	require.Equal(t, 1, researcher.runCount())

	resumed, err := o.Resume(context.Background(), results.SessionID, RunOptions{OutputFormat: "report"})
	require.NoError(t, err)

	// Nothing reran; the stored outputs came back as-is.
	assert.Equal(t, 1, researcher.runCount())
	assert.Equal(t, results.SessionID, resumed.SessionID)
	assert.Equal(t, results.Query, resumed.Query)
	assert.Equal(t, results.Plan.MainTopic, resumed.Plan.MainTopic)
	assert.Equal(t, results.Synthesis, resumed.Synthesis)
	assert.Equal(t, results.Validation, resumed.Validation)
	assert.Equal(t, results.FinalContent.Content, resumed.FinalContent.Content)
	assert.Equal(t, results.ResearchSummary, resumed.ResearchSummary)

	sess, err := sessions.Get(context.Background(), results.SessionID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusCompleted, sess.Status)
}

func TestResumeRestartsInterruptedSession(t *testing.T) {
	deps, sessions, _ := testDeps(t, happyPathCompleter(), fixedResearch())
	o := New(deps)

	sess, err := sessions.Create(context.Background(), "interrupted query")
	require.NoError(t, err)
	require.NoError(t, sessions.SetStatus(context.Background(), sess.ID, session.StatusError, "killed"))

	results, err := o.Resume(context.Background(), sess.ID, RunOptions{OutputFormat: "report"})
	require.NoError(t, err)
	assert.Equal(t, sess.ID, results.SessionID)
	assert.Equal(t, "interrupted query", results.Query)

	got, err := sessions.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusCompleted, got.Status)
}

func TestResumeRewindsSessionInterruptedPastResearch(t *testing.T) {
	mr := miniredis.RunT(t)
	store, err := session.NewStore(mr.Addr(), "", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	deps, _, _ := testDeps(t, happyPathCompleter(), fixedResearch())
	deps.Sessions = store
	o := New(deps)

	ctx := context.Background()
	sess, err := store.Create(ctx, "interrupted late")
	require.NoError(t, err)
	for _, stage := range []session.Stage{
		session.StageResearching, session.StageSynthesizing, session.StageValidating,
	} {
		require.NoError(t, store.AdvanceStage(ctx, sess.ID, stage))
	}
	require.NoError(t, store.SetStatus(ctx, sess.ID, session.StatusError, "killed"))

	// The forward-only store would reject re-entering the research stage
	// without the rewind that Resume performs first.
	results, err := o.Resume(ctx, sess.ID, RunOptions{OutputFormat: "report"})
	require.NoError(t, err)
	assert.Equal(t, sess.ID, results.SessionID)

	got, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusCompleted, got.Status)
	assert.Equal(t, session.StageDone, got.CurrentStage)
}

func TestRunExistingUnknownSession(t *testing.T) {
	deps, _, _ := testDeps(t, happyPathCompleter(), fixedResearch())
	o := New(deps)

	_, err := o.RunExisting(context.Background(), "missing", RunOptions{OutputFormat: "report"})
	require.Error(t, err)
	assert.ErrorIs(t, err, session.ErrNotFound)
}
