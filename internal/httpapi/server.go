// Package httpapi exposes the research pipeline over HTTP: task
// submission and status, evaluation, fact store queries, checkpoint
// inspection, and live event streaming over SSE and WebSocket.
package httpapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/helicon-ai/inquiro/internal/bus"
	"github.com/helicon-ai/inquiro/internal/checkpoint"
	"github.com/helicon-ai/inquiro/internal/evaluation"
	"github.com/helicon-ai/inquiro/internal/memory"
	"github.com/helicon-ai/inquiro/internal/orchestrator"
	"github.com/helicon-ai/inquiro/internal/session"
)

// Pipeline runs research against an existing session.
type Pipeline interface {
	RunExisting(ctx context.Context, sessionID string, opts orchestrator.RunOptions) (*orchestrator.Results, error)
	Resume(ctx context.Context, sessionID string, opts orchestrator.RunOptions) (*orchestrator.Results, error)
}

// SessionStore is the session surface the handlers need.
type SessionStore interface {
	Create(ctx context.Context, query string) (*session.Session, error)
	Get(ctx context.Context, sessionID string) (*session.Session, error)
}

// TaskState tracks one submitted task through its lifetime.
type TaskState struct {
	SessionID string                `json:"session_id"`
	Query     string                `json:"query"`
	Status    session.Status        `json:"status"`
	Progress  float64               `json:"progress"`
	Result    *orchestrator.Results `json:"result,omitempty"`
	Error     string                `json:"error,omitempty"`
	CreatedAt time.Time             `json:"created_at"`
	UpdatedAt time.Time             `json:"updated_at"`
}

// Server wires the handlers and holds the in-process task registry.
type Server struct {
	pipeline    Pipeline
	sessions    SessionStore
	facts       *memory.FactStore
	checkpoints *checkpoint.Store
	evaluator   *evaluation.Evaluator
	events      *bus.Bus
	logger      *zap.Logger

	mu    sync.RWMutex
	tasks map[string]*TaskState
}

// Deps collects the server's collaborators.
type Deps struct {
	Pipeline    Pipeline
	Sessions    SessionStore
	Facts       *memory.FactStore
	Checkpoints *checkpoint.Store
	Evaluator   *evaluation.Evaluator
	Events      *bus.Bus
	Logger      *zap.Logger
}

// NewServer assembles the HTTP surface.
func NewServer(d Deps) *Server {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		pipeline:    d.Pipeline,
		sessions:    d.Sessions,
		facts:       d.Facts,
		checkpoints: d.Checkpoints,
		evaluator:   d.Evaluator,
		events:      d.Events,
		logger:      logger,
		tasks:       make(map[string]*TaskState),
	}
}

// RegisterRoutes attaches every endpoint to the mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /", s.handleRoot)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /research", s.handleSubmit)
	mux.HandleFunc("GET /research", s.handleList)
	mux.HandleFunc("GET /research/{id}", s.handleStatus)
	mux.HandleFunc("POST /research/{id}/resume", s.handleResume)
	// Synchronous variants, kept for clients that block on the result.
	mux.HandleFunc("POST /run", s.handleRunSync)
	mux.HandleFunc("GET /resume/{id}", s.handleResumeSync)
	mux.HandleFunc("POST /evaluate/{id}", s.handleEvaluate)
	mux.HandleFunc("GET /memory/stats", s.handleMemoryStats)
	mux.HandleFunc("GET /memory/related", s.handleMemoryRelated)
	mux.HandleFunc("GET /checkpoints/{id}", s.handleCheckpoint)
	mux.HandleFunc("GET /stream/sse", s.handleSSE)
	mux.HandleFunc("GET /stream/ws", s.handleWS)
}

// task returns a copy of the tracked state for a session id. Copies
// keep readers off the struct runTask mutates under the lock.
func (s *Server) task(sessionID string) (TaskState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[sessionID]
	if !ok {
		return TaskState{}, false
	}
	return *t, true
}

func (s *Server) trackTask(sess *session.Session) TaskState {
	now := time.Now()
	t := &TaskState{
		SessionID: sess.ID,
		Query:     sess.Query,
		Status:    session.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.mu.Lock()
	s.tasks[sess.ID] = t
	s.mu.Unlock()
	return *t
}

func (s *Server) updateTask(sessionID string, fn func(*TaskState)) {
	s.mu.Lock()
	if t, ok := s.tasks[sessionID]; ok {
		fn(t)
		t.UpdatedAt = time.Now()
	}
	s.mu.Unlock()
}

// runTask executes the pipeline in the background, independent of the
// submitting request's lifetime.
func (s *Server) runTask(sessionID string, opts orchestrator.RunOptions, resume bool) {
	s.updateTask(sessionID, func(t *TaskState) {
		t.Status = session.StatusRunning
		t.Progress = 0.1
	})

	ctx := context.Background()
	var results *orchestrator.Results
	var err error
	if resume {
		results, err = s.pipeline.Resume(ctx, sessionID, opts)
	} else {
		results, err = s.pipeline.RunExisting(ctx, sessionID, opts)
	}

	if err != nil {
		s.logger.Error("Research task failed",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		s.updateTask(sessionID, func(t *TaskState) {
			t.Status = session.StatusError
			t.Error = err.Error()
		})
		return
	}

	s.updateTask(sessionID, func(t *TaskState) {
		t.Status = session.StatusCompleted
		t.Progress = 1.0
		t.Result = results
	})
}
