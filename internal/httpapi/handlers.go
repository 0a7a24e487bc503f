package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/helicon-ai/inquiro/internal/evaluation"
	"github.com/helicon-ai/inquiro/internal/orchestrator"
	"github.com/helicon-ai/inquiro/internal/session"
)

// ResearchRequest is the submit payload.
type ResearchRequest struct {
	Query         string `json:"query"`
	OutputFormat  string `json:"output_format"`
	MaxIterations int    `json:"max_iterations"`
}

func (r ResearchRequest) options() orchestrator.RunOptions {
	return orchestrator.RunOptions{
		OutputFormat:  r.OutputFormat,
		MaxIterations: r.MaxIterations,
	}
}

// ResearchResponse acknowledges a submitted task.
type ResearchResponse struct {
	SessionID string         `json:"session_id"`
	Status    session.Status `json:"status"`
	CreatedAt string         `json:"created_at"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"service": "inquiro",
		"status":  "running",
		"endpoints": map[string]string{
			"submit":   "/research",
			"status":   "/research/{id}",
			"list":     "/research",
			"run_sync": "/run",
			"stream":   "/stream/sse",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req ResearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query required")
		return
	}

	sess, err := s.sessions.Create(r.Context(), req.Query)
	if err != nil {
		s.logger.Error("Session creation failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	task := s.trackTask(sess)
	go s.runTask(sess.ID, req.options(), false)

	writeJSON(w, http.StatusAccepted, ResearchResponse{
		SessionID: sess.ID,
		Status:    task.Status,
		CreatedAt: task.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if task, ok := s.task(id); ok {
		writeJSON(w, http.StatusOK, task)
		return
	}
	// Sessions started before a restart live only in the store.
	sess, err := s.sessions.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "research task not found")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	tasks := make([]TaskState, 0, len(s.tasks))
	for _, t := range s.tasks {
		tasks = append(tasks, *t)
	}
	s.mu.RUnlock()
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, err := s.sessions.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if sess.Status == session.StatusCompleted {
		// Resuming finished work is a no-op: hand back what was stored.
		if task, ok := s.task(id); ok {
			writeJSON(w, http.StatusOK, task)
			return
		}
		writeJSON(w, http.StatusOK, sess)
		return
	}

	if _, ok := s.task(id); !ok {
		s.trackTask(sess)
	} else {
		s.updateTask(id, func(t *TaskState) {
			t.Status = session.StatusPending
			t.Error = ""
			t.Result = nil
		})
	}
	go s.runTask(id, orchestrator.RunOptions{}, true)

	writeJSON(w, http.StatusAccepted, map[string]string{
		"session_id": id,
		"status":     string(session.StatusPending),
	})
}

// handleRunSync executes the pipeline inline and replies with the full
// results once it finishes.
func (s *Server) handleRunSync(w http.ResponseWriter, r *http.Request) {
	var req ResearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query required")
		return
	}

	sess, err := s.sessions.Create(r.Context(), req.Query)
	if err != nil {
		s.logger.Error("Session creation failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	s.trackTask(sess)
	s.runTask(sess.ID, req.options(), false)
	s.respondWithTask(w, sess.ID)
}

// handleResumeSync resumes inline. A completed session comes back
// unchanged, an interrupted one reruns before the response is written.
func (s *Server) handleResumeSync(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, err := s.sessions.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if sess.Status == session.StatusCompleted {
		if task, ok := s.task(id); ok && task.Result != nil {
			writeJSON(w, http.StatusOK, task.Result)
			return
		}
		writeJSON(w, http.StatusOK, sess)
		return
	}

	if _, ok := s.task(id); !ok {
		s.trackTask(sess)
	}
	s.runTask(id, orchestrator.RunOptions{}, true)
	s.respondWithTask(w, id)
}

func (s *Server) respondWithTask(w http.ResponseWriter, sessionID string) {
	task, ok := s.task(sessionID)
	if !ok {
		writeError(w, http.StatusInternalServerError, "research task lost")
		return
	}
	if task.Status == session.StatusError {
		writeError(w, http.StatusInternalServerError, task.Error)
		return
	}
	writeJSON(w, http.StatusOK, task.Result)
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	task, ok := s.task(id)
	if !ok {
		writeError(w, http.StatusNotFound, "research task not found")
		return
	}
	if task.Status != session.StatusCompleted || task.Result == nil {
		writeError(w, http.StatusBadRequest, "research task not completed")
		return
	}

	metrics := s.evaluator.Evaluate(r.Context(), evaluation.RunResults{
		Query:        task.Query,
		Content:      task.Result.FinalContent.Content,
		Validation:   task.Result.Validation,
		Iterations:   task.Result.ResearchSummary.Iterations,
		TotalSources: task.Result.ResearchSummary.TotalSources,
	})

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": id,
		"evaluation": metrics,
	})
}

func (s *Server) handleMemoryStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.facts.Stats())
}

func (s *Server) handleMemoryRelated(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	if query == "" {
		writeError(w, http.StatusBadRequest, "query required")
		return
	}
	limit := 5
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}
	writeJSON(w, http.StatusOK, s.facts.Related(query, limit))
}

func (s *Server) handleCheckpoint(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	state, err := s.checkpoints.Load(id)
	if err != nil {
		s.logger.Error("Checkpoint load failed", zap.String("session_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load checkpoint")
		return
	}
	if state == nil {
		writeError(w, http.StatusNotFound, "checkpoint not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": id,
		"state":      state,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
