package session

import "time"

// Status reflects the lifecycle of a research session.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// Stage identifies a pipeline stage. Stages only advance forward.
type Stage string

const (
	StagePlanning     Stage = "planning"
	StageResearching  Stage = "researching"
	StageSynthesizing Stage = "synthesizing"
	StageValidating   Stage = "validating"
	StageGenerating   Stage = "generating"
	StageDone         Stage = "done"
)

// stageOrder positions each stage in the pipeline. Used to reject
// backward transitions.
var stageOrder = map[Stage]int{
	StagePlanning:     0,
	StageResearching:  1,
	StageSynthesizing: 2,
	StageValidating:   3,
	StageGenerating:   4,
	StageDone:         5,
}

// Session tracks one research run end to end.
type Session struct {
	ID           string                 `json:"id"`
	Query        string                 `json:"query"`
	Status       Status                 `json:"status"`
	CurrentStage Stage                  `json:"current_stage"`
	Outputs      map[string]interface{} `json:"outputs"`
	Error        string                 `json:"error,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
	ClosedAt     *time.Time             `json:"closed_at,omitempty"`
}

// Terminal reports whether the session has finished, in either direction.
func (s *Session) Terminal() bool {
	return s.Status == StatusCompleted || s.Status == StatusError
}
