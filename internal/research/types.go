package research

// SearchStrategy selects how a sub-question is dispatched to the search
// backend. Unknown values are treated as StrategyGeneral.
type SearchStrategy string

const (
	StrategyGeneral  SearchStrategy = "general"
	StrategyAcademic SearchStrategy = "academic"
	StrategyNews     SearchStrategy = "news"
)

// Source is one piece of retrieved external content. Sources are immutable
// once created; duplicates across iterations or sub-questions are allowed and
// left to ranking to surface the best-scored copy.
type Source struct {
	URL            string                 `json:"url"`
	Title          string                 `json:"title"`
	Content        string                 `json:"content"`
	RelevanceScore float64                `json:"relevance_score"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// SubQuestion is one decomposed unit of the original query, independently
// searchable. Created once by the planning stage, read-only afterward.
type SubQuestion struct {
	Question       string         `json:"question"`
	Priority       int            `json:"priority"`
	Keywords       []string       `json:"keywords,omitempty"`
	SearchStrategy SearchStrategy `json:"search_strategy,omitempty"`
}

// Plan is the output of the planning stage, owned by the orchestrator for the
// lifetime of one session.
type Plan struct {
	MainTopic              string        `json:"main_topic"`
	SubQuestions           []SubQuestion `json:"sub_questions"`
	EstimatedSourcesNeeded int           `json:"estimated_sources_needed"`
}

// IterationRecord is appended once per loop turn and never mutated after
// append; the sequence forms the loop's audit trail.
type IterationRecord struct {
	Iteration    int      `json:"iteration"`
	Queries      []string `json:"queries"`
	SourcesFound int      `json:"sources_found"`
}

// TaskStatus classifies a settled parallel research task.
type TaskStatus string

const (
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// TaskRecord is the per-sub-question log entry of the parallel coordinator,
// appended in completion order.
type TaskRecord struct {
	Question     string     `json:"question"`
	SourcesFound int        `json:"sources_found"`
	Status       TaskStatus `json:"status"`
	Error        string     `json:"error,omitempty"`
}

// Request describes one research stage run. SessionID tags persisted
// sources; MaxIterations overrides the configured loop budget when
// positive.
type Request struct {
	SessionID     string        `json:"session_id"`
	SubQuestions  []SubQuestion `json:"sub_questions"`
	MaxIterations int           `json:"max_iterations,omitempty"`
}

// Result is the aggregate output of either the iterative loop or the parallel
// coordinator. Both producers fill Sources, IterationsCompleted and
// TotalSources; the loop additionally fills IterationLog, the coordinator
// TaskLog.
type Result struct {
	Sources             []Source          `json:"sources"`
	IterationLog        []IterationRecord `json:"iteration_log,omitempty"`
	TaskLog             []TaskRecord      `json:"task_log,omitempty"`
	IterationsCompleted int               `json:"iterations_completed"`
	TotalSources        int               `json:"total_sources"`
}

// QuestionTexts returns the non-empty question strings in order.
func QuestionTexts(subQuestions []SubQuestion) []string {
	out := make([]string, 0, len(subQuestions))
	for _, sq := range subQuestions {
		if sq.Question != "" {
			out = append(out, sq.Question)
		}
	}
	return out
}
