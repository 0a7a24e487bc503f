package memory

import (
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/helicon-ai/inquiro/internal/metrics"
	"github.com/helicon-ai/inquiro/internal/research"
)

// Fact categories.
const (
	CategoryGeneral = "general"
	CategorySource  = "source"
	CategorySession = "session"
)

// Fact is a single record in the fact store.
type Fact struct {
	ID         int                    `json:"id"`
	Content    string                 `json:"content"`
	Category   string                 `json:"category"`
	Importance float64                `json:"importance"`
	Metadata   map[string]interface{} `json:"metadata"`
	CreatedAt  time.Time              `json:"created_at"`
}

// Statistics summarizes the fact store contents.
type Statistics struct {
	TotalFacts        int     `json:"total_facts"`
	AvgImportance     float64 `json:"avg_importance"`
	CompletedSessions int     `json:"completed_sessions"`
	TotalSources      int     `json:"total_sources"`
}

// FactStore is an append-only in-memory store of research facts.
// IDs are assigned sequentially starting at 1.
type FactStore struct {
	mu     sync.RWMutex
	facts  []Fact
	logger *zap.Logger
}

// NewFactStore returns an empty fact store.
func NewFactStore(logger *zap.Logger) *FactStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FactStore{logger: logger}
}

// Store appends a fact and returns the stored record.
func (s *FactStore) Store(content, category string, importance float64, metadata map[string]interface{}) Fact {
	if category == "" {
		category = CategoryGeneral
	}
	if metadata == nil {
		metadata = map[string]interface{}{}
	}

	s.mu.Lock()
	fact := Fact{
		ID:         len(s.facts) + 1,
		Content:    content,
		Category:   category,
		Importance: importance,
		Metadata:   metadata,
		CreatedAt:  time.Now(),
	}
	s.facts = append(s.facts, fact)
	s.mu.Unlock()

	metrics.FactsStored.WithLabelValues(category).Inc()
	return fact
}

// StoreSource records a discovered source. The source's relevance score
// becomes the fact's importance.
func (s *FactStore) StoreSource(src research.Source) {
	meta := map[string]interface{}{
		"url":   src.URL,
		"title": src.Title,
	}
	for k, v := range src.Metadata {
		meta[k] = v
	}
	s.Store(src.Content, CategorySource, src.RelevanceScore, meta)
}

// StoreSessionRecord records a completed session summary at maximum importance.
func (s *FactStore) StoreSessionRecord(sessionID, summary string) Fact {
	if len(summary) > 1000 {
		summary = summary[:1000]
	}
	return s.Store(summary, CategorySession, 1.0, map[string]interface{}{
		"session_id": sessionID,
	})
}

// Related returns up to limit facts whose content contains the query,
// case-insensitively, in insertion order.
func (s *FactStore) Related(query string, limit int) []Fact {
	if limit <= 0 {
		limit = 5
	}
	needle := strings.ToLower(query)

	s.mu.RLock()
	defer s.mu.RUnlock()
	var matches []Fact
	for _, f := range s.facts {
		if strings.Contains(strings.ToLower(f.Content), needle) {
			matches = append(matches, f)
			if len(matches) == limit {
				break
			}
		}
	}
	return matches
}

// Stats computes summary statistics over all stored facts.
func (s *FactStore) Stats() Statistics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Statistics{TotalFacts: len(s.facts)}
	if len(s.facts) == 0 {
		return stats
	}
	var sum float64
	for _, f := range s.facts {
		sum += f.Importance
		switch f.Category {
		case CategorySession:
			stats.CompletedSessions++
		case CategorySource:
			stats.TotalSources++
		}
	}
	stats.AvgImportance = sum / float64(len(s.facts))
	return stats
}
