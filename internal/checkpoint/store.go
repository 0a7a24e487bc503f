// Package checkpoint persists per-session state snapshots to disk as
// JSON files so long-running research can be paused and resumed.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/helicon-ai/inquiro/internal/metrics"
)

// Snapshot wraps the checkpointed state with its save time.
type Snapshot struct {
	SavedAt time.Time              `json:"saved_at"`
	State   map[string]interface{} `json:"state"`
}

// Store writes one JSON file per session under a directory.
type Store struct {
	dir    string
	logger *zap.Logger
}

// NewStore creates the checkpoint directory if needed.
func NewStore(dir string, logger *zap.Logger) (*Store, error) {
	if dir == "" {
		dir = "./checkpoints"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("checkpoint: create dir: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{dir: dir, logger: logger}, nil
}

// Save writes the session state atomically and returns the file path.
func (s *Store) Save(sessionID string, state map[string]interface{}) (string, error) {
	snap := Snapshot{SavedAt: time.Now(), State: state}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		metrics.CheckpointSaves.WithLabelValues("error").Inc()
		return "", fmt.Errorf("checkpoint: marshal: %w", err)
	}

	path := s.path(sessionID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		metrics.CheckpointSaves.WithLabelValues("error").Inc()
		return "", fmt.Errorf("checkpoint: write: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		metrics.CheckpointSaves.WithLabelValues("error").Inc()
		return "", fmt.Errorf("checkpoint: rename: %w", err)
	}

	metrics.CheckpointSaves.WithLabelValues("ok").Inc()
	s.logger.Debug("Checkpoint saved", zap.String("session_id", sessionID))
	return path, nil
}

// Load returns the saved state, or nil when no checkpoint exists.
func (s *Store) Load(sessionID string) (map[string]interface{}, error) {
	data, err := os.ReadFile(s.path(sessionID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("checkpoint: read: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("checkpoint: unmarshal: %w", err)
	}
	return snap.State, nil
}

// List returns the session ids that have a checkpoint on disk.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: list: %w", err)
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if strings.HasSuffix(name, ".json") {
			ids = append(ids, strings.TrimSuffix(name, ".json"))
		}
	}
	return ids, nil
}

// Delete removes a checkpoint. Missing files are not an error.
func (s *Store) Delete(sessionID string) error {
	err := os.Remove(s.path(sessionID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("checkpoint: delete: %w", err)
	}
	return nil
}

func (s *Store) path(sessionID string) string {
	return filepath.Join(s.dir, sessionID+".json")
}
