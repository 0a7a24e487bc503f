package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/helicon-ai/inquiro/internal/metrics"
)

// ErrNotFound is returned when a session id is unknown.
var ErrNotFound = fmt.Errorf("session not found")

// Store persists sessions in Redis with a local read cache.
type Store struct {
	client      *redis.Client
	logger      *zap.Logger
	ttl         time.Duration
	mu          sync.RWMutex
	localCache  map[string]*Session
	cacheAccess map[string]time.Time
	maxSessions int
}

// NewStore connects to Redis and verifies the connection.
func NewStore(redisAddr, redisPassword string, logger *zap.Logger) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         redisAddr,
		Password:     redisPassword,
		DB:           0,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		client:      client,
		logger:      logger,
		ttl:         24 * time.Hour,
		localCache:  make(map[string]*Session),
		cacheAccess: make(map[string]time.Time),
		maxSessions: 10000,
	}, nil
}

// Create registers a new pending session for the query.
func (s *Store) Create(ctx context.Context, query string) (*Session, error) {
	now := time.Now()
	sess := &Session{
		ID:           uuid.New().String(),
		Query:        query,
		Status:       StatusPending,
		CurrentStage: StagePlanning,
		Outputs:      make(map[string]interface{}),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.save(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	s.mu.Lock()
	s.localCache[sess.ID] = sess
	s.cacheAccess[sess.ID] = now
	s.cleanupLocalCache()
	metrics.SessionCacheSize.Set(float64(len(s.localCache)))
	s.mu.Unlock()

	s.logger.Info("Created session",
		zap.String("session_id", sess.ID),
		zap.String("query", query),
	)
	metrics.SessionsCreated.Inc()
	return sess, nil
}

// Get returns the session, preferring the local cache.
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	s.mu.RLock()
	cached, ok := s.localCache[sessionID]
	s.mu.RUnlock()
	if ok {
		s.mu.Lock()
		s.cacheAccess[sessionID] = time.Now()
		s.mu.Unlock()
		metrics.SessionCacheHits.Inc()
		return cached, nil
	}
	metrics.SessionCacheMisses.Inc()

	data, err := s.client.Get(ctx, s.key(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	s.mu.Lock()
	s.localCache[sessionID] = &sess
	s.cacheAccess[sessionID] = time.Now()
	s.cleanupLocalCache()
	metrics.SessionCacheSize.Set(float64(len(s.localCache)))
	s.mu.Unlock()
	return &sess, nil
}

// AdvanceStage moves the session forward to the given stage. Backward
// transitions are rejected.
func (s *Store) AdvanceStage(ctx context.Context, sessionID string, stage Stage) error {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if stageOrder[stage] < stageOrder[sess.CurrentStage] {
		return fmt.Errorf("cannot move session %s backward from %s to %s",
			sessionID, sess.CurrentStage, stage)
	}
	sess.CurrentStage = stage
	sess.UpdatedAt = time.Now()
	return s.update(ctx, sess)
}

// Restart rewinds an unfinished session to the planning stage so a
// resumed run can execute the pipeline from the start. This is the one
// sanctioned backward stage move; completed sessions are left alone.
func (s *Store) Restart(ctx context.Context, sessionID string) error {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.Status == StatusCompleted {
		return fmt.Errorf("cannot restart completed session %s", sessionID)
	}
	sess.CurrentStage = StagePlanning
	sess.Status = StatusPending
	sess.Error = ""
	sess.ClosedAt = nil
	sess.UpdatedAt = time.Now()
	s.logger.Info("Session rewound for restart", zap.String("session_id", sessionID))
	return s.update(ctx, sess)
}

// SetStatus updates the lifecycle status. An error message may
// accompany StatusError.
func (s *Store) SetStatus(ctx context.Context, sessionID string, status Status, errMsg string) error {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	sess.Status = status
	sess.Error = errMsg
	sess.UpdatedAt = time.Now()
	if sess.Terminal() {
		now := time.Now()
		sess.ClosedAt = &now
	}
	return s.update(ctx, sess)
}

// SetOutput records a named agent output on the session.
func (s *Store) SetOutput(ctx context.Context, sessionID, agentName string, output interface{}) error {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.Outputs == nil {
		sess.Outputs = make(map[string]interface{})
	}
	sess.Outputs[agentName] = output
	sess.UpdatedAt = time.Now()
	return s.update(ctx, sess)
}

// Delete removes a session from Redis and the local cache.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	s.mu.Lock()
	delete(s.localCache, sessionID)
	delete(s.cacheAccess, sessionID)
	metrics.SessionCacheSize.Set(float64(len(s.localCache)))
	s.mu.Unlock()
	return nil
}

// Close releases the Redis client.
func (s *Store) Close() error { return s.client.Close() }

func (s *Store) key(sessionID string) string {
	return fmt.Sprintf("inquiro:session:%s", sessionID)
}

func (s *Store) update(ctx context.Context, sess *Session) error {
	if err := s.save(ctx, sess); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	s.mu.Lock()
	s.localCache[sess.ID] = sess
	s.cacheAccess[sess.ID] = time.Now()
	s.mu.Unlock()
	return nil
}

func (s *Store) save(ctx context.Context, sess *Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(sess.ID), data, s.ttl).Err()
}

// cleanupLocalCache evicts the oldest entries once the cache exceeds
// its bound. Caller must hold the write lock.
func (s *Store) cleanupLocalCache() {
	if len(s.localCache) <= s.maxSessions {
		return
	}
	type entry struct {
		id     string
		access time.Time
	}
	entries := make([]entry, 0, len(s.localCache))
	for id := range s.localCache {
		entries = append(entries, entry{id: id, access: s.cacheAccess[id]})
	}
	for i := 0; i < len(entries); i++ {
		for j := i + 1; j < len(entries); j++ {
			if entries[j].access.Before(entries[i].access) {
				entries[i], entries[j] = entries[j], entries[i]
			}
		}
	}
	toRemove := len(s.localCache) - s.maxSessions
	for i := 0; i < toRemove && i < len(entries); i++ {
		delete(s.localCache, entries[i].id)
		delete(s.cacheAccess, entries[i].id)
	}
}
