package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// ArchiveConfig holds the session archive database configuration.
type ArchiveConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

// DSN renders the lib/pq connection string.
func (c ArchiveConfig) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, sslMode)
}

// ArchivedSession is a completed session row.
type ArchivedSession struct {
	SessionID   string    `db:"session_id" json:"session_id"`
	Query       string    `db:"query" json:"query"`
	Status      string    `db:"status" json:"status"`
	Report      string    `db:"report" json:"report"`
	Outputs     []byte    `db:"outputs" json:"-"`
	SourceCount int       `db:"source_count" json:"source_count"`
	ArchivedAt  time.Time `db:"archived_at" json:"archived_at"`
}

// Archive persists completed session records to Postgres so they
// survive process restarts and fact store resets.
type Archive struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewArchive opens a connection pool and verifies it.
func NewArchive(cfg ArchiveConfig, logger *zap.Logger) (*Archive, error) {
	db, err := sqlx.Connect("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("archive: connect: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archive{db: db, logger: logger}, nil
}

// NewArchiveWithDB wraps an existing connection. Used in tests.
func NewArchiveWithDB(db *sqlx.DB, logger *zap.Logger) *Archive {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archive{db: db, logger: logger}
}

// Save upserts a completed session. Outputs are stored as JSONB.
func (a *Archive) Save(ctx context.Context, sessionID, query, status, report string, outputs map[string]interface{}, sourceCount int) error {
	payload, err := json.Marshal(outputs)
	if err != nil {
		return fmt.Errorf("archive: marshal outputs: %w", err)
	}

	_, err = a.db.ExecContext(ctx, `
		INSERT INTO research_sessions (session_id, query, status, report, outputs, source_count, archived_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (session_id) DO UPDATE SET
			status = EXCLUDED.status,
			report = EXCLUDED.report,
			outputs = EXCLUDED.outputs,
			source_count = EXCLUDED.source_count,
			archived_at = NOW()`,
		sessionID, query, status, report, payload, sourceCount)
	if err != nil {
		return fmt.Errorf("archive: save session: %w", err)
	}

	a.logger.Debug("Session archived",
		zap.String("session_id", sessionID),
		zap.String("status", status),
	)
	return nil
}

// Get fetches an archived session by id.
func (a *Archive) Get(ctx context.Context, sessionID string) (*ArchivedSession, error) {
	var row ArchivedSession
	err := a.db.GetContext(ctx, &row,
		`SELECT session_id, query, status, report, outputs, source_count, archived_at
		 FROM research_sessions WHERE session_id = $1`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("archive: get session: %w", err)
	}
	return &row, nil
}

// Recent lists the most recently archived sessions.
func (a *Archive) Recent(ctx context.Context, limit int) ([]ArchivedSession, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []ArchivedSession
	err := a.db.SelectContext(ctx, &rows,
		`SELECT session_id, query, status, report, outputs, source_count, archived_at
		 FROM research_sessions ORDER BY archived_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("archive: list sessions: %w", err)
	}
	return rows, nil
}

// Close releases the connection pool.
func (a *Archive) Close() error { return a.db.Close() }
