package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mgoretti/cogniplay/internal/domain"
	"github.com/mgoretti/cogniplay/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db        *sql.DB
	sessionMu sync.Mutex // serializes session writes to prevent SQLITE_BUSY
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS game_sessions (
		session_id TEXT PRIMARY KEY,
		game_id TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		level INTEGER NOT NULL DEFAULT 1,
		score INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		snapshot_json TEXT,
		started_at INTEGER NOT NULL,
		last_checkpoint_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_lookup ON game_sessions(actor_id, game_id, status);
	CREATE INDEX IF NOT EXISTS idx_sessions_checkpoint ON game_sessions(last_checkpoint_at) WHERE status = 'active';

	CREATE TABLE IF NOT EXISTS behavioral_metrics (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		game_id TEXT NOT NULL,
		metric_type TEXT NOT NULL,
		category TEXT NOT NULL,
		value REAL NOT NULL,
		context_json TEXT,
		recorded_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_metrics_session ON behavioral_metrics(session_id);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateSession inserts a new session row.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *domain.GameSession) error {
	if err := session.Validate(); err != nil {
		return fmt.Errorf("validate session: %w", err)
	}

	snapshotJSON, err := marshalSnapshot(session.Snapshot)
	if err != nil {
		return err
	}

	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()

	query := `
	INSERT INTO game_sessions (session_id, game_id, actor_id, level, score, status, snapshot_json, started_at, last_checkpoint_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, query,
		session.ID, session.GameID, session.ActorID,
		session.Level, session.Score, string(session.Status), snapshotJSON,
		session.StartedAt.Unix(), session.LastCheckpointAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by id.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*domain.GameSession, error) {
	query := `
		SELECT session_id, game_id, actor_id, level, score, status, snapshot_json, started_at, last_checkpoint_at
		FROM game_sessions WHERE session_id = ?`

	row := s.db.QueryRowContext(ctx, query, sessionID)
	session, err := scanSession(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}
	return session, nil
}

// UpdateSession overwrites the mutable fields of a session row. Retries
// with exponential backoff on SQLITE_BUSY.
func (s *SQLiteStore) UpdateSession(ctx context.Context, session *domain.GameSession) error {
	maxRetries := 3
	baseDelay := 100 * time.Millisecond

	for i := 0; i < maxRetries; i++ {
		err := s.updateSessionOnce(ctx, session)
		if err == nil {
			return nil
		}

		if shared.IsSQLiteConflictError(err) && i < maxRetries-1 {
			delay := baseDelay * time.Duration(1<<i) // 100ms, 200ms, 400ms
			slog.Debug("UpdateSession hit SQLITE_BUSY, retrying",
				"session_id", session.ID,
				"attempt", i+1,
				"delay", delay)
			time.Sleep(delay)
			continue
		}

		return fmt.Errorf("update session %s: %w", session.ID, err)
	}
	return nil
}

func (s *SQLiteStore) updateSessionOnce(ctx context.Context, session *domain.GameSession) error {
	snapshotJSON, err := marshalSnapshot(session.Snapshot)
	if err != nil {
		return err
	}

	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()

	query := `
	UPDATE game_sessions
	SET level = ?, score = ?, status = ?, snapshot_json = ?, last_checkpoint_at = ?
	WHERE session_id = ?`

	result, err := s.db.ExecContext(ctx, query,
		session.Level, session.Score, string(session.Status), snapshotJSON,
		session.LastCheckpointAt.Unix(), session.ID,
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// FindSessions returns sessions for an actor and game with the given
// status, most recently checkpointed first.
func (s *SQLiteStore) FindSessions(ctx context.Context, actorID, gameID string, status domain.SessionStatus) ([]*domain.GameSession, error) {
	query := `
		SELECT session_id, game_id, actor_id, level, score, status, snapshot_json, started_at, last_checkpoint_at
		FROM game_sessions
		WHERE actor_id = ? AND game_id = ? AND status = ?
		ORDER BY last_checkpoint_at DESC`

	rows, err := s.db.QueryContext(ctx, query, actorID, gameID, string(status))
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close session rows", "error", closeErr)
		}
	}()

	var sessions []*domain.GameSession
	for rows.Next() {
		session, err := scanSession(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// AbandonStale marks active sessions not checkpointed since the
// threshold as abandoned.
func (s *SQLiteStore) AbandonStale(ctx context.Context, threshold time.Time) (int64, error) {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()

	query := `UPDATE game_sessions SET status = ? WHERE status = ? AND last_checkpoint_at < ?`
	result, err := s.db.ExecContext(ctx, query,
		string(domain.StatusAbandoned), string(domain.StatusActive), threshold.Unix())
	if err != nil {
		return 0, fmt.Errorf("abandon stale sessions: %w", err)
	}
	return result.RowsAffected()
}

// AppendMetric inserts one behavioral metric row.
func (s *SQLiteStore) AppendMetric(ctx context.Context, metric *domain.BehavioralMetric) error {
	contextJSON, err := json.Marshal(metric.Context)
	if err != nil {
		return fmt.Errorf("marshal metric context: %w", err)
	}

	query := `
	INSERT INTO behavioral_metrics (session_id, game_id, metric_type, category, value, context_json, recorded_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, query,
		metric.SessionID, metric.GameID, metric.MetricType, metric.Category,
		metric.Value, string(contextJSON), metric.RecordedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert metric: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

func scanSession(scan func(dest ...any) error) (*domain.GameSession, error) {
	var session domain.GameSession
	var status string
	var snapshotJSON sql.NullString
	var startedAt, lastCheckpointAt int64

	err := scan(
		&session.ID, &session.GameID, &session.ActorID,
		&session.Level, &session.Score, &status, &snapshotJSON,
		&startedAt, &lastCheckpointAt,
	)
	if err != nil {
		return nil, err
	}

	session.Status = domain.SessionStatus(status)
	session.StartedAt = time.Unix(startedAt, 0).UTC()
	session.LastCheckpointAt = time.Unix(lastCheckpointAt, 0).UTC()
	session.Snapshot = domain.Snapshot{}
	if snapshotJSON.Valid && snapshotJSON.String != "" {
		if err := json.Unmarshal([]byte(snapshotJSON.String), &session.Snapshot); err != nil {
			return nil, fmt.Errorf("unmarshal snapshot: %w", err)
		}
	}
	return &session, nil
}

func marshalSnapshot(snapshot domain.Snapshot) (string, error) {
	if snapshot == nil {
		return "", nil
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}
	return string(data), nil
}
