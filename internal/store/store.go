// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/mgoretti/cogniplay/internal/domain"
)

// ErrNotFound indicates the requested row does not exist.
var ErrNotFound = errors.New("not found")

// Repository defines the interface for persisting sessions and
// behavioral metrics. Session rows are updated last-write-wins by id;
// metric rows are append-only.
type Repository interface {
	// CreateSession inserts a new session row.
	CreateSession(ctx context.Context, session *domain.GameSession) error

	// GetSession retrieves a session by id.
	GetSession(ctx context.Context, sessionID string) (*domain.GameSession, error)

	// UpdateSession overwrites the mutable fields of a session row
	// (level, score, status, snapshot, last checkpoint time).
	UpdateSession(ctx context.Context, session *domain.GameSession) error

	// FindSessions returns sessions for an actor and game with the
	// given status, most recently checkpointed first.
	FindSessions(ctx context.Context, actorID, gameID string, status domain.SessionStatus) ([]*domain.GameSession, error)

	// AbandonStale marks active sessions not checkpointed since the
	// threshold as abandoned, returning how many rows changed.
	AbandonStale(ctx context.Context, threshold time.Time) (int64, error)

	// AppendMetric inserts one behavioral metric row.
	AppendMetric(ctx context.Context, metric *domain.BehavioralMetric) error

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
