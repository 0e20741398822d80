// Package domain contains core domain types for the cogniplay engine.
package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SessionStatus describes the lifecycle state of a game session.
type SessionStatus string

const (
	// StatusActive indicates the session is in progress and resumable.
	StatusActive SessionStatus = "active"
	// StatusCompleted indicates the session reached a natural end.
	StatusCompleted SessionStatus = "completed"
	// StatusAbandoned indicates the session was exited or discarded early.
	StatusAbandoned SessionStatus = "abandoned"
)

// ErrEmptyGameID indicates a missing game ID.
var ErrEmptyGameID = errors.New("game id is required")

// Snapshot holds game-specific progress counters persisted with a session.
// Keys are flat; values round-trip through JSON, so numeric reads must
// tolerate float64.
type Snapshot map[string]any

// Merge overlays partial onto the snapshot. Merging the same partial
// twice yields the same result as merging it once.
func (s Snapshot) Merge(partial Snapshot) {
	for k, v := range partial {
		s[k] = v
	}
}

// Clone returns a shallow copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	c := make(Snapshot, len(s))
	for k, v := range s {
		c[k] = v
	}
	return c
}

// Int reads a numeric snapshot value, tolerating the types JSON decoding
// produces. Missing or non-numeric values read as 0.
func (s Snapshot) Int(key string) int {
	switch v := s[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

// GameSession is the durable record of one play session.
type GameSession struct {
	ID               string        `json:"id"`
	GameID           string        `json:"game_id"`
	ActorID          string        `json:"actor_id,omitempty"` // empty for ephemeral trial play
	Level            int           `json:"level"`
	Score            int           `json:"score"`
	Status           SessionStatus `json:"status"`
	Snapshot         Snapshot      `json:"performance_snapshot,omitempty"`
	StartedAt        time.Time     `json:"started_at"`
	LastCheckpointAt time.Time     `json:"last_checkpoint_at"`
}

// Ephemeral reports whether the session belongs to unauthenticated trial
// play and must never touch the store.
func (s *GameSession) Ephemeral() bool {
	return s.ActorID == ""
}

// Finished reports whether the session reached a terminal status.
func (s *GameSession) Finished() bool {
	return s.Status == StatusCompleted || s.Status == StatusAbandoned
}

// NewSessionInput describes the metadata needed to open a session.
type NewSessionInput struct {
	GameID       string
	ActorID      string
	InitialLevel int
}

// NewSession creates a session record with a generated ID and timestamps.
// The session starts ACTIVE at the requested level (minimum 1).
func NewSession(input NewSessionInput, now func() time.Time, idGenerator func() string) (*GameSession, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = uuid.NewString
	}

	input.GameID = strings.TrimSpace(input.GameID)
	if input.GameID == "" {
		return nil, ErrEmptyGameID
	}
	if input.InitialLevel < 1 {
		input.InitialLevel = 1
	}

	createdAt := now().UTC()
	return &GameSession{
		ID:               idGenerator(),
		GameID:           input.GameID,
		ActorID:          strings.TrimSpace(input.ActorID),
		Level:            input.InitialLevel,
		Score:            0,
		Status:           StatusActive,
		Snapshot:         Snapshot{},
		StartedAt:        createdAt,
		LastCheckpointAt: createdAt,
	}, nil
}

// Validate checks session invariants before persistence.
func (s *GameSession) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("session id is required")
	}
	if s.GameID == "" {
		return ErrEmptyGameID
	}
	if s.Level < 1 {
		return fmt.Errorf("level must be >= 1, got %d", s.Level)
	}
	if s.Score < 0 {
		return fmt.Errorf("score must be >= 0, got %d", s.Score)
	}
	return nil
}
