package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mgoretti/cogniplay/internal/domain"
	"github.com/mgoretti/cogniplay/internal/store"
)

// DefaultResumeGrace excludes sessions checkpointed within the last few
// seconds: those are assumed live in another tab, and resuming them
// would race the owner.
const DefaultResumeGrace = 5 * time.Second

// ErrNotResumable indicates the session is not active or is still being
// written by a live engine instance.
var ErrNotResumable = errors.New("session is not resumable")

// Locator finds unfinished sessions for an actor and game and resolves
// them by resume or discard. It never auto-resumes: the player must
// choose explicitly.
type Locator struct {
	repo  store.Repository
	now   func() time.Time
	grace time.Duration
}

// NewLocator creates a recovery locator.
func NewLocator(repo store.Repository) *Locator {
	return &Locator{repo: repo, now: time.Now, grace: DefaultResumeGrace}
}

// WithGrace overrides the resumable grace period.
func (l *Locator) WithGrace(grace time.Duration) *Locator {
	l.grace = grace
	return l
}

// WithNow overrides the time source.
func (l *Locator) WithNow(now func() time.Time) *Locator {
	l.now = now
	return l
}

// FindUnfinished returns active sessions for the actor and game whose
// last checkpoint is older than the grace period.
func (l *Locator) FindUnfinished(ctx context.Context, actorID, gameID string) ([]*domain.GameSession, error) {
	if actorID == "" {
		// Ephemeral trial play leaves nothing behind to recover.
		return nil, nil
	}
	sessions, err := l.repo.FindSessions(ctx, actorID, gameID, domain.StatusActive)
	if err != nil {
		return nil, fmt.Errorf("find unfinished sessions: %w", err)
	}

	cutoff := l.now().Add(-l.grace)
	resumable := sessions[:0]
	for _, s := range sessions {
		if s.LastCheckpointAt.Before(cutoff) {
			resumable = append(resumable, s)
		}
	}
	return resumable, nil
}

// Resume rehydrates a session's state and re-opens a lifecycle manager
// against the same session id.
func (l *Locator) Resume(ctx context.Context, sessionID string, opts ...Option) (*Manager, EngineState, error) {
	record, err := l.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, EngineState{}, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	if record.Status != domain.StatusActive {
		return nil, EngineState{}, ErrNotResumable
	}
	if record.LastCheckpointAt.After(l.now().Add(-l.grace)) {
		return nil, EngineState{}, ErrNotResumable
	}

	mgr, err := Open(l.repo, record, opts...)
	if err != nil {
		return nil, EngineState{}, err
	}
	return mgr, Rehydrate(record), nil
}

// Discard marks a session abandoned without rehydration.
func (l *Locator) Discard(ctx context.Context, sessionID string) error {
	record, err := l.repo.GetSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("load session %s: %w", sessionID, err)
	}
	if record.Finished() {
		return nil
	}
	record.Status = domain.StatusAbandoned
	record.LastCheckpointAt = l.now().UTC()
	if err := l.repo.UpdateSession(ctx, record); err != nil {
		return fmt.Errorf("discard session %s: %w", sessionID, err)
	}
	return nil
}
