// Package session owns the durable lifecycle of a game session:
// opening it against the store, rate-limited checkpoints, recovery of
// unfinished sessions, and terminal completion or abandonment.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mgoretti/cogniplay/internal/domain"
	"github.com/mgoretti/cogniplay/internal/store"
)

var (
	// ErrSessionConflict indicates an unresolved active session already
	// exists for the same actor and game; the caller must resolve it via
	// the recovery locator before starting a new one.
	ErrSessionConflict = errors.New("active session exists for actor and game")
	// ErrSessionFinished indicates the session reached a terminal state
	// and accepts no further writes.
	ErrSessionFinished = errors.New("session already finished")
)

// DefaultCheckpointInterval is the minimum spacing between interim
// checkpoint writes. Significant events (round completion) bypass it.
const DefaultCheckpointInterval = 10 * time.Second

// Manager owns one session record and serializes its durable writes.
// Checkpoint writes are asynchronous and latest-wins: a new checkpoint
// supersedes a pending one rather than racing it. A nil repository puts
// the manager in ephemeral mode: the full lifecycle runs in memory and
// nothing is persisted.
type Manager struct {
	repo        store.Repository
	now         func() time.Time
	minInterval time.Duration

	mu        sync.Mutex
	session   *domain.GameSession
	seq       uint64 // checkpoint generation, for supersede detection
	flushed   uint64 // last generation durably written
	inflight  bool
	scheduled *time.Timer
	lastWrite time.Time
	finished  bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithCheckpointInterval overrides the minimum checkpoint spacing.
func WithCheckpointInterval(d time.Duration) Option {
	return func(m *Manager) { m.minInterval = d }
}

// Start opens a new session. It fails with ErrSessionConflict when an
// unresolved active session exists for the same actor and game, and
// with a wrapped store error when the create write fails: a failed
// start is fatal and the caller must not proceed.
//
// An empty ActorID selects ephemeral trial mode: the session runs the
// same state machine but performs no persistence calls.
func Start(ctx context.Context, repo store.Repository, input domain.NewSessionInput, opts ...Option) (*Manager, error) {
	m := &Manager{now: time.Now, minInterval: DefaultCheckpointInterval}
	for _, opt := range opts {
		opt(m)
	}

	session, err := domain.NewSession(input, m.now, nil)
	if err != nil {
		return nil, err
	}
	m.session = session

	if session.Ephemeral() {
		return m, nil
	}
	if repo == nil {
		return nil, fmt.Errorf("start session: repository is required for actor %q", input.ActorID)
	}
	m.repo = repo

	existing, err := repo.FindSessions(ctx, session.ActorID, session.GameID, domain.StatusActive)
	if err != nil {
		return nil, fmt.Errorf("check active sessions: %w", err)
	}
	if len(existing) > 0 {
		return nil, ErrSessionConflict
	}

	if err := repo.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}
	m.lastWrite = m.now()
	return m, nil
}

// Open re-opens a manager against an existing active session record,
// keeping its id. Used by the recovery locator on resume.
func Open(repo store.Repository, session *domain.GameSession, opts ...Option) (*Manager, error) {
	if session == nil {
		return nil, fmt.Errorf("open session: record is required")
	}
	if session.Finished() {
		return nil, ErrSessionFinished
	}
	m := &Manager{
		repo:        repo,
		now:         time.Now,
		minInterval: DefaultCheckpointInterval,
		session:     session,
	}
	for _, opt := range opts {
		opt(m)
	}
	if session.Ephemeral() {
		m.repo = nil
	}
	return m, nil
}

// Session returns a copy of the current session record.
func (m *Manager) Session() domain.GameSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := *m.session
	s.Snapshot = m.session.Snapshot.Clone()
	return s
}

// ID returns the session id.
func (m *Manager) ID() string { return m.session.ID }

// Checkpoint merges partial into the performance snapshot and schedules
// a durable write. Writes are rate-limited to the minimum interval
// unless significant is set (round completion). Identical redundant
// calls are safe; a write failure is retried at the next tick and never
// interrupts gameplay.
func (m *Manager) Checkpoint(ctx context.Context, level, score int, partial domain.Snapshot, significant bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.finished {
		return ErrSessionFinished
	}

	m.session.Level = level
	m.session.Score = score
	m.session.Snapshot.Merge(partial)
	m.session.LastCheckpointAt = m.now().UTC()
	m.seq++

	if m.repo == nil {
		return nil
	}

	if significant || m.now().Sub(m.lastWrite) >= m.minInterval {
		m.flushLocked()
	} else {
		m.scheduleFlushLocked()
	}
	return nil
}

// ForceFlush writes the current snapshot synchronously, ignoring the
// rate limit. Used on pending unload/navigation.
func (m *Manager) ForceFlush(ctx context.Context) error {
	m.mu.Lock()
	if m.finished || m.repo == nil {
		m.mu.Unlock()
		return nil
	}
	snapshot, seq := m.copySessionLocked(), m.seq
	m.mu.Unlock()

	if err := m.repo.UpdateSession(ctx, snapshot); err != nil {
		return fmt.Errorf("force flush: %w", err)
	}

	m.mu.Lock()
	m.lastWrite = m.now()
	if seq > m.flushed {
		m.flushed = seq
	}
	m.mu.Unlock()
	return nil
}

// Complete transitions the session to completed with the final
// snapshot. Terminal: later checkpoints return ErrSessionFinished.
func (m *Manager) Complete(ctx context.Context, level, score int, final domain.Snapshot) error {
	return m.finish(ctx, domain.StatusCompleted, level, score, final)
}

// Abandon transitions the session to abandoned with whatever snapshot
// was last checkpointed. Terminal.
func (m *Manager) Abandon(ctx context.Context) error {
	m.mu.Lock()
	level, score := m.session.Level, m.session.Score
	m.mu.Unlock()
	return m.finish(ctx, domain.StatusAbandoned, level, score, nil)
}

func (m *Manager) finish(ctx context.Context, status domain.SessionStatus, level, score int, final domain.Snapshot) error {
	m.mu.Lock()
	if m.finished {
		m.mu.Unlock()
		return ErrSessionFinished
	}
	m.finished = true
	if m.scheduled != nil {
		m.scheduled.Stop()
		m.scheduled = nil
	}

	m.session.Level = level
	m.session.Score = score
	if final != nil {
		m.session.Snapshot.Merge(final)
	}
	m.session.Status = status
	m.session.LastCheckpointAt = m.now().UTC()
	snapshot := m.copySessionLocked()
	m.mu.Unlock()

	if m.repo == nil {
		return nil
	}
	if err := m.repo.UpdateSession(ctx, snapshot); err != nil {
		return fmt.Errorf("finish session %s as %s: %w", snapshot.ID, status, err)
	}
	return nil
}

// flushLocked starts an asynchronous write of the current state. A
// write already in flight is superseded: the new state is picked up by
// the completion handler via the generation counter.
func (m *Manager) flushLocked() {
	if m.inflight {
		return
	}
	m.inflight = true
	snapshot, seq := m.copySessionLocked(), m.seq

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := m.repo.UpdateSession(ctx, snapshot)

		m.mu.Lock()
		defer m.mu.Unlock()
		m.inflight = false

		if err != nil {
			// Transient: retried at the next scheduled tick, gameplay
			// is never interrupted by a storage failure.
			slog.Warn("Checkpoint write failed, will retry",
				"error", err, "session_id", snapshot.ID)
			if !m.finished {
				m.scheduleFlushLocked()
			}
			return
		}

		m.lastWrite = m.now()
		if seq > m.flushed {
			m.flushed = seq
		}
		// State superseded while the write was in flight: flush it now
		// rather than waiting out the interval, or a round-completion
		// checkpoint could sit unwritten for the full interval.
		if m.seq > m.flushed && !m.finished {
			m.flushLocked()
		}
	}()
}

// scheduleFlushLocked arms a deferred flush at the next allowed tick.
func (m *Manager) scheduleFlushLocked() {
	if m.scheduled != nil {
		return
	}
	wait := m.minInterval - m.now().Sub(m.lastWrite)
	if wait < 0 {
		wait = 0
	}
	m.scheduled = time.AfterFunc(wait, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.scheduled = nil
		if m.finished || m.seq == m.flushed {
			return
		}
		m.flushLocked()
	})
}

func (m *Manager) copySessionLocked() *domain.GameSession {
	s := *m.session
	s.Snapshot = m.session.Snapshot.Clone()
	return &s
}
