package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mgoretti/cogniplay/internal/domain"
)

// EventType labels events pushed to the presentation layer.
type EventType string

const (
	// EventPhase announces a phase transition.
	EventPhase EventType = "phase"
	// EventReveal carries one stimulus item becoming visible.
	EventReveal EventType = "reveal"
	// EventRound carries a new round's data.
	EventRound EventType = "round"
	// EventResult carries one attempt's outcome.
	EventResult EventType = "result"
	// EventState carries score/level/lives after feedback side effects.
	EventState EventType = "state"
	// EventGameOver announces the terminal state with final aggregates.
	EventGameOver EventType = "game_over"
)

// Event is pushed to the presentation layer on every externally
// visible change. Only the fields relevant to the Type are set.
type Event struct {
	Type      EventType             `json:"type"`
	Phase     string                `json:"phase,omitempty"`
	Item      *domain.Item          `json:"item,omitempty"`
	Last      bool                  `json:"last,omitempty"`
	Challenge *domain.Challenge     `json:"challenge,omitempty"`
	Attempt   *domain.AttemptRecord `json:"attempt,omitempty"`
	Correct   bool                  `json:"correct,omitempty"`
	Round     int                   `json:"round,omitempty"`
	Level     int                   `json:"level,omitempty"`
	Score     int                   `json:"score,omitempty"`
	Lives     int                   `json:"lives,omitempty"`
	Span      int                   `json:"span,omitempty"`
	Accuracy  float64               `json:"accuracy,omitempty"`
	Error     string                `json:"error,omitempty"`
}

// Lifecycle persists session progress. Satisfied by session.Manager;
// kept as an interface so engine tests run without a store.
type Lifecycle interface {
	Checkpoint(ctx context.Context, level, score int, partial domain.Snapshot, significant bool) error
	ForceFlush(ctx context.Context) error
	Complete(ctx context.Context, level, score int, final domain.Snapshot) error
	Abandon(ctx context.Context) error
}

// State is the engine's in-memory gameplay state, reconstructible from
// a session record via session.Rehydrate.
type State struct {
	Level              int
	Score              int
	Lives              int
	Round              int
	ConsecutiveCorrect int
	ConsecutiveErrors  int
	Moves              int
	CorrectMoves       int
	ReactionSumMs      int64
	Span               int
}

// Engine drives one session: it owns the phase machine and applies
// scoring, difficulty, metric, and checkpoint side effects on each
// round outcome. All entry points are serialized by a mutex; there is
// no parallelism within a session and only one round is ever in flight.
type Engine struct {
	profile    *domain.GameProfile
	clock      Clock
	generator  *Generator
	controller *Controller
	aggregator *Aggregator
	lifecycle  Lifecycle
	emit       func(Event)

	mu            sync.Mutex
	machineRef    *Machine
	level         int
	score         int
	lives         int
	round         int
	consecCorrect int
	consecErrors  int
	lastSignature string
	lastPhase     Phase
	pending       Timer
	finished      bool
}

// Deps carries the engine's collaborators.
type Deps struct {
	Clock     Clock
	Generator *Generator
	Lifecycle Lifecycle
	Metrics   *Aggregator
	Emit      func(Event)
}

// New creates an engine for one session. Emit may be nil when no
// presentation layer is attached (tests).
func New(profile *domain.GameProfile, deps Deps) *Engine {
	if deps.Clock == nil {
		deps.Clock = NewClock()
	}
	if deps.Generator == nil {
		deps.Generator = NewGenerator(profile, nil)
	}
	if deps.Emit == nil {
		deps.Emit = func(Event) {}
	}
	return &Engine{
		profile:    profile,
		clock:      deps.Clock,
		generator:  deps.Generator,
		controller: NewController(profile),
		aggregator: deps.Metrics,
		lifecycle:  deps.Lifecycle,
		emit:       deps.Emit,
		level:      1,
		lives:      profile.Lives,
	}
}

// Begin starts round 1 at the initial level on an explicit start action.
func (e *Engine) Begin(ctx context.Context, initialLevel int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if initialLevel >= 1 {
		e.level = e.profile.ClampLevel(initialLevel)
	}
	e.startRoundLocked(ctx)
}

// Resume restores state from a rehydrated session and starts the next
// round where the session left off.
func (e *Engine) Resume(ctx context.Context, st State) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.level = e.profile.ClampLevel(st.Level)
	e.score = st.Score
	e.lives = st.Lives
	if e.lives < 1 {
		e.lives = e.profile.Lives
	}
	e.round = st.Round
	e.consecCorrect = st.ConsecutiveCorrect
	e.consecErrors = st.ConsecutiveErrors
	if e.aggregator != nil {
		e.aggregator.Seed(st.CorrectMoves, st.Moves, st.ReactionSumMs, st.Span)
	}
	e.startRoundLocked(ctx)
}

// HandleInput feeds a discrete player action into the machine. Input
// outside the Input phase is ignored.
func (e *Engine) HandleInput(ctx context.Context, given string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.machineRef == nil || e.finished {
		return
	}
	effect, err := e.machineRef.OnInput(given)
	if err != nil {
		slog.Debug("Input ignored outside input phase",
			"game_id", e.profile.GameID, "phase", e.machineRef.Phase().String())
		return
	}
	e.applyEffectLocked(ctx, effect)
}

// Suspend halts gameplay without finishing the session: timers stop,
// the round in flight is discarded, and current progress is written
// through so the session stays active and resumable. Used when the
// connection drops or the tab closes without an explicit exit.
func (e *Engine) Suspend(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.finished {
		return
	}
	e.finished = true
	e.stopTimerLocked()
	if e.machineRef != nil {
		e.machineRef.Reset()
	}
	if e.lifecycle == nil {
		return
	}
	if err := e.lifecycle.Checkpoint(ctx, e.level, e.score, e.snapshotLocked(), false); err != nil {
		slog.Warn("Failed to checkpoint on suspend", "error", err, "game_id", e.profile.GameID)
	}
	if err := e.lifecycle.ForceFlush(ctx); err != nil {
		slog.Warn("Failed to flush on suspend", "error", err, "game_id", e.profile.GameID)
	}
}

// Exit cancels all pending timers and abandons the session, or
// completes it when the run already reached game over.
func (e *Engine) Exit(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.finished {
		return
	}
	e.finished = true
	e.stopTimerLocked()
	if e.machineRef != nil {
		e.machineRef.Reset()
	}
	if e.lifecycle != nil {
		if err := e.lifecycle.Abandon(ctx); err != nil {
			slog.Warn("Failed to abandon session on exit", "error", err, "game_id", e.profile.GameID)
		}
	}
}

// Snapshot returns the current gameplay state.
func (e *Engine) Snapshot() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stateLocked()
}

func (e *Engine) startRoundLocked(ctx context.Context) {
	if e.machineRef == nil {
		e.machineRef = NewMachine(e.profile, e.clock)
	}
	e.round++
	challenge := e.generator.Generate(e.level, e.lastSignature)
	e.lastSignature = challenge.Signature()
	if e.aggregator != nil {
		e.aggregator.ObserveLevel(e.level)
	}

	e.emit(Event{
		Type:      EventRound,
		Round:     e.round,
		Level:     e.level,
		Challenge: challenge,
	})

	effect := e.machineRef.StartRound(challenge)
	e.applyEffectLocked(ctx, effect)
}

func (e *Engine) applyEffectLocked(ctx context.Context, effect Effect) {
	if effect.Phase != e.lastPhase {
		e.lastPhase = effect.Phase
		e.emit(Event{Type: EventPhase, Phase: effect.Phase.String()})
	}

	if effect.Reveal != nil {
		e.emit(Event{Type: EventReveal, Item: &effect.Reveal.Item, Last: effect.Reveal.Last})
	}

	if effect.Attempt != nil && e.aggregator != nil {
		seqLen := 0
		if ch := e.machineRef.Challenge(); ch != nil {
			seqLen = len(ch.Items)
		}
		e.aggregator.Record(ctx, *effect.Attempt, e.level, e.round, seqLen, effect.Attempt.Step)
	}
	if effect.Attempt != nil {
		e.emit(Event{Type: EventResult, Attempt: effect.Attempt, Correct: effect.Attempt.IsCorrect})
	}

	if effect.Outcome != nil {
		e.applyOutcomeLocked(ctx, effect.Outcome)
	}

	if effect.FeedbackDone {
		e.afterFeedbackLocked(ctx)
		return
	}

	if effect.ArmTimer > 0 {
		e.armTimerLocked(ctx, effect.ArmTimer)
	}
}

// applyOutcomeLocked runs the feedback-entry side effects: scoring,
// lives, streaks, difficulty, and a significant checkpoint.
func (e *Engine) applyOutcomeLocked(ctx context.Context, outcome *RoundOutcome) {
	if outcome.Correct {
		e.score += e.profile.BaseReward * e.level
		e.consecCorrect++
		e.consecErrors = 0
	} else {
		e.score -= e.profile.FailurePenalty
		if e.score < 0 {
			e.score = 0
		}
		e.lives--
		e.consecErrors++
		e.consecCorrect = 0
	}

	e.level = e.controller.NextLevel(e.level, e.consecCorrect, e.consecErrors)
	if e.aggregator != nil {
		e.aggregator.ObserveLevel(e.level)
	}

	e.emitStateLocked()
	e.checkpointLocked(ctx, true)
}

func (e *Engine) afterFeedbackLocked(ctx context.Context) {
	if e.lives <= 0 {
		e.gameOverLocked(ctx)
		return
	}
	e.startRoundLocked(ctx)
}

func (e *Engine) gameOverLocked(ctx context.Context) {
	e.finished = true
	e.stopTimerLocked()
	e.machineRef.GameOver()

	span := 0
	accuracy := 0.0
	if e.aggregator != nil {
		e.aggregator.EmitSummary(ctx, e.level, e.round)
		span = e.aggregator.Span()
		accuracy = e.aggregator.Accuracy()
	}

	e.lastPhase = PhaseGameOver
	e.emit(Event{Type: EventPhase, Phase: PhaseGameOver.String()})
	e.emit(Event{
		Type:     EventGameOver,
		Level:    e.level,
		Score:    e.score,
		Round:    e.round,
		Span:     span,
		Accuracy: accuracy,
	})

	if e.lifecycle != nil {
		if err := e.lifecycle.Complete(ctx, e.level, e.score, e.snapshotLocked()); err != nil {
			slog.Warn("Failed to complete session", "error", err, "game_id", e.profile.GameID)
		}
	}
}

func (e *Engine) emitStateLocked() {
	e.emit(Event{
		Type:  EventState,
		Level: e.level,
		Score: e.score,
		Lives: e.lives,
		Round: e.round,
	})
}

func (e *Engine) checkpointLocked(ctx context.Context, significant bool) {
	if e.lifecycle == nil {
		return
	}
	if err := e.lifecycle.Checkpoint(ctx, e.level, e.score, e.snapshotLocked(), significant); err != nil {
		slog.Warn("Checkpoint rejected", "error", err, "game_id", e.profile.GameID)
	}
}

func (e *Engine) snapshotLocked() domain.Snapshot {
	snap := domain.Snapshot{
		"lives":  e.lives,
		"round":  e.round,
		"streak": e.consecCorrect,
		"errors": e.consecErrors,
	}
	if e.aggregator != nil {
		correct, total := e.aggregator.Totals()
		snap["moves"] = total
		snap["correct_moves"] = correct
		snap["reaction_sum_ms"] = e.aggregator.ReactionSumMs()
		snap["span"] = e.aggregator.Span()
	}
	return snap
}

func (e *Engine) stateLocked() State {
	st := State{
		Level:              e.level,
		Score:              e.score,
		Lives:              e.lives,
		Round:              e.round,
		ConsecutiveCorrect: e.consecCorrect,
		ConsecutiveErrors:  e.consecErrors,
	}
	if e.aggregator != nil {
		st.CorrectMoves, st.Moves = e.aggregator.Totals()
		st.ReactionSumMs = e.aggregator.ReactionSumMs()
		st.Span = e.aggregator.Span()
	}
	return st
}

// armTimerLocked replaces the single pending timer. Effects that leave
// ArmTimer at zero (mid-input attempts) keep the budget timer running.
func (e *Engine) armTimerLocked(ctx context.Context, d time.Duration) {
	e.stopTimerLocked()
	e.pending = e.clock.AfterFunc(d, func() {
		e.onTimerFired(ctx)
	})
}

func (e *Engine) stopTimerLocked() {
	if e.pending != nil {
		e.pending.Stop()
		e.pending = nil
	}
}

func (e *Engine) onTimerFired(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.finished || e.machineRef == nil {
		return
	}
	effect := e.machineRef.OnTimer()
	e.applyEffectLocked(ctx, effect)
}
