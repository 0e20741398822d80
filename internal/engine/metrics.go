package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/mgoretti/cogniplay/internal/domain"
)

// MetricSink receives behavioral metrics emitted by the engine. Writes
// are append-only and non-critical: failures are logged, never surfaced
// to gameplay.
type MetricSink interface {
	Emit(ctx context.Context, m *domain.BehavioralMetric) error
}

// Aggregator computes running accuracy, reaction times, and span for a
// session, and emits one behavioral metric per attempt.
type Aggregator struct {
	sessionID string
	gameID    string
	category  string
	sink      MetricSink // nil in ephemeral trial mode
	now       func() time.Time

	correct       int
	total         int
	reactionSumMs int64
	span          int
}

// NewAggregator creates a metrics aggregator for one session. A nil
// sink disables emission (trial play).
func NewAggregator(sessionID string, profile *domain.GameProfile, sink MetricSink, now func() time.Time) *Aggregator {
	if now == nil {
		now = time.Now
	}
	return &Aggregator{
		sessionID: sessionID,
		gameID:    profile.GameID,
		category:  profile.Category,
		sink:      sink,
		now:       now,
	}
}

// Seed restores counters from a resumed session. The reaction-time sum
// must be restored alongside the attempt counts or the session-summary
// average would divide fresh time by the full total.
func (a *Aggregator) Seed(correct, total int, reactionSumMs int64, span int) {
	a.correct = correct
	a.total = total
	a.reactionSumMs = reactionSumMs
	a.span = span
}

// ObserveLevel records the level a round was played at; span is the
// high-water mark of level across the session, not the current level.
func (a *Aggregator) ObserveLevel(level int) {
	if level > a.span {
		a.span = level
	}
}

// Record folds one attempt into the running counters and emits a metric
// carrying enough context to reconstruct the attempt.
func (a *Aggregator) Record(ctx context.Context, attempt domain.AttemptRecord, level, round, sequenceLength, step int) {
	a.total++
	if attempt.IsCorrect {
		a.correct++
	}
	a.reactionSumMs += attempt.ReactionTimeMs

	value := 0.0
	if attempt.IsCorrect {
		value = 1.0
	}
	a.emit(ctx, &domain.BehavioralMetric{
		SessionID:  a.sessionID,
		GameID:     a.gameID,
		MetricType: domain.MetricAttempt,
		Category:   a.category,
		Value:      value,
		Context: domain.MetricContext{
			Level:          level,
			Round:          round,
			SequenceLength: sequenceLength,
			Step:           step,
			ReactionTimeMs: attempt.ReactionTimeMs,
			Expected:       attempt.Expected,
			Given:          attempt.Given,
			TimedOut:       attempt.TimedOut,
		},
	})
}

// EmitSummary emits session-level aggregates; called when the session
// finishes.
func (a *Aggregator) EmitSummary(ctx context.Context, level, round int) {
	a.emit(ctx, &domain.BehavioralMetric{
		SessionID:  a.sessionID,
		GameID:     a.gameID,
		MetricType: domain.MetricAccuracy,
		Category:   a.category,
		Value:      a.Accuracy(),
		Context:    domain.MetricContext{Level: level, Round: round},
	})
	a.emit(ctx, &domain.BehavioralMetric{
		SessionID:  a.sessionID,
		GameID:     a.gameID,
		MetricType: domain.MetricReactionTime,
		Category:   a.category,
		Value:      a.AvgReactionTimeMs(),
		Context:    domain.MetricContext{Level: level, Round: round},
	})
	a.emit(ctx, &domain.BehavioralMetric{
		SessionID:  a.sessionID,
		GameID:     a.gameID,
		MetricType: domain.MetricSpan,
		Category:   a.category,
		Value:      float64(a.span),
		Context:    domain.MetricContext{Level: level, Round: round},
	})
}

// Accuracy returns correct/total in [0, 1], or 0 with no attempts.
func (a *Aggregator) Accuracy() float64 {
	if a.total == 0 {
		return 0
	}
	return float64(a.correct) / float64(a.total)
}

// AvgReactionTimeMs returns the mean reaction time, or 0 with no attempts.
func (a *Aggregator) AvgReactionTimeMs() float64 {
	if a.total == 0 {
		return 0
	}
	return float64(a.reactionSumMs) / float64(a.total)
}

// Span returns the highest level reached across the session.
func (a *Aggregator) Span() int { return a.span }

// ReactionSumMs returns the running reaction-time sum, persisted with
// checkpoints so a resume restores the true average.
func (a *Aggregator) ReactionSumMs() int64 { return a.reactionSumMs }

// Totals returns the running correct and total attempt counts.
func (a *Aggregator) Totals() (correct, total int) { return a.correct, a.total }

func (a *Aggregator) emit(ctx context.Context, m *domain.BehavioralMetric) {
	if a.sink == nil {
		return
	}
	m.RecordedAt = a.now().UTC()
	if err := a.sink.Emit(ctx, m); err != nil {
		slog.Warn("Failed to emit behavioral metric",
			"error", err, "session_id", a.sessionID, "metric_type", m.MetricType)
	}
}
