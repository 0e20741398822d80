package engine

import (
	"context"
	"testing"
	"time"

	"github.com/mgoretti/cogniplay/internal/domain"
)

type captureSink struct {
	metrics []*domain.BehavioralMetric
	err     error
}

func (s *captureSink) Emit(_ context.Context, m *domain.BehavioralMetric) error {
	if s.err != nil {
		return s.err
	}
	s.metrics = append(s.metrics, m)
	return nil
}

func fixedNow() time.Time {
	return time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
}

func TestAggregator_EmptySessionAggregates(t *testing.T) {
	a := NewAggregator("s1", spanProfile(), nil, fixedNow)

	if got := a.Accuracy(); got != 0 {
		t.Errorf("accuracy with no attempts = %v, want 0", got)
	}
	if got := a.AvgReactionTimeMs(); got != 0 {
		t.Errorf("avg reaction time with no attempts = %v, want 0", got)
	}
	if got := a.Span(); got != 0 {
		t.Errorf("span with no rounds = %v, want 0", got)
	}
}

func TestAggregator_RecordFoldsAttempts(t *testing.T) {
	sink := &captureSink{}
	a := NewAggregator("s1", spanProfile(), sink, fixedNow)
	ctx := context.Background()

	a.Record(ctx, domain.AttemptRecord{IsCorrect: true, ReactionTimeMs: 400, Expected: "1", Given: "1"}, 2, 1, 5, 0)
	a.Record(ctx, domain.AttemptRecord{IsCorrect: true, ReactionTimeMs: 600, Expected: "3", Given: "3"}, 2, 1, 5, 1)
	a.Record(ctx, domain.AttemptRecord{IsCorrect: false, ReactionTimeMs: 800, Expected: "2", Given: "7"}, 2, 1, 5, 2)

	if got := a.Accuracy(); got != 2.0/3.0 {
		t.Errorf("accuracy = %v, want 2/3", got)
	}
	if got := a.AvgReactionTimeMs(); got != 600 {
		t.Errorf("avg reaction time = %v, want 600", got)
	}
	correct, total := a.Totals()
	if correct != 2 || total != 3 {
		t.Errorf("totals = (%d, %d), want (2, 3)", correct, total)
	}

	if len(sink.metrics) != 3 {
		t.Fatalf("emitted %d metrics, want one per attempt", len(sink.metrics))
	}
	m := sink.metrics[2]
	if m.MetricType != domain.MetricAttempt {
		t.Errorf("metric type = %q, want %q", m.MetricType, domain.MetricAttempt)
	}
	if m.Value != 0 {
		t.Errorf("incorrect attempt value = %v, want 0", m.Value)
	}
	if m.Context.Step != 2 || m.Context.Expected != "2" || m.Context.Given != "7" {
		t.Errorf("attempt context = %+v", m.Context)
	}
	if !m.RecordedAt.Equal(fixedNow()) {
		t.Errorf("recorded at = %v, want %v", m.RecordedAt, fixedNow())
	}
}

func TestAggregator_SpanIsHighWaterMark(t *testing.T) {
	a := NewAggregator("s1", spanProfile(), nil, fixedNow)

	for _, level := range []int{1, 2, 4, 3, 2} {
		a.ObserveLevel(level)
	}
	if got := a.Span(); got != 4 {
		t.Errorf("span = %d, want high-water mark 4", got)
	}
}

func TestAggregator_SeedRestoresCounters(t *testing.T) {
	a := NewAggregator("s1", spanProfile(), nil, fixedNow)
	a.Seed(4, 5, 3000, 3)

	if got := a.Accuracy(); got != 0.8 {
		t.Errorf("seeded accuracy = %v, want 0.8", got)
	}
	if got := a.Span(); got != 3 {
		t.Errorf("seeded span = %d, want 3", got)
	}
	if got := a.AvgReactionTimeMs(); got != 600 {
		t.Errorf("seeded avg reaction time = %v, want 600", got)
	}

	a.Record(context.Background(), domain.AttemptRecord{IsCorrect: false}, 3, 6, 5, 0)
	correct, total := a.Totals()
	if correct != 4 || total != 6 {
		t.Errorf("totals after seeded record = (%d, %d), want (4, 6)", correct, total)
	}
}

func TestAggregator_SeedKeepsAverageStable(t *testing.T) {
	a := NewAggregator("s1", spanProfile(), nil, fixedNow)
	// Ten prior attempts averaging 1000ms, restored from a checkpoint.
	a.Seed(10, 10, 10000, 3)

	a.Record(context.Background(), domain.AttemptRecord{IsCorrect: true, ReactionTimeMs: 1000}, 3, 11, 5, 0)

	if got := a.AvgReactionTimeMs(); got != 1000 {
		t.Errorf("avg reaction time after resume = %v, want 1000", got)
	}
	if got := a.ReactionSumMs(); got != 11000 {
		t.Errorf("reaction sum = %d, want 11000", got)
	}
}

func TestAggregator_EmitSummary(t *testing.T) {
	sink := &captureSink{}
	a := NewAggregator("s1", spanProfile(), sink, fixedNow)
	ctx := context.Background()

	a.ObserveLevel(3)
	a.Record(ctx, domain.AttemptRecord{IsCorrect: true, ReactionTimeMs: 500}, 3, 1, 6, 0)
	sink.metrics = nil

	a.EmitSummary(ctx, 3, 7)

	if len(sink.metrics) != 3 {
		t.Fatalf("summary emitted %d metrics, want 3", len(sink.metrics))
	}
	types := map[string]float64{}
	for _, m := range sink.metrics {
		types[m.MetricType] = m.Value
		if m.Context.Round != 7 {
			t.Errorf("summary %s round = %d, want 7", m.MetricType, m.Context.Round)
		}
	}
	if types[domain.MetricAccuracy] != 1 {
		t.Errorf("summary accuracy = %v, want 1", types[domain.MetricAccuracy])
	}
	if types[domain.MetricReactionTime] != 500 {
		t.Errorf("summary reaction time = %v, want 500", types[domain.MetricReactionTime])
	}
	if types[domain.MetricSpan] != 3 {
		t.Errorf("summary span = %v, want 3", types[domain.MetricSpan])
	}
}

func TestAggregator_NilSinkDoesNotEmit(t *testing.T) {
	a := NewAggregator("s1", spanProfile(), nil, fixedNow)
	a.Record(context.Background(), domain.AttemptRecord{IsCorrect: true, ReactionTimeMs: 100}, 1, 1, 4, 0)
	a.EmitSummary(context.Background(), 1, 1)
	// Counters still advance without a sink.
	if _, total := a.Totals(); total != 1 {
		t.Errorf("total = %d, want 1", total)
	}
}
