package domain

import "time"

// Metric types emitted by the engine.
const (
	MetricAttempt      = "attempt"
	MetricAccuracy     = "accuracy"
	MetricReactionTime = "reaction_time"
	MetricSpan         = "span"
)

// MetricContext carries enough detail to reconstruct an attempt without
// replaying the round.
type MetricContext struct {
	Level          int    `json:"level"`
	Round          int    `json:"round"`
	SequenceLength int    `json:"sequence_length"`
	Step           int    `json:"step,omitempty"`
	ReactionTimeMs int64  `json:"reaction_time_ms,omitempty"`
	Expected       string `json:"expected,omitempty"`
	Given          string `json:"given,omitempty"`
	TimedOut       bool   `json:"timed_out,omitempty"`
}

// BehavioralMetric is a normalized, timestamped observation emitted for
// downstream clinical/analytic consumption. Append-only: the engine
// writes metrics and never reads them back.
type BehavioralMetric struct {
	SessionID  string        `json:"session_id"`
	GameID     string        `json:"game_id"`
	MetricType string        `json:"metric_type"`
	Category   string        `json:"category"`
	Value      float64       `json:"value"`
	Context    MetricContext `json:"context_data"`
	RecordedAt time.Time     `json:"recorded_at"`
}
