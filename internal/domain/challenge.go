package domain

import "strings"

// GameMode selects how player input is compared to a challenge.
type GameMode int

const (
	// ModeOrderedRecall compares each input against the item at the
	// current step, in order (span games).
	ModeOrderedRecall GameMode = iota
	// ModeSingleChoice compares one input against the full target,
	// chosen among the offered options (pattern/syllable games).
	ModeSingleChoice
)

// Item is one atomic stimulus within a challenge.
type Item struct {
	Value string `json:"value"`
	Index int    `json:"index"`
}

// Challenge is one round's stimulus. It is created at round start and
// discarded at round end; only its aggregate outcome is persisted.
type Challenge struct {
	Level   int      `json:"level"`
	Mode    GameMode `json:"-"`
	Items   []Item   `json:"items"`
	Options []string `json:"options,omitempty"`
	// Answer is derived from Items at generation time and never mutated.
	Answer string `json:"-"`
}

// Signature identifies the generated instance so a re-generation at the
// same level can avoid an exact repeat.
func (c *Challenge) Signature() string {
	values := make([]string, len(c.Items))
	for i, item := range c.Items {
		values[i] = item.Value
	}
	return strings.Join(values, "|")
}

// ExpectedAt returns the expected value for an ordered-recall step.
func (c *Challenge) ExpectedAt(step int) string {
	if step < 0 || step >= len(c.Items) {
		return ""
	}
	return c.Items[step].Value
}

// AttemptRecord captures one discrete player action. It is ephemeral:
// it feeds the metrics aggregator and is not retained beyond the round.
type AttemptRecord struct {
	ReactionTimeMs int64  `json:"reaction_time_ms"`
	IsCorrect      bool   `json:"is_correct"`
	Expected       string `json:"expected"`
	Given          string `json:"given"`
	Step           int    `json:"step"` // zero-based position within the round
	TimedOut       bool   `json:"timed_out,omitempty"`
}
