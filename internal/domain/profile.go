package domain

import (
	"fmt"
	"time"
)

// Template is one symbolic stimulus: a target word and the syllables
// revealed to the player before the choice is offered.
type Template struct {
	Word      string
	Syllables []string
}

// GameProfile parameterizes the engine for one mini-game: timing
// constants, scoring constants, and the difficulty curve. All games run
// the same state machine; only the profile differs.
type GameProfile struct {
	GameID   string
	Title    string
	Category string // cognitive domain for emitted metrics, e.g. "memory"
	Mode     GameMode

	// Sequence length curve: clamp(BaseLength+level, MinLength, MaxLength).
	BaseLength int
	MinLength  int
	MaxLength  int

	// Reveal timing. Per-item show duration shrinks by ShowShrinkPerLevel
	// for each level above 1, floored at MinShowDuration.
	ShowDuration       time.Duration
	ShowShrinkPerLevel time.Duration
	MinShowDuration    time.Duration
	PauseDuration      time.Duration

	// Input budget is PerItemInput multiplied by the item count.
	PerItemInput     time.Duration
	FeedbackDuration time.Duration

	// Scoring. Success awards BaseReward*level; failure subtracts
	// FailurePenalty, clamped at 0.
	BaseReward     int
	FailurePenalty int

	Lives    int
	MaxLevel int

	// Difficulty curve. When Adaptive is off, each success advances the
	// level by FixedStep and the level never decreases.
	Adaptive              bool
	FixedStep             int
	ErrorsBeforeLevelDown int

	// Stimulus material. Span/pattern games draw from Palette with
	// replacement; symbolic games pick a Template from the bucket for
	// the current level.
	Palette     []string
	Templates   map[int][]Template
	BucketSize  int // levels per template bucket, minimum 1
	OptionCount int // options offered in single-choice games
}

// SequenceLength returns the stimulus length for a level. It is
// non-decreasing in level and bounded by [MinLength, MaxLength].
func (p *GameProfile) SequenceLength(level int) int {
	if level < 1 {
		level = 1
	}
	n := p.BaseLength + level
	if n < p.MinLength {
		n = p.MinLength
	}
	if n > p.MaxLength {
		n = p.MaxLength
	}
	return n
}

// ShowDurationAt returns the per-item reveal duration for a level,
// floored at MinShowDuration.
func (p *GameProfile) ShowDurationAt(level int) time.Duration {
	if level < 1 {
		level = 1
	}
	d := p.ShowDuration - time.Duration(level-1)*p.ShowShrinkPerLevel
	if d < p.MinShowDuration {
		d = p.MinShowDuration
	}
	return d
}

// InputBudget returns the total input time allowed for a round.
func (p *GameProfile) InputBudget(itemCount int) time.Duration {
	return time.Duration(itemCount) * p.PerItemInput
}

// Bucket maps a level onto a template bucket key.
func (p *GameProfile) Bucket(level int) int {
	size := p.BucketSize
	if size < 1 {
		size = 1
	}
	if level < 1 {
		level = 1
	}
	return (level-1)/size + 1
}

// ClampLevel bounds a level to [1, MaxLevel].
func (p *GameProfile) ClampLevel(level int) int {
	if level < 1 {
		return 1
	}
	if p.MaxLevel > 0 && level > p.MaxLevel {
		return p.MaxLevel
	}
	return level
}

// Validate checks that the profile is playable.
func (p *GameProfile) Validate() error {
	if p.GameID == "" {
		return ErrEmptyGameID
	}
	if p.MinLength < 1 || p.MaxLength < p.MinLength {
		return fmt.Errorf("profile %s: invalid length bounds [%d, %d]", p.GameID, p.MinLength, p.MaxLength)
	}
	if p.ShowDuration <= 0 || p.PauseDuration <= 0 || p.PerItemInput <= 0 || p.FeedbackDuration <= 0 {
		return fmt.Errorf("profile %s: all durations must be positive", p.GameID)
	}
	if p.MinShowDuration <= 0 || p.MinShowDuration > p.ShowDuration {
		return fmt.Errorf("profile %s: min show duration must be in (0, show duration]", p.GameID)
	}
	if p.BaseReward <= 0 {
		return fmt.Errorf("profile %s: base reward must be positive", p.GameID)
	}
	if p.FailurePenalty < 0 {
		return fmt.Errorf("profile %s: failure penalty must not be negative", p.GameID)
	}
	if p.Lives < 1 {
		return fmt.Errorf("profile %s: lives must be >= 1", p.GameID)
	}
	if p.MaxLevel < 1 {
		return fmt.Errorf("profile %s: max level must be >= 1", p.GameID)
	}
	if p.Adaptive && p.ErrorsBeforeLevelDown < 1 {
		return fmt.Errorf("profile %s: errors before level down must be >= 1", p.GameID)
	}
	if !p.Adaptive && p.FixedStep < 1 {
		return fmt.Errorf("profile %s: fixed step must be >= 1", p.GameID)
	}
	switch p.Mode {
	case ModeOrderedRecall:
		if len(p.Palette) < 2 {
			return fmt.Errorf("profile %s: ordered recall needs a palette of at least 2", p.GameID)
		}
	case ModeSingleChoice:
		if p.OptionCount < 2 {
			return fmt.Errorf("profile %s: single choice needs at least 2 options", p.GameID)
		}
		if len(p.Templates) == 0 && len(p.Palette) < 2 {
			return fmt.Errorf("profile %s: single choice needs templates or a palette", p.GameID)
		}
	default:
		return fmt.Errorf("profile %s: unknown mode %d", p.GameID, p.Mode)
	}
	return nil
}
