// Package games holds the built-in mini-game profiles and their
// stimulus material. Adding a game is adding a profile here; the engine
// itself is game-agnostic.
package games

import (
	"sort"
	"time"

	"github.com/mgoretti/cogniplay/internal/domain"
)

var catalog = map[string]*domain.GameProfile{
	"sequence-recall": {
		GameID:                "sequence-recall",
		Title:                 "Sequence Recall",
		Category:              "memory",
		Mode:                  domain.ModeOrderedRecall,
		BaseLength:            3,
		MinLength:             3,
		MaxLength:             8,
		ShowDuration:          900 * time.Millisecond,
		ShowShrinkPerLevel:    50 * time.Millisecond,
		MinShowDuration:       400 * time.Millisecond,
		PauseDuration:         300 * time.Millisecond,
		PerItemInput:          1500 * time.Millisecond,
		FeedbackDuration:      1200 * time.Millisecond,
		BaseReward:            10,
		FailurePenalty:        5,
		Lives:                 3,
		MaxLevel:              10,
		Adaptive:              true,
		ErrorsBeforeLevelDown: 1,
		// 3x3 grid positions.
		Palette: []string{"0", "1", "2", "3", "4", "5", "6", "7", "8"},
	},
	"pattern-match": {
		GameID:                "pattern-match",
		Title:                 "Pattern Match",
		Category:              "attention",
		Mode:                  domain.ModeSingleChoice,
		BaseLength:            2,
		MinLength:             2,
		MaxLength:             6,
		ShowDuration:          1100 * time.Millisecond,
		ShowShrinkPerLevel:    60 * time.Millisecond,
		MinShowDuration:       500 * time.Millisecond,
		PauseDuration:         350 * time.Millisecond,
		PerItemInput:          2000 * time.Millisecond,
		FeedbackDuration:      1200 * time.Millisecond,
		BaseReward:            8,
		FailurePenalty:        4,
		Lives:                 3,
		MaxLevel:              8,
		Adaptive:              true,
		ErrorsBeforeLevelDown: 2,
		Palette:               []string{"circle", "square", "triangle", "star", "heart", "diamond"},
		OptionCount:           4,
	},
	"syllable-builder": {
		GameID:                "syllable-builder",
		Title:                 "Syllable Builder",
		Category:              "language",
		Mode:                  domain.ModeSingleChoice,
		BaseLength:            2,
		MinLength:             2,
		MaxLength:             5,
		ShowDuration:          1000 * time.Millisecond,
		ShowShrinkPerLevel:    40 * time.Millisecond,
		MinShowDuration:       600 * time.Millisecond,
		PauseDuration:         400 * time.Millisecond,
		PerItemInput:          2500 * time.Millisecond,
		FeedbackDuration:      1500 * time.Millisecond,
		BaseReward:            10,
		FailurePenalty:        5,
		Lives:                 3,
		MaxLevel:              6,
		Adaptive:              true,
		ErrorsBeforeLevelDown: 1,
		BucketSize:            2,
		OptionCount:           4,
		Templates:             syllableTemplates,
	},
}

// Two-level buckets: 1 covers levels 1-2, 2 covers 3-4, 3 covers 5-6.
var syllableTemplates = map[int][]domain.Template{
	1: {
		{Word: "casa", Syllables: []string{"ca", "sa"}},
		{Word: "mesa", Syllables: []string{"me", "sa"}},
		{Word: "gato", Syllables: []string{"ga", "to"}},
		{Word: "pato", Syllables: []string{"pa", "to"}},
		{Word: "luna", Syllables: []string{"lu", "na"}},
		{Word: "mano", Syllables: []string{"ma", "no"}},
	},
	2: {
		{Word: "camisa", Syllables: []string{"ca", "mi", "sa"}},
		{Word: "pelota", Syllables: []string{"pe", "lo", "ta"}},
		{Word: "zapato", Syllables: []string{"za", "pa", "to"}},
		{Word: "ventana", Syllables: []string{"ven", "ta", "na"}},
		{Word: "caballo", Syllables: []string{"ca", "ba", "llo"}},
	},
	3: {
		{Word: "mariposa", Syllables: []string{"ma", "ri", "po", "sa"}},
		{Word: "telefono", Syllables: []string{"te", "le", "fo", "no"}},
		{Word: "elefante", Syllables: []string{"e", "le", "fan", "te"}},
		{Word: "chocolate", Syllables: []string{"cho", "co", "la", "te"}},
	},
}

// Lookup returns the profile for a game ID.
func Lookup(gameID string) (*domain.GameProfile, bool) {
	p, ok := catalog[gameID]
	return p, ok
}

// List returns all registered profiles sorted by game ID.
func List() []*domain.GameProfile {
	out := make([]*domain.GameProfile, 0, len(catalog))
	for _, p := range catalog {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GameID < out[j].GameID })
	return out
}
