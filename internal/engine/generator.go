package engine

import (
	"log/slog"
	"math/rand/v2"

	"github.com/mgoretti/cogniplay/internal/domain"
)

// regenerateAttempts bounds how often the generator redraws to avoid
// repeating the previous instance at the same level.
const regenerateAttempts = 8

// Generator builds one round's stimulus from a difficulty level.
// It is not deterministic, but a re-generation after a failed round can
// avoid repeating the exact previous instance.
type Generator struct {
	profile *domain.GameProfile
	rand    *rand.Rand
}

// NewGenerator creates a generator for a game profile. A nil source
// falls back to the shared seeded source.
func NewGenerator(profile *domain.GameProfile, src rand.Source) *Generator {
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	return &Generator{profile: profile, rand: rand.New(src)}
}

// Generate builds a challenge for the level. avoid is the signature of
// the previous challenge at this level (empty for none); when the
// stimulus space allows, the result differs from it. Generate never
// fails: missing template buckets fall back to the nearest lower bucket.
func (g *Generator) Generate(level int, avoid string) *domain.Challenge {
	level = g.profile.ClampLevel(level)

	if g.profile.Mode == domain.ModeSingleChoice && len(g.profile.Templates) > 0 {
		return g.generateSymbolic(level, avoid)
	}
	return g.generatePalette(level, avoid)
}

// generatePalette draws items with replacement from the fixed palette.
// Covers span games and palette-backed single-choice games.
func (g *Generator) generatePalette(level int, avoid string) *domain.Challenge {
	length := g.profile.SequenceLength(level)

	var ch *domain.Challenge
	for attempt := 0; attempt < regenerateAttempts; attempt++ {
		items := make([]domain.Item, length)
		for i := range items {
			items[i] = domain.Item{
				Value: g.profile.Palette[g.rand.IntN(len(g.profile.Palette))],
				Index: i,
			}
		}
		ch = &domain.Challenge{Level: level, Mode: g.profile.Mode, Items: items}
		if avoid == "" || ch.Signature() != avoid {
			break
		}
	}

	if g.profile.Mode == domain.ModeSingleChoice {
		ch.Answer = ch.Signature()
		ch.Options = g.patternOptions(ch)
	} else {
		ch.Answer = ch.Signature()
	}
	return ch
}

// patternOptions offers the shown pattern plus distractors derived by
// substituting one item, deduplicated against the correct answer and
// each other.
func (g *Generator) patternOptions(ch *domain.Challenge) []string {
	want := g.profile.OptionCount
	seen := map[string]bool{ch.Answer: true}
	options := []string{ch.Answer}

	for attempt := 0; len(options) < want && attempt < want*regenerateAttempts; attempt++ {
		items := make([]domain.Item, len(ch.Items))
		copy(items, ch.Items)
		pos := g.rand.IntN(len(items))
		items[pos].Value = g.profile.Palette[g.rand.IntN(len(g.profile.Palette))]
		candidate := (&domain.Challenge{Items: items}).Signature()
		if seen[candidate] {
			continue
		}
		seen[candidate] = true
		options = append(options, candidate)
	}

	g.shuffle(options)
	return options
}

// generateSymbolic picks a template from the level's bucket and offers
// the target word among distractor words.
func (g *Generator) generateSymbolic(level int, avoid string) *domain.Challenge {
	bucket := g.templateBucket(level)

	var tpl domain.Template
	for attempt := 0; attempt < regenerateAttempts; attempt++ {
		tpl = bucket[g.rand.IntN(len(bucket))]
		if avoid == "" || len(bucket) == 1 {
			break
		}
		if signatureOf(tpl) != avoid {
			break
		}
	}

	items := make([]domain.Item, len(tpl.Syllables))
	for i, syl := range tpl.Syllables {
		items[i] = domain.Item{Value: syl, Index: i}
	}

	ch := &domain.Challenge{
		Level:  level,
		Mode:   domain.ModeSingleChoice,
		Items:  items,
		Answer: tpl.Word,
	}
	ch.Options = g.wordOptions(tpl.Word)
	return ch
}

// templateBucket returns the template set for a level, falling back to
// the nearest lower non-empty bucket when the level's bucket is empty.
func (g *Generator) templateBucket(level int) []domain.Template {
	for key := g.profile.Bucket(level); key >= 1; key-- {
		if tpls := g.profile.Templates[key]; len(tpls) > 0 {
			if key != g.profile.Bucket(level) {
				slog.Debug("No templates for level bucket, falling back",
					"game_id", g.profile.GameID, "level", level, "bucket", key)
			}
			return tpls
		}
	}
	// No lower bucket either; take any non-empty one rather than fail.
	for _, tpls := range g.profile.Templates {
		if len(tpls) > 0 {
			return tpls
		}
	}
	return nil
}

// wordOptions builds the option set: the correct word exactly once plus
// distractors sampled from all other template words, deduplicated.
func (g *Generator) wordOptions(answer string) []string {
	pool := make([]string, 0, 16)
	seen := map[string]bool{answer: true}
	for _, tpls := range g.profile.Templates {
		for _, tpl := range tpls {
			if !seen[tpl.Word] {
				seen[tpl.Word] = true
				pool = append(pool, tpl.Word)
			}
		}
	}
	g.shuffle(pool)

	want := g.profile.OptionCount - 1
	if want > len(pool) {
		want = len(pool)
	}
	options := append([]string{answer}, pool[:want]...)
	g.shuffle(options)
	return options
}

func (g *Generator) shuffle(values []string) {
	g.rand.Shuffle(len(values), func(i, j int) {
		values[i], values[j] = values[j], values[i]
	})
}

func signatureOf(tpl domain.Template) string {
	items := make([]domain.Item, len(tpl.Syllables))
	for i, syl := range tpl.Syllables {
		items[i] = domain.Item{Value: syl, Index: i}
	}
	return (&domain.Challenge{Items: items}).Signature()
}
