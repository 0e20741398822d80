package engine

import "github.com/mgoretti/cogniplay/internal/domain"

// Controller decides the next difficulty level from streak signals.
// Exactly one of consecutiveCorrect/consecutiveErrors is non-zero after
// any round: streaks reset whenever the chain breaks.
type Controller struct {
	profile *domain.GameProfile
}

// NewController creates a difficulty controller for a game profile.
func NewController(profile *domain.GameProfile) *Controller {
	return &Controller{profile: profile}
}

// NextLevel returns the level for the next round.
//
// Adaptive mode: two or more consecutive correct rounds raise the level
// by 2, a single correct round by 1. A streak of errors meeting the
// profile threshold lowers the level by exactly 1, never below 1.
// Non-adaptive mode: each success advances by FixedStep and the level
// never decreases. Either way the result is capped at MaxLevel.
func (c *Controller) NextLevel(current, consecutiveCorrect, consecutiveErrors int) int {
	p := c.profile

	if !p.Adaptive {
		if consecutiveCorrect > 0 {
			return p.ClampLevel(current + p.FixedStep)
		}
		return p.ClampLevel(current)
	}

	next := current
	switch {
	case consecutiveCorrect >= 2:
		next = current + 2
	case consecutiveCorrect == 1:
		next = current + 1
	case consecutiveErrors >= p.ErrorsBeforeLevelDown && current > 1:
		next = current - 1
	}
	return p.ClampLevel(next)
}
