package session

import "github.com/mgoretti/cogniplay/internal/domain"

// EngineState is the in-memory gameplay state reconstructed from a
// stored session record. Mirrors engine.State; kept separate so this
// package stays independent of the engine.
type EngineState struct {
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

// Rehydrate reconstructs engine state from a session record. Pure:
// no persistence, no side effects, testable in isolation. Missing
// snapshot counters read as zero; the engine applies profile defaults
// (e.g. full lives) for zero values.
func Rehydrate(s *domain.GameSession) EngineState {
	snap := s.Snapshot
	if snap == nil {
		snap = domain.Snapshot{}
	}
	return EngineState{
		Level:              s.Level,
		Score:              s.Score,
		Lives:              snap.Int("lives"),
		Round:              snap.Int("round"),
		ConsecutiveCorrect: snap.Int("streak"),
		ConsecutiveErrors:  snap.Int("errors"),
		Moves:              snap.Int("moves"),
		CorrectMoves:       snap.Int("correct_moves"),
		ReactionSumMs:      int64(snap.Int("reaction_sum_ms")),
		Span:               snap.Int("span"),
	}
}
