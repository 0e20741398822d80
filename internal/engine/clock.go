// Package engine implements the adaptive cognitive game session engine:
// challenge generation, the timed phase state machine, difficulty
// adaptation, and metrics aggregation. One Engine instance drives one
// session; all transitions are edge-triggered by a timer firing or a
// discrete player input.
package engine

import "time"

// Clock abstracts timer scheduling so phase transitions are testable
// without wall-clock waits.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a cancellable scheduled callback.
type Timer interface {
	Stop() bool
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// NewClock returns a Clock backed by the wall clock.
func NewClock() Clock { return realClock{} }
