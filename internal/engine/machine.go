package engine

import (
	"errors"
	"time"

	"github.com/mgoretti/cogniplay/internal/domain"
)

// Phase is a state of the round state machine.
type Phase int

const (
	// PhaseIdle is the initial state before any round starts.
	PhaseIdle Phase = iota
	// PhaseShowing reveals the stimulus one item at a time; input is ignored.
	PhaseShowing
	// PhaseInput accepts player actions under the input budget timer.
	PhaseInput
	// PhaseFeedback displays the round outcome; no input is accepted.
	PhaseFeedback
	// PhaseGameOver is terminal: lives or the level cap exhausted the run.
	PhaseGameOver
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseShowing:
		return "showing"
	case PhaseInput:
		return "input"
	case PhaseFeedback:
		return "feedback"
	case PhaseGameOver:
		return "game_over"
	default:
		return "unknown"
	}
}

// ErrNotAcceptingInput is returned for input outside the Input phase.
// Input during Showing/Feedback is ignored, not an error condition the
// player sees.
var ErrNotAcceptingInput = errors.New("machine is not accepting input")

// RevealStep is one item becoming visible during Showing.
type RevealStep struct {
	Item domain.Item
	Last bool
}

// RoundOutcome summarizes a finished round; available as soon as the
// machine enters Feedback so side effects are never lost to a teardown
// mid-feedback.
type RoundOutcome struct {
	Correct        bool
	TimedOut       bool
	StepsCompleted int
}

// Effect tells the caller what to do after a transition. The machine
// never sleeps and never schedules: the caller arms a timer for
// ArmTimer (when positive, replacing any pending timer) and calls
// OnTimer when it fires.
type Effect struct {
	Phase        Phase
	ArmTimer     time.Duration
	Reveal       *RevealStep
	Attempt      *domain.AttemptRecord
	Outcome      *RoundOutcome
	FeedbackDone bool
}

// Machine drives one round through reveal, input, and feedback. It has
// exactly two entry points, OnTimer and OnInput; every transition is
// edge-triggered by one of them.
type Machine struct {
	profile *domain.GameProfile
	clock   Clock

	phase     Phase
	challenge *domain.Challenge

	revealIndex int
	inGap       bool // inside the pause between reveals

	step          int
	inputDeadline time.Time
	lastActionAt  time.Time

	outcome *RoundOutcome
}

// NewMachine creates a phase machine for a game profile.
func NewMachine(profile *domain.GameProfile, clock Clock) *Machine {
	if clock == nil {
		clock = NewClock()
	}
	return &Machine{profile: profile, clock: clock, phase: PhaseIdle}
}

// Phase returns the current phase.
func (m *Machine) Phase() Phase { return m.phase }

// Challenge returns the round currently in flight, nil outside a round.
func (m *Machine) Challenge() *domain.Challenge { return m.challenge }

// StartRound enters Showing for a new challenge, revealing the first
// item immediately.
func (m *Machine) StartRound(ch *domain.Challenge) Effect {
	m.phase = PhaseShowing
	m.challenge = ch
	m.revealIndex = 0
	m.inGap = false
	m.step = 0
	m.outcome = nil

	return Effect{
		Phase:    PhaseShowing,
		ArmTimer: m.profile.ShowDurationAt(ch.Level),
		Reveal:   &RevealStep{Item: ch.Items[0], Last: len(ch.Items) == 1},
	}
}

// OnTimer advances the machine when the armed timer fires.
func (m *Machine) OnTimer() Effect {
	switch m.phase {
	case PhaseShowing:
		return m.onShowingTimer()
	case PhaseInput:
		return m.onInputBudgetExpired()
	case PhaseFeedback:
		m.challenge = nil
		return Effect{Phase: PhaseFeedback, FeedbackDone: true}
	default:
		return Effect{Phase: m.phase}
	}
}

func (m *Machine) onShowingTimer() Effect {
	items := m.challenge.Items

	if !m.inGap {
		// The current item's show window ended; hide it for the pause.
		// After the last item the same pause precedes Input.
		m.inGap = true
		return Effect{Phase: PhaseShowing, ArmTimer: m.profile.PauseDuration}
	}

	m.inGap = false
	m.revealIndex++
	if m.revealIndex < len(items) {
		return Effect{
			Phase:    PhaseShowing,
			ArmTimer: m.profile.ShowDurationAt(m.challenge.Level),
			Reveal:   &RevealStep{Item: items[m.revealIndex], Last: m.revealIndex == len(items)-1},
		}
	}

	// All items revealed and the extra pause elapsed: open input.
	m.phase = PhaseInput
	budget := m.profile.InputBudget(len(items))
	now := m.clock.Now()
	m.inputDeadline = now.Add(budget)
	m.lastActionAt = now
	return Effect{Phase: PhaseInput, ArmTimer: budget}
}

// onInputBudgetExpired treats the budget timer firing as an incorrect
// terminal attempt, not an error.
func (m *Machine) onInputBudgetExpired() Effect {
	attempt := domain.AttemptRecord{
		ReactionTimeMs: m.profile.InputBudget(len(m.challenge.Items)).Milliseconds(),
		IsCorrect:      false,
		Expected:       m.expected(),
		Given:          "",
		Step:           m.step,
		TimedOut:       true,
	}
	return m.enterFeedback(attempt, true)
}

// OnInput processes a discrete player action. Outside the Input phase it
// returns ErrNotAcceptingInput and changes nothing.
func (m *Machine) OnInput(given string) (Effect, error) {
	if m.phase != PhaseInput {
		return Effect{Phase: m.phase}, ErrNotAcceptingInput
	}

	now := m.clock.Now()
	attempt := domain.AttemptRecord{
		ReactionTimeMs: now.Sub(m.lastActionAt).Milliseconds(),
		Expected:       m.expected(),
		Given:          given,
		Step:           m.step,
	}
	m.lastActionAt = now
	attempt.IsCorrect = given == attempt.Expected

	if !attempt.IsCorrect {
		return m.enterFeedback(attempt, false), nil
	}

	if m.challenge.Mode == domain.ModeOrderedRecall {
		m.step++
		if m.step < len(m.challenge.Items) {
			// Keep the budget timer running; no new timer armed.
			return Effect{Phase: PhaseInput, Attempt: &attempt}, nil
		}
	}
	return m.enterFeedback(attempt, false), nil
}

// enterFeedback transitions to Feedback. The returned Outcome is the
// signal for the caller to apply scoring, difficulty, metric, and
// checkpoint side effects at entry, not exit.
func (m *Machine) enterFeedback(attempt domain.AttemptRecord, timedOut bool) Effect {
	m.phase = PhaseFeedback
	m.outcome = &RoundOutcome{
		Correct:        attempt.IsCorrect,
		TimedOut:       timedOut,
		StepsCompleted: m.step,
	}
	if attempt.IsCorrect {
		m.outcome.StepsCompleted = len(m.challenge.Items)
	}
	return Effect{
		Phase:    PhaseFeedback,
		ArmTimer: m.profile.FeedbackDuration,
		Attempt:  &attempt,
		Outcome:  m.outcome,
	}
}

// GameOver forces the terminal phase.
func (m *Machine) GameOver() {
	m.phase = PhaseGameOver
	m.challenge = nil
}

// Reset returns the machine to Idle, discarding any round in flight.
func (m *Machine) Reset() {
	m.phase = PhaseIdle
	m.challenge = nil
	m.outcome = nil
}

func (m *Machine) expected() string {
	if m.challenge == nil {
		return ""
	}
	if m.challenge.Mode == domain.ModeOrderedRecall {
		return m.challenge.ExpectedAt(m.step)
	}
	return m.challenge.Answer
}
