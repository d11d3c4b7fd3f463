// Package hold tracks how long the target pose has been held correctly.
//
// State is a plain value: Update returns the next state instead of mutating a
// shared one, so the frame loop owns the only copy.
package hold

import "time"

// Threshold is the probability the target pose must exceed for a frame to
// count as held correctly.
const Threshold = 0.97

// Event describes what a single update did.
type Event int

const (
	// EventNone means the state was not updated.
	EventNone Event = iota
	// EventHoldStarted fires on the first correct frame after an idle period.
	EventHoldStarted
	// EventHolding fires on every further correct frame.
	EventHolding
	// EventHoldStopped fires on every frame that is not held correctly.
	EventHoldStopped
)

func (e Event) String() string {
	switch e {
	case EventHoldStarted:
		return "hold_started"
	case EventHolding:
		return "holding"
	case EventHoldStopped:
		return "hold_stopped"
	default:
		return "none"
	}
}

// Color is the skeleton color shown for a frame.
type Color string

const (
	// ColorNeutral is drawn while the pose is not held.
	ColorNeutral Color = "neutral"
	// ColorCorrect is drawn while the pose is held.
	ColorCorrect Color = "correct"
)

// State is the hold timer for one target pose selection.
type State struct {
	Holding            bool      `json:"holding"`
	HoldStart          time.Time `json:"hold_start"`
	CurrentHoldSeconds float64   `json:"current_hold_seconds"`
	BestHoldSeconds    float64   `json:"best_hold_seconds"`
}

// New returns an idle state with no recorded hold.
func New() State {
	return State{}
}

// Reset returns the zero state. Used whenever the target pose changes.
func (s State) Reset() State {
	return New()
}

// Update advances the state for one frame in which the target pose was
// classified with probability p at time now.
//
// A single frame at or below Threshold ends the hold. CurrentHoldSeconds keeps
// its last value after a hold ends until the next hold overwrites it.
func (s State) Update(p float64, now time.Time) (State, Event) {
	if !(p > Threshold) {
		s.Holding = false
		return s, EventHoldStopped
	}

	if !s.Holding {
		s.Holding = true
		s.HoldStart = now
		s.CurrentHoldSeconds = 0
		return s, EventHoldStarted
	}

	s.CurrentHoldSeconds = now.Sub(s.HoldStart).Seconds()
	if s.CurrentHoldSeconds > s.BestHoldSeconds {
		s.BestHoldSeconds = s.CurrentHoldSeconds
	}
	return s, EventHolding
}

// Miss advances the state for a frame with no usable classification.
func (s State) Miss(now time.Time) (State, Event) {
	return s.Update(0, now)
}

// Color returns the skeleton color for the state.
func (s State) Color() Color {
	if s.Holding {
		return ColorCorrect
	}
	return ColorNeutral
}
