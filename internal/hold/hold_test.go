package hold

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func at(ms int) time.Time {
	return t0.Add(time.Duration(ms) * time.Millisecond)
}

func TestUpdate_SustainedHold(t *testing.T) {
	s := New()
	require.False(t, s.Holding)

	var events []Event
	var best []float64
	for i, p := range []float64{0.99, 0.99, 0.99} {
		var ev Event
		s, ev = s.Update(p, at(400*i))
		events = append(events, ev)
		best = append(best, s.BestHoldSeconds)
		assert.True(t, s.Holding, "frame %d", i)
	}

	assert.Equal(t, []Event{EventHoldStarted, EventHolding, EventHolding}, events)
	for i := 1; i < len(best); i++ {
		assert.GreaterOrEqual(t, best[i], best[i-1])
	}
	assert.InDelta(t, 0.8, s.CurrentHoldSeconds, 1e-9)
	assert.InDelta(t, 0.8, s.BestHoldSeconds, 1e-9)
	assert.Equal(t, at(0), s.HoldStart)
	assert.Equal(t, ColorCorrect, s.Color())
}

func TestUpdate_SingleLowFrameEndsHold(t *testing.T) {
	s := New()
	s, _ = s.Update(0.99, at(0))
	s, _ = s.Update(0.99, at(500))
	require.InDelta(t, 0.5, s.CurrentHoldSeconds, 1e-9)

	s, ev := s.Update(0.5, at(1000))

	assert.Equal(t, EventHoldStopped, ev)
	assert.False(t, s.Holding)
	assert.InDelta(t, 0.5, s.CurrentHoldSeconds, 1e-9, "current hold freezes instead of resetting")
	assert.InDelta(t, 0.5, s.BestHoldSeconds, 1e-9)
	assert.Equal(t, ColorNeutral, s.Color())
}

func TestUpdate_ThresholdIsExclusive(t *testing.T) {
	s, ev := New().Update(Threshold, at(0))
	assert.Equal(t, EventHoldStopped, ev)
	assert.False(t, s.Holding)

	s, ev = New().Update(math.Nextafter(Threshold, 1), at(0))
	assert.Equal(t, EventHoldStarted, ev)
	assert.True(t, s.Holding)

	s, ev = New().Update(math.NaN(), at(0))
	assert.Equal(t, EventHoldStopped, ev)
	assert.False(t, s.Holding)
}

func TestUpdate_IdleLowFramesStayIdle(t *testing.T) {
	s := New()
	for i := 0; i < 3; i++ {
		var ev Event
		s, ev = s.Update(0.1, at(i*400))
		assert.Equal(t, EventHoldStopped, ev)
	}
	assert.Equal(t, New(), s)
}

func TestUpdate_NewHoldOverwritesFrozenValue(t *testing.T) {
	s := New()
	s, _ = s.Update(0.99, at(0))
	s, _ = s.Update(0.99, at(2000))
	s, _ = s.Miss(at(2400))
	require.InDelta(t, 2.0, s.CurrentHoldSeconds, 1e-9)

	s, ev := s.Update(0.99, at(3000))
	assert.Equal(t, EventHoldStarted, ev)
	assert.Zero(t, s.CurrentHoldSeconds)
	assert.Equal(t, at(3000), s.HoldStart)

	s, _ = s.Update(0.99, at(4000))
	assert.InDelta(t, 1.0, s.CurrentHoldSeconds, 1e-9)
	assert.InDelta(t, 2.0, s.BestHoldSeconds, 1e-9, "shorter hold leaves the best untouched")
}

func TestUpdate_BestNeverDecreases(t *testing.T) {
	probs := []float64{0.99, 0.2, 0.99, 0.99, 0.99, 0.5, 0.98, 0.99, 0.1, 0.99}
	s := New()
	prev := 0.0
	for i, p := range probs {
		s, _ = s.Update(p, at(i*450))
		assert.GreaterOrEqual(t, s.BestHoldSeconds, prev)
		prev = s.BestHoldSeconds
	}
}

func TestReset(t *testing.T) {
	s := New()
	s, _ = s.Update(0.99, at(0))
	s, _ = s.Update(0.99, at(3000))
	require.True(t, s.Holding)

	s = s.Reset()
	assert.False(t, s.Holding)
	assert.Zero(t, s.CurrentHoldSeconds)
	assert.Zero(t, s.BestHoldSeconds)
	assert.True(t, s.HoldStart.IsZero())
}

func TestEvent_String(t *testing.T) {
	assert.Equal(t, "hold_started", EventHoldStarted.String())
	assert.Equal(t, "holding", EventHolding.String())
	assert.Equal(t, "hold_stopped", EventHoldStopped.String())
	assert.Equal(t, "none", EventNone.String())
}
