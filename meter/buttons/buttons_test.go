package buttons

import (
	"testing"
	"time"

	"hourmeter/hal"
	"hourmeter/hal/halsim"

	"gotest.tools/v3/assert"
)

func newTracker(t *testing.T) (*halsim.Sim, *Tracker) {
	t.Helper()
	sim := halsim.New()
	tr := New(sim.Clock(), sim.Button(hal.Button1), sim.Button(hal.Button2),
		10*time.Millisecond, time.Second)
	assert.NilError(t, tr.Attach())
	return sim, tr
}

func TestSingleEdgeSequence(t *testing.T) {
	sim, tr := newTracker(t)

	sim.Advance(100 * time.Millisecond)
	sim.Press(hal.Button1)
	assert.Assert(t, tr.EdgePending())

	want := []State{Rising, High, High}
	for i, w := range want {
		tr.Poll()
		assert.Equal(t, tr.State(hal.Button1), w, "poll %d", i)
		assert.Equal(t, tr.State(hal.Button2), Low)
	}
	assert.Assert(t, !tr.EdgePending())
	pressedAt := tr.SincePressed(hal.Button1)

	sim.Advance(30 * time.Millisecond)
	tr.Poll()
	assert.Equal(t, tr.SincePressed(hal.Button1), pressedAt+30*time.Millisecond)

	sim.Release(hal.Button1)
	for i, w := range []State{Falling, Low, Low} {
		tr.Poll()
		assert.Equal(t, tr.State(hal.Button1), w, "poll %d", i)
	}
	assert.Equal(t, tr.SinceReleased(hal.Button1), time.Duration(0))
	assert.Equal(t, tr.SinceBothReleased(), time.Duration(0))
}

func TestBounceDoesNotSkipHigh(t *testing.T) {
	sim, tr := newTracker(t)

	sim.Press(hal.Button1)
	tr.Poll()
	assert.Equal(t, tr.State(hal.Button1), Rising)

	// Released before the promotion poll: still passes through High.
	sim.Release(hal.Button1)
	tr.Poll()
	assert.Equal(t, tr.State(hal.Button1), High)
	tr.Poll()
	assert.Equal(t, tr.State(hal.Button1), Falling)
	tr.Poll()
	assert.Equal(t, tr.State(hal.Button1), Low)
}

func TestRepollDoesNotRestamp(t *testing.T) {
	sim, tr := newTracker(t)

	sim.Press(hal.Button2)
	tr.Poll()
	tr.Poll()
	sim.Advance(500 * time.Millisecond)
	// The same level again, as from a spurious interrupt.
	sim.Press(hal.Button2)
	tr.Poll()
	assert.Equal(t, tr.SincePressed(hal.Button2), 500*time.Millisecond)
}

func TestCombinedPressAndRelease(t *testing.T) {
	sim, tr := newTracker(t)

	sim.Advance(time.Second)
	sim.Press(hal.Button1)
	tr.Poll()
	tr.Poll()
	sim.Advance(200 * time.Millisecond)
	sim.Press(hal.Button2)
	tr.Poll()
	assert.Assert(t, tr.Both(High) == false)
	tr.Poll()
	assert.Assert(t, tr.Both(High))

	sim.Advance(2 * time.Second)
	tr.Poll()
	assert.Equal(t, tr.SinceBothPressed(), 2*time.Second)

	sim.Release(hal.Button1)
	tr.Poll()
	// One button still down: not a combined release.
	assert.Equal(t, tr.SinceBothReleased(), 3200*time.Millisecond)
	sim.Advance(50 * time.Millisecond)
	sim.Release(hal.Button2)
	tr.Poll()
	assert.Equal(t, tr.SinceBothReleased(), time.Duration(0))
	tr.Poll()
	assert.Assert(t, tr.BothLow())
}

func TestSimultaneousPressStampsCombined(t *testing.T) {
	sim, tr := newTracker(t)

	sim.Advance(300 * time.Millisecond)
	sim.Press(hal.Button1)
	sim.Press(hal.Button2)
	tr.Poll()
	sim.Advance(100 * time.Millisecond)
	tr.Poll()
	assert.Assert(t, tr.Both(High))
	assert.Equal(t, tr.SinceBothPressed(), 100*time.Millisecond)
}

func TestTimestampsSurviveClockWrap(t *testing.T) {
	sim, tr := newTracker(t)

	sim.Advance(65 * time.Second)
	sim.Press(hal.Button1)
	sim.Press(hal.Button2)
	tr.Poll()
	sim.Advance(2 * time.Second)
	tr.Poll()
	assert.Equal(t, tr.SinceBothPressed(), 2*time.Second)
}

func TestWaitForRelease(t *testing.T) {
	sim, tr := newTracker(t)

	sim.Press(hal.Button1)
	tr.Poll()
	sim.ReleaseAt(sim.Now()+250*time.Millisecond, hal.Button1)

	start := sim.Now()
	assert.Assert(t, tr.WaitForRelease())
	assert.Assert(t, tr.Released())
	assert.Assert(t, tr.BothLow())
	assert.Assert(t, sim.Now()-start >= 250*time.Millisecond)

	// Latched: returns at once even with a button down.
	sim.Press(hal.Button2)
	now := sim.Now()
	assert.Assert(t, tr.WaitForRelease())
	assert.Equal(t, sim.Now(), now)

	tr.ClearReleased()
	assert.Assert(t, !tr.Released())
}

func TestWaitForReleaseIsBounded(t *testing.T) {
	sim, tr := newTracker(t)

	sim.Press(hal.Button1)
	start := sim.Now()
	assert.Assert(t, !tr.WaitForRelease())
	assert.Assert(t, !tr.Released())
	assert.Equal(t, sim.Now()-start, time.Second)
}

func TestTouchRestartsIdle(t *testing.T) {
	sim, tr := newTracker(t)

	sim.Advance(10 * time.Second)
	assert.Equal(t, tr.SinceBothReleased(), 10*time.Second)
	tr.Touch()
	assert.Equal(t, tr.SinceBothReleased(), time.Duration(0))
}
