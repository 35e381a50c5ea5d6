// Package buttons turns raw button edges into debounced states and gesture
// timestamps.
package buttons

import (
	"time"

	"hourmeter/hal"
	"hourmeter/kernel"
)

// State is the debounced state of one button. Rising and Falling last
// exactly one Poll.
type State uint8

const (
	Low State = iota
	Rising
	High
	Falling
)

func (s State) String() string {
	switch s {
	case Low:
		return "low"
	case Rising:
		return "rising"
	case High:
		return "high"
	case Falling:
		return "falling"
	default:
		return "unknown"
	}
}

// Down reports Rising or High.
func (s State) Down() bool { return s == Rising || s == High }

// Up reports Falling or Low.
func (s State) Up() bool { return s == Falling || s == Low }

// Tracker owns the two buttons. The edge interrupts only sample the pin into
// a per-button level; everything else happens in Poll on the main loop.
type Tracker struct {
	clock hal.Clock
	pins  [2]hal.IRQPin
	loop  time.Duration
	limit time.Duration

	raw  [2]kernel.Level
	edge kernel.Flag

	state       [2]State
	press       [2]uint16
	release     [2]uint16
	bothPress   uint16
	bothRelease uint16
	released    bool
}

// New returns a tracker for two active-low buttons. loop is the WaitForRelease
// polling period and limit its bound.
func New(clock hal.Clock, b1, b2 hal.IRQPin, loop, limit time.Duration) *Tracker {
	return &Tracker{
		clock: clock,
		pins:  [2]hal.IRQPin{b1, b2},
		loop:  loop,
		limit: limit,
	}
}

// Attach samples the buttons and enables their edge interrupts.
func (t *Tracker) Attach() error {
	now := t.clock.Millis()
	t.bothRelease = now
	for i, p := range t.pins {
		i, p := i, p
		t.raw[i].Store(!p.Get())
		if err := p.SetIRQ(hal.TriggerChange, func() {
			t.raw[i].Store(!p.Get())
			t.edge.Raise()
		}); err != nil {
			return err
		}
	}
	return nil
}

// Detach disables the edge interrupts.
func (t *Tracker) Detach() {
	for _, p := range t.pins {
		_ = p.ClearIRQ()
	}
}

// Poll advances both buttons by one step.
func (t *Tracker) Poll() {
	t.edge.Take()
	now := t.clock.Millis()
	for i := range t.state {
		other := t.state[1-i]
		pressed := t.raw[i].Load()
		switch t.state[i] {
		case Low:
			if pressed {
				t.state[i] = Rising
				t.press[i] = now
				if other.Down() {
					t.bothPress = now
				}
			}
		case Rising:
			t.state[i] = High
		case High:
			if !pressed {
				t.state[i] = Falling
				t.release[i] = now
				if other.Up() {
					t.bothRelease = now
				}
			}
		case Falling:
			t.state[i] = Low
		}
	}
}

// State returns the state of button i.
func (t *Tracker) State(i int) State { return t.state[i] }

// Both reports whether both buttons are in state s.
func (t *Tracker) Both(s State) bool { return t.state[0] == s && t.state[1] == s }

// BothLow reports whether both buttons are fully released.
func (t *Tracker) BothLow() bool { return t.Both(Low) }

// EdgePending reports an edge interrupt that Poll has not seen yet.
func (t *Tracker) EdgePending() bool { return t.edge.Peek() }

// SinceBothPressed is the time since the second button of a combined press
// went down.
func (t *Tracker) SinceBothPressed() time.Duration { return t.since(t.bothPress) }

// SinceBothReleased is the time since both buttons were last released.
func (t *Tracker) SinceBothReleased() time.Duration { return t.since(t.bothRelease) }

// SincePressed is the time since button i last went down.
func (t *Tracker) SincePressed(i int) time.Duration { return t.since(t.press[i]) }

// SinceReleased is the time since button i last went up.
func (t *Tracker) SinceReleased(i int) time.Duration { return t.since(t.release[i]) }

func (t *Tracker) since(stamp uint16) time.Duration {
	return time.Duration(t.clock.Millis()-stamp) * time.Millisecond
}

// Touch restarts the idle timeout, as after a wake.
func (t *Tracker) Touch() { t.bothRelease = t.clock.Millis() }

// Released reports the released latch.
func (t *Tracker) Released() bool { return t.released }

// ClearReleased resets the released latch so the next WaitForRelease blocks.
func (t *Tracker) ClearReleased() { t.released = false }

// WaitForRelease polls until both buttons are Low and sets the released
// latch. With the latch already set it returns at once. It gives up after
// the configured limit and reports whether the latch is set.
func (t *Tracker) WaitForRelease() bool {
	if t.released {
		return true
	}
	for waited := time.Duration(0); ; waited += t.loop {
		t.Poll()
		if t.BothLow() {
			t.released = true
			return true
		}
		if waited >= t.limit {
			return false
		}
		t.clock.Delay(t.loop)
	}
}
