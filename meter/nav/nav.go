// Package nav is the display mode state machine.
package nav

import (
	"time"

	"hourmeter/hal"
	"hourmeter/internal/mathx"
	"hourmeter/meter/buttons"
	"hourmeter/meter/counter"
	"hourmeter/meter/segment"
)

type Mode uint8

const (
	Off Mode = iota
	Hours
	Menu
	SetHours
)

func (m Mode) String() string {
	switch m {
	case Off:
		return "off"
	case Hours:
		return "hours"
	case Menu:
		return "menu"
	case SetHours:
		return "set-hours"
	default:
		return "unknown"
	}
}

func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// Gestures is the button state the navigator reacts to.
type Gestures interface {
	State(i int) buttons.State
	Both(s buttons.State) bool
	SinceBothPressed() time.Duration
	WaitForRelease() bool
	ClearReleased()
}

// Options lists the menu entries in order; the selected index is shown in
// the rightmost digit.
var Options = []Mode{SetHours}

type Navigator struct {
	bitmap    *segment.Bitmap
	gestures  Gestures
	counter   *counter.Counter
	menuEnter time.Duration
	menu      bool

	mode     Mode
	selected int
	edited   bool

	// OnMode is called after every transition.
	OnMode func(from, to Mode)
}

// New returns a navigator in mode Off. With menu set, the Hours hold opens
// the option menu instead of SetHours.
func New(bitmap *segment.Bitmap, g Gestures, c *counter.Counter, menuEnter time.Duration, menu bool) *Navigator {
	return &Navigator{
		bitmap:    bitmap,
		gestures:  g,
		counter:   c,
		menuEnter: menuEnter,
		menu:      menu,
	}
}

func (n *Navigator) Mode() Mode    { return n.mode }
func (n *Navigator) Selected() int { return n.selected }

// Step runs one main-loop pass of the current mode. It may block in
// WaitForRelease.
func (n *Navigator) Step() {
	g := n.gestures
	switch n.mode {
	case Off:
		n.bitmap.Clear()
		if g.State(hal.Button1) == buttons.High || g.State(hal.Button2) == buttons.High {
			n.Enter(Hours)
		}

	case Hours:
		n.render()
		if !g.WaitForRelease() {
			return
		}
		if g.Both(buttons.High) && g.SinceBothPressed() >= n.menuEnter {
			if n.menu {
				n.selected = 0
				n.Enter(Menu)
			} else {
				n.Enter(SetHours)
			}
		}

	case SetHours:
		n.render()
		if !g.WaitForRelease() {
			return
		}
		switch {
		case g.Both(buttons.High):
			n.Enter(Hours)
		case n.single(hal.Button1):
			n.counter.Adjust(+1)
			n.edited = true
			n.render()
		case n.single(hal.Button2):
			n.counter.Adjust(-1)
			n.edited = true
			n.render()
		}

	case Menu:
		n.render()
		if !g.WaitForRelease() {
			return
		}
		switch {
		case g.Both(buttons.High):
			n.Enter(Options[n.selected])
		case n.single(hal.Button1):
			n.selected = mathx.Wrap(n.selected+1, len(Options))
			n.render()
		case n.single(hal.Button2):
			n.selected = mathx.Wrap(n.selected-1, len(Options))
			n.render()
		}
	}
}

// single reports a release of button i while the other stays up.
func (n *Navigator) single(i int) bool {
	return n.gestures.State(i) == buttons.Falling && n.gestures.State(1-i) == buttons.Low
}

func (n *Navigator) render() {
	switch n.mode {
	case Off:
		n.bitmap.Clear()
	case Hours:
		n.bitmap.SetNumber(n.counter.Hours())
		n.bitmap.SetPoint(segment.Digits-1, false)
	case SetHours:
		n.bitmap.SetNumber(n.counter.Hours())
		n.bitmap.SetPoint(segment.Digits-1, true)
	case Menu:
		n.bitmap.Clear()
		n.bitmap.SetDigit(0, uint8(n.selected))
	}
}

// Enter switches to mode m. Leaving SetHours after an adjustment stores the
// count; a failed store stays pending and is retried on the next transition.
// Every transition clears the released latch.
func (n *Navigator) Enter(m Mode) {
	from := n.mode
	if m != SetHours && n.edited {
		// Errors are reported through the counter's OnPersist hook.
		n.edited = n.counter.Persist() != nil
	}
	n.mode = m
	n.gestures.ClearReleased()
	n.render()
	if n.OnMode != nil && from != m {
		n.OnMode(from, m)
	}
}

// Suspend blanks the display for sleep, committing any pending adjustment.
func (n *Navigator) Suspend() {
	n.Enter(Off)
}

// Resume shows the hours after a manual wake.
func (n *Navigator) Resume() {
	n.Enter(Hours)
}
