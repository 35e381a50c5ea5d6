// Package kernel holds the primitives shared between interrupt handlers and
// the main loop. Each value has exactly one writer side.
package kernel

import "sync/atomic"

// Flag is an event latch: an interrupt raises it, the main loop takes it.
type Flag struct {
	_ [0]func() // prevent accidental copying.
	v atomic.Bool
}

// Raise sets the flag. Safe from interrupt context.
func (f *Flag) Raise() { f.v.Store(true) }

// Take clears the flag and reports whether it was set.
func (f *Flag) Take() bool { return f.v.Swap(false) }

// Peek reports the flag without clearing it.
func (f *Flag) Peek() bool { return f.v.Load() }

// Clear drops a pending event.
func (f *Flag) Clear() { f.v.Store(false) }

// Level is a boolean sample written by one side and read by the other.
type Level struct {
	_ [0]func()
	v atomic.Bool
}

func (l *Level) Store(v bool) { l.v.Store(v) }
func (l *Level) Load() bool   { return l.v.Load() }

// Word is a 32-bit value read and written whole, so a reader never sees a
// half-updated value.
type Word struct {
	_ [0]func()
	v atomic.Uint32
}

func (w *Word) Store(v uint32) { w.v.Store(v) }
func (w *Word) Load() uint32   { return w.v.Load() }

// Counter is a monotonically increasing event count.
type Counter struct {
	_ [0]func()
	v atomic.Uint32
}

func (c *Counter) Inc() uint32  { return c.v.Add(1) }
func (c *Counter) Load() uint32 { return c.v.Load() }
