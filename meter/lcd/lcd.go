// Package lcd drives the multiplexed segment LCD from the refresh interrupt.
//
// Each tick sends one 32-bit frame MSB-first and strobes the latch. Even
// ticks send the bitmap with the backplane low, odd ticks its complement with
// the backplane high, so every segment sees a square wave with no DC part.
package lcd

import (
	"sync/atomic"

	"hourmeter/hal"
	"hourmeter/meter/segment"
)

// Frame returns the driver word for a bitmap in the given phase.
func Frame(bits uint32, phase uint8, backplane uint32) uint32 {
	if phase&1 == 0 {
		return bits &^ backplane
	}
	return ^bits | backplane
}

type Driver struct {
	bus    hal.SegmentBus
	bitmap *segment.Bitmap
	bp     uint32

	phase   uint8
	buf     [4]byte
	running atomic.Bool
	frames  atomic.Uint64
	errors  atomic.Uint32
	timer   hal.PeriodicTimer
	hz      uint32
}

func New(bus hal.SegmentBus, bitmap *segment.Bitmap) *Driver {
	return &Driver{
		bus:    bus,
		bitmap: bitmap,
		bp:     bitmap.Wiring().BackplaneMask(),
	}
}

// Tick sends the next frame. It runs in interrupt context.
func (d *Driver) Tick() {
	d.send(Frame(d.bitmap.Bits(), d.phase, d.bp))
	d.phase ^= 1
}

func (d *Driver) send(frame uint32) {
	d.buf[0] = byte(frame >> 24)
	d.buf[1] = byte(frame >> 16)
	d.buf[2] = byte(frame >> 8)
	d.buf[3] = byte(frame)
	if err := d.bus.Tx(d.buf[:], nil); err != nil {
		d.errors.Add(1)
		return
	}
	d.bus.Latch()
	d.frames.Add(1)
}

// Start runs Tick from t at hz.
func (d *Driver) Start(t hal.PeriodicTimer, hz uint32) error {
	d.timer = t
	d.hz = hz
	d.phase = 0
	if err := t.Start(hz, d.Tick); err != nil {
		return err
	}
	d.running.Store(true)
	return nil
}

// Resume restarts refresh with the timer and rate of the last Start.
func (d *Driver) Resume() error {
	if d.timer == nil {
		return hal.ErrNotImplemented
	}
	return d.Start(d.timer, d.hz)
}

// Stop halts refresh and parks the outputs: an all-zero frame leaves every
// segment at the backplane level.
func (d *Driver) Stop() {
	if d.timer != nil {
		d.timer.Stop()
	}
	d.running.Store(false)
	d.send(0)
}

// Running reports whether refresh is active.
func (d *Driver) Running() bool { return d.running.Load() }

// Frames returns the number of frames latched.
func (d *Driver) Frames() uint64 { return d.frames.Load() }

// Errors returns the number of frames the bus rejected.
func (d *Driver) Errors() uint32 { return d.errors.Load() }
