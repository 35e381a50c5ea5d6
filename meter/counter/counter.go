// Package counter keeps the operating-hour count and its nonvolatile copy.
//
// The count lives at EEPROM offsets 0 (low byte) and 1 (high byte). Hours
// reached by counting are stored only when even, which halves EEPROM wear at
// the cost of up to one hour on power loss.
package counter

import (
	"errors"
	"fmt"
	"time"

	"hourmeter/hal"
	"hourmeter/internal/mathx"
)

// Record layout.
const (
	AddrLo = 0
	AddrHi = 1
	// Max is the largest displayable count; Max+1 wraps to 0.
	Max = 9999
)

// writePoll is the busy-wait step while the EEPROM finishes a write.
const writePoll = 500 * time.Microsecond

var ErrWriteTimeout = errors.New("eeprom write timeout")

// Encode returns the stored bytes of a count.
func Encode(hours uint16) (lo, hi byte) { return byte(hours), byte(hours >> 8) }

// Decode rebuilds a count from its stored bytes. Values above Max mean the
// record was never written and decode as 0.
func Decode(lo, hi byte) (hours uint16, ok bool) {
	v := uint16(lo) | uint16(hi)<<8
	if v > Max {
		return 0, false
	}
	return v, true
}

type Counter struct {
	store hal.EEPROM
	clock hal.Clock
	wait  time.Duration

	hours uint16
	acc   time.Duration

	// OnPersist is called after every store attempt with the stored value.
	OnPersist func(hours uint16, err error)
}

// New returns a counter over store. wait bounds the wait for a previous
// EEPROM write to finish.
func New(store hal.EEPROM, clock hal.Clock, wait time.Duration) *Counter {
	return &Counter{store: store, clock: clock, wait: wait}
}

// Load reads the stored count. An unreadable or uninitialised record loads
// as 0. It reports whether a valid record was found.
func (c *Counter) Load() bool {
	c.acc = 0
	lo, err1 := c.store.Read(AddrLo)
	hi, err2 := c.store.Read(AddrHi)
	if err1 != nil || err2 != nil {
		c.hours = 0
		return false
	}
	h, ok := Decode(lo, hi)
	c.hours = h
	return ok
}

// Hours returns the current count.
func (c *Counter) Hours() uint16 { return c.hours }

// Pending returns the time accumulated towards the next hour.
func (c *Counter) Pending() time.Duration { return c.acc }

// Tick credits elapsed operating time. Every whole hour crossed increments
// the count.
func (c *Counter) Tick(elapsed time.Duration) {
	if elapsed <= 0 {
		return
	}
	c.acc += elapsed
	for c.acc >= time.Hour {
		c.acc -= time.Hour
		c.Increment()
	}
}

// Increment adds one hour, wrapping after Max, and stores even results.
func (c *Counter) Increment() {
	c.hours++
	if c.hours > Max {
		c.hours = 0
	}
	if c.hours%2 == 0 {
		c.persist()
	}
}

// Adjust moves the count by delta, clamped to [0, Max]. It does not store.
func (c *Counter) Adjust(delta int) {
	c.hours = uint16(mathx.Clamp(int(c.hours)+delta, 0, Max))
}

// Set replaces the count, clamped to [0, Max]. It does not store.
func (c *Counter) Set(hours uint16) {
	c.hours = mathx.Clamp(hours, 0, Max)
}

// Persist stores the current count.
func (c *Counter) Persist() error { return c.persist() }

func (c *Counter) persist() error {
	lo, hi := Encode(c.hours)
	err := c.save(lo, AddrLo)
	if err == nil {
		err = c.save(hi, AddrHi)
	}
	if c.OnPersist != nil {
		c.OnPersist(c.hours, err)
	}
	return err
}

// save writes one byte after waiting for any previous write to finish.
func (c *Counter) save(v byte, addr int) error {
	for waited := time.Duration(0); c.store.Busy(); waited += writePoll {
		if waited >= c.wait {
			return fmt.Errorf("save %d: %w", addr, ErrWriteTimeout)
		}
		c.clock.Delay(writePoll)
	}
	if err := c.store.Write(addr, v); err != nil {
		return fmt.Errorf("save %d: %w", addr, err)
	}
	return nil
}
