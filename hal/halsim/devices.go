package halsim

import (
	"fmt"
	"strings"
	"time"

	"hourmeter/hal"
)

// Pin is a simulated input with an interrupt line.
type Pin struct {
	sim     *Sim
	name    string
	level   bool
	trigger hal.Trigger
	handler func()
}

func (p *Pin) Name() string { return p.name }
func (p *Pin) Get() bool    { return p.level }

// Trigger reports the armed interrupt condition.
func (p *Pin) Trigger() hal.Trigger { return p.trigger }

// Set changes the electrical level, raising the interrupt if it matches.
func (p *Pin) Set(level bool) {
	old := p.level
	p.level = level
	if old == level {
		return
	}
	fire := false
	switch p.trigger {
	case hal.TriggerRising:
		fire = level
	case hal.TriggerFalling:
		fire = !level
	case hal.TriggerChange:
		fire = true
	case hal.TriggerLevelHigh:
		fire = level
	case hal.TriggerLevelLow:
		fire = !level
	}
	if fire {
		p.sim.fire(p.handler)
	}
}

func (p *Pin) SetIRQ(t hal.Trigger, handler func()) error {
	p.trigger = t
	p.handler = handler
	if (t == hal.TriggerLevelHigh && p.level) || (t == hal.TriggerLevelLow && !p.level) {
		p.sim.fire(handler)
	}
	return nil
}

func (p *Pin) ClearIRQ() error {
	p.trigger = hal.TriggerNone
	p.handler = nil
	return nil
}

// Bus records every latched frame of the segment driver.
type Bus struct {
	shift  uint32
	frames []uint32
}

func (b *Bus) Tx(w, r []byte) error {
	for i, v := range w {
		b.shift = b.shift<<8 | uint32(v)
		if i < len(r) {
			r[i] = 0
		}
	}
	return nil
}

func (b *Bus) Transfer(v byte) (byte, error) {
	b.shift = b.shift<<8 | uint32(v)
	return 0, nil
}

func (b *Bus) Latch() { b.frames = append(b.frames, b.shift) }

// Frames returns the latched frames in order.
func (b *Bus) Frames() []uint32 { return b.frames }

// Last returns the most recent latched frame.
func (b *Bus) Last() (uint32, bool) {
	if len(b.frames) == 0 {
		return 0, false
	}
	return b.frames[len(b.frames)-1], true
}

// Reset forgets the recorded frames.
func (b *Bus) Reset() { b.frames = nil }

// Timer is the simulated refresh timer.
type Timer struct {
	sim     *Sim
	running bool
	period  time.Duration
	next    time.Duration
	tick    func()
	// Ticks counts delivered ticks.
	Ticks int
}

func (t *Timer) Start(hz uint32, tick func()) error {
	if hz == 0 {
		return fmt.Errorf("refresh timer at 0 Hz: %w", hal.ErrNotImplemented)
	}
	t.running = true
	t.period = time.Second / time.Duration(hz)
	t.next = t.sim.now + t.period
	t.tick = tick
	return nil
}

func (t *Timer) Stop() { t.running = false }

// Running reports whether the timer is started.
func (t *Timer) Running() bool { return t.running }

func (t *Timer) expire() {
	t.next += t.period
	t.Ticks++
	t.sim.fire(t.tick)
}

// Watchdog is the simulated periodic wake source.
type Watchdog struct {
	sim    *Sim
	armed  bool
	period time.Duration
	next   time.Duration
	wake   func()
	// Wakes counts delivered wake interrupts.
	Wakes int
}

func (w *Watchdog) Arm(period time.Duration, wake func()) error {
	if period <= 0 {
		return fmt.Errorf("watchdog period %v: %w", period, hal.ErrNotImplemented)
	}
	w.armed = true
	w.period = period
	w.next = w.sim.now + period
	w.wake = wake
	return nil
}

func (w *Watchdog) Disarm() { w.armed = false }

// Armed reports whether the watchdog is armed.
func (w *Watchdog) Armed() bool { return w.armed }

func (w *Watchdog) expire() {
	w.next += w.period
	w.Wakes++
	w.sim.fire(w.wake)
}

// EEPROMSize and EEPROMWriteTime match the target part.
const (
	EEPROMSize      = 128
	EEPROMWriteTime = 3400 * time.Microsecond
)

// EEPROM is the simulated nonvolatile store.
type EEPROM struct {
	sim       *Sim
	data      [EEPROMSize]byte
	busyUntil time.Duration
	// Writes counts completed Write calls per address.
	Writes [EEPROMSize]int
	// StuckBusy keeps Busy true forever, to exercise write timeouts.
	StuckBusy bool
}

func newEEPROM(s *Sim) *EEPROM {
	e := &EEPROM{sim: s}
	for i := range e.data {
		e.data[i] = 0xFF
	}
	return e
}

func (e *EEPROM) Size() int { return EEPROMSize }

func (e *EEPROM) Read(addr int) (byte, error) {
	if addr < 0 || addr >= EEPROMSize {
		return 0, fmt.Errorf("eeprom read at %d: %w", addr, hal.ErrEEPROMRange)
	}
	return e.data[addr], nil
}

func (e *EEPROM) Write(addr int, v byte) error {
	if addr < 0 || addr >= EEPROMSize {
		return fmt.Errorf("eeprom write at %d: %w", addr, hal.ErrEEPROMRange)
	}
	if e.Busy() {
		return hal.ErrEEPROMBusy
	}
	e.data[addr] = v
	e.Writes[addr]++
	e.busyUntil = e.sim.now + EEPROMWriteTime
	return nil
}

func (e *EEPROM) Busy() bool {
	return e.StuckBusy || e.sim.now < e.busyUntil
}

// Bytes returns a copy of the contents, as they would survive a power loss.
func (e *EEPROM) Bytes() []byte {
	b := make([]byte, EEPROMSize)
	copy(b, e.data[:])
	return b
}

// Log collects log lines.
type Log struct {
	lines []string
}

func (l *Log) WriteLineString(s string) { l.lines = append(l.lines, s) }
func (l *Log) WriteLineBytes(b []byte)  { l.lines = append(l.lines, string(b)) }

// Lines returns every line logged so far.
func (l *Log) Lines() []string { return l.lines }

// Contains reports whether any line contains substr.
func (l *Log) Contains(substr string) bool {
	for _, s := range l.lines {
		if strings.Contains(s, substr) {
			return true
		}
	}
	return false
}
