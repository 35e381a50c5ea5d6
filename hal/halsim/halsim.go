// Package halsim is a deterministic discrete-event simulator of the board.
//
// The firmware runs on the test goroutine. Simulated time moves only when the
// firmware calls Clock.Delay or Power.Sleep, or when the test calls Advance;
// timer ticks, watchdog wakes and scripted input changes are delivered in
// time order as interrupts. Sleep with nothing left that could wake the core
// panics instead of hanging the test.
package halsim

import (
	"sort"
	"sync/atomic"
	"time"

	"hourmeter/hal"
)

// Sim implements hal.HAL.
type Sim struct {
	now      time.Duration
	disabled bool
	pending  []func()
	woke     atomic.Bool
	seq      uint64
	script   []event

	// Sleeps counts calls to Power.Sleep.
	Sleeps int

	buttons [2]*Pin
	signal  *Pin
	bus     *Bus
	timer   *Timer
	wd      *Watchdog
	eeprom  *EEPROM
	log     *Log
	clock   simClock
	power   simPower
}

type event struct {
	at  time.Duration
	seq uint64
	fn  func()
}

// Option configures a Sim.
type Option func(*Sim)

// WithEEPROM preloads the EEPROM, for example from an earlier Sim's Bytes.
func WithEEPROM(b []byte) Option {
	return func(s *Sim) { copy(s.eeprom.data[:], b) }
}

// WithSignal sets the initial electrical level of the signal line.
func WithSignal(level bool) Option {
	return func(s *Sim) { s.signal.level = level }
}

// New returns a Sim with both buttons released, the signal line low and an
// erased EEPROM.
func New(opts ...Option) *Sim {
	s := &Sim{}
	s.buttons[hal.Button1] = &Pin{sim: s, name: "B1", level: true}
	s.buttons[hal.Button2] = &Pin{sim: s, name: "B2", level: true}
	s.signal = &Pin{sim: s, name: "SIG"}
	s.bus = &Bus{}
	s.timer = &Timer{sim: s}
	s.wd = &Watchdog{sim: s}
	s.eeprom = newEEPROM(s)
	s.log = &Log{}
	s.clock = simClock{s}
	s.power = simPower{s}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Sim) Logger() hal.Logger              { return s.log }
func (s *Sim) Signal() hal.IRQPin              { return s.signal }
func (s *Sim) Bus() hal.SegmentBus             { return s.bus }
func (s *Sim) RefreshTimer() hal.PeriodicTimer { return s.timer }
func (s *Sim) Watchdog() hal.Watchdog          { return s.wd }
func (s *Sim) EEPROM() hal.EEPROM              { return s.eeprom }
func (s *Sim) Clock() hal.Clock                { return s.clock }
func (s *Sim) Power() hal.Power                { return s.power }
func (s *Sim) Display() hal.Display            { return nil }

func (s *Sim) Button(i int) hal.IRQPin {
	if i < 0 || i >= len(s.buttons) {
		return nil
	}
	return s.buttons[i]
}

// Concrete devices, for test-side inspection.

func (s *Sim) ButtonPin(i int) *Pin     { return s.buttons[i] }
func (s *Sim) SignalPin() *Pin          { return s.signal }
func (s *Sim) SegmentBus() *Bus         { return s.bus }
func (s *Sim) Timer() *Timer            { return s.timer }
func (s *Sim) WatchdogTimer() *Watchdog { return s.wd }
func (s *Sim) Store() *EEPROM           { return s.eeprom }
func (s *Sim) Log() *Log                { return s.log }

// Now is the simulated time since power-on.
func (s *Sim) Now() time.Duration { return s.now }

// Press drives button i low (pressed) now.
func (s *Sim) Press(i int) { s.buttons[i].Set(false) }

// Release drives button i high (released) now.
func (s *Sim) Release(i int) { s.buttons[i].Set(true) }

// SetSignal drives the signal line now.
func (s *Sim) SetSignal(level bool) { s.signal.Set(level) }

// At schedules fn at absolute simulated time at. Actions scheduled for the
// same instant run in the order they were added.
func (s *Sim) At(at time.Duration, fn func()) {
	s.seq++
	s.script = append(s.script, event{at: at, seq: s.seq, fn: fn})
	sort.SliceStable(s.script, func(i, j int) bool {
		if s.script[i].at != s.script[j].at {
			return s.script[i].at < s.script[j].at
		}
		return s.script[i].seq < s.script[j].seq
	})
}

// PressAt and ReleaseAt schedule button changes at absolute times.
func (s *Sim) PressAt(at time.Duration, i int)   { s.At(at, func() { s.Press(i) }) }
func (s *Sim) ReleaseAt(at time.Duration, i int) { s.At(at, func() { s.Release(i) }) }

// SignalAt schedules a signal line change at an absolute time.
func (s *Sim) SignalAt(at time.Duration, level bool) {
	s.At(at, func() { s.SetSignal(level) })
}

// Advance moves simulated time forward by d, delivering everything due.
func (s *Sim) Advance(d time.Duration) {
	if d < 0 {
		d = 0
	}
	s.advanceTo(s.now + d)
}

// fire dispatches an interrupt handler, or queues it while disabled.
func (s *Sim) fire(h func()) {
	if h == nil {
		return
	}
	if s.disabled {
		s.pending = append(s.pending, h)
		return
	}
	h()
	s.woke.Store(true)
}

func (s *Sim) nextEvent() (time.Duration, func(), bool) {
	var (
		at  time.Duration
		fn  func()
		ok  bool
		pre = func(t time.Duration, f func()) {
			if !ok || t < at {
				at, fn, ok = t, f, true
			}
		}
	)
	if s.timer.running {
		pre(s.timer.next, s.timer.expire)
	}
	if s.wd.armed {
		pre(s.wd.next, s.wd.expire)
	}
	if len(s.script) > 0 {
		e := s.script[0]
		pre(e.at, func() {
			s.script = s.script[1:]
			e.fn()
		})
	}
	return at, fn, ok
}

func (s *Sim) advanceTo(t time.Duration) {
	for {
		at, fn, ok := s.nextEvent()
		if !ok || at > t {
			break
		}
		if at > s.now {
			s.now = at
		}
		fn()
	}
	if t > s.now {
		s.now = t
	}
}

type simClock struct{ s *Sim }

func (c simClock) Millis() uint16 { return uint16(c.s.now / time.Millisecond) }

func (c simClock) Delay(d time.Duration) { c.s.Advance(d) }

type simPower struct{ s *Sim }

func (p simPower) DisableInterrupts() hal.IRQState {
	s := p.s
	prev := s.disabled
	s.disabled = true
	s.woke.Store(false)
	if prev {
		return 1
	}
	return 0
}

func (p simPower) RestoreInterrupts(st hal.IRQState) {
	s := p.s
	if st != 0 {
		return
	}
	s.disabled = false
	pending := s.pending
	s.pending = nil
	for _, h := range pending {
		h()
		s.woke.Store(true)
	}
}

// Wake ends the current Sleep at the present simulated time. Tests call it
// from scripted events.
func (p simPower) Wake() { p.s.woke.Store(true) }

func (p simPower) Sleep(st hal.IRQState) {
	s := p.s
	p.RestoreInterrupts(st)
	s.Sleeps++
	for !s.woke.Load() {
		at, _, ok := s.nextEvent()
		if !ok {
			panic("halsim: sleep with no wake source")
		}
		s.advanceTo(at)
	}
}
