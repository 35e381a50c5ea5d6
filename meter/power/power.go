// Package power decides when the meter sleeps and what wakes it.
//
// While Active, the scheduler credits loop time to the counter whenever the
// signal line is asserted, and puts the core to sleep once both buttons have
// been released for the sleep timeout. Asleep, the meter waits either for
// the signal line to assert (ExternalLevel) or, while the signal is present,
// for periodic watchdog wakes that each credit one watchdog period. A button
// edge always brings the display back.
package power

import (
	"time"

	"hourmeter/hal"
	"hourmeter/kernel"
	"hourmeter/meter/config"
)

type State uint8

const (
	Active State = iota
	SleepArmed
	Sleeping
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case SleepArmed:
		return "sleep-armed"
	case Sleeping:
		return "sleeping"
	default:
		return "unknown"
	}
}

// Source is the wake arrangement of a sleep cycle.
type Source uint8

const (
	SourceNone Source = iota
	ExternalLevel
	Watchdog
)

func (s Source) String() string {
	switch s {
	case ExternalLevel:
		return "external-level"
	case Watchdog:
		return "watchdog"
	default:
		return "none"
	}
}

// Wake is why a sleep cycle ended.
type Wake uint8

const (
	WakeSpurious Wake = iota
	WakeButton
	WakeSignal
	WakeWatchdog
	WakeShutdown
)

func (w Wake) String() string {
	switch w {
	case WakeButton:
		return "button"
	case WakeSignal:
		return "signal"
	case WakeWatchdog:
		return "watchdog"
	case WakeShutdown:
		return "shutdown"
	default:
		return "spurious"
	}
}

// Status is the scheduler state. WakeCount counts watchdog wakes since the
// last signal poll.
type Status struct {
	State     State
	Source    Source
	WakeCount uint16
}

func (s Status) String() string {
	if s.State == Active {
		return s.State.String()
	}
	return s.State.String() + "(" + s.Source.String() + ")"
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Gestures is the button state the scheduler needs.
type Gestures interface {
	BothLow() bool
	SinceBothReleased() time.Duration
	EdgePending() bool
	Touch()
}

// Screen is the navigator side of sleep: blank on entry, hours on a manual
// wake.
type Screen interface {
	Suspend()
	Resume()
}

// Refresh is the display refresh that stops while asleep.
type Refresh interface {
	Resume() error
	Stop()
}

// Accumulator receives operating time.
type Accumulator interface {
	Tick(elapsed time.Duration)
}

type Scheduler struct {
	clock  hal.Clock
	power  hal.Power
	signal hal.IRQPin
	wd     hal.Watchdog
	cfg    config.Config

	gestures Gestures
	screen   Screen
	refresh  Refresh
	acc      Accumulator

	sigWake kernel.Flag
	wdWake  kernel.Flag
	stop    kernel.Flag
	onSig   func()
	onWD    func()

	status      Status
	lastAccount uint16

	// OnChange is called after every status change. It may run with
	// interrupts disabled and must not block.
	OnChange func(Status)
	// OnWake is called with the cause of every completed sleep cycle.
	OnWake func(Wake)
	// OnError is called when a wake source or the refresh cannot be armed.
	OnError func(error)
}

// New returns an Active scheduler.
func New(clock hal.Clock, pwr hal.Power, signal hal.IRQPin, wd hal.Watchdog, cfg config.Config,
	g Gestures, screen Screen, refresh Refresh, acc Accumulator) *Scheduler {
	s := &Scheduler{
		clock:       clock,
		power:       pwr,
		signal:      signal,
		wd:          wd,
		cfg:         cfg,
		gestures:    g,
		screen:      screen,
		refresh:     refresh,
		acc:         acc,
		lastAccount: clock.Millis(),
	}
	s.onSig = s.sigWake.Raise
	s.onWD = s.wdWake.Raise
	return s
}

// Status returns the current state.
func (s *Scheduler) Status() Status { return s.status }

// SignalActive reports the logical level of the signal line.
func (s *Scheduler) SignalActive() bool {
	return s.signal.Get() != s.cfg.SignalActiveLow
}

// Step runs one main-loop pass: it credits operating time and sleeps once
// the buttons have been idle long enough. It returns after the next manual
// wake when it slept.
func (s *Scheduler) Step() {
	s.account()
	if s.gestures.BothLow() && s.gestures.SinceBothReleased() >= s.cfg.SleepTimeout {
		s.Sleep()
	}
}

// Interrupt makes a Sleep in progress, or the next one, return without
// bringing the display back, so the main loop can shut down. It is safe
// from another goroutine.
func (s *Scheduler) Interrupt() {
	s.stop.Raise()
	s.power.Wake()
}

// account credits the time since the last call while the signal is present.
func (s *Scheduler) account() {
	now := s.clock.Millis()
	elapsed := time.Duration(now-s.lastAccount) * time.Millisecond
	s.lastAccount = now
	if s.SignalActive() {
		s.acc.Tick(elapsed)
	}
}

// Sleep blanks the display, stops refresh and sleeps until a button wakes
// the meter or Interrupt is called. Signal and watchdog wakes are handled
// here without waking the display.
func (s *Scheduler) Sleep() {
	s.screen.Suspend()
	s.clock.Delay(s.cfg.SettleDelay)
	s.refresh.Stop()

	src := ExternalLevel
	if s.SignalActive() {
		s.account()
		src = Watchdog
	}
	s.status.WakeCount = 0

	for {
		w := s.sleepOn(src)
		if s.OnWake != nil {
			s.OnWake(w)
		}
		switch w {
		case WakeShutdown:
			return
		case WakeButton:
			s.resume()
			return
		case WakeSignal:
			src = Watchdog
			s.status.WakeCount = 0
		case WakeWatchdog:
			s.acc.Tick(s.cfg.WatchdogPeriod)
			s.status.WakeCount++
			if time.Duration(s.status.WakeCount)*s.cfg.WatchdogPeriod >= s.cfg.WakePollInterval {
				s.status.WakeCount = 0
				if !s.pollSignal() {
					src = ExternalLevel
				}
			}
		}
	}
}

// sleepOn arms src and halts until an interrupt. Arming, the final edge
// check and the sleep instruction share one critical section, so an edge
// that lands in between is seen either by the check or by Sleep.
func (s *Scheduler) sleepOn(src Source) Wake {
	st := s.power.DisableInterrupts()
	if s.stop.Take() {
		s.power.RestoreInterrupts(st)
		return WakeShutdown
	}
	if s.gestures.EdgePending() {
		s.power.RestoreInterrupts(st)
		return WakeButton
	}
	if err := s.arm(src); err != nil {
		s.disarm()
		s.power.RestoreInterrupts(st)
		s.fail(err)
		return WakeButton
	}
	s.set(SleepArmed, src)
	s.set(Sleeping, src)
	s.power.Sleep(st)

	st = s.power.DisableInterrupts()
	s.disarm()
	s.power.RestoreInterrupts(st)

	switch {
	case s.stop.Take():
		return WakeShutdown
	case s.gestures.EdgePending():
		return WakeButton
	case src == ExternalLevel && s.sigWake.Take():
		return WakeSignal
	case src == Watchdog && s.wdWake.Take():
		return WakeWatchdog
	}
	return WakeSpurious
}

func (s *Scheduler) arm(src Source) error {
	switch src {
	case ExternalLevel:
		s.sigWake.Clear()
		t := hal.TriggerLevelHigh
		if s.cfg.SignalActiveLow {
			t = hal.TriggerLevelLow
		}
		return s.signal.SetIRQ(t, s.onSig)
	case Watchdog:
		s.wdWake.Clear()
		return s.wd.Arm(s.cfg.WatchdogPeriod, s.onWD)
	}
	return nil
}

func (s *Scheduler) disarm() {
	_ = s.signal.ClearIRQ()
	s.wd.Disarm()
}

// pollSignal samples the signal over the poll window and reports the
// majority.
func (s *Scheduler) pollSignal() bool {
	n := s.cfg.SignalPollSamples
	step := s.cfg.SignalPollWindow
	if n > 1 {
		step /= time.Duration(n - 1)
	}
	active := 0
	for i := 0; i < n; i++ {
		if i > 0 {
			s.clock.Delay(step)
		}
		if s.SignalActive() {
			active++
		}
	}
	return active*2 > n
}

func (s *Scheduler) resume() {
	s.gestures.Touch()
	if err := s.refresh.Resume(); err != nil {
		s.fail(err)
	}
	s.screen.Resume()
	s.lastAccount = s.clock.Millis()
	s.status.WakeCount = 0
	s.set(Active, SourceNone)
}

func (s *Scheduler) set(state State, src Source) {
	s.status.State = state
	s.status.Source = src
	if s.OnChange != nil {
		s.OnChange(s.status)
	}
}

func (s *Scheduler) fail(err error) {
	if s.OnError != nil {
		s.OnError(err)
	}
}
