// Package app wires the meter components to a HAL and runs the main loop.
package app

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"hourmeter/hal"
	"hourmeter/internal/buildinfo"
	"hourmeter/internal/metrics"
	"hourmeter/kernel"
	"hourmeter/meter/buttons"
	"hourmeter/meter/config"
	"hourmeter/meter/counter"
	"hourmeter/meter/lcd"
	"hourmeter/meter/nav"
	"hourmeter/meter/power"
	"hourmeter/meter/segment"
)

// Status is a snapshot of the firmware state for displays and endpoints.
type Status struct {
	Mode    nav.Mode      `json:"mode"`
	Hours   uint16        `json:"hours"`
	Pending time.Duration `json:"pending_ns"`
	Power   power.Status  `json:"power"`
	Signal  bool          `json:"signal"`
	Frames  uint64        `json:"frames"`
}

func (s Status) String() string {
	sig := "off"
	if s.Signal {
		sig = "on"
	}
	return s.Mode.String() + " " + pad4(s.Hours) + " " + s.Power.String() + " sig=" + sig
}

func pad4(n uint16) string {
	s := strconv.Itoa(int(n))
	for len(s) < 4 {
		s = "0" + s
	}
	return s
}

type Firmware struct {
	h   hal.HAL
	cfg config.Config
	log hal.Logger

	bitmap  *segment.Bitmap
	driver  *lcd.Driver
	tracker *buttons.Tracker
	counter *counter.Counter
	nav     *nav.Navigator
	power   *power.Scheduler

	// Component hooks post here; the main loop logs after each step, never
	// from inside a sleep critical section.
	events     kernel.Mailbox
	dropped    uint32
	persistErr error

	mu     sync.Mutex
	status Status
}

// New validates cfg, loads the stored count and starts the display refresh.
func New(h hal.HAL, cfg config.Config) (*Firmware, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	bootStep("wiring")
	clock := h.Clock()
	f := &Firmware{h: h, cfg: cfg, log: h.Logger()}
	f.bitmap = segment.NewBitmap(nil)
	f.driver = lcd.New(h.Bus(), f.bitmap)
	f.tracker = buttons.New(clock, h.Button(hal.Button1), h.Button(hal.Button2), cfg.LoopPeriod, cfg.ReleaseWaitMax)
	f.counter = counter.New(h.EEPROM(), clock, cfg.EEPROMWriteWait)
	f.nav = nav.New(f.bitmap, f.tracker, f.counter, cfg.MenuEnter, cfg.Menu)
	f.power = power.New(clock, h.Power(), h.Signal(), h.Watchdog(), cfg, f.tracker, f.nav, f.driver, f.counter)

	f.nav.OnMode = func(from, to nav.Mode) {
		f.post(kernel.EventMode, uint16(from), uint16(to))
	}
	f.power.OnChange = func(s power.Status) {
		f.post(kernel.EventPower, uint16(s.State)<<8|uint16(s.Source), s.WakeCount)
	}
	f.power.OnWake = func(w power.Wake) {
		f.post(kernel.EventWake, uint16(w), 0)
		f.drain()
	}
	f.power.OnError = func(err error) {
		f.logLine("power: " + err.Error())
	}
	f.counter.OnPersist = func(hours uint16, err error) {
		if err != nil {
			f.persistErr = err
			f.post(kernel.EventPersistError, hours, 0)
			return
		}
		f.post(kernel.EventPersist, hours, 0)
	}

	f.logLine("hourmeter: build=" + buildinfo.Line() + " " + cfg.String())
	bootStep("counter")
	if !f.counter.Load() {
		f.logLine("counter: no valid record, starting at 0")
	}
	f.logLine("counter: hours=" + strconv.Itoa(int(f.counter.Hours())))

	bootStep("buttons")
	if err := f.tracker.Attach(); err != nil {
		return nil, fmt.Errorf("attach buttons: %w", err)
	}
	bootStep("refresh")
	if err := f.driver.Start(h.RefreshTimer(), cfg.RefreshHz); err != nil {
		f.tracker.Detach()
		return nil, fmt.Errorf("start refresh: %w", err)
	}
	if cfg.BootMode == config.BootHours {
		f.nav.Enter(nav.Hours)
	}
	metrics.WatchFrames(f.driver.Frames)
	f.drain()
	bootStep("running")
	return f, nil
}

// Step runs one main-loop pass. It may block while a gesture completes or
// while the meter sleeps.
func (f *Firmware) Step() {
	f.tracker.Poll()
	f.nav.Step()
	f.power.Step()
	f.drain()
}

// Run loops until ctx is done, then blanks the display and stores any
// pending adjustment. Cancelling ctx also ends a sleep in progress. A panic
// in the loop is logged and returned as ErrPanic.
func (f *Firmware) Run(ctx context.Context) (err error) {
	defer f.recoverPanic(&err)
	stop := context.AfterFunc(ctx, f.power.Interrupt)
	defer stop()
	clock := f.h.Clock()
	for {
		select {
		case <-ctx.Done():
			f.shutdown()
			return ctx.Err()
		default:
		}
		f.Step()
		clock.Delay(f.cfg.LoopPeriod)
	}
}

func (f *Firmware) shutdown() {
	f.nav.Suspend()
	f.driver.Stop()
	f.tracker.Detach()
	f.drain()
	f.logLine("hourmeter: stopped hours=" + strconv.Itoa(int(f.counter.Hours())))
}

// Status returns the snapshot taken after the last step or wake.
func (f *Firmware) Status() Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

// Frames returns the number of frames latched so far.
func (f *Firmware) Frames() uint64 { return f.driver.Frames() }

// Run boots the firmware on h and never returns. An invalid configuration
// falls back to the defaults.
func Run(h hal.HAL, cfg config.Config) {
	bootDiagStart(h)
	l := h.Logger()
	f, err := New(h, cfg)
	if err != nil && cfg != config.Default() {
		l.WriteLineString("hourmeter: " + err.Error() + " (using defaults)")
		f, err = New(h, config.Default())
	}
	if err == nil {
		err = f.Run(context.Background())
	}
	l.WriteLineString("hourmeter: halted: " + err.Error())
	select {}
}

func (f *Firmware) post(kind kernel.EventKind, a, b uint16) {
	f.events.TrySend(kernel.Event{Kind: kind, A: a, B: b, At: f.h.Clock().Millis()})
}

// drain logs queued events, updates metrics and refreshes the snapshot.
func (f *Firmware) drain() {
	for {
		ev, ok := f.events.TryRecv()
		if !ok {
			break
		}
		f.handle(ev)
	}
	if n := f.events.Dropped(); n != f.dropped {
		f.logLine("app: dropped events=" + strconv.Itoa(int(n-f.dropped)))
		f.dropped = n
	}
	f.snapshot()
}

func (f *Firmware) handle(ev kernel.Event) {
	switch ev.Kind {
	case kernel.EventMode:
		from, to := nav.Mode(ev.A), nav.Mode(ev.B)
		f.logLine("nav: " + from.String() + ">" + to.String())
		metrics.ModeChanged(to.String())
	case kernel.EventPower:
		s := power.Status{State: power.State(ev.A >> 8), Source: power.Source(ev.A), WakeCount: ev.B}
		if s.State == power.SleepArmed {
			return
		}
		f.logLine("power: " + s.String() + " wakes=" + strconv.Itoa(int(s.WakeCount)))
		metrics.PowerChanged(s.State.String())
	case kernel.EventWake:
		w := power.Wake(ev.A)
		f.logLine("power: wake=" + w.String())
		metrics.Woke(w.String())
	case kernel.EventPersist:
		f.logLine("counter: persisted hours=" + strconv.Itoa(int(ev.A)))
		metrics.Persisted()
	case kernel.EventPersistError:
		msg := "counter: persist failed hours=" + strconv.Itoa(int(ev.A))
		if f.persistErr != nil {
			msg += ": " + f.persistErr.Error()
		}
		f.logLine(msg)
		metrics.PersistFailed()
	}
}

func (f *Firmware) snapshot() {
	st := Status{
		Mode:    f.nav.Mode(),
		Hours:   f.counter.Hours(),
		Pending: f.counter.Pending(),
		Power:   f.power.Status(),
		Signal:  f.power.SignalActive(),
		Frames:  f.driver.Frames(),
	}
	metrics.SetHours(st.Hours)
	metrics.SetSignal(st.Signal)
	f.mu.Lock()
	f.status = st
	f.mu.Unlock()
}

func (f *Firmware) logLine(s string) {
	if f.log != nil {
		f.log.WriteLineString(s)
	}
}
