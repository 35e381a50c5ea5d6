//go:build !tinygo

package hal

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/jonboulle/clockwork"
)

// HostOptions configures the emulated board.
type HostOptions struct {
	// Clock drives the time base, refresh timer, watchdog and EEPROM timing.
	// Nil selects the real clock.
	Clock clockwork.Clock
	// Log receives log lines. Nil selects stdout.
	Log io.Writer
	// EEPROMPath backs the EEPROM with a file. Empty selects the
	// HOURMETER_EEPROM_PATH environment variable, then hostEEPROMDefaultPath.
	// "-" keeps the EEPROM in memory only.
	EEPROMPath string
	// SignalActiveLow inverts the signal-present line.
	SignalActiveLow bool
}

// Host is the emulated board used by the window and headless runners. Its
// inputs are VirtualPins driven from the keyboard, stdin or tests.
type Host struct {
	clock   clockwork.Clock
	gate    *irqGate
	logger  *hostLogger
	buttons [2]IRQPin
	signal  IRQPin
	bus     SegmentBus
	refresh hostRefreshTimer
	wd      hostWatchdog
	eeprom  EEPROM
	t       *hostClock
	fb      *hostFramebuffer

	sigActiveLow bool
	closers      []io.Closer
}

// New returns a host HAL implementation with default options.
func New() HAL {
	return NewHost(HostOptions{})
}

// NewHost builds an emulated board.
func NewHost(opts HostOptions) *Host {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Log == nil {
		opts.Log = os.Stdout
	}
	h := newHostBase(opts)
	g := h.gate
	h.buttons[Button1] = newVirtualPin("B1", true, g)
	h.buttons[Button2] = newVirtualPin("B2", true, g)
	h.signal = newVirtualPin("SIG", opts.SignalActiveLow, g)
	h.bus = newRecordingBus()

	e, err := openHostEEPROM(opts.Clock, opts.EEPROMPath)
	if err != nil {
		h.logger.WriteLineString("hal: eeprom: " + err.Error() + " (using memory)")
	}
	h.eeprom = e
	return h
}

func newHostBase(opts HostOptions) *Host {
	g := newIRQGate()
	return &Host{
		clock:        opts.Clock,
		gate:         g,
		logger:       &hostLogger{w: opts.Log},
		refresh:      hostRefreshTimer{newHostTicker(opts.Clock, g)},
		wd:           hostWatchdog{newHostTicker(opts.Clock, g)},
		t:            newHostClock(opts.Clock),
		fb:           newHostFramebuffer(320, 120),
		sigActiveLow: opts.SignalActiveLow,
	}
}

func (h *Host) Logger() Logger              { return h.logger }
func (h *Host) Signal() IRQPin              { return h.signal }
func (h *Host) Bus() SegmentBus             { return h.bus }
func (h *Host) RefreshTimer() PeriodicTimer { return h.refresh }
func (h *Host) Watchdog() Watchdog          { return h.wd }
func (h *Host) EEPROM() EEPROM              { return h.eeprom }
func (h *Host) Clock() Clock                { return h.t }
func (h *Host) Power() Power                { return h.gate }
func (h *Host) Display() Display            { return hostDisplay{fb: h.fb} }

func (h *Host) Button(i int) IRQPin {
	if i < 0 || i >= len(h.buttons) {
		return nil
	}
	return h.buttons[i]
}

// PressButton drives an emulated button. Buttons are active-low.
func (h *Host) PressButton(i int, pressed bool) error {
	p, ok := h.Button(i).(*VirtualPin)
	if !ok {
		return fmt.Errorf("button %d: %w", i, ErrNotImplemented)
	}
	p.Set(!pressed)
	return nil
}

// SetSignal drives the emulated signal-present line.
func (h *Host) SetSignal(active bool) error {
	p, ok := h.signal.(*VirtualPin)
	if !ok {
		return fmt.Errorf("signal: %w", ErrNotImplemented)
	}
	p.Set(active != h.sigActiveLow)
	return nil
}

// SignalActive reports the logical signal-present state.
func (h *Host) SignalActive() bool {
	return h.signal.Get() != h.sigActiveLow
}

// LatchedFrame returns the last frame strobed into the segment driver and
// the number of latches so far.
func (h *Host) LatchedFrame() (uint32, uint64) {
	if r, ok := h.bus.(interface{ Latched() (uint32, uint64) }); ok {
		return r.Latched()
	}
	return 0, 0
}

// Close stops the timers and releases backing files.
func (h *Host) Close() error {
	h.refresh.Stop()
	h.wd.Disarm()
	var first error
	for _, c := range h.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	if c, ok := h.eeprom.(io.Closer); ok {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

type hostDisplay struct {
	fb *hostFramebuffer
}

func (d hostDisplay) Framebuffer() Framebuffer { return d.fb }

type hostLogger struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *hostLogger) WriteLineString(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.w, s)
}

func (l *hostLogger) WriteLineBytes(b []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.w.Write(b)
	l.w.Write([]byte{'\n'})
}
