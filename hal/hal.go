package hal

import (
	"errors"
	"time"

	"tinygo.org/x/drivers"
)

// Logger writes newline-delimited log lines.
type Logger interface {
	WriteLineString(s string)
	WriteLineBytes(b []byte)
}

var ErrNotImplemented = errors.New("not implemented")

// Trigger selects which pin condition raises the pin's interrupt.
type Trigger uint8

const (
	TriggerNone Trigger = iota
	TriggerRising
	TriggerFalling
	TriggerChange
	TriggerLevelLow
	TriggerLevelHigh
)

func (t Trigger) String() string {
	switch t {
	case TriggerRising:
		return "rising"
	case TriggerFalling:
		return "falling"
	case TriggerChange:
		return "change"
	case TriggerLevelLow:
		return "level-low"
	case TriggerLevelHigh:
		return "level-high"
	default:
		return "none"
	}
}

// Pin is a digital input. Get reports the electrical level.
type Pin interface {
	Name() string
	Get() bool
}

// IRQPin is an input with an interrupt line.
//
// Handlers run in interrupt context: they must not block, allocate or log.
// Level triggers fire once when armed while the level is already present and
// again on every transition into the level.
type IRQPin interface {
	Pin
	SetIRQ(t Trigger, handler func()) error
	ClearIRQ() error
}

// SegmentBus is the clock+data synchronous output feeding the LCD segment
// driver, plus its latch strobe. Bytes go out MSB-first.
type SegmentBus interface {
	drivers.SPI
	Latch()
}

// PeriodicTimer calls a handler from interrupt context at a fixed rate.
type PeriodicTimer interface {
	Start(hz uint32, tick func()) error
	Stop()
}

// Watchdog provides the periodic low-power wake interrupt.
type Watchdog interface {
	Arm(period time.Duration, wake func()) error
	Disarm()
}

// EEPROM is byte-addressed nonvolatile storage with a write-in-progress flag.
//
// Write starts a write and returns; Busy reports true until it completes.
// Starting a write while Busy is a programming error and returns ErrEEPROMBusy.
type EEPROM interface {
	Size() int
	Read(addr int) (byte, error)
	Write(addr int, v byte) error
	Busy() bool
}

var (
	ErrEEPROMBusy  = errors.New("eeprom busy")
	ErrEEPROMRange = errors.New("eeprom address out of range")
)

// Clock is the free-running millisecond time base. Millis wraps every
// 65.536 s; callers measure durations with wrapping subtraction.
type Clock interface {
	Millis() uint16
	Delay(d time.Duration)
}

// IRQState is the saved interrupt-enable state returned by DisableInterrupts.
type IRQState uintptr

// Power gates interrupts and halts the core.
//
// Sleep re-enables interrupts with the given state and halts until any
// interrupt handler has run. An interrupt that became pending while disabled
// is delivered by Sleep itself, so Sleep returns at once instead of missing it.
//
// Wake ends a Sleep in progress as if an interrupt had run. It is safe to
// call from another goroutine.
type Power interface {
	DisableInterrupts() IRQState
	RestoreInterrupts(s IRQState)
	Sleep(s IRQState)
	Wake()
}

// PixelFormat defines the framebuffer pixel encoding.
type PixelFormat uint8

const (
	// PixelFormatRGB565 is 16bpp: rrrrrggggggbbbbb.
	PixelFormatRGB565 PixelFormat = iota + 1
)

// Framebuffer is a simple pixel buffer plus a "present" hook.
type Framebuffer interface {
	Width() int
	Height() int
	Format() PixelFormat
	StrideBytes() int
	Buffer() []byte
	ClearRGB(r, g, b uint8)
	Present() error
}

// Display provides access to an emulated panel framebuffer (nil on hardware,
// where the LCD glass is driven through the SegmentBus only).
type Display interface {
	Framebuffer() Framebuffer
}

// Button indices.
const (
	Button1 = 0
	Button2 = 1
)

// HAL provides the only contact point between the firmware and the outside world.
type HAL interface {
	Logger() Logger
	Button(i int) IRQPin
	Signal() IRQPin
	Bus() SegmentBus
	RefreshTimer() PeriodicTimer
	Watchdog() Watchdog
	EEPROM() EEPROM
	Clock() Clock
	Power() Power
	Display() Display
}
