//go:build tinygo && baremetal

package hal

import (
	"machine"
	"runtime/interrupt"
	"sync/atomic"
	"time"
)

// Board wiring (Raspberry Pi Pico).
const (
	pinButton1 = machine.GP2
	pinButton2 = machine.GP3
	pinSignal  = machine.GP4
	pinLatch   = machine.GP17
	pinSCK     = machine.GP18
	pinSDO     = machine.GP19
)

type tinyGoHAL struct {
	logger  *uartLogger
	buttons [2]*tinyGoPin
	signal  *tinyGoPin
	bus     *tinyGoBus
	refresh *tinyGoTicker
	wd      *tinyGoTicker
	eeprom  EEPROM
	clock   *tinyGoClock
	power   *tinyGoPower
}

// New returns the Raspberry Pi Pico HAL.
//
// UART: UART0 on GP0 (TX) / GP1 (RX), 115200 8N1.
func New() HAL {
	uart := machine.UART0
	uart.Configure(machine.UARTConfig{
		BaudRate: 115200,
		TX:       machine.GP0,
		RX:       machine.GP1,
	})
	logger := &uartLogger{uart: uart}

	power := &tinyGoPower{}
	pinLatch.Configure(machine.PinConfig{Mode: machine.PinOutput})
	pinLatch.Low()
	spi := machine.SPI0
	if err := spi.Configure(machine.SPIConfig{
		Frequency: 1_000_000,
		SCK:       pinSCK,
		SDO:       pinSDO,
		LSBFirst:  false,
		Mode:      0,
	}); err != nil {
		logger.WriteLineString("hal: spi: " + err.Error())
	}

	var eeprom EEPROM = nullEEPROM{}
	if e, err := newRP2EEPROM(); err != nil {
		logger.WriteLineString("hal: eeprom: " + err.Error())
	} else {
		eeprom = e
	}

	return &tinyGoHAL{
		logger: logger,
		buttons: [2]*tinyGoPin{
			newTinyGoPin("B1", pinButton1, machine.PinInputPullup, power),
			newTinyGoPin("B2", pinButton2, machine.PinInputPullup, power),
		},
		signal:  newTinyGoPin("SIG", pinSignal, machine.PinInput, power),
		bus:     &tinyGoBus{SPI: spi, latch: pinLatch},
		refresh: &tinyGoTicker{power: power},
		wd:      &tinyGoTicker{power: power},
		eeprom:  eeprom,
		clock:   &tinyGoClock{start: time.Now()},
		power:   power,
	}
}

func (h *tinyGoHAL) Logger() Logger              { return h.logger }
func (h *tinyGoHAL) Signal() IRQPin              { return h.signal }
func (h *tinyGoHAL) Bus() SegmentBus             { return h.bus }
func (h *tinyGoHAL) RefreshTimer() PeriodicTimer { return refreshTimer{h.refresh} }
func (h *tinyGoHAL) Watchdog() Watchdog          { return watchdog{h.wd} }
func (h *tinyGoHAL) EEPROM() EEPROM              { return h.eeprom }
func (h *tinyGoHAL) Clock() Clock                { return h.clock }
func (h *tinyGoHAL) Power() Power                { return h.power }
func (h *tinyGoHAL) Display() Display            { return nil }

func (h *tinyGoHAL) Button(i int) IRQPin {
	if i < 0 || i >= len(h.buttons) {
		return nil
	}
	return h.buttons[i]
}

// tinyGoPower gates pin interrupts with the interrupt controller. Timer
// handlers run on goroutines, which cannot preempt the main loop, so only
// Sleep needs to yield to them.
type tinyGoPower struct {
	woke atomic.Bool
}

func (p *tinyGoPower) DisableInterrupts() IRQState {
	s := interrupt.Disable()
	p.woke.Store(false)
	return IRQState(s)
}

func (p *tinyGoPower) RestoreInterrupts(s IRQState) {
	interrupt.Restore(interrupt.State(s))
}

func (p *tinyGoPower) Sleep(s IRQState) {
	interrupt.Restore(interrupt.State(s))
	for !p.woke.Swap(false) {
		// The scheduler halts the core until the next timer or interrupt.
		time.Sleep(time.Millisecond)
	}
}

func (p *tinyGoPower) wake() { p.woke.Store(true) }

func (p *tinyGoPower) Wake() { p.wake() }

type tinyGoPin struct {
	name  string
	pin   machine.Pin
	power *tinyGoPower
}

func newTinyGoPin(name string, pin machine.Pin, mode machine.PinMode, power *tinyGoPower) *tinyGoPin {
	pin.Configure(machine.PinConfig{Mode: mode})
	return &tinyGoPin{name: name, pin: pin, power: power}
}

func (p *tinyGoPin) Name() string { return p.name }
func (p *tinyGoPin) Get() bool    { return p.pin.Get() }

// SetIRQ maps level triggers onto the matching edge plus an immediate check,
// which keeps a held level from re-entering the handler continuously.
func (p *tinyGoPin) SetIRQ(t Trigger, handler func()) error {
	var change machine.PinChange
	switch t {
	case TriggerRising, TriggerLevelHigh:
		change = machine.PinRising
	case TriggerFalling, TriggerLevelLow:
		change = machine.PinFalling
	case TriggerChange:
		change = machine.PinToggle
	default:
		return p.ClearIRQ()
	}
	cb := func(machine.Pin) {
		handler()
		p.power.wake()
	}
	if err := p.pin.SetInterrupt(change, cb); err != nil {
		return err
	}
	if (t == TriggerLevelHigh && p.pin.Get()) || (t == TriggerLevelLow && !p.pin.Get()) {
		cb(p.pin)
	}
	return nil
}

func (p *tinyGoPin) ClearIRQ() error {
	return p.pin.SetInterrupt(0, nil)
}

type tinyGoBus struct {
	*machine.SPI
	latch machine.Pin
}

func (b *tinyGoBus) Latch() {
	b.latch.High()
	b.latch.Low()
}

type tinyGoClock struct {
	start time.Time
}

func (c *tinyGoClock) Millis() uint16 {
	return uint16(time.Since(c.start) / time.Millisecond)
}

func (c *tinyGoClock) Delay(d time.Duration) { time.Sleep(d) }

// tinyGoTicker runs a handler from a goroutine at a fixed period.
type tinyGoTicker struct {
	power *tinyGoPower
	gen   atomic.Uint32
}

func (t *tinyGoTicker) run(period time.Duration, fn func()) {
	gen := t.gen.Add(1)
	go func() {
		tk := time.NewTicker(period)
		defer tk.Stop()
		for range tk.C {
			if t.gen.Load() != gen {
				return
			}
			fn()
			t.power.wake()
		}
	}()
}

func (t *tinyGoTicker) halt() { t.gen.Add(1) }

type refreshTimer struct{ t *tinyGoTicker }

func (r refreshTimer) Start(hz uint32, tick func()) error {
	if hz == 0 {
		hz = 1
	}
	r.t.run(time.Second/time.Duration(hz), tick)
	return nil
}

func (r refreshTimer) Stop() { r.t.halt() }

type watchdog struct{ t *tinyGoTicker }

func (w watchdog) Arm(period time.Duration, wake func()) error {
	if period <= 0 {
		return ErrNotImplemented
	}
	w.t.run(period, wake)
	return nil
}

func (w watchdog) Disarm() { w.t.halt() }

type uartLogger struct {
	uart *machine.UART
}

func (l *uartLogger) WriteLineString(s string) {
	for i := 0; i < len(s); i++ {
		l.uart.WriteByte(s[i])
	}
	l.uart.WriteByte('\r')
	l.uart.WriteByte('\n')
}

func (l *uartLogger) WriteLineBytes(b []byte) {
	for i := 0; i < len(b); i++ {
		l.uart.WriteByte(b[i])
	}
	l.uart.WriteByte('\r')
	l.uart.WriteByte('\n')
}

// nullEEPROM reads as erased and rejects writes.
type nullEEPROM struct{}

func (nullEEPROM) Size() int              { return 0 }
func (nullEEPROM) Read(int) (byte, error) { return 0xFF, ErrNotImplemented }
func (nullEEPROM) Write(int, byte) error  { return ErrNotImplemented }
func (nullEEPROM) Busy() bool             { return false }
