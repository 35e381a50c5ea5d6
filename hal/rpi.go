//go:build !tinygo && rpi

package hal

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// RPiOptions names the bench rig wiring (BCM numbering).
type RPiOptions struct {
	HostOptions
	Button1 string
	Button2 string
	Signal  string
	Latch   string
	SPIPort string
}

// DefaultRPiOptions returns the bench rig wiring.
func DefaultRPiOptions() RPiOptions {
	return RPiOptions{
		Button1: "GPIO5",
		Button2: "GPIO6",
		Signal:  "GPIO13",
		Latch:   "GPIO25",
	}
}

// NewRPi drives a real LCD, buttons and signal line from a Raspberry Pi.
// Time, the watchdog and the EEPROM stay emulated.
func NewRPi(opts RPiOptions) (*Host, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	h := NewHost(opts.HostOptions)

	for i, name := range []string{opts.Button1, opts.Button2} {
		p, err := openPeriphPin(name, gpio.PullUp, h.gate)
		if err != nil {
			return nil, err
		}
		h.buttons[i] = p
	}
	sig, err := openPeriphPin(opts.Signal, gpio.PullNoChange, h.gate)
	if err != nil {
		return nil, err
	}
	h.signal = sig

	latch := gpioreg.ByName(opts.Latch)
	if latch == nil {
		return nil, fmt.Errorf("latch pin %q: not found", opts.Latch)
	}
	if err := latch.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("latch pin %q: %w", opts.Latch, err)
	}
	port, err := spireg.Open(opts.SPIPort)
	if err != nil {
		return nil, fmt.Errorf("spi open %q: %w", opts.SPIPort, err)
	}
	conn, err := port.Connect(physic.MegaHertz, spi.Mode0, 8)
	if err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("spi connect: %w", err)
	}
	h.bus = &periphBus{conn: conn, latch: latch}
	h.closers = append(h.closers, port)
	return h, nil
}

type periphBus struct {
	conn  spi.Conn
	latch gpio.PinOut
}

func (b *periphBus) Tx(w, r []byte) error {
	return b.conn.Tx(w, r)
}

func (b *periphBus) Transfer(v byte) (byte, error) {
	var r [1]byte
	err := b.conn.Tx([]byte{v}, r[:])
	return r[0], err
}

func (b *periphBus) Latch() {
	_ = b.latch.Out(gpio.High)
	_ = b.latch.Out(gpio.Low)
}

// periphPin turns periph edge detection into interrupt-gate dispatches. A
// single goroutine per pin waits for edges for the life of the process.
type periphPin struct {
	pin  gpio.PinIO
	gate *irqGate

	mu      sync.Mutex
	trigger Trigger
	handler func()
	last    bool
}

func openPeriphPin(name string, pull gpio.Pull, g *irqGate) (*periphPin, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("pin %q: not found", name)
	}
	if err := p.In(pull, gpio.BothEdges); err != nil {
		return nil, fmt.Errorf("pin %q: %w", name, err)
	}
	pp := &periphPin{pin: p, gate: g, last: p.Read() == gpio.High}
	go pp.watch()
	return pp, nil
}

func (p *periphPin) watch() {
	for {
		if !p.pin.WaitForEdge(-1) {
			continue
		}
		level := p.pin.Read() == gpio.High
		p.mu.Lock()
		old := p.last
		p.last = level
		h := p.handler
		fire := triggerFires(p.trigger, old, level)
		p.mu.Unlock()
		if fire {
			p.gate.fire(h)
		}
	}
}

func (p *periphPin) Name() string { return p.pin.Name() }
func (p *periphPin) Get() bool    { return p.pin.Read() == gpio.High }

func (p *periphPin) SetIRQ(t Trigger, handler func()) error {
	p.mu.Lock()
	p.trigger = t
	p.handler = handler
	p.mu.Unlock()
	if levelAsserted(t, p.Get()) {
		p.gate.fire(handler)
	}
	return nil
}

func (p *periphPin) ClearIRQ() error {
	p.mu.Lock()
	p.trigger = TriggerNone
	p.handler = nil
	p.mu.Unlock()
	return nil
}
