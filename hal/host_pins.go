//go:build !tinygo

package hal

import "sync"

// VirtualPin is a host input pin driven by the window, the headless console
// or tests. Set models the external circuit changing the electrical level.
type VirtualPin struct {
	mu      sync.Mutex
	name    string
	level   bool
	trigger Trigger
	handler func()
	gate    *irqGate
}

func newVirtualPin(name string, level bool, g *irqGate) *VirtualPin {
	return &VirtualPin{name: name, level: level, gate: g}
}

func (p *VirtualPin) Name() string { return p.name }

func (p *VirtualPin) Get() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.level
}

// Set changes the level and raises the interrupt if the trigger matches.
func (p *VirtualPin) Set(level bool) {
	p.mu.Lock()
	old := p.level
	p.level = level
	h := p.handler
	want := triggerFires(p.trigger, old, level)
	p.mu.Unlock()
	if want {
		p.gate.fire(h)
	}
}

func (p *VirtualPin) SetIRQ(t Trigger, handler func()) error {
	p.mu.Lock()
	p.trigger = t
	p.handler = handler
	level := p.level
	p.mu.Unlock()
	if levelAsserted(t, level) {
		p.gate.fire(handler)
	}
	return nil
}

func (p *VirtualPin) ClearIRQ() error {
	p.mu.Lock()
	p.trigger = TriggerNone
	p.handler = nil
	p.mu.Unlock()
	return nil
}

func triggerFires(t Trigger, old, level bool) bool {
	if old == level {
		return false
	}
	switch t {
	case TriggerRising:
		return level
	case TriggerFalling:
		return !level
	case TriggerChange:
		return true
	case TriggerLevelHigh, TriggerLevelLow:
		return levelAsserted(t, level)
	default:
		return false
	}
}

func levelAsserted(t Trigger, level bool) bool {
	return (t == TriggerLevelHigh && level) || (t == TriggerLevelLow && !level)
}
