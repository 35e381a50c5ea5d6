//go:build !tinygo

package hal

import "sync"

// irqGate emulates a single-core interrupt controller on the host.
//
// Every handler runs under mu, so handlers never overlap each other. While
// interrupts are disabled, dispatches are queued and delivered in order by
// RestoreInterrupts or Sleep.
type irqGate struct {
	mu       sync.Mutex
	disabled bool
	pending  []func()
	woke     chan struct{}
}

func newIRQGate() *irqGate {
	return &irqGate{woke: make(chan struct{}, 1)}
}

// fire dispatches an interrupt handler.
func (g *irqGate) fire(handler func()) {
	if handler == nil {
		return
	}
	g.mu.Lock()
	if g.disabled {
		g.pending = append(g.pending, handler)
		g.mu.Unlock()
		return
	}
	handler()
	g.mu.Unlock()
	g.signal()
}

func (g *irqGate) signal() {
	select {
	case g.woke <- struct{}{}:
	default:
	}
}

func (g *irqGate) DisableInterrupts() IRQState {
	g.mu.Lock()
	prev := g.disabled
	g.disabled = true
	g.mu.Unlock()
	// Wakes that happened before this point are already visible in the
	// flags the caller checks inside the critical section.
	select {
	case <-g.woke:
	default:
	}
	if prev {
		return 1
	}
	return 0
}

func (g *irqGate) RestoreInterrupts(s IRQState) {
	if s != 0 {
		return
	}
	g.mu.Lock()
	g.disabled = false
	pending := g.pending
	g.pending = nil
	for _, h := range pending {
		h()
	}
	g.mu.Unlock()
	if len(pending) > 0 {
		g.signal()
	}
}

func (g *irqGate) Sleep(s IRQState) {
	g.RestoreInterrupts(s)
	<-g.woke
}

func (g *irqGate) Wake() { g.signal() }
