//go:build !tinygo

package hal

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type hostClock struct {
	clock clockwork.Clock
	start time.Time
}

func newHostClock(c clockwork.Clock) *hostClock {
	return &hostClock{clock: c, start: c.Now()}
}

func (c *hostClock) Millis() uint16 {
	return uint16(c.clock.Since(c.start) / time.Millisecond)
}

func (c *hostClock) Delay(d time.Duration) {
	if d <= 0 {
		return
	}
	c.clock.Sleep(d)
}

// hostTicker runs a handler through the interrupt gate at a fixed period.
// It backs both the refresh timer and the watchdog wake.
type hostTicker struct {
	mu    sync.Mutex
	clock clockwork.Clock
	gate  *irqGate
	stop  chan struct{}
	done  chan struct{}
}

func newHostTicker(c clockwork.Clock, g *irqGate) *hostTicker {
	return &hostTicker{clock: c, gate: g}
}

func (t *hostTicker) run(period time.Duration, fn func()) {
	t.halt()

	t.mu.Lock()
	defer t.mu.Unlock()
	stop := make(chan struct{})
	done := make(chan struct{})
	t.stop = stop
	t.done = done
	tk := t.clock.NewTicker(period)
	go func() {
		defer close(done)
		defer tk.Stop()
		for {
			select {
			case <-stop:
				return
			case <-tk.Chan():
				t.gate.fire(fn)
			}
		}
	}()
}

func (t *hostTicker) halt() {
	t.mu.Lock()
	stop, done := t.stop, t.done
	t.stop, t.done = nil, nil
	t.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}

type hostRefreshTimer struct{ *hostTicker }

func (t hostRefreshTimer) Start(hz uint32, tick func()) error {
	if hz == 0 {
		hz = 1
	}
	t.run(time.Second/time.Duration(hz), tick)
	return nil
}

func (t hostRefreshTimer) Stop() { t.halt() }

type hostWatchdog struct{ *hostTicker }

func (w hostWatchdog) Arm(period time.Duration, wake func()) error {
	if period <= 0 {
		return ErrNotImplemented
	}
	w.run(period, wake)
	return nil
}

func (w hostWatchdog) Disarm() { w.halt() }
