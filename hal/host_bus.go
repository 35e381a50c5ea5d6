//go:build !tinygo

package hal

import "sync"

// recordingBus stands in for the serial-in/parallel-out segment driver: bytes
// shift through a 32-bit register and Latch copies it to the outputs.
type recordingBus struct {
	mu      sync.Mutex
	shift   uint32
	latched uint32
	latches uint64
}

func newRecordingBus() *recordingBus { return &recordingBus{} }

func (b *recordingBus) Tx(w, r []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, v := range w {
		b.shift = b.shift<<8 | uint32(v)
		if i < len(r) {
			r[i] = 0
		}
	}
	return nil
}

func (b *recordingBus) Transfer(v byte) (byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.shift = b.shift<<8 | uint32(v)
	return 0, nil
}

func (b *recordingBus) Latch() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.latched = b.shift
	b.latches++
}

// Latched returns the driver outputs and the number of latch strobes.
func (b *recordingBus) Latched() (uint32, uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.latched, b.latches
}
