//go:build !tinygo

package hal

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	hostEEPROMDefaultPath = "hourmeter.eeprom"
	hostEEPROMSizeBytes   = 128
	// hostEEPROMWriteTime is the erase+write cycle of one byte.
	hostEEPROMWriteTime = 3400 * time.Microsecond
)

// hostEEPROM mirrors the EEPROM contents in memory and, when a backing file
// is open, writes every byte through to it.
type hostEEPROM struct {
	mu     sync.Mutex
	clock  clockwork.Clock
	f      *os.File
	data   [hostEEPROMSizeBytes]byte
	doneAt time.Time
}

func openHostEEPROM(c clockwork.Clock, path string) (*hostEEPROM, error) {
	e := &hostEEPROM{clock: c}
	for i := range e.data {
		e.data[i] = 0xFF
	}
	if path == "" {
		path = os.Getenv("HOURMETER_EEPROM_PATH")
	}
	if path == "" {
		path = hostEEPROMDefaultPath
	}
	if path == "-" {
		return e, nil
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return e, fmt.Errorf("open %s: %w", path, err)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return e, fmt.Errorf("stat %s: %w", path, err)
	}
	if st.Size() == 0 {
		if _, err := f.WriteAt(e.data[:], 0); err != nil {
			_ = f.Close()
			return e, fmt.Errorf("init %s: %w", path, err)
		}
	} else if _, err := f.ReadAt(e.data[:], 0); err != nil && !errors.Is(err, io.EOF) {
		_ = f.Close()
		return e, fmt.Errorf("read %s: %w", path, err)
	}
	e.f = f
	return e, nil
}

func (e *hostEEPROM) Size() int { return hostEEPROMSizeBytes }

func (e *hostEEPROM) Read(addr int) (byte, error) {
	if addr < 0 || addr >= hostEEPROMSizeBytes {
		return 0, fmt.Errorf("eeprom read at %d: %w", addr, ErrEEPROMRange)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.data[addr], nil
}

func (e *hostEEPROM) Write(addr int, v byte) error {
	if addr < 0 || addr >= hostEEPROMSizeBytes {
		return fmt.Errorf("eeprom write at %d: %w", addr, ErrEEPROMRange)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.clock.Now()
	if now.Before(e.doneAt) {
		return ErrEEPROMBusy
	}
	e.data[addr] = v
	e.doneAt = now.Add(hostEEPROMWriteTime)
	if e.f == nil {
		return nil
	}
	if _, err := e.f.WriteAt([]byte{v}, int64(addr)); err != nil {
		return fmt.Errorf("eeprom write at %d: %w", addr, err)
	}
	return nil
}

func (e *hostEEPROM) Busy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clock.Now().Before(e.doneAt)
}

func (e *hostEEPROM) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.f == nil {
		return nil
	}
	err := e.f.Close()
	e.f = nil
	return err
}
