//go:build tinygo && baremetal && (rp2040 || rp2350)

package hal

import (
	"fmt"
	"machine"
)

// newRP2EEPROM keeps the emulated EEPROM in the last two erase blocks of
// the flash data area.
func newRP2EEPROM() (*FlashEEPROM, error) {
	size := machine.Flash.Size()
	block := machine.Flash.EraseBlockSize()
	page := machine.Flash.WriteBlockSize()
	if block <= 0 || size < flashBlocks*block {
		return nil, fmt.Errorf("flash size=%d block=%d: %w", size, block, ErrNotImplemented)
	}
	base := (size/block - flashBlocks) * block
	return NewFlashEEPROM(machine.Flash, base, block, page)
}
