//go:build tinygo && baremetal && !(rp2040 || rp2350)

package hal

func newRP2EEPROM() (*FlashEEPROM, error) {
	return nil, ErrNotImplemented
}
