package hal

import (
	"errors"
	"fmt"
)

// FlashDevice is the subset of a NOR flash block device used to emulate an
// EEPROM. Offsets are in bytes from the start of the device.
type FlashDevice interface {
	ReadAt(p []byte, off int64) (int, error)
	WriteAt(p []byte, off int64) (int, error)
	EraseBlocks(start, length int64) error
}

const (
	flashEEPROMSize   = 128
	flashRecordSize   = 4
	flashErasedByte   = 0xFF
	flashEEPROMMaxLog = 1 << 16
	flashBlocks       = FlashEEPROMBlocks

	// Header bytes; 0xA5 is above any record address.
	flashHeaderMagic = 0xA5
	flashHeaderCheck = 0x5A
)

// FlashEEPROMBlocks is the number of consecutive erase blocks a FlashEEPROM
// occupies.
const FlashEEPROMBlocks = 2

var (
	errFlashGeometry = errors.New("flash geometry")
	errFlashFull     = errors.New("flash log full")
)

// FlashEEPROM emulates byte-addressed EEPROM on two flash erase blocks.
//
// The active block starts with a header {0xA5, seq, 0x5A, ^seq} followed by
// records {addr, value, ^addr, ^value}; replaying the records in order
// yields the current contents. When the active block is full the live
// bytes are copied into the other block, its header is programmed last and
// only then is the old block erased. On open the valid block with the
// newer sequence wins, so a power cut at any point leaves one complete
// copy. Writes are synchronous, so Busy is always false.
type FlashEEPROM struct {
	dev       FlashDevice
	base      int64
	blockSize int64
	pageSize  int64

	cur  int64 // active block, -1 before the first write
	seq  byte
	next int64

	data [flashEEPROMSize]byte
	page []byte
}

// NewFlashEEPROM replays the log stored in the two erase blocks starting at
// base.
func NewFlashEEPROM(dev FlashDevice, base, blockSize, pageSize int64) (*FlashEEPROM, error) {
	if blockSize <= 0 || pageSize <= 0 || blockSize%pageSize != 0 || base%blockSize != 0 ||
		pageSize%flashRecordSize != 0 || blockSize > flashEEPROMMaxLog {
		return nil, fmt.Errorf("eeprom block=%d page=%d base=%d: %w", blockSize, pageSize, base, errFlashGeometry)
	}
	e := &FlashEEPROM{
		dev:       dev,
		base:      base,
		blockSize: blockSize,
		pageSize:  pageSize,
		cur:       -1,
		page:      make([]byte, pageSize),
	}
	for i := range e.data {
		e.data[i] = flashErasedByte
	}
	if err := e.replay(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *FlashEEPROM) blockOff(b int64) int64 { return e.base + b*e.blockSize }

// header returns the sequence of block b and whether its header is valid.
func (e *FlashEEPROM) header(b int64) (byte, bool, error) {
	var h [flashRecordSize]byte
	if _, err := e.dev.ReadAt(h[:], e.blockOff(b)); err != nil {
		return 0, false, fmt.Errorf("eeprom header %d: %w", b, err)
	}
	ok := h[0] == flashHeaderMagic && h[2] == flashHeaderCheck && h[3] == ^h[1]
	return h[1], ok, nil
}

func (e *FlashEEPROM) replay() error {
	var (
		seqs  [flashBlocks]byte
		valid [flashBlocks]bool
	)
	for b := int64(0); b < flashBlocks; b++ {
		seq, ok, err := e.header(b)
		if err != nil {
			return err
		}
		seqs[b], valid[b] = seq, ok
	}
	switch {
	case valid[0] && valid[1]:
		// Both survive a cut between the copy and the erase; the copy is newer.
		e.cur = 0
		if int8(seqs[1]-seqs[0]) > 0 {
			e.cur = 1
		}
	case valid[0]:
		e.cur = 0
	case valid[1]:
		e.cur = 1
	default:
		return nil
	}
	e.seq = seqs[e.cur]

	var rec [flashRecordSize]byte
	base := e.blockOff(e.cur)
	for off := int64(flashRecordSize); off+flashRecordSize <= e.blockSize; off += flashRecordSize {
		if _, err := e.dev.ReadAt(rec[:], base+off); err != nil {
			return fmt.Errorf("eeprom replay at %d: %w", off, err)
		}
		if erased(rec[:]) {
			e.next = off
			return nil
		}
		if addr, v, ok := decodeRecord(rec); ok {
			e.data[addr] = v
		}
	}
	e.next = e.blockSize
	return nil
}

func (e *FlashEEPROM) Size() int  { return flashEEPROMSize }
func (e *FlashEEPROM) Busy() bool { return false }

func (e *FlashEEPROM) Read(addr int) (byte, error) {
	if addr < 0 || addr >= flashEEPROMSize {
		return 0, fmt.Errorf("eeprom read at %d: %w", addr, ErrEEPROMRange)
	}
	return e.data[addr], nil
}

func (e *FlashEEPROM) Write(addr int, v byte) error {
	if addr < 0 || addr >= flashEEPROMSize {
		return fmt.Errorf("eeprom write at %d: %w", addr, ErrEEPROMRange)
	}
	if e.data[addr] == v {
		return nil
	}
	if e.cur < 0 || e.next+flashRecordSize > e.blockSize {
		if err := e.compact(); err != nil {
			return err
		}
	}
	if e.next+flashRecordSize > e.blockSize {
		return fmt.Errorf("eeprom write at %d: %w", addr, errFlashFull)
	}
	rec := encodeRecord(addr, v)
	if err := e.program(e.cur, e.next, rec); err != nil {
		return err
	}
	e.next += flashRecordSize
	e.data[addr] = v
	return nil
}

// compact copies the live bytes into the spare block and switches to it.
// The spare's header is programmed after its records, and the old block
// is erased only once the spare is valid.
func (e *FlashEEPROM) compact() error {
	spare, seq := int64(0), byte(0)
	if e.cur >= 0 {
		spare, seq = 1-e.cur, e.seq+1
	}
	if err := e.dev.EraseBlocks(e.blockOff(spare)/e.blockSize, 1); err != nil {
		return fmt.Errorf("eeprom compact: %w", err)
	}
	next := int64(flashRecordSize)
	for addr, v := range e.data {
		if v == flashErasedByte {
			continue
		}
		if next+flashRecordSize > e.blockSize {
			return fmt.Errorf("eeprom compact: %w", errFlashFull)
		}
		if err := e.program(spare, next, encodeRecord(addr, v)); err != nil {
			return err
		}
		next += flashRecordSize
	}
	hdr := [flashRecordSize]byte{flashHeaderMagic, seq, flashHeaderCheck, ^seq}
	if err := e.program(spare, 0, hdr); err != nil {
		return err
	}

	old := e.cur
	e.cur, e.seq, e.next = spare, seq, next
	if old >= 0 {
		if err := e.dev.EraseBlocks(e.blockOff(old)/e.blockSize, 1); err != nil {
			return fmt.Errorf("eeprom compact: erase old block: %w", err)
		}
	}
	return nil
}

// program writes one record at off within block b. The containing page is
// rewritten whole since the device only accepts page-aligned writes;
// reprogramming bits already written leaves them unchanged.
func (e *FlashEEPROM) program(b, off int64, rec [flashRecordSize]byte) error {
	pageOff := off - off%e.pageSize
	base := e.blockOff(b)
	if _, err := e.dev.ReadAt(e.page, base+pageOff); err != nil {
		return fmt.Errorf("eeprom read page %d: %w", pageOff, err)
	}
	copy(e.page[off-pageOff:], rec[:])
	if _, err := e.dev.WriteAt(e.page, base+pageOff); err != nil {
		return fmt.Errorf("eeprom write page %d: %w", pageOff, err)
	}
	return nil
}

func encodeRecord(addr int, v byte) [flashRecordSize]byte {
	a := byte(addr)
	return [flashRecordSize]byte{a, v, ^a, ^v}
}

func decodeRecord(rec [flashRecordSize]byte) (int, byte, bool) {
	if rec[2] != ^rec[0] || rec[3] != ^rec[1] || int(rec[0]) >= flashEEPROMSize {
		return 0, 0, false
	}
	return int(rec[0]), rec[1], true
}

func erased(b []byte) bool {
	for _, v := range b {
		if v != flashErasedByte {
			return false
		}
	}
	return true
}
