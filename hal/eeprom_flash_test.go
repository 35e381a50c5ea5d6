package hal

import (
	"errors"
	"testing"
)

// memFlash models NOR flash: programming can only clear bits and writes
// must be page aligned.
type memFlash struct {
	data   []byte
	block  int64
	page   int64
	erases int
}

func newMemFlash(blocks int, block, page int64) *memFlash {
	f := &memFlash{data: make([]byte, int64(blocks)*block), block: block, page: page}
	for i := range f.data {
		f.data[i] = 0xFF
	}
	return f
}

func (f *memFlash) ReadAt(p []byte, off int64) (int, error) {
	return copy(p, f.data[off:]), nil
}

func (f *memFlash) WriteAt(p []byte, off int64) (int, error) {
	if off%f.page != 0 {
		return 0, errors.New("unaligned write")
	}
	for i, v := range p {
		f.data[off+int64(i)] &= v
	}
	return len(p), nil
}

func (f *memFlash) EraseBlocks(start, length int64) error {
	for i := start * f.block; i < (start+length)*f.block; i++ {
		f.data[i] = 0xFF
	}
	f.erases++
	return nil
}

var errPowerLost = errors.New("power lost")

// cutFlash loses power partway through a compaction. Once armed, the next
// erase succeeds and the device then accepts only the budgeted number of
// page writes and erases before every call fails.
type cutFlash struct {
	*memFlash
	armed  bool
	open   bool
	writes int
	erases int
	dead   bool
}

func (f *cutFlash) WriteAt(p []byte, off int64) (int, error) {
	if f.dead {
		return 0, errPowerLost
	}
	if f.open {
		if f.writes == 0 {
			f.dead = true
			return 0, errPowerLost
		}
		f.writes--
	}
	return f.memFlash.WriteAt(p, off)
}

func (f *cutFlash) EraseBlocks(start, length int64) error {
	if f.dead {
		return errPowerLost
	}
	if f.open {
		if f.erases == 0 {
			f.dead = true
			return errPowerLost
		}
		f.erases--
	}
	if err := f.memFlash.EraseBlocks(start, length); err != nil {
		return err
	}
	if f.armed {
		f.armed, f.open = false, true
	}
	return nil
}

func TestFlashEEPROMReplay(t *testing.T) {
	dev := newMemFlash(3, 256, 64)
	e, err := NewFlashEEPROM(dev, 256, 256, 64)
	if err != nil {
		t.Fatalf("NewFlashEEPROM() err = %v", err)
	}
	for i := 0; i < 10; i++ {
		if err := e.Write(0, byte(i)); err != nil {
			t.Fatalf("Write() err = %v", err)
		}
	}
	if err := e.Write(1, 0x27); err != nil {
		t.Fatalf("Write() err = %v", err)
	}

	e2, err := NewFlashEEPROM(dev, 256, 256, 64)
	if err != nil {
		t.Fatalf("NewFlashEEPROM() reopen err = %v", err)
	}
	if v, _ := e2.Read(0); v != 9 {
		t.Fatalf("Read(0) = %d, want 9", v)
	}
	if v, _ := e2.Read(1); v != 0x27 {
		t.Fatalf("Read(1) = %#x, want 0x27", v)
	}
	if v, _ := e2.Read(2); v != 0xFF {
		t.Fatalf("Read(2) = %#x, want erased", v)
	}
	for i := 0; i < 256; i++ {
		if dev.data[i] != 0xFF {
			t.Fatalf("write outside the log blocks at %d", i)
		}
	}
}

func TestFlashEEPROMErasedReadsBlank(t *testing.T) {
	e, err := NewFlashEEPROM(newMemFlash(2, 64, 16), 0, 64, 16)
	if err != nil {
		t.Fatalf("NewFlashEEPROM() err = %v", err)
	}
	if v, _ := e.Read(0); v != 0xFF {
		t.Fatalf("Read(0) = %#x, want erased", v)
	}
	if e.cur != -1 {
		t.Fatalf("cur = %d, want -1", e.cur)
	}
}

func TestFlashEEPROMCompacts(t *testing.T) {
	dev := newMemFlash(2, 64, 16)
	e, err := NewFlashEEPROM(dev, 0, 64, 16)
	if err != nil {
		t.Fatalf("NewFlashEEPROM() err = %v", err)
	}
	if err := e.Write(1, 0x03); err != nil {
		t.Fatalf("Write() err = %v", err)
	}
	// 15 records fit after the header; later writes switch blocks.
	for i := 0; i < 40; i++ {
		if err := e.Write(0, byte(i)); err != nil {
			t.Fatalf("Write(%d) err = %v", i, err)
		}
	}
	if dev.erases < 3 {
		t.Fatalf("erases = %d, want compactions", dev.erases)
	}

	e2, err := NewFlashEEPROM(dev, 0, 64, 16)
	if err != nil {
		t.Fatalf("NewFlashEEPROM() reopen err = %v", err)
	}
	if v, _ := e2.Read(0); v != 39 {
		t.Fatalf("Read(0) = %d, want 39", v)
	}
	if v, _ := e2.Read(1); v != 0x03 {
		t.Fatalf("Read(1) = %#x, want 0x03", v)
	}
	if e2.cur != e.cur || e2.seq != e.seq {
		t.Fatalf("reopened block=%d seq=%d, want block=%d seq=%d", e2.cur, e2.seq, e.cur, e.seq)
	}
}

// fillLog writes {1: 0x03} then counts up at address 0 until the active
// block is full, returning the last value written.
func fillLog(t *testing.T, e *FlashEEPROM) byte {
	t.Helper()
	if err := e.Write(1, 0x03); err != nil {
		t.Fatalf("Write(1) err = %v", err)
	}
	v := byte(0)
	for e.next+flashRecordSize <= e.blockSize {
		v++
		if err := e.Write(0, v); err != nil {
			t.Fatalf("Write(0, %d) err = %v", v, err)
		}
	}
	return v
}

func TestFlashEEPROMSurvivesCutDuringCompaction(t *testing.T) {
	cases := []struct {
		name   string
		writes int
		erases int
	}{
		{"after spare erase", 0, 0},
		{"after partial copy", 1, 0},
		{"before header", 2, 0},
		{"before old erase", 3, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mem := newMemFlash(2, 64, 16)
			dev := &cutFlash{memFlash: mem}
			e, err := NewFlashEEPROM(dev, 0, 64, 16)
			if err != nil {
				t.Fatalf("NewFlashEEPROM() err = %v", err)
			}
			last := fillLog(t, e)

			dev.armed, dev.writes, dev.erases = true, tc.writes, tc.erases
			if err := e.Write(0, last+1); !errors.Is(err, errPowerLost) {
				t.Fatalf("Write() during cut err = %v, want %v", err, errPowerLost)
			}

			e2, err := NewFlashEEPROM(mem, 0, 64, 16)
			if err != nil {
				t.Fatalf("NewFlashEEPROM() reopen err = %v", err)
			}
			if v, _ := e2.Read(0); v != last {
				t.Fatalf("Read(0) = %d, want %d", v, last)
			}
			if v, _ := e2.Read(1); v != 0x03 {
				t.Fatalf("Read(1) = %#x, want 0x03", v)
			}

			// The reopened store keeps working and compacts again.
			for i := 0; i < 20; i++ {
				if err := e2.Write(0, byte(100+i)); err != nil {
					t.Fatalf("Write() after reopen err = %v", err)
				}
			}
			e3, err := NewFlashEEPROM(mem, 0, 64, 16)
			if err != nil {
				t.Fatalf("NewFlashEEPROM() third open err = %v", err)
			}
			if v, _ := e3.Read(0); v != 119 {
				t.Fatalf("Read(0) = %d, want 119", v)
			}
		})
	}
}

func TestFlashEEPROMPrefersNewerSequence(t *testing.T) {
	dev := newMemFlash(2, 64, 16)
	put := func(off int64, rec [flashRecordSize]byte) { copy(dev.data[off:], rec[:]) }
	// Sequence 255 and its successor 0 both valid; 0 is newer.
	put(0, [flashRecordSize]byte{flashHeaderMagic, 255, flashHeaderCheck, 0})
	put(4, encodeRecord(0, 0x10))
	put(64, [flashRecordSize]byte{flashHeaderMagic, 0, flashHeaderCheck, 255})
	put(68, encodeRecord(0, 0x11))

	e, err := NewFlashEEPROM(dev, 0, 64, 16)
	if err != nil {
		t.Fatalf("NewFlashEEPROM() err = %v", err)
	}
	if v, _ := e.Read(0); v != 0x11 {
		t.Fatalf("Read(0) = %#x, want 0x11", v)
	}
	if e.cur != 1 {
		t.Fatalf("cur = %d, want 1", e.cur)
	}
}

func TestFlashEEPROMSkipsTornRecord(t *testing.T) {
	dev := newMemFlash(2, 64, 16)
	hdr := [flashRecordSize]byte{flashHeaderMagic, 7, flashHeaderCheck, ^byte(7)}
	copy(dev.data, hdr[:])
	rec := encodeRecord(0, 0x42)
	copy(dev.data[4:], rec[:])
	dev.data[8] = 0x00 // half-programmed record
	rec = encodeRecord(0, 0x43)
	copy(dev.data[12:], rec[:])

	e, err := NewFlashEEPROM(dev, 0, 64, 16)
	if err != nil {
		t.Fatalf("NewFlashEEPROM() err = %v", err)
	}
	if v, _ := e.Read(0); v != 0x43 {
		t.Fatalf("Read(0) = %#x, want 0x43", v)
	}
	if e.next != 16 {
		t.Fatalf("next = %d, want 16", e.next)
	}
}

func TestFlashEEPROMTornHeaderIgnored(t *testing.T) {
	dev := newMemFlash(2, 64, 16)
	copy(dev.data, []byte{flashHeaderMagic, 1, flashHeaderCheck, 0x00})
	rec := encodeRecord(0, 0x42)
	copy(dev.data[4:], rec[:])

	e, err := NewFlashEEPROM(dev, 0, 64, 16)
	if err != nil {
		t.Fatalf("NewFlashEEPROM() err = %v", err)
	}
	if v, _ := e.Read(0); v != 0xFF {
		t.Fatalf("Read(0) = %#x, want erased", v)
	}
}

func TestFlashEEPROMGeometry(t *testing.T) {
	dev := newMemFlash(2, 64, 16)
	if _, err := NewFlashEEPROM(dev, 8, 64, 16); !errors.Is(err, errFlashGeometry) {
		t.Fatalf("NewFlashEEPROM(unaligned) err = %v, want %v", err, errFlashGeometry)
	}
}
