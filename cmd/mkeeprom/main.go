//go:build !tinygo

// Command mkeeprom creates, patches and dumps hour meter EEPROM images.
//
// The default format is the flat 128-byte image the host emulator uses. With
// -flash the image is the two rp2040 flash erase blocks holding the emulated
// EEPROM record log.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"hourmeter/hal"
	"hourmeter/meter/counter"
)

const (
	defaultImagePath = "hourmeter.eeprom"
	defaultEraseSize = 4096
	defaultPageSize  = 256
	flatSize         = 128
)

func main() {
	var (
		outPath   string
		hours     int
		fresh     bool
		flash     bool
		eraseSize uint
		pageSize  uint
	)
	flag.StringVar(&outPath, "out", defaultImagePath, "Image path.")
	flag.IntVar(&hours, "hours", -1, "Store this hour count (0-9999).")
	flag.BoolVar(&fresh, "new", false, "Start from an erased image.")
	flag.BoolVar(&flash, "flash", false, "Write an rp2040 flash-log image instead of a flat one.")
	flag.UintVar(&eraseSize, "erase", defaultEraseSize, "Flash erase block size (bytes).")
	flag.UintVar(&pageSize, "page", defaultPageSize, "Flash page size (bytes).")
	flag.Parse()

	if outPath == "" {
		fmt.Fprintln(os.Stderr, "error: -out is required")
		os.Exit(2)
	}
	if hours > counter.Max {
		fmt.Fprintf(os.Stderr, "error: -hours %d: above %d\n", hours, counter.Max)
		os.Exit(2)
	}

	opts := options{
		path:      outPath,
		hours:     hours,
		fresh:     fresh,
		flash:     flash,
		eraseSize: int64(eraseSize),
		pageSize:  int64(pageSize),
	}
	if err := run(opts, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type options struct {
	path      string
	hours     int
	fresh     bool
	flash     bool
	eraseSize int64
	pageSize  int64
}

func run(o options, out io.Writer) error {
	store, closer, err := open(o)
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()

	if o.hours >= 0 {
		lo, hi := counter.Encode(uint16(o.hours))
		if err := store.Write(counter.AddrLo, lo); err != nil {
			return err
		}
		if err := store.Write(counter.AddrHi, hi); err != nil {
			return err
		}
	}
	return dump(store, out)
}

func open(o options) (hal.EEPROM, io.Closer, error) {
	if !o.flash {
		img, err := openFlatImage(o.path, o.fresh)
		return img, img, err
	}
	ff, err := openFlashFile(o.path, o.eraseSize, o.fresh)
	if err != nil {
		return nil, nil, err
	}
	e, err := hal.NewFlashEEPROM(ff, 0, o.eraseSize, o.pageSize)
	if err != nil {
		_ = ff.Close()
		return nil, nil, err
	}
	return e, ff, nil
}

func dump(store hal.EEPROM, out io.Writer) error {
	lo, err := store.Read(counter.AddrLo)
	if err != nil {
		return err
	}
	hi, err := store.Read(counter.AddrHi)
	if err != nil {
		return err
	}
	h, ok := counter.Decode(lo, hi)
	_, err = fmt.Fprintf(out, "hours=%d valid=%t bytes=%02x %02x\n", h, ok, lo, hi)
	return err
}

// flatImage is the host emulator's EEPROM file.
type flatImage struct {
	f    *os.File
	data [flatSize]byte
}

func openFlatImage(path string, fresh bool) (*flatImage, error) {
	flags := os.O_RDWR | os.O_CREATE
	if fresh {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open image %q: %w", path, err)
	}
	img := &flatImage{f: f}
	for i := range img.data {
		img.data[i] = 0xFF
	}
	if _, err := f.ReadAt(img.data[:], 0); err != nil && !errors.Is(err, io.EOF) {
		_ = f.Close()
		return nil, fmt.Errorf("read image %q: %w", path, err)
	}
	if _, err := f.WriteAt(img.data[:], 0); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("init image %q: %w", path, err)
	}
	return img, nil
}

func (m *flatImage) Size() int  { return flatSize }
func (m *flatImage) Busy() bool { return false }
func (m *flatImage) Close() error {
	return m.f.Close()
}

func (m *flatImage) Read(addr int) (byte, error) {
	if addr < 0 || addr >= flatSize {
		return 0, fmt.Errorf("image read at %d: %w", addr, hal.ErrEEPROMRange)
	}
	return m.data[addr], nil
}

func (m *flatImage) Write(addr int, v byte) error {
	if addr < 0 || addr >= flatSize {
		return fmt.Errorf("image write at %d: %w", addr, hal.ErrEEPROMRange)
	}
	m.data[addr] = v
	_, err := m.f.WriteAt([]byte{v}, int64(addr))
	return err
}

// flashFile is a NOR flash image: writes may only clear bits, erases set
// whole blocks back to 0xFF.
type flashFile struct {
	f         *os.File
	size      int64
	eraseSize int64

	scratch []byte
}

func openFlashFile(path string, eraseSize int64, fresh bool) (*flashFile, error) {
	if eraseSize == 0 || eraseSize%256 != 0 {
		return nil, fmt.Errorf("flash: invalid erase size %d", eraseSize)
	}
	flags := os.O_RDWR | os.O_CREATE
	if fresh {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open flash file %q: %w", path, err)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat flash file %q: %w", path, err)
	}

	ff := &flashFile{
		f:         f,
		size:      eraseSize * hal.FlashEEPROMBlocks,
		eraseSize: eraseSize,
		scratch:   make([]byte, eraseSize),
	}
	for i := range ff.scratch {
		ff.scratch[i] = 0xFF
	}

	switch st.Size() {
	case ff.size:
	case 0:
		if err := ff.EraseBlocks(0, hal.FlashEEPROMBlocks); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("erase flash file %q: %w", path, err)
		}
	default:
		_ = f.Close()
		return nil, fmt.Errorf("flash file %q: size %d, want %d", path, st.Size(), ff.size)
	}
	return ff, nil
}

func (f *flashFile) Close() error { return f.f.Close() }

func (f *flashFile) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= f.size {
		return 0, fmt.Errorf("flash read at %d: %w", off, os.ErrInvalid)
	}
	if maxN := f.size - off; int64(len(p)) > maxN {
		p = p[:maxN]
	}
	return f.f.ReadAt(p, off)
}

func (f *flashFile) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= f.size {
		return 0, fmt.Errorf("flash write at %d: %w", off, os.ErrInvalid)
	}
	if maxN := f.size - off; int64(len(p)) > maxN {
		p = p[:maxN]
	}

	prev := make([]byte, len(p))
	if _, err := f.f.ReadAt(prev, off); err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("flash read before write at %d: %w", off, err)
	}
	for i := range p {
		if prev[i]&p[i] != p[i] {
			return 0, errors.New("flash write requires erase")
		}
	}
	return f.f.WriteAt(p, off)
}

// EraseBlocks erases length blocks starting at block start.
func (f *flashFile) EraseBlocks(start, length int64) error {
	off, size := start*f.eraseSize, length*f.eraseSize
	if off < 0 || size < 0 || off+size > f.size {
		return fmt.Errorf("flash erase blocks %d+%d: %w", start, length, os.ErrInvalid)
	}
	for ; size > 0; size -= f.eraseSize {
		if _, err := f.f.WriteAt(f.scratch, off); err != nil {
			return fmt.Errorf("flash erase block at %d: %w", off, err)
		}
		off += f.eraseSize
	}
	return nil
}
