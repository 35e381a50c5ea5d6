// Package segment encodes digits into the LCD segment bitmap.
package segment

import "hourmeter/kernel"

// Digits is the number of digit positions. Position 0 is the rightmost.
const Digits = 4

// Blank clears a digit.
const Blank uint8 = 0xFF

// Segment names one element of a digit: A through G, then the decimal point.
type Segment uint8

const (
	SegA Segment = iota
	SegB
	SegC
	SegD
	SegE
	SegF
	SegG
	SegDP
)

// Font holds the lit segments of each decimal digit, bit n = Segment n.
var Font = [10]uint8{0x3F, 0x06, 0x5B, 0x4F, 0x66, 0x6D, 0x7D, 0x07, 0x7F, 0x6F}

// Unwired marks a segment with no driver output.
const Unwired int8 = -1

// Wiring maps digit segments onto driver output bits.
type Wiring struct {
	Bits      [Digits][8]int8
	Backplane uint8
}

// DefaultWiring is the production glass and driver board.
var DefaultWiring = Wiring{
	Bits: [Digits][8]int8{
		{23, 16, 8, 13, 14, 22, 21, Unwired},
		{18, 17, 12, 11, 10, 19, 20, 15},
		{31, 24, 0, 6, 7, 30, 29, 9},
		{26, 25, 4, 3, 2, 27, 28, 5},
	},
	Backplane: 1,
}

// BackplaneMask returns the backplane bit.
func (w *Wiring) BackplaneMask() uint32 { return 1 << w.Backplane }

// Mask returns the output bit of a segment, or 0 when it is not wired.
func (w *Wiring) Mask(pos int, seg Segment) uint32 {
	if pos < 0 || pos >= Digits || seg > SegDP {
		return 0
	}
	b := w.Bits[pos][seg]
	if b < 0 || b > 31 {
		return 0
	}
	return 1 << uint(b)
}

// Lit reports whether a latched driver frame shows a segment. A segment is
// visible when its output differs from the backplane.
func (w *Wiring) Lit(frame uint32, pos int, seg Segment) bool {
	m := w.Mask(pos, seg)
	if m == 0 {
		return false
	}
	return (frame&m != 0) != (frame&w.BackplaneMask() != 0)
}

// Bitmap is the logical segment state. The main loop writes it and the
// refresh interrupt reads it with Bits; the backplane bit is always clear.
type Bitmap struct {
	wiring *Wiring
	word   kernel.Word
}

func NewBitmap(w *Wiring) *Bitmap {
	if w == nil {
		w = &DefaultWiring
	}
	return &Bitmap{wiring: w}
}

// Wiring returns the mapping the bitmap encodes with.
func (b *Bitmap) Wiring() *Wiring { return b.wiring }

// Bits returns a snapshot of the bitmap.
func (b *Bitmap) Bits() uint32 { return b.word.Load() }

// Clear turns every segment off.
func (b *Bitmap) Clear() { b.word.Store(0) }

// SetDigit draws value (0-9, or Blank) at pos. Positions outside [0, Digits)
// and values above 9 other than Blank are ignored. The decimal point is left
// as it was.
func (b *Bitmap) SetDigit(pos int, value uint8) {
	if pos < 0 || pos >= Digits {
		return
	}
	var glyph uint8
	switch {
	case value == Blank:
	case value < 10:
		glyph = Font[value]
	default:
		return
	}
	bits := b.word.Load()
	for seg := SegA; seg <= SegG; seg++ {
		m := b.wiring.Mask(pos, seg)
		if glyph&(1<<seg) != 0 {
			bits |= m
		} else {
			bits &^= m
		}
	}
	b.word.Store(bits)
}

// SetPoint turns the decimal point at pos on or off. Positions without a
// wired decimal point are ignored.
func (b *Bitmap) SetPoint(pos int, on bool) {
	m := b.wiring.Mask(pos, SegDP)
	if m == 0 {
		return
	}
	bits := b.word.Load()
	if on {
		bits |= m
	} else {
		bits &^= m
	}
	b.word.Store(bits)
}

// SetNumber draws n modulo 10^Digits with leading zeros.
func (b *Bitmap) SetNumber(n uint16) {
	for pos := 0; pos < Digits; pos++ {
		b.SetDigit(pos, uint8(n%10))
		n /= 10
	}
}
