package segment

import "testing"

func TestSetDigitFont(t *testing.T) {
	w := &DefaultWiring
	for v := uint8(0); v < 10; v++ {
		b := NewBitmap(w)
		b.SetDigit(0, v)
		for seg := SegA; seg <= SegG; seg++ {
			want := Font[v]&(1<<seg) != 0
			got := b.Bits()&w.Mask(0, seg) != 0
			if got != want {
				t.Fatalf("SetDigit(0, %d) segment %d = %v, want %v", v, seg, got, want)
			}
		}
	}
}

func TestSetDigitOnePosition(t *testing.T) {
	b := NewBitmap(nil)
	b.SetDigit(3, 8)
	// Digit 8 lights every segment of the leftmost digit, LCD_1A..LCD_1G.
	want := uint32(1<<26 | 1<<25 | 1<<4 | 1<<3 | 1<<2 | 1<<27 | 1<<28)
	if got := b.Bits(); got != want {
		t.Fatalf("Bits() = %#08x, want %#08x", got, want)
	}
}

func TestSetDigitIgnoresOutOfRange(t *testing.T) {
	b := NewBitmap(nil)
	b.SetNumber(1234)
	before := b.Bits()

	b.SetDigit(4, 1)
	b.SetDigit(-1, 1)
	b.SetDigit(0, 10)
	b.SetDigit(1, 0xFE)
	if got := b.Bits(); got != before {
		t.Fatalf("Bits() = %#08x after out-of-range calls, want %#08x", got, before)
	}
}

func TestSetDigitBlankKeepsPoint(t *testing.T) {
	b := NewBitmap(nil)
	b.SetDigit(2, 8)
	b.SetPoint(2, true)
	b.SetDigit(2, Blank)
	if got, want := b.Bits(), DefaultWiring.Mask(2, SegDP); got != want {
		t.Fatalf("Bits() = %#08x, want only the decimal point %#08x", got, want)
	}
}

func TestSetPointUnwired(t *testing.T) {
	b := NewBitmap(nil)
	b.SetPoint(0, true)
	if b.Bits() != 0 {
		t.Fatalf("SetPoint(0) lit %#08x, want nothing", b.Bits())
	}
}

func TestBackplaneNeverSet(t *testing.T) {
	b := NewBitmap(nil)
	b.SetNumber(8888)
	for pos := 1; pos < Digits; pos++ {
		b.SetPoint(pos, true)
	}
	if b.Bits()&DefaultWiring.BackplaneMask() != 0 {
		t.Fatalf("Bits() = %#08x has the backplane bit", b.Bits())
	}
	if b.Bits() != ^DefaultWiring.BackplaneMask() {
		t.Fatalf("Bits() = %#08x, want every segment %#08x", b.Bits(), ^DefaultWiring.BackplaneMask())
	}
}

func TestSetNumberLeadingZeros(t *testing.T) {
	b := NewBitmap(nil)
	b.SetNumber(42)
	want := NewBitmap(nil)
	want.SetDigit(0, 2)
	want.SetDigit(1, 4)
	want.SetDigit(2, 0)
	want.SetDigit(3, 0)
	if b.Bits() != want.Bits() {
		t.Fatalf("SetNumber(42) = %#08x, want %#08x", b.Bits(), want.Bits())
	}
}

func TestLitFollowsBackplane(t *testing.T) {
	w := &DefaultWiring
	m := w.Mask(1, SegA)
	if !w.Lit(m, 1, SegA) {
		t.Fatalf("Lit(phase 0) = false, want true")
	}
	if !w.Lit(^m, 1, SegA) {
		t.Fatalf("Lit(phase 1) = false, want true")
	}
	if w.Lit(0, 1, SegA) || w.Lit(^uint32(0), 1, SegA) {
		t.Fatalf("Lit() = true with segment and backplane equal")
	}
}
