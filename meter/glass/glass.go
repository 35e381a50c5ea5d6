// Package glass draws what the LCD shows onto an emulated framebuffer.
//
// It decodes latched driver frames, not the bitmap, so the picture follows
// the refresh interrupt: a stopped or parked driver shows blank glass.
package glass

import (
	"image/color"

	"hourmeter/hal"
	"hourmeter/meter/segment"

	"tinygo.org/x/drivers"
	"tinygo.org/x/tinyfont"
	"tinygo.org/x/tinyfont/proggy"
)

var (
	colorGlass = color.RGBA{R: 0xb4, G: 0xc2, B: 0xa4, A: 0xff}
	colorLit   = color.RGBA{R: 0x1c, G: 0x22, B: 0x1c, A: 0xff}
	colorGhost = color.RGBA{R: 0xa6, G: 0xb4, B: 0x96, A: 0xff}
	colorBar   = color.RGBA{R: 0x10, G: 0x10, B: 0x10, A: 0xff}
	colorText  = color.RGBA{R: 0xee, G: 0xee, B: 0xee, A: 0xff}
)

// Digit geometry in pixels.
const (
	digitW   = 48
	digitH   = 72
	thick    = 8
	pitch    = 72
	originX  = 20
	originY  = 12
	barH     = 22
	textBase = 6
	lineH    = 12
)

type Renderer struct {
	wiring *segment.Wiring
	font   tinyfont.Fonter
}

// New returns a renderer for glass wired as w (nil selects
// segment.DefaultWiring).
func New(w *segment.Wiring) *Renderer {
	if w == nil {
		w = &segment.DefaultWiring
	}
	return &Renderer{wiring: w, font: &proggy.TinySZ8pt7b}
}

// Draw paints the digits shown by a latched frame and a status line.
func (r *Renderer) Draw(fb hal.Framebuffer, frame uint32, status string) error {
	if fb == nil || fb.Format() != hal.PixelFormatRGB565 {
		return hal.ErrNotImplemented
	}
	d := &fbDisplay{fb: fb}
	w, h := d.Size()
	d.FillRectangle(0, 0, w, h-barH, colorGlass)

	for pos := 0; pos < segment.Digits; pos++ {
		x, y := DigitOrigin(pos)
		for seg := segment.SegA; seg <= segment.SegDP; seg++ {
			if r.wiring.Mask(pos, seg) == 0 {
				continue
			}
			c := colorGhost
			if r.wiring.Lit(frame, pos, seg) {
				c = colorLit
			}
			sx, sy, sw, sh := SegmentRect(seg, x, y)
			d.FillRectangle(sx, sy, sw, sh, c)
		}
	}

	d.FillRectangle(0, h-barH, w, barH, colorBar)
	tinyfont.WriteLine(d, r.font, 4, h-textBase, status, colorText)
	return d.Display()
}

// Message replaces the picture with lines of text, clipped to the screen.
func (r *Renderer) Message(fb hal.Framebuffer, lines []string) error {
	if fb == nil || fb.Format() != hal.PixelFormatRGB565 {
		return hal.ErrNotImplemented
	}
	d := &fbDisplay{fb: fb}
	w, h := d.Size()
	d.FillRectangle(0, 0, w, h, colorBar)
	for i, line := range lines {
		y := int16(i+1) * lineH
		if y > h {
			break
		}
		tinyfont.WriteLine(d, r.font, 4, y, line, colorText)
	}
	return d.Display()
}

// DigitOrigin returns the top-left corner of digit pos. Position 0 is the
// rightmost.
func DigitOrigin(pos int) (x, y int16) {
	return int16(originX + (segment.Digits-1-pos)*pitch), originY
}

// SegmentRect returns the rectangle of seg in the digit at (x, y).
func SegmentRect(seg segment.Segment, x, y int16) (rx, ry, rw, rh int16) {
	const half = digitH / 2
	switch seg {
	case segment.SegA:
		return x + thick, y, digitW - 2*thick, thick
	case segment.SegB:
		return x + digitW - thick, y + thick, thick, half - thick
	case segment.SegC:
		return x + digitW - thick, y + half, thick, half - thick
	case segment.SegD:
		return x + thick, y + digitH - thick, digitW - 2*thick, thick
	case segment.SegE:
		return x, y + half, thick, half - thick
	case segment.SegF:
		return x, y + thick, thick, half - thick
	case segment.SegG:
		return x + thick, y + half - thick/2, digitW - 2*thick, thick
	case segment.SegDP:
		return x + digitW + thick, y + digitH - thick, thick, thick
	}
	return 0, 0, 0, 0
}

// fbDisplay adapts a framebuffer to drivers.Displayer for tinyfont.
type fbDisplay struct {
	fb hal.Framebuffer
}

var _ drivers.Displayer = (*fbDisplay)(nil)

func (d *fbDisplay) Size() (x, y int16) {
	return int16(d.fb.Width()), int16(d.fb.Height())
}

func (d *fbDisplay) SetPixel(x, y int16, c color.RGBA) {
	d.FillRectangle(x, y, 1, 1, c)
}

func (d *fbDisplay) Display() error { return d.fb.Present() }

func (d *fbDisplay) FillRectangle(x, y, width, height int16, c color.RGBA) {
	buf := d.fb.Buffer()
	w, h := d.fb.Width(), d.fb.Height()
	x0, y0 := clamp(int(x), 0, w), clamp(int(y), 0, h)
	x1, y1 := clamp(int(x)+int(width), 0, w), clamp(int(y)+int(height), 0, h)

	pixel := rgb565(c)
	lo, hi := byte(pixel), byte(pixel>>8)
	stride := d.fb.StrideBytes()
	for py := y0; py < y1; py++ {
		row := py * stride
		for px := x0; px < x1; px++ {
			off := row + px*2
			if off+1 >= len(buf) {
				continue
			}
			buf[off] = lo
			buf[off+1] = hi
		}
	}
}

func rgb565(c color.RGBA) uint16 {
	return uint16(c.R>>3)<<11 | uint16(c.G>>2)<<5 | uint16(c.B>>3)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
