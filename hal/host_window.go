//go:build !tinygo && cgo

package hal

import (
	"image"

	"hourmeter/internal/buildinfo"

	"github.com/hajimehoshi/ebiten/v2"
)

// RunWindow opens a desktop window that shows the framebuffer and forwards
// keyboard input to the board. frame runs once per window update and is
// where the caller redraws the framebuffer. It blocks until the window closes.
func RunWindow(h *Host, frame func() error) error {
	g := &hostGame{h: h, kbd: newHostKeyboard(h), frame: frame}
	ebiten.SetWindowTitle("Hour meter (" + buildinfo.Short() + ")")
	ebiten.SetWindowSize(h.fb.width*2, h.fb.height*2)
	ebiten.SetTPS(30)
	return ebiten.RunGame(g)
}

type hostGame struct {
	h       *Host
	kbd     *hostKeyboard
	img     *image.RGBA
	fbImg   *ebiten.Image
	scratch []byte
	frame   func() error
}

func (g *hostGame) Update() error {
	g.kbd.poll()
	if g.frame != nil {
		if err := g.frame(); err != nil {
			return err
		}
	}
	return nil
}

func (g *hostGame) Draw(screen *ebiten.Image) {
	fb := g.h.fb
	if g.img == nil || g.img.Bounds().Dx() != fb.width || g.img.Bounds().Dy() != fb.height {
		g.img = image.NewRGBA(image.Rect(0, 0, fb.width, fb.height))
		g.scratch = make([]byte, len(fb.buf))
		if g.fbImg != nil {
			g.fbImg.Deallocate()
		}
		g.fbImg = ebiten.NewImage(fb.width, fb.height)
	}

	fb.snapshotRGB565(g.scratch)
	rgbaFromRGB565(g.img.Pix, g.scratch)

	g.fbImg.WritePixels(g.img.Pix)
	screen.DrawImage(g.fbImg, nil)
}

func (g *hostGame) Layout(outsideWidth, outsideHeight int) (int, int) {
	return g.h.fb.width, g.h.fb.height
}
