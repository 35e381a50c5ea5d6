//go:build !tinygo && cgo

package hal

import (
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
)

// hostKeyboard maps keys onto the board inputs: A or Left is button 1,
// B or Right is button 2 (held keys hold the button) and S toggles the
// signal line.
type hostKeyboard struct {
	h       *Host
	held    [2]bool
	signal  bool
	buttons [2][]ebiten.Key
}

func newHostKeyboard(h *Host) *hostKeyboard {
	return &hostKeyboard{
		h: h,
		buttons: [2][]ebiten.Key{
			{ebiten.KeyA, ebiten.KeyArrowLeft},
			{ebiten.KeyB, ebiten.KeyArrowRight},
		},
	}
}

func (k *hostKeyboard) poll() {
	for i, keys := range k.buttons {
		down := false
		for _, key := range keys {
			if ebiten.IsKeyPressed(key) {
				down = true
			}
		}
		if down != k.held[i] {
			k.held[i] = down
			_ = k.h.PressButton(i, down)
		}
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyS) {
		k.signal = !k.signal
		_ = k.h.SetSignal(k.signal)
	}
}
