//go:build !tinygo

package debugsrv

import (
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"gotest.tools/v3/assert"
)

type fakeBoard struct {
	buttons [2]bool
	signal  bool
}

func (b *fakeBoard) PressButton(i int, pressed bool) error {
	b.buttons[i] = pressed
	return nil
}

func (b *fakeBoard) SetSignal(active bool) error {
	b.signal = active
	return nil
}

func (b *fakeBoard) Snapshot() *image.RGBA { return image.NewRGBA(image.Rect(0, 0, 4, 2)) }

func do(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestState(t *testing.T) {
	r := Router(&fakeBoard{}, func() any { return map[string]int{"hours": 42} })
	rec := do(t, r, "GET", "/state")
	assert.Equal(t, rec.Code, http.StatusOK)
	assert.Equal(t, strings.TrimSpace(rec.Body.String()), `{"hours":42}`)
}

func TestDisplayPNG(t *testing.T) {
	r := Router(&fakeBoard{}, func() any { return nil })
	rec := do(t, r, "GET", "/display.png")
	assert.Equal(t, rec.Code, http.StatusOK)
	img, err := png.Decode(rec.Body)
	assert.NilError(t, err)
	assert.Equal(t, img.Bounds(), image.Rect(0, 0, 4, 2))
}

func TestButtonsAndSignal(t *testing.T) {
	b := &fakeBoard{}
	r := Router(b, func() any { return nil })

	assert.Equal(t, do(t, r, "POST", "/buttons/2/down").Code, http.StatusNoContent)
	assert.Equal(t, b.buttons, [2]bool{false, true})
	assert.Equal(t, do(t, r, "POST", "/buttons/2/up").Code, http.StatusNoContent)
	assert.Equal(t, b.buttons, [2]bool{false, false})

	assert.Equal(t, do(t, r, "POST", "/signal/on").Code, http.StatusNoContent)
	assert.Assert(t, b.signal)

	assert.Equal(t, do(t, r, "POST", "/buttons/3/down").Code, http.StatusNotFound)
	assert.Equal(t, do(t, r, "GET", "/buttons/1/down").Code, http.StatusMethodNotAllowed)
}

func TestMetrics(t *testing.T) {
	r := Router(&fakeBoard{}, func() any { return nil })
	rec := do(t, r, "GET", "/metrics")
	assert.Equal(t, rec.Code, http.StatusOK)
	assert.Assert(t, strings.Contains(rec.Body.String(), "hourmeter_"))
}
