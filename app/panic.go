package app

import (
	"errors"
	"fmt"
	"runtime/debug"
	"strings"

	"hourmeter/meter/glass"
)

var ErrPanic = errors.New("firmware panic")

// recoverPanic turns a panic in the main loop into ErrPanic. The refresh
// timer stops, the panic and stack go to the log, and hosts with a
// framebuffer show them on screen.
func (f *Firmware) recoverPanic(err *error) {
	v := recover()
	if v == nil {
		return
	}
	f.h.RefreshTimer().Stop()
	lines := panicLines(v, debug.Stack())
	for _, line := range lines {
		f.logLine(line)
	}
	if disp := f.h.Display(); disp != nil {
		if fb := disp.Framebuffer(); fb != nil {
			_ = glass.New(nil).Message(fb, lines)
		}
	}
	*err = fmt.Errorf("%w: %v", ErrPanic, v)
}

func panicLines(v any, stack []byte) []string {
	lines := []string{fmt.Sprintf("hourmeter panic: %v", v)}
	if len(stack) == 0 {
		return append(lines, "stack: unavailable")
	}
	lines = append(lines, "stack:")
	for _, line := range strings.Split(string(stack), "\n") {
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}
