//go:build tinygo && bootdebug

package app

import (
	"machine"
	"sync"
	"time"

	"hourmeter/hal"
)

var (
	bootDiagMu   sync.Mutex
	bootDiagStep string
)

func bootStep(msg string) {
	bootDiagMu.Lock()
	bootDiagStep = msg
	bootDiagMu.Unlock()
}

// bootDiagStart repeats the current boot step on the log and USB CDC until
// the main loop is running, so a hang during bring-up names its step.
func bootDiagStart(h hal.HAL) {
	l := h.Logger()
	go func() {
		for {
			bootDiagMu.Lock()
			step := bootDiagStep
			bootDiagMu.Unlock()

			if step == "" {
				step = "<empty>"
			}
			line := "bootdiag: " + step
			if l != nil {
				l.WriteLineString(line)
			}
			if usb := machine.USBCDC; usb != nil {
				_, _ = usb.Write([]byte(line + "\r\n"))
			}
			if step == "running" {
				return
			}
			time.Sleep(250 * time.Millisecond)
		}
	}()
}
