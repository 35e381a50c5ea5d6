//go:build !tinygo

package hal

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// HeadlessConfig controls the no-window host runner.
type HeadlessConfig struct {
	// In carries console commands, one per line:
	//
	//	b1 down|up
	//	b2 down|up
	//	sig on|off
	//	state
	In io.Reader
	// Out receives command replies.
	Out io.Writer
	// State renders the firmware status for the "state" command.
	State func() string
}

// RunHeadless drives the board from a line-oriented console until ctx is done.
// The firmware runs on its own goroutine; this only feeds the input pins.
func RunHeadless(ctx context.Context, h *Host, cfg HeadlessConfig) error {
	if cfg.Out == nil {
		cfg.Out = io.Discard
	}
	lines := make(chan string)
	if cfg.In != nil {
		go func() {
			sc := bufio.NewScanner(cfg.In)
			for sc.Scan() {
				select {
				case lines <- sc.Text():
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line := <-lines:
			if err := h.command(line, cfg); err != nil {
				fmt.Fprintln(cfg.Out, "error:", err)
			}
		}
	}
}

func (h *Host) command(line string, cfg HeadlessConfig) error {
	f := strings.Fields(strings.ToLower(line))
	if len(f) == 0 {
		return nil
	}
	switch f[0] {
	case "b1", "b2":
		if len(f) != 2 || (f[1] != "down" && f[1] != "up") {
			return fmt.Errorf("usage: %s down|up", f[0])
		}
		i := Button1
		if f[0] == "b2" {
			i = Button2
		}
		return h.PressButton(i, f[1] == "down")
	case "sig":
		if len(f) != 2 || (f[1] != "on" && f[1] != "off") {
			return fmt.Errorf("usage: sig on|off")
		}
		return h.SetSignal(f[1] == "on")
	case "state":
		if cfg.State == nil {
			return ErrNotImplemented
		}
		fmt.Fprintln(cfg.Out, cfg.State())
		return nil
	default:
		return fmt.Errorf("unknown command %q", f[0])
	}
}
