//go:build !tinygo

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hourmeter/app"
	"hourmeter/hal"
	"hourmeter/internal/debugsrv"
	"hourmeter/meter/config"
	"hourmeter/meter/glass"

	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	var (
		cfgPath    = flag.String("config", "", "YAML config file.")
		headless   = flag.Bool("headless", false, "Run without a window; drive inputs from stdin.")
		logPath    = flag.String("log", "", "Write the firmware log to this file, rotated by size.")
		debugAddr  = flag.String("debug", "", "Serve /metrics, /state and /display.png on this address.")
		rpi        = flag.Bool("rpi", false, "Drive real buttons, signal and LCD from a Raspberry Pi.")
		eepromPath = flag.String("eeprom", "", `EEPROM image file ("-" keeps it in memory).`)

		sleepTimeout = flag.Duration("sleep-timeout", 0, "Override sleep_timeout.")
		menuEnter    = flag.Duration("menu-enter", 0, "Override menu_enter.")
		wakePoll     = flag.Duration("wake-poll", 0, "Override wake_poll_interval.")
		bootMode     = flag.String("boot", "", "Override boot_mode (off or hours).")
		menu         = flag.Bool("menu", false, "Enable the option menu.")
		activeLow    = flag.Bool("signal-active-low", false, "Treat a low signal line as present.")
	)
	flag.Parse()

	cfg := config.Default()
	if *cfgPath != "" {
		c, err := config.Load(*cfgPath)
		if err != nil {
			fatal(err)
		}
		cfg = c
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "sleep-timeout":
			cfg.SleepTimeout = *sleepTimeout
		case "menu-enter":
			cfg.MenuEnter = *menuEnter
		case "wake-poll":
			cfg.WakePollInterval = *wakePoll
		case "boot":
			cfg.BootMode = *bootMode
		case "menu":
			cfg.Menu = *menu
		case "signal-active-low":
			cfg.SignalActiveLow = *activeLow
		}
	})
	if err := cfg.Validate(); err != nil {
		fatal(err)
	}

	var logw io.Writer = os.Stdout
	if *logPath != "" {
		lj := &lumberjack.Logger{Filename: *logPath, MaxSize: 10, MaxBackups: 3, MaxAge: 28}
		defer lj.Close()
		logw = lj
	}

	opts := hal.HostOptions{Log: logw, EEPROMPath: *eepromPath, SignalActiveLow: cfg.SignalActiveLow}
	var h *hal.Host
	if *rpi {
		ro := hal.DefaultRPiOptions()
		ro.HostOptions = opts
		var err error
		if h, err = hal.NewRPi(ro); err != nil {
			fatal(err)
		}
	} else {
		h = hal.NewHost(opts)
	}
	defer h.Close()

	fw, err := app.New(h, cfg)
	if err != nil {
		fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fw.Run(ctx) }()

	renderer := glass.New(nil)
	draw := func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		frame, _ := h.LatchedFrame()
		return renderer.Draw(h.Display().Framebuffer(), frame, fw.Status().String())
	}

	if *debugAddr != "" {
		r := debugsrv.Router(h, func() any { return fw.Status() })
		go func() {
			if err := debugsrv.Serve(ctx, *debugAddr, r); err != nil && !errors.Is(err, context.Canceled) {
				fmt.Fprintln(os.Stderr, "debug server:", err)
			}
		}()
	}

	if *headless {
		if *debugAddr != "" {
			go redraw(ctx, draw)
		}
		err = hal.RunHeadless(ctx, h, hal.HeadlessConfig{
			In:    os.Stdin,
			Out:   os.Stdout,
			State: func() string { return fw.Status().String() },
		})
	} else {
		err = hal.RunWindow(h, draw)
	}
	cancel()

	// Cancel wakes a sleeping firmware; the timeout bounds a stuck step.
	select {
	case ferr := <-done:
		if err == nil && !errors.Is(ferr, context.Canceled) {
			err = ferr
		}
	case <-time.After(2 * time.Second):
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		fatal(err)
	}
}

// redraw keeps the framebuffer current for /display.png when no window
// does it.
func redraw(ctx context.Context, draw func() error) {
	t := time.NewTicker(100 * time.Millisecond)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			_ = draw()
		}
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
