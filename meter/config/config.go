// Package config holds the firmware timing knobs.
//
// Defaults can be changed at build time, the same way as the build info:
//
//	-ldflags "-X hourmeter/meter/config.SleepTimeoutS=30"
package config

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Build-time overrides. Empty or malformed values keep the defaults, as do
// values the resulting config would fail Validate with.
var (
	SleepTimeoutS     = ""
	MenuEnterMS       = ""
	WakePollIntervalS = ""
)

// Boot modes.
const (
	BootOff   = "off"
	BootHours = "hours"
)

// ClockWrap is the period of the 16-bit millisecond time base. Durations the
// main loop measures against it must stay below it.
const ClockWrap = 65536 * time.Millisecond

type Config struct {
	// SleepTimeout is the idle time after the last combined release before
	// the meter sleeps.
	SleepTimeout time.Duration `yaml:"sleep_timeout"`
	// MenuEnter is how long both buttons must be held in Hours.
	MenuEnter time.Duration `yaml:"menu_enter"`
	// WakePollInterval is how often the signal is re-checked while asleep
	// with the signal active.
	WakePollInterval time.Duration `yaml:"wake_poll_interval"`
	WatchdogPeriod   time.Duration `yaml:"watchdog_period"`

	RefreshHz  uint32        `yaml:"refresh_hz"`
	LoopPeriod time.Duration `yaml:"loop_period"`
	// SettleDelay lets the blanked glass clear before refresh stops.
	SettleDelay       time.Duration `yaml:"settle_delay"`
	SignalPollWindow  time.Duration `yaml:"signal_poll_window"`
	SignalPollSamples int           `yaml:"signal_poll_samples"`
	// ReleaseWaitMax bounds WaitForRelease.
	ReleaseWaitMax time.Duration `yaml:"release_wait_max"`
	// EEPROMWriteWait bounds the wait for a previous EEPROM write.
	EEPROMWriteWait time.Duration `yaml:"eeprom_write_wait"`

	SignalActiveLow bool   `yaml:"signal_active_low"`
	BootMode        string `yaml:"boot_mode"`
	// Menu puts an option menu between Hours and SetHours.
	Menu bool `yaml:"menu"`
}

// Default returns the stock configuration with build-time overrides applied.
func Default() Config {
	c := Config{
		SleepTimeout:      20 * time.Second,
		MenuEnter:         2000 * time.Millisecond,
		WakePollInterval:  80 * time.Second,
		WatchdogPeriod:    8 * time.Second,
		RefreshHz:         64,
		LoopPeriod:        10 * time.Millisecond,
		SettleDelay:       50 * time.Millisecond,
		SignalPollWindow:  40 * time.Millisecond,
		SignalPollSamples: 5,
		ReleaseWaitMax:    30 * time.Second,
		EEPROMWriteWait:   20 * time.Millisecond,
		BootMode:          BootOff,
	}
	override(&c, &c.SleepTimeout, SleepTimeoutS, time.Second)
	override(&c, &c.MenuEnter, MenuEnterMS, time.Millisecond)
	override(&c, &c.WakePollInterval, WakePollIntervalS, time.Second)
	return c
}

// override sets *d, a field of c, from s and reverts it if c no longer
// validates.
func override(c *Config, d *time.Duration, s string, unit time.Duration) {
	if s == "" {
		return
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return
	}
	prev := *d
	*d = time.Duration(n) * unit
	if c.Validate() != nil {
		*d = prev
	}
}

var ErrInvalid = errors.New("invalid config")

// Validate checks ranges. It does not modify the config.
func (c Config) Validate() error {
	wrapped := []struct {
		name string
		d    time.Duration
	}{
		{"sleep_timeout", c.SleepTimeout},
		{"menu_enter", c.MenuEnter},
		{"loop_period", c.LoopPeriod},
		{"settle_delay", c.SettleDelay},
		{"signal_poll_window", c.SignalPollWindow},
		{"release_wait_max", c.ReleaseWaitMax},
	}
	for _, w := range wrapped {
		if w.d <= 0 || w.d >= ClockWrap {
			return fmt.Errorf("%s %v: must be in (0, %v): %w", w.name, w.d, ClockWrap, ErrInvalid)
		}
	}
	if c.WatchdogPeriod <= 0 {
		return fmt.Errorf("watchdog_period %v: must be positive: %w", c.WatchdogPeriod, ErrInvalid)
	}
	if c.WakePollInterval < c.WatchdogPeriod {
		return fmt.Errorf("wake_poll_interval %v: shorter than watchdog_period %v: %w",
			c.WakePollInterval, c.WatchdogPeriod, ErrInvalid)
	}
	if c.RefreshHz < 2 || c.RefreshHz > 1000 {
		return fmt.Errorf("refresh_hz %d: must be in [2, 1000]: %w", c.RefreshHz, ErrInvalid)
	}
	if c.SignalPollSamples < 1 {
		return fmt.Errorf("signal_poll_samples %d: must be at least 1: %w", c.SignalPollSamples, ErrInvalid)
	}
	if c.ReleaseWaitMax < c.LoopPeriod {
		return fmt.Errorf("release_wait_max %v: shorter than loop_period: %w", c.ReleaseWaitMax, ErrInvalid)
	}
	if c.EEPROMWriteWait <= 0 {
		return fmt.Errorf("eeprom_write_wait %v: must be positive: %w", c.EEPROMWriteWait, ErrInvalid)
	}
	switch c.BootMode {
	case BootOff, BootHours:
	default:
		return fmt.Errorf("boot_mode %q: want %q or %q: %w", c.BootMode, BootOff, BootHours, ErrInvalid)
	}
	return nil
}

// String renders the knobs for the boot log.
func (c Config) String() string {
	return "sleep=" + c.SleepTimeout.String() +
		" menu_enter=" + c.MenuEnter.String() +
		" wake_poll=" + c.WakePollInterval.String() +
		" wdt=" + c.WatchdogPeriod.String() +
		" refresh=" + strconv.Itoa(int(c.RefreshHz)) + "Hz" +
		" boot=" + c.BootMode +
		" menu=" + strconv.FormatBool(c.Menu)
}
