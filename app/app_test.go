package app

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"hourmeter/hal"
	"hourmeter/hal/halsim"
	"hourmeter/meter/config"
	"hourmeter/meter/counter"
	"hourmeter/meter/nav"
	"hourmeter/meter/power"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

func withHours(h uint16) halsim.Option {
	lo, hi := counter.Encode(h)
	return halsim.WithEEPROM([]byte{lo, hi})
}

func stored(sim *halsim.Sim) uint16 {
	b := sim.Store().Bytes()
	h, _ := counter.Decode(b[counter.AddrLo], b[counter.AddrHi])
	return h
}

func TestBootLogsConfigAndCount(t *testing.T) {
	sim := halsim.New(withHours(42))
	f, err := New(sim, config.Default())
	assert.NilError(t, err)

	assert.Assert(t, sim.Log().Contains("hourmeter: build="))
	assert.Assert(t, sim.Log().Contains("counter: hours=42"))
	st := f.Status()
	assert.Equal(t, st.Mode, nav.Off)
	assert.Equal(t, st.Hours, uint16(42))
	assert.Equal(t, st.Power, power.Status{State: power.Active})
	assert.Assert(t, sim.Timer().Running())
}

func TestBootErasedStore(t *testing.T) {
	sim := halsim.New()
	f, err := New(sim, config.Default())
	assert.NilError(t, err)
	assert.Assert(t, sim.Log().Contains("counter: no valid record"))
	assert.Equal(t, f.Status().Hours, uint16(0))
}

func TestInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.SleepTimeout = 0
	_, err := New(halsim.New(), cfg)
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestBootHours(t *testing.T) {
	cfg := config.Default()
	cfg.BootMode = config.BootHours
	sim := halsim.New(withHours(7))
	f, err := New(sim, cfg)
	assert.NilError(t, err)
	assert.Equal(t, f.Status().Mode, nav.Hours)
	assert.Assert(t, sim.Log().Contains("nav: off>hours"))
}

func TestRunEndToEnd(t *testing.T) {
	sim := halsim.New(withHours(42))
	f, err := New(sim, config.Default())
	assert.NilError(t, err)

	ms := time.Millisecond
	sim.PressAt(100*ms, hal.Button1)
	sim.ReleaseAt(200*ms, hal.Button1)
	// Hold both for 2.5 s: SetHours.
	sim.PressAt(1000*ms, hal.Button1)
	sim.PressAt(1000*ms, hal.Button2)
	sim.ReleaseAt(3500*ms, hal.Button1)
	sim.ReleaseAt(3500*ms, hal.Button2)
	// +1.
	sim.PressAt(4000*ms, hal.Button1)
	sim.ReleaseAt(4100*ms, hal.Button1)
	// Both again: back to Hours, stored.
	sim.PressAt(5000*ms, hal.Button1)
	sim.PressAt(5000*ms, hal.Button2)
	sim.ReleaseAt(5200*ms, hal.Button1)
	sim.ReleaseAt(5200*ms, hal.Button2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sim.At(6*time.Second, cancel)

	err = f.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	for _, want := range []string{
		"nav: off>hours",
		"nav: hours>set-hours",
		"nav: set-hours>hours",
		"counter: persisted hours=43",
		"nav: hours>off",
		"hourmeter: stopped hours=43",
	} {
		assert.Assert(t, sim.Log().Contains(want), "missing log line %q in %v", want, sim.Log().Lines())
	}
	assert.Equal(t, stored(sim), uint16(43))
	assert.Equal(t, f.Status().Hours, uint16(43))
	assert.Assert(t, !sim.Timer().Running())
}

func TestRunStopsWhileAsleep(t *testing.T) {
	sim := halsim.New(withHours(5))
	f, err := New(sim, config.Default())
	assert.NilError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// The cancel hook wakes the core from its own goroutine; waking here as
	// well keeps the simulated timeline deterministic.
	sim.At(30*time.Second, func() {
		cancel()
		f.power.Interrupt()
	})

	err = f.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Assert(t, sim.Now() < 31*time.Second, "stopped at %v", sim.Now())
	assert.Equal(t, sim.Sleeps, 1)
	for _, want := range []string{
		"power: sleeping(external-level) wakes=0",
		"power: wake=shutdown",
		"hourmeter: stopped hours=5",
	} {
		assert.Assert(t, sim.Log().Contains(want), "missing log line %q in %v", want, sim.Log().Lines())
	}
	assert.Assert(t, !sim.Log().Contains("power: wake=button"))
	assert.Equal(t, sim.SignalPin().Trigger(), hal.TriggerNone)
}

func TestSleepCycleIsLogged(t *testing.T) {
	sim := halsim.New(withHours(5))
	f, err := New(sim, config.Default())
	assert.NilError(t, err)
	sim.PressAt(25*time.Second, hal.Button2)
	sim.ReleaseAt(25100*time.Millisecond, hal.Button2)

	for sim.Now() < 26*time.Second {
		f.Step()
		sim.Advance(10 * time.Millisecond)
	}

	assert.Equal(t, sim.Sleeps, 1)
	assert.Assert(t, sim.Log().Contains("power: sleeping(external-level) wakes=0"))
	assert.Assert(t, sim.Log().Contains("power: wake=button"))
	assert.Assert(t, sim.Log().Contains("power: active"))
	assert.Assert(t, sim.Log().Contains("nav: off>hours"))
	assert.Assert(t, !sim.Log().Contains("sleep-armed"))
	st := f.Status()
	assert.Equal(t, st.Power.State, power.Active)
	assert.Equal(t, st.Mode, nav.Hours)
}

func TestPersistFailureIsLogged(t *testing.T) {
	sim := halsim.New(withHours(9))
	f, err := New(sim, config.Default())
	assert.NilError(t, err)
	sim.Store().StuckBusy = true

	assert.ErrorIs(t, f.counter.Persist(), counter.ErrWriteTimeout)
	f.drain()
	assert.Assert(t, sim.Log().Contains("counter: persist failed hours=9: save 0: eeprom write timeout"))
}

type faultyBus struct{ *halsim.Bus }

func (faultyBus) Tx(w, r []byte) error { panic("bus fault") }

type faultyHAL struct{ *halsim.Sim }

func (h faultyHAL) Bus() hal.SegmentBus { return faultyBus{h.Sim.SegmentBus()} }

func TestPanicIsRecovered(t *testing.T) {
	sim := halsim.New()
	f, err := New(faultyHAL{sim}, config.Default())
	assert.NilError(t, err)

	err = f.Run(context.Background())
	assert.ErrorIs(t, err, ErrPanic)
	assert.Assert(t, is.Contains(err.Error(), "bus fault"))
	assert.Assert(t, sim.Log().Contains("hourmeter panic: bus fault"))
	assert.Assert(t, !sim.Timer().Running())
}

func TestPanicLines(t *testing.T) {
	got := panicLines("boom", nil)
	assert.DeepEqual(t, got, []string{"hourmeter panic: boom", "stack: unavailable"})

	got = panicLines("boom", []byte("a\n\nb\n"))
	assert.DeepEqual(t, got, []string{"hourmeter panic: boom", "stack:", "a", "b"})
}

func TestStatusString(t *testing.T) {
	s := Status{
		Mode:   nav.SetHours,
		Hours:  7,
		Power:  power.Status{State: power.Sleeping, Source: power.Watchdog},
		Signal: true,
	}
	if got, want := s.String(), "set-hours 0007 sleeping(watchdog) sig=on"; got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}

func TestStatusJSON(t *testing.T) {
	b, err := json.Marshal(Status{Mode: nav.Hours, Hours: 42})
	assert.NilError(t, err)
	s := string(b)
	assert.Assert(t, strings.Contains(s, `"mode":"hours"`), s)
	assert.Assert(t, strings.Contains(s, `"power":"active"`), s)
	assert.Assert(t, strings.Contains(s, `"hours":42`), s)
}
