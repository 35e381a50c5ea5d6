//go:build !tinygo

// Package metrics exports firmware counters to Prometheus on the host. On
// TinyGo every function is a no-op.
package metrics

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	modeChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hourmeter_mode_changes_total",
		Help: "display mode transitions, by target mode",
	}, []string{"mode"})

	powerChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hourmeter_power_changes_total",
		Help: "power state transitions, by target state",
	}, []string{"state"})

	wakes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hourmeter_wakes_total",
		Help: "wakes from sleep, by cause",
	}, []string{"source"})

	persists = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hourmeter_eeprom_persists_total",
		Help: "hour counter records written to nonvolatile storage",
	})

	persistErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hourmeter_eeprom_persist_errors_total",
		Help: "hour counter writes abandoned because the store stayed busy",
	})

	hours = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hourmeter_hours",
		Help: "current hour counter",
	})

	signal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hourmeter_signal_active",
		Help: "1 while the signal-present line is asserted",
	})

	frameSource atomic.Pointer[func() uint64]

	_ = promauto.NewCounterFunc(prometheus.CounterOpts{
		Name: "hourmeter_lcd_frames_total",
		Help: "frames latched into the segment driver",
	}, func() float64 {
		if fn := frameSource.Load(); fn != nil {
			return float64((*fn)())
		}
		return 0
	})
)

func ModeChanged(mode string)   { modeChanges.WithLabelValues(mode).Inc() }
func PowerChanged(state string) { powerChanges.WithLabelValues(state).Inc() }
func Woke(source string)        { wakes.WithLabelValues(source).Inc() }
func Persisted()                { persists.Inc() }
func PersistFailed()            { persistErrors.Inc() }
func SetHours(h uint16)         { hours.Set(float64(h)) }

func SetSignal(active bool) {
	if active {
		signal.Set(1)
		return
	}
	signal.Set(0)
}

// WatchFrames exports the LCD frame count read from fn at scrape time. The
// latest call wins.
func WatchFrames(fn func() uint64) { frameSource.Store(&fn) }

// Handler serves the default registry.
func Handler() http.Handler { return promhttp.Handler() }
