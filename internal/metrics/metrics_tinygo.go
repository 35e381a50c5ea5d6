//go:build tinygo

package metrics

func ModeChanged(string)        {}
func PowerChanged(string)       {}
func Woke(string)               {}
func Persisted()                {}
func PersistFailed()            {}
func SetHours(uint16)           {}
func SetSignal(bool)            {}
func WatchFrames(func() uint64) {}
