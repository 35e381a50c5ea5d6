//go:build !tinygo && !rpi

package hal

import "fmt"

// RPiOptions names the bench rig wiring (BCM numbering).
type RPiOptions struct {
	HostOptions
	Button1 string
	Button2 string
	Signal  string
	Latch   string
	SPIPort string
}

// DefaultRPiOptions returns the bench rig wiring.
func DefaultRPiOptions() RPiOptions { return RPiOptions{} }

// NewRPi needs a build with the rpi tag.
func NewRPi(RPiOptions) (*Host, error) {
	return nil, fmt.Errorf("raspberry pi backend (build with -tags rpi): %w", ErrNotImplemented)
}
