// Package gpio provides pin control with hardware abstraction.
// The gpiomem backend writes the SoC registers directly, the cdev backend
// goes through the Linux GPIO character device, and the sim backend runs on
// an in-memory register block.
package gpio

import (
	"fmt"

	"github.com/sweeney/gpiomem/internal/gpiomem"
)

// Controller configures, drives and reads GPIO pins (BCM numbering).
type Controller interface {
	// Setup sets the pull resistor and then the direction of pin.
	Setup(pin uint, dir gpiomem.Direction, pull gpiomem.Pull) error

	// Output drives an output pin high or low.
	Output(pin uint, level gpiomem.Level) error

	// Input returns the current level of pin.
	Input(pin uint) (gpiomem.Level, error)

	// Close releases GPIO resources.
	Close() error
}

// Backend names accepted by Open.
const (
	BackendGPIOMem = "gpiomem"
	BackendCdev    = "cdev"
	BackendSim     = "sim"
)

// Open returns a Controller for the named backend. device is the register
// device for gpiomem (empty for /dev/gpiomem) and the chip name for cdev
// (empty for gpiochip0). It is ignored by sim.
func Open(backend, device string) (Controller, error) {
	switch backend {
	case BackendGPIOMem:
		if device == "" {
			device = gpiomem.DefaultDevice
		}
		rf, err := gpiomem.OpenDevice(device)
		if err != nil {
			return nil, err
		}
		return rf, nil
	case BackendCdev:
		if device == "" {
			device = DefaultChip
		}
		c, err := NewCdevController(device)
		if err != nil {
			return nil, err
		}
		return c, nil
	case BackendSim:
		rf, _ := gpiomem.NewSimulated()
		return rf, nil
	}
	return nil, fmt.Errorf("gpio: unknown backend %q", backend)
}
