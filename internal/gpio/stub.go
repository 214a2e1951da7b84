//go:build !linux

package gpio

import (
	"errors"

	"github.com/sweeney/gpiomem/internal/gpiomem"
)

// DefaultChip is the GPIO character device of the Pi's SoC GPIO bank.
const DefaultChip = "gpiochip0"

// ErrNotSetup is returned when a pin is driven before Setup.
var ErrNotSetup = errors.New("gpio: pin not set up")

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// CdevController is not available on non-Linux platforms.
type CdevController struct{}

// NewCdevController returns an error on non-Linux platforms.
func NewCdevController(chip string) (*CdevController, error) {
	return nil, errUnsupported
}

// Setup is not implemented on non-Linux platforms.
func (c *CdevController) Setup(pin uint, dir gpiomem.Direction, pull gpiomem.Pull) error {
	return errUnsupported
}

// Output is not implemented on non-Linux platforms.
func (c *CdevController) Output(pin uint, level gpiomem.Level) error {
	return errUnsupported
}

// Input is not implemented on non-Linux platforms.
func (c *CdevController) Input(pin uint) (gpiomem.Level, error) {
	return gpiomem.Low, errUnsupported
}

// Close is not implemented on non-Linux platforms.
func (c *CdevController) Close() error {
	return nil
}
