//go:build linux

package gpio

import (
	"errors"
	"fmt"

	"github.com/warthog618/go-gpiocdev"

	"github.com/sweeney/gpiomem/internal/gpiomem"
)

// DefaultChip is the GPIO character device of the Pi's SoC GPIO bank.
const DefaultChip = "gpiochip0"

// ErrNotSetup is returned when a pin is driven before Setup.
var ErrNotSetup = errors.New("gpio: pin not set up")

// cdevLine is the part of *gpiocdev.Line the controller uses.
type cdevLine interface {
	Value() (int, error)
	SetValue(value int) error
	Reconfigure(options ...gpiocdev.LineConfigOption) error
	Close() error
}

type lineRequester func(offset int, options ...gpiocdev.LineReqOption) (cdevLine, error)

// CdevController drives pins through the Linux GPIO character device. It is
// the fallback for boards without /dev/gpiomem.
type CdevController struct {
	chip    *gpiocdev.Chip
	request lineRequester
	lines   map[uint]cdevLine
	// Lines requested by Input only; Close leaves them as found.
	readOnly map[uint]bool
}

// NewCdevController opens the named GPIO chip.
func NewCdevController(chip string) (*CdevController, error) {
	c, err := gpiocdev.NewChip(chip)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	return newCdevController(c, func(offset int, options ...gpiocdev.LineReqOption) (cdevLine, error) {
		l, err := c.RequestLine(offset, options...)
		if err != nil {
			return nil, err
		}
		return l, nil
	}), nil
}

func newCdevController(chip *gpiocdev.Chip, request lineRequester) *CdevController {
	return &CdevController{
		chip:     chip,
		request:  request,
		lines:    make(map[uint]cdevLine),
		readOnly: make(map[uint]bool),
	}
}

func biasOption(pull gpiomem.Pull) (gpiocdev.LineBias, error) {
	switch pull {
	case gpiomem.PullOff:
		return gpiocdev.WithBiasDisabled, nil
	case gpiomem.PullDown:
		return gpiocdev.WithPullDown, nil
	case gpiomem.PullUp:
		return gpiocdev.WithPullUp, nil
	}
	return gpiocdev.WithBiasAsIs, fmt.Errorf("%w: pull %d", gpiomem.ErrInvalidMode, uint32(pull))
}

// Setup requests the line on first use and reconfigures it afterwards.
// Outputs start low.
func (c *CdevController) Setup(pin uint, dir gpiomem.Direction, pull gpiomem.Pull) error {
	if pin > gpiomem.MaxPin {
		return fmt.Errorf("%w: %d", gpiomem.ErrInvalidPin, pin)
	}
	bias, err := biasOption(pull)
	if err != nil {
		return err
	}

	line, requested := c.lines[pin]
	switch dir {
	case gpiomem.Input:
		if requested {
			err = line.Reconfigure(gpiocdev.AsInput, bias)
		} else {
			line, err = c.request(int(pin), gpiocdev.AsInput, bias)
		}
	case gpiomem.Output:
		if requested {
			err = line.Reconfigure(gpiocdev.AsOutput(0), bias)
		} else {
			line, err = c.request(int(pin), gpiocdev.AsOutput(0), bias)
		}
	default:
		return fmt.Errorf("%w: direction %d", gpiomem.ErrInvalidMode, uint32(dir))
	}
	if err != nil {
		return fmt.Errorf("request pin %d: %w", pin, err)
	}
	c.lines[pin] = line
	delete(c.readOnly, pin)
	return nil
}

// Output sets the value of a line previously set up as output.
func (c *CdevController) Output(pin uint, level gpiomem.Level) error {
	line, ok := c.lines[pin]
	if !ok || c.readOnly[pin] {
		return fmt.Errorf("%w: %d", ErrNotSetup, pin)
	}
	v := 0
	if level == gpiomem.High {
		v = 1
	}
	if err := line.SetValue(v); err != nil {
		return fmt.Errorf("write pin %d: %w", pin, err)
	}
	return nil
}

// Input reads the value of a line. A line not yet set up is requested with
// its direction and bias left as they are, so reading never reprograms a pin.
func (c *CdevController) Input(pin uint) (gpiomem.Level, error) {
	if pin > gpiomem.MaxPin {
		return gpiomem.Low, fmt.Errorf("%w: %d", gpiomem.ErrInvalidPin, pin)
	}
	line, ok := c.lines[pin]
	if !ok {
		var err error
		line, err = c.request(int(pin), gpiocdev.AsIs)
		if err != nil {
			return gpiomem.Low, fmt.Errorf("request pin %d: %w", pin, err)
		}
		c.lines[pin] = line
		c.readOnly[pin] = true
	}
	v, err := line.Value()
	if err != nil {
		return gpiomem.Low, fmt.Errorf("read pin %d: %w", pin, err)
	}
	if v == 0 {
		return gpiomem.Low, nil
	}
	return gpiomem.High, nil
}

// Close releases GPIO resources.
// Reconfigures lines to input with pull-down (matching Pi boot defaults) before
// closing so nothing is left driven across a reboot.
func (c *CdevController) Close() error {
	var errs []error

	for pin, line := range c.lines {
		if !c.readOnly[pin] {
			if err := line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
				errs = append(errs, fmt.Errorf("reconfigure pin %d: %w", pin, err))
			}
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pin %d: %w", pin, err))
		}
		delete(c.lines, pin)
		delete(c.readOnly, pin)
	}
	if c.chip != nil {
		if err := c.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		c.chip = nil
	}

	return errors.Join(errs...)
}
