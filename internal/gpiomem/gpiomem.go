// Package gpiomem drives Raspberry Pi GPIO pins by reading and writing the
// BCM2835 GPIO register block mapped from /dev/gpiomem.
//
// A RegisterFile owns the mapping and is not safe for concurrent use. Every
// operation is a read-modify-write on registers shared by several pins, so
// callers sharing one RegisterFile between goroutines must serialize access
// themselves (see gpio.Synchronized).
package gpiomem

import (
	"errors"
	"fmt"
)

// DefaultDevice is the character device exposing the GPIO register block.
const DefaultDevice = "/dev/gpiomem"

var (
	// ErrInvalidPin is returned for pin numbers above MaxPin.
	ErrInvalidPin = errors.New("gpiomem: invalid pin")

	// ErrInvalidMode is returned for direction, pull or level values
	// outside their defined range.
	ErrInvalidMode = errors.New("gpiomem: invalid mode")

	// ErrOutOfRange is returned when a register index falls outside the
	// mapped block.
	ErrOutOfRange = errors.New("gpiomem: register out of range")

	// ErrClosed is returned by operations on a closed RegisterFile.
	ErrClosed = errors.New("gpiomem: register file closed")
)

// noCopy makes go vet's copylocks check flag copies of a RegisterFile.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// RegisterFile is the exclusive owner of one GPIO register block.
type RegisterFile struct {
	noCopy noCopy

	regs   Registers
	closed bool
}

// New wraps an existing register block. Open should be used for hardware;
// New exists for simulated blocks.
func New(regs Registers) *RegisterFile {
	return &RegisterFile{regs: regs}
}

// Open maps DefaultDevice.
func Open() (*RegisterFile, error) {
	return OpenDevice(DefaultDevice)
}

// Close releases the register block. Further operations return ErrClosed.
func (r *RegisterFile) Close() error {
	if r.closed || r.regs == nil {
		return nil
	}
	r.closed = true
	return r.regs.Close()
}

func (r *RegisterFile) offset(index uint) (int, error) {
	if r.closed || r.regs == nil {
		return 0, ErrClosed
	}
	if index >= uint(r.regs.Len()/registerSize) {
		return 0, fmt.Errorf("%w: register %d", ErrOutOfRange, index)
	}
	return int(index) * registerSize, nil
}

func (r *RegisterFile) read(index uint) (uint32, error) {
	off, err := r.offset(index)
	if err != nil {
		return 0, err
	}
	return r.regs.Load32(off), nil
}

func (r *RegisterFile) write(index uint, v uint32) error {
	off, err := r.offset(index)
	if err != nil {
		return err
	}
	r.regs.Store32(off, v)
	return nil
}

func checkPin(pin uint) error {
	if pin > MaxPin {
		return fmt.Errorf("%w: %d", ErrInvalidPin, pin)
	}
	return nil
}

// setPull runs the pull-up/down latch sequence for one pin. The order of the
// six accesses is fixed by the hardware; the clock must be released (steps
// 5-6) or the next pin sharing the clock register latches the wrong mode.
func (r *RegisterFile) setPull(pin uint, pull Pull) error {
	clk, shift := bankIndex(regPUDCLK, pin)

	pud, err := r.read(regPUD)
	if err != nil {
		return fmt.Errorf("read pull control: %w", err)
	}
	if err := r.write(regPUD, writeField(pud, 0, pullWidth, uint32(pull))); err != nil {
		return fmt.Errorf("stage pull mode: %w", err)
	}
	if err := r.write(clk, 1<<shift); err != nil {
		return fmt.Errorf("assert pull clock: %w", err)
	}

	pud, err = r.read(regPUD)
	if err != nil {
		return fmt.Errorf("read pull control: %w", err)
	}
	if err := r.write(regPUD, writeField(pud, 0, pullWidth, uint32(PullOff))); err != nil {
		return fmt.Errorf("clear pull mode: %w", err)
	}
	if err := r.write(clk, 0); err != nil {
		return fmt.Errorf("release pull clock: %w", err)
	}
	return nil
}

// Setup configures the pull resistor of pin and then its direction. Pull is
// applied first so a pin switching to input never floats.
func (r *RegisterFile) Setup(pin uint, dir Direction, pull Pull) error {
	if err := checkPin(pin); err != nil {
		return err
	}
	if dir != Input && dir != Output {
		return fmt.Errorf("%w: direction %d", ErrInvalidMode, uint32(dir))
	}
	if pull > PullUp {
		return fmt.Errorf("%w: pull %d", ErrInvalidMode, uint32(pull))
	}

	if err := r.setPull(pin, pull); err != nil {
		return fmt.Errorf("gpio %d: set pull %s: %w", pin, pull, err)
	}

	index, shift := fselIndex(pin)
	v, err := r.read(index)
	if err != nil {
		return fmt.Errorf("gpio %d: read function select: %w", pin, err)
	}
	if err := r.write(index, writeField(v, shift, fselWidth, uint32(dir))); err != nil {
		return fmt.Errorf("gpio %d: write function select: %w", pin, err)
	}
	return nil
}

// Mode returns the function select code currently programmed for pin.
func (r *RegisterFile) Mode(pin uint) (Direction, error) {
	if err := checkPin(pin); err != nil {
		return 0, err
	}
	index, shift := fselIndex(pin)
	v, err := r.read(index)
	if err != nil {
		return 0, fmt.Errorf("gpio %d: read function select: %w", pin, err)
	}
	return Direction(readField(v, shift, fselWidth)), nil
}

// Output drives pin to level by writing its bit to the set or clear register.
func (r *RegisterFile) Output(pin uint, level Level) error {
	if err := checkPin(pin); err != nil {
		return err
	}

	var base uint
	switch level {
	case High:
		base = regSET
	case Low:
		base = regCLR
	default:
		return fmt.Errorf("%w: level %d", ErrInvalidMode, uint32(level))
	}

	index, shift := bankIndex(base, pin)
	if err := r.write(index, 1<<shift); err != nil {
		return fmt.Errorf("gpio %d: write %s: %w", pin, level, err)
	}
	return nil
}

// Input reads the current level of pin.
func (r *RegisterFile) Input(pin uint) (Level, error) {
	if err := checkPin(pin); err != nil {
		return Low, err
	}
	index, shift := bankIndex(regLEV, pin)
	v, err := r.read(index)
	if err != nil {
		return Low, fmt.Errorf("gpio %d: read level: %w", pin, err)
	}
	return levelOf(readField(v, shift, 1)), nil
}
