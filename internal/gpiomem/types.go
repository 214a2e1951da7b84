package gpiomem

import (
	"fmt"
	"strings"
)

// Direction is the 3-bit function select code of a pin.
// Only Input and Output are ever written by this package.
type Direction uint32

const (
	Input  Direction = 0
	Output Direction = 1
)

func (d Direction) String() string {
	switch d {
	case Input:
		return "IN"
	case Output:
		return "OUT"
	}
	// Remaining codes select alternate functions we never program.
	return fmt.Sprintf("FSEL%d", uint32(d))
}

// Pull is the state of a pin's internal resistor network.
type Pull uint32

const (
	PullOff  Pull = 0
	PullDown Pull = 1
	PullUp   Pull = 2
)

func (p Pull) String() string {
	switch p {
	case PullOff:
		return "OFF"
	case PullDown:
		return "DOWN"
	case PullUp:
		return "UP"
	}
	return fmt.Sprintf("Pull(%d)", uint32(p))
}

// Level is the logic level of a pin.
type Level uint32

const (
	Low  Level = 0
	High Level = 1
)

func (l Level) String() string {
	if l == Low {
		return "LOW"
	}
	return "HIGH"
}

// levelOf decodes a masked register bit.
func levelOf(bit uint32) Level {
	if bit == 0 {
		return Low
	}
	return High
}

// ParseDirection accepts "in"/"input" and "out"/"output", case-insensitive.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "in", "input":
		return Input, nil
	case "out", "output":
		return Output, nil
	}
	return 0, fmt.Errorf("%w: direction %q", ErrInvalidMode, s)
}

// ParsePull accepts "off"/"none", "down" and "up", case-insensitive.
// An empty string means PullOff.
func ParsePull(s string) (Pull, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "off", "none":
		return PullOff, nil
	case "down":
		return PullDown, nil
	case "up":
		return PullUp, nil
	}
	return 0, fmt.Errorf("%w: pull %q", ErrInvalidMode, s)
}

// ParseLevel accepts "high"/"1"/"on" and "low"/"0"/"off", case-insensitive.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high", "1", "on":
		return High, nil
	case "low", "0", "off":
		return Low, nil
	}
	return 0, fmt.Errorf("%w: level %q", ErrInvalidMode, s)
}
