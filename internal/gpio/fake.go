package gpio

import (
	"fmt"
	"sync"

	"github.com/sweeney/gpiomem/internal/gpiomem"
)

// Call records one operation on a FakeController.
type Call struct {
	Op        string // "setup", "output" or "input"
	Pin       uint
	Direction gpiomem.Direction
	Pull      gpiomem.Pull
	Level     gpiomem.Level
}

// FakeController is a test double that records calls and returns scripted
// levels. Output updates the level later returned by Input for that pin.
type FakeController struct {
	mu sync.Mutex

	// Levels holds the level returned by Input for each pin (default Low).
	Levels map[uint]gpiomem.Level

	// Calls contains every operation in order.
	Calls []Call

	// SetupError, OutputError and InputError, if set, are returned by the
	// corresponding operation.
	SetupError  error
	OutputError error
	InputError  error

	// Closed tracks if Close was called
	Closed bool
}

// NewFakeController creates a FakeController with all pins low.
func NewFakeController() *FakeController {
	return &FakeController{Levels: make(map[uint]gpiomem.Level)}
}

// Setup records the call.
func (f *FakeController) Setup(pin uint, dir gpiomem.Direction, pull gpiomem.Pull) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, Call{Op: "setup", Pin: pin, Direction: dir, Pull: pull})
	return f.SetupError
}

// Output records the call and stores level for pin.
func (f *FakeController) Output(pin uint, level gpiomem.Level) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, Call{Op: "output", Pin: pin, Level: level})
	if f.OutputError != nil {
		return f.OutputError
	}
	f.Levels[pin] = level
	return nil
}

// Input returns the scripted level of pin.
func (f *FakeController) Input(pin uint) (gpiomem.Level, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, Call{Op: "input", Pin: pin})
	if f.InputError != nil {
		return gpiomem.Low, f.InputError
	}
	return f.Levels[pin], nil
}

// SetLevel scripts the level returned by Input.
func (f *FakeController) SetLevel(pin uint, level gpiomem.Level) {
	f.mu.Lock()
	f.Levels[pin] = level
	f.mu.Unlock()
}

// Close marks the controller as closed.
func (f *FakeController) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// CallsFor returns the recorded operations of kind op, formatted as
// "op:pin[:arg]" for compact assertions.
func (f *FakeController) CallsFor(op string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.Calls {
		if c.Op != op {
			continue
		}
		switch op {
		case "setup":
			out = append(out, fmt.Sprintf("setup:%d:%s:%s", c.Pin, c.Direction, c.Pull))
		case "output":
			out = append(out, fmt.Sprintf("output:%d:%s", c.Pin, c.Level))
		default:
			out = append(out, fmt.Sprintf("%s:%d", c.Op, c.Pin))
		}
	}
	return out
}

// Reset clears recorded calls, scripted errors and levels.
func (f *FakeController) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = nil
	f.Levels = make(map[uint]gpiomem.Level)
	f.SetupError = nil
	f.OutputError = nil
	f.InputError = nil
	f.Closed = false
}
