package gpio

import (
	"sync"

	"github.com/sweeney/gpiomem/internal/gpiomem"
)

// syncController serializes every call to the wrapped Controller.
type syncController struct {
	mu sync.Mutex
	c  Controller
}

// Synchronized returns a Controller safe for use by multiple goroutines.
// Register updates are read-modify-write sequences on words shared between
// pins, so a Controller reached from more than one goroutine must be wrapped.
func Synchronized(c Controller) Controller {
	if s, ok := c.(*syncController); ok {
		return s
	}
	return &syncController{c: c}
}

func (s *syncController) Setup(pin uint, dir gpiomem.Direction, pull gpiomem.Pull) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c.Setup(pin, dir, pull)
}

func (s *syncController) Output(pin uint, level gpiomem.Level) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c.Output(pin, level)
}

func (s *syncController) Input(pin uint) (gpiomem.Level, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c.Input(pin)
}

func (s *syncController) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c.Close()
}
