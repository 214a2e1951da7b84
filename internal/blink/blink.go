// Package blink toggles a single output pin on a fixed period.
package blink

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/gpiomem/internal/gpio"
	"github.com/sweeney/gpiomem/internal/gpiomem"
)

// Defaults drive an LED on BCM 21 for 20 seconds.
const (
	DefaultPin    = 21
	DefaultCount  = 100
	DefaultPeriod = 100 * time.Millisecond
)

// Options configures Run.
type Options struct {
	Pin    uint
	Count  int
	Period time.Duration // time spent at each level

	// Sleep waits for d or until ctx is done. Nil uses a timer.
	Sleep  func(ctx context.Context, d time.Duration) error
	Logger *zap.Logger
}

// DefaultOptions returns the options used by cmd/blink without flags.
func DefaultOptions() Options {
	return Options{Pin: DefaultPin, Count: DefaultCount, Period: DefaultPeriod}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run configures opts.Pin as an output with pull-up and drives it high then
// low opts.Count times. A cancelled context stops the loop early and leaves
// the pin low.
func Run(ctx context.Context, ctrl gpio.Controller, opts Options) error {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	wait := opts.Sleep
	if wait == nil {
		wait = sleep
	}

	if err := ctrl.Setup(opts.Pin, gpiomem.Output, gpiomem.PullUp); err != nil {
		return fmt.Errorf("setup: %w", err)
	}
	log.Info("blinking", zap.Uint("pin", opts.Pin), zap.Int("count", opts.Count), zap.Duration("period", opts.Period))

	for i := 0; i < opts.Count; i++ {
		if err := ctrl.Output(opts.Pin, gpiomem.High); err != nil {
			return fmt.Errorf("iteration %d: %w", i, err)
		}
		if err := wait(ctx, opts.Period); err != nil {
			return stop(ctrl, opts.Pin, err)
		}
		if err := ctrl.Output(opts.Pin, gpiomem.Low); err != nil {
			return fmt.Errorf("iteration %d: %w", i, err)
		}
		if err := wait(ctx, opts.Period); err != nil {
			return stop(ctrl, opts.Pin, err)
		}
	}
	return nil
}

func stop(ctrl gpio.Controller, pin uint, cause error) error {
	if err := ctrl.Output(pin, gpiomem.Low); err != nil {
		return fmt.Errorf("%v (and reset failed: %w)", cause, err)
	}
	return cause
}
