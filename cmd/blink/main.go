// Command blink toggles an LED through the GPIO register block.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/sweeney/gpiomem/internal/blink"
	"github.com/sweeney/gpiomem/internal/gpio"
	"github.com/sweeney/gpiomem/internal/logger"
)

func main() {
	opts := blink.DefaultOptions()
	pin := flag.Uint("pin", uint(opts.Pin), "BCM pin number to toggle")
	flag.IntVar(&opts.Count, "count", opts.Count, "Number of on/off cycles")
	flag.DurationVar(&opts.Period, "period", opts.Period, "Time spent at each level")
	backend := flag.String("backend", gpio.BackendGPIOMem, "GPIO backend (gpiomem, cdev, sim)")
	device := flag.String("device", "", "Register device or chip name (empty for the backend default)")
	logLevel := flag.String("log-level", "info", "Log level")
	flag.Parse()
	opts.Pin = *pin

	log, err := logger.New(logger.Options{Level: *logLevel})
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	opts.Logger = log

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *backend, *device, opts); err != nil {
		log.Fatal("blink failed", zap.Error(err))
	}
}

func run(ctx context.Context, backend, device string, opts blink.Options) error {
	ctrl, err := gpio.Open(backend, device)
	if err != nil {
		return fmt.Errorf("open %s: %w", backend, err)
	}
	defer ctrl.Close()

	err = blink.Run(ctx, ctrl, opts)
	if errors.Is(err, context.Canceled) {
		opts.Logger.Info("interrupted")
		return nil
	}
	return err
}
