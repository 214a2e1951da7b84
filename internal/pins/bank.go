// Package pins drives the configured set of named pins on a controller and
// keeps the status tracker, metrics and MQTT reports in step with them.
package pins

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/gpiomem/internal/config"
	"github.com/sweeney/gpiomem/internal/gpio"
	"github.com/sweeney/gpiomem/internal/gpiomem"
	"github.com/sweeney/gpiomem/internal/metrics"
	"github.com/sweeney/gpiomem/internal/mqtt"
	"github.com/sweeney/gpiomem/internal/status"
)

var (
	// ErrUnknownPin is returned for a name that is not configured.
	ErrUnknownPin = errors.New("unknown pin")
	// ErrNotOutput is returned when driving a pin configured as input.
	ErrNotOutput = errors.New("pin is not an output")
)

// Command sources.
const (
	SourceMQTT      = "mqtt"
	SourceHTTP      = "http"
	SourceStartup   = "startup"
	SourceHeartbeat = "heartbeat"
)

// Bank is the set of configured pins on one controller. The controller must
// be safe for concurrent use (see gpio.Synchronized); the tracker and
// metrics are.
type Bank struct {
	ctrl    gpio.Controller
	specs   []config.PinSpec
	byName  map[string]config.PinSpec
	tracker *status.Tracker
	metrics *metrics.Metrics
	pub     mqtt.Publisher
	log     *zap.Logger
	now     func() time.Time
}

// NewBank builds a bank. tracker, m and pub may be nil.
func NewBank(ctrl gpio.Controller, specs []config.PinSpec, tracker *status.Tracker, m *metrics.Metrics, log *zap.Logger) *Bank {
	if log == nil {
		log = zap.NewNop()
	}
	b := &Bank{
		ctrl:    ctrl,
		specs:   specs,
		byName:  make(map[string]config.PinSpec, len(specs)),
		tracker: tracker,
		metrics: m,
		log:     log,
		now:     time.Now,
	}
	for _, s := range specs {
		b.byName[s.Name] = s
	}
	return b
}

// SetPublisher attaches the publisher used for pin reports.
func (b *Bank) SetPublisher(pub mqtt.Publisher) {
	b.pub = pub
}

// Specs returns the configured pins in configuration order.
func (b *Bank) Specs() []config.PinSpec {
	return b.specs
}

// TrackerPins returns the initial tracker entries for the configured pins.
func TrackerPins(specs []config.PinSpec) []status.PinState {
	out := make([]status.PinState, len(specs))
	for i, s := range specs {
		out[i] = status.PinState{Name: s.Name, Pin: s.Pin, Direction: s.Direction, Pull: s.Pull}
	}
	return out
}

// Setup configures every pin and drives the initial level of outputs that
// declare one.
func (b *Bank) Setup() error {
	for _, s := range b.specs {
		if err := b.ctrl.Setup(s.Pin, s.Direction, s.Pull); err != nil {
			return fmt.Errorf("setup %s: %w", s.Name, err)
		}
		b.log.Debug("pin configured",
			zap.String("name", s.Name),
			zap.Uint("pin", s.Pin),
			zap.Stringer("direction", s.Direction),
			zap.Stringer("pull", s.Pull))

		if s.Direction == gpiomem.Output && s.Initial != nil {
			if err := b.ctrl.Output(s.Pin, *s.Initial); err != nil {
				return fmt.Errorf("initial level %s: %w", s.Name, err)
			}
			b.record(s, *s.Initial, b.now())
		}
	}
	return nil
}

// Read samples one pin by name.
func (b *Bank) Read(name string) (gpiomem.Level, error) {
	s, ok := b.byName[name]
	if !ok {
		return gpiomem.Low, fmt.Errorf("%w: %q", ErrUnknownPin, name)
	}
	return b.ctrl.Input(s.Pin)
}

// Sample reads every pin into the tracker and metrics. Read failures are
// counted and logged; the remaining pins are still sampled.
func (b *Bank) Sample() {
	at := b.now()
	for _, s := range b.specs {
		level, err := b.ctrl.Input(s.Pin)
		if err != nil {
			b.log.Warn("read failed", zap.String("name", s.Name), zap.Error(err))
			if b.tracker != nil {
				b.tracker.RecordReadError()
			}
			if b.metrics != nil {
				b.metrics.RecordReadError()
			}
			continue
		}
		b.record(s, level, at)
	}
}

// Report publishes the last known level of every pin.
func (b *Bank) Report(source string) {
	if b.pub == nil || b.tracker == nil {
		return
	}
	for _, s := range b.specs {
		p, ok := b.tracker.Pin(s.Name)
		if !ok || !p.Known {
			continue
		}
		b.publish(s, p.Level, p.SampledAt, source)
	}
}

// Drive sets an output pin by name and publishes the new level.
func (b *Bank) Drive(name string, level gpiomem.Level, source string) error {
	err := b.drive(name, level)
	if b.tracker != nil {
		b.tracker.RecordCommand(err)
	}
	if b.metrics != nil {
		b.metrics.RecordCommand(source, err)
	}
	if err != nil {
		b.log.Warn("command failed",
			zap.String("name", name),
			zap.Stringer("level", level),
			zap.String("source", source),
			zap.Error(err))
		return err
	}

	b.log.Info("command",
		zap.String("name", name),
		zap.Stringer("level", level),
		zap.String("source", source))
	s := b.byName[name]
	at := b.now()
	b.record(s, level, at)
	b.publish(s, level, at, source)
	return nil
}

func (b *Bank) drive(name string, level gpiomem.Level) error {
	s, ok := b.byName[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownPin, name)
	}
	if s.Direction != gpiomem.Output {
		return fmt.Errorf("%w: %q", ErrNotOutput, name)
	}
	return b.ctrl.Output(s.Pin, level)
}

func (b *Bank) record(s config.PinSpec, level gpiomem.Level, at time.Time) {
	if b.tracker != nil {
		b.tracker.UpdateLevel(s.Name, level, at)
	}
	if b.metrics != nil {
		b.metrics.SetPinLevel(s.Name, s.Pin, level)
	}
}

func (b *Bank) publish(s config.PinSpec, level gpiomem.Level, at time.Time, source string) {
	if b.pub == nil {
		return
	}
	err := b.pub.PublishPin(mqtt.PinEvent{
		Timestamp: at,
		Name:      s.Name,
		Pin:       s.Pin,
		Level:     level,
		Source:    source,
	})
	if err != nil {
		// Don't fail the command on publish failure
		b.log.Warn("publish failed", zap.String("name", s.Name), zap.Error(err))
	}
}
