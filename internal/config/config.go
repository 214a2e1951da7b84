// Package config loads the gpiomem-agent configuration file.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/gpiomem/internal/gpio"
	"github.com/sweeney/gpiomem/internal/gpiomem"
)

// DefaultPath is where the agent looks for its configuration.
const DefaultPath = "/etc/gpiomem/agent.yaml"

// Pin is one configured pin as written in the file.
type Pin struct {
	Name      string `yaml:"name"`
	Pin       uint   `yaml:"pin"`
	Direction string `yaml:"direction"`
	Pull      string `yaml:"pull"`
	Initial   string `yaml:"initial,omitempty"` // outputs only
}

// Config is the agent configuration.
type Config struct {
	Backend      string        `yaml:"backend"`
	Device       string        `yaml:"device"`
	OpenAttempts int           `yaml:"open_attempts"`
	Poll         time.Duration `yaml:"poll"`
	Heartbeat    time.Duration `yaml:"heartbeat"` // 0 disables
	Broker       string        `yaml:"broker"`    // empty disables MQTT
	ClientID     string        `yaml:"client_id"`
	TopicPrefix  string        `yaml:"topic_prefix"`
	HTTPAddr     string        `yaml:"http"` // empty disables HTTP
	LogLevel     string        `yaml:"log_level"`
	LogJSON      bool          `yaml:"log_json"`
	Pins         []Pin         `yaml:"pins"`
}

// PinSpec is a validated Pin with typed modes.
type PinSpec struct {
	Name      string
	Pin       uint
	Direction gpiomem.Direction
	Pull      gpiomem.Pull
	// Initial is the level driven after setup; nil leaves an output low
	// (cleared) as the hardware powers up.
	Initial *gpiomem.Level
}

// Default returns the configuration used for fields absent from the file.
func Default() Config {
	return Config{
		Backend:      gpio.BackendGPIOMem,
		OpenAttempts: 5,
		Poll:         100 * time.Millisecond,
		Heartbeat:    15 * time.Minute,
		Broker:       "tcp://127.0.0.1:1883",
		ClientID:     "gpiomem-agent",
		TopicPrefix:  "gpiomem",
		HTTPAddr:     ":8080",
		LogLevel:     "info",
	}
}

// Load reads and validates the file at path. A missing file yields the
// defaults with no pins.
func Load(fs afero.Fs, path string) (Config, error) {
	data, err := afero.ReadFile(fs, path)
	if errors.Is(err, afero.ErrFileNotFound) {
		return Default(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks backend, timing and pin definitions.
func (c Config) Validate() error {
	switch c.Backend {
	case gpio.BackendGPIOMem, gpio.BackendCdev, gpio.BackendSim:
	default:
		return fmt.Errorf("config: unknown backend %q", c.Backend)
	}
	if c.Poll <= 0 {
		return fmt.Errorf("config: poll must be positive, got %v", c.Poll)
	}
	if c.Heartbeat < 0 {
		return fmt.Errorf("config: heartbeat must not be negative, got %v", c.Heartbeat)
	}
	if c.OpenAttempts < 1 {
		return fmt.Errorf("config: open_attempts must be at least 1, got %d", c.OpenAttempts)
	}
	_, err := c.PinSpecs()
	return err
}

// PinSpecs resolves every configured pin, rejecting duplicates.
func (c Config) PinSpecs() ([]PinSpec, error) {
	names := make(map[string]bool)
	numbers := make(map[uint]string)
	specs := make([]PinSpec, 0, len(c.Pins))

	for i, p := range c.Pins {
		if p.Name == "" {
			return nil, fmt.Errorf("config: pin %d: missing name", i)
		}
		if names[p.Name] {
			return nil, fmt.Errorf("config: duplicate pin name %q", p.Name)
		}
		if other, ok := numbers[p.Pin]; ok {
			return nil, fmt.Errorf("config: pin %d used by both %q and %q", p.Pin, other, p.Name)
		}
		names[p.Name] = true
		numbers[p.Pin] = p.Name

		spec, err := p.Resolve()
		if err != nil {
			return nil, fmt.Errorf("config: pin %q: %w", p.Name, err)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// Resolve parses the textual modes of p.
func (p Pin) Resolve() (PinSpec, error) {
	if p.Pin > gpiomem.MaxPin {
		return PinSpec{}, fmt.Errorf("%w: %d", gpiomem.ErrInvalidPin, p.Pin)
	}
	dir, err := gpiomem.ParseDirection(p.Direction)
	if err != nil {
		return PinSpec{}, err
	}
	pull, err := gpiomem.ParsePull(p.Pull)
	if err != nil {
		return PinSpec{}, err
	}

	spec := PinSpec{Name: p.Name, Pin: p.Pin, Direction: dir, Pull: pull}
	if p.Initial != "" {
		if dir != gpiomem.Output {
			return PinSpec{}, errors.New("initial level set on input pin")
		}
		level, err := gpiomem.ParseLevel(p.Initial)
		if err != nil {
			return PinSpec{}, err
		}
		spec.Initial = &level
	}
	return spec, nil
}
