// Package mqtt provides MQTT publishing and pin commands with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sweeney/gpiomem/internal/gpiomem"
)

// Topics builds the topic names under a common prefix.
type Topics struct {
	Prefix string
}

// System is the topic for system lifecycle events.
func (t Topics) System() string {
	return t.Prefix + "/system"
}

// Pin is the retained topic carrying the level of the named pin.
func (t Topics) Pin(name string) string {
	return t.Prefix + "/pins/" + name
}

// PinSet is the command topic that drives the named output pin.
func (t Topics) PinSet(name string) string {
	return t.Pin(name) + "/set"
}

// Commands is the subscription filter matching every PinSet topic.
func (t Topics) Commands() string {
	return t.Prefix + "/pins/+/set"
}

// CommandPin extracts the pin name from a PinSet topic.
func (t Topics) CommandPin(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, t.Prefix+"/pins/")
	if !ok {
		return "", false
	}
	name, ok := strings.CutSuffix(rest, "/set")
	if !ok || name == "" || strings.Contains(name, "/") {
		return "", false
	}
	return name, true
}

// Publisher publishes pin and system events to MQTT.
type Publisher interface {
	// PublishPin sends the level of one pin as a retained message.
	// Returns error if publishing fails (should not crash the process).
	PublishPin(event PinEvent) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// Subscriber delivers pin commands received from the broker.
type Subscriber interface {
	SubscribeCommands(handler CommandHandler) error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// PinEvent reports the level of a pin.
type PinEvent struct {
	Timestamp time.Time
	Name      string
	Pin       uint
	Level     gpiomem.Level
	Source    string // "heartbeat", "mqtt", "http", "startup"
}

// Command asks for an output pin to be driven.
type Command struct {
	Name  string
	Level gpiomem.Level
}

// CommandHandler is called for every valid command received.
type CommandHandler func(Command)

// ParseCommand decodes a message on a PinSet topic. The payload is a level
// name as accepted by gpiomem.ParseLevel.
func ParseCommand(topics Topics, topic string, payload []byte) (Command, error) {
	name, ok := topics.CommandPin(topic)
	if !ok {
		return Command{}, fmt.Errorf("not a command topic: %q", topic)
	}
	level, err := gpiomem.ParseLevel(string(payload))
	if err != nil {
		return Command{}, fmt.Errorf("pin %q: %w", name, err)
	}
	return Command{Name: name, Level: level}, nil
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT", "RECONNECTED"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// PinPayload represents the MQTT message payload for a pin event.
type PinPayload struct {
	Pin PinPayloadInner `json:"pin"`
}

// PinPayloadInner contains the pin event details.
type PinPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Name      string `json:"name"`
	Pin       uint   `json:"pin"`
	Level     string `json:"level"`
	Source    string `json:"source,omitempty"`
}

// FormatPinPayload creates the JSON payload for a pin event.
func FormatPinPayload(event PinEvent) ([]byte, error) {
	payload := PinPayload{
		Pin: PinPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Name:      event.Name,
			Pin:       event.Pin,
			Level:     event.Level.String(),
			Source:    event.Source,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
