package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Pins          []PinJSON    `json:"pins"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"counts"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// PinJSON is the JSON representation of one pin.
type PinJSON struct {
	Name      string `json:"name"`
	Pin       uint   `json:"pin"`
	Direction string `json:"direction"`
	Pull      string `json:"pull"`
	Level     string `json:"level"`
	SampledAt string `json:"sampled_at,omitempty"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of command and error counts.
type CountsJSON struct {
	Commands      int `json:"commands"`
	CommandErrors int `json:"command_errors"`
	ReadErrors    int `json:"read_errors"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Backend     string `json:"backend"`
	Device      string `json:"device,omitempty"`
	PollMs      int64  `json:"poll_ms"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Broker      string `json:"broker"`
	TopicPrefix string `json:"topic_prefix"`
	HTTPPort    string `json:"http_port"`
}

// LevelString returns the level of p, or UNKNOWN before the first sample.
func LevelString(p PinState) string {
	if !p.Known {
		return "UNKNOWN"
	}
	return p.Level.String()
}

func buildPin(p PinState) PinJSON {
	pj := PinJSON{
		Name:      p.Name,
		Pin:       p.Pin,
		Direction: p.Direction.String(),
		Pull:      p.Pull.String(),
		Level:     LevelString(p),
	}
	if p.Known {
		pj.SampledAt = p.SampledAt.UTC().Format(time.RFC3339Nano)
	}
	return pj
}

func buildInner(snap Snapshot) StatusInner {
	pins := make([]PinJSON, 0, len(snap.Pins))
	for _, p := range snap.Pins {
		pins = append(pins, buildPin(p))
	}

	return StatusInner{
		Pins:          pins,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Commands:      snap.Counts.Commands,
			CommandErrors: snap.Counts.CommandErrors,
			ReadErrors:    snap.Counts.ReadErrors,
		},
		Config: ConfigJSON{
			Backend:     snap.Config.Backend,
			Device:      snap.Config.Device,
			PollMs:      snap.Config.PollMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Broker:      snap.Config.Broker,
			TopicPrefix: snap.Config.TopicPrefix,
			HTTPPort:    snap.Config.HTTPPort,
		},
	}
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}

// FormatPinJSON returns the JSON representation of a single pin.
func FormatPinJSON(p PinState) []byte {
	data, _ := json.Marshal(buildPin(p))
	return data
}
