// Package status provides a thread-safe status tracker for the gpiomem-agent daemon.
// It is read by the HTTP handlers, the metrics collector and status events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/gpiomem/internal/gpiomem"
)

// NetworkInfo contains network state as reported by pi-helper.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	Backend     string
	Device      string
	PollMs      int64
	HeartbeatMs int64
	Broker      string
	TopicPrefix string
	HTTPPort    string
}

// PinState is the last known state of one configured pin.
type PinState struct {
	Name      string
	Pin       uint
	Direction gpiomem.Direction
	Pull      gpiomem.Pull
	Level     gpiomem.Level
	Known     bool // false until the first sample or write
	SampledAt time.Time
}

// Counts tracks command and error totals since startup.
type Counts struct {
	Commands      int
	CommandErrors int
	ReadErrors    int
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Pins          []PinState
	Counts        Counts
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu    sync.RWMutex
	snap  Snapshot
	index map[string]int
	now   func() time.Time
}

// NewTracker creates a Tracker for the given pins, in display order.
func NewTracker(startTime time.Time, cfg Config, pins []PinState) *Tracker {
	t := &Tracker{
		snap: Snapshot{
			Pins:      append([]PinState(nil), pins...),
			StartTime: startTime,
			Config:    cfg,
		},
		index: make(map[string]int, len(pins)),
		now:   time.Now,
	}
	for i, p := range pins {
		t.index[p.Name] = i
	}
	return t
}

// UpdateLevel records a sampled or written level. Unknown names are ignored.
func (t *Tracker) UpdateLevel(name string, level gpiomem.Level, at time.Time) {
	t.mu.Lock()
	if i, ok := t.index[name]; ok {
		p := &t.snap.Pins[i]
		p.Level = level
		p.Known = true
		p.SampledAt = at
	}
	t.mu.Unlock()
}

// Pin returns the state of the named pin.
func (t *Tracker) Pin(name string) (PinState, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	i, ok := t.index[name]
	if !ok {
		return PinState{}, false
	}
	return t.snap.Pins[i], true
}

// RecordReadError counts a failed sample.
func (t *Tracker) RecordReadError() {
	t.mu.Lock()
	t.snap.Counts.ReadErrors++
	t.mu.Unlock()
}

// RecordCommand counts an applied command, or a failed one if err is set.
func (t *Tracker) RecordCommand(err error) {
	t.mu.Lock()
	if err != nil {
		t.snap.Counts.CommandErrors++
	} else {
		t.snap.Counts.Commands++
	}
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Pins = append([]PinState(nil), t.snap.Pins...)
	t.mu.RUnlock()
	s.Now = t.now()
	return s
}
