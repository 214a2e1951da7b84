package internal

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sweeney/gpiomem/internal/config"
	"github.com/sweeney/gpiomem/internal/gpio"
	"github.com/sweeney/gpiomem/internal/gpiomem"
	"github.com/sweeney/gpiomem/internal/metrics"
	"github.com/sweeney/gpiomem/internal/mqtt"
	"github.com/sweeney/gpiomem/internal/pins"
	"github.com/sweeney/gpiomem/internal/status"
	"github.com/sweeney/gpiomem/internal/web"
)

const agentYAML = `
backend: sim
topic_prefix: home/gpio
pins:
  - name: led
    pin: 21
    direction: out
    pull: up
    initial: low
  - name: relay
    pin: 40
    direction: out
    initial: high
  - name: button
    pin: 20
    direction: in
    pull: down
`

type rig struct {
	rf      *gpiomem.RegisterFile
	sim     *gpiomem.Simulator
	ctrl    gpio.Controller
	tracker *status.Tracker
	pub     *mqtt.FakePublisher
	bank    *pins.Bank
	topics  mqtt.Topics
}

// newRig wires a simulated register file through the same components the
// agent uses, with fakes only at the MQTT edge.
func newRig(t *testing.T) *rig {
	t.Helper()
	cfg, err := config.Parse([]byte(agentYAML))
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	specs, err := cfg.PinSpecs()
	if err != nil {
		t.Fatalf("pin specs: %v", err)
	}

	rf, sim := gpiomem.NewSimulated()
	tracker := status.NewTracker(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC), status.Config{
		Backend:     cfg.Backend,
		TopicPrefix: cfg.TopicPrefix,
	}, pins.TrackerPins(specs))
	pub := mqtt.NewFakePublisher()
	ctrl := gpio.Synchronized(rf)
	bank := pins.NewBank(ctrl, specs, tracker, metrics.New(), nil)
	bank.SetPublisher(pub)

	if err := bank.Setup(); err != nil {
		t.Fatalf("setup: %v", err)
	}
	return &rig{rf: rf, sim: sim, ctrl: ctrl, tracker: tracker, pub: pub, bank: bank, topics: mqtt.Topics{Prefix: cfg.TopicPrefix}}
}

// TestIntegrationSetupProgramsRegisters checks the function select, pull and
// initial levels written for the configured pins.
func TestIntegrationSetupProgramsRegisters(t *testing.T) {
	r := newRig(t)

	for _, tt := range []struct {
		pin  uint
		want gpiomem.Direction
	}{
		{21, gpiomem.Output},
		{40, gpiomem.Output},
		{20, gpiomem.Input},
	} {
		got, err := r.rf.Mode(tt.pin)
		if err != nil {
			t.Fatalf("mode %d: %v", tt.pin, err)
		}
		if got != tt.want {
			t.Errorf("pin %d: got %s, want %s", tt.pin, got, tt.want)
		}
	}

	// Pull sequence always leaves the control register and clocks cleared
	if v := r.sim.Word(37); v&3 != 0 {
		t.Errorf("GPPUD: got %#x, want low bits clear", v)
	}
	if r.sim.Word(38) != 0 || r.sim.Word(39) != 0 {
		t.Errorf("GPPUDCLK: got %#x %#x, want 0", r.sim.Word(38), r.sim.Word(39))
	}

	if level, _ := r.rf.Input(21); level != gpiomem.Low {
		t.Errorf("led initial: got %s, want LOW", level)
	}
	if level, _ := r.rf.Input(40); level != gpiomem.High {
		t.Errorf("relay initial: got %s, want HIGH", level)
	}
}

// TestIntegrationMQTTCommandLoopback drives pin 21 from a command payload and
// reads it back through the level register.
func TestIntegrationMQTTCommandLoopback(t *testing.T) {
	r := newRig(t)
	r.pub.SubscribeCommands(func(cmd mqtt.Command) {
		r.bank.Drive(cmd.Name, cmd.Level, pins.SourceMQTT)
	})

	for _, payload := range []string{"HIGH", "0", "on"} {
		cmd, err := mqtt.ParseCommand(r.topics, r.topics.PinSet("led"), []byte(payload))
		if err != nil {
			t.Fatalf("parse %q: %v", payload, err)
		}
		r.pub.Deliver(cmd)

		level, err := r.rf.Input(21)
		if err != nil {
			t.Fatalf("input: %v", err)
		}
		if level != cmd.Level {
			t.Errorf("after %q: read %s, want %s", payload, level, cmd.Level)
		}
	}

	events := r.pub.Pins()
	if len(events) != 3 {
		t.Fatalf("expected 3 pin events, got %d", len(events))
	}
	var parsed mqtt.PinPayload
	if err := json.Unmarshal(r.pub.Payloads[2], &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Pin.Name != "led" || parsed.Pin.Pin != 21 || parsed.Pin.Level != "HIGH" || parsed.Pin.Source != "mqtt" {
		t.Errorf("unexpected payload: %+v", parsed.Pin)
	}
}

// TestIntegrationSampleSeesExternalInput scripts the level register as if the
// button were pressed.
func TestIntegrationSampleSeesExternalInput(t *testing.T) {
	r := newRig(t)

	r.sim.SetLevel(20, gpiomem.High)
	r.bank.Sample()

	p, _ := r.tracker.Pin("button")
	if !p.Known || p.Level != gpiomem.High {
		t.Errorf("button: got %+v", p)
	}

	r.sim.SetLevel(20, gpiomem.Low)
	r.bank.Sample()

	p, _ = r.tracker.Pin("button")
	if p.Level != gpiomem.Low {
		t.Errorf("button after release: got %s", p.Level)
	}
}

// TestIntegrationHTTPControl drives the relay over HTTP and checks registers,
// status JSON and the MQTT report agree.
func TestIntegrationHTTPControl(t *testing.T) {
	r := newRig(t)
	ts := httptest.NewServer(web.New(":0", r.tracker, r.bank, nil).Handler())
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodPut, ts.URL+"/pins/relay", strings.NewReader("LOW"))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("status: got %d, want 200", resp.StatusCode)
	}

	// The handler ran on the server goroutine; read under the same lock
	if level, _ := r.ctrl.Input(40); level != gpiomem.Low {
		t.Errorf("relay register: got %s, want LOW", level)
	}

	resp, err = http.Get(ts.URL + "/index.json")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	var sj status.StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, p := range sj.Status.Pins {
		if p.Name == "relay" && p.Level != "LOW" {
			t.Errorf("relay in status: got %q, want LOW", p.Level)
		}
	}

	events := r.pub.Pins()
	if len(events) != 1 || events[0].Name != "relay" || events[0].Source != pins.SourceHTTP {
		t.Errorf("unexpected pin events: %+v", events)
	}
}

// TestIntegrationCommandTouchesOnlyOutputRegisters verifies a command is a
// single write to the set or clear bank of the pin.
func TestIntegrationCommandTouchesOnlyOutputRegisters(t *testing.T) {
	r := newRig(t)
	r.sim.Tracing = true
	r.sim.ResetTrace()

	if err := r.bank.Drive("relay", gpiomem.High, pins.SourceHTTP); err != nil {
		t.Fatalf("drive: %v", err)
	}

	want := []gpiomem.Access{{Write: true, Index: 8, Value: 1 << 8}}
	if len(r.sim.Trace) != len(want) || r.sim.Trace[0] != want[0] {
		t.Errorf("trace: got %+v, want %+v", r.sim.Trace, want)
	}
}

// TestIntegrationStartupAndShutdownPayloads checks the retained status
// snapshots carry every configured pin.
func TestIntegrationStartupAndShutdownPayloads(t *testing.T) {
	r := newRig(t)
	r.bank.Sample()

	snap := r.tracker.Snapshot()
	for _, ev := range []struct{ event, reason string }{{"STARTUP", ""}, {"SHUTDOWN", "SIGTERM"}} {
		r.pub.PublishSystem(mqtt.SystemEvent{
			Timestamp:  snap.Now,
			Event:      ev.event,
			Reason:     ev.reason,
			Retained:   true,
			RawPayload: status.FormatStatusEvent(snap, ev.event, ev.reason),
		})
	}

	if len(r.pub.SystemPayloads) != 2 {
		t.Fatalf("expected 2 system payloads, got %d", len(r.pub.SystemPayloads))
	}
	for i, payload := range r.pub.SystemPayloads {
		var sj status.StatusJSON
		if err := json.Unmarshal(payload, &sj); err != nil {
			t.Fatalf("payload %d: %v", i, err)
		}
		if len(sj.Status.Pins) != 3 {
			t.Errorf("payload %d: got %d pins, want 3", i, len(sj.Status.Pins))
		}
		for _, p := range sj.Status.Pins {
			if p.Level == "UNKNOWN" {
				t.Errorf("payload %d: pin %s unknown after sample", i, p.Name)
			}
		}
	}
	if !strings.Contains(string(r.pub.SystemPayloads[1]), `"reason":"SIGTERM"`) {
		t.Errorf("shutdown payload missing reason: %s", r.pub.SystemPayloads[1])
	}
}
