package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	pt "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/sweeney/gpiomem/internal/gpiomem"
)

func TestPinLevel(t *testing.T) {
	m := New()

	m.SetPinLevel("led", 21, gpiomem.High)
	if v := pt.ToFloat64(m.pinLevel.WithLabelValues("led", "21")); v != 1 {
		t.Errorf("pin_level: got %v, want 1", v)
	}

	m.SetPinLevel("led", 21, gpiomem.Low)
	if v := pt.ToFloat64(m.pinLevel.WithLabelValues("led", "21")); v != 0 {
		t.Errorf("pin_level: got %v, want 0", v)
	}
}

func TestCommands(t *testing.T) {
	m := New()

	m.RecordCommand("mqtt", nil)
	m.RecordCommand("mqtt", nil)
	m.RecordCommand("http", errors.New("boom"))

	if v := pt.ToFloat64(m.commands.WithLabelValues("mqtt", "ok")); v != 2 {
		t.Errorf("mqtt ok: got %v, want 2", v)
	}
	if v := pt.ToFloat64(m.commands.WithLabelValues("http", "error")); v != 1 {
		t.Errorf("http error: got %v, want 1", v)
	}
}

func TestReadErrorsAndConnection(t *testing.T) {
	m := New()

	m.RecordReadError()
	if v := pt.ToFloat64(m.readErrors); v != 1 {
		t.Errorf("read_errors_total: got %v, want 1", v)
	}

	m.SetMQTTConnected(true)
	if v := pt.ToFloat64(m.mqttConnected); v != 1 {
		t.Errorf("mqtt_connected: got %v, want 1", v)
	}
	m.SetMQTTConnected(false)
	if v := pt.ToFloat64(m.mqttConnected); v != 0 {
		t.Errorf("mqtt_connected: got %v, want 0", v)
	}
}

func TestMQTTOutbox(t *testing.T) {
	m := New()

	m.SetMQTTQueued(7)
	m.RecordMQTTDropped()
	m.RecordMQTTDropped()
	if v := pt.ToFloat64(m.mqttQueued); v != 7 {
		t.Errorf("mqtt_queued: got %v, want 7", v)
	}
	if v := pt.ToFloat64(m.mqttDropped); v != 2 {
		t.Errorf("mqtt_dropped_total: got %v, want 2", v)
	}

	m.SetMQTTQueued(0)
	if v := pt.ToFloat64(m.mqttQueued); v != 0 {
		t.Errorf("mqtt_queued after drain: got %v, want 0", v)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.SetPinLevel("button", 20, gpiomem.High)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		`gpiomem_pin_level{name="button",pin="20"} 1`,
		"gpiomem_read_errors_total 0",
		"gpiomem_mqtt_connected 0",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestRegistriesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.RecordReadError()
	if v := pt.ToFloat64(b.readErrors); v != 0 {
		t.Errorf("second registry saw %v read errors", v)
	}
}
