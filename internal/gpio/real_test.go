//go:build linux

package gpio

import (
	"errors"
	"reflect"
	"testing"

	"github.com/warthog618/go-gpiocdev"

	"github.com/sweeney/gpiomem/internal/gpiomem"
)

type fakeLine struct {
	value       int
	valueErr    error
	closeErr    error
	reconfigErr error
	sets        []int
	reconfigs   [][]gpiocdev.LineConfigOption
	closed      bool
}

func (l *fakeLine) Value() (int, error) { return l.value, l.valueErr }

func (l *fakeLine) SetValue(v int) error {
	l.sets = append(l.sets, v)
	l.value = v
	return nil
}

func (l *fakeLine) Reconfigure(options ...gpiocdev.LineConfigOption) error {
	l.reconfigs = append(l.reconfigs, options)
	return l.reconfigErr
}

func (l *fakeLine) Close() error {
	l.closed = true
	return l.closeErr
}

type lineRequest struct {
	offset  int
	options []gpiocdev.LineReqOption
}

type fakeChip struct {
	requests []lineRequest
	lines    map[int]*fakeLine
	err      error
}

func (f *fakeChip) request(offset int, options ...gpiocdev.LineReqOption) (cdevLine, error) {
	f.requests = append(f.requests, lineRequest{offset, options})
	if f.err != nil {
		return nil, f.err
	}
	l, ok := f.lines[offset]
	if !ok {
		l = &fakeLine{}
		f.lines[offset] = l
	}
	return l, nil
}

func newFakeCdev() (*CdevController, *fakeChip) {
	chip := &fakeChip{lines: make(map[int]*fakeLine)}
	return newCdevController(nil, chip.request), chip
}

func TestBiasOption(t *testing.T) {
	tests := []struct {
		pull    gpiomem.Pull
		want    gpiocdev.LineBias
		wantErr error
	}{
		{gpiomem.PullOff, gpiocdev.LineBiasDisabled, nil},
		{gpiomem.PullDown, gpiocdev.LineBiasPullDown, nil},
		{gpiomem.PullUp, gpiocdev.LineBiasPullUp, nil},
		{gpiomem.Pull(3), gpiocdev.WithBiasAsIs, gpiomem.ErrInvalidMode},
		{gpiomem.Pull(99), gpiocdev.WithBiasAsIs, gpiomem.ErrInvalidMode},
	}

	for _, tt := range tests {
		got, err := biasOption(tt.pull)
		if !errors.Is(err, tt.wantErr) {
			t.Errorf("pull %d: error %v, want %v", uint32(tt.pull), err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("pull %d: got %v, want %v", uint32(tt.pull), got, tt.want)
		}
	}
}

func TestCdevOutputBeforeSetup(t *testing.T) {
	c, chip := newFakeCdev()

	err := c.Output(21, gpiomem.High)
	if !errors.Is(err, ErrNotSetup) {
		t.Errorf("expected ErrNotSetup, got %v", err)
	}
	if len(chip.requests) != 0 {
		t.Errorf("unexpected line requests: %+v", chip.requests)
	}
}

func TestCdevSetupOutput(t *testing.T) {
	c, chip := newFakeCdev()

	if err := c.Setup(21, gpiomem.Output, gpiomem.PullUp); err != nil {
		t.Fatalf("setup: %v", err)
	}
	want := []lineRequest{{21, []gpiocdev.LineReqOption{gpiocdev.AsOutput(0), gpiocdev.WithPullUp}}}
	if !reflect.DeepEqual(chip.requests, want) {
		t.Errorf("requests: got %+v, want %+v", chip.requests, want)
	}

	if err := c.Output(21, gpiomem.High); err != nil {
		t.Fatalf("output: %v", err)
	}
	if err := c.Output(21, gpiomem.Low); err != nil {
		t.Fatalf("output: %v", err)
	}
	if got := chip.lines[21].sets; !reflect.DeepEqual(got, []int{1, 0}) {
		t.Errorf("values: got %v, want [1 0]", got)
	}
}

func TestCdevSetupTwiceReconfigures(t *testing.T) {
	c, chip := newFakeCdev()

	if err := c.Setup(20, gpiomem.Output, gpiomem.PullOff); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := c.Setup(20, gpiomem.Input, gpiomem.PullDown); err != nil {
		t.Fatalf("setup: %v", err)
	}

	if len(chip.requests) != 1 {
		t.Errorf("expected one request, got %d", len(chip.requests))
	}
	want := [][]gpiocdev.LineConfigOption{{gpiocdev.AsInput, gpiocdev.WithPullDown}}
	if got := chip.lines[20].reconfigs; !reflect.DeepEqual(got, want) {
		t.Errorf("reconfigs: got %+v, want %+v", got, want)
	}
}

func TestCdevSetupRejects(t *testing.T) {
	c, chip := newFakeCdev()

	if err := c.Setup(gpiomem.MaxPin+1, gpiomem.Input, gpiomem.PullOff); !errors.Is(err, gpiomem.ErrInvalidPin) {
		t.Errorf("pin: got %v, want ErrInvalidPin", err)
	}
	if err := c.Setup(21, gpiomem.Input, gpiomem.Pull(3)); !errors.Is(err, gpiomem.ErrInvalidMode) {
		t.Errorf("pull: got %v, want ErrInvalidMode", err)
	}
	if err := c.Setup(21, gpiomem.Direction(2), gpiomem.PullOff); !errors.Is(err, gpiomem.ErrInvalidMode) {
		t.Errorf("direction: got %v, want ErrInvalidMode", err)
	}
	if len(chip.requests) != 0 {
		t.Errorf("unexpected line requests: %+v", chip.requests)
	}

	chip.err = gpiocdev.ErrClosed
	if err := c.Setup(21, gpiomem.Input, gpiomem.PullOff); !errors.Is(err, gpiocdev.ErrClosed) {
		t.Errorf("request: got %v, want ErrClosed", err)
	}
}

// Reading a pin nobody set up (the agent's -print-state path) requests the
// line without touching direction or bias.
func TestCdevInputWithoutSetup(t *testing.T) {
	c, chip := newFakeCdev()
	chip.lines[21] = &fakeLine{value: 1}

	level, err := c.Input(21)
	if err != nil {
		t.Fatalf("input: %v", err)
	}
	if level != gpiomem.High {
		t.Errorf("expected HIGH, got %s", level)
	}
	want := []lineRequest{{21, []gpiocdev.LineReqOption{gpiocdev.AsIs}}}
	if !reflect.DeepEqual(chip.requests, want) {
		t.Errorf("requests: got %+v, want %+v", chip.requests, want)
	}

	// Second read reuses the line
	if _, err := c.Input(21); err != nil {
		t.Fatalf("input: %v", err)
	}
	if len(chip.requests) != 1 {
		t.Errorf("expected one request, got %d", len(chip.requests))
	}

	// A read-only line cannot be driven
	if err := c.Output(21, gpiomem.Low); !errors.Is(err, ErrNotSetup) {
		t.Errorf("expected ErrNotSetup, got %v", err)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if l := chip.lines[21]; !l.closed || len(l.reconfigs) != 0 {
		t.Errorf("read-only line: closed=%v reconfigs=%+v", l.closed, l.reconfigs)
	}
}

func TestCdevInputErrors(t *testing.T) {
	c, chip := newFakeCdev()

	if _, err := c.Input(gpiomem.MaxPin + 1); !errors.Is(err, gpiomem.ErrInvalidPin) {
		t.Errorf("pin: got %v, want ErrInvalidPin", err)
	}

	chip.lines[20] = &fakeLine{valueErr: gpiocdev.ErrClosed}
	if _, err := c.Input(20); !errors.Is(err, gpiocdev.ErrClosed) {
		t.Errorf("value: got %v, want ErrClosed", err)
	}

	chip.err = errors.New("busy")
	if _, err := c.Input(19); err == nil {
		t.Error("expected request error")
	}
}

func TestCdevCloseRestoresAndJoinsErrors(t *testing.T) {
	c, chip := newFakeCdev()
	for _, pin := range []uint{20, 21} {
		if err := c.Setup(pin, gpiomem.Output, gpiomem.PullOff); err != nil {
			t.Fatalf("setup %d: %v", pin, err)
		}
	}
	chip.lines[20].reconfigErr = gpiocdev.ErrPermissionDenied
	chip.lines[21].closeErr = gpiocdev.ErrClosed

	err := c.Close()
	if !errors.Is(err, gpiocdev.ErrPermissionDenied) || !errors.Is(err, gpiocdev.ErrClosed) {
		t.Errorf("expected both errors to be wrapped, got %v", err)
	}

	want := []gpiocdev.LineConfigOption{gpiocdev.AsInput, gpiocdev.WithPullDown}
	for _, pin := range []int{20, 21} {
		l := chip.lines[pin]
		if !l.closed {
			t.Errorf("pin %d not closed", pin)
		}
		if len(l.reconfigs) != 1 || !reflect.DeepEqual(l.reconfigs[0], want) {
			t.Errorf("pin %d reconfigs: got %+v", pin, l.reconfigs)
		}
	}

	if err := c.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
}
