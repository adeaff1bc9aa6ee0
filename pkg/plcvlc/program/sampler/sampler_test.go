package sampler

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/norasector/plcvlc/pkg/dsp/filters/fir"
	"github.com/norasector/plcvlc/pkg/dsp/waveform"
	"github.com/norasector/plcvlc/pkg/hal"
	"github.com/norasector/plcvlc/pkg/manchester"
	"github.com/norasector/plcvlc/pkg/plcvlc"
	"github.com/norasector/plcvlc/pkg/util"
)

type failingADC struct{}

func (failingADC) Convert() (uint16, error) { return 0, errors.New("busy") }

func newEnv(adc hal.ADC, metrics *util.RecordingWriteAPI) *plcvlc.Env {
	env := plcvlc.NewEnv(hal.NewController(64, zerolog.Nop()), 8, metrics, zerolog.Nop())
	env.ADC = adc
	return env
}

func dispatch(t *testing.T, env *plcvlc.Env, l hal.Line, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := env.Controller.Dispatch(hal.Event{Line: l, Timestamp: time.Now()}); err != nil {
			t.Fatal(err)
		}
	}
}

func TestNeedsADC(t *testing.T) {
	if err := New(Options{}).Install(newEnv(nil, &util.RecordingWriteAPI{})); !errors.Is(err, ErrNoADC) {
		t.Errorf("Install() = %v, want ErrNoADC", err)
	}
}

func TestEdgeStartsTimer(t *testing.T) {
	env := newEnv(waveform.NewLineWaveform(1, waveform.DefaultHigh, waveform.DefaultLow), &util.RecordingWriteAPI{})
	s := New(Options{})
	if err := s.Install(env); err != nil {
		t.Fatal(err)
	}
	if s.Timer().Running() {
		t.Fatal("timer running before XINT1")
	}
	dispatch(t, env, hal.LineXINT1, 1)
	if !s.Timer().Running() {
		t.Error("timer not running after XINT1")
	}
}

func TestWindowWraps(t *testing.T) {
	ramp := waveform.NewLineWaveform(1, 7, 3, 0x00FF)
	env := newEnv(ramp, &util.RecordingWriteAPI{})
	s := New(Options{BufferLen: DefaultBufferLen})
	if err := s.Install(env); err != nil {
		t.Fatal(err)
	}

	dispatch(t, env, hal.LineTINT0, DefaultBufferLen+2)
	window, pos := s.Window()
	if pos != 2 {
		t.Errorf("pos = %d, want 2", pos)
	}
	if s.Windows() != 1 {
		t.Errorf("windows = %d, want 1", s.Windows())
	}
	// Samples 30 and 31 overwrote the first two slots.
	if window[0] != 7 || window[1] != 7 || window[2] != 3 {
		t.Errorf("window head = %v", window[:3])
	}
}

func TestSlicesSymbol(t *testing.T) {
	sym := manchester.Encode('A')
	metrics := &util.RecordingWriteAPI{}
	env := newEnv(waveform.NewLineWaveform(1, waveform.DefaultHigh, waveform.DefaultLow, sym), metrics)
	s := New(Options{BufferLen: 16})
	if err := s.Install(env); err != nil {
		t.Fatal(err)
	}

	dispatch(t, env, hal.LineTINT0, 16)

	window, _ := s.Window()
	levels := s.slicer.Work(window)
	want := make([]byte, 16)
	for i := range want {
		want[i] = byte(uint16(sym) >> uint(15-i) & 1)
	}
	if !reflect.DeepEqual(levels, want) {
		t.Errorf("levels = %v, want %v", levels, want)
	}

	deadline := time.Now().Add(time.Second)
	for metrics.Count("sampler.window") == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if metrics.Count("sampler.window") != 1 {
		t.Errorf("window points = %d, want 1", metrics.Count("sampler.window"))
	}
}

func TestStopOnWindow(t *testing.T) {
	tests := []struct {
		name        string
		stop        bool
		wantRunning bool
	}{
		{"keeps sampling", false, true},
		{"stops at window", true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newEnv(waveform.NewLineWaveform(1, 1, 0, 0xAAAA), &util.RecordingWriteAPI{})
			s := New(Options{BufferLen: 4, StopOnWindow: tt.stop})
			if err := s.Install(env); err != nil {
				t.Fatal(err)
			}
			dispatch(t, env, hal.LineXINT1, 1)
			dispatch(t, env, hal.LineTINT0, 4)
			if s.Timer().Running() != tt.wantRunning {
				t.Errorf("Running() = %v, want %v", s.Timer().Running(), tt.wantRunning)
			}
		})
	}
}

func TestConversionErrorsSkipped(t *testing.T) {
	env := newEnv(failingADC{}, &util.RecordingWriteAPI{})
	s := New(Options{BufferLen: 4})
	if err := s.Install(env); err != nil {
		t.Fatal(err)
	}
	dispatch(t, env, hal.LineTINT0, 8)
	if _, pos := s.Window(); pos != 0 || s.Windows() != 0 {
		t.Errorf("pos = %d windows = %d after failed conversions", pos, s.Windows())
	}
	if s.adcErrors.Load() != 8 {
		t.Errorf("adc errors = %d, want 8", s.adcErrors.Load())
	}
}

func TestRunsFromTimer(t *testing.T) {
	env := newEnv(waveform.NewLineWaveform(1, 1, 0, 0xAAAA), &util.RecordingWriteAPI{})
	s := New(Options{BufferLen: 4, SamplePeriod: time.Millisecond, StopOnWindow: true})
	if err := s.Install(env); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go env.Controller.Run(ctx)
	go s.Start(ctx)

	env.Controller.Raise(hal.Event{Line: hal.LineXINT1})

	deadline := time.Now().Add(2 * time.Second)
	for env.Controller.Count(hal.LineTINT0) < 4 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if env.Controller.Count(hal.LineTINT0) < 4 {
		t.Fatalf("only %d timer events", env.Controller.Count(hal.LineTINT0))
	}
	for s.Timer().Running() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if s.Timer().Running() {
		t.Error("timer still running after a full window")
	}
}

type sliceADC struct {
	samples []uint16
	pos     int
}

func (a *sliceADC) Convert() (uint16, error) {
	v := a.samples[a.pos%len(a.samples)]
	a.pos++
	return v, nil
}

func TestSmoothingBeforeSlicing(t *testing.T) {
	// One edge half way through the window, and a single-sample glitch in
	// the high half.
	samples := make([]uint16, 64)
	for i := 0; i < 32; i++ {
		samples[i] = 4000
	}
	samples[10] = 0

	tests := []struct {
		name      string
		smoothing *fir.Filter
		want      byte
	}{
		{"raw", nil, 0},
		{"smoothed", fir.NewLowPass(1000, 50, 100), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newEnv(&sliceADC{samples: samples}, &util.RecordingWriteAPI{})
			s := New(Options{BufferLen: len(samples), Smoothing: tt.smoothing})
			if err := s.Install(env); err != nil {
				t.Fatal(err)
			}
			dispatch(t, env, hal.LineTINT0, len(samples))

			levels := s.Levels()
			if len(levels) != len(samples) {
				t.Fatalf("len(levels) = %d", len(levels))
			}
			if levels[10] != tt.want {
				t.Errorf("level at glitch = %d, want %d", levels[10], tt.want)
			}
			if levels[2] != 1 || levels[60] != 0 {
				t.Errorf("levels = %v", levels)
			}
		})
	}
}
