package edgebits

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/norasector/plcvlc/pkg/dsp/viz"
	"github.com/norasector/plcvlc/pkg/hal"
	"github.com/norasector/plcvlc/pkg/manchester"
	"github.com/norasector/plcvlc/pkg/plcvlc"
	"github.com/norasector/plcvlc/pkg/util"
)

func newEnv() *plcvlc.Env {
	return plcvlc.NewEnv(hal.NewController(8, zerolog.Nop()), 8, &util.MockWriteAPI{}, zerolog.Nop())
}

// edges plays s MSB first as XINT1 (one) and XINT2 (zero) interrupts.
func edges(t *testing.T, env *plcvlc.Env, s manchester.Symbol, n int) {
	t.Helper()
	for i := n - 1; i >= 0; i-- {
		line := hal.LineXINT2
		if uint16(s)>>uint(i)&1 == 1 {
			line = hal.LineXINT1
		}
		if err := env.Controller.Dispatch(hal.Event{Line: line, Timestamp: time.Now()}); err != nil {
			t.Fatal(err)
		}
	}
}

func TestAccumulates(t *testing.T) {
	tests := []struct {
		name string
		bits []hal.Line
		want uint32
	}{
		{"ones", []hal.Line{hal.LineXINT1, hal.LineXINT1, hal.LineXINT1}, 0x7},
		{"zeros", []hal.Line{hal.LineXINT2, hal.LineXINT2}, 0x0},
		{"mixed", []hal.Line{hal.LineXINT1, hal.LineXINT2, hal.LineXINT1, hal.LineXINT2}, 0xA},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newEnv()
			e := New(0, time.Second)
			if err := e.Install(env); err != nil {
				t.Fatal(err)
			}
			for _, l := range tt.bits {
				if err := env.Controller.Dispatch(hal.Event{Line: l}); err != nil {
					t.Fatal(err)
				}
			}
			if got := e.Accumulator(); got != tt.want {
				t.Errorf("Accumulator() = %#x, want %#x", got, tt.want)
			}
		})
	}
}

func TestCounts(t *testing.T) {
	env := newEnv()
	e := New(0, time.Second)
	if err := e.Install(env); err != nil {
		t.Fatal(err)
	}
	edges(t, env, 0x0005, 4)
	x1, x2 := e.Counts()
	if x1 != 2 || x2 != 2 {
		t.Errorf("Counts() = %d, %d, want 2, 2", x1, x2)
	}
	if env.Controller.Count(hal.LineXINT1) != 2 {
		t.Errorf("controller xint1 count = %d", env.Controller.Count(hal.LineXINT1))
	}
}

func TestSymbolEmitted(t *testing.T) {
	env := newEnv()
	e := New(DefaultSymbolBits, time.Second)
	if err := e.Install(env); err != nil {
		t.Fatal(err)
	}

	for _, p := range []byte{'O', 'K'} {
		edges(t, env, manchester.Encode(uint32(p)), DefaultSymbolBits)
	}

	for _, want := range []byte{'O', 'K'} {
		select {
		case rec := <-env.Records():
			if rec.Payload != want || !rec.Valid || rec.Program != Name {
				t.Errorf("record = %+v, want payload %q", rec, want)
			}
		default:
			t.Fatalf("no record for %q", want)
		}
	}
	if e.Accumulator() != 0 {
		t.Errorf("accumulator = %#x after a full symbol", e.Accumulator())
	}
}

func TestNoSymbolWhenDisabled(t *testing.T) {
	env := newEnv()
	e := New(0, time.Second)
	if err := e.Install(env); err != nil {
		t.Fatal(err)
	}
	edges(t, env, manchester.Encode('A'), 32)
	select {
	case rec := <-env.Records():
		t.Errorf("unexpected record %+v", rec)
	default:
	}
}

func TestPlotRegistered(t *testing.T) {
	env := newEnv()
	env.Viz = viz.NewServer(0, time.Second)
	e := New(DefaultSymbolBits, time.Second)
	if err := e.Install(env); err != nil {
		t.Fatal(err)
	}
	edges(t, env, manchester.Encode('A'), 8)
	if e.plot == nil {
		t.Fatal("no plot with a viz server")
	}
	if e.plot.GetImage() == nil {
		t.Error("plot rendered nothing")
	}
}
