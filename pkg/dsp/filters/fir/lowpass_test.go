package fir

import (
	"math"
	"testing"
)

func TestMakeLowPass(t *testing.T) {
	taps := MakeLowPass(1, 1000, 125, 100)
	if len(taps) != 25 {
		t.Fatalf("len(taps) = %d, want 25", len(taps))
	}

	var sum float64
	for i, tap := range taps {
		sum += tap
		if mirror := taps[len(taps)-1-i]; math.Abs(tap-mirror) > 1e-12 {
			t.Errorf("taps[%d] = %v, mirror %v", i, tap, mirror)
		}
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("DC gain = %v, want 1", sum)
	}
}

func TestFilterPassesDC(t *testing.T) {
	f := NewLowPass(1000, 125, 100)
	in := make([]uint16, 40)
	for i := range in {
		in[i] = 1234
	}
	for i, v := range f.Work(in) {
		if v != 1234 {
			t.Fatalf("out[%d] = %d, want 1234", i, v)
		}
	}
}

func TestFilterSmoothsNyquist(t *testing.T) {
	f := NewLowPass(1000, 125, 100)
	in := make([]uint16, 64)
	for i := range in {
		if i%2 == 0 {
			in[i] = 4000
		}
	}
	out := f.Work(in)
	M := (len(f.Taps()) - 1) / 2
	for i := M; i < len(in)-M; i++ {
		if out[i] < 1800 || out[i] > 2200 {
			t.Errorf("out[%d] = %d, want about 2000", i, out[i])
		}
	}
}

func TestClamp(t *testing.T) {
	tests := []struct {
		in   float64
		want uint16
	}{
		{-3, 0},
		{1.4, 1},
		{1.6, 2},
		{70000, math.MaxUint16},
	}
	for _, tt := range tests {
		if got := clamp(tt.in); got != tt.want {
			t.Errorf("clamp(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
