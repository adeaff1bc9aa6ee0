package waveform

import (
	"reflect"
	"testing"

	"github.com/norasector/plcvlc/pkg/manchester"
)

func TestLineWaveformWork(t *testing.T) {
	w := NewLineWaveform(2, 9, 1)
	got := w.Work([]manchester.Symbol{0x8001})

	want := make([]uint16, 32)
	for i := range want {
		want[i] = 1
	}
	want[0], want[1] = 9, 9
	want[30], want[31] = 9, 9

	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Work() = %v, want %v", got, want)
	}
}

func TestLineWaveformConvertCycles(t *testing.T) {
	w := NewLineWaveform(1, DefaultHigh, DefaultLow, manchester.Encode('A'))
	if got := w.PredictOutputSize(1); got != 16 {
		t.Fatalf("PredictOutputSize(1) = %d", got)
	}

	first := make([]uint16, 16)
	for i := range first {
		v, err := w.Convert()
		if err != nil {
			t.Fatalf("convert: %v", err)
		}
		first[i] = v
	}
	for i := range first {
		v, _ := w.Convert()
		if v != first[i] {
			t.Fatalf("sample %d = %d on second pass, want %d", i, v, first[i])
		}
	}

	var sym uint16
	for _, v := range first {
		sym <<= 1
		if v == DefaultHigh {
			sym |= 1
		}
	}
	if manchester.Symbol(sym) != manchester.Encode('A') {
		t.Fatalf("rendered %#04x, want %s", sym, manchester.Encode('A'))
	}
}

func TestEmptyWaveformIdlesLow(t *testing.T) {
	w := NewLineWaveform(4, 100, 7)
	if v, _ := w.Convert(); v != 7 {
		t.Fatalf("Convert() = %d, want 7", v)
	}
}
