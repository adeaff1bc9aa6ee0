package waveform

import (
	"sync"

	"github.com/norasector/plcvlc/pkg/manchester"
)

// 12-bit converter full scale.
const (
	DefaultHigh uint16 = 4095
	DefaultLow  uint16 = 0
)

// LineWaveform renders symbols as the two-level signal seen on the line,
// most significant bit first, and plays it back one sample per Convert.
// It satisfies hal.ADC so sampling programs can run without hardware.
type LineWaveform struct {
	samplesPerBit int
	high          uint16
	low           uint16

	mu      sync.Mutex
	samples []uint16
	idx     int
}

func NewLineWaveform(samplesPerBit int, high, low uint16, symbols ...manchester.Symbol) *LineWaveform {
	if samplesPerBit <= 0 {
		samplesPerBit = 1
	}
	w := &LineWaveform{
		samplesPerBit: samplesPerBit,
		high:          high,
		low:           low,
	}
	w.samples = w.Work(symbols)
	return w
}

// WorkBuffer renders one symbol into output and returns the number of
// samples written.
func (w *LineWaveform) WorkBuffer(s manchester.Symbol, output []uint16) int {
	n := 0
	for bit := 15; bit >= 0; bit-- {
		level := w.low
		if uint16(s)&(1<<uint(bit)) != 0 {
			level = w.high
		}
		for i := 0; i < w.samplesPerBit && n < len(output); i++ {
			output[n] = level
			n++
		}
	}
	return n
}

func (w *LineWaveform) Work(symbols []manchester.Symbol) []uint16 {
	ret := make([]uint16, w.PredictOutputSize(len(symbols)))
	n := 0
	for _, s := range symbols {
		n += w.WorkBuffer(s, ret[n:])
	}
	return ret[:n]
}

func (w *LineWaveform) PredictOutputSize(symbols int) int {
	return symbols * 16 * w.samplesPerBit
}

// Convert returns the next sample, starting over after the last one. An
// empty waveform idles low.
func (w *LineWaveform) Convert() (uint16, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.samples) == 0 {
		return w.low, nil
	}
	v := w.samples[w.idx]
	w.idx = (w.idx + 1) % len(w.samples)
	return v, nil
}
