package fir

import (
	"math"

	"github.com/mjibson/go-dsp/window"
)

// Hamming window peak sidelobe attenuation in dB.
const hammingAttenuation = 53

func computeNTaps(sampleRate, transitionWidth float64) int {
	ntaps := int(hammingAttenuation * sampleRate / (22.0 * transitionWidth))
	ntaps |= 1 // make odd
	return ntaps
}

// MakeLowPass designs a Hamming windowed-sinc low pass filter with the given
// DC gain.
func MakeLowPass(gain, sampleRate, cutFrequency, transitionWidth float64) []float64 {
	nTaps := computeNTaps(sampleRate, transitionWidth)
	taps := make([]float64, nTaps)
	w := window.Hamming(nTaps)

	M := (nTaps - 1) / 2
	fwT0 := 2 * math.Pi * cutFrequency / sampleRate

	for i := -M; i <= M; i++ {
		if i == 0 {
			taps[i+M] = fwT0 / math.Pi * w[i+M]
		} else {
			fi := float64(i)
			taps[i+M] = math.Sin(fi*fwT0) / (fi * math.Pi) * w[i+M]
		}
	}

	fmax := taps[M]
	for i := 1; i <= M; i++ {
		fmax += 2 * taps[i+M]
	}

	gain /= fmax
	for i := range taps {
		taps[i] *= gain
	}
	return taps
}

// Filter runs taps over converter samples, centred on each output sample
// so the result lines up with the input. Samples past either end repeat
// the edge value.
type Filter struct {
	taps []float64
}

func NewFilter(taps []float64) *Filter {
	return &Filter{taps: taps}
}

func NewLowPass(sampleRate, cutFrequency, transitionWidth float64) *Filter {
	return NewFilter(MakeLowPass(1, sampleRate, cutFrequency, transitionWidth))
}

func (f *Filter) Taps() []float64 {
	return f.taps
}

func (f *Filter) PredictOutputSize(inputSize int) int {
	return inputSize
}

func (f *Filter) WorkBuffer(input, output []uint16) int {
	n := len(input)
	if n == 0 {
		return 0
	}
	M := (len(f.taps) - 1) / 2
	for i := 0; i < n; i++ {
		var acc float64
		for k, tap := range f.taps {
			j := i + k - M
			if j < 0 {
				j = 0
			} else if j >= n {
				j = n - 1
			}
			acc += tap * float64(input[j])
		}
		output[i] = clamp(acc)
	}
	return n
}

func (f *Filter) Work(input []uint16) []uint16 {
	ret := make([]uint16, len(input))
	f.WorkBuffer(input, ret)
	return ret
}

func clamp(v float64) uint16 {
	v = math.Round(v)
	switch {
	case v < 0:
		return 0
	case v > math.MaxUint16:
		return math.MaxUint16
	}
	return uint16(v)
}
