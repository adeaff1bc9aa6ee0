package slicer

import (
	"gonum.org/v1/gonum/stat"
)

// BinarySlicer turns converter samples into line levels, one byte with
// value 0 or 1 per sample. The threshold is the mean of the buffer being
// sliced, so it follows the signal's DC level.
type BinarySlicer struct {
	invert bool
	f64Buf []float64
}

func NewBinarySlicer(invert bool) *BinarySlicer {
	return &BinarySlicer{
		invert: invert,
	}
}

func slice(v, threshold float64, invert bool) byte {
	if v > threshold {
		if invert {
			return 0
		}
		return 1
	}
	if invert {
		return 1
	}
	return 0
}

// Threshold is the level WorkBuffer would slice input at.
func (b *BinarySlicer) Threshold(input []uint16) float64 {
	if cap(b.f64Buf) < len(input) {
		b.f64Buf = make([]float64, len(input))
	}
	buf := b.f64Buf[:len(input)]
	for i, v := range input {
		buf[i] = float64(v)
	}
	return stat.Mean(buf, nil)
}

func (b *BinarySlicer) WorkBuffer(input []uint16, output []byte) int {
	if len(input) == 0 {
		return 0
	}
	threshold := b.Threshold(input)
	for i := 0; i < len(input); i++ {
		output[i] = slice(float64(input[i]), threshold, b.invert)
	}
	return len(input)
}

func (b *BinarySlicer) Work(items []uint16) []byte {
	ret := make([]byte, len(items))
	b.WorkBuffer(items, ret)
	return ret
}

func (b *BinarySlicer) PredictOutputSize(inputSize int) int {
	return inputSize
}

// String renders sliced levels as a run of '0' and '1'.
func String(levels []byte) string {
	ret := make([]byte, len(levels))
	for i, l := range levels {
		ret[i] = '0' + l&1
	}
	return string(ret)
}
