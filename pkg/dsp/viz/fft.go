package viz

import (
	"math"
	"math/cmplx"
	"sync"

	"github.com/mjibson/go-dsp/window"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
)

const spectrumAvg = 0.10

// SpectrumPlotter plots the averaged magnitude spectrum of the last window
// of converter samples.
type SpectrumPlotter struct {
	mu           sync.Mutex
	buf          []float64
	averagePower []float64
	len          int
	sampleRate   float64
	name         string
	plotOptions  []PlotOptions
	fft          *fourier.FFT
}

// NewSpectrumPlotter plots windows of length len taken at sampleRate Hz.
func NewSpectrumPlotter(name string, len int, sampleRate float64) *SpectrumPlotter {
	return &SpectrumPlotter{
		buf:          make([]float64, len),
		averagePower: make([]float64, len/2+1),
		len:          len,
		sampleRate:   sampleRate,
		name:         name,
		fft:          fourier.NewFFT(len),
	}
}

func (s *SpectrumPlotter) Name() string {
	return s.name
}

func (s *SpectrumPlotter) AddPlotOption(opt PlotOptions) {
	s.mu.Lock()
	s.plotOptions = append(s.plotOptions, opt)
	s.mu.Unlock()
}

// AppendSamples shifts samples into the window, keeping the newest len.
func (s *SpectrumPlotter) AppendSamples(samples []uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(samples) >= s.len {
		samples = samples[len(samples)-s.len:]
	}
	copy(s.buf, s.buf[len(samples):])
	for i, v := range samples {
		s.buf[s.len-len(samples)+i] = float64(v)
	}
}

// Spectrum returns the frequency and magnitude of every bin for the current
// window after removing its mean and applying a Hann window.
func (s *SpectrumPlotter) Spectrum() (freqs, mags []float64) {
	s.mu.Lock()
	data := make([]float64, s.len)
	copy(data, s.buf)
	s.mu.Unlock()

	var mean float64
	for _, v := range data {
		mean += v
	}
	mean /= float64(len(data))
	for i := range data {
		data[i] -= mean
	}
	window.Apply(data, window.Hann)

	coeffs := s.fft.Coefficients(nil, data)
	freqs = make([]float64, len(coeffs))
	mags = make([]float64, len(coeffs))
	for i, c := range coeffs {
		freqs[i] = s.fft.Freq(i) * s.sampleRate
		mags[i] = cmplx.Abs(c)
	}
	return freqs, mags
}

func (s *SpectrumPlotter) GetImage() *ImageContainer {
	freqs, mags := s.Spectrum()

	p := plotWithDefaults()
	p.Title.Text = s.name
	p.Y.Label.Text = "Magnitude (dB)"
	p.X.Label.Text = "Frequency (Hz)"

	s.mu.Lock()
	for _, opt := range s.plotOptions {
		opt(p)
	}
	pts := make(plotter.XYs, len(mags))
	for i := range mags {
		s.averagePower[i] = (1.0-spectrumAvg)*s.averagePower[i] + spectrumAvg*mags[i]
		pts[i] = plotter.XY{X: freqs[i], Y: 20 * math.Log10(s.averagePower[i]+1e-9)}
	}
	s.mu.Unlock()

	p.Add(plotter.NewGrid())
	if err := plotutil.AddLines(p, "spectrum", pts); err != nil {
		log.Warn().Err(err).Str("plot", s.name).Msg("error building plot")
		return nil
	}

	img, err := render(s.name, p)
	if err != nil {
		log.Warn().Err(err).Str("plot", s.name).Msg("error rendering plot")
		return nil
	}
	return img
}
