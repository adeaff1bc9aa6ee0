// Package sampler samples a converter on a timer that an external
// interrupt starts, and slices each full window of samples into line
// levels.
package sampler

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/norasector/plcvlc/pkg/dsp/filters/fir"
	"github.com/norasector/plcvlc/pkg/dsp/slicer"
	"github.com/norasector/plcvlc/pkg/dsp/viz"
	"github.com/norasector/plcvlc/pkg/hal"
	"github.com/norasector/plcvlc/pkg/plcvlc"
)

const (
	Name = "sampler"

	DefaultBufferLen    = 30
	DefaultSamplePeriod = time.Millisecond

	plotWindows = 8
)

var ErrNoADC = errors.New("sampler: no converter")

type Options struct {
	BufferLen    int
	SamplePeriod time.Duration
	// StopOnWindow stops the sample timer each time the window fills; the
	// next XINT1 starts it again.
	StopOnWindow   bool
	StatusInterval time.Duration
	// Smoothing filters each window before it is sliced. Nil slices the raw
	// samples.
	Smoothing *fir.Filter
}

type Sampler struct {
	opts Options

	timer  *hal.Timer
	slicer *slicer.BinarySlicer

	// Handler goroutine only.
	ring   *hal.Ring[uint16]
	levels []byte

	xint1     atomic.Uint64
	samples   atomic.Uint64
	windows   atomic.Uint64
	adcErrors atomic.Uint64

	samplePlot   *viz.TimeDomainPlotter
	levelPlot    *viz.TimeDomainPlotter
	spectrumPlot *viz.SpectrumPlotter

	env    *plcvlc.Env
	logger zerolog.Logger
}

func New(opts Options) *Sampler {
	if opts.BufferLen <= 0 {
		opts.BufferLen = DefaultBufferLen
	}
	if opts.SamplePeriod <= 0 {
		opts.SamplePeriod = DefaultSamplePeriod
	}
	if opts.StatusInterval <= 0 {
		opts.StatusInterval = 5 * time.Second
	}
	return &Sampler{
		opts:   opts,
		slicer: slicer.NewBinarySlicer(false),
		ring:   hal.NewRing[uint16](opts.BufferLen),
	}
}

func (s *Sampler) Name() string {
	return Name
}

func (s *Sampler) Install(env *plcvlc.Env) error {
	if env.ADC == nil {
		return ErrNoADC
	}
	s.env = env
	s.logger = env.Logger
	s.timer = hal.NewTimer(hal.LineTINT0, s.opts.SamplePeriod, env.Controller.Raise)

	if env.Viz != nil {
		n := s.opts.BufferLen * plotWindows
		s.samplePlot = viz.NewTimeDomainPlotter("samples", "adc", n)
		s.samplePlot.SetPlotType(viz.PlotTypeLines)
		s.levelPlot = viz.NewTimeDomainPlotter("levels", "level", n)
		s.levelPlot.SetPlotType(viz.PlotTypeSteps)
		s.levelPlot.AddPlotOption(viz.YRange(-0.25, 1.25))
		s.spectrumPlot = viz.NewSpectrumPlotter("spectrum", s.opts.BufferLen, 1/s.opts.SamplePeriod.Seconds())
		env.Viz.Register(Name, s.samplePlot)
		env.Viz.Register(Name, s.levelPlot)
		env.Viz.Register(Name, s.spectrumPlot)
	}

	env.Controller.Register(hal.LineXINT1, s.handleEdge)
	env.Controller.Register(hal.LineTINT0, s.handleTimer)
	return nil
}

func (s *Sampler) handleEdge(ev hal.Event) {
	s.env.Toggle(0)
	s.xint1.Add(1)
	s.timer.Start()
}

func (s *Sampler) handleTimer(ev hal.Event) {
	s.env.Toggle(1)

	v, err := s.env.ADC.Convert()
	if err != nil {
		s.adcErrors.Add(1)
		s.logger.Warn().Err(err).Msg("conversion failed")
		return
	}
	s.samples.Add(1)

	if s.ring.Put(v) {
		s.window(ev)
	}
}

func (s *Sampler) window(ev hal.Event) {
	window := s.ring.Snapshot()
	if s.opts.Smoothing != nil {
		window = s.opts.Smoothing.Work(window)
	}
	threshold := s.slicer.Threshold(window)
	levels := s.slicer.Work(window)
	s.levels = levels
	s.windows.Add(1)

	if s.opts.StopOnWindow {
		s.timer.Stop()
	}

	s.logger.Debug().
		Float64("threshold", threshold).
		Str("levels", slicer.String(levels)).
		Msg("window full")

	if s.samplePlot != nil {
		s.samplePlot.AppendSamples(window)
		s.levelPlot.AppendLevels(levels)
		s.spectrumPlot.AppendSamples(window)
	}

	min, max := window[0], window[0]
	ones := 0
	for i, v := range window {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
		ones += int(levels[i])
	}
	go s.env.Metrics.WritePoint(influxdb2.NewPoint("sampler.window",
		map[string]string{},
		map[string]interface{}{
			"threshold": threshold,
			"min":       int(min),
			"max":       int(max),
			"ones":      ones,
			"samples":   len(window),
		}, ev.Timestamp))
}

// Timer exposes the sample timer.
func (s *Sampler) Timer() *hal.Timer {
	return s.timer
}

// Window returns the sample ring and the next write position. It must be
// called from the handler goroutine, or once the controller has stopped.
func (s *Sampler) Window() ([]uint16, int) {
	return s.ring.Snapshot(), s.ring.Pos()
}

// Levels returns the sliced levels of the last full window, with the same
// goroutine restriction as Window.
func (s *Sampler) Levels() []byte {
	return s.levels
}

// Windows counts filled windows.
func (s *Sampler) Windows() uint64 {
	return s.windows.Load()
}

func (s *Sampler) Start(ctx context.Context) error {
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return s.timer.Run(ctx)
	})
	eg.Go(func() error {
		ticker := time.NewTicker(s.opts.StatusInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				s.logger.Info().
					Uint64("xint1", s.xint1.Load()).
					Uint64("samples", s.samples.Load()).
					Uint64("windows", s.windows.Load()).
					Uint64("adc_errors", s.adcErrors.Load()).
					Uint64("missed_ticks", s.timer.Missed()).
					Bool("sampling", s.timer.Running()).
					Msg("status")
			}
		}
	})
	return eg.Wait()
}
