package viz

import (
	"sync"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
)

type PlotType int

const (
	PlotTypeDefault PlotType = iota
	PlotTypeScatter
	PlotTypeLines
	PlotTypeSteps
)

// TimeDomainPlotter keeps the most recent size values and plots them
// against their index.
type TimeDomainPlotter struct {
	mu          sync.Mutex
	buf         []float64
	size        int
	name        string
	yLabel      string
	plotType    PlotType
	plotOptions []PlotOptions
}

func NewTimeDomainPlotter(name, yLabel string, size int) *TimeDomainPlotter {
	return &TimeDomainPlotter{
		buf:    make([]float64, 0, size),
		size:   size,
		name:   name,
		yLabel: yLabel,
	}
}

func (t *TimeDomainPlotter) Name() string {
	return t.name
}

func (t *TimeDomainPlotter) SetPlotType(tp PlotType) {
	t.mu.Lock()
	t.plotType = tp
	t.mu.Unlock()
}

func (t *TimeDomainPlotter) AddPlotOption(opt PlotOptions) {
	t.mu.Lock()
	t.plotOptions = append(t.plotOptions, opt)
	t.mu.Unlock()
}

func (t *TimeDomainPlotter) append(v float64) {
	t.buf = append(t.buf, v)
	if len(t.buf) > t.size {
		t.buf = t.buf[len(t.buf)-t.size:]
	}
}

// AppendSamples adds converter samples.
func (t *TimeDomainPlotter) AppendSamples(s []uint16) {
	t.mu.Lock()
	for _, v := range s {
		t.append(float64(v))
	}
	t.mu.Unlock()
}

// AppendLevels adds sliced line levels or raw bits.
func (t *TimeDomainPlotter) AppendLevels(levels []byte) {
	t.mu.Lock()
	for _, v := range levels {
		t.append(float64(v))
	}
	t.mu.Unlock()
}

func (t *TimeDomainPlotter) snapshot() []float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	ret := make([]float64, len(t.buf))
	copy(ret, t.buf)
	return ret
}

func (t *TimeDomainPlotter) GetImage() *ImageContainer {
	data := t.snapshot()
	if len(data) == 0 {
		return nil
	}

	p := plotWithDefaults()
	p.Title.Text = t.name
	p.Y.Label.Text = t.yLabel
	p.X.Label.Text = "n"

	t.mu.Lock()
	opts := append([]PlotOptions(nil), t.plotOptions...)
	plotType := t.plotType
	t.mu.Unlock()
	for _, opt := range opts {
		opt(p)
	}
	p.Add(plotter.NewGrid())

	pts := make(plotter.XYs, len(data))
	for i, v := range data {
		pts[i] = plotter.XY{X: float64(i), Y: v}
	}

	if err := addSeries(p, plotType, pts); err != nil {
		log.Warn().Err(err).Str("plot", t.name).Msg("error building plot")
		return nil
	}

	img, err := render(t.name, p)
	if err != nil {
		log.Warn().Err(err).Str("plot", t.name).Msg("error rendering plot")
		return nil
	}
	return img
}

func addSeries(p *plot.Plot, tp PlotType, pts plotter.XYs) error {
	switch tp {
	case PlotTypeLines:
		return plotutil.AddLines(p, "f(n)", pts)
	case PlotTypeSteps:
		l, err := plotter.NewLine(pts)
		if err != nil {
			return err
		}
		l.StepStyle = plotter.PreStep
		l.Color = plotutil.Color(0)
		p.Add(l)
		return nil
	default:
		return plotutil.AddScatters(p, "f(n)", pts)
	}
}
