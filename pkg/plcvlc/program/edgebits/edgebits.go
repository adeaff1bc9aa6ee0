// Package edgebits builds a bit stream from external interrupts: a rising
// edge on XINT1 shifts in a one, a falling edge on XINT2 shifts in a zero.
package edgebits

import (
	"context"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/rs/zerolog"

	"github.com/norasector/plcvlc/pkg/dsp/viz"
	"github.com/norasector/plcvlc/pkg/hal"
	"github.com/norasector/plcvlc/pkg/manchester"
	"github.com/norasector/plcvlc/pkg/plcvlc"
)

const (
	Name = "edge_bits"

	// DefaultSymbolBits is one Manchester symbol worth of edges.
	DefaultSymbolBits = 16

	plotLength = 256
)

type EdgeBits struct {
	symbolBits     int
	statusInterval time.Duration

	// Handler goroutine only.
	acc   uint32
	edges int

	xint1   atomic.Uint64
	xint2   atomic.Uint64
	symbols atomic.Uint64
	last    atomic.Uint32

	plot   *viz.TimeDomainPlotter
	env    *plcvlc.Env
	logger zerolog.Logger
}

// New creates the program. Every symbolBits edges the low 16 bits of the
// accumulator are taken as a symbol; 0 only accumulates.
func New(symbolBits int, statusInterval time.Duration) *EdgeBits {
	if symbolBits < 0 {
		symbolBits = 0
	}
	if statusInterval <= 0 {
		statusInterval = 5 * time.Second
	}
	return &EdgeBits{
		symbolBits:     symbolBits,
		statusInterval: statusInterval,
	}
}

func (e *EdgeBits) Name() string {
	return Name
}

func (e *EdgeBits) Install(env *plcvlc.Env) error {
	e.env = env
	e.logger = env.Logger

	if env.Viz != nil {
		e.plot = viz.NewTimeDomainPlotter("edge bits", "bit", plotLength)
		e.plot.SetPlotType(viz.PlotTypeSteps)
		e.plot.AddPlotOption(viz.YRange(-0.25, 1.25))
		env.Viz.Register(Name, e.plot)
	}

	env.Controller.Register(hal.LineXINT1, func(ev hal.Event) {
		env.Toggle(0)
		e.xint1.Add(1)
		e.shift(ev, 1)
	})
	env.Controller.Register(hal.LineXINT2, func(ev hal.Event) {
		env.Toggle(1)
		e.xint2.Add(1)
		e.shift(ev, 0)
	})
	return nil
}

func (e *EdgeBits) shift(ev hal.Event, bit uint32) {
	e.acc = e.acc<<1 | bit
	e.last.Store(e.acc)
	if e.plot != nil {
		e.plot.AppendLevels([]byte{byte(bit)})
	}

	if e.symbolBits == 0 {
		return
	}
	e.edges++
	if e.edges < e.symbolBits {
		return
	}

	s := manchester.Symbol(e.acc & 0xFFFF)
	e.acc, e.edges = 0, 0
	e.last.Store(0)
	e.symbols.Add(1)

	rec := plcvlc.NewRecord(Name, ev.Line, s, ev.Timestamp)
	e.logger.Debug().
		Str("symbol", s.String()).
		Uint8("payload", rec.Payload).
		Bool("valid", rec.Valid).
		Msg("symbol complete")
	e.env.Emit(rec)
}

// Accumulator returns the bits shifted in since the last completed symbol.
func (e *EdgeBits) Accumulator() uint32 {
	return e.last.Load()
}

// Counts returns the XINT1 and XINT2 interrupt counts.
func (e *EdgeBits) Counts() (xint1, xint2 uint64) {
	return e.xint1.Load(), e.xint2.Load()
}

func (e *EdgeBits) Start(ctx context.Context) error {
	ticker := time.NewTicker(e.statusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			x1, x2 := e.Counts()
			e.logger.Info().
				Uint64("xint1", x1).
				Uint64("xint2", x2).
				Uint64("symbols", e.symbols.Load()).
				Uint32("bits", e.last.Load()).
				Msg("status")
			e.env.Metrics.WritePoint(influxdb2.NewPoint("edge_bits.status",
				map[string]string{},
				map[string]interface{}{
					"xint1":   int64(x1),
					"xint2":   int64(x2),
					"symbols": int64(e.symbols.Load()),
				}, time.Now()))
		}
	}
}
