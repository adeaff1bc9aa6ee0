// Package gpio raises XINT1/XINT2 events from edge-triggered input pins and
// drives monitor output pins.
package gpio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/norasector/plcvlc/pkg/hal"
	"github.com/norasector/plcvlc/pkg/plcvlc/device"
)

// edgePoll bounds how long an edge wait goes without checking ctx.
const edgePoll = 100 * time.Millisecond

type Pins struct {
	XINT1       string
	XINT2       string
	XINT1Rising bool
	XINT2Rising bool
	Monitors    []string
}

type input struct {
	line hal.Line
	pin  gpio.PinIO
}

type GPIODevice struct {
	inputs   []input
	monitors []hal.Toggler
	logger   zerolog.Logger
}

func NewGPIODevice(pins Pins, logger zerolog.Logger) (*GPIODevice, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("gpio: host init: %w", err)
	}

	d := &GPIODevice{logger: logger}

	for _, cfg := range []struct {
		line   hal.Line
		name   string
		rising bool
	}{
		{hal.LineXINT1, pins.XINT1, pins.XINT1Rising},
		{hal.LineXINT2, pins.XINT2, pins.XINT2Rising},
	} {
		if cfg.name == "" {
			continue
		}
		p := gpioreg.ByName(cfg.name)
		if p == nil {
			return nil, fmt.Errorf("gpio: no pin %s for %s", cfg.name, cfg.line)
		}
		pull, edge := gpio.PullUp, gpio.FallingEdge
		if cfg.rising {
			pull, edge = gpio.PullDown, gpio.RisingEdge
		}
		if err := p.In(pull, edge); err != nil {
			return nil, fmt.Errorf("gpio: %s as %s input: %w", cfg.name, cfg.line, err)
		}
		d.inputs = append(d.inputs, input{line: cfg.line, pin: p})
		logger.Info().Str("pin", cfg.name).Str("line", cfg.line.String()).Bool("rising", cfg.rising).Msg("edge input ready")
	}

	for _, name := range pins.Monitors {
		p := gpioreg.ByName(name)
		if p == nil {
			return nil, fmt.Errorf("gpio: no monitor pin %s", name)
		}
		if err := p.Out(gpio.Low); err != nil {
			return nil, fmt.Errorf("gpio: %s as output: %w", name, err)
		}
		d.monitors = append(d.monitors, &pinToggler{pin: p, level: gpio.Low})
	}

	return d, nil
}

// Monitors returns the monitor pins in configuration order.
func (d *GPIODevice) Monitors() []hal.Toggler {
	return d.monitors
}

func (d *GPIODevice) Start(ctx context.Context, events chan<- hal.Event) error {
	eg, ctx := errgroup.WithContext(ctx)
	for _, in := range d.inputs {
		thisInput := in
		eg.Go(func() error {
			for {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				if !thisInput.pin.WaitForEdge(edgePoll) {
					continue
				}
				ev := hal.Event{Line: thisInput.line, Timestamp: time.Now()}
				if err := device.Deliver(ctx, events, ev); err != nil {
					return err
				}
			}
		})
	}
	return eg.Wait()
}

func (d *GPIODevice) Stop() error {
	var firstErr error
	for _, in := range d.inputs {
		if err := in.pin.Halt(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

type pinToggler struct {
	mu    sync.Mutex
	pin   gpio.PinIO
	level gpio.Level
}

func (t *pinToggler) Toggle() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.level = !t.level
	return t.pin.Out(t.level)
}
