package plcvlc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/norasector/plcvlc/pkg/dsp/viz"
	"github.com/norasector/plcvlc/pkg/hal"
	"github.com/norasector/plcvlc/pkg/plcvlc/device"
	"github.com/norasector/plcvlc/pkg/sci"
	"github.com/norasector/plcvlc/pkg/util"
)

// Station wires an event source, one program and the record outputs.
type Station struct {
	device    device.Device
	program   Program
	opts      Options
	writeAPI  api.WriteAPI
	vizServer *viz.Server
	logger    zerolog.Logger

	controller *hal.Controller
	env        *Env

	mu     sync.Mutex
	cancel context.CancelFunc
	ctx    context.Context
}

type StationOption func(s *Station) error

func WithInfluxDB(influxClient api.WriteAPI) StationOption {
	return func(s *Station) error {
		s.writeAPI = influxClient
		return nil
	}
}

func WithImageServer(vizServer *viz.Server) StationOption {
	return func(s *Station) error {
		s.vizServer = vizServer
		return nil
	}
}

func WithLogger(logger zerolog.Logger) StationOption {
	return func(s *Station) error {
		s.logger = logger
		return nil
	}
}

// NewStation builds a station. dev may be nil for programs that only
// transmit.
func NewStation(dev device.Device, program Program, options Options, opts ...StationOption) (*Station, error) {
	if program == nil {
		return nil, errors.New("plcvlc: no program")
	}

	s := &Station{
		device:   dev,
		program:  program,
		opts:     options,
		writeAPI: &util.MockWriteAPI{}, // overwritten with option
		logger:   log.Logger,
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	if s.opts.StatusInterval <= 0 {
		s.opts.StatusInterval = 5 * time.Second
	}

	s.controller = hal.NewController(s.opts.QueueDepth, s.logger.With().Str("component", "hal").Logger())
	s.env = NewEnv(s.controller, s.opts.RecordDepth, s.writeAPI, s.logger.With().Str("program", program.Name()).Logger())
	s.env.Link = s.opts.Link
	s.env.ADC = s.opts.ADC
	s.env.Monitors = s.opts.Monitors
	s.env.Viz = s.vizServer

	console := s.opts.Console
	if console == nil {
		console = os.Stdout
	}
	s.env.Console = sci.NewLink(console)

	if echoer, ok := program.(ConsoleEchoer); ok && echoer.EchoesConsole() {
		s.opts.Outputs = s.withoutConsoleSinks(s.opts.Outputs, console)
	}

	return s, nil
}

// withoutConsoleSinks drops outputs that would write payloads to the same
// console the program already echoes to.
func (s *Station) withoutConsoleSinks(outputs []Output, console io.Writer) []Output {
	kept := make([]Output, 0, len(outputs))
	for _, output := range outputs {
		if sink, ok := output.(ConsoleSink); ok && sameWriter(sink.Writer(), console) {
			s.logger.Debug().Str("program", s.program.Name()).Msg("program echoes to the console, skipping console output")
			continue
		}
		kept = append(kept, output)
	}
	return kept
}

func sameWriter(a, b io.Writer) bool {
	if a == nil || b == nil {
		return false
	}
	t := reflect.TypeOf(a)
	if t != reflect.TypeOf(b) || !t.Comparable() {
		return false
	}
	return a == b
}

// Controller exposes the event controller, mainly so tests can raise
// events without a device.
func (s *Station) Controller() *hal.Controller {
	return s.controller
}

func (s *Station) Stop() error {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if s.vizServer != nil {
		s.vizServer.Stop(context.TODO())
	}
	if s.device == nil {
		return nil
	}
	return s.device.Stop()
}

func (s *Station) Start(ctx context.Context) error {
	eg, ctx := errgroup.WithContext(ctx)

	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	runCtx := s.ctx
	s.mu.Unlock()

	if err := s.program.Install(s.env); err != nil {
		return fmt.Errorf("installing %s: %w", s.program.Name(), err)
	}

	eg.Go(func() error {
		return s.controller.Run(runCtx)
	})

	if s.device != nil {
		eg.Go(func() error {
			return s.device.Start(runCtx, s.controller.Input())
		})
	}

	if s.vizServer != nil {
		eg.Go(func() error {
			return s.vizServer.Run(runCtx)
		})
	}

	eg.Go(func() error {
		return s.program.Start(runCtx)
	})

	for _, output := range s.opts.Outputs {
		thisOutput := output
		eg.Go(func() error {
			return thisOutput.Start(runCtx)
		})
	}

	eg.Go(func() error {
		return s.outputRecords(runCtx)
	})
	eg.Go(func() error {
		return s.reportStatus(runCtx)
	})

	s.logger.Info().
		Str("program", s.program.Name()).
		Int("outputs", len(s.opts.Outputs)).
		Msg("Starting")

	return eg.Wait()
}

func (s *Station) outputRecords(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case rec := <-s.env.Records():
			skippedOutputs := 0
			for _, output := range s.opts.Outputs {
				select {
				case output.Receive() <- rec:
					// We will not wait on blocked channels.
				default:
					skippedOutputs++
				}
			}

			valid := 0
			if rec.Valid {
				valid = 1
			}
			go s.writeAPI.WritePoint(influxdb2.NewPoint("station.record",
				map[string]string{
					"program": rec.Program,
					"line":    rec.Line.String(),
				},
				map[string]interface{}{
					"symbol":          int(rec.Symbol),
					"payload":         int(rec.Payload),
					"valid":           valid,
					"skipped_outputs": skippedOutputs,
				}, rec.Timestamp))
		}
	}
}

func (s *Station) reportStatus(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.StatusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.writeAPI.WritePoint(influxdb2.NewPoint("station.status",
				map[string]string{
					"program": s.program.Name(),
				},
				map[string]interface{}{
					"spurious":        int64(s.controller.Spurious()),
					"dropped_events":  int64(s.controller.Dropped()),
					"dropped_records": int64(s.env.DroppedRecords()),
				}, time.Now()))
		}
	}
}
