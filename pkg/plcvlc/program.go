package plcvlc

import (
	"context"
	"errors"
	"io"
	"sync/atomic"

	"github.com/influxdata/influxdb-client-go/api"
	"github.com/rs/zerolog"

	"github.com/norasector/plcvlc/pkg/dsp/viz"
	"github.com/norasector/plcvlc/pkg/hal"
	"github.com/norasector/plcvlc/pkg/sci"
)

// ErrDone is returned by a program that has finished its work and wants the
// station to shut down.
var ErrDone = errors.New("plcvlc: program done")

// Program is one demo: it installs its handlers and then idles.
type Program interface {
	Name() string
	// Install registers handlers. It runs before any event is dispatched.
	Install(env *Env) error
	// Start is the idle loop. It returns when ctx is done.
	Start(ctx context.Context) error
}

// Env is what a program may touch. Handlers run on the controller
// goroutine, so everything here is either safe from there or only used by
// Start.
type Env struct {
	Controller *hal.Controller
	Link       *sci.Link
	Console    *sci.Link
	ADC        hal.ADC
	Monitors   []hal.Toggler
	Viz        *viz.Server
	Metrics    api.WriteAPI
	Logger     zerolog.Logger

	records       chan Record
	dropped       atomic.Uint64
	monitorErrors atomic.Uint64
}

// NewEnv builds an environment whose records are buffered up to depth.
// Station does this itself; tests and tools that drive a program directly
// read Records.
func NewEnv(controller *hal.Controller, depth int, metrics api.WriteAPI, logger zerolog.Logger) *Env {
	if depth <= 0 {
		depth = 32
	}
	return &Env{
		Controller: controller,
		Metrics:    metrics,
		Logger:     logger,
		records:    make(chan Record, depth),
	}
}

// Emit queues r without blocking and reports whether it was accepted.
func (e *Env) Emit(r Record) bool {
	select {
	case e.records <- r:
		return true
	default:
		e.dropped.Add(1)
		return false
	}
}

// Records is the stream of emitted records.
func (e *Env) Records() <-chan Record {
	return e.records
}

// DroppedRecords counts records Emit rejected.
func (e *Env) DroppedRecords() uint64 {
	return e.dropped.Load()
}

// Monitor returns monitor pin i, or a no-op when it is not wired.
func (e *Env) Monitor(i int) hal.Toggler {
	if i < 0 || i >= len(e.Monitors) || e.Monitors[i] == nil {
		return hal.NopToggler
	}
	return e.Monitors[i]
}

// Toggle flips monitor pin i. A failed pin write is counted and logged at
// debug level.
func (e *Env) Toggle(i int) {
	if err := e.Monitor(i).Toggle(); err != nil {
		e.monitorErrors.Add(1)
		e.Logger.Debug().Err(err).Int("monitor", i).Msg("monitor toggle failed")
	}
}

// MonitorErrors counts failed monitor pin writes.
func (e *Env) MonitorErrors() uint64 {
	return e.monitorErrors.Load()
}

// ConsoleEchoer is a program that writes received payloads to the console
// itself.
type ConsoleEchoer interface {
	EchoesConsole() bool
}

// ConsoleSink is an output that writes payloads to a console writer.
type ConsoleSink interface {
	Writer() io.Writer
}
