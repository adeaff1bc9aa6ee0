// Package echoback is the link receiver: every receive FIFO interrupt
// carries one Manchester symbol, which is stored, decoded and echoed to the
// console.
package echoback

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/rs/zerolog"

	"github.com/norasector/plcvlc/pkg/hal"
	"github.com/norasector/plcvlc/pkg/manchester"
	"github.com/norasector/plcvlc/pkg/plcvlc"
)

const (
	Name = "echoback"

	// DefaultBufferLen holds 25 symbols as raw bytes.
	DefaultBufferLen = 50
)

var banner = []string{
	"\r\n PLC-VLC Manchester Receiver Program",
	"\r\n Version 1.0",
	"\r\n======",
}

type Echoback struct {
	bufferLen      int
	statusInterval time.Duration

	// Handler goroutine only.
	ring *hal.Ring[byte]

	interrupts atomic.Uint64
	invalid    atomic.Uint64
	short      atomic.Uint64

	env    *plcvlc.Env
	logger zerolog.Logger
}

func New(bufferLen int, statusInterval time.Duration) *Echoback {
	if bufferLen <= 0 {
		bufferLen = DefaultBufferLen
	}
	if statusInterval <= 0 {
		statusInterval = 5 * time.Second
	}
	return &Echoback{
		bufferLen:      bufferLen,
		statusInterval: statusInterval,
		ring:           hal.NewRing[byte](bufferLen),
	}
}

func (e *Echoback) Name() string {
	return Name
}

func (e *Echoback) Install(env *plcvlc.Env) error {
	if e.bufferLen%2 != 0 {
		return fmt.Errorf("echoback: buffer length %d does not hold whole symbols", e.bufferLen)
	}
	e.env = env
	e.logger = env.Logger

	for _, line := range banner {
		if err := env.Console.WriteMsg(line); err != nil {
			return fmt.Errorf("echoback: banner: %w", err)
		}
	}

	env.Controller.Register(hal.LineSCIRXB, e.handleReceive)
	return nil
}

func (e *Echoback) handleReceive(ev hal.Event) {
	e.env.Toggle(0)
	e.interrupts.Add(1)

	if len(ev.Data) < 2 {
		e.short.Add(1)
		e.logger.Warn().Int("bytes", len(ev.Data)).Msg("receive interrupt below trigger level")
		return
	}

	lsb, msb := ev.Data[0], ev.Data[1]
	e.ring.Put(lsb)
	e.ring.Put(msb)

	rec := plcvlc.NewRecord(Name, ev.Line, manchester.Join(lsb, msb), ev.Timestamp)
	if !rec.Valid {
		e.invalid.Add(1)
		e.logger.Debug().Str("symbol", rec.Symbol.String()).Msg("symbol breaks the clock pattern")
	}

	e.env.Toggle(1)
	if err := e.env.Console.Transmit(rec.Payload); err != nil {
		e.logger.Warn().Err(err).Msg("console echo failed")
	}
	e.env.Emit(rec)
}

// EchoesConsole reports that every payload is already written to the
// console by the receive handler.
func (e *Echoback) EchoesConsole() bool {
	return true
}

// Buffer returns the raw byte ring and the next write position. It must be
// called from the handler goroutine, or once the controller has stopped.
func (e *Echoback) Buffer() ([]byte, int) {
	return e.ring.Snapshot(), e.ring.Pos()
}

func (e *Echoback) Interrupts() uint64 {
	return e.interrupts.Load()
}

func (e *Echoback) Invalid() uint64 {
	return e.invalid.Load()
}

func (e *Echoback) Start(ctx context.Context) error {
	ticker := time.NewTicker(e.statusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.logger.Info().
				Uint64("interrupts", e.interrupts.Load()).
				Uint64("invalid", e.invalid.Load()).
				Uint64("short", e.short.Load()).
				Msg("status")
			e.env.Metrics.WritePoint(influxdb2.NewPoint("echoback.status",
				map[string]string{},
				map[string]interface{}{
					"interrupts": int64(e.interrupts.Load()),
					"invalid":    int64(e.invalid.Load()),
					"short":      int64(e.short.Load()),
				}, time.Now()))
		}
	}
}
