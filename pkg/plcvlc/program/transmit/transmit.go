// Package transmit is the sending side of the link: it Manchester-encodes
// a message and writes each symbol as two bytes, low byte first.
package transmit

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/rs/zerolog"

	"github.com/norasector/plcvlc/pkg/hal"
	"github.com/norasector/plcvlc/pkg/manchester"
	"github.com/norasector/plcvlc/pkg/plcvlc"
)

const Name = "transmit"

var ErrNoLink = errors.New("transmit: no link")

type Options struct {
	Message  string
	Interval time.Duration
	// Repeat is how many times Message is sent. Zero sends it once and a
	// negative value sends it until cancelled.
	Repeat int
	// Input supplies lines to send when Message is empty.
	Input io.Reader
}

type Transmit struct {
	opts Options
	sent atomic.Uint64

	env    *plcvlc.Env
	logger zerolog.Logger
}

func New(opts Options) *Transmit {
	return &Transmit{opts: opts}
}

func (t *Transmit) Name() string {
	return Name
}

func (t *Transmit) Install(env *plcvlc.Env) error {
	if env.Link == nil {
		return ErrNoLink
	}
	if t.opts.Message == "" && t.opts.Input == nil {
		return fmt.Errorf("transmit: nothing to send")
	}
	t.env = env
	t.logger = env.Logger
	return nil
}

// Sent counts transmitted symbols.
func (t *Transmit) Sent() uint64 {
	return t.sent.Load()
}

func (t *Transmit) Start(ctx context.Context) error {
	if t.opts.Message == "" {
		return t.sendLines(ctx)
	}

	for round := 0; t.opts.Repeat < 0 || round < t.opts.Repeat || round == 0; round++ {
		if err := t.send(ctx, t.opts.Message); err != nil {
			return err
		}
	}
	t.logger.Info().Uint64("symbols", t.sent.Load()).Msg("message sent")
	return plcvlc.ErrDone
}

func (t *Transmit) sendLines(ctx context.Context) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(t.opts.Input)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text() + "\n":
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-scanErr:
			if err != nil {
				return err
			}
			return plcvlc.ErrDone
		case line := <-lines:
			if err := t.send(ctx, line); err != nil {
				return err
			}
		}
	}
}

func (t *Transmit) send(ctx context.Context, msg string) error {
	for _, s := range manchester.EncodeString(msg) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := t.env.Link.SendSymbol(s); err != nil {
			return fmt.Errorf("transmit: %w", err)
		}
		t.sent.Add(1)

		now := time.Now()
		t.env.Emit(plcvlc.NewRecord(Name, hal.LineNone, s, now))
		go t.env.Metrics.WritePoint(influxdb2.NewPoint("transmit.symbol",
			map[string]string{},
			map[string]interface{}{
				"symbol":  int(s),
				"payload": int(s.Decode()),
			}, now))

		if t.opts.Interval > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(t.opts.Interval):
			}
		}
	}
	return nil
}
