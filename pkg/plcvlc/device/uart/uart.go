// Package uart turns the receive side of an SCI link into receive FIFO
// events.
package uart

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/norasector/plcvlc/pkg/hal"
	"github.com/norasector/plcvlc/pkg/plcvlc/device"
	"github.com/norasector/plcvlc/pkg/sci"
)

// UARTDevice raises one SCIRXB event per two received bytes, the way a
// receive FIFO with a trigger level of two interrupts.
type UARTDevice struct {
	link   *sci.Link
	logger zerolog.Logger
}

func NewUARTDevice(link *sci.Link, logger zerolog.Logger) *UARTDevice {
	return &UARTDevice{
		link:   link,
		logger: logger,
	}
}

func (u *UARTDevice) Start(ctx context.Context, events chan<- hal.Event) error {
	go func() {
		<-ctx.Done()
		u.link.Close()
	}()

	for {
		pair, err := u.link.ReceivePair()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, sci.ErrLinkClosed) || errors.Is(err, io.EOF) {
				u.logger.Info().Err(err).Msg("link receive finished")
				return nil
			}
			return err
		}

		ev := hal.Event{
			Line:      hal.LineSCIRXB,
			Data:      []byte{pair[0], pair[1]},
			Timestamp: time.Now(),
		}
		if err := device.Deliver(ctx, events, ev); err != nil {
			return err
		}
	}
}

func (u *UARTDevice) Stop() error {
	return u.link.Close()
}
