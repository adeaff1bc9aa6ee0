package device

import (
	"context"

	"github.com/norasector/plcvlc/pkg/hal"
)

// Device is an event source. Start delivers events until ctx is done or the
// source fails.
type Device interface {
	Start(ctx context.Context, events chan<- hal.Event) error
	Stop() error
}

// Deliver sends ev unless ctx finishes first.
func Deliver(ctx context.Context, events chan<- hal.Event, ev hal.Event) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case events <- ev:
		return nil
	}
}
