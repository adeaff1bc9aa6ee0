package plcvlc

import (
	"context"
)

// Output handles decoded records.
type Output interface {
	// Start receives a context and should run in a loop, terminating upon ctx closing or on any errors.
	Start(ctx context.Context) error
	// Receive returns a channel that receives decoded records.
	Receive() chan<- Record
}
