package plcvlc

import (
	"io"
	"time"

	"github.com/norasector/plcvlc/pkg/hal"
	"github.com/norasector/plcvlc/pkg/sci"
)

type Options struct {
	// QueueDepth is the number of pending events the controller holds.
	QueueDepth int
	// RecordDepth is the number of decoded records buffered before programs
	// start dropping them.
	RecordDepth    int
	StatusInterval time.Duration
	Outputs        []Output

	// Link is the SCI line the transmit program drives. Receive programs get
	// their bytes through device events instead.
	Link *sci.Link
	// Console receives banners and echoed payloads. Defaults to stdout.
	Console io.ReadWriter
	// ADC feeds the sampler.
	ADC hal.ADC
	// Monitors are output pins toggled from handlers.
	Monitors []hal.Toggler
}
