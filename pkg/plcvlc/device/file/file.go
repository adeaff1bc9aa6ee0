package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/norasector/plcvlc/pkg/hal"
	"github.com/norasector/plcvlc/pkg/plcvlc/device"
)

var (
	// ErrPlaybackDone is returned by Start once every captured event has
	// been delivered.
	ErrPlaybackDone = errors.New("file: playback done")
	ErrNoSamples    = errors.New("file: capture has no samples")
)

// CaptureEvent is one recorded event. Data holds received bytes for
// scirxb events.
type CaptureEvent struct {
	Line hal.Line `yaml:"line"`
	Data []int    `yaml:"data,flow"`
}

// Capture is a recorded session: events in arrival order and converter
// samples in conversion order.
type Capture struct {
	Events  []CaptureEvent `yaml:"events"`
	Samples []uint16       `yaml:"samples,flow"`
}

func ParseCapture(contents []byte) (*Capture, error) {
	var c Capture
	if err := yaml.UnmarshalStrict(contents, &c); err != nil {
		return nil, fmt.Errorf("file: %w", err)
	}
	for i, ev := range c.Events {
		for _, b := range ev.Data {
			if b < 0 || b > 0xFF {
				return nil, fmt.Errorf("file: event %d: data value %d is not a byte", i, b)
			}
		}
	}
	return &c, nil
}

func LoadCapture(path string) (*Capture, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseCapture(contents)
}

var _ hal.ADC = (*FileDevice)(nil)

// FileDevice replays a capture, one event per tick. Its samples are served
// in order, wrapping at the end, through Convert.
type FileDevice struct {
	capture     *Capture
	timeBetween time.Duration
	drain       time.Duration

	mu        sync.Mutex
	samplePos int
}

func NewFileDevice(file string, timeBetween time.Duration) (*FileDevice, error) {
	c, err := LoadCapture(file)
	if err != nil {
		return nil, err
	}
	return NewCaptureDevice(c, timeBetween), nil
}

func NewCaptureDevice(c *Capture, timeBetween time.Duration) *FileDevice {
	if timeBetween <= 0 {
		timeBetween = 10 * time.Millisecond
	}
	return &FileDevice{
		capture:     c,
		timeBetween: timeBetween,
		drain:       50 * timeBetween,
	}
}

func (f *FileDevice) Start(ctx context.Context, events chan<- hal.Event) error {
	tick := time.NewTicker(f.timeBetween)
	defer tick.Stop()

	for _, ce := range f.capture.Events {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ts := <-tick.C:
			ev := hal.Event{Line: ce.Line, Timestamp: ts}
			if len(ce.Data) > 0 {
				ev.Data = make([]byte, len(ce.Data))
				for i, b := range ce.Data {
					ev.Data[i] = byte(b)
				}
			}
			if err := device.Deliver(ctx, events, ev); err != nil {
				return err
			}
		}
	}

	// Leave time for the handlers to drain the queue.
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(f.drain):
		return ErrPlaybackDone
	}
}

func (f *FileDevice) Stop() error {
	return nil
}

// Convert returns the next captured sample.
func (f *FileDevice) Convert() (uint16, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.capture.Samples) == 0 {
		return 0, ErrNoSamples
	}
	v := f.capture.Samples[f.samplePos]
	f.samplePos = (f.samplePos + 1) % len(f.capture.Samples)
	return v, nil
}
