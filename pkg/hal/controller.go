package hal

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const defaultQueueDepth = 64

var ErrNoHandler = errors.New("hal: no handler registered")

// Controller queues events from any goroutine and dispatches them serially.
type Controller struct {
	mu       sync.RWMutex
	handlers [numLines]Handler

	in chan Event

	counts   [numLines]atomic.Uint64
	spurious atomic.Uint64
	dropped  atomic.Uint64

	logger zerolog.Logger
}

// NewController creates a controller with room for depth pending events.
func NewController(depth int, logger zerolog.Logger) *Controller {
	if depth <= 0 {
		depth = defaultQueueDepth
	}
	return &Controller{
		in:     make(chan Event, depth),
		logger: logger,
	}
}

// Register installs h for line l, replacing any previous handler.
func (c *Controller) Register(l Line, h Handler) {
	if l <= LineNone || l >= numLines {
		c.logger.Warn().Int("line", int(l)).Msg("ignoring handler for unknown line")
		return
	}
	c.mu.Lock()
	c.handlers[l] = h
	c.mu.Unlock()
}

// Unregister removes the handler for line l.
func (c *Controller) Unregister(l Line) {
	if l <= LineNone || l >= numLines {
		return
	}
	c.mu.Lock()
	c.handlers[l] = nil
	c.mu.Unlock()
}

// Input is where event sources deliver events. Sending blocks while the
// queue is full; use Raise from latency sensitive sources.
func (c *Controller) Input() chan<- Event {
	return c.in
}

// Raise queues ev without blocking and reports whether it was accepted.
func (c *Controller) Raise(ev Event) bool {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	select {
	case c.in <- ev:
		return true
	default:
		c.dropped.Add(1)
		return false
	}
}

// Run dispatches queued events until ctx is done.
func (c *Controller) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-c.in:
			if err := c.Dispatch(ev); err != nil {
				c.logger.Debug().Str("line", ev.Line.String()).Err(err).Msg("spurious event")
			}
		}
	}
}

// Dispatch runs the handler for ev on the calling goroutine. It is exported
// for sources that already own a dispatch loop, and for tests.
func (c *Controller) Dispatch(ev Event) error {
	if ev.Line <= LineNone || ev.Line >= numLines {
		c.spurious.Add(1)
		return ErrNoHandler
	}
	c.mu.RLock()
	h := c.handlers[ev.Line]
	c.mu.RUnlock()

	if h == nil {
		c.spurious.Add(1)
		return ErrNoHandler
	}
	c.counts[ev.Line].Add(1)
	h(ev)
	return nil
}

// Count returns how many events on l reached a handler.
func (c *Controller) Count(l Line) uint64 {
	if l <= LineNone || l >= numLines {
		return 0
	}
	return c.counts[l].Load()
}

// Spurious returns how many events arrived on lines with no handler.
func (c *Controller) Spurious() uint64 {
	return c.spurious.Load()
}

// Dropped returns how many events Raise rejected because the queue was full.
func (c *Controller) Dropped() uint64 {
	return c.dropped.Load()
}
