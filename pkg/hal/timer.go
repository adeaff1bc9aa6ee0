package hal

import (
	"context"
	"sync/atomic"
	"time"
)

// Timer raises an event on its line every period while it is running.
// Start and Stop only flip the run flag, so handlers may call them.
type Timer struct {
	line   Line
	period time.Duration
	raise  func(Event) bool

	running atomic.Bool
	poke    chan struct{}
	missed  atomic.Uint64
}

// NewTimer creates a stopped timer that delivers through raise, normally
// Controller.Raise.
func NewTimer(line Line, period time.Duration, raise func(Event) bool) *Timer {
	return &Timer{
		line:   line,
		period: period,
		raise:  raise,
		poke:   make(chan struct{}, 1),
	}
}

func (t *Timer) Start() {
	t.running.Store(true)
	t.notify()
}

func (t *Timer) Stop() {
	t.running.Store(false)
	t.notify()
}

func (t *Timer) Running() bool {
	return t.running.Load()
}

// Missed returns how many expiries could not be queued.
func (t *Timer) Missed() uint64 {
	return t.missed.Load()
}

func (t *Timer) notify() {
	select {
	case t.poke <- struct{}{}:
	default:
	}
}

// Run drives the timer until ctx is done.
func (t *Timer) Run(ctx context.Context) error {
	var ticker *time.Ticker
	var tick <-chan time.Time
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
	}()

	sync := func() {
		switch run := t.running.Load(); {
		case run && ticker == nil:
			ticker = time.NewTicker(t.period)
			tick = ticker.C
		case !run && ticker != nil:
			ticker.Stop()
			ticker = nil
			tick = nil
		}
	}
	sync()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.poke:
			sync()
		case ts := <-tick:
			// A Stop may have landed between the tick and now.
			if !t.running.Load() {
				continue
			}
			if !t.raise(Event{Line: t.line, Timestamp: ts}) {
				t.missed.Add(1)
			}
		}
	}
}
