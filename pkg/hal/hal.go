// Package hal is a small event layer standing in for a peripheral interrupt
// expander: sources raise events on numbered lines, and a Controller runs
// the handler registered for each line, one event at a time.
package hal

import (
	"fmt"
	"strings"
	"time"
)

// Line identifies an event source.
type Line int

const (
	LineNone Line = iota
	// LineXINT1 is external interrupt 1 (an input edge).
	LineXINT1
	// LineXINT2 is external interrupt 2 (an input edge).
	LineXINT2
	// LineTINT0 is CPU timer 0 expiring.
	LineTINT0
	// LineSCIRXB is the link receive FIFO reaching its trigger level.
	LineSCIRXB

	numLines
)

var lineNames = [numLines]string{
	LineNone:   "none",
	LineXINT1:  "xint1",
	LineXINT2:  "xint2",
	LineTINT0:  "tint0",
	LineSCIRXB: "scirxb",
}

func (l Line) String() string {
	if l < 0 || l >= numLines {
		return fmt.Sprintf("line(%d)", int(l))
	}
	return lineNames[l]
}

// ParseLine is the inverse of Line.String.
func ParseLine(s string) (Line, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for l := LineXINT1; l < numLines; l++ {
		if lineNames[l] == s {
			return l, nil
		}
	}
	return LineNone, fmt.Errorf("hal: unknown line %q", s)
}

func (l *Line) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := ParseLine(s)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// Event is one occurrence on a line. Data carries the bytes drained from a
// receive FIFO and is nil for edges and timers.
type Event struct {
	Line      Line
	Data      []byte
	Timestamp time.Time
}

// Handler services an event. Handlers run on the controller goroutine and
// must not block.
type Handler func(ev Event)

// ADC converts one analog sample on demand.
type ADC interface {
	Convert() (uint16, error)
}

// Toggler is a monitor output flipped from handlers so event timing can be
// watched on a scope.
type Toggler interface {
	Toggle() error
}

type nopToggler struct{}

func (nopToggler) Toggle() error { return nil }

// NopToggler is used when no monitor pin is wired.
var NopToggler Toggler = nopToggler{}
