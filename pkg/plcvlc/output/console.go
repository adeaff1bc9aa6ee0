package output

import (
	"context"
	"io"

	"github.com/norasector/plcvlc/pkg/plcvlc"
)

const recordBufferLength = 32

// ConsoleOutput writes the payload character of every record.
type ConsoleOutput struct {
	dest      io.Writer
	recvChan  chan plcvlc.Record
	validOnly bool
}

// NewConsoleOutput writes to dest. With validOnly, records whose symbol
// breaks the clock pattern are skipped.
func NewConsoleOutput(dest io.Writer, validOnly bool) *ConsoleOutput {
	return &ConsoleOutput{
		dest:      dest,
		recvChan:  make(chan plcvlc.Record, recordBufferLength),
		validOnly: validOnly,
	}
}

func (c *ConsoleOutput) Writer() io.Writer {
	return c.dest
}

func (c *ConsoleOutput) Receive() chan<- plcvlc.Record {
	return c.recvChan
}

func (c *ConsoleOutput) Start(ctx context.Context) error {
	buf := make([]byte, 1)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case rec := <-c.recvChan:
			if c.validOnly && !rec.Valid {
				continue
			}
			buf[0] = rec.Payload
			if _, err := c.dest.Write(buf); err != nil {
				return err
			}
		}
	}
}
