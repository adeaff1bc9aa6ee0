package plcvlc

import (
	"time"

	"github.com/norasector/plcvlc/pkg/hal"
	"github.com/norasector/plcvlc/pkg/manchester"
)

// Record is one decoded symbol produced by a program.
type Record struct {
	Program   string
	Line      hal.Line
	Symbol    manchester.Symbol
	Payload   byte
	Valid     bool
	Timestamp time.Time
}

// NewRecord decodes s and stamps it with ts.
func NewRecord(program string, line hal.Line, s manchester.Symbol, ts time.Time) Record {
	return Record{
		Program:   program,
		Line:      line,
		Symbol:    s,
		Payload:   s.Decode(),
		Valid:     manchester.Valid(s),
		Timestamp: ts,
	}
}
