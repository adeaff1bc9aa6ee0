package plcvlc

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/norasector/plcvlc/pkg/hal"
	"github.com/norasector/plcvlc/pkg/util"
)

type stuckPin struct {
	toggles int
	err     error
}

func (p *stuckPin) Toggle() error {
	p.toggles++
	return p.err
}

func TestEnvToggle(t *testing.T) {
	ok := &stuckPin{}
	broken := &stuckPin{err: errors.New("pin write failed")}
	env := NewEnv(hal.NewController(4, zerolog.Nop()), 4, &util.MockWriteAPI{}, zerolog.Nop())
	env.Monitors = []hal.Toggler{ok, broken}

	tests := []struct {
		name       string
		monitor    int
		wantErrors uint64
	}{
		{"working pin", 0, 0},
		{"failing pin", 1, 1},
		{"unwired pin", 5, 1},
		{"failing pin again", 1, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env.Toggle(tt.monitor)
			if env.MonitorErrors() != tt.wantErrors {
				t.Errorf("MonitorErrors() = %d, want %d", env.MonitorErrors(), tt.wantErrors)
			}
		})
	}
	if ok.toggles != 1 || broken.toggles != 2 {
		t.Errorf("toggles = %d, %d, want 1, 2", ok.toggles, broken.toggles)
	}
}
