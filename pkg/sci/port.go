package sci

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

const (
	// DefaultLinkBaud is the rate of the link between transmitter and receiver.
	DefaultLinkBaud = 200000
	// DefaultConsoleBaud is the rate of the operator console.
	DefaultConsoleBaud = 115200

	// readPoll bounds how long a blocked Receive goes without noticing Close.
	readPoll = 100 * time.Millisecond
)

// PortConfig selects a UART. Frames are always 8 data bits, no parity,
// one stop bit.
type PortConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

// Open opens the UART described by pc and wraps it in a Link.
func Open(pc PortConfig) (*Link, error) {
	port, err := OpenPort(pc)
	if err != nil {
		return nil, err
	}
	return NewLink(port), nil
}

// OpenPort opens the UART described by pc, for callers that want the raw
// byte stream.
func OpenPort(pc PortConfig) (serial.Port, error) {
	if pc.Port == "" {
		return nil, fmt.Errorf("sci: no port configured")
	}
	baud := pc.Baud
	if baud == 0 {
		baud = DefaultLinkBaud
	}

	port, err := serial.Open(pc.Port, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("sci: open %s: %w", pc.Port, err)
	}

	if err := port.SetReadTimeout(readPoll); err != nil {
		port.Close()
		return nil, fmt.Errorf("sci: %s: %w", pc.Port, err)
	}
	// Start from an empty receive FIFO.
	if err := port.ResetInputBuffer(); err != nil {
		port.Close()
		return nil, fmt.Errorf("sci: %s: %w", pc.Port, err)
	}

	return port, nil
}
