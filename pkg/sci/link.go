// Package sci provides the blocking byte primitives of a serial
// communications interface and the two-byte symbol framing built on them.
package sci

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/norasector/plcvlc/pkg/manchester"
)

var ErrLinkClosed = errors.New("sci: link closed")

// Link is a serial link. Transmit and Receive block until the byte has been
// handed to, or taken from, the underlying port.
type Link struct {
	rw io.ReadWriter

	txMu sync.Mutex
	rxMu sync.Mutex

	txBuf [2]byte
	rxBuf [2]byte

	closeOnce sync.Once
	closed    chan struct{}
}

func NewLink(rw io.ReadWriter) *Link {
	return &Link{
		rw:     rw,
		closed: make(chan struct{}),
	}
}

// Transmit writes one byte.
func (l *Link) Transmit(b byte) error {
	l.txMu.Lock()
	defer l.txMu.Unlock()
	l.txBuf[0] = b
	return l.write(l.txBuf[:1])
}

// Receive reads one byte.
func (l *Link) Receive() (byte, error) {
	l.rxMu.Lock()
	defer l.rxMu.Unlock()
	if err := l.read(l.rxBuf[:1]); err != nil {
		return 0, err
	}
	return l.rxBuf[0], nil
}

// ReceivePair reads the next two bytes, as delivered by a receive FIFO
// with a trigger level of two.
func (l *Link) ReceivePair() ([2]byte, error) {
	l.rxMu.Lock()
	defer l.rxMu.Unlock()
	if err := l.read(l.rxBuf[:]); err != nil {
		return [2]byte{}, err
	}
	return l.rxBuf, nil
}

// WriteMsg transmits msg byte by byte up to, not including, the first NUL.
func (l *Link) WriteMsg(msg string) error {
	for i := 0; i < len(msg); i++ {
		if msg[i] == 0 {
			return nil
		}
		if err := l.Transmit(msg[i]); err != nil {
			return err
		}
	}
	return nil
}

// SendSymbol transmits the low byte of s followed by the high byte.
func (l *Link) SendSymbol(s manchester.Symbol) error {
	l.txMu.Lock()
	defer l.txMu.Unlock()
	l.txBuf[0], l.txBuf[1] = s.Bytes()
	return l.write(l.txBuf[:])
}

// ReceiveSymbol reads two bytes and joins them, low byte first.
func (l *Link) ReceiveSymbol() (manchester.Symbol, error) {
	pair, err := l.ReceivePair()
	if err != nil {
		return 0, err
	}
	return manchester.Join(pair[0], pair[1]), nil
}

// SendPayload encodes p and transmits the resulting symbol.
func (l *Link) SendPayload(p byte) error {
	return l.SendSymbol(manchester.Encode(uint32(p)))
}

// ReceivePayload receives one symbol and decodes it without validation.
func (l *Link) ReceivePayload() (byte, error) {
	s, err := l.ReceiveSymbol()
	if err != nil {
		return 0, err
	}
	return s.Decode(), nil
}

// Close closes the underlying port if it is an io.Closer. Blocked
// Transmit/Receive calls then return ErrLinkClosed.
func (l *Link) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.closed)
		if c, ok := l.rw.(io.Closer); ok {
			err = c.Close()
		}
	})
	return err
}

func (l *Link) isClosed() bool {
	select {
	case <-l.closed:
		return true
	default:
		return false
	}
}

func (l *Link) write(b []byte) error {
	for len(b) > 0 {
		n, err := l.rw.Write(b)
		if err != nil {
			if l.isClosed() {
				return ErrLinkClosed
			}
			return fmt.Errorf("sci: transmit: %w", err)
		}
		b = b[n:]
	}
	return nil
}

func (l *Link) read(b []byte) error {
	for len(b) > 0 {
		n, err := l.rw.Read(b)
		b = b[n:]
		if err != nil {
			if l.isClosed() {
				return ErrLinkClosed
			}
			if errors.Is(err, io.EOF) {
				return io.EOF
			}
			return fmt.Errorf("sci: receive: %w", err)
		}
		if n == 0 && l.isClosed() {
			return ErrLinkClosed
		}
	}
	return nil
}
