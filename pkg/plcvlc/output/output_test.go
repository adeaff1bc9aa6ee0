package output

import (
	"bytes"
	"context"
	"errors"
	"net"
	"reflect"
	"sync"
	"testing"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/norasector/plcvlc/pkg/hal"
	"github.com/norasector/plcvlc/pkg/manchester"
	"github.com/norasector/plcvlc/pkg/plcvlc"
	"github.com/norasector/plcvlc/pkg/plcvlc/config"
	"github.com/norasector/plcvlc/pkg/util"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func testRecord(p byte) plcvlc.Record {
	ts := time.UnixMicro(1_700_000_000_123_456)
	return plcvlc.NewRecord("echoback", hal.LineSCIRXB, manchester.Encode(uint32(p)), ts)
}

func TestDatagramRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		rec  plcvlc.Record
	}{
		{"valid", testRecord('A')},
		{"invalid", plcvlc.NewRecord("edge_bits", hal.LineXINT1, 0xFFFF, time.UnixMicro(42))},
		{"no line", plcvlc.NewRecord("transmit", hal.LineNone, manchester.Encode(0), time.UnixMicro(1))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			datagram, err := EncodeDatagram(tt.rec)
			if err != nil {
				t.Fatal(err)
			}
			got, err := DecodeRecord(datagram)
			if err != nil {
				t.Fatal(err)
			}
			if !got.Timestamp.Equal(tt.rec.Timestamp) {
				t.Errorf("timestamp = %v, want %v", got.Timestamp, tt.rec.Timestamp)
			}
			got.Timestamp, tt.rec.Timestamp = time.Time{}, time.Time{}
			if !reflect.DeepEqual(got, tt.rec) {
				t.Errorf("DecodeRecord() = %+v, want %+v", got, tt.rec)
			}
		})
	}
}

func TestDecodeRecordErrors(t *testing.T) {
	if _, err := DecodeRecord([]byte{1}); !errors.Is(err, ErrShortRecord) {
		t.Errorf("one byte: %v", err)
	}
	if _, err := DecodeRecord([]byte{10, 0, 1, 2}); !errors.Is(err, ErrShortRecord) {
		t.Errorf("truncated: %v", err)
	}
	if _, err := UnmarshalRecord([]byte{0x10}); err == nil {
		t.Error("truncated varint decoded")
	}
}

func TestUnknownFieldsSkipped(t *testing.T) {
	b := MarshalRecord(testRecord('z'))
	b = protowire.AppendTag(b, 99, protowire.BytesType)
	b = protowire.AppendBytes(b, []byte("extra"))
	b = protowire.AppendTag(b, 100, protowire.Fixed32Type)
	b = protowire.AppendFixed32(b, 7)

	rec, err := UnmarshalRecord(b)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Payload != 'z' || rec.Program != "echoback" {
		t.Errorf("UnmarshalRecord() = %+v", rec)
	}
}

func TestConsoleOutput(t *testing.T) {
	tests := []struct {
		name      string
		validOnly bool
		want      string
	}{
		{"all", false, "ok" + string(rune(manchester.Decode(0xFFFF)))},
		{"valid only", true, "ok"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var dest syncBuffer
			out := NewConsoleOutput(&dest, tt.validOnly)

			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan error, 1)
			go func() { done <- out.Start(ctx) }()

			out.Receive() <- testRecord('o')
			out.Receive() <- testRecord('k')
			out.Receive() <- plcvlc.NewRecord("edge_bits", hal.LineXINT1, 0xFFFF, time.Now())

			deadline := time.Now().Add(time.Second)
			for len(dest.String()) < len(tt.want) && time.Now().Before(deadline) {
				time.Sleep(time.Millisecond)
			}
			// Give a skipped record time to show up if it wrongly was not skipped.
			time.Sleep(10 * time.Millisecond)
			cancel()
			<-done

			if dest.String() != tt.want {
				t.Errorf("console = %q, want %q", dest.String(), tt.want)
			}
		})
	}
}

func TestUDPOutput(t *testing.T) {
	listener, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}
	defer listener.Close()

	metrics := &util.RecordingWriteAPI{}
	out := NewUDPOutput([]config.OutputDestination{
		{Host: "127.0.0.1", Port: listener.LocalAddr().(*net.UDPAddr).Port},
	}, metrics)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go out.Start(ctx)

	want := testRecord('Q')
	out.Receive() <- want

	listener.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1500)
	n, _, err := listener.ReadFromUDP(buf)
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeRecord(buf[:n])
	if err != nil {
		t.Fatal(err)
	}
	if got.Payload != 'Q' || got.Symbol != want.Symbol || !got.Timestamp.Equal(want.Timestamp) {
		t.Errorf("received %+v, want %+v", got, want)
	}

	deadline := time.Now().Add(time.Second)
	for metrics.Count("output.sent_record") == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if metrics.Count("output.sent_record") != 1 {
		t.Errorf("sent_record points = %d, want 1", metrics.Count("output.sent_record"))
	}
}
