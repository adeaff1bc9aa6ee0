package output

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/norasector/plcvlc/pkg/hal"
	"github.com/norasector/plcvlc/pkg/manchester"
	"github.com/norasector/plcvlc/pkg/plcvlc"
	"github.com/norasector/plcvlc/pkg/plcvlc/config"
)

const (
	receiveChannels = 8

	fieldProgram     protowire.Number = 1
	fieldSymbol      protowire.Number = 2
	fieldPayload     protowire.Number = 3
	fieldValid       protowire.Number = 4
	fieldTimestampUs protowire.Number = 5
	fieldLine        protowire.Number = 6
)

var ErrShortRecord = errors.New("output: short record")

// UDPOutput sends every record, length prefixed, to each destination.
type UDPOutput struct {
	dests    []config.OutputDestination
	recvChan chan plcvlc.Record
	metrics  api.WriteAPI
}

func NewUDPOutput(dests []config.OutputDestination, metrics api.WriteAPI) *UDPOutput {
	return &UDPOutput{
		dests:    dests,
		recvChan: make(chan plcvlc.Record, receiveChannels),
		metrics:  metrics,
	}
}

func (u *UDPOutput) Receive() chan<- plcvlc.Record {
	return u.recvChan
}

// MarshalRecord encodes rec in protobuf wire format.
func MarshalRecord(rec plcvlc.Record) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldProgram, protowire.BytesType)
	b = protowire.AppendString(b, rec.Program)
	b = protowire.AppendTag(b, fieldSymbol, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(rec.Symbol))
	b = protowire.AppendTag(b, fieldPayload, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(rec.Payload))
	b = protowire.AppendTag(b, fieldValid, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeBool(rec.Valid))
	b = protowire.AppendTag(b, fieldTimestampUs, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(rec.Timestamp.UnixMicro()))
	b = protowire.AppendTag(b, fieldLine, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(rec.Line))
	return b
}

// UnmarshalRecord decodes a record produced by MarshalRecord. Unknown
// fields are skipped.
func UnmarshalRecord(b []byte) (plcvlc.Record, error) {
	var rec plcvlc.Record
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return rec, protowire.ParseError(n)
		}
		b = b[n:]

		if typ == protowire.BytesType && num == fieldProgram {
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return rec, protowire.ParseError(n)
			}
			rec.Program = v
			b = b[n:]
			continue
		}
		if typ != protowire.VarintType {
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return rec, protowire.ParseError(n)
			}
			b = b[n:]
			continue
		}

		v, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return rec, protowire.ParseError(n)
		}
		b = b[n:]
		switch num {
		case fieldSymbol:
			rec.Symbol = manchester.Symbol(v)
		case fieldPayload:
			rec.Payload = byte(v)
		case fieldValid:
			rec.Valid = protowire.DecodeBool(v)
		case fieldTimestampUs:
			rec.Timestamp = time.UnixMicro(int64(v))
		case fieldLine:
			rec.Line = hal.Line(v)
		}
	}
	return rec, nil
}

// EncodeDatagram prefixes the marshalled record with its little-endian
// uint16 length.
func EncodeDatagram(rec plcvlc.Record) ([]byte, error) {
	encoded := MarshalRecord(rec)
	var msgBuf bytes.Buffer
	if err := binary.Write(&msgBuf, binary.LittleEndian, uint16(len(encoded))); err != nil {
		return nil, err
	}
	msgBuf.Write(encoded)
	return msgBuf.Bytes(), nil
}

// DecodeRecord parses one datagram produced by EncodeDatagram.
func DecodeRecord(datagram []byte) (plcvlc.Record, error) {
	if len(datagram) < 2 {
		return plcvlc.Record{}, ErrShortRecord
	}
	size := int(binary.LittleEndian.Uint16(datagram))
	if len(datagram)-2 < size {
		return plcvlc.Record{}, fmt.Errorf("%w: want %d bytes, have %d", ErrShortRecord, size, len(datagram)-2)
	}
	return UnmarshalRecord(datagram[2 : 2+size])
}

func (u *UDPOutput) Start(ctx context.Context) error {
	eg, ctx := errgroup.WithContext(ctx)

	destAddrs := make([]*net.UDPAddr, 0, len(u.dests))
	for _, dest := range u.dests {

		ips, err := net.LookupIP(dest.Host)
		if err != nil {
			return err
		}
		if len(ips) == 0 {
			return fmt.Errorf("no IPs returned for %s", dest.Host)
		}

		destAddr := &net.UDPAddr{IP: ips[0], Port: dest.Port}
		destAddrs = append(destAddrs, destAddr)
		log.Info().IPAddr("dest_ip", destAddr.IP).Int("port", dest.Port).Msg("record output starting")
	}

	conn, err := net.ListenUDP("udp", nil)
	if err != nil {
		return err
	}

	eg.Go(func() error {
		<-ctx.Done()
		conn.Close()
		return ctx.Err()
	})

	eg.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case rec := <-u.recvChan:
				datagram, err := EncodeDatagram(rec)
				if err != nil {
					log.Warn().Err(err).Msg("error encoding record")
					continue
				}

				sent, dropped := 0, 0
				var bytesWritten int
				for _, destAddr := range destAddrs {
					n, err := conn.WriteToUDP(datagram, destAddr)
					if err != nil {
						log.Error().Err(err).Msg("error writing")
						dropped++
						continue
					}
					bytesWritten += n
					sent++
				}

				go u.metrics.WritePoint(influxdb2.NewPoint("output.sent_record",
					map[string]string{
						"program": rec.Program,
					},
					map[string]interface{}{
						"bytes_written": bytesWritten,
						"sent":          sent,
						"dropped":       dropped,
					}, time.Now()))
			}
		}
	})

	return eg.Wait()
}
