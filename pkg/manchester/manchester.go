// Package manchester implements the two-bits-per-bit line code used on the
// PLC-VLC serial link.
//
// A payload carries 7 data bits. Encode expands each bit into a pair of
// equal bits and XORs the result with an alternating clock, so every pair on
// the wire is either 01 (data 1) or 10 (data 0). The unused top pair always
// carries the clock pattern 10.
//
// Decode samples only the low bit of every pair and does not validate the
// symbol; use Valid or DecodeStrict when malformed input must be detected.
package manchester

import (
	"errors"
	"fmt"
)

const (
	// ClockMask is XORed over the expanded bit pairs.
	ClockMask uint16 = 0xAAAA

	// PayloadBits is the number of data bits carried by one symbol.
	PayloadBits = 7

	// PayloadMask covers the bits of a decoded payload.
	PayloadMask = 1<<PayloadBits - 1

	inputMask  = 0x00FF
	symbolMask = 0xFFFF
)

var ErrInvalidSymbol = errors.New("manchester: invalid symbol")

// Symbol is one encoded payload as it travels on the link.
type Symbol uint16

// Encode expands bits 0..6 of input into a Symbol. Bits above 7 are masked
// off and bit 7 is ignored.
func Encode(input uint32) Symbol {
	aux := input & inputMask
	var result uint32

	for i := 0; i < PayloadBits; i++ {
		result <<= 2
		if aux&(1<<uint(i)) != 0 {
			result |= 0x03
		}
	}

	return Symbol(uint16(result) ^ ClockMask)
}

// Decode recovers the payload from the low 16 bits of input. The pair at
// bit 0 becomes the most significant payload bit, which makes Decode the
// inverse of Encode.
func Decode(input uint32) byte {
	aux := input & symbolMask
	var result byte

	for i := 0; i < PayloadBits; i++ {
		result <<= 1
		if (aux&(0x03<<uint(2*i)))&(0x01<<uint(2*i)) != 0 {
			result |= 1
		}
	}

	return result
}

// Decode is shorthand for Decode(uint32(s)).
func (s Symbol) Decode() byte {
	return Decode(uint32(s))
}

// Bytes splits the symbol into the two bytes sent on the link, low byte first.
func (s Symbol) Bytes() (lsb, msb byte) {
	return byte(s), byte(s >> 8)
}

func (s Symbol) String() string {
	return fmt.Sprintf("0x%04X", uint16(s))
}

// Join reassembles a symbol from the two bytes received on the link.
func Join(lsb, msb byte) Symbol {
	return Symbol(uint16(msb)<<8 | uint16(lsb))
}

// Valid reports whether every data pair is a proper transition (01 or 10)
// and the top pair carries the clock pattern.
func Valid(s Symbol) bool {
	for i := 0; i < PayloadBits; i++ {
		pair := (uint16(s) >> uint(2*i)) & 0x03
		if pair != 0x01 && pair != 0x02 {
			return false
		}
	}
	return uint16(s)>>(2*PayloadBits) == 0x02
}

// DecodeStrict is Decode with a Valid check in front of it.
func DecodeStrict(s Symbol) (byte, error) {
	if !Valid(s) {
		return 0, fmt.Errorf("%w: %s", ErrInvalidSymbol, s)
	}
	return s.Decode(), nil
}

// EncodeString encodes every byte of msg. Bit 7 of each byte is lost.
func EncodeString(msg string) []Symbol {
	ret := make([]Symbol, len(msg))
	for i := 0; i < len(msg); i++ {
		ret[i] = Encode(uint32(msg[i]))
	}
	return ret
}

// DecodeSymbols decodes a run of symbols without validation.
func DecodeSymbols(symbols []Symbol) []byte {
	ret := make([]byte, len(symbols))
	for i, s := range symbols {
		ret[i] = s.Decode()
	}
	return ret
}
