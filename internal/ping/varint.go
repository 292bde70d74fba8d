package ping

import (
	"errors"
	"io"
)

const (
	segmentBits = 0x7F
	continueBit = 0x80
)

// ErrVarIntTooLarge is returned for a VarInt longer than five bytes.
var ErrVarIntTooLarge = errors.New("VarInt exceeds 32 bits")

// AppendVarInt appends the protocol's VarInt encoding of v to b.
func AppendVarInt(b []byte, v int32) []byte {
	u := uint32(v)
	for u > segmentBits {
		b = append(b, byte(u&segmentBits)|continueBit)
		u >>= 7
	}
	return append(b, byte(u))
}

// ReadVarInt decodes one VarInt from r.
func ReadVarInt(r io.ByteReader) (int32, error) {
	var value uint32
	for shift := 0; ; shift += 7 {
		if shift >= 35 {
			return 0, ErrVarIntTooLarge
		}
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		value |= uint32(b&segmentBits) << shift
		if b&continueBit == 0 {
			return int32(value), nil
		}
	}
}
