package protocol

import (
	"math"

	"github.com/danmuck/posewire/internal/protocol/tlv"
)

const (
	float32Width = 4
	u16Width     = 2
)

// appendFloat32Payload appends the IEEE-754 bits of v.
func appendFloat32Payload(dst []byte, v float32) []byte {
	return tlv.ByteOrder.AppendUint32(dst, math.Float32bits(v))
}

// appendU16Payload appends v.
func appendU16Payload(dst []byte, v uint16) []byte {
	return tlv.ByteOrder.AppendUint16(dst, v)
}

// float32FromPayload interprets a scalar payload as float32.
func float32FromPayload(b []byte) (float32, error) {
	if len(b) != float32Width {
		return 0, ErrInvalidLength
	}
	return math.Float32frombits(tlv.ByteOrder.Uint32(b)), nil
}

// u16FromPayload interprets a scalar payload as uint16.
func u16FromPayload(b []byte) (uint16, error) {
	if len(b) != u16Width {
		return 0, ErrInvalidLength
	}
	return tlv.ByteOrder.Uint16(b), nil
}
