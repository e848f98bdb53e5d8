package tlv

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// HeaderLen is key_id(2) | tag(2) | length(2).
const HeaderLen = 6

// MaxPayloadLen is the largest payload a 16-bit length can describe.
const MaxPayloadLen = 0xFFFF

// ByteOrder is used for every multi-byte field on the wire.
var ByteOrder = binary.LittleEndian

var (
	ErrTruncatedFrame    = errors.New("tlv: truncated frame")
	ErrShortFrameHeader  = fmt.Errorf("%w: short header", ErrTruncatedFrame)
	ErrShortFramePayload = fmt.Errorf("%w: short payload", ErrTruncatedFrame)
	ErrPayloadTooLarge   = errors.New("tlv: payload too large")
)

// Header is the fixed per-frame header.
type Header struct {
	KeyID  uint16
	Tag    uint16
	Length uint16
}

// Frame is one key/tag/length/payload unit. Payload aliases the buffer it was
// read from.
type Frame struct {
	Header
	Payload []byte
}

// AppendHeader appends the encoded header to dst.
func AppendHeader(dst []byte, h Header) []byte {
	dst = ByteOrder.AppendUint16(dst, h.KeyID)
	dst = ByteOrder.AppendUint16(dst, h.Tag)
	return ByteOrder.AppendUint16(dst, h.Length)
}

// AppendFrame appends one complete frame to dst.
func AppendFrame(dst []byte, keyID, tag uint16, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadLen {
		return dst, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}
	dst = AppendHeader(dst, Header{KeyID: keyID, Tag: tag, Length: uint16(len(payload))})
	return append(dst, payload...), nil
}

// EncodeFrame returns one complete frame in a fresh buffer.
func EncodeFrame(keyID, tag uint16, payload []byte) ([]byte, error) {
	return AppendFrame(make([]byte, 0, HeaderLen+len(payload)), keyID, tag, payload)
}

// DecodeHeader parses a header from the front of b.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderLen {
		return Header{}, ErrShortFrameHeader
	}
	return Header{
		KeyID:  ByteOrder.Uint16(b[0:2]),
		Tag:    ByteOrder.Uint16(b[2:4]),
		Length: ByteOrder.Uint16(b[4:6]),
	}, nil
}

// ReadFrame reads the frame starting at offset and returns it together with
// the offset of the next frame.
func ReadFrame(b []byte, offset int) (Frame, int, error) {
	if offset < 0 || offset > len(b) {
		return Frame{}, offset, fmt.Errorf("tlv: offset %d out of range", offset)
	}
	h, err := DecodeHeader(b[offset:])
	if err != nil {
		return Frame{}, offset, err
	}
	start := offset + HeaderLen
	end := start + int(h.Length)
	if end > len(b) {
		return Frame{}, offset, ErrShortFramePayload
	}
	return Frame{Header: h, Payload: b[start:end:end]}, end, nil
}

// SplitFrames reads every frame in b.
func SplitFrames(b []byte) ([]Frame, error) {
	frames := make([]Frame, 0)
	for offset := 0; offset < len(b); {
		f, next, err := ReadFrame(b, offset)
		if err != nil {
			return nil, err
		}
		frames = append(frames, f)
		offset = next
	}
	return frames, nil
}
