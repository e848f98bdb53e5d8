package protocol

import (
	"errors"
	"fmt"

	"github.com/danmuck/posewire/internal/protocol/schema"
	"github.com/danmuck/posewire/internal/protocol/tlv"
)

var (
	ErrUnknownTag      = schema.ErrUnknownTag
	ErrTruncatedFrame  = tlv.ErrTruncatedFrame
	ErrPayloadTooLarge = tlv.ErrPayloadTooLarge
	ErrInvalidLength   = errors.New("protocol: invalid scalar length")
	ErrDepthExceeded   = errors.New("protocol: nesting depth exceeded")
	ErrDuplicateKey    = errors.New("protocol: duplicate key")
	ErrUnencodable     = errors.New("protocol: value has no wire encoding")
	ErrRecordNotFound  = errors.New("protocol: record not found")
)

// DecodeError locates a structural decode failure. Offset is absolute within
// the buffer passed to Decode; Depth is 1 for top-level frames.
type DecodeError struct {
	Offset int
	Depth  int
	KeyID  uint16
	Tag    uint16
	// HasFrame is false when the failure happened before a header was read.
	HasFrame bool
	Err      error
}

func (e *DecodeError) Error() string {
	if !e.HasFrame {
		return fmt.Sprintf("protocol: decode offset=%d depth=%d: %v", e.Offset, e.Depth, e.Err)
	}
	return fmt.Sprintf(
		"protocol: decode offset=%d depth=%d key=%d tag=%d: %v",
		e.Offset,
		e.Depth,
		e.KeyID,
		e.Tag,
		e.Err,
	)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
