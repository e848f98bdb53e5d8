package protocol

import (
	"fmt"
	"strings"

	"github.com/danmuck/posewire/internal/protocol/schema"
	"github.com/danmuck/posewire/internal/protocol/tlv"
	"github.com/rs/zerolog/log"
)

// DefaultMaxDepth bounds record nesting. The schema itself only nests two
// levels deep.
const DefaultMaxDepth = 16

// MinMaxDepth is the smallest usable limit: a record frame at depth 1 holding
// its scalar fields at depth 2.
const MinMaxDepth = 2

// DuplicatePolicy decides what happens when a key repeats within one level.
type DuplicatePolicy uint8

const (
	// DuplicateLastWins keeps the later frame.
	DuplicateLastWins DuplicatePolicy = iota
	// DuplicateReject fails the decode with ErrDuplicateKey.
	DuplicateReject
)

func (p DuplicatePolicy) String() string {
	switch p {
	case DuplicateLastWins:
		return "last_wins"
	case DuplicateReject:
		return "reject"
	default:
		return fmt.Sprintf("policy(%d)", uint8(p))
	}
}

// ParseDuplicatePolicy accepts "last_wins" (or "") and "reject".
func ParseDuplicatePolicy(raw string) (DuplicatePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "last_wins", "last-wins", "overwrite":
		return DuplicateLastWins, nil
	case "reject", "error":
		return DuplicateReject, nil
	default:
		return DuplicateLastWins, fmt.Errorf("protocol: unknown duplicate key policy %q", raw)
	}
}

// DecodeOptions tunes a Decoder.
type DecodeOptions struct {
	MaxDepth   int
	Duplicates DuplicatePolicy
}

func DefaultDecodeOptions() DecodeOptions {
	return DecodeOptions{
		MaxDepth:   DefaultMaxDepth,
		Duplicates: DuplicateLastWins,
	}
}

// WithDefaults fills unset limits and raises MaxDepth to MinMaxDepth.
func (o DecodeOptions) WithDefaults() DecodeOptions {
	if o.MaxDepth <= 0 {
		o.MaxDepth = DefaultMaxDepth
	}
	if o.MaxDepth < MinMaxDepth {
		o.MaxDepth = MinMaxDepth
	}
	return o
}

// Decoder parses frame buffers. It holds no per-call state and is safe for
// concurrent use.
type Decoder struct {
	opts DecodeOptions
}

func NewDecoder(opts DecodeOptions) *Decoder {
	return &Decoder{opts: opts.WithDefaults()}
}

func (d *Decoder) Options() DecodeOptions {
	return d.opts
}

var defaultDecoder = NewDecoder(DefaultDecodeOptions())

// Decode parses b with the default options.
func Decode(b []byte) (Dict, error) {
	return defaultDecoder.Decode(b)
}

// DecodeRecord parses b with the default options and returns the record at
// keyID.
func DecodeRecord(b []byte, keyID uint16) (Record, Diagnostics, error) {
	return defaultDecoder.DecodeRecord(b, keyID)
}

// Decode parses every frame in b into a Dict. Any structural error discards
// the partial result and returns a *DecodeError.
func (d *Decoder) Decode(b []byte) (Dict, error) {
	out, err := d.decodeLevel(b, 0, 1)
	if err != nil {
		log.Warn().Err(err).Int("bytes", len(b)).Msg("protocol.Decode failed")
		return nil, err
	}
	log.Debug().Int("bytes", len(b)).Int("keys", len(out)).Msg("protocol.Decode ok")
	return out, nil
}

// DecodeRecord decodes b and returns the positional record stored at keyID
// with the diagnostics of its projection.
func (d *Decoder) DecodeRecord(b []byte, keyID uint16) (Record, Diagnostics, error) {
	dict, err := d.Decode(b)
	if err != nil {
		return Record{}, nil, err
	}
	rv, ok := dict.Record(keyID)
	if !ok {
		return Record{}, nil, fmt.Errorf("%w: key %d", ErrRecordNotFound, keyID)
	}
	return rv.Record, rv.Diagnostics, nil
}

// decodeLevel decodes one Dict level. base is the absolute offset of b within
// the outermost buffer.
func (d *Decoder) decodeLevel(b []byte, base, depth int) (Dict, error) {
	out := make(Dict)
	for offset := 0; offset < len(b); {
		f, next, err := tlv.ReadFrame(b, offset)
		if err != nil {
			de := &DecodeError{Offset: base + offset, Depth: depth, Err: err}
			if h, herr := tlv.DecodeHeader(b[offset:]); herr == nil {
				de.KeyID, de.Tag, de.HasFrame = h.KeyID, h.Tag, true
			}
			return nil, de
		}
		value, err := d.decodeFrame(f, base+offset, depth)
		if err != nil {
			return nil, err
		}
		if _, dup := out[f.KeyID]; dup {
			if d.opts.Duplicates == DuplicateReject {
				return nil, frameError(f, base+offset, depth, ErrDuplicateKey)
			}
			log.Debug().
				Uint16("key_id", f.KeyID).
				Int("depth", depth).
				Msg("protocol.Decode duplicate key, keeping later frame")
		}
		out[f.KeyID] = Some(value)
		offset = next
	}
	return out, nil
}

func (d *Decoder) decodeFrame(f tlv.Frame, offset, depth int) (Value, error) {
	kind, err := schema.KindOf(schema.Tag(f.Tag))
	if err != nil {
		return nil, frameError(f, offset, depth, err)
	}
	switch kind {
	case schema.KindFloat32:
		v, err := float32FromPayload(f.Payload)
		if err != nil {
			return nil, frameError(f, offset, depth, fmt.Errorf("%w: %d bytes for float32", err, len(f.Payload)))
		}
		return Float32(v), nil
	case schema.KindU16:
		v, err := u16FromPayload(f.Payload)
		if err != nil {
			return nil, frameError(f, offset, depth, fmt.Errorf("%w: %d bytes for u16", err, len(f.Payload)))
		}
		return U16(v), nil
	case schema.KindRecord:
		if depth >= d.opts.MaxDepth {
			return nil, frameError(f, offset, depth, fmt.Errorf("%w: max %d", ErrDepthExceeded, d.opts.MaxDepth))
		}
		nested, err := d.decodeLevel(f.Payload, offset+tlv.HeaderLen, depth+1)
		if err != nil {
			return nil, err
		}
		record, diags := Project(nested)
		return RecordValue{Record: record, Diagnostics: diags}, nil
	default:
		return nil, frameError(f, offset, depth, schema.UnknownTagError{Tag: schema.Tag(f.Tag)})
	}
}

func frameError(f tlv.Frame, offset, depth int, err error) *DecodeError {
	return &DecodeError{
		Offset:   offset,
		Depth:    depth,
		KeyID:    f.KeyID,
		Tag:      f.Tag,
		HasFrame: true,
		Err:      err,
	}
}
