package protocol

import (
	"fmt"
	"slices"

	"github.com/danmuck/posewire/internal/protocol/schema"
	"github.com/danmuck/posewire/internal/protocol/tlv"
	"github.com/rs/zerolog/log"
)

// recordPayloadLen is six float frames plus one u16 frame.
const recordPayloadLen = 6*(tlv.HeaderLen+float32Width) + tlv.HeaderLen + u16Width

// RecordFrameLen is the encoded size of one positional record frame.
const RecordFrameLen = tlv.HeaderLen + recordPayloadLen

// Encode writes r as a single positional record frame under keyID. The payload
// holds the seven scalar fields as frames keyed 1..7, in key order.
func Encode(r Record, keyID uint16) []byte {
	out := appendRecordFrame(make([]byte, 0, RecordFrameLen), r, keyID)
	log.Debug().Uint16("key_id", keyID).Int("bytes", len(out)).Msg("protocol.Encode")
	return out
}

// EncodeValue writes v as one frame under keyID.
func EncodeValue(v Value, keyID uint16) ([]byte, error) {
	return AppendValue(nil, v, keyID)
}

// AppendValue appends v as one frame under keyID. Dict values have no wire tag
// and are rejected with ErrUnencodable; use EncodeDict for a whole level.
func AppendValue(dst []byte, v Value, keyID uint16) ([]byte, error) {
	if v == nil {
		return dst, fmt.Errorf("%w: nil value at key %d", ErrUnencodable, keyID)
	}
	tag, ok := schema.TagOf(v.Kind())
	if !ok {
		return dst, fmt.Errorf("%w: %s at key %d", ErrUnencodable, v.Kind(), keyID)
	}
	switch v := v.(type) {
	case Float32:
		return appendFloat32Frame(dst, float32(v), keyID), nil
	case U16:
		return appendU16Frame(dst, uint16(v), keyID), nil
	case RecordValue:
		return appendRecordFrame(dst, v.Record, keyID), nil
	default:
		return dst, fmt.Errorf("%w: tag %d at key %d", ErrUnencodable, tag, keyID)
	}
}

// EncodeDict writes every entry of d as a frame, in ascending key order. The
// output decodes back to d, except that records pick up empty diagnostics.
func EncodeDict(d Dict) ([]byte, error) {
	keys := make([]uint16, 0, len(d))
	for key := range d {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	var out []byte
	for _, key := range keys {
		v, ok := d[key].Get()
		if !ok {
			return nil, fmt.Errorf("%w: key %d holds no value", ErrUnencodable, key)
		}
		var err error
		out, err = AppendValue(out, v, key)
		if err != nil {
			return nil, err
		}
	}
	if out == nil {
		out = []byte{}
	}
	return out, nil
}

func appendFloat32Frame(dst []byte, v float32, keyID uint16) []byte {
	dst = tlv.AppendHeader(dst, tlv.Header{
		KeyID:  keyID,
		Tag:    uint16(mustTag(schema.KindFloat32)),
		Length: float32Width,
	})
	return appendFloat32Payload(dst, v)
}

func appendU16Frame(dst []byte, v uint16, keyID uint16) []byte {
	dst = tlv.AppendHeader(dst, tlv.Header{
		KeyID:  keyID,
		Tag:    uint16(mustTag(schema.KindU16)),
		Length: u16Width,
	})
	return appendU16Payload(dst, v)
}

func appendRecordFrame(dst []byte, r Record, keyID uint16) []byte {
	dst = tlv.AppendHeader(dst, tlv.Header{
		KeyID:  keyID,
		Tag:    uint16(mustTag(schema.KindRecord)),
		Length: recordPayloadLen,
	})
	dst = appendFloat32Frame(dst, r.X, schema.FieldX)
	dst = appendFloat32Frame(dst, r.Y, schema.FieldY)
	dst = appendFloat32Frame(dst, r.Z, schema.FieldZ)
	dst = appendFloat32Frame(dst, r.RX, schema.FieldRX)
	dst = appendFloat32Frame(dst, r.RY, schema.FieldRY)
	dst = appendFloat32Frame(dst, r.RZ, schema.FieldRZ)
	return appendU16Frame(dst, r.Rot, schema.FieldRot)
}

// mustTag resolves a wire kind. The registry is validated at init, so a miss
// here is a programming error.
func mustTag(kind schema.Kind) schema.Tag {
	tag, ok := schema.TagOf(kind)
	if !ok {
		panic(fmt.Sprintf("protocol: kind %s has no registered tag", kind))
	}
	return tag
}
