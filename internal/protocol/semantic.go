package protocol

import (
	"fmt"

	"github.com/danmuck/posewire/internal/protocol/schema"
	"github.com/rs/zerolog/log"
)

// DefaultReason says why projection substituted a zero value.
type DefaultReason uint8

const (
	ReasonMissing DefaultReason = iota + 1
	ReasonEmpty
	ReasonKindMismatch
)

func (r DefaultReason) String() string {
	switch r {
	case ReasonMissing:
		return "missing"
	case ReasonEmpty:
		return "empty"
	case ReasonKindMismatch:
		return "kind_mismatch"
	default:
		return "unknown"
	}
}

func (r DefaultReason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// Diagnostic records one field that projection defaulted.
type Diagnostic struct {
	Key    uint16        `json:"key"`
	Field  string        `json:"field"`
	Reason DefaultReason `json:"reason"`
	Want   schema.Kind   `json:"want"`
	// Got is set for ReasonKindMismatch.
	Got schema.Kind `json:"got,omitempty"`
}

func (d Diagnostic) String() string {
	if d.Reason == ReasonKindMismatch {
		return fmt.Sprintf("field %s (key %d) defaulted: got %s want %s", d.Field, d.Key, d.Got, d.Want)
	}
	return fmt.Sprintf("field %s (key %d) defaulted: %s", d.Field, d.Key, d.Reason)
}

// Diagnostics lists defaulted fields in record key order.
type Diagnostics []Diagnostic

func (ds Diagnostics) Keys() []uint16 {
	keys := make([]uint16, 0, len(ds))
	for _, d := range ds {
		keys = append(keys, d.Key)
	}
	return keys
}

func (ds Diagnostics) Has(key uint16) bool {
	for _, d := range ds {
		if d.Key == key {
			return true
		}
	}
	return false
}

// Project converts a decoded Dict into a Record. It never fails: a field that
// is absent, empty, or of the wrong kind becomes its zero value and is listed
// in the returned diagnostics. Keys outside the record are ignored.
func Project(d Dict) (Record, Diagnostics) {
	var (
		r     Record
		diags Diagnostics
	)
	floats := map[uint16]*float32{
		schema.FieldX:  &r.X,
		schema.FieldY:  &r.Y,
		schema.FieldZ:  &r.Z,
		schema.FieldRX: &r.RX,
		schema.FieldRY: &r.RY,
		schema.FieldRZ: &r.RZ,
	}

	for _, req := range schema.RecordFields {
		v, diag, ok := lookupField(d, req)
		if !ok {
			diags = append(diags, diag)
			log.Warn().
				Uint16("key_id", diag.Key).
				Str("field", diag.Field).
				Stringer("reason", diag.Reason).
				Msg("protocol.Project field defaulted")
			continue
		}
		switch v := v.(type) {
		case Float32:
			*floats[req.ID] = float32(v)
		case U16:
			r.Rot = uint16(v)
		}
	}
	return r, diags
}

func lookupField(d Dict, req schema.Requirement) (Value, Diagnostic, bool) {
	diag := Diagnostic{Key: req.ID, Field: req.Name, Want: req.Kind}
	v, ok, present := d.Lookup(req.ID)
	switch {
	case !present:
		diag.Reason = ReasonMissing
		return nil, diag, false
	case !ok:
		diag.Reason = ReasonEmpty
		return nil, diag, false
	case v.Kind() != req.Kind:
		diag.Reason = ReasonKindMismatch
		diag.Got = v.Kind()
		return nil, diag, false
	}
	return v, diag, true
}
