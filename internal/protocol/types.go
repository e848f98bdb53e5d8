package protocol

import "github.com/danmuck/posewire/internal/protocol/schema"

// Value is one encodable/decodable value. The set of implementations is closed:
// Float32, U16, RecordValue and Dict.
type Value interface {
	Kind() schema.Kind
	isValue()
}

// Float32 is a 32-bit floating-point scalar.
type Float32 float32

// U16 is a 16-bit unsigned integer scalar.
type U16 uint16

// Record is a 3D position plus orientation.
type Record struct {
	X   float32 `json:"x"`
	Y   float32 `json:"y"`
	Z   float32 `json:"z"`
	RX  float32 `json:"rx"`
	RY  float32 `json:"ry"`
	RZ  float32 `json:"rz"`
	Rot uint16  `json:"rot"`
}

// RecordValue is a positional record as a Value. Diagnostics lists the fields
// projection had to default when the record was decoded; it is empty for
// records built in memory.
type RecordValue struct {
	Record      Record
	Diagnostics Diagnostics
}

// Dict is the decoder's generic mapping from key to optional value.
type Dict map[uint16]Option

func (Float32) Kind() schema.Kind     { return schema.KindFloat32 }
func (U16) Kind() schema.Kind         { return schema.KindU16 }
func (RecordValue) Kind() schema.Kind { return schema.KindRecord }
func (Dict) Kind() schema.Kind        { return schema.KindDict }

func (Float32) isValue()     {}
func (U16) isValue()         {}
func (RecordValue) isValue() {}
func (Dict) isValue()        {}

// Option is a dict entry that may hold no value.
type Option struct {
	value Value
	ok    bool
}

// Some wraps v. Some(nil) is equivalent to None().
func Some(v Value) Option {
	return Option{value: v, ok: v != nil}
}

// None is a present entry without a value.
func None() Option {
	return Option{}
}

// Get returns the wrapped value.
func (o Option) Get() (Value, bool) {
	return o.value, o.ok
}

func (o Option) IsSome() bool {
	return o.ok
}

// Lookup distinguishes an absent key (present=false) from a present key
// holding no value (present=true, ok=false).
func (d Dict) Lookup(key uint16) (v Value, ok bool, present bool) {
	opt, present := d[key]
	if !present {
		return nil, false, false
	}
	v, ok = opt.Get()
	return v, ok, true
}

// Record returns the positional record stored at key, if any.
func (d Dict) Record(key uint16) (RecordValue, bool) {
	v, ok, _ := d.Lookup(key)
	if !ok {
		return RecordValue{}, false
	}
	rv, ok := v.(RecordValue)
	return rv, ok
}
