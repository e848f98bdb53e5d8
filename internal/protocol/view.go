package protocol

import (
	"slices"

	"github.com/danmuck/posewire/internal/protocol/schema"
)

// Entry is a flattened Dict entry for display and JSON output. Kind is
// KindInvalid and Value nil for an entry holding no value.
type Entry struct {
	Key         uint16      `json:"key"`
	Kind        schema.Kind `json:"kind"`
	Value       any         `json:"value"`
	Diagnostics Diagnostics `json:"diagnostics,omitempty"`
}

// Entries lists d in ascending key order.
func (d Dict) Entries() []Entry {
	keys := make([]uint16, 0, len(d))
	for key := range d {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	out := make([]Entry, 0, len(keys))
	for _, key := range keys {
		e := Entry{Key: key}
		if v, ok := d[key].Get(); ok {
			e.Kind = v.Kind()
			switch v := v.(type) {
			case Float32:
				e.Value = float32(v)
			case U16:
				e.Value = uint16(v)
			case RecordValue:
				e.Value = v.Record
				e.Diagnostics = v.Diagnostics
			case Dict:
				e.Value = v.Entries()
			}
		}
		out = append(out, e)
	}
	return out
}
