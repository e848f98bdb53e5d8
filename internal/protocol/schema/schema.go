package schema

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Tag is the 16-bit kind code carried in every frame header.
type Tag uint16

// Tag IDs from the wire contract.
const (
	TagU16Scalar        Tag = 1
	TagFloatScalar      Tag = 8
	TagPositionalRecord Tag = 100
)

// Kind is the semantic kind of a value.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindU16
	KindFloat32
	KindRecord
	// KindDict is the decoder's output shape. It has no wire tag.
	KindDict
)

func (k Kind) String() string {
	switch k {
	case KindU16:
		return "u16"
	case KindFloat32:
		return "float32"
	case KindRecord:
		return "record"
	case KindDict:
		return "dict"
	default:
		return "invalid"
	}
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

var ErrUnknownTag = errors.New("schema: unknown tag")

// UnknownTagError reports a tag code outside the registry.
type UnknownTagError struct {
	Tag Tag
}

func (e UnknownTagError) Error() string {
	return fmt.Sprintf("schema: unknown tag %d", uint16(e.Tag))
}

func (e UnknownTagError) Is(target error) bool {
	return target == ErrUnknownTag
}

type entry struct {
	Tag  Tag
	Kind Kind
}

var registryTable = []entry{
	{TagU16Scalar, KindU16},
	{TagFloatScalar, KindFloat32},
	{TagPositionalRecord, KindRecord},
}

var (
	kindByTag map[Tag]Kind
	tagByKind map[Kind]Tag
)

func init() {
	kindByTag, tagByKind = mustBuildRegistry(registryTable)
}

func mustBuildRegistry(table []entry) (map[Tag]Kind, map[Kind]Tag) {
	byTag := make(map[Tag]Kind, len(table))
	byKind := make(map[Kind]Tag, len(table))
	for _, e := range table {
		if e.Kind == KindInvalid || e.Kind == KindDict {
			panic(fmt.Sprintf("schema: kind %s cannot carry a tag", e.Kind))
		}
		if _, dup := byTag[e.Tag]; dup {
			panic(fmt.Sprintf("schema: duplicate tag %d", uint16(e.Tag)))
		}
		if _, dup := byKind[e.Kind]; dup {
			panic(fmt.Sprintf("schema: duplicate kind %s", e.Kind))
		}
		byTag[e.Tag] = e.Kind
		byKind[e.Kind] = e.Tag
	}
	return byTag, byKind
}

// TagOf returns the wire tag for a kind. It reports false only for kinds that
// never appear on the wire (KindDict, KindInvalid).
func TagOf(kind Kind) (Tag, bool) {
	tag, ok := tagByKind[kind]
	return tag, ok
}

// KindOf resolves a wire tag through the registry.
func KindOf(tag Tag) (Kind, error) {
	kind, ok := kindByTag[tag]
	if !ok {
		log.Debug().Uint16("tag", uint16(tag)).Msg("schema.KindOf unknown tag")
		return KindInvalid, UnknownTagError{Tag: tag}
	}
	return kind, nil
}

// Field IDs of the positional record payload.
const (
	FieldX   uint16 = 1
	FieldY   uint16 = 2
	FieldZ   uint16 = 3
	FieldRX  uint16 = 4
	FieldRY  uint16 = 5
	FieldRZ  uint16 = 6
	FieldRot uint16 = 7
)

// Requirement binds a record field key to the kind its frame must carry.
type Requirement struct {
	ID   uint16
	Kind Kind
	Name string
}

// RecordFields lists the positional record fields in wire order.
var RecordFields = []Requirement{
	{FieldX, KindFloat32, "x"},
	{FieldY, KindFloat32, "y"},
	{FieldZ, KindFloat32, "z"},
	{FieldRX, KindFloat32, "rx"},
	{FieldRY, KindFloat32, "ry"},
	{FieldRZ, KindFloat32, "rz"},
	{FieldRot, KindU16, "rot"},
}

// FieldName returns the record field name for a key, or "" when the key is
// not part of the record.
func FieldName(id uint16) string {
	for _, req := range RecordFields {
		if req.ID == id {
			return req.Name
		}
	}
	return ""
}
