// Package protocol owns the pose TLV codec.
//
// Ownership boundary:
// - value model (Float32, U16, RecordValue, Dict, Option)
// - recursive encode/decode over tlv frames
// - projection of a decoded Dict into a Record
//
// Wire layout of every frame, little-endian:
//
//	key_id(2) | tag(2) | length(2) | payload(length)
//
// A positional record (tag 100) carries seven scalar frames keyed 1..7.
// Transport and storage of the resulting bytes belong to callers.
package protocol
