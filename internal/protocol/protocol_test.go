package protocol

import (
	"bytes"
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/danmuck/posewire/internal/protocol/schema"
	"github.com/danmuck/posewire/internal/protocol/tlv"
	"github.com/danmuck/posewire/internal/testutil/testlog"
)

var samplePose = Record{X: 1.0, Y: 3.0, Z: 5.0, RX: 0.0, RY: 0.0, RZ: 0.0, Rot: 5}

func TestRoundTripEncodeDecode(t *testing.T) {
	testlog.Start(t)
	buf := Encode(samplePose, 1)
	if len(buf) != RecordFrameLen {
		t.Fatalf("unexpected frame length: got %d want %d", len(buf), RecordFrameLen)
	}

	dict, err := Decode(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(dict) != 1 {
		t.Fatalf("expected 1 key, got %d", len(dict))
	}
	rv, ok := dict.Record(1)
	if !ok {
		t.Fatalf("expected record at key 1, got %#v", dict[1])
	}
	if rv.Record != samplePose {
		t.Fatalf("round-trip mismatch: got %+v want %+v", rv.Record, samplePose)
	}
	if len(rv.Diagnostics) != 0 {
		t.Fatalf("expected no diagnostics, got %v", rv.Diagnostics)
	}
}

func TestRoundTripPayloadProjectsToRecord(t *testing.T) {
	testlog.Start(t)
	r := Record{
		X:   -1.5,
		Y:   math.MaxFloat32,
		Z:   math.SmallestNonzeroFloat32,
		RX:  float32(math.Inf(1)),
		RY:  float32(math.Copysign(0, -1)),
		RZ:  0.1,
		Rot: math.MaxUint16,
	}
	buf := Encode(r, 42)
	f, _, err := tlv.ReadFrame(buf, 0)
	if err != nil {
		t.Fatalf("read outer frame: %v", err)
	}
	if f.KeyID != 42 || schema.Tag(f.Tag) != schema.TagPositionalRecord {
		t.Fatalf("unexpected outer header: %+v", f.Header)
	}

	payload, err := Decode(f.Payload)
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	got, diags := Project(payload)
	if len(diags) != 0 {
		t.Fatalf("expected no diagnostics, got %v", diags)
	}
	if math.Float32bits(got.RY) != math.Float32bits(r.RY) {
		t.Fatalf("negative zero not preserved")
	}
	if got != r {
		t.Fatalf("projection mismatch: got %+v want %+v", got, r)
	}
}

func TestEncodeWireLayout(t *testing.T) {
	testlog.Start(t)
	buf := Encode(samplePose, 1)
	// outer: key=1 tag=100 len=68
	if !bytes.Equal(buf[:6], []byte{1, 0, 100, 0, 68, 0}) {
		t.Fatalf("unexpected outer header: %v", buf[:6])
	}
	// first field: key=1 tag=8 len=4 value=1.0f (0x3f800000)
	if !bytes.Equal(buf[6:16], []byte{1, 0, 8, 0, 4, 0, 0x00, 0x00, 0x80, 0x3f}) {
		t.Fatalf("unexpected x frame: %v", buf[6:16])
	}
	// last field: key=7 tag=1 len=2 value=5
	if !bytes.Equal(buf[len(buf)-8:], []byte{7, 0, 1, 0, 2, 0, 5, 0}) {
		t.Fatalf("unexpected rot frame: %v", buf[len(buf)-8:])
	}
}

func TestDecodeIdempotentShape(t *testing.T) {
	testlog.Start(t)
	buf := Encode(samplePose, 9)
	a, err := Decode(buf)
	if err != nil {
		t.Fatalf("decode a: %v", err)
	}
	b, err := Decode(buf)
	if err != nil {
		t.Fatalf("decode b: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("decode shape differs: %#v vs %#v", a, b)
	}
}

func TestDecodeEmptyBuffer(t *testing.T) {
	testlog.Start(t)
	dict, err := Decode(nil)
	if err != nil {
		t.Fatalf("decode empty: %v", err)
	}
	if dict == nil || len(dict) != 0 {
		t.Fatalf("expected empty non-nil dict, got %#v", dict)
	}
}

func TestDecodeUnknownTagRejected(t *testing.T) {
	testlog.Start(t)
	buf := []byte{1, 0, 7, 0, 2, 0, 0xAA, 0xBB}
	dict, err := Decode(buf)
	if !errors.Is(err, ErrUnknownTag) {
		t.Fatalf("expected ErrUnknownTag, got %v", err)
	}
	if dict != nil {
		t.Fatalf("expected nil dict on error, got %#v", dict)
	}
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("expected *DecodeError, got %T", err)
	}
	if de.Offset != 0 || de.Depth != 1 || de.KeyID != 1 || de.Tag != 7 || !de.HasFrame {
		t.Fatalf("unexpected decode error location: %+v", de)
	}
}

func TestDecodeUnknownTagAfterValidFramesDiscardsPartial(t *testing.T) {
	testlog.Start(t)
	buf, err := EncodeValue(U16(3), 1)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	buf = append(buf, 2, 0, 0xFF, 0, 0, 0)
	dict, err := Decode(buf)
	if !errors.Is(err, ErrUnknownTag) {
		t.Fatalf("expected ErrUnknownTag, got %v", err)
	}
	if dict != nil {
		t.Fatalf("partial result leaked: %#v", dict)
	}
	var de *DecodeError
	if !errors.As(err, &de) || de.Offset != 8 {
		t.Fatalf("expected failure at offset 8, got %v", err)
	}
}

func TestDecodeUnknownTagInsideRecord(t *testing.T) {
	testlog.Start(t)
	buf := Encode(samplePose, 1)
	// tag of the third inner frame (z): outer header + two float frames + key
	pos := tlv.HeaderLen + 2*(tlv.HeaderLen+4) + 2
	buf[pos] = 9
	_, err := Decode(buf)
	if !errors.Is(err, ErrUnknownTag) {
		t.Fatalf("expected ErrUnknownTag, got %v", err)
	}
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("expected *DecodeError, got %T", err)
	}
	if de.Depth != 2 || de.KeyID != schema.FieldZ || de.Offset != pos-2 {
		t.Fatalf("unexpected decode error location: %+v", de)
	}
}

func TestDecodeTruncatedPayload(t *testing.T) {
	testlog.Start(t)
	// key=1 tag=8 len=4, only 2 payload bytes
	buf := []byte{1, 0, 8, 0, 4, 0, 0xAA, 0xBB}
	dict, err := Decode(buf)
	if !errors.Is(err, ErrTruncatedFrame) {
		t.Fatalf("expected ErrTruncatedFrame, got %v", err)
	}
	if !errors.Is(err, tlv.ErrShortFramePayload) {
		t.Fatalf("expected ErrShortFramePayload, got %v", err)
	}
	if dict != nil {
		t.Fatalf("expected nil dict on error")
	}
}

func TestDecodeTruncatedHeader(t *testing.T) {
	testlog.Start(t)
	buf := Encode(samplePose, 1)
	buf = append(buf, 1, 0, 8)
	_, err := Decode(buf)
	if !errors.Is(err, ErrTruncatedFrame) {
		t.Fatalf("expected ErrTruncatedFrame, got %v", err)
	}
	var de *DecodeError
	if !errors.As(err, &de) || de.HasFrame || de.Offset != RecordFrameLen {
		t.Fatalf("unexpected decode error: %+v", de)
	}
}

func TestDecodeTruncatedEncodedRecord(t *testing.T) {
	testlog.Start(t)
	buf := Encode(samplePose, 1)
	for cut := 1; cut < len(buf); cut++ {
		if _, err := Decode(buf[:cut]); !errors.Is(err, ErrTruncatedFrame) {
			t.Fatalf("cut=%d: expected ErrTruncatedFrame, got %v", cut, err)
		}
	}
}

func TestDecodeScalarWidthValidated(t *testing.T) {
	testlog.Start(t)
	cases := [][]byte{
		{1, 0, 8, 0, 2, 0, 0, 0},       // float with 2 bytes
		{1, 0, 1, 0, 4, 0, 0, 0, 0, 0}, // u16 with 4 bytes
		{1, 0, 1, 0, 0, 0},             // u16 with no payload
	}
	for i, buf := range cases {
		if _, err := Decode(buf); !errors.Is(err, ErrInvalidLength) {
			t.Fatalf("case %d: expected ErrInvalidLength, got %v", i, err)
		}
	}
}

func TestDecodeMissingFieldDefaulted(t *testing.T) {
	testlog.Start(t)
	payload, err := EncodeDict(Dict{
		schema.FieldX:   Some(Float32(1)),
		schema.FieldY:   Some(Float32(3)),
		schema.FieldRX:  Some(Float32(0.25)),
		schema.FieldRY:  Some(Float32(0.5)),
		schema.FieldRZ:  Some(Float32(0.75)),
		schema.FieldRot: Some(U16(5)),
	})
	if err != nil {
		t.Fatalf("encode payload: %v", err)
	}
	buf, err := tlv.EncodeFrame(1, uint16(schema.TagPositionalRecord), payload)
	if err != nil {
		t.Fatalf("encode frame: %v", err)
	}

	r, diags, err := DecodeRecord(buf, 1)
	if err != nil {
		t.Fatalf("decode record: %v", err)
	}
	want := Record{X: 1, Y: 3, Z: 0, RX: 0.25, RY: 0.5, RZ: 0.75, Rot: 5}
	if r != want {
		t.Fatalf("unexpected record: got %+v want %+v", r, want)
	}
	if len(diags) != 1 || diags[0].Key != schema.FieldZ || diags[0].Reason != ReasonMissing {
		t.Fatalf("expected one missing diagnostic for key 3, got %v", diags)
	}
}

func TestDecodeDuplicateKeyLastWins(t *testing.T) {
	testlog.Start(t)
	buf, _ := EncodeValue(Float32(1.5), 2)
	buf, _ = AppendValue(buf, Float32(2.5), 2)

	dict, err := Decode(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(dict) != 1 {
		t.Fatalf("expected 1 key, got %d", len(dict))
	}
	v, ok, _ := dict.Lookup(2)
	if !ok || v != Float32(2.5) {
		t.Fatalf("expected later frame to win, got %#v", v)
	}
}

func TestDecodeDuplicateKeyInsideRecordLastWins(t *testing.T) {
	testlog.Start(t)
	payload := Encode(samplePose, 1)[tlv.HeaderLen:]
	payload, _ = AppendValue(payload, Float32(8), schema.FieldY)
	buf, _ := tlv.EncodeFrame(1, uint16(schema.TagPositionalRecord), payload)

	r, diags, err := DecodeRecord(buf, 1)
	if err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if r.Y != 8 || len(diags) != 0 {
		t.Fatalf("expected y=8 without diagnostics, got %+v %v", r, diags)
	}
}

func TestDecodeDuplicateKeyRejectPolicy(t *testing.T) {
	testlog.Start(t)
	buf, _ := EncodeValue(U16(1), 2)
	buf, _ = AppendValue(buf, U16(2), 2)

	dec := NewDecoder(DecodeOptions{Duplicates: DuplicateReject})
	dict, err := dec.Decode(buf)
	if !errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}
	if dict != nil {
		t.Fatalf("expected nil dict on error")
	}
	var de *DecodeError
	if !errors.As(err, &de) || de.KeyID != 2 || de.Offset != 8 {
		t.Fatalf("unexpected decode error: %+v", de)
	}
}

func TestDecodeDepthBounded(t *testing.T) {
	testlog.Start(t)
	// records nested inside record payloads, deeper than the limit
	buf := []byte{}
	for i := 0; i < 8; i++ {
		var err error
		buf, err = tlv.EncodeFrame(1, uint16(schema.TagPositionalRecord), buf)
		if err != nil {
			t.Fatalf("nest: %v", err)
		}
	}
	dec := NewDecoder(DecodeOptions{MaxDepth: 4})
	_, err := dec.Decode(buf)
	if !errors.Is(err, ErrDepthExceeded) {
		t.Fatalf("expected ErrDepthExceeded, got %v", err)
	}
	var de *DecodeError
	if !errors.As(err, &de) || de.Depth != 4 {
		t.Fatalf("expected failure at depth 4, got %+v", de)
	}

	if _, err := NewDecoder(DecodeOptions{MaxDepth: 9}).Decode(buf); err != nil {
		t.Fatalf("nesting within limit should decode: %v", err)
	}
}

func TestDecoderClampsMaxDepthToRecordNesting(t *testing.T) {
	testlog.Start(t)
	for _, depth := range []int{-3, 0, 1, MinMaxDepth} {
		dec := NewDecoder(DecodeOptions{MaxDepth: depth})
		if dec.Options().MaxDepth < MinMaxDepth {
			t.Fatalf("max depth %d not clamped: %d", depth, dec.Options().MaxDepth)
		}
		record, diags, err := dec.DecodeRecord(Encode(samplePose, 1), 1)
		if err != nil {
			t.Fatalf("max depth %d: %v", depth, err)
		}
		if record != samplePose || len(diags) != 0 {
			t.Fatalf("max depth %d: unexpected record %+v diags %v", depth, record, diags)
		}
	}
}

func TestDecodeNestedRecordProjectsKindMismatch(t *testing.T) {
	testlog.Start(t)
	// key 2 carries a record instead of a float; key 7 a float instead of u16
	inner := Encode(samplePose, schema.FieldY)
	payload, _ := EncodeDict(Dict{
		schema.FieldX:   Some(Float32(1)),
		schema.FieldZ:   Some(Float32(5)),
		schema.FieldRX:  Some(Float32(0)),
		schema.FieldRY:  Some(Float32(0)),
		schema.FieldRZ:  Some(Float32(0)),
		schema.FieldRot: Some(Float32(5)),
	})
	payload = append(payload, inner...)
	buf, _ := tlv.EncodeFrame(3, uint16(schema.TagPositionalRecord), payload)

	r, diags, err := DecodeRecord(buf, 3)
	if err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if r.Y != 0 || r.Rot != 0 || r.X != 1 || r.Z != 5 {
		t.Fatalf("unexpected record: %+v", r)
	}
	if !reflect.DeepEqual(diags.Keys(), []uint16{schema.FieldY, schema.FieldRot}) {
		t.Fatalf("unexpected diagnostic keys: %v", diags.Keys())
	}
	if diags[0].Reason != ReasonKindMismatch || diags[0].Got != schema.KindRecord {
		t.Fatalf("unexpected diagnostic: %+v", diags[0])
	}
}

func TestDecodeEmptyRecordPayloadDefaultsEveryField(t *testing.T) {
	testlog.Start(t)
	buf, _ := tlv.EncodeFrame(1, uint16(schema.TagPositionalRecord), nil)
	r, diags, err := DecodeRecord(buf, 1)
	if err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if r != (Record{}) {
		t.Fatalf("expected zero record, got %+v", r)
	}
	if len(diags) != 7 {
		t.Fatalf("expected 7 diagnostics, got %d", len(diags))
	}
}

func TestDecodeRecordNotFound(t *testing.T) {
	testlog.Start(t)
	buf := Encode(samplePose, 1)
	if _, _, err := DecodeRecord(buf, 2); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
	scalar, _ := EncodeValue(U16(1), 2)
	if _, _, err := DecodeRecord(scalar, 2); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound for scalar, got %v", err)
	}
}

func TestEncodeValueMatchesEncode(t *testing.T) {
	testlog.Start(t)
	generic, err := EncodeValue(RecordValue{Record: samplePose}, 5)
	if err != nil {
		t.Fatalf("encode value: %v", err)
	}
	if !bytes.Equal(generic, Encode(samplePose, 5)) {
		t.Fatalf("generic and record encoders disagree")
	}
}

func TestEncodeValueRejectsUnencodable(t *testing.T) {
	testlog.Start(t)
	if _, err := EncodeValue(Dict{}, 1); !errors.Is(err, ErrUnencodable) {
		t.Fatalf("expected ErrUnencodable for dict, got %v", err)
	}
	if _, err := EncodeValue(nil, 1); !errors.Is(err, ErrUnencodable) {
		t.Fatalf("expected ErrUnencodable for nil, got %v", err)
	}
	if _, err := EncodeDict(Dict{1: None()}); !errors.Is(err, ErrUnencodable) {
		t.Fatalf("expected ErrUnencodable for empty entry, got %v", err)
	}
}

func TestEncodeDictDecodeInverse(t *testing.T) {
	testlog.Start(t)
	in := Dict{
		1:   Some(U16(7)),
		8:   Some(Float32(-2.25)),
		100: Some(RecordValue{Record: samplePose}),
	}
	buf, err := EncodeDict(in)
	if err != nil {
		t.Fatalf("encode dict: %v", err)
	}
	out, err := Decode(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("dict mismatch: got %#v want %#v", out, in)
	}
	again, err := EncodeDict(out)
	if err != nil {
		t.Fatalf("re-encode: %v", err)
	}
	if !bytes.Equal(buf, again) {
		t.Fatalf("re-encode mismatch")
	}
}

func TestDictLookupDistinguishesEmptyFromAbsent(t *testing.T) {
	testlog.Start(t)
	d := Dict{1: None(), 2: Some(U16(4)), 3: Some(nil)}
	if _, ok, present := d.Lookup(1); ok || !present {
		t.Fatalf("key 1: expected present without value")
	}
	if v, ok, present := d.Lookup(2); !ok || !present || v != U16(4) {
		t.Fatalf("key 2: expected value 4")
	}
	if _, ok, present := d.Lookup(3); ok || !present {
		t.Fatalf("key 3: Some(nil) must behave like None")
	}
	if _, _, present := d.Lookup(4); present {
		t.Fatalf("key 4: expected absent")
	}
}

func TestProjectDiagnostics(t *testing.T) {
	testlog.Start(t)
	d := Dict{
		schema.FieldX:   Some(Float32(1)),
		schema.FieldY:   None(),
		schema.FieldRot: Some(U16(9)),
		99:              Some(Float32(4)),
	}
	r, diags := Project(d)
	if r.X != 1 || r.Rot != 9 {
		t.Fatalf("unexpected record: %+v", r)
	}
	want := []uint16{schema.FieldY, schema.FieldZ, schema.FieldRX, schema.FieldRY, schema.FieldRZ}
	if !reflect.DeepEqual(diags.Keys(), want) {
		t.Fatalf("unexpected diagnostic keys: got %v want %v", diags.Keys(), want)
	}
	if diags[0].Reason != ReasonEmpty || diags[1].Reason != ReasonMissing {
		t.Fatalf("unexpected reasons: %v %v", diags[0].Reason, diags[1].Reason)
	}
	if !diags.Has(schema.FieldZ) || diags.Has(schema.FieldX) {
		t.Fatalf("Has mismatch")
	}
	if diags[1].String() != "field z (key 3) defaulted: missing" {
		t.Fatalf("unexpected diagnostic text: %q", diags[1].String())
	}
}

func TestParseDuplicatePolicy(t *testing.T) {
	testlog.Start(t)
	for raw, want := range map[string]DuplicatePolicy{
		"":          DuplicateLastWins,
		"last_wins": DuplicateLastWins,
		"REJECT":    DuplicateReject,
	} {
		got, err := ParseDuplicatePolicy(raw)
		if err != nil || got != want {
			t.Fatalf("%q: got %v err=%v want %v", raw, got, err, want)
		}
	}
	if _, err := ParseDuplicatePolicy("first_wins"); err == nil {
		t.Fatalf("expected error for unknown policy")
	}
}

func FuzzDecode(f *testing.F) {
	f.Add(Encode(samplePose, 1))
	f.Add([]byte{1, 0, 7, 0, 0, 0})
	f.Add([]byte{1, 0, 100, 0, 6, 0, 1, 0, 100, 0, 0, 0})
	f.Fuzz(func(t *testing.T, b []byte) {
		dict, err := Decode(b)
		if err != nil {
			if dict != nil {
				t.Fatalf("non-nil dict with error %v", err)
			}
			var de *DecodeError
			if !errors.As(err, &de) {
				t.Fatalf("expected *DecodeError, got %T", err)
			}
			return
		}
		if _, err := EncodeDict(dict); err != nil {
			t.Fatalf("decoded dict must re-encode: %v", err)
		}
	})
}
