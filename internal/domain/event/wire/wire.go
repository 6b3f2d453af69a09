// Package wire provides a minimal, dependency-free tag/length-delimited
// writer and reader built directly on protowire. It gives every payload in
// the event package a stable, forward-compatible binary encoding (unknown
// fields are skipped rather than rejected) without requiring a .proto
// toolchain: field numbers are assigned by hand and never reused.
package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Writer appends tagged fields to an internal buffer in field-number order.
// Callers are expected to write fields in ascending tag order, but nothing
// enforces it; protowire readers tolerate any order.
type Writer struct {
	buf []byte
}

func NewWriter() *Writer { return &Writer{} }

func (w *Writer) Bytes() []byte { return w.buf }

func (w *Writer) Varint(tag protowire.Number, v uint64) {
	if v == 0 {
		return
	}
	w.buf = protowire.AppendTag(w.buf, tag, protowire.VarintType)
	w.buf = protowire.AppendVarint(w.buf, v)
}

// ZigZag writes a signed integer using zigzag encoding so small negative
// values stay cheap. Still omitted when zero, matching proto3 field
// presence semantics for scalars.
func (w *Writer) ZigZag(tag protowire.Number, v int64) {
	if v == 0 {
		return
	}
	w.buf = protowire.AppendTag(w.buf, tag, protowire.VarintType)
	w.buf = protowire.AppendVarint(w.buf, protowire.EncodeZigZag(v))
}

func (w *Writer) String(tag protowire.Number, s string) {
	if s == "" {
		return
	}
	w.buf = protowire.AppendTag(w.buf, tag, protowire.BytesType)
	w.buf = protowire.AppendString(w.buf, s)
}

func (w *Writer) Bytes_(tag protowire.Number, b []byte) {
	if len(b) == 0 {
		return
	}
	w.buf = protowire.AppendTag(w.buf, tag, protowire.BytesType)
	w.buf = protowire.AppendBytes(w.buf, b)
}

// Message writes a nested, length-delimited sub-message whose bytes were
// already produced by another Writer.
func (w *Writer) Message(tag protowire.Number, b []byte) {
	w.Bytes_(tag, b)
}

// Reader consumes tagged fields one at a time, in whatever order they
// appear on the wire.
type Reader struct {
	buf []byte
}

func NewReader(b []byte) *Reader { return &Reader{buf: b} }

// Field is one decoded (tag, wire-type, raw-value) tuple. Varint holds the
// value of VarintType fields and Bytes the raw bytes of BytesType fields.
type Field struct {
	Tag   protowire.Number
	Type  protowire.Type
	Varint uint64
	Bytes  []byte
}

// Next decodes the next field. ok is false once the buffer is exhausted.
func (r *Reader) Next() (Field, bool, error) {
	if len(r.buf) == 0 {
		return Field{}, false, nil
	}
	tag, typ, n := protowire.ConsumeTag(r.buf)
	if n < 0 {
		return Field{}, false, fmt.Errorf("wire: invalid tag: %w", protowire.ParseError(n))
	}
	r.buf = r.buf[n:]

	switch typ {
	case protowire.VarintType:
		v, n := protowire.ConsumeVarint(r.buf)
		if n < 0 {
			return Field{}, false, fmt.Errorf("wire: invalid varint: %w", protowire.ParseError(n))
		}
		r.buf = r.buf[n:]
		return Field{Tag: tag, Type: typ, Varint: v}, true, nil
	case protowire.BytesType:
		b, n := protowire.ConsumeBytes(r.buf)
		if n < 0 {
			return Field{}, false, fmt.Errorf("wire: invalid bytes: %w", protowire.ParseError(n))
		}
		r.buf = r.buf[n:]
		return Field{Tag: tag, Type: typ, Bytes: b}, true, nil
	case protowire.Fixed32Type, protowire.Fixed64Type:
		n := protowire.ConsumeFieldValue(tag, typ, r.buf)
		if n < 0 {
			return Field{}, false, fmt.Errorf("wire: invalid fixed field: %w", protowire.ParseError(n))
		}
		b := r.buf[:n]
		r.buf = r.buf[n:]
		return Field{Tag: tag, Type: typ, Bytes: b}, true, nil
	default:
		n := protowire.ConsumeFieldValue(tag, typ, r.buf)
		if n < 0 {
			return Field{}, false, fmt.Errorf("wire: unsupported wire type %d: %w", typ, protowire.ParseError(n))
		}
		r.buf = r.buf[n:]
		return Field{Tag: tag, Type: typ}, true, nil
	}
}

func (f Field) Int64() int64  { return protowire.DecodeZigZag(f.Varint) }
func (f Field) Uint64() uint64 { return f.Varint }
func (f Field) String() string { return string(f.Bytes) }
