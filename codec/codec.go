// Package codec implements the varint-based binary update/state-vector
// format from spec §4.7: a struct section (per-client runs of Items, GC,
// and Skip pseudo-structs) followed by a DeleteSet section of run-length
// encoded deleted ranges.
//
// This implements wire format V1. A V2 encoder that groups fields by
// column is named in the spec but not required by any operation in the
// external interface (spec §6 lists "V2 counterparts with the same
// shapes" as a variant of the same encode/decode calls); V1 alone
// satisfies every operation and roundtrip law in §8, so only it is built
// here.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/synix/crdtengine/content"
)

// ErrTruncated is returned when a decode runs out of bytes mid-field.
var ErrTruncated = errors.New("truncated update")

// ErrUnknownContentRef is returned when a content-ref byte outside the
// table in spec §4.7 is encountered while decoding.
var ErrUnknownContentRef = errors.New("unknown content-ref")

// contentRef assigns the stable wire identifiers from spec §4.7.
func contentRef(k content.Kind) (byte, error) {
	switch k {
	case content.KindGC, content.KindDeleted, content.KindJSON, content.KindBinary,
		content.KindString, content.KindEmbed, content.KindFormat, content.KindType,
		content.KindAny, content.KindDoc, content.KindSkip:
		return byte(k), nil
	default:
		return 0, fmt.Errorf("content kind %v: %w", k, ErrUnknownContentRef)
	}
}

func refToKind(b byte) (content.Kind, error) {
	switch b {
	case 0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10:
		return content.Kind(b), nil
	default:
		return 0, fmt.Errorf("ref %d: %w", b, ErrUnknownContentRef)
	}
}

// decoder reads sequential varint/byte/string fields out of a byte slice,
// tracking position and surfacing ErrTruncated on underrun.
type decoder struct {
	buf []byte
	pos int
}

func newDecoder(b []byte) *decoder { return &decoder{buf: b} }

func (d *decoder) uvarint() (uint64, error) {
	if d.pos >= len(d.buf) {
		return 0, ErrTruncated
	}
	v, n := binary.Uvarint(d.buf[d.pos:])
	if n <= 0 {
		return 0, ErrTruncated
	}
	d.pos += n
	return v, nil
}

func (d *decoder) byte() (byte, error) {
	if d.pos >= len(d.buf) {
		return 0, ErrTruncated
	}
	b := d.buf[d.pos]
	d.pos++
	return b, nil
}

func (d *decoder) bytesN(n int) ([]byte, error) {
	if n < 0 || d.pos+n > len(d.buf) {
		return nil, ErrTruncated
	}
	out := d.buf[d.pos : d.pos+n]
	d.pos += n
	return out, nil
}

func (d *decoder) bool() (bool, error) {
	b, err := d.byte()
	return b != 0, err
}

// varBytes reads a varuint length prefix followed by that many raw bytes.
func (d *decoder) varBytes() ([]byte, error) {
	n, err := d.uvarint()
	if err != nil {
		return nil, err
	}
	return d.bytesN(int(n))
}

func (d *decoder) varString() (string, error) {
	b, err := d.varBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (d *decoder) done() bool { return d.pos >= len(d.buf) }

// appendVarBytes appends a varuint length prefix followed by b.
func appendVarBytes(buf []byte, b []byte) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(b)))
	return append(buf, b...)
}

func appendVarString(buf []byte, s string) []byte {
	return appendVarBytes(buf, []byte(s))
}
