package protocol

import (
	"bytes"
	"encoding/binary"

	"github.com/google/uuid"
)

// Low-level wire primitives shared by the value and message codecs.
//
// Varints are little-endian base-128: each byte carries 7 bits, least
// significant group first, high bit set on all but the last byte.

func putVarintU32(buf *bytes.Buffer, v uint32) {
	for v >= 0x80 {
		buf.WriteByte(byte(v) | 0x80)
		v >>= 7
	}
	buf.WriteByte(byte(v))
}

// wireReader is a cursor over a received byte slice. All try* methods
// return ErrUnexpectedEoi when the input ends early.
type wireReader struct {
	buf []byte
	pos int
}

func (r *wireReader) remaining() int { return len(r.buf) - r.pos }

func (r *wireReader) tryU8() (uint8, error) {
	if r.remaining() < 1 {
		return 0, ErrUnexpectedEoi
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *wireReader) tryBytes(n int) ([]byte, error) {
	if r.remaining() < n {
		return nil, ErrUnexpectedEoi
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *wireReader) trySkip(n int) error {
	if r.remaining() < n {
		return ErrUnexpectedEoi
	}
	r.pos += n
	return nil
}

func (r *wireReader) tryVarintU32() (uint32, error) {
	var v uint32
	var shift uint
	for {
		b, err := r.tryU8()
		if err != nil {
			return 0, err
		}
		if shift == 28 && b > 0x0f {
			return 0, ErrInvalidSerialization
		}
		v |= uint32(b&0x7f) << shift
		if b < 0x80 {
			return v, nil
		}
		shift += 7
		if shift > 28 {
			return 0, ErrInvalidSerialization
		}
	}
}

func (r *wireReader) tryU16LE() (uint16, error) {
	b, err := r.tryBytes(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *wireReader) tryU32LE() (uint32, error) {
	b, err := r.tryBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *wireReader) tryU64LE() (uint64, error) {
	b, err := r.tryBytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *wireReader) tryUUID() (uuid.UUID, error) {
	b, err := r.tryBytes(16)
	if err != nil {
		return uuid.Nil, err
	}
	var u uuid.UUID
	copy(u[:], b)
	return u, nil
}

func putU16LE(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func putU32LE(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func putU64LE(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func putUUID(buf *bytes.Buffer, u uuid.UUID) {
	buf.Write(u[:])
}
