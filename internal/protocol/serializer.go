package protocol

import (
	"bytes"
	"math"

	"github.com/google/uuid"
)

// MaxValueDepth bounds nesting of serialized values in both codec
// directions.
const MaxValueDepth = 32

// Serializer writes exactly one value into a buffer. Composite values
// hand out sub-serializers that track their declared element counts and
// fail fast on over- or underflow.
type Serializer struct {
	buf   *bytes.Buffer
	depth int
}

// NewSerializer returns a serializer appending to buf.
func NewSerializer(buf *bytes.Buffer) *Serializer {
	return &Serializer{buf: buf, depth: MaxValueDepth}
}

func (s *Serializer) child() (*Serializer, error) {
	if s.depth <= 1 {
		return nil, ErrTooDeeplyNested
	}
	return &Serializer{buf: s.buf, depth: s.depth - 1}, nil
}

func (s *Serializer) None()  { s.buf.WriteByte(byte(KindNone)) }
func (s *Serializer) Bool(v bool) {
	s.buf.WriteByte(byte(KindBool))
	if v {
		s.buf.WriteByte(1)
	} else {
		s.buf.WriteByte(0)
	}
}

func (s *Serializer) U8(v uint8) {
	s.buf.WriteByte(byte(KindU8))
	s.buf.WriteByte(v)
}

func (s *Serializer) I8(v int8) {
	s.buf.WriteByte(byte(KindI8))
	s.buf.WriteByte(byte(v))
}

func (s *Serializer) U16(v uint16) {
	s.buf.WriteByte(byte(KindU16))
	putU16LE(s.buf, v)
}

func (s *Serializer) I16(v int16) {
	s.buf.WriteByte(byte(KindI16))
	putU16LE(s.buf, uint16(v))
}

func (s *Serializer) U32(v uint32) {
	s.buf.WriteByte(byte(KindU32))
	putVarintU32(s.buf, v)
}

func (s *Serializer) I32(v int32) {
	s.buf.WriteByte(byte(KindI32))
	putU32LE(s.buf, uint32(v))
}

func (s *Serializer) U64(v uint64) {
	s.buf.WriteByte(byte(KindU64))
	putU64LE(s.buf, v)
}

func (s *Serializer) I64(v int64) {
	s.buf.WriteByte(byte(KindI64))
	putU64LE(s.buf, uint64(v))
}

func (s *Serializer) F32(v float32) {
	s.buf.WriteByte(byte(KindF32))
	putU32LE(s.buf, math.Float32bits(v))
}

func (s *Serializer) F64(v float64) {
	s.buf.WriteByte(byte(KindF64))
	putU64LE(s.buf, math.Float64bits(v))
}

func (s *Serializer) String(v string) error {
	if len(v) > math.MaxUint32 {
		return ErrOverflow
	}
	s.buf.WriteByte(byte(KindString))
	putVarintU32(s.buf, uint32(len(v)))
	s.buf.WriteString(v)
	return nil
}

func (s *Serializer) UUID(v uuid.UUID) {
	s.buf.WriteByte(byte(KindUUID))
	putUUID(s.buf, v)
}

func (s *Serializer) ObjectID(id ObjectID) {
	s.buf.WriteByte(byte(KindObjectID))
	putUUID(s.buf, uuid.UUID(id.UUID))
	putUUID(s.buf, uuid.UUID(id.Cookie))
}

func (s *Serializer) ServiceID(id ServiceID) {
	s.buf.WriteByte(byte(KindServiceID))
	putUUID(s.buf, uuid.UUID(id.Object.UUID))
	putUUID(s.buf, uuid.UUID(id.Object.Cookie))
	putUUID(s.buf, uuid.UUID(id.UUID))
	putUUID(s.buf, uuid.UUID(id.Cookie))
}

func (s *Serializer) Bytes(v []byte) error {
	if len(v) > math.MaxUint32 {
		return ErrOverflow
	}
	s.buf.WriteByte(byte(KindBytes))
	putVarintU32(s.buf, uint32(len(v)))
	s.buf.Write(v)
	return nil
}

func (s *Serializer) Sender(c ChannelCookie) {
	s.buf.WriteByte(byte(KindSender))
	putUUID(s.buf, uuid.UUID(c))
}

func (s *Serializer) Receiver(c ChannelCookie) {
	s.buf.WriteByte(byte(KindReceiver))
	putUUID(s.buf, uuid.UUID(c))
}

// Some returns the serializer for the inner value.
func (s *Serializer) Some() (*Serializer, error) {
	inner, err := s.child()
	if err != nil {
		return nil, err
	}
	s.buf.WriteByte(byte(KindSome))
	return inner, nil
}

// Enum writes the variant id and returns the serializer for the variant
// value.
func (s *Serializer) Enum(variant uint32) (*Serializer, error) {
	inner, err := s.child()
	if err != nil {
		return nil, err
	}
	s.buf.WriteByte(byte(KindEnum))
	putVarintU32(s.buf, variant)
	return inner, nil
}

// Vec starts a vector of exactly n elements.
func (s *Serializer) Vec(n int) (*VecSerializer, error) {
	if _, err := s.child(); err != nil {
		return nil, err
	}
	if n > math.MaxUint32 {
		return nil, ErrOverflow
	}
	s.buf.WriteByte(byte(KindVec))
	putVarintU32(s.buf, uint32(n))
	return &VecSerializer{s: s, remaining: n}, nil
}

// Map starts a map with the given key kind and exactly n entries.
func (s *Serializer) Map(key KeyKind, n int) (*MapSerializer, error) {
	if _, err := s.child(); err != nil {
		return nil, err
	}
	if n > math.MaxUint32 {
		return nil, ErrOverflow
	}
	s.buf.WriteByte(byte(key.mapKind()))
	putVarintU32(s.buf, uint32(n))
	return &MapSerializer{s: s, key: key, remaining: n}, nil
}

// Set starts a set with the given key kind and exactly n elements.
func (s *Serializer) Set(key KeyKind, n int) (*SetSerializer, error) {
	if n > math.MaxUint32 {
		return nil, ErrOverflow
	}
	s.buf.WriteByte(byte(key.setKind()))
	putVarintU32(s.buf, uint32(n))
	return &SetSerializer{s: s, key: key, remaining: n}, nil
}

// Struct starts a struct of exactly n fields.
func (s *Serializer) Struct(n int) (*StructSerializer, error) {
	if _, err := s.child(); err != nil {
		return nil, err
	}
	if n > math.MaxUint32 {
		return nil, ErrOverflow
	}
	s.buf.WriteByte(byte(KindStruct))
	putVarintU32(s.buf, uint32(n))
	return &StructSerializer{s: s, remaining: n}, nil
}

// Value serializes a whole tree.
func (s *Serializer) Value(v Value) error {
	switch v := v.(type) {
	case None:
		s.None()
	case Some:
		inner, err := s.Some()
		if err != nil {
			return err
		}
		return inner.Value(v.Value)
	case Bool:
		s.Bool(bool(v))
	case U8:
		s.U8(uint8(v))
	case I8:
		s.I8(int8(v))
	case U16:
		s.U16(uint16(v))
	case I16:
		s.I16(int16(v))
	case U32:
		s.U32(uint32(v))
	case I32:
		s.I32(int32(v))
	case U64:
		s.U64(uint64(v))
	case I64:
		s.I64(int64(v))
	case F32:
		s.F32(float32(v))
	case F64:
		s.F64(float64(v))
	case String:
		return s.String(string(v))
	case UUID:
		s.UUID(uuid.UUID(v))
	case ObjectIDValue:
		s.ObjectID(ObjectID(v))
	case ServiceIDValue:
		s.ServiceID(ServiceID(v))
	case Vec:
		vs, err := s.Vec(len(v))
		if err != nil {
			return err
		}
		for _, elem := range v {
			es, err := vs.Element()
			if err != nil {
				return err
			}
			if err := es.Value(elem); err != nil {
				return err
			}
		}
		return vs.Finish()
	case Bytes:
		return s.Bytes(v)
	case Map:
		ms, err := s.Map(v.Key, len(v.Entries))
		if err != nil {
			return err
		}
		for _, e := range v.Entries {
			es, err := ms.Entry(e.Key)
			if err != nil {
				return err
			}
			if err := es.Value(e.Value); err != nil {
				return err
			}
		}
		return ms.Finish()
	case Set:
		ss, err := s.Set(v.Key, len(v.Elements))
		if err != nil {
			return err
		}
		for _, e := range v.Elements {
			if err := ss.Element(e); err != nil {
				return err
			}
		}
		return ss.Finish()
	case Struct:
		st, err := s.Struct(len(v.Fields))
		if err != nil {
			return err
		}
		for _, f := range v.Fields {
			fs, err := st.Field(f.ID)
			if err != nil {
				return err
			}
			if err := fs.Value(f.Value); err != nil {
				return err
			}
		}
		return st.Finish()
	case Enum:
		es, err := s.Enum(v.Variant)
		if err != nil {
			return err
		}
		return es.Value(v.Value)
	case Sender:
		s.Sender(v.Cookie)
	case Receiver:
		s.Receiver(v.Cookie)
	default:
		return ErrUnexpectedValue
	}
	return nil
}

func (s *Serializer) key(kind KeyKind, k Key) error {
	if k.Kind != kind {
		return ErrUnexpectedValue
	}
	switch kind {
	case KeyU8, KeyI8:
		s.buf.WriteByte(byte(k.Int))
	case KeyU16, KeyI16:
		putU16LE(s.buf, uint16(k.Int))
	case KeyU32:
		putVarintU32(s.buf, uint32(k.Int))
	case KeyI32:
		putU32LE(s.buf, uint32(k.Int))
	case KeyU64, KeyI64:
		putU64LE(s.buf, k.Int)
	case KeyString:
		if len(k.Str) > math.MaxUint32 {
			return ErrOverflow
		}
		putVarintU32(s.buf, uint32(len(k.Str)))
		s.buf.WriteString(k.Str)
	case KeyUUID:
		putUUID(s.buf, k.UUID)
	default:
		return ErrUnexpectedValue
	}
	return nil
}

// VecSerializer writes the declared number of vector elements.
type VecSerializer struct {
	s         *Serializer
	remaining int
}

func (v *VecSerializer) RemainingElements() int          { return v.remaining }
func (v *VecSerializer) RequiresAdditionalElements() bool { return v.remaining > 0 }

func (v *VecSerializer) Element() (*Serializer, error) {
	if v.remaining == 0 {
		return nil, ErrTooManyElements
	}
	v.remaining--
	return v.s.child()
}

func (v *VecSerializer) Finish() error {
	if v.remaining != 0 {
		return ErrTooFewElements
	}
	return nil
}

// MapSerializer writes the declared number of key/value entries.
type MapSerializer struct {
	s         *Serializer
	key       KeyKind
	remaining int
}

func (m *MapSerializer) RemainingElements() int { return m.remaining }

func (m *MapSerializer) Entry(k Key) (*Serializer, error) {
	if m.remaining == 0 {
		return nil, ErrTooManyElements
	}
	if err := m.s.key(m.key, k); err != nil {
		return nil, err
	}
	m.remaining--
	return m.s.child()
}

func (m *MapSerializer) Finish() error {
	if m.remaining != 0 {
		return ErrTooFewElements
	}
	return nil
}

// SetSerializer writes the declared number of set elements.
type SetSerializer struct {
	s         *Serializer
	key       KeyKind
	remaining int
}

func (s *SetSerializer) RemainingElements() int { return s.remaining }

func (s *SetSerializer) Element(k Key) error {
	if s.remaining == 0 {
		return ErrTooManyElements
	}
	if err := s.s.key(s.key, k); err != nil {
		return err
	}
	s.remaining--
	return nil
}

func (s *SetSerializer) Finish() error {
	if s.remaining != 0 {
		return ErrTooFewElements
	}
	return nil
}

// StructSerializer writes the declared number of (field id, value) pairs.
type StructSerializer struct {
	s         *Serializer
	remaining int
}

func (s *StructSerializer) RemainingFields() int { return s.remaining }

func (s *StructSerializer) Field(id uint32) (*Serializer, error) {
	if s.remaining == 0 {
		return nil, ErrTooManyElements
	}
	s.remaining--
	putVarintU32(s.s.buf, id)
	return s.s.child()
}

func (s *StructSerializer) Finish() error {
	if s.remaining != 0 {
		return ErrTooFewElements
	}
	return nil
}
