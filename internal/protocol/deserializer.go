package protocol

import (
	"math"

	"github.com/google/uuid"
)

// Deserializer reads exactly one value from a byte slice. Composite
// values hand out sub-deserializers which must be drained before their
// parent's finish call.
type Deserializer struct {
	r     *wireReader
	depth int
}

// NewDeserializer returns a deserializer over b. The caller owns the
// trailing-data check; see SerializedValue.Deserialize.
func NewDeserializer(b []byte) *Deserializer {
	return &Deserializer{r: &wireReader{buf: b}, depth: MaxValueDepth}
}

func (d *Deserializer) child() (*Deserializer, error) {
	if d.depth <= 1 {
		return nil, ErrTooDeeplyNested
	}
	return &Deserializer{r: d.r, depth: d.depth - 1}, nil
}

// PeekKind returns the tag of the next value without consuming it.
func (d *Deserializer) PeekKind() (ValueKind, error) {
	if d.r.remaining() < 1 {
		return 0, ErrUnexpectedEoi
	}
	k := ValueKind(d.r.buf[d.r.pos])
	if k > KindReceiver {
		return 0, ErrInvalidSerialization
	}
	return k, nil
}

func (d *Deserializer) kind() (ValueKind, error) {
	k, err := d.PeekKind()
	if err != nil {
		return 0, err
	}
	d.r.pos++
	return k, nil
}

func (d *Deserializer) expect(want ValueKind) error {
	k, err := d.kind()
	if err != nil {
		return err
	}
	if k != want {
		return ErrUnexpectedValue
	}
	return nil
}

func (d *Deserializer) None() error { return d.expect(KindNone) }

// Some returns the deserializer for the inner value of an option, or nil
// if the option is None.
func (d *Deserializer) Some() (*Deserializer, error) {
	k, err := d.kind()
	if err != nil {
		return nil, err
	}
	switch k {
	case KindNone:
		return nil, nil
	case KindSome:
		return d.child()
	default:
		return nil, ErrUnexpectedValue
	}
}

func (d *Deserializer) Bool() (bool, error) {
	if err := d.expect(KindBool); err != nil {
		return false, err
	}
	b, err := d.r.tryU8()
	if err != nil {
		return false, err
	}
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, ErrInvalidSerialization
	}
}

func (d *Deserializer) U8() (uint8, error) {
	if err := d.expect(KindU8); err != nil {
		return 0, err
	}
	return d.r.tryU8()
}

func (d *Deserializer) I8() (int8, error) {
	if err := d.expect(KindI8); err != nil {
		return 0, err
	}
	b, err := d.r.tryU8()
	return int8(b), err
}

func (d *Deserializer) U16() (uint16, error) {
	if err := d.expect(KindU16); err != nil {
		return 0, err
	}
	return d.r.tryU16LE()
}

func (d *Deserializer) I16() (int16, error) {
	if err := d.expect(KindI16); err != nil {
		return 0, err
	}
	v, err := d.r.tryU16LE()
	return int16(v), err
}

func (d *Deserializer) U32() (uint32, error) {
	if err := d.expect(KindU32); err != nil {
		return 0, err
	}
	return d.r.tryVarintU32()
}

func (d *Deserializer) I32() (int32, error) {
	if err := d.expect(KindI32); err != nil {
		return 0, err
	}
	v, err := d.r.tryU32LE()
	return int32(v), err
}

func (d *Deserializer) U64() (uint64, error) {
	if err := d.expect(KindU64); err != nil {
		return 0, err
	}
	return d.r.tryU64LE()
}

func (d *Deserializer) I64() (int64, error) {
	if err := d.expect(KindI64); err != nil {
		return 0, err
	}
	v, err := d.r.tryU64LE()
	return int64(v), err
}

func (d *Deserializer) F32() (float32, error) {
	if err := d.expect(KindF32); err != nil {
		return 0, err
	}
	v, err := d.r.tryU32LE()
	return math.Float32frombits(v), err
}

func (d *Deserializer) F64() (float64, error) {
	if err := d.expect(KindF64); err != nil {
		return 0, err
	}
	v, err := d.r.tryU64LE()
	return math.Float64frombits(v), err
}

func (d *Deserializer) String() (string, error) {
	if err := d.expect(KindString); err != nil {
		return "", err
	}
	n, err := d.r.tryVarintU32()
	if err != nil {
		return "", err
	}
	b, err := d.r.tryBytes(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (d *Deserializer) UUID() (uuid.UUID, error) {
	if err := d.expect(KindUUID); err != nil {
		return uuid.Nil, err
	}
	return d.r.tryUUID()
}

func (d *Deserializer) ObjectID() (ObjectID, error) {
	if err := d.expect(KindObjectID); err != nil {
		return ObjectID{}, err
	}
	return d.rawObjectID()
}

func (d *Deserializer) rawObjectID() (ObjectID, error) {
	u, err := d.r.tryUUID()
	if err != nil {
		return ObjectID{}, err
	}
	c, err := d.r.tryUUID()
	if err != nil {
		return ObjectID{}, err
	}
	return ObjectID{UUID: ObjectUUID(u), Cookie: ObjectCookie(c)}, nil
}

func (d *Deserializer) ServiceID() (ServiceID, error) {
	if err := d.expect(KindServiceID); err != nil {
		return ServiceID{}, err
	}
	return d.rawServiceID()
}

func (d *Deserializer) rawServiceID() (ServiceID, error) {
	obj, err := d.rawObjectID()
	if err != nil {
		return ServiceID{}, err
	}
	u, err := d.r.tryUUID()
	if err != nil {
		return ServiceID{}, err
	}
	c, err := d.r.tryUUID()
	if err != nil {
		return ServiceID{}, err
	}
	return ServiceID{Object: obj, UUID: ServiceUUID(u), Cookie: ServiceCookie(c)}, nil
}

func (d *Deserializer) Bytes() ([]byte, error) {
	if err := d.expect(KindBytes); err != nil {
		return nil, err
	}
	n, err := d.r.tryVarintU32()
	if err != nil {
		return nil, err
	}
	b, err := d.r.tryBytes(int(n))
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}

func (d *Deserializer) Sender() (ChannelCookie, error) {
	if err := d.expect(KindSender); err != nil {
		return ChannelCookie{}, err
	}
	u, err := d.r.tryUUID()
	return ChannelCookie(u), err
}

func (d *Deserializer) Receiver() (ChannelCookie, error) {
	if err := d.expect(KindReceiver); err != nil {
		return ChannelCookie{}, err
	}
	u, err := d.r.tryUUID()
	return ChannelCookie(u), err
}

// Enum returns the variant id and the deserializer for the variant
// value.
func (d *Deserializer) Enum() (uint32, *Deserializer, error) {
	if err := d.expect(KindEnum); err != nil {
		return 0, nil, err
	}
	variant, err := d.r.tryVarintU32()
	if err != nil {
		return 0, nil, err
	}
	inner, err := d.child()
	return variant, inner, err
}

// Vec returns a cursor over the vector's elements.
func (d *Deserializer) Vec() (*VecDeserializer, error) {
	if err := d.expect(KindVec); err != nil {
		return nil, err
	}
	n, err := d.r.tryVarintU32()
	if err != nil {
		return nil, err
	}
	return &VecDeserializer{d: d, remaining: n}, nil
}

// Map returns a cursor over the map's entries.
func (d *Deserializer) Map() (*MapDeserializer, error) {
	k, err := d.kind()
	if err != nil {
		return nil, err
	}
	key, ok := mapKeyKind(k)
	if !ok {
		return nil, ErrUnexpectedValue
	}
	n, err := d.r.tryVarintU32()
	if err != nil {
		return nil, err
	}
	return &MapDeserializer{d: d, key: key, remaining: n}, nil
}

// Set returns a cursor over the set's elements.
func (d *Deserializer) Set() (*SetDeserializer, error) {
	k, err := d.kind()
	if err != nil {
		return nil, err
	}
	key, ok := setKeyKind(k)
	if !ok {
		return nil, ErrUnexpectedValue
	}
	n, err := d.r.tryVarintU32()
	if err != nil {
		return nil, err
	}
	return &SetDeserializer{d: d, key: key, remaining: n}, nil
}

// Struct returns a cursor over the struct's fields. Unknown field ids
// can be skipped, which is how schema evolution stays compatible.
func (d *Deserializer) Struct() (*StructDeserializer, error) {
	if err := d.expect(KindStruct); err != nil {
		return nil, err
	}
	n, err := d.r.tryVarintU32()
	if err != nil {
		return nil, err
	}
	return &StructDeserializer{d: d, remaining: n}, nil
}

// Skip consumes the next value without materializing it.
func (d *Deserializer) Skip() error {
	k, err := d.kind()
	if err != nil {
		return err
	}
	return d.skipAfterKind(k)
}

func (d *Deserializer) skipAfterKind(k ValueKind) error {
	switch k {
	case KindNone:
		return nil
	case KindSome:
		inner, err := d.child()
		if err != nil {
			return err
		}
		return inner.Skip()
	case KindBool, KindU8, KindI8:
		return d.r.trySkip(1)
	case KindU16, KindI16:
		return d.r.trySkip(2)
	case KindU32:
		_, err := d.r.tryVarintU32()
		return err
	case KindI32, KindF32:
		return d.r.trySkip(4)
	case KindU64, KindI64, KindF64:
		return d.r.trySkip(8)
	case KindString, KindBytes:
		n, err := d.r.tryVarintU32()
		if err != nil {
			return err
		}
		return d.r.trySkip(int(n))
	case KindUUID, KindSender, KindReceiver:
		return d.r.trySkip(16)
	case KindObjectID:
		return d.r.trySkip(32)
	case KindServiceID:
		return d.r.trySkip(64)
	case KindVec:
		v := &VecDeserializer{d: d}
		var err error
		if v.remaining, err = d.r.tryVarintU32(); err != nil {
			return err
		}
		return v.SkipRemaining()
	case KindStruct:
		s := &StructDeserializer{d: d}
		var err error
		if s.remaining, err = d.r.tryVarintU32(); err != nil {
			return err
		}
		return s.skipRemaining()
	case KindEnum:
		if _, err := d.r.tryVarintU32(); err != nil {
			return err
		}
		inner, err := d.child()
		if err != nil {
			return err
		}
		return inner.Skip()
	default:
		if key, ok := mapKeyKind(k); ok {
			m := &MapDeserializer{d: d, key: key}
			var err error
			if m.remaining, err = d.r.tryVarintU32(); err != nil {
				return err
			}
			return m.skipRemaining()
		}
		if key, ok := setKeyKind(k); ok {
			s := &SetDeserializer{d: d, key: key}
			var err error
			if s.remaining, err = d.r.tryVarintU32(); err != nil {
				return err
			}
			return s.skipRemaining()
		}
		return ErrInvalidSerialization
	}
}

func (d *Deserializer) key(kind KeyKind) (Key, error) {
	k := Key{Kind: kind}
	switch kind {
	case KeyU8:
		b, err := d.r.tryU8()
		if err != nil {
			return k, err
		}
		k.Int = uint64(b)
	case KeyI8:
		b, err := d.r.tryU8()
		if err != nil {
			return k, err
		}
		k.Int = uint64(int8(b))
	case KeyU16:
		v, err := d.r.tryU16LE()
		if err != nil {
			return k, err
		}
		k.Int = uint64(v)
	case KeyI16:
		v, err := d.r.tryU16LE()
		if err != nil {
			return k, err
		}
		k.Int = uint64(int16(v))
	case KeyU32:
		v, err := d.r.tryVarintU32()
		if err != nil {
			return k, err
		}
		k.Int = uint64(v)
	case KeyI32:
		v, err := d.r.tryU32LE()
		if err != nil {
			return k, err
		}
		k.Int = uint64(int32(v))
	case KeyU64, KeyI64:
		v, err := d.r.tryU64LE()
		if err != nil {
			return k, err
		}
		k.Int = v
	case KeyString:
		n, err := d.r.tryVarintU32()
		if err != nil {
			return k, err
		}
		b, err := d.r.tryBytes(int(n))
		if err != nil {
			return k, err
		}
		k.Str = string(b)
	case KeyUUID:
		u, err := d.r.tryUUID()
		if err != nil {
			return k, err
		}
		k.UUID = u
	default:
		return k, ErrInvalidSerialization
	}
	return k, nil
}

// Value materializes the next value as a generic tree.
func (d *Deserializer) Value() (Value, error) {
	k, err := d.PeekKind()
	if err != nil {
		return nil, err
	}
	switch k {
	case KindNone:
		d.r.pos++
		return None{}, nil
	case KindSome:
		d.r.pos++
		inner, err := d.child()
		if err != nil {
			return nil, err
		}
		v, err := inner.Value()
		if err != nil {
			return nil, err
		}
		return Some{Value: v}, nil
	case KindBool:
		v, err := d.Bool()
		return Bool(v), err
	case KindU8:
		v, err := d.U8()
		return U8(v), err
	case KindI8:
		v, err := d.I8()
		return I8(v), err
	case KindU16:
		v, err := d.U16()
		return U16(v), err
	case KindI16:
		v, err := d.I16()
		return I16(v), err
	case KindU32:
		v, err := d.U32()
		return U32(v), err
	case KindI32:
		v, err := d.I32()
		return I32(v), err
	case KindU64:
		v, err := d.U64()
		return U64(v), err
	case KindI64:
		v, err := d.I64()
		return I64(v), err
	case KindF32:
		v, err := d.F32()
		return F32(v), err
	case KindF64:
		v, err := d.F64()
		return F64(v), err
	case KindString:
		v, err := d.String()
		return String(v), err
	case KindUUID:
		v, err := d.UUID()
		return UUID(v), err
	case KindObjectID:
		v, err := d.ObjectID()
		return ObjectIDValue(v), err
	case KindServiceID:
		v, err := d.ServiceID()
		return ServiceIDValue(v), err
	case KindVec:
		vd, err := d.Vec()
		if err != nil {
			return nil, err
		}
		vec := make(Vec, 0, min(int(vd.remaining), 64))
		for vd.HasMoreElements() {
			ed, err := vd.Element()
			if err != nil {
				return nil, err
			}
			v, err := ed.Value()
			if err != nil {
				return nil, err
			}
			vec = append(vec, v)
		}
		return vec, vd.Finish()
	case KindBytes:
		v, err := d.Bytes()
		return Bytes(v), err
	case KindStruct:
		sd, err := d.Struct()
		if err != nil {
			return nil, err
		}
		st := Struct{Fields: make([]StructField, 0, min(int(sd.remaining), 64))}
		for sd.HasMoreFields() {
			fd, err := sd.Field()
			if err != nil {
				return nil, err
			}
			v, err := fd.Value()
			if err != nil {
				return nil, err
			}
			st.Fields = append(st.Fields, StructField{ID: fd.ID, Value: v})
		}
		return st, sd.Finish()
	case KindEnum:
		variant, inner, err := d.Enum()
		if err != nil {
			return nil, err
		}
		v, err := inner.Value()
		if err != nil {
			return nil, err
		}
		return Enum{Variant: variant, Value: v}, nil
	case KindSender:
		c, err := d.Sender()
		return Sender{Cookie: c}, err
	case KindReceiver:
		c, err := d.Receiver()
		return Receiver{Cookie: c}, err
	default:
		if _, ok := mapKeyKind(k); ok {
			md, err := d.Map()
			if err != nil {
				return nil, err
			}
			m := Map{Key: md.key, Entries: make([]MapEntry, 0, min(int(md.remaining), 64))}
			for md.HasMoreEntries() {
				key, ed, err := md.Entry()
				if err != nil {
					return nil, err
				}
				v, err := ed.Value()
				if err != nil {
					return nil, err
				}
				m.Entries = append(m.Entries, MapEntry{Key: key, Value: v})
			}
			return m, md.Finish()
		}
		if _, ok := setKeyKind(k); ok {
			sd, err := d.Set()
			if err != nil {
				return nil, err
			}
			set := Set{Key: sd.key, Elements: make([]Key, 0, min(int(sd.remaining), 64))}
			for sd.HasMoreElements() {
				key, err := sd.Element()
				if err != nil {
					return nil, err
				}
				set.Elements = append(set.Elements, key)
			}
			return set, sd.Finish()
		}
		return nil, ErrInvalidSerialization
	}
}

// VecDeserializer iterates the elements of a vector.
type VecDeserializer struct {
	d         *Deserializer
	remaining uint32
}

func (v *VecDeserializer) HasMoreElements() bool { return v.remaining > 0 }

func (v *VecDeserializer) Element() (*Deserializer, error) {
	if v.remaining == 0 {
		return nil, ErrNoMoreElements
	}
	v.remaining--
	return v.d.child()
}

func (v *VecDeserializer) SkipRemaining() error {
	for v.remaining > 0 {
		e, err := v.Element()
		if err != nil {
			return err
		}
		if err := e.Skip(); err != nil {
			return err
		}
	}
	return nil
}

func (v *VecDeserializer) Finish() error {
	if v.remaining != 0 {
		return ErrMoreElementsRemain
	}
	return nil
}

// MapDeserializer iterates the entries of a map.
type MapDeserializer struct {
	d         *Deserializer
	key       KeyKind
	remaining uint32
}

func (m *MapDeserializer) KeyKind() KeyKind     { return m.key }
func (m *MapDeserializer) HasMoreEntries() bool { return m.remaining > 0 }

func (m *MapDeserializer) Entry() (Key, *Deserializer, error) {
	if m.remaining == 0 {
		return Key{}, nil, ErrNoMoreElements
	}
	m.remaining--
	k, err := m.d.key(m.key)
	if err != nil {
		return Key{}, nil, err
	}
	inner, err := m.d.child()
	return k, inner, err
}

func (m *MapDeserializer) skipRemaining() error {
	for m.remaining > 0 {
		_, e, err := m.Entry()
		if err != nil {
			return err
		}
		if err := e.Skip(); err != nil {
			return err
		}
	}
	return nil
}

func (m *MapDeserializer) Finish() error {
	if m.remaining != 0 {
		return ErrMoreElementsRemain
	}
	return nil
}

// SetDeserializer iterates the elements of a set.
type SetDeserializer struct {
	d         *Deserializer
	key       KeyKind
	remaining uint32
}

func (s *SetDeserializer) KeyKind() KeyKind      { return s.key }
func (s *SetDeserializer) HasMoreElements() bool { return s.remaining > 0 }

func (s *SetDeserializer) Element() (Key, error) {
	if s.remaining == 0 {
		return Key{}, ErrNoMoreElements
	}
	s.remaining--
	return s.d.key(s.key)
}

func (s *SetDeserializer) skipRemaining() error {
	for s.remaining > 0 {
		if _, err := s.Element(); err != nil {
			return err
		}
	}
	return nil
}

func (s *SetDeserializer) Finish() error {
	if s.remaining != 0 {
		return ErrMoreElementsRemain
	}
	return nil
}

// StructDeserializer iterates the fields of a struct in wire order.
type StructDeserializer struct {
	d         *Deserializer
	remaining uint32
}

func (s *StructDeserializer) HasMoreFields() bool { return s.remaining > 0 }

// Field reads the next field id and returns a deserializer positioned at
// its value. Callers skip fields with ids they do not know.
func (s *StructDeserializer) Field() (*FieldDeserializer, error) {
	if s.remaining == 0 {
		return nil, ErrNoMoreElements
	}
	s.remaining--
	id, err := s.d.r.tryVarintU32()
	if err != nil {
		return nil, err
	}
	inner, err := s.d.child()
	if err != nil {
		return nil, err
	}
	return &FieldDeserializer{Deserializer: inner, ID: id}, nil
}

func (s *StructDeserializer) skipRemaining() error {
	for s.remaining > 0 {
		f, err := s.Field()
		if err != nil {
			return err
		}
		if err := f.Skip(); err != nil {
			return err
		}
	}
	return nil
}

// Finish reports ErrMoreElementsRemain when declared fields were left
// unread.
func (s *StructDeserializer) Finish() error {
	if s.remaining != 0 {
		return ErrMoreElementsRemain
	}
	return nil
}

// FieldDeserializer is a struct field: its id plus a deserializer for
// the field value.
type FieldDeserializer struct {
	*Deserializer
	ID uint32
}
