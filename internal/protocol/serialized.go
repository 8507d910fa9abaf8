package protocol

import "bytes"

// SerializedValue is one owned, self-contained serialized value blob.
// The broker forwards these verbatim; only endpoints deserialize.
type SerializedValue []byte

// SerializedValueSlice is a borrowed view of a serialized value, e.g.
// into a larger message frame.
type SerializedValueSlice []byte

// EmptySerializedValue returns the canonical empty value, a single None
// byte.
func EmptySerializedValue() SerializedValue {
	return SerializedValue{byte(KindNone)}
}

// SerializeValue serializes a whole value tree into a fresh blob.
func SerializeValue(v Value) (SerializedValue, error) {
	var buf bytes.Buffer
	if err := NewSerializer(&buf).Value(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ToOwned copies a borrowed slice into an owned value.
func (s SerializedValueSlice) ToOwned() SerializedValue {
	out := make(SerializedValue, len(s))
	copy(out, s)
	return out
}

// Deserialize materializes the value tree and verifies that no trailing
// bytes follow it.
func (s SerializedValue) Deserialize() (Value, error) {
	return SerializedValueSlice(s).Deserialize()
}

// Deserializer returns a deserializer positioned at the value root.
func (s SerializedValue) Deserializer() *Deserializer {
	return NewDeserializer(s)
}

func (s SerializedValueSlice) Deserialize() (Value, error) {
	d := NewDeserializer(s)
	v, err := d.Value()
	if err != nil {
		return nil, err
	}
	if d.r.remaining() != 0 {
		return nil, ErrTrailingData
	}
	return v, nil
}

// IsEmpty reports whether the value is the canonical None.
func (s SerializedValue) IsEmpty() bool {
	return len(s) == 1 && s[0] == byte(KindNone)
}
