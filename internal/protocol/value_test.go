package protocol

import (
	"bytes"
	"errors"
	"reflect"
	"testing"

	"github.com/google/uuid"
)

func serde(t *testing.T, v Value) Value {
	t.Helper()
	blob, err := SerializeValue(v)
	if err != nil {
		t.Fatalf("serialize %v: %v", v, err)
	}
	out, err := blob.Deserialize()
	if err != nil {
		t.Fatalf("deserialize %v: %v", blob, err)
	}
	return out
}

func TestValueRoundtrip(t *testing.T) {
	u := uuid.MustParse("b7c3be13-5377-466e-b4bf-373876523d1b")
	objID := ObjectID{UUID: ObjectUUID(u), Cookie: ObjectCookie(uuid.MustParse("026c3142-530b-4d65-850d-a297dcc2fecb"))}
	svcID := ServiceID{
		Object: objID,
		UUID:   ServiceUUID(uuid.MustParse("89e62438-2991-48f8-ae1d-7ad9ddcd7e72")),
		Cookie: ServiceCookie(uuid.MustParse("88e82fb9-03b2-4f51-94d8-4702cfacc90c")),
	}

	tests := []struct {
		name  string
		value Value
	}{
		{"none", None{}},
		{"some", Some{Value: U32(7)}},
		{"bool", Bool(true)},
		{"u8", U8(255)},
		{"i8", I8(-128)},
		{"u16", U16(65535)},
		{"i16", I16(-32768)},
		{"u32", U32(4294967295)},
		{"i32", I32(-2147483648)},
		{"u64", U64(1 << 63)},
		{"i64", I64(-9223372036854775808)},
		{"f32", F32(1.5)},
		{"f64", F64(-2.25)},
		{"string", String("hello")},
		{"string empty", String("")},
		{"uuid", UUID(u)},
		{"object id", ObjectIDValue(objID)},
		{"service id", ServiceIDValue(svcID)},
		{"vec", Vec{U8(1), String("two"), None{}}},
		{"vec empty", Vec{}},
		{"bytes", Bytes{1, 2, 3}},
		{"map u32", Map{Key: KeyU32, Entries: []MapEntry{
			{Key: U32Key(1), Value: String("one")},
			{Key: U32Key(300), Value: String("three hundred")},
		}}},
		{"map string", Map{Key: KeyString, Entries: []MapEntry{
			{Key: StringKey("a"), Value: U8(1)},
		}}},
		{"map uuid", Map{Key: KeyUUID, Entries: []MapEntry{
			{Key: UUIDKey(u), Value: Bool(false)},
		}}},
		{"map i64", Map{Key: KeyI64, Entries: []MapEntry{
			{Key: I64Key(-5), Value: None{}},
		}}},
		{"set u16", Set{Key: KeyU16, Elements: []Key{U16Key(1), U16Key(512)}}},
		{"set string", Set{Key: KeyString, Elements: []Key{StringKey("x")}}},
		{"struct", Struct{Fields: []StructField{
			{ID: 0, Value: U32(1)},
			{ID: 7, Value: Some{Value: String("nested")}},
		}}},
		{"struct empty", Struct{}},
		{"enum", Enum{Variant: 3, Value: U8(9)}},
		{"enum unit", Enum{Variant: 0, Value: None{}}},
		{"sender", Sender{Cookie: ChannelCookie(u)}},
		{"receiver", Receiver{Cookie: ChannelCookie(u)}},
		{"deep", Some{Value: Some{Value: Vec{Struct{Fields: []StructField{
			{ID: 1, Value: Enum{Variant: 2, Value: Bytes{0xff}}},
		}}}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := serde(t, tt.value)
			want := tt.value
			if !reflect.DeepEqual(got, normalize(want)) {
				t.Fatalf("roundtrip mismatch:\n got %#v\nwant %#v", got, want)
			}
		})
	}
}

// normalize maps empty composites to the shapes the deserializer
// produces (non-nil empty slices).
func normalize(v Value) Value {
	switch v := v.(type) {
	case Vec:
		if v == nil || len(v) == 0 {
			return Vec{}
		}
	case Struct:
		if v.Fields == nil {
			return Struct{Fields: []StructField{}}
		}
	}
	return v
}

func TestValueWireFormat(t *testing.T) {
	tests := []struct {
		name  string
		value Value
		wire  []byte
	}{
		{"none", None{}, []byte{0}},
		{"u8", U8(4), []byte{3, 4}},
		{"bool true", Bool(true), []byte{2, 1}},
		{"u32 varint", U32(300), []byte{7, 0xac, 0x02}},
		{"string", String("ab"), []byte{13, 2, 'a', 'b'}},
		{"vec of u8", Vec{U8(1)}, []byte{17, 1, 3, 1}},
		{"struct one field", Struct{Fields: []StructField{{ID: 1, Value: U8(2)}}}, []byte{39, 1, 1, 3, 2}},
		{"enum", Enum{Variant: 1, Value: None{}}, []byte{40, 1, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blob, err := SerializeValue(tt.value)
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(blob, tt.wire) {
				t.Fatalf("wire mismatch: got % x want % x", []byte(blob), tt.wire)
			}
		})
	}
}

func TestEmptySerializedValue(t *testing.T) {
	empty := EmptySerializedValue()
	if !bytes.Equal(empty, []byte{0}) {
		t.Fatalf("empty value must be a single None byte, got % x", []byte(empty))
	}
	if !empty.IsEmpty() {
		t.Fatal("IsEmpty() = false for the canonical empty value")
	}
}

func TestSerializerElementCounts(t *testing.T) {
	var buf bytes.Buffer
	vs, err := NewSerializer(&buf).Vec(1)
	if err != nil {
		t.Fatal(err)
	}
	if err := vs.Finish(); !errors.Is(err, ErrTooFewElements) {
		t.Fatalf("underflow: got %v, want ErrTooFewElements", err)
	}

	buf.Reset()
	vs, err = NewSerializer(&buf).Vec(1)
	if err != nil {
		t.Fatal(err)
	}
	es, err := vs.Element()
	if err != nil {
		t.Fatal(err)
	}
	es.U8(1)
	if _, err := vs.Element(); !errors.Is(err, ErrTooManyElements) {
		t.Fatalf("overflow: got %v, want ErrTooManyElements", err)
	}

	buf.Reset()
	ss, err := NewSerializer(&buf).Struct(1)
	if err != nil {
		t.Fatal(err)
	}
	if err := ss.Finish(); !errors.Is(err, ErrTooFewElements) {
		t.Fatalf("struct underflow: got %v, want ErrTooFewElements", err)
	}
}

func TestSerializerDepthGuard(t *testing.T) {
	deep := Value(U8(0))
	for i := 0; i < MaxValueDepth+1; i++ {
		deep = Some{Value: deep}
	}
	if _, err := SerializeValue(deep); !errors.Is(err, ErrTooDeeplyNested) {
		t.Fatalf("got %v, want ErrTooDeeplyNested", err)
	}

	shallow := Value(U8(0))
	for i := 0; i < MaxValueDepth-1; i++ {
		shallow = Some{Value: shallow}
	}
	if _, err := SerializeValue(shallow); err != nil {
		t.Fatalf("depth within bounds rejected: %v", err)
	}
}

func TestDeserializerDepthGuard(t *testing.T) {
	wire := make([]byte, MaxValueDepth+1)
	for i := 0; i < MaxValueDepth; i++ {
		wire[i] = byte(KindSome)
	}
	wire[MaxValueDepth] = byte(KindNone)

	if _, err := SerializedValue(wire).Deserialize(); !errors.Is(err, ErrTooDeeplyNested) {
		t.Fatalf("got %v, want ErrTooDeeplyNested", err)
	}
}

func TestDeserializerErrors(t *testing.T) {
	t.Run("trailing data", func(t *testing.T) {
		if _, err := SerializedValue([]byte{0, 0}).Deserialize(); !errors.Is(err, ErrTrailingData) {
			t.Fatalf("got %v, want ErrTrailingData", err)
		}
	})

	t.Run("unexpected eoi", func(t *testing.T) {
		if _, err := SerializedValue([]byte{byte(KindU32)}).Deserialize(); !errors.Is(err, ErrUnexpectedEoi) {
			t.Fatalf("got %v, want ErrUnexpectedEoi", err)
		}
	})

	t.Run("empty input", func(t *testing.T) {
		if _, err := SerializedValue(nil).Deserialize(); !errors.Is(err, ErrUnexpectedEoi) {
			t.Fatalf("got %v, want ErrUnexpectedEoi", err)
		}
	})

	t.Run("invalid tag", func(t *testing.T) {
		if _, err := SerializedValue([]byte{0xff}).Deserialize(); !errors.Is(err, ErrInvalidSerialization) {
			t.Fatalf("got %v, want ErrInvalidSerialization", err)
		}
	})

	t.Run("unexpected value", func(t *testing.T) {
		blob, _ := SerializeValue(String("x"))
		if _, err := blob.Deserializer().U32(); !errors.Is(err, ErrUnexpectedValue) {
			t.Fatalf("got %v, want ErrUnexpectedValue", err)
		}
	})

	t.Run("vec too few consumed", func(t *testing.T) {
		blob, _ := SerializeValue(Vec{U8(1), U8(2)})
		vd, err := blob.Deserializer().Vec()
		if err != nil {
			t.Fatal(err)
		}
		e, _ := vd.Element()
		if err := e.Skip(); err != nil {
			t.Fatal(err)
		}
		if err := vd.Finish(); !errors.Is(err, ErrMoreElementsRemain) {
			t.Fatalf("got %v, want ErrMoreElementsRemain", err)
		}
	})

	t.Run("no more elements", func(t *testing.T) {
		blob, _ := SerializeValue(Vec{})
		vd, err := blob.Deserializer().Vec()
		if err != nil {
			t.Fatal(err)
		}
		if _, err := vd.Element(); !errors.Is(err, ErrNoMoreElements) {
			t.Fatalf("got %v, want ErrNoMoreElements", err)
		}
	})
}

func TestStructKeyedDeserialization(t *testing.T) {
	// Readers must tolerate unknown fields: decode a three-field
	// struct knowing only ids 0 and 2.
	blob, err := SerializeValue(Struct{Fields: []StructField{
		{ID: 0, Value: U32(7)},
		{ID: 1, Value: String("unknown to the reader")},
		{ID: 2, Value: Bool(true)},
	}})
	if err != nil {
		t.Fatal(err)
	}

	sd, err := blob.Deserializer().Struct()
	if err != nil {
		t.Fatal(err)
	}

	var (
		got0 uint32
		got2 bool
	)
	for sd.HasMoreFields() {
		f, err := sd.Field()
		if err != nil {
			t.Fatal(err)
		}
		switch f.ID {
		case 0:
			if got0, err = f.U32(); err != nil {
				t.Fatal(err)
			}
		case 2:
			if got2, err = f.Bool(); err != nil {
				t.Fatal(err)
			}
		default:
			if err := f.Skip(); err != nil {
				t.Fatal(err)
			}
		}
	}
	if err := sd.Finish(); err != nil {
		t.Fatal(err)
	}

	if got0 != 7 || !got2 {
		t.Fatalf("fields: got (%d, %v), want (7, true)", got0, got2)
	}
}

func TestServiceInfoRoundtrip(t *testing.T) {
	typeID := DeriveTypeID("example.Echo@1")
	no := false

	tests := []struct {
		name string
		info ServiceInfo
	}{
		{"version only", ServiceInfo{Version: 1}},
		{"with type id", ServiceInfo{Version: 3, TypeID: &typeID}},
		{"all events disabled", ServiceInfo{Version: 2, SubscribeAllEvents: &no}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blob, err := tt.info.Serialize()
			if err != nil {
				t.Fatal(err)
			}
			got, err := DeserializeServiceInfo(SerializedValueSlice(blob))
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(got, tt.info) {
				t.Fatalf("got %+v, want %+v", got, tt.info)
			}
		})
	}
}

func TestDeriveTypeIDDeterministic(t *testing.T) {
	a := DeriveTypeID("schema")
	b := DeriveTypeID("schema")
	c := DeriveTypeID("other")
	if a != b {
		t.Fatal("same layout must derive the same type id")
	}
	if a == c {
		t.Fatal("different layouts must derive different type ids")
	}
	if v := uuid.UUID(a).Version(); v != 5 {
		t.Fatalf("type ids are v5 uuids, got version %d", v)
	}
}
