package protocol

import "github.com/google/uuid"

// ValueKind tags every node of a serialized value tree.
type ValueKind uint8

const (
	KindNone      ValueKind = 0
	KindSome      ValueKind = 1
	KindBool      ValueKind = 2
	KindU8        ValueKind = 3
	KindI8        ValueKind = 4
	KindU16       ValueKind = 5
	KindI16       ValueKind = 6
	KindU32       ValueKind = 7
	KindI32       ValueKind = 8
	KindU64       ValueKind = 9
	KindI64       ValueKind = 10
	KindF32       ValueKind = 11
	KindF64       ValueKind = 12
	KindString    ValueKind = 13
	KindUUID      ValueKind = 14
	KindObjectID  ValueKind = 15
	KindServiceID ValueKind = 16
	KindVec       ValueKind = 17
	KindBytes     ValueKind = 18
	KindU8Map     ValueKind = 19
	KindI8Map     ValueKind = 20
	KindU16Map    ValueKind = 21
	KindI16Map    ValueKind = 22
	KindU32Map    ValueKind = 23
	KindI32Map    ValueKind = 24
	KindU64Map    ValueKind = 25
	KindI64Map    ValueKind = 26
	KindStringMap ValueKind = 27
	KindUUIDMap   ValueKind = 28
	KindU8Set     ValueKind = 29
	KindI8Set     ValueKind = 30
	KindU16Set    ValueKind = 31
	KindI16Set    ValueKind = 32
	KindU32Set    ValueKind = 33
	KindI32Set    ValueKind = 34
	KindU64Set    ValueKind = 35
	KindI64Set    ValueKind = 36
	KindStringSet ValueKind = 37
	KindUUIDSet   ValueKind = 38
	KindStruct    ValueKind = 39
	KindEnum      ValueKind = 40
	KindSender    ValueKind = 41
	KindReceiver  ValueKind = 42
)

// KeyKind is the narrower tag algebra of map keys and set elements.
type KeyKind uint8

const (
	KeyU8 KeyKind = iota
	KeyI8
	KeyU16
	KeyI16
	KeyU32
	KeyI32
	KeyU64
	KeyI64
	KeyString
	KeyUUID
)

func (k KeyKind) mapKind() ValueKind { return KindU8Map + ValueKind(k) }
func (k KeyKind) setKind() ValueKind { return KindU8Set + ValueKind(k) }

func mapKeyKind(v ValueKind) (KeyKind, bool) {
	if v >= KindU8Map && v <= KindUUIDMap {
		return KeyKind(v - KindU8Map), true
	}
	return 0, false
}

func setKeyKind(v ValueKind) (KeyKind, bool) {
	if v >= KindU8Set && v <= KindUUIDSet {
		return KeyKind(v - KindU8Set), true
	}
	return 0, false
}

// Key is a map key or set element. Integer keys store their raw bits in
// Int, sign-extended for the signed kinds.
type Key struct {
	Kind KeyKind
	Int  uint64
	Str  string
	UUID uuid.UUID
}

func U8Key(v uint8) Key       { return Key{Kind: KeyU8, Int: uint64(v)} }
func I8Key(v int8) Key        { return Key{Kind: KeyI8, Int: uint64(v)} }
func U16Key(v uint16) Key     { return Key{Kind: KeyU16, Int: uint64(v)} }
func I16Key(v int16) Key      { return Key{Kind: KeyI16, Int: uint64(v)} }
func U32Key(v uint32) Key     { return Key{Kind: KeyU32, Int: uint64(v)} }
func I32Key(v int32) Key      { return Key{Kind: KeyI32, Int: uint64(v)} }
func U64Key(v uint64) Key     { return Key{Kind: KeyU64, Int: v} }
func I64Key(v int64) Key      { return Key{Kind: KeyI64, Int: uint64(v)} }
func StringKey(v string) Key  { return Key{Kind: KeyString, Str: v} }
func UUIDKey(v uuid.UUID) Key { return Key{Kind: KeyUUID, UUID: v} }

// Value is one node of the self-describing tagged tree.
type Value interface {
	ValueKind() ValueKind
}

type (
	None struct{}
	Some struct{ Value Value }

	Bool bool

	U8  uint8
	I8  int8
	U16 uint16
	I16 int16
	U32 uint32
	I32 int32
	U64 uint64
	I64 int64

	F32 float32
	F64 float64

	String string
	UUID   uuid.UUID

	// ObjectIDValue and ServiceIDValue embed broker identities into
	// values.
	ObjectIDValue  ObjectID
	ServiceIDValue ServiceID

	Vec   []Value
	Bytes []byte

	MapEntry struct {
		Key   Key
		Value Value
	}

	// Map preserves entry order; equality of round-tripped values is
	// order-sensitive, matching the wire.
	Map struct {
		Key     KeyKind
		Entries []MapEntry
	}

	Set struct {
		Key      KeyKind
		Elements []Key
	}

	StructField struct {
		ID    uint32
		Value Value
	}

	Struct struct {
		Fields []StructField
	}

	Enum struct {
		Variant uint32
		Value   Value
	}

	Sender   struct{ Cookie ChannelCookie }
	Receiver struct{ Cookie ChannelCookie }
)

func (None) ValueKind() ValueKind           { return KindNone }
func (Some) ValueKind() ValueKind           { return KindSome }
func (Bool) ValueKind() ValueKind           { return KindBool }
func (U8) ValueKind() ValueKind             { return KindU8 }
func (I8) ValueKind() ValueKind             { return KindI8 }
func (U16) ValueKind() ValueKind            { return KindU16 }
func (I16) ValueKind() ValueKind            { return KindI16 }
func (U32) ValueKind() ValueKind            { return KindU32 }
func (I32) ValueKind() ValueKind            { return KindI32 }
func (U64) ValueKind() ValueKind            { return KindU64 }
func (I64) ValueKind() ValueKind            { return KindI64 }
func (F32) ValueKind() ValueKind            { return KindF32 }
func (F64) ValueKind() ValueKind            { return KindF64 }
func (String) ValueKind() ValueKind         { return KindString }
func (UUID) ValueKind() ValueKind           { return KindUUID }
func (ObjectIDValue) ValueKind() ValueKind  { return KindObjectID }
func (ServiceIDValue) ValueKind() ValueKind { return KindServiceID }
func (Vec) ValueKind() ValueKind            { return KindVec }
func (Bytes) ValueKind() ValueKind          { return KindBytes }
func (m Map) ValueKind() ValueKind          { return m.Key.mapKind() }
func (s Set) ValueKind() ValueKind          { return s.Key.setKind() }
func (Struct) ValueKind() ValueKind         { return KindStruct }
func (Enum) ValueKind() ValueKind           { return KindEnum }
func (Sender) ValueKind() ValueKind         { return KindSender }
func (Receiver) ValueKind() ValueKind       { return KindReceiver }
