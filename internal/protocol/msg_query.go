package protocol

import "github.com/google/uuid"

// QueryIntrospection asks for the introspection value registered under
// a type id. The broker relays the query to a connection that owns a
// service declaring that id.
type QueryIntrospection struct {
	Serial uint32
	TypeID TypeID
}

// QueryIntrospectionResult discriminates QueryIntrospectionReply.
type QueryIntrospectionResult uint8

const (
	QueryIntrospectionOk QueryIntrospectionResult = iota
	QueryIntrospectionUnavailable
)

type QueryIntrospectionReply struct {
	Serial uint32
	Result QueryIntrospectionResult
	Value  SerializedValue // introspection record when Ok
}

// Sync flushes the request pipeline: its reply is sent only after all
// preceding messages of the connection have been processed.
type Sync struct {
	Serial uint32
}

type SyncReply struct {
	Serial uint32
}

func (QueryIntrospection) MessageKind() Kind      { return KindQueryIntrospection }
func (QueryIntrospectionReply) MessageKind() Kind { return KindQueryIntrospectionReply }
func (Sync) MessageKind() Kind                    { return KindSync }
func (SyncReply) MessageKind() Kind               { return KindSyncReply }

func (m QueryIntrospection) encodeTo(e *messageEncoder) error {
	e.varintU32(m.Serial)
	e.uuid(uuid.UUID(m.TypeID))
	return nil
}

func decodeQueryIntrospection(d *messageDecoder) (Message, error) {
	m := QueryIntrospection{}
	var err error
	if m.Serial, err = d.varintU32(); err != nil {
		return nil, err
	}
	u, err := d.uuid()
	if err != nil {
		return nil, err
	}
	m.TypeID = TypeID(u)
	return m, nil
}

func (m QueryIntrospectionReply) encodeTo(e *messageEncoder) error {
	if err := e.value(m.Value); err != nil {
		return err
	}
	e.varintU32(m.Serial)
	e.u8(uint8(m.Result))
	return nil
}

func decodeQueryIntrospectionReply(d *messageDecoder) (Message, error) {
	m := QueryIntrospectionReply{Value: d.ownedValue()}
	var err error
	if m.Serial, err = d.varintU32(); err != nil {
		return nil, err
	}
	b, err := d.u8()
	if err != nil {
		return nil, err
	}
	if b > uint8(QueryIntrospectionUnavailable) {
		return nil, ErrInvalidDiscriminant
	}
	m.Result = QueryIntrospectionResult(b)
	return m, nil
}

func (m Sync) encodeTo(e *messageEncoder) error {
	e.varintU32(m.Serial)
	return nil
}

func decodeSync(d *messageDecoder) (Message, error) {
	serial, err := d.varintU32()
	if err != nil {
		return nil, err
	}
	return Sync{Serial: serial}, nil
}

func (m SyncReply) encodeTo(e *messageEncoder) error {
	e.varintU32(m.Serial)
	return nil
}

func decodeSyncReply(d *messageDecoder) (Message, error) {
	serial, err := d.varintU32()
	if err != nil {
		return nil, err
	}
	return SyncReply{Serial: serial}, nil
}
