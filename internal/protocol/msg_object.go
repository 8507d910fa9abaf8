package protocol

import "github.com/google/uuid"

// CreateObject registers a new object under a client-chosen UUID.
type CreateObject struct {
	Serial uint32
	UUID   ObjectUUID
}

// CreateObjectResult discriminates CreateObjectReply.
type CreateObjectResult uint8

const (
	CreateObjectOk CreateObjectResult = iota
	CreateObjectDuplicate
)

type CreateObjectReply struct {
	Serial uint32
	Result CreateObjectResult
	Cookie ObjectCookie // set when Result is Ok
}

// DestroyObject destroys an object owned by the sending connection.
type DestroyObject struct {
	Serial uint32
	Cookie ObjectCookie
}

// DestroyObjectResult discriminates DestroyObjectReply.
type DestroyObjectResult uint8

const (
	DestroyObjectOk DestroyObjectResult = iota
	DestroyObjectInvalidObject
	DestroyObjectForeignObject
)

type DestroyObjectReply struct {
	Serial uint32
	Result DestroyObjectResult
}

// QueryObject looks up an object by UUID and optionally enumerates its
// services through a stream of QueryObjectReply messages.
type QueryObject struct {
	Serial       uint32
	UUID         ObjectUUID
	WithServices bool
}

// QueryObjectResult discriminates QueryObjectReply.
type QueryObjectResult uint8

const (
	QueryObjectOk QueryObjectResult = iota
	QueryObjectInvalidObject
	QueryObjectService
	QueryObjectDone
)

// QueryObjectReply carries one step of a QueryObject response: Ok with
// the object cookie first, then one Service per service, then Done.
type QueryObjectReply struct {
	Serial        uint32
	Result        QueryObjectResult
	ObjectCookie  ObjectCookie  // set for Ok
	ServiceUUID   ServiceUUID   // set for Service
	ServiceCookie ServiceCookie // set for Service
}

func (CreateObject) MessageKind() Kind      { return KindCreateObject }
func (CreateObjectReply) MessageKind() Kind { return KindCreateObjectReply }
func (DestroyObject) MessageKind() Kind     { return KindDestroyObject }
func (DestroyObjectReply) MessageKind() Kind {
	return KindDestroyObjectReply
}
func (QueryObject) MessageKind() Kind      { return KindQueryObject }
func (QueryObjectReply) MessageKind() Kind { return KindQueryObjectReply }

func (m CreateObject) encodeTo(e *messageEncoder) error {
	e.varintU32(m.Serial)
	e.uuid(uuid.UUID(m.UUID))
	return nil
}

func decodeCreateObject(d *messageDecoder) (Message, error) {
	m := CreateObject{}
	var err error
	if m.Serial, err = d.varintU32(); err != nil {
		return nil, err
	}
	u, err := d.uuid()
	if err != nil {
		return nil, err
	}
	m.UUID = ObjectUUID(u)
	return m, nil
}

func (m CreateObjectReply) encodeTo(e *messageEncoder) error {
	e.varintU32(m.Serial)
	e.u8(uint8(m.Result))
	if m.Result == CreateObjectOk {
		e.uuid(uuid.UUID(m.Cookie))
	}
	return nil
}

func decodeCreateObjectReply(d *messageDecoder) (Message, error) {
	m := CreateObjectReply{}
	var err error
	if m.Serial, err = d.varintU32(); err != nil {
		return nil, err
	}
	b, err := d.u8()
	if err != nil {
		return nil, err
	}
	if b > uint8(CreateObjectDuplicate) {
		return nil, ErrInvalidDiscriminant
	}
	m.Result = CreateObjectResult(b)
	if m.Result == CreateObjectOk {
		u, err := d.uuid()
		if err != nil {
			return nil, err
		}
		m.Cookie = ObjectCookie(u)
	}
	return m, nil
}

func (m DestroyObject) encodeTo(e *messageEncoder) error {
	e.varintU32(m.Serial)
	e.uuid(uuid.UUID(m.Cookie))
	return nil
}

func decodeDestroyObject(d *messageDecoder) (Message, error) {
	m := DestroyObject{}
	var err error
	if m.Serial, err = d.varintU32(); err != nil {
		return nil, err
	}
	u, err := d.uuid()
	if err != nil {
		return nil, err
	}
	m.Cookie = ObjectCookie(u)
	return m, nil
}

func (m DestroyObjectReply) encodeTo(e *messageEncoder) error {
	e.varintU32(m.Serial)
	e.u8(uint8(m.Result))
	return nil
}

func decodeDestroyObjectReply(d *messageDecoder) (Message, error) {
	m := DestroyObjectReply{}
	var err error
	if m.Serial, err = d.varintU32(); err != nil {
		return nil, err
	}
	b, err := d.u8()
	if err != nil {
		return nil, err
	}
	if b > uint8(DestroyObjectForeignObject) {
		return nil, ErrInvalidDiscriminant
	}
	m.Result = DestroyObjectResult(b)
	return m, nil
}

func (m QueryObject) encodeTo(e *messageEncoder) error {
	e.varintU32(m.Serial)
	e.uuid(uuid.UUID(m.UUID))
	e.bool(m.WithServices)
	return nil
}

func decodeQueryObject(d *messageDecoder) (Message, error) {
	m := QueryObject{}
	var err error
	if m.Serial, err = d.varintU32(); err != nil {
		return nil, err
	}
	u, err := d.uuid()
	if err != nil {
		return nil, err
	}
	m.UUID = ObjectUUID(u)
	if m.WithServices, err = d.bool(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m QueryObjectReply) encodeTo(e *messageEncoder) error {
	e.varintU32(m.Serial)
	e.u8(uint8(m.Result))
	switch m.Result {
	case QueryObjectOk:
		e.uuid(uuid.UUID(m.ObjectCookie))
	case QueryObjectService:
		e.uuid(uuid.UUID(m.ServiceUUID))
		e.uuid(uuid.UUID(m.ServiceCookie))
	}
	return nil
}

func decodeQueryObjectReply(d *messageDecoder) (Message, error) {
	m := QueryObjectReply{}
	var err error
	if m.Serial, err = d.varintU32(); err != nil {
		return nil, err
	}
	b, err := d.u8()
	if err != nil {
		return nil, err
	}
	if b > uint8(QueryObjectDone) {
		return nil, ErrInvalidDiscriminant
	}
	m.Result = QueryObjectResult(b)
	switch m.Result {
	case QueryObjectOk:
		u, err := d.uuid()
		if err != nil {
			return nil, err
		}
		m.ObjectCookie = ObjectCookie(u)
	case QueryObjectService:
		u, err := d.uuid()
		if err != nil {
			return nil, err
		}
		m.ServiceUUID = ServiceUUID(u)
		if u, err = d.uuid(); err != nil {
			return nil, err
		}
		m.ServiceCookie = ServiceCookie(u)
	}
	return m, nil
}
