package protocol

import "github.com/google/uuid"

// CreateService registers a service on an object with just an interface
// version.
type CreateService struct {
	Serial       uint32
	ObjectCookie ObjectCookie
	UUID         ServiceUUID
	Version      uint32
}

// CreateService2 registers a service with a full ServiceInfo value.
type CreateService2 struct {
	Serial       uint32
	ObjectCookie ObjectCookie
	UUID         ServiceUUID
	Info         SerializedValue // serialized ServiceInfo
}

// CreateServiceResult discriminates CreateServiceReply.
type CreateServiceResult uint8

const (
	CreateServiceOk CreateServiceResult = iota
	CreateServiceDuplicate
	CreateServiceInvalidObject
	CreateServiceForeignObject
)

type CreateServiceReply struct {
	Serial uint32
	Result CreateServiceResult
	Cookie ServiceCookie // set when Result is Ok
}

// DestroyService destroys a service owned by the sending connection.
type DestroyService struct {
	Serial uint32
	Cookie ServiceCookie
}

// DestroyServiceResult discriminates DestroyServiceReply.
type DestroyServiceResult uint8

const (
	DestroyServiceOk DestroyServiceResult = iota
	DestroyServiceInvalidService
	DestroyServiceForeignObject
)

type DestroyServiceReply struct {
	Serial uint32
	Result DestroyServiceResult
}

// QueryServiceVersion asks for the interface version of a service.
type QueryServiceVersion struct {
	Serial uint32
	Cookie ServiceCookie
}

// QueryServiceVersionResult discriminates QueryServiceVersionReply.
type QueryServiceVersionResult uint8

const (
	QueryServiceVersionOk QueryServiceVersionResult = iota
	QueryServiceVersionInvalidService
)

type QueryServiceVersionReply struct {
	Serial  uint32
	Result  QueryServiceVersionResult
	Version uint32 // set when Result is Ok
}

// QueryServiceInfo asks for the full ServiceInfo of a service.
type QueryServiceInfo struct {
	Serial uint32
	Cookie ServiceCookie
}

// QueryServiceInfoResult discriminates QueryServiceInfoReply.
type QueryServiceInfoResult uint8

const (
	QueryServiceInfoOk QueryServiceInfoResult = iota
	QueryServiceInfoInvalidService
)

type QueryServiceInfoReply struct {
	Serial uint32
	Result QueryServiceInfoResult
	Info   SerializedValue // serialized ServiceInfo when Ok
}

// SubscribeService subscribes to destruction notifications of one
// service.
type SubscribeService struct {
	Serial uint32
	Cookie ServiceCookie
}

// SubscribeServiceResult discriminates SubscribeServiceReply.
type SubscribeServiceResult uint8

const (
	SubscribeServiceOk SubscribeServiceResult = iota
	SubscribeServiceInvalidService
)

type SubscribeServiceReply struct {
	Serial uint32
	Result SubscribeServiceResult
}

// UnsubscribeService drops a service-state subscription.
type UnsubscribeService struct {
	Cookie ServiceCookie
}

// ServiceDestroyed notifies a subscribed connection that a service is
// gone.
type ServiceDestroyed struct {
	Cookie ServiceCookie
}

func (CreateService) MessageKind() Kind            { return KindCreateService }
func (CreateService2) MessageKind() Kind           { return KindCreateService2 }
func (CreateServiceReply) MessageKind() Kind       { return KindCreateServiceReply }
func (DestroyService) MessageKind() Kind           { return KindDestroyService }
func (DestroyServiceReply) MessageKind() Kind      { return KindDestroyServiceReply }
func (QueryServiceVersion) MessageKind() Kind      { return KindQueryServiceVersion }
func (QueryServiceVersionReply) MessageKind() Kind { return KindQueryServiceVersionReply }
func (QueryServiceInfo) MessageKind() Kind         { return KindQueryServiceInfo }
func (QueryServiceInfoReply) MessageKind() Kind    { return KindQueryServiceInfoReply }
func (SubscribeService) MessageKind() Kind         { return KindSubscribeService }
func (SubscribeServiceReply) MessageKind() Kind    { return KindSubscribeServiceReply }
func (UnsubscribeService) MessageKind() Kind       { return KindUnsubscribeService }
func (ServiceDestroyed) MessageKind() Kind         { return KindServiceDestroyed }

func (m CreateService) encodeTo(e *messageEncoder) error {
	e.varintU32(m.Serial)
	e.uuid(uuid.UUID(m.ObjectCookie))
	e.uuid(uuid.UUID(m.UUID))
	e.varintU32(m.Version)
	return nil
}

func decodeCreateService(d *messageDecoder) (Message, error) {
	m := CreateService{}
	var err error
	if m.Serial, err = d.varintU32(); err != nil {
		return nil, err
	}
	u, err := d.uuid()
	if err != nil {
		return nil, err
	}
	m.ObjectCookie = ObjectCookie(u)
	if u, err = d.uuid(); err != nil {
		return nil, err
	}
	m.UUID = ServiceUUID(u)
	if m.Version, err = d.varintU32(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m CreateService2) encodeTo(e *messageEncoder) error {
	if err := e.value(m.Info); err != nil {
		return err
	}
	e.varintU32(m.Serial)
	e.uuid(uuid.UUID(m.ObjectCookie))
	e.uuid(uuid.UUID(m.UUID))
	return nil
}

func decodeCreateService2(d *messageDecoder) (Message, error) {
	m := CreateService2{Info: d.ownedValue()}
	var err error
	if m.Serial, err = d.varintU32(); err != nil {
		return nil, err
	}
	u, err := d.uuid()
	if err != nil {
		return nil, err
	}
	m.ObjectCookie = ObjectCookie(u)
	if u, err = d.uuid(); err != nil {
		return nil, err
	}
	m.UUID = ServiceUUID(u)
	return m, nil
}

func (m CreateServiceReply) encodeTo(e *messageEncoder) error {
	e.varintU32(m.Serial)
	e.u8(uint8(m.Result))
	if m.Result == CreateServiceOk {
		e.uuid(uuid.UUID(m.Cookie))
	}
	return nil
}

func decodeCreateServiceReply(d *messageDecoder) (Message, error) {
	m := CreateServiceReply{}
	var err error
	if m.Serial, err = d.varintU32(); err != nil {
		return nil, err
	}
	b, err := d.u8()
	if err != nil {
		return nil, err
	}
	if b > uint8(CreateServiceForeignObject) {
		return nil, ErrInvalidDiscriminant
	}
	m.Result = CreateServiceResult(b)
	if m.Result == CreateServiceOk {
		u, err := d.uuid()
		if err != nil {
			return nil, err
		}
		m.Cookie = ServiceCookie(u)
	}
	return m, nil
}

func (m DestroyService) encodeTo(e *messageEncoder) error {
	e.varintU32(m.Serial)
	e.uuid(uuid.UUID(m.Cookie))
	return nil
}

func decodeDestroyService(d *messageDecoder) (Message, error) {
	m := DestroyService{}
	var err error
	if m.Serial, err = d.varintU32(); err != nil {
		return nil, err
	}
	u, err := d.uuid()
	if err != nil {
		return nil, err
	}
	m.Cookie = ServiceCookie(u)
	return m, nil
}

func (m DestroyServiceReply) encodeTo(e *messageEncoder) error {
	e.varintU32(m.Serial)
	e.u8(uint8(m.Result))
	return nil
}

func decodeDestroyServiceReply(d *messageDecoder) (Message, error) {
	m := DestroyServiceReply{}
	var err error
	if m.Serial, err = d.varintU32(); err != nil {
		return nil, err
	}
	b, err := d.u8()
	if err != nil {
		return nil, err
	}
	if b > uint8(DestroyServiceForeignObject) {
		return nil, ErrInvalidDiscriminant
	}
	m.Result = DestroyServiceResult(b)
	return m, nil
}

func (m QueryServiceVersion) encodeTo(e *messageEncoder) error {
	e.varintU32(m.Serial)
	e.uuid(uuid.UUID(m.Cookie))
	return nil
}

func decodeQueryServiceVersion(d *messageDecoder) (Message, error) {
	m := QueryServiceVersion{}
	var err error
	if m.Serial, err = d.varintU32(); err != nil {
		return nil, err
	}
	u, err := d.uuid()
	if err != nil {
		return nil, err
	}
	m.Cookie = ServiceCookie(u)
	return m, nil
}

func (m QueryServiceVersionReply) encodeTo(e *messageEncoder) error {
	e.varintU32(m.Serial)
	e.u8(uint8(m.Result))
	if m.Result == QueryServiceVersionOk {
		e.varintU32(m.Version)
	}
	return nil
}

func decodeQueryServiceVersionReply(d *messageDecoder) (Message, error) {
	m := QueryServiceVersionReply{}
	var err error
	if m.Serial, err = d.varintU32(); err != nil {
		return nil, err
	}
	b, err := d.u8()
	if err != nil {
		return nil, err
	}
	if b > uint8(QueryServiceVersionInvalidService) {
		return nil, ErrInvalidDiscriminant
	}
	m.Result = QueryServiceVersionResult(b)
	if m.Result == QueryServiceVersionOk {
		if m.Version, err = d.varintU32(); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m QueryServiceInfo) encodeTo(e *messageEncoder) error {
	e.varintU32(m.Serial)
	e.uuid(uuid.UUID(m.Cookie))
	return nil
}

func decodeQueryServiceInfo(d *messageDecoder) (Message, error) {
	m := QueryServiceInfo{}
	var err error
	if m.Serial, err = d.varintU32(); err != nil {
		return nil, err
	}
	u, err := d.uuid()
	if err != nil {
		return nil, err
	}
	m.Cookie = ServiceCookie(u)
	return m, nil
}

func (m QueryServiceInfoReply) encodeTo(e *messageEncoder) error {
	if err := e.value(m.Info); err != nil {
		return err
	}
	e.varintU32(m.Serial)
	e.u8(uint8(m.Result))
	return nil
}

func decodeQueryServiceInfoReply(d *messageDecoder) (Message, error) {
	m := QueryServiceInfoReply{Info: d.ownedValue()}
	var err error
	if m.Serial, err = d.varintU32(); err != nil {
		return nil, err
	}
	b, err := d.u8()
	if err != nil {
		return nil, err
	}
	if b > uint8(QueryServiceInfoInvalidService) {
		return nil, ErrInvalidDiscriminant
	}
	m.Result = QueryServiceInfoResult(b)
	return m, nil
}

func (m SubscribeService) encodeTo(e *messageEncoder) error {
	e.varintU32(m.Serial)
	e.uuid(uuid.UUID(m.Cookie))
	return nil
}

func decodeSubscribeService(d *messageDecoder) (Message, error) {
	m := SubscribeService{}
	var err error
	if m.Serial, err = d.varintU32(); err != nil {
		return nil, err
	}
	u, err := d.uuid()
	if err != nil {
		return nil, err
	}
	m.Cookie = ServiceCookie(u)
	return m, nil
}

func (m SubscribeServiceReply) encodeTo(e *messageEncoder) error {
	e.varintU32(m.Serial)
	e.u8(uint8(m.Result))
	return nil
}

func decodeSubscribeServiceReply(d *messageDecoder) (Message, error) {
	m := SubscribeServiceReply{}
	var err error
	if m.Serial, err = d.varintU32(); err != nil {
		return nil, err
	}
	b, err := d.u8()
	if err != nil {
		return nil, err
	}
	if b > uint8(SubscribeServiceInvalidService) {
		return nil, ErrInvalidDiscriminant
	}
	m.Result = SubscribeServiceResult(b)
	return m, nil
}

func (m UnsubscribeService) encodeTo(e *messageEncoder) error {
	e.uuid(uuid.UUID(m.Cookie))
	return nil
}

func decodeUnsubscribeService(d *messageDecoder) (Message, error) {
	u, err := d.uuid()
	if err != nil {
		return nil, err
	}
	return UnsubscribeService{Cookie: ServiceCookie(u)}, nil
}

func (m ServiceDestroyed) encodeTo(e *messageEncoder) error {
	e.uuid(uuid.UUID(m.Cookie))
	return nil
}

func decodeServiceDestroyed(d *messageDecoder) (Message, error) {
	u, err := d.uuid()
	if err != nil {
		return nil, err
	}
	return ServiceDestroyed{Cookie: ServiceCookie(u)}, nil
}
