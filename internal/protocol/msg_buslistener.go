package protocol

import "github.com/google/uuid"

// BusListenerScope selects which lifecycle events a started listener
// receives.
type BusListenerScope uint8

const (
	ScopeCurrentOnly BusListenerScope = 0
	ScopeNewOnly     BusListenerScope = 1
	ScopeAll         BusListenerScope = 2
)

// IncludesCurrent reports whether starting with this scope emits a
// snapshot of existing objects and services.
func (s BusListenerScope) IncludesCurrent() bool {
	return s == ScopeCurrentOnly || s == ScopeAll
}

// IncludesNew reports whether this scope subscribes to live lifecycle
// events.
func (s BusListenerScope) IncludesNew() bool {
	return s == ScopeNewOnly || s == ScopeAll
}

func (s BusListenerScope) String() string {
	switch s {
	case ScopeCurrentOnly:
		return "current-only"
	case ScopeNewOnly:
		return "new-only"
	default:
		return "all"
	}
}

// BusListenerFilter matches objects and services by UUID. A nil UUID
// field is a wildcard. Filters on a listener compose by disjunction.
type BusListenerFilter struct {
	// Service distinguishes service filters from object filters: an
	// object filter never matches services.
	Service     bool
	Object      *ObjectUUID
	ServiceUUID *ServiceUUID
}

// ObjectFilter matches objects; a nil uuid matches every object.
func ObjectFilter(u *ObjectUUID) BusListenerFilter {
	return BusListenerFilter{Object: u}
}

// ServiceFilter matches services; nil fields are wildcards.
func ServiceFilter(obj *ObjectUUID, svc *ServiceUUID) BusListenerFilter {
	return BusListenerFilter{Service: true, Object: obj, ServiceUUID: svc}
}

// MatchesObject reports whether the filter matches an object creation
// or destruction.
func (f BusListenerFilter) MatchesObject(id ObjectID) bool {
	if f.Service {
		return false
	}
	return f.Object == nil || *f.Object == id.UUID
}

// MatchesService reports whether the filter matches a service creation
// or destruction.
func (f BusListenerFilter) MatchesService(id ServiceID) bool {
	if !f.Service {
		return false
	}
	if f.Object != nil && *f.Object != id.Object.UUID {
		return false
	}
	return f.ServiceUUID == nil || *f.ServiceUUID == id.UUID
}

// BusEventKind discriminates BusEvent.
type BusEventKind uint8

const (
	BusEventObjectCreated BusEventKind = iota
	BusEventObjectDestroyed
	BusEventServiceCreated
	BusEventServiceDestroyed
)

// BusEvent is one object or service lifecycle event.
type BusEvent struct {
	Kind    BusEventKind
	Object  ObjectID  // object events
	Service ServiceID // service events
}

func ObjectCreatedEvent(id ObjectID) BusEvent {
	return BusEvent{Kind: BusEventObjectCreated, Object: id}
}

func ObjectDestroyedEvent(id ObjectID) BusEvent {
	return BusEvent{Kind: BusEventObjectDestroyed, Object: id}
}

func ServiceCreatedEvent(id ServiceID) BusEvent {
	return BusEvent{Kind: BusEventServiceCreated, Service: id}
}

func ServiceDestroyedEvent(id ServiceID) BusEvent {
	return BusEvent{Kind: BusEventServiceDestroyed, Service: id}
}

// Matches applies a filter to the event's subject.
func (ev BusEvent) Matches(f BusListenerFilter) bool {
	switch ev.Kind {
	case BusEventObjectCreated, BusEventObjectDestroyed:
		return f.MatchesObject(ev.Object)
	default:
		return f.MatchesService(ev.Service)
	}
}

// CreateBusListener allocates a listener owned by the sending
// connection.
type CreateBusListener struct {
	Serial uint32
}

type CreateBusListenerReply struct {
	Serial uint32
	Cookie BusListenerCookie
}

// DestroyBusListener removes a listener.
type DestroyBusListener struct {
	Serial uint32
	Cookie BusListenerCookie
}

// DestroyBusListenerResult discriminates DestroyBusListenerReply.
type DestroyBusListenerResult uint8

const (
	DestroyBusListenerOk DestroyBusListenerResult = iota
	DestroyBusListenerInvalid
)

type DestroyBusListenerReply struct {
	Serial uint32
	Result DestroyBusListenerResult
}

// AddBusListenerFilter adds one filter; duplicates are idempotent.
type AddBusListenerFilter struct {
	Cookie BusListenerCookie
	Filter BusListenerFilter
}

// RemoveBusListenerFilter removes one filter if present.
type RemoveBusListenerFilter struct {
	Cookie BusListenerCookie
	Filter BusListenerFilter
}

// ClearBusListenerFilters drops every filter of a listener.
type ClearBusListenerFilters struct {
	Cookie BusListenerCookie
}

// StartBusListener starts emitting events for a listener.
type StartBusListener struct {
	Serial uint32
	Cookie BusListenerCookie
	Scope  BusListenerScope
}

// StartBusListenerResult discriminates StartBusListenerReply.
type StartBusListenerResult uint8

const (
	StartBusListenerOk StartBusListenerResult = iota
	StartBusListenerInvalid
	StartBusListenerAlreadyStarted
)

type StartBusListenerReply struct {
	Serial uint32
	Result StartBusListenerResult
}

// StopBusListener stops a started listener.
type StopBusListener struct {
	Serial uint32
	Cookie BusListenerCookie
}

// StopBusListenerResult discriminates StopBusListenerReply.
type StopBusListenerResult uint8

const (
	StopBusListenerOk StopBusListenerResult = iota
	StopBusListenerInvalid
	StopBusListenerNotStarted
)

type StopBusListenerReply struct {
	Serial uint32
	Result StopBusListenerResult
}

// EmitBusEvent delivers one lifecycle event. The cookie is present for
// snapshot events targeted at a single listener and absent for live
// events, which the client matches against all its started listeners.
type EmitBusEvent struct {
	Cookie *BusListenerCookie
	Event  BusEvent
}

// BusListenerCurrentFinished terminates the snapshot of one start call.
type BusListenerCurrentFinished struct {
	Cookie BusListenerCookie
}

func (CreateBusListener) MessageKind() Kind       { return KindCreateBusListener }
func (CreateBusListenerReply) MessageKind() Kind  { return KindCreateBusListenerReply }
func (DestroyBusListener) MessageKind() Kind      { return KindDestroyBusListener }
func (DestroyBusListenerReply) MessageKind() Kind { return KindDestroyBusListenerReply }
func (AddBusListenerFilter) MessageKind() Kind    { return KindAddBusListenerFilter }
func (RemoveBusListenerFilter) MessageKind() Kind { return KindRemoveBusListenerFilter }
func (ClearBusListenerFilters) MessageKind() Kind { return KindClearBusListenerFilters }
func (StartBusListener) MessageKind() Kind        { return KindStartBusListener }
func (StartBusListenerReply) MessageKind() Kind   { return KindStartBusListenerReply }
func (StopBusListener) MessageKind() Kind         { return KindStopBusListener }
func (StopBusListenerReply) MessageKind() Kind    { return KindStopBusListenerReply }
func (EmitBusEvent) MessageKind() Kind            { return KindEmitBusEvent }
func (BusListenerCurrentFinished) MessageKind() Kind {
	return KindBusListenerCurrentFinished
}

const (
	filterTagObject  = 0
	filterTagService = 1
)

func (e *messageEncoder) busListenerFilter(f BusListenerFilter) {
	if f.Service {
		e.u8(filterTagService)
		e.optionalUUID(f.Object == nil, func() uuid.UUID { return uuid.UUID(*f.Object) })
		e.optionalUUID(f.ServiceUUID == nil, func() uuid.UUID { return uuid.UUID(*f.ServiceUUID) })
	} else {
		e.u8(filterTagObject)
		e.optionalUUID(f.Object == nil, func() uuid.UUID { return uuid.UUID(*f.Object) })
	}
}

func (e *messageEncoder) optionalUUID(absent bool, get func() uuid.UUID) {
	if absent {
		e.u8(0)
	} else {
		e.u8(1)
		e.uuid(get())
	}
}

func (d *messageDecoder) optionalUUID() (*uuid.UUID, error) {
	b, err := d.u8()
	if err != nil {
		return nil, err
	}
	switch b {
	case 0:
		return nil, nil
	case 1:
		u, err := d.uuid()
		if err != nil {
			return nil, err
		}
		return &u, nil
	default:
		return nil, ErrInvalidDiscriminant
	}
}

func (d *messageDecoder) busListenerFilter() (BusListenerFilter, error) {
	tag, err := d.u8()
	if err != nil {
		return BusListenerFilter{}, err
	}
	var f BusListenerFilter
	switch tag {
	case filterTagObject:
		u, err := d.optionalUUID()
		if err != nil {
			return BusListenerFilter{}, err
		}
		if u != nil {
			obj := ObjectUUID(*u)
			f.Object = &obj
		}
	case filterTagService:
		f.Service = true
		u, err := d.optionalUUID()
		if err != nil {
			return BusListenerFilter{}, err
		}
		if u != nil {
			obj := ObjectUUID(*u)
			f.Object = &obj
		}
		if u, err = d.optionalUUID(); err != nil {
			return BusListenerFilter{}, err
		}
		if u != nil {
			svc := ServiceUUID(*u)
			f.ServiceUUID = &svc
		}
	default:
		return BusListenerFilter{}, ErrInvalidDiscriminant
	}
	return f, nil
}

func (e *messageEncoder) busEvent(ev BusEvent) {
	e.u8(uint8(ev.Kind))
	switch ev.Kind {
	case BusEventObjectCreated, BusEventObjectDestroyed:
		e.uuid(uuid.UUID(ev.Object.UUID))
		e.uuid(uuid.UUID(ev.Object.Cookie))
	default:
		e.uuid(uuid.UUID(ev.Service.Object.UUID))
		e.uuid(uuid.UUID(ev.Service.Object.Cookie))
		e.uuid(uuid.UUID(ev.Service.UUID))
		e.uuid(uuid.UUID(ev.Service.Cookie))
	}
}

func (d *messageDecoder) busEvent() (BusEvent, error) {
	tag, err := d.u8()
	if err != nil {
		return BusEvent{}, err
	}
	if tag > uint8(BusEventServiceDestroyed) {
		return BusEvent{}, ErrInvalidDiscriminant
	}
	ev := BusEvent{Kind: BusEventKind(tag)}
	switch ev.Kind {
	case BusEventObjectCreated, BusEventObjectDestroyed:
		u, err := d.uuid()
		if err != nil {
			return BusEvent{}, err
		}
		ev.Object.UUID = ObjectUUID(u)
		if u, err = d.uuid(); err != nil {
			return BusEvent{}, err
		}
		ev.Object.Cookie = ObjectCookie(u)
	default:
		u, err := d.uuid()
		if err != nil {
			return BusEvent{}, err
		}
		ev.Service.Object.UUID = ObjectUUID(u)
		if u, err = d.uuid(); err != nil {
			return BusEvent{}, err
		}
		ev.Service.Object.Cookie = ObjectCookie(u)
		if u, err = d.uuid(); err != nil {
			return BusEvent{}, err
		}
		ev.Service.UUID = ServiceUUID(u)
		if u, err = d.uuid(); err != nil {
			return BusEvent{}, err
		}
		ev.Service.Cookie = ServiceCookie(u)
	}
	return ev, nil
}

func (m CreateBusListener) encodeTo(e *messageEncoder) error {
	e.varintU32(m.Serial)
	return nil
}

func decodeCreateBusListener(d *messageDecoder) (Message, error) {
	serial, err := d.varintU32()
	if err != nil {
		return nil, err
	}
	return CreateBusListener{Serial: serial}, nil
}

func (m CreateBusListenerReply) encodeTo(e *messageEncoder) error {
	e.varintU32(m.Serial)
	e.uuid(uuid.UUID(m.Cookie))
	return nil
}

func decodeCreateBusListenerReply(d *messageDecoder) (Message, error) {
	m := CreateBusListenerReply{}
	var err error
	if m.Serial, err = d.varintU32(); err != nil {
		return nil, err
	}
	u, err := d.uuid()
	if err != nil {
		return nil, err
	}
	m.Cookie = BusListenerCookie(u)
	return m, nil
}

func (m DestroyBusListener) encodeTo(e *messageEncoder) error {
	e.varintU32(m.Serial)
	e.uuid(uuid.UUID(m.Cookie))
	return nil
}

func decodeDestroyBusListener(d *messageDecoder) (Message, error) {
	m := DestroyBusListener{}
	var err error
	if m.Serial, err = d.varintU32(); err != nil {
		return nil, err
	}
	u, err := d.uuid()
	if err != nil {
		return nil, err
	}
	m.Cookie = BusListenerCookie(u)
	return m, nil
}

func (m DestroyBusListenerReply) encodeTo(e *messageEncoder) error {
	e.varintU32(m.Serial)
	e.u8(uint8(m.Result))
	return nil
}

func decodeDestroyBusListenerReply(d *messageDecoder) (Message, error) {
	m := DestroyBusListenerReply{}
	var err error
	if m.Serial, err = d.varintU32(); err != nil {
		return nil, err
	}
	b, err := d.u8()
	if err != nil {
		return nil, err
	}
	if b > uint8(DestroyBusListenerInvalid) {
		return nil, ErrInvalidDiscriminant
	}
	m.Result = DestroyBusListenerResult(b)
	return m, nil
}

func (m AddBusListenerFilter) encodeTo(e *messageEncoder) error {
	e.uuid(uuid.UUID(m.Cookie))
	e.busListenerFilter(m.Filter)
	return nil
}

func decodeAddBusListenerFilter(d *messageDecoder) (Message, error) {
	m := AddBusListenerFilter{}
	u, err := d.uuid()
	if err != nil {
		return nil, err
	}
	m.Cookie = BusListenerCookie(u)
	if m.Filter, err = d.busListenerFilter(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m RemoveBusListenerFilter) encodeTo(e *messageEncoder) error {
	e.uuid(uuid.UUID(m.Cookie))
	e.busListenerFilter(m.Filter)
	return nil
}

func decodeRemoveBusListenerFilter(d *messageDecoder) (Message, error) {
	m := RemoveBusListenerFilter{}
	u, err := d.uuid()
	if err != nil {
		return nil, err
	}
	m.Cookie = BusListenerCookie(u)
	if m.Filter, err = d.busListenerFilter(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m ClearBusListenerFilters) encodeTo(e *messageEncoder) error {
	e.uuid(uuid.UUID(m.Cookie))
	return nil
}

func decodeClearBusListenerFilters(d *messageDecoder) (Message, error) {
	u, err := d.uuid()
	if err != nil {
		return nil, err
	}
	return ClearBusListenerFilters{Cookie: BusListenerCookie(u)}, nil
}

func (m StartBusListener) encodeTo(e *messageEncoder) error {
	e.varintU32(m.Serial)
	e.uuid(uuid.UUID(m.Cookie))
	e.u8(uint8(m.Scope))
	return nil
}

func decodeStartBusListener(d *messageDecoder) (Message, error) {
	m := StartBusListener{}
	var err error
	if m.Serial, err = d.varintU32(); err != nil {
		return nil, err
	}
	u, err := d.uuid()
	if err != nil {
		return nil, err
	}
	m.Cookie = BusListenerCookie(u)
	b, err := d.u8()
	if err != nil {
		return nil, err
	}
	if b > uint8(ScopeAll) {
		return nil, ErrInvalidDiscriminant
	}
	m.Scope = BusListenerScope(b)
	return m, nil
}

func (m StartBusListenerReply) encodeTo(e *messageEncoder) error {
	e.varintU32(m.Serial)
	e.u8(uint8(m.Result))
	return nil
}

func decodeStartBusListenerReply(d *messageDecoder) (Message, error) {
	m := StartBusListenerReply{}
	var err error
	if m.Serial, err = d.varintU32(); err != nil {
		return nil, err
	}
	b, err := d.u8()
	if err != nil {
		return nil, err
	}
	if b > uint8(StartBusListenerAlreadyStarted) {
		return nil, ErrInvalidDiscriminant
	}
	m.Result = StartBusListenerResult(b)
	return m, nil
}

func (m StopBusListener) encodeTo(e *messageEncoder) error {
	e.varintU32(m.Serial)
	e.uuid(uuid.UUID(m.Cookie))
	return nil
}

func decodeStopBusListener(d *messageDecoder) (Message, error) {
	m := StopBusListener{}
	var err error
	if m.Serial, err = d.varintU32(); err != nil {
		return nil, err
	}
	u, err := d.uuid()
	if err != nil {
		return nil, err
	}
	m.Cookie = BusListenerCookie(u)
	return m, nil
}

func (m StopBusListenerReply) encodeTo(e *messageEncoder) error {
	e.varintU32(m.Serial)
	e.u8(uint8(m.Result))
	return nil
}

func decodeStopBusListenerReply(d *messageDecoder) (Message, error) {
	m := StopBusListenerReply{}
	var err error
	if m.Serial, err = d.varintU32(); err != nil {
		return nil, err
	}
	b, err := d.u8()
	if err != nil {
		return nil, err
	}
	if b > uint8(StopBusListenerNotStarted) {
		return nil, ErrInvalidDiscriminant
	}
	m.Result = StopBusListenerResult(b)
	return m, nil
}

func (m EmitBusEvent) encodeTo(e *messageEncoder) error {
	e.optionalUUID(m.Cookie == nil, func() uuid.UUID { return uuid.UUID(*m.Cookie) })
	e.busEvent(m.Event)
	return nil
}

func decodeEmitBusEvent(d *messageDecoder) (Message, error) {
	m := EmitBusEvent{}
	u, err := d.optionalUUID()
	if err != nil {
		return nil, err
	}
	if u != nil {
		c := BusListenerCookie(*u)
		m.Cookie = &c
	}
	if m.Event, err = d.busEvent(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m BusListenerCurrentFinished) encodeTo(e *messageEncoder) error {
	e.uuid(uuid.UUID(m.Cookie))
	return nil
}

func decodeBusListenerCurrentFinished(d *messageDecoder) (Message, error) {
	u, err := d.uuid()
	if err != nil {
		return nil, err
	}
	return BusListenerCurrentFinished{Cookie: BusListenerCookie(u)}, nil
}
