package protocol

import "github.com/google/uuid"

// SubscribeEvent subscribes the sending connection to one event of a
// service. The serial is absent when the broker forwards the first
// subscription to the service owner.
type SubscribeEvent struct {
	Serial *uint32
	Cookie ServiceCookie
	Event  uint32
}

// SubscribeEventResult discriminates SubscribeEventReply.
type SubscribeEventResult uint8

const (
	SubscribeEventOk SubscribeEventResult = iota
	SubscribeEventInvalidService
)

type SubscribeEventReply struct {
	Serial uint32
	Result SubscribeEventResult
}

// UnsubscribeEvent drops an event subscription. Forwarded to the owner
// when the last subscriber leaves.
type UnsubscribeEvent struct {
	Cookie ServiceCookie
	Event  uint32
}

// EmitEvent fans an event out to all matching subscribers.
type EmitEvent struct {
	Cookie ServiceCookie
	Event  uint32
	Value  SerializedValue
}

// SubscribeAllEvents subscribes to every event of a service at once.
type SubscribeAllEvents struct {
	Serial *uint32
	Cookie ServiceCookie
}

// SubscribeAllEventsResult discriminates SubscribeAllEventsReply.
type SubscribeAllEventsResult uint8

const (
	SubscribeAllEventsOk SubscribeAllEventsResult = iota
	SubscribeAllEventsInvalidService
	SubscribeAllEventsNotSupported
)

type SubscribeAllEventsReply struct {
	Serial uint32
	Result SubscribeAllEventsResult
}

// UnsubscribeAllEvents drops an all-events subscription.
type UnsubscribeAllEvents struct {
	Serial *uint32
	Cookie ServiceCookie
}

// UnsubscribeAllEventsResult discriminates UnsubscribeAllEventsReply.
type UnsubscribeAllEventsResult uint8

const (
	UnsubscribeAllEventsOk UnsubscribeAllEventsResult = iota
	UnsubscribeAllEventsInvalidService
	UnsubscribeAllEventsNotSupported
)

type UnsubscribeAllEventsReply struct {
	Serial uint32
	Result UnsubscribeAllEventsResult
}

func (SubscribeEvent) MessageKind() Kind            { return KindSubscribeEvent }
func (SubscribeEventReply) MessageKind() Kind       { return KindSubscribeEventReply }
func (UnsubscribeEvent) MessageKind() Kind          { return KindUnsubscribeEvent }
func (EmitEvent) MessageKind() Kind                 { return KindEmitEvent }
func (SubscribeAllEvents) MessageKind() Kind        { return KindSubscribeAllEvents }
func (SubscribeAllEventsReply) MessageKind() Kind   { return KindSubscribeAllEventsReply }
func (UnsubscribeAllEvents) MessageKind() Kind      { return KindUnsubscribeAllEvents }
func (UnsubscribeAllEventsReply) MessageKind() Kind { return KindUnsubscribeAllEventsReply }

func (m SubscribeEvent) encodeTo(e *messageEncoder) error {
	e.optionalSerial(m.Serial)
	e.uuid(uuid.UUID(m.Cookie))
	e.varintU32(m.Event)
	return nil
}

func decodeSubscribeEvent(d *messageDecoder) (Message, error) {
	m := SubscribeEvent{}
	var err error
	if m.Serial, err = d.optionalSerial(); err != nil {
		return nil, err
	}
	u, err := d.uuid()
	if err != nil {
		return nil, err
	}
	m.Cookie = ServiceCookie(u)
	if m.Event, err = d.varintU32(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m SubscribeEventReply) encodeTo(e *messageEncoder) error {
	e.varintU32(m.Serial)
	e.u8(uint8(m.Result))
	return nil
}

func decodeSubscribeEventReply(d *messageDecoder) (Message, error) {
	m := SubscribeEventReply{}
	var err error
	if m.Serial, err = d.varintU32(); err != nil {
		return nil, err
	}
	b, err := d.u8()
	if err != nil {
		return nil, err
	}
	if b > uint8(SubscribeEventInvalidService) {
		return nil, ErrInvalidDiscriminant
	}
	m.Result = SubscribeEventResult(b)
	return m, nil
}

func (m UnsubscribeEvent) encodeTo(e *messageEncoder) error {
	e.uuid(uuid.UUID(m.Cookie))
	e.varintU32(m.Event)
	return nil
}

func decodeUnsubscribeEvent(d *messageDecoder) (Message, error) {
	m := UnsubscribeEvent{}
	u, err := d.uuid()
	if err != nil {
		return nil, err
	}
	m.Cookie = ServiceCookie(u)
	if m.Event, err = d.varintU32(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m EmitEvent) encodeTo(e *messageEncoder) error {
	if err := e.value(m.Value); err != nil {
		return err
	}
	e.uuid(uuid.UUID(m.Cookie))
	e.varintU32(m.Event)
	return nil
}

func decodeEmitEvent(d *messageDecoder) (Message, error) {
	m := EmitEvent{Value: d.ownedValue()}
	u, err := d.uuid()
	if err != nil {
		return nil, err
	}
	m.Cookie = ServiceCookie(u)
	if m.Event, err = d.varintU32(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m SubscribeAllEvents) encodeTo(e *messageEncoder) error {
	e.optionalSerial(m.Serial)
	e.uuid(uuid.UUID(m.Cookie))
	return nil
}

func decodeSubscribeAllEvents(d *messageDecoder) (Message, error) {
	m := SubscribeAllEvents{}
	var err error
	if m.Serial, err = d.optionalSerial(); err != nil {
		return nil, err
	}
	u, err := d.uuid()
	if err != nil {
		return nil, err
	}
	m.Cookie = ServiceCookie(u)
	return m, nil
}

func (m SubscribeAllEventsReply) encodeTo(e *messageEncoder) error {
	e.varintU32(m.Serial)
	e.u8(uint8(m.Result))
	return nil
}

func decodeSubscribeAllEventsReply(d *messageDecoder) (Message, error) {
	m := SubscribeAllEventsReply{}
	var err error
	if m.Serial, err = d.varintU32(); err != nil {
		return nil, err
	}
	b, err := d.u8()
	if err != nil {
		return nil, err
	}
	if b > uint8(SubscribeAllEventsNotSupported) {
		return nil, ErrInvalidDiscriminant
	}
	m.Result = SubscribeAllEventsResult(b)
	return m, nil
}

func (m UnsubscribeAllEvents) encodeTo(e *messageEncoder) error {
	e.optionalSerial(m.Serial)
	e.uuid(uuid.UUID(m.Cookie))
	return nil
}

func decodeUnsubscribeAllEvents(d *messageDecoder) (Message, error) {
	m := UnsubscribeAllEvents{}
	var err error
	if m.Serial, err = d.optionalSerial(); err != nil {
		return nil, err
	}
	u, err := d.uuid()
	if err != nil {
		return nil, err
	}
	m.Cookie = ServiceCookie(u)
	return m, nil
}

func (m UnsubscribeAllEventsReply) encodeTo(e *messageEncoder) error {
	e.varintU32(m.Serial)
	e.u8(uint8(m.Result))
	return nil
}

func decodeUnsubscribeAllEventsReply(d *messageDecoder) (Message, error) {
	m := UnsubscribeAllEventsReply{}
	var err error
	if m.Serial, err = d.varintU32(); err != nil {
		return nil, err
	}
	b, err := d.u8()
	if err != nil {
		return nil, err
	}
	if b > uint8(UnsubscribeAllEventsNotSupported) {
		return nil, ErrInvalidDiscriminant
	}
	m.Result = UnsubscribeAllEventsResult(b)
	return m, nil
}
