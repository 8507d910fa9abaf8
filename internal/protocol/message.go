package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/google/uuid"
)

// Kind discriminates every protocol message. The set is closed: decoding
// a byte outside it is a protocol violation.
type Kind uint8

const (
	KindConnect                    Kind = 0
	KindConnectReply               Kind = 1
	KindShutdown                   Kind = 2
	KindCreateObject               Kind = 3
	KindCreateObjectReply          Kind = 4
	KindDestroyObject              Kind = 5
	KindDestroyObjectReply         Kind = 6
	KindCreateService              Kind = 7
	KindCreateServiceReply         Kind = 8
	KindDestroyService             Kind = 9
	KindDestroyServiceReply        Kind = 10
	KindCallFunction               Kind = 11
	KindCallFunctionReply          Kind = 12
	KindSubscribeEvent             Kind = 13
	KindSubscribeEventReply        Kind = 14
	KindUnsubscribeEvent           Kind = 15
	KindEmitEvent                  Kind = 16
	KindQueryObject                Kind = 17
	KindQueryObjectReply           Kind = 18
	KindQueryServiceVersion        Kind = 19
	KindQueryServiceVersionReply   Kind = 20
	KindCreateChannel              Kind = 21
	KindCreateChannelReply         Kind = 22
	KindCloseChannelEnd            Kind = 23
	KindCloseChannelEndReply       Kind = 24
	KindChannelEndClosed           Kind = 25
	KindClaimChannelEnd            Kind = 26
	KindClaimChannelEndReply       Kind = 27
	KindChannelEndClaimed          Kind = 28
	KindSendItem                   Kind = 29
	KindItemReceived               Kind = 30
	KindAddChannelCapacity         Kind = 31
	KindSync                       Kind = 32
	KindSyncReply                  Kind = 33
	KindServiceDestroyed           Kind = 34
	KindCreateBusListener          Kind = 35
	KindCreateBusListenerReply     Kind = 36
	KindDestroyBusListener         Kind = 37
	KindDestroyBusListenerReply    Kind = 38
	KindAddBusListenerFilter       Kind = 39
	KindRemoveBusListenerFilter    Kind = 40
	KindClearBusListenerFilters    Kind = 41
	KindStartBusListener           Kind = 42
	KindStartBusListenerReply      Kind = 43
	KindStopBusListener            Kind = 44
	KindStopBusListenerReply       Kind = 45
	KindEmitBusEvent               Kind = 46
	KindBusListenerCurrentFinished Kind = 47
	KindConnect2                   Kind = 48
	KindConnectReply2              Kind = 49
	KindAbortFunctionCall          Kind = 50
	KindCallFunction2              Kind = 51
	KindQueryIntrospection         Kind = 52
	KindQueryIntrospectionReply    Kind = 53
	KindCreateService2             Kind = 54
	KindQueryServiceInfo           Kind = 55
	KindQueryServiceInfoReply      Kind = 56
	KindSubscribeService           Kind = 57
	KindSubscribeServiceReply      Kind = 58
	KindUnsubscribeService         Kind = 59
	KindSubscribeAllEvents         Kind = 60
	KindSubscribeAllEventsReply    Kind = 61
	KindUnsubscribeAllEvents       Kind = 62
	KindUnsubscribeAllEventsReply  Kind = 63
)

const numKinds = 64

var kindNames = [numKinds]string{
	"connect", "connect-reply", "shutdown", "create-object",
	"create-object-reply", "destroy-object", "destroy-object-reply",
	"create-service", "create-service-reply", "destroy-service",
	"destroy-service-reply", "call-function", "call-function-reply",
	"subscribe-event", "subscribe-event-reply", "unsubscribe-event",
	"emit-event", "query-object", "query-object-reply",
	"query-service-version", "query-service-version-reply",
	"create-channel", "create-channel-reply", "close-channel-end",
	"close-channel-end-reply", "channel-end-closed", "claim-channel-end",
	"claim-channel-end-reply", "channel-end-claimed", "send-item",
	"item-received", "add-channel-capacity", "sync", "sync-reply",
	"service-destroyed", "create-bus-listener", "create-bus-listener-reply",
	"destroy-bus-listener", "destroy-bus-listener-reply",
	"add-bus-listener-filter", "remove-bus-listener-filter",
	"clear-bus-listener-filters", "start-bus-listener",
	"start-bus-listener-reply", "stop-bus-listener",
	"stop-bus-listener-reply", "emit-bus-event",
	"bus-listener-current-finished", "connect2", "connect-reply2",
	"abort-function-call", "call-function2", "query-introspection",
	"query-introspection-reply", "create-service2", "query-service-info",
	"query-service-info-reply", "subscribe-service",
	"subscribe-service-reply", "unsubscribe-service",
	"subscribe-all-events", "subscribe-all-events-reply",
	"unsubscribe-all-events", "unsubscribe-all-events-reply",
}

func (k Kind) String() string {
	if int(k) < numKinds {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// HasValue reports whether messages of this kind embed a serialized
// value.
func (k Kind) HasValue() bool {
	switch k {
	case KindConnect, KindConnectReply, KindCallFunction,
		KindCallFunctionReply, KindEmitEvent, KindSendItem,
		KindItemReceived, KindConnect2, KindConnectReply2,
		KindCallFunction2, KindQueryIntrospectionReply,
		KindCreateService2, KindQueryServiceInfoReply:
		return true
	default:
		return false
	}
}

// Message is one protocol message. Concrete types live in the msg_*.go
// files of this package.
type Message interface {
	MessageKind() Kind
	encodeTo(e *messageEncoder) error
}

// EncodeMessage frames m: u32 LE total length, kind byte, then the
// kind-dependent payload.
func EncodeMessage(m Message) ([]byte, error) {
	e := &messageEncoder{}
	e.buf.Write([]byte{0, 0, 0, 0})
	e.buf.WriteByte(byte(m.MessageKind()))
	if err := m.encodeTo(e); err != nil {
		return nil, err
	}
	out := e.buf.Bytes()
	if len(out) > math.MaxUint32 {
		return nil, ErrOverflow
	}
	binary.LittleEndian.PutUint32(out[:4], uint32(len(out)))
	return out, nil
}

// DecodeMessage parses one whole frame, validating the length prefix,
// the kind and tail-emptiness.
func DecodeMessage(frame []byte) (Message, error) {
	if len(frame) < 5 {
		return nil, ErrInvalidMessage
	}
	if binary.LittleEndian.Uint32(frame[:4]) != uint32(len(frame)) {
		return nil, ErrInvalidMessage
	}
	kind := Kind(frame[4])
	if int(kind) >= numKinds {
		return nil, ErrUnknownKind
	}
	d := &messageDecoder{r: wireReader{buf: frame, pos: 5}}
	if kind.HasValue() {
		vlen, err := d.r.tryU32LE()
		if err != nil {
			return nil, ErrInvalidMessage
		}
		value, err := d.r.tryBytes(int(vlen))
		if err != nil {
			return nil, ErrInvalidMessage
		}
		d.value = value
	}
	m, err := decodeFuncs[kind](d)
	if err != nil {
		return nil, err
	}
	if d.r.remaining() != 0 {
		return nil, ErrTrailingMessage
	}
	return m, nil
}

// messageEncoder appends the kind-dependent payload after the frame
// header. Value-bearing kinds write the value length and bytes first,
// then the trailing fields.
type messageEncoder struct {
	buf bytes.Buffer
}

func (e *messageEncoder) value(v SerializedValue) error {
	if len(v) == 0 {
		v = EmptySerializedValue()
	}
	if len(v) > math.MaxUint32 {
		return ErrOverflow
	}
	putU32LE(&e.buf, uint32(len(v)))
	e.buf.Write(v)
	return nil
}

func (e *messageEncoder) u8(v uint8)         { e.buf.WriteByte(v) }
func (e *messageEncoder) varintU32(v uint32) { putVarintU32(&e.buf, v) }
func (e *messageEncoder) uuid(u uuid.UUID)   { putUUID(&e.buf, u) }

func (e *messageEncoder) bool(v bool) {
	if v {
		e.buf.WriteByte(1)
	} else {
		e.buf.WriteByte(0)
	}
}

// optionalSerial encodes broker-originated requests that carry no
// serial (e.g. forwarded SubscribeEvent) as a one-byte None.
func (e *messageEncoder) optionalSerial(serial *uint32) {
	if serial == nil {
		e.u8(0)
	} else {
		e.u8(1)
		e.varintU32(*serial)
	}
}

func (e *messageEncoder) channelEnd(end ChannelEnd) { e.u8(uint8(end)) }

func (e *messageEncoder) channelEndWithCapacity(end ChannelEndWithCapacity) {
	e.u8(uint8(end.End))
	if end.End == ReceiverEnd {
		e.varintU32(end.Capacity)
	}
}

// messageDecoder parses the payload of one frame.
type messageDecoder struct {
	r     wireReader
	value SerializedValueSlice
}

func (d *messageDecoder) u8() (uint8, error)         { return d.r.tryU8() }
func (d *messageDecoder) varintU32() (uint32, error) { return d.r.tryVarintU32() }
func (d *messageDecoder) uuid() (uuid.UUID, error)   { return d.r.tryUUID() }

func (d *messageDecoder) bool() (bool, error) {
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
		return false, ErrInvalidDiscriminant
	}
}

func (d *messageDecoder) optionalSerial() (*uint32, error) {
	b, err := d.r.tryU8()
	if err != nil {
		return nil, err
	}
	switch b {
	case 0:
		return nil, nil
	case 1:
		v, err := d.r.tryVarintU32()
		if err != nil {
			return nil, err
		}
		return &v, nil
	default:
		return nil, ErrInvalidDiscriminant
	}
}

func (d *messageDecoder) channelEnd() (ChannelEnd, error) {
	b, err := d.r.tryU8()
	if err != nil {
		return 0, err
	}
	if b > uint8(ReceiverEnd) {
		return 0, ErrInvalidDiscriminant
	}
	return ChannelEnd(b), nil
}

func (d *messageDecoder) channelEndWithCapacity() (ChannelEndWithCapacity, error) {
	end, err := d.channelEnd()
	if err != nil {
		return ChannelEndWithCapacity{}, err
	}
	out := ChannelEndWithCapacity{End: end}
	if end == ReceiverEnd {
		if out.Capacity, err = d.r.tryVarintU32(); err != nil {
			return ChannelEndWithCapacity{}, err
		}
	}
	return out, nil
}

// ownedValue hands the embedded value to the decoded message. Frames
// are per-message buffers, so holding the slice is safe; broker-side
// forwarding reuses it without copying.
func (d *messageDecoder) ownedValue() SerializedValue {
	return SerializedValue(d.value)
}

type decodeFunc func(*messageDecoder) (Message, error)

var decodeFuncs = [numKinds]decodeFunc{
	KindConnect:                    decodeConnect,
	KindConnectReply:               decodeConnectReply,
	KindShutdown:                   decodeShutdown,
	KindCreateObject:               decodeCreateObject,
	KindCreateObjectReply:          decodeCreateObjectReply,
	KindDestroyObject:              decodeDestroyObject,
	KindDestroyObjectReply:         decodeDestroyObjectReply,
	KindCreateService:              decodeCreateService,
	KindCreateServiceReply:         decodeCreateServiceReply,
	KindDestroyService:             decodeDestroyService,
	KindDestroyServiceReply:        decodeDestroyServiceReply,
	KindCallFunction:               decodeCallFunction,
	KindCallFunctionReply:          decodeCallFunctionReply,
	KindSubscribeEvent:             decodeSubscribeEvent,
	KindSubscribeEventReply:        decodeSubscribeEventReply,
	KindUnsubscribeEvent:           decodeUnsubscribeEvent,
	KindEmitEvent:                  decodeEmitEvent,
	KindQueryObject:                decodeQueryObject,
	KindQueryObjectReply:           decodeQueryObjectReply,
	KindQueryServiceVersion:        decodeQueryServiceVersion,
	KindQueryServiceVersionReply:   decodeQueryServiceVersionReply,
	KindCreateChannel:              decodeCreateChannel,
	KindCreateChannelReply:         decodeCreateChannelReply,
	KindCloseChannelEnd:            decodeCloseChannelEnd,
	KindCloseChannelEndReply:       decodeCloseChannelEndReply,
	KindChannelEndClosed:           decodeChannelEndClosed,
	KindClaimChannelEnd:            decodeClaimChannelEnd,
	KindClaimChannelEndReply:       decodeClaimChannelEndReply,
	KindChannelEndClaimed:          decodeChannelEndClaimed,
	KindSendItem:                   decodeSendItem,
	KindItemReceived:               decodeItemReceived,
	KindAddChannelCapacity:         decodeAddChannelCapacity,
	KindSync:                       decodeSync,
	KindSyncReply:                  decodeSyncReply,
	KindServiceDestroyed:           decodeServiceDestroyed,
	KindCreateBusListener:          decodeCreateBusListener,
	KindCreateBusListenerReply:     decodeCreateBusListenerReply,
	KindDestroyBusListener:         decodeDestroyBusListener,
	KindDestroyBusListenerReply:    decodeDestroyBusListenerReply,
	KindAddBusListenerFilter:       decodeAddBusListenerFilter,
	KindRemoveBusListenerFilter:    decodeRemoveBusListenerFilter,
	KindClearBusListenerFilters:    decodeClearBusListenerFilters,
	KindStartBusListener:           decodeStartBusListener,
	KindStartBusListenerReply:      decodeStartBusListenerReply,
	KindStopBusListener:            decodeStopBusListener,
	KindStopBusListenerReply:       decodeStopBusListenerReply,
	KindEmitBusEvent:               decodeEmitBusEvent,
	KindBusListenerCurrentFinished: decodeBusListenerCurrentFinished,
	KindConnect2:                   decodeConnect2,
	KindConnectReply2:              decodeConnectReply2,
	KindAbortFunctionCall:          decodeAbortFunctionCall,
	KindCallFunction2:              decodeCallFunction2,
	KindQueryIntrospection:         decodeQueryIntrospection,
	KindQueryIntrospectionReply:    decodeQueryIntrospectionReply,
	KindCreateService2:             decodeCreateService2,
	KindQueryServiceInfo:           decodeQueryServiceInfo,
	KindQueryServiceInfoReply:      decodeQueryServiceInfoReply,
	KindSubscribeService:           decodeSubscribeService,
	KindSubscribeServiceReply:      decodeSubscribeServiceReply,
	KindUnsubscribeService:         decodeUnsubscribeService,
	KindSubscribeAllEvents:         decodeSubscribeAllEvents,
	KindSubscribeAllEventsReply:    decodeSubscribeAllEventsReply,
	KindUnsubscribeAllEvents:       decodeUnsubscribeAllEvents,
	KindUnsubscribeAllEventsReply:  decodeUnsubscribeAllEventsReply,
}
