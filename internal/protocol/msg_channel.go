package protocol

import "github.com/google/uuid"

// ChannelEnd names one of the two ends of a channel.
type ChannelEnd uint8

const (
	SenderEnd   ChannelEnd = 0
	ReceiverEnd ChannelEnd = 1
)

func (e ChannelEnd) String() string {
	if e == SenderEnd {
		return "sender"
	}
	return "receiver"
}

// Other returns the opposite end.
func (e ChannelEnd) Other() ChannelEnd {
	if e == SenderEnd {
		return ReceiverEnd
	}
	return SenderEnd
}

// ChannelEndWithCapacity is a channel end that carries the receiver's
// capacity. The capacity field is only on the wire for the receiver.
type ChannelEndWithCapacity struct {
	End      ChannelEnd
	Capacity uint32
}

// CreateChannel creates a channel with the chosen end claimed by the
// creator; the other end starts unclaimed.
type CreateChannel struct {
	Serial uint32
	Claim  ChannelEndWithCapacity
}

type CreateChannelReply struct {
	Serial uint32
	Cookie ChannelCookie
}

// ClaimChannelEnd claims the unclaimed end of an existing channel.
type ClaimChannelEnd struct {
	Serial uint32
	Cookie ChannelCookie
	End    ChannelEndWithCapacity
}

// ClaimChannelEndResult discriminates ClaimChannelEndReply. A sender
// claim reports the receiver's current capacity.
type ClaimChannelEndResult uint8

const (
	ClaimChannelEndSenderClaimed ClaimChannelEndResult = iota
	ClaimChannelEndReceiverClaimed
	ClaimChannelEndInvalidChannel
	ClaimChannelEndAlreadyClaimed
)

type ClaimChannelEndReply struct {
	Serial   uint32
	Result   ClaimChannelEndResult
	Capacity uint32 // set for SenderClaimed
}

// ChannelEndClaimed notifies the holder of one end that the other end
// has been claimed. A sender learns the receiver's initial capacity
// through it.
type ChannelEndClaimed struct {
	Cookie ChannelCookie
	End    ChannelEndWithCapacity
}

// CloseChannelEnd closes one end of a channel.
type CloseChannelEnd struct {
	Serial uint32
	Cookie ChannelCookie
	End    ChannelEnd
}

// CloseChannelEndResult discriminates CloseChannelEndReply.
type CloseChannelEndResult uint8

const (
	CloseChannelEndOk CloseChannelEndResult = iota
	CloseChannelEndInvalidChannel
	CloseChannelEndForeignChannel
)

type CloseChannelEndReply struct {
	Serial uint32
	Result CloseChannelEndResult
}

// ChannelEndClosed notifies the opposite end holder of a closure.
type ChannelEndClosed struct {
	Cookie ChannelCookie
	End    ChannelEnd
}

// SendItem carries one item from the sender to the broker.
type SendItem struct {
	Cookie ChannelCookie
	Value  SerializedValue
}

// ItemReceived carries one item from the broker to the receiver.
type ItemReceived struct {
	Cookie ChannelCookie
	Value  SerializedValue
}

// AddChannelCapacity grants the sender more capacity. Sent by the
// receiver to the broker and forwarded by the broker to the sender.
type AddChannelCapacity struct {
	Cookie   ChannelCookie
	Capacity uint32
}

func (CreateChannel) MessageKind() Kind      { return KindCreateChannel }
func (CreateChannelReply) MessageKind() Kind { return KindCreateChannelReply }
func (ClaimChannelEnd) MessageKind() Kind    { return KindClaimChannelEnd }
func (ClaimChannelEndReply) MessageKind() Kind {
	return KindClaimChannelEndReply
}
func (ChannelEndClaimed) MessageKind() Kind { return KindChannelEndClaimed }
func (CloseChannelEnd) MessageKind() Kind   { return KindCloseChannelEnd }
func (CloseChannelEndReply) MessageKind() Kind {
	return KindCloseChannelEndReply
}
func (ChannelEndClosed) MessageKind() Kind   { return KindChannelEndClosed }
func (SendItem) MessageKind() Kind           { return KindSendItem }
func (ItemReceived) MessageKind() Kind       { return KindItemReceived }
func (AddChannelCapacity) MessageKind() Kind { return KindAddChannelCapacity }

func (m CreateChannel) encodeTo(e *messageEncoder) error {
	e.varintU32(m.Serial)
	e.channelEndWithCapacity(m.Claim)
	return nil
}

func decodeCreateChannel(d *messageDecoder) (Message, error) {
	m := CreateChannel{}
	var err error
	if m.Serial, err = d.varintU32(); err != nil {
		return nil, err
	}
	if m.Claim, err = d.channelEndWithCapacity(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m CreateChannelReply) encodeTo(e *messageEncoder) error {
	e.varintU32(m.Serial)
	e.uuid(uuid.UUID(m.Cookie))
	return nil
}

func decodeCreateChannelReply(d *messageDecoder) (Message, error) {
	m := CreateChannelReply{}
	var err error
	if m.Serial, err = d.varintU32(); err != nil {
		return nil, err
	}
	u, err := d.uuid()
	if err != nil {
		return nil, err
	}
	m.Cookie = ChannelCookie(u)
	return m, nil
}

func (m ClaimChannelEnd) encodeTo(e *messageEncoder) error {
	e.varintU32(m.Serial)
	e.uuid(uuid.UUID(m.Cookie))
	e.channelEndWithCapacity(m.End)
	return nil
}

func decodeClaimChannelEnd(d *messageDecoder) (Message, error) {
	m := ClaimChannelEnd{}
	var err error
	if m.Serial, err = d.varintU32(); err != nil {
		return nil, err
	}
	u, err := d.uuid()
	if err != nil {
		return nil, err
	}
	m.Cookie = ChannelCookie(u)
	if m.End, err = d.channelEndWithCapacity(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m ClaimChannelEndReply) encodeTo(e *messageEncoder) error {
	e.varintU32(m.Serial)
	e.u8(uint8(m.Result))
	if m.Result == ClaimChannelEndSenderClaimed {
		e.varintU32(m.Capacity)
	}
	return nil
}

func decodeClaimChannelEndReply(d *messageDecoder) (Message, error) {
	m := ClaimChannelEndReply{}
	var err error
	if m.Serial, err = d.varintU32(); err != nil {
		return nil, err
	}
	b, err := d.u8()
	if err != nil {
		return nil, err
	}
	if b > uint8(ClaimChannelEndAlreadyClaimed) {
		return nil, ErrInvalidDiscriminant
	}
	m.Result = ClaimChannelEndResult(b)
	if m.Result == ClaimChannelEndSenderClaimed {
		if m.Capacity, err = d.varintU32(); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m ChannelEndClaimed) encodeTo(e *messageEncoder) error {
	e.uuid(uuid.UUID(m.Cookie))
	e.channelEndWithCapacity(m.End)
	return nil
}

func decodeChannelEndClaimed(d *messageDecoder) (Message, error) {
	m := ChannelEndClaimed{}
	u, err := d.uuid()
	if err != nil {
		return nil, err
	}
	m.Cookie = ChannelCookie(u)
	if m.End, err = d.channelEndWithCapacity(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m CloseChannelEnd) encodeTo(e *messageEncoder) error {
	e.varintU32(m.Serial)
	e.uuid(uuid.UUID(m.Cookie))
	e.channelEnd(m.End)
	return nil
}

func decodeCloseChannelEnd(d *messageDecoder) (Message, error) {
	m := CloseChannelEnd{}
	var err error
	if m.Serial, err = d.varintU32(); err != nil {
		return nil, err
	}
	u, err := d.uuid()
	if err != nil {
		return nil, err
	}
	m.Cookie = ChannelCookie(u)
	if m.End, err = d.channelEnd(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m CloseChannelEndReply) encodeTo(e *messageEncoder) error {
	e.varintU32(m.Serial)
	e.u8(uint8(m.Result))
	return nil
}

func decodeCloseChannelEndReply(d *messageDecoder) (Message, error) {
	m := CloseChannelEndReply{}
	var err error
	if m.Serial, err = d.varintU32(); err != nil {
		return nil, err
	}
	b, err := d.u8()
	if err != nil {
		return nil, err
	}
	if b > uint8(CloseChannelEndForeignChannel) {
		return nil, ErrInvalidDiscriminant
	}
	m.Result = CloseChannelEndResult(b)
	return m, nil
}

func (m ChannelEndClosed) encodeTo(e *messageEncoder) error {
	e.uuid(uuid.UUID(m.Cookie))
	e.channelEnd(m.End)
	return nil
}

func decodeChannelEndClosed(d *messageDecoder) (Message, error) {
	m := ChannelEndClosed{}
	u, err := d.uuid()
	if err != nil {
		return nil, err
	}
	m.Cookie = ChannelCookie(u)
	if m.End, err = d.channelEnd(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m SendItem) encodeTo(e *messageEncoder) error {
	if err := e.value(m.Value); err != nil {
		return err
	}
	e.uuid(uuid.UUID(m.Cookie))
	return nil
}

func decodeSendItem(d *messageDecoder) (Message, error) {
	u, err := d.uuid()
	if err != nil {
		return nil, err
	}
	return SendItem{Cookie: ChannelCookie(u), Value: d.ownedValue()}, nil
}

func (m ItemReceived) encodeTo(e *messageEncoder) error {
	if err := e.value(m.Value); err != nil {
		return err
	}
	e.uuid(uuid.UUID(m.Cookie))
	return nil
}

func decodeItemReceived(d *messageDecoder) (Message, error) {
	u, err := d.uuid()
	if err != nil {
		return nil, err
	}
	return ItemReceived{Cookie: ChannelCookie(u), Value: d.ownedValue()}, nil
}

func (m AddChannelCapacity) encodeTo(e *messageEncoder) error {
	e.uuid(uuid.UUID(m.Cookie))
	e.varintU32(m.Capacity)
	return nil
}

func decodeAddChannelCapacity(d *messageDecoder) (Message, error) {
	m := AddChannelCapacity{}
	u, err := d.uuid()
	if err != nil {
		return nil, err
	}
	m.Cookie = ChannelCookie(u)
	if m.Capacity, err = d.varintU32(); err != nil {
		return nil, err
	}
	return m, nil
}
