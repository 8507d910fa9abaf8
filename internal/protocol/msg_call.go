package protocol

import "github.com/google/uuid"

// CallFunction invokes a function on a service.
type CallFunction struct {
	Serial   uint32
	Cookie   ServiceCookie
	Function uint32
	Args     SerializedValue
}

// CallFunction2 additionally carries an optional required interface
// version.
type CallFunction2 struct {
	Serial   uint32
	Cookie   ServiceCookie
	Function uint32
	Version  *uint32
	Args     SerializedValue
}

// CallFunctionResult discriminates CallFunctionReply.
type CallFunctionResult uint8

const (
	CallFunctionOk CallFunctionResult = iota
	CallFunctionErr
	CallFunctionAborted
	CallFunctionInvalidService
	CallFunctionInvalidFunction
	CallFunctionInvalidArgs
)

// CallFunctionReply answers a call. Value is meaningful for Ok and Err
// and the empty value otherwise.
type CallFunctionReply struct {
	Serial uint32
	Result CallFunctionResult
	Value  SerializedValue
}

// AbortFunctionCall cancels a pending call. Sent by the caller with its
// own serial, and forwarded by the broker to the callee with the
// callee-side serial.
type AbortFunctionCall struct {
	Serial uint32
}

func (CallFunction) MessageKind() Kind      { return KindCallFunction }
func (CallFunction2) MessageKind() Kind     { return KindCallFunction2 }
func (CallFunctionReply) MessageKind() Kind { return KindCallFunctionReply }
func (AbortFunctionCall) MessageKind() Kind { return KindAbortFunctionCall }

func (m CallFunction) encodeTo(e *messageEncoder) error {
	if err := e.value(m.Args); err != nil {
		return err
	}
	e.varintU32(m.Serial)
	e.uuid(uuid.UUID(m.Cookie))
	e.varintU32(m.Function)
	return nil
}

func decodeCallFunction(d *messageDecoder) (Message, error) {
	m := CallFunction{Args: d.ownedValue()}
	var err error
	if m.Serial, err = d.varintU32(); err != nil {
		return nil, err
	}
	u, err := d.uuid()
	if err != nil {
		return nil, err
	}
	m.Cookie = ServiceCookie(u)
	if m.Function, err = d.varintU32(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m CallFunction2) encodeTo(e *messageEncoder) error {
	if err := e.value(m.Args); err != nil {
		return err
	}
	e.varintU32(m.Serial)
	e.uuid(uuid.UUID(m.Cookie))
	e.varintU32(m.Function)
	e.optionalSerial(m.Version)
	return nil
}

func decodeCallFunction2(d *messageDecoder) (Message, error) {
	m := CallFunction2{Args: d.ownedValue()}
	var err error
	if m.Serial, err = d.varintU32(); err != nil {
		return nil, err
	}
	u, err := d.uuid()
	if err != nil {
		return nil, err
	}
	m.Cookie = ServiceCookie(u)
	if m.Function, err = d.varintU32(); err != nil {
		return nil, err
	}
	if m.Version, err = d.optionalSerial(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m CallFunctionReply) encodeTo(e *messageEncoder) error {
	if err := e.value(m.Value); err != nil {
		return err
	}
	e.varintU32(m.Serial)
	e.u8(uint8(m.Result))
	return nil
}

func decodeCallFunctionReply(d *messageDecoder) (Message, error) {
	m := CallFunctionReply{Value: d.ownedValue()}
	var err error
	if m.Serial, err = d.varintU32(); err != nil {
		return nil, err
	}
	b, err := d.u8()
	if err != nil {
		return nil, err
	}
	if b > uint8(CallFunctionInvalidArgs) {
		return nil, ErrInvalidDiscriminant
	}
	m.Result = CallFunctionResult(b)
	return m, nil
}

func (m AbortFunctionCall) encodeTo(e *messageEncoder) error {
	e.varintU32(m.Serial)
	return nil
}

func decodeAbortFunctionCall(d *messageDecoder) (Message, error) {
	serial, err := d.varintU32()
	if err != nil {
		return nil, err
	}
	return AbortFunctionCall{Serial: serial}, nil
}
