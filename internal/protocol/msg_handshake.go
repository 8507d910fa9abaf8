package protocol

// Connect is the legacy single-version handshake request.
type Connect struct {
	Version uint32
	Value   SerializedValue
}

// ConnectResult is the outcome of a legacy handshake.
type ConnectResult uint8

const (
	ConnectOk ConnectResult = iota
	ConnectVersionMismatch
	ConnectRejected
)

// ConnectReply answers a legacy Connect.
type ConnectReply struct {
	Result  ConnectResult
	Version uint32 // broker version on mismatch
	Value   SerializedValue
}

// Connect2 is the versioned handshake request: the protocol major, the
// minors the client supports and an opaque user data value.
type Connect2 struct {
	Major  uint32
	Minors []uint32
	Data   SerializedValue
}

// ConnectReply2Result is the outcome of a versioned handshake.
type ConnectReply2Result uint8

const (
	ConnectReply2Ok ConnectReply2Result = iota
	ConnectReply2IncompatibleVersion
	ConnectReply2Rejected
)

// ConnectReply2 answers Connect2. Minor is the negotiated minor when
// the result is Ok.
type ConnectReply2 struct {
	Result ConnectReply2Result
	Minor  uint32
	Data   SerializedValue
}

// Shutdown initiates teardown of the connection. Either side may send
// it; it carries no payload.
type Shutdown struct{}

func (Connect) MessageKind() Kind       { return KindConnect }
func (ConnectReply) MessageKind() Kind  { return KindConnectReply }
func (Connect2) MessageKind() Kind      { return KindConnect2 }
func (ConnectReply2) MessageKind() Kind { return KindConnectReply2 }
func (Shutdown) MessageKind() Kind      { return KindShutdown }

func (m Connect) encodeTo(e *messageEncoder) error {
	if err := e.value(m.Value); err != nil {
		return err
	}
	e.varintU32(m.Version)
	return nil
}

func decodeConnect(d *messageDecoder) (Message, error) {
	version, err := d.varintU32()
	if err != nil {
		return nil, err
	}
	return Connect{Version: version, Value: d.ownedValue()}, nil
}

func (m ConnectReply) encodeTo(e *messageEncoder) error {
	if err := e.value(m.Value); err != nil {
		return err
	}
	e.u8(uint8(m.Result))
	if m.Result == ConnectVersionMismatch {
		e.varintU32(m.Version)
	}
	return nil
}

func decodeConnectReply(d *messageDecoder) (Message, error) {
	b, err := d.u8()
	if err != nil {
		return nil, err
	}
	if b > uint8(ConnectRejected) {
		return nil, ErrInvalidDiscriminant
	}
	m := ConnectReply{Result: ConnectResult(b), Value: d.ownedValue()}
	if m.Result == ConnectVersionMismatch {
		if m.Version, err = d.varintU32(); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m Connect2) encodeTo(e *messageEncoder) error {
	if err := e.value(m.Data); err != nil {
		return err
	}
	e.varintU32(m.Major)
	e.varintU32(uint32(len(m.Minors)))
	for _, minor := range m.Minors {
		e.varintU32(minor)
	}
	return nil
}

func decodeConnect2(d *messageDecoder) (Message, error) {
	m := Connect2{Data: d.ownedValue()}
	var err error
	if m.Major, err = d.varintU32(); err != nil {
		return nil, err
	}
	n, err := d.varintU32()
	if err != nil {
		return nil, err
	}
	m.Minors = make([]uint32, n)
	for i := range m.Minors {
		if m.Minors[i], err = d.varintU32(); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m ConnectReply2) encodeTo(e *messageEncoder) error {
	if err := e.value(m.Data); err != nil {
		return err
	}
	e.u8(uint8(m.Result))
	if m.Result == ConnectReply2Ok {
		e.varintU32(m.Minor)
	}
	return nil
}

func decodeConnectReply2(d *messageDecoder) (Message, error) {
	b, err := d.u8()
	if err != nil {
		return nil, err
	}
	if b > uint8(ConnectReply2Rejected) {
		return nil, ErrInvalidDiscriminant
	}
	m := ConnectReply2{Result: ConnectReply2Result(b), Data: d.ownedValue()}
	if m.Result == ConnectReply2Ok {
		if m.Minor, err = d.varintU32(); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (Shutdown) encodeTo(*messageEncoder) error { return nil }

func decodeShutdown(*messageDecoder) (Message, error) { return Shutdown{}, nil }
