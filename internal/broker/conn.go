package broker

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/adred-codev/aldrin/internal/protocol"
)

type connState uint8

const (
	connAwaitingConnect connState = iota
	connEstablished
	connShuttingDown
	connClosed
)

var errHandshakeRejected = errors.New("handshake rejected")

// conn is one client connection. The serve goroutine reads from the
// transport and the write goroutine drains out; every other field
// below the marker is owned by the broker loop.
type conn struct {
	id  ConnID
	b   *Broker
	t   protocol.Transport
	log zerolog.Logger

	out chan protocol.Message

	version protocol.Version

	// Owned by the broker loop from here on.
	state     connState
	outClosed bool

	objects      map[protocol.ObjectCookie]struct{}
	channelEnds  map[chanEndRef]struct{}
	listeners    map[protocol.BusListenerCookie]struct{}
	eventSubs    map[eventSubKey]struct{}
	allEventSubs map[protocol.ServiceCookie]struct{}
	serviceSubs  map[protocol.ServiceCookie]struct{}
}

type chanEndRef struct {
	cookie protocol.ChannelCookie
	end    protocol.ChannelEnd
}

type eventSubKey struct {
	cookie protocol.ServiceCookie
	event  uint32
}

// AddConnection hands a freshly accepted transport to the broker. The
// handshake and all subsequent traffic run on the connection's own
// goroutines; the call returns immediately.
func (b *Broker) AddConnection(t protocol.Transport) {
	id := b.ids.acquire()
	c := &conn{
		id:           id,
		b:            b,
		t:            t,
		log:          b.log.With().Int("conn", id.Int()).Logger(),
		out:          make(chan protocol.Message, b.opts.ConnSendQueueSize),
		objects:      make(map[protocol.ObjectCookie]struct{}),
		channelEnds:  make(map[chanEndRef]struct{}),
		listeners:    make(map[protocol.BusListenerCookie]struct{}),
		eventSubs:    make(map[eventSubKey]struct{}),
		allEventSubs: make(map[protocol.ServiceCookie]struct{}),
		serviceSubs:  make(map[protocol.ServiceCookie]struct{}),
	}

	go c.serve()
}

// serve performs the handshake and then pumps inbound messages into
// the broker loop until the transport fails or is closed.
func (c *conn) serve() {
	if err := c.handshake(); err != nil {
		c.log.Debug().Err(err).Msg("handshake failed")
		connectionsFailed.Inc()
		_ = c.t.Close()
		c.b.ids.release(c.id)
		return
	}

	go c.writeLoop()
	c.b.post(event{kind: evNewConn, conn: c})

	for {
		msg, err := c.t.Receive()
		if err != nil {
			c.b.post(event{kind: evConnClosed, conn: c, err: err})
			return
		}
		c.b.post(event{kind: evMessage, conn: c, msg: msg})
	}
}

// handshake reads the first message, which must be Connect or Connect2
// with a compatible protocol epoch. Replies go straight to the
// transport; the write loop is not running yet.
func (c *conn) handshake() error {
	first, err := c.t.Receive()
	if err != nil {
		return err
	}

	switch m := first.(type) {
	case protocol.Connect:
		if m.Version < protocol.MinMinor || m.Version > protocol.MaxMinor {
			c.reply(protocol.ConnectReply{
				Result:  protocol.ConnectVersionMismatch,
				Version: protocol.MaxMinor,
				Value:   protocol.EmptySerializedValue(),
			})
			return fmt.Errorf("incompatible protocol version 1.%d", m.Version)
		}
		c.version = protocol.Version{Major: protocol.MajorVersion, Minor: m.Version}
		return c.reply(protocol.ConnectReply{
			Result: protocol.ConnectOk,
			Value:  protocol.EmptySerializedValue(),
		})

	case protocol.Connect2:
		minor, ok := protocol.NegotiateMinor(m.Minors)
		if m.Major != protocol.MajorVersion || !ok {
			c.reply(protocol.ConnectReply2{
				Result: protocol.ConnectReply2IncompatibleVersion,
				Data:   protocol.EmptySerializedValue(),
			})
			return fmt.Errorf("incompatible protocol version %d.x", m.Major)
		}
		c.version = protocol.Version{Major: m.Major, Minor: minor}
		return c.reply(protocol.ConnectReply2{
			Result: protocol.ConnectReply2Ok,
			Minor:  minor,
			Data:   protocol.EmptySerializedValue(),
		})

	default:
		return errHandshakeRejected
	}
}

func (c *conn) reply(m protocol.Message) error {
	if err := c.t.Send(m); err != nil {
		return err
	}
	return c.t.Flush()
}

// writeLoop drains the outbound queue in enqueue order and flushes
// whenever it runs dry. Closing out is the only way the loop ends
// cleanly; a transport error ends it too and is reported to the broker
// exactly like a receive error.
func (c *conn) writeLoop() {
	for m := range c.out {
		if err := c.t.Send(m); err != nil {
			c.b.post(event{kind: evConnClosed, conn: c, err: err})
			_ = c.t.Close()
			return
		}
		if len(c.out) == 0 {
			if err := c.t.Flush(); err != nil {
				c.b.post(event{kind: evConnClosed, conn: c, err: err})
				_ = c.t.Close()
				return
			}
		}
	}

	_ = c.t.Flush()
	_ = c.t.Close()
}
