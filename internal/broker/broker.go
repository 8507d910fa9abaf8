// Package broker implements the message bus core: it owns every
// object, service, channel and bus listener registry and routes all
// traffic between connected clients.
//
// All broker state is owned by a single goroutine running Run. Per
// connection there are exactly two more goroutines, one reading from
// the transport and one writing to it; they never touch broker state.
// Consequently no locks protect the registries.
package broker

import (
	"errors"

	"github.com/rs/zerolog"

	"github.com/adred-codev/aldrin/internal/protocol"
)

// Options tunes the broker's bounded queues.
type Options struct {
	Logger zerolog.Logger

	// EventQueueSize bounds the loop's inbound queue. Readers block
	// when it is full, which back-pressures the transports.
	EventQueueSize int

	// ConnSendQueueSize bounds each connection's outbound queue.
	// Overflow closes that connection.
	ConnSendQueueSize int
}

const (
	defaultEventQueueSize    = 256
	defaultConnSendQueueSize = 512
)

var errSendQueueFull = errors.New("outbound queue overflow")

// Broker is the central router. Create one with New, run its loop with
// Run and feed it transports with AddConnection.
type Broker struct {
	log  zerolog.Logger
	opts Options

	events chan event
	done   chan struct{}
	ids    *connIDAllocator

	// Everything below is owned by the Run goroutine.
	conns           map[ConnID]*conn
	objects         map[protocol.ObjectUUID]*object
	objectsByCookie map[protocol.ObjectCookie]*object
	services        map[protocol.ServiceCookie]*service
	channels        map[protocol.ChannelCookie]*channel
	listeners       map[protocol.BusListenerCookie]*busListener
	calls           *serialMap[*pendingCall]
	introspections  *serialMap[*pendingIntrospection]

	pendingClose []pendingClose
	stats        Statistics
	shuttingDown bool
	shutdownWait []chan struct{}
}

type eventKind uint8

const (
	evNewConn eventKind = iota
	evMessage
	evConnClosed
	evShutdown
	evStats
)

type event struct {
	kind  eventKind
	conn  *conn
	msg   protocol.Message
	err   error
	stats chan Statistics
	done  chan struct{}
}

type pendingClose struct {
	conn         *conn
	err          error
	sendShutdown bool
}

// New creates a broker. Run must be called before AddConnection.
func New(opts Options) *Broker {
	if opts.EventQueueSize <= 0 {
		opts.EventQueueSize = defaultEventQueueSize
	}
	if opts.ConnSendQueueSize <= 0 {
		opts.ConnSendQueueSize = defaultConnSendQueueSize
	}

	return &Broker{
		log:             opts.Logger.With().Str("component", "broker").Logger(),
		opts:            opts,
		events:          make(chan event, opts.EventQueueSize),
		done:            make(chan struct{}),
		ids:             newConnIDAllocator(),
		conns:           make(map[ConnID]*conn),
		objects:         make(map[protocol.ObjectUUID]*object),
		objectsByCookie: make(map[protocol.ObjectCookie]*object),
		services:        make(map[protocol.ServiceCookie]*service),
		channels:        make(map[protocol.ChannelCookie]*channel),
		listeners:       make(map[protocol.BusListenerCookie]*busListener),
		calls:           newSerialMap[*pendingCall](),
		introspections:  newSerialMap[*pendingIntrospection](),
	}
}

// post delivers an event to the loop unless the broker has already
// stopped.
func (b *Broker) post(ev event) {
	select {
	case b.events <- ev:
	case <-b.done:
	}
}

// Run executes the broker loop until Shutdown completes. It owns all
// registry state; every message is dispatched here, one at a time.
func (b *Broker) Run() {
	b.log.Info().Msg("broker loop running")

	for {
		ev := <-b.events
		b.dispatch(ev)
		b.drainPendingClose()

		if b.shuttingDown && len(b.conns) == 0 {
			break
		}
	}

	close(b.done)
	for _, ch := range b.shutdownWait {
		close(ch)
	}
	b.log.Info().Msg("broker loop stopped")
}

func (b *Broker) dispatch(ev event) {
	switch ev.kind {
	case evNewConn:
		b.handleNewConn(ev.conn)

	case evMessage:
		c := ev.conn
		if c.state != connEstablished {
			return
		}
		b.stats.countMessage(ev.msg.MessageKind())
		messagesReceived.Inc()
		b.handleMessage(c, ev.msg)

	case evConnClosed:
		b.closeConn(ev.conn, ev.err, false)

	case evShutdown:
		b.handleShutdownRequest(ev.done)

	case evStats:
		ev.stats <- b.stats.swap(len(b.conns), len(b.objects), len(b.services), len(b.channels), len(b.listeners))
	}
}

func (b *Broker) handleNewConn(c *conn) {
	// The writer can fail and report the connection closed before its
	// registration event is dispatched; such a connection is already
	// torn down.
	if c.state != connAwaitingConnect {
		return
	}
	if b.shuttingDown {
		b.shutdownConn(c)
		return
	}

	b.conns[c.id] = c
	c.state = connEstablished
	b.stats.ConnectionsAdded++
	connectionsTotal.Inc()
	connectionsActive.Set(float64(len(b.conns)))

	c.log.Info().Str("version", c.version.String()).Msg("connection established")
}

// send enqueues m on c's outbound queue. Overflow is terminal for the
// connection, never for the broker.
func (b *Broker) send(c *conn, m protocol.Message) {
	if c.state != connEstablished || c.outClosed {
		return
	}
	select {
	case c.out <- m:
		messagesSent.Inc()
	default:
		queueOverflows.Inc()
		b.scheduleClose(c, errSendQueueFull, true)
	}
}

// scheduleClose defers connection teardown until the current handler
// has finished, so registries are never mutated mid-iteration.
func (b *Broker) scheduleClose(c *conn, err error, sendShutdown bool) {
	for _, p := range b.pendingClose {
		if p.conn == c {
			return
		}
	}
	b.pendingClose = append(b.pendingClose, pendingClose{conn: c, err: err, sendShutdown: sendShutdown})
}

func (b *Broker) drainPendingClose() {
	for len(b.pendingClose) > 0 {
		p := b.pendingClose[0]
		b.pendingClose = b.pendingClose[1:]
		b.closeConn(p.conn, p.err, p.sendShutdown)
	}
}

// closeConn is the single teardown path: dropped transports, protocol
// violations, queue overflow, Shutdown messages and broker shutdown all
// end up here.
func (b *Broker) closeConn(c *conn, err error, sendShutdown bool) {
	if c.state == connClosed {
		return
	}

	if sendShutdown && c.state == connEstablished && !c.outClosed {
		select {
		case c.out <- protocol.Shutdown{}:
		default:
		}
	}
	c.state = connShuttingDown

	if err != nil {
		c.log.Info().Err(err).Msg("connection closing")
	} else {
		c.log.Info().Msg("connection closing")
	}

	b.cleanupConn(c)

	if !c.outClosed {
		c.outClosed = true
		close(c.out)
	}

	c.state = connClosed
	delete(b.conns, c.id)
	b.ids.release(c.id)
	b.stats.ConnectionsShutDown++
	connectionsActive.Set(float64(len(b.conns)))
}

// cleanupConn releases everything the connection owns, in an order
// where every emitted event precedes later ones referring to the same
// entity: calls first, then channels, listeners, subscriptions and
// finally objects with their services.
func (b *Broker) cleanupConn(c *conn) {
	b.abortCallsOnDisconnect(c)
	b.abortIntrospectionsOnDisconnect(c)
	b.closeChannelEndsOnDisconnect(c)
	b.destroyListenersOnDisconnect(c)
	b.dropSubscriptionsOnDisconnect(c)

	for cookie := range c.objects {
		if obj, ok := b.objectsByCookie[cookie]; ok {
			b.destroyObject(obj)
		}
	}
}

// shutdownConn rejects a connection that completed its handshake while
// the broker was already shutting down.
func (b *Broker) shutdownConn(c *conn) {
	select {
	case c.out <- protocol.Shutdown{}:
	default:
	}
	close(c.out)
	c.outClosed = true
	c.state = connClosed
	b.ids.release(c.id)
}

func (b *Broker) handleShutdownRequest(done chan struct{}) {
	if done != nil {
		b.shutdownWait = append(b.shutdownWait, done)
	}
	if b.shuttingDown {
		return
	}
	b.shuttingDown = true
	b.log.Info().Int("connections", len(b.conns)).Msg("broker shutting down")

	for _, c := range b.conns {
		b.scheduleClose(c, nil, true)
	}
}

// Shutdown asks the loop to send Shutdown to every client and stop.
// It returns once the loop has exited.
func (b *Broker) Shutdown() {
	done := make(chan struct{})
	b.post(event{kind: evShutdown, done: done})
	select {
	case <-done:
	case <-b.done:
	}
}

// Statistics returns a snapshot of the accumulated counters and resets
// the interval counters atomically with respect to message dispatch.
func (b *Broker) Statistics() Statistics {
	ch := make(chan Statistics, 1)
	b.post(event{kind: evStats, stats: ch})
	select {
	case s := <-ch:
		return s
	case <-b.done:
		return Statistics{}
	}
}

// handleMessage dispatches one established-connection message to its
// handler. Reply kinds are not valid requests unless they answer a
// broker-forwarded message; stray ones reference no routing entry and
// are dropped there.
func (b *Broker) handleMessage(c *conn, msg protocol.Message) {
	switch m := msg.(type) {
	case protocol.Shutdown:
		b.scheduleClose(c, nil, true)

	case protocol.CreateObject:
		b.handleCreateObject(c, m)
	case protocol.DestroyObject:
		b.handleDestroyObject(c, m)
	case protocol.QueryObject:
		b.handleQueryObject(c, m)

	case protocol.CreateService:
		b.handleCreateService(c, m.Serial, m.ObjectCookie, m.UUID, protocol.ServiceInfo{Version: m.Version}, nil)
	case protocol.CreateService2:
		b.handleCreateService2(c, m)
	case protocol.DestroyService:
		b.handleDestroyService(c, m)
	case protocol.QueryServiceVersion:
		b.handleQueryServiceVersion(c, m)
	case protocol.QueryServiceInfo:
		b.handleQueryServiceInfo(c, m)
	case protocol.SubscribeService:
		b.handleSubscribeService(c, m)
	case protocol.UnsubscribeService:
		b.handleUnsubscribeService(c, m)

	case protocol.CallFunction:
		b.handleCallFunction(c, true, m.Serial, m.Cookie, m.Function, nil, m.Args)
	case protocol.CallFunction2:
		b.handleCallFunction(c, false, m.Serial, m.Cookie, m.Function, m.Version, m.Args)
	case protocol.CallFunctionReply:
		b.handleCallFunctionReply(c, m)
	case protocol.AbortFunctionCall:
		b.handleAbortFunctionCall(c, m)

	case protocol.SubscribeEvent:
		b.handleSubscribeEvent(c, m)
	case protocol.UnsubscribeEvent:
		b.handleUnsubscribeEvent(c, m)
	case protocol.SubscribeAllEvents:
		b.handleSubscribeAllEvents(c, m)
	case protocol.UnsubscribeAllEvents:
		b.handleUnsubscribeAllEvents(c, m)
	case protocol.EmitEvent:
		b.handleEmitEvent(c, m)

	case protocol.CreateChannel:
		b.handleCreateChannel(c, m)
	case protocol.ClaimChannelEnd:
		b.handleClaimChannelEnd(c, m)
	case protocol.CloseChannelEnd:
		b.handleCloseChannelEnd(c, m)
	case protocol.SendItem:
		b.handleSendItem(c, m)
	case protocol.AddChannelCapacity:
		b.handleAddChannelCapacity(c, m)

	case protocol.CreateBusListener:
		b.handleCreateBusListener(c, m)
	case protocol.DestroyBusListener:
		b.handleDestroyBusListener(c, m)
	case protocol.AddBusListenerFilter:
		b.handleAddBusListenerFilter(c, m)
	case protocol.RemoveBusListenerFilter:
		b.handleRemoveBusListenerFilter(c, m)
	case protocol.ClearBusListenerFilters:
		b.handleClearBusListenerFilters(c, m)
	case protocol.StartBusListener:
		b.handleStartBusListener(c, m)
	case protocol.StopBusListener:
		b.handleStopBusListener(c, m)

	case protocol.QueryIntrospection:
		b.handleQueryIntrospection(c, m)
	case protocol.QueryIntrospectionReply:
		b.handleQueryIntrospectionReply(c, m)

	case protocol.Sync:
		b.send(c, protocol.SyncReply{Serial: m.Serial})

	default:
		// Clients must not send broker-originated kinds; that is a
		// protocol violation.
		c.log.Warn().Stringer("kind", msg.MessageKind()).Msg("unexpected message")
		b.scheduleClose(c, errUnexpectedMessage, false)
	}
}

var errUnexpectedMessage = errors.New("unexpected message kind")
