package broker

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/adred-codev/aldrin/internal/protocol"
	"github.com/adred-codev/aldrin/pkg/transport"
)

const recvTimeout = 2 * time.Second

func newTestBroker(t *testing.T) *Broker {
	t.Helper()
	b := New(Options{Logger: zerolog.Nop()})
	go b.Run()
	t.Cleanup(b.Shutdown)
	return b
}

// testClient drives one connection through a pipe transport. A reader
// goroutine preserves delivery order; expectations pull from it with a
// timeout.
type testClient struct {
	t  *testing.T
	tr *transport.PipeTransport
	in chan protocol.Message
}

func connect(t *testing.T, b *Broker) *testClient {
	t.Helper()
	c := dial(t, b)
	c.send(protocol.Connect2{
		Major:  protocol.MajorVersion,
		Minors: []uint32{14, 15, 16, 17, 18, 19, 20},
		Data:   protocol.EmptySerializedValue(),
	})
	reply := c.expect().(protocol.ConnectReply2)
	if reply.Result != protocol.ConnectReply2Ok {
		t.Fatalf("handshake failed: %+v", reply)
	}
	if reply.Minor != protocol.MaxMinor {
		t.Fatalf("negotiated minor %d, want %d", reply.Minor, protocol.MaxMinor)
	}
	return c
}

func dial(t *testing.T, b *Broker) *testClient {
	t.Helper()
	local, remote := transport.Pipe(64)
	b.AddConnection(remote)

	c := &testClient{t: t, tr: local, in: make(chan protocol.Message, 256)}
	go func() {
		for {
			m, err := local.Receive()
			if err != nil {
				close(c.in)
				return
			}
			c.in <- m
		}
	}()
	t.Cleanup(func() { _ = local.Close() })
	return c
}

func (c *testClient) send(m protocol.Message) {
	c.t.Helper()
	if err := c.tr.Send(m); err != nil {
		c.t.Fatalf("send %s: %v", m.MessageKind(), err)
	}
}

func (c *testClient) expect() protocol.Message {
	c.t.Helper()
	select {
	case m, ok := <-c.in:
		if !ok {
			c.t.Fatal("connection closed while expecting a message")
		}
		return m
	case <-time.After(recvTimeout):
		c.t.Fatal("timed out waiting for a message")
		return nil
	}
}

func (c *testClient) expectNone(d time.Duration) {
	c.t.Helper()
	select {
	case m, ok := <-c.in:
		if ok {
			c.t.Fatalf("unexpected message %s: %#v", m.MessageKind(), m)
		}
	case <-time.After(d):
	}
}

func (c *testClient) expectClosed() {
	c.t.Helper()
	deadline := time.After(recvTimeout)
	for {
		select {
		case m, ok := <-c.in:
			if !ok {
				return
			}
			if _, isShutdown := m.(protocol.Shutdown); !isShutdown {
				c.t.Fatalf("unexpected message before close: %#v", m)
			}
		case <-deadline:
			c.t.Fatal("timed out waiting for the connection to close")
		}
	}
}

func (c *testClient) createObject(serial uint32, u protocol.ObjectUUID) protocol.ObjectCookie {
	c.t.Helper()
	c.send(protocol.CreateObject{Serial: serial, UUID: u})
	reply := c.expect().(protocol.CreateObjectReply)
	if reply.Serial != serial || reply.Result != protocol.CreateObjectOk {
		c.t.Fatalf("create object: %+v", reply)
	}
	return reply.Cookie
}

func (c *testClient) createService(serial uint32, obj protocol.ObjectCookie, u protocol.ServiceUUID) protocol.ServiceCookie {
	c.t.Helper()
	c.send(protocol.CreateService{Serial: serial, ObjectCookie: obj, UUID: u, Version: 1})
	reply := c.expect().(protocol.CreateServiceReply)
	if reply.Serial != serial || reply.Result != protocol.CreateServiceOk {
		c.t.Fatalf("create service: %+v", reply)
	}
	return reply.Cookie
}

func objUUID(n byte) protocol.ObjectUUID {
	u := uuid.MustParse(fmt.Sprintf("00000000-0000-4000-8000-%012x", n))
	return protocol.ObjectUUID(u)
}

func svcUUID(n byte) protocol.ServiceUUID {
	u := uuid.MustParse(fmt.Sprintf("00000000-0000-4000-9000-%012x", n))
	return protocol.ServiceUUID(u)
}

func u32Value(t *testing.T, v uint32) protocol.SerializedValue {
	t.Helper()
	blob, err := protocol.SerializeValue(protocol.U32(v))
	if err != nil {
		t.Fatal(err)
	}
	return blob
}

func TestCreateDestroyObject(t *testing.T) {
	b := newTestBroker(t)
	a := connect(t, b)

	cookie := a.createObject(1, objUUID(1))

	a.send(protocol.DestroyObject{Serial: 2, Cookie: cookie})
	if r := a.expect().(protocol.DestroyObjectReply); r.Serial != 2 || r.Result != protocol.DestroyObjectOk {
		t.Fatalf("destroy: %+v", r)
	}

	a.send(protocol.DestroyObject{Serial: 3, Cookie: cookie})
	if r := a.expect().(protocol.DestroyObjectReply); r.Serial != 3 || r.Result != protocol.DestroyObjectInvalidObject {
		t.Fatalf("second destroy: %+v", r)
	}
}

func TestDuplicateObjectUUID(t *testing.T) {
	b := newTestBroker(t)
	a := connect(t, b)
	c := connect(t, b)

	a.createObject(1, objUUID(1))

	c.send(protocol.CreateObject{Serial: 1, UUID: objUUID(1)})
	if r := c.expect().(protocol.CreateObjectReply); r.Result != protocol.CreateObjectDuplicate {
		t.Fatalf("duplicate create: %+v", r)
	}
}

func TestForeignObjectDestroy(t *testing.T) {
	b := newTestBroker(t)
	a := connect(t, b)
	c := connect(t, b)

	cookie := a.createObject(1, objUUID(1))

	c.send(protocol.DestroyObject{Serial: 1, Cookie: cookie})
	if r := c.expect().(protocol.DestroyObjectReply); r.Result != protocol.DestroyObjectForeignObject {
		t.Fatalf("foreign destroy: %+v", r)
	}
}

func TestCallRouting(t *testing.T) {
	b := newTestBroker(t)
	owner := connect(t, b)
	caller := connect(t, b)

	obj := owner.createObject(1, objUUID(1))
	svc := owner.createService(2, obj, svcUUID(1))

	caller.send(protocol.CallFunction2{
		Serial:   7,
		Cookie:   svc,
		Function: 3,
		Args:     u32Value(t, 42),
	})

	fwd := owner.expect().(protocol.CallFunction2)
	if fwd.Cookie != svc || fwd.Function != 3 {
		t.Fatalf("forwarded call: %+v", fwd)
	}
	if v, err := fwd.Args.Deserialize(); err != nil || v != protocol.U32(42) {
		t.Fatalf("forwarded args: %v, %v", v, err)
	}

	owner.send(protocol.CallFunctionReply{
		Serial: fwd.Serial,
		Result: protocol.CallFunctionOk,
		Value:  u32Value(t, 84),
	})

	reply := caller.expect().(protocol.CallFunctionReply)
	if reply.Serial != 7 || reply.Result != protocol.CallFunctionOk {
		t.Fatalf("reply: %+v", reply)
	}
	if v, err := reply.Value.Deserialize(); err != nil || v != protocol.U32(84) {
		t.Fatalf("reply value: %v, %v", v, err)
	}
}

func TestCallInvalidService(t *testing.T) {
	b := newTestBroker(t)
	caller := connect(t, b)

	caller.send(protocol.CallFunction2{
		Serial: 1,
		Cookie: protocol.ServiceCookie(uuid.New()),
		Args:   protocol.EmptySerializedValue(),
	})
	if r := caller.expect().(protocol.CallFunctionReply); r.Serial != 1 || r.Result != protocol.CallFunctionInvalidService {
		t.Fatalf("invalid service call: %+v", r)
	}
}

func TestCallAbort(t *testing.T) {
	b := newTestBroker(t)
	owner := connect(t, b)
	caller := connect(t, b)

	obj := owner.createObject(1, objUUID(1))
	svc := owner.createService(2, obj, svcUUID(1))

	caller.send(protocol.CallFunction2{Serial: 7, Cookie: svc, Function: 3, Args: protocol.EmptySerializedValue()})
	fwd := owner.expect().(protocol.CallFunction2)

	caller.send(protocol.AbortFunctionCall{Serial: 7})
	abort := owner.expect().(protocol.AbortFunctionCall)
	if abort.Serial != fwd.Serial {
		t.Fatalf("abort serial %d, want %d", abort.Serial, fwd.Serial)
	}

	// A late reply from the callee no longer matches a routing entry
	// and must be dropped.
	owner.send(protocol.CallFunctionReply{Serial: fwd.Serial, Result: protocol.CallFunctionOk, Value: protocol.EmptySerializedValue()})
	caller.expectNone(200 * time.Millisecond)
}

func TestCalleeDisconnectAbortsCalls(t *testing.T) {
	b := newTestBroker(t)
	owner := connect(t, b)
	caller := connect(t, b)

	obj := owner.createObject(1, objUUID(1))
	svc := owner.createService(2, obj, svcUUID(1))

	caller.send(protocol.CallFunction2{Serial: 9, Cookie: svc, Function: 1, Args: protocol.EmptySerializedValue()})
	owner.expect() // the forwarded call

	_ = owner.tr.Close()

	reply := caller.expect().(protocol.CallFunctionReply)
	if reply.Serial != 9 || reply.Result != protocol.CallFunctionAborted {
		t.Fatalf("reply after callee disconnect: %+v", reply)
	}
}

func TestDestroyObjectAbortsCallsWithInvalidService(t *testing.T) {
	b := newTestBroker(t)
	owner := connect(t, b)
	caller := connect(t, b)

	obj := owner.createObject(1, objUUID(1))
	svc := owner.createService(2, obj, svcUUID(1))

	caller.send(protocol.CallFunction2{Serial: 5, Cookie: svc, Function: 0, Args: protocol.EmptySerializedValue()})
	owner.expect()

	owner.send(protocol.DestroyObject{Serial: 3, Cookie: obj})
	owner.expect() // DestroyObjectReply

	reply := caller.expect().(protocol.CallFunctionReply)
	if reply.Serial != 5 || reply.Result != protocol.CallFunctionInvalidService {
		t.Fatalf("reply after object destroy: %+v", reply)
	}
}

func TestEventSubscription(t *testing.T) {
	b := newTestBroker(t)
	owner := connect(t, b)
	sub1 := connect(t, b)
	sub2 := connect(t, b)

	obj := owner.createObject(1, objUUID(1))
	svc := owner.createService(2, obj, svcUUID(1))

	// First subscription is propagated to the owner without a serial.
	serial := uint32(10)
	sub1.send(protocol.SubscribeEvent{Serial: &serial, Cookie: svc, Event: 4})
	if r := sub1.expect().(protocol.SubscribeEventReply); r.Serial != 10 || r.Result != protocol.SubscribeEventOk {
		t.Fatalf("subscribe: %+v", r)
	}
	fwd := owner.expect().(protocol.SubscribeEvent)
	if fwd.Serial != nil || fwd.Cookie != svc || fwd.Event != 4 {
		t.Fatalf("forwarded subscribe: %+v", fwd)
	}

	// Second subscriber: no further propagation.
	sub2.send(protocol.SubscribeEvent{Serial: &serial, Cookie: svc, Event: 4})
	sub2.expect()
	owner.expectNone(200 * time.Millisecond)

	// Emit fans out to both subscribers.
	owner.send(protocol.EmitEvent{Cookie: svc, Event: 4, Value: u32Value(t, 1)})
	for _, s := range []*testClient{sub1, sub2} {
		ev := s.expect().(protocol.EmitEvent)
		if ev.Cookie != svc || ev.Event != 4 {
			t.Fatalf("event: %+v", ev)
		}
	}

	// Unsubscribed event ids do not match.
	owner.send(protocol.EmitEvent{Cookie: svc, Event: 5, Value: u32Value(t, 2)})
	sub1.expectNone(200 * time.Millisecond)

	// The last unsubscribe is propagated to the owner.
	sub1.send(protocol.UnsubscribeEvent{Cookie: svc, Event: 4})
	owner.expectNone(200 * time.Millisecond)
	sub2.send(protocol.UnsubscribeEvent{Cookie: svc, Event: 4})
	unsub := owner.expect().(protocol.UnsubscribeEvent)
	if unsub.Cookie != svc || unsub.Event != 4 {
		t.Fatalf("forwarded unsubscribe: %+v", unsub)
	}
}

func TestSubscribeAllEvents(t *testing.T) {
	b := newTestBroker(t)
	owner := connect(t, b)
	sub := connect(t, b)

	obj := owner.createObject(1, objUUID(1))
	svc := owner.createService(2, obj, svcUUID(1))

	serial := uint32(3)
	sub.send(protocol.SubscribeAllEvents{Serial: &serial, Cookie: svc})
	if r := sub.expect().(protocol.SubscribeAllEventsReply); r.Result != protocol.SubscribeAllEventsOk {
		t.Fatalf("subscribe all: %+v", r)
	}
	owner.expect() // forwarded SubscribeAllEvents

	owner.send(protocol.EmitEvent{Cookie: svc, Event: 99, Value: u32Value(t, 1)})
	if ev := sub.expect().(protocol.EmitEvent); ev.Event != 99 {
		t.Fatalf("wildcard event: %+v", ev)
	}
}

func TestSubscribeAllEventsNotSupported(t *testing.T) {
	b := newTestBroker(t)
	owner := connect(t, b)
	sub := connect(t, b)

	obj := owner.createObject(1, objUUID(1))

	no := false
	info, err := protocol.ServiceInfo{Version: 1, SubscribeAllEvents: &no}.Serialize()
	if err != nil {
		t.Fatal(err)
	}
	owner.send(protocol.CreateService2{Serial: 2, ObjectCookie: obj, UUID: svcUUID(1), Info: info})
	svc := owner.expect().(protocol.CreateServiceReply).Cookie

	serial := uint32(1)
	sub.send(protocol.SubscribeAllEvents{Serial: &serial, Cookie: svc})
	if r := sub.expect().(protocol.SubscribeAllEventsReply); r.Result != protocol.SubscribeAllEventsNotSupported {
		t.Fatalf("subscribe all on disabled service: %+v", r)
	}
}

func TestChannelBackpressure(t *testing.T) {
	b := newTestBroker(t)
	creator := connect(t, b)
	peer := connect(t, b)

	// Creator claims the sender end.
	creator.send(protocol.CreateChannel{Serial: 1, Claim: protocol.ChannelEndWithCapacity{End: protocol.SenderEnd}})
	cookie := creator.expect().(protocol.CreateChannelReply).Cookie

	// Peer claims the receiver with capacity 2; the sender learns the
	// capacity through ChannelEndClaimed.
	peer.send(protocol.ClaimChannelEnd{
		Serial: 2,
		Cookie: cookie,
		End:    protocol.ChannelEndWithCapacity{End: protocol.ReceiverEnd, Capacity: 2},
	})
	if r := peer.expect().(protocol.ClaimChannelEndReply); r.Result != protocol.ClaimChannelEndReceiverClaimed {
		t.Fatalf("claim receiver: %+v", r)
	}
	claimed := creator.expect().(protocol.ChannelEndClaimed)
	if claimed.End.End != protocol.ReceiverEnd || claimed.End.Capacity != 2 {
		t.Fatalf("claimed notification: %+v", claimed)
	}

	// Two sends pass, the third exceeds capacity and is dropped.
	for _, v := range []uint32{1, 2, 3} {
		creator.send(protocol.SendItem{Cookie: cookie, Value: u32Value(t, v)})
	}
	for _, want := range []uint32{1, 2} {
		item := peer.expect().(protocol.ItemReceived)
		if v, _ := item.Value.Deserialize(); v != protocol.U32(want) {
			t.Fatalf("item: got %v, want %d", v, want)
		}
	}
	peer.expectNone(200 * time.Millisecond)

	// One credit lets exactly one more item through.
	peer.send(protocol.AddChannelCapacity{Cookie: cookie, Capacity: 1})
	credit := creator.expect().(protocol.AddChannelCapacity)
	if credit.Cookie != cookie || credit.Capacity != 1 {
		t.Fatalf("credit: %+v", credit)
	}

	creator.send(protocol.SendItem{Cookie: cookie, Value: u32Value(t, 4)})
	item := peer.expect().(protocol.ItemReceived)
	if v, _ := item.Value.Deserialize(); v != protocol.U32(4) {
		t.Fatalf("item after credit: got %v", v)
	}
}

func TestChannelClaimErrors(t *testing.T) {
	b := newTestBroker(t)
	creator := connect(t, b)
	peer := connect(t, b)

	creator.send(protocol.CreateChannel{Serial: 1, Claim: protocol.ChannelEndWithCapacity{End: protocol.SenderEnd}})
	cookie := creator.expect().(protocol.CreateChannelReply).Cookie

	// Unknown cookie.
	peer.send(protocol.ClaimChannelEnd{
		Serial: 1,
		Cookie: protocol.ChannelCookie(uuid.New()),
		End:    protocol.ChannelEndWithCapacity{End: protocol.SenderEnd},
	})
	if r := peer.expect().(protocol.ClaimChannelEndReply); r.Result != protocol.ClaimChannelEndInvalidChannel {
		t.Fatalf("claim unknown: %+v", r)
	}

	// The creator already claimed the sender end.
	peer.send(protocol.ClaimChannelEnd{
		Serial: 2,
		Cookie: cookie,
		End:    protocol.ChannelEndWithCapacity{End: protocol.SenderEnd},
	})
	if r := peer.expect().(protocol.ClaimChannelEndReply); r.Result != protocol.ClaimChannelEndAlreadyClaimed {
		t.Fatalf("claim claimed end: %+v", r)
	}
}

func TestChannelClose(t *testing.T) {
	b := newTestBroker(t)
	creator := connect(t, b)
	peer := connect(t, b)

	creator.send(protocol.CreateChannel{Serial: 1, Claim: protocol.ChannelEndWithCapacity{End: protocol.SenderEnd}})
	cookie := creator.expect().(protocol.CreateChannelReply).Cookie

	peer.send(protocol.ClaimChannelEnd{
		Serial: 2,
		Cookie: cookie,
		End:    protocol.ChannelEndWithCapacity{End: protocol.ReceiverEnd, Capacity: 1},
	})
	peer.expect()
	creator.expect() // ChannelEndClaimed

	// Foreign close is rejected.
	peer.send(protocol.CloseChannelEnd{Serial: 3, Cookie: cookie, End: protocol.SenderEnd})
	if r := peer.expect().(protocol.CloseChannelEndReply); r.Result != protocol.CloseChannelEndForeignChannel {
		t.Fatalf("foreign close: %+v", r)
	}

	// Closing the sender notifies the receiver.
	creator.send(protocol.CloseChannelEnd{Serial: 4, Cookie: cookie, End: protocol.SenderEnd})
	if r := creator.expect().(protocol.CloseChannelEndReply); r.Result != protocol.CloseChannelEndOk {
		t.Fatalf("close sender: %+v", r)
	}
	closed := peer.expect().(protocol.ChannelEndClosed)
	if closed.Cookie != cookie || closed.End != protocol.SenderEnd {
		t.Fatalf("closed notification: %+v", closed)
	}

	// Closing the receiver removes the channel entirely.
	peer.send(protocol.CloseChannelEnd{Serial: 5, Cookie: cookie, End: protocol.ReceiverEnd})
	if r := peer.expect().(protocol.CloseChannelEndReply); r.Result != protocol.CloseChannelEndOk {
		t.Fatalf("close receiver: %+v", r)
	}
	peer.send(protocol.CloseChannelEnd{Serial: 6, Cookie: cookie, End: protocol.ReceiverEnd})
	if r := peer.expect().(protocol.CloseChannelEndReply); r.Result != protocol.CloseChannelEndInvalidChannel {
		t.Fatalf("close removed channel: %+v", r)
	}
}

func TestBusListenerSnapshotAndLive(t *testing.T) {
	b := newTestBroker(t)
	owner := connect(t, b)
	watcher := connect(t, b)

	o1 := owner.createObject(1, objUUID(1))
	o2 := owner.createObject(2, objUUID(2))
	_ = o2

	watcher.send(protocol.CreateBusListener{Serial: 1})
	cookie := watcher.expect().(protocol.CreateBusListenerReply).Cookie

	watcher.send(protocol.AddBusListenerFilter{Cookie: cookie, Filter: protocol.ObjectFilter(nil)})
	watcher.send(protocol.StartBusListener{Serial: 2, Cookie: cookie, Scope: protocol.ScopeAll})
	if r := watcher.expect().(protocol.StartBusListenerReply); r.Result != protocol.StartBusListenerOk {
		t.Fatalf("start: %+v", r)
	}

	// Snapshot: both objects in unspecified order, then exactly one
	// CurrentFinished.
	snapshot := map[protocol.ObjectCookie]bool{}
	for i := 0; i < 2; i++ {
		ev := watcher.expect().(protocol.EmitBusEvent)
		if ev.Cookie == nil || *ev.Cookie != cookie {
			t.Fatalf("snapshot event without listener cookie: %+v", ev)
		}
		if ev.Event.Kind != protocol.BusEventObjectCreated {
			t.Fatalf("snapshot event kind: %+v", ev.Event)
		}
		snapshot[ev.Event.Object.Cookie] = true
	}
	if !snapshot[o1] || len(snapshot) != 2 {
		t.Fatalf("snapshot incomplete: %v", snapshot)
	}
	fin := watcher.expect().(protocol.BusListenerCurrentFinished)
	if fin.Cookie != cookie {
		t.Fatalf("current finished: %+v", fin)
	}

	// Live: a new object yields one live event without a cookie.
	o3 := owner.createObject(3, objUUID(3))
	live := watcher.expect().(protocol.EmitBusEvent)
	if live.Cookie != nil || live.Event.Kind != protocol.BusEventObjectCreated || live.Event.Object.Cookie != o3 {
		t.Fatalf("live event: %+v", live)
	}

	// Stopped listeners receive nothing further.
	watcher.send(protocol.StopBusListener{Serial: 3, Cookie: cookie})
	if r := watcher.expect().(protocol.StopBusListenerReply); r.Result != protocol.StopBusListenerOk {
		t.Fatalf("stop: %+v", r)
	}
	owner.createObject(4, objUUID(4))
	watcher.expectNone(200 * time.Millisecond)

	// Stopping again reports NotStarted.
	watcher.send(protocol.StopBusListener{Serial: 4, Cookie: cookie})
	if r := watcher.expect().(protocol.StopBusListenerReply); r.Result != protocol.StopBusListenerNotStarted {
		t.Fatalf("stop again: %+v", r)
	}
}

func TestBusListenerCurrentOnly(t *testing.T) {
	b := newTestBroker(t)
	owner := connect(t, b)
	watcher := connect(t, b)

	owner.createObject(1, objUUID(1))

	watcher.send(protocol.CreateBusListener{Serial: 1})
	cookie := watcher.expect().(protocol.CreateBusListenerReply).Cookie
	watcher.send(protocol.AddBusListenerFilter{Cookie: cookie, Filter: protocol.ObjectFilter(nil)})
	watcher.send(protocol.StartBusListener{Serial: 2, Cookie: cookie, Scope: protocol.ScopeCurrentOnly})
	watcher.expect() // StartBusListenerReply

	watcher.expect() // snapshot event for the existing object
	if fin := watcher.expect().(protocol.BusListenerCurrentFinished); fin.Cookie != cookie {
		t.Fatalf("current finished: %+v", fin)
	}

	// CurrentOnly scope: no live events after the snapshot.
	owner.createObject(2, objUUID(2))
	watcher.expectNone(200 * time.Millisecond)
}

func TestBusListenerServiceFilter(t *testing.T) {
	b := newTestBroker(t)
	owner := connect(t, b)
	watcher := connect(t, b)

	watcher.send(protocol.CreateBusListener{Serial: 1})
	cookie := watcher.expect().(protocol.CreateBusListenerReply).Cookie

	want := svcUUID(7)
	watcher.send(protocol.AddBusListenerFilter{Cookie: cookie, Filter: protocol.ServiceFilter(nil, &want)})
	watcher.send(protocol.StartBusListener{Serial: 2, Cookie: cookie, Scope: protocol.ScopeNewOnly})
	watcher.expect()

	obj := owner.createObject(1, objUUID(1))
	owner.createService(2, obj, svcUUID(7))
	ev := watcher.expect().(protocol.EmitBusEvent)
	if ev.Event.Kind != protocol.BusEventServiceCreated || ev.Event.Service.UUID != want {
		t.Fatalf("service event: %+v", ev.Event)
	}

	// A service with a different uuid does not match.
	owner.createService(3, obj, svcUUID(8))
	watcher.expectNone(200 * time.Millisecond)
}

func TestVersionMismatch(t *testing.T) {
	b := newTestBroker(t)
	c := dial(t, b)

	c.send(protocol.Connect2{Major: 99, Minors: []uint32{14}, Data: protocol.EmptySerializedValue()})
	if r := c.expect().(protocol.ConnectReply2); r.Result != protocol.ConnectReply2IncompatibleVersion {
		t.Fatalf("handshake: %+v", r)
	}
	c.expectClosed()
}

func TestLegacyConnect(t *testing.T) {
	b := newTestBroker(t)
	c := dial(t, b)

	c.send(protocol.Connect{Version: 14, Value: protocol.EmptySerializedValue()})
	if r := c.expect().(protocol.ConnectReply); r.Result != protocol.ConnectOk {
		t.Fatalf("legacy handshake: %+v", r)
	}

	// The connection is fully functional afterwards.
	c.send(protocol.CreateObject{Serial: 1, UUID: objUUID(1)})
	if r := c.expect().(protocol.CreateObjectReply); r.Result != protocol.CreateObjectOk {
		t.Fatalf("create after legacy connect: %+v", r)
	}
}

func TestDisconnectDestroysObjects(t *testing.T) {
	b := newTestBroker(t)
	owner := connect(t, b)
	watcher := connect(t, b)

	watcher.send(protocol.CreateBusListener{Serial: 1})
	cookie := watcher.expect().(protocol.CreateBusListenerReply).Cookie
	watcher.send(protocol.AddBusListenerFilter{Cookie: cookie, Filter: protocol.ObjectFilter(nil)})
	watcher.send(protocol.StartBusListener{Serial: 2, Cookie: cookie, Scope: protocol.ScopeNewOnly})
	watcher.expect()

	obj := owner.createObject(1, objUUID(1))
	ev := watcher.expect().(protocol.EmitBusEvent)
	if ev.Event.Kind != protocol.BusEventObjectCreated {
		t.Fatalf("created event: %+v", ev.Event)
	}

	_ = owner.tr.Close()

	ev = watcher.expect().(protocol.EmitBusEvent)
	if ev.Event.Kind != protocol.BusEventObjectDestroyed || ev.Event.Object.Cookie != obj {
		t.Fatalf("destroyed event: %+v", ev.Event)
	}

	// The uuid is free again for other connections.
	other := connect(t, b)
	other.send(protocol.CreateObject{Serial: 1, UUID: objUUID(1)})
	if r := other.expect().(protocol.CreateObjectReply); r.Result != protocol.CreateObjectOk {
		t.Fatalf("recreate after disconnect: %+v", r)
	}
}

func TestServiceDestroyedNotification(t *testing.T) {
	b := newTestBroker(t)
	owner := connect(t, b)
	sub := connect(t, b)

	obj := owner.createObject(1, objUUID(1))
	svc := owner.createService(2, obj, svcUUID(1))

	sub.send(protocol.SubscribeService{Serial: 1, Cookie: svc})
	if r := sub.expect().(protocol.SubscribeServiceReply); r.Result != protocol.SubscribeServiceOk {
		t.Fatalf("subscribe service: %+v", r)
	}

	owner.send(protocol.DestroyService{Serial: 3, Cookie: svc})
	owner.expect()

	destroyed := sub.expect().(protocol.ServiceDestroyed)
	if destroyed.Cookie != svc {
		t.Fatalf("service destroyed: %+v", destroyed)
	}
}

func TestQueryObject(t *testing.T) {
	b := newTestBroker(t)
	owner := connect(t, b)
	querier := connect(t, b)

	obj := owner.createObject(1, objUUID(1))
	svc := owner.createService(2, obj, svcUUID(1))

	querier.send(protocol.QueryObject{Serial: 1, UUID: objUUID(1), WithServices: true})
	ok := querier.expect().(protocol.QueryObjectReply)
	if ok.Result != protocol.QueryObjectOk || ok.ObjectCookie != obj {
		t.Fatalf("query ok: %+v", ok)
	}
	servicesReply := querier.expect().(protocol.QueryObjectReply)
	if servicesReply.Result != protocol.QueryObjectService || servicesReply.ServiceCookie != svc {
		t.Fatalf("query service: %+v", servicesReply)
	}
	if done := querier.expect().(protocol.QueryObjectReply); done.Result != protocol.QueryObjectDone {
		t.Fatalf("query done: %+v", done)
	}

	querier.send(protocol.QueryObject{Serial: 2, UUID: objUUID(9)})
	if r := querier.expect().(protocol.QueryObjectReply); r.Result != protocol.QueryObjectInvalidObject {
		t.Fatalf("query unknown: %+v", r)
	}
}

func TestQueryServiceVersionAndInfo(t *testing.T) {
	b := newTestBroker(t)
	owner := connect(t, b)

	obj := owner.createObject(1, objUUID(1))
	svc := owner.createService(2, obj, svcUUID(1))

	owner.send(protocol.QueryServiceVersion{Serial: 3, Cookie: svc})
	if r := owner.expect().(protocol.QueryServiceVersionReply); r.Result != protocol.QueryServiceVersionOk || r.Version != 1 {
		t.Fatalf("query version: %+v", r)
	}

	owner.send(protocol.QueryServiceInfo{Serial: 4, Cookie: svc})
	infoReply := owner.expect().(protocol.QueryServiceInfoReply)
	if infoReply.Result != protocol.QueryServiceInfoOk {
		t.Fatalf("query info: %+v", infoReply)
	}
	info, err := protocol.DeserializeServiceInfo(protocol.SerializedValueSlice(infoReply.Info))
	if err != nil || info.Version != 1 {
		t.Fatalf("info: %+v, %v", info, err)
	}
}

func TestSync(t *testing.T) {
	b := newTestBroker(t)
	c := connect(t, b)

	c.send(protocol.CreateObject{Serial: 1, UUID: objUUID(1)})
	c.send(protocol.Sync{Serial: 2})

	// The sync reply arrives after the reply to the preceding request.
	if r := c.expect().(protocol.CreateObjectReply); r.Result != protocol.CreateObjectOk {
		t.Fatalf("create: %+v", r)
	}
	if r := c.expect().(protocol.SyncReply); r.Serial != 2 {
		t.Fatalf("sync: %+v", r)
	}
}

func TestQueryIntrospection(t *testing.T) {
	b := newTestBroker(t)
	owner := connect(t, b)
	querier := connect(t, b)

	typeID := protocol.DeriveTypeID("example.Echo@1")
	info, err := protocol.ServiceInfo{Version: 1, TypeID: &typeID}.Serialize()
	if err != nil {
		t.Fatal(err)
	}

	obj := owner.createObject(1, objUUID(1))
	owner.send(protocol.CreateService2{Serial: 2, ObjectCookie: obj, UUID: svcUUID(1), Info: info})
	owner.expect()

	querier.send(protocol.QueryIntrospection{Serial: 9, TypeID: typeID})
	fwd := owner.expect().(protocol.QueryIntrospection)
	if fwd.TypeID != typeID {
		t.Fatalf("forwarded query: %+v", fwd)
	}

	owner.send(protocol.QueryIntrospectionReply{
		Serial: fwd.Serial,
		Result: protocol.QueryIntrospectionOk,
		Value:  u32Value(t, 1),
	})
	reply := querier.expect().(protocol.QueryIntrospectionReply)
	if reply.Serial != 9 || reply.Result != protocol.QueryIntrospectionOk {
		t.Fatalf("relayed reply: %+v", reply)
	}

	// Unknown type ids are unavailable.
	querier.send(protocol.QueryIntrospection{Serial: 10, TypeID: protocol.DeriveTypeID("no.Such@1")})
	if r := querier.expect().(protocol.QueryIntrospectionReply); r.Result != protocol.QueryIntrospectionUnavailable {
		t.Fatalf("unknown type id: %+v", r)
	}
}

func TestBrokerShutdown(t *testing.T) {
	b := New(Options{Logger: zerolog.Nop()})
	go b.Run()

	c := connect(t, b)
	b.Shutdown()
	c.expectClosed()
}

func TestStatisticsSwap(t *testing.T) {
	b := newTestBroker(t)
	c := connect(t, b)
	c.createObject(1, objUUID(1))

	stats := b.Statistics()
	if stats.ConnectionsAdded != 1 || stats.CurrentConnections != 1 || stats.CurrentObjects != 1 {
		t.Fatalf("stats: %+v", stats)
	}
	if stats.MessagesByKind[protocol.KindCreateObject] != 1 {
		t.Fatalf("per-kind tally: %+v", stats.MessagesByKind)
	}

	// Interval counters reset on swap; totals persist.
	stats = b.Statistics()
	if stats.ConnectionsAdded != 0 || stats.CurrentObjects != 1 {
		t.Fatalf("stats after swap: %+v", stats)
	}
}

func TestChannelDisconnectClosesEnds(t *testing.T) {
	b := newTestBroker(t)
	creator := connect(t, b)
	peer := connect(t, b)

	creator.send(protocol.CreateChannel{Serial: 1, Claim: protocol.ChannelEndWithCapacity{End: protocol.SenderEnd}})
	cookie := creator.expect().(protocol.CreateChannelReply).Cookie

	peer.send(protocol.ClaimChannelEnd{
		Serial: 2,
		Cookie: cookie,
		End:    protocol.ChannelEndWithCapacity{End: protocol.ReceiverEnd, Capacity: 1},
	})
	peer.expect()
	creator.expect()

	_ = creator.tr.Close()

	closed := peer.expect().(protocol.ChannelEndClosed)
	if closed.Cookie != cookie || closed.End != protocol.SenderEnd {
		t.Fatalf("closed on disconnect: %+v", closed)
	}
}
