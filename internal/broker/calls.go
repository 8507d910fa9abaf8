package broker

import "github.com/adred-codev/aldrin/internal/protocol"

// pendingCall is one in-flight function call. It is keyed in
// Broker.calls by the callee-side serial the broker allocated.
type pendingCall struct {
	caller       *conn
	callerSerial uint32
	callee       *conn
	svc          *service

	// legacy is set when the caller used CallFunction, so the broker
	// forwards the same form to the callee.
	legacy  bool
	version *uint32
}

func (b *Broker) handleCallFunction(
	c *conn,
	legacy bool,
	serial uint32,
	cookie protocol.ServiceCookie,
	function uint32,
	version *uint32,
	args protocol.SerializedValue,
) {
	svc, ok := b.services[cookie]
	if !ok {
		b.send(c, protocol.CallFunctionReply{
			Serial: serial,
			Result: protocol.CallFunctionInvalidService,
			Value:  protocol.EmptySerializedValue(),
		})
		return
	}

	call := &pendingCall{
		caller:       c,
		callerSerial: serial,
		callee:       svc.obj.owner,
		svc:          svc,
		legacy:       legacy,
		version:      version,
	}
	calleeSerial := b.calls.insert(call)
	svc.calls[calleeSerial] = struct{}{}
	callsInFlight.Set(float64(b.calls.len()))

	if call.legacy {
		b.send(call.callee, protocol.CallFunction{
			Serial:   calleeSerial,
			Cookie:   cookie,
			Function: function,
			Args:     args,
		})
	} else {
		b.send(call.callee, protocol.CallFunction2{
			Serial:   calleeSerial,
			Cookie:   cookie,
			Function: function,
			Version:  version,
			Args:     args,
		})
	}
}

// handleCallFunctionReply routes a callee's reply back to the caller
// under the caller's original serial. Replies to unknown serials (e.g.
// after an abort) are dropped.
func (b *Broker) handleCallFunctionReply(c *conn, m protocol.CallFunctionReply) {
	call, ok := b.calls.get(m.Serial)
	if !ok || call.callee != c {
		return
	}

	b.calls.remove(m.Serial)
	delete(call.svc.calls, m.Serial)
	callsInFlight.Set(float64(b.calls.len()))

	b.send(call.caller, protocol.CallFunctionReply{
		Serial: call.callerSerial,
		Result: m.Result,
		Value:  m.Value,
	})
}

// handleAbortFunctionCall cancels the caller's pending call and lets
// the callee drop the work. The caller gets no further reply; a late
// reply from the callee no longer matches a routing entry and is
// dropped.
func (b *Broker) handleAbortFunctionCall(c *conn, m protocol.AbortFunctionCall) {
	for calleeSerial, call := range b.calls.entries {
		if call.caller != c || call.callerSerial != m.Serial {
			continue
		}
		b.calls.remove(calleeSerial)
		delete(call.svc.calls, calleeSerial)
		callsInFlight.Set(float64(b.calls.len()))
		b.send(call.callee, protocol.AbortFunctionCall{Serial: calleeSerial})
		return
	}
}

// abortCallsOnDisconnect resolves every in-flight call touching a
// vanishing connection: its outstanding requests are aborted at the
// callee, and calls it was serving report Aborted to their callers.
func (b *Broker) abortCallsOnDisconnect(c *conn) {
	for calleeSerial, call := range b.calls.entries {
		switch {
		case call.callee == c:
			b.calls.remove(calleeSerial)
			delete(call.svc.calls, calleeSerial)
			b.send(call.caller, protocol.CallFunctionReply{
				Serial: call.callerSerial,
				Result: protocol.CallFunctionAborted,
				Value:  protocol.EmptySerializedValue(),
			})

		case call.caller == c:
			b.calls.remove(calleeSerial)
			delete(call.svc.calls, calleeSerial)
			b.send(call.callee, protocol.AbortFunctionCall{Serial: calleeSerial})
		}
	}
	callsInFlight.Set(float64(b.calls.len()))
}

// pendingIntrospection is one in-flight introspection query, keyed by
// the serial forwarded to the resolving connection.
type pendingIntrospection struct {
	caller       *conn
	callerSerial uint32
	target       *conn
}

// handleQueryIntrospection relays the query to a connection owning a
// service that registered the type id.
func (b *Broker) handleQueryIntrospection(c *conn, m protocol.QueryIntrospection) {
	target := b.introspectionTarget(m.TypeID)
	if target == nil {
		b.send(c, protocol.QueryIntrospectionReply{
			Serial: m.Serial,
			Result: protocol.QueryIntrospectionUnavailable,
			Value:  protocol.EmptySerializedValue(),
		})
		return
	}

	serial := b.introspections.insert(&pendingIntrospection{
		caller:       c,
		callerSerial: m.Serial,
		target:       target,
	})
	b.send(target, protocol.QueryIntrospection{Serial: serial, TypeID: m.TypeID})
}

func (b *Broker) introspectionTarget(id protocol.TypeID) *conn {
	for _, svc := range b.services {
		if svc.info.TypeID != nil && *svc.info.TypeID == id {
			return svc.obj.owner
		}
	}
	return nil
}

func (b *Broker) handleQueryIntrospectionReply(c *conn, m protocol.QueryIntrospectionReply) {
	q, ok := b.introspections.get(m.Serial)
	if !ok || q.target != c {
		return
	}
	b.introspections.remove(m.Serial)
	b.send(q.caller, protocol.QueryIntrospectionReply{
		Serial: q.callerSerial,
		Result: m.Result,
		Value:  m.Value,
	})
}

func (b *Broker) abortIntrospectionsOnDisconnect(c *conn) {
	for serial, q := range b.introspections.entries {
		switch {
		case q.target == c:
			b.introspections.remove(serial)
			b.send(q.caller, protocol.QueryIntrospectionReply{
				Serial: q.callerSerial,
				Result: protocol.QueryIntrospectionUnavailable,
				Value:  protocol.EmptySerializedValue(),
			})
		case q.caller == c:
			b.introspections.remove(serial)
		}
	}
}
