package broker

import "github.com/adred-codev/aldrin/internal/protocol"

// busListener is a filtered subscription to object and service
// lifecycle events. scope is nil while the listener is stopped.
type busListener struct {
	cookie  protocol.BusListenerCookie
	owner   *conn
	filters map[filterKey]protocol.BusListenerFilter
	scope   *protocol.BusListenerScope
}

// filterKey is the comparable form of a filter, used for set
// semantics of add/remove.
type filterKey struct {
	service    bool
	hasObject  bool
	object     protocol.ObjectUUID
	hasService bool
	svc        protocol.ServiceUUID
}

func keyOf(f protocol.BusListenerFilter) filterKey {
	k := filterKey{service: f.Service}
	if f.Object != nil {
		k.hasObject = true
		k.object = *f.Object
	}
	if f.ServiceUUID != nil {
		k.hasService = true
		k.svc = *f.ServiceUUID
	}
	return k
}

func (l *busListener) matchesObject(id protocol.ObjectID) bool {
	for _, f := range l.filters {
		if f.MatchesObject(id) {
			return true
		}
	}
	return false
}

func (l *busListener) matchesService(id protocol.ServiceID) bool {
	for _, f := range l.filters {
		if f.MatchesService(id) {
			return true
		}
	}
	return false
}

// matchesLiveEvent reports whether a started listener wants the event.
// Matching is linear in the listener's filters.
func (l *busListener) matchesLiveEvent(ev protocol.BusEvent) bool {
	if l.scope == nil || !l.scope.IncludesNew() {
		return false
	}
	for _, f := range l.filters {
		if ev.Matches(f) {
			return true
		}
	}
	return false
}

func (b *Broker) handleCreateBusListener(c *conn, m protocol.CreateBusListener) {
	l := &busListener{
		cookie:  protocol.NewBusListenerCookie(),
		owner:   c,
		filters: make(map[filterKey]protocol.BusListenerFilter),
	}
	b.listeners[l.cookie] = l
	c.listeners[l.cookie] = struct{}{}
	busListenersGauge.Set(float64(len(b.listeners)))

	b.send(c, protocol.CreateBusListenerReply{Serial: m.Serial, Cookie: l.cookie})
}

func (b *Broker) handleDestroyBusListener(c *conn, m protocol.DestroyBusListener) {
	l, ok := b.listeners[m.Cookie]
	if !ok || l.owner != c {
		b.send(c, protocol.DestroyBusListenerReply{Serial: m.Serial, Result: protocol.DestroyBusListenerInvalid})
		return
	}

	delete(b.listeners, m.Cookie)
	delete(c.listeners, m.Cookie)
	busListenersGauge.Set(float64(len(b.listeners)))

	b.send(c, protocol.DestroyBusListenerReply{Serial: m.Serial, Result: protocol.DestroyBusListenerOk})
}

func (b *Broker) handleAddBusListenerFilter(c *conn, m protocol.AddBusListenerFilter) {
	if l, ok := b.listeners[m.Cookie]; ok && l.owner == c {
		l.filters[keyOf(m.Filter)] = m.Filter
	}
}

func (b *Broker) handleRemoveBusListenerFilter(c *conn, m protocol.RemoveBusListenerFilter) {
	if l, ok := b.listeners[m.Cookie]; ok && l.owner == c {
		delete(l.filters, keyOf(m.Filter))
	}
}

func (b *Broker) handleClearBusListenerFilters(c *conn, m protocol.ClearBusListenerFilters) {
	if l, ok := b.listeners[m.Cookie]; ok && l.owner == c {
		l.filters = make(map[filterKey]protocol.BusListenerFilter)
	}
}

// handleStartBusListener starts a listener. Scopes including the
// current state first emit a snapshot of matching objects, then of
// their matching services, terminated by exactly one
// BusListenerCurrentFinished. Handlers run to completion on the loop,
// so no live event can interleave with the snapshot: an event observed
// after the start is emitted after BusListenerCurrentFinished, exactly
// once.
func (b *Broker) handleStartBusListener(c *conn, m protocol.StartBusListener) {
	l, ok := b.listeners[m.Cookie]
	if !ok || l.owner != c {
		b.send(c, protocol.StartBusListenerReply{Serial: m.Serial, Result: protocol.StartBusListenerInvalid})
		return
	}
	if l.scope != nil {
		b.send(c, protocol.StartBusListenerReply{Serial: m.Serial, Result: protocol.StartBusListenerAlreadyStarted})
		return
	}

	scope := m.Scope
	l.scope = &scope
	b.send(c, protocol.StartBusListenerReply{Serial: m.Serial, Result: protocol.StartBusListenerOk})

	if !scope.IncludesCurrent() {
		return
	}

	for _, obj := range b.objects {
		if l.matchesObject(obj.id) {
			b.send(c, protocol.EmitBusEvent{
				Cookie: &l.cookie,
				Event:  protocol.ObjectCreatedEvent(obj.id),
			})
		}
		for _, svc := range obj.services {
			if l.matchesService(svc.id) {
				b.send(c, protocol.EmitBusEvent{
					Cookie: &l.cookie,
					Event:  protocol.ServiceCreatedEvent(svc.id),
				})
			}
		}
	}

	b.send(c, protocol.BusListenerCurrentFinished{Cookie: l.cookie})
}

func (b *Broker) handleStopBusListener(c *conn, m protocol.StopBusListener) {
	l, ok := b.listeners[m.Cookie]
	if !ok || l.owner != c {
		b.send(c, protocol.StopBusListenerReply{Serial: m.Serial, Result: protocol.StopBusListenerInvalid})
		return
	}
	if l.scope == nil {
		b.send(c, protocol.StopBusListenerReply{Serial: m.Serial, Result: protocol.StopBusListenerNotStarted})
		return
	}

	l.scope = nil
	b.send(c, protocol.StopBusListenerReply{Serial: m.Serial, Result: protocol.StopBusListenerOk})
}

// emitBusEvent fans a live lifecycle event out to every connection
// holding at least one started, matching listener. Live events carry
// no listener cookie; clients match them against their own listeners.
func (b *Broker) emitBusEvent(ev protocol.BusEvent) {
	var delivered map[*conn]struct{}

	for _, l := range b.listeners {
		if !l.matchesLiveEvent(ev) {
			continue
		}
		if delivered == nil {
			delivered = make(map[*conn]struct{}, 1)
		}
		if _, ok := delivered[l.owner]; ok {
			continue
		}
		delivered[l.owner] = struct{}{}
		b.send(l.owner, protocol.EmitBusEvent{Event: ev})
		busEventsEmitted.Inc()
	}
}

// destroyListenersOnDisconnect removes every listener a vanishing
// connection owns.
func (b *Broker) destroyListenersOnDisconnect(c *conn) {
	for cookie := range c.listeners {
		delete(b.listeners, cookie)
	}
	c.listeners = make(map[protocol.BusListenerCookie]struct{})
	busListenersGauge.Set(float64(len(b.listeners)))
}
