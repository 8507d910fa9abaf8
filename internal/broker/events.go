package broker

import "github.com/adred-codev/aldrin/internal/protocol"

// Event subscription engine. Per-service registries are created lazily
// and removed when empty; the first subscriber of a (service, event)
// pair and the last one leaving are propagated to the service owner so
// it can start and stop producing.

func (b *Broker) handleSubscribeEvent(c *conn, m protocol.SubscribeEvent) {
	svc, ok := b.services[m.Cookie]
	if !ok {
		if m.Serial != nil {
			b.send(c, protocol.SubscribeEventReply{Serial: *m.Serial, Result: protocol.SubscribeEventInvalidService})
		}
		return
	}

	subs, ok := svc.events[m.Event]
	if !ok {
		subs = make(map[*conn]struct{}, 1)
		svc.events[m.Event] = subs
	}
	first := len(subs) == 0
	subs[c] = struct{}{}
	c.eventSubs[eventSubKey{cookie: m.Cookie, event: m.Event}] = struct{}{}

	if m.Serial != nil {
		b.send(c, protocol.SubscribeEventReply{Serial: *m.Serial, Result: protocol.SubscribeEventOk})
	}

	if first && svc.obj.owner != c {
		b.send(svc.obj.owner, protocol.SubscribeEvent{Cookie: m.Cookie, Event: m.Event})
	}
}

func (b *Broker) handleUnsubscribeEvent(c *conn, m protocol.UnsubscribeEvent) {
	svc, ok := b.services[m.Cookie]
	if !ok {
		return
	}
	subs, ok := svc.events[m.Event]
	if !ok {
		return
	}
	if _, ok := subs[c]; !ok {
		return
	}

	delete(subs, c)
	delete(c.eventSubs, eventSubKey{cookie: m.Cookie, event: m.Event})

	if len(subs) == 0 {
		delete(svc.events, m.Event)
		if svc.obj.owner != c {
			b.send(svc.obj.owner, protocol.UnsubscribeEvent{Cookie: m.Cookie, Event: m.Event})
		}
	}
}

func (b *Broker) handleSubscribeAllEvents(c *conn, m protocol.SubscribeAllEvents) {
	svc, ok := b.services[m.Cookie]
	if !ok {
		if m.Serial != nil {
			b.send(c, protocol.SubscribeAllEventsReply{Serial: *m.Serial, Result: protocol.SubscribeAllEventsInvalidService})
		}
		return
	}
	if !svc.info.AllEventsSupported() {
		if m.Serial != nil {
			b.send(c, protocol.SubscribeAllEventsReply{Serial: *m.Serial, Result: protocol.SubscribeAllEventsNotSupported})
		}
		return
	}

	first := len(svc.allEvents) == 0
	svc.allEvents[c] = struct{}{}
	c.allEventSubs[m.Cookie] = struct{}{}

	if m.Serial != nil {
		b.send(c, protocol.SubscribeAllEventsReply{Serial: *m.Serial, Result: protocol.SubscribeAllEventsOk})
	}

	if first && svc.obj.owner != c {
		b.send(svc.obj.owner, protocol.SubscribeAllEvents{Cookie: m.Cookie})
	}
}

func (b *Broker) handleUnsubscribeAllEvents(c *conn, m protocol.UnsubscribeAllEvents) {
	svc, ok := b.services[m.Cookie]
	if !ok {
		if m.Serial != nil {
			b.send(c, protocol.UnsubscribeAllEventsReply{Serial: *m.Serial, Result: protocol.UnsubscribeAllEventsInvalidService})
		}
		return
	}
	if !svc.info.AllEventsSupported() {
		if m.Serial != nil {
			b.send(c, protocol.UnsubscribeAllEventsReply{Serial: *m.Serial, Result: protocol.UnsubscribeAllEventsNotSupported})
		}
		return
	}

	if _, ok := svc.allEvents[c]; ok {
		delete(svc.allEvents, c)
		delete(c.allEventSubs, m.Cookie)
		if len(svc.allEvents) == 0 && svc.obj.owner != c {
			b.send(svc.obj.owner, protocol.UnsubscribeAllEvents{Cookie: m.Cookie})
		}
	}

	if m.Serial != nil {
		b.send(c, protocol.UnsubscribeAllEventsReply{Serial: *m.Serial, Result: protocol.UnsubscribeAllEventsOk})
	}
}

// handleEmitEvent fans the event out to every connection subscribed to
// the specific event id or to all events. Emitting to a destroyed
// service is silently dropped.
func (b *Broker) handleEmitEvent(c *conn, m protocol.EmitEvent) {
	svc, ok := b.services[m.Cookie]
	if !ok {
		return
	}

	delivered := make(map[*conn]struct{}, len(svc.allEvents))
	for sub := range svc.events[m.Event] {
		delivered[sub] = struct{}{}
	}
	for sub := range svc.allEvents {
		delivered[sub] = struct{}{}
	}

	for sub := range delivered {
		b.send(sub, m)
		eventsFanned.Inc()
	}
}

// dropSubscriptionsOnDisconnect removes every subscription a vanishing
// connection holds, forwarding last-subscriber notifications exactly
// like explicit unsubscribes.
func (b *Broker) dropSubscriptionsOnDisconnect(c *conn) {
	for key := range c.eventSubs {
		svc, ok := b.services[key.cookie]
		if !ok {
			continue
		}
		if subs, ok := svc.events[key.event]; ok {
			delete(subs, c)
			if len(subs) == 0 {
				delete(svc.events, key.event)
				if svc.obj.owner != c {
					b.send(svc.obj.owner, protocol.UnsubscribeEvent{Cookie: key.cookie, Event: key.event})
				}
			}
		}
	}
	c.eventSubs = make(map[eventSubKey]struct{})

	for cookie := range c.allEventSubs {
		svc, ok := b.services[cookie]
		if !ok {
			continue
		}
		delete(svc.allEvents, c)
		if len(svc.allEvents) == 0 && svc.obj.owner != c {
			b.send(svc.obj.owner, protocol.UnsubscribeAllEvents{Cookie: cookie})
		}
	}
	c.allEventSubs = make(map[protocol.ServiceCookie]struct{})

	for cookie := range c.serviceSubs {
		if svc, ok := b.services[cookie]; ok {
			delete(svc.stateSubs, c)
		}
	}
	c.serviceSubs = make(map[protocol.ServiceCookie]struct{})
}
