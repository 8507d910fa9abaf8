package broker

import "github.com/adred-codev/aldrin/internal/protocol"

// object is one live object incarnation, owned by exactly one
// connection. Objects refer to their owner and the owner keeps a set of
// object cookies; there are no owning cycles.
type object struct {
	id       protocol.ObjectID
	owner    *conn
	services map[protocol.ServiceUUID]*service
}

// service is one live service incarnation on an object.
type service struct {
	id        protocol.ServiceID
	obj       *object
	info      protocol.ServiceInfo
	infoValue protocol.SerializedValue

	// calls holds the callee-side serials of in-flight function calls
	// targeting this service.
	calls map[uint32]struct{}

	// events maps event id to its subscriber set; entries are created
	// lazily and removed when empty. allEvents is the wildcard set and
	// stateSubs the service-state subscription set.
	events    map[uint32]map[*conn]struct{}
	allEvents map[*conn]struct{}
	stateSubs map[*conn]struct{}
}

func (b *Broker) handleCreateObject(c *conn, m protocol.CreateObject) {
	if _, ok := b.objects[m.UUID]; ok {
		b.send(c, protocol.CreateObjectReply{Serial: m.Serial, Result: protocol.CreateObjectDuplicate})
		return
	}

	obj := &object{
		id: protocol.ObjectID{
			UUID:   m.UUID,
			Cookie: protocol.NewObjectCookie(),
		},
		owner:    c,
		services: make(map[protocol.ServiceUUID]*service),
	}

	b.objects[m.UUID] = obj
	b.objectsByCookie[obj.id.Cookie] = obj
	c.objects[obj.id.Cookie] = struct{}{}
	objectsGauge.Set(float64(len(b.objects)))

	b.send(c, protocol.CreateObjectReply{
		Serial: m.Serial,
		Result: protocol.CreateObjectOk,
		Cookie: obj.id.Cookie,
	})

	b.emitBusEvent(protocol.ObjectCreatedEvent(obj.id))
}

func (b *Broker) handleDestroyObject(c *conn, m protocol.DestroyObject) {
	obj, ok := b.objectsByCookie[m.Cookie]
	if !ok {
		b.send(c, protocol.DestroyObjectReply{Serial: m.Serial, Result: protocol.DestroyObjectInvalidObject})
		return
	}
	if obj.owner != c {
		b.send(c, protocol.DestroyObjectReply{Serial: m.Serial, Result: protocol.DestroyObjectForeignObject})
		return
	}

	b.send(c, protocol.DestroyObjectReply{Serial: m.Serial, Result: protocol.DestroyObjectOk})
	b.destroyObject(obj)
}

// destroyObject tears down an object and every service underneath it.
// Each service destruction precedes the object's own destroyed event.
func (b *Broker) destroyObject(obj *object) {
	for _, svc := range obj.services {
		b.destroyService(svc)
	}

	delete(b.objects, obj.id.UUID)
	delete(b.objectsByCookie, obj.id.Cookie)
	delete(obj.owner.objects, obj.id.Cookie)
	objectsGauge.Set(float64(len(b.objects)))

	b.emitBusEvent(protocol.ObjectDestroyedEvent(obj.id))
}

func (b *Broker) handleQueryObject(c *conn, m protocol.QueryObject) {
	obj, ok := b.objects[m.UUID]
	if !ok {
		b.send(c, protocol.QueryObjectReply{Serial: m.Serial, Result: protocol.QueryObjectInvalidObject})
		return
	}

	b.send(c, protocol.QueryObjectReply{
		Serial:       m.Serial,
		Result:       protocol.QueryObjectOk,
		ObjectCookie: obj.id.Cookie,
	})
	if !m.WithServices {
		return
	}

	for _, svc := range obj.services {
		b.send(c, protocol.QueryObjectReply{
			Serial:        m.Serial,
			Result:        protocol.QueryObjectService,
			ServiceUUID:   svc.id.UUID,
			ServiceCookie: svc.id.Cookie,
		})
	}
	b.send(c, protocol.QueryObjectReply{Serial: m.Serial, Result: protocol.QueryObjectDone})
}

func (b *Broker) handleCreateService2(c *conn, m protocol.CreateService2) {
	info, err := protocol.DeserializeServiceInfo(protocol.SerializedValueSlice(m.Info))
	if err != nil {
		c.log.Warn().Err(err).Msg("malformed service info")
		b.scheduleClose(c, err, false)
		return
	}
	b.handleCreateService(c, m.Serial, m.ObjectCookie, m.UUID, info, m.Info)
}

func (b *Broker) handleCreateService(
	c *conn,
	serial uint32,
	objectCookie protocol.ObjectCookie,
	uuid protocol.ServiceUUID,
	info protocol.ServiceInfo,
	infoValue protocol.SerializedValue,
) {
	obj, ok := b.objectsByCookie[objectCookie]
	if !ok {
		b.send(c, protocol.CreateServiceReply{Serial: serial, Result: protocol.CreateServiceInvalidObject})
		return
	}
	if obj.owner != c {
		b.send(c, protocol.CreateServiceReply{Serial: serial, Result: protocol.CreateServiceForeignObject})
		return
	}
	if _, ok := obj.services[uuid]; ok {
		b.send(c, protocol.CreateServiceReply{Serial: serial, Result: protocol.CreateServiceDuplicate})
		return
	}

	if infoValue == nil {
		// Legacy CreateService carries a bare version; synthesize the
		// info value so QueryServiceInfo works uniformly.
		var err error
		if infoValue, err = info.Serialize(); err != nil {
			b.scheduleClose(c, err, false)
			return
		}
	}

	svc := &service{
		id: protocol.ServiceID{
			Object: obj.id,
			UUID:   uuid,
			Cookie: protocol.NewServiceCookie(),
		},
		obj:       obj,
		info:      info,
		infoValue: infoValue,
		calls:     make(map[uint32]struct{}),
		events:    make(map[uint32]map[*conn]struct{}),
		allEvents: make(map[*conn]struct{}),
		stateSubs: make(map[*conn]struct{}),
	}

	obj.services[uuid] = svc
	b.services[svc.id.Cookie] = svc
	servicesGauge.Set(float64(len(b.services)))

	b.send(c, protocol.CreateServiceReply{
		Serial: serial,
		Result: protocol.CreateServiceOk,
		Cookie: svc.id.Cookie,
	})

	b.emitBusEvent(protocol.ServiceCreatedEvent(svc.id))
}

func (b *Broker) handleDestroyService(c *conn, m protocol.DestroyService) {
	svc, ok := b.services[m.Cookie]
	if !ok {
		b.send(c, protocol.DestroyServiceReply{Serial: m.Serial, Result: protocol.DestroyServiceInvalidService})
		return
	}
	if svc.obj.owner != c {
		b.send(c, protocol.DestroyServiceReply{Serial: m.Serial, Result: protocol.DestroyServiceForeignObject})
		return
	}

	b.send(c, protocol.DestroyServiceReply{Serial: m.Serial, Result: protocol.DestroyServiceOk})
	delete(svc.obj.services, svc.id.UUID)
	b.destroyService(svc)
}

// destroyService removes a service, aborts its in-flight calls with
// InvalidService and notifies state subscribers and bus listeners. The
// caller removes it from its object when destroying explicitly;
// destroyObject drops the whole map afterwards.
func (b *Broker) destroyService(svc *service) {
	for serial := range svc.calls {
		if call, ok := b.calls.remove(serial); ok {
			b.send(call.caller, protocol.CallFunctionReply{
				Serial: call.callerSerial,
				Result: protocol.CallFunctionInvalidService,
				Value:  protocol.EmptySerializedValue(),
			})
		}
	}

	for sub := range svc.stateSubs {
		delete(sub.serviceSubs, svc.id.Cookie)
		b.send(sub, protocol.ServiceDestroyed{Cookie: svc.id.Cookie})
	}

	for event, subs := range svc.events {
		for sub := range subs {
			delete(sub.eventSubs, eventSubKey{cookie: svc.id.Cookie, event: event})
		}
	}
	for sub := range svc.allEvents {
		delete(sub.allEventSubs, svc.id.Cookie)
	}

	delete(b.services, svc.id.Cookie)
	servicesGauge.Set(float64(len(b.services)))

	b.emitBusEvent(protocol.ServiceDestroyedEvent(svc.id))
}

func (b *Broker) handleQueryServiceVersion(c *conn, m protocol.QueryServiceVersion) {
	svc, ok := b.services[m.Cookie]
	if !ok {
		b.send(c, protocol.QueryServiceVersionReply{Serial: m.Serial, Result: protocol.QueryServiceVersionInvalidService})
		return
	}
	b.send(c, protocol.QueryServiceVersionReply{
		Serial:  m.Serial,
		Result:  protocol.QueryServiceVersionOk,
		Version: svc.info.Version,
	})
}

func (b *Broker) handleQueryServiceInfo(c *conn, m protocol.QueryServiceInfo) {
	svc, ok := b.services[m.Cookie]
	if !ok {
		b.send(c, protocol.QueryServiceInfoReply{Serial: m.Serial, Result: protocol.QueryServiceInfoInvalidService})
		return
	}
	b.send(c, protocol.QueryServiceInfoReply{
		Serial: m.Serial,
		Result: protocol.QueryServiceInfoOk,
		Info:   svc.infoValue,
	})
}

func (b *Broker) handleSubscribeService(c *conn, m protocol.SubscribeService) {
	svc, ok := b.services[m.Cookie]
	if !ok {
		b.send(c, protocol.SubscribeServiceReply{Serial: m.Serial, Result: protocol.SubscribeServiceInvalidService})
		return
	}
	svc.stateSubs[c] = struct{}{}
	c.serviceSubs[m.Cookie] = struct{}{}
	b.send(c, protocol.SubscribeServiceReply{Serial: m.Serial, Result: protocol.SubscribeServiceOk})
}

func (b *Broker) handleUnsubscribeService(c *conn, m protocol.UnsubscribeService) {
	if svc, ok := b.services[m.Cookie]; ok {
		delete(svc.stateSubs, c)
	}
	delete(c.serviceSubs, m.Cookie)
}
