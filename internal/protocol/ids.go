package protocol

import "github.com/google/uuid"

// Client-chosen identities.
type (
	ObjectUUID  uuid.UUID
	ServiceUUID uuid.UUID
)

// Broker-chosen cookies. A cookie is unique within a broker run and
// distinguishes repeated create/destroy cycles of the same UUID.
type (
	ObjectCookie      uuid.UUID
	ServiceCookie     uuid.UUID
	ChannelCookie     uuid.UUID
	BusListenerCookie uuid.UUID
)

// TypeID identifies a schema layout. It is deterministic: the same schema
// always derives the same id.
type TypeID uuid.UUID

// ObjectID fully identifies one incarnation of an object.
type ObjectID struct {
	UUID   ObjectUUID
	Cookie ObjectCookie
}

// ServiceID fully identifies one incarnation of a service.
type ServiceID struct {
	Object ObjectID
	UUID   ServiceUUID
	Cookie ServiceCookie
}

func (u ObjectUUID) String() string        { return uuid.UUID(u).String() }
func (u ServiceUUID) String() string       { return uuid.UUID(u).String() }
func (c ObjectCookie) String() string      { return uuid.UUID(c).String() }
func (c ServiceCookie) String() string     { return uuid.UUID(c).String() }
func (c ChannelCookie) String() string     { return uuid.UUID(c).String() }
func (c BusListenerCookie) String() string { return uuid.UUID(c).String() }
func (t TypeID) String() string            { return uuid.UUID(t).String() }

func NewObjectCookie() ObjectCookie           { return ObjectCookie(uuid.New()) }
func NewServiceCookie() ServiceCookie         { return ServiceCookie(uuid.New()) }
func NewChannelCookie() ChannelCookie         { return ChannelCookie(uuid.New()) }
func NewBusListenerCookie() BusListenerCookie { return BusListenerCookie(uuid.New()) }

// TypeIDNamespace is the namespace for deriving TypeIDs from schema text.
var TypeIDNamespace = uuid.MustParse("8d3e4fed-3b2f-4a46-8bb2-52b0d3b0bb1f")

// DeriveTypeID computes the deterministic id of a schema layout.
func DeriveTypeID(layout string) TypeID {
	return TypeID(uuid.NewSHA1(TypeIDNamespace, []byte(layout)))
}
