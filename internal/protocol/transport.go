package protocol

// Transport is a framed duplex link carrying whole protocol messages.
// The broker never sees the underlying wire bytes; packetization,
// serialization into frames and any compression are the transport's
// concern.
//
// Receive blocks until a message arrives. Send may buffer; Flush pushes
// buffered messages to the peer. All methods return a terminal error
// once the link has failed, and Close releases it.
type Transport interface {
	Receive() (Message, error)
	Send(Message) error
	Flush() error
	Close() error
}
