package broker

import "github.com/adred-codev/aldrin/internal/protocol"

// Statistics accumulates broker counters between snapshots. The loop
// owns the live instance; Broker.Statistics swaps it out atomically
// with respect to message dispatch.
type Statistics struct {
	// Interval counters, reset by every snapshot.
	ConnectionsAdded    uint64
	ConnectionsShutDown uint64
	MessagesByKind      map[protocol.Kind]uint64

	// Current totals, sampled at snapshot time.
	CurrentConnections  int
	CurrentObjects      int
	CurrentServices     int
	CurrentChannels     int
	CurrentBusListeners int
}

func (s *Statistics) countMessage(k protocol.Kind) {
	if s.MessagesByKind == nil {
		s.MessagesByKind = make(map[protocol.Kind]uint64)
	}
	s.MessagesByKind[k]++
}

// swap returns the accumulated counters with the current totals filled
// in and resets the interval counters.
func (s *Statistics) swap(conns, objects, services, channels, listeners int) Statistics {
	out := *s
	out.CurrentConnections = conns
	out.CurrentObjects = objects
	out.CurrentServices = services
	out.CurrentChannels = channels
	out.CurrentBusListeners = listeners

	s.ConnectionsAdded = 0
	s.ConnectionsShutDown = 0
	s.MessagesByKind = nil

	return out
}
