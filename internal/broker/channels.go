package broker

import "github.com/adred-codev/aldrin/internal/protocol"

type chanEndState uint8

const (
	endUnclaimed chanEndState = iota
	endClaimed
	endClosed
)

type chanEnd struct {
	state chanEndState
	owner *conn
}

// channel is a point-to-point typed pipe. It exists while at least one
// end is not closed. capacity is the credit the sender currently holds.
type channel struct {
	cookie   protocol.ChannelCookie
	ends     [2]chanEnd // indexed by protocol.ChannelEnd
	capacity uint32
}

func (ch *channel) end(e protocol.ChannelEnd) *chanEnd { return &ch.ends[e] }

func (b *Broker) handleCreateChannel(c *conn, m protocol.CreateChannel) {
	ch := &channel{cookie: protocol.NewChannelCookie()}

	claimed := ch.end(m.Claim.End)
	claimed.state = endClaimed
	claimed.owner = c
	c.channelEnds[chanEndRef{cookie: ch.cookie, end: m.Claim.End}] = struct{}{}

	if m.Claim.End == protocol.ReceiverEnd {
		ch.capacity = m.Claim.Capacity
		if ch.capacity == 0 {
			ch.capacity = 1
		}
	}

	b.channels[ch.cookie] = ch
	channelsGauge.Set(float64(len(b.channels)))

	b.send(c, protocol.CreateChannelReply{Serial: m.Serial, Cookie: ch.cookie})
}

func (b *Broker) handleClaimChannelEnd(c *conn, m protocol.ClaimChannelEnd) {
	ch, ok := b.channels[m.Cookie]
	if !ok {
		b.send(c, protocol.ClaimChannelEndReply{Serial: m.Serial, Result: protocol.ClaimChannelEndInvalidChannel})
		return
	}

	end := ch.end(m.End.End)
	if end.state != endUnclaimed {
		b.send(c, protocol.ClaimChannelEndReply{Serial: m.Serial, Result: protocol.ClaimChannelEndAlreadyClaimed})
		return
	}

	end.state = endClaimed
	end.owner = c
	c.channelEnds[chanEndRef{cookie: ch.cookie, end: m.End.End}] = struct{}{}

	other := ch.end(m.End.End.Other())

	if m.End.End == protocol.ReceiverEnd {
		ch.capacity = m.End.Capacity
		if ch.capacity == 0 {
			ch.capacity = 1
		}
		b.send(c, protocol.ClaimChannelEndReply{Serial: m.Serial, Result: protocol.ClaimChannelEndReceiverClaimed})
		if other.state == endClaimed {
			b.send(other.owner, protocol.ChannelEndClaimed{
				Cookie: ch.cookie,
				End:    protocol.ChannelEndWithCapacity{End: protocol.ReceiverEnd, Capacity: ch.capacity},
			})
		}
	} else {
		b.send(c, protocol.ClaimChannelEndReply{
			Serial:   m.Serial,
			Result:   protocol.ClaimChannelEndSenderClaimed,
			Capacity: ch.capacity,
		})
		if other.state == endClaimed {
			b.send(other.owner, protocol.ChannelEndClaimed{
				Cookie: ch.cookie,
				End:    protocol.ChannelEndWithCapacity{End: protocol.SenderEnd},
			})
		}
	}

	// Claiming an end whose peer is already gone is answered Ok, then
	// immediately notified of the closure.
	if other.state == endClosed {
		b.send(c, protocol.ChannelEndClosed{Cookie: ch.cookie, End: m.End.End.Other()})
	}
}

func (b *Broker) handleCloseChannelEnd(c *conn, m protocol.CloseChannelEnd) {
	ch, ok := b.channels[m.Cookie]
	if !ok {
		b.send(c, protocol.CloseChannelEndReply{Serial: m.Serial, Result: protocol.CloseChannelEndInvalidChannel})
		return
	}

	end := ch.end(m.End)
	other := ch.end(m.End.Other())

	// A connection may close an end it claimed, or the unclaimed end of
	// a channel whose other end it holds (cancelling a channel nobody
	// claimed yet).
	switch end.state {
	case endClaimed:
		if end.owner != c {
			b.send(c, protocol.CloseChannelEndReply{Serial: m.Serial, Result: protocol.CloseChannelEndForeignChannel})
			return
		}
	case endUnclaimed:
		if other.state != endClaimed || other.owner != c {
			b.send(c, protocol.CloseChannelEndReply{Serial: m.Serial, Result: protocol.CloseChannelEndForeignChannel})
			return
		}
	case endClosed:
		b.send(c, protocol.CloseChannelEndReply{Serial: m.Serial, Result: protocol.CloseChannelEndInvalidChannel})
		return
	}

	b.send(c, protocol.CloseChannelEndReply{Serial: m.Serial, Result: protocol.CloseChannelEndOk})
	b.closeChannelEnd(ch, m.End)
}

// closeChannelEnd transitions one end to closed, notifies the opposite
// claimed end and removes the channel once no end remains open.
func (b *Broker) closeChannelEnd(ch *channel, which protocol.ChannelEnd) {
	end := ch.end(which)
	if end.state == endClaimed {
		delete(end.owner.channelEnds, chanEndRef{cookie: ch.cookie, end: which})
	}
	end.state = endClosed
	end.owner = nil

	other := ch.end(which.Other())
	if other.state == endClaimed {
		b.send(other.owner, protocol.ChannelEndClosed{Cookie: ch.cookie, End: which})
	}

	if other.state == endClosed {
		delete(b.channels, ch.cookie)
		channelsGauge.Set(float64(len(b.channels)))
	}
}

// handleSendItem forwards an item to the receiver if the sender owns
// the end and holds capacity. Violations are dropped silently; the
// sender-side library enforces the credit locally.
func (b *Broker) handleSendItem(c *conn, m protocol.SendItem) {
	ch, ok := b.channels[m.Cookie]
	if !ok {
		return
	}
	sender := ch.end(protocol.SenderEnd)
	if sender.state != endClaimed || sender.owner != c {
		return
	}
	if ch.capacity == 0 {
		return
	}
	receiver := ch.end(protocol.ReceiverEnd)
	if receiver.state != endClaimed {
		return
	}

	ch.capacity--
	itemsRouted.Inc()
	b.send(receiver.owner, protocol.ItemReceived{Cookie: m.Cookie, Value: m.Value})
}

// handleAddChannelCapacity credits the sender on behalf of the
// receiver. The grant accumulates while the sender end is unclaimed.
func (b *Broker) handleAddChannelCapacity(c *conn, m protocol.AddChannelCapacity) {
	if m.Capacity == 0 {
		return
	}
	ch, ok := b.channels[m.Cookie]
	if !ok {
		return
	}
	receiver := ch.end(protocol.ReceiverEnd)
	if receiver.state != endClaimed || receiver.owner != c {
		return
	}

	ch.capacity += m.Capacity

	sender := ch.end(protocol.SenderEnd)
	if sender.state == endClaimed {
		b.send(sender.owner, protocol.AddChannelCapacity{Cookie: m.Cookie, Capacity: m.Capacity})
	}
}

// closeChannelEndsOnDisconnect closes every end claimed by a vanishing
// connection.
func (b *Broker) closeChannelEndsOnDisconnect(c *conn) {
	for ref := range c.channelEnds {
		if ch, ok := b.channels[ref.cookie]; ok {
			b.closeChannelEnd(ch, ref.end)
		}
	}
	c.channelEnds = make(map[chanEndRef]struct{})
}
