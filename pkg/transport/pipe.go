package transport

import (
	"errors"
	"io"
	"sync"

	"github.com/adred-codev/aldrin/internal/protocol"
)

// ErrPipeClosed is returned by Send on a closed pipe.
var ErrPipeClosed = errors.New("pipe transport closed")

// Pipe returns two connected in-memory transports. Messages pass by
// value without serialization; closing either side unblocks both.
// Primarily used by the test suites and for in-process clients.
func Pipe(buffer int) (*PipeTransport, *PipeTransport) {
	if buffer <= 0 {
		buffer = 16
	}

	ab := make(chan protocol.Message, buffer)
	ba := make(chan protocol.Message, buffer)
	done := make(chan struct{})
	once := &sync.Once{}

	a := &PipeTransport{send: ab, recv: ba, done: done, once: once}
	b := &PipeTransport{send: ba, recv: ab, done: done, once: once}
	return a, b
}

// PipeTransport is one side of an in-memory duplex message pipe.
type PipeTransport struct {
	send chan protocol.Message
	recv chan protocol.Message
	done chan struct{}
	once *sync.Once
}

func (p *PipeTransport) Receive() (protocol.Message, error) {
	select {
	case m := <-p.recv:
		return m, nil
	case <-p.done:
		// Drain messages that were in flight before the close.
		select {
		case m := <-p.recv:
			return m, nil
		default:
			return nil, io.EOF
		}
	}
}

func (p *PipeTransport) Send(m protocol.Message) error {
	// A closed pipe must refuse even when the buffer still has room;
	// the select below would otherwise pick either ready case.
	select {
	case <-p.done:
		return ErrPipeClosed
	default:
	}
	select {
	case p.send <- m:
		return nil
	case <-p.done:
		return ErrPipeClosed
	}
}

func (p *PipeTransport) Flush() error {
	select {
	case <-p.done:
		return ErrPipeClosed
	default:
		return nil
	}
}

func (p *PipeTransport) Close() error {
	p.once.Do(func() { close(p.done) })
	return nil
}
