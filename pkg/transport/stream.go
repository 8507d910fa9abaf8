// Package transport provides framed message transports for the broker
// core: length-framed byte streams (TCP, unix sockets), WebSocket and
// an in-memory pipe for tests. The core only sees whole messages; all
// packetization lives here.
package transport

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/adred-codev/aldrin/internal/protocol"
)

// DefaultMaxFrameSize bounds a single message frame on byte-stream
// transports.
const DefaultMaxFrameSize = 16 << 20

// Stream frames protocol messages over any byte stream. Frames are
// self-delimiting (the message codec's length prefix), so the stream
// adds no extra framing of its own.
//
// Receive and Send/Flush may run on two different goroutines, one
// each, which is exactly how the broker drives its transports.
type Stream struct {
	rw           io.ReadWriteCloser
	r            *bufio.Reader
	w            *bufio.Writer
	maxFrameSize uint32
}

// NewStream wraps a connected byte stream.
func NewStream(rw io.ReadWriteCloser) *Stream {
	return &Stream{
		rw:           rw,
		r:            bufio.NewReader(rw),
		w:            bufio.NewWriter(rw),
		maxFrameSize: DefaultMaxFrameSize,
	}
}

// SetMaxFrameSize overrides the frame size bound. Must be called
// before the first Receive.
func (s *Stream) SetMaxFrameSize(n uint32) { s.maxFrameSize = n }

func (s *Stream) Receive() (protocol.Message, error) {
	var header [4]byte
	if _, err := io.ReadFull(s.r, header[:]); err != nil {
		return nil, err
	}

	size := binary.LittleEndian.Uint32(header[:])
	if size < 5 || size > s.maxFrameSize {
		return nil, fmt.Errorf("invalid frame size %d", size)
	}

	frame := make([]byte, size)
	copy(frame, header[:])
	if _, err := io.ReadFull(s.r, frame[4:]); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}

	return protocol.DecodeMessage(frame)
}

func (s *Stream) Send(m protocol.Message) error {
	frame, err := protocol.EncodeMessage(m)
	if err != nil {
		return err
	}
	_, err = s.w.Write(frame)
	return err
}

func (s *Stream) Flush() error { return s.w.Flush() }

func (s *Stream) Close() error { return s.rw.Close() }
