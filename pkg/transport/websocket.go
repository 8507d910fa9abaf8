package transport

import (
	"fmt"
	"io"
	"net"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/adred-codev/aldrin/internal/protocol"
)

// WebSocket carries one protocol message per binary WebSocket frame.
// The zero value is not usable; wrap an upgraded connection with
// NewServerWebSocket or NewClientWebSocket.
type WebSocket struct {
	conn   net.Conn
	client bool
}

// NewServerWebSocket wraps a connection upgraded with ws.UpgradeHTTP.
func NewServerWebSocket(conn net.Conn) *WebSocket {
	return &WebSocket{conn: conn}
}

// NewClientWebSocket wraps a connection dialed with ws.Dial.
func NewClientWebSocket(conn net.Conn) *WebSocket {
	return &WebSocket{conn: conn, client: true}
}

func (t *WebSocket) Receive() (protocol.Message, error) {
	for {
		var (
			data []byte
			op   ws.OpCode
			err  error
		)
		if t.client {
			data, op, err = wsutil.ReadServerData(t.conn)
		} else {
			data, op, err = wsutil.ReadClientData(t.conn)
		}
		if err != nil {
			if _, ok := err.(wsutil.ClosedError); ok {
				return nil, io.EOF
			}
			return nil, err
		}

		switch op {
		case ws.OpBinary:
			return protocol.DecodeMessage(data)
		case ws.OpClose:
			return nil, io.EOF
		case ws.OpPing, ws.OpPong:
			// wsutil answers pings; skip control frames.
			continue
		default:
			return nil, fmt.Errorf("unexpected websocket opcode %d", op)
		}
	}
}

func (t *WebSocket) Send(m protocol.Message) error {
	frame, err := protocol.EncodeMessage(m)
	if err != nil {
		return err
	}
	if t.client {
		return wsutil.WriteClientBinary(t.conn, frame)
	}
	return wsutil.WriteServerBinary(t.conn, frame)
}

// Flush is a no-op: frames are written through to the socket.
func (t *WebSocket) Flush() error { return nil }

func (t *WebSocket) Close() error { return t.conn.Close() }
