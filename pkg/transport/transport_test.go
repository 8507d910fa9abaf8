package transport

import (
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/adred-codev/aldrin/internal/protocol"
)

func TestStreamRoundtrip(t *testing.T) {
	left, right := net.Pipe()
	a := NewStream(left)
	b := NewStream(right)

	sent := []protocol.Message{
		protocol.CreateObject{Serial: 1, UUID: protocol.ObjectUUID(uuid.New())},
		protocol.Sync{Serial: 2},
		protocol.Shutdown{},
	}

	errCh := make(chan error, 1)
	go func() {
		for _, m := range sent {
			if err := a.Send(m); err != nil {
				errCh <- err
				return
			}
		}
		errCh <- a.Flush()
	}()

	for _, want := range sent {
		got, err := b.Receive()
		if err != nil {
			t.Fatalf("receive: %v", err)
		}
		if got.MessageKind() != want.MessageKind() {
			t.Fatalf("got %s, want %s", got.MessageKind(), want.MessageKind())
		}
	}

	if err := <-errCh; err != nil {
		t.Fatalf("send side: %v", err)
	}

	_ = a.Close()
	if _, err := b.Receive(); err == nil {
		t.Fatal("receive after close succeeded")
	}
}

func TestStreamRejectsOversizedFrame(t *testing.T) {
	left, right := net.Pipe()
	b := NewStream(right)
	b.SetMaxFrameSize(64)

	go func() {
		// A length prefix far beyond the bound; no payload follows.
		_, _ = left.Write([]byte{0xff, 0xff, 0xff, 0x7f})
	}()

	if _, err := b.Receive(); err == nil {
		t.Fatal("oversized frame accepted")
	}
}

func TestStreamRejectsShortFrame(t *testing.T) {
	left, right := net.Pipe()
	b := NewStream(right)

	go func() {
		_, _ = left.Write([]byte{4, 0, 0, 0})
	}()

	if _, err := b.Receive(); err == nil {
		t.Fatal("undersized frame accepted")
	}
}

func TestPipeTransport(t *testing.T) {
	a, b := Pipe(4)

	if err := a.Send(protocol.Sync{Serial: 1}); err != nil {
		t.Fatal(err)
	}
	m, err := b.Receive()
	if err != nil {
		t.Fatal(err)
	}
	if m.(protocol.Sync).Serial != 1 {
		t.Fatalf("got %#v", m)
	}

	// Messages in flight at close time are still delivered, then EOF.
	if err := a.Send(protocol.Sync{Serial: 2}); err != nil {
		t.Fatal(err)
	}
	_ = a.Close()

	if m, err := b.Receive(); err != nil || m.(protocol.Sync).Serial != 2 {
		t.Fatalf("drain after close: %#v, %v", m, err)
	}
	if _, err := b.Receive(); !errors.Is(err, io.EOF) {
		t.Fatalf("got %v, want io.EOF", err)
	}
	if err := b.Send(protocol.Sync{Serial: 3}); !errors.Is(err, ErrPipeClosed) {
		t.Fatalf("send after close: %v", err)
	}
}

func TestPipeTransportBlockedReceiveUnblocksOnClose(t *testing.T) {
	a, b := Pipe(1)

	done := make(chan error, 1)
	go func() {
		_, err := b.Receive()
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	_ = a.Close()

	select {
	case err := <-done:
		if !errors.Is(err, io.EOF) {
			t.Fatalf("got %v, want io.EOF", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Receive did not unblock on close")
	}
}
