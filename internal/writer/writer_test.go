package writer

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/snowp/rplay/internal/envelope"
	"github.com/snowp/rplay/internal/frame"
)

type fakeConn struct {
	bytes.Buffer
	closed bool
}

func (f *fakeConn) Close() error {
	f.closed = true
	return nil
}

func TestWriterEncodesAndFramesResponse(t *testing.T) {
	w := New(envelope.JSONCodec{}, 0)
	go w.Run()
	defer w.Close()

	conn := &fakeConn{}
	w.Events() <- Event{Kind: EventNewConnection, ConnID: 1, Conn: conn, PeerAddr: &net.TCPAddr{}}
	w.Events() <- Event{Kind: EventWriteData, ConnID: 1, Envelope: &envelope.Envelope{Method: "Echo", Session: 1, Body: []byte("hi")}}

	deadline := time.Now().Add(2 * time.Second)
	for conn.Len() < frame.HeaderSize && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	if conn.Len() < frame.HeaderSize {
		t.Fatal("expected writer to produce a framed response")
	}

	length, err := frame.ReadLength(conn.Bytes()[:frame.HeaderSize], frame.DefaultMaxFrameSize)
	if err != nil {
		t.Fatalf("ReadLength: %v", err)
	}
	if int(length) != conn.Len()-frame.HeaderSize {
		t.Fatalf("frame length %d does not match payload size %d", length, conn.Len()-frame.HeaderSize)
	}
}

func TestWriterDropsResponseForUnknownConn(t *testing.T) {
	w := New(envelope.JSONCodec{}, 0)
	go w.Run()
	defer w.Close()

	// No EventNewConnection for ConnID 99: this must not panic or block.
	w.Events() <- Event{Kind: EventWriteData, ConnID: 99, Envelope: &envelope.Envelope{Method: "Echo"}}
	w.Events() <- Event{Kind: EventCloseConnection, ConnID: 99}
}

func TestWriterClosesConnectionOnCloseEvent(t *testing.T) {
	w := New(envelope.JSONCodec{}, 0)
	go w.Run()
	defer w.Close()

	conn := &fakeConn{}
	w.Events() <- Event{Kind: EventNewConnection, ConnID: 1, Conn: conn}
	w.Events() <- Event{Kind: EventCloseConnection, ConnID: 1}

	deadline := time.Now().Add(2 * time.Second)
	for !conn.closed && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if !conn.closed {
		t.Fatal("expected connection to be closed after EventCloseConnection")
	}
}
