// Package writer owns every connection's write half and serialises
// outbound frames so that concurrent workers can never interleave bytes
// on the same connection.
package writer

import (
	"log"
	"net"

	"github.com/snowp/rplay/internal/envelope"
	"github.com/snowp/rplay/internal/frame"
	"github.com/snowp/rplay/internal/queue"
)

// ConnID identifies a connection across the reactor, writer and
// dispatcher. Assigned by the reactor at accept time.
type ConnID uint64

// EventKind distinguishes the three event shapes the writer accepts.
type EventKind int

const (
	EventNewConnection EventKind = iota
	EventWriteData
	EventCloseConnection
)

// WriteCloser is everything the writer needs from a connection's write
// half. A plain net.Conn satisfies it; so does the reactor's raw,
// non-blocking file descriptor wrapper.
type WriteCloser interface {
	Write(p []byte) (int, error)
	Close() error
}

// Event is the writer's single inbound message shape. Events for the same
// ConnID are processed strictly in arrival order; there is no ordering
// guarantee across ConnIDs.
type Event struct {
	Kind     EventKind
	ConnID   ConnID
	Conn     WriteCloser // set on EventNewConnection
	PeerAddr net.Addr    // set on EventNewConnection
	Envelope *envelope.Envelope
}

// Sender is a cheap, cloneable handle that lets whichever worker handles
// an envelope deliver its response without knowing anything about the
// writer beyond its inbound channel and the originating ConnID.
type Sender struct {
	ConnID ConnID
	events chan<- Event
}

// NewSender constructs a Sender bound to a specific connection and the
// writer's shared inbound channel.
func NewSender(id ConnID, events chan<- Event) Sender {
	return Sender{ConnID: id, events: events}
}

// Deliver enqueues a response envelope for ConnID. It never blocks: the
// writer's inbound queue is unbounded, matching the "reactor/dispatcher
// never stall behind the writer" requirement.
func (s Sender) Deliver(e *envelope.Envelope) {
	s.events <- Event{Kind: EventWriteData, ConnID: s.ConnID, Envelope: e}
}

// Writer serialises writes across all connections from one dedicated
// goroutine (Run). Its session table (conns) is single-owner: only Run
// ever touches it.
type Writer struct {
	codec        envelope.Codec
	maxFrameSize uint32
	events       *queue.Unbounded[Event]
	conns        map[ConnID]WriteCloser
	log          *log.Logger
}

// New constructs a Writer. Call Run in its own goroutine, and send Events()
// to NewConnection/WriteData/CloseConnection as connections come and go.
func New(codec envelope.Codec, maxFrameSize uint32) *Writer {
	if maxFrameSize == 0 {
		maxFrameSize = frame.DefaultMaxFrameSize
	}
	return &Writer{
		codec:        codec,
		maxFrameSize: maxFrameSize,
		events:       queue.NewUnbounded[Event](),
		conns:        make(map[ConnID]WriteCloser),
		log:          log.New(log.Writer(), "[writer] ", log.Flags()|log.Lmsgprefix),
	}
}

// Events returns the channel new connections, responses, and closes are
// sent on.
func (w *Writer) Events() chan<- Event { return w.events.In() }

// Close signals Run to exit once the queue drains.
func (w *Writer) Close() { w.events.Close() }

// Run is the writer's single dedicated goroutine. It returns when Events()
// is closed and the backlog has drained.
func (w *Writer) Run() {
	for ev := range w.events.Out() {
		switch ev.Kind {
		case EventNewConnection:
			w.conns[ev.ConnID] = ev.Conn
		case EventWriteData:
			w.handleWrite(ev)
		case EventCloseConnection:
			if conn, ok := w.conns[ev.ConnID]; ok {
				conn.Close()
				delete(w.conns, ev.ConnID)
			}
		}
	}
}

func (w *Writer) handleWrite(ev Event) {
	conn, ok := w.conns[ev.ConnID]
	if !ok {
		// Connection already closed or never registered; discard with a
		// logged warning, not an error, per spec.
		w.log.Printf("discarding response for closed conn %d", ev.ConnID)
		return
	}

	payload, err := w.codec.Encode(ev.Envelope)
	if err != nil {
		w.log.Printf("conn %d: encode failed: %v", ev.ConnID, err)
		return
	}
	if uint32(len(payload)) > w.maxFrameSize {
		w.log.Printf("conn %d: %v", ev.ConnID, &frame.FrameTooLarge{Length: uint32(len(payload)), Max: w.maxFrameSize})
		return
	}

	if err := writeFull(conn, frame.Encode(payload)); err != nil {
		w.log.Printf("conn %d: write error, dropping connection: %v", ev.ConnID, err)
		delete(w.conns, ev.ConnID)
	}
}

// writeFull re-attempts partial writes until the whole buffer is sent or
// an error occurs.
func writeFull(conn WriteCloser, b []byte) error {
	for len(b) > 0 {
		n, err := conn.Write(b)
		if err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}
