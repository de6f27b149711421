// Package reactor implements the edge-triggered, single-threaded I/O loop
// that owns the listening socket and every accepted connection's read
// half. It never blocks on a channel send: every outbound handoff (to the
// writer, to dispatcher listeners) goes through an unbounded queue.
package reactor

import (
	"log"
	"net"

	"github.com/snowp/rplay/internal/envelope"
	"github.com/snowp/rplay/internal/frame"
	"github.com/snowp/rplay/internal/rpc"
	"github.com/snowp/rplay/internal/writer"
)

// BindError is returned by New when the listen address cannot be bound.
// It is the one error the reactor surfaces above itself; every other
// failure is handled at connection or accept scope.
type BindError struct {
	Addr  string
	Cause error
}

func (e *BindError) Error() string { return "reactor: bind " + e.Addr + ": " + e.Cause.Error() }
func (e *BindError) Unwrap() error { return e.Cause }

// connState is the reactor's per-connection bookkeeping: the read half and
// an Assembler carrying partial frames over between wakeups.
type connState struct {
	fd        int
	peer      net.Addr
	assembler *frame.Assembler
}

// Reactor listens on a TCP address and, once Run is called, drives the
// accept loop and every connection's read loop from one goroutine.
type Reactor struct {
	addr         string
	maxFrameSize uint32
	codec        envelope.Codec
	writerEvents chan<- writer.Event
	listeners    []chan<- rpc.WorkItem

	log *log.Logger

	epoll    *epollPoller
	listenFD int
	conns    map[writer.ConnID]*connState
	fdToID   map[int]writer.ConnID
}

// New binds addr and prepares a Reactor. It does not start accepting
// connections until Run is called.
func New(addr string, maxFrameSize uint32, codec envelope.Codec, writerEvents chan<- writer.Event) (*Reactor, error) {
	if maxFrameSize == 0 {
		maxFrameSize = frame.DefaultMaxFrameSize
	}
	r := &Reactor{
		addr:         addr,
		maxFrameSize: maxFrameSize,
		codec:        codec,
		writerEvents: writerEvents,
		conns:        make(map[writer.ConnID]*connState),
		fdToID:       make(map[int]writer.ConnID),
		log:          log.New(log.Writer(), "[reactor] ", log.Flags()|log.Lmsgprefix),
	}
	if err := r.bind(); err != nil {
		return nil, &BindError{Addr: addr, Cause: err}
	}
	return r, nil
}

// AddListener registers a channel that will receive every decoded
// envelope, paired with the Sender to reply through. Multiple listeners
// fan out in insertion order. The channel's send side must never block
// (queue.Unbounded.In satisfies this).
func (r *Reactor) AddListener(ch chan<- rpc.WorkItem) {
	r.listeners = append(r.listeners, ch)
}

// nextID returns the smallest positive ConnID not currently assigned, the
// same linear scan original_source/src/server.rs's next_token uses.
func (r *Reactor) nextID() writer.ConnID {
	var id writer.ConnID = 1
	for {
		if _, taken := r.conns[id]; !taken {
			return id
		}
		id++
	}
}

func (r *Reactor) deliver(e *envelope.Envelope, sender writer.Sender) {
	for _, ch := range r.listeners {
		ch <- rpc.WorkItem{Envelope: e.Clone(), Sender: sender}
	}
}
