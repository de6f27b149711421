// Package rplayclient implements the client side of the protocol: dial,
// send one request envelope, read one response envelope, done. Adapted
// from original_source/src/client.rs, which also performs exactly one
// write followed by one read per connection; the Go client uses ordinary
// blocking net.Conn I/O instead of a client-side poll loop, since a
// single round trip never needs edge-triggered readiness.
package rplayclient

import (
	"io"
	"net"
	"time"

	"github.com/pkg/errors"

	"github.com/snowp/rplay/internal/envelope"
	"github.com/snowp/rplay/internal/frame"
)

// Client holds the connection parameters for a single request/response
// round trip. It is not a persistent connection pool: Call dials fresh
// each time, matching the one-shot usage original_source/src/client.rs
// demonstrates.
type Client struct {
	Addr         string
	Codec        envelope.Codec
	MaxFrameSize uint32
	Timeout      time.Duration
}

// New returns a Client using the JSON codec and the default max frame
// size, dialing addr fresh on every Call.
func New(addr string) *Client {
	return &Client{Addr: addr, Codec: envelope.JSONCodec{}, MaxFrameSize: frame.DefaultMaxFrameSize}
}

// Call sends req and returns the single response envelope the server
// sends back. Session is round-tripped by the caller: pass 0 to request
// a freshly allocated session, or a previously returned Session to
// continue it on a later Call (a later call may land on a different
// connection than the one that allocated it, which is fine: session
// affinity is about workers, not connections).
func (c *Client) Call(req *envelope.Envelope) (*envelope.Envelope, error) {
	conn, err := net.DialTimeout("tcp", c.Addr, c.dialTimeout())
	if err != nil {
		return nil, errors.Wrap(err, "dial")
	}
	defer conn.Close()

	if c.Timeout > 0 {
		conn.SetDeadline(time.Now().Add(c.Timeout))
	}

	payload, err := c.Codec.Encode(req)
	if err != nil {
		return nil, errors.Wrap(err, "encode request")
	}
	if _, err := conn.Write(frame.Encode(payload)); err != nil {
		return nil, errors.Wrap(err, "write request")
	}

	resp, err := c.readFrame(conn)
	if err != nil {
		return nil, err
	}
	env, err := c.Codec.Decode(resp)
	if err != nil {
		return nil, errors.Wrap(err, "decode response")
	}
	return env, nil
}

func (c *Client) dialTimeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return 10 * time.Second
}

// readFrame reads exactly one length-prefixed frame's payload from conn.
func (c *Client) readFrame(conn net.Conn) ([]byte, error) {
	var hdr [frame.HeaderSize]byte
	if _, err := io.ReadFull(conn, hdr[:]); err != nil {
		return nil, errors.Wrap(err, "read response header")
	}
	length, err := frame.ReadLength(hdr[:], c.maxFrameSize())
	if err != nil {
		return nil, err
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(conn, payload); err != nil {
		return nil, errors.Wrap(err, "read response payload")
	}
	return payload, nil
}

func (c *Client) maxFrameSize() uint32 {
	if c.MaxFrameSize == 0 {
		return frame.DefaultMaxFrameSize
	}
	return c.MaxFrameSize
}
