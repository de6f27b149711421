// Package rpc holds the small shared types that flow across the
// reactor -> dispatcher -> worker -> writer pipeline, so none of those
// packages need to import each other just to agree on a struct shape.
package rpc

import (
	"github.com/snowp/rplay/internal/envelope"
	"github.com/snowp/rplay/internal/writer"
)

// WorkItem pairs a decoded envelope with the handle needed to deliver its
// eventual response. The reactor produces these, the dispatcher routes
// them, and a worker consumes exactly one at a time.
type WorkItem struct {
	Envelope *envelope.Envelope
	Sender   writer.Sender
}
