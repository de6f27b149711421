// Package envelope defines the logical message unit exchanged over a
// connection and the codec interface the core dispatches through.
package envelope

import (
	"encoding/json"

	"github.com/golang/snappy"
	"github.com/pkg/errors"
)

// Envelope is the framed unit of communication. It is immutable once
// constructed; handlers and components must copy it before mutating any
// field (Clone does this for listener fan-out).
type Envelope struct {
	Method      string            `json:"method"`
	Session     uint64            `json:"session"`
	Body        []byte            `json:"body"`
	Annotations map[string]string `json:"annotations,omitempty"`
}

// Clone returns a deep copy, safe to hand to a second listener without
// the two sharing Body or Annotations storage.
func (e *Envelope) Clone() *Envelope {
	if e == nil {
		return nil
	}
	body := make([]byte, len(e.Body))
	copy(body, e.Body)
	var ann map[string]string
	if e.Annotations != nil {
		ann = make(map[string]string, len(e.Annotations))
		for k, v := range e.Annotations {
			ann[k] = v
		}
	}
	return &Envelope{Method: e.Method, Session: e.Session, Body: body, Annotations: ann}
}

// encAnnotation is the annotation key that marks a snappy-compressed body.
const encAnnotation = "enc"
const encSnappy = "snappy"

// DecodeError wraps a codec decode failure so callers can distinguish it
// from other errors without depending on the codec implementation.
type DecodeError struct {
	Cause error
}

func (e *DecodeError) Error() string { return "decode envelope: " + e.Cause.Error() }
func (e *DecodeError) Unwrap() error { return e.Cause }

// Codec (de)serialises bytes to/from an Envelope. Implementations are
// expected to be infallible on Encode of a well-formed Envelope.
type Codec interface {
	Encode(e *Envelope) ([]byte, error)
	Decode(b []byte) (*Envelope, error)
}

// JSONCodec is the default codec: one JSON object per envelope, in the
// idiom the protohackers solutions use for their line-delimited JSON
// request/response protocols.
type JSONCodec struct{}

func (JSONCodec) Encode(e *Envelope) ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, errors.Wrap(err, "envelope: marshal")
	}
	return b, nil
}

func (JSONCodec) Decode(b []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, &DecodeError{Cause: err}
	}
	if enc, ok := e.Annotations[encAnnotation]; ok && enc == encSnappy {
		body, err := snappy.Decode(nil, e.Body)
		if err != nil {
			return nil, &DecodeError{Cause: errors.Wrap(err, "snappy decode")}
		}
		e.Body = body
		delete(e.Annotations, encAnnotation)
	}
	return &e, nil
}

// EncodeBody encodes a typed handler body as JSON, whichever Codec carries
// the envelope itself. Handlers use this (or the matching DecodeBody) to
// bridge their typed request/response structs to envelope.Body.
func EncodeBody(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "envelope: encode body")
	}
	return b, nil
}

// DecodeBody decodes envelope.Body into a typed handler request.
func DecodeBody(body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return &DecodeError{Cause: err}
	}
	return nil
}

// CompressSnappy replaces e.Body with its snappy-compressed form and
// tags the envelope so the receiving codec decompresses it transparently.
func CompressSnappy(e *Envelope) {
	if e.Annotations == nil {
		e.Annotations = make(map[string]string, 1)
	}
	e.Body = snappy.Encode(nil, e.Body)
	e.Annotations[encAnnotation] = encSnappy
}
