// Package gobcodec is an alternate envelope.Codec implementation, selected
// with the CLI launcher's -codec=gob flag. It changes only how the envelope
// itself is encoded on the wire: handler bodies are still JSON, produced by
// envelope.EncodeBody/DecodeBody, and a snappy-annotated body is not
// decompressed by this codec.
package gobcodec

import (
	"bytes"
	"encoding/gob"

	"github.com/pkg/errors"

	"github.com/snowp/rplay/internal/envelope"
)

// Codec encodes envelopes with encoding/gob instead of JSON.
type Codec struct{}

func (Codec) Encode(e *envelope.Envelope) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(e); err != nil {
		return nil, errors.Wrap(err, "gobcodec: encode")
	}
	return buf.Bytes(), nil
}

func (Codec) Decode(b []byte) (*envelope.Envelope, error) {
	var e envelope.Envelope
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&e); err != nil {
		return nil, &envelope.DecodeError{Cause: err}
	}
	return &e, nil
}
