package gobcodec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snowp/rplay/internal/envelope"
)

func TestGobCodecRoundTrip(t *testing.T) {
	codec := Codec{}
	e := &envelope.Envelope{Method: "Echo", Session: 3, Body: []byte("hello")}

	encoded, err := codec.Encode(e)
	require.NoError(t, err)

	decoded, err := codec.Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, e.Method, decoded.Method)
	assert.Equal(t, e.Session, decoded.Session)
	assert.Equal(t, e.Body, decoded.Body)
}

func TestGobCodecDecodeError(t *testing.T) {
	codec := Codec{}
	_, err := codec.Decode([]byte("not a gob stream"))
	require.Error(t, err)
}
