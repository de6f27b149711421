// Package frame implements the wire framing: a 4-byte big-endian length
// prefix followed by exactly that many bytes of encoded envelope.
package frame

import (
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"
)

// HeaderSize is the length of the frame's length prefix.
const HeaderSize = 4

// DefaultMaxFrameSize is used when a reactor/writer is not given an
// explicit limit. 16 MiB, per spec.
const DefaultMaxFrameSize = 16 * 1024 * 1024

// FrameTooLarge is returned when a decoded length prefix exceeds the
// configured maximum frame size. The connection that produced it must
// be closed.
type FrameTooLarge struct {
	Length uint32
	Max    uint32
}

func (e *FrameTooLarge) Error() string {
	return fmt.Sprintf("frame too large: %d > max %d", e.Length, e.Max)
}

// Encode prepends a 4-byte big-endian length prefix to payload, allocating
// a single contiguous buffer.
func Encode(payload []byte) []byte {
	out := make([]byte, HeaderSize+len(payload))
	binary.BigEndian.PutUint32(out[:HeaderSize], uint32(len(payload)))
	copy(out[HeaderSize:], payload)
	return out
}

// ReadLength decodes the 4-byte big-endian length prefix from header,
// validating it against maxFrameSize.
func ReadLength(header []byte, maxFrameSize uint32) (uint32, error) {
	if len(header) < HeaderSize {
		return 0, errors.New("frame: short header")
	}
	length := binary.BigEndian.Uint32(header[:HeaderSize])
	if length > maxFrameSize {
		return 0, &FrameTooLarge{Length: length, Max: maxFrameSize}
	}
	return length, nil
}

// Assembler accumulates bytes read off a connection across multiple
// reactor wakeups and yields complete frame payloads as they become
// available. It is not safe for concurrent use; one Assembler belongs to
// exactly one connection, owned by the reactor goroutine.
type Assembler struct {
	maxFrameSize uint32
	buf          []byte // unconsumed bytes read from the socket so far
	needLength   bool   // true: buf holds header-or-less; false: buf holds a partial body of length wantLen
	wantLen      uint32
}

// NewAssembler constructs an Assembler bounded by maxFrameSize. A
// maxFrameSize of 0 means DefaultMaxFrameSize.
func NewAssembler(maxFrameSize uint32) *Assembler {
	if maxFrameSize == 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	return &Assembler{maxFrameSize: maxFrameSize, needLength: true}
}

// Feed appends newly-read bytes and returns every complete frame payload
// that can now be extracted, plus any remaining unconsumed bytes are kept
// internally for the next call. Returns an error (typically
// *FrameTooLarge) if the accumulated header declares an oversize frame.
func (a *Assembler) Feed(b []byte) ([][]byte, error) {
	a.buf = append(a.buf, b...)

	var frames [][]byte
	for {
		if a.needLength {
			if len(a.buf) < HeaderSize {
				return frames, nil
			}
			length, err := ReadLength(a.buf[:HeaderSize], a.maxFrameSize)
			if err != nil {
				return frames, err
			}
			a.wantLen = length
			a.needLength = false
		}
		if uint32(len(a.buf)) < HeaderSize+a.wantLen {
			return frames, nil
		}
		payload := make([]byte, a.wantLen)
		copy(payload, a.buf[HeaderSize:HeaderSize+a.wantLen])
		frames = append(frames, payload)

		remainder := a.buf[HeaderSize+a.wantLen:]
		a.buf = append([]byte(nil), remainder...)
		a.needLength = true
		a.wantLen = 0
	}
}
