package transport

import (
	"encoding/binary"

	"github.com/linchenxuan/uvbus/codes"
)

const (
	// lenPrefixSize is the width of the big-endian frame length prefix.
	lenPrefixSize = 4
	// MaxFrameSize bounds a single frame payload. A peer announcing more
	// is either corrupt or hostile and gets reset.
	MaxFrameSize = 10 * 1024 * 1024
)

// EncodeFrame prepends the 4-byte big-endian length prefix to payload.
// Empty and oversize payloads are rejected: a zero length on the wire is
// indistinguishable from stream corruption.
func EncodeFrame(payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return nil, codes.New(codes.ErrInvalidParam, "empty frame payload")
	}
	if len(payload) > MaxFrameSize {
		return nil, codes.Errorf(codes.ErrInvalidParam, "frame payload %d exceeds max %d", len(payload), MaxFrameSize)
	}
	buf := make([]byte, lenPrefixSize+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[lenPrefixSize:], payload)
	return buf, nil
}

// frameBuffer reassembles length-prefixed frames from an arbitrary byte
// stream. Bytes of an incomplete frame are retained across feeds, so a
// frame split over any number of reads comes out whole.
type frameBuffer struct {
	buf []byte
}

// feed appends raw stream bytes.
func (f *frameBuffer) feed(p []byte) {
	f.buf = append(f.buf, p...)
}

// next extracts the next complete frame payload, or (nil, nil) when more
// bytes are needed. A zero or oversize announced length is a framing
// violation; the connection must be reset and the buffer discarded.
func (f *frameBuffer) next() ([]byte, error) {
	if len(f.buf) < lenPrefixSize {
		return nil, nil
	}
	n := binary.BigEndian.Uint32(f.buf)
	if n == 0 {
		return nil, codes.New(codes.ErrIO, "framing violation: zero-length frame")
	}
	if n > MaxFrameSize {
		return nil, codes.Errorf(codes.ErrIO, "framing violation: announced length %d exceeds max %d", n, MaxFrameSize)
	}
	total := lenPrefixSize + int(n)
	if len(f.buf) < total {
		return nil, nil
	}
	payload := make([]byte, n)
	copy(payload, f.buf[lenPrefixSize:total])
	f.buf = f.buf[total:]
	return payload, nil
}

// reset discards buffered bytes, used after a framing violation.
func (f *frameBuffer) reset() {
	f.buf = nil
}
