package transport

import (
	"bytes"
	"testing"

	"github.com/linchenxuan/uvbus/codes"
)

func TestEncodeFrameRoundTrip(t *testing.T) {
	payload := []byte("hello frames")
	frame, err := EncodeFrame(payload)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(frame) != lenPrefixSize+len(payload) {
		t.Fatalf("frame length %d", len(frame))
	}

	var fb frameBuffer
	fb.feed(frame)
	got, err := fb.next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("payload mismatch: %q", got)
	}
	if more, _ := fb.next(); more != nil {
		t.Error("buffer should be drained")
	}
}

func TestEncodeFrameRejectsBadSizes(t *testing.T) {
	if _, err := EncodeFrame(nil); codes.CodeOf(err) != codes.ErrInvalidParam {
		t.Errorf("empty payload: got %v", err)
	}
	big := make([]byte, MaxFrameSize+1)
	if _, err := EncodeFrame(big); codes.CodeOf(err) != codes.ErrInvalidParam {
		t.Errorf("oversize payload: got %v", err)
	}
	max := make([]byte, MaxFrameSize)
	if _, err := EncodeFrame(max); err != nil {
		t.Errorf("max-size payload should encode: %v", err)
	}
}

// A frame split across arbitrary write boundaries must come out as one
// payload. 2044 bytes split into a 1000-byte and a 1048-byte chunk crosses
// both the prefix and the body.
func TestFrameBufferReassembly(t *testing.T) {
	payload := make([]byte, 2044)
	for i := range payload {
		payload[i] = byte(i)
	}
	frame, err := EncodeFrame(payload)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	var fb frameBuffer
	fb.feed(frame[:1000])
	if got, _ := fb.next(); got != nil {
		t.Fatal("incomplete frame must not be delivered")
	}
	fb.feed(frame[1000:])
	got, err := fb.next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if len(got) != 2044 || !bytes.Equal(got, payload) {
		t.Errorf("reassembled %d bytes, mismatch", len(got))
	}
}

func TestFrameBufferByteAtATime(t *testing.T) {
	payload := []byte{0xAA, 0xBB, 0xCC}
	frame, _ := EncodeFrame(payload)

	var fb frameBuffer
	for i, b := range frame {
		fb.feed([]byte{b})
		got, err := fb.next()
		if err != nil {
			t.Fatalf("next at byte %d: %v", i, err)
		}
		if i < len(frame)-1 {
			if got != nil {
				t.Fatalf("frame delivered early at byte %d", i)
			}
		} else if !bytes.Equal(got, payload) {
			t.Fatalf("final payload mismatch: %v", got)
		}
	}
}

func TestFrameBufferMultipleFramesOneFeed(t *testing.T) {
	a, _ := EncodeFrame([]byte("first"))
	b, _ := EncodeFrame([]byte("second"))

	var fb frameBuffer
	fb.feed(append(append([]byte{}, a...), b...))

	one, _ := fb.next()
	two, _ := fb.next()
	if string(one) != "first" || string(two) != "second" {
		t.Errorf("got %q, %q", one, two)
	}
}

func TestFrameBufferViolations(t *testing.T) {
	var fb frameBuffer
	fb.feed([]byte{0, 0, 0, 0, 1})
	if _, err := fb.next(); codes.CodeOf(err) != codes.ErrIO {
		t.Errorf("zero length: got %v", err)
	}

	fb.reset()
	fb.feed([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	if _, err := fb.next(); codes.CodeOf(err) != codes.ErrIO {
		t.Errorf("oversize length: got %v", err)
	}
}
