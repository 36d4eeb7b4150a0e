// Package rpc is the request/response and pub/sub facade over the
// transport, bus and async layers: servers route method calls to
// handlers, clients get promises for in-flight calls, publishers fan
// notifications out to subscribers.
package rpc

import (
	"bytes"
	"encoding/binary"

	"github.com/linchenxuan/uvbus/codes"
)

// EnvelopeType tags the payload kind inside a frame.
type EnvelopeType byte

const (
	TypeRequest      EnvelopeType = 0
	TypeResponse     EnvelopeType = 1
	TypeNotification EnvelopeType = 2
	TypeError        EnvelopeType = 3
)

// Envelope layout: 1-byte type tag, 8-byte big-endian message id, then a
// per-type body. Requests carry a 2-byte big-endian method length, the
// method name and the parameter bytes. Responses carry the result bytes.
// Errors carry a 4-byte big-endian code and a NUL-terminated message.
// Notifications carry a 2-byte big-endian topic length, the topic and the
// data bytes.
type Envelope struct {
	Type  EnvelopeType
	MsgID uint64

	Method string // request
	Topic  string // notification
	Code   int32  // error
	ErrMsg string // error

	Body []byte // params, result or topic data
}

const (
	_headerSize   = 1 + 8
	_maxNameLen   = 1<<16 - 1
	_errProlog    = 4 // big-endian code before the message
	_nulTerminLen = 1
)

// EncodeRequest builds a request envelope payload.
func EncodeRequest(msgID uint64, method string, params []byte) ([]byte, error) {
	if method == "" || len(method) > _maxNameLen {
		return nil, codes.Errorf(codes.ErrInvalidParam, "invalid method name length %d", len(method))
	}
	buf := make([]byte, 0, _headerSize+2+len(method)+len(params))
	buf = appendHeader(buf, TypeRequest, msgID)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(method)))
	buf = append(buf, method...)
	buf = append(buf, params...)
	return buf, nil
}

// EncodeResponse builds a success response envelope payload.
func EncodeResponse(msgID uint64, result []byte) []byte {
	buf := make([]byte, 0, _headerSize+len(result))
	buf = appendHeader(buf, TypeResponse, msgID)
	return append(buf, result...)
}

// EncodeError builds an error response envelope payload.
func EncodeError(msgID uint64, code int32, msg string) []byte {
	buf := make([]byte, 0, _headerSize+_errProlog+len(msg)+_nulTerminLen)
	buf = appendHeader(buf, TypeError, msgID)
	buf = binary.BigEndian.AppendUint32(buf, uint32(code))
	buf = append(buf, msg...)
	return append(buf, 0)
}

// EncodeNotification builds a pub/sub notification envelope payload.
// Notifications are unaddressed: the message id is zero.
func EncodeNotification(topic string, data []byte) ([]byte, error) {
	if topic == "" || len(topic) > _maxNameLen {
		return nil, codes.Errorf(codes.ErrInvalidParam, "invalid topic length %d", len(topic))
	}
	buf := make([]byte, 0, _headerSize+2+len(topic)+len(data))
	buf = appendHeader(buf, TypeNotification, 0)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(topic)))
	buf = append(buf, topic...)
	buf = append(buf, data...)
	return buf, nil
}

func appendHeader(buf []byte, t EnvelopeType, msgID uint64) []byte {
	buf = append(buf, byte(t))
	return binary.BigEndian.AppendUint64(buf, msgID)
}

// Decode parses an envelope payload, validating the type tag and every
// announced length against the actual buffer.
func Decode(buf []byte) (*Envelope, error) {
	if len(buf) < _headerSize {
		return nil, codes.Errorf(codes.ErrInvalidParam, "envelope truncated at %d bytes", len(buf))
	}
	e := &Envelope{
		Type:  EnvelopeType(buf[0]),
		MsgID: binary.BigEndian.Uint64(buf[1:]),
	}
	body := buf[_headerSize:]

	switch e.Type {
	case TypeRequest:
		if len(body) < 2 {
			return nil, codes.New(codes.ErrInvalidParam, "request envelope truncated")
		}
		n := int(binary.BigEndian.Uint16(body))
		if len(body) < 2+n {
			return nil, codes.New(codes.ErrInvalidParam, "request method truncated")
		}
		e.Method = string(body[2 : 2+n])
		if e.Method == "" {
			return nil, codes.New(codes.ErrInvalidParam, "empty method name")
		}
		e.Body = body[2+n:]
	case TypeResponse:
		e.Body = body
	case TypeError:
		if len(body) < _errProlog+_nulTerminLen {
			return nil, codes.New(codes.ErrInvalidParam, "error envelope truncated")
		}
		e.Code = int32(binary.BigEndian.Uint32(body))
		msg := body[_errProlog:]
		nul := bytes.IndexByte(msg, 0)
		if nul < 0 {
			return nil, codes.New(codes.ErrInvalidParam, "error message not terminated")
		}
		e.ErrMsg = string(msg[:nul])
	case TypeNotification:
		if len(body) < 2 {
			return nil, codes.New(codes.ErrInvalidParam, "notification envelope truncated")
		}
		n := int(binary.BigEndian.Uint16(body))
		if len(body) < 2+n {
			return nil, codes.New(codes.ErrInvalidParam, "notification topic truncated")
		}
		e.Topic = string(body[2 : 2+n])
		if e.Topic == "" {
			return nil, codes.New(codes.ErrInvalidParam, "empty topic")
		}
		e.Body = body[2+n:]
	default:
		return nil, codes.Errorf(codes.ErrInvalidParam, "unknown envelope type %d", e.Type)
	}
	return e, nil
}
