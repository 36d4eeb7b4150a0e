package log

import (
	"bytes"
	"fmt"
	"time"
)

// LogEvent represents a single structured logging event. It provides a fluent
// API for attaching key-value pairs and handles the lifecycle of a log line
// from creation to output. Events are pooled by the owning logger; Msg or
// Msgf must be the final call on every event.
type LogEvent struct {
	buf    *bytes.Buffer // accumulates the formatted line
	logger Logger        // parent logger, receives the finished event
	level  Level
}

// newEvent creates a LogEvent with a pre-grown buffer. Used by the logger's
// object pool.
func newEvent(l Logger) *LogEvent {
	e := &LogEvent{
		logger: l,
		level:  DebugLevel,
		buf:    &bytes.Buffer{},
	}
	e.buf.Grow(512)
	return e
}

// Reset prepares the event for reuse from the pool: the buffer is cleared
// and the begin marker re-appended.
func (e *LogEvent) Reset() {
	e.buf.Reset()
	e.level = DebugLevel
	AppendBeginMarker(e.buf)
}

// Time appends a timestamp field formatted as YYYY-MM-DD HH:MM:SS.mmm.
func (e *LogEvent) Time(k string, v time.Time) *LogEvent {
	if e == nil {
		return nil
	}
	AppendKey(e.buf, k)
	AppendString(e.buf, v.Format("2006-01-02 15:04:05.000"))
	return e
}

// Str appends a string field.
func (e *LogEvent) Str(k, v string) *LogEvent {
	if e == nil {
		return nil
	}
	AppendKey(e.buf, k)
	AppendString(e.buf, v)
	return e
}

// Int appends an int field.
func (e *LogEvent) Int(k string, v int) *LogEvent {
	if e == nil {
		return nil
	}
	AppendKey(e.buf, k)
	AppendInt64(e.buf, int64(v))
	return e
}

// Int32 appends an int32 field.
func (e *LogEvent) Int32(k string, v int32) *LogEvent {
	if e == nil {
		return nil
	}
	AppendKey(e.buf, k)
	AppendInt64(e.buf, int64(v))
	return e
}

// Int64 appends an int64 field.
func (e *LogEvent) Int64(k string, v int64) *LogEvent {
	if e == nil {
		return nil
	}
	AppendKey(e.buf, k)
	AppendInt64(e.buf, v)
	return e
}

// Uint32 appends a uint32 field.
func (e *LogEvent) Uint32(k string, v uint32) *LogEvent {
	if e == nil {
		return nil
	}
	AppendKey(e.buf, k)
	AppendUint64(e.buf, uint64(v))
	return e
}

// Uint64 appends a uint64 field.
func (e *LogEvent) Uint64(k string, v uint64) *LogEvent {
	if e == nil {
		return nil
	}
	AppendKey(e.buf, k)
	AppendUint64(e.buf, v)
	return e
}

// Float64 appends a float64 field.
func (e *LogEvent) Float64(k string, v float64) *LogEvent {
	if e == nil {
		return nil
	}
	AppendKey(e.buf, k)
	AppendFloat64(e.buf, v)
	return e
}

// Bool appends a boolean field.
func (e *LogEvent) Bool(k string, v bool) *LogEvent {
	if e == nil {
		return nil
	}
	AppendKey(e.buf, k)
	AppendBool(e.buf, v)
	return e
}

// Hex appends a byte slice rendered as a hex string.
func (e *LogEvent) Hex(k string, v []byte) *LogEvent {
	if e == nil {
		return nil
	}
	AppendKey(e.buf, k)
	AppendHex(e.buf, v)
	return e
}

// Err appends an "error" field. A nil error appends nothing.
func (e *LogEvent) Err(err error) *LogEvent {
	if e == nil || err == nil {
		return e
	}
	AppendKey(e.buf, "error")
	AppendString(e.buf, err.Error())
	return e
}

// Msg finalizes the event with a message field and hands it to the logger
// for output. The event must not be used afterwards.
func (e *LogEvent) Msg(msg string) {
	if e == nil {
		return
	}
	AppendKey(e.buf, "msg")
	AppendString(e.buf, msg)
	AppendEndMarker(e.buf)
	e.logger.OnEventEnd(e)
}

// Msgf finalizes the event with a formatted message.
func (e *LogEvent) Msgf(format string, args ...any) {
	if e == nil {
		return
	}
	e.Msg(fmt.Sprintf(format, args...))
}
