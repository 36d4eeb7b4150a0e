package log

import (
	"bytes"
	"encoding/hex"
	"strconv"
	"unicode/utf8"
)

// Low-level append helpers shared by LogEvent. Output is a single JSON object
// per event, terminated by a newline in AppendEndMarker.

// AppendBeginMarker opens the JSON object for a new event.
func AppendBeginMarker(buf *bytes.Buffer) {
	buf.WriteByte('{')
}

// AppendEndMarker closes the JSON object and terminates the line.
func AppendEndMarker(buf *bytes.Buffer) {
	buf.WriteString("}\n")
}

// AppendKey writes a field separator (if needed) followed by a quoted key
// and a colon.
func AppendKey(buf *bytes.Buffer, key string) {
	if b := buf.Bytes(); len(b) > 0 && b[len(b)-1] != '{' {
		buf.WriteByte(',')
	}
	appendQuoted(buf, key)
	buf.WriteByte(':')
}

// AppendString writes a quoted, escaped string value.
func AppendString(buf *bytes.Buffer, v string) {
	appendQuoted(buf, v)
}

// AppendInt64 writes a signed integer value.
func AppendInt64(buf *bytes.Buffer, v int64) {
	buf.WriteString(strconv.FormatInt(v, 10))
}

// AppendUint64 writes an unsigned integer value.
func AppendUint64(buf *bytes.Buffer, v uint64) {
	buf.WriteString(strconv.FormatUint(v, 10))
}

// AppendFloat64 writes a floating point value.
func AppendFloat64(buf *bytes.Buffer, v float64) {
	buf.WriteString(strconv.FormatFloat(v, 'f', -1, 64))
}

// AppendBool writes a boolean value.
func AppendBool(buf *bytes.Buffer, v bool) {
	buf.WriteString(strconv.FormatBool(v))
}

// AppendHex writes a byte slice as a quoted hex string. Payload bytes are
// opaque and frequently non-printable, so hex is the only safe rendering.
func AppendHex(buf *bytes.Buffer, v []byte) {
	buf.WriteByte('"')
	buf.WriteString(hex.EncodeToString(v))
	buf.WriteByte('"')
}

// appendQuoted writes s as a JSON string, escaping quotes, backslashes and
// control characters. The fast path copies runs of plain bytes unescaped.
func appendQuoted(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	start := 0
	for i := 0; i < len(s); {
		c := s[i]
		if c >= 0x20 && c != '"' && c != '\\' && c < utf8.RuneSelf {
			i++
			continue
		}
		if c >= utf8.RuneSelf {
			// Multi-byte runes pass through untouched.
			_, size := utf8.DecodeRuneInString(s[i:])
			i += size
			continue
		}
		buf.WriteString(s[start:i])
		switch c {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			const hexDigits = "0123456789abcdef"
			buf.WriteString(`\u00`)
			buf.WriteByte(hexDigits[c>>4])
			buf.WriteByte(hexDigits[c&0xf])
		}
		i++
		start = i
	}
	buf.WriteString(s[start:])
	buf.WriteByte('"')
}
