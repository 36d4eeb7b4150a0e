package log

import "strings"

// Level defines the severity of a log event. Levels are ordered; higher
// values indicate more critical output and stricter filtering.
type Level int8

const (
	// TraceLevel provides extremely detailed diagnostic information, such as
	// per-frame transport activity. Enable only while debugging.
	TraceLevel Level = iota + 1

	// DebugLevel contains debugging information useful during development:
	// connection lifecycles, bus routing decisions, scheduler transitions.
	DebugLevel

	// InfoLevel contains general informational messages about normal
	// operation: endpoints starting and stopping, configuration changes.
	InfoLevel

	// WarnLevel indicates potentially harmful situations that do not prevent
	// operation, such as a dropped broadcast write or a truncated datagram.
	WarnLevel

	// ErrorLevel indicates serious problems that require attention:
	// failed connects, framing violations, dispatch failures.
	ErrorLevel

	// FatalLevel represents critical errors that force termination.
	FatalLevel
)

// String returns the uppercase name of the level.
func (l Level) String() string {
	switch l {
	case TraceLevel:
		return "TRACE"
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	case FatalLevel:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a string to a Level, case-insensitively. Invalid input
// yields InfoLevel so that a bad configuration value degrades safely.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return TraceLevel
	case "DEBUG":
		return DebugLevel
	case "INFO":
		return InfoLevel
	case "WARN", "WARNING":
		return WarnLevel
	case "ERROR":
		return ErrorLevel
	case "FATAL":
		return FatalLevel
	default:
		return InfoLevel
	}
}
