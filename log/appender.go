package log

// LogAppender is the abstraction over log output destinations (console,
// file, network). Implementations must be safe for concurrent use: transports
// log from reader goroutines while the event loop logs from its own.
type LogAppender interface {
	// Write outputs one formatted log line to the destination.
	Write(buf []byte) (n int, err error)

	// Refresh forces any buffered log data to be written immediately.
	Refresh() error

	// Close flushes buffered logs and releases underlying resources.
	Close() error
}
