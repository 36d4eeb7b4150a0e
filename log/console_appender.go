package log

import "os"

// ConsoleAppender writes log lines directly to standard output without
// buffering. Suitable for development and containerized deployments where
// immediate visibility matters more than throughput.
type ConsoleAppender struct{}

// NewConsoleAppender returns a stateless console appender. It is safe for
// concurrent use.
func NewConsoleAppender() *ConsoleAppender {
	return &ConsoleAppender{}
}

// Write writes the log buffer to stdout.
func (ca *ConsoleAppender) Write(buf []byte) (int, error) {
	return os.Stdout.Write(buf)
}

// Refresh is a no-op: writes are unbuffered.
func (ca *ConsoleAppender) Refresh() error {
	return nil
}

// Close is a no-op: there are no resources to release.
func (ca *ConsoleAppender) Close() error {
	return nil
}
