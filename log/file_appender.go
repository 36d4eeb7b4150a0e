package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileAppender writes log lines to a file and rotates it when the configured
// size threshold is exceeded. Rotated files are renamed with a numeric
// suffix; the newest data is always in the configured path.
type FileAppender struct {
	mu       sync.Mutex
	path     string
	splitMB  int
	file     *os.File
	written  int64
	rotation int
}

// NewFileAppender opens (or creates) the log file at cfg.LogPath. Parent
// directories are created as needed.
func NewFileAppender(cfg *LogCfg) (*FileAppender, error) {
	if cfg.LogPath == "" {
		return nil, fmt.Errorf("file appender requires a log path")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.LogPath), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	fa := &FileAppender{
		path:    cfg.LogPath,
		splitMB: cfg.FileSplitMB,
	}
	if err := fa.open(); err != nil {
		return nil, err
	}
	return fa, nil
}

func (fa *FileAppender) open() error {
	f, err := os.OpenFile(fa.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file %s: %w", fa.path, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return err
	}
	fa.file = f
	fa.written = info.Size()
	return nil
}

// Write appends one log line, rotating first if the size cap was reached.
func (fa *FileAppender) Write(buf []byte) (int, error) {
	fa.mu.Lock()
	defer fa.mu.Unlock()

	if fa.splitMB > 0 && fa.written+int64(len(buf)) > int64(fa.splitMB)<<20 {
		if err := fa.rotate(); err != nil {
			return 0, err
		}
	}
	n, err := fa.file.Write(buf)
	fa.written += int64(n)
	return n, err
}

// rotate closes the current file and renames it aside. Callers hold fa.mu.
func (fa *FileAppender) rotate() error {
	if err := fa.file.Close(); err != nil {
		return err
	}
	fa.rotation++
	rotated := fmt.Sprintf("%s.%d", fa.path, fa.rotation)
	if err := os.Rename(fa.path, rotated); err != nil {
		return err
	}
	return fa.open()
}

// Refresh flushes the file to stable storage.
func (fa *FileAppender) Refresh() error {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	return fa.file.Sync()
}

// Close flushes and closes the log file.
func (fa *FileAppender) Close() error {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	if err := fa.file.Sync(); err != nil {
		return err
	}
	return fa.file.Close()
}
