package log

import "fmt"

// LogCfg configures the logging subsystem.
type LogCfg struct {
	// LogPath is the target file for the file appender. Relative and
	// absolute paths are accepted; parent directories are created.
	LogPath string `yaml:"path"`

	// LogLevel is the minimum level that will be emitted.
	LogLevel Level `yaml:"level"`

	// FileSplitMB is the rotation threshold in megabytes. Zero disables
	// size-based rotation.
	FileSplitMB int `yaml:"splitMB"`

	// CallerSkip adds extra stack frames to skip when capturing caller
	// information, for wrapper layers above the logger.
	CallerSkip int `yaml:"callerSkip"`

	// FileAppender enables file output.
	FileAppender bool `yaml:"fileAppender"`

	// ConsoleAppender enables stdout output.
	ConsoleAppender bool `yaml:"consoleAppender"`

	// EnabledCallerInfo adds file:line of the call site to every event.
	EnabledCallerInfo bool `yaml:"enabledCallerInfo"`
}

// Validate checks the configuration for consistency.
func (cfg *LogCfg) Validate() error {
	if cfg.LogLevel < TraceLevel || cfg.LogLevel > FatalLevel {
		return fmt.Errorf("invalid log level: %d, must be between %d (Trace) and %d (Fatal)",
			cfg.LogLevel, TraceLevel, FatalLevel)
	}
	if cfg.FileAppender && cfg.LogPath == "" {
		return fmt.Errorf("file appender enabled but no log path configured")
	}
	if cfg.FileSplitMB < 0 {
		return fmt.Errorf("splitMB must not be negative")
	}
	if cfg.CallerSkip < 0 {
		return fmt.Errorf("callerSkip must not be negative")
	}
	return nil
}

func getDefaultCfg() *LogCfg {
	return &LogCfg{
		LogLevel:        InfoLevel,
		ConsoleAppender: true,
	}
}
