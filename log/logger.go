package log

// Logger is the interface for a logging component, providing structured
// logging at the usual levels.
type Logger interface {
	Debug() *LogEvent
	Info() *LogEvent
	Warn() *LogEvent
	Error() *LogEvent
	Fatal() *LogEvent
	IgnoreCheckLevel() bool
	GetAppender() []LogAppender
	AddAppender(appender LogAppender)
	OnEventEnd(e *LogEvent)
}

var _defaultLogger *BusLogger

func init() {
	_defaultLogger = NewLogger(getDefaultCfg())
}

// Initialize configures the default logger with the given configuration.
// A nil cfg selects the defaults. Call once at application startup.
func Initialize(cfg *LogCfg) error {
	if cfg == nil {
		cfg = getDefaultCfg()
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	SetDefaultLogger(NewLogger(cfg))
	return nil
}

// SetDefaultLogger replaces the package-level default logger.
func SetDefaultLogger(logger *BusLogger) {
	_defaultLogger = logger
}

// AddAppender adds an appender to the default logger.
func AddAppender(appender LogAppender) {
	_defaultLogger.AddAppender(appender)
}

// Refresh flushes the default logger's appenders.
func Refresh() {
	_defaultLogger.Refresh()
}

// Close flushes and closes the default logger. Call at shutdown.
func Close() {
	_defaultLogger.Close()
}

// Debug creates a debug-level event on the default logger.
func Debug() *LogEvent {
	return _defaultLogger.Debug()
}

// Info creates an info-level event on the default logger.
func Info() *LogEvent {
	return _defaultLogger.Info()
}

// Warn creates a warn-level event on the default logger.
func Warn() *LogEvent {
	return _defaultLogger.Warn()
}

// Error creates an error-level event on the default logger.
func Error() *LogEvent {
	return _defaultLogger.Error()
}

// Fatal creates a fatal-level event on the default logger.
func Fatal() *LogEvent {
	return _defaultLogger.Fatal()
}
