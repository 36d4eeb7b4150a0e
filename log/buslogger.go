package log

import (
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// BusLogger is the concrete logger used throughout uvbus. It is safe for
// concurrent use: transports log from their I/O goroutines while bus and
// scheduler code logs from the event loop goroutine.
//
// Key properties:
//   - lock-free logging path with pooled events
//   - configurable appenders (console, file with rotation)
//   - optional call-site capture with per-PC caching
//
// Example:
//
//	logger := NewLogger(&LogCfg{LogLevel: InfoLevel, ConsoleAppender: true})
//	logger.Info().Str("addr", "tcp://127.0.0.1:9000").Msg("endpoint listening")
type BusLogger struct {
	appenders         []LogAppender
	minLevel          atomic.Int32
	callerSkip        int
	eventPool         *sync.Pool
	callerCache       sync.Map
	enabledCallerInfo bool
}

// NewLogger creates a BusLogger from cfg; a nil cfg selects the defaults
// (info level, console output).
func NewLogger(cfg *LogCfg) *BusLogger {
	if cfg == nil {
		cfg = getDefaultCfg()
	}

	logger := &BusLogger{
		callerSkip:        cfg.CallerSkip,
		enabledCallerInfo: cfg.EnabledCallerInfo,
	}
	logger.minLevel.Store(int32(cfg.LogLevel))
	logger.eventPool = &sync.Pool{
		New: func() any {
			return newEvent(logger)
		},
	}

	if cfg.FileAppender {
		if fa, err := NewFileAppender(cfg); err == nil {
			logger.AddAppender(fa)
		}
	}
	if cfg.ConsoleAppender {
		logger.AddAppender(NewConsoleAppender())
	}
	return logger
}

// SetLevel changes the minimum emitted level at runtime.
func (x *BusLogger) SetLevel(level Level) {
	x.minLevel.Store(int32(level))
}

func (x *BusLogger) checkLevel(level Level) bool {
	return Level(x.minLevel.Load()) <= level
}

// AddAppender registers an additional output destination.
func (x *BusLogger) AddAppender(appender LogAppender) {
	x.appenders = append(x.appenders, appender)
}

// GetAppender returns the registered appenders.
func (x *BusLogger) GetAppender() []LogAppender {
	return x.appenders
}

// Refresh flushes all appenders.
func (x *BusLogger) Refresh() {
	for _, appender := range x.appenders {
		_ = appender.Refresh()
	}
}

// Close flushes and closes all appenders.
func (x *BusLogger) Close() {
	for _, appender := range x.appenders {
		_ = appender.Close()
	}
}

// IgnoreCheckLevel reports whether level filtering is bypassed; always
// false for BusLogger.
func (x *BusLogger) IgnoreCheckLevel() bool {
	return false
}

func (x *BusLogger) newEvent() *LogEvent {
	e := x.eventPool.Get().(*LogEvent)
	e.Reset()
	return e
}

// OnEventEnd routes a finished event to every appender and returns it to
// the pool. Fatal events panic after being written.
func (x *BusLogger) OnEventEnd(e *LogEvent) {
	for _, appender := range x.appenders {
		_, _ = appender.Write(e.buf.Bytes())
	}
	level := e.level
	x.eventPool.Put(e)
	if level == FatalLevel {
		panic("fatal log event")
	}
}

// Debug creates a debug-level event, or nil if filtered.
func (x *BusLogger) Debug() *LogEvent { return x.log(DebugLevel) }

// Info creates an info-level event, or nil if filtered.
func (x *BusLogger) Info() *LogEvent { return x.log(InfoLevel) }

// Warn creates a warn-level event, or nil if filtered.
func (x *BusLogger) Warn() *LogEvent { return x.log(WarnLevel) }

// Error creates an error-level event, or nil if filtered.
func (x *BusLogger) Error() *LogEvent { return x.log(ErrorLevel) }

// Fatal creates a fatal-level event; finishing it panics.
func (x *BusLogger) Fatal() *LogEvent { return x.log(FatalLevel) }

// getCallerInfo resolves the call site, consulting a per-PC cache first.
func (x *BusLogger) getCallerInfo() *callerInfo {
	pc, file, line, ok := runtime.Caller(3 + x.callerSkip)
	if !ok {
		return _UnknownCallerInfo
	}
	if cached, found := x.callerCache.Load(pc); found {
		return cached.(*callerInfo)
	}

	funcName := runtime.FuncForPC(pc).Name()
	function := funcName
	if dotIdx := strings.LastIndexByte(funcName, '.'); dotIdx != -1 {
		function = funcName[dotIdx+1:]
	}

	// Keep only the last two path elements of the file.
	if lastSlash := strings.LastIndexByte(file, '/'); lastSlash > 0 {
		if secondLastSlash := strings.LastIndexByte(file[:lastSlash], '/'); secondLastSlash >= 0 {
			file = file[secondLastSlash+1:]
		}
	}

	c := newCallerInfo(file, function, line)
	x.callerCache.Store(pc, c)
	return c
}

// log prepares an event with the common fields (time, level, caller).
func (x *BusLogger) log(level Level) *LogEvent {
	if !x.IgnoreCheckLevel() && !x.checkLevel(level) {
		return nil
	}

	e := x.newEvent()
	e.level = level
	e.Time("time", time.Now())
	e.Str("level", level.String())
	if x.enabledCallerInfo {
		e.Str("caller", x.getCallerInfo().String())
	}
	return e
}
