package log

import (
	"strings"
	"sync"
	"testing"
)

// memAppender collects written lines for assertions.
type memAppender struct {
	mu    sync.Mutex
	lines []string
}

func (m *memAppender) Write(buf []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lines = append(m.lines, string(buf))
	return len(buf), nil
}

func (m *memAppender) Refresh() error { return nil }
func (m *memAppender) Close() error   { return nil }

func (m *memAppender) all() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.lines))
	copy(out, m.lines)
	return out
}

func newTestLogger(level Level) (*BusLogger, *memAppender) {
	logger := &BusLogger{}
	logger.minLevel.Store(int32(level))
	logger.eventPool = &sync.Pool{New: func() any { return newEvent(logger) }}
	app := &memAppender{}
	logger.AddAppender(app)
	return logger, app
}

func TestLoggerFields(t *testing.T) {
	logger, app := newTestLogger(DebugLevel)

	logger.Info().
		Str("addr", "tcp://127.0.0.1:9000").
		Int("peers", 3).
		Uint64("msgid", 42).
		Bool("server", true).
		Msg("endpoint up")

	lines := app.all()
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	line := lines[0]
	for _, want := range []string{
		`"level":"INFO"`,
		`"addr":"tcp://127.0.0.1:9000"`,
		`"peers":3`,
		`"msgid":42`,
		`"server":true`,
		`"msg":"endpoint up"`,
	} {
		if !strings.Contains(line, want) {
			t.Errorf("line missing %s: %s", want, line)
		}
	}
	if !strings.HasSuffix(line, "}\n") {
		t.Errorf("line not terminated: %q", line)
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	logger, app := newTestLogger(WarnLevel)

	logger.Debug().Msg("dropped")
	logger.Info().Msg("dropped")
	logger.Warn().Msg("kept")
	logger.Error().Msg("kept")

	if got := len(app.all()); got != 2 {
		t.Fatalf("expected 2 lines after filtering, got %d", got)
	}
}

func TestLoggerStringEscaping(t *testing.T) {
	logger, app := newTestLogger(DebugLevel)

	logger.Info().Str("k", "a\"b\\c\nd").Msg("esc")

	lines := app.all()
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	if !strings.Contains(lines[0], `"k":"a\"b\\c\nd"`) {
		t.Errorf("escaping wrong: %s", lines[0])
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"trace":   TraceLevel,
		"DEBUG":   DebugLevel,
		"Info":    InfoLevel,
		"warning": WarnLevel,
		"error":   ErrorLevel,
		"FATAL":   FatalLevel,
		"bogus":   InfoLevel,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func BenchmarkLoggerEvent(b *testing.B) {
	logger, _ := newTestLogger(ErrorLevel)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		// Filtered events must be near-free.
		logger.Debug().Str("k", "v").Msg("x")
	}
}
