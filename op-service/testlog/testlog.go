// Package testlog provides a log handler for unit tests.
package testlog

import (
	"bytes"
	"log/slog"
	"os"
	"sync"

	"github.com/ethereum/go-ethereum/log"
)

var useColorInTestLog = os.Getenv("OP_TESTLOG_DISABLE_COLOR") != "true"

// Testing interface to log to. Standard Go testing.TB implements this.
type Testing interface {
	Logf(format string, args ...any)
	Helper()
	Name() string
}

// Logger returns a logger which logs to the unit test log of t.
func Logger(t Testing, level slog.Level) log.Logger {
	return log.NewLogger(newHandler(t, level))
}

// CaptureLogger returns a test logger and the handler capturing every record it emits.
func CaptureLogger(t Testing, level slog.Level) (log.Logger, *CapturingHandler) {
	ch := NewCapturingHandler(newHandler(t, level))
	return log.NewLogger(ch), ch
}

func newHandler(t Testing, level slog.Level) slog.Handler {
	return log.NewTerminalHandlerWithLevel(&testWriter{t: t}, level, useColorInTestLog)
}

// testWriter forwards each formatted log line to t.Logf.
type testWriter struct {
	mu sync.Mutex
	t  Testing
}

func (w *testWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.t.Helper()
	w.t.Logf("%s", bytes.TrimRight(p, "\n"))
	return len(p), nil
}
