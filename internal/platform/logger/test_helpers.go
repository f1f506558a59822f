package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

// TestLogBuffer is a thread-safe buffer for capturing log output in tests.
type TestLogBuffer struct {
	buf bytes.Buffer
	mu  sync.Mutex
}

// Write implements io.Writer for TestLogBuffer.
func (b *TestLogBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// String returns the buffer contents as a string.
func (b *TestLogBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Entries parses the buffer contents as JSON log entries, one per line.
func (b *TestLogBuffer) Entries() ([]map[string]any, error) {
	b.mu.Lock()
	logs := b.buf.String()
	b.mu.Unlock()

	lines := strings.Split(logs, "\n")
	entries := make([]map[string]any, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// GetTestLogger creates a debug level JSON logger writing into a buffer.
func GetTestLogger(t testing.TB) (*slog.Logger, *TestLogBuffer) {
	t.Helper()

	logBuf := &TestLogBuffer{}
	handler := slog.NewJSONHandler(logBuf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(handler), logBuf
}

// TestLogPipe forwards everything written to it to a test's log output.
type TestLogPipe struct {
	t testing.TB
}

// NewTestLogPipe creates a new TestLogPipe.
func NewTestLogPipe(t testing.TB) *TestLogPipe {
	return &TestLogPipe{t: t}
}

// Write implements io.Writer for TestLogPipe.
func (p *TestLogPipe) Write(data []byte) (int, error) {
	p.t.Helper()
	p.t.Log(strings.TrimRight(string(data), "\n"))
	return len(data), nil
}

// NewTestLogger returns a logger that writes text records to t.Log at the
// given level. Output only shows for failing tests or with -v.
func NewTestLogger(t testing.TB, level slog.Level) *slog.Logger {
	t.Helper()
	handler := slog.NewTextHandler(NewTestLogPipe(t), &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}

// AssertLogContains fails the test if the buffer does not contain content.
func AssertLogContains(t testing.TB, logBuf *TestLogBuffer, content string) {
	t.Helper()

	logs := logBuf.String()
	if !strings.Contains(logs, content) {
		t.Errorf("Expected log to contain %q, but it doesn't.\nLogs:\n%s", content, logs)
	}
}
