package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLogBuffer captures the output of a test logger. The zero value is ready
// to use and safe for the concurrent writes of tasks and their housekeeper.
type TestLogBuffer struct {
	mu  sync.Mutex
	out bytes.Buffer
}

// Write implements io.Writer
func (b *TestLogBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.out.Write(p)
}

// String returns everything written so far
func (b *TestLogBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.out.String()
}

// GetLogEntries decodes the JSON records written so far, oldest first
func (b *TestLogBuffer) GetLogEntries() ([]map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(b.String())))
	var entries []map[string]any
	for {
		var entry map[string]any
		err := dec.Decode(&entry)
		if errors.Is(err, io.EOF) {
			return entries, nil
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
}

// GetTestLogger returns a debug-level JSON logger writing into a TestLogBuffer.
// The captured records are printed when the test fails.
func GetTestLogger(t *testing.T) (*slog.Logger, *TestLogBuffer) {
	t.Helper()

	buf := &TestLogBuffer{}
	t.Cleanup(func() {
		if t.Failed() {
			t.Logf("captured logs:\n%s", buf.String())
		}
	})
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})), buf
}

// NewLogCaptureContext returns a context carrying a test logger
func NewLogCaptureContext(t *testing.T) (context.Context, *TestLogBuffer) {
	t.Helper()

	log, buf := GetTestLogger(t)
	return WithLogger(context.Background(), log), buf
}

// AssertLogContains fails the test unless the captured output contains text
func AssertLogContains(t *testing.T, buf *TestLogBuffer, text string) {
	t.Helper()
	assert.Contains(t, buf.String(), text)
}

// AssertLogField fails the test unless some captured record has field set to
// want. JSON numbers decode as float64.
func AssertLogField(t *testing.T, buf *TestLogBuffer, field string, want any) {
	t.Helper()

	entries, err := buf.GetLogEntries()
	require.NoError(t, err, "captured logs are not JSON")
	require.NotEmpty(t, entries, "nothing was logged")

	var got []any
	for _, entry := range entries {
		if value, ok := entry[field]; ok {
			if assert.ObjectsAreEqual(want, value) {
				return
			}
			got = append(got, value)
		}
	}
	assert.Failf(t, "log field not found", "no record has %s=%v; values seen: %v", field, want, got)
}
