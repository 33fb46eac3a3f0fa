package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var e map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &e))
		out = append(out, e)
	}
	return out
}

func TestLogger_LevelsAndFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Output: &buf, Level: LevelInfo}).With(Component("http"))

	l.Debug("hidden")
	l.Info("registered", UserID("u1"), Route("/api/v1/registrations"), Err(errors.New("late")))

	entries := decode(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "INFO", entries[0]["level"])
	assert.Equal(t, "registered", entries[0]["msg"])
	assert.Equal(t, "http", entries[0]["component"])
	assert.Equal(t, "u1", entries[0]["user_id"])
	assert.Equal(t, "late", entries[0]["error"])
	assert.NotContains(t, entries[0], "caller")
}

func TestLogger_ReservedKeysArePrefixed(t *testing.T) {
	var buf bytes.Buffer
	New(Options{Output: &buf, Level: LevelDebug, AddCaller: true}).Warn("shadow", String("msg", "field value"))

	entries := decode(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "shadow", entries[0]["msg"])
	assert.Equal(t, "field value", entries[0]["field.msg"])
	assert.Contains(t, entries[0]["caller"], "logger_test.go")
}

func TestLogger_WithDoesNotLeak(t *testing.T) {
	var buf bytes.Buffer
	base := New(Options{Output: &buf, Level: LevelInfo})
	_ = base.With(UserID("u1"))

	base.Info("plain")
	entries := decode(t, &buf)
	require.Len(t, entries, 1)
	assert.NotContains(t, entries[0], "user_id")
}

func TestLogger_SlogBridge(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Output: &buf, Level: LevelInfo, AddCaller: true})
	s := l.Slog().With("component", "scheduler")

	s.Debug("hidden")
	s.Warn("job failed", "job", "reset_stale_streaks", "duration", 2*time.Second, "error", errors.New("boom"))
	s.WithGroup("stats").Info("done", "reset", 3)

	entries := decode(t, &buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "WARN", entries[0]["level"])
	assert.Equal(t, "scheduler", entries[0]["component"])
	assert.Equal(t, "2s", entries[0]["duration"])
	assert.Equal(t, "boom", entries[0]["error"])
	assert.Contains(t, entries[0]["caller"], "logger_test.go")
	assert.EqualValues(t, 3, entries[1]["stats.reset"])
}

func TestLogger_ContextCarriesRequestID(t *testing.T) {
	var buf bytes.Buffer
	base := New(Options{Output: &buf, Level: LevelInfo})

	ctx := WithContext(context.Background(), base.WithRequestID("req-42"))
	FromContext(ctx).Warn("rate limiter unavailable")

	entries := decode(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "req-42", entries[0][RequestIDKey])
	assert.NotNil(t, FromContext(context.Background()))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelWarn, ParseLevel(" warning "))
	assert.Equal(t, LevelError, ParseLevel("error"))
	assert.Equal(t, LevelInfo, ParseLevel("verbose"))
	assert.Equal(t, "DEBUG", LevelDebug.String())
}
