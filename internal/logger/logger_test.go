package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestNew(t *testing.T) {
	tests := []struct {
		name   string
		config *Config
	}{
		{name: "default config", config: nil},
		{name: "json config", config: &Config{Level: "debug", Format: "json", Output: io.Discard}},
		{name: "console config", config: &Config{Level: "info", Format: "console", Output: io.Discard}},
		{name: "nil output", config: &Config{Level: "warn"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotNil(t, New(tt.config))
		})
	}
}

func TestLogger_JSONOutput(t *testing.T) {
	buf := &bytes.Buffer{}
	New(&Config{Level: "info", Format: "json", Output: buf}).Info("derivatives uploaded")

	entry := decode(t, buf)
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "derivatives uploaded", entry["message"])
	assert.NotEmpty(t, entry["time"])
}

func TestLogger_WithFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(&Config{Level: "info", Format: "json", Output: buf})

	log.With().
		Str("bucket", "media").
		Str("key", "assets/uploads/foo/a.jpg").
		Int("width", 180).
		Logger().
		Info("resized")

	entry := decode(t, buf)
	assert.Equal(t, "media", entry["bucket"])
	assert.Equal(t, "assets/uploads/foo/a.jpg", entry["key"])
	assert.Equal(t, float64(180), entry["width"])
}

func TestLogger_ErrorWithFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(&Config{Level: "error", Format: "json", Output: buf})

	log.ErrorWith("failed to delete staging object", errors.New("503 slow down"), map[string]interface{}{
		"key": "assets/uploads/foo/a.jpg",
	})

	entry := decode(t, buf)
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "503 slow down", entry["error"])
	assert.Equal(t, "assets/uploads/foo/a.jpg", entry["key"])
}

func TestLogger_WarnWith(t *testing.T) {
	buf := &bytes.Buffer{}
	New(&Config{Level: "warn", Format: "json", Output: buf}).WarnWith("skipped", errors.New("x"), nil)

	entry := decode(t, buf)
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "x", entry["error"])
}

func TestLogger_Context(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(&Config{Level: "info", Format: "json", Output: buf})

	ctx := log.With().Str("request_id", "abc").Logger().WithContext(context.Background())
	FromContext(ctx, nil).Info("from context")

	entry := decode(t, buf)
	assert.Equal(t, "from context", entry["message"])
	assert.Equal(t, "abc", entry["request_id"])
}

func TestFromContext_Fallback(t *testing.T) {
	buf := &bytes.Buffer{}
	fallback := New(&Config{Level: "info", Format: "json", Output: buf})

	FromContext(context.Background(), fallback).Info("fallback used")
	assert.Equal(t, "fallback used", decode(t, buf)["message"])

	assert.NotNil(t, FromContext(context.Background(), nil))
}

func TestLogger_Levels(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		logFunc  func(*Logger)
		expected bool
	}{
		{"debug level logs debug", "debug", func(l *Logger) { l.Debug("debug message") }, true},
		{"info level skips debug", "info", func(l *Logger) { l.Debugf("debug %d", 1) }, false},
		{"error level logs error", "error", func(l *Logger) { l.Errorf("error %s", "message") }, true},
		{"error level skips info", "error", func(l *Logger) { l.Info("info message") }, false},
		{"warn level skips info", "warn", func(l *Logger) { l.Infof("info %s", "message") }, false},
		{"warn level logs warn", "warn", func(l *Logger) { l.Warnf("warn %s", "message") }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			tt.logFunc(New(&Config{Level: tt.level, Format: "json", Output: buf}))

			if tt.expected {
				assert.NotEmpty(t, buf.String(), "expected log output")
			} else {
				assert.Empty(t, buf.String(), "expected no log output")
			}
		})
	}
}

func TestNop(t *testing.T) {
	Nop().Error("discarded")
}

func BenchmarkLogger_WithFields(b *testing.B) {
	log := New(&Config{Level: "info", Format: "json", Output: io.Discard})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		log.With().
			Str("bucket", "media").
			Int("width", i).
			Logger().
			Info("benchmark message")
	}
}
