package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type logRecord struct {
	Level string `json:"level"`
	Msg   string `json:"msg"`
	Key   string `json:"key"`
}

func captureJSON(t *testing.T, lvl string) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	original := Logger
	originalLevel := level.Level()
	Setup(&buf, lvl, true)
	t.Cleanup(func() {
		Logger = original
		level.Set(originalLevel)
	})
	return &buf
}

func TestLogger(t *testing.T) {
	buf := captureJSON(t, "debug")

	tests := []struct {
		name  string
		fn    func(msg string, args ...any)
		level string
	}{
		{"Info", Info, "INFO"},
		{"Error", Error, "ERROR"},
		{"Warn", Warn, "WARN"},
		{"Debug", Debug, "DEBUG"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()
			tt.fn("message", "key", "value")

			var rec logRecord
			require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
			assert.Equal(t, "message", rec.Msg)
			assert.Equal(t, tt.level, rec.Level)
			assert.Equal(t, "value", rec.Key)
		})
	}
}

func TestSetLevelFiltersRecords(t *testing.T) {
	buf := captureJSON(t, "info")

	Debug("hidden")
	assert.Zero(t, buf.Len())

	SetLevel("debug")
	Debug("shown")
	assert.Contains(t, buf.String(), "shown")

	buf.Reset()
	SetLevel("error")
	Warn("hidden")
	assert.Zero(t, buf.Len())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel(" error "))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}
