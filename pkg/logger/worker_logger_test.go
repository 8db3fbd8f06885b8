package logger

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"INFO", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"verbose", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestLogger_Fields(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: zerolog.InfoLevel, Output: &buf, Service: "test"})

	ctx := WithRunID(context.Background(), "run-1")
	l.WithContext(ctx).
		WithFields(map[string]any{"processed": 3}).
		WithError(errors.New("boom")).
		WithDuration(1500*time.Microsecond).
		Warn("batch %s", "done")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "test", entry["service"])
	assert.Equal(t, "run-1", entry["run_id"])
	assert.Equal(t, float64(3), entry["processed"])
	assert.Equal(t, "boom", entry["error"])
	assert.Equal(t, 1.5, entry["duration_ms"])
	assert.Equal(t, "batch done", entry["message"])
}

func TestLogger_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: zerolog.WarnLevel, Output: &buf})

	l.Info("hidden")
	l.Debug("hidden")
	assert.Empty(t, buf.String())

	l.Error("shown %d", 1)
	assert.Contains(t, buf.String(), "shown 1")
}

func TestLogger_MessageWithoutArgsIsLiteral(t *testing.T) {
	var buf bytes.Buffer
	New(Config{Output: &buf}).Info("100% done")
	assert.Contains(t, buf.String(), "100% done")
}
