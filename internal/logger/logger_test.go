package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestFromContext_AddsIDs(t *testing.T) {
	var buf bytes.Buffer
	Init("debug", "json", &buf)

	ctx := WithValue(context.Background(), RequestIDKey, "req-1")
	ctx = WithValue(ctx, BatchIDKey, "batch-9")
	Error(ctx, "write failed", errors.New("disk full"), "records", 3)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "write failed", line["msg"])
	assert.Equal(t, "req-1", line["request_id"])
	assert.Equal(t, "batch-9", line["batch_id"])
	assert.Equal(t, "disk full", line["error"])
	assert.EqualValues(t, 3, line["records"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	Init("warn", "text", &buf)

	Info(context.Background(), "hidden")
	assert.Empty(t, buf.String())

	Warn(context.Background(), "shown")
	assert.Contains(t, buf.String(), "shown")
}
