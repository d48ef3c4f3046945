package oteladapters_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/yegor-mialyk/DbContextScope/dbscope/oteladapters"
)

func Test_NewSlogBridgeLogger_Construction(t *testing.T) {
	logger := oteladapters.NewSlogBridgeLogger("test")
	assert.NotNil(t, logger, "NewSlogBridgeLogger should return non-nil logger")
}

func Test_NewSlogBridgeLoggerWithHandler_Construction(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, nil)

	logger := oteladapters.NewSlogBridgeLoggerWithHandler(handler)
	assert.NotNil(t, logger, "NewSlogBridgeLoggerWithHandler should return non-nil logger")
}

func Test_SlogBridgeLogger_AllLevels(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{
		Level: slog.LevelDebug, // Capture all levels
	})

	logger := oteladapters.NewSlogBridgeLoggerWithHandler(handler)
	ctx := context.Background()

	// Test all log levels
	logger.DebugContext(ctx, "debug message", "level", "debug")
	logger.InfoContext(ctx, "info message", "level", "info")
	logger.WarnContext(ctx, "warn message", "level", "warn")
	logger.ErrorContext(ctx, "error message", "level", "error")

	output := buf.String()

	// Verify all messages were logged
	assert.Contains(t, output, "debug message", "Debug message should be logged")
	assert.Contains(t, output, "info message", "Info message should be logged")
	assert.Contains(t, output, "warn message", "Warn message should be logged")
	assert.Contains(t, output, "error message", "Error message should be logged")

	// Verify level information
	assert.Contains(t, output, `"level":"debug"`, "Debug level should be present")
	assert.Contains(t, output, `"level":"info"`, "Info level should be present")
	assert.Contains(t, output, `"level":"warn"`, "Warn level should be present")
	assert.Contains(t, output, `"level":"error"`, "Error level should be present")
}

func Test_SlogBridgeLogger_WithAttributes(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, nil)

	logger := oteladapters.NewSlogBridgeLoggerWithHandler(handler)
	ctx := context.Background()

	// Log with the attribute shapes the scope machinery produces
	logger.InfoContext(ctx, "resource collection committed",
		"handle_count", 2,
		"change_count", int64(7),
		"duration_ms", 1.25,
	)

	output := buf.String()

	assert.Contains(t, output, "resource collection committed", "Message should be logged")
	assert.Contains(t, output, `"handle_count":2`, "Int attribute should be present")
	assert.Contains(t, output, `"change_count":7`, "Int64 attribute should be present")
	assert.Contains(t, output, `"duration_ms":1.25`, "Float attribute should be present")
}
