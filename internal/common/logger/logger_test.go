package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dumeirei/tour-booking-backend/internal/common/config"
)

// ==================== Init 测试 ====================

func TestInit_ConsoleFormat(t *testing.T) {
	err := Init(&config.LoggerConfig{Level: "debug", Format: "console", Output: "stdout", Caller: true})
	assert.NoError(t, err)
	assert.NotNil(t, GetLogger())
	assert.NotNil(t, GetSugar())
}

func TestInit_JSONFileOutput(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "json.log")
	require.NoError(t, Init(&config.LoggerConfig{
		Level:    "info",
		Format:   "json",
		Output:   "file",
		FilePath: logFile,
		MaxSize:  1,
	}))

	Info("booking created", BookingID(42), TourID(7), UserID(3))
	_ = Sync()

	content, err := os.ReadFile(logFile)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	require.NotEmpty(t, lines)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "booking created", entry["msg"])
	assert.Equal(t, float64(42), entry["booking_id"])
	assert.Equal(t, float64(7), entry["tour_id"])
	assert.Equal(t, "info", entry["level"])
}

func TestLogLevelFiltering(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "level.log")
	require.NoError(t, Init(&config.LoggerConfig{Level: "warn", Format: "json", Output: "file", FilePath: logFile}))

	Debug("debug message")
	Info("info message")
	Warn("warn message")
	Error("error message")
	_ = Sync()

	content, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.NotContains(t, string(content), "info message")
	assert.Contains(t, string(content), "warn message")
	assert.Contains(t, string(content), "error message")
}

func TestGetLogLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"info":    zapcore.InfoLevel,
		"warn":    zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"unknown": zapcore.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, getLogLevel(in), in)
	}
}

// ==================== 字段 测试 ====================

func TestFieldConstructors(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	SetLogger(zap.New(core))

	Info("payment",
		PaymentIntentID("pi_123"),
		Module("payment"),
		Action("confirm"),
		Latency(15*time.Millisecond),
		StatusCode(200),
		Method("POST"),
		Path("/api/v1/payments/webhook"),
		IP("10.0.0.1"),
		RequestID("req-1"),
	)

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "pi_123", fields["payment_intent_id"])
	assert.Equal(t, "payment", fields["module"])
	assert.Equal(t, "confirm", fields["action"])
	assert.Equal(t, int64(200), fields["status_code"])
	assert.Equal(t, "req-1", fields["request_id"])
}

func TestNamed(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	SetLogger(zap.New(core))

	Named("scheduler").Info("tick")
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "scheduler", logs.All()[0].LoggerName)
}

func TestSync_WithNilLogger(t *testing.T) {
	old := log
	log = nil
	t.Cleanup(func() { log = old })
	assert.NoError(t, Sync())
}
