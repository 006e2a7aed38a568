// File: internal/observability/logger_test.go
package observability

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wafidbot/wafidbot/internal/config"
)

// resetGlobalLogger is critical for test isolation, as the logger is a global
// singleton guarded by sync.Once.
func resetGlobalLogger() {
	once = sync.Once{}
	globalLogger.Store(nil)
}

// syncBuffer adapts a bytes.Buffer to zapcore.WriteSyncer.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Sync() error { return nil }

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestInitialize(t *testing.T) {
	t.Run("console format colorizes the level", func(t *testing.T) {
		resetGlobalLogger()
		buf := &syncBuffer{}

		Initialize(config.LoggerConfig{
			Level:       "debug",
			Format:      "console",
			ServiceName: "TestService",
			Colors:      config.ColorConfig{Info: "green"},
		}, zapcore.AddSync(buf))

		GetLogger().Info("This is a test message.")

		out := buf.String()
		assert.Contains(t, out, "INFO")
		assert.Contains(t, out, "This is a test message.")
		assert.Contains(t, out, colorGreen)
		assert.Contains(t, out, colorReset)
	})

	t.Run("json format emits structured output", func(t *testing.T) {
		resetGlobalLogger()
		buf := &syncBuffer{}

		Initialize(config.LoggerConfig{
			Level:       "info",
			Format:      "json",
			ServiceName: "JSONTest",
		}, zapcore.AddSync(buf))

		GetLogger().Warn("structured message", zap.String("key", "value"))

		line := strings.TrimSpace(buf.String())
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		assert.Equal(t, "structured message", entry["msg"])
		assert.Equal(t, "value", entry["key"])
	})

	t.Run("bad level string falls back to info", func(t *testing.T) {
		resetGlobalLogger()
		buf := &syncBuffer{}

		Initialize(config.LoggerConfig{
			Level:       "shouting",
			Format:      "json",
			ServiceName: "LevelTest",
		}, zapcore.AddSync(buf))

		GetLogger().Debug("should be suppressed")
		GetLogger().Info("should appear")

		out := buf.String()
		assert.NotContains(t, out, "should be suppressed")
		assert.Contains(t, out, "should appear")
	})
}

func TestGetLoggerBeforeInitialize(t *testing.T) {
	resetGlobalLogger()
	logger := GetLogger()
	require.NotNil(t, logger)
}
