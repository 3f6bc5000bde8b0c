package logger

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger(t *testing.T) {
	t.Run("Should write structured keyvals", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewLogger(&Config{Level: InfoLevel, Output: &buf})
		log.Info("document indexed", "owner_id", "teacher-1")
		out := buf.String()
		assert.Contains(t, out, "document indexed")
		assert.Contains(t, out, "owner_id")
	})

	t.Run("Should honor the configured level", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewLogger(&Config{Level: ErrorLevel, Output: &buf})
		log.Info("hidden")
		log.Error("shown")
		out := buf.String()
		assert.NotContains(t, out, "hidden")
		assert.Contains(t, out, "shown")
	})

	t.Run("Should carry With fields to child loggers", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewLogger(&Config{Level: InfoLevel, Output: &buf}).With("component", "pipeline")
		log.Info("ready")
		assert.Contains(t, buf.String(), "component")
	})

	t.Run("Should emit JSON when configured", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewLogger(&Config{Level: InfoLevel, Output: &buf, JSON: true})
		log.Info("ready")
		assert.Contains(t, buf.String(), `"msg":"ready"`)
	})
}

func TestFromContext(t *testing.T) {
	t.Run("Should round-trip a logger through the context", func(t *testing.T) {
		log := NewForTests()
		ctx := ContextWithLogger(context.Background(), log)
		assert.Same(t, log, FromContext(ctx))
	})

	t.Run("Should fall back to the default logger", func(t *testing.T) {
		require.NotNil(t, FromContext(context.Background()))
		assert.NotNil(t, FromContext(nil)) //nolint:staticcheck
	})
}
