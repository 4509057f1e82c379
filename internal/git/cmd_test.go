package git

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.wbench.dev/core/internal/silog"
)

func TestGitCmd_logPrefix(t *testing.T) {
	var logBuffer bytes.Buffer
	newLogger := func() *silog.Logger {
		return silog.New(&logBuffer, &silog.Options{Level: silog.LevelDebug})
	}

	t.Run("DefaultPrefixNoCommand", func(t *testing.T) {
		defer logBuffer.Reset()

		_ = newGitCmd(t.Context(), newLogger(), "--unknown-flag").
			Dir(t.TempDir()).
			Run(_realExec)

		assert.Contains(t, logBuffer.String(), "git")
	})

	t.Run("DefaultPrefixCommand", func(t *testing.T) {
		defer logBuffer.Reset()

		_ = newGitCmd(t.Context(), newLogger(), "unknown-cmd").
			Dir(t.TempDir()).
			Run(_realExec)

		assert.Contains(t, logBuffer.String(), "git unknown-cmd")
	})

	t.Run("PriorPrefix", func(t *testing.T) {
		defer logBuffer.Reset()

		log := newLogger().WithPrefix("custom")
		_ = newGitCmd(t.Context(), log, "whatever").
			Dir(t.TempDir()).
			Run(_realExec)

		assert.Contains(t, logBuffer.String(), "custom")
	})
}
