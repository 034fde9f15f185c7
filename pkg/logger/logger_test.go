package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_AllLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "fatal"} {
		l := New(level)
		assert.NotNil(t, l, "logger for level %s", level)
		l.Info("message", "key", "value")
		l.Debug("message")
		l.Warn("message")
		l.Error("message")
	}
}

func TestNew_UnknownLevelDefaultsToInfo(t *testing.T) {
	l := New("verbose")
	assert.NotNil(t, l)
	l.Info("still works")
}

func TestNewNop(t *testing.T) {
	l := NewNop()
	assert.NotNil(t, l)
	l.Error("dropped", "k", 1)
}
