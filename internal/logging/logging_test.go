package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFallsBackToInfoLevelOnUnknownLevel(t *testing.T) {
	l := New(Config{Level: "not-a-level"})
	assert.Equal(t, logrus.InfoLevel, l.GetLevel())
}

func TestNewParsesKnownLevel(t *testing.T) {
	l := New(Config{Level: "debug"})
	assert.Equal(t, logrus.DebugLevel, l.GetLevel())
}

func TestNewSelectsJSONFormatterCaseInsensitively(t *testing.T) {
	l := New(Config{Format: "JSON"})
	_, ok := l.Formatter.(*logrus.JSONFormatter)
	assert.True(t, ok)
}

func TestNewDefaultsToTextFormatter(t *testing.T) {
	l := New(Config{Format: "unknown"})
	_, ok := l.Formatter.(*logrus.TextFormatter)
	assert.True(t, ok)
}

func TestNewWritesToFileWhenOutputIsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.log")
	l := New(Config{Output: "file", File: path})
	l.Info("hello")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
}

func TestNewDefaultBuildsStdoutTextLoggerAtInfoLevel(t *testing.T) {
	l := NewDefault()
	assert.Equal(t, logrus.InfoLevel, l.GetLevel())
	_, ok := l.Formatter.(*logrus.TextFormatter)
	assert.True(t, ok)
}
