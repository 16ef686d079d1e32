package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    LogLevel
		wantErr bool
	}{
		{"debug", Debug, false},
		{"INFO", Info, false},
		{"", Info, false},
		{"warn", Warn, false},
		{"ERROR", Error, false},
		{"verbose", Info, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLogLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLogger_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewLogger(Config{LogLevel: Warn, Output: &buf})
	require.NoError(t, err)

	l.Debug("debug %d", 1)
	l.Info("info %d", 2)
	l.Warn("warn %d", 3)
	l.Error("error %d", 4)

	out := buf.String()
	assert.NotContains(t, out, "debug 1")
	assert.NotContains(t, out, "info 2")
	assert.Contains(t, out, "WARN: ")
	assert.Contains(t, out, "warn 3")
	assert.Contains(t, out, "error 4")
	// Lshortfile must point at the caller, not at logger.go
	assert.Contains(t, out, "logger_test.go")
}

func TestLogger_WritesToFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "astrec.log")

	l, err := NewLogger(Config{LogLevel: Info, LogFile: path, MaxSizeMB: 1, Output: &bytes.Buffer{}})
	require.NoError(t, err)
	l.Info("hello %s", "file")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "hello file"))
}

func TestDiscard(t *testing.T) {
	l := Discard()
	l.Error("nothing to see")
	assert.NoError(t, l.Close())
}
