package logger

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestNewWithOutputLevels(t *testing.T) {
	tests := []struct {
		level string
		want  logrus.Level
	}{
		{"debug", logrus.DebugLevel},
		{"warn", logrus.WarnLevel},
		{"", logrus.InfoLevel},
		{"loud", logrus.InfoLevel},
	}

	for _, tc := range tests {
		l := NewWithOutput(tc.level, &bytes.Buffer{})
		assert.Equal(t, tc.want, l.GetLevel(), tc.level)
	}
}

func TestNewWithOutputWritesFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithOutput("info", &buf)

	l.WithField("session_id", "abc").Info("study session started")
	l.Debug("hidden")

	out := buf.String()
	assert.Contains(t, out, "study session started")
	assert.Contains(t, out, "session_id=abc")
	assert.NotContains(t, out, "hidden")
}
