package logger

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func encodeLine(t *testing.T, level zapcore.Level, msg string, fields ...zapcore.Field) string {
	t.Helper()
	enc := newBracketEncoder()
	buf, err := enc.EncodeEntry(zapcore.Entry{
		Level:   level,
		Time:    time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC),
		Message: msg,
	}, fields)
	require.NoError(t, err)
	return buf.String()
}

func TestBracketFormat(t *testing.T) {
	line := encodeLine(t, zapcore.InfoLevel, "Scheduler started")
	assert.Equal(t, "[2026-03-14 09:26:53] INFO: Scheduler started\n", line)
}

func TestBracketFormatLevels(t *testing.T) {
	assert.Contains(t, encodeLine(t, zapcore.WarnLevel, "x"), "] WARN: x")
	assert.Contains(t, encodeLine(t, zapcore.ErrorLevel, "x"), "] ERROR: x")
	assert.Contains(t, encodeLine(t, zapcore.DebugLevel, "x"), "] DEBUG: x")
}

func TestBracketFormatFields(t *testing.T) {
	line := encodeLine(t, zapcore.InfoLevel, "Job completed",
		zap.String("job", "sample"),
		zap.Int("exit", 0),
		zap.Bool("success", true))
	assert.Equal(t, "[2026-03-14 09:26:53] INFO: Job completed  job=sample  exit=0  success=true\n", line)
}

func TestLineShape(t *testing.T) {
	line := encodeLine(t, zapcore.InfoLevel, "anything at all")
	matched := regexp.MustCompile(`^\[\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\] [A-Z]+: `).MatchString(line)
	assert.True(t, matched, "line %q must match the operator log format", line)
}

func TestInitialize(t *testing.T) {
	require.NoError(t, Initialize(false, false))
	assert.NotNil(t, Logger)
	assert.False(t, JSONOutput)

	require.NoError(t, Initialize(true, true))
	assert.True(t, JSONOutput)
}

func TestNewIsIndependent(t *testing.T) {
	before := Logger
	log := New(true)
	assert.NotNil(t, log)
	assert.Same(t, before, Logger, "New must not touch the global")
}
