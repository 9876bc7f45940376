package logger_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vytor/lingoflash/internal/logger"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]logger.Level{
		"debug":   logger.DEBUG,
		"INFO":    logger.INFO,
		"warning": logger.WARN,
		" error ": logger.ERROR,
		"bogus":   logger.INFO,
	}
	for in, want := range tests {
		assert.Equal(t, want, logger.ParseLevel(in), in)
	}
}

func TestLogger_FiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(logger.WithOutput(&buf), logger.WithLevel(logger.WARN), logger.WithColors(false))

	log.Info("hidden")
	log.Warn("shown %d", 1)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown 1")
	assert.Contains(t, out, "WARN")
}

func TestLogger_FieldsAreSorted(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(logger.WithOutput(&buf), logger.WithColors(false)).
		WithPrefix("dialog").
		WithFields(map[string]any{"session": "s1", "actor": "a1"})

	log.Info("turn appended")

	line := strings.TrimSpace(buf.String())
	assert.Contains(t, line, "[dialog]")
	assert.True(t, strings.HasSuffix(line, "actor=a1 session=s1"), line)
}

func TestLogger_DerivedDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	parent := logger.New(logger.WithOutput(&buf), logger.WithColors(false))
	_ = parent.WithField("k", "v")

	parent.Info("plain")
	assert.NotContains(t, buf.String(), "k=v")
}

func TestContextRoundTrip(t *testing.T) {
	log := logger.Discard().WithPrefix("x")
	ctx := logger.NewContext(context.Background(), log)
	assert.Same(t, log, logger.FromContext(ctx))
	assert.Same(t, logger.Default(), logger.FromContext(context.Background()))
}
