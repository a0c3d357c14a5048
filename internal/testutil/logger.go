package testutil

import (
	"io"
	"testing"

	"github.com/rs/zerolog"
)

// NewTestLogger returns a logger that discards output.
func NewTestLogger(t *testing.T) zerolog.Logger {
	t.Helper()
	return zerolog.New(io.Discard)
}

// NewTestLoggerWithOutput returns a logger writing plain console lines to t.Log, for
// debugging a failing test.
func NewTestLoggerWithOutput(t *testing.T) zerolog.Logger {
	t.Helper()
	w := zerolog.ConsoleWriter{Out: tLogWriter{t: t}, NoColor: true, PartsExclude: []string{zerolog.TimestampFieldName}}
	return zerolog.New(w).Level(zerolog.TraceLevel)
}

type tLogWriter struct {
	t *testing.T
}

func (w tLogWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Log(string(p))
	return len(p), nil
}
