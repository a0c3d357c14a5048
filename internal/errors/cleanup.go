// Package errors provides utilities for error handling in PipelineScope.
package errors

import (
	"database/sql"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"
)

// DeferClose properly closes an io.Closer with logging.
// Use this in defer statements to avoid suppressing close errors.
func DeferClose(logger zerolog.Logger, closer io.Closer, msg string) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		logger.Warn().Err(err).Msg(msg)
	}
}

// DeferRollback properly rolls back a transaction with logging.
// Use this in defer statements to ensure cleanup errors are logged.
// Ignores sql.ErrTxDone which is expected after successful commits.
func DeferRollback(logger zerolog.Logger, tx *sql.Tx) {
	if tx == nil {
		return
	}
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		logger.Warn().Err(err).Msg("transaction rollback failed")
	}
}

// RecoverTo converts a panic into an error stored in errp. It must be deferred
// directly by the function whose panics it should catch.
//
//	defer errors.RecoverTo(&err, "extrapolation")
func RecoverTo(errp *error, what string) {
	if r := recover(); r != nil && errp != nil {
		*errp = fmt.Errorf("%s panicked: %v", what, r)
	}
}

// LogPanic recovers a panic and logs it instead of crashing the process. Use it at the
// top of background goroutines that must never take the monitored program down.
func LogPanic(logger zerolog.Logger, what string) {
	if r := recover(); r != nil {
		logger.Error().Interface("panic", r).Msgf("%s panicked", what)
	}
}
