package pipelinescope

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/coral-mesh/pipelinescope/internal/config"
	"github.com/coral-mesh/pipelinescope/internal/result"
)

// DiagConfigLoad is reported when the configuration file or environment could not be read.
const DiagConfigLoad = "config_load"

// Run profiles fn under a new engine and finalizes on every exit path: normal
// return, error, panic (re-raised after finalizing), and SIGINT or SIGTERM, which
// finalize immediately and cancel the context passed to fn.
func Run(ctx context.Context, cfg config.Config, fn func(ctx context.Context) error, opts ...Option) (res *result.Result, err error) {
	e := New(cfg, opts...)

	sigCtx, stopSignals := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-sigCtx.Done():
			if ctx.Err() == nil {
				e.logger.Warn().Msg("Interrupted; finalizing profile")
				e.Stop()
				// A second signal gets the default behavior and terminates the process.
				stopSignals()
			}
		case <-done:
		}
	}()

	runCtx := e.Start(sigCtx)
	defer func() {
		r := recover()
		res = e.Stop()
		if r != nil {
			panic(r)
		}
	}()
	return nil, fn(runCtx)
}

// Load creates an engine from the configuration at path, or from the discovered
// .pipelinescope.yaml when path is empty, with PIPELINESCOPE_* overrides applied.
// Configuration problems are logged as warnings and never prevent profiling.
func Load(path string, opts ...Option) *Engine {
	cfg, err := config.Load(path)
	e := New(*cfg, opts...)
	if err != nil && !isValidationError(err) {
		e.diags.OnceErr(DiagConfigLoad, "configuration could not be fully loaded; defaults used", err)
	}
	return e
}

func isValidationError(err error) bool {
	var multi *config.MultiValidationError
	var single *config.ValidationError
	return errors.As(err, &multi) || errors.As(err, &single)
}
