package pipelinescope

import (
	"context"
	"path/filepath"
	"time"

	"github.com/coral-mesh/pipelinescope/internal/report"
	"github.com/coral-mesh/pipelinescope/internal/result"
	"github.com/coral-mesh/pipelinescope/internal/store"
)

// historyTimeout bounds the history write so a locked database cannot hang finalization.
const historyTimeout = 30 * time.Second

// writeOutputs writes the run directory and returns its path, or "" when it could
// not be created. Individual writer failures are logged and skipped.
func (e *Engine) writeOutputs(res *result.Result, end time.Time) string {
	dir, err := result.CreateRunDir(e.cfg.OutputDir, end)
	if err != nil {
		e.logger.Error().Err(err).Str("output_dir", e.cfg.OutputDir).Msg("Failed to create run directory; results not written")
		return ""
	}

	written := []string{}
	if err := result.WriteJSON(filepath.Join(dir, result.DataFile), res, e.logger); err != nil {
		e.logger.Error().Err(err).Msg("Failed to write profile data")
	} else {
		written = append(written, result.DataFile)
	}

	if e.cfg.EnableDashboard {
		a := report.NewAnalyzer(res, report.Options{
			MinTimeThresholdMs: e.cfg.MinTimeThresholdMs,
			MinTimePercentage:  e.cfg.MinTimePercentage,
		})
		if err := report.WriteHTML(filepath.Join(dir, result.SummaryFile), a, e.cfg.DashboardTitle, end, e.logger); err != nil {
			e.logger.Error().Err(err).Msg("Failed to write HTML summary")
		} else {
			written = append(written, result.SummaryFile)
		}
	}

	if e.cfg.EnablePprof {
		if err := result.WritePprofFile(filepath.Join(dir, result.PprofFile), res, e.logger); err != nil {
			e.logger.Error().Err(err).Msg("Failed to write pprof profile")
		} else {
			written = append(written, result.PprofFile)
		}
	}

	if e.cfg.EnableHistory {
		if err := e.saveHistory(res, dir); err != nil {
			e.logger.Error().Err(err).Str("history", e.cfg.ResolvedHistoryPath()).Msg("Failed to record run history")
		}
	}

	for _, w := range e.opts.writers {
		if err := w.write(dir, res); err != nil {
			e.logger.Error().Err(err).Str("writer", w.name).Msg("Output writer failed")
		}
	}

	e.logger.Info().Str("run_dir", dir).Strs("files", written).Msg("Profiling results written")
	return dir
}

func (e *Engine) saveHistory(res *result.Result, dir string) error {
	ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
	defer cancel()

	s, err := store.Open(e.cfg.ResolvedHistoryPath(), false, e.base)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	return s.SaveRun(ctx, res, dir)
}
