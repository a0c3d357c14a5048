// Package store keeps a history of profiling runs in a DuckDB file.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/coral-mesh/pipelinescope/internal/duckdb"
	pserrors "github.com/coral-mesh/pipelinescope/internal/errors"
	"github.com/coral-mesh/pipelinescope/internal/result"
	"github.com/coral-mesh/pipelinescope/internal/stats"
)

// ErrRunNotFound is returned when a run ID is not in the history.
var ErrRunNotFound = errors.New("run not found in history")

var schema = []string{`
CREATE TABLE IF NOT EXISTS runs (
	run_id                  VARCHAR PRIMARY KEY,
	start_time              TIMESTAMP NOT NULL,
	end_time                TIMESTAMP NOT NULL,
	duration_ms             DOUBLE NOT NULL,
	sample_size             BIGINT NOT NULL,
	expected_size           BIGINT NOT NULL,
	scale_factor            DOUBLE NOT NULL,
	extrapolation_available BOOLEAN NOT NULL,
	functions               BIGINT NOT NULL,
	version                 VARCHAR NOT NULL,
	run_dir                 VARCHAR NOT NULL,
	document                VARCHAR NOT NULL
)`, `
CREATE TABLE IF NOT EXISTS function_stats (
	run_id                     VARCHAR NOT NULL,
	identity_hash              BIGINT NOT NULL,
	module                     VARCHAR NOT NULL,
	name                       VARCHAR NOT NULL,
	call_count                 BIGINT NOT NULL,
	total_time_ms              DOUBLE NOT NULL,
	self_time_ms               DOUBLE NOT NULL,
	avg_time_ms                DOUBLE NOT NULL,
	cpu_percent                DOUBLE NOT NULL,
	peak_memory_mb             DOUBLE NOT NULL,
	extrapolated_total_time_ms DOUBLE NOT NULL,
	percentage_of_total        DOUBLE NOT NULL,
	end_time                   TIMESTAMP NOT NULL,
	PRIMARY KEY (run_id, identity_hash)
)`,
	`CREATE INDEX IF NOT EXISTS idx_function_stats_identity ON function_stats (identity_hash)`,
}

// Run is one row of the runs table.
type Run struct {
	RunID                  string    `duckdb:"run_id,pk"`
	StartTime              time.Time `duckdb:"start_time"`
	EndTime                time.Time `duckdb:"end_time"`
	DurationMs             float64   `duckdb:"duration_ms"`
	SampleSize             int64     `duckdb:"sample_size"`
	ExpectedSize           int64     `duckdb:"expected_size"`
	ScaleFactor            float64   `duckdb:"scale_factor"`
	ExtrapolationAvailable bool      `duckdb:"extrapolation_available"`
	Functions              int64     `duckdb:"functions"`
	Version                string    `duckdb:"version"`
	RunDir                 string    `duckdb:"run_dir"`
	Document               string    `duckdb:"document"`
}

// FunctionRow is one function of one run in the function_stats table.
type FunctionRow struct {
	RunID             string    `duckdb:"run_id,pk"`
	IdentityHash      int64     `duckdb:"identity_hash,pk"`
	Module            string    `duckdb:"module"`
	Name              string    `duckdb:"name"`
	CallCount         int64     `duckdb:"call_count"`
	TotalTimeMs       float64   `duckdb:"total_time_ms"`
	SelfTimeMs        float64   `duckdb:"self_time_ms"`
	AvgTimeMs         float64   `duckdb:"avg_time_ms"`
	CPUPercent        float64   `duckdb:"cpu_percent"`
	PeakMemoryMB      float64   `duckdb:"peak_memory_mb"`
	ProjectedTimeMs   float64   `duckdb:"extrapolated_total_time_ms"`
	PercentageOfTotal float64   `duckdb:"percentage_of_total"`
	EndTime           time.Time `duckdb:"end_time"`
}

// Store is the run history database.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Open opens or creates the history at path. Read-only stores skip schema creation.
func Open(path string, readOnly bool, logger zerolog.Logger) (*Store, error) {
	db, err := duckdb.Open(path, duckdb.Options{ReadOnly: readOnly})
	if err != nil {
		return nil, err
	}
	s := &Store{db: db, logger: logger.With().Str("component", "store").Logger()}
	if !readOnly {
		if err := s.init(context.Background()); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return s, nil
}

// New wraps an open database, creating the schema.
func New(ctx context.Context, db *sql.DB, logger zerolog.Logger) (*Store, error) {
	s := &Store{db: db, logger: logger.With().Str("component", "store").Logger()}
	if err := s.init(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) init(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create history schema: %w", err)
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRun records r, replacing any earlier record with the same run ID.
func (s *Store) SaveRun(ctx context.Context, r *result.Result, runDir string) error {
	doc, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode run: %w", err)
	}

	id := r.Metadata.RunID
	// DuckDB checks unique keys eagerly, so a replaced run is removed in its own
	// transaction before the new rows go in.
	if err := s.DeleteRun(ctx, id); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer pserrors.DeferRollback(s.logger, tx)

	runs := duckdb.NewTable[Run](tx, "runs")
	functions := duckdb.NewTable[FunctionRow](tx, "function_stats")

	md := r.Metadata
	if err := runs.Insert(ctx, &Run{
		RunID:                  id,
		StartTime:              md.StartTime.UTC(),
		EndTime:                md.EndTime.UTC(),
		DurationMs:             md.ProfilingDurationMs,
		SampleSize:             int64(md.SampleSize),
		ExpectedSize:           int64(md.ExpectedSize),
		ScaleFactor:            md.ScaleFactor,
		ExtrapolationAvailable: md.ExtrapolationAvailable,
		Functions:              int64(md.TotalFunctionsTracked),
		Version:                md.Version,
		RunDir:                 runDir,
		Document:               string(doc),
	}); err != nil {
		return fmt.Errorf("failed to save run %s: %w", id, err)
	}

	if err := functions.BatchInsert(ctx, functionRows(r)); err != nil {
		return fmt.Errorf("failed to save function stats of %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run %s: %w", id, err)
	}
	s.logger.Debug().Str("run_id", id).Int("functions", len(r.FunctionStats)).Msg("Run saved to history")
	return nil
}

// DeleteRun removes a run and its function stats. Removing an unknown run is not an error.
func (s *Store) DeleteRun(ctx context.Context, runID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer pserrors.DeferRollback(s.logger, tx)

	if _, err := duckdb.NewTable[FunctionRow](tx, "function_stats").DeleteWhere(ctx, "run_id", runID); err != nil {
		return err
	}
	if _, err := duckdb.NewTable[Run](tx, "runs").DeleteWhere(ctx, "run_id", runID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to delete run %s: %w", runID, err)
	}
	return nil
}

func functionRows(r *result.Result) []*FunctionRow {
	rows := make([]*FunctionRow, 0, len(r.FunctionStats))
	for _, key := range r.Keys() {
		fs := r.FunctionStats[key]
		id := fs.Identity()
		if id.IsIdle() {
			continue
		}
		row := &FunctionRow{
			RunID:        r.Metadata.RunID,
			IdentityHash: IdentityKey(id),
			Module:       fs.Module,
			Name:         fs.Name,
			CallCount:    fs.CallCount,
			TotalTimeMs:  fs.TotalTimeMs,
			SelfTimeMs:   fs.SelfTimeMs,
			AvgTimeMs:    fs.AvgTimeMs,
			CPUPercent:   fs.CPUPercent,
			PeakMemoryMB: fs.PeakMemoryMB,
			EndTime:      r.Metadata.EndTime.UTC(),
		}
		if x, ok := r.Extrapolated(key); ok {
			row.ProjectedTimeMs = x.ExtrapolatedTotalTimeMs
			row.PercentageOfTotal = x.PercentageOfTotal
		}
		rows = append(rows, row)
	}
	return rows
}

// IdentityKey is the identity_hash column value for id.
func IdentityKey(id stats.Identity) int64 {
	return int64(id.Hash()) // #nosec G115 - bit reinterpretation for a BIGINT column
}

// ListOptions filters ListRuns.
type ListOptions struct {
	// Since keeps runs that ended at or after it.
	Since time.Time
	// Limit caps the number of runs. Zero returns all.
	Limit int
}

// ListRuns returns recorded runs, newest first. Document is left empty.
func (s *Store) ListRuns(ctx context.Context, opts ListOptions) ([]*Run, error) {
	b := duckdb.NewQueryBuilder("runs").Since(opts.Since).OrderBy("-end_time", "run_id").Limit(opts.Limit)
	s.trace(b)

	runs, err := duckdb.NewTable[Run](s.db, "runs").Select(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	for _, r := range runs {
		r.Document = ""
	}
	return runs, nil
}

// LoadRun returns the full document of a recorded run.
func (s *Store) LoadRun(ctx context.Context, runID string) (*result.Result, error) {
	run, err := duckdb.NewTable[Run](s.db, "runs").Get(ctx, runID)
	if err != nil {
		if errors.Is(err, duckdb.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil, err
	}

	var r result.Result
	if err := json.Unmarshal([]byte(run.Document), &r); err != nil {
		return nil, fmt.Errorf("failed to decode run %s: %w", runID, err)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// FunctionHistory returns the recorded stats of one function across runs, newest first.
func (s *Store) FunctionHistory(ctx context.Context, id stats.Identity, limit int) ([]*FunctionRow, error) {
	b := duckdb.NewQueryBuilder("function_stats").
		Eq("identity_hash", IdentityKey(id)).
		OrderBy("-end_time", "run_id").
		Limit(limit)
	s.trace(b)

	rows, err := duckdb.NewTable[FunctionRow](s.db, "function_stats").Select(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("failed to load history of %s: %w", id, err)
	}
	return rows, nil
}

func (s *Store) trace(b *duckdb.Builder) {
	if s.logger.GetLevel() > zerolog.TraceLevel {
		return
	}
	if query, args, err := b.Build(); err == nil {
		s.logger.Trace().Str("sql", duckdb.InterpolateQuery(query, args)).Msg("History query")
	}
}
