// Package duckdb provides CLI commands for querying the run history database with SQL.
package duckdb

import (
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/coral-mesh/pipelinescope/internal/cli/helpers"
	ddb "github.com/coral-mesh/pipelinescope/internal/duckdb"
)

// NewDuckDBCmd creates the duckdb command.
func NewDuckDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "duckdb",
		Short: "Query the run history database with SQL",
		Long: `Query the run history database (history.duckdb) with SQL.

Runs are recorded when enable_history is set. The database holds two tables:
runs (one row per run) and function_stats (one row per function per run).
The database is opened read-only, so queries never block a profiled pipeline.

Examples:
  # Slowest functions of every recorded run
  pipelinescope duckdb query "SELECT run_id, module, name, self_time_ms FROM function_stats ORDER BY self_time_ms DESC LIMIT 10"

  # Query with CSV output
  pipelinescope duckdb query "SELECT run_id, duration_ms FROM runs" --format csv

  # Interactive shell
  pipelinescope duckdb shell`,
	}

	cmd.AddCommand(NewQueryCmd())
	cmd.AddCommand(NewShellCmd())

	return cmd
}

type dbFlags struct {
	configPath  string
	historyPath string
}

func (f *dbFlags) add(cmd *cobra.Command) {
	helpers.AddConfigFlag(cmd, &f.configPath)
	cmd.Flags().StringVar(&f.historyPath, "history-path", "", "History database (default: from config)")
}

func (f *dbFlags) open(cmd *cobra.Command) (*sql.DB, error) {
	path := f.historyPath
	if path == "" {
		path = helpers.LoadConfig(cmd, f.configPath).ResolvedHistoryPath()
	}
	return openHistory(path)
}

// openHistory opens an existing history database read-only.
func openHistory(path string) (*sql.DB, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("no history database at %s (set enable_history: true to record runs)", path)
		}
		return nil, err
	}
	return ddb.Open(path, ddb.Options{ReadOnly: true})
}
