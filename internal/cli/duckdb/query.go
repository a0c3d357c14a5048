package duckdb

import (
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/coral-mesh/pipelinescope/internal/cli/helpers"
)

// NewQueryCmd creates the query subcommand for one-shot SQL queries.
func NewQueryCmd() *cobra.Command {
	var (
		flags  dbFlags
		format string
	)

	cmd := &cobra.Command{
		Use:   "query <sql>",
		Short: "Execute a one-shot SQL query against the history database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := helpers.ValidateFormat(format, helpers.ListFormats); err != nil {
				return err
			}

			db, err := flags.open(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
			defer cancel()

			return runQuery(ctx, cmd.OutOrStdout(), db, args[0], helpers.OutputFormat(format))
		},
	}

	flags.add(cmd)
	helpers.AddFormatFlag(cmd, &format, helpers.FormatTable, helpers.ListFormats)

	return cmd
}

// queryResult holds a fully read result set.
type queryResult struct {
	columns []string
	rows    [][]any
}

func fetch(ctx context.Context, db *sql.DB, query string) (*queryResult, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}

	res := &queryResult{columns: columns}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		res.rows = append(res.rows, values)
	}
	return res, rows.Err()
}

func runQuery(ctx context.Context, out io.Writer, db *sql.DB, query string, format helpers.OutputFormat) error {
	res, err := fetch(ctx, db, query)
	if err != nil {
		return err
	}

	switch format {
	case helpers.FormatCSV:
		return writeCSV(out, res)
	case helpers.FormatJSON:
		return writeJSON(out, res)
	default:
		if err := writeTable(out, res); err != nil {
			return err
		}
		_, err := fmt.Fprintf(out, "(%d rows)\n", len(res.rows))
		return err
	}
}

func (r *queryResult) records() [][]string {
	records := make([][]string, len(r.rows))
	for i, row := range r.rows {
		rec := make([]string, len(row))
		for j, v := range row {
			rec[j] = formatValue(v)
		}
		records[i] = rec
	}
	return records
}

func writeTable(out io.Writer, res *queryResult) error {
	if len(res.columns) == 0 {
		return nil
	}
	return helpers.RenderGrid(out, res.columns, res.records())
}

func writeCSV(out io.Writer, res *queryResult) error {
	w := csv.NewWriter(out)
	if err := w.Write(res.columns); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	if err := w.WriteAll(res.records()); err != nil {
		return fmt.Errorf("failed to write CSV rows: %w", err)
	}
	return nil
}

func writeJSON(out io.Writer, res *queryResult) error {
	objects := make([]map[string]any, 0, len(res.rows))
	for _, row := range res.rows {
		obj := make(map[string]any, len(row))
		for i, col := range res.columns {
			obj[col] = row[i]
		}
		objects = append(objects, obj)
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(objects); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

// formatValue formats a value for display in table or CSV output.
func formatValue(val any) string {
	switch v := val.(type) {
	case nil:
		return "NULL"
	case time.Time:
		return v.Format(time.RFC3339)
	case float64:
		return fmt.Sprintf("%.3f", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
