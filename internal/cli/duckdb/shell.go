package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
)

const (
	primaryPrompt      = "duckdb> "
	continuationPrompt = "    ..> "
)

var errExit = errors.New("exit")

// NewShellCmd creates the shell subcommand for interactive queries.
func NewShellCmd() *cobra.Command {
	var flags dbFlags

	cmd := &cobra.Command{
		Use:   "shell",
		Short: "Open an interactive SQL shell on the history database",
		Long: `Opens an interactive SQL shell on the run history database.

Meta-commands:
  .tables          - List tables
  .schema <table>  - Describe a table
  .help            - Show help message
  .exit, .quit     - Exit shell (or Ctrl+D)

Queries may span several lines and end with a semicolon.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := flags.open(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			return runInteractiveShell(context.Background(), db, cmd.OutOrStdout())
		},
	}

	flags.add(cmd)

	return cmd
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".pipelinescope", "duckdb_history")
}

func runInteractiveShell(ctx context.Context, db *sql.DB, out io.Writer) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          primaryPrompt,
		HistoryFile:     historyFile(),
		InterruptPrompt: "^C",
		EOFPrompt:       ".exit",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize readline: %w", err)
	}
	defer func() { _ = rl.Close() }()

	_, _ = fmt.Fprintln(out, "DuckDB shell on the run history. Type '.exit' to quit, '.help' for help.")
	_, _ = fmt.Fprintln(out)

	s := &session{db: db, out: out}
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			s.reset()
			rl.SetPrompt(primaryPrompt)
			continue
		}
		if errors.Is(err, io.EOF) {
			_, _ = fmt.Fprintln(out)
			return nil
		}
		if err != nil {
			return fmt.Errorf("readline error: %w", err)
		}

		prompt, err := s.feed(ctx, line)
		if errors.Is(err, errExit) {
			return nil
		}
		if err != nil {
			_, _ = fmt.Fprintf(out, "Error: %v\n", err)
		}
		rl.SetPrompt(prompt)
	}
}

// session accumulates input lines into statements and executes them.
type session struct {
	db  *sql.DB
	out io.Writer
	buf strings.Builder
}

func (s *session) reset() {
	s.buf.Reset()
}

// feed consumes one input line and returns the prompt for the next one.
func (s *session) feed(ctx context.Context, line string) (string, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return s.prompt(), nil
	}

	if s.buf.Len() == 0 && strings.HasPrefix(line, ".") {
		return primaryPrompt, s.meta(ctx, line)
	}

	if s.buf.Len() > 0 {
		s.buf.WriteString(" ")
	}
	s.buf.WriteString(line)

	if !strings.HasSuffix(line, ";") {
		return continuationPrompt, nil
	}

	query := s.buf.String()
	s.reset()
	return primaryPrompt, s.execute(ctx, query)
}

func (s *session) prompt() string {
	if s.buf.Len() > 0 {
		return continuationPrompt
	}
	return primaryPrompt
}

func (s *session) meta(ctx context.Context, command string) error {
	parts := strings.Fields(command)

	switch parts[0] {
	case ".exit", ".quit":
		return errExit

	case ".help":
		_, err := fmt.Fprint(s.out, `Meta-commands:
  .tables          - List tables
  .schema <table>  - Describe a table
  .help            - Show this help message
  .exit, .quit     - Exit shell

Tables:
  runs            - one row per recorded run
  function_stats  - per-function metrics of each run
`)
		return err

	case ".tables":
		return s.execute(ctx, "SELECT table_name FROM duckdb_tables() ORDER BY table_name")

	case ".schema":
		if len(parts) != 2 {
			return errors.New("usage: .schema <table>")
		}
		return s.execute(ctx, fmt.Sprintf(
			"SELECT column_name, data_type FROM duckdb_columns() WHERE table_name = '%s' ORDER BY column_index",
			strings.ReplaceAll(parts[1], "'", "''")))

	default:
		return fmt.Errorf("unknown meta-command: %s (try .help)", parts[0])
	}
}

func (s *session) execute(ctx context.Context, query string) error {
	start := time.Now()
	res, err := fetch(ctx, s.db, query)
	if err != nil {
		return err
	}
	if err := writeTable(s.out, res); err != nil {
		return err
	}
	_, err = fmt.Fprintf(s.out, "(%d rows in %s)\n\n", len(res.rows), time.Since(start).Round(time.Millisecond))
	return err
}
