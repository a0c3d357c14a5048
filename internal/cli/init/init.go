package initcmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/coral-mesh/pipelinescope/internal/config"
)

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Create a default .pipelinescope.yaml",
		Long: `Create a .pipelinescope.yaml with every option set to its default value.

The file is written to the given directory, or to the current directory. An
existing file is left untouched unless --force is set.

Example:
  pipelinescope init
  pipelinescope init ./pipelines/nightly --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			return runInit(cmd.OutOrStdout(), dir, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing configuration file")

	return cmd
}

func runInit(out io.Writer, dir string, force bool) error {
	path := filepath.Join(dir, config.FileName)

	if force {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove existing config: %w", err)
		}
	}

	written, err := config.WriteDefault(path)
	if err != nil {
		return err
	}
	if !written {
		_, _ = fmt.Fprintf(out, "Config already exists: %s (use --force to overwrite)\n", path)
		return nil
	}

	_, _ = fmt.Fprintf(out, "✓ Created %s\n", path)
	_, _ = fmt.Fprintln(out, "")
	_, _ = fmt.Fprintln(out, "Next steps:")
	_, _ = fmt.Fprintln(out, "  1. Set sample_size and expected_size to your test and production input sizes")
	_, _ = fmt.Fprintln(out, "  2. Wrap your pipeline with pipelinescope.Run and add defer pipelinescope.Track(ctx)()")
	_, _ = fmt.Fprintln(out, "  3. Inspect the run with: pipelinescope report")
	return nil
}
