package helpers

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// AddFormatFlag adds a standard --format/-o flag to a command.
// Validates that the format is in the supportedFormats list.
func AddFormatFlag(cmd *cobra.Command, formatVar *string, defaultFormat OutputFormat, supportedFormats []OutputFormat) {
	formatNames := make([]string, len(supportedFormats))
	for i, f := range supportedFormats {
		formatNames[i] = string(f)
	}

	description := fmt.Sprintf("Output format (%s)", strings.Join(formatNames, ", "))
	cmd.Flags().StringVarP(formatVar, "format", "o", string(defaultFormat), description)

	_ = cmd.RegisterFlagCompletionFunc("format", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return formatNames, cobra.ShellCompDirectiveNoFileComp
	})
}

// AddConfigFlag adds the --config/-c flag selecting the configuration file.
// An empty value means discovery from the working directory.
func AddConfigFlag(cmd *cobra.Command, pathVar *string) {
	cmd.Flags().StringVarP(pathVar, "config", "c", "", "Path to .pipelinescope.yaml (default: discovered from the working directory)")
	_ = cmd.MarkFlagFilename("config", "yaml", "yml")
}

// AddHistoryFlag adds the --history flag selecting run references from the DuckDB history.
func AddHistoryFlag(cmd *cobra.Command, historyVar *bool) {
	cmd.Flags().BoolVar(historyVar, "history", false, "Treat run arguments as run IDs in the history database")
}

// ValidateFormat checks if the format is in the supported list.
func ValidateFormat(format string, supported []OutputFormat) error {
	for _, s := range supported {
		if format == string(s) {
			return nil
		}
	}

	supportedNames := make([]string, len(supported))
	for i, s := range supported {
		supportedNames[i] = string(s)
	}

	return fmt.Errorf("unsupported format %q, must be one of: %s",
		format, strings.Join(supportedNames, ", "))
}
