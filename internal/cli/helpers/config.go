package helpers

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coral-mesh/pipelinescope/internal/config"
)

// LoadConfig loads the configuration at path, or the discovered one when path is
// empty. Problems are printed as warnings; the returned config is always usable.
func LoadConfig(cmd *cobra.Command, path string) *config.Config {
	cfg, err := config.Load(path)
	if err != nil {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %v\n", err)
	}
	return cfg
}
