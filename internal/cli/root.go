package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/yelban/kiroku-memory/internal/paths"
)

// kirokuDir is the global --kiroku-dir flag value.
var kirokuDir string

var rootCmd = &cobra.Command{
	Use:   "kiroku",
	Short: "Memory service supervisor",
	Long:  "kiroku supervises the local memory service: it launches the process, watches its health, and publishes status to the desktop shell.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Set KIROKU_DIR environment variable if --kiroku-dir is provided.
		// This allows all path helpers to use the override.
		if kirokuDir != "" {
			if err := os.Setenv(paths.EnvKirokuDir, kirokuDir); err != nil {
				return err
			}
		}
		return nil
	},
}

// KirokuDir returns the value of the --kiroku-dir flag.
func KirokuDir() string {
	return kirokuDir
}

func init() {
	rootCmd.PersistentFlags().StringVar(&kirokuDir, "kiroku-dir", "", "base directory for kiroku data (overrides ~/.kiroku)")
}

func Execute() error {
	return rootCmd.Execute()
}
