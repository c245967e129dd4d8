package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yelban/kiroku-memory/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  "Print the version, commit, and build date of kiroku.",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("🧠 %s %s (commit: %s, built: %s)\n",
			version.Name, version.Version, version.Commit, version.Date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
