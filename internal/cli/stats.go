package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show the current memory count",
	Long:  "Fetch the number of stored memories from the service. Prints a dash when the count is unknown.",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	client := MustConnect()
	defer client.Close()

	stats, err := client.Stats()
	if err != nil {
		return fmt.Errorf("get stats: %w", err)
	}

	fmt.Printf("🧠 %s\n", stats.Label)
	return nil
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
