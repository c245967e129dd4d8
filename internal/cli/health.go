package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Probe the memory service health endpoint",
	Long:  "Ask the daemon to probe the memory service health endpoint once and print the result.",
	Args:  cobra.NoArgs,
	RunE:  runHealth,
}

func runHealth(cmd *cobra.Command, args []string) error {
	client := MustConnect()
	defer client.Close()

	health, err := client.Health()
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}

	fmt.Printf("🧠 Service is %s (version %s)\n", health.Status, health.Version)
	return nil
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
