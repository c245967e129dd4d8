package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the memory service",
	Long:  "Ask the daemon to stop the memory service. Stopping an already stopped service is not an error.",
	Args:  cobra.NoArgs,
	RunE:  runStop,
}

func runStop(cmd *cobra.Command, args []string) error {
	client := MustConnect()
	defer client.Close()

	if err := client.StopService(); err != nil {
		return fmt.Errorf("stop service: %w", err)
	}

	fmt.Println("🧠 Memory service stopped")
	return nil
}

func init() {
	rootCmd.AddCommand(stopCmd)
}
