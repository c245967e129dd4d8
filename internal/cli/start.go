package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the memory service",
	Long:  "Ask the daemon to launch the memory service and wait for it to become healthy.",
	Args:  cobra.NoArgs,
	RunE:  runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	client := MustConnect()
	defer client.Close()

	if err := client.StartService(); err != nil {
		return fmt.Errorf("start service: %w", err)
	}

	fmt.Println("🧠 Memory service started")
	return nil
}

func init() {
	rootCmd.AddCommand(startCmd)
}
