package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var restartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart the memory service",
	Long:  "Ask the daemon to restart the memory service. The request is rejected if a restart is already in flight.",
	Args:  cobra.NoArgs,
	RunE:  runRestart,
}

func runRestart(cmd *cobra.Command, args []string) error {
	client := MustConnect()
	defer client.Close()

	if err := client.RestartService(); err != nil {
		return fmt.Errorf("restart service: %w", err)
	}

	fmt.Println("🧠 Memory service restarted")
	return nil
}

func init() {
	rootCmd.AddCommand(restartCmd)
}
