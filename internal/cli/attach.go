package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yelban/kiroku-memory/internal/daemon"
)

var attachCmd = &cobra.Command{
	Use:   "attach",
	Short: "Attach to status notifications",
	Long:  "Connect to the daemon and stream live status and stats notifications, the same feed the desktop shell consumes.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := NewClient()
		defer client.Close()

		events, err := client.StreamEvents()
		if err != nil {
			return fmt.Errorf("attach: %w", err)
		}

		fmt.Println("🧠 Attached to status notifications (Ctrl+C to detach)")

		// Set up signal handling
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigCh)

		for {
			select {
			case <-sigCh:
				fmt.Println()
				client.StopEventStream()
				fmt.Println("🧠 Detached")
				return nil

			case result, ok := <-events:
				if !ok {
					fmt.Println("🧠 Connection closed")
					return nil
				}
				if result.Err != nil {
					return fmt.Errorf("receive event: %w", result.Err)
				}
				displayEvent(result.Event)
			}
		}
	},
}

func displayEvent(event *daemon.StreamEvent) {
	switch event.Type {
	case "status", "ready", "error", "restarting", "stats":
		fmt.Printf("[%s] %s\n", event.Timestamp, event.Label)
	default:
		fmt.Printf("[%s] %s: %s\n", event.Timestamp, event.Type, event.Label)
	}
}

func init() {
	rootCmd.AddCommand(attachCmd)
}
