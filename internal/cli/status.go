package cli

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon and service status",
	Long:  "Display the status of the kiroku daemon and the supervised memory service.",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	// Check if daemon is running
	client, err := ConnectClient()
	if err != nil {
		if errors.Is(err, ErrDaemonNotRunning) {
			fmt.Println("🧠 kiroku daemon is not running")
			return nil
		}
		return fmt.Errorf("connect to daemon: %w", err)
	}
	defer client.Close()

	status, err := client.Status()
	if err != nil {
		return fmt.Errorf("get status: %w", err)
	}

	// Daemon info
	uptime := time.Since(status.Daemon.StartedAt).Truncate(time.Second)
	fmt.Printf("🧠 kiroku daemon running (pid %d, uptime %s, version %s)\n",
		status.Daemon.PID, uptime, status.Daemon.Version)
	fmt.Println()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SERVICE\tSTATE\tPID\tUPTIME\tAUTO-RESTART")

	svc := status.Service
	pid := "-"
	if svc.PID > 0 {
		pid = fmt.Sprintf("%d", svc.PID)
	}
	svcUptime := "-"
	if !svc.StartedAt.IsZero() {
		svcUptime = time.Since(svc.StartedAt).Truncate(time.Second).String()
	}
	autoRestart := "off"
	if svc.AutoRestart {
		autoRestart = "on"
	}
	state := svc.State
	if svc.Reason != "" {
		state = fmt.Sprintf("%s (%s)", svc.State, svc.Reason)
	}
	_, _ = fmt.Fprintf(w, "memory\t%s\t%s\t%s\t%s\n", state, pid, svcUptime, autoRestart)
	_ = w.Flush()

	return nil
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
