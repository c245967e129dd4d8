package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yelban/kiroku-memory/internal/config"
	"github.com/yelban/kiroku-memory/internal/daemon"
	"github.com/yelban/kiroku-memory/internal/logging"
	"github.com/yelban/kiroku-memory/internal/paths"
	"github.com/yelban/kiroku-memory/internal/publisher"
	"github.com/yelban/kiroku-memory/internal/service"
	"github.com/yelban/kiroku-memory/internal/supervisor"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Manage the kiroku daemon server",
	Long:  "Commands for managing the kiroku daemon server lifecycle.",
}

var serverLogStderr bool

var serverRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the kiroku daemon in the foreground",
	Long:  "Run the kiroku daemon: listen on the Unix socket, supervise the memory service, and publish status to attached shells.",
	Args:  cobra.NoArgs,
	RunE:  runServer,
}

var serverStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the kiroku daemon server",
	Long:  "Stop the running kiroku daemon server. This also stops the memory service.",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := MustConnect()
		defer client.Close()

		if err := client.Shutdown(); err != nil {
			return fmt.Errorf("shutdown daemon: %w", err)
		}

		fmt.Println("🧠 kiroku daemon stopped")
		return nil
	},
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	spec, err := config.LoadLaunchSpec()
	if err != nil {
		return fmt.Errorf("load launch spec: %w", err)
	}

	logPath, err := paths.LogPath()
	if err != nil {
		return fmt.Errorf("resolve log path: %w", err)
	}

	level := logging.ParseLevel(cfg.Logging.Level)
	var cleanup func()
	if serverLogStderr {
		cleanup, err = logging.SetupMulti(logPath, os.Stderr, level)
	} else {
		cleanup, err = logging.Setup(logPath, level)
	}
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer cleanup()

	// Refuse to run alongside another daemon instance
	pidPath := paths.PIDPath()
	daemon.CleanStalePID(pidPath)
	if running, pid := daemon.IsDaemonRunning(pidPath); running {
		return fmt.Errorf("kiroku daemon already running (pid %d)", pid)
	}
	if err := daemon.WritePID(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer func() { _ = daemon.RemovePID(pidPath) }()

	svc := service.New()
	probe := service.NewProbe(cfg.HealthURL(), cfg.StatsURL())
	sup := supervisor.New(cfg, spec, svc, probe)

	pub := publisher.New(publisher.Config{
		StatusInterval: cfg.Publisher.StatusInterval.Std(),
		StatsInterval:  cfg.Publisher.StatsInterval.Std(),
		Status:         svc.Status,
		Stats:          probe.Stats,
	})
	pub.OnNotify(sup.BroadcastNotification)

	mon := supervisor.NewMonitor(svc, supervisor.MonitorConfig{
		Interval:         cfg.Monitor.Interval.Std(),
		FailureThreshold: cfg.Monitor.FailureThreshold,
		Policy:           cfg.Monitor.Policy,
		Check: func(ctx context.Context) bool {
			_, ok := probe.CheckOnce(ctx)
			return ok
		},
		Recover: sup.RestartService,
	})

	srv := daemon.NewServer(getSocketPath(), sup)
	sup.SetServer(srv)
	if err := srv.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}

	pub.Start()
	mon.Start()

	if cfg.Service.Autostart {
		go func() {
			defer logging.LogPanic("autostart", nil)
			if err := sup.StartService(); err != nil {
				slog.Error("service autostart failed", "error", err)
			}
		}()
	}

	fmt.Printf("🧠 kiroku daemon running (socket %s)\n", srv.SocketPath())

	// Wait for a signal or an IPC shutdown request
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		slog.Info("received signal, shutting down", "signal", sig)
	case <-sup.ShutdownCh():
		slog.Info("shutdown requested over IPC")
	}

	// Ordered teardown: loops first, then the service, then the socket
	mon.Stop()
	pub.Stop()
	_ = svc.Stop()
	_ = srv.Stop()

	fmt.Println("🧠 kiroku daemon stopped")
	return nil
}

func init() {
	serverRunCmd.Flags().BoolVar(&serverLogStderr, "log-stderr", false, "Also log to stderr")
	serverCmd.AddCommand(serverRunCmd)
	serverCmd.AddCommand(serverStopCmd)
	rootCmd.AddCommand(serverCmd)
}
