package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/frahmantamala/employee-management/internal/user"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start background workers",
	Long:  `Start the lifecycle sweeps or the audit forwarder outside the HTTP server.`,
}

var lifecycleWorkerCmd = &cobra.Command{
	Use:   "lifecycle",
	Short: "Run the pending activation and contract expiry sweeps on a schedule",
	Run: func(cmd *cobra.Command, args []string) {
		startLifecycleWorker()
	},
}

var sweepOnceCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run the lifecycle sweeps once and exit",
	Run: func(cmd *cobra.Command, args []string) {
		runSweepOnce()
	},
}

var sweepInterval time.Duration

func startLifecycleWorker() {
	ctx, cancel := signalContext()
	defer cancel()

	deps, err := initializeDependencies(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}
	defer deps.Close()
	if err := deps.startForwarder(); err != nil {
		deps.Logger.Error("audit forwarding disabled", "error", err)
	}

	interval := getDurationFlag(sweepInterval, deps.Config.Lifecycle.SweepInterval)
	deps.Logger.Info("lifecycle worker is running. Press Ctrl+C to stop.", "interval", interval)

	user.NewSweeper(deps.Users, interval, deps.Logger).Run(ctx)

	deps.Logger.Info("lifecycle worker shutdown complete")
}

func runSweepOnce() {
	ctx, cancel := signalContext()
	defer cancel()

	deps, err := initializeDependencies(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}
	defer deps.Close()

	result, err := deps.Users.RunAllChecks(ctx, time.Now())
	if err != nil {
		deps.Logger.Error("lifecycle sweep failed", "error", err)
		return
	}
	deps.Logger.Info("lifecycle sweep complete", "result", result)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func getDurationFlag(flagValue, configValue time.Duration) time.Duration {
	if flagValue > 0 {
		return flagValue
	}
	return configValue
}

func init() {
	lifecycleWorkerCmd.Flags().DurationVar(&sweepInterval, "interval", 0, "time between sweeps (overrides config)")

	workerCmd.AddCommand(lifecycleWorkerCmd)
	workerCmd.AddCommand(sweepOnceCmd)
}
