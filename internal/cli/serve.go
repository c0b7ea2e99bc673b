package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"remindbot/internal/app"

	"github.com/spf13/cobra"
)

func serveCmd(f *rootFlags) *cobra.Command {
	var runNow bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run as a daemon on the configured schedule",
		Long: `Serve fires a run on the configured schedule (default every day at 09:00
in the configured timezone), reloads the config file when it changes and,
when enabled, exposes Prometheus metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := f.open(cmd)
			if err != nil {
				return err
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)

			if err := a.Start(cmd.Context(), runNow); err != nil {
				_ = a.Stop(context.Background(), app.StopFatalError)
				return err
			}

			var reason app.StopReason
			select {
			case sig := <-sigCh:
				reason = app.StopSIGTERM
				if sig == syscall.SIGINT {
					reason = app.StopSIGINT
				}
			case <-a.Done():
				reason = app.StopFatalError
			}

			stopCtx, cancel := withTimeout(context.Background(), 45*time.Second)
			defer cancel()
			_ = a.Stop(stopCtx, reason)
			return a.Err()
		},
	}
	cmd.Flags().BoolVar(&runNow, "run-now", false, "perform a run immediately after start")
	return cmd
}
