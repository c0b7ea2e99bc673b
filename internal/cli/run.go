package cli

import (
	"context"
	"io"
	"os/signal"
	"syscall"
	"time"

	"remindbot/internal/app"
	"remindbot/internal/reminder"

	"github.com/spf13/cobra"
)

func runCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Send today's due reminders once and exit",
		Long: `Run computes the reminders due today, delivers them and records the
result. It is meant for cron or a systemd timer.

The exit status is non-zero only when the item store cannot be read.
Individual delivery failures are reported in the summary and the audit log.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := f.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			sum, err := a.RunOnce(ctx)
			printSummary(cmd.OutOrStdout(), sum)
			return err
		},
	}
}

func printSummary(w io.Writer, s app.Summary) {
	if s.RunID == "" {
		return
	}
	printf(w, "%s %s (%s)\n", headColor.Sprint("Run"), s.RunID, s.Today.Format(reminder.DateLayout))
	printf(w, "  items:    %d\n", s.Items)
	printf(w, "  due:      %d\n", s.Due)
	printf(w, "  sent:     %s\n", countColor(s.Sent, okColor))
	printf(w, "  failed:   %s\n", countColor(s.Failed, errColor))
	printf(w, "  warnings: %s\n", countColor(s.Warnings, warnColor))
	printf(w, "  invalid:  %s\n", countColor(s.Errors, warnColor))
	printf(w, "  took:     %s\n", s.Duration.Round(time.Millisecond))
	for _, o := range s.Outcomes {
		if o.Sent() {
			continue
		}
		printf(w, "  %s %s %s after %d attempt(s): %s\n", errColor.Sprint("✗"), o.ItemID, o.Threshold, o.Attempts, o.Err)
	}
}

// withTimeout bounds a command context; zero means no bound.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
