package cli

import (
	"fmt"
	"io"

	"remindbot/internal/app"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

const defaultConfigPath = "./config.yaml"

type rootFlags struct {
	configPath string
	testMode   bool
	noColor    bool
}

// Root builds the remindbot command tree.
func Root(version string) *cobra.Command {
	f := &rootFlags{}
	root := &cobra.Command{
		Use:     "remindbot",
		Short:   "Deadline reminders for tracked items (60, 30 and 1 day before)",
		Version: version,
		Long: `remindbot reads tracked items from its store, works out which reminders
are due today and delivers them by e-mail, Telegram or the log.

A reminder is sent at most once per item and threshold: every successful
send is recorded in the item's reminder state.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if f.noColor {
				color.NoColor = true
			}
		},
	}
	root.PersistentFlags().StringVarP(&f.configPath, "config", "c", defaultConfigPath, "config file (JSON or YAML)")
	root.PersistentFlags().BoolVar(&f.testMode, "test-mode", false, "log reminders instead of delivering them (same as TEST_MODE=true)")
	root.PersistentFlags().BoolVar(&f.noColor, "no-color", false, "disable colored output")

	root.AddCommand(
		runCmd(f),
		serveCmd(f),
		importCmd(f),
		planCmd(f),
		reportCmd(f),
	)
	return root
}

// open builds the app. The default config path may be absent; an explicit
// one must exist.
func (f *rootFlags) open(cmd *cobra.Command) (*app.App, error) {
	return app.NewApp(f.configPath, app.Options{
		AllowMissingConfig: !cmd.Flags().Changed("config"),
		TestMode:           f.testMode,
	})
}

var (
	okColor   = color.New(color.FgGreen)
	warnColor = color.New(color.FgYellow)
	errColor  = color.New(color.FgRed)
	dimColor  = color.New(color.Faint)
	headColor = color.New(color.Bold)
)

func countColor(n int, c *color.Color) string {
	if n == 0 {
		return dimColor.Sprint(n)
	}
	return c.Sprint(n)
}

func printf(w io.Writer, format string, a ...any) { _, _ = fmt.Fprintf(w, format, a...) }
