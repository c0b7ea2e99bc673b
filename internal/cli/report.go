package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"remindbot/internal/app"
	"remindbot/internal/reminder"
	"remindbot/internal/storage"

	"github.com/spf13/cobra"
)

func reportCmd(f *rootFlags) *cobra.Command {
	var (
		day    string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize the delivery audit of one day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := f.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			r := a.Runner()
			t := time.Now().In(r.Loc)
			if day != "" {
				t, err = app.ParseTargetDate(day, r.Loc)
				if err != nil {
					return fmt.Errorf("--day: %w", err)
				}
			}
			st, err := r.Daily(cmd.Context(), t)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(st)
			}
			printDaily(cmd.OutOrStdout(), st)
			return nil
		},
	}
	cmd.Flags().StringVar(&day, "day", "", "day to report (YYYY-MM-DD, default today)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}

func printDaily(w io.Writer, st storage.DailyStats) {
	printf(w, "%s %s\n", headColor.Sprint("Report"), st.Day)
	printf(w, "  attempts:   %d\n", st.Total)
	printf(w, "  sent:       %s\n", countColor(st.Sent, okColor))
	printf(w, "  failed:     %s\n", countColor(st.Failed, errColor))
	printf(w, "  recipients: %d\n", st.UniqueRecipients)

	if len(st.PerThreshold) > 0 {
		keys := make([]string, 0, len(st.PerThreshold))
		for k := range st.PerThreshold {
			keys = append(keys, k)
		}
		slices.SortFunc(keys, func(a, b string) int { return thresholdRank(a) - thresholdRank(b) })
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%d", k, st.PerThreshold[k]))
		}
		printf(w, "  by threshold: %s\n", strings.Join(parts, " "))
	}
	if len(st.FailedItems) > 0 {
		printf(w, "  %s %s\n", errColor.Sprint("failed items:"), strings.Join(st.FailedItems, ", "))
	}
}

// thresholdRank orders threshold labels urgent first; unknown labels last.
func thresholdRank(label string) int {
	th, ok := reminder.ParseThreshold(label)
	if !ok {
		return 100
	}
	return th.Priority()
}
