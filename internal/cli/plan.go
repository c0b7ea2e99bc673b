package cli

import (
	"io"

	"remindbot/internal/reminder"

	"github.com/spf13/cobra"
)

func planCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Show which reminders are due today without sending anything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := f.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			plan, read, err := a.Runner().Plan(cmd.Context())
			if err != nil {
				return err
			}
			printPlan(cmd.OutOrStdout(), plan, read)
			return nil
		},
	}
}

func printPlan(w io.Writer, p reminder.Plan, read reminder.ReadResult) {
	printf(w, "%s %s: %d item(s), %s due\n",
		headColor.Sprint("Plan"), p.Today.Format(reminder.DateLayout), read.Total, countColor(len(p.Due), okColor))

	for _, d := range p.Due {
		mark := okColor.Sprint("•")
		if d.Urgent {
			mark = errColor.Sprint("!")
		}
		printf(w, "  %s %-8s %s %q -> %s (%s, %s)\n",
			mark, d.Threshold, d.Item.ID, d.Item.Name, d.Item.Recipient,
			d.Item.Owner, d.Item.TargetDate.Format(reminder.DateLayout))
	}
	for _, wn := range p.Warnings {
		printf(w, "  %s %s: %s\n", warnColor.Sprint("warning"), wn.ItemID, wn.Message)
	}
	for _, s := range read.Warnings {
		printf(w, "  %s %s\n", warnColor.Sprint("warning"), s)
	}
	for _, e := range p.Errors {
		printf(w, "  %s %s\n", errColor.Sprint("invalid"), e.Error())
	}
}
