package cli

import (
	"remindbot/internal/app"
	"remindbot/internal/storage"

	"github.com/spf13/cobra"
)

func importCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Load tracked items from a YAML or JSON file into the store",
		Long: `Import upserts the items of a YAML or JSON file into the configured store.

The file holds either a list of items or a mapping with an "items" list.
Existing items keep their reminder state unless the file sets one.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := f.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if a.Store() == nil {
				return storage.ErrDisabled
			}
			res, err := app.ImportFile(cmd.Context(), a.Store(), args[0])
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			printf(w, "%s imported %d of %d item(s) from %s\n", okColor.Sprint("✓"), res.Upserted, res.Read, args[0])
			for _, s := range res.Skipped {
				printf(w, "  %s %s\n", warnColor.Sprint("skipped"), s)
			}
			return nil
		},
	}
}
