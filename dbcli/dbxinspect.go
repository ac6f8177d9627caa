package dbcli

import (
	"dbx/cache"
	"dbx/database"

	"github.com/spf13/cobra"
)

func newInspectCmd(e *env) *cobra.Command {
	var (
		field    string
		indexDir string
	)
	cmd := &cobra.Command{
		Use:   "dbxinspect <dbname>",
		Short: "Dump the page structure of an index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db := args[0]
			dir, err := e.cfg.IndexDirFor(db, indexDir)
			if err != nil {
				return err
			}
			ix, err := database.OpenIndex(dir, db, field, cache.ReadOnly, database.WithLogger(e.log))
			if err != nil {
				return indexErr(db, field, err)
			}
			defer ix.Close()

			if err := ix.Tree().Dump(cmd.OutOrStdout()); err != nil {
				return indexErr(db, field, err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&field, "field", "id", "field index to dump")
	cmd.Flags().StringVar(&indexDir, "indexdir", "", "index directory")
	return cmd
}
