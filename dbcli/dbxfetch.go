package dbcli

import (
	"fmt"
	"strings"

	"dbx/database"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

// splitQuery splits "db:key" into its parts.
func splitQuery(arg string) (string, string, error) {
	db, key, ok := strings.Cut(arg, ":")
	if !ok || db == "" || key == "" {
		return "", "", errors.Newf("expected dbname:key, got %q", arg)
	}
	return db, key, nil
}

func newFetchCmd(e *env) *cobra.Command {
	var (
		field    string
		indexDir string
	)
	cmd := &cobra.Command{
		Use:   "dbxfetch <dbname:key>",
		Short: "Print the entries a key refers to",
		Long:  "Look a key up in one field index and print the flat-file entries it refers to. Keys may use * and ? wildcards.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, key, err := splitQuery(args[0])
			if err != nil {
				return err
			}
			dir, err := e.cfg.IndexDirFor(db, indexDir)
			if err != nil {
				return err
			}
			entries, err := database.Fetch(e.formats, dir, db, field, key, database.WithLogger(e.log))
			if err != nil {
				return indexErr(db, field, err)
			}
			if len(entries) == 0 {
				return indexErr(db, field, errors.Newf("no entries match %q", key))
			}
			for _, entry := range entries {
				fmt.Fprint(cmd.OutOrStdout(), entry.Text)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&field, "field", "id", "field index to search")
	cmd.Flags().StringVar(&indexDir, "indexdir", "", "index directory")
	return cmd
}
