package dbcli

import (
	"fmt"
	"os"

	"dbx/cache"
	"dbx/database"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func indexBytes(dir, db, field string, gen uint64) uint64 {
	var total uint64
	for _, p := range []string{database.PrimaryPath(dir, db, field, gen), database.SecondaryPath(dir, db, field, gen)} {
		if info, err := os.Stat(p); err == nil {
			total += uint64(info.Size())
		}
	}
	return total
}

func newCompressCmd(e *env) *cobra.Command {
	var (
		indexDir string
		field    string
		outfile  string
	)
	cmd := &cobra.Command{
		Use:   "dbxcompress <dbname>",
		Short: "Compress a B-tree index",
		Long:  "Rebuild one field index of a database in the compressed page format. An index is compressed at most once.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db := args[0]
			dir, err := e.cfg.IndexDirFor(db, indexDir)
			if err != nil {
				return err
			}
			ix, err := database.OpenIndex(dir, db, field, cache.ReadWrite, database.WithLogger(e.log))
			if err != nil {
				return indexErr(db, field, err)
			}
			before := indexBytes(dir, db, field, ix.Params().Generation)
			if err := ix.MarkCompress(); err != nil {
				ix.Close()
				return indexErr(db, field, err)
			}
			if err := ix.Close(); err != nil {
				return indexErr(db, field, err)
			}
			after := indexBytes(dir, db, field, ix.Params().Generation)

			w, closeOut, err := output(cmd, outfile)
			if err != nil {
				return err
			}
			defer closeOut()
			fmt.Fprintf(w, "Compressed %s field %s: %s -> %s\n",
				db, field, humanize.IBytes(before), humanize.IBytes(after))
			return nil
		},
	}
	cmd.Flags().StringVar(&indexDir, "indexdir", "", "index directory")
	cmd.Flags().StringVar(&field, "field", "id", "field index to compress")
	cmd.Flags().StringVar(&outfile, "outfile", "", "report file (default stdout)")
	return cmd
}
