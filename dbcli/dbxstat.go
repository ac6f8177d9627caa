package dbcli

import (
	"fmt"
	"io"
	"math"

	"dbx/cache"
	"dbx/database"
	"dbx/params"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func writeStats(w io.Writer, db, field string, p *params.Params) {
	kind := "identifier"
	if p.Secondary {
		kind = "keyword"
	}
	fmt.Fprintf(w, "Database:     %s\n", db)
	fmt.Fprintf(w, "Index:        %s (%s)\n", field, kind)
	fmt.Fprintf(w, "Compressed:   %t\n", p.Compressed)
	fmt.Fprintf(w, "Keys:         %s\n", humanize.Comma(int64(p.Count)))
	fmt.Fprintf(w, "References:   %s\n", humanize.Comma(int64(p.Fullcount)))
	fmt.Fprintf(w, "Levels:       %d\n", p.Level+1)
	fmt.Fprintf(w, "Order:        %d  Fill: %d  Sorder: %d  Sfill: %d\n", p.Order, p.Fill, p.Sorder, p.Sfill)
	fmt.Fprintf(w, "Primary:      %d pages of %s (%s)\n", p.PriPageCount,
		humanize.IBytes(uint64(p.PriPageSize)), humanize.IBytes(p.PriPageCount*uint64(p.PriPageSize)))
	fmt.Fprintf(w, "Secondary:    %d pages of %s (%s)\n", p.SecPageCount,
		humanize.IBytes(uint64(p.SecPageSize)), humanize.IBytes(p.SecPageCount*uint64(p.SecPageSize)))
}

func newStatCmd(e *env) *cobra.Command {
	var (
		indexDir string
		idtype   string
		minimum  uint64
		maximum  uint64
		outfile  string
		verify   bool
	)
	cmd := &cobra.Command{
		Use:   "dbxstat <dbname>",
		Short: "Report index statistics and dump a record range",
		Long:  "Print the parameter block of one field index, then every key whose record number lies in [minimum, maximum].",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db := args[0]
			dir, err := e.cfg.IndexDirFor(db, indexDir)
			if err != nil {
				return err
			}
			ix, err := database.OpenIndex(dir, db, idtype, cache.ReadOnly, database.WithLogger(e.log))
			if err != nil {
				return indexErr(db, idtype, err)
			}
			defer ix.Close()

			if verify {
				if err := ix.Tree().Verify(); err != nil {
					return indexErr(db, idtype, err)
				}
			}

			w, closeOut, err := output(cmd, outfile)
			if err != nil {
				return err
			}
			defer closeOut()

			writeStats(w, db, idtype, ix.Params())
			fmt.Fprintf(w, "\nRecords %d..%d:\n", minimum, maximum)
			if _, err := ix.Tree().RangeDump(minimum, maximum, w); err != nil {
				return indexErr(db, idtype, err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&indexDir, "indexdir", "", "index directory")
	cmd.Flags().StringVar(&idtype, "idtype", "id", "field index to report")
	cmd.Flags().Uint64Var(&minimum, "minimum", 1, "first record number to dump")
	cmd.Flags().Uint64Var(&maximum, "maximum", math.MaxUint64, "last record number to dump")
	cmd.Flags().StringVar(&outfile, "outfile", "", "report file (default stdout)")
	cmd.Flags().BoolVar(&verify, "verify", false, "check the tree structure first")
	return cmd
}
