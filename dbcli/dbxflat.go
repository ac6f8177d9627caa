package dbcli

import (
	"fmt"
	"os"
	"strings"

	"dbx/database"
	"dbx/flatfile"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

func newFlatCmd(e *env) *cobra.Command {
	var (
		format     string
		fields     []string
		indexDir   string
		pageSize   int
		cacheSize  int
		compressed bool
	)
	cmd := &cobra.Command{
		Use:   "dbxflat <dbname> [files...]",
		Short: "Index a flat-file database",
		Long: "Parse the data files of a database and build one B-tree index per field plus the manifest.\n" +
			"Files, format and fields default to the database's entry in the configuration.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db := args[0]
			conf := e.cfg.Databases[db]

			files := args[1:]
			if len(files) == 0 {
				files = conf.DataFiles()
			}
			if format == "" {
				format = conf.Format
			}
			if len(fields) == 0 {
				fields = conf.Fields
			}
			if len(fields) == 0 {
				fields = []string{"id"}
			}
			if pageSize == 0 {
				pageSize = e.cfg.PageSize
			}
			if cacheSize == 0 {
				cacheSize = e.cfg.CacheSize
			}
			if format == "" {
				return errors.Newf("database '%s': no format given (known: %s)", db, strings.Join(e.formats.Names(), ", "))
			}
			f, err := e.formats.Lookup(format)
			if err != nil {
				return errors.Wrapf(err, "database '%s'", db)
			}
			dir, err := e.cfg.IndexDirFor(db, indexDir)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(dir, 0755); err != nil {
				return errors.Wrapf(err, "create %s", dir)
			}

			m, err := database.Build(cmd.Context(), database.BuildOptions{
				Dir:        dir,
				Name:       db,
				Format:     f,
				Files:      files,
				Fields:     fields,
				PageSize:   pageSize,
				CacheSize:  cacheSize,
				Compressed: compressed,
				Logger:     e.log,
			})
			if err != nil {
				return errors.Wrapf(err, "database '%s'", db)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d entries of %s into %s (%s)\n",
				m.Entries, db, dir, strings.Join(m.Fields, ", "))
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "", "data file format (swiss, embl, fasta)")
	cmd.Flags().StringSliceVar(&fields, "fields", nil, "fields to index: "+strings.Join(flatfile.Fields, ", "))
	cmd.Flags().StringVar(&indexDir, "indexdir", "", "index directory")
	cmd.Flags().IntVar(&pageSize, "pagesize", 0, "page size in bytes (default from configuration)")
	cmd.Flags().IntVar(&cacheSize, "cachesize", 0, "cached pages per index file")
	cmd.Flags().BoolVar(&compressed, "compressed", false, "compress the indexes once built")
	return cmd
}
