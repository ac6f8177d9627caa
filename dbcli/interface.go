package dbcli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"

	"dbx/config"
	"dbx/flatfile"
	"dbx/logger"
	"dbx/registry"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// env is the state shared by every command of one invocation.
type env struct {
	configPath string
	verbose    bool

	cfg     *config.Config
	log     *zap.Logger
	formats *registry.Registry[flatfile.Format]
}

func (e *env) load() error {
	cfg, err := config.Load(config.ResolvePath(e.configPath))
	if err != nil {
		return err
	}
	level := cfg.Log.Level
	if e.verbose {
		level = "debug"
	}
	log, err := logger.New(level, cfg.Log.Development || e.verbose)
	if err != nil {
		return err
	}
	formats, err := flatfile.NewRegistry()
	if err != nil {
		return err
	}
	e.cfg, e.log, e.formats = cfg, log, formats
	return nil
}

func (e *env) close() {
	if e.formats != nil {
		e.formats.Shutdown()
	}
	if e.log != nil {
		e.log.Sync()
	}
}

// NewRootCmd builds the dbx command tree. Every call returns fresh commands
// with their own flag state.
func NewRootCmd() *cobra.Command {
	e := &env{}
	root := &cobra.Command{
		Use:           "dbx",
		Short:         "Build and query B-tree indexes over flat-file databases",
		Long:          "dbx builds disk-paged B-tree indexes over entry-oriented flat-file databases and queries, compresses and inspects them.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return e.load()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			e.close()
		},
	}
	root.PersistentFlags().StringVar(&e.configPath, "config", "", "database registry file (default $"+config.EnvVar+" or ~/.dbx.yaml)")
	root.PersistentFlags().BoolVarP(&e.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(newFlatCmd(e))
	root.AddCommand(newCompressCmd(e))
	root.AddCommand(newStatCmd(e))
	root.AddCommand(newFetchCmd(e))
	root.AddCommand(newInspectCmd(e))
	root.AddCommand(newServeCmd(e))
	return root
}

// utilityArgs lets the binary be invoked under a utility name, e.g. through
// a dbxstat symlink.
func utilityArgs(root *cobra.Command, argv []string) []string {
	name := filepath.Base(argv[0])
	for _, c := range root.Commands() {
		if c.Name() == name {
			return append([]string{name}, argv[1:]...)
		}
	}
	return argv[1:]
}

// Execute runs the command line and exits non-zero after printing a
// one-line diagnostic on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	root := NewRootCmd()
	root.SetArgs(utilityArgs(root, os.Args))
	cmd, err := root.ExecuteContextC(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", cmd.Name(), err)
		stop()
		os.Exit(1)
	}
}

// indexErr attaches the database and field to a failure.
func indexErr(db, field string, err error) error {
	return errors.Wrapf(err, "database '%s' field '%s'", db, field)
}

// output opens the --outfile target, or the command's stdout when empty.
func output(cmd *cobra.Command, path string) (io.Writer, func() error, error) {
	if path == "" {
		return cmd.OutOrStdout(), func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "create %s", path)
	}
	return f, f.Close, nil
}
