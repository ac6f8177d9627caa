package dbcli

import (
	"context"
	"time"

	"dbx/server"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd(e *env) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "dbxserve",
		Short: "Serve read-only index queries over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if listen != "" {
				e.cfg.Server.Listen = listen
			}
			srv, err := server.New(e.cfg, e.formats, e.log)
			if err != nil {
				return err
			}

			errc := make(chan error, 1)
			go func() { errc <- srv.Listen() }()

			select {
			case err := <-errc:
				srv.Close()
				return err
			case <-cmd.Context().Done():
				e.log.Info("shutting down", zap.String("listen", e.cfg.Server.Listen))
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(ctx)
			}
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (default from configuration)")
	return cmd
}
