package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"reelpipe/internal/logging"
	"reelpipe/internal/server"
)

func newServeCmd(c *cli) *cobra.Command {
	var addr string
	var debug bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the admin API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			container, err := c.container(ctx)
			if err != nil {
				return err
			}
			defer func() {
				if err := container.Cleanup(context.Background()); err != nil {
					cmd.PrintErrf("Cleanup error: %v\n", err)
				}
			}()

			cfg := server.DefaultConfig()
			cfg.Addr = c.boot.AdminAddr
			if addr != "" {
				cfg.Addr = addr
			}
			cfg.Debug = debug

			deps := container.ServerDeps()
			deps.Logger = logging.NewComponentLogger("admin-server")
			srv := server.New(cfg, deps)

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Start()
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
			defer stop()
			return srv.Stop(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default: bootstrap admin_addr)")
	cmd.Flags().BoolVar(&debug, "debug", false, "run gin in debug mode")
	return cmd
}
