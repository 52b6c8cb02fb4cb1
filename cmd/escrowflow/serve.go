package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the escrow HTTP API",
		Long: `Registers the configured workflows and serves workflow queries, datum
decoding and transition proposals over HTTP, with Prometheus metrics at /metrics.
Escrows are applied to an in-memory ledger.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			if addr != "" {
				settings.Server.Addr = addr
			}
			logger, err := newLogger(cmd.ErrOrStderr(), settings.Log)
			if err != nil {
				return err
			}

			a, err := newApp(settings, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			api, err := a.server()
			if err != nil {
				return err
			}
			srv := &http.Server{
				Addr:              settings.Server.Addr,
				Handler:           api.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			serverErrors := make(chan error, 1)
			go func() {
				logger.Info("listening",
					slog.String("addr", srv.Addr),
					slog.Int("workflows", a.workflows.Len()),
					slog.String("store", settings.Store.Driver),
				)
				serverErrors <- srv.ListenAndServe()
			}()

			select {
			case err := <-serverErrors:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
				logger.Info("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					_ = srv.Close()
					return err
				}
				return nil
			}
		},
	}
	cmd.Flags().StringVarP(&addr, "addr", "a", "", "listen address, overrides server.addr")
	return cmd
}
