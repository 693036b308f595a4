package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/EngSayh/backsync/internal/config"
	"github.com/EngSayh/backsync/internal/jobs"
	"github.com/EngSayh/backsync/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serve exposes import and report endpoints over HTTP. When
import.cron is set, the configured source document is re-imported on
that schedule as well.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()
		eng := newEngine(store)

		if spec := config.GetString("import.cron"); spec != "" {
			cr, err := jobs.New(log, eng, spec,
				config.GetString("import.source"),
				config.GetString("import.lock-path"))
			if err != nil {
				return fmt.Errorf("invalid import.cron: %w", err)
			}
			cr.Start()
			defer cr.Stop()
			log.Info().Str("schedule", spec).Msg("scheduled re-import enabled")
		}

		addr := config.GetString("server.addr")
		srv := &http.Server{
			Addr:              addr,
			Handler:           server.New(eng, log).Router(),
			ReadHeaderTimeout: 5 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			log.Info().Str("addr", addr).Msg("http server listening")
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("http server failed: %w", err)
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info().Msg("shutting down")
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
