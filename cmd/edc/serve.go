package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/PavelSimon/EDC-data/config"
	"github.com/PavelSimon/EDC-data/scraper"
	"github.com/PavelSimon/EDC-data/server"
	"github.com/PavelSimon/EDC-data/store"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var addr, database string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the scrape endpoint and the stored records over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.ListenAddr = addr
			}
			if cmd.Flags().Changed("db") {
				cfg.DatabasePath = database
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config, :8080)")
	cmd.Flags().StringVar(&database, "db", "", "SQLite database path")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	db, err := store.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()

	s, err := scraper.NewScraper(cfg)
	if err != nil {
		return fmt.Errorf("initialising scraper: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.New(s, db, s.Metrics.Registry).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	slog.Info("server listening",
		slog.String("addr", cfg.ListenAddr),
		slog.String("database", cfg.DatabasePath),
	)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		slog.Info("shutdown signal received, waiting for in-flight requests")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
