package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/PavelSimon/EDC-data/config"
	"github.com/PavelSimon/EDC-data/models"
	"github.com/PavelSimon/EDC-data/pipeline"
	"github.com/PavelSimon/EDC-data/scraper"
	"github.com/PavelSimon/EDC-data/store"
)

var errNoData = errors.New("no data found for the selected date range")

const drainTimeout = 30 * time.Second

type scrapeOptions struct {
	start       string
	end         string
	format      string
	output      string
	database    string
	baseURL     string
	metricsAddr string
}

func newScrapeCmd(root *rootOptions) *cobra.Command {
	opts := &scrapeOptions{}
	cmd := &cobra.Command{
		Use:   "scrape --start YYYY-MM-DD --end YYYY-MM-DD",
		Short: "Scrape an inclusive range of days and write the records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			opts.apply(cmd, cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			dates, err := parseRange(opts.start, opts.end)
			if err != nil {
				return err
			}
			return runScrape(cmd.Context(), cmd.OutOrStdout(), cfg, dates)
		},
	}

	cmd.Flags().StringVar(&opts.start, "start", "", "First day to scrape (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.end, "end", "", "Last day to scrape, inclusive (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.format, "format", "", "Output format: csv, json, dual or sqlite")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Output file path")
	cmd.Flags().StringVar(&opts.database, "db", "", "SQLite database path for the sqlite format")
	cmd.Flags().StringVar(&opts.baseURL, "base-url", "", "Publication page URL")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Prometheus metrics listen address (e.g. :9090)")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")

	return cmd
}

// apply overrides cfg with the flags set on the command line.
func (o *scrapeOptions) apply(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("format") {
		cfg.OutputFormat = strings.ToLower(o.format)
	}
	if flags.Changed("output") {
		cfg.OutputFile = o.output
	}
	if flags.Changed("db") {
		cfg.DatabasePath = o.database
	}
	if flags.Changed("base-url") {
		cfg.BaseURL = o.baseURL
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr = o.metricsAddr
	}
}

func parseRange(start, end string) (models.DateRange, error) {
	s, err := models.ParseDate(start)
	if err != nil {
		return models.DateRange{}, fmt.Errorf("invalid --start: %w", err)
	}
	e, err := models.ParseDate(end)
	if err != nil {
		return models.DateRange{}, fmt.Errorf("invalid --end: %w", err)
	}
	if e.Before(s) {
		return models.DateRange{}, fmt.Errorf("end date %s is before start date %s", e, s)
	}
	return models.DateRange{Start: s, End: e}, nil
}

func runScrape(ctx context.Context, out io.Writer, cfg *config.Config, dates models.DateRange, opts ...scraper.Option) error {
	s, err := scraper.NewScraper(cfg, opts...)
	if err != nil {
		return fmt.Errorf("initialising scraper: %w", err)
	}

	sink, err := createSink(ctx, cfg)
	if err != nil {
		return fmt.Errorf("creating sink: %w", err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			slog.Error("close sink", slog.Any("error", err))
		}
	}()

	if db, ok := sink.(*store.Store); ok {
		exists, err := db.HasRange(ctx, dates)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("data for %s already exists in %s", dates, cfg.DatabasePath)
		}
	}

	if cfg.MetricsAddr != "" {
		shutdown := serveMetrics(cfg.MetricsAddr, s.Metrics)
		defer shutdown()
	}

	p, err := pipeline.New(sink, cfg)
	if err != nil {
		return err
	}
	p.Start(cfg.Workers)
	if cfg.Verbose {
		p.ReportEvery(10 * time.Second)
	}

	startTime := time.Now()
	result, scrapeErr := s.Scrape(ctx, dates.Start, dates.End)
	if scrapeErr != nil {
		slog.Warn("scrape interrupted, keeping partial result", slog.Any("error", scrapeErr))
	}

	// The partial result of an interrupted scrape is still written.
	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drainTimeout)
	defer cancel()
	if err := p.Submit(drainCtx, result.Records); err != nil {
		return fmt.Errorf("queue records: %w", err)
	}
	if err := p.Close(drainCtx); err != nil {
		return fmt.Errorf("pipeline shutdown: %w", err)
	}

	printSummary(out, result, time.Since(startTime), cfg, p.Stats())

	if scrapeErr != nil {
		return scrapeErr
	}
	if result.Empty() {
		return errNoData
	}
	if err := sink.Validate(); err != nil {
		return fmt.Errorf("output validation failed: %w", err)
	}
	return nil
}

func createSink(ctx context.Context, cfg *config.Config) (pipeline.Sink, error) {
	switch cfg.OutputFormat {
	case "json":
		return pipeline.NewJSONSink(cfg.OutputFile)
	case "csv":
		return pipeline.NewCSVSink(cfg.OutputFile)
	case "dual":
		jsonPath := strings.TrimSuffix(cfg.OutputFile, ".csv") + ".json"
		return pipeline.NewDualSink(cfg.OutputFile, jsonPath)
	case "sqlite":
		return store.Open(ctx, cfg.DatabasePath)
	default:
		return nil, fmt.Errorf("unsupported format: %s", cfg.OutputFormat)
	}
}

func serveMetrics(addr string, m *scraper.Metrics) (shutdown func()) {
	srv := &http.Server{
		Addr:              addr,
		Handler:           promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", slog.Any("error", err))
		}
	}()
	slog.Info("metrics server enabled", slog.String("addr", addr))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
	}
}

func printSummary(w io.Writer, result *models.ScrapeResult, duration time.Duration, cfg *config.Config, stats pipeline.Stats) {
	separator := "--------------------------------------------------"
	fmt.Fprintln(w, "\n"+separator)
	fmt.Fprintln(w, "Scrape complete")

	fmt.Fprintf(w, "  Range:         %s\n", result.Range)
	fmt.Fprintf(w, "  Days:          %d with data, %d empty, %d failed\n",
		result.DaysWithStatus(models.DayRecords),
		result.DaysWithStatus(models.DayEmpty),
		result.DaysWithStatus(models.DayFailed),
	)
	fmt.Fprintf(w, "  Records:       %d scraped, %d written\n", len(result.Records), stats.Accepted)
	fmt.Fprintf(w, "  Requests:      %d\n", result.RequestCount)
	fmt.Fprintf(w, "  Errors:        %d\n", result.ErrorCount)
	if len(result.ErrorsByType) > 0 {
		fmt.Fprintf(w, "  Error types:   %v\n", result.ErrorsByType)
	}
	if result.RowErrors > 0 {
		fmt.Fprintf(w, "  Bad rows:      %d\n", result.RowErrors)
	}
	if stats.Invalid > 0 || stats.Duplicates > 0 {
		fmt.Fprintf(w, "  Dropped:       %d invalid, %d duplicate\n", stats.Invalid, stats.Duplicates)
	}
	fmt.Fprintf(w, "  Duration:      %v\n", duration.Round(time.Millisecond))
	if cfg.OutputFormat == "sqlite" {
		fmt.Fprintf(w, "  Database:      %s\n", cfg.DatabasePath)
	} else {
		fmt.Fprintf(w, "  Output file:   %s\n", cfg.OutputFile)
	}
	fmt.Fprintln(w, separator)
}
