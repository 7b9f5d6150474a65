package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MakeNowJust/heredoc"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/aluiziolira/go-scrape-baldor/config"
	"github.com/aluiziolira/go-scrape-baldor/models"
	"github.com/aluiziolira/go-scrape-baldor/pipeline"
	"github.com/aluiziolira/go-scrape-baldor/scraper"
)

var envFile string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error("scrape failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	d := config.DefaultConfig()

	cmd := &cobra.Command{
		Use:   "scraper",
		Short: "Scrape the Baldor Food catalog",
		Long: heredoc.Doc(`
			Log in to the catalog, discover categories and products, fetch them
			through a bounded worker pool and write normalized product rows.
		`),
		Example: heredoc.Doc(`
			$ scraper api --concurrency 8 --output result/products.csv
			$ scraper pages --fail-fast=false --raw-store baldorfood.db
			$ scraper extract --raw-store baldorfood.db --format json
		`),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&envFile, "env-file", ".env", "Dotenv file with credentials and proxies")
	flags.String("base-url", d.BaseURL, "Catalog site base URL")
	flags.String("api-base-url", d.APIBaseURL, "Product API endpoint")
	flags.Int("concurrency", d.Concurrency, "Maximum requests in flight")
	flags.Duration("cool-down", d.CoolDown, "Pause taken while the worker pool is saturated")
	flags.Int("page-size", d.PageSize, "API page size (at most 2000)")
	flags.Duration("timeout", d.Timeout, "Per-request timeout")
	flags.Duration("login-timeout", d.LoginTimeout, "Time allowed for the post-login marker to appear")
	flags.Bool("headless", d.Headless, "Run the login browser headless")
	flags.Bool("fail-fast", d.FailFast, "Abort the run on the first failed request")
	flags.Bool("strict-discovery", d.StrictDiscovery, "Treat a missing listing container as an error")
	flags.Int("proxy-boundary", d.ProxyBoundary, "Number of pool proxies to rotate through (0 = all)")
	flags.String("raw-store", d.RawStorePath, "SQLite file for fetched documents (empty disables it)")
	flags.String("output", d.OutputFile, "Output file path")
	flags.String("format", d.OutputFormat, "Output format: csv, json, or dual")
	flags.String("user-agent", d.UserAgent, "User-Agent sent by the browser and the fetcher")
	flags.String("metrics-addr", d.MetricsAddr, "Prometheus metrics listen address (e.g. :9090)")
	flags.BoolP("verbose", "v", d.Verbose, "Enable verbose logging")

	cmd.AddCommand(newAPICmd(), newPagesCmd(), newExtractCmd(), newCategoriesCmd())
	return cmd
}

// loadConfig resolves the configuration for a subcommand and installs the
// logger it asks for.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(envFile, cmd.Flags())
	if err != nil {
		return nil, eris.Wrap(err, "load configuration")
	}
	cfg.OutputFormat = strings.ToLower(cfg.OutputFormat)

	logger, level := newLogger(cfg.Verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	if err := cfg.Validate(); err != nil {
		return nil, eris.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

// runFunc is one scrape mode of the orchestrator.
type runFunc func(ctx context.Context, p *pipeline.Pipeline) (*models.ScraperResult, error)

// execute wires signals, metrics and the output pipeline around run.
func execute(cmd *cobra.Command, cfg *config.Config, s *scraper.Scraper, run runFunc) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, waiting for in-flight work to finish")
	}()

	writer, err := createWriter(cfg.OutputFormat, cfg.OutputFile)
	if err != nil {
		return eris.Wrap(err, "create writer")
	}
	defer func() {
		if err := writer.Close(); err != nil {
			slog.Error("close writer", slog.Any("error", err))
		}
	}()

	stopMetrics := serveMetrics(cfg.MetricsAddr, s.Metrics)
	defer stopMetrics()

	p := pipeline.NewPipeline(ctx, writer, cfg)
	// One worker keeps output rows in extraction order.
	p.Start(1)
	if cfg.Verbose {
		p.StartMetricsReporting(10 * time.Second)
	}

	startTime := time.Now()
	result, runErr := run(ctx, p)
	closeErr := p.Close()
	if result != nil {
		result.RecordCount = p.Processed()
	}

	if runErr != nil {
		if scraper.IsAuthTimeout(runErr) {
			return eris.Wrap(runErr, "login did not complete")
		}
		return eris.Wrap(runErr, "scrape")
	}
	if closeErr != nil {
		return eris.Wrap(closeErr, "pipeline shutdown")
	}
	if err := validateOutput(writer, p.Processed()); err != nil {
		return eris.Wrap(err, "output validation")
	}

	printSummary(cmd.OutOrStdout(), result, time.Since(startTime), cfg.OutputFile, p.GetMetrics())
	return nil
}

// validateOutput checks the written file. A run that produced no records
// leaves the file empty on purpose.
func validateOutput(w pipeline.OutputWriter, processed int) error {
	if processed == 0 {
		slog.Warn("no records written")
		return nil
	}
	return w.Validate()
}

func serveMetrics(addr string, m *scraper.Metrics) func() {
	if addr == "" || m == nil {
		return func() {}
	}
	server := &http.Server{
		Addr:    addr,
		Handler: promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}),
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", slog.Any("error", err))
		}
	}()
	slog.Info("metrics server enabled", slog.String("addr", addr))

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
	}
}

func createWriter(format, filename string) (pipeline.OutputWriter, error) {
	switch format {
	case "json":
		return pipeline.NewJSONWriter(filename)
	case "csv":
		return pipeline.NewCSVWriter(filename)
	case "dual":
		jsonFilename := strings.TrimSuffix(filename, ".csv") + ".jsonl"
		return pipeline.NewDualWriter(filename, jsonFilename)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	var handler slog.Handler
	if isTerminal(os.Stderr) {
		handler = tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
