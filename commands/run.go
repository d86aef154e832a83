package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"pricing-history/config"
	"pricing-history/scraper/wayback"
	"pricing-history/services"
	"pricing-history/storage"
	"pricing-history/utils"
)

type runFlags struct {
	input              string
	output             string
	from               string
	to                 string
	workers            int
	locatorConcurrency int
	timeout            time.Duration
	deadline           time.Duration
	emitNoPriceRows    bool
	logLevel           string
	postgres           bool
}

var flags runFlags

func init() {
	f := runCmd.Flags()
	f.StringVar(&flags.input, "input", "", "CSV of domain,pricing_url pairs (default from INPUT_CSV_PATH)")
	f.StringVar(&flags.output, "output", "", "output CSV path (default from CSV_OUTPUT_PATH)")
	f.StringVar(&flags.from, "from", "", "first day of the range, YYYY-MM-DD")
	f.StringVar(&flags.to, "to", "", "last day of the range, YYYY-MM-DD")
	f.IntVar(&flags.workers, "workers", 0, "number of domains processed in parallel")
	f.IntVar(&flags.locatorConcurrency, "locator-concurrency", 0, "concurrent capture index queries")
	f.DurationVar(&flags.timeout, "timeout", 0, "per-request timeout")
	f.DurationVar(&flags.deadline, "deadline", 0, "stop scheduling new work after this long (0 = no deadline)")
	f.BoolVar(&flags.emitNoPriceRows, "emit-no-price-rows", false, "write a reason row for fetched weeks without a visible price")
	f.StringVar(&flags.logLevel, "log-level", "", "debug, info, warn or error")
	f.BoolVar(&flags.postgres, "postgres", false, "also store rows in PostgreSQL")
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run [--input <pages.csv>] [--output <rows.csv>]",
	Short: "Collects one row per price per week for every pricing page.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		if err := applyFlags(cmd, cfg); err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		return run(cmd.Context(), cfg)
	},
}

// applyFlags overrides config values with the flags set on the command line.
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	changed := cmd.Flags().Changed

	if changed("input") {
		cfg.InputCSVPath = flags.input
	}
	if changed("output") {
		cfg.CSVOutputPath = flags.output
	}
	if changed("from") {
		d, err := config.ParseDate(flags.from)
		if err != nil {
			return err
		}
		cfg.StartDate = d
	}
	if changed("to") {
		d, err := config.ParseDate(flags.to)
		if err != nil {
			return err
		}
		cfg.EndDate = d
	}
	if changed("workers") {
		cfg.MaxConcurrency = flags.workers
	}
	if changed("locator-concurrency") {
		cfg.LocatorConcurrency = flags.locatorConcurrency
	}
	if changed("timeout") {
		cfg.FetchTimeoutSec = int(flags.timeout.Round(time.Second) / time.Second)
	}
	if changed("emit-no-price-rows") {
		cfg.EmitNoPriceRows = flags.emitNoPriceRows
	}
	if changed("log-level") {
		cfg.LogLevel = flags.logLevel
	}
	if changed("postgres") {
		cfg.PostgresEnabled = flags.postgres
	}
	return nil
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := utils.NewLoggerWithLevel(cfg.LogLevel)
	defer logger.Sync()

	if flags.deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, flags.deadline)
		defer cancel()
	}

	runID := uuid.NewString()
	logger.Info("=== Pricing history run %s starting ===", runID)
	logger.Info("Config: range %s..%s | workers: %d | locator: %d @ %.2f/s | timeout: %s",
		cfg.StartDate.Format("2006-01-02"), cfg.EndDate.Format("2006-01-02"),
		cfg.MaxConcurrency, cfg.LocatorConcurrency, cfg.LocatorRatePerSec, cfg.FetchTimeout())

	pages, err := storage.LoadPricingPages(cfg.InputCSVPath)
	if err != nil {
		return fmt.Errorf("load input: %w", err)
	}
	logger.Info("Loaded %d pricing pages from %s", len(pages), cfg.InputCSVPath)

	sink, pgWriter, err := openSink(cfg, runID, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := sink.Close(); err != nil {
			logger.Error("Failed to close output: %v", err)
		}
	}()

	factory := wayback.NewFactory(wayback.Options{
		CDXEndpoint:    cfg.CDXEndpoint,
		ArchiveBaseURL: cfg.ArchiveBaseURL,
		UserAgent:      cfg.UserAgent,
		Timeout:        cfg.FetchTimeout(),
		PageSize:       cfg.CDXPageSize,
		RawContent:     cfg.RawContent,
		MaxRetries:     cfg.MaxRetries,
		RetryBaseDelay: cfg.RetryBaseDelay(),
		RetryMaxDelay:  cfg.RetryMaxDelay(),
		Logger:         logger,
	}, wayback.NewGate(cfg.LocatorConcurrency, cfg.LocatorRatePerSec))

	orchestrator := services.NewOrchestrator(services.Options{
		From:            cfg.StartDate,
		To:              cfg.EndDate,
		Workers:         cfg.MaxConcurrency,
		RateLimitMs:     cfg.RateLimitMs,
		EmitNoPriceRows: cfg.EmitNoPriceRows,
	}, func() services.Session { return factory.NewSession() }, sink, services.NewMiner(), logger)

	report := orchestrator.Run(ctx, pages)
	if ctx.Err() != nil {
		logger.Warn("Run stopped early: %v", ctx.Err())
	}

	if pgWriter != nil {
		stored, err := pgWriter.CountRun()
		if err != nil {
			logger.Error("Failed to count stored rows: %v", err)
		} else {
			logger.Info("PostgreSQL holds %d rows for run %s", stored, runID)
		}
	}

	services.NewInsightService(logger, nil).Print(report)
	logger.Info("Done. %d rows written to %s", report.RowsWritten, cfg.CSVOutputPath)
	return nil
}

// openSink returns the CSV writer, fanned out to PostgreSQL when enabled.
// The Postgres writer is nil when disabled.
func openSink(cfg *config.Config, runID string, logger *utils.Logger) (storage.RowWriter, *storage.PostgresWriter, error) {
	csvWriter, err := storage.NewCSVWriter(cfg.CSVOutputPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open output: %w", err)
	}
	if !cfg.PostgresEnabled {
		return csvWriter, nil, nil
	}

	pgWriter, err := storage.NewPostgresWriter(cfg.DSN(), runID)
	if err != nil {
		_ = csvWriter.Close()
		return nil, nil, fmt.Errorf("connect to PostgreSQL: %w", err)
	}
	logger.Info("Rows are also stored in PostgreSQL (table: pricing_snapshots, run %s)", runID)
	return storage.NewMultiWriter(csvWriter, pgWriter), pgWriter, nil
}
