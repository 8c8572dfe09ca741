// Command coi-recompute refreshes the cached inbreeding coefficient of every
// stored organism. Parents are processed before their offspring; individuals
// that fail or time out are reported and skipped without stopping the run.
//
// Exit status is 1 only when the tool cannot start (invalid configuration,
// unreachable store). A run that completes, with or without per-item
// failures, exits 0; so does a run stopped by SIGINT or SIGTERM, which prints
// the partial summary marked as interrupted.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"pedigreecore/internal/blob"
	"pedigreecore/internal/config"
	"pedigreecore/internal/core"
	"pedigreecore/internal/logging"
	"pedigreecore/internal/recompute"
	"pedigreecore/internal/recordsource"
)

var exitFunc = os.Exit

type options struct {
	dryRun        bool
	logFile       string
	configPath    string
	timeout       time.Duration
	depth         int
	progressEvery int
	report        bool
	metricsFile   string
}

// output is the run summary printed on stdout.
type output struct {
	RunID       string              `json:"run_id"`
	DryRun      bool                `json:"dry_run"`
	Interrupted bool                `json:"interrupted,omitempty"`
	Processed   int                 `json:"processed"`
	Updated     int                 `json:"updated"`
	Errors      int                 `json:"errors"`
	Fallback    []string            `json:"fallback,omitempty"`
	Failures    []recompute.Failure `json:"failures,omitempty"`
	Report      string              `json:"report,omitempty"`
}

func main() {
	code := cli(os.Args[1:], os.Stdout, os.Stderr)
	exitFunc(code)
}

func cli(args []string, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return execute(ctx, args, stdout, stderr)
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	var opts options
	code := 0
	cmd := &cobra.Command{
		Use:           "coi-recompute",
		Short:         "Recompute cached inbreeding coefficients for the whole population",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			code = run(cmd.Context(), opts, stdout, stderr)
			return nil
		},
	}
	flags := cmd.Flags()
	flags.BoolVar(&opts.dryRun, "dry-run", false, "compute and log changes without writing")
	flags.StringVar(&opts.logFile, "log-file", "", "append computed deltas to this file")
	flags.StringVar(&opts.configPath, "config", "", "YAML configuration file")
	flags.DurationVar(&opts.timeout, "timeout", 0, "per-individual time bound (default from config)")
	flags.IntVar(&opts.depth, "depth", 0, "pedigree depth bound (default from config)")
	flags.IntVar(&opts.progressEvery, "progress-every", 0, "log progress every N individuals (default from config)")
	flags.BoolVar(&opts.report, "report", false, "archive the run report in the configured blob store")
	flags.StringVar(&opts.metricsFile, "metrics-file", "", "write run metrics in Prometheus text format to this file")

	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	if err := cmd.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintf(stderr, "coi-recompute: %v\n", err)
		return 1
	}
	return code
}

func run(ctx context.Context, opts options, stdout, stderr io.Writer) int {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "coi-recompute: %v\n", err)
		return 1
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format, stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "coi-recompute: %v\n", err)
		return 1
	}
	fatal := func(msg string, err error) int {
		log.WithError(err).Error(msg)
		return 1
	}

	var sink io.Writer
	if opts.logFile != "" {
		f, err := os.OpenFile(opts.logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fatal("open log file", err)
		}
		defer func() { _ = f.Close() }()
		sink = f
	}

	store, err := core.OpenPersistentStore(cfg.StorageSettings(), core.NewPolicyRulesEngine(cfg.PairingPolicy()))
	if err != nil {
		return fatal("open record store", err)
	}
	defer func() {
		if err := core.ClosePersistentStore(store); err != nil {
			log.WithError(err).Warn("close record store")
		}
	}()

	var reports blob.Store
	if opts.report {
		if reports, err = blob.Open(ctx, cfg.BlobSettings()); err != nil {
			return fatal("open report store", err)
		}
	}

	fetcher, err := recordsource.Layered(recordsource.Store(store), cfg.Engine.CacheSize, cfg.Batch.FetchRate)
	if err != nil {
		return fatal("build record source", err)
	}
	reg := prometheus.NewRegistry()
	serviceMetrics, err := core.NewPrometheusMetricsRecorder(reg)
	if err != nil {
		return fatal("register service metrics", err)
	}
	batchMetrics, err := recompute.NewMetrics(reg)
	if err != nil {
		return fatal("register batch metrics", err)
	}
	svc := core.NewService(store,
		core.WithFetcher(fetcher),
		core.WithLogger(log),
		core.WithMetrics(serviceMetrics),
		core.WithDepths(cfg.Engine.IndividualDepth, cfg.Engine.PairingDepth),
	)

	population, err := svc.Population(ctx)
	if err != nil {
		return fatal("load population", err)
	}

	batch := recompute.Options{
		DryRun:        opts.dryRun,
		LogSink:       sink,
		Depth:         firstPositive(opts.depth, cfg.Engine.IndividualDepth),
		ItemTimeout:   firstPositiveDuration(opts.timeout, cfg.Batch.ItemTimeout),
		ProgressEvery: firstPositive(opts.progressEvery, cfg.Batch.ProgressEvery),
	}
	scheduler := recompute.NewScheduler(svc.Calculator(), svc, batch,
		recompute.WithLogger(log),
		recompute.WithMetrics(batchMetrics),
	)
	summary, runErr := scheduler.Run(ctx, population)

	out := output{
		RunID:       summary.RunID,
		DryRun:      summary.DryRun,
		Interrupted: runErr != nil,
		Processed:   summary.Processed,
		Updated:     summary.Updated,
		Errors:      summary.Errors,
		Fallback:    summary.Fallback,
		Failures:    summary.Failures,
	}
	if runErr == nil && reports != nil {
		info, err := recompute.Archive(ctx, reports, summary)
		if err != nil {
			log.WithError(err).Warn("archive run report")
		} else {
			out.Report = info.Key
			log.WithField("key", info.Key).Info("run report archived")
		}
	}
	if opts.metricsFile != "" {
		if err := prometheus.WriteToTextfile(opts.metricsFile, reg); err != nil {
			log.WithError(err).Warn("write metrics file")
		}
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		log.WithError(err).Warn("write summary")
	}

	if runErr != nil {
		log.WithFields(logrus.Fields{
			"run_id":    summary.RunID,
			"processed": summary.Processed,
		}).WithError(runErr).Warn("recompute interrupted; remaining individuals keep their cached values")
	}
	return 0
}

func firstPositive(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

func firstPositiveDuration(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
