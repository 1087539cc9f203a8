// Command catalog normalizes a scraped product catalogue and writes one row
// per product group.
//
//	catalog -config configs/pipelines/sample.json [-input dirty.csv] [-output clean.csv]
//
// Exit status is 0 on success and 1 on any unrecovered failure. The run
// summary, including reject counts per reason, goes to stderr.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	"github.com/apex/log/handlers/json"
	"github.com/joho/godotenv"

	"catalog/internal/config"
	"catalog/internal/datasource"
	"catalog/internal/metrics"
	"catalog/internal/metrics/datadog"
	"catalog/internal/metrics/prompush"
	"catalog/internal/pipeline"
	"catalog/internal/storage"

	// register all backends with the storage factory.
	// config specifies which to use but we need to build in support for all of them.
	_ "catalog/internal/storage/all"
)

func main() {
	// A missing .env is fine; the environment wins over the file.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run is main without the process exits, so tests can drive it.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("catalog", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		cfgPath    = fs.String("config", "configs/pipelines/sample.json", "pipeline config JSON path")
		input      = fs.String("input", "", "input file; overrides source with a local file")
		output     = fs.String("output", "", "output CSV path; overrides storage with the csv sink")
		validate   = fs.Bool("validate", false, "validate the configuration and exit")
		explain    = fs.Bool("explain", false, "print the optimized plan and exit")
		verbose    = fs.Bool("v", false, "enable verbose logs")
		logFormat  = fs.String("log-format", "cli", "log format: cli or json")
		metricsFlg = fs.String("metrics-backend", "", "metrics backend override (none, pushgateway, datadog)")
	)
	if err := fs.Parse(args); err != nil {
		return 1
	}

	setupLogging(stderr, *logFormat, *verbose)

	p, err := loadConfig(*cfgPath)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}
	if *input != "" {
		p.Source = config.Source{Kind: "file", File: config.SourceFile{Path: *input}}
	}
	if *output != "" {
		p.Storage.Kind = "csv"
		p.Storage.Path = *output
	}
	if *metricsFlg != "" {
		p.Metrics.Backend = *metricsFlg
	}

	// Validate pipeline config.
	hasError := false
	for _, iss := range config.ValidatePipeline(p) {
		fmt.Fprintf(stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
		if iss.Severity == config.SeverityError {
			hasError = true
		}
	}
	if hasError {
		log.Errorf("configuration is invalid: %s", *cfgPath)
		return 1
	}
	if *validate {
		log.Infof("configuration is valid: %s", *cfgPath)
		return 0
	}

	src, err := datasource.FromConfig(p.Source)
	if err != nil {
		log.WithError(err).Error("source")
		return 1
	}
	sink, err := storage.New(ctx, storage.FromPipeline(p.Storage))
	if err != nil {
		log.WithError(err).Error("storage")
		return 1
	}
	defer sink.Close()

	rec, err := newMetrics(p)
	if err != nil {
		log.WithError(err).Warn("metrics disabled")
		rec = metrics.Nop()
	}
	defer func() {
		if err := rec.Flush(); err != nil {
			log.WithError(err).Warn("metrics flush")
		}
	}()

	plan := pipeline.Build(p, src, sink, pipeline.WithMetrics(rec), pipeline.WithLogger(log.Log))
	if err := plan.Optimize(); err != nil {
		log.WithError(err).Error("plan")
		return 1
	}
	if *explain || *verbose {
		fmt.Fprint(stdout, plan.Explain())
		if *explain {
			return 0
		}
	}

	sum, err := plan.Execute(ctx)
	if rerr := sum.WriteReport(stderr); rerr != nil {
		log.WithError(rerr).Warn("write summary")
	}
	if err != nil {
		fmt.Fprintf(stderr, "catalog: %v\n", err)
		return 1
	}
	return 0
}

func loadConfig(path string) (config.Pipeline, error) {
	f, err := os.Open(path)
	if err != nil {
		return config.Pipeline{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	return config.Load(f)
}

func setupLogging(w io.Writer, format string, verbose bool) {
	switch format {
	case "json":
		log.SetHandler(json.New(w))
	default:
		log.SetHandler(cli.New(w))
	}
	if verbose {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
}

// newMetrics builds the recorder for the configured backend. The pushgateway
// URL falls back to PUSHGATEWAY_URL, then to a local gateway.
func newMetrics(p config.Pipeline) (*metrics.Recorder, error) {
	m := p.Metrics
	switch m.Backend {
	case "", "none":
		return metrics.Nop(), nil

	case "pushgateway":
		url := m.PushgatewayURL
		if url == "" {
			url = os.Getenv("PUSHGATEWAY_URL")
		}
		if url == "" {
			url = "http://localhost:9091"
		}
		b, err := prompush.NewBackend(p.Job, url)
		if err != nil {
			return nil, err
		}
		log.WithFields(log.Fields{"backend": m.Backend, "url": url, "job": p.Job}).Debug("metrics")
		return metrics.New(p.Job, b), nil

	case "datadog":
		b, err := datadog.NewBackend(datadog.Config{Addr: m.DatadogAddr, Namespace: m.Namespace, GlobalTags: m.Tags})
		if err != nil {
			return nil, err
		}
		log.WithFields(log.Fields{"backend": m.Backend, "addr": m.DatadogAddr, "job": p.Job}).Debug("metrics")
		return metrics.New(p.Job, b), nil
	}
	return nil, fmt.Errorf("metrics: unknown backend %q", m.Backend)
}
