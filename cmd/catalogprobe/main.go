// Command catalogprobe samples the head of a catalogue, guesses its name,
// price, currency and id columns, and prints a draft pipeline config.
//
//	catalogprobe -url https://example.com/feed.csv -name shop_feed > shop_feed.json
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"

	"catalog/internal/probe"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("catalogprobe", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		url       = fs.String("url", "", "http(s) URL, file:// URL or path of the catalogue to sample")
		nbytes    = fs.Int("bytes", probe.DefaultMaxBytes, "number of bytes to sample from the start of the input")
		delimiter = fs.String("delimiter", "", `CSV delimiter; empty guesses, "tab" or \t for tabs`)
		name      = fs.String("name", "catalog", "job name; also names the output file or table")
		backend   = fs.String("backend", "csv", "storage backend of the draft: csv, sqlite, postgres, mssql or mysql")
		reference = fs.String("reference", "EUR", "reference currency of the draft")
		save      = fs.Bool("save", false, "write the sampled bytes to <name>.csv or <name>.jsonl")
		insecure  = fs.Bool("insecure", false, "skip TLS verification for https inputs")
		report    = fs.Bool("report", false, "print the full probe result instead of just the pipeline")
		verbose   = fs.Bool("v", false, "enable verbose logs")
	)
	if err := fs.Parse(args); err != nil {
		return 1
	}

	log.SetHandler(cli.New(stderr))
	if *verbose {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}

	delim, err := probe.DecodeDelimiter(*delimiter)
	if err != nil {
		fmt.Fprintf(stderr, "catalogprobe: %v\n", err)
		return 1
	}

	res, err := probe.Probe(ctx, probe.Options{
		URL:        *url,
		MaxBytes:   *nbytes,
		Delimiter:  delim,
		Name:       *name,
		Backend:    *backend,
		Reference:  *reference,
		Insecure:   *insecure,
		SaveSample: *save,
	})
	if err != nil {
		fmt.Fprintf(stderr, "catalogprobe: %v\n", err)
		return 1
	}

	log.WithFields(log.Fields{
		"format":   res.Format,
		"rows":     res.Rows,
		"name":     res.Roles.Name,
		"price":    res.Roles.Price,
		"currency": res.Roles.Currency,
		"id":       res.Roles.ID,
	}).Info("roles")
	for _, n := range res.Notes {
		log.Warn(n)
	}

	var out []byte
	if *report {
		out, err = json.MarshalIndent(res, "", "  ")
		out = append(out, '\n')
	} else {
		out, err = res.PipelineJSON()
	}
	if err != nil {
		fmt.Fprintf(stderr, "catalogprobe: encode: %v\n", err)
		return 1
	}
	if _, err := stdout.Write(out); err != nil {
		return 1
	}
	return 0
}
