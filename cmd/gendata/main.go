// Command gendata writes a synthetic dirty product catalogue for exercising
// the catalog pipeline: inconsistent casing and spacing, typos, currency
// symbols, comma decimals, missing prices and x100 scale errors.
//
//	gendata -rows 500000 -seed 42 -out dirty_catalogue.csv.gz
package main

import (
	"bufio"
	"compress/gzip"
	"flag"
	"io"
	"os"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
)

func main() {
	var (
		rows    = flag.Int("rows", 500_000, "number of data rows")
		seed    = flag.Uint64("seed", 1, "random seed; equal seeds give identical files")
		out     = flag.String("out", "dirty_catalogue.csv", "output path; a .gz suffix compresses, - writes to stdout")
		dupRate = flag.Float64("dup-rate", 0, "probability that a row repeats an earlier ID_Source")
	)
	flag.Parse()
	log.SetHandler(cli.New(os.Stderr))

	start := time.Now()
	if err := writeCatalogue(*out, genConfig{Rows: *rows, Seed: *seed, DupRate: *dupRate}); err != nil {
		log.WithError(err).Fatal("generate")
	}
	log.WithFields(log.Fields{
		"file":    *out,
		"rows":    *rows,
		"elapsed": time.Since(start).Round(time.Millisecond).String(),
	}).Info("done")
}

func writeCatalogue(path string, cfg genConfig) (err error) {
	var w io.Writer = os.Stdout
	if path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := f.Close(); err == nil {
				err = cerr
			}
		}()
		w = f
	}

	bw := bufio.NewWriterSize(w, 1<<20)
	w = bw
	var zw *gzip.Writer
	if strings.HasSuffix(path, ".gz") {
		zw = gzip.NewWriter(bw)
		w = zw
	}

	if err := generate(w, cfg); err != nil {
		return err
	}
	if zw != nil {
		if err := zw.Close(); err != nil {
			return err
		}
	}
	return bw.Flush()
}
