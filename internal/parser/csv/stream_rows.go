// Package csv streams delimited text into raw catalogue records. It never
// buffers the whole input: rows are read with a reused csv.Reader record and
// handed to emit one at a time.
package csv

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/apex/log"

	"catalog/internal/config"
	"catalog/internal/record"
)

// Positions of the projected columns.
const (
	colName = iota
	colPrice
	colCurrency
	colID
	numCols
)

var canonicalIndex = map[string]int{
	config.ColName:     colName,
	config.ColPrice:    colPrice,
	config.ColCurrency: colCurrency,
	config.ColID:       colID,
}

// logEveryN controls the reader progress heartbeat.
const logEveryN = 50_000

// StreamRecords reads delimited text from r and calls emit once per data row.
// Only the canonical columns (name, price, currency, id) are materialized.
//
// Header handling:
//   - has_header=true (default): the first row is a header. Headers listed in
//     header_map are renamed to their canonical column; any other header is
//     lower-cased with spaces turned into underscores and used if it already
//     is a canonical name.
//   - has_header=false: "columns" gives the canonical name per position
//     ("" skips a position).
//
// Other options: comma (default ','), trim_space (default true),
// lazy_quotes, fields_per_record (0 = variable), scrub (object of byte
// sequence -> replacement applied before parsing).
//
// Rows the CSV reader cannot parse are reported to onErr as malformed_row
// rejects and skipped. A read error from the underlying source is fatal.
func StreamRecords(
	ctx context.Context,
	r io.Reader,
	opt config.Options,
	emit func(record.RawRecord) error,
	onErr func(line int64, err error),
) error {
	hasHeader := opt.Bool("has_header", true)
	trim := opt.Bool("trim_space", true)

	cr := csv.NewReader(withScrub(r, opt))
	cr.Comma = opt.Rune("comma", ',')
	cr.LazyQuotes = opt.Bool("lazy_quotes", false)
	cr.ReuseRecord = true
	cr.FieldsPerRecord = -1
	if n := opt.Int("fields_per_record", 0); n > 0 {
		cr.FieldsPerRecord = n
	}

	// colIx[canonical] = source index, or -1.
	colIx := [numCols]int{-1, -1, -1, -1}

	if hasHeader {
		hdr, err := cr.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("csv: read header: %w", err)
		}
		stripBOM(hdr)
		hm := opt.StringMap("header_map")
		for i, h := range hdr {
			h = strings.TrimSpace(h)
			if mapped, ok := hm[h]; ok {
				h = mapped
			} else {
				h = strings.ReplaceAll(strings.ToLower(h), " ", "_")
			}
			if ci, ok := canonicalIndex[h]; ok && colIx[ci] < 0 {
				colIx[ci] = i
			}
		}
	} else {
		for i, name := range opt.StringSlice("columns") {
			if ci, ok := canonicalIndex[name]; ok {
				colIx[ci] = i
			}
		}
	}
	if colIx[colName] < 0 || colIx[colPrice] < 0 {
		return fmt.Errorf("csv: input has no %q or %q column (check header_map/columns)", config.ColName, config.ColPrice)
	}

	var line, emitted int64
	for {
		// cooperative cancel
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		rec, err := cr.Read()
		if err == io.EOF {
			return nil
		}
		line++
		if err != nil {
			var perr *csv.ParseError
			if !errors.As(err, &perr) {
				return record.WrapIO("csv read", err)
			}
			if onErr != nil {
				onErr(line, record.Reject(record.ReasonMalformedRow, line, "%v", perr.Err))
			}
			continue
		}
		if line == 1 && !hasHeader {
			stripBOM(rec)
		}

		var vals [numCols]string
		for ci, si := range colIx {
			if si < 0 || si >= len(rec) {
				continue
			}
			v := rec[si]
			if trim {
				v = strings.TrimSpace(v)
			}
			vals[ci] = v
		}

		raw := record.RawRecord{
			Name:        vals[colName],
			Price:       vals[colPrice],
			Currency:    vals[colCurrency],
			SourceRowID: record.SourceID(vals[colID], line),
			Line:        line,
		}
		if err := emit(raw); err != nil {
			return err
		}
		emitted++
		if emitted%logEveryN == 0 {
			log.WithFields(log.Fields{"line": line, "emitted": emitted}).Info("reader progress")
		}
	}
}
