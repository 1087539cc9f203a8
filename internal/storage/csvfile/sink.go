// Package csvfile writes the grouped output as a delimited text file. The
// file is written under a temporary name in the destination directory and
// renamed into place only after it was flushed and synced, so readers never
// observe a partial file.
package csvfile

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"catalog/internal/record"
	"catalog/internal/storage"
)

// checkEvery is how many rows are written between context checks.
const checkEvery = 4096

// Sink writes groups to Path.
type Sink struct {
	path     string
	comma    rune
	extended bool
}

// New returns a Sink for path. comma defaults to ','.
func New(path string, comma rune, extended bool) (*Sink, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("csvfile: output path must not be empty")
	}
	if comma == 0 {
		comma = ','
	}
	return &Sink{path: path, comma: comma, extended: extended}, nil
}

// Path returns the destination file.
func (s *Sink) Path() string { return s.path }

// Write replaces the destination with a header row plus one row per group.
func (s *Sink) Write(ctx context.Context, groups []record.ProductGroup) (err error) {
	tmp := filepath.Join(filepath.Dir(s.path), "."+filepath.Base(s.path)+"."+uuid.NewString()+".tmp")
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return record.WrapIO("csvfile: create temp", err)
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
		}
	}()

	bw := bufio.NewWriterSize(f, 64<<10)
	w := csv.NewWriter(bw)
	w.Comma = s.comma

	if err := w.Write(storage.Columns(s.extended)); err != nil {
		return record.WrapIO("csvfile: write header", err)
	}
	var row []string
	for i, g := range groups {
		if i%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		row = storage.TextValues(row, g, s.extended)
		if err := w.Write(row); err != nil {
			return record.WrapIO("csvfile: write row", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return record.WrapIO("csvfile: flush", err)
	}
	if err := bw.Flush(); err != nil {
		return record.WrapIO("csvfile: flush", err)
	}
	if err := f.Sync(); err != nil {
		return record.WrapIO("csvfile: sync", err)
	}
	if err := f.Close(); err != nil {
		return record.WrapIO("csvfile: close", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return record.WrapIO("csvfile: rename", err)
	}
	return nil
}

// Close is a no-op; Write owns its file handle.
func (s *Sink) Close() {}

var _ storage.Sink = (*Sink)(nil)

func init() {
	storage.Register("csv", func(_ context.Context, cfg storage.Config) (storage.Sink, error) {
		return New(cfg.Path, cfg.Options.Rune("comma", ','), cfg.Extended)
	})
}
