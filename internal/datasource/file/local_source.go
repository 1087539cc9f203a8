// Package file implements a local filesystem-backed data source.
package file

import (
	"bufio"
	"compress/gzip"
	"context"
	"io"
	"os"

	"catalog/internal/record"
)

// Local opens a file from the local disk. Gzip-compressed files are detected
// by their magic bytes and decompressed on the fly.
type Local struct{ path string }

// NewLocal returns a Local source bound to path.
func NewLocal(path string) *Local { return &Local{path: path} }

// Path returns the configured path.
func (l *Local) Path() string { return l.path }

// Open opens the configured path for reading.
//
// A context that is already done short-circuits without touching the
// filesystem. Filesystem errors are *record.IOError values that still match
// errors.Is(err, os.ErrNotExist).
func (l *Local) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(l.path)
	if err != nil {
		return nil, record.WrapIO("open "+l.path, err)
	}
	return maybeGzip(f)
}

type readCloser struct {
	io.Reader
	close func() error
}

func (r *readCloser) Close() error { return r.close() }

// maybeGzip peeks at the first two bytes of rc and wraps it in a gzip reader
// when they are the gzip magic number.
func maybeGzip(rc io.ReadCloser) (io.ReadCloser, error) {
	br := bufio.NewReaderSize(rc, 64*1024)
	magic, err := br.Peek(2)
	if err != nil || magic[0] != 0x1f || magic[1] != 0x8b {
		// Short or empty input is handed over as-is; the parser decides.
		return &readCloser{Reader: br, close: rc.Close}, nil
	}
	zr, err := gzip.NewReader(br)
	if err != nil {
		rc.Close()
		return nil, record.WrapIO("gzip", err)
	}
	return &readCloser{Reader: zr, close: func() error {
		zerr := zr.Close()
		if cerr := rc.Close(); cerr != nil {
			return cerr
		}
		return zerr
	}}, nil
}
