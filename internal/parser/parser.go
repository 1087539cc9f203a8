// Package parser selects the streaming reader for a configured input format.
package parser

import (
	"context"
	"fmt"
	"io"

	"catalog/internal/config"
	"catalog/internal/parser/csv"
	"catalog/internal/parser/jsonl"
	"catalog/internal/record"
)

// StreamFunc reads r and calls emit once per record. Recoverable row
// problems go to onErr; the returned error is fatal for the run.
type StreamFunc func(
	ctx context.Context,
	r io.Reader,
	opt config.Options,
	emit func(record.RawRecord) error,
	onErr func(line int64, err error),
) error

var streams = map[string]StreamFunc{
	"csv":   csv.StreamRecords,
	"jsonl": jsonl.StreamRecords,
}

// For returns the StreamFunc registered for kind.
func For(kind string) (StreamFunc, error) {
	f, ok := streams[kind]
	if !ok {
		return nil, fmt.Errorf("parser: unknown kind %q", kind)
	}
	return f, nil
}
