// Package datasource opens the byte stream a pipeline run reads from.
package datasource

import (
	"context"
	"fmt"
	"io"
	"time"

	"catalog/internal/config"
	"catalog/internal/datasource/file"
	"catalog/internal/datasource/httpds"
)

// Source yields the raw input of one run. The caller closes the reader.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// FromConfig builds the Source described by cfg.
func FromConfig(cfg config.Source) (Source, error) {
	switch cfg.Kind {
	case "", "file":
		if cfg.File.Path == "" {
			return nil, fmt.Errorf("datasource: file source needs a path")
		}
		return file.NewLocal(cfg.File.Path), nil
	case "http":
		if cfg.HTTP.URL == "" {
			return nil, fmt.Errorf("datasource: http source needs a url")
		}
		client := httpds.NewClient(httpds.Config{
			Timeout:            time.Duration(cfg.HTTP.TimeoutSeconds) * time.Second,
			MaxRetries:         3,
			InsecureSkipVerify: cfg.HTTP.Insecure,
		})
		return httpds.NewSource(client, cfg.HTTP.URL), nil
	}
	return nil, fmt.Errorf("datasource: unknown kind %q", cfg.Kind)
}
