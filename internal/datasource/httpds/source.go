package httpds

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"catalog/internal/record"
)

// Source streams the body of one URL.
type Source struct {
	client *Client
	url    string
}

// NewSource returns a Source that fetches url with client.
func NewSource(client *Client, url string) *Source {
	return &Source{client: client, url: url}
}

// URL returns the configured URL.
func (s *Source) URL() string { return s.url }

// Open issues the request and returns the response body. Non-2xx statuses
// and transport failures are *record.IOError values. Bodies served as gzip
// files (not transparently encoded) are decompressed.
func (s *Source) Open(ctx context.Context) (io.ReadCloser, error) {
	resp, err := s.client.Get(ctx, s.url, nil)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, record.WrapIO("http get "+s.url, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, record.WrapIO("http get "+s.url, fmt.Errorf("status %d", resp.StatusCode))
	}
	if isGzipBody(resp) {
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			resp.Body.Close()
			return nil, record.WrapIO("gzip "+s.url, err)
		}
		return &gzipBody{Reader: zr, body: resp.Body}, nil
	}
	return resp.Body, nil
}

func isGzipBody(resp *http.Response) bool {
	ct := resp.Header.Get("Content-Type")
	if strings.Contains(ct, "gzip") {
		return true
	}
	return resp.Request != nil && strings.HasSuffix(resp.Request.URL.Path, ".gz")
}

type gzipBody struct {
	*gzip.Reader
	body io.ReadCloser
}

func (g *gzipBody) Close() error {
	g.Reader.Close()
	return g.body.Close()
}
