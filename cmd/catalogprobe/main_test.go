package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"catalog/internal/config"
)

const feed = "sku;designation;prix\n" +
	"101;Vis inox M6;3,20 €\n" +
	"102;Ecrou M6;0,80 €\n"

func makeTestServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		io.WriteString(w, body)
	}))
	t.Cleanup(s.Close)
	return s
}

func TestRun_PrintsLoadablePipeline(t *testing.T) {
	srv := makeTestServer(t, feed)

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-url", srv.URL + "/vis.csv", "-name", "Vis Feed", "-backend", "sqlite"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit=%d stderr=%s", code, stderr.String())
	}

	p, err := config.Load(&stdout)
	if err != nil {
		t.Fatalf("output is not a pipeline config: %v", err)
	}
	if p.Job != "vis_feed" {
		t.Errorf("job=%q", p.Job)
	}
	if got := p.Parser.Options.String("comma", ","); got != ";" {
		t.Errorf("comma=%q", got)
	}
	if hm := p.Parser.Options.StringMap("header_map"); hm["designation"] != "name" || hm["prix"] != "price" || hm["sku"] != "id" {
		t.Errorf("header_map=%v", hm)
	}
	if p.Storage.Kind != "sqlite" || p.Storage.DB.Table != "vis_feed_groups" {
		t.Errorf("storage=%+v", p.Storage)
	}
	if !strings.Contains(stderr.String(), "roles") {
		t.Errorf("stderr=%s", stderr.String())
	}
}

func TestRun_Report(t *testing.T) {
	srv := makeTestServer(t, feed)

	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), []string{"-url", srv.URL, "-report"}, &stdout, &stderr); code != 0 {
		t.Fatalf("exit=%d stderr=%s", code, stderr.String())
	}
	var got struct {
		Format string            `json:"format"`
		Roles  map[string]string `json:"roles"`
		Rows   int               `json:"rows"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &got); err != nil {
		t.Fatalf("report is not JSON: %v\n%s", err, stdout.String())
	}
	if got.Format != "csv" || got.Rows != 2 || got.Roles["price"] != "prix" {
		t.Fatalf("report=%+v", got)
	}
}

func TestRun_Failures(t *testing.T) {
	for name, args := range map[string][]string{
		"no url":        {},
		"bad delimiter": {"-url", "x.csv", "-delimiter", ";;"},
		"missing file":  {"-url", "/nonexistent/feed.csv"},
		"unknown flag":  {"-json"},
	} {
		t.Run(name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			if code := run(context.Background(), args, &stdout, &stderr); code != 1 {
				t.Fatalf("exit=%d, want 1", code)
			}
			if stdout.Len() != 0 {
				t.Fatalf("unexpected stdout: %s", stdout.String())
			}
		})
	}
}
