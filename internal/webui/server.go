// Package webui serves a small HTTP front end for trying pipelines on an
// uploaded catalogue and for drafting configs with the probe.
//
// Routes:
//
//	GET  /            upload form
//	GET  /healthz     liveness
//	POST /api/preview runs a pipeline over the uploaded file, returns groups
//	GET  /api/probe   samples a URL and returns the drafted pipeline
package webui

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"

	"catalog/internal/config"
	"catalog/internal/pipeline"
	"catalog/internal/probe"
	"catalog/internal/record"
	"catalog/internal/storage"
)

// Defaults for Config fields left zero.
const (
	DefaultMaxUploadBytes = 32 << 20
	DefaultPreviewGroups  = 100
)

// Config controls the server.
type Config struct {
	Addr string

	// Base is the pipeline used when a preview request carries no config.
	// Its source and storage sections are ignored.
	Base config.Pipeline

	MaxUploadBytes int64
	// PreviewGroups caps the groups returned by /api/preview.
	PreviewGroups int
}

// Server wraps a gin engine.
type Server struct {
	cfg    Config
	engine *gin.Engine
	tmpl   *template.Template
	logger log.Interface
}

// NewServer constructs a Server with routes and the embedded template.
func NewServer(cfg Config) *Server {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if cfg.PreviewGroups <= 0 {
		cfg.PreviewGroups = DefaultPreviewGroups
	}
	s := &Server{
		cfg:    cfg,
		engine: gin.New(),
		tmpl:   template.Must(template.New("index").Parse(indexHTML)),
		logger: log.Log,
	}
	s.engine.Use(gin.Recovery(), s.requestLog)
	s.routes()
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.engine }

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{Addr: s.cfg.Addr, Handler: s.engine}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) routes() {
	s.engine.GET("/", s.handleIndex)
	s.engine.GET("/healthz", s.handleHealth)
	api := s.engine.Group("/api")
	{
		api.POST("/preview", s.handlePreview)
		api.GET("/probe", s.handleProbe)
	}
}

func (s *Server) requestLog(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.logger.WithFields(log.Fields{
		"method":  c.Request.Method,
		"path":    c.Request.URL.Path,
		"status":  c.Writer.Status(),
		"elapsed": time.Since(start).Round(time.Millisecond).String(),
	}).Debug("request")
}

func (s *Server) handleIndex(c *gin.Context) {
	c.Header("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.Execute(c.Writer, gin.H{"Job": s.cfg.Base.Job}); err != nil {
		s.logger.WithError(err).Error("template")
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// previewSummary is the JSON view of a pipeline.Summary.
type previewSummary struct {
	RunID           string              `json:"run_id"`
	Rows            int64               `json:"rows"`
	Accepted        int64               `json:"accepted"`
	Rejected        int64               `json:"rejected"`
	Groups          int64               `json:"groups"`
	RejectsByReason map[string]int64    `json:"rejects_by_reason,omitempty"`
	Samples         map[string][]string `json:"samples,omitempty"`
	ElapsedMS       int64               `json:"elapsed_ms"`
}

func summaryView(s pipeline.Summary) previewSummary {
	v := previewSummary{
		RunID:     s.RunID,
		Rows:      s.Rows,
		Accepted:  s.Accepted,
		Rejected:  s.Rejected,
		Groups:    s.Groups,
		ElapsedMS: s.Elapsed.Milliseconds(),
	}
	if len(s.RejectsByReason) > 0 {
		v.RejectsByReason = make(map[string]int64, len(s.RejectsByReason))
		for r, n := range s.RejectsByReason {
			v.RejectsByReason[string(r)] = n
		}
		v.Samples = make(map[string][]string, len(s.Samples))
		for r, msgs := range s.Samples {
			v.Samples[string(r)] = msgs
		}
	}
	return v
}

// handlePreview expects a multipart form with the catalogue in "file" and an
// optional pipeline JSON in "config". Groups come back in output order,
// truncated to PreviewGroups.
func (s *Server) handlePreview(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxUploadBytes)

	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file: " + err.Error()})
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	data, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	p := s.cfg.Base
	if raw := strings.TrimSpace(c.PostForm("config")); raw != "" {
		if p, err = config.Load(strings.NewReader(raw)); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	// Uploads are small; keep the preview cheap and the output in memory.
	p.Metrics = config.Metrics{}
	extended := p.Storage.Extended

	sink := &memorySink{}
	plan := pipeline.Build(p, bytesSource(data), sink, pipeline.WithLogger(s.logger))
	if err := plan.Optimize(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sum, err := plan.Execute(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "summary": summaryView(sum)})
		return
	}

	groups := sink.groups
	truncated := len(groups) > s.cfg.PreviewGroups
	if truncated {
		groups = groups[:s.cfg.PreviewGroups]
	}
	rows := make([][]string, 0, len(groups))
	for _, g := range groups {
		rows = append(rows, storage.TextValues(nil, g, extended))
	}
	c.JSON(http.StatusOK, gin.H{
		"summary":   summaryView(sum),
		"columns":   storage.Columns(extended),
		"groups":    rows,
		"truncated": truncated,
	})
}

// handleProbe takes url, name, bytes, delimiter and backend query parameters.
func (s *Server) handleProbe(c *gin.Context) {
	url := strings.TrimSpace(c.Query("url"))
	if url == "" || !(strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://")) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url must be an http(s) URL"})
		return
	}
	delim, err := probe.DecodeDelimiter(c.Query("delimiter"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	n, _ := strconv.Atoi(c.Query("bytes"))

	res, err := probe.Probe(c.Request.Context(), probe.Options{
		URL:       url,
		MaxBytes:  n,
		Delimiter: delim,
		Name:      c.Query("name"),
		Backend:   c.Query("backend"),
		Reference: c.Query("reference"),
	})
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": fmt.Sprintf("probe failed: %v", err)})
		return
	}
	c.JSON(http.StatusOK, res)
}

type bytesSource []byte

func (b bytesSource) Open(context.Context) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b)), nil
}

// memorySink keeps the groups of a single run.
type memorySink struct {
	groups []record.ProductGroup
}

func (m *memorySink) Write(_ context.Context, groups []record.ProductGroup) error {
	m.groups = groups
	return nil
}

func (m *memorySink) Close() {}

//go:embed index.tmpl.html
var indexHTML string
