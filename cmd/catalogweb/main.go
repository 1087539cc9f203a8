// Command catalogweb serves a web UI for previewing pipelines on uploaded
// catalogues and drafting configs from a URL.
//
//	catalogweb -addr :8080 -config configs/pipelines/sample.json
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"catalog/internal/config"
	"catalog/internal/webui"
)

func main() {
	_ = godotenv.Load()

	addr := flag.String("addr", ":8080", "listen address")
	cfgPath := flag.String("config", "", "default pipeline for previews; built-in defaults when empty")
	maxUpload := flag.Int64("max-upload", webui.DefaultMaxUploadBytes, "maximum upload size in bytes")
	verbose := flag.Bool("v", false, "log every request")
	flag.Parse()

	log.SetHandler(cli.New(os.Stderr))
	gin.SetMode(gin.ReleaseMode)
	if *verbose {
		log.SetLevel(log.DebugLevel)
	}

	base := config.Default()
	if *cfgPath != "" {
		f, err := os.Open(*cfgPath)
		if err != nil {
			log.WithError(err).Fatal("open config")
		}
		base, err = config.Load(f)
		f.Close()
		if err != nil {
			log.WithError(err).Fatal("load config")
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := webui.NewServer(webui.Config{Addr: *addr, Base: base, MaxUploadBytes: *maxUpload})
	log.WithField("addr", *addr).Info("listening")
	if err := srv.ListenAndServe(ctx); err != nil {
		log.WithError(err).Fatal("serve")
	}
}
