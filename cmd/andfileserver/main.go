package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/pengxiao18/andfileserver/internal/config"
	"github.com/pengxiao18/andfileserver/internal/httpserver"
	"github.com/pengxiao18/andfileserver/internal/logging"
	"github.com/pengxiao18/andfileserver/internal/thumb"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "passwd" {
		passwdCmd(os.Args[2:])
		return
	}

	var (
		addr      = flag.String("addr", "0.0.0.0:8080", "listen address")
		root      = flag.String("root", "", "served root directory (required if -config is not set)")
		token     = flag.String("token", "", "shared secret for the X-Token header (empty: no auth)")
		bwFlag    = flag.String("bandwidth", "", "total outbound cap, e.g. 10mbps, 500kbps (default: unlimited)")
		ffmpeg    = flag.String("ffmpeg", "", `ffmpeg binary for video thumbnails ("-" disables)`)
		cfgPath   = flag.String("config", "", "path to config json (optional)")
		logLevel  = flag.String("log-level", "info", "log level: debug, info, warn, error")
		logFormat = flag.String("log-format", "console", "log format: console or json")
	)
	flag.Parse()

	var cfg config.Config
	if *cfgPath != "" {
		b, err := os.ReadFile(*cfgPath)
		if err != nil {
			fatalf("read config: %v", err)
		}
		if err := json.Unmarshal(b, &cfg); err != nil {
			fatalf("parse config: %v", err)
		}
	} else {
		if strings.TrimSpace(*root) == "" {
			fatalf("missing -root (or provide -config)")
		}
		cfg.Root = *root
		cfg.Token = *token
		cfg.Bandwidth = *bwFlag
		cfg.FFmpeg = *ffmpeg
	}
	if cfg.Addr == "" {
		cfg.Addr = *addr
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = *logLevel
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = *logFormat
	}
	if cfg.ReadTimeoutSec <= 0 {
		cfg.ReadTimeoutSec = 30
	}
	if cfg.Root == "" {
		fatalf("config: root is required")
	}

	if err := logging.Init(cfg.LogLevel, cfg.LogFormat); err != nil {
		fatalf("logging init: %v", err)
	}
	defer logging.Sync()

	srv, err := httpserver.New(httpserver.Options{
		Config: cfg,
		Frames: extractor(cfg.FFmpeg),
	})
	if err != nil {
		logging.Fatal("server init", zap.Error(err))
	}

	logging.Info("listening",
		zap.String("addr", "http://"+cfg.Addr),
		zap.String("root", srv.Root()),
		zap.Bool("auth", cfg.Token != "" || cfg.TokenBcrypt != ""))

	hs := &http.Server{
		Addr:        cfg.Addr,
		Handler:     withHeaders(srv.Handler()),
		ReadTimeout: time.Duration(cfg.ReadTimeoutSec) * time.Second,
	}
	if err := hs.ListenAndServe(); err != nil {
		logging.Fatal("listen", zap.Error(err))
	}
}

// extractor builds the video frame source; nil when disabled so image
// thumbnails keep working without ffmpeg installed.
func extractor(bin string) thumb.FrameExtractor {
	e := thumb.NewFFmpegExtractor(bin)
	if e == nil {
		return nil
	}
	return e
}

func passwdCmd(args []string) {
	fs := flag.NewFlagSet("passwd", flag.ExitOnError)
	var (
		secret = fs.String("t", "", "token to hash (required)")
		cost   = fs.Int("cost", bcrypt.DefaultCost, "bcrypt cost")
	)
	_ = fs.Parse(args)
	if *secret == "" {
		fmt.Fprintln(os.Stderr, "usage: andfileserver passwd -t <token>")
		os.Exit(2)
	}
	if *cost < bcrypt.MinCost || *cost > bcrypt.MaxCost {
		fmt.Fprintf(os.Stderr, "invalid cost %d (min=%d max=%d)\n", *cost, bcrypt.MinCost, bcrypt.MaxCost)
		os.Exit(2)
	}
	h, err := bcrypt.GenerateFromPassword([]byte(*secret), *cost)
	if err != nil {
		fatalf("bcrypt: %v", err)
	}
	fmt.Println(string(h))
}

func withHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Basic hardening for a LAN-facing tool.
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
