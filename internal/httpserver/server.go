// Package httpserver contains the request router and the handlers for
// every file-access endpoint.
package httpserver

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/webdav"

	"github.com/pengxiao18/andfileserver/internal/auth"
	"github.com/pengxiao18/andfileserver/internal/bandwidth"
	"github.com/pengxiao18/andfileserver/internal/config"
	"github.com/pengxiao18/andfileserver/internal/fsutil"
	"github.com/pengxiao18/andfileserver/internal/logging"
	"github.com/pengxiao18/andfileserver/internal/metrics"
	"github.com/pengxiao18/andfileserver/internal/thumb"
)

type Options struct {
	Config config.Config
	// Frames supplies video thumbnail frames; nil disables them.
	Frames thumb.FrameExtractor
}

type Server struct {
	cfg     config.Config
	rootAbs string
	thumbs  *thumb.Producer
	limiter *bandwidth.Limiter

	webFS fs.FS
}

//go:embed web/index.html web/main.js web/styles.css web/favicon.svg
var embeddedWeb embed.FS

func New(opts Options) (*Server, error) {
	rootAbs, err := filepath.Abs(opts.Config.Root)
	if err != nil {
		return nil, err
	}
	st, err := os.Stat(rootAbs)
	if err != nil {
		return nil, fmt.Errorf("root: %w", err)
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("root %q is not a directory", rootAbs)
	}
	bps, err := opts.Config.BandwidthBps()
	if err != nil {
		return nil, err
	}
	sub, err := fs.Sub(embeddedWeb, "web")
	if err != nil {
		return nil, err
	}
	return &Server{
		cfg:     opts.Config,
		rootAbs: rootAbs,
		thumbs:  &thumb.Producer{Frames: opts.Frames},
		limiter: bandwidth.New(bps),
		webFS:   sub,
	}, nil
}

// Root returns the absolute sandbox root.
func (s *Server) Root() string {
	return s.rootAbs
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// health
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, "ok\n")
	})

	mux.Handle("/metrics", metrics.Handler())

	// WebDAV over the same sandbox root; the token middleware guards it
	// like every other non-static route.
	dav := &webdav.Handler{
		Prefix:     "/dav",
		FileSystem: webdav.Dir(s.rootAbs),
		LockSystem: webdav.NewMemLS(),
	}
	mux.Handle("/dav/", dav)

	// listing and metadata
	mux.Handle("/ls", s.route("/ls", s.handleList))

	// file transfer, throttled
	mux.Handle("/dl", s.throttled("/dl", s.handleDownload))
	mux.Handle("/open", s.throttled("/open", s.handleOpen))

	// mutations
	mux.Handle("/upload", s.route("/upload", s.handleUpload))
	mux.Handle("/mkdir", s.route("/mkdir", s.handleMkdir))
	mux.Handle("/rm", s.route("/rm", s.handleDelete))
	mux.Handle("/rename", s.route("/rename", s.handleRename))
	mux.Handle("/mv", s.route("/mv", s.handleMove))

	// thumbnails and archives
	mux.Handle("/thumb", s.route("/thumb", s.handleThumb))
	mux.Handle("/zip", s.throttled("/zip", s.handleZip))

	// static UI and catch-all
	mux.HandleFunc("/", s.handleStatic)

	return logging.Middleware(auth.RequireToken(s.cfg, mux))
}

// --- error taxonomy ---

// statusError carries the HTTP status a handler error maps to.
type statusError struct {
	code int
	msg  string
}

func (e *statusError) Error() string { return e.msg }

func errBadRequest(format string, args ...any) error {
	return &statusError{code: http.StatusBadRequest, msg: fmt.Sprintf(format, args...)}
}

func errNotFound() error {
	return &statusError{code: http.StatusNotFound, msg: "Not found"}
}

func errInternal(format string, args ...any) error {
	return &statusError{code: http.StatusInternalServerError, msg: fmt.Sprintf(format, args...)}
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

// route wraps a handler with metrics and the error boundary.
func (s *Server) route(name string, h handlerFunc) http.Handler {
	return metrics.Instrument(name, s.boundary(name, h))
}

// throttled is route plus the outbound bandwidth cap.
func (s *Server) throttled(name string, h handlerFunc) http.Handler {
	return metrics.Instrument(name, s.limiter.Wrap(s.boundary(name, h)))
}

// boundary is the single error boundary around every dynamic route:
// typed errors map to their status, unexpected errors and panics become
// plaintext 500s.
func (s *Server) boundary(name string, h handlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				logging.Error("handler panic", zap.String("route", name), zap.Any("panic", v))
				plainError(w, http.StatusInternalServerError, fmt.Sprintf("Error: %v", v))
			}
		}()
		err := h(w, r)
		if err == nil {
			return
		}
		var se *statusError
		switch {
		case errors.As(err, &se):
			plainError(w, se.code, se.msg)
		case errors.Is(err, fsutil.ErrEscape):
			plainError(w, http.StatusBadRequest, "invalid path")
		case os.IsNotExist(err):
			plainError(w, http.StatusNotFound, "Not found")
		default:
			logging.Warn("handler error", zap.String("route", name), zap.Error(err))
			plainError(w, http.StatusInternalServerError, "Error: "+err.Error())
		}
	})
}

// resolve applies the path sandbox; every rejection is a 400.
func (s *Server) resolve(raw string) (string, error) {
	abs, err := fsutil.Resolve(s.rootAbs, raw)
	if err != nil {
		return "", errBadRequest("invalid path")
	}
	return abs, nil
}

// --- static assets ---

// handleStatic serves "/" (the templated index) and the bundled UI
// assets; anything else is an unknown route.
func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	uri := path.Clean(r.URL.Path)
	if uri == "/" {
		s.serveIndex(w)
		return
	}
	ext := strings.ToLower(path.Ext(uri))
	switch ext {
	case ".html":
		s.serveAsset(w, uri, "text/html; charset=utf-8", false)
	case ".css":
		s.serveAsset(w, uri, "text/css; charset=utf-8", false)
	case ".js":
		s.serveAsset(w, uri, "application/javascript; charset=utf-8", false)
	case ".ico":
		s.serveAsset(w, uri, "image/x-icon", true)
	case ".png":
		s.serveAsset(w, uri, "image/png", true)
	case ".svg":
		s.serveAsset(w, uri, "image/svg+xml", false)
	default:
		plainError(w, http.StatusNotFound, "Not found")
	}
}

func (s *Server) serveIndex(w http.ResponseWriter) {
	b, err := fs.ReadFile(s.webFS, "index.html")
	if err != nil {
		plainError(w, http.StatusInternalServerError, "missing ui")
		return
	}
	page := strings.ReplaceAll(string(b), "{{rootDir}}", s.rootAbs)
	// With a bcrypt-only secret the plaintext is not known to the server;
	// the UI then asks the user for it.
	page = strings.ReplaceAll(page, "__TOKEN__", s.cfg.Token)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = io.WriteString(w, page)
}

func (s *Server) serveAsset(w http.ResponseWriter, uri, contentType string, cacheForever bool) {
	b, err := fs.ReadFile(s.webFS, strings.TrimPrefix(uri, "/"))
	if err != nil {
		plainError(w, http.StatusNotFound, "Asset not found: "+uri)
		return
	}
	w.Header().Set("Content-Type", contentType)
	if cacheForever {
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	}
	_, _ = w.Write(b)
}

// --- shared helpers ---

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func plainText(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, body)
}

func plainError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	_, _ = io.WriteString(w, msg)
}

// mimeByName guesses a Content-Type from the file extension; unknown
// extensions become application/octet-stream.
func mimeByName(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return "application/octet-stream"
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	// Fallbacks for systems with sparse mime tables.
	switch ext {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".mp4":
		return "video/mp4"
	case ".webm":
		return "video/webm"
	case ".mkv":
		return "video/x-matroska"
	case ".mov":
		return "video/quicktime"
	case ".avi":
		return "video/x-msvideo"
	case ".wmv":
		return "video/x-ms-wmv"
	case ".mp3":
		return "audio/mpeg"
	case ".m4a":
		return "audio/mp4"
	case ".wav":
		return "audio/wav"
	case ".ogg":
		return "audio/ogg"
	case ".flac":
		return "audio/flac"
	case ".pdf":
		return "application/pdf"
	case ".txt", ".log", ".md", ".json", ".yaml", ".yml", ".toml", ".ini", ".cfg", ".conf":
		return "text/plain; charset=utf-8"
	case ".zip":
		return "application/zip"
	case ".tar":
		return "application/x-tar"
	case ".gz":
		return "application/gzip"
	default:
		return "application/octet-stream"
	}
}
