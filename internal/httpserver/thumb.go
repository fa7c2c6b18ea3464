package httpserver

import (
	"net/http"
	"os"
	"strconv"

	"github.com/pengxiao18/andfileserver/internal/metrics"
)

// handleThumb renders a JPEG thumbnail for an image or video file.
// Best effort: decode failures surface as a 500 and never take the
// server down.
func (s *Server) handleThumb(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query()
	raw := q.Get("path")
	if raw == "" {
		return errBadRequest("path required")
	}
	abs, err := s.resolve(raw)
	if err != nil {
		return err
	}
	st, err := os.Stat(abs)
	if err != nil || st.IsDir() {
		return errNotFound()
	}

	width := intParam(q.Get("w"), 256)
	timestampMs := int64Param(q.Get("t"), 0)

	data, err := s.thumbs.Thumbnail(abs, width, timestampMs)
	if err != nil {
		metrics.RecordThumbnail(false)
		return errInternal("thumb error: %v", err)
	}
	metrics.RecordThumbnail(true)

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "public, max-age=604800")
	_, _ = w.Write(data)
	return nil
}

func intParam(v string, def int) int {
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func int64Param(v string, def int64) int64 {
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return def
	}
	return n
}
