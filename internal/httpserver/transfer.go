package httpserver

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/pengxiao18/andfileserver/internal/logging"
	"github.com/pengxiao18/andfileserver/internal/metrics"
)

// handleDownload serves a file with attachment disposition and
// cache-friendly validators.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) error {
	return s.serveFile(w, r, false)
}

// handleOpen serves a file inline for in-browser preview. Previews are
// never cache-stored, so a changed file is always re-fetched.
func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) error {
	return s.serveFile(w, r, true)
}

// serveFile is the shared transfer engine behind /dl and /open: strong
// validators, HEAD, single byte ranges, and a bounded streaming copy.
func (s *Server) serveFile(w http.ResponseWriter, r *http.Request, inline bool) error {
	raw := r.URL.Query().Get("path")
	if raw == "" {
		return errBadRequest("missing path")
	}
	abs, err := s.resolve(raw)
	if err != nil {
		return err
	}
	st, err := os.Stat(abs)
	if err != nil || !st.Mode().IsRegular() {
		return errNotFound()
	}

	total := st.Size()
	etag := fmt.Sprintf(`"%d-%d"`, total, st.ModTime().UnixMilli())
	lastMod := st.ModTime().UTC().Format(http.TimeFormat)
	cacheControl := "public, max-age=0"
	if inline {
		cacheControl = "private, max-age=0, no-store"
	}

	h := w.Header()
	if notModified(r, etag, lastMod) {
		h.Set("ETag", etag)
		h.Set("Last-Modified", lastMod)
		h.Set("Cache-Control", cacheControl)
		w.WriteHeader(http.StatusNotModified)
		return nil
	}

	h.Set("Content-Type", mimeByName(abs))
	h.Set("ETag", etag)
	h.Set("Last-Modified", lastMod)
	h.Set("Cache-Control", cacheControl)
	h.Set("Accept-Ranges", "bytes")
	h.Set("Content-Disposition", contentDisposition(inline, st.Name()))

	if r.Method == http.MethodHead {
		h.Set("Content-Length", strconv.FormatInt(total, 10))
		w.WriteHeader(http.StatusOK)
		return nil
	}

	f, err := os.Open(abs)
	if err != nil {
		return errInternal("open: %v", err)
	}
	defer f.Close()

	start, end, partial := parseRange(r.Header.Get("Range"), total)
	if partial {
		if _, err := f.Seek(start, io.SeekStart); err != nil {
			return errInternal("seek: %v", err)
		}
		length := end - start + 1
		h.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, total))
		h.Set("Content-Length", strconv.FormatInt(length, 10))
		w.WriteHeader(http.StatusPartialContent)
		n, err := io.CopyN(w, f, length)
		metrics.RecordDownload(n)
		if err != nil {
			// Client hung up mid-stream; nothing left to report to it.
			logging.Debug("transfer aborted", zap.String("path", abs), zap.Error(err))
		}
		return nil
	}

	h.Set("Content-Length", strconv.FormatInt(total, 10))
	n, err := io.Copy(w, f)
	metrics.RecordDownload(n)
	if err != nil {
		logging.Debug("transfer aborted", zap.String("path", abs), zap.Error(err))
	}
	return nil
}

// notModified applies the conditional-request check: an exact ETag match
// on If-None-Match, or an exact string match on If-Modified-Since.
func notModified(r *http.Request, etag, lastMod string) bool {
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		return true
	}
	if ims := r.Header.Get("If-Modified-Since"); ims != "" && ims == lastMod {
		return true
	}
	return false
}

// parseRange interprets a Range header against the total size. Only the
// first spec of a multi-range header is honored. Malformed or
// unsatisfiable specs report partial=false, which callers answer with a
// full 200 response.
func parseRange(header string, total int64) (start, end int64, partial bool) {
	header = strings.ToLower(strings.TrimSpace(header))
	if !strings.HasPrefix(header, "bytes=") {
		return 0, 0, false
	}
	spec := strings.TrimPrefix(header, "bytes=")
	if i := strings.IndexByte(spec, ','); i >= 0 {
		spec = spec[:i]
	}
	spec = strings.TrimSpace(spec)
	dash := strings.IndexByte(spec, '-')
	if dash < 0 {
		return 0, 0, false
	}
	sStr := strings.TrimSpace(spec[:dash])
	eStr := strings.TrimSpace(spec[dash+1:])
	switch {
	case sStr != "" && eStr != "":
		s, err1 := strconv.ParseInt(sStr, 10, 64)
		e, err2 := strconv.ParseInt(eStr, 10, 64)
		if err1 != nil || err2 != nil || s < 0 {
			return 0, 0, false
		}
		if e > total-1 {
			e = total - 1
		}
		if s > e {
			return 0, 0, false
		}
		return s, e, true
	case sStr != "":
		s, err := strconv.ParseInt(sStr, 10, 64)
		if err != nil || s < 0 || s > total-1 {
			return 0, 0, false
		}
		return s, total - 1, true
	case eStr != "":
		suffix, err := strconv.ParseInt(eStr, 10, 64)
		if err != nil || suffix <= 0 {
			return 0, 0, false
		}
		s := total - suffix
		if s < 0 {
			s = 0
		}
		if s > total-1 {
			return 0, 0, false
		}
		return s, total - 1, true
	default:
		return 0, 0, false
	}
}

// contentDisposition renders the disposition header with both an ASCII
// fallback filename and the RFC 5987 UTF-8 form, so non-ASCII names
// survive every browser.
func contentDisposition(inline bool, name string) string {
	kind := "attachment"
	if inline {
		kind = "inline"
	}
	fallback := make([]byte, 0, len(name))
	for _, r := range name {
		if r >= 0x20 && r <= 0x7e && r != '"' {
			fallback = append(fallback, byte(r))
		} else {
			fallback = append(fallback, '_')
		}
	}
	encoded := strings.ReplaceAll(url.QueryEscape(name), "+", "%20")
	return fmt.Sprintf(`%s; filename="%s"; filename*=UTF-8''%s`, kind, fallback, encoded)
}
