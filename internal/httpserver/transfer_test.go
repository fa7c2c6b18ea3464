package httpserver

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pengxiao18/andfileserver/internal/config"
)

func transferFixture(t *testing.T) (*Server, string, string) {
	t.Helper()
	s := newTestServer(t, config.Config{})
	content := ""
	for i := 0; i < 10; i++ {
		content += "0123456789"
	}
	path := filepath.Join(s.Root(), "data.bin")
	writeFile(t, path, content)
	return s, path, content
}

func getRange(t *testing.T, s *Server, target, rangeHeader string) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(http.MethodGet, target, nil)
	if rangeHeader != "" {
		r.Header.Set("Range", rangeHeader)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, r)
	return w
}

func TestDownloadFull(t *testing.T) {
	s, path, content := transferFixture(t)
	w := doGet(t, s, "/dl?path="+url.QueryEscape(path))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, content, w.Body.String())
	assert.Equal(t, "100", w.Header().Get("Content-Length"))
	assert.Equal(t, "bytes", w.Header().Get("Accept-Ranges"))
	assert.Equal(t, "public, max-age=0", w.Header().Get("Cache-Control"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
	assert.Contains(t, w.Header().Get("Content-Disposition"), `filename="data.bin"`)

	st, err := os.Stat(path)
	require.NoError(t, err)
	wantETag := fmt.Sprintf(`"%d-%d"`, st.Size(), st.ModTime().UnixMilli())
	assert.Equal(t, wantETag, w.Header().Get("ETag"))
	assert.Equal(t, st.ModTime().UTC().Format(http.TimeFormat), w.Header().Get("Last-Modified"))
}

func TestOpenInline(t *testing.T) {
	s, path, _ := transferFixture(t)
	w := doGet(t, s, "/open?path="+url.QueryEscape(path))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "inline")
	assert.Equal(t, "private, max-age=0, no-store", w.Header().Get("Cache-Control"))
}

func TestDownloadHead(t *testing.T) {
	s, path, _ := transferFixture(t)
	r := httptest.NewRequest(http.MethodHead, "/dl?path="+url.QueryEscape(path), nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "100", w.Header().Get("Content-Length"))
	assert.Zero(t, w.Body.Len())
	assert.NotEmpty(t, w.Header().Get("ETag"))
}

func TestDownloadRanges(t *testing.T) {
	s, path, content := transferFixture(t)
	target := "/dl?path=" + url.QueryEscape(path)

	w := getRange(t, s, target, "bytes=10-19")
	require.Equal(t, http.StatusPartialContent, w.Code)
	assert.Equal(t, content[10:20], w.Body.String())
	assert.Equal(t, "bytes 10-19/100", w.Header().Get("Content-Range"))
	assert.Equal(t, "10", w.Header().Get("Content-Length"))

	w = getRange(t, s, target, "bytes=90-")
	require.Equal(t, http.StatusPartialContent, w.Code)
	assert.Equal(t, content[90:], w.Body.String())
	assert.Equal(t, "bytes 90-99/100", w.Header().Get("Content-Range"))

	w = getRange(t, s, target, "bytes=-10")
	require.Equal(t, http.StatusPartialContent, w.Code)
	assert.Equal(t, content[90:], w.Body.String())

	// end past EOF clamps
	w = getRange(t, s, target, "bytes=50-500")
	require.Equal(t, http.StatusPartialContent, w.Code)
	assert.Equal(t, content[50:], w.Body.String())
	assert.Equal(t, "bytes 50-99/100", w.Header().Get("Content-Range"))
}

func TestDownloadBadRangesFallBackToFull(t *testing.T) {
	s, path, content := transferFixture(t)
	target := "/dl?path=" + url.QueryEscape(path)

	for _, h := range []string{"bytes=5-3", "bytes=abc", "chunks=0-5", "bytes=200-", "bytes=-0"} {
		w := getRange(t, s, target, h)
		require.Equal(t, http.StatusOK, w.Code, "range=%q", h)
		assert.Equal(t, content, w.Body.String(), "range=%q", h)
	}
}

func TestConditionalRequests(t *testing.T) {
	s, path, _ := transferFixture(t)
	target := "/dl?path=" + url.QueryEscape(path)

	first := doGet(t, s, target)
	require.Equal(t, http.StatusOK, first.Code)
	etag := first.Header().Get("ETag")
	lastMod := first.Header().Get("Last-Modified")

	r := httptest.NewRequest(http.MethodGet, target, nil)
	r.Header.Set("If-None-Match", etag)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, r)
	assert.Equal(t, http.StatusNotModified, w.Code)
	assert.Zero(t, w.Body.Len())
	assert.Equal(t, etag, w.Header().Get("ETag"))

	r = httptest.NewRequest(http.MethodGet, target, nil)
	r.Header.Set("If-Modified-Since", lastMod)
	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, r)
	assert.Equal(t, http.StatusNotModified, w.Code)

	// stale validator gets the content again
	r = httptest.NewRequest(http.MethodGet, target, nil)
	r.Header.Set("If-None-Match", `"different"`)
	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDownloadRejections(t *testing.T) {
	s := newTestServer(t, config.Config{})
	require.NoError(t, os.Mkdir(filepath.Join(s.Root(), "dir"), 0o755))

	w := doGet(t, s, "/dl")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doGet(t, s, "/dl?path="+url.QueryEscape(filepath.Join(s.Root(), "missing")))
	assert.Equal(t, http.StatusNotFound, w.Code)

	// directories are not downloadable
	w = doGet(t, s, "/dl?path="+url.QueryEscape(filepath.Join(s.Root(), "dir")))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestParseRange(t *testing.T) {
	tests := []struct {
		header     string
		start, end int64
		partial    bool
	}{
		{"bytes=0-9", 0, 9, true},
		{"bytes=10-", 10, 99, true},
		{"bytes=-25", 75, 99, true},
		{"bytes=-200", 0, 99, true},
		{"bytes=0-200", 0, 99, true},
		{"BYTES=0-9", 0, 9, true},
		{"bytes=0-9, 20-29", 0, 9, true},
		{"", 0, 0, false},
		{"bytes=", 0, 0, false},
		{"bytes=-", 0, 0, false},
		{"bytes=9-5", 0, 0, false},
		{"bytes=100-", 0, 0, false},
		{"bytes=-0", 0, 0, false},
		{"items=0-5", 0, 0, false},
	}
	for _, tt := range tests {
		start, end, partial := parseRange(tt.header, 100)
		assert.Equal(t, tt.partial, partial, "header=%q", tt.header)
		if tt.partial {
			assert.Equal(t, tt.start, start, "header=%q", tt.header)
			assert.Equal(t, tt.end, end, "header=%q", tt.header)
		}
	}
}

func TestContentDisposition(t *testing.T) {
	got := contentDisposition(false, "report.pdf")
	assert.Equal(t, `attachment; filename="report.pdf"; filename*=UTF-8''report.pdf`, got)

	got = contentDisposition(true, "résumé.pdf")
	assert.Contains(t, got, "inline")
	assert.Contains(t, got, `filename="r_sum_.pdf"`)
	assert.Contains(t, got, `filename*=UTF-8''r%C3%A9sum%C3%A9.pdf`)

	got = contentDisposition(false, `with space and "quote".txt`)
	assert.Contains(t, got, `filename="with space and _quote_.txt"`)
	assert.Contains(t, got, "%20")
}
