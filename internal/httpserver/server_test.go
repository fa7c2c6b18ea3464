package httpserver

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pengxiao18/andfileserver/internal/config"
)

// newTestServer builds a server over a fresh sandbox root. The root is
// symlink-resolved up front so path assertions compare like with like.
func newTestServer(t *testing.T, cfg config.Config) *Server {
	t.Helper()
	root, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	cfg.Root = root
	s, err := New(Options{Config: cfg})
	require.NoError(t, err)
	return s
}

func doGet(t *testing.T, s *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(http.MethodGet, target, nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, r)
	return w
}

func doForm(t *testing.T, s *Server, target string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, r)
	return w
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, config.Config{})
	w := doGet(t, s, "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok\n", w.Body.String())
}

func TestMetricsExposed(t *testing.T) {
	s := newTestServer(t, config.Config{})
	w := doGet(t, s, "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestIndexTemplating(t *testing.T) {
	s := newTestServer(t, config.Config{Token: "sesame"})
	w := doGet(t, s, "/")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, s.Root())
	assert.Contains(t, body, "sesame")
	assert.NotContains(t, body, "{{rootDir}}")
	assert.NotContains(t, body, "__TOKEN__")
}

func TestStaticAssets(t *testing.T) {
	s := newTestServer(t, config.Config{})

	w := doGet(t, s, "/main.js")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/javascript; charset=utf-8", w.Header().Get("Content-Type"))

	w = doGet(t, s, "/styles.css")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/css; charset=utf-8", w.Header().Get("Content-Type"))

	w = doGet(t, s, "/favicon.svg")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/svg+xml", w.Header().Get("Content-Type"))
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(t, config.Config{})
	w := doGet(t, s, "/no-such-route")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTokenGuardsDynamicRoutes(t *testing.T) {
	s := newTestServer(t, config.Config{Token: "sesame"})

	w := doGet(t, s, "/ls")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	r := httptest.NewRequest(http.MethodGet, "/ls", nil)
	r.Header.Set("X-Token", "sesame")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, r)
	assert.Equal(t, http.StatusOK, rec.Code)

	// the UI itself stays reachable
	assert.Equal(t, http.StatusOK, doGet(t, s, "/").Code)
}

func TestWebDAVServesSandbox(t *testing.T) {
	s := newTestServer(t, config.Config{})
	writeFile(t, filepath.Join(s.Root(), "notes.txt"), "dav content")

	w := doGet(t, s, "/dav/notes.txt")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "dav content", w.Body.String())
}

func TestWebDAVRequiresToken(t *testing.T) {
	s := newTestServer(t, config.Config{Token: "sesame"})
	writeFile(t, filepath.Join(s.Root(), "private.js"), "top secret")

	// reads need the token even when the name looks like a UI asset
	w := doGet(t, s, "/dav/private.js")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.NotContains(t, w.Body.String(), "top secret")

	r := httptest.NewRequest(http.MethodGet, "/dav/private.js", nil)
	r.Header.Set("X-Token", "sesame")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, r)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "top secret", rec.Body.String())

	// writes are guarded the same way
	r = httptest.NewRequest(http.MethodPut, "/dav/evil.js", strings.NewReader("payload"))
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, r)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	_, err := os.Stat(filepath.Join(s.Root(), "evil.js"))
	assert.True(t, os.IsNotExist(err))

	r = httptest.NewRequest(http.MethodPut, "/dav/allowed.txt", strings.NewReader("payload"))
	r.Header.Set("X-Token", "sesame")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, r)
	assert.Equal(t, http.StatusCreated, rec.Code)
	b, err := os.ReadFile(filepath.Join(s.Root(), "allowed.txt"))
	require.NoError(t, err)
	assert.Equal(t, "payload", string(b))
}

func TestNewRejectsBadRoot(t *testing.T) {
	_, err := New(Options{Config: config.Config{Root: filepath.Join(t.TempDir(), "missing")}})
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "plain.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	_, err = New(Options{Config: config.Config{Root: file}})
	assert.Error(t, err)
}

func TestErrorsArePlaintext(t *testing.T) {
	s := newTestServer(t, config.Config{})
	w := doGet(t, s, "/dl?path="+url.QueryEscape("/etc/passwd"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid path", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")
}

func readAll(t *testing.T, r io.Reader) string {
	t.Helper()
	b, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(b)
}
