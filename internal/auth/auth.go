// Package auth implements the shared-secret check: non-static routes must
// carry an X-Token header matching the configured secret.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/pengxiao18/andfileserver/internal/config"
)

// TokenHeader is the request header carrying the shared secret.
const TokenHeader = "X-Token"

// Enabled reports whether a secret is configured at all.
func Enabled(cfg config.Config) bool {
	return cfg.Token != "" || cfg.TokenBcrypt != ""
}

// staticExts are always served unauthenticated so the browser can load
// the UI before it knows the token.
var staticExts = []string{".html", ".css", ".js", ".ico", ".png", ".svg"}

// IsStatic reports whether a URI belongs to the unauthenticated static
// surface: the index page, bundled assets, health and metrics. Only
// top-level asset paths qualify; nested routes like /dav/ expose sandbox
// content and must present the token no matter what extension they end in.
func IsStatic(uri string) bool {
	if uri == "/" || uri == "/healthz" || uri == "/metrics" {
		return true
	}
	if !strings.HasPrefix(uri, "/") || strings.ContainsRune(uri[1:], '/') {
		return false
	}
	for _, ext := range staticExts {
		if strings.HasSuffix(uri, ext) {
			return true
		}
	}
	return false
}

// Check validates the token presented by a request.
func Check(cfg config.Config, r *http.Request) bool {
	if !Enabled(cfg) {
		return true
	}
	got := r.Header.Get(TokenHeader)
	if got == "" {
		return false
	}
	if cfg.TokenBcrypt != "" {
		return bcrypt.CompareHashAndPassword([]byte(cfg.TokenBcrypt), []byte(got)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(cfg.Token), []byte(got)) == 1
}

// RequireToken wraps a handler with the shared-secret check. Static
// routes pass through; everything else gets a plaintext 401 when the
// token is missing or wrong.
func RequireToken(cfg config.Config, next http.Handler) http.Handler {
	if !Enabled(cfg) {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if IsStatic(r.URL.Path) || Check(cfg, r) {
			next.ServeHTTP(w, r)
			return
		}
		deny(w)
	})
}

func deny(w http.ResponseWriter) {
	// constant-ish work
	_ = subtle.ConstantTimeByteEq(1, 1)
	http.Error(w, "Unauthorized", http.StatusUnauthorized)
}
