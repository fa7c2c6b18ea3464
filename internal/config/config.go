// Package config holds the JSON-friendly server configuration.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Config is intentionally small. If Token and TokenBcrypt are both empty
// the server runs without authentication.
type Config struct {
	// Addr is the listen address, e.g. "0.0.0.0:8080".
	Addr string `json:"addr"`

	// Root is the directory subtree exposed over HTTP. Nothing outside
	// it is ever read or written.
	Root string `json:"root"`

	// Token is the shared secret expected in the X-Token header on
	// non-static routes. Empty disables the check (trusted LAN).
	Token string `json:"token,omitempty"`

	// TokenBcrypt holds a bcrypt hash of the shared secret as produced
	// by `andfileserver passwd`. When set it takes precedence over
	// Token, so the plaintext secret never sits in the config file.
	TokenBcrypt string `json:"tokenBcrypt,omitempty"`

	// ReadTimeoutSec is the socket read timeout for idle connections.
	// Default: 30.
	ReadTimeoutSec int `json:"readTimeoutSec,omitempty"`

	// Bandwidth caps total outbound throughput, e.g. "10mbps",
	// "500kbps", or a bare bytes-per-second number. Empty = unlimited.
	Bandwidth string `json:"bandwidth,omitempty"`

	// FFmpeg is the path of the ffmpeg binary used for video thumbnail
	// frames. Default: "ffmpeg" (resolved via PATH). Empty string keeps
	// the default; "-" disables video thumbnails.
	FFmpeg string `json:"ffmpeg,omitempty"`

	// LogLevel is one of debug/info/warn/error. Default: info.
	LogLevel string `json:"logLevel,omitempty"`

	// LogFormat is "console" or "json". Default: console.
	LogFormat string `json:"logFormat,omitempty"`
}

// BandwidthBps parses the Bandwidth field into bytes per second.
func (c Config) BandwidthBps() (float64, error) {
	return ParseBandwidth(c.Bandwidth)
}

// ParseBandwidth converts a human-readable bandwidth string to bytes per
// second. Accepted units (case-insensitive): bps, kbps, mbps, gbps. A bare
// number is bytes per second.
func ParseBandwidth(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "0" {
		return 0, nil
	}
	i := 0
	for i < len(s) && (s[i] == '.' || (s[i] >= '0' && s[i] <= '9')) {
		i++
	}
	if i == 0 {
		return 0, fmt.Errorf("no numeric value in %q", s)
	}
	val, err := strconv.ParseFloat(s[:i], 64)
	if err != nil || val < 0 {
		return 0, fmt.Errorf("invalid number %q", s[:i])
	}
	unit := strings.ToLower(strings.TrimFunc(s[i:], unicode.IsSpace))
	switch unit {
	case "":
		return val, nil
	case "bps":
		return val / 8, nil
	case "kbps":
		return val * 1_000 / 8, nil
	case "mbps":
		return val * 1_000_000 / 8, nil
	case "gbps":
		return val * 1_000_000_000 / 8, nil
	default:
		return 0, fmt.Errorf("unknown unit %q (accepted: bps, kbps, mbps, gbps)", unit)
	}
}
