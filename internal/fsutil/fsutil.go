// Package fsutil provides the path sandbox and small filesystem helpers
// shared by the HTTP handlers.
package fsutil

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrEscape is returned by Resolve for paths outside the sandbox root.
var ErrEscape = errors.New("path escapes root")

// Resolve maps a client-supplied absolute path onto the sandbox rooted at
// rootAbs. The input is cleaned and canonicalized (".", "..", symlinks),
// then required to sit at or below the canonical root as a path-component
// prefix, so "/root2" never matches a root of "/root". The leaf of the
// path does not have to exist; the longest existing prefix is what gets
// canonicalized, which keeps mkdir/upload destinations resolvable.
func Resolve(rootAbs, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("empty path")
	}
	if strings.Contains(raw, "\x00") {
		return "", errors.New("invalid path")
	}
	raw = strings.ReplaceAll(raw, "\\", "/")
	if !strings.HasPrefix(raw, "/") {
		raw = "/" + raw
	}
	p := filepath.Clean(filepath.FromSlash(raw))

	rootCanon, err := filepath.EvalSymlinks(filepath.Clean(rootAbs))
	if err != nil {
		return "", fmt.Errorf("resolve root: %w", err)
	}

	canon, err := canonicalize(p)
	if err != nil {
		return "", err
	}
	if !withinRoot(rootCanon, canon) {
		return "", ErrEscape
	}
	return canon, nil
}

// canonicalize resolves symlinks over the longest existing prefix of p and
// rejoins the non-existent remainder untouched.
func canonicalize(p string) (string, error) {
	existing := p
	var tail []string
	for {
		if _, err := os.Lstat(existing); err == nil {
			break
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			break
		}
		tail = append([]string{filepath.Base(existing)}, tail...)
		existing = parent
	}
	canon, err := filepath.EvalSymlinks(existing)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	if len(tail) > 0 {
		canon = filepath.Join(append([]string{canon}, tail...)...)
	}
	return filepath.Clean(canon), nil
}

func withinRoot(rootCanon, abs string) bool {
	return abs == rootCanon || strings.HasPrefix(abs, rootCanon+string(filepath.Separator))
}

// SanitizeName reduces a client-declared file name to a single safe path
// component: separators stripped, control characters flattened, at most
// 255 characters.
func SanitizeName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	var b strings.Builder
	for _, r := range name {
		switch {
		case r == '\r' || r == '\n' || r == '\t':
			b.WriteByte(' ')
		case r < 0x20 || r == 0x7f:
			// drop other control characters
		default:
			b.WriteRune(r)
		}
	}
	name = strings.TrimSpace(b.String())
	if len(name) > 255 {
		name = name[:255]
	}
	return name
}

// FormatSize renders a byte count the way the listing shows it: one
// decimal place, trailing ".0" trimmed, "-" for negative (directories).
func FormatSize(n int64) string {
	const (
		kb = int64(1024)
		mb = kb * 1024
		gb = mb * 1024
	)
	if n < 0 {
		return "-"
	}
	oneDec := func(v float64) string {
		return strings.TrimSuffix(fmt.Sprintf("%.1f", v), ".0")
	}
	switch {
	case n >= gb:
		return oneDec(float64(n)/float64(gb)) + "G"
	case n >= mb:
		return oneDec(float64(n)/float64(mb)) + "M"
	case n >= kb:
		return oneDec(float64(n)/float64(kb)) + "K"
	default:
		return fmt.Sprintf("%dB", n)
	}
}

// RenameOrCopy moves src to dst. It tries an atomic os.Rename first and
// falls back to a recursive copy plus delete when the rename fails
// (cross-filesystem moves, some platforms). On a failed fallback the
// partially written destination is removed before the error is returned.
func RenameOrCopy(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := CopyRecursive(src, dst); err != nil {
		_ = os.RemoveAll(dst)
		return err
	}
	return os.RemoveAll(src)
}

// CopyRecursive copies a file or directory tree, preserving file modes.
func CopyRecursive(src, dst string) error {
	st, err := os.Lstat(src)
	if err != nil {
		return err
	}
	switch {
	case st.IsDir():
		if err := os.MkdirAll(dst, st.Mode().Perm()); err != nil {
			return err
		}
		ents, err := os.ReadDir(src)
		if err != nil {
			return err
		}
		for _, e := range ents {
			if err := CopyRecursive(filepath.Join(src, e.Name()), filepath.Join(dst, e.Name())); err != nil {
				return err
			}
		}
		return nil
	case st.Mode()&os.ModeSymlink != 0:
		target, err := os.Readlink(src)
		if err != nil {
			return err
		}
		return os.Symlink(target, dst)
	default:
		return copyFile(src, dst, st.Mode().Perm())
	}
}

func copyFile(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
