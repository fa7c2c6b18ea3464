// Package upload stages multipart file parts through temporary files into
// their destination directory. Every item lives and dies inside one
// request: stage to temp, sanitize the client name, move into place,
// drop the temp.
package upload

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/pengxiao18/andfileserver/internal/fsutil"
)

// Item describes one stored upload.
type Item struct {
	Name string // final sanitized file name
	Path string // absolute destination path
	Size int64
}

// Save streams src into destDir under the client-declared name. The name
// is URL-decoded and sanitized to a single path component; an empty
// result falls back to a generated one. An existing file of the same
// name is overwritten.
func Save(destDir, rawName string, src io.Reader) (Item, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return Item{}, fmt.Errorf("create dest dir: %w", err)
	}

	name := rawName
	if decoded, err := url.QueryUnescape(rawName); err == nil {
		name = decoded
	}
	name = fsutil.SanitizeName(name)

	tmp := filepath.Join(os.TempDir(), "upload-"+uuid.NewString()+".tmp")
	size, err := stage(tmp, src)
	if err != nil {
		_ = os.Remove(tmp)
		return Item{}, err
	}
	if name == "" {
		name = "upload-" + uuid.NewString()
	}

	target := filepath.Join(destDir, name)
	if err := fsutil.RenameOrCopy(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return Item{}, fmt.Errorf("store %s: %w", name, err)
	}
	return Item{Name: name, Path: target, Size: size}, nil
}

func stage(tmp string, src io.Reader) (int64, error) {
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, fmt.Errorf("stage upload: %w", err)
	}
	n, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, fmt.Errorf("stage upload: %w", err)
	}
	return n, nil
}
