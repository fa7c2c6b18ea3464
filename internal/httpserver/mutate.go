package httpserver

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/pengxiao18/andfileserver/internal/fsutil"
)

// requirePost parses the form of a POST request; any other method is a
// client error.
func requirePost(r *http.Request) error {
	if r.Method != http.MethodPost {
		return errBadRequest("POST only")
	}
	if err := r.ParseForm(); err != nil {
		return errBadRequest("bad form")
	}
	return nil
}

// handleMkdir creates a directory under an existing one. Creating a name
// that already exists is not an error.
func (s *Server) handleMkdir(w http.ResponseWriter, r *http.Request) error {
	if err := requirePost(r); err != nil {
		return err
	}
	raw := r.FormValue("path")
	if raw == "" {
		return errBadRequest("missing path")
	}
	base, err := s.resolve(raw)
	if err != nil {
		return err
	}
	name := fsutil.SanitizeName(r.FormValue("name"))
	if name == "" {
		return errBadRequest("missing name")
	}
	if err := os.MkdirAll(filepath.Join(base, name), 0o755); err != nil {
		return errInternal("mkdir failed: %v", err)
	}
	plainText(w, "ok")
	return nil
}

// handleDelete removes a file or directory tree. There is no trash; the
// delete is final.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) error {
	if err := requirePost(r); err != nil {
		return err
	}
	raw := r.FormValue("path")
	if raw == "" {
		return errBadRequest("missing path")
	}
	abs, err := s.resolve(raw)
	if err != nil {
		return err
	}
	if _, err := os.Stat(abs); err != nil {
		return errNotFound()
	}
	if err := os.RemoveAll(abs); err != nil {
		return errInternal("delete failed: %v", err)
	}
	plainText(w, "ok")
	return nil
}

// handleRename gives a file or directory a new name inside its parent.
// A colliding sibling is a client error and leaves both sides untouched.
func (s *Server) handleRename(w http.ResponseWriter, r *http.Request) error {
	if err := requirePost(r); err != nil {
		return err
	}
	raw := r.FormValue("path")
	if raw == "" {
		return errBadRequest("missing path")
	}
	abs, err := s.resolve(raw)
	if err != nil {
		return err
	}
	if _, err := os.Stat(abs); err != nil {
		return errNotFound()
	}
	name := fsutil.SanitizeName(r.FormValue("name"))
	if name == "" {
		return errBadRequest("invalid name")
	}
	if filepath.Base(abs) == name {
		plainText(w, "ok")
		return nil
	}
	dst := filepath.Join(filepath.Dir(abs), name)
	if _, err := s.resolve(dst); err != nil {
		return errBadRequest("invalid name")
	}
	if _, err := os.Lstat(dst); err == nil {
		return errBadRequest("target exists")
	}
	if err := fsutil.RenameOrCopy(abs, dst); err != nil {
		return errInternal("rename failed: %v", err)
	}
	plainText(w, "ok")
	return nil
}

// handleMove relocates a file or directory to a new absolute path.
// An existing destination is replaced; the overwrite happens before the
// rename so the atomic and copy-fallback paths agree.
func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) error {
	if err := requirePost(r); err != nil {
		return err
	}
	fromRaw := r.FormValue("from")
	if fromRaw == "" {
		return errBadRequest("missing from")
	}
	toRaw := r.FormValue("to")
	if toRaw == "" {
		return errBadRequest("missing to")
	}
	src, err := s.resolve(fromRaw)
	if err != nil {
		return errBadRequest("invalid from")
	}
	dst, err := s.resolve(toRaw)
	if err != nil {
		return errBadRequest("invalid to")
	}
	if _, err := os.Stat(src); err != nil {
		return errNotFound()
	}
	if src == dst {
		plainText(w, "ok")
		return nil
	}
	if _, err := os.Lstat(dst); err == nil {
		if err := os.RemoveAll(dst); err != nil {
			return errInternal("move failed: %v", err)
		}
	}
	if err := fsutil.RenameOrCopy(src, dst); err != nil {
		return errInternal("move failed: %v", err)
	}
	plainText(w, "ok")
	return nil
}
