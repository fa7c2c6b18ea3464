package httpserver

import (
	"archive/zip"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/pengxiao18/andfileserver/internal/logging"
	"github.com/pengxiao18/andfileserver/internal/metrics"
)

// zipCopyChunk is the per-file streaming buffer inside the archive
// writer; entries are never buffered whole.
const zipCopyChunk = 8 * 1024

// parsePathList accepts the three wire forms of a selection: a JSON
// array, a comma-separated list, or a single path.
func parsePathList(raw string) []string {
	t := strings.TrimSpace(raw)
	switch {
	case t == "":
		return nil
	case strings.HasPrefix(t, "["):
		var arr []string
		if err := json.Unmarshal([]byte(t), &arr); err != nil {
			return nil
		}
		out := make([]string, 0, len(arr))
		for _, p := range arr {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	case strings.Contains(t, ","):
		var out []string
		for _, p := range strings.Split(t, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	default:
		return []string{t}
	}
}

// handleZip streams the selected files and directories as one ZIP. A
// writer goroutine builds the archive into a pipe while the response
// drains it, so transfer starts immediately and memory stays bounded by
// the pipe buffer no matter how large the selection is.
func (s *Server) handleZip(w http.ResponseWriter, r *http.Request) error {
	if r.Method != http.MethodPost {
		return errBadRequest("POST only")
	}

	raw := r.URL.Query().Get("paths")
	if raw == "" {
		ct := r.Header.Get("Content-Type")
		if strings.Contains(ct, "application/json") {
			body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
			if err != nil {
				return errBadRequest("bad body")
			}
			raw = string(body)
		} else {
			if err := r.ParseForm(); err != nil {
				return errBadRequest("bad form")
			}
			raw = r.FormValue("paths")
		}
	}
	paths := parsePathList(raw)
	if len(paths) == 0 {
		return errBadRequest("paths required")
	}

	// Resolve up front and drop what no longer exists; nothing to pack
	// means 404 before the first byte of the stream.
	var targets []string
	for _, p := range paths {
		abs, err := s.resolve(p)
		if err != nil {
			continue
		}
		if _, err := os.Stat(abs); err != nil {
			continue
		}
		targets = append(targets, abs)
	}
	if len(targets) == 0 {
		return errNotFound()
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", contentDisposition(false, "pack.zip"))
	w.Header().Set("Cache-Control", "no-store")
	metrics.RecordArchive()

	pr, pw := io.Pipe()
	go func() {
		zw := zip.NewWriter(pw)
		var err error
		for _, abs := range targets {
			st, serr := os.Stat(abs)
			if serr != nil {
				continue
			}
			if st.IsDir() {
				err = zipDir(zw, abs, filepath.Base(abs)+"/")
			} else {
				err = zipFile(zw, abs, filepath.Base(abs))
			}
			if err != nil {
				break
			}
		}
		if cerr := zw.Close(); err == nil {
			err = cerr
		}
		pw.CloseWithError(err)
	}()

	n, err := io.Copy(w, pr)
	metrics.RecordDownload(n)
	if err != nil {
		// Client went away; unblock the writer goroutine.
		_ = pr.CloseWithError(err)
		logging.Debug("zip stream aborted", zap.Error(err))
	}
	return nil
}

// zipDir walks a directory into the archive. An empty directory becomes
// a single zero-length entry with a trailing slash.
func zipDir(zw *zip.Writer, dir, base string) error {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil // unreadable subtree: skip, best effort per entry
	}
	if len(ents) == 0 {
		_, err := zw.Create(base)
		return err
	}
	for _, e := range ents {
		child := filepath.Join(dir, e.Name())
		if e.IsDir() {
			if err := zipDir(zw, child, base+e.Name()+"/"); err != nil {
				return err
			}
			continue
		}
		if err := zipFile(zw, child, base+e.Name()); err != nil {
			return err
		}
	}
	return nil
}

func zipFile(zw *zip.Writer, path, name string) error {
	st, err := os.Stat(path)
	if err != nil {
		return nil
	}
	wr, err := zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: st.ModTime(),
	})
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	buf := make([]byte, zipCopyChunk)
	_, err = io.CopyBuffer(wr, f, buf)
	return err
}
