package httpserver

import (
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/pengxiao18/andfileserver/internal/fsutil"
)

// Entry is one row of a directory listing. Size is the human-readable
// form shown in the UI; Length carries the raw byte count (-1 for
// directories).
type Entry struct {
	Name         string `json:"name"`
	Path         string `json:"path"`
	IsDir        bool   `json:"isDir"`
	Size         string `json:"size"`
	Length       int64  `json:"length"`
	LastModified string `json:"lastModified"`
}

const listTimeFormat = "2006-01-02 15:04:05"

// handleList enumerates the immediate children of a directory, newest
// first. Listings are built fresh from the filesystem on every request.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) error {
	raw := r.URL.Query().Get("path")
	if raw == "" {
		raw = s.rootAbs
	}
	abs, err := s.resolve(raw)
	if err != nil {
		return err
	}
	st, err := os.Stat(abs)
	if err != nil || !st.IsDir() {
		return errNotFound()
	}
	ents, err := os.ReadDir(abs)
	if err != nil {
		return errInternal("read dir: %v", err)
	}

	type child struct {
		entry Entry
		mtime time.Time
	}
	children := make([]child, 0, len(ents))
	for _, e := range ents {
		info, err := e.Info()
		if err != nil {
			continue
		}
		length := int64(-1)
		if info.Mode().IsRegular() {
			length = info.Size()
		}
		children = append(children, child{
			entry: Entry{
				Name:         e.Name(),
				Path:         filepath.Join(abs, e.Name()),
				IsDir:        e.IsDir(),
				Size:         fsutil.FormatSize(length),
				Length:       length,
				LastModified: info.ModTime().Format(listTimeFormat),
			},
			mtime: info.ModTime(),
		})
	}
	// Newest first; equal timestamps fall back to the name so the order
	// is stable across filesystems.
	sort.Slice(children, func(i, j int) bool {
		if !children[i].mtime.Equal(children[j].mtime) {
			return children[i].mtime.After(children[j].mtime)
		}
		return children[i].entry.Name < children[j].entry.Name
	})

	out := make([]Entry, len(children))
	for i, c := range children {
		out[i] = c.entry
	}
	writeJSON(w, out)
	return nil
}
