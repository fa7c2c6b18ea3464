package httpserver

import (
	"net/http"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/pengxiao18/andfileserver/internal/logging"
	"github.com/pengxiao18/andfileserver/internal/metrics"
	"github.com/pengxiao18/andfileserver/internal/upload"
)

// uploadMemoryLimit caps the in-memory portion of a parsed multipart
// body; larger parts spill to disk.
const uploadMemoryLimit = 256 << 20

// handleUpload accepts multipart uploads. Every field whose name starts
// with "file" is stored; items are independent and best effort, so one
// bad part does not undo the others. The response lists the absolute
// path of each stored file.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) error {
	if r.Method != http.MethodPost {
		return errBadRequest("POST only")
	}
	raw := r.URL.Query().Get("path")
	if raw == "" {
		raw = s.rootAbs
	}
	destDir, err := s.resolve(raw)
	if err != nil {
		return err
	}
	if err := r.ParseMultipartForm(uploadMemoryLimit); err != nil {
		return errBadRequest("bad multipart")
	}
	if r.MultipartForm == nil || len(r.MultipartForm.File) == 0 {
		return errBadRequest("missing file")
	}

	keys := make([]string, 0, len(r.MultipartForm.File))
	for k := range r.MultipartForm.File {
		if strings.HasPrefix(k, "file") {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var stored []string
	for _, k := range keys {
		for _, fh := range r.MultipartForm.File[k] {
			src, err := fh.Open()
			if err != nil {
				logging.Warn("upload part unreadable", zap.String("field", k), zap.Error(err))
				continue
			}
			item, err := upload.Save(destDir, fh.Filename, src)
			_ = src.Close()
			if err != nil {
				logging.Warn("upload failed", zap.String("name", fh.Filename), zap.Error(err))
				continue
			}
			metrics.RecordUpload(item.Size)
			stored = append(stored, item.Path)
		}
	}
	if len(stored) == 0 {
		return errBadRequest("missing file")
	}
	plainText(w, "Uploaded:\n"+strings.Join(stored, "\n"))
	return nil
}
