package web

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/lucasjlepore/cycling-analyzer/ingest"
	"github.com/lucasjlepore/cycling-analyzer/internal/importer"
)

var importBusy = make(chan struct{}, 1)

type importResp struct {
	importer.ScanSummary
	Message string `json:"message"`
}

func scanMessage(sum importer.ScanSummary) string {
	switch {
	case sum.FoundFiles == 0:
		return "No workout files found in the history directory."
	case sum.Imported == 0 && len(sum.Errors) > 0:
		return fmt.Sprintf("Found %d files, but failed to import any. Check logs for details.", sum.FoundFiles)
	case sum.Imported == 0:
		return fmt.Sprintf("Scan completed: found %d files, no new workouts.", sum.FoundFiles)
	case sum.Duplicates > 0:
		return fmt.Sprintf("Import completed: %d new workouts imported, %d duplicates skipped from %d files.", sum.Imported, sum.Duplicates, sum.FoundFiles)
	}
	return fmt.Sprintf("Import completed: %d new workouts imported from %d files.", sum.Imported, sum.FoundFiles)
}

// POST /api/import -> run a single scan now
func (s *Server) handleImportNow(w http.ResponseWriter, r *http.Request) {
	if s.im == nil {
		http.Error(w, "importer not available", http.StatusServiceUnavailable)
		return
	}
	select {
	case importBusy <- struct{}{}:
		defer func() { <-importBusy }()
	default:
		http.Error(w, "import already running", http.StatusConflict)
		return
	}

	s.log.Info("import triggered via web")
	sum, err := s.im.ScanOnce(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, importResp{ScanSummary: sum, Message: scanMessage(sum)})
}

type uploadResponse struct {
	Imported   int      `json:"imported"`
	Duplicates int      `json:"duplicates"`
	Failed     int      `json:"failed"`
	Errors     []string `json:"errors,omitempty"`
	Message    string   `json:"message"`
}

// POST /api/upload (multipart, field "files")
// Uploaded files are written into the history directory and ingested.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.im == nil {
		http.Error(w, "importer not available", http.StatusServiceUnavailable)
		return
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("parse upload form: %w", err))
		return
	}
	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("no files uploaded"))
		return
	}
	if err := os.MkdirAll(s.cfg.HistoryDir, 0o755); err != nil {
		s.fail(w, r, err)
		return
	}

	var resp uploadResponse
	failed := func(name string, err error) {
		resp.Failed++
		resp.Errors = append(resp.Errors, fmt.Sprintf("%s: %v", name, err))
		s.log.Warn("upload failed", "file", name, "err", err)
	}
	for _, fh := range files {
		name := filepath.Base(fh.Filename)
		if _, err := ingest.DetectFormat(name); err != nil {
			failed(name, err)
			continue
		}
		dst := filepath.Join(s.cfg.HistoryDir, name)
		if err := saveUpload(fh, dst); err != nil {
			failed(name, err)
			continue
		}
		_, err := s.im.IngestFile(dst)
		switch {
		case err == nil:
			resp.Imported++
		case errors.Is(err, importer.ErrDuplicate):
			resp.Duplicates++
		default:
			failed(name, err)
		}
	}
	resp.Message = fmt.Sprintf("Processed %d files: %d imported, %d duplicates, %d failed",
		len(files), resp.Imported, resp.Duplicates, resp.Failed)
	writeJSON(w, http.StatusOK, resp)
}

func saveUpload(fh *multipart.FileHeader, dst string) error {
	src, err := fh.Open()
	if err != nil {
		return err
	}
	defer src.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
