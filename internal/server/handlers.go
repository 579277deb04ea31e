package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"sheetwright/internal/config"
	"sheetwright/internal/logging"
	"sheetwright/internal/pipeline"
	"sheetwright/internal/workbook"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"session_id": s.sess.ID,
		"runtime":    s.sess.Runtimes.Booted(),
		"events":     s.sess.Bus.Stats(),
	})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	limit := s.cfg.MaxUploadBytes
	if limit <= 0 {
		limit = 20 << 20
	}
	// The multipart envelope gets 1 MiB on top of the file limit.
	r.Body = http.MaxBytesReader(w, r.Body, limit+(1<<20))

	if err := r.ParseMultipartForm(limit); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, "too_large", fmt.Sprintf("uploads are limited to %d bytes", limit))
			return
		}
		writeError(w, http.StatusBadRequest, "bad_request", "expected a multipart form with a file field")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "missing file field")
		return
	}
	defer file.Close()
	if header.Size > limit {
		writeError(w, http.StatusRequestEntityTooLarge, "too_large", fmt.Sprintf("uploads are limited to %d bytes", limit))
		return
	}

	name := filepath.Base(strings.ReplaceAll(header.Filename, "\\", "/"))
	if !pipeline.AcceptsFile(name) {
		writeError(w, http.StatusUnsupportedMediaType, "unsupported_file", "only .xlsx files are accepted")
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "could not read the uploaded file")
		return
	}

	// The run outlives the request.
	err = s.sess.Pipeline.Start(context.Background(), pipeline.Upload{Name: name, Data: data})
	if errors.Is(err, pipeline.ErrBusy) {
		writeError(w, http.StatusConflict, "busy", "a run is already in progress")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	logging.Server("accepted upload %s (%d bytes)", name, len(data))
	writeJSON(w, http.StatusAccepted, s.sess.Pipeline.Snapshot())
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	err := s.sess.Pipeline.StartRetry(context.Background())
	switch {
	case errors.Is(err, pipeline.ErrBusy):
		writeError(w, http.StatusConflict, "busy", "a run is already in progress")
	case errors.Is(err, pipeline.ErrNothingToRetry):
		writeError(w, http.StatusBadRequest, "nothing_to_retry", err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	default:
		writeJSON(w, http.StatusAccepted, s.sess.Pipeline.Snapshot())
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sess.Pipeline.Snapshot())
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": s.sess.Pipeline.Logs(),
	})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	art, ok := s.sess.Pipeline.Artifact()
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "no result is available yet")
		return
	}
	serveSpreadsheet(w, r, art.Name, art.Data)
}

func (s *Server) handleQuota(w http.ResponseWriter, r *http.Request) {
	rec := s.sess.Usage.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"day":       rec.Day,
		"used":      rec.Count,
		"limit":     s.sess.Usage.Limit(),
		"remaining": s.sess.Usage.Remaining(),
	})
}

func (s *Server) handleTemplate(w http.ResponseWriter, r *http.Request) {
	placeholder := config.DefaultPlaceholder
	if p := s.sess.Config.Pipeline.Placeholders; len(p) > 0 {
		placeholder = p[0]
	}
	data, err := workbook.Template(placeholder)
	if err != nil {
		logging.ServerWarn("template: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "could not build the template")
		return
	}
	serveSpreadsheet(w, r, "sheetwright_template.xlsx", data)
}

func serveSpreadsheet(w http.ResponseWriter, r *http.Request, name string, data []byte) {
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.Header().Set("Cache-Control", "no-store")
	http.ServeContent(w, r, name, time.Time{}, bytes.NewReader(data))
}
