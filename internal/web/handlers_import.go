package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/kitstash/internal/core"
	"github.com/JonMunkholm/kitstash/internal/logging"
	"github.com/JonMunkholm/kitstash/internal/web/templates"
)

const (
	// multipartMemory is how much of an upload is buffered in memory
	// before spilling to a temp file.
	multipartMemory = 1 << 20

	// multipartOverhead allows for form boundaries and other fields on
	// top of the file itself.
	multipartOverhead = 64 << 10
)

// readUpload extracts the "file" field. The caller owns the returned reader.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (core.ImportFile, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.service.MaxFileSize()+multipartOverhead)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return core.ImportFile{}, fmt.Errorf("%w: request body over %d bytes", core.ErrFileTooLarge, tooLarge.Limit)
		}
		return core.ImportFile{}, fmt.Errorf("%w: %v", core.ErrNoFile, err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return core.ImportFile{}, fmt.Errorf("%w: %v", core.ErrNoFile, err)
	}

	return core.ImportFile{Name: header.Filename, Size: header.Size, Reader: file}, nil
}

// handleStartImport starts a background import and returns its id.
// The service closes the uploaded file when the run ends.
func (s *Server) handleStartImport(w http.ResponseWriter, r *http.Request) {
	file, err := s.readUpload(w, r)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}

	importID, err := s.service.StartImport(r.Context(), file)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}

	logging.FromContext(r.Context()).Info("import accepted",
		"import_id", importID,
		"file", file.Name,
		"size", file.Size,
	)
	writeJSON(w, http.StatusAccepted, map[string]string{"import_id": importID})
}

// handleImportSync runs the import within the request and returns the
// result as JSON, or as a summary fragment for HTMX.
func (s *Server) handleImportSync(w http.ResponseWriter, r *http.Request) {
	file, err := s.readUpload(w, r)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	defer closeUpload(r, file)

	result, err := s.service.ImportFromCSV(r.Context(), file, nil)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}

	s.writeResult(w, r, result)
}

// handleImportProgress streams import progress via Server-Sent Events.
// Supports resumption via the Last-Event-ID header or lastEventId query
// parameter; the event id is the progress percentage.
func (s *Server) handleImportProgress(w http.ResponseWriter, r *http.Request) {
	importID := chi.URLParam(r, "importID")

	lastEventIDStr := r.Header.Get("Last-Event-ID")
	if lastEventIDStr == "" {
		lastEventIDStr = r.URL.Query().Get("lastEventId")
	}
	lastEventID := -1
	if lastEventIDStr != "" {
		if n, err := strconv.Atoi(lastEventIDStr); err == nil {
			lastEventID = n
		}
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, r, errors.New("streaming not supported"), http.StatusInternalServerError)
		return
	}

	progressCh, err := s.service.SubscribeProgress(importID)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case progress, ok := <-progressCh:
			if !ok {
				s.writeFinalEvent(w, r, importID)
				flusher.Flush()
				return
			}

			// Skip what a reconnecting client already saw, but always
			// deliver terminal phases.
			terminal := progress.Phase == core.PhaseCompleted || progress.Phase == core.PhaseFailed
			if progress.Percent <= lastEventID && !terminal {
				continue
			}
			lastEventID = progress.Percent

			data, _ := json.Marshal(progress)
			fmt.Fprintf(w, "id: %d\nevent: progress\ndata: %s\n\n", progress.Percent, data)
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

// writeFinalEvent sends the result as a "complete" event, or the error
// as a "failed" event.
func (s *Server) writeFinalEvent(w http.ResponseWriter, r *http.Request, importID string) {
	result, err := s.service.GetResult(r.Context(), importID)
	if err != nil {
		msg := core.MapError(err)
		data, _ := json.Marshal(ErrorResponse{Error: msg.Message, Message: msg.Message, Action: msg.Action, Code: msg.Code})
		fmt.Fprintf(w, "event: failed\ndata: %s\n\n", data)
		return
	}
	data, _ := json.Marshal(result)
	fmt.Fprintf(w, "event: complete\ndata: %s\n\n", data)
}

// handleGetProgress returns a progress snapshot.
func (s *Server) handleGetProgress(w http.ResponseWriter, r *http.Request) {
	progress, err := s.service.GetProgress(chi.URLParam(r, "importID"))
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

// handleImportResult returns the final result. While the run is still
// going it answers 202 with the current progress, unless ?wait=true.
func (s *Server) handleImportResult(w http.ResponseWriter, r *http.Request) {
	importID := chi.URLParam(r, "importID")

	progress, err := s.service.GetProgress(importID)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}

	done := progress.Phase == core.PhaseCompleted || progress.Phase == core.PhaseFailed
	if !done && r.URL.Query().Get("wait") != "true" {
		writeJSON(w, http.StatusAccepted, progress)
		return
	}

	result, err := s.service.GetResult(r.Context(), importID)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}

	s.writeResult(w, r, result)
}

// handleCancelImport cancels an in-progress import.
func (s *Server) handleCancelImport(w http.ResponseWriter, r *http.Request) {
	importID := chi.URLParam(r, "importID")

	if err := s.service.CancelImport(importID); err != nil {
		respondError(w, r, err, 0)
		return
	}

	logging.FromContext(r.Context()).Info("import cancel requested", "import_id", importID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// handleImportStatus reports import slot usage.
func (s *Server) handleImportStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.ImportLimiterStatus())
}

func (s *Server) handleListTags(w http.ResponseWriter, r *http.Request) {
	tags, err := s.service.ListTags(r.Context())
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, tags)
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.service.ListProjects(r.Context())
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"imports": s.service.ImportLimiterStatus(),
	})
}

// writeResult renders a finished import.
func (s *Server) writeResult(w http.ResponseWriter, r *http.Request, result *core.ImportResult) {
	if isHTMX(r) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := templates.ImportSummary(result).Render(r.Context(), w); err != nil {
			logging.FromContext(r.Context()).Error("render import summary", "error", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func closeUpload(r *http.Request, file core.ImportFile) {
	if c, ok := file.Reader.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			logging.FromContext(r.Context()).Warn("close upload", "error", err)
		}
	}
}
