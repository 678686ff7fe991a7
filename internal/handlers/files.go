package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"heic-to-jpg/internal/batch"
	"heic-to-jpg/internal/logging"
	"heic-to-jpg/internal/results"
	"heic-to-jpg/internal/worker"

	"github.com/gorilla/mux"
)

// SettingsRequest is a partial update of conversion settings. Omitted
// fields keep their current value.
type SettingsRequest struct {
	Quality      *float64 `json:"quality,omitempty"`
	KeepMetadata *bool    `json:"keepMetadata,omitempty"`
}

func (req SettingsRequest) apply(s worker.Settings) worker.Settings {
	if req.Quality != nil {
		s.Quality = *req.Quality
	}
	if req.KeepMetadata != nil {
		s.KeepMetadata = *req.KeepMetadata
	}
	return s.Clamp()
}

// StatusResponse is the batch summary.
type StatusResponse struct {
	Text       string          `json:"text"`
	Processing bool            `json:"processing"`
	Stats      batch.Stats     `json:"stats"`
	TotalSize  string          `json:"totalSize"`
	Settings   worker.Settings `json:"settings"`
	Notice     *batch.Notice   `json:"notice,omitempty"`
}

// AddFiles queues the multipart "files" field. Files that are not
// HEIC/HEIF are counted as skipped.
func (h *Handlers) AddFiles(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSONError(w, "Upload too large", http.StatusRequestEntityTooLarge)
			return
		}
		writeJSONError(w, "Expected multipart/form-data", http.StatusBadRequest)
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			logging.Debug("failed to remove multipart temp files: %v", err)
		}
	}()

	headers := r.MultipartForm.File["files"]
	sources := make([]batch.Source, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			writeJSONError(w, "Failed to read upload", http.StatusBadRequest)
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			writeJSONError(w, "Failed to read upload", http.StatusBadRequest)
			return
		}
		sources = append(sources, batch.NewBytesSource(fh.Filename, fh.Header.Get("Content-Type"), data))
	}

	res := h.batch.AddFiles(sources...)
	if len(res.Added) > 0 {
		h.batch.Kick()
	}
	writeJSONStatusCode(w, res, http.StatusOK)
}

// ListFiles returns every item in insertion order.
func (h *Handlers) ListFiles(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, h.batch.Items())
}

// GetFile returns one item.
func (h *Handlers) GetFile(w http.ResponseWriter, r *http.Request) {
	it, ok := h.batch.Item(mux.Vars(r)["id"])
	if !ok {
		writeJSONError(w, "File not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, it)
}

// DownloadFile sends a converted item as an attachment.
func (h *Handlers) DownloadFile(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	data, it, ok := h.batch.Result(id)
	if !ok {
		if _, exists := h.batch.Item(id); exists {
			writeJSONError(w, "File has not been converted", http.StatusConflict)
			return
		}
		writeJSONError(w, "File not found", http.StatusNotFound)
		return
	}
	sendAttachment(w, data, results.ContentTypeJPEG, it.OutputName)
}

// SetOverride applies per-item settings. Fields not given fall back to the
// item's current override, then to the global settings.
func (h *Handlers) SetOverride(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	it, ok := h.batch.Item(id)
	if !ok {
		writeJSONError(w, "File not found", http.StatusNotFound)
		return
	}

	var req SettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	base := h.batch.GlobalSettings()
	if it.Override != nil {
		base = *it.Override
	}

	updated, err := h.batch.ApplyOverride(id, req.apply(base))
	if errors.Is(err, batch.ErrNotFound) {
		writeJSONError(w, "File not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, updated)
}

// ClearOverride removes per-item settings without re-running the item.
func (h *Handlers) ClearOverride(w http.ResponseWriter, r *http.Request) {
	updated, err := h.batch.ClearOverride(mux.Vars(r)["id"])
	if errors.Is(err, batch.ErrNotFound) {
		writeJSONError(w, "File not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, updated)
}

// GetSettings returns the global settings.
func (h *Handlers) GetSettings(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, h.batch.GlobalSettings())
}

// UpdateSettings changes the global settings. Items already converted are
// not affected.
func (h *Handlers) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req SettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	s := h.batch.SetGlobalSettings(req.apply(h.batch.GlobalSettings()))
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, s)
}

// Reset clears the batch.
func (h *Handlers) Reset(w http.ResponseWriter, _ *http.Request) {
	h.batch.Reset()
	writeJSONStatus(w, "reset")
}

// GetStatus returns counts, the status line and the latest notice.
func (h *Handlers) GetStatus(w http.ResponseWriter, _ *http.Request) {
	stats := h.batch.Stats()
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, StatusResponse{
		Text:       h.batch.StatusText(),
		Processing: h.batch.Processing(),
		Stats:      stats,
		TotalSize:  batch.FormatBytes(stats.TotalBytes),
		Settings:   h.batch.GlobalSettings(),
		Notice:     h.batch.Notice(),
	})
}

// DownloadArchive sends a ZIP of every converted item.
func (h *Handlers) DownloadArchive(w http.ResponseWriter, _ *http.Request) {
	data, err := h.batch.Archive()
	switch {
	case errors.Is(err, batch.ErrBusy):
		writeJSONError(w, "Batch is still processing", http.StatusConflict)
		return
	case errors.Is(err, batch.ErrEmpty):
		writeJSONError(w, "No converted files", http.StatusConflict)
		return
	case err != nil:
		writeJSONErrorDetails(w, "ZIP generation failed", err.Error(), http.StatusInternalServerError)
		return
	}
	sendAttachment(w, data, "application/zip", h.archiveName)
}

// ServeObjectURL serves the bytes behind a live object URL.
func (h *Handlers) ServeObjectURL(w http.ResponseWriter, r *http.Request) {
	data, contentType, ok := h.batch.Lookup(results.URLFromToken(mux.Vars(r)["token"]))
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "no-store")
	if _, err := w.Write(data); err != nil {
		logging.Debug("failed to write object URL response: %v", err)
	}
}

func sendAttachment(w http.ResponseWriter, data []byte, contentType, filename string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", contentDisposition("attachment", filename))
	if _, err := w.Write(data); err != nil {
		logging.Debug("failed to write %s: %v", filename, err)
	}
}

var quoteEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// contentDisposition formats a Content-Disposition value with a quoted
// filename.
func contentDisposition(kind, filename string) string {
	return kind + `; filename="` + quoteEscaper.Replace(filename) + `"`
}
