package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"heic-to-jpg/internal/batch"
	"heic-to-jpg/internal/logging"
	"heic-to-jpg/internal/metrics"
	"heic-to-jpg/internal/worker"
)

// singleShotQuality is the JPEG quality of /api/convert when the request
// gives none.
const singleShotQuality = 0.9

func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// ConvertOptions answers the CORS preflight for /api/convert.
func (h *Handlers) ConvertOptions(w http.ResponseWriter, _ *http.Request) {
	setCORSHeaders(w)
	w.WriteHeader(http.StatusNoContent)
}

// Convert turns the multipart field "file" into a JPEG and returns it
// inline. Optional form values: quality (0..1, default 0.9) and
// keepMetadata (default false).
func (h *Handlers) Convert(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	start := time.Now()

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

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSONError(w, "Missing file field", http.StatusBadRequest)
		return
	}
	src, err := io.ReadAll(file)
	file.Close()
	if err != nil {
		writeJSONErrorDetails(w, "Unexpected server error", err.Error(), http.StatusInternalServerError)
		return
	}

	settings := worker.Settings{Quality: singleShotQuality}
	if v := r.FormValue("quality"); v != "" {
		if q, err := strconv.ParseFloat(v, 64); err == nil {
			settings.Quality = q
		}
	}
	if v := r.FormValue("keepMetadata"); v != "" {
		if keep, err := strconv.ParseBool(v); err == nil {
			settings.KeepMetadata = keep
		}
	}

	if err := h.runtimeErr(); err != nil {
		h.convertFailed(w, "Unexpected server error", err, http.StatusInternalServerError, start)
		return
	}

	metrics.ConversionBytes.WithLabelValues("in").Add(float64(len(src)))
	res := h.converter.Convert(src, settings)
	switch {
	case errors.Is(res.Err, worker.ErrDecode):
		h.convertFailed(w, "Failed to decode HEIC/HEIF image", res.Err, http.StatusUnprocessableEntity, start)
		return
	case res.Err != nil:
		h.convertFailed(w, "Unexpected server error", res.Err, http.StatusInternalServerError, start)
		return
	case res.Output == nil:
		h.convertFailed(w, "Unexpected server error", errors.New("no encoder configured"), http.StatusInternalServerError, start)
		return
	}

	metrics.ConversionDuration.WithLabelValues("single").Observe(time.Since(start).Seconds())
	metrics.ConversionsTotal.WithLabelValues("single", "success").Inc()
	metrics.ConversionBytes.WithLabelValues("out").Add(float64(len(res.Output)))

	name := batch.ToJPGName(header.Filename)
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Output)))
	w.Header().Set("Content-Disposition", contentDisposition("inline", name))
	w.Header().Set("Cache-Control", "no-store")
	if _, err := w.Write(res.Output); err != nil {
		logging.Debug("failed to write converted image: %v", err)
	}
	logging.Debug("Converted %s (%d -> %d bytes) in %v", name, len(src), len(res.Output), time.Since(start))
}

func (h *Handlers) convertFailed(w http.ResponseWriter, message string, err error, status int, start time.Time) {
	metrics.ConversionDuration.WithLabelValues("single").Observe(time.Since(start).Seconds())
	metrics.ConversionsTotal.WithLabelValues("single", "error").Inc()
	logging.Warn("Single-shot conversion failed: %v", err)
	writeJSONErrorDetails(w, message, err.Error(), status)
}
