package handlers

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"heic-to-jpg/internal/batch"
	"heic-to-jpg/internal/codec"
	"heic-to-jpg/internal/results"
	"heic-to-jpg/internal/startup"
	"heic-to-jpg/internal/worker"

	"github.com/gorilla/mux"
)

// fakeDecoder fails on sources starting with "bad".
type fakeDecoder struct{}

func (fakeDecoder) Decode(src []byte) (*codec.Pixels, error) {
	if bytes.HasPrefix(src, []byte("bad")) {
		return nil, errors.New("not an image")
	}
	return &codec.Pixels{Width: 1, Height: 1, RGBA: make([]byte, 4)}, nil
}

// fakeEncoder records qualities and emits a minimal JPEG.
type fakeEncoder struct {
	mu        sync.Mutex
	qualities []float64
}

func (e *fakeEncoder) Encode(_ *codec.Pixels, quality float64) ([]byte, error) {
	e.mu.Lock()
	e.qualities = append(e.qualities, quality)
	e.mu.Unlock()
	return []byte{0xFF, 0xD8, 0xFF, 0xDA, 0x00, 0x02, 0xFF, 0xD9}, nil
}

func (e *fakeEncoder) last() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.qualities) == 0 {
		return -1
	}
	return e.qualities[len(e.qualities)-1]
}

type testEnv struct {
	h   *Handlers
	enc *fakeEncoder
}

func newTestEnv(t *testing.T, runtimeCheck func() error) *testEnv {
	t.Helper()
	enc := &fakeEncoder{}
	conv := &worker.Converter{Decoder: fakeDecoder{}, Encoder: enc}
	ctrl := batch.New(batch.Options{Converter: conv, Encoder: enc})
	t.Cleanup(ctrl.Close)

	config := &startup.Config{ArchiveName: "out.zip", MaxUploadBytes: 1 << 20}
	single := &worker.Converter{Decoder: fakeDecoder{}, Encoder: enc}
	return &testEnv{h: New(ctrl, single, runtimeCheck, config), enc: enc}
}

type upload struct {
	field string
	name  string
	data  string
}

func multipartRequest(t *testing.T, method, target string, uploads []upload, values map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, u := range uploads {
		fw, err := mw.CreateFormFile(u.field, u.name)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write([]byte(u.data))
	}
	for k, v := range values {
		mw.WriteField(k, v)
	}
	mw.Close()

	req := httptest.NewRequest(method, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func withID(r *http.Request, key, value string) *http.Request {
	return mux.SetURLVars(r, map[string]string{key: value})
}

func TestConvert(t *testing.T) {
	env := newTestEnv(t, nil)

	req := multipartRequest(t, "POST", "/api/convert", []upload{{"file", "IMG_0001.HEIC", "heic"}}, nil)
	w := httptest.NewRecorder()
	env.h.Convert(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (%s)", w.Code, w.Body.String())
	}
	headers := map[string]string{
		"Content-Type":                "image/jpeg",
		"Content-Disposition":         `inline; filename="IMG_0001.jpg"`,
		"Cache-Control":               "no-store",
		"Access-Control-Allow-Origin": "*",
	}
	for k, want := range headers {
		if got := w.Header().Get(k); got != want {
			t.Errorf("%s = %q, want %q", k, got, want)
		}
	}
	if !bytes.HasPrefix(w.Body.Bytes(), []byte{0xFF, 0xD8}) {
		t.Error("body is not a JPEG")
	}
	if q := env.enc.last(); q != 0.9 {
		t.Errorf("default quality = %v, want 0.9", q)
	}
}

func TestConvertQuality(t *testing.T) {
	env := newTestEnv(t, nil)

	req := multipartRequest(t, "POST", "/api/convert", []upload{{"file", "a.heic", "heic"}},
		map[string]string{"quality": "0.4"})
	w := httptest.NewRecorder()
	env.h.Convert(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if q := env.enc.last(); q != 0.4 {
		t.Errorf("quality = %v, want 0.4", q)
	}
}

func TestConvertErrors(t *testing.T) {
	tests := []struct {
		name    string
		req     func(t *testing.T) *http.Request
		runtime error
		status  int
		message string
		details bool
	}{
		{
			name: "not multipart",
			req: func(_ *testing.T) *http.Request {
				r := httptest.NewRequest("POST", "/api/convert", strings.NewReader(`{}`))
				r.Header.Set("Content-Type", "application/json")
				return r
			},
			status:  http.StatusBadRequest,
			message: "Expected multipart/form-data",
		},
		{
			name: "missing file",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "POST", "/api/convert", nil, map[string]string{"quality": "0.5"})
			},
			status:  http.StatusBadRequest,
			message: "Missing file field",
		},
		{
			name: "decode failure",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "POST", "/api/convert", []upload{{"file", "x.heic", "bad data"}}, nil)
			},
			status:  http.StatusUnprocessableEntity,
			message: "Failed to decode HEIC/HEIF image",
			details: true,
		},
		{
			name: "runtime unavailable",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "POST", "/api/convert", []upload{{"file", "x.heic", "heic"}}, nil)
			},
			runtime: errors.New("libheif missing"),
			status:  http.StatusInternalServerError,
			message: "Unexpected server error",
			details: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var check func() error
			if tt.runtime != nil {
				check = func() error { return tt.runtime }
			}
			env := newTestEnv(t, check)

			w := httptest.NewRecorder()
			env.h.Convert(w, tt.req(t))

			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d", w.Code, tt.status)
			}
			body := decodeError(t, w)
			if body["error"] != tt.message {
				t.Errorf("error = %q, want %q", body["error"], tt.message)
			}
			if tt.details && body["details"] == "" {
				t.Error("details missing")
			}
		})
	}
}

func TestConvertOptions(t *testing.T) {
	env := newTestEnv(t, nil)
	w := httptest.NewRecorder()
	env.h.ConvertOptions(w, httptest.NewRequest("OPTIONS", "/api/convert", http.NoBody))

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Methods") == "" {
		t.Error("CORS methods header missing")
	}
}

// addAndConvert uploads files and waits until none is pending.
func addAndConvert(t *testing.T, env *testEnv, uploads ...upload) batch.AddResult {
	t.Helper()
	w := httptest.NewRecorder()
	env.h.AddFiles(w, multipartRequest(t, "POST", "/api/files", uploads, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("AddFiles status = %d (%s)", w.Code, w.Body.String())
	}
	var res batch.AddResult
	if err := json.NewDecoder(w.Body).Decode(&res); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "batch to finish", func() bool {
		s := env.h.batch.Stats()
		return s.Pending == 0 && s.Processing == 0 && !env.h.batch.Processing()
	})
	return res
}

func TestBatchFlow(t *testing.T) {
	env := newTestEnv(t, nil)

	res := addAndConvert(t, env,
		upload{"files", "one.heic", "heic"},
		upload{"files", "notes.txt", "text"},
		upload{"files", "two.HEIF", "bad bytes"},
	)
	if len(res.Added) != 2 || res.Skipped != 1 {
		t.Fatalf("added %d skipped %d, want 2 and 1", len(res.Added), res.Skipped)
	}
	if res.Message != "Queued 2 (skipped 1)." {
		t.Errorf("message = %q", res.Message)
	}

	// Status
	w := httptest.NewRecorder()
	env.h.GetStatus(w, httptest.NewRequest("GET", "/api/status", http.NoBody))
	var status StatusResponse
	if err := json.NewDecoder(w.Body).Decode(&status); err != nil {
		t.Fatal(err)
	}
	if status.Stats.Success != 1 || status.Stats.Failed != 1 {
		t.Errorf("stats = %+v, want 1 success and 1 failure", status.Stats)
	}
	if !strings.HasPrefix(status.Text, "Done: 1 converted, 1 failed.") {
		t.Errorf("status text = %q", status.Text)
	}

	okID, badID := res.Added[0].ID, res.Added[1].ID

	// Download
	w = httptest.NewRecorder()
	env.h.DownloadFile(w, withID(httptest.NewRequest("GET", "/", http.NoBody), "id", okID))
	if w.Code != http.StatusOK {
		t.Fatalf("download status = %d", w.Code)
	}
	if cd := w.Header().Get("Content-Disposition"); cd != `attachment; filename="one.jpg"` {
		t.Errorf("Content-Disposition = %q", cd)
	}

	w = httptest.NewRecorder()
	env.h.DownloadFile(w, withID(httptest.NewRequest("GET", "/", http.NoBody), "id", badID))
	if w.Code != http.StatusConflict {
		t.Errorf("failed item download status = %d, want 409", w.Code)
	}

	w = httptest.NewRecorder()
	env.h.DownloadFile(w, withID(httptest.NewRequest("GET", "/", http.NoBody), "id", "missing"))
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown item download status = %d, want 404", w.Code)
	}

	// Object URL
	item, _ := env.h.batch.Item(okID)
	token := results.Token(item.ObjectURL)
	w = httptest.NewRecorder()
	env.h.ServeObjectURL(w, withID(httptest.NewRequest("GET", "/", http.NoBody), "token", token))
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "image/jpeg" {
		t.Fatalf("object URL status = %d, type %q", w.Code, w.Header().Get("Content-Type"))
	}

	// Archive
	w = httptest.NewRecorder()
	env.h.DownloadArchive(w, httptest.NewRequest("GET", "/api/archive", http.NoBody))
	if w.Code != http.StatusOK {
		t.Fatalf("archive status = %d (%s)", w.Code, w.Body.String())
	}
	zr, err := zip.NewReader(bytes.NewReader(w.Body.Bytes()), int64(w.Body.Len()))
	if err != nil {
		t.Fatalf("archive is not a zip: %v", err)
	}
	if len(zr.File) != 1 || zr.File[0].Name != "one.jpg" {
		t.Errorf("archive entries = %d, want one.jpg only", len(zr.File))
	}

	// Reset revokes the object URL
	w = httptest.NewRecorder()
	env.h.Reset(w, httptest.NewRequest("POST", "/api/reset", http.NoBody))
	if w.Code != http.StatusOK {
		t.Fatalf("reset status = %d", w.Code)
	}
	w = httptest.NewRecorder()
	env.h.ServeObjectURL(w, withID(httptest.NewRequest("GET", "/", http.NoBody), "token", token))
	if w.Code != http.StatusNotFound {
		t.Errorf("revoked object URL status = %d, want 404", w.Code)
	}
}

func TestAddFilesNotMultipart(t *testing.T) {
	env := newTestEnv(t, nil)
	w := httptest.NewRecorder()
	env.h.AddFiles(w, httptest.NewRequest("POST", "/api/files", strings.NewReader("x")))
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestArchiveEmpty(t *testing.T) {
	env := newTestEnv(t, nil)
	w := httptest.NewRecorder()
	env.h.DownloadArchive(w, httptest.NewRequest("GET", "/api/archive", http.NoBody))
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}

func TestOverride(t *testing.T) {
	env := newTestEnv(t, nil)
	res := addAndConvert(t, env, upload{"files", "one.heic", "heic"})
	id := res.Added[0].ID

	w := httptest.NewRecorder()
	req := withID(httptest.NewRequest("PUT", "/", strings.NewReader(`{"quality":0.3}`)), "id", id)
	env.h.SetOverride(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("override status = %d (%s)", w.Code, w.Body.String())
	}
	var updated batch.Item
	if err := json.NewDecoder(w.Body).Decode(&updated); err != nil {
		t.Fatal(err)
	}
	if updated.Override == nil || updated.Override.Quality != 0.3 || !updated.Override.KeepMetadata {
		t.Errorf("override = %+v, want quality 0.3 with global keepMetadata", updated.Override)
	}

	waitFor(t, "re-conversion", func() bool {
		it, _ := env.h.batch.Item(id)
		return it.Status == batch.StatusDone && env.enc.last() == 0.3
	})

	w = httptest.NewRecorder()
	env.h.ClearOverride(w, withID(httptest.NewRequest("DELETE", "/", http.NoBody), "id", id))
	if w.Code != http.StatusOK {
		t.Fatalf("clear status = %d", w.Code)
	}
	if it, _ := env.h.batch.Item(id); it.Override != nil || it.Status != batch.StatusDone {
		t.Errorf("after clear: override %v status %s", it.Override, it.Status)
	}

	w = httptest.NewRecorder()
	env.h.SetOverride(w, withID(httptest.NewRequest("PUT", "/", strings.NewReader(`{}`)), "id", "missing"))
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown item override status = %d, want 404", w.Code)
	}

	w = httptest.NewRecorder()
	env.h.SetOverride(w, withID(httptest.NewRequest("PUT", "/", strings.NewReader(`{`)), "id", id))
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad body override status = %d, want 400", w.Code)
	}
}

func TestSettings(t *testing.T) {
	env := newTestEnv(t, nil)

	w := httptest.NewRecorder()
	env.h.UpdateSettings(w, httptest.NewRequest("PUT", "/api/settings", strings.NewReader(`{"keepMetadata":false}`)))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	w = httptest.NewRecorder()
	env.h.GetSettings(w, httptest.NewRequest("GET", "/api/settings", http.NoBody))
	var s worker.Settings
	if err := json.NewDecoder(w.Body).Decode(&s); err != nil {
		t.Fatal(err)
	}
	if s.KeepMetadata || s.Quality != worker.DefaultQuality {
		t.Errorf("settings = %+v, want keepMetadata off and default quality", s)
	}

	w = httptest.NewRecorder()
	env.h.UpdateSettings(w, httptest.NewRequest("PUT", "/api/settings", strings.NewReader(`{"quality":4}`)))
	json.NewDecoder(w.Body).Decode(&s)
	if s.Quality != 1 {
		t.Errorf("quality = %v, want clamped to 1", s.Quality)
	}
}

func TestHealthAndReadiness(t *testing.T) {
	tests := []struct {
		name        string
		runtimeErr  error
		readyStatus int
		health      string
	}{
		{name: "runtime available", readyStatus: http.StatusOK, health: statusHealthy},
		{name: "runtime missing", runtimeErr: errors.New("no libvips"), readyStatus: http.StatusServiceUnavailable, health: statusDegraded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, func() error { return tt.runtimeErr })

			w := httptest.NewRecorder()
			env.h.ReadinessCheck(w, httptest.NewRequest("GET", "/readyz", http.NoBody))
			if w.Code != tt.readyStatus {
				t.Errorf("readiness status = %d, want %d", w.Code, tt.readyStatus)
			}

			w = httptest.NewRecorder()
			env.h.HealthCheck(w, httptest.NewRequest("GET", "/health", http.NoBody))
			var resp HealthResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatal(err)
			}
			if resp.Status != tt.health {
				t.Errorf("health status = %q, want %q", resp.Status, tt.health)
			}
		})
	}
}

func TestLivenessCheck(t *testing.T) {
	env := newTestEnv(t, nil)

	w := httptest.NewRecorder()
	env.h.LivenessCheck(w, httptest.NewRequest("HEAD", "/livez", http.NoBody))
	if w.Code != http.StatusOK || w.Body.Len() != 0 {
		t.Errorf("HEAD livez: status %d, %d body bytes", w.Code, w.Body.Len())
	}
}

func TestGetVersion(t *testing.T) {
	env := newTestEnv(t, nil)

	w := httptest.NewRecorder()
	env.h.GetVersion(w, httptest.NewRequest("GET", "/version", http.NoBody))
	var info startup.BuildInfo
	if err := json.NewDecoder(w.Body).Decode(&info); err != nil {
		t.Fatal(err)
	}
	if info.Version != startup.Version {
		t.Errorf("version = %q, want %q", info.Version, startup.Version)
	}
}
