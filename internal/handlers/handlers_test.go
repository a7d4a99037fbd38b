package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/example/ytfetch/internal/downloader"
	"github.com/example/ytfetch/internal/models"
	"github.com/example/ytfetch/internal/storage"
	"github.com/example/ytfetch/internal/thumbnail"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeEngine struct {
	info        *models.MediaInfo
	extractErr  error
	downloadErr error
}

func (f *fakeEngine) Extract(ctx context.Context, url string) (*models.MediaInfo, error) {
	if f.extractErr != nil {
		return nil, f.extractErr
	}
	return f.info, nil
}

func (f *fakeEngine) Download(ctx context.Context, url string, opts downloader.DownloadOptions) error {
	if f.downloadErr != nil {
		return f.downloadErr
	}
	ext := "mp4"
	if opts.Format == downloader.AudioSelector {
		ext = "webm"
	}
	if opts.Progress != nil {
		opts.Progress(100)
	}
	return os.WriteFile(strings.Replace(opts.OutputTemplate, "%(ext)s", ext, 1), []byte("media:"+url), 0644)
}

type fakeTranscoder struct{}

func (fakeTranscoder) ToMP3(ctx context.Context, src, dst, bitrate string) error {
	return os.WriteFile(dst, []byte("mp3@"+bitrate), 0644)
}

func (fakeTranscoder) ToMP4(ctx context.Context, src, dst string) error {
	return os.WriteFile(dst, []byte("mp4"), 0644)
}

type testEnv struct {
	router *gin.Engine
	store  *storage.Store
	hub    *Hub
	engine *fakeEngine
}

func newTestEnv(t *testing.T, inline bool) *testEnv {
	t.Helper()

	img := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.jpg" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("jpeg"))
	}))
	t.Cleanup(img.Close)

	store, err := storage.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	engine := &fakeEngine{info: &models.MediaInfo{
		ID:        "dQw4w9WgXcQ",
		Title:     "Clip",
		Duration:  212,
		Thumbnail: img.URL + "/hq.jpg",
	}}
	fetcher := downloader.NewFetcher(engine, fakeTranscoder{})
	hub := NewHub()

	h := New(Options{
		Fetcher:    fetcher,
		Thumbnails: thumbnail.NewFetcher(fetcher, time.Second),
		Store:      store,
		Hub:        hub,
		Inline:     inline,
	})

	return &testEnv{
		router: NewRouter(h, nil),
		store:  store,
		hub:    hub,
		engine: engine,
	}
}

func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("invalid JSON body %q: %v", w.Body.String(), err)
	}
	return out
}

func TestGetFormats(t *testing.T) {
	env := newTestEnv(t, false)

	t.Run("audio", func(t *testing.T) {
		w := env.do(http.MethodPost, "/get-formats", `{"url":"https://youtu.be/abc","content_type":"audio"}`)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", w.Code, w.Body)
		}
		body := decode(t, w)
		if body["content_type"] != "audio" {
			t.Errorf("content_type = %v", body["content_type"])
		}
		formats := body["formats"].(map[string]any)
		if len(formats) != 1 {
			t.Fatalf("formats = %v, want exactly one entry", formats)
		}
		entry, ok := formats["bestaudio/best"].(map[string]any)
		if !ok || entry["quality"] != "Best Available Audio" {
			t.Errorf("unexpected formats %v", formats)
		}
	})

	t.Run("video default", func(t *testing.T) {
		w := env.do(http.MethodPost, "/get-formats", `{"url":"https://youtu.be/abc"}`)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", w.Code, w.Body)
		}
		if !strings.Contains(w.Body.String(), `"formats":{}`) {
			t.Errorf("expected empty formats object, got %s", w.Body)
		}
		body := decode(t, w)
		if body["content_type"] != "video" || body["title"] != "Clip" || body["duration"] != 212.0 {
			t.Errorf("unexpected body %v", body)
		}
	})
}

func TestGetFormatsEngineFailure(t *testing.T) {
	env := newTestEnv(t, false)
	env.engine.extractErr = errors.New("Unsupported URL")

	w := env.do(http.MethodPost, "/get-formats", `{"url":"https://example.com"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if got := decode(t, w)["error"]; got != "Unsupported URL" {
		t.Errorf("error = %v", got)
	}
}

func TestValidation(t *testing.T) {
	env := newTestEnv(t, false)

	tests := []struct {
		name    string
		path    string
		body    string
		wantMsg string
	}{
		{"formats empty url", "/get-formats", `{"url":"","content_type":"audio"}`, "URL is required"},
		{"formats blank url", "/get-formats", `{"url":"   "}`, "URL is required"},
		{"formats bad type", "/get-formats", `{"url":"https://youtu.be/abc","content_type":"gif"}`, "Invalid content_type"},
		{"download empty url", "/download", `{"content_type":"video"}`, "URL is required"},
		{"download bad type", "/download", `{"url":"https://youtu.be/abc","content_type":"podcast"}`, "Invalid content_type"},
		{"thumbnail empty url", "/download-thumbnail", `{"title":"x"}`, "URL is required"},
		{"malformed json", "/download", `{"url":`, "Invalid request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(http.MethodPost, tt.path, tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400 (body %s)", w.Code, w.Body)
			}
			if got := decode(t, w)["error"]; got != tt.wantMsg {
				t.Errorf("error = %v, want %q", got, tt.wantMsg)
			}
		})
	}
}

func TestMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t, false)

	for _, path := range []string{"/get-formats", "/download", "/download-thumbnail"} {
		for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
			w := env.do(method, path, "")
			if w.Code != http.StatusMethodNotAllowed {
				t.Errorf("%s %s status = %d, want 405", method, path, w.Code)
				continue
			}
			if got := decode(t, w)["error"]; got != "Method not allowed" {
				t.Errorf("%s %s error = %v", method, path, got)
			}
		}
	}
}

func TestNotFoundRoute(t *testing.T) {
	env := newTestEnv(t, false)

	w := env.do(http.MethodGet, "/nope", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	if got := decode(t, w)["error"]; got != "Not found" {
		t.Errorf("error = %v", got)
	}
}

func TestDownloadPersistAndRetrieve(t *testing.T) {
	env := newTestEnv(t, false)

	w := env.do(http.MethodPost, "/download", `{"url":"https://youtu.be/abc","content_type":"audio"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body)
	}
	body := decode(t, w)
	if body["success"] != true || body["message"] != "Download completed" || body["filename"] != "Clip.mp3" {
		t.Fatalf("unexpected body %v", body)
	}

	w = env.do(http.MethodGet, "/download-file/Clip.mp3", "")
	if w.Code != http.StatusOK {
		t.Fatalf("download-file status = %d", w.Code)
	}
	if w.Body.String() != "mp3@192k" {
		t.Errorf("file body = %q", w.Body)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.HasPrefix(cd, "attachment") {
		t.Errorf("Content-Disposition = %q", cd)
	}
}

func TestDownloadSameTitleOverwrites(t *testing.T) {
	env := newTestEnv(t, false)

	for _, url := range []string{"https://youtu.be/aaaaaaaaaaa", "https://youtu.be/bbbbbbbbbbb"} {
		w := env.do(http.MethodPost, "/download", `{"url":"`+url+`"}`)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", w.Code, w.Body)
		}
	}

	data, err := os.ReadFile(filepath.Join(env.store.Dir(), "Clip.mp4"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "media:https://youtu.be/bbbbbbbbbbb" {
		t.Errorf("content = %q, want the second download", data)
	}
}

func TestDownloadFileNotFound(t *testing.T) {
	env := newTestEnv(t, false)

	for _, name := range []string{"never-written.mp4", ".."} {
		w := env.do(http.MethodGet, "/download-file/"+name, "")
		if w.Code != http.StatusNotFound {
			t.Errorf("%s status = %d, want 404", name, w.Code)
			continue
		}
		if got := decode(t, w)["error"]; got != "File not found" {
			t.Errorf("error = %v", got)
		}
	}
}

func TestDownloadEngineFailure(t *testing.T) {
	env := newTestEnv(t, false)
	env.engine.downloadErr = errors.New("HTTP Error 403: Forbidden")

	w := env.do(http.MethodPost, "/download", `{"url":"https://youtu.be/abc"}`)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	body := decode(t, w)
	if body["success"] != false {
		t.Errorf("success = %v", body["success"])
	}
	if !strings.Contains(body["error"].(string), "HTTP Error 403") {
		t.Errorf("error = %v", body["error"])
	}
}

func TestDownloadInline(t *testing.T) {
	env := newTestEnv(t, true)

	w := env.do(http.MethodPost, "/download", `{"url":"https://youtu.be/abc","content_type":"audio"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body)
	}
	if ct := w.Header().Get("Content-Type"); ct != "audio/mpeg" {
		t.Errorf("Content-Type = %q", ct)
	}
	if te := w.Header().Get("Content-Transfer-Encoding"); te != "base64" {
		t.Errorf("Content-Transfer-Encoding = %q", te)
	}
	if cd := w.Header().Get("Content-Disposition"); cd != `attachment; filename="Clip.mp3"` {
		t.Errorf("Content-Disposition = %q", cd)
	}

	data, err := base64.StdEncoding.DecodeString(w.Body.String())
	if err != nil {
		t.Fatalf("body is not base64: %v", err)
	}
	if string(data) != "mp3@192k" {
		t.Errorf("decoded body = %q", data)
	}

	entries, _ := os.ReadDir(env.store.Dir())
	if len(entries) != 0 {
		t.Errorf("inline mode should not persist files, found %d", len(entries))
	}
}

func TestDownloadThumbnail(t *testing.T) {
	t.Run("persist", func(t *testing.T) {
		env := newTestEnv(t, false)
		w := env.do(http.MethodPost, "/download-thumbnail", `{"url":"https://youtu.be/abc","title":"Cover"}`)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", w.Code, w.Body)
		}
		body := decode(t, w)
		if body["success"] != true || body["filename"] != "Cover.jpg" {
			t.Errorf("unexpected body %v", body)
		}
		data, _ := os.ReadFile(filepath.Join(env.store.Dir(), "Cover.jpg"))
		if string(data) != "jpeg" {
			t.Errorf("saved = %q", data)
		}
	})

	t.Run("inline", func(t *testing.T) {
		env := newTestEnv(t, true)
		w := env.do(http.MethodPost, "/download-thumbnail", `{"url":"https://youtu.be/abc"}`)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", w.Code, w.Body)
		}
		if ct := w.Header().Get("Content-Type"); ct != "image/jpeg" {
			t.Errorf("Content-Type = %q", ct)
		}
		if cd := w.Header().Get("Content-Disposition"); cd != `attachment; filename="thumbnail.jpg"` {
			t.Errorf("Content-Disposition = %q", cd)
		}
		if w.Body.String() != base64.StdEncoding.EncodeToString([]byte("jpeg")) {
			t.Errorf("body = %q", w.Body)
		}
	})

	t.Run("no thumbnail", func(t *testing.T) {
		env := newTestEnv(t, false)
		env.engine.info.Thumbnail = ""
		w := env.do(http.MethodPost, "/download-thumbnail", `{"url":"https://youtu.be/abc"}`)
		if w.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", w.Code)
		}
		if got := decode(t, w)["error"]; got != "No thumbnail found" {
			t.Errorf("error = %v", got)
		}
	})

	t.Run("upstream failure", func(t *testing.T) {
		env := newTestEnv(t, false)
		env.engine.info.Thumbnail = strings.Replace(env.engine.info.Thumbnail, "hq.jpg", "missing.jpg", 1)
		w := env.do(http.MethodPost, "/download-thumbnail", `{"url":"https://youtu.be/abc"}`)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", w.Code)
		}
		if got := decode(t, w)["error"]; got != "Failed to download thumbnail" {
			t.Errorf("error = %v", got)
		}
	})

	t.Run("image host unreachable", func(t *testing.T) {
		env := newTestEnv(t, false)
		closed := httptest.NewServer(http.NotFoundHandler())
		env.engine.info.Thumbnail = closed.URL + "/hq.jpg"
		closed.Close()

		w := env.do(http.MethodPost, "/download-thumbnail", `{"url":"https://youtu.be/abc"}`)
		if w.Code != http.StatusInternalServerError {
			t.Fatalf("status = %d, want 500", w.Code)
		}
		if got, _ := decode(t, w)["error"].(string); !strings.HasPrefix(got, "fetching thumbnail") {
			t.Errorf("error = %q", got)
		}
	})
}

func TestRequestIDHeader(t *testing.T) {
	env := newTestEnv(t, false)

	w := env.do(http.MethodGet, "/nope", "")
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected a generated X-Request-ID")
	}

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if got := w.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("X-Request-ID = %q, want abc-123", got)
	}
}

func TestHubBroadcastsProgress(t *testing.T) {
	env := newTestEnv(t, false)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go env.hub.Run(ctx)

	srv := httptest.NewServer(env.router)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for env.hub.Clients() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	w := env.do(http.MethodPost, "/download", `{"url":"https://www.youtube.com/watch?v=dQw4w9WgXcQ"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("download status = %d", w.Code)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var last models.DownloadProgress
	for last.Status != models.StatusFinished {
		if err := conn.ReadJSON(&last); err != nil {
			t.Fatalf("read: %v", err)
		}
		if last.VideoID != "dQw4w9WgXcQ" {
			t.Errorf("video_id = %q", last.VideoID)
		}
	}
	if last.Percent != 100 {
		t.Errorf("percent = %v, want 100", last.Percent)
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	hub := NewHub()
	done := make(chan struct{})
	go func() {
		for i := 0; i < broadcastBuffer*2; i++ {
			hub.Publish(models.DownloadProgress{Status: models.StatusDownloading})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked with no running hub")
	}
}
