package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/audiolibrelab/camcapture/internal/compress"
	"github.com/audiolibrelab/camcapture/internal/config"
	"github.com/audiolibrelab/camcapture/internal/format"
	"github.com/audiolibrelab/camcapture/internal/library"
	"github.com/audiolibrelab/camcapture/internal/session"
	"github.com/gorilla/websocket"
)

type fakeService struct {
	mu       sync.Mutex
	status   session.Status
	startErr error
	calls    []string
	assets   []library.Asset
	events   chan session.Event
	profile  string
}

func newFakeService() *fakeService {
	return &fakeService{
		status: session.Status{
			State:     session.StateIdle,
			Ready:     true,
			Permitted: true,
			Elapsed:   "00:00",
			Settings: session.Settings{
				ResolutionTier: format.TierAuto,
				QualityTier:    compress.QualityMedium,
			},
		},
		events: make(chan session.Event, 8),
	}
}

func (f *fakeService) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
}

func (f *fakeService) called() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeService) Start() error {
	f.record("start")
	if f.startErr != nil {
		return f.startErr
	}
	f.mu.Lock()
	f.status.State = session.StateRecording
	f.mu.Unlock()
	return nil
}
func (f *fakeService) Pause() error  { f.record("pause"); return nil }
func (f *fakeService) Resume() error { f.record("resume"); return nil }
func (f *fakeService) Stop() error   { f.record("stop"); return nil }

func (f *fakeService) Status() (session.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status, nil
}

func (f *fakeService) Subscribe() (<-chan session.Event, func()) {
	return f.events, func() {}
}

func (f *fakeService) Focus() error        { f.record("focus"); return nil }
func (f *fakeService) Blur() error         { f.record("blur"); return nil }
func (f *fakeService) SwitchCamera() error { f.record("switch"); return session.ErrNotIdle }

func (f *fakeService) SetResolution(tier string) error {
	f.record("resolution:" + tier)
	t, err := format.ParseResolutionTier(tier)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.status.Settings.ResolutionTier = t
	f.mu.Unlock()
	return nil
}

func (f *fakeService) ToggleResolution() error { f.record("toggle_resolution"); return nil }

func (f *fakeService) SetQuality(quality string) error {
	f.record("quality:" + quality)
	return nil
}

func (f *fakeService) ToggleQuality() error { f.record("toggle_quality"); return nil }

func (f *fakeService) SetLocationTagging(enabled bool) error {
	f.record(fmt.Sprintf("location:%v", enabled))
	return nil
}

func (f *fakeService) ListRecent(ctx context.Context, count int) ([]library.Asset, error) {
	f.record(fmt.Sprintf("list:%d", count))
	return f.assets, nil
}

func (f *fakeService) GetAsset(ctx context.Context, id string) (library.Asset, error) {
	for _, a := range f.assets {
		if a.ID == id {
			return a, nil
		}
	}
	return library.Asset{}, fmt.Errorf("%w: %s", library.ErrNotFound, id)
}

func (f *fakeService) Play(ctx context.Context, id string) error { return nil }

func (f *fakeService) LoadProfile(profile string) error {
	f.record("profile:" + profile)
	f.profile = profile
	return nil
}

func (f *fakeService) GetConfig() *config.Config { return config.Default() }
func (f *fakeService) GetLastError() string      { return "" }
func (f *fakeService) Close() error              { return nil }

func doRequest(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestStatus(t *testing.T) {
	svc := newFakeService()
	srv := New(svc, "", "0")

	w := doRequest(t, srv.Handler(), http.MethodGet, "/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /status = %d, body %s", w.Code, w.Body.String())
	}

	var resp StatusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Session.State != session.StateIdle || resp.Message != "Ready" {
		t.Errorf("status = %+v", resp)
	}
}

func TestStartAndErrors(t *testing.T) {
	svc := newFakeService()
	srv := New(svc, "", "0")

	w := doRequest(t, srv.Handler(), http.MethodPost, "/start", "")
	if w.Code != http.StatusOK {
		t.Fatalf("POST /start = %d, body %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"state":"RECORDING"`) {
		t.Errorf("POST /start body = %s", w.Body.String())
	}

	tests := []struct {
		err  error
		want int
	}{
		{session.ErrBusy, http.StatusConflict},
		{session.ErrDeviceNotReady, http.StatusServiceUnavailable},
		{session.ErrPermissionDenied, http.StatusForbidden},
		{fmt.Errorf("wrapped: %w", session.ErrClosed), http.StatusGone},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		svc.startErr = tt.err
		w := doRequest(t, srv.Handler(), http.MethodPost, "/start", "")
		if w.Code != tt.want {
			t.Errorf("POST /start with %v = %d, want %d", tt.err, w.Code, tt.want)
		}
	}

	w = doRequest(t, srv.Handler(), http.MethodPost, "/camera/switch", "")
	if w.Code != http.StatusConflict {
		t.Errorf("POST /camera/switch = %d, want 409", w.Code)
	}
}

func TestSettings(t *testing.T) {
	svc := newFakeService()
	srv := New(svc, "", "0")
	h := srv.Handler()

	if w := doRequest(t, h, http.MethodPost, "/settings/resolution", `{"tier":"1080p"}`); w.Code != http.StatusOK {
		t.Errorf("resolution = %d, body %s", w.Code, w.Body.String())
	}
	if w := doRequest(t, h, http.MethodPost, "/settings/resolution", `{"tier":"8k"}`); w.Code != http.StatusBadRequest {
		t.Errorf("invalid resolution = %d, want 400", w.Code)
	}
	if w := doRequest(t, h, http.MethodPost, "/settings/quality", `{"quality":"ultra"}`); w.Code != http.StatusBadRequest {
		t.Errorf("invalid quality = %d, want 400", w.Code)
	}
	if w := doRequest(t, h, http.MethodPost, "/settings/quality", `{"quality":"high"}`); w.Code != http.StatusOK {
		t.Errorf("quality = %d", w.Code)
	}
	if w := doRequest(t, h, http.MethodPost, "/settings/location", `{}`); w.Code != http.StatusBadRequest {
		t.Errorf("location without enabled = %d, want 400", w.Code)
	}
	if w := doRequest(t, h, http.MethodPost, "/settings/location", `{"enabled":false}`); w.Code != http.StatusOK {
		t.Errorf("location = %d", w.Code)
	}
	doRequest(t, h, http.MethodPost, "/settings/quality/toggle", "")

	want := []string{"resolution:1080p", "quality:high", "location:false", "toggle_quality"}
	got := svc.called()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("calls = %v, want %v", got, want)
	}
}

func TestVideos(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "VID_1.mp4")
	if err := os.WriteFile(path, []byte("video-bytes"), 0644); err != nil {
		t.Fatal(err)
	}

	svc := newFakeService()
	svc.assets = []library.Asset{
		{ID: "a1", URI: library.FileScheme + path, Filename: "VID_1.mp4", DurationSeconds: 12, SizeBytes: 2048},
		{ID: "gone", URI: library.FileScheme + filepath.Join(dir, "missing.mp4"), Filename: "missing.mp4"},
	}
	srv := New(svc, "", "0")
	h := srv.Handler()

	w := doRequest(t, h, http.MethodGet, "/api/videos", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /api/videos = %d", w.Code)
	}
	var list struct {
		Videos []VideoInfo `json:"videos"`
		Count  int         `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if list.Count != 2 || list.Videos[0].SizeHuman != "2.0 KB" || list.Videos[0].StreamURL != "/api/videos/a1/stream" {
		t.Errorf("videos = %+v", list)
	}
	if got := svc.called(); len(got) == 0 || got[0] != "list:60" {
		t.Errorf("default count: calls = %v", got)
	}

	if w := doRequest(t, h, http.MethodGet, "/api/videos?count=abc", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad count = %d, want 400", w.Code)
	}
	if w := doRequest(t, h, http.MethodGet, "/api/videos/nope", ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown video = %d, want 404", w.Code)
	}

	w = doRequest(t, h, http.MethodGet, "/api/videos/a1/stream", "")
	if w.Code != http.StatusOK || w.Body.String() != "video-bytes" {
		t.Errorf("stream = %d %q", w.Code, w.Body.String())
	}
	if w := doRequest(t, h, http.MethodGet, "/api/videos/gone/stream", ""); w.Code != http.StatusNotFound {
		t.Errorf("missing file stream = %d, want 404", w.Code)
	}
}

func TestProfiles(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "camcapture.yaml")
	content := `
active_config: outdoor
definitions:
  cameras:
    - id: rear
      name: back
      position: back
      device: /dev/video0
configs:
  default:
    cameras:
      - ref: rear
  outdoor:
    cameras:
      - ref: rear
`
	if err := os.WriteFile(configFile, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	svc := newFakeService()
	srv := New(svc, configFile, "0")
	h := srv.Handler()

	w := doRequest(t, h, http.MethodGet, "/config/profiles", "")
	if !strings.Contains(w.Body.String(), `"profiles":["default","outdoor"]`) || !strings.Contains(w.Body.String(), `"active":"outdoor"`) {
		t.Errorf("profiles body = %s", w.Body.String())
	}

	if w := doRequest(t, h, http.MethodPost, "/config/select", `{"profile":"default"}`); w.Code != http.StatusOK {
		t.Fatalf("select = %d", w.Code)
	}
	if svc.profile != "default" || srv.getActiveProfile() != "default" {
		t.Errorf("profile = %q, active = %q", svc.profile, srv.getActiveProfile())
	}
}

func TestEventStream(t *testing.T) {
	svc := newFakeService()
	srv := New(svc, "", "0")
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var first EventMessage
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read initial: %v", err)
	}
	if first.Status == nil || first.Status.State != session.StateIdle {
		t.Errorf("initial message = %+v", first)
	}

	svc.events <- session.Event{
		Type:   session.EventNotice,
		State:  session.StateIdle,
		Notice: &session.Notice{Kind: session.NoticeSaved, Title: "Saved", Message: "Video saved to gallery."},
	}
	var msg EventMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read notice: %v", err)
	}
	if msg.Event != session.EventNotice || msg.Notice == nil || msg.Notice.Title != "Saved" {
		t.Errorf("notice message = %+v", msg)
	}

	close(svc.events)
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("expected going-away close, got %v", err)
	}
}
