package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/audiolibrelab/camcapture/internal/compress"
	"github.com/audiolibrelab/camcapture/internal/config"
	"github.com/audiolibrelab/camcapture/internal/device"
	"github.com/audiolibrelab/camcapture/internal/format"
	"github.com/audiolibrelab/camcapture/internal/postprocess"
	"github.com/audiolibrelab/camcapture/internal/session"
)

const waitTimeout = 2 * time.Second

type stubCamera struct {
	mu         sync.Mutex
	position   device.Position
	active     bool
	output     string
	onFinished func(device.Video)
	format     format.Format
}

func (c *stubCamera) Position() device.Position { return c.position }

func (c *stubCamera) Formats() []format.Format {
	return []format.Format{
		{ID: "yuyv422-1280x720", Width: 1280, Height: 720, PixelFormat: "yuyv422"},
		{ID: "yuyv422-1920x1080", Width: 1920, Height: 1080, PixelFormat: "yuyv422"},
	}
}

func (c *stubCamera) SetActive(active bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = active
	return nil
}

func (c *stubCamera) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

func (c *stubCamera) StartRecording(ctx context.Context, opts device.RecordOptions, onFinished func(device.Video), onError func(error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.output = opts.OutputPath
	c.format = opts.Format
	c.onFinished = onFinished
	return nil
}

func (c *stubCamera) PauseRecording(ctx context.Context) error  { return nil }
func (c *stubCamera) ResumeRecording(ctx context.Context) error { return nil }

// StopRecording writes a small file where ffmpeg would have, then reports it finished
func (c *stubCamera) StopRecording(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := os.WriteFile(c.output, make([]byte, 4096), 0644); err != nil {
		return err
	}
	v := device.Video{Path: c.output, Width: c.format.Width, Height: c.format.Height}
	go c.onFinished(v)
	return nil
}

func (c *stubCamera) Close() error { return nil }

type stubDriver struct{}

func (stubDriver) Open(ctx context.Context, position device.Position) (device.Camera, error) {
	return &stubCamera{position: position}, nil
}

type stubPermissions struct{ granted bool }

func (p stubPermissions) RequestCameraAndMicrophone(ctx context.Context) bool { return p.granted }
func (p stubPermissions) RequestGalleryAccess(ctx context.Context) error      { return nil }

type failingCompressor struct{}

func (failingCompressor) Compress(ctx context.Context, path string, opts compress.Options) (string, error) {
	return "", &compress.Error{Path: path, Err: errors.New("ffmpeg not installed")}
}

type recordingPlayer struct {
	mu     sync.Mutex
	played []string
}

func (p *recordingPlayer) Play(ctx context.Context, uri string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.played = append(p.played, uri)
	return nil
}

// testBuilder wires a real library index with a stub camera
func testBuilder(granted bool) Builder {
	return func(ctx context.Context, cfg *config.Config) (*Runtime, error) {
		settings, err := SettingsFromConfig(cfg)
		if err != nil {
			return nil, err
		}
		gallery, closeGallery, err := OpenGallery(ctx, cfg)
		if err != nil {
			return nil, err
		}
		workDir := filepath.Join(cfg.Library.Directory, ".work")
		if err := os.MkdirAll(workDir, 0755); err != nil {
			return nil, err
		}

		pipeline := postprocess.New(failingCompressor{}, gallery, postprocess.Options{Album: cfg.Library.Album})
		ctrl := session.New(session.Dependencies{
			Driver:      stubDriver{},
			Permissions: stubPermissions{granted: granted},
			Pipeline:    pipeline,
			Library:     gallery,
		}, session.Options{Settings: settings, WorkDir: workDir})

		return &Runtime{Controller: ctrl, Gallery: gallery, closers: []func() error{closeGallery}}, nil
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Library.Directory = t.TempDir()
	return cfg
}

func newTestService(t *testing.T, cfg *config.Config, configFile string, granted bool) (*CamCaptureService, *recordingPlayer) {
	t.Helper()
	player := &recordingPlayer{}
	svc, err := New(context.Background(), cfg, configFile, testBuilder(granted), player)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { svc.Close() })
	return svc, player
}

func waitStatus(t *testing.T, svc Service, desc string, cond func(session.Status) bool) session.Status {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	var st session.Status
	for time.Now().Before(deadline) {
		var err error
		st, err = svc.Status()
		if err != nil {
			t.Fatalf("Status() error = %v", err)
		}
		if cond(st) {
			return st
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s, last status: %+v", desc, st)
	return st
}

func TestStart_PermissionDeniedSetsLastError(t *testing.T) {
	svc, _ := newTestService(t, testConfig(t), "", false)

	err := svc.Start()
	if !errors.Is(err, session.ErrPermissionDenied) {
		t.Fatalf("Start() error = %v, want ErrPermissionDenied", err)
	}
	if got := svc.GetLastError(); !strings.HasPrefix(got, "Failed to start recording") {
		t.Errorf("GetLastError() = %q", got)
	}

	if err := svc.SetQuality("high"); err != nil {
		t.Fatalf("SetQuality() error = %v", err)
	}
	if got := svc.GetLastError(); got != "" {
		t.Errorf("GetLastError() after success = %q, want empty", got)
	}
}

func TestRecordSaveAndPlay(t *testing.T) {
	svc, player := newTestService(t, testConfig(t), "", true)
	ctx := context.Background()

	if err := svc.Focus(); err != nil {
		t.Fatalf("Focus() error = %v", err)
	}
	waitStatus(t, svc, "ready", func(st session.Status) bool { return st.Ready })

	if err := svc.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitStatus(t, svc, "recording", func(st session.Status) bool { return st.State == session.StateRecording })

	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	st := waitStatus(t, svc, "saved", func(st session.Status) bool {
		return st.State == session.StateIdle && st.LastSizeMB != nil
	})
	if st.LastResolution != "1920x1080" {
		t.Errorf("LastResolution = %q, want 1920x1080", st.LastResolution)
	}

	assets, err := svc.ListRecent(ctx, 0)
	if err != nil {
		t.Fatalf("ListRecent() error = %v", err)
	}
	if len(assets) != 1 {
		t.Fatalf("ListRecent() returned %d assets, want 1", len(assets))
	}
	if assets[0].Album != "CameraApp" || assets[0].Width != 1920 {
		t.Errorf("asset = %+v", assets[0])
	}

	if err := svc.Play(ctx, assets[0].ID); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	if len(player.played) != 1 || player.played[0] != assets[0].URI {
		t.Errorf("played = %v, want %s", player.played, assets[0].URI)
	}
}

func TestPlay_UnknownAsset(t *testing.T) {
	svc, player := newTestService(t, testConfig(t), "", true)

	if err := svc.Play(context.Background(), "missing"); err == nil {
		t.Fatal("Play() expected error for unknown asset")
	}
	if len(player.played) != 0 {
		t.Errorf("player should not run, played %v", player.played)
	}
	if svc.GetLastError() == "" {
		t.Error("GetLastError() should report the failed lookup")
	}
}

func TestSetResolution_Invalid(t *testing.T) {
	svc, _ := newTestService(t, testConfig(t), "", true)

	if err := svc.SetResolution("8k"); err == nil {
		t.Fatal("SetResolution(8k) expected error")
	}
	if got := svc.GetLastError(); !strings.HasPrefix(got, "Invalid resolution") {
		t.Errorf("GetLastError() = %q", got)
	}

	if err := svc.SetResolution("720p"); err != nil {
		t.Fatalf("SetResolution(720p) error = %v", err)
	}
	st, _ := svc.Status()
	if st.Settings.ResolutionTier != format.Tier720p {
		t.Errorf("ResolutionTier = %s, want 720p", st.Settings.ResolutionTier)
	}
}

func TestLoadProfile(t *testing.T) {
	dir := t.TempDir()
	configFile := filepath.Join(dir, "camcapture.yaml")
	content := `
active_config: default

globals:
  library:
    directory: ` + filepath.Join(dir, "library") + `

definitions:
  cameras:
    - id: rear
      name: back
      position: back
      device: /dev/video0
      microphone: default

configs:
  default:
    cameras:
      - ref: rear
    capture:
      resolution: 1080p
    compression:
      quality: medium
  hd:
    cameras:
      - ref: rear
    capture:
      resolution: 720p
    compression:
      quality: low
`
	if err := os.WriteFile(configFile, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.LoadWithProfile(configFile, "")
	if err != nil {
		t.Fatalf("LoadWithProfile() error = %v", err)
	}
	svc, _ := newTestService(t, cfg, configFile, true)

	if err := svc.LoadProfile("hd"); err != nil {
		t.Fatalf("LoadProfile() error = %v", err)
	}
	if got := svc.GetConfig().Capture.Resolution; got != "720p" {
		t.Errorf("Capture.Resolution = %q, want 720p", got)
	}
	st, err := svc.Status()
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if st.Settings.ResolutionTier != format.Tier720p || st.Settings.QualityTier != compress.QualityLow {
		t.Errorf("Settings = %+v, want 720p/low", st.Settings)
	}

	if err := svc.LoadProfile("missing"); err == nil {
		t.Error("LoadProfile(missing) expected error")
	}
}

func TestLoadProfile_RefusedWhileRecording(t *testing.T) {
	dir := t.TempDir()
	configFile := filepath.Join(dir, "camcapture.yaml")
	content := `
globals:
  library:
    directory: ` + filepath.Join(dir, "library") + `
definitions:
  cameras:
    - id: rear
      name: back
      position: back
      device: /dev/video0
      microphone: default
configs:
  default:
    cameras:
      - ref: rear
`
	if err := os.WriteFile(configFile, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.LoadWithProfile(configFile, "")
	if err != nil {
		t.Fatalf("LoadWithProfile() error = %v", err)
	}
	svc, _ := newTestService(t, cfg, configFile, true)

	svc.Focus()
	waitStatus(t, svc, "ready", func(st session.Status) bool { return st.Ready })
	if err := svc.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitStatus(t, svc, "recording", func(st session.Status) bool { return st.State == session.StateRecording })

	if err := svc.LoadProfile("default"); !errors.Is(err, session.ErrNotIdle) {
		t.Errorf("LoadProfile() error = %v, want ErrNotIdle", err)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{512, "512 B"},
		{2048, "2.0 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.in); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
