package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const fullConfig = `
active_config: studio

globals:
  library:
    directory: /tmp/camcapture-global

definitions:
  cameras:
    - id: rear
      name: back
      position: back
      device: /dev/video0
      microphone: default
    - id: selfie
      name: front
      position: front
      device: /dev/video2
      microphone: hw:1,0

configs:
  default:
    cameras:
      - ref: rear
      - ref: selfie
    capture:
      resolution: 1080p
      frame_rate: 30
      container: mp4
      overlay: true
    compression:
      quality: medium
    library:
      album: CameraApp

  studio:
    cameras:
      - ref: rear
        device: /dev/video4
    capture:
      resolution: 4k
      max_duration: 10m
    compression:
      quality: high
      keep_raw: true
    location:
      enabled: true
      source: static
      latitude: 48.8566
      longitude: 2.3522
      timeout: 5s
`

func TestMergeConfigs_SelectionAndFallback(t *testing.T) {
	base := &Config{
		Cameras: []Camera{
			{Name: "back", Position: "back", Device: "/dev/video0", Microphone: "default"},
			{Name: "front", Position: "front", Device: "/dev/video2", Microphone: "hw:1,0"},
		},
		Capture:     CaptureConfig{Resolution: "auto", FrameRate: 30, Container: "mp4", Overlay: true},
		Compression: CompressionConfig{Quality: "medium", Method: "auto"},
		Library:     LibraryConfig{Directory: "~/Videos/Default", Album: "CameraApp", Index: "library.db"},
	}

	profile := &Config{
		Cameras: []Camera{
			{Name: "rear", Position: "back", Device: "/dev/video9"},
		},
		Capture:     CaptureConfig{Resolution: "720p"},
		Compression: CompressionConfig{Quality: "low"},
		Library:     LibraryConfig{Album: "Dashcam"},
	}

	result := mergeConfigs(base, profile)

	if len(result.Cameras) != 1 {
		t.Fatalf("Expected 1 camera, got %d", len(result.Cameras))
	}
	rear := result.Cameras[0]
	if rear.Device != "/dev/video9" || rear.Microphone != "default" {
		t.Errorf("Rear camera incorrect: got %+v", rear)
	}

	if result.Capture.Resolution != "720p" {
		t.Errorf("Expected resolution 720p, got %s", result.Capture.Resolution)
	}
	if result.Capture.FrameRate != 30 || result.Capture.Container != "mp4" {
		t.Errorf("Expected inherited frame rate and container, got %+v", result.Capture)
	}
	if result.Capture.Overlay {
		t.Error("Expected profile overlay value (false) to take precedence")
	}
	if result.Compression.Quality != "low" || result.Compression.Method != "auto" {
		t.Errorf("Compression merge incorrect: %+v", result.Compression)
	}
	if result.Library.Directory != "~/Videos/Default" || result.Library.Album != "Dashcam" {
		t.Errorf("Library merge incorrect: %+v", result.Library)
	}

	if result.Inheritance == nil {
		t.Fatal("Inheritance tracking not initialized")
	}
	if result.Inheritance.Capture.Resolution != "profile-specific" {
		t.Errorf("Expected resolution profile-specific, got %s", result.Inheritance.Capture.Resolution)
	}
	if result.Inheritance.Capture.FrameRate != "inherited" {
		t.Errorf("Expected frame rate inherited, got %s", result.Inheritance.Capture.FrameRate)
	}
	cam := result.Inheritance.Cameras["rear"]
	if cam.Device != "profile-specific" || cam.Microphone != "inherited" {
		t.Errorf("Camera inheritance incorrect: %+v", cam)
	}
}

func TestMergeConfigs_NoCamerasInheritsAll(t *testing.T) {
	base := Default()
	result := mergeConfigs(base, &Config{Capture: CaptureConfig{Resolution: "4k"}})

	if len(result.Cameras) != len(base.Cameras) {
		t.Fatalf("Expected %d inherited cameras, got %d", len(base.Cameras), len(result.Cameras))
	}
	for _, camera := range base.Cameras {
		if result.Inheritance.Cameras[camera.Name].Device != "inherited" {
			t.Errorf("Expected camera %s to be inherited", camera.Name)
		}
	}
}

func TestMergeConfigs_ProfileOnly(t *testing.T) {
	profile := &Config{
		Cameras:     []Camera{{Name: "usb", Position: "back", Device: "/dev/video1"}},
		Capture:     CaptureConfig{Resolution: "1080p", FrameRate: 60, Container: "mkv"},
		Compression: CompressionConfig{Quality: "high", Method: "manual"},
		Library:     LibraryConfig{Directory: "/tmp/videos", Album: "Test"},
	}

	result := mergeConfigs(nil, profile)

	if result.Capture.FrameRate != 60 || result.Capture.Container != "mkv" {
		t.Errorf("Capture config not preserved: %+v", result.Capture)
	}
	if len(result.Cameras) != 1 || result.Cameras[0].Microphone != "default" {
		t.Errorf("Expected microphone to default to 'default', got %+v", result.Cameras)
	}
}

func TestLoadWithProfile_ActiveProfile(t *testing.T) {
	configFile := createTempConfig(t, fullConfig)

	cfg, err := LoadWithProfile(configFile, "")
	if err != nil {
		t.Fatalf("LoadWithProfile failed: %v", err)
	}

	if cfg.Capture.Resolution != "4k" {
		t.Errorf("Expected 4k from studio profile, got %s", cfg.Capture.Resolution)
	}
	if cfg.Capture.FrameRate != 30 {
		t.Errorf("Expected frame rate 30 inherited from default profile, got %d", cfg.Capture.FrameRate)
	}
	if cfg.Capture.MaxDuration != 10*time.Minute {
		t.Errorf("Expected max duration 10m, got %s", cfg.Capture.MaxDuration)
	}
	if cfg.Compression.Quality != "high" || !cfg.Compression.KeepRaw {
		t.Errorf("Compression incorrect: %+v", cfg.Compression)
	}
	if cfg.Library.Directory != "/tmp/camcapture-global" {
		t.Errorf("Expected global library directory, got %s", cfg.Library.Directory)
	}
	if cfg.Library.Album != "CameraApp" {
		t.Errorf("Expected album inherited from default, got %s", cfg.Library.Album)
	}
	if !cfg.Location.Enabled || cfg.Location.Timeout != 5*time.Second {
		t.Errorf("Location incorrect: %+v", cfg.Location)
	}
	if cfg.Location.GeocodeURL == "" {
		t.Error("Expected built-in geocode URL to be inherited")
	}

	if len(cfg.Cameras) != 1 {
		t.Fatalf("Expected 1 camera in studio profile, got %d", len(cfg.Cameras))
	}
	if cfg.Cameras[0].Device != "/dev/video4" {
		t.Errorf("Expected device override, got %s", cfg.Cameras[0].Device)
	}
}

func TestLoadWithProfile_ExplicitProfile(t *testing.T) {
	configFile := createTempConfig(t, fullConfig)

	cfg, err := LoadWithProfile(configFile, "default")
	if err != nil {
		t.Fatalf("LoadWithProfile failed: %v", err)
	}

	if cfg.Capture.Resolution != "1080p" {
		t.Errorf("Expected 1080p, got %s", cfg.Capture.Resolution)
	}
	front, ok := cfg.CameraAt("front")
	if !ok {
		t.Fatal("Expected a front camera")
	}
	if front.Microphone != "hw:1,0" {
		t.Errorf("Expected front microphone hw:1,0, got %s", front.Microphone)
	}
	if cfg.Location.Enabled {
		t.Error("Expected location tagging disabled in default profile")
	}
}

func TestLoadWithProfile_UnknownProfile(t *testing.T) {
	configFile := createTempConfig(t, fullConfig)

	_, err := LoadWithProfile(configFile, "missing")
	if err == nil || !strings.Contains(err.Error(), "'missing' not found") {
		t.Errorf("Expected profile not found error, got %v", err)
	}
}

func TestLoadWithProfile_NoFile(t *testing.T) {
	if _, err := LoadWithProfile("", ""); err == nil {
		t.Error("Expected error when no config file is given")
	}
}

func TestUpdateActiveConfig(t *testing.T) {
	configFile := createTempConfig(t, fullConfig)

	if err := UpdateActiveConfig(configFile, "default"); err != nil {
		t.Fatalf("UpdateActiveConfig failed: %v", err)
	}

	root, err := ValidateConfigurationFormat(configFile)
	if err != nil {
		t.Fatalf("Re-reading config failed: %v", err)
	}
	if root.ActiveConfig != "default" {
		t.Errorf("Expected active_config 'default', got %s", root.ActiveConfig)
	}
}

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()
	if got := expandPath("~/Videos"); got != filepath.Join(home, "Videos") {
		t.Errorf("Expected tilde expansion, got %s", got)
	}
	if got := expandPath("/abs/path"); got != "/abs/path" {
		t.Errorf("Expected absolute path unchanged, got %s", got)
	}
}

func TestIndexPath(t *testing.T) {
	cfg := &Config{Library: LibraryConfig{Directory: "/data/videos", Index: "library.db"}}
	if got := cfg.IndexPath(); got != "/data/videos/library.db" {
		t.Errorf("Expected relative index joined with directory, got %s", got)
	}
	cfg.Library.Index = "/var/lib/camcapture.db"
	if got := cfg.IndexPath(); got != "/var/lib/camcapture.db" {
		t.Errorf("Expected absolute index unchanged, got %s", got)
	}
}

// createTempConfig writes content to a YAML file removed at test cleanup
func createTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "camcapture.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write temp config: %v", err)
	}
	return path
}
