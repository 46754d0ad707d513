package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/audiolibrelab/camcapture/internal/compress"
	"github.com/audiolibrelab/camcapture/internal/config"
	"github.com/audiolibrelab/camcapture/internal/format"
	"github.com/audiolibrelab/camcapture/internal/library"
	"github.com/audiolibrelab/camcapture/internal/session"
)

// GalleryCount is how many recent videos the gallery shows
const GalleryCount = 60

// Service is the facade used by the terminal screen and the HTTP server
type Service interface {
	// Recording operations
	Start() error
	Pause() error
	Resume() error
	Stop() error
	Status() (session.Status, error)
	Subscribe() (<-chan session.Event, func())

	// Screen lifecycle
	Focus() error
	Blur() error

	// Capture settings
	SwitchCamera() error
	SetResolution(tier string) error
	ToggleResolution() error
	SetQuality(quality string) error
	ToggleQuality() error
	SetLocationTagging(enabled bool) error

	// Gallery operations
	ListRecent(ctx context.Context, count int) ([]library.Asset, error)
	GetAsset(ctx context.Context, id string) (library.Asset, error)
	Play(ctx context.Context, id string) error

	// Configuration operations
	LoadProfile(profile string) error
	GetConfig() *config.Config
	GetLastError() string

	Close() error
}

// Player plays a video by path or file:// URI
type Player interface {
	Play(ctx context.Context, uri string) error
}

// CamCaptureService is the main service implementation
type CamCaptureService struct {
	configFile string
	build      Builder
	player     Player

	mu  sync.RWMutex
	cfg *config.Config
	rt  *Runtime

	// Error tracking
	lastError      string
	lastErrorMutex sync.RWMutex
}

// New wires a runtime for cfg with build and returns the service owning it
func New(ctx context.Context, cfg *config.Config, configFile string, build Builder, player Player) (*CamCaptureService, error) {
	if build == nil {
		build = Build
	}
	rt, err := build(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &CamCaptureService{
		configFile: configFile,
		build:      build,
		player:     player,
		cfg:        cfg,
		rt:         rt,
	}, nil
}

func (s *CamCaptureService) runtime() *Runtime {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rt
}

func (s *CamCaptureService) controller() *session.Controller {
	return s.runtime().Controller
}

// track records err as the last error, or clears it on success
func (s *CamCaptureService) track(op string, err error) error {
	if err != nil {
		s.setLastError(fmt.Sprintf("%s: %v", op, err))
		return err
	}
	s.clearLastError()
	return nil
}

// Start begins a recording
func (s *CamCaptureService) Start() error {
	slog.Debug("Service.Start called")
	return s.track("Failed to start recording", s.controller().Start())
}

// Pause suspends the active recording
func (s *CamCaptureService) Pause() error {
	return s.track("Failed to pause recording", s.controller().Pause())
}

// Resume continues a paused recording
func (s *CamCaptureService) Resume() error {
	return s.track("Failed to resume recording", s.controller().Resume())
}

// Stop ends the recording; saving continues in the background
func (s *CamCaptureService) Stop() error {
	return s.track("Failed to stop recording", s.controller().Stop())
}

// Status returns the current session snapshot
func (s *CamCaptureService) Status() (session.Status, error) {
	return s.controller().Status()
}

// Subscribe streams session events. The channel is closed when the session
// closes, including when LoadProfile replaces it.
func (s *CamCaptureService) Subscribe() (<-chan session.Event, func()) {
	return s.controller().Subscribe()
}

func (s *CamCaptureService) Focus() error {
	return s.controller().Focus()
}

func (s *CamCaptureService) Blur() error {
	return s.controller().Blur()
}

func (s *CamCaptureService) SwitchCamera() error {
	return s.track("Failed to switch camera", s.controller().SwitchCamera())
}

func (s *CamCaptureService) SetResolution(tier string) error {
	t, err := format.ParseResolutionTier(tier)
	if err != nil {
		return s.track("Invalid resolution", err)
	}
	return s.track("Failed to set resolution", s.controller().SetResolution(t))
}

func (s *CamCaptureService) ToggleResolution() error {
	return s.track("Failed to change resolution", s.controller().ToggleResolution())
}

func (s *CamCaptureService) SetQuality(quality string) error {
	q, err := compress.ParseQuality(quality)
	if err != nil {
		return s.track("Invalid quality", err)
	}
	return s.track("Failed to set quality", s.controller().SetQuality(q))
}

func (s *CamCaptureService) ToggleQuality() error {
	return s.track("Failed to change quality", s.controller().ToggleQuality())
}

func (s *CamCaptureService) SetLocationTagging(enabled bool) error {
	return s.track("Failed to change location tagging", s.controller().SetLocationTagging(enabled))
}

// ListRecent returns up to count videos, newest first
func (s *CamCaptureService) ListRecent(ctx context.Context, count int) ([]library.Asset, error) {
	if count <= 0 {
		count = GalleryCount
	}
	return s.runtime().Gallery.ListRecent(ctx, library.AssetVideos, count)
}

func (s *CamCaptureService) GetAsset(ctx context.Context, id string) (library.Asset, error) {
	return s.runtime().Gallery.Get(ctx, id)
}

// Play plays a library video by asset ID
func (s *CamCaptureService) Play(ctx context.Context, id string) error {
	if s.player == nil {
		return errors.New("playback is not available")
	}
	asset, err := s.GetAsset(ctx, id)
	if err != nil {
		return s.track("Failed to find video", err)
	}
	return s.track("Playback failed", s.player.Play(ctx, asset.URI))
}

// LoadProfile switches to another configuration profile. The current session
// is closed and a new one is built; this is refused while recording or saving.
func (s *CamCaptureService) LoadProfile(profile string) error {
	newCfg, err := config.LoadWithProfile(s.configFile, profile)
	if err != nil {
		return fmt.Errorf("failed to load profile '%s': %w", profile, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.rt.Controller.Status()
	if err != nil {
		return err
	}
	if st.State != session.StateIdle {
		return fmt.Errorf("cannot change profile: %w", session.ErrNotIdle)
	}

	rt, err := s.build(context.Background(), newCfg)
	if err != nil {
		return s.track(fmt.Sprintf("Failed to apply profile '%s'", profile), err)
	}

	if err := s.rt.Close(); err != nil {
		slog.Warn("Error closing previous session", "error", err)
	}
	if st.Focused {
		if err := rt.Controller.Focus(); err != nil {
			slog.Warn("Could not focus new session", "error", err)
		}
	}

	s.cfg = newCfg
	s.rt = rt
	slog.Info("Profile loaded", "profile", profile)
	return nil
}

// GetConfig returns the current configuration
func (s *CamCaptureService) GetConfig() *config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Close releases the session and the library
func (s *CamCaptureService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rt.Close()
}

// GetLastError returns the last error message (thread-safe)
func (s *CamCaptureService) GetLastError() string {
	s.lastErrorMutex.RLock()
	defer s.lastErrorMutex.RUnlock()
	return s.lastError
}

// setLastError sets the last error message (thread-safe)
func (s *CamCaptureService) setLastError(err string) {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = err

	slog.Error("Service error occurred", "error_message", err)
}

// clearLastError clears the last error message (thread-safe)
func (s *CamCaptureService) clearLastError() {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = ""
}

// FormatBytes formats bytes in human readable format
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
