package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/audiolibrelab/camcapture/internal/compress"
	"github.com/audiolibrelab/camcapture/internal/config"
	"github.com/audiolibrelab/camcapture/internal/device"
	"github.com/audiolibrelab/camcapture/internal/format"
	"github.com/audiolibrelab/camcapture/internal/library"
	"github.com/audiolibrelab/camcapture/internal/location"
	"github.com/audiolibrelab/camcapture/internal/permission"
	"github.com/audiolibrelab/camcapture/internal/postprocess"
	"github.com/audiolibrelab/camcapture/internal/session"
)

// Gallery is the library view used for browsing and playback
type Gallery interface {
	library.Library
	Get(ctx context.Context, id string) (library.Asset, error)
}

// Runtime is one wired recording session with the resources it owns
type Runtime struct {
	Controller *session.Controller
	Gallery    Gallery

	closers []func() error
}

// Close shuts the session down first, then releases the resources it was using
func (r *Runtime) Close() error {
	var errs []error
	if r.Controller != nil {
		errs = append(errs, r.Controller.Close())
	}
	for i := len(r.closers) - 1; i >= 0; i-- {
		errs = append(errs, r.closers[i]())
	}
	return errors.Join(errs...)
}

// Builder creates a Runtime from a resolved configuration
type Builder func(ctx context.Context, cfg *config.Config) (*Runtime, error)

// Build wires the ffmpeg camera driver, permission checks, location provider,
// compressor, library index and optional S3 mirror into a session controller.
func Build(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	rt := &Runtime{}
	fail := func(err error) (*Runtime, error) {
		if cerr := rt.Close(); cerr != nil {
			slog.Debug("Cleanup after failed build", "error", cerr)
		}
		return nil, err
	}

	settings, err := SettingsFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	workDir := filepath.Join(cfg.Library.Directory, ".work")
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create work directory: %w", err)
	}

	gallery, closeGallery, err := OpenGallery(ctx, cfg)
	if err != nil {
		return nil, err
	}
	rt.Gallery = gallery
	rt.closers = append(rt.closers, closeGallery)

	provider, closeLocation, err := location.New(cfg.Location)
	if err != nil {
		return fail(fmt.Errorf("failed to set up location: %w", err))
	}
	rt.closers = append(rt.closers, func() error { closeLocation(); return nil })

	position := defaultPosition(cfg)
	cam, _ := cfg.CameraAt(string(position))

	pipeline := postprocess.New(compress.New(), gallery, postprocess.Options{
		Album:   cfg.Library.Album,
		Method:  compress.Method(cfg.Compression.Method),
		KeepRaw: cfg.Compression.KeepRaw,
	})

	opts := session.Options{
		Settings:    settings,
		Position:    position,
		FrameRate:   cfg.Capture.FrameRate,
		Container:   cfg.Capture.Container,
		Overlay:     cfg.Capture.Overlay,
		MaxDuration: cfg.Capture.MaxDuration,
		WorkDir:     workDir,
	}
	if cfg.Location.Enabled {
		opts.LocationInterval = cfg.Location.RefreshInterval
	}

	rt.Controller = session.New(session.Dependencies{
		Driver: device.NewFFmpegDriver(cfg),
		Permissions: &permission.Access{
			VideoDevice: cam.Device,
			Microphone:  cam.Microphone,
			LibraryDir:  cfg.Library.Directory,
		},
		Location: provider,
		Pipeline: pipeline,
		Library:  gallery,
	}, opts)

	slog.Debug("Session runtime ready",
		"position", position,
		"resolution", settings.ResolutionTier,
		"quality", settings.QualityTier,
		"location_tagging", settings.LocationTaggingEnabled)
	return rt, nil
}

// OpenGallery opens the library index and, when configured, the S3 mirror
func OpenGallery(ctx context.Context, cfg *config.Config) (*library.Local, func() error, error) {
	if err := os.MkdirAll(cfg.Library.Directory, 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create library directory: %w", err)
	}

	store, err := library.OpenStore(cfg.IndexPath())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open library index: %w", err)
	}

	var opts []library.Option
	if cfg.Library.S3.Enabled {
		mirror, err := library.NewS3Mirror(ctx, library.S3Options{
			Region: cfg.Library.S3.Region,
			Bucket: cfg.Library.S3.Bucket,
			Prefix: cfg.Library.S3.Prefix,
		})
		if err != nil {
			store.Close()
			return nil, nil, fmt.Errorf("failed to set up S3 mirror: %w", err)
		}
		opts = append(opts, library.WithS3Mirror(mirror))
	}

	return library.NewLocal(cfg.Library.Directory, store, opts...), store.Close, nil
}

// SettingsFromConfig converts the capture, compression and location sections into session settings
func SettingsFromConfig(cfg *config.Config) (session.Settings, error) {
	tier, err := format.ParseResolutionTier(cfg.Capture.Resolution)
	if err != nil {
		return session.Settings{}, err
	}
	quality, err := compress.ParseQuality(cfg.Compression.Quality)
	if err != nil {
		return session.Settings{}, err
	}
	return session.Settings{
		ResolutionTier:         tier,
		QualityTier:            quality,
		LocationTaggingEnabled: cfg.Location.Enabled,
	}, nil
}

// defaultPosition prefers the back camera, then whatever is configured first
func defaultPosition(cfg *config.Config) device.Position {
	if _, ok := cfg.CameraAt(string(device.PositionBack)); ok {
		return device.PositionBack
	}
	for _, cam := range cfg.Cameras {
		if p, err := device.ParsePosition(cam.Position); err == nil {
			return p
		}
	}
	return device.PositionBack
}
