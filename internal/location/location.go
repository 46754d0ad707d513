// Package location supplies best-effort coordinates and a reverse-geocoded
// address for the recording overlay.
package location

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/audiolibrelab/camcapture/internal/config"
)

var ErrNoFix = errors.New("no position fix available")

// Snapshot is one location reading. Address is nil when geocoding failed.
type Snapshot struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   *string `json:"address"`
}

// Coordinates renders the position as "lat, lon" with 5 decimals
func (s *Snapshot) Coordinates() string {
	return fmt.Sprintf("%.5f, %.5f", s.Latitude, s.Longitude)
}

// ISO6709 renders the position for container location metadata, e.g. "+48.8566+002.3522/"
func (s *Snapshot) ISO6709() string {
	return fmt.Sprintf("%+08.4f%+09.4f/", s.Latitude, s.Longitude)
}

// Lines returns the overlay text: the address when known, then the coordinates
func (s *Snapshot) Lines() []string {
	var lines []string
	if s.Address != nil && *s.Address != "" {
		lines = append(lines, *s.Address)
	}
	return append(lines, s.Coordinates())
}

// Provider returns the current location or nil when none is available
type Provider interface {
	GetCurrentLocation(ctx context.Context) *Snapshot
}

// Fix is a raw position reading
type Fix struct {
	Latitude  float64
	Longitude float64
	Time      time.Time
}

// Positioner produces position fixes
type Positioner interface {
	Position(ctx context.Context) (Fix, error)
}

// Geocoder turns coordinates into a human-readable address
type Geocoder interface {
	Reverse(ctx context.Context, lat, lon float64) (string, error)
}

// Service combines a positioner and a geocoder. Every failure degrades to a nil
// snapshot or a snapshot without address.
type Service struct {
	positioner Positioner
	geocoder   Geocoder
	timeout    time.Duration
}

// NewService creates a location service; geocoder may be nil
func NewService(positioner Positioner, geocoder Geocoder, timeout time.Duration) *Service {
	return &Service{positioner: positioner, geocoder: geocoder, timeout: timeout}
}

func (s *Service) GetCurrentLocation(ctx context.Context) *Snapshot {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	fix, err := s.positioner.Position(ctx)
	if err != nil {
		slog.Debug("Location unavailable", "error", err)
		return nil
	}

	snapshot := &Snapshot{Latitude: fix.Latitude, Longitude: fix.Longitude}
	if s.geocoder == nil {
		return snapshot
	}

	address, err := s.geocoder.Reverse(ctx, fix.Latitude, fix.Longitude)
	if err != nil {
		slog.Warn("Reverse geocoding failed", "error", err)
		return snapshot
	}
	if address != "" {
		snapshot.Address = &address
	}
	return snapshot
}

// Disabled is the provider used when location tagging is off
type Disabled struct{}

func (Disabled) GetCurrentLocation(ctx context.Context) *Snapshot { return nil }

// New builds the provider described by cfg. The returned close function
// releases the MQTT connection when one was opened.
func New(cfg config.LocationConfig) (Provider, func(), error) {
	if !cfg.Enabled {
		return Disabled{}, func() {}, nil
	}

	var geocoder Geocoder
	if cfg.GeocodeURL != "" {
		geocoder = NewNominatim(cfg.GeocodeURL, cfg.UserAgent, cfg.Timeout)
	}

	switch cfg.Source {
	case "static", "":
		return NewService(StaticPositioner{Latitude: cfg.Latitude, Longitude: cfg.Longitude}, geocoder, cfg.Timeout), func() {}, nil
	case "mqtt":
		positioner, err := NewMQTTPositioner(MQTTOptions{
			Broker:   cfg.MQTT.Broker,
			Topic:    cfg.MQTT.Topic,
			ClientID: cfg.MQTT.ClientID,
			MaxAge:   cfg.MQTT.MaxAge,
		})
		if err != nil {
			return nil, nil, err
		}
		return NewService(positioner, geocoder, cfg.Timeout), positioner.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown location source %q", cfg.Source)
	}
}

// StaticPositioner always reports the configured coordinates
type StaticPositioner struct {
	Latitude  float64
	Longitude float64
}

func (p StaticPositioner) Position(ctx context.Context) (Fix, error) {
	if err := ctx.Err(); err != nil {
		return Fix{}, err
	}
	return Fix{Latitude: p.Latitude, Longitude: p.Longitude, Time: time.Now()}, nil
}
