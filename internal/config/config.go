package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type DefinitionsConfig struct {
	Cameras []CameraDefinition `mapstructure:"cameras" yaml:"cameras"`
}

type CameraDefinition struct {
	ID         string `mapstructure:"id" yaml:"id"`
	Name       string `mapstructure:"name" yaml:"name"`
	Position   string `mapstructure:"position" yaml:"position"`     // "back", "front"
	Device     string `mapstructure:"device" yaml:"device"`         // V4L2 node, e.g. /dev/video0
	Microphone string `mapstructure:"microphone" yaml:"microphone"` // ALSA device, "default" or "disabled"
}

type CameraReference struct {
	Ref        string  `mapstructure:"ref" yaml:"ref"`
	Device     *string `mapstructure:"device,omitempty" yaml:"device,omitempty"`
	Microphone *string `mapstructure:"microphone,omitempty" yaml:"microphone,omitempty"`
}

type GlobalsConfig struct {
	Library GlobalLibraryConfig `mapstructure:"library" yaml:"library"`
}

type GlobalLibraryConfig struct {
	Directory string `mapstructure:"directory" yaml:"directory"`
}

type RootConfig struct {
	ActiveConfig string                    `mapstructure:"active_config" yaml:"active_config"`
	Globals      *GlobalsConfig            `mapstructure:"globals,omitempty" yaml:"globals,omitempty"`
	Capture      *CaptureConfig            `mapstructure:"capture,omitempty" yaml:"capture,omitempty"`
	Definitions  *DefinitionsConfig        `mapstructure:"definitions,omitempty" yaml:"definitions,omitempty"`
	Configs      map[string]*ConfigProfile `mapstructure:"configs" yaml:"configs"`
}

type Config struct {
	Cameras     []Camera          `mapstructure:"cameras" yaml:"cameras"`
	Capture     CaptureConfig     `mapstructure:"capture" yaml:"capture"`
	Compression CompressionConfig `mapstructure:"compression" yaml:"compression"`
	Location    LocationConfig    `mapstructure:"location" yaml:"location"`
	Library     LibraryConfig     `mapstructure:"library" yaml:"library"`

	// Internal field to track inheritance information for info command
	Inheritance *InheritanceInfo `mapstructure:"-" yaml:"-"`
}

type ConfigProfile struct {
	Cameras     []CameraReference `mapstructure:"cameras" yaml:"cameras"`
	Capture     CaptureConfig     `mapstructure:"capture" yaml:"capture"`
	Compression CompressionConfig `mapstructure:"compression" yaml:"compression"`
	Location    LocationConfig    `mapstructure:"location" yaml:"location"`
	Library     LibraryConfig     `mapstructure:"library" yaml:"library"`
}

type CameraInheritance struct {
	Device     string // "inherited" or "profile-specific"
	Microphone string
}

type InheritanceInfo struct {
	Capture struct {
		Resolution string // "inherited" or "profile-specific"
		FrameRate  string
		Container  string
	}
	Cameras     map[string]CameraInheritance
	Compression struct {
		Quality string
		Method  string
	}
	Library struct {
		Directory string
		Album     string
	}
}

type Camera struct {
	Name       string `mapstructure:"name" yaml:"name"`
	Position   string `mapstructure:"position" yaml:"position"`
	Device     string `mapstructure:"device" yaml:"device"`
	Microphone string `mapstructure:"microphone" yaml:"microphone"`
}

type CaptureConfig struct {
	Resolution  string        `mapstructure:"resolution" yaml:"resolution"` // auto, 720p, 1080p, 4k
	FrameRate   int           `mapstructure:"frame_rate" yaml:"frame_rate"`
	Container   string        `mapstructure:"container" yaml:"container"` // mp4, mkv
	Overlay     bool          `mapstructure:"overlay" yaml:"overlay"`     // burn timestamp/location into the video
	MaxDuration time.Duration `mapstructure:"max_duration" yaml:"max_duration"`
}

type CompressionConfig struct {
	Quality string `mapstructure:"quality" yaml:"quality"` // low, medium, high
	Method  string `mapstructure:"method" yaml:"method"`   // auto, manual
	KeepRaw bool   `mapstructure:"keep_raw" yaml:"keep_raw"`
}

type LocationConfig struct {
	Enabled         bool          `mapstructure:"enabled" yaml:"enabled"`
	Source          string        `mapstructure:"source" yaml:"source"` // static, mqtt
	Latitude        float64       `mapstructure:"latitude" yaml:"latitude"`
	Longitude       float64       `mapstructure:"longitude" yaml:"longitude"`
	MQTT            MQTTConfig    `mapstructure:"mqtt" yaml:"mqtt"`
	GeocodeURL      string        `mapstructure:"geocode_url" yaml:"geocode_url"`
	UserAgent       string        `mapstructure:"user_agent" yaml:"user_agent"`
	Timeout         time.Duration `mapstructure:"timeout" yaml:"timeout"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval" yaml:"refresh_interval"`
}

type MQTTConfig struct {
	Broker   string        `mapstructure:"broker" yaml:"broker"`
	Topic    string        `mapstructure:"topic" yaml:"topic"`
	ClientID string        `mapstructure:"client_id" yaml:"client_id"`
	MaxAge   time.Duration `mapstructure:"max_age" yaml:"max_age"`
}

type LibraryConfig struct {
	Directory string   `mapstructure:"directory" yaml:"directory"`
	Album     string   `mapstructure:"album" yaml:"album"`
	Index     string   `mapstructure:"index" yaml:"index"` // SQLite file name, relative to Directory
	S3        S3Config `mapstructure:"s3" yaml:"s3"`
}

type S3Config struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Region  string `mapstructure:"region" yaml:"region"`
	Bucket  string `mapstructure:"bucket" yaml:"bucket"`
	Prefix  string `mapstructure:"prefix" yaml:"prefix"`
}

// Default returns the built-in configuration used for any field a profile leaves empty
func Default() *Config {
	return &Config{
		Cameras: []Camera{
			{Name: "back", Position: "back", Device: "/dev/video0", Microphone: "default"},
			{Name: "front", Position: "front", Device: "/dev/video2", Microphone: "default"},
		},
		Capture: CaptureConfig{
			Resolution: "auto",
			FrameRate:  30,
			Container:  "mp4",
			Overlay:    true,
		},
		Compression: CompressionConfig{
			Quality: "medium",
			Method:  "auto",
		},
		Location: LocationConfig{
			Enabled:         false,
			Source:          "static",
			GeocodeURL:      "https://nominatim.openstreetmap.org/reverse",
			UserAgent:       "camcapture/1.0",
			Timeout:         15 * time.Second,
			RefreshInterval: time.Minute,
			MQTT: MQTTConfig{
				ClientID: "camcapture",
				MaxAge:   10 * time.Second,
			},
		},
		Library: LibraryConfig{
			Directory: filepath.Join(os.Getenv("HOME"), "Videos", "CamCapture"),
			Album:     "CameraApp",
			Index:     "library.db",
		},
	}
}

func LoadWithProfile(configFile, profile string) (*Config, error) {
	if configFile == "" {
		return nil, fmt.Errorf("no config file specified, use --config flag")
	}

	rootConfig, err := ValidateConfigurationFormat(configFile)
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	configName := profile
	if configName == "" {
		configName = rootConfig.ActiveConfig
	}
	if configName == "" {
		configName = "default"
	}

	selectedProfile, exists := rootConfig.Configs[configName]
	if !exists {
		return nil, fmt.Errorf("configuration profile '%s' not found", configName)
	}

	selectedConfig, err := convertProfileToConfig(selectedProfile, rootConfig.Definitions)
	if err != nil {
		return nil, fmt.Errorf("error resolving configuration profile '%s': %w", configName, err)
	}

	// Global capture settings fill whatever the profile leaves empty
	if rootConfig.Capture != nil {
		if selectedConfig.Capture.Resolution == "" {
			selectedConfig.Capture.Resolution = rootConfig.Capture.Resolution
		}
		if selectedConfig.Capture.FrameRate == 0 {
			selectedConfig.Capture.FrameRate = rootConfig.Capture.FrameRate
		}
		if selectedConfig.Capture.Container == "" {
			selectedConfig.Capture.Container = rootConfig.Capture.Container
		}
	}

	base := Default()
	if configName != "default" {
		if defaultProfile, exists := rootConfig.Configs["default"]; exists {
			resolved, err := convertProfileToConfig(defaultProfile, rootConfig.Definitions)
			if err != nil {
				return nil, fmt.Errorf("error resolving default configuration: %w", err)
			}
			base = mergeConfigs(base, resolved)
		}
	}
	selectedConfig = mergeConfigs(base, selectedConfig)

	// Global library directory always wins over profile-specific directories
	if rootConfig.Globals != nil && rootConfig.Globals.Library.Directory != "" {
		selectedConfig.Library.Directory = rootConfig.Globals.Library.Directory
	}
	selectedConfig.Library.Directory = expandPath(selectedConfig.Library.Directory)

	if err := validateConfig(selectedConfig); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return selectedConfig, nil
}

// UpdateActiveConfig updates the active_config field in the config file
func UpdateActiveConfig(configFile, newActiveConfig string) error {
	if configFile == "" {
		return fmt.Errorf("no config file specified")
	}

	v := viper.New()
	v.SetConfigFile(configFile)

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	v.Set("active_config", newActiveConfig)

	if err := v.WriteConfig(); err != nil {
		return fmt.Errorf("error writing config file %s: %w", configFile, err)
	}

	return nil
}

// convertProfileToConfig converts a ConfigProfile to Config by resolving camera references
func convertProfileToConfig(profile *ConfigProfile, definitions *DefinitionsConfig) (*Config, error) {
	if profile == nil {
		return nil, fmt.Errorf("profile cannot be nil")
	}

	cfg := &Config{
		Capture:     profile.Capture,
		Compression: profile.Compression,
		Location:    profile.Location,
		Library:     profile.Library,
	}

	for i, ref := range profile.Cameras {
		if ref.Ref == "" {
			return nil, fmt.Errorf("cameras[%d]: 'ref' is required", i)
		}

		definition := findDefinition(definitions, ref.Ref)
		if definition == nil {
			return nil, fmt.Errorf("cameras[%d]: reference '%s' not found in definitions", i, ref.Ref)
		}

		camera := Camera{
			Name:       definition.Name,
			Position:   definition.Position,
			Device:     definition.Device,
			Microphone: definition.Microphone,
		}
		if ref.Device != nil {
			camera.Device = *ref.Device
		}
		if ref.Microphone != nil {
			camera.Microphone = *ref.Microphone
		}

		cfg.Cameras = append(cfg.Cameras, camera)
	}

	return cfg, nil
}

func findDefinition(definitions *DefinitionsConfig, id string) *CameraDefinition {
	if definitions == nil {
		return nil
	}
	for i := range definitions.Cameras {
		if definitions.Cameras[i].ID == id {
			return &definitions.Cameras[i]
		}
	}
	return nil
}

// mergeConfigs implements the "Selection & Fallback" inheritance model:
// - Cameras: a profile that lists cameras records only with those; one that lists none inherits all
// - A listed camera missing device/microphone inherits them from the base camera at the same position
// - Every other setting uses the profile value or falls back to base
func mergeConfigs(base, profile *Config) *Config {
	result := &Config{
		Inheritance: &InheritanceInfo{
			Cameras: make(map[string]CameraInheritance),
		},
	}

	if base != nil {
		result.Capture = base.Capture
		result.Compression = base.Compression
		result.Location = base.Location
		result.Library = base.Library

		result.Inheritance.Capture.Resolution = "inherited"
		result.Inheritance.Capture.FrameRate = "inherited"
		result.Inheritance.Capture.Container = "inherited"
		result.Inheritance.Compression.Quality = "inherited"
		result.Inheritance.Compression.Method = "inherited"
		result.Inheritance.Library.Directory = "inherited"
		result.Inheritance.Library.Album = "inherited"
	}

	if profile == nil {
		if base != nil {
			result.Cameras = append(result.Cameras, base.Cameras...)
		}
		return result
	}

	if profile.Capture.Resolution != "" {
		result.Capture.Resolution = profile.Capture.Resolution
		result.Inheritance.Capture.Resolution = "profile-specific"
	}
	if profile.Capture.FrameRate != 0 {
		result.Capture.FrameRate = profile.Capture.FrameRate
		result.Inheritance.Capture.FrameRate = "profile-specific"
	}
	if profile.Capture.Container != "" {
		result.Capture.Container = profile.Capture.Container
		result.Inheritance.Capture.Container = "profile-specific"
	}
	if profile.Capture.MaxDuration != 0 {
		result.Capture.MaxDuration = profile.Capture.MaxDuration
	}
	// Overlay: profile value always takes precedence if the profile is loaded
	result.Capture.Overlay = profile.Capture.Overlay

	if profile.Compression.Quality != "" {
		result.Compression.Quality = profile.Compression.Quality
		result.Inheritance.Compression.Quality = "profile-specific"
	}
	if profile.Compression.Method != "" {
		result.Compression.Method = profile.Compression.Method
		result.Inheritance.Compression.Method = "profile-specific"
	}
	result.Compression.KeepRaw = profile.Compression.KeepRaw

	mergeLocation(&result.Location, profile.Location)

	if profile.Library.Directory != "" {
		result.Library.Directory = profile.Library.Directory
		result.Inheritance.Library.Directory = "profile-specific"
	}
	if profile.Library.Album != "" {
		result.Library.Album = profile.Library.Album
		result.Inheritance.Library.Album = "profile-specific"
	}
	if profile.Library.Index != "" {
		result.Library.Index = profile.Library.Index
	}
	if profile.Library.S3.Enabled {
		result.Library.S3 = profile.Library.S3
	}

	if len(profile.Cameras) == 0 && base != nil {
		for _, camera := range base.Cameras {
			result.Cameras = append(result.Cameras, camera)
			result.Inheritance.Cameras[camera.Name] = CameraInheritance{Device: "inherited", Microphone: "inherited"}
		}
		return result
	}

	result.Cameras = make([]Camera, 0, len(profile.Cameras))
	for _, profileCamera := range profile.Cameras {
		resolved := profileCamera
		inheritance := CameraInheritance{Device: "profile-specific", Microphone: "profile-specific"}

		if base != nil {
			for _, baseCamera := range base.Cameras {
				if baseCamera.Position != profileCamera.Position {
					continue
				}
				if resolved.Device == "" {
					resolved.Device = baseCamera.Device
					inheritance.Device = "inherited"
				}
				if resolved.Microphone == "" {
					resolved.Microphone = baseCamera.Microphone
					inheritance.Microphone = "inherited"
				}
				break
			}
		}

		if resolved.Microphone == "" {
			resolved.Microphone = "default"
		}

		result.Inheritance.Cameras[resolved.Name] = inheritance
		result.Cameras = append(result.Cameras, resolved)
	}

	return result
}

func mergeLocation(dst *LocationConfig, profile LocationConfig) {
	dst.Enabled = profile.Enabled
	if profile.Source != "" {
		dst.Source = profile.Source
	}
	if profile.Latitude != 0 || profile.Longitude != 0 {
		dst.Latitude = profile.Latitude
		dst.Longitude = profile.Longitude
	}
	if profile.MQTT.Broker != "" {
		dst.MQTT.Broker = profile.MQTT.Broker
	}
	if profile.MQTT.Topic != "" {
		dst.MQTT.Topic = profile.MQTT.Topic
	}
	if profile.MQTT.ClientID != "" {
		dst.MQTT.ClientID = profile.MQTT.ClientID
	}
	if profile.MQTT.MaxAge != 0 {
		dst.MQTT.MaxAge = profile.MQTT.MaxAge
	}
	if profile.GeocodeURL != "" {
		dst.GeocodeURL = profile.GeocodeURL
	}
	if profile.UserAgent != "" {
		dst.UserAgent = profile.UserAgent
	}
	if profile.Timeout != 0 {
		dst.Timeout = profile.Timeout
	}
	if profile.RefreshInterval != 0 {
		dst.RefreshInterval = profile.RefreshInterval
	}
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[2:])
	}
	return path
}

// CameraAt returns the camera configured for a position
func (c *Config) CameraAt(position string) (Camera, bool) {
	for _, camera := range c.Cameras {
		if camera.Position == position {
			return camera, true
		}
	}
	return Camera{}, false
}

// IndexPath returns the absolute path of the library index database
func (c *Config) IndexPath() string {
	if filepath.IsAbs(c.Library.Index) {
		return c.Library.Index
	}
	return filepath.Join(c.Library.Directory, c.Library.Index)
}
