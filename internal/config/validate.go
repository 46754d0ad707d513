package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

var validPositions = map[string]bool{"back": true, "front": true}

// ValidateConfigurationFormat validates the configuration file format and returns parsed config
func ValidateConfigurationFormat(configFile string) (*RootConfig, error) {
	v := viper.New()
	v.SetConfigFile(configFile)

	v.SetEnvPrefix("CAMCAPTURE")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	var rootConfig RootConfig
	if err := v.Unmarshal(&rootConfig); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validateDefinitions(rootConfig.Definitions); err != nil {
		return nil, fmt.Errorf("invalid definitions: %w", err)
	}

	for configName, profile := range rootConfig.Configs {
		if profile == nil {
			return nil, fmt.Errorf("invalid config '%s': profile is empty", configName)
		}
		if err := validateCameraReferences(profile.Cameras, rootConfig.Definitions); err != nil {
			return nil, fmt.Errorf("invalid config '%s': %w", configName, err)
		}
	}

	return &rootConfig, nil
}

// validateDefinitions validates the definitions section
func validateDefinitions(definitions *DefinitionsConfig) error {
	if definitions == nil {
		return fmt.Errorf("definitions section is required")
	}

	if len(definitions.Cameras) == 0 {
		return fmt.Errorf("definitions.cameras cannot be empty")
	}

	seenIDs := make(map[string]bool)

	for i, def := range definitions.Cameras {
		if def.ID == "" {
			return fmt.Errorf("definitions.cameras[%d]: 'id' is required", i)
		}
		if seenIDs[def.ID] {
			return fmt.Errorf("definitions.cameras[%d]: duplicate ID '%s'", i, def.ID)
		}
		seenIDs[def.ID] = true

		if err := validateCameraDefinition(def, fmt.Sprintf("definitions.cameras[%d]", i)); err != nil {
			return err
		}
	}

	return nil
}

// validateCameraDefinition validates a single camera definition
func validateCameraDefinition(def CameraDefinition, prefix string) error {
	if def.Name == "" {
		return fmt.Errorf("%s: 'name' is required", prefix)
	}

	if def.Position == "" {
		return fmt.Errorf("%s: 'position' is required", prefix)
	}
	if !validPositions[def.Position] {
		return fmt.Errorf("%s: 'position' must be 'back' or 'front', got: %s", prefix, def.Position)
	}

	if def.Device == "" {
		return fmt.Errorf("%s: 'device' is required", prefix)
	}
	if !isValidDevicePath(def.Device) {
		return fmt.Errorf("%s: 'device' must be a V4L2 device path (e.g. /dev/video0), got: %s", prefix, def.Device)
	}

	if def.Microphone != "" && !isValidMicrophone(def.Microphone) {
		return fmt.Errorf("%s: 'microphone' must be an ALSA device name, got: %s", prefix, def.Microphone)
	}

	return nil
}

// validateCameraReferences validates camera references in a config profile
func validateCameraReferences(cameras []CameraReference, definitions *DefinitionsConfig) error {
	seenPositions := make(map[string]string)

	for i, ref := range cameras {
		prefix := fmt.Sprintf("cameras[%d]", i)

		if ref.Ref == "" {
			return fmt.Errorf("%s: 'ref' is required", prefix)
		}

		def := findDefinition(definitions, ref.Ref)
		if def == nil {
			return fmt.Errorf("%s: references undefined camera definition '%s'", prefix, ref.Ref)
		}

		if other, exists := seenPositions[def.Position]; exists {
			return fmt.Errorf("%s: position '%s' already used by '%s'", prefix, def.Position, other)
		}
		seenPositions[def.Position] = ref.Ref

		if ref.Device != nil && !isValidDevicePath(*ref.Device) {
			return fmt.Errorf("%s: device override must be a V4L2 device path, got %s", prefix, *ref.Device)
		}
		if ref.Microphone != nil && !isValidMicrophone(*ref.Microphone) {
			return fmt.Errorf("%s: microphone override must be an ALSA device name, got %s", prefix, *ref.Microphone)
		}
	}

	return nil
}

// validateConfig checks the fully resolved configuration
func validateConfig(cfg *Config) error {
	if len(cfg.Cameras) == 0 {
		return fmt.Errorf("at least one camera is required")
	}

	for i, camera := range cfg.Cameras {
		if camera.Name == "" {
			return fmt.Errorf("camera[%d] must have a name", i)
		}
		if !validPositions[camera.Position] {
			return fmt.Errorf("camera[%d] '%s' position must be 'back' or 'front', got: %s", i, camera.Name, camera.Position)
		}
		if !isValidDevicePath(camera.Device) {
			return fmt.Errorf("camera[%d] '%s' device must be a V4L2 device path, got: %s", i, camera.Name, camera.Device)
		}
	}

	switch strings.ToLower(cfg.Capture.Resolution) {
	case "auto", "720p", "1080p", "4k":
	default:
		return fmt.Errorf("capture.resolution must be one of auto, 720p, 1080p, 4k, got: %s", cfg.Capture.Resolution)
	}

	if cfg.Capture.FrameRate <= 0 {
		return fmt.Errorf("capture.frame_rate must be > 0, got: %d", cfg.Capture.FrameRate)
	}

	if cfg.Capture.Container != "mp4" && cfg.Capture.Container != "mkv" {
		return fmt.Errorf("capture.container must be 'mp4' or 'mkv', got: %s", cfg.Capture.Container)
	}

	switch cfg.Compression.Quality {
	case "low", "medium", "high":
	default:
		return fmt.Errorf("compression.quality must be one of low, medium, high, got: %s", cfg.Compression.Quality)
	}

	if cfg.Compression.Method != "auto" && cfg.Compression.Method != "manual" {
		return fmt.Errorf("compression.method must be 'auto' or 'manual', got: %s", cfg.Compression.Method)
	}

	if cfg.Location.Enabled {
		switch cfg.Location.Source {
		case "static":
			if cfg.Location.Latitude < -90 || cfg.Location.Latitude > 90 {
				return fmt.Errorf("location.latitude out of range: %f", cfg.Location.Latitude)
			}
			if cfg.Location.Longitude < -180 || cfg.Location.Longitude > 180 {
				return fmt.Errorf("location.longitude out of range: %f", cfg.Location.Longitude)
			}
		case "mqtt":
			if cfg.Location.MQTT.Broker == "" || cfg.Location.MQTT.Topic == "" {
				return fmt.Errorf("location.mqtt.broker and location.mqtt.topic are required for the mqtt source")
			}
		default:
			return fmt.Errorf("location.source must be 'static' or 'mqtt', got: %s", cfg.Location.Source)
		}
	}

	if cfg.Library.Directory == "" {
		return fmt.Errorf("library.directory is required")
	}
	if cfg.Library.Album == "" {
		return fmt.Errorf("library.album is required")
	}
	if strings.ContainsAny(cfg.Library.Album, `/\`) {
		return fmt.Errorf("library.album must not contain path separators, got: %s", cfg.Library.Album)
	}
	if cfg.Library.S3.Enabled && (cfg.Library.S3.Bucket == "" || cfg.Library.S3.Region == "") {
		return fmt.Errorf("library.s3.bucket and library.s3.region are required when s3 is enabled")
	}

	return nil
}

// isValidDevicePath checks for an absolute /dev path
func isValidDevicePath(device string) bool {
	device = strings.TrimSpace(device)
	if !strings.HasPrefix(device, "/dev/") {
		return false
	}
	return len(device) > len("/dev/")
}

// isValidMicrophone accepts ALSA names like "default", "hw:1,0", "plughw:CARD=Mic,DEV=0" and "disabled"
func isValidMicrophone(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" || name == "disabled" || name == "default" {
		return true
	}

	if strings.Contains(name, ":") {
		lastColon := strings.LastIndex(name, ":")
		card := strings.TrimSpace(name[:lastColon])
		spec := strings.TrimSpace(name[lastColon+1:])
		return len(card) > 0 && len(spec) > 0
	}

	return !strings.ContainsAny(name, " \t/")
}
