package config

import (
	"strings"
	"testing"
)

func TestValidateConfigurationFormat_ValidConfig(t *testing.T) {
	configFile := createTempConfig(t, fullConfig)

	rootConfig, err := ValidateConfigurationFormat(configFile)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if rootConfig.Definitions == nil || len(rootConfig.Definitions.Cameras) != 2 {
		t.Fatalf("Expected 2 camera definitions, got %+v", rootConfig.Definitions)
	}

	def := rootConfig.Definitions.Cameras[0]
	if def.ID != "rear" || def.Position != "back" || def.Device != "/dev/video0" {
		t.Errorf("Invalid first definition: %+v", def)
	}

	studio := rootConfig.Configs["studio"]
	if studio == nil {
		t.Fatal("Expected studio config")
	}
	if len(studio.Cameras) != 1 || studio.Cameras[0].Device == nil || *studio.Cameras[0].Device != "/dev/video4" {
		t.Errorf("Expected device override on studio camera, got %+v", studio.Cameras)
	}
}

func TestValidateConfigurationFormat_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "missing definitions",
			content: `
configs:
  default:
    cameras:
      - ref: rear
`,
			wantErr: "definitions section is required",
		},
		{
			name: "duplicate id",
			content: `
definitions:
  cameras:
    - {id: rear, name: back, position: back, device: /dev/video0}
    - {id: rear, name: other, position: front, device: /dev/video1}
configs:
  default: {}
`,
			wantErr: "duplicate ID 'rear'",
		},
		{
			name: "bad position",
			content: `
definitions:
  cameras:
    - {id: rear, name: back, position: side, device: /dev/video0}
configs:
  default: {}
`,
			wantErr: "'position' must be 'back' or 'front'",
		},
		{
			name: "bad device path",
			content: `
definitions:
  cameras:
    - {id: rear, name: back, position: back, device: video0}
configs:
  default: {}
`,
			wantErr: "V4L2 device path",
		},
		{
			name: "undefined reference",
			content: `
definitions:
  cameras:
    - {id: rear, name: back, position: back, device: /dev/video0}
configs:
  default:
    cameras:
      - ref: missing
`,
			wantErr: "undefined camera definition 'missing'",
		},
		{
			name: "two cameras at one position",
			content: `
definitions:
  cameras:
    - {id: a, name: a, position: back, device: /dev/video0}
    - {id: b, name: b, position: back, device: /dev/video1}
configs:
  default:
    cameras:
      - ref: a
      - ref: b
`,
			wantErr: "position 'back' already used",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configFile := createTempConfig(t, tt.content)
			_, err := ValidateConfigurationFormat(configFile)
			if err == nil {
				t.Fatalf("Expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidateConfig_ResolvedValues(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.Library.Directory = "/tmp/videos"
		return cfg
	}

	if err := validateConfig(valid()); err != nil {
		t.Fatalf("Expected default config to be valid, got %v", err)
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"resolution", func(c *Config) { c.Capture.Resolution = "8k" }, "capture.resolution"},
		{"frame rate", func(c *Config) { c.Capture.FrameRate = 0 }, "capture.frame_rate"},
		{"container", func(c *Config) { c.Capture.Container = "avi" }, "capture.container"},
		{"quality", func(c *Config) { c.Compression.Quality = "ultra" }, "compression.quality"},
		{"album separator", func(c *Config) { c.Library.Album = "a/b" }, "path separators"},
		{"no cameras", func(c *Config) { c.Cameras = nil }, "at least one camera"},
		{"latitude", func(c *Config) {
			c.Location.Enabled = true
			c.Location.Latitude = 91
		}, "latitude out of range"},
		{"mqtt without topic", func(c *Config) {
			c.Location.Enabled = true
			c.Location.Source = "mqtt"
			c.Location.MQTT.Broker = "tcp://localhost:1883"
		}, "location.mqtt.broker"},
		{"s3 without bucket", func(c *Config) {
			c.Library.S3.Enabled = true
			c.Library.S3.Region = "eu-west-1"
		}, "library.s3.bucket"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := validateConfig(cfg)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestIsValidMicrophone(t *testing.T) {
	valid := []string{"", "default", "disabled", "hw:1,0", "plughw:CARD=Mic,DEV=0", "pulse"}
	for _, name := range valid {
		if !isValidMicrophone(name) {
			t.Errorf("Expected %q to be valid", name)
		}
	}

	invalid := []string{":0", "hw:", "my mic", "/dev/snd"}
	for _, name := range invalid {
		if isValidMicrophone(name) {
			t.Errorf("Expected %q to be invalid", name)
		}
	}
}
