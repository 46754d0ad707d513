package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show resolved configuration",
	Long:  `Display the resolved configuration with inheritance indicators. Shows which values are inherited from default vs profile-specific.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Inheritance == nil {
			return fmt.Errorf("no inheritance information available")
		}
		inh := cfg.Inheritance

		fmt.Printf("=== FILE PATHS ===\n")
		fmt.Printf("library: %s\n", cfg.Library.Directory)
		fmt.Printf("index: %s\n", cfg.IndexPath())

		fmt.Printf("\n=== RESOLVED CONFIGURATION ===\n")

		fmt.Printf("\n[Cameras]\n")
		for i, camera := range cfg.Cameras {
			camInheritance := inh.Cameras[camera.Name]
			fmt.Printf("%d. name: %s\n", i, camera.Name)
			fmt.Printf("   position: %s\n", camera.Position)
			fmt.Printf("   device: %s %s\n", camera.Device, getInheritanceIndicator(camInheritance.Device))
			fmt.Printf("   microphone: %s %s\n", camera.Microphone, getInheritanceIndicator(camInheritance.Microphone))
		}

		fmt.Printf("\n[Capture]\n")
		fmt.Printf("resolution: %s %s\n", cfg.Capture.Resolution, getInheritanceIndicator(inh.Capture.Resolution))
		fmt.Printf("frame_rate: %d %s\n", cfg.Capture.FrameRate, getInheritanceIndicator(inh.Capture.FrameRate))
		fmt.Printf("container: %s %s\n", cfg.Capture.Container, getInheritanceIndicator(inh.Capture.Container))
		fmt.Printf("overlay: %t\n", cfg.Capture.Overlay)
		if cfg.Capture.MaxDuration > 0 {
			fmt.Printf("max_duration: %s\n", cfg.Capture.MaxDuration)
		}

		fmt.Printf("\n[Compression]\n")
		fmt.Printf("quality: %s %s\n", cfg.Compression.Quality, getInheritanceIndicator(inh.Compression.Quality))
		fmt.Printf("method: %s %s\n", cfg.Compression.Method, getInheritanceIndicator(inh.Compression.Method))
		fmt.Printf("keep_raw: %t\n", cfg.Compression.KeepRaw)

		fmt.Printf("\n[Location]\n")
		fmt.Printf("enabled: %t\n", cfg.Location.Enabled)
		if cfg.Location.Enabled {
			fmt.Printf("source: %s\n", cfg.Location.Source)
			switch cfg.Location.Source {
			case "mqtt":
				fmt.Printf("broker: %s topic: %s\n", cfg.Location.MQTT.Broker, cfg.Location.MQTT.Topic)
			default:
				fmt.Printf("position: %.5f, %.5f\n", cfg.Location.Latitude, cfg.Location.Longitude)
			}
			fmt.Printf("geocoder: %s\n", cfg.Location.GeocodeURL)
		}

		fmt.Printf("\n[Library]\n")
		fmt.Printf("directory: %s %s\n", cfg.Library.Directory, getInheritanceIndicator(inh.Library.Directory))
		fmt.Printf("album: %s %s\n", cfg.Library.Album, getInheritanceIndicator(inh.Library.Album))
		if cfg.Library.S3.Enabled {
			fmt.Printf("s3: s3://%s/%s (%s)\n", cfg.Library.S3.Bucket, cfg.Library.S3.Prefix, cfg.Library.S3.Region)
		}

		return nil
	},
}

// getInheritanceIndicator returns a formatted indicator for inheritance status
func getInheritanceIndicator(status string) string {
	switch status {
	case "inherited":
		return "[inherited]"
	case "profile-specific":
		return "[profile-specific]"
	default:
		return "[unknown]"
	}
}
