package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/audiolibrelab/camcapture/internal/config"
	"github.com/joho/godotenv"

	"github.com/spf13/cobra"
)

var (
	cfg          *config.Config
	cfgFile      string
	envFile      string
	profile      string
	verboseLevel int
)

var rootCmd = &cobra.Command{
	Use:   "camcapture",
	Short: "Video recording with live location overlay",
	Long: `CamCapture records video from V4L2 cameras with ffmpeg, burns a live
timestamp and location overlay into the picture, compresses the result
and saves it to a local media library (optionally mirrored to S3).

Run 'camcapture record' for the terminal camera screen or
'camcapture serve' to control recording from a phone on the same network.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Configure slog based on verbose level
		setupLogging(verboseLevel)
		loadEnv()

		// Device listing works without a config file
		if cmd.Name() == "devices" && cfgFile == "" {
			return nil
		}

		// Use default config path if not specified
		if cfgFile == "" {
			cfgFile = os.ExpandEnv("$HOME/.config/camcapture.yaml")
		}

		var err error
		cfg, err = config.LoadWithProfile(cfgFile, profile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/camcapture.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file with S3 credentials")
	rootCmd.PersistentFlags().StringVar(&profile, "profile", "", "configuration profile to use (overrides active_config from file)")
	rootCmd.PersistentFlags().IntVarP(&verboseLevel, "verbose", "v", 0, "verbose level: 0=info, 1=debug, 2=ffmpeg output, 3=max tracing")

	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(galleryCmd)
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(formatsCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(infoCmd)
}

// loadEnv reads AWS credentials and other overrides from the dotenv file when present
func loadEnv() {
	if envFile == "" {
		return
	}
	if _, err := os.Stat(envFile); err != nil {
		return
	}
	if err := godotenv.Load(envFile); err != nil {
		slog.Warn("Could not load env file", "file", envFile, "error", err)
		return
	}
	slog.Debug("Loaded env file", "file", envFile)
}

// setupLogging configures slog based on the verbose level
func setupLogging(level int) {
	var slogLevel slog.Level
	switch level {
	case 0:
		slogLevel = slog.LevelInfo
	case 1, 2, 3:
		// Level 2 and 3 both use Debug level for slog
		// Level 3 will additionally set environment variables
		slogLevel = slog.LevelDebug
	default:
		slogLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: slogLevel,
	}
	handler := slog.NewTextHandler(os.Stderr, opts)
	slog.SetDefault(slog.New(handler))

	// ffmpeg chatter is only useful from level 2 up
	if level >= 2 {
		os.Setenv("FFMPEG_LOGLEVEL", "info")
	}
	if level >= 3 {
		os.Setenv("FFMPEG_LOGLEVEL", "debug")
	}
}
