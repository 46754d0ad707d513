package cmd

import (
	"fmt"

	"github.com/audiolibrelab/camcapture/internal/play"
	"github.com/audiolibrelab/camcapture/internal/service"

	"github.com/spf13/cobra"
)

var playCmd = &cobra.Command{
	Use:   "play [video-id]",
	Short: "Play a video from the library",
	Long: `Play a library video with the first available player (mpv, vlc or ffplay).
Video IDs are listed by 'camcapture gallery'.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		gallery, closeGallery, err := service.OpenGallery(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer closeGallery()

		asset, err := gallery.Get(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to find video: %w", err)
		}

		fmt.Printf("Playing: %s\n", asset.Filename)
		if err := play.New().Play(cmd.Context(), asset.URI); err != nil {
			return fmt.Errorf("playback failed: %w", err)
		}
		return nil
	},
}
