package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/audiolibrelab/camcapture/internal/library"
	"github.com/audiolibrelab/camcapture/internal/service"

	"github.com/spf13/cobra"
)

var galleryCmd = &cobra.Command{
	Use:   "gallery",
	Short: "List the most recent videos in the library",
	Long:  `List recent videos from the media library, newest first, with their ID, duration and file name. Use the ID with 'camcapture play'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		count, _ := cmd.Flags().GetInt("count")

		gallery, closeGallery, err := service.OpenGallery(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer closeGallery()

		assets, err := gallery.ListRecent(cmd.Context(), library.AssetVideos, count)
		if err != nil {
			return fmt.Errorf("failed to list videos: %w", err)
		}
		if len(assets) == 0 {
			fmt.Println("No videos yet.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tDURATION\tSIZE\tRESOLUTION\tCREATED\tFILE")
		for _, a := range assets {
			resolution := "-"
			if a.Width > 0 && a.Height > 0 {
				resolution = fmt.Sprintf("%dx%d", a.Width, a.Height)
			}
			fmt.Fprintf(w, "%s\t%.0fs\t%s\t%s\t%s\t%s\n",
				a.ID, a.DurationSeconds, service.FormatBytes(a.SizeBytes), resolution,
				a.CreatedAt.Local().Format("2006-01-02 15:04"), a.Filename)
		}
		return w.Flush()
	},
}

func init() {
	galleryCmd.Flags().IntP("count", "n", service.GalleryCount, "number of videos to show")
}
