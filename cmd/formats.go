package cmd

import (
	"fmt"

	"github.com/audiolibrelab/camcapture/internal/device"
	"github.com/audiolibrelab/camcapture/internal/format"

	"github.com/spf13/cobra"
)

var formatsCmd = &cobra.Command{
	Use:   "formats",
	Short: "Show capture formats of the configured cameras",
	Long:  `List the formats each configured camera reports and the format chosen for every resolution tier.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, cam := range cfg.Cameras {
			fmt.Printf("=== %s (%s, %s) ===\n", cam.Name, cam.Position, cam.Device)

			formats, err := device.ListFormats(cmd.Context(), cam.Device)
			if err != nil {
				fmt.Printf("  unavailable: %v\n\n", err)
				continue
			}
			for _, f := range formats {
				fmt.Printf("  %s\n", f)
			}

			fmt.Printf("\n  selection:\n")
			for _, tier := range format.Tiers {
				selected, err := format.Select(formats, tier)
				if err != nil {
					fmt.Printf("    %-5s -> %v\n", tier, err)
					continue
				}
				fmt.Printf("    %-5s -> %s\n", tier, selected.Size())
			}
			fmt.Println()
		}
		return nil
	},
}
