package cmd

import (
	"fmt"

	"github.com/audiolibrelab/camcapture/internal/device"

	"github.com/spf13/cobra"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List available video devices and microphones",
	Long: `List the V4L2 video device nodes and ALSA capture devices that can be used in
definitions.cameras[].device and definitions.cameras[].microphone.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		devices, err := device.ListDevices()
		if err != nil {
			return fmt.Errorf("failed to list video devices: %w", err)
		}

		fmt.Printf("Video devices (%d found):\n", len(devices))
		for i, d := range devices {
			fmt.Printf("  %d. %s\n", i+1, d)
		}
		if len(devices) == 0 {
			fmt.Println("  none - is a camera connected and the v4l2 driver loaded?")
		}

		mics, err := device.ListMicrophones(cmd.Context())
		if err != nil {
			fmt.Printf("\nMicrophones: %v\n", err)
		} else {
			fmt.Printf("\nMicrophones (%d found):\n", len(mics))
			for i, m := range mics {
				fmt.Printf("  %d. %s\n", i+1, m)
			}
			fmt.Printf("  Use \"disabled\" to record without audio.\n")
		}

		fmt.Printf("\nRun 'camcapture formats' to see what each configured camera supports.\n")
		return nil
	},
}
