package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/audiolibrelab/camcapture/internal/play"
	"github.com/audiolibrelab/camcapture/internal/server"
	"github.com/audiolibrelab/camcapture/internal/service"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server for remote control",
	Long: `Start the CamCapture web server to control recording via a web interface.
This allows you to control the camera from your smartphone or any device on the same network.

The camera is active while a browser tab has the control page visible.
The server will display the local network URL for easy access from mobile devices.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetString("port")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		svc, err := service.New(ctx, cfg, cfgFile, service.Build, play.New())
		if err != nil {
			return fmt.Errorf("failed to start camera session: %w", err)
		}
		defer svc.Close()

		srv := server.New(svc, cfgFile, port)
		slog.Info("CamCapture web server starting", "port", port, "config", cfgFile)

		if err := srv.Start(ctx); err != nil {
			return fmt.Errorf("server failed: %w", err)
		}

		// Give an in-flight save the chance to complete
		waitForIdle(context.Background(), svc)
		return nil
	},
}

func init() {
	serveCmd.Flags().String("port", "8080", "port for the web server")
}
