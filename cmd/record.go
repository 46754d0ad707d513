package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/audiolibrelab/camcapture/internal/play"
	"github.com/audiolibrelab/camcapture/internal/service"
	"github.com/audiolibrelab/camcapture/internal/session"
	"github.com/audiolibrelab/camcapture/internal/tui"

	"github.com/spf13/cobra"
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Open the terminal camera screen",
	Long: `Open the camera screen in the terminal. Space starts and stops a recording,
p pauses and resumes, c switches between the back and front camera.

While the screen is open, logs go to camcapture.log in the library directory.
Leaving the terminal window deactivates the camera until it is focused again.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logFile, err := redirectLogs(filepath.Join(cfg.Library.Directory, "camcapture.log"))
		if err != nil {
			return err
		}
		defer logFile.Close()

		svc, err := service.New(cmd.Context(), cfg, cfgFile, service.Build, play.New())
		if err != nil {
			return fmt.Errorf("failed to start camera session: %w", err)
		}
		defer svc.Close()

		slog.Info("Camera screen opened", "profile", profile)
		if err := tui.Run(svc); err != nil {
			return fmt.Errorf("camera screen failed: %w", err)
		}

		// Let a save that is still running finish before exiting
		waitForIdle(cmd.Context(), svc)
		return nil
	},
}

// redirectLogs sends slog output to path so it does not draw over the screen
func redirectLogs(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	level := slog.LevelInfo
	if verboseLevel >= 1 {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: level})))
	return f, nil
}

// waitForIdle stops a recording left running and blocks until it is saved
func waitForIdle(ctx context.Context, svc service.Service) {
	events, unsubscribe := svc.Subscribe()
	defer unsubscribe()

	announced := false
	for {
		st, err := svc.Status()
		if err != nil {
			return
		}
		switch {
		case st.Recording():
			fmt.Println("Stopping recording...")
			if err := svc.Stop(); err != nil {
				slog.Error("Stop on exit failed", "error", err)
				return
			}
			continue
		case st.State == session.StateInitializing:
		case st.State == session.StateStopping || st.State == session.StateFinalizing:
			if !announced {
				fmt.Println("Saving video...")
				announced = true
			}
		default:
			return
		}

		select {
		case _, ok := <-events:
			if !ok {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
