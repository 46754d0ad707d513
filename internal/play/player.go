package play

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

const fileScheme = "file://"

// Players lists the supported video players in order of preference
var Players = []string{"mpv", "vlc", "ffplay"}

type Player struct {
	lookPath func(file string) (string, error)
}

func New() *Player {
	return &Player{lookPath: exec.LookPath}
}

// Play opens the video at uri (a path or file:// URI) and blocks until the player exits
func (p *Player) Play(ctx context.Context, uri string) error {
	videoFile := strings.TrimPrefix(uri, fileScheme)

	if _, err := os.Stat(videoFile); err != nil {
		return fmt.Errorf("video file not found: %s", videoFile)
	}

	player, err := p.findVideoPlayer()
	if err != nil {
		return fmt.Errorf("no suitable video player found: %w", err)
	}

	args := playerArgs(player, videoFile)
	slog.Info("Playing video", "file", videoFile, "player", player)

	cmd := exec.CommandContext(ctx, player, args...)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("playback failed with %s: %w", player, err)
	}

	slog.Debug("Playback completed", "file", videoFile)
	return nil
}

func playerArgs(player, videoFile string) []string {
	switch player {
	case "vlc":
		return []string{"--play-and-exit", videoFile}
	case "mpv":
		return []string{"--keep-open=no", videoFile}
	case "ffplay":
		return []string{"-autoexit", "-hide_banner", videoFile}
	}
	return []string{videoFile}
}

func (p *Player) findVideoPlayer() (string, error) {
	for _, player := range Players {
		if _, err := p.lookPath(player); err == nil {
			return player, nil
		}
	}
	return "", fmt.Errorf("no video player found (tried: %s)", strings.Join(Players, ", "))
}
