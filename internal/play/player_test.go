package play

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestFindVideoPlayer_Preference(t *testing.T) {
	available := map[string]bool{"vlc": true, "ffplay": true}
	p := &Player{lookPath: func(file string) (string, error) {
		if available[file] {
			return "/usr/bin/" + file, nil
		}
		return "", errors.New("not found")
	}}

	got, err := p.findVideoPlayer()
	if err != nil {
		t.Fatalf("findVideoPlayer() error = %v", err)
	}
	if got != "vlc" {
		t.Errorf("findVideoPlayer() = %q, want vlc", got)
	}
}

func TestFindVideoPlayer_None(t *testing.T) {
	p := &Player{lookPath: func(string) (string, error) { return "", errors.New("not found") }}

	_, err := p.findVideoPlayer()
	if err == nil || !strings.Contains(err.Error(), "mpv, vlc, ffplay") {
		t.Errorf("findVideoPlayer() error = %v, want list of tried players", err)
	}
}

func TestPlayerArgs(t *testing.T) {
	tests := []struct {
		player string
		want   []string
	}{
		{"vlc", []string{"--play-and-exit", "/v.mp4"}},
		{"mpv", []string{"--keep-open=no", "/v.mp4"}},
		{"ffplay", []string{"-autoexit", "-hide_banner", "/v.mp4"}},
	}
	for _, tt := range tests {
		if got := playerArgs(tt.player, "/v.mp4"); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("playerArgs(%q) = %v, want %v", tt.player, got, tt.want)
		}
	}
}

func TestPlay_MissingFile(t *testing.T) {
	p := New()
	missing := "file://" + filepath.Join(t.TempDir(), "nope.mp4")

	err := p.Play(context.Background(), missing)
	if err == nil || !strings.Contains(err.Error(), "video file not found") {
		t.Errorf("Play() error = %v, want not found", err)
	}
}

func TestPlay_NoPlayer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v.mp4")
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	p := &Player{lookPath: func(string) (string, error) { return "", errors.New("not found") }}

	err := p.Play(context.Background(), "file://"+path)
	if err == nil || !strings.Contains(err.Error(), "no suitable video player") {
		t.Errorf("Play() error = %v, want no player", err)
	}
}
