package device

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/audiolibrelab/camcapture/internal/format"
)

// ListDevices returns the V4L2 nodes present on the system
func ListDevices() ([]string, error) {
	devices, err := filepath.Glob("/dev/video*")
	if err != nil {
		return nil, fmt.Errorf("failed to list video devices: %w", err)
	}
	sort.Strings(devices)
	return devices, nil
}

// ListFormats asks ffmpeg which frame sizes a V4L2 device supports
func ListFormats(ctx context.Context, device string) ([]format.Format, error) {
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-hide_banner",
		"-f", "v4l2",
		"-list_formats", "all",
		"-i", device,
	)

	// ffmpeg exits non-zero after listing ("Immediate exit requested"), so the
	// output decides success rather than the exit status.
	output, err := cmd.CombinedOutput()
	formats := parseFormats(string(output))
	if len(formats) == 0 {
		if err != nil {
			return nil, fmt.Errorf("failed to list formats for %s: %w (output: %s)", device, err, strings.TrimSpace(string(output)))
		}
		return nil, fmt.Errorf("no formats reported for %s", device)
	}

	slog.Debug("Device formats listed", "device", device, "count", len(formats))
	return formats, nil
}

// parseFormats extracts formats from ffmpeg -list_formats output lines such as
// "[video4linux2,v4l2 @ 0x5a] Compressed:       mjpeg :          Motion-JPEG : 640x480 1280x720"
func parseFormats(output string) []format.Format {
	var formats []format.Format
	seen := make(map[string]bool)

	for _, line := range strings.Split(output, "\n") {
		if idx := strings.Index(line, "]"); idx != -1 {
			line = line[idx+1:]
		}
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "Raw") && !strings.HasPrefix(line, "Compressed") {
			continue
		}

		// The label is padded differently for Raw and Compressed, and the
		// description may contain colons ("YUYV 4:2:2"), so only the first
		// and last separators are reliable.
		_, rest, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		pixelFormat, rest, ok := strings.Cut(rest, ":")
		if !ok {
			continue
		}
		pixelFormat = strings.TrimSpace(pixelFormat)
		last := strings.LastIndex(rest, ":")
		if pixelFormat == "" || last == -1 {
			continue
		}

		for _, size := range strings.Fields(rest[last+1:]) {
			width, height, ok := parseSize(size)
			if !ok {
				continue
			}
			id := fmt.Sprintf("%s-%dx%d", pixelFormat, width, height)
			if seen[id] {
				continue
			}
			seen[id] = true
			formats = append(formats, format.Format{
				ID:          id,
				Width:       width,
				Height:      height,
				PixelFormat: pixelFormat,
			})
		}
	}

	return formats
}

func parseSize(s string) (int, int, bool) {
	w, h, found := strings.Cut(s, "x")
	if !found {
		return 0, 0, false
	}
	width, err := strconv.Atoi(w)
	if err != nil || width <= 0 {
		return 0, 0, false
	}
	height, err := strconv.Atoi(h)
	if err != nil || height <= 0 {
		return 0, 0, false
	}
	return width, height, true
}
