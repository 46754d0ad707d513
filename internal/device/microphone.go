package device

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"regexp"
	"strings"
)

// MicrophoneDisabled records video without an audio track
const MicrophoneDisabled = "disabled"

var numericALSA = regexp.MustCompile(`^(plug)?hw:\d+(,\d+)?$`)

// ListMicrophones returns the ALSA capture PCM names reported by arecord -L
func ListMicrophones(ctx context.Context) ([]string, error) {
	cmd := exec.CommandContext(ctx, "arecord", "-L")
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("failed to list ALSA capture devices: %w", err)
	}
	return parseMicrophones(string(output)), nil
}

// parseMicrophones keeps the unindented lines; indented lines are descriptions
func parseMicrophones(output string) []string {
	var names []string
	for _, line := range strings.Split(output, "\n") {
		if line == "" || line[0] == ' ' || line[0] == '\t' {
			continue
		}
		name := strings.TrimSpace(line)
		if name == "null" {
			continue
		}
		names = append(names, name)
	}
	return names
}

// ValidateMicrophone checks that name is usable given the available PCM names.
// Numeric hw:N,M forms are not listed by name and are accepted as is.
func ValidateMicrophone(name string, available []string) error {
	switch name {
	case "", MicrophoneDisabled, "default":
		return nil
	}
	if numericALSA.MatchString(name) {
		return nil
	}
	for _, mic := range available {
		if mic == name {
			return nil
		}
	}
	return fmt.Errorf("microphone not found: %s", name)
}

// resolveMicrophone falls back to a silent recording when the configured
// microphone is missing. If the list itself is unavailable the name is kept.
func resolveMicrophone(ctx context.Context, name string, list func(ctx context.Context) ([]string, error)) string {
	if name == "" || name == MicrophoneDisabled || list == nil {
		return name
	}
	available, err := list(ctx)
	if err != nil {
		slog.Debug("Could not list microphones", "error", err)
		return name
	}
	if err := ValidateMicrophone(name, available); err != nil {
		slog.Warn("Recording without audio", "error", err)
		return MicrophoneDisabled
	}
	return name
}
