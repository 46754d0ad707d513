package format

import (
	"errors"
	"testing"
)

func TestSelect_EmptyList(t *testing.T) {
	_, err := Select(nil, TierAuto)
	if !errors.Is(err, ErrNoFormats) {
		t.Fatalf("Expected ErrNoFormats, got %v", err)
	}
}

func TestSelect_AutoPicksLargestFrame(t *testing.T) {
	formats := []Format{
		{ID: "a", Width: 1280, Height: 720},
		{ID: "b", Width: 3840, Height: 2160},
		{ID: "c", Width: 1920, Height: 1080},
	}

	got, err := Select(formats, TierAuto)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got.ID != "b" {
		t.Errorf("Expected format b, got %s", got.ID)
	}
}

func TestSelect_AutoTieKeepsFirst(t *testing.T) {
	formats := []Format{
		{ID: "small", Width: 640, Height: 480},
		{ID: "first", Width: 1920, Height: 1080},
		{ID: "second", Width: 1080, Height: 1920},
		{ID: "third", Width: 1920, Height: 1080},
	}

	got, _ := Select(formats, TierAuto)
	if got.ID != "first" {
		t.Errorf("Expected first of the tied formats, got %s", got.ID)
	}
}

func TestSelect_Tiers(t *testing.T) {
	tests := []struct {
		name    string
		formats []Format
		tier    ResolutionTier
		want    string
	}{
		{
			name: "exact match wins over larger",
			formats: []Format{
				{ID: "4k", Width: 3840, Height: 2160},
				{ID: "hd", Width: 1280, Height: 720},
				{ID: "fhd", Width: 1920, Height: 1080},
			},
			tier: Tier1080p,
			want: "fhd",
		},
		{
			name: "first exact match is returned",
			formats: []Format{
				{ID: "hd-30", Width: 1280, Height: 720},
				{ID: "hd-60", Width: 1280, Height: 720},
			},
			tier: Tier720p,
			want: "hd-30",
		},
		{
			name: "closest below preferred over closest above",
			formats: []Format{
				{ID: "4k", Width: 3840, Height: 2160},
				{ID: "vga", Width: 640, Height: 480},
				{ID: "900", Width: 1600, Height: 900},
				{ID: "1200", Width: 1600, Height: 1200},
			},
			tier: Tier1080p,
			want: "900",
		},
		{
			name: "closest above when nothing below",
			formats: []Format{
				{ID: "4k", Width: 3840, Height: 2160},
				{ID: "1440", Width: 2560, Height: 1440},
				{ID: "1200", Width: 1600, Height: 1200},
			},
			tier: Tier720p,
			want: "1200",
		},
		{
			name: "4k falls back to largest below",
			formats: []Format{
				{ID: "hd", Width: 1280, Height: 720},
				{ID: "fhd", Width: 1920, Height: 1080},
			},
			tier: Tier4K,
			want: "fhd",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Select(tt.formats, tt.tier)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got.ID != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got.ID)
			}
		})
	}
}

func TestSelect_DoesNotMutateInput(t *testing.T) {
	formats := []Format{
		{ID: "a", Width: 640, Height: 480},
		{ID: "b", Width: 1920, Height: 1080},
	}
	Select(formats, Tier720p)
	Select(formats, TierAuto)

	if formats[0].ID != "a" || formats[1].ID != "b" {
		t.Errorf("Select reordered its input: %+v", formats)
	}
}

func TestParseResolutionTier(t *testing.T) {
	valid := map[string]ResolutionTier{
		"":      TierAuto,
		"AUTO":  TierAuto,
		"720p":  Tier720p,
		"1080":  Tier1080p,
		"4K":    Tier4K,
		"2160p": Tier4K,
	}
	for in, want := range valid {
		got, err := ParseResolutionTier(in)
		if err != nil {
			t.Errorf("ParseResolutionTier(%q) returned error: %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParseResolutionTier(%q) = %s, want %s", in, got, want)
		}
	}

	if _, err := ParseResolutionTier("8k"); err == nil {
		t.Error("Expected error for unknown tier")
	}
}

func TestResolutionTier_NextCycles(t *testing.T) {
	tier := TierAuto
	want := []ResolutionTier{Tier720p, Tier1080p, Tier4K, TierAuto}
	for _, w := range want {
		tier = tier.Next()
		if tier != w {
			t.Fatalf("Expected %s, got %s", w, tier)
		}
	}
}
