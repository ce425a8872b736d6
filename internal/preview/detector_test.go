package preview

import (
	"testing"

	"github.com/meloplay/meloplay/internal/config"
	"github.com/meloplay/meloplay/internal/music"
)

func testDetector(t *testing.T) *Detector {
	t.Helper()
	cfg := &config.Config{
		PreviewMarkers:      []string{"trial", "clip", "preview"},
		PreviewMinSizeBytes: 983040,
		PreviewBandMinMS:    10000,
		PreviewBandMaxMS:    95000,
		PreviewTypicalMS:    []int{30000, 45000, 60000, 90000},
		PreviewToleranceMS:  2000,
	}
	return NewDetector(cfg)
}

func TestFlagDuration(t *testing.T) {
	d := testDetector(t)

	tests := []struct {
		name string
		ms   int
		want bool
	}{
		{"exact typical length", 30000, true},
		{"within tolerance of typical", 28000, true},
		{"above tolerance of typical", 27999, false},
		{"in band but not near typical", 75000, false},
		{"normal four minute track", 240000, false},
		{"short full track below band", 9000, false},
		{"unknown duration", 0, false},
		{"typical point near band edge", 90000, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := d.FlagDuration(tc.ms); got != tc.want {
				t.Fatalf("FlagDuration(%d) = %v, want %v", tc.ms, got, tc.want)
			}
		})
	}
}

func TestFlagURL(t *testing.T) {
	d := testDetector(t)

	tests := []struct {
		url  string
		want bool
	}{
		{"http://cdn.example.com/audio/Trial/abc.mp3", true},
		{"http://cdn.example.com/clip_30/abc.mp3", true},
		{"http://cdn.example.com/full/abc.mp3", false},
	}
	for _, tc := range tests {
		if got := d.FlagURL(tc.url); got != tc.want {
			t.Fatalf("FlagURL(%q) = %v, want %v", tc.url, got, tc.want)
		}
	}
}

func TestFlagSize(t *testing.T) {
	d := testDetector(t)

	if !d.FlagSize(500_000) {
		t.Fatal("half a megabyte cannot hold a full track at the lowest bitrate")
	}
	if d.FlagSize(4_000_000) {
		t.Fatal("a 4MB asset should not be flagged by size")
	}
	if d.FlagSize(0) {
		t.Fatal("unknown size must never flag")
	}
}

func TestDetectCombinesSignalsWithOr(t *testing.T) {
	d := testDetector(t)

	// URL clean, size unknown, duration out of band: clean.
	res := &music.ResolvedURL{URL: "http://cdn.example.com/full/a.mp3"}
	if d.Detect(res, 240000) {
		t.Fatal("clean asset flagged")
	}

	// Any single signal is sufficient.
	if !d.Detect(&music.ResolvedURL{URL: "http://cdn.example.com/preview/a.mp3"}, 240000) {
		t.Fatal("URL marker alone should flag, regardless of duration")
	}
	if !d.Detect(&music.ResolvedURL{URL: "http://cdn.example.com/full/a.mp3", SizeBytes: 100_000}, 240000) {
		t.Fatal("tiny size alone should flag")
	}
	if !d.Detect(res, 29500) {
		t.Fatal("near-typical in-band duration alone should flag")
	}
}

func TestCheckLoadedDuration(t *testing.T) {
	d := testDetector(t)

	// The late signal catches what the early ones missed.
	if !d.CheckLoadedDuration(30100) {
		t.Fatal("loaded duration at a typical truncation point must flag")
	}
	if d.CheckLoadedDuration(185000) {
		t.Fatal("full-length loaded duration must not flag")
	}
}
