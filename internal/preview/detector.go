// Package preview classifies resolved audio assets as likely truncated
// previews using cheap signals, without downloading anything.
package preview

import (
	"strings"

	"github.com/meloplay/meloplay/internal/config"
	"github.com/meloplay/meloplay/internal/music"
)

type Detector struct {
	markers      []string
	minSizeBytes int64
	bandMinMS    int
	bandMaxMS    int
	typicalMS    []int
	toleranceMS  int
}

func NewDetector(cfg *config.Config) *Detector {
	markers := make([]string, 0, len(cfg.PreviewMarkers))
	for _, m := range cfg.PreviewMarkers {
		markers = append(markers, strings.ToLower(m))
	}
	return &Detector{
		markers:      markers,
		minSizeBytes: cfg.PreviewMinSizeBytes,
		bandMinMS:    cfg.PreviewBandMinMS,
		bandMaxMS:    cfg.PreviewBandMaxMS,
		typicalMS:    cfg.PreviewTypicalMS,
		toleranceMS:  cfg.PreviewToleranceMS,
	}
}

// FlagURL matches known preview-marker tokens in the URL text.
func (d *Detector) FlagURL(url string) bool {
	low := strings.ToLower(url)
	for _, m := range d.markers {
		if strings.Contains(low, m) {
			return true
		}
	}
	return false
}

// FlagSize flags a reported size too small to hold a full track at the
// lowest supported bitrate. Zero means unknown, never flagged.
func (d *Detector) FlagSize(sizeBytes int64) bool {
	return sizeBytes > 0 && sizeBytes < d.minSizeBytes
}

// FlagDuration requires both band membership and nearness to one of the
// typical truncation points. Duration alone inside the band is not
// enough; plenty of legitimate tracks are short.
func (d *Detector) FlagDuration(durationMS int) bool {
	if durationMS <= 0 {
		return false
	}
	if durationMS < d.bandMinMS || durationMS > d.bandMaxMS {
		return false
	}
	for _, typ := range d.typicalMS {
		diff := durationMS - typ
		if diff < 0 {
			diff = -diff
		}
		if diff <= d.toleranceMS {
			return true
		}
	}
	return false
}

// Detect combines all advisory signals with OR semantics against a
// resolved URL and the song's known metadata duration.
func (d *Detector) Detect(res *music.ResolvedURL, knownDurationMS int) bool {
	if res == nil {
		return false
	}
	if d.FlagURL(res.URL) {
		return true
	}
	if d.FlagSize(res.SizeBytes) {
		return true
	}
	return d.FlagDuration(knownDurationMS)
}

// CheckLoadedDuration re-runs the duration rule once the sink has
// parsed the asset's real header. This can retroactively flag an asset
// the pre-playback signals missed.
func (d *Detector) CheckLoadedDuration(loadedMS int) bool {
	return d.FlagDuration(loadedMS)
}
