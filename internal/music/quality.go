package music

// Quality is a bitrate label negotiated with providers. Providers that
// only know a single stream report QualityDefault.
type Quality string

const (
	Quality128  Quality = "128k"
	Quality192  Quality = "192k"
	Quality320  Quality = "320k"
	QualityFlac Quality = "flac"

	QualityDefault = Quality128
)

// qualityLadder is ordered ascending; flac is the cap.
var qualityLadder = []Quality{Quality128, Quality192, Quality320, QualityFlac}

// Kbps returns the nominal bitrate for size heuristics. Flac is mapped
// to a conservative 900 kbps.
func (q Quality) Kbps() int {
	switch q {
	case Quality128:
		return 128
	case Quality192:
		return 192
	case Quality320:
		return 320
	case QualityFlac:
		return 900
	}
	return 128
}

func (q Quality) Valid() bool {
	for _, l := range qualityLadder {
		if q == l {
			return true
		}
	}
	return false
}

// Ladder returns the negotiation order for a preferred quality: the
// preference itself first, then the remaining rungs ascending.
func Ladder(preferred Quality) []Quality {
	if !preferred.Valid() {
		preferred = QualityDefault
	}
	out := make([]Quality, 0, len(qualityLadder))
	out = append(out, preferred)
	for _, q := range qualityLadder {
		if q != preferred {
			out = append(out, q)
		}
	}
	return out
}

// LadderAscending returns every rung from lowest to highest. Lower
// bitrates are statistically more likely to come back as full tracks.
func LadderAscending() []Quality {
	out := make([]Quality, len(qualityLadder))
	copy(out, qualityLadder)
	return out
}

// LowestQuality is the bottom rung of the ladder.
func LowestQuality() Quality { return qualityLadder[0] }
