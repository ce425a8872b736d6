package music

import "strings"

// Song is the normalized track model shared by every provider. It is
// immutable once constructed; callers copy by value.
type Song struct {
	ID      string   `json:"id"`
	Source  string   `json:"source"` // provider name that produced this song
	Name    string   `json:"name"`
	Artists []string `json:"artists"`
	Album   string   `json:"album,omitempty"`

	// Opaque references interpreted only by the originating provider.
	PicID   string `json:"picId,omitempty"`
	LyricID string `json:"lyricId,omitempty"`

	DurationMS int   `json:"durationMs"`          // 0 when unknown
	SizeBytes  int64 `json:"sizeBytes,omitempty"` // reported file size hint, 0 when unknown
}

// Key identifies a logical song across async operations.
func (s Song) Key() string {
	return s.Source + ":" + s.ID
}

func (s Song) PrimaryArtist() string {
	if len(s.Artists) == 0 {
		return ""
	}
	return s.Artists[0]
}

func (s Song) Display() string {
	if len(s.Artists) == 0 {
		return s.Name
	}
	return s.Name + " - " + strings.Join(s.Artists, ", ")
}

// ResolvedURL is produced per playback attempt and never persisted.
type ResolvedURL struct {
	URL       string  `json:"url"`
	Quality   Quality `json:"quality"`
	SizeBytes int64   `json:"sizeBytes,omitempty"`
	Provider  string  `json:"provider"`
	Preview   bool    `json:"preview"` // flagged by the preview detector
}

// MatchCandidate pairs a song from an alternate provider with its
// similarity score against the target track.
type MatchCandidate struct {
	Song  Song
	Score float64
}

type Lyrics struct {
	Text        string `json:"text"`
	Translation string `json:"translation,omitempty"`
}
