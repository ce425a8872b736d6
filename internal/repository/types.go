package repository

import (
	"database/sql"
	"strings"

	"github.com/meloplay/meloplay/internal/music"
)

type Repo struct {
	db *sql.DB
}

// Settings is the single-row player configuration.
type Settings struct {
	PreferredQuality music.Quality
	Volume           int
	PlaylistLimit    int
	AutoAdvance      bool
}

type Favorite struct {
	ID        int64
	Song      music.Song
	CreatedAt int64
}

type HistoryEntry struct {
	ID       int64
	Song     music.Song
	PlayedAt int64
}

// SourceStat is one provider's cross-source success ledger.
type SourceStat struct {
	Provider     string
	SuccessCount int64
	FailureCount int64
	UpdatedAt    int64
}

func (s SourceStat) Rate() float64 {
	total := s.SuccessCount + s.FailureCount
	if total == 0 {
		return 0
	}
	return float64(s.SuccessCount) / float64(total)
}

// artistSep joins artist lists for storage; a literal newline cannot
// appear inside an artist name coming off the wire.
const artistSep = "\n"

func joinArtists(artists []string) string { return strings.Join(artists, artistSep) }

func splitArtists(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, artistSep)
}
