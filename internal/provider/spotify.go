package provider

import (
	"context"
	"strings"

	"github.com/meloplay/meloplay/internal/music"
	"github.com/meloplay/meloplay/internal/spotify"
)

// Spotify serves search metadata, covers, and playlist parsing. It has
// no playable URLs; the chain skips it for URL resolution without
// counting a failure.
type Spotify struct {
	client *spotify.Client
}

func NewSpotify(client *spotify.Client) *Spotify {
	return &Spotify{client: client}
}

func (s *Spotify) Describe() Descriptor {
	return Descriptor{
		Name:             "spotify",
		BaseURL:          "https://api.spotify.com",
		Kind:             "spotify",
		SupportsSearch:   true,
		SupportsCover:    true,
		SupportsPlaylist: true,
		AllowHosts:       []string{"i.scdn.co"},
	}
}

func trackToSong(t spotify.Track) music.Song {
	return music.Song{
		ID:         t.ID,
		Source:     "spotify",
		Name:       t.Name,
		Artists:    t.Artists,
		Album:      t.Album,
		PicID:      t.CoverURL,
		DurationMS: t.DurationMS,
	}
}

func (s *Spotify) Search(ctx context.Context, keyword string, limit int) ([]music.Song, error) {
	tracks, err := s.client.SearchTracks(ctx, keyword, limit)
	if err != nil {
		return nil, err
	}
	songs := make([]music.Song, 0, len(tracks))
	for _, t := range tracks {
		songs = append(songs, trackToSong(t))
	}
	return songs, nil
}

func (s *Spotify) ResolveURL(ctx context.Context, song music.Song, quality music.Quality) (*music.ResolvedURL, error) {
	return nil, ErrUnsupported
}

func (s *Spotify) Lyrics(ctx context.Context, song music.Song) (*music.Lyrics, error) {
	return nil, ErrUnsupported
}

func (s *Spotify) CoverURL(ctx context.Context, song music.Song) (string, error) {
	if song.Source != "spotify" {
		return "", ErrUnsupported
	}
	if song.PicID != "" {
		return song.PicID, nil
	}
	t, err := s.client.GetTrack(ctx, song.ID)
	if err != nil {
		return "", err
	}
	if t.CoverURL == "" {
		return "", ErrNotFound
	}
	return t.CoverURL, nil
}

func (s *Spotify) ParsePlaylist(ctx context.Context, link string) ([]music.Song, error) {
	if !strings.Contains(link, "open.spotify.com") && !strings.HasPrefix(link, "spotify:") {
		return nil, ErrUnsupported
	}
	typ, id, err := spotify.ParseID(link)
	if err != nil {
		return nil, err
	}
	var tracks []spotify.Track
	switch typ {
	case "playlist":
		tracks, _, err = s.client.GetPlaylist(ctx, id, 0)
	case "album":
		tracks, _, err = s.client.GetAlbum(ctx, id, 0)
	default:
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	songs := make([]music.Song, 0, len(tracks))
	for _, t := range tracks {
		songs = append(songs, trackToSong(t))
	}
	return songs, nil
}
