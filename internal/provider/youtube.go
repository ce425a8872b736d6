package provider

import (
	"context"
	"strings"

	"github.com/meloplay/meloplay/internal/config"
	"github.com/meloplay/meloplay/internal/music"
	"github.com/meloplay/meloplay/internal/stream"
)

// YouTube resolves through yt-dlp server-side; the browser never talks
// to googlevideo hosts directly, so the proxy allowlist carries them.
type YouTube struct {
	cfg *config.Config
}

func NewYouTube(cfg *config.Config) *YouTube {
	return &YouTube{cfg: cfg}
}

func (y *YouTube) Describe() Descriptor {
	return Descriptor{
		Name:             "youtube",
		BaseURL:          "https://www.youtube.com",
		Kind:             "ytdlp",
		SupportsSearch:   true,
		SupportsURL:      true,
		SupportsCover:    true,
		SupportsPlaylist: true,
		AllowHosts: []string{
			"www.youtube.com", "youtu.be", "music.youtube.com",
			"i.ytimg.com", "googlevideo.com",
		},
	}
}

func entryToSong(e stream.YTDLPEntry) music.Song {
	thumb := ""
	if len(e.Thumbnails) > 0 {
		thumb = e.Thumbnails[len(e.Thumbnails)-1].Url
	}
	var artists []string
	if e.Uploader != "" {
		artists = []string{strings.TrimSuffix(e.Uploader, " - Topic")}
	}
	return music.Song{
		ID:         e.Id,
		Source:     "youtube",
		Name:       e.Title,
		Artists:    artists,
		PicID:      thumb,
		DurationMS: int(e.Duration * 1000),
	}
}

func (y *YouTube) Search(ctx context.Context, keyword string, limit int) ([]music.Song, error) {
	entries, err := stream.YtdlpSearch(ctx, y.cfg, keyword, limit)
	if err != nil {
		return nil, err
	}
	songs := make([]music.Song, 0, len(entries))
	for _, e := range entries {
		if e.IsLive {
			continue
		}
		songs = append(songs, entryToSong(e))
	}
	return songs, nil
}

func (y *YouTube) ResolveURL(ctx context.Context, song music.Song, quality music.Quality) (*music.ResolvedURL, error) {
	if song.Source != "youtube" {
		return nil, ErrUnsupported
	}
	info, err := stream.YtdlpGetInfo(ctx, y.cfg, "https://www.youtube.com/watch?v="+song.ID)
	if err != nil {
		return nil, err
	}
	u := stream.YtdlpAudioURL(info)
	if u == "" {
		return nil, ErrNotFound
	}
	// yt-dlp already picked bestaudio; the label is nominal.
	return &music.ResolvedURL{
		URL:      u,
		Quality:  music.QualityDefault,
		Provider: "youtube",
	}, nil
}

func (y *YouTube) Lyrics(ctx context.Context, song music.Song) (*music.Lyrics, error) {
	return nil, ErrUnsupported
}

func (y *YouTube) CoverURL(ctx context.Context, song music.Song) (string, error) {
	if song.Source != "youtube" {
		return "", ErrUnsupported
	}
	if song.PicID != "" {
		return song.PicID, nil
	}
	return "https://i.ytimg.com/vi/" + song.ID + "/hqdefault.jpg", nil
}

func (y *YouTube) ParsePlaylist(ctx context.Context, link string) ([]music.Song, error) {
	if !strings.Contains(link, "youtube.com") && !strings.Contains(link, "youtu.be") {
		return nil, ErrUnsupported
	}
	entries, err := stream.YtdlpFlat(ctx, y.cfg, link)
	if err != nil {
		return nil, err
	}
	songs := make([]music.Song, 0, len(entries))
	for _, e := range entries {
		songs = append(songs, entryToSong(e))
	}
	return songs, nil
}
