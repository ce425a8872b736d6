package provider

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/meloplay/meloplay/internal/music"
	"github.com/meloplay/meloplay/internal/utils"
)

const (
	miguSearchBase = "https://m.music.migu.cn"
	miguListenBase = "https://app.pd.nf.migu.cn"
)

type Migu struct {
	http *http.Client
}

func NewMigu() *Migu {
	return &Migu{http: &http.Client{}}
}

func (m *Migu) Describe() Descriptor {
	return Descriptor{
		Name:           "migu",
		BaseURL:        miguSearchBase,
		Kind:           "migu",
		SupportsSearch: true,
		SupportsURL:    true,
		SupportsLyrics: true,
		SupportsCover:  true,
		AllowHosts: []string{
			"m.music.migu.cn",
			"app.pd.nf.migu.cn",
			"freetyst.nf.migu.cn",
			"d.musicapp.migu.cn",
		},
	}
}

func (m *Migu) Search(ctx context.Context, keyword string, limit int) ([]music.Song, error) {
	if limit <= 0 {
		limit = 10
	}
	q := url.Values{}
	q.Set("keyword", keyword)
	q.Set("type", "2")
	q.Set("rows", strconv.Itoa(limit))
	q.Set("pgc", "1")

	var resp struct {
		Success bool `json:"success"`
		Musics  []struct {
			SongName    string `json:"songName"`
			SingerName  string `json:"singerName"`
			AlbumName   string `json:"albumName"`
			CopyrightID string `json:"copyrightId"`
			Cover       string `json:"cover"`
			LyricsURL   string `json:"lyrics"`
			HasMP3      string `json:"mp3"`
		} `json:"musics"`
	}
	err := utils.GetJSON(ctx, m.http, miguSearchBase+"/migu/remoting/scr_search_tag?"+q.Encode(), &resp,
		utils.WithHeader("Referer", miguSearchBase+"/"))
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, ErrNotFound
	}

	var songs []music.Song
	for _, item := range resp.Musics {
		if item.CopyrightID == "" {
			continue
		}
		var artists []string
		for _, a := range strings.Split(item.SingerName, ",") {
			if a = strings.TrimSpace(a); a != "" {
				artists = append(artists, a)
			}
		}
		songs = append(songs, music.Song{
			ID:      item.CopyrightID,
			Source:  "migu",
			Name:    item.SongName,
			Artists: artists,
			Album:   item.AlbumName,
			PicID:   item.Cover,
			LyricID: item.LyricsURL,
		})
	}
	return songs, nil
}

func miguToneFlag(q music.Quality) string {
	switch q {
	case music.QualityFlac:
		return "SQ"
	case music.Quality320:
		return "HQ"
	default:
		return "PQ"
	}
}

func (m *Migu) ResolveURL(ctx context.Context, song music.Song, quality music.Quality) (*music.ResolvedURL, error) {
	if song.Source != "migu" {
		return nil, ErrUnsupported
	}
	q := url.Values{}
	q.Set("toneFlag", miguToneFlag(quality))
	q.Set("netType", "00")
	q.Set("ua", "Android_migu")
	q.Set("version", "5.1")
	q.Set("copyrightId", song.ID)
	q.Set("contentId", song.ID)
	q.Set("resourceType", "2")
	q.Set("channel", "0")

	// The listen endpoint answers with a 302 to the CDN asset.
	loc, err := utils.ResolveRedirect(ctx, miguListenBase+"/MIGUM2.0/v1.0/content/sub/listenSong.do?"+q.Encode(),
		utils.WithHeader("Referer", miguSearchBase+"/"))
	if err != nil {
		return nil, err
	}
	if loc == "" {
		return nil, ErrNotFound
	}
	return &music.ResolvedURL{
		URL:      loc,
		Quality:  quality,
		Provider: "migu",
	}, nil
}

func (m *Migu) Lyrics(ctx context.Context, song music.Song) (*music.Lyrics, error) {
	if song.Source != "migu" {
		return nil, ErrUnsupported
	}
	if song.LyricID == "" {
		return nil, ErrNotFound
	}
	text, err := utils.GetText(ctx, m.http, song.LyricID,
		utils.WithHeader("Referer", miguSearchBase+"/"))
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrNotFound
	}
	return &music.Lyrics{Text: text}, nil
}

func (m *Migu) CoverURL(ctx context.Context, song music.Song) (string, error) {
	if song.Source != "migu" {
		return "", ErrUnsupported
	}
	if song.PicID == "" {
		return "", ErrNotFound
	}
	return song.PicID, nil
}

func (m *Migu) ParsePlaylist(ctx context.Context, link string) ([]music.Song, error) {
	return nil, ErrUnsupported
}
