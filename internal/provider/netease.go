package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/meloplay/meloplay/internal/music"
	"github.com/meloplay/meloplay/internal/utils"
)

const (
	neteaseBase    = "http://music.163.com"
	neteaseReferer = "http://music.163.com/"
)

// Netease is the highest-priority and the most volatile provider; it is
// the one the chain wraps with a circuit breaker.
type Netease struct {
	http *http.Client
}

func NewNetease() *Netease {
	return &Netease{http: &http.Client{}}
}

func (n *Netease) Describe() Descriptor {
	return Descriptor{
		Name:             "netease",
		BaseURL:          neteaseBase,
		Kind:             "netease",
		SupportsSearch:   true,
		SupportsURL:      true,
		SupportsLyrics:   true,
		SupportsCover:    true,
		SupportsPlaylist: true,
		AllowHosts: []string{
			"music.163.com",
			"m7.music.126.net", "m8.music.126.net",
			"m701.music.126.net", "m801.music.126.net",
			"p1.music.126.net", "p2.music.126.net",
		},
	}
}

type neteaseSongJSON struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Artists []struct {
		Name string `json:"name"`
	} `json:"artists"`
	Album struct {
		Name   string `json:"name"`
		PicURL string `json:"picUrl"`
	} `json:"album"`
	Duration int `json:"duration"` // ms
}

func (j neteaseSongJSON) toSong() music.Song {
	var artists []string
	for _, a := range j.Artists {
		artists = append(artists, a.Name)
	}
	id := strconv.FormatInt(j.ID, 10)
	return music.Song{
		ID:         id,
		Source:     "netease",
		Name:       j.Name,
		Artists:    artists,
		Album:      j.Album.Name,
		PicID:      j.Album.PicURL,
		LyricID:    id,
		DurationMS: j.Duration,
	}
}

func (n *Netease) Search(ctx context.Context, keyword string, limit int) ([]music.Song, error) {
	if limit <= 0 {
		limit = 10
	}
	q := url.Values{}
	q.Set("s", keyword)
	q.Set("type", "1")
	q.Set("offset", "0")
	q.Set("limit", strconv.Itoa(limit))

	var resp struct {
		Code   int `json:"code"`
		Result struct {
			Songs []neteaseSongJSON `json:"songs"`
		} `json:"result"`
	}
	err := utils.GetJSON(ctx, n.http, neteaseBase+"/api/search/get/web?"+q.Encode(), &resp,
		utils.WithHeader("Referer", neteaseReferer))
	if err != nil {
		return nil, err
	}
	if resp.Code != 200 {
		return nil, fmt.Errorf("netease search code %d", resp.Code)
	}

	songs := make([]music.Song, 0, len(resp.Result.Songs))
	for _, item := range resp.Result.Songs {
		songs = append(songs, item.toSong())
	}
	return songs, nil
}

func (n *Netease) ResolveURL(ctx context.Context, song music.Song, quality music.Quality) (*music.ResolvedURL, error) {
	if song.Source != "netease" {
		return nil, ErrUnsupported
	}
	q := url.Values{}
	q.Set("id", song.ID)
	q.Set("ids", "["+song.ID+"]")
	q.Set("br", strconv.Itoa(quality.Kbps()*1000))

	var resp struct {
		Code int `json:"code"`
		Data []struct {
			URL  string `json:"url"`
			Br   int    `json:"br"`
			Size int64  `json:"size"`
		} `json:"data"`
	}
	err := utils.GetJSON(ctx, n.http, neteaseBase+"/api/song/enhance/player/url?"+q.Encode(), &resp,
		utils.WithHeader("Referer", neteaseReferer))
	if err != nil {
		return nil, err
	}
	if resp.Code != 200 || len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return nil, ErrNotFound
	}
	d := resp.Data[0]
	return &music.ResolvedURL{
		URL:       d.URL,
		Quality:   quality,
		SizeBytes: d.Size,
		Provider:  "netease",
	}, nil
}

func (n *Netease) Lyrics(ctx context.Context, song music.Song) (*music.Lyrics, error) {
	if song.Source != "netease" {
		return nil, ErrUnsupported
	}
	id := song.LyricID
	if id == "" {
		id = song.ID
	}
	q := url.Values{}
	q.Set("id", id)
	q.Set("lv", "-1")
	q.Set("tv", "-1")

	var resp struct {
		Lrc struct {
			Lyric string `json:"lyric"`
		} `json:"lrc"`
		Tlyric struct {
			Lyric string `json:"lyric"`
		} `json:"tlyric"`
	}
	err := utils.GetJSON(ctx, n.http, neteaseBase+"/api/song/lyric?"+q.Encode(), &resp,
		utils.WithHeader("Referer", neteaseReferer))
	if err != nil {
		return nil, err
	}
	if resp.Lrc.Lyric == "" {
		return nil, ErrNotFound
	}
	return &music.Lyrics{Text: resp.Lrc.Lyric, Translation: resp.Tlyric.Lyric}, nil
}

func (n *Netease) CoverURL(ctx context.Context, song music.Song) (string, error) {
	if song.Source != "netease" {
		return "", ErrUnsupported
	}
	if song.PicID != "" {
		return song.PicID, nil
	}
	q := url.Values{}
	q.Set("id", song.ID)
	q.Set("ids", "["+song.ID+"]")

	var resp struct {
		Songs []neteaseSongJSON `json:"songs"`
	}
	err := utils.GetJSON(ctx, n.http, neteaseBase+"/api/song/detail?"+q.Encode(), &resp,
		utils.WithHeader("Referer", neteaseReferer))
	if err != nil {
		return "", err
	}
	if len(resp.Songs) == 0 || resp.Songs[0].Album.PicURL == "" {
		return "", ErrNotFound
	}
	return resp.Songs[0].Album.PicURL, nil
}

var neteasePlaylistRe = regexp.MustCompile(`playlist(?:\?id=|/)(\d+)`)

func neteasePlaylistID(link string) string {
	if m := neteasePlaylistRe.FindStringSubmatch(link); m != nil {
		return m[1]
	}
	return ""
}

func (n *Netease) ParsePlaylist(ctx context.Context, link string) ([]music.Song, error) {
	if !strings.Contains(link, "music.163.com") {
		return nil, ErrUnsupported
	}
	id := neteasePlaylistID(link)
	if id == "" {
		return nil, ErrNotFound
	}
	q := url.Values{}
	q.Set("id", id)

	var resp struct {
		Code   int `json:"code"`
		Result struct {
			Tracks []neteaseSongJSON `json:"tracks"`
		} `json:"result"`
	}
	err := utils.GetJSON(ctx, n.http, neteaseBase+"/api/playlist/detail?"+q.Encode(), &resp,
		utils.WithHeader("Referer", neteaseReferer))
	if err != nil {
		return nil, err
	}
	if resp.Code != 200 {
		return nil, fmt.Errorf("netease playlist code %d", resp.Code)
	}
	songs := make([]music.Song, 0, len(resp.Result.Tracks))
	for _, t := range resp.Result.Tracks {
		songs = append(songs, t.toSong())
	}
	return songs, nil
}
