package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/meloplay/meloplay/internal/music"
	"github.com/meloplay/meloplay/internal/utils"
)

const kuwoBase = "http://www.kuwo.cn"

type Kuwo struct {
	http   *http.Client
	cookie string
}

func NewKuwo(cookie string) *Kuwo {
	return &Kuwo{http: &http.Client{}, cookie: cookie}
}

func (k *Kuwo) Describe() Descriptor {
	return Descriptor{
		Name:           "kuwo",
		BaseURL:        kuwoBase,
		Kind:           "kuwo",
		SupportsSearch: true,
		SupportsURL:    true,
		SupportsLyrics: true,
		SupportsCover:  true,
		AllowHosts: []string{
			"www.kuwo.cn", "m.kuwo.cn",
			"antiserver.kuwo.cn",
			"sv.kuwo.cn", "sw.kuwo.cn",
			"img1.kuwo.cn", "img2.kuwo.cn",
		},
	}
}

func (k *Kuwo) Search(ctx context.Context, keyword string, limit int) ([]music.Song, error) {
	if limit <= 0 {
		limit = 10
	}
	params := url.Values{}
	params.Set("vipver", "1")
	params.Set("client", "kt")
	params.Set("ft", "music")
	params.Set("cluster", "0")
	params.Set("strategy", "2012")
	params.Set("encoding", "utf8")
	params.Set("rformat", "json")
	params.Set("mobi", "1")
	params.Set("show_copyright_off", "1")
	params.Set("pn", "0")
	params.Set("rn", fmt.Sprintf("%d", limit))
	params.Set("all", keyword)

	var resp struct {
		AbsList []struct {
			MusicRID  string `json:"MUSICRID"`
			SongName  string `json:"SONGNAME"`
			Artist    string `json:"ARTIST"`
			Album     string `json:"ALBUM"`
			Duration  string `json:"DURATION"` // seconds
			Pic       string `json:"hts_MVPIC"`
			BitSwitch int    `json:"bitSwitch"`
		} `json:"abslist"`
	}
	err := utils.GetJSON(ctx, k.http, kuwoBase+"/search/searchMusicBykeyWord?"+params.Encode(), &resp,
		utils.WithHeader("Cookie", k.cookie))
	if err != nil {
		return nil, err
	}

	var songs []music.Song
	for _, item := range resp.AbsList {
		if item.BitSwitch == 0 {
			continue
		}
		id := strings.TrimPrefix(item.MusicRID, "MUSIC_")
		var artists []string
		for _, a := range strings.Split(item.Artist, "&") {
			if a = strings.TrimSpace(a); a != "" {
				artists = append(artists, a)
			}
		}
		songs = append(songs, music.Song{
			ID:         id,
			Source:     "kuwo",
			Name:       item.SongName,
			Artists:    artists,
			Album:      item.Album,
			PicID:      item.Pic,
			LyricID:    id,
			DurationMS: utils.Atoi(item.Duration) * 1000,
		})
	}
	return songs, nil
}

func kuwoBitrateLabel(q music.Quality) string {
	switch q {
	case music.QualityFlac:
		return "2000kflac"
	default:
		return fmt.Sprintf("%dkmp3", q.Kbps())
	}
}

func (k *Kuwo) ResolveURL(ctx context.Context, song music.Song, quality music.Quality) (*music.ResolvedURL, error) {
	if song.Source != "kuwo" {
		return nil, ErrUnsupported
	}
	params := url.Values{}
	params.Set("type", "convert_url3")
	params.Set("rid", "MUSIC_"+song.ID)
	params.Set("format", "mp3")
	params.Set("br", kuwoBitrateLabel(quality))
	params.Set("response", "url")

	var resp struct {
		Code int `json:"code"`
		Data struct {
			URL     string `json:"url"`
			Bitrate int    `json:"bitrate"`
		} `json:"data"`
	}
	err := utils.GetJSON(ctx, k.http, "http://antiserver.kuwo.cn/anti.s?"+params.Encode(), &resp,
		utils.WithHeader("Cookie", k.cookie))
	if err != nil {
		return nil, err
	}
	if resp.Code != 200 || resp.Data.URL == "" {
		return nil, ErrNotFound
	}
	return &music.ResolvedURL{
		URL:      resp.Data.URL,
		Quality:  quality,
		Provider: "kuwo",
	}, nil
}

type kuwoSongInfo struct {
	Data struct {
		LrcList []struct {
			LineLyric string `json:"lyricContent"`
			Time      string `json:"time"`
		} `json:"lrclist"`
		SongInfo struct {
			Pic string `json:"pic"`
		} `json:"songinfo"`
	} `json:"data"`
}

func (k *Kuwo) songInfo(ctx context.Context, id string) (*kuwoSongInfo, error) {
	var resp kuwoSongInfo
	err := utils.GetJSON(ctx, k.http, "http://m.kuwo.cn/newh5/singles/songinfoandlrc?musicId="+url.QueryEscape(id), &resp,
		utils.WithHeader("Cookie", k.cookie))
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (k *Kuwo) Lyrics(ctx context.Context, song music.Song) (*music.Lyrics, error) {
	if song.Source != "kuwo" {
		return nil, ErrUnsupported
	}
	info, err := k.songInfo(ctx, song.ID)
	if err != nil {
		return nil, err
	}
	if len(info.Data.LrcList) == 0 {
		return nil, ErrNotFound
	}
	var b strings.Builder
	for _, line := range info.Data.LrcList {
		sec := 0.0
		fmt.Sscanf(line.Time, "%f", &sec)
		min := int(sec) / 60
		fmt.Fprintf(&b, "[%02d:%05.2f]%s\n", min, sec-float64(min*60), line.LineLyric)
	}
	return &music.Lyrics{Text: b.String()}, nil
}

func (k *Kuwo) CoverURL(ctx context.Context, song music.Song) (string, error) {
	if song.Source != "kuwo" {
		return "", ErrUnsupported
	}
	if song.PicID != "" {
		return song.PicID, nil
	}
	info, err := k.songInfo(ctx, song.ID)
	if err != nil {
		return "", err
	}
	if info.Data.SongInfo.Pic == "" {
		return "", ErrNotFound
	}
	return info.Data.SongInfo.Pic, nil
}

func (k *Kuwo) ParsePlaylist(ctx context.Context, link string) ([]music.Song, error) {
	return nil, ErrUnsupported
}
