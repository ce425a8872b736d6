// Package suggest produces typeahead completions for the search box,
// mixing local favorites with upstream suggestion feeds.
package suggest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/meloplay/meloplay/internal/repository"
	"github.com/meloplay/meloplay/internal/spotify"
	"github.com/meloplay/meloplay/internal/utils"
)

// Suggestion is one completion entry. Kind distinguishes a plain query
// string from a directly playable favorite.
type Suggestion struct {
	Kind    string `json:"kind"` // "favorite", "query", "spotify"
	Text    string `json:"text"`
	SongKey string `json:"songKey,omitempty"`
}

type Service struct {
	client  *http.Client
	favs    *repository.FavoritesService
	spotify *spotify.Client
}

func NewService(client *http.Client, favs *repository.FavoritesService, sp *spotify.Client) *Service {
	if client == nil {
		client = http.DefaultClient
	}
	return &Service{client: client, favs: favs, spotify: sp}
}

// youtubeSuggestions hits the public suggestqueries endpoint. The
// response is a bare JSON array: [query, [completions...], ...].
func (s *Service) youtubeSuggestions(ctx context.Context, query string) ([]string, error) {
	u, _ := url.Parse("https://suggestqueries.google.com/complete/search")
	q := u.Query()
	q.Set("client", "firefox")
	q.Set("ds", "yt")
	q.Set("q", query)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", utils.RandomUserAgent())
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var parsed []any
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}
	if len(parsed) < 2 {
		return nil, nil
	}
	arr, ok := parsed[1].([]any)
	if !ok {
		return nil, nil
	}
	out := make([]string, 0, len(arr))
	for _, v := range arr {
		if str, ok := v.(string); ok {
			out = append(out, str)
		}
	}
	return out, nil
}

// Suggest returns up to limit completions: matching favorites first,
// then upstream query completions, then spotify track names.
func (s *Service) Suggest(ctx context.Context, query string, limit int) ([]Suggestion, error) {
	if limit <= 0 {
		limit = 10
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	var out []Suggestion
	if s.favs != nil {
		favs, err := s.favs.MatchPrefix(ctx, query, limit/2)
		if err == nil {
			for _, f := range favs {
				text := f.Song.Display()
				if f.Song.DurationMS > 0 {
					text += " (" + utils.PrettyTime(f.Song.DurationMS/1000) + ")"
				}
				out = append(out, Suggestion{
					Kind:    "favorite",
					Text:    text,
					SongKey: f.Song.Key(),
				})
			}
		}
	}

	if len(out) < limit {
		yt, _ := s.youtubeSuggestions(ctx, query)
		for _, text := range yt {
			if len(out) >= limit {
				break
			}
			out = append(out, Suggestion{Kind: "query", Text: text})
		}
	}

	if s.spotify != nil && len(out) < limit {
		tracks, err := s.spotify.SearchTracks(ctx, query, limit-len(out))
		if err == nil {
			for _, t := range tracks {
				if len(out) >= limit {
					break
				}
				text := t.Name
				if len(t.Artists) > 0 {
					text += " - " + t.Artists[0]
				}
				out = append(out, Suggestion{Kind: "spotify", Text: text})
			}
		}
	}

	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
