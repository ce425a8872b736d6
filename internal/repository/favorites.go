package repository

import (
	"context"
	"strings"

	"github.com/meloplay/meloplay/internal/music"
)

type FavoritesService struct {
	repo *Repo
}

func NewFavoritesService(repo *Repo) *FavoritesService {
	return &FavoritesService{repo: repo}
}

func (f *FavoritesService) Add(ctx context.Context, song music.Song) error {
	song.Name = strings.TrimSpace(song.Name)
	return f.repo.AddFavorite(ctx, song)
}

func (f *FavoritesService) List(ctx context.Context) ([]Favorite, error) {
	return f.repo.ListFavorites(ctx)
}

func (f *FavoritesService) Remove(ctx context.Context, songKey string) (int64, error) {
	return f.repo.RemoveFavorite(ctx, strings.TrimSpace(songKey))
}

func (f *FavoritesService) Find(ctx context.Context, songKey string) (*Favorite, error) {
	return f.repo.FindFavorite(ctx, strings.TrimSpace(songKey))
}

// MatchPrefix returns favorites whose name or artist starts with the
// query, for typeahead suggestions.
func (f *FavoritesService) MatchPrefix(ctx context.Context, query string, limit int) ([]Favorite, error) {
	favs, err := f.repo.ListFavorites(ctx)
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		if limit > 0 && len(favs) > limit {
			favs = favs[:limit]
		}
		return favs, nil
	}
	var out []Favorite
	for _, fav := range favs {
		if limit > 0 && len(out) >= limit {
			break
		}
		if strings.HasPrefix(strings.ToLower(fav.Song.Name), q) {
			out = append(out, fav)
			continue
		}
		for _, a := range fav.Song.Artists {
			if strings.HasPrefix(strings.ToLower(a), q) {
				out = append(out, fav)
				break
			}
		}
	}
	return out, nil
}
