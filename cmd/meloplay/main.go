package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/meloplay/meloplay/internal/cache"
	"github.com/meloplay/meloplay/internal/config"
	"github.com/meloplay/meloplay/internal/match"
	"github.com/meloplay/meloplay/internal/playback"
	"github.com/meloplay/meloplay/internal/preview"
	"github.com/meloplay/meloplay/internal/provider"
	"github.com/meloplay/meloplay/internal/repository"
	"github.com/meloplay/meloplay/internal/resolve"
	"github.com/meloplay/meloplay/internal/server"
	"github.com/meloplay/meloplay/internal/spotify"
	"github.com/meloplay/meloplay/internal/suggest"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	db, err := repository.OpenDB(cfg)
	if err != nil {
		log.Fatal(err)
	}
	repo := repository.NewRepo(db)
	favs := repository.NewFavoritesService(repo)
	covers := cache.NewFileCache(cfg, repo)

	client := &http.Client{Timeout: 30 * time.Second}

	var sp *spotify.Client
	if cfg.SpotifyClientID != "" && cfg.SpotifyClientSecret != "" {
		sp, err = spotify.NewClientCredentials(cfg.SpotifyClientID, cfg.SpotifyClientSecret)
		if err != nil {
			slog.Warn("spotify disabled", "err", err)
			sp = nil
		}
	}

	available := []provider.Provider{
		provider.NewNetease(),
		provider.NewKuwo(cfg.KuwoCookie),
		provider.NewMigu(),
		provider.NewYouTube(cfg),
	}
	if sp != nil {
		available = append(available, provider.NewSpotify(sp))
	}
	reg := provider.NewRegistry(cfg.ProviderOrder, available...)
	if reg.Len() == 0 {
		log.Fatal("no providers configured")
	}

	det := preview.NewDetector(cfg)
	matcher := match.New(cfg, reg, det, repo)
	chain := resolve.New(cfg, reg, det, matcher)
	manager := playback.NewManager(cfg, chain, repo, det)
	sugg := suggest.NewService(client, favs, sp)

	srv := server.New(cfg, chain, matcher, manager, repo, favs, sugg, covers, client, reg.AllowHosts())

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := srv.Run(ctx); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}
