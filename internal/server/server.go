// Package server exposes the resolution engine and playback sessions
// over a JSON HTTP API, plus the allowlisted media proxy the browser
// streams through.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/meloplay/meloplay/internal/cache"
	"github.com/meloplay/meloplay/internal/config"
	"github.com/meloplay/meloplay/internal/music"
	"github.com/meloplay/meloplay/internal/playback"
	"github.com/meloplay/meloplay/internal/repository"
	"github.com/meloplay/meloplay/internal/resolve"
	"github.com/meloplay/meloplay/internal/suggest"
)

type Server struct {
	cfg     *config.Config
	chain   *resolve.Chain
	finder  resolve.FullVersionFinder
	manager *playback.Manager
	repo    *repository.Repo
	favs    *repository.FavoritesService
	suggest *suggest.Service
	covers  *cache.FileCache
	client  *http.Client

	allowHosts map[string]struct{}
}

func New(
	cfg *config.Config,
	chain *resolve.Chain,
	finder resolve.FullVersionFinder,
	manager *playback.Manager,
	repo *repository.Repo,
	favs *repository.FavoritesService,
	sugg *suggest.Service,
	covers *cache.FileCache,
	client *http.Client,
	allowHosts []string,
) *Server {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	s := &Server{
		cfg:        cfg,
		chain:      chain,
		finder:     finder,
		manager:    manager,
		repo:       repo,
		favs:       favs,
		suggest:    sugg,
		covers:     covers,
		client:     client,
		allowHosts: make(map[string]struct{}, len(allowHosts)),
	}
	for _, h := range allowHosts {
		s.allowHosts[h] = struct{}{}
	}

	// A late cross-source match swaps the preview out of every session
	// still playing that song.
	chain.OnFullVersion = func(target music.Song, res *music.ResolvedURL) {
		manager.ForEach(func(id string, c *playback.Controller) {
			c.SwapToFullVersion(target, res)
		})
	}
	// A preview detected only after metadata load starts its own
	// cross-source search.
	manager.OnPreviewDetected = func(song music.Song, res *music.ResolvedURL) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*cfg.CrossSourceWait+cfg.SearchTimeout)
		defer cancel()
		full, err := finder.FindFullVersion(ctx, song)
		if err != nil || full == nil {
			slog.Debug("late cross-source search found nothing", "song", song.Display(), "err", err)
			return
		}
		manager.ForEach(func(id string, c *playback.Controller) {
			c.SwapToFullVersion(song, full)
		})
	}
	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/search", s.handleSearch)
	mux.HandleFunc("POST /api/song/url", s.handleSongURL)
	mux.HandleFunc("POST /api/song/lyrics", s.handleLyrics)
	mux.HandleFunc("POST /api/song/cover", s.handleCover)
	mux.HandleFunc("GET /api/playlist", s.handlePlaylist)
	mux.HandleFunc("GET /api/suggest", s.handleSuggest)

	mux.HandleFunc("GET /api/favorites", s.handleListFavorites)
	mux.HandleFunc("POST /api/favorites", s.handleAddFavorite)
	mux.HandleFunc("DELETE /api/favorites", s.handleRemoveFavorite)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.HandleFunc("GET /api/settings", s.handleGetSettings)
	mux.HandleFunc("PUT /api/settings", s.handlePutSettings)
	mux.HandleFunc("GET /api/stats", s.handleStats)

	mux.HandleFunc("GET /api/player/state", s.handlePlayerState)
	mux.HandleFunc("POST /api/player/queue", s.handlePlayerQueue)
	mux.HandleFunc("POST /api/player/play", s.handlePlayerPlay)
	mux.HandleFunc("POST /api/player/next", s.handlePlayerNext)
	mux.HandleFunc("POST /api/player/previous", s.handlePlayerPrevious)
	mux.HandleFunc("POST /api/player/pause", s.handlePlayerPause)
	mux.HandleFunc("POST /api/player/resume", s.handlePlayerResume)
	mux.HandleFunc("POST /api/player/seek", s.handlePlayerSeek)
	mux.HandleFunc("POST /api/player/shuffle", s.handlePlayerShuffle)
	mux.HandleFunc("POST /api/player/volume", s.handlePlayerVolume)
	mux.HandleFunc("POST /api/player/event", s.handlePlayerEvent)

	mux.HandleFunc("GET /proxy", s.handleProxy)

	return s.logRequests(mux)
}

// Run serves until the context is canceled, then drains in-flight
// requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", s.cfg.ListenAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("request", "method", r.Method, "path", r.URL.Path, "took", time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("response encode failed", "err", err)
	}
}

type errorBody struct {
	Error   string `json:"error"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, err error) {
	kind := music.KindOf(err)
	status := http.StatusBadGateway
	switch kind {
	case music.KindUnresolved:
		status = http.StatusNotFound
	case music.KindPlayback:
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, errorBody{
		Error:   err.Error(),
		Kind:    string(kind),
		Message: music.UserMessage(err),
	})
}

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.New("malformed request body")
	}
	return nil
}
