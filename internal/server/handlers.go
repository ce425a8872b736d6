package server

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/meloplay/meloplay/internal/music"
	"github.com/meloplay/meloplay/internal/playback"
	"github.com/meloplay/meloplay/internal/repository"
)

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		http.Error(w, "missing q", http.StatusBadRequest)
		return
	}
	songs, err := s.chain.Search(r.Context(), q)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"songs": songs})
}

type songURLRequest struct {
	Song    music.Song `json:"song"`
	Quality string     `json:"quality"`
}

func (s *Server) handleSongURL(w http.ResponseWriter, r *http.Request) {
	var req songURLRequest
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	res, err := s.chain.ResolveURL(r.Context(), req.Song, music.Quality(req.Quality))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"result":   res,
		"proxyUrl": "/proxy?url=" + url.QueryEscape(res.URL),
	})
}

type songRequest struct {
	Song music.Song `json:"song"`
}

func (s *Server) handleLyrics(w http.ResponseWriter, r *http.Request) {
	var req songRequest
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ly, err := s.chain.Lyrics(r.Context(), req.Song)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ly)
}

func (s *Server) handleCover(w http.ResponseWriter, r *http.Request) {
	var req songRequest
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	coverURL, err := s.chain.CoverURL(r.Context(), req.Song)
	if err != nil {
		writeError(w, err)
		return
	}
	if s.covers != nil {
		if path, err := s.covers.FetchCover(r.Context(), s.client, coverURL); err == nil {
			http.ServeFile(w, r, path)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": coverURL})
}

func (s *Server) handlePlaylist(w http.ResponseWriter, r *http.Request) {
	link := strings.TrimSpace(r.URL.Query().Get("link"))
	if link == "" {
		http.Error(w, "missing link", http.StatusBadRequest)
		return
	}
	songs, err := s.chain.ParsePlaylist(r.Context(), link)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"songs": songs})
}

func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	suggestions, err := s.suggest.Suggest(r.Context(), q, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"suggestions": suggestions})
}

func (s *Server) handleListFavorites(w http.ResponseWriter, r *http.Request) {
	favs, err := s.favs.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]music.Song, 0, len(favs))
	for _, f := range favs {
		out = append(out, f.Song)
	}
	writeJSON(w, http.StatusOK, map[string]any{"songs": out})
}

func (s *Server) handleAddFavorite(w http.ResponseWriter, r *http.Request) {
	var req songRequest
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Song.ID == "" || req.Song.Source == "" {
		http.Error(w, "song id and source are required", http.StatusBadRequest)
		return
	}
	if err := s.favs.Add(r.Context(), req.Song); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"songKey": req.Song.Key()})
}

func (s *Server) handleRemoveFavorite(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		http.Error(w, "missing key", http.StatusBadRequest)
		return
	}
	n, err := s.favs.Remove(r.Context(), key)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"removed": n})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := s.repo.ListHistory(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": entries})
}

type settingsBody struct {
	PreferredQuality string `json:"preferredQuality"`
	Volume           int    `json:"volume"`
	PlaylistLimit    int    `json:"playlistLimit"`
	AutoAdvance      bool   `json:"autoAdvance"`
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	set, err := s.repo.GetSettings(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settingsBody{
		PreferredQuality: string(set.PreferredQuality),
		Volume:           set.Volume,
		PlaylistLimit:    set.PlaylistLimit,
		AutoAdvance:      set.AutoAdvance,
	})
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var body settingsBody
	if err := decodeBody(r, &body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	q := music.Quality(body.PreferredQuality)
	if !q.Valid() {
		http.Error(w, "invalid quality", http.StatusBadRequest)
		return
	}
	set := &repository.Settings{
		PreferredQuality: q,
		Volume:           body.Volume,
		PlaylistLimit:    body.PlaylistLimit,
		AutoAdvance:      body.AutoAdvance,
	}
	if err := s.repo.UpdateSettings(r.Context(), set); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.repo.ListSourceStats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	type statBody struct {
		Provider string  `json:"provider"`
		Rate     float64 `json:"rate"`
		Attempts int64   `json:"attempts"`
	}
	out := make([]statBody, 0, len(stats))
	for _, st := range stats {
		out = append(out, statBody{
			Provider: st.Provider,
			Rate:     st.Rate(),
			Attempts: st.SuccessCount + st.FailureCount,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"stats": out})
}

// session extracts the playback session, minting one on demand. The id
// travels in a response header so the client can persist it.
func (s *Server) session(w http.ResponseWriter, r *http.Request) *playback.Controller {
	id, c := s.manager.Get(r.Header.Get("X-Session"))
	w.Header().Set("X-Session", id)
	return c
}

func (s *Server) handlePlayerState(w http.ResponseWriter, r *http.Request) {
	c := s.session(w, r)
	song, res, status := c.NowPlaying()
	body := map[string]any{
		"status": status.String(),
		"queue":  c.Queue(),
	}
	if sink, ok := c.Sink().(*playback.StateSink); ok {
		body["sink"] = sink.Snapshot()
	}
	if res != nil {
		body["song"] = song
		body["resolved"] = res
	}
	writeJSON(w, http.StatusOK, body)
}

type queueRequest struct {
	Songs []music.Song `json:"songs"`
}

func (s *Server) handlePlayerQueue(w http.ResponseWriter, r *http.Request) {
	var req queueRequest
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	c := s.session(w, r)
	c.Enqueue(req.Songs...)
	writeJSON(w, http.StatusOK, map[string]int{"queued": len(c.Queue())})
}

func (s *Server) handlePlayerPlay(w http.ResponseWriter, r *http.Request) {
	c := s.session(w, r)
	if set, err := s.repo.GetSettings(r.Context()); err == nil {
		c.SetPreferredQuality(set.PreferredQuality)
	}
	index := -1
	if v := r.URL.Query().Get("index"); v != "" {
		index, _ = strconv.Atoi(v)
	}
	var err error
	if index >= 0 {
		err = c.PlayAt(r.Context(), index)
	} else {
		err = c.Play(r.Context())
	}
	s.writePlayerResult(w, c, err)
}

func (s *Server) handlePlayerNext(w http.ResponseWriter, r *http.Request) {
	c := s.session(w, r)
	s.writePlayerResult(w, c, c.Next(r.Context()))
}

func (s *Server) handlePlayerPrevious(w http.ResponseWriter, r *http.Request) {
	c := s.session(w, r)
	s.writePlayerResult(w, c, c.Previous(r.Context()))
}

func (s *Server) writePlayerResult(w http.ResponseWriter, c *playback.Controller, err error) {
	if errors.Is(err, playback.ErrQueueEmpty) {
		http.Error(w, "queue exhausted", http.StatusConflict)
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	song, res, status := c.NowPlaying()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   status.String(),
		"song":     song,
		"resolved": res,
	})
}

func (s *Server) handlePlayerPause(w http.ResponseWriter, r *http.Request) {
	c := s.session(w, r)
	c.Pause()
	writeJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

func (s *Server) handlePlayerResume(w http.ResponseWriter, r *http.Request) {
	c := s.session(w, r)
	c.Resume()
	writeJSON(w, http.StatusOK, map[string]string{"status": "playing"})
}

func (s *Server) handlePlayerSeek(w http.ResponseWriter, r *http.Request) {
	c := s.session(w, r)
	sec, err := strconv.ParseFloat(r.URL.Query().Get("to"), 64)
	if err != nil || sec < 0 {
		http.Error(w, "invalid seek position", http.StatusBadRequest)
		return
	}
	c.Seek(sec)
	writeJSON(w, http.StatusOK, map[string]float64{"position": sec})
}

func (s *Server) handlePlayerShuffle(w http.ResponseWriter, r *http.Request) {
	c := s.session(w, r)
	c.Shuffle()
	writeJSON(w, http.StatusOK, map[string]any{"queue": c.Queue()})
}

func (s *Server) handlePlayerVolume(w http.ResponseWriter, r *http.Request) {
	c := s.session(w, r)
	vol, err := strconv.Atoi(r.URL.Query().Get("to"))
	if err != nil {
		http.Error(w, "invalid volume", http.StatusBadRequest)
		return
	}
	c.SetVolume(vol)
	writeJSON(w, http.StatusOK, map[string]int{"volume": c.Sink().Volume()})
}

type playerEvent struct {
	Type     string  `json:"type"` // "ended", "error", "loadedmetadata", "position"
	Duration float64 `json:"duration,omitempty"`
	Position float64 `json:"position,omitempty"`
	Error    string  `json:"error,omitempty"`
}

// handlePlayerEvent receives audio element events from the browser.
func (s *Server) handlePlayerEvent(w http.ResponseWriter, r *http.Request) {
	var ev playerEvent
	if err := decodeBody(r, &ev); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	c := s.session(w, r)
	switch ev.Type {
	case "ended":
		c.HandleEnded(r.Context())
	case "error":
		c.HandleError(r.Context(), ev.Error)
	case "loadedmetadata":
		c.HandleLoadedMetadata(ev.Duration)
	case "position":
		if sink, ok := c.Sink().(*playback.StateSink); ok {
			sink.UpdatePosition(ev.Position, ev.Duration)
		}
	default:
		http.Error(w, "unknown event type", http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
