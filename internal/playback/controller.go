package playback

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/meloplay/meloplay/internal/config"
	"github.com/meloplay/meloplay/internal/music"
	"github.com/meloplay/meloplay/internal/preview"
	"github.com/meloplay/meloplay/internal/utils"
)

const DefaultVolume = 100

type Status int

const (
	StatusIdle Status = iota
	StatusPlaying
	StatusPaused
)

func (s Status) String() string {
	switch s {
	case StatusPlaying:
		return "playing"
	case StatusPaused:
		return "paused"
	default:
		return "idle"
	}
}

// Resolver turns a song identity into a playable URL.
type Resolver interface {
	ResolveURL(ctx context.Context, song music.Song, preferred music.Quality) (*music.ResolvedURL, error)
}

// HistoryRecorder persists playback history. Failures are logged, never
// surfaced into playback.
type HistoryRecorder interface {
	AddHistory(ctx context.Context, song music.Song) error
}

var ErrQueueEmpty = errors.New("queue is empty")

// Controller serializes every mutation of one listening session. Each
// user action bumps the generation counter; an async completion whose
// generation is stale finds newer intent already applied and aborts.
type Controller struct {
	cfg      *config.Config
	resolver Resolver
	sink     Sink
	history  HistoryRecorder
	det      *preview.Detector
	sleep    func(time.Duration)

	// OnPreviewDetected fires when a track assumed full-length turns
	// out to be a preview only after the client loaded its metadata.
	// The server wires this to the cross-source matcher.
	OnPreviewDetected func(song music.Song, res *music.ResolvedURL)

	gen atomic.Uint64

	mu        sync.Mutex
	status    Status
	queue     []music.Song
	pos       int
	current   *music.ResolvedURL
	preferred music.Quality
}

func NewController(cfg *config.Config, resolver Resolver, sink Sink, history HistoryRecorder) *Controller {
	return NewControllerWithSleep(cfg, resolver, sink, history, time.Sleep)
}

// NewControllerWithSleep injects the fade/advance sleeper for tests.
func NewControllerWithSleep(cfg *config.Config, resolver Resolver, sink Sink, history HistoryRecorder, sleep func(time.Duration)) *Controller {
	return &Controller{
		cfg:       cfg,
		resolver:  resolver,
		sink:      sink,
		history:   history,
		sleep:     sleep,
		preferred: music.QualityDefault,
	}
}

func (c *Controller) Generation() uint64 { return c.gen.Load() }

// Sink exposes the session's sink for client state polling.
func (c *Controller) Sink() Sink { return c.sink }

func (c *Controller) SetPreferredQuality(q music.Quality) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if q.Valid() {
		c.preferred = q
	}
}

func (c *Controller) Enqueue(songs ...music.Song) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue = append(c.queue, songs...)
}

func (c *Controller) Queue() []music.Song {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]music.Song, len(c.queue))
	copy(out, c.queue)
	return out
}

// Shuffle randomizes the not-yet-played remainder of the queue. The
// current track keeps playing.
func (c *Controller) Shuffle() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pos+1 >= len(c.queue) {
		return
	}
	rest := c.queue[c.pos+1:]
	utils.ShuffleSlice(rest)
}

func (c *Controller) ClearQueue() {
	c.gen.Add(1)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue = nil
	c.pos = 0
	c.current = nil
	c.status = StatusIdle
	c.sink.Detach()
}

func (c *Controller) NowPlaying() (music.Song, *music.ResolvedURL, Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pos < 0 || c.pos >= len(c.queue) {
		return music.Song{}, nil, c.status
	}
	return c.queue[c.pos], c.current, c.status
}

// Play starts (or restarts) playback at the current queue position.
func (c *Controller) Play(ctx context.Context) error {
	gen := c.gen.Add(1)
	c.mu.Lock()
	if len(c.queue) == 0 {
		c.mu.Unlock()
		return ErrQueueEmpty
	}
	song := c.queue[c.pos]
	preferred := c.preferred
	c.mu.Unlock()
	return c.start(ctx, gen, song, preferred)
}

// PlayAt jumps to a queue index and plays it.
func (c *Controller) PlayAt(ctx context.Context, index int) error {
	gen := c.gen.Add(1)
	c.mu.Lock()
	if index < 0 || index >= len(c.queue) {
		c.mu.Unlock()
		return ErrQueueEmpty
	}
	c.pos = index
	song := c.queue[index]
	preferred := c.preferred
	c.mu.Unlock()
	return c.start(ctx, gen, song, preferred)
}

func (c *Controller) Next(ctx context.Context) error {
	gen := c.gen.Add(1)
	c.mu.Lock()
	if c.pos+1 >= len(c.queue) {
		c.current = nil
		c.status = StatusIdle
		c.sink.Detach()
		c.mu.Unlock()
		return ErrQueueEmpty
	}
	c.pos++
	song := c.queue[c.pos]
	preferred := c.preferred
	c.mu.Unlock()
	return c.start(ctx, gen, song, preferred)
}

func (c *Controller) Previous(ctx context.Context) error {
	gen := c.gen.Add(1)
	c.mu.Lock()
	if c.pos == 0 || len(c.queue) == 0 {
		c.mu.Unlock()
		return ErrQueueEmpty
	}
	c.pos--
	song := c.queue[c.pos]
	preferred := c.preferred
	c.mu.Unlock()
	return c.start(ctx, gen, song, preferred)
}

// start resolves and loads a song. The network round trip happens off
// the lock; afterwards the generation is re-checked before the sink is
// touched. Every source change fades the old source to silence before
// detaching and ramps back up once the new one is playing.
func (c *Controller) start(ctx context.Context, gen uint64, song music.Song, preferred music.Quality) error {
	res, err := c.resolver.ResolveURL(ctx, song, preferred)
	if err != nil {
		slog.Warn("resolution failed", "song", song.Display(), "err", err)
		return err
	}

	c.mu.Lock()
	if gen != c.gen.Load() {
		c.mu.Unlock()
		// state changed while preparing; abort
		slog.Debug("discarding stale resolution", "song", song.Display())
		return nil
	}
	active := c.status == StatusPlaying
	vol := c.sink.Volume()
	c.mu.Unlock()

	if active {
		c.fade(vol, 0)
	}

	c.mu.Lock()
	if gen != c.gen.Load() {
		c.mu.Unlock()
		// state changed while preparing; abort
		if active {
			c.fade(0, vol)
		}
		return nil
	}
	c.current = res
	c.status = StatusPlaying
	c.sink.Load(res.URL)
	c.sink.SetVolume(0)
	c.sink.Play()
	c.mu.Unlock()

	c.fade(0, vol)

	if res.Preview {
		slog.Info("playing preview while a full version is searched",
			"song", song.Display(), "provider", res.Provider)
	}
	if c.history != nil {
		go func() {
			if err := c.history.AddHistory(context.WithoutCancel(ctx), song); err != nil {
				slog.Warn("history write failed", "song", song.Display(), "err", err)
			}
		}()
	}
	return nil
}

func (c *Controller) Pause() {
	c.gen.Add(1)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != StatusPlaying {
		return
	}
	c.status = StatusPaused
	c.sink.Pause()
}

func (c *Controller) Resume() {
	c.gen.Add(1)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != StatusPaused {
		return
	}
	c.status = StatusPlaying
	c.sink.Play()
}

func (c *Controller) Seek(seconds float64) {
	c.gen.Add(1)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sink.Seek(seconds)
}

func (c *Controller) SetVolume(percent int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sink.SetVolume(percent)
}

// SwapToFullVersion replaces the currently playing preview with a
// full-length asset, resuming near the interrupted position. A swap
// for a song that is no longer current is dropped.
func (c *Controller) SwapToFullVersion(target music.Song, full *music.ResolvedURL) {
	gen := c.gen.Load()

	c.mu.Lock()
	if c.status == StatusIdle || c.pos >= len(c.queue) || c.queue[c.pos].Key() != target.Key() {
		c.mu.Unlock()
		return
	}
	if c.current != nil && !c.current.Preview {
		c.mu.Unlock()
		return
	}
	wasPlaying := c.status == StatusPlaying
	pos := c.sink.Position()
	vol := c.sink.Volume()
	c.mu.Unlock()

	if wasPlaying {
		c.fade(vol, 0)
	}

	c.mu.Lock()
	if gen != c.gen.Load() {
		c.mu.Unlock()
		// state changed while preparing; abort
		c.fade(0, vol)
		return
	}
	seekTo := pos
	if ceiling := float64(c.cfg.SwapSeekCeiling); ceiling > 0 && seekTo > ceiling {
		seekTo = ceiling
	}
	c.current = full
	c.sink.Load(full.URL)
	c.sink.Seek(seekTo)
	if wasPlaying {
		c.sink.Play()
	}
	c.mu.Unlock()

	if wasPlaying {
		c.fade(0, vol)
	}
	slog.Info("swapped preview for full version",
		"song", target.Display(), "provider", full.Provider, "resume_at", seekTo)
}

// fade steps the sink volume between two levels.
func (c *Controller) fade(from, to int) {
	steps := c.cfg.FadeSteps
	if steps <= 0 || from == to {
		c.sink.SetVolume(to)
		return
	}
	pause := c.cfg.FadeDuration / time.Duration(steps)
	for i := 1; i <= steps; i++ {
		v := from + (to-from)*i/steps
		c.sink.SetVolume(v)
		if pause > 0 {
			c.sleep(pause)
		}
	}
}

// SetDetector installs the preview detector used for the late
// loaded-metadata check.
func (c *Controller) SetDetector(det *preview.Detector) { c.det = det }

// HandleLoadedMetadata is the client's report of the audio element's
// real duration. A track that slipped past resolution-time detection
// gets flagged here and handed to the cross-source matcher.
func (c *Controller) HandleLoadedMetadata(durationSeconds float64) {
	loadedMS := int(durationSeconds * 1000)

	c.mu.Lock()
	if c.det == nil || c.current == nil || c.pos >= len(c.queue) {
		c.mu.Unlock()
		return
	}
	song := c.queue[c.pos]
	res := c.current
	if res.Preview || !c.det.CheckLoadedDuration(loadedMS) {
		c.mu.Unlock()
		return
	}
	res.Preview = true
	cb := c.OnPreviewDetected
	c.mu.Unlock()

	slog.Info("loaded duration exposed a preview",
		"song", song.Display(), "loaded_ms", loadedMS, "expected_ms", song.DurationMS)
	if cb != nil {
		go cb(song, res)
	}
}

// HandleEnded is the client's report that the audio element finished.
// The next track starts after a short delay unless the user acted in
// the meantime.
func (c *Controller) HandleEnded(ctx context.Context) {
	gen := c.gen.Load()
	go func() {
		c.sleep(c.cfg.AdvanceDelay)
		if gen != c.gen.Load() {
			return
		}
		if err := c.Next(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, ErrQueueEmpty) {
			slog.Warn("auto-advance failed", "err", err)
		}
	}()
}

// HandleError treats an unplayable asset like a finished one: advance,
// so a single dead URL never stalls the queue.
func (c *Controller) HandleError(ctx context.Context, mediaErr string) {
	c.mu.Lock()
	song := music.Song{}
	if c.pos < len(c.queue) {
		song = c.queue[c.pos]
	}
	c.mu.Unlock()
	slog.Warn("client reported playback error", "song", song.Display(), "err", mediaErr)
	c.HandleEnded(ctx)
}
