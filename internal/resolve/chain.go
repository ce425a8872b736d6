// Package resolve walks the provider chain to turn song identities into
// playable URLs, lyrics, covers, and playlist contents.
package resolve

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/meloplay/meloplay/internal/breaker"
	"github.com/meloplay/meloplay/internal/config"
	"github.com/meloplay/meloplay/internal/music"
	"github.com/meloplay/meloplay/internal/preview"
	"github.com/meloplay/meloplay/internal/provider"
)

// FullVersionFinder recovers a full-length asset for a preview-flagged
// song from alternate providers.
type FullVersionFinder interface {
	FindFullVersion(ctx context.Context, target music.Song) (*music.ResolvedURL, error)
}

// Chain drives resolution across the priority-ordered providers. A
// provider that cannot serve a request (wrong source, missing
// capability) is skipped without penalty; an actual failure counts
// against its circuit breaker when it has one.
type Chain struct {
	cfg      *config.Config
	reg      *provider.Registry
	det      *preview.Detector
	finder   FullVersionFinder
	breakers map[string]*breaker.Breaker

	// OnFullVersion fires when a cross-source full version arrives after
	// ResolveURL already returned the preview fallback. Set once during
	// wiring, before the chain serves requests.
	OnFullVersion func(target music.Song, res *music.ResolvedURL)
}

func New(cfg *config.Config, reg *provider.Registry, det *preview.Detector, finder FullVersionFinder) *Chain {
	return newWithClock(cfg, reg, det, finder, time.Now)
}

// NewWithClock injects the breaker clock for tests.
func NewWithClock(cfg *config.Config, reg *provider.Registry, det *preview.Detector, finder FullVersionFinder, now func() time.Time) *Chain {
	return newWithClock(cfg, reg, det, finder, now)
}

func newWithClock(cfg *config.Config, reg *provider.Registry, det *preview.Detector, finder FullVersionFinder, now func() time.Time) *Chain {
	breakers := make(map[string]*breaker.Breaker, len(cfg.BreakerProviders))
	for _, name := range cfg.BreakerProviders {
		breakers[name] = breaker.NewWithClock(cfg.BreakerThreshold, cfg.BreakerCooldown, now)
	}
	return &Chain{cfg: cfg, reg: reg, det: det, finder: finder, breakers: breakers}
}

// BreakerState reports the breaker state for a provider, StateClosed
// for unguarded ones.
func (c *Chain) BreakerState(name string) breaker.State {
	if b, ok := c.breakers[name]; ok {
		return b.State()
	}
	return breaker.StateClosed
}

func (c *Chain) allow(name string) bool {
	b, ok := c.breakers[name]
	return !ok || b.Allow()
}

func (c *Chain) recordOutcome(name string, ok bool) {
	b, guarded := c.breakers[name]
	if !guarded {
		return
	}
	if ok {
		b.RecordSuccess()
		return
	}
	b.RecordFailure()
	if b.State() == breaker.StateOpen {
		slog.Warn("provider circuit opened", "provider", name, "cooldown", c.cfg.BreakerCooldown)
	}
}

// Search fans the keyword out to every searchable provider and merges
// the results in provider priority order.
func (c *Chain) Search(ctx context.Context, keyword string) ([]music.Song, error) {
	var targets []provider.Provider
	for _, p := range c.reg.Ordered() {
		d := p.Describe()
		if !d.SupportsSearch {
			continue
		}
		if !c.allow(d.Name) {
			slog.Debug("search skipping open circuit", "provider", d.Name)
			continue
		}
		targets = append(targets, p)
	}
	if len(targets) == 0 {
		return nil, music.Unresolved("search")
	}

	type slot struct {
		order int
		songs []music.Song
	}
	var (
		mu    sync.Mutex
		slots []slot
	)
	run := func(order int, p provider.Provider) {
		name := p.Describe().Name
		sctx, cancel := context.WithTimeout(ctx, c.cfg.SearchTimeout)
		songs, err := p.Search(sctx, keyword, c.cfg.SearchLimit)
		cancel()
		if err != nil {
			slog.Debug("search failed", "provider", name, "err", err)
			c.recordOutcome(name, false)
			return
		}
		c.recordOutcome(name, true)
		if len(songs) == 0 {
			return
		}
		mu.Lock()
		slots = append(slots, slot{order: order, songs: songs})
		mu.Unlock()
	}

	if c.cfg.ParallelSearch {
		var g errgroup.Group
		for i, p := range targets {
			g.Go(func() error {
				run(i, p)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i, p := range targets {
			run(i, p)
		}
	}

	sort.Slice(slots, func(i, j int) bool { return slots[i].order < slots[j].order })
	var out []music.Song
	for _, s := range slots {
		out = append(out, s.songs...)
	}
	if len(out) == 0 {
		return nil, music.Unresolved("search")
	}
	return out, nil
}

// ResolveURL finds a playable URL for the song, trying its preferred
// quality first and then climbing the ladder from the bottom. A preview
// result is held as a fallback while the remaining providers get their
// turn; if nobody serves a full-length asset the cross-source matcher
// gets a bounded window to find one before the preview is returned.
func (c *Chain) ResolveURL(ctx context.Context, song music.Song, preferred music.Quality) (*music.ResolvedURL, error) {
	if !preferred.Valid() {
		preferred = music.QualityDefault
	}
	ladder := music.Ladder(preferred)

	var fallback *music.ResolvedURL
	for _, p := range c.reg.Ordered() {
		d := p.Describe()
		if !d.SupportsURL {
			continue
		}
		if !c.allow(d.Name) {
			slog.Debug("resolve skipping open circuit", "provider", d.Name)
			continue
		}

		res, attempted, err := c.tryURLs(ctx, p, song, ladder)
		if !attempted {
			continue
		}
		if err != nil {
			c.recordOutcome(d.Name, false)
			continue
		}
		c.recordOutcome(d.Name, true)

		if c.det != nil && c.det.Detect(res, song.DurationMS) {
			res.Preview = true
			if fallback == nil {
				fallback = res
				slog.Info("holding preview as fallback",
					"provider", d.Name, "song", song.Display())
			}
			continue
		}
		return res, nil
	}

	if fallback == nil {
		return nil, music.Unresolved("resolve-url")
	}
	if full := c.reconcile(ctx, song); full != nil {
		return full, nil
	}
	return fallback, nil
}

// tryURLs walks the quality ladder against one provider. attempted is
// false when the provider declined every quality as unsupported, which
// must not count against its breaker.
func (c *Chain) tryURLs(ctx context.Context, p provider.Provider, song music.Song, ladder []music.Quality) (res *music.ResolvedURL, attempted bool, err error) {
	name := p.Describe().Name
	var lastErr error
	for _, q := range ladder {
		uctx, cancel := context.WithTimeout(ctx, c.cfg.URLTimeout)
		r, rerr := p.ResolveURL(uctx, song, q)
		cancel()
		if errors.Is(rerr, provider.ErrUnsupported) {
			break
		}
		attempted = true
		if rerr != nil {
			lastErr = music.Classify("resolve-url", name, rerr)
			continue
		}
		if r == nil || r.URL == "" {
			lastErr = music.Classify("resolve-url", name, provider.ErrNotFound)
			continue
		}
		if r.Provider == "" {
			r.Provider = name
		}
		return r, true, nil
	}
	return nil, attempted, lastErr
}

// reconcile gives the cross-source matcher a bounded head start. When
// the match lands inside the window the caller gets the full version
// directly; a late match is handed to OnFullVersion so the playback
// layer can swap mid-song.
func (c *Chain) reconcile(ctx context.Context, song music.Song) *music.ResolvedURL {
	if c.finder == nil || c.cfg.CrossSourceWait <= 0 {
		return nil
	}

	type outcome struct {
		res *music.ResolvedURL
		err error
	}
	ch := make(chan outcome, 1)
	// Detached from the request context: the search keeps running after
	// the preview is returned, feeding a possible mid-song swap.
	mctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*c.cfg.CrossSourceWait+c.cfg.SearchTimeout)
	go func() {
		defer cancel()
		res, err := c.finder.FindFullVersion(mctx, song)
		ch <- outcome{res: res, err: err}
	}()

	timer := time.NewTimer(c.cfg.CrossSourceWait)
	defer timer.Stop()
	select {
	case out := <-ch:
		if out.err != nil {
			slog.Debug("cross-source reconcile failed", "song", song.Display(), "err", out.err)
			return nil
		}
		return out.res
	case <-timer.C:
		go func() {
			out := <-ch
			if out.err != nil || out.res == nil {
				return
			}
			if c.OnFullVersion != nil {
				c.OnFullVersion(song, out.res)
			}
		}()
		return nil
	case <-ctx.Done():
		return nil
	}
}

// Lyrics asks the song's own provider, then any other provider that
// carries lyrics.
func (c *Chain) Lyrics(ctx context.Context, song music.Song) (*music.Lyrics, error) {
	for _, p := range c.orderedOwnFirst(song.Source) {
		d := p.Describe()
		if !d.SupportsLyrics || !c.allow(d.Name) {
			continue
		}
		lctx, cancel := context.WithTimeout(ctx, c.cfg.LyricsTimeout)
		ly, err := p.Lyrics(lctx, song)
		cancel()
		if errors.Is(err, provider.ErrUnsupported) {
			continue
		}
		if err != nil {
			c.recordOutcome(d.Name, false)
			slog.Debug("lyrics failed", "provider", d.Name, "err", err)
			continue
		}
		c.recordOutcome(d.Name, true)
		return ly, nil
	}
	return nil, music.Unresolved("lyrics")
}

// CoverURL resolves album art, own provider first.
func (c *Chain) CoverURL(ctx context.Context, song music.Song) (string, error) {
	for _, p := range c.orderedOwnFirst(song.Source) {
		d := p.Describe()
		if !d.SupportsCover || !c.allow(d.Name) {
			continue
		}
		cctx, cancel := context.WithTimeout(ctx, c.cfg.CoverTimeout)
		u, err := p.CoverURL(cctx, song)
		cancel()
		if errors.Is(err, provider.ErrUnsupported) {
			continue
		}
		if err != nil {
			c.recordOutcome(d.Name, false)
			continue
		}
		c.recordOutcome(d.Name, true)
		if u != "" {
			return u, nil
		}
	}
	return "", music.Unresolved("cover")
}

// ParsePlaylist hands the link to each playlist-capable provider until
// one claims it.
func (c *Chain) ParsePlaylist(ctx context.Context, link string) ([]music.Song, error) {
	for _, p := range c.reg.Ordered() {
		d := p.Describe()
		if !d.SupportsPlaylist || !c.allow(d.Name) {
			continue
		}
		pctx, cancel := context.WithTimeout(ctx, c.cfg.PlaylistTimeout)
		songs, err := p.ParsePlaylist(pctx, link)
		cancel()
		if errors.Is(err, provider.ErrUnsupported) {
			continue
		}
		if err != nil {
			c.recordOutcome(d.Name, false)
			slog.Debug("playlist parse failed", "provider", d.Name, "err", err)
			continue
		}
		c.recordOutcome(d.Name, true)
		if c.cfg.PlaylistLimit > 0 && len(songs) > c.cfg.PlaylistLimit {
			songs = songs[:c.cfg.PlaylistLimit]
		}
		return songs, nil
	}
	return nil, music.Unresolved("playlist")
}

// orderedOwnFirst moves the song's originating provider to the front of
// the priority order.
func (c *Chain) orderedOwnFirst(source string) []provider.Provider {
	all := c.reg.Ordered()
	if source == "" {
		return all
	}
	out := make([]provider.Provider, 0, len(all))
	if own, ok := c.reg.Get(source); ok {
		out = append(out, own)
	}
	for _, p := range all {
		if p.Describe().Name != source {
			out = append(out, p)
		}
	}
	return out
}
