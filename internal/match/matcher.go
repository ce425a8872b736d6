package match

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/meloplay/meloplay/internal/config"
	"github.com/meloplay/meloplay/internal/music"
	"github.com/meloplay/meloplay/internal/preview"
	"github.com/meloplay/meloplay/internal/provider"
)

// ErrInFlight is returned when a cross-source search for the same song
// identity is already running; the caller treats it as a no-op.
var ErrInFlight = errors.New("cross-source search already in flight")

// neutralRate is the rank given to providers with no recorded history,
// so they get tried without beating providers with a good track record.
const neutralRate = 0.5

// Stats feeds provider ordering and receives attempt outcomes. A
// storage failure inside an implementation must not surface here.
type Stats interface {
	SuccessRate(ctx context.Context, providerName string) (rate float64, known bool)
	Record(ctx context.Context, providerName string, success bool) error
}

type Matcher struct {
	cfg   *config.Config
	reg   *provider.Registry
	det   *preview.Detector
	stats Stats

	mu       sync.Mutex
	inflight map[string]struct{}
}

func New(cfg *config.Config, reg *provider.Registry, det *preview.Detector, stats Stats) *Matcher {
	return &Matcher{
		cfg:      cfg,
		reg:      reg,
		det:      det,
		stats:    stats,
		inflight: make(map[string]struct{}),
	}
}

// FindFullVersion searches alternate providers for a full-length asset
// of a preview-flagged song and returns the first candidate URL the
// preview detector accepts.
func (m *Matcher) FindFullVersion(ctx context.Context, target music.Song) (*music.ResolvedURL, error) {
	key := target.Key()
	m.mu.Lock()
	if _, busy := m.inflight[key]; busy {
		m.mu.Unlock()
		return nil, ErrInFlight
	}
	m.inflight[key] = struct{}{}
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.inflight, key)
		m.mu.Unlock()
	}()

	providers := m.rankedCandidates(ctx, target.Source)
	if len(providers) == 0 {
		return nil, music.Unresolved("cross-source")
	}

	query := strings.TrimSpace(target.Name + " " + target.PrimaryArtist())
	slog.Debug("cross-source search", "song", key, "query", query, "providers", len(providers))

	if m.cfg.ParallelSearch {
		return m.findParallel(ctx, providers, query, target)
	}
	for _, p := range providers {
		if res := m.tryProvider(ctx, p, query, target); res != nil {
			return res, nil
		}
	}
	return nil, music.Unresolved("cross-source")
}

// rankedCandidates excludes the originating provider, ranks the rest by
// historical success rate, and caps the set to bound cost.
func (m *Matcher) rankedCandidates(ctx context.Context, originSource string) []provider.Provider {
	type ranked struct {
		p    provider.Provider
		rate float64
	}
	var cands []ranked
	for _, p := range m.reg.Ordered() {
		d := p.Describe()
		if d.Name == originSource || !d.SupportsSearch || !d.SupportsURL {
			continue
		}
		rate, known := m.stats.SuccessRate(ctx, d.Name)
		if !known {
			rate = neutralRate
		}
		cands = append(cands, ranked{p: p, rate: rate})
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].rate > cands[j].rate })

	max := m.cfg.MatchMaxProviders
	if max > 0 && len(cands) > max {
		cands = cands[:max]
	}
	out := make([]provider.Provider, len(cands))
	for i, c := range cands {
		out[i] = c.p
	}
	return out
}

func (m *Matcher) findParallel(ctx context.Context, providers []provider.Provider, query string, target music.Song) (*music.ResolvedURL, error) {
	gctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan *music.ResolvedURL, len(providers))
	g, gctx := errgroup.WithContext(gctx)
	for _, p := range providers {
		g.Go(func() error {
			if res := m.tryProvider(gctx, p, query, target); res != nil {
				results <- res
			}
			return nil
		})
	}
	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	select {
	case res := <-results:
		cancel() // stop the slower providers
		return res, nil
	case <-done:
		// Everyone finished; take a late result if one squeezed in.
		select {
		case res := <-results:
			return res, nil
		default:
			return nil, music.Unresolved("cross-source")
		}
	case <-ctx.Done():
		return nil, music.Classify("cross-source", "", ctx.Err())
	}
}

// tryProvider searches one provider, scores its results against the
// target, and walks the top candidates from the lowest bitrate upward
// until the detector accepts a URL. Returns nil when the provider
// yields nothing acceptable.
func (m *Matcher) tryProvider(ctx context.Context, p provider.Provider, query string, target music.Song) *music.ResolvedURL {
	name := p.Describe().Name

	sctx, cancel := context.WithTimeout(ctx, m.cfg.SearchTimeout)
	songs, err := p.Search(sctx, query, m.cfg.SearchLimit)
	cancel()
	if err != nil {
		slog.Debug("cross-source search failed", "provider", name, "err", err)
		m.recordFailure(ctx, name)
		return nil
	}

	cands := m.scoreCandidates(songs, target)
	if len(cands) == 0 {
		m.recordFailure(ctx, name)
		return nil
	}
	top := m.cfg.MatchTopCandidates
	if top > 0 && len(cands) > top {
		cands = cands[:top]
	}

	// Lower bitrates are statistically more likely to come back as
	// full tracks, so the ladder runs bottom-up here.
	for _, cand := range cands {
		for _, q := range music.LadderAscending() {
			uctx, cancel := context.WithTimeout(ctx, m.cfg.URLTimeout)
			res, err := p.ResolveURL(uctx, cand.Song, q)
			cancel()
			if err != nil || res == nil || res.URL == "" {
				continue
			}
			if m.det.Detect(res, cand.Song.DurationMS) {
				slog.Debug("cross-source candidate still a preview",
					"provider", name, "song", cand.Song.Display(), "quality", q)
				continue
			}
			slog.Info("cross-source match found",
				"provider", name, "song", cand.Song.Display(),
				"score", cand.Score, "quality", q)
			m.record(ctx, name, true)
			return res
		}
	}
	m.recordFailure(ctx, name)
	return nil
}

func (m *Matcher) scoreCandidates(songs []music.Song, target music.Song) []music.MatchCandidate {
	var out []music.MatchCandidate
	for _, s := range songs {
		score := Similarity(s.Name, target.Name)
		if score < m.cfg.SimilarityFloor {
			continue
		}
		score += ArtistBonus(s.Artists, target.PrimaryArtist())
		if score > 1.0 {
			score = 1.0
		}
		out = append(out, music.MatchCandidate{Song: s, Score: score})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// recordFailure books a failed attempt unless the pass was already
// canceled. A parallel loser cut off by the winning provider did not
// genuinely fail and must not skew its history.
func (m *Matcher) recordFailure(ctx context.Context, providerName string) {
	if ctx.Err() != nil {
		return
	}
	m.record(ctx, providerName, false)
}

func (m *Matcher) record(ctx context.Context, providerName string, success bool) {
	if err := m.stats.Record(context.WithoutCancel(ctx), providerName, success); err != nil {
		slog.Warn("source stats update failed", "provider", providerName, "err", err)
	}
}
