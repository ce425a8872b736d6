package match

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/meloplay/meloplay/internal/config"
	"github.com/meloplay/meloplay/internal/music"
	"github.com/meloplay/meloplay/internal/preview"
	"github.com/meloplay/meloplay/internal/provider"
)

type fakeProvider struct {
	desc        provider.Descriptor
	searchRes   []music.Song
	searchErr   error
	urls        map[string]string // song ID -> URL
	searchDelay time.Duration

	mu         sync.Mutex
	searchHits int
}

func (f *fakeProvider) Describe() provider.Descriptor { return f.desc }

func (f *fakeProvider) Search(ctx context.Context, keyword string, limit int) ([]music.Song, error) {
	f.mu.Lock()
	f.searchHits++
	f.mu.Unlock()
	if f.searchDelay > 0 {
		select {
		case <-time.After(f.searchDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.searchRes, f.searchErr
}

func (f *fakeProvider) ResolveURL(ctx context.Context, song music.Song, q music.Quality) (*music.ResolvedURL, error) {
	if song.Source != f.desc.Name {
		return nil, provider.ErrUnsupported
	}
	u, ok := f.urls[song.ID]
	if !ok {
		return nil, provider.ErrNotFound
	}
	return &music.ResolvedURL{URL: u, Quality: q, Provider: f.desc.Name}, nil
}

func (f *fakeProvider) Lyrics(ctx context.Context, song music.Song) (*music.Lyrics, error) {
	return nil, provider.ErrUnsupported
}

func (f *fakeProvider) CoverURL(ctx context.Context, song music.Song) (string, error) {
	return "", provider.ErrUnsupported
}

func (f *fakeProvider) ParsePlaylist(ctx context.Context, link string) ([]music.Song, error) {
	return nil, provider.ErrUnsupported
}

type memStats struct {
	mu    sync.Mutex
	rates map[string]float64
	log   []string
}

func (s *memStats) SuccessRate(ctx context.Context, name string) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rates[name]
	return r, ok
}

func (s *memStats) Record(ctx context.Context, name string, success bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if success {
		s.log = append(s.log, name+":ok")
	} else {
		s.log = append(s.log, name+":fail")
	}
	return nil
}

func matcherConfig() *config.Config {
	return &config.Config{
		SearchTimeout:       time.Second,
		URLTimeout:          time.Second,
		SearchLimit:         10,
		SimilarityFloor:     0.55,
		MatchMaxProviders:   3,
		MatchTopCandidates:  3,
		PreviewMarkers:      []string{"trial", "clip"},
		PreviewMinSizeBytes: 983040,
		PreviewBandMinMS:    10000,
		PreviewBandMaxMS:    95000,
		PreviewTypicalMS:    []int{30000, 45000, 60000},
		PreviewToleranceMS:  2000,
	}
}

func target() music.Song {
	return music.Song{ID: "42", Source: "netease", Name: "Let It Go", Artists: []string{"Idina Menzel"}, DurationMS: 28000}
}

func TestFindFullVersionPrefersMatchingProvider(t *testing.T) {
	cfg := matcherConfig()
	full := &fakeProvider{
		desc: provider.Descriptor{Name: "kuwo", SupportsSearch: true, SupportsURL: true},
		searchRes: []music.Song{
			{ID: "k1", Source: "kuwo", Name: "let it go", Artists: []string{"Idina Menzel"}, DurationMS: 210000},
		},
		urls: map[string]string{"k1": "http://cdn.kuwo.test/full.mp3"},
	}
	noise := &fakeProvider{
		desc: provider.Descriptor{Name: "migu", SupportsSearch: true, SupportsURL: true},
		searchRes: []music.Song{
			{ID: "m1", Source: "migu", Name: "Something Else Entirely", DurationMS: 200000},
		},
		urls: map[string]string{"m1": "http://cdn.migu.test/other.mp3"},
	}
	origin := &fakeProvider{
		desc: provider.Descriptor{Name: "netease", SupportsSearch: true, SupportsURL: true},
	}
	reg := provider.NewRegistry([]string{"netease", "kuwo", "migu"}, origin, full, noise)
	stats := &memStats{}
	m := New(cfg, reg, preview.NewDetector(cfg), stats)

	res, err := m.FindFullVersion(context.Background(), target())
	if err != nil {
		t.Fatalf("FindFullVersion: %v", err)
	}
	if res.URL != "http://cdn.kuwo.test/full.mp3" {
		t.Fatalf("got %q, want the kuwo full version", res.URL)
	}
	if origin.searchHits != 0 {
		t.Fatal("the originating provider must be excluded from cross-source search")
	}
}

func TestFindFullVersionSequentialRanksByStats(t *testing.T) {
	cfg := matcherConfig()
	cfg.ParallelSearch = false

	song := func(src string) []music.Song {
		return []music.Song{{ID: "s", Source: src, Name: "Let It Go", DurationMS: 210000}}
	}
	weak := &fakeProvider{
		desc:      provider.Descriptor{Name: "kuwo", SupportsSearch: true, SupportsURL: true},
		searchRes: song("kuwo"),
		urls:      map[string]string{"s": "http://cdn.kuwo.test/a.mp3"},
	}
	strong := &fakeProvider{
		desc:      provider.Descriptor{Name: "migu", SupportsSearch: true, SupportsURL: true},
		searchRes: song("migu"),
		urls:      map[string]string{"s": "http://cdn.migu.test/a.mp3"},
	}
	reg := provider.NewRegistry([]string{"kuwo", "migu"}, weak, strong)
	stats := &memStats{rates: map[string]float64{"kuwo": 0.1, "migu": 0.9}}
	m := New(cfg, reg, preview.NewDetector(cfg), stats)

	res, err := m.FindFullVersion(context.Background(), target())
	if err != nil {
		t.Fatalf("FindFullVersion: %v", err)
	}
	if res.Provider != "migu" {
		t.Fatalf("result came from %q, want the provider with the better success rate", res.Provider)
	}
	if weak.searchHits != 0 {
		t.Fatal("sequential mode should stop after the top-ranked provider succeeds")
	}
}

func TestFindFullVersionSkipsPreviewCandidates(t *testing.T) {
	cfg := matcherConfig()
	cfg.ParallelSearch = false

	p := &fakeProvider{
		desc: provider.Descriptor{Name: "kuwo", SupportsSearch: true, SupportsURL: true},
		searchRes: []music.Song{
			{ID: "k1", Source: "kuwo", Name: "Let It Go", DurationMS: 30000}, // still a preview
		},
		urls: map[string]string{"k1": "http://cdn.kuwo.test/clip.mp3"},
	}
	reg := provider.NewRegistry([]string{"kuwo"}, p)
	m := New(cfg, reg, preview.NewDetector(cfg), &memStats{})

	if _, err := m.FindFullVersion(context.Background(), target()); music.KindOf(err) != music.KindUnresolved {
		t.Fatalf("err = %v, want an unresolved outcome when every candidate is a preview", err)
	}
}

func TestFindFullVersionInFlightDedup(t *testing.T) {
	cfg := matcherConfig()
	cfg.ParallelSearch = false

	slow := &fakeProvider{
		desc:        provider.Descriptor{Name: "kuwo", SupportsSearch: true, SupportsURL: true},
		searchRes:   []music.Song{{ID: "k1", Source: "kuwo", Name: "Let It Go", DurationMS: 210000}},
		urls:        map[string]string{"k1": "http://cdn.kuwo.test/full.mp3"},
		searchDelay: 200 * time.Millisecond,
	}
	reg := provider.NewRegistry([]string{"kuwo"}, slow)
	m := New(cfg, reg, preview.NewDetector(cfg), &memStats{})

	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		close(started)
		_, err := m.FindFullVersion(context.Background(), target())
		done <- err
	}()
	<-started
	time.Sleep(50 * time.Millisecond) // let the first search get in flight

	if _, err := m.FindFullVersion(context.Background(), target()); !errors.Is(err, ErrInFlight) {
		t.Fatalf("second concurrent request returned %v, want ErrInFlight no-op", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("first request failed: %v", err)
	}
}

func (s *memStats) entries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.log))
	copy(out, s.log)
	return out
}

func TestFindFullVersionParallelLoserNotBookedAsFailure(t *testing.T) {
	cfg := matcherConfig()
	cfg.ParallelSearch = true

	fast := &fakeProvider{
		desc:      provider.Descriptor{Name: "kuwo", SupportsSearch: true, SupportsURL: true},
		searchRes: []music.Song{{ID: "k1", Source: "kuwo", Name: "Let It Go", DurationMS: 210000}},
		urls:      map[string]string{"k1": "http://cdn.kuwo.test/full.mp3"},
	}
	slow := &fakeProvider{
		desc:        provider.Descriptor{Name: "migu", SupportsSearch: true, SupportsURL: true},
		searchDelay: 500 * time.Millisecond,
	}
	reg := provider.NewRegistry([]string{"kuwo", "migu"}, fast, slow)
	stats := &memStats{}
	m := New(cfg, reg, preview.NewDetector(cfg), stats)

	if _, err := m.FindFullVersion(context.Background(), target()); err != nil {
		t.Fatalf("FindFullVersion: %v", err)
	}
	time.Sleep(50 * time.Millisecond) // let the canceled loser unwind

	for _, e := range stats.entries() {
		if e == "migu:fail" {
			t.Fatal("provider canceled by the winning race must not be booked as a failure")
		}
	}
	found := false
	for _, e := range stats.entries() {
		if e == "kuwo:ok" {
			found = true
		}
	}
	if !found {
		t.Fatalf("stats log = %v, want the winner's success recorded", stats.entries())
	}
}

func TestFindFullVersionRecordsStats(t *testing.T) {
	cfg := matcherConfig()
	cfg.ParallelSearch = false

	bad := &fakeProvider{
		desc:      provider.Descriptor{Name: "kuwo", SupportsSearch: true, SupportsURL: true},
		searchErr: errors.New("boom"),
	}
	good := &fakeProvider{
		desc:      provider.Descriptor{Name: "migu", SupportsSearch: true, SupportsURL: true},
		searchRes: []music.Song{{ID: "m1", Source: "migu", Name: "Let It Go", DurationMS: 210000}},
		urls:      map[string]string{"m1": "http://cdn.migu.test/a.mp3"},
	}
	reg := provider.NewRegistry([]string{"kuwo", "migu"}, bad, good)
	stats := &memStats{}
	m := New(cfg, reg, preview.NewDetector(cfg), stats)

	if _, err := m.FindFullVersion(context.Background(), target()); err != nil {
		t.Fatalf("FindFullVersion: %v", err)
	}
	want := []string{"kuwo:fail", "migu:ok"}
	if len(stats.log) != len(want) {
		t.Fatalf("stats log = %v, want %v", stats.log, want)
	}
	for i := range want {
		if stats.log[i] != want[i] {
			t.Fatalf("stats log = %v, want %v", stats.log, want)
		}
	}
}
