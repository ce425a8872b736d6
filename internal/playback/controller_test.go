package playback

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/meloplay/meloplay/internal/config"
	"github.com/meloplay/meloplay/internal/music"
	"github.com/meloplay/meloplay/internal/preview"
)

type scriptedResolver struct {
	mu      sync.Mutex
	results map[string]*music.ResolvedURL
	block   map[string]chan struct{} // song key -> release gate
}

func (r *scriptedResolver) ResolveURL(ctx context.Context, song music.Song, preferred music.Quality) (*music.ResolvedURL, error) {
	r.mu.Lock()
	gate := r.block[song.Key()]
	res := r.results[song.Key()]
	r.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if res == nil {
		return nil, music.Unresolved("resolve-url")
	}
	cp := *res
	return &cp, nil
}

func playbackConfig() *config.Config {
	return &config.Config{
		FadeSteps:           4,
		FadeDuration:        40 * time.Millisecond,
		SwapSeekCeiling:     25,
		AdvanceDelay:        10 * time.Millisecond,
		PreviewBandMinMS:    10000,
		PreviewBandMaxMS:    95000,
		PreviewTypicalMS:    []int{30000, 45000, 60000},
		PreviewToleranceMS:  2000,
		PreviewMinSizeBytes: 983040,
	}
}

func songN(id, name string) music.Song {
	return music.Song{ID: id, Source: "netease", Name: name, DurationMS: 210000}
}

func resolved(url string) *music.ResolvedURL {
	return &music.ResolvedURL{URL: url, Quality: music.Quality128, Provider: "netease", SizeBytes: 8 << 20}
}

func newTestController(r Resolver) (*Controller, *StateSink) {
	sink := NewStateSink()
	c := NewControllerWithSleep(playbackConfig(), r, sink, nil, func(time.Duration) {})
	return c, sink
}

func TestPlayLoadsAndPlays(t *testing.T) {
	s1 := songN("1", "A")
	r := &scriptedResolver{results: map[string]*music.ResolvedURL{
		s1.Key(): resolved("http://m.netease.test/a.mp3"),
	}}
	c, sink := newTestController(r)
	c.Enqueue(s1)

	if err := c.Play(context.Background()); err != nil {
		t.Fatalf("Play: %v", err)
	}
	snap := sink.Snapshot()
	if snap.URL != "http://m.netease.test/a.mp3" || !snap.Playing {
		t.Fatalf("sink state %+v, want track loaded and playing", snap)
	}
	_, _, status := c.NowPlaying()
	if status != StatusPlaying {
		t.Fatalf("status %v, want playing", status)
	}
}

func TestStaleResolutionIsDiscarded(t *testing.T) {
	s1, s2 := songN("1", "Slow"), songN("2", "Fast")
	gate := make(chan struct{})
	r := &scriptedResolver{
		results: map[string]*music.ResolvedURL{
			s1.Key(): resolved("http://m.netease.test/slow.mp3"),
			s2.Key(): resolved("http://m.netease.test/fast.mp3"),
		},
		block: map[string]chan struct{}{s1.Key(): gate},
	}
	c, sink := newTestController(r)
	c.Enqueue(s1, s2)

	firstDone := make(chan struct{})
	go func() {
		_ = c.Play(context.Background())
		close(firstDone)
	}()
	time.Sleep(20 * time.Millisecond) // first resolution is now blocked in flight

	if err := c.Next(context.Background()); err != nil {
		t.Fatalf("Next: %v", err)
	}
	close(gate) // slow resolution finally completes, one action too late
	<-firstDone

	if got := sink.Snapshot().URL; got != "http://m.netease.test/fast.mp3" {
		t.Fatalf("sink plays %q; the stale resolution overwrote a newer action", got)
	}
}

type volumeLog struct {
	*StateSink
	mu    sync.Mutex
	calls []int
}

func (v *volumeLog) SetVolume(percent int) {
	v.mu.Lock()
	v.calls = append(v.calls, percent)
	v.mu.Unlock()
	v.StateSink.SetVolume(percent)
}

func (v *volumeLog) recorded() []int {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]int, len(v.calls))
	copy(out, v.calls)
	return out
}

func (v *volumeLog) reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls = nil
}

func TestNextFadesBetweenSources(t *testing.T) {
	s1, s2 := songN("1", "A"), songN("2", "B")
	r := &scriptedResolver{results: map[string]*music.ResolvedURL{
		s1.Key(): resolved("http://m.netease.test/a.mp3"),
		s2.Key(): resolved("http://m.netease.test/b.mp3"),
	}}
	sink := &volumeLog{StateSink: NewStateSink()}
	c := NewControllerWithSleep(playbackConfig(), r, sink, nil, func(time.Duration) {})
	c.Enqueue(s1, s2)
	if err := c.Play(context.Background()); err != nil {
		t.Fatalf("Play: %v", err)
	}

	sink.reset()
	if err := c.Next(context.Background()); err != nil {
		t.Fatalf("Next: %v", err)
	}

	calls := sink.recorded()
	if len(calls) == 0 {
		t.Fatal("manual skip changed sources without any volume steps")
	}
	zero := -1
	for i, v := range calls {
		if v == 0 {
			zero = i
			break
		}
	}
	if zero < 0 {
		t.Fatalf("volume schedule %v never reached silence before the source change", calls)
	}
	for i := 1; i <= zero; i++ {
		if calls[i] > calls[i-1] {
			t.Fatalf("volume schedule %v rose during the fade-out", calls)
		}
	}
	if last := calls[len(calls)-1]; last != DefaultVolume {
		t.Fatalf("volume schedule %v ended at %d, want the listening level restored", calls, last)
	}
	for i := zero; i < len(calls)-1; i++ {
		if calls[i+1] < calls[i] {
			t.Fatalf("volume schedule %v fell during the fade-in", calls)
		}
	}
	if got := sink.Snapshot().URL; got != "http://m.netease.test/b.mp3" {
		t.Fatalf("sink plays %q after the skip, want the next track", got)
	}
}

func TestSwapToFullVersionResumesPosition(t *testing.T) {
	s1 := songN("1", "A")
	s1.DurationMS = 28000
	prev := resolved("http://m.netease.test/trial.mp3")
	prev.Preview = true
	prev.SizeBytes = 400 << 10
	r := &scriptedResolver{results: map[string]*music.ResolvedURL{s1.Key(): prev}}
	c, sink := newTestController(r)
	c.Enqueue(s1)
	if err := c.Play(context.Background()); err != nil {
		t.Fatalf("Play: %v", err)
	}

	sink.UpdatePosition(12.5, 28)
	c.SwapToFullVersion(s1, resolved("http://m.kuwo.test/full.mp3"))

	snap := sink.Snapshot()
	if snap.URL != "http://m.kuwo.test/full.mp3" {
		t.Fatalf("sink plays %q, want the full version", snap.URL)
	}
	if snap.Position != 12.5 {
		t.Fatalf("resumed at %v, want the interrupted position 12.5", snap.Position)
	}
	if !snap.Playing {
		t.Fatal("playback should continue after the swap")
	}
	if snap.Volume != DefaultVolume {
		t.Fatalf("volume %d after fade-in, want restored to %d", snap.Volume, DefaultVolume)
	}
}

func TestSwapSeekCeiling(t *testing.T) {
	s1 := songN("1", "A")
	prev := resolved("http://m.netease.test/trial.mp3")
	prev.Preview = true
	r := &scriptedResolver{results: map[string]*music.ResolvedURL{s1.Key(): prev}}
	c, sink := newTestController(r)
	c.Enqueue(s1)
	if err := c.Play(context.Background()); err != nil {
		t.Fatalf("Play: %v", err)
	}

	sink.UpdatePosition(80, 90)
	c.SwapToFullVersion(s1, resolved("http://m.kuwo.test/full.mp3"))

	if got := sink.Snapshot().Position; got != 25 {
		t.Fatalf("resumed at %v, want capped at the seek ceiling 25", got)
	}
}

func TestSwapIgnoredForDifferentSong(t *testing.T) {
	s1 := songN("1", "A")
	r := &scriptedResolver{results: map[string]*music.ResolvedURL{
		s1.Key(): resolved("http://m.netease.test/a.mp3"),
	}}
	c, sink := newTestController(r)
	c.Enqueue(s1)
	if err := c.Play(context.Background()); err != nil {
		t.Fatalf("Play: %v", err)
	}

	other := songN("99", "B")
	c.SwapToFullVersion(other, resolved("http://m.kuwo.test/wrong.mp3"))

	if got := sink.Snapshot().URL; got != "http://m.netease.test/a.mp3" {
		t.Fatalf("sink plays %q; a swap for a non-current song must be dropped", got)
	}
}

func TestSwapIgnoredWhenCurrentIsFull(t *testing.T) {
	s1 := songN("1", "A")
	r := &scriptedResolver{results: map[string]*music.ResolvedURL{
		s1.Key(): resolved("http://m.netease.test/a.mp3"),
	}}
	c, sink := newTestController(r)
	c.Enqueue(s1)
	if err := c.Play(context.Background()); err != nil {
		t.Fatalf("Play: %v", err)
	}

	c.SwapToFullVersion(s1, resolved("http://m.kuwo.test/dup.mp3"))
	if got := sink.Snapshot().URL; got != "http://m.netease.test/a.mp3" {
		t.Fatalf("sink plays %q; a full-length track must never be swapped", got)
	}
}

func TestAutoAdvanceAfterEnded(t *testing.T) {
	s1, s2 := songN("1", "A"), songN("2", "B")
	r := &scriptedResolver{results: map[string]*music.ResolvedURL{
		s1.Key(): resolved("http://m.netease.test/a.mp3"),
		s2.Key(): resolved("http://m.netease.test/b.mp3"),
	}}
	c, sink := newTestController(r)
	c.Enqueue(s1, s2)
	if err := c.Play(context.Background()); err != nil {
		t.Fatalf("Play: %v", err)
	}

	c.HandleEnded(context.Background())
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if sink.Snapshot().URL == "http://m.netease.test/b.mp3" {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("sink plays %q, auto-advance never reached the next track", sink.Snapshot().URL)
}

func TestAutoAdvanceCanceledByUserAction(t *testing.T) {
	s1, s2 := songN("1", "A"), songN("2", "B")
	r := &scriptedResolver{results: map[string]*music.ResolvedURL{
		s1.Key(): resolved("http://m.netease.test/a.mp3"),
		s2.Key(): resolved("http://m.netease.test/b.mp3"),
	}}
	release := make(chan struct{})
	sink := NewStateSink()
	cfg := playbackConfig()
	cfg.FadeSteps = 0 // keep the blocking sleep exclusive to the advance delay
	c := NewControllerWithSleep(cfg, r, sink, nil, func(d time.Duration) { <-release })
	c.Enqueue(s1, s2)
	if err := c.Play(context.Background()); err != nil {
		t.Fatalf("Play: %v", err)
	}

	c.HandleEnded(context.Background()) // parked in the advance delay
	c.Pause()                           // user acts first
	close(release)

	time.Sleep(50 * time.Millisecond)
	if got := sink.Snapshot().URL; got != "http://m.netease.test/a.mp3" {
		t.Fatalf("sink plays %q; auto-advance ran despite a newer user action", got)
	}
}

func TestHandleLoadedMetadataFlagsLatePreview(t *testing.T) {
	s1 := songN("1", "A") // metadata says 210s
	r := &scriptedResolver{results: map[string]*music.ResolvedURL{
		s1.Key(): resolved("http://m.netease.test/a.mp3"),
	}}
	c, _ := newTestController(r)
	c.SetDetector(preview.NewDetector(playbackConfig()))

	flagged := make(chan music.Song, 1)
	c.OnPreviewDetected = func(song music.Song, res *music.ResolvedURL) { flagged <- song }

	c.Enqueue(s1)
	if err := c.Play(context.Background()); err != nil {
		t.Fatalf("Play: %v", err)
	}

	c.HandleLoadedMetadata(30) // element reports thirty seconds
	select {
	case got := <-flagged:
		if got.Key() != s1.Key() {
			t.Fatalf("flagged %q, want the current song", got.Display())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("late preview detection never fired")
	}

	_, res, _ := c.NowPlaying()
	if !res.Preview {
		t.Fatal("current resolution should be marked as a preview after the late check")
	}
}

func TestHandleLoadedMetadataAcceptsFullTrack(t *testing.T) {
	s1 := songN("1", "A")
	r := &scriptedResolver{results: map[string]*music.ResolvedURL{
		s1.Key(): resolved("http://m.netease.test/a.mp3"),
	}}
	c, _ := newTestController(r)
	c.SetDetector(preview.NewDetector(playbackConfig()))
	c.OnPreviewDetected = func(music.Song, *music.ResolvedURL) {
		t.Error("full-length duration must not trigger the matcher")
	}

	c.Enqueue(s1)
	if err := c.Play(context.Background()); err != nil {
		t.Fatalf("Play: %v", err)
	}
	c.HandleLoadedMetadata(210)
	time.Sleep(20 * time.Millisecond)
}
