package config

import "time"

type Config struct {
	ListenAddr string
	DataDir    string
	CacheDir   string

	CacheLimitBytes int64

	SpotifyClientID     string
	SpotifyClientSecret string

	YouTubePOToken     string
	YouTubeCookiesPath string
	KuwoCookie         string

	// Provider priority order for the resolution chain.
	ProviderOrder []string
	// Providers guarded by a circuit breaker (the rate-limit-prone ones).
	BreakerProviders []string
	BreakerThreshold int
	BreakerCooldown  time.Duration

	// Per-operation attempt budgets.
	SearchTimeout   time.Duration
	URLTimeout      time.Duration
	LyricsTimeout   time.Duration
	CoverTimeout    time.Duration
	PlaylistTimeout time.Duration

	// Preview detector calibration. These were tuned empirically and
	// are deliberately configuration, not constants.
	PreviewMarkers      []string
	PreviewMinSizeBytes int64
	PreviewBandMinMS    int
	PreviewBandMaxMS    int
	PreviewTypicalMS    []int
	PreviewToleranceMS  int

	// Cross-source matching.
	SimilarityFloor    float64
	ParallelSearch     bool
	MatchMaxProviders  int
	MatchTopCandidates int
	CrossSourceWait    time.Duration

	// Playback continuity.
	FadeSteps       int
	FadeDuration    time.Duration
	SwapSeekCeiling int // seconds
	AdvanceDelay    time.Duration

	SearchLimit   int
	PlaylistLimit int
}
