package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

func getenv(key, def string) string {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	return val
}

func mustAtoi64(s string) int64 {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func atoi(key, def string) int {
	i, _ := strconv.Atoi(getenv(key, def))
	return i
}

func atof(key, def string) float64 {
	f, _ := strconv.ParseFloat(getenv(key, def), 64)
	return f
}

func seconds(key, def string) time.Duration {
	return time.Duration(atoi(key, def)) * time.Second
}

func millis(key, def string) time.Duration {
	return time.Duration(atoi(key, def)) * time.Millisecond
}

func csv(key, def string) []string {
	var out []string
	for _, p := range strings.Split(getenv(key, def), ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func csvInts(key, def string) []int {
	var out []int
	for _, p := range csv(key, def) {
		if v, err := strconv.Atoi(p); err == nil {
			out = append(out, v)
		}
	}
	return out
}

func LoadConfig() (*Config, error) {
	dataDir := getenv("DATA_DIR", "./data")
	cacheDir := filepath.Join(dataDir, "cache")

	// CACHE_LIMIT supports a plain byte count; default 512MB.
	cacheLimit := getenv("CACHE_LIMIT", "536870912")

	cfg := &Config{
		ListenAddr: getenv("LISTEN_ADDR", ":8090"),
		DataDir:    dataDir,
		CacheDir:   cacheDir,

		CacheLimitBytes: mustAtoi64(cacheLimit),

		SpotifyClientID:     os.Getenv("SPOTIFY_CLIENT_ID"),
		SpotifyClientSecret: os.Getenv("SPOTIFY_CLIENT_SECRET"),
		YouTubePOToken:      os.Getenv("YOUTUBE_PO_TOKEN"),
		YouTubeCookiesPath:  os.Getenv("YOUTUBE_COOKIES_PATH"),
		KuwoCookie:          os.Getenv("KUWO_COOKIE"),

		ProviderOrder:    csv("PROVIDER_ORDER", "netease,kuwo,migu,youtube,spotify"),
		BreakerProviders: csv("BREAKER_PROVIDERS", "netease"),
		BreakerThreshold: atoi("BREAKER_THRESHOLD", "3"),
		BreakerCooldown:  seconds("BREAKER_COOLDOWN", "90"),

		SearchTimeout:   seconds("SEARCH_TIMEOUT", "8"),
		URLTimeout:      seconds("URL_TIMEOUT", "10"),
		LyricsTimeout:   seconds("LYRICS_TIMEOUT", "8"),
		CoverTimeout:    seconds("COVER_TIMEOUT", "8"),
		PlaylistTimeout: seconds("PLAYLIST_TIMEOUT", "20"),

		PreviewMarkers:      csv("PREVIEW_MARKERS", "trial,tryplay,preview,clip,audition,listen_part"),
		PreviewMinSizeBytes: mustAtoi64(getenv("PREVIEW_MIN_SIZE", "983040")), // ~60s at 128kbps
		PreviewBandMinMS:    atoi("PREVIEW_BAND_MIN_MS", "10000"),
		PreviewBandMaxMS:    atoi("PREVIEW_BAND_MAX_MS", "95000"),
		PreviewTypicalMS:    csvInts("PREVIEW_TYPICAL_MS", "30000,45000,60000,90000"),
		PreviewToleranceMS:  atoi("PREVIEW_TOLERANCE_MS", "2000"),

		SimilarityFloor:    atof("SIMILARITY_FLOOR", "0.55"),
		ParallelSearch:     getenv("PARALLEL_SEARCH", "true") == "true",
		MatchMaxProviders:  atoi("MATCH_MAX_PROVIDERS", "3"),
		MatchTopCandidates: atoi("MATCH_TOP_CANDIDATES", "3"),
		CrossSourceWait:    millis("CROSS_SOURCE_WAIT_MS", "4000"),

		FadeSteps:       atoi("FADE_STEPS", "10"),
		FadeDuration:    millis("FADE_DURATION_MS", "400"),
		SwapSeekCeiling: atoi("SWAP_SEEK_CEILING", "25"),
		AdvanceDelay:    millis("ADVANCE_DELAY_MS", "1500"),

		SearchLimit:   atoi("SEARCH_LIMIT", "20"),
		PlaylistLimit: atoi("PLAYLIST_LIMIT", "100"),
	}

	if len(cfg.ProviderOrder) == 0 {
		return nil, ErrConfig("PROVIDER_ORDER must name at least one provider")
	}
	if cfg.BreakerThreshold < 1 {
		return nil, ErrConfig("BREAKER_THRESHOLD must be at least 1")
	}
	_ = os.MkdirAll(cfg.DataDir, 0o755)
	_ = os.MkdirAll(cfg.CacheDir, 0o755)
	_ = os.MkdirAll(filepath.Join(cfg.CacheDir, "tmp"), 0o755)
	return cfg, nil
}

type ErrConfig string

func (e ErrConfig) Error() string { return string(e) }
