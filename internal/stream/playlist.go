package stream

import (
	"context"
	"fmt"
	"strings"

	ytdlp "github.com/lrstanley/go-ytdlp"

	"github.com/meloplay/meloplay/internal/config"
)

// YtdlpFlat runs yt-dlp in flat-playlist mode; url may be a playlist
// link or a ytsearchN: query.
func YtdlpFlat(ctx context.Context, cfg *config.Config, url string) ([]YTDLPEntry, error) {
	installOnce.Do(func() {
		ytdlp.MustInstall(ctx, nil)
	})

	cmd := ytdlp.New().
		FlatPlaylist().
		DumpJSON()
	cmd = applyYouTubeArgs(cfg, cmd, url)

	ytdlpDebugf("flat fetch: %s", url)
	res, err := cmd.Run(ctx, url)
	if err != nil {
		if strings.Contains(err.Error(), "Sign in to confirm") {
			return nil, fmt.Errorf("yt-dlp fetch failed (PO token may be required): %w", err)
		}
		return nil, fmt.Errorf("yt-dlp fetch failed for %s: %w", url, err)
	}

	infos, err := res.GetExtractedInfo()
	if err != nil {
		return nil, fmt.Errorf("parse yt-dlp flat json for %s: %w", url, err)
	}

	var out []YTDLPEntry
	for _, info := range infos {
		if info == nil {
			continue
		}
		if len(info.Entries) == 0 {
			out = append(out, YTDLPEntry{
				Id:         info.ID,
				Title:      s(info.Title),
				Uploader:   s(info.Uploader),
				Duration:   f(info.Duration),
				IsLive:     b(info.IsLive),
				WebpageUrl: s(info.WebpageURL),
				Thumbnails: mapThumbs(info.Thumbnails),
			})
			continue
		}
		for _, e := range info.Entries {
			if e == nil || e.ID == "" {
				continue
			}
			out = append(out, YTDLPEntry{
				Id:         e.ID,
				Title:      s(e.Title),
				Uploader:   s(e.Uploader),
				Duration:   f(e.Duration),
				IsLive:     b(e.IsLive),
				WebpageUrl: s(e.WebpageURL),
				Thumbnails: mapThumbs(e.Thumbnails),
			})
		}
	}
	ytdlpDebugf("flat fetch parsed: %d entries", len(out))
	return out, nil
}

// YtdlpSearch runs a ytsearchN: query and returns the flat entries.
func YtdlpSearch(ctx context.Context, cfg *config.Config, query string, limit int) ([]YTDLPEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	return YtdlpFlat(ctx, cfg, fmt.Sprintf("ytsearch%d:%s", limit, query))
}
