// Package provider defines the upstream music source abstraction and
// the static ordered registry the resolution chain iterates.
package provider

import (
	"context"
	"errors"
	"log/slog"

	"github.com/meloplay/meloplay/internal/music"
)

// ErrUnsupported marks an operation a provider cannot serve (missing
// capability, or a song belonging to a different source). The chain
// skips it without counting a failure.
var ErrUnsupported = errors.New("operation not supported by provider")

// ErrNotFound means the provider answered properly but has nothing
// usable. It counts as that provider's failure for the operation.
var ErrNotFound = errors.New("no result from provider")

// Descriptor is static read-only configuration for one provider.
type Descriptor struct {
	Name    string
	BaseURL string
	// Kind tags the response-shape family this provider parses.
	Kind string

	SupportsSearch   bool
	SupportsURL      bool
	SupportsLyrics   bool
	SupportsCover    bool
	SupportsPlaylist bool

	// AllowHosts are the extra CDN hosts this provider's assets live
	// on; the media proxy allowlist is built from these.
	AllowHosts []string
}

type Provider interface {
	Describe() Descriptor
	Search(ctx context.Context, keyword string, limit int) ([]music.Song, error)
	ResolveURL(ctx context.Context, song music.Song, quality music.Quality) (*music.ResolvedURL, error)
	Lyrics(ctx context.Context, song music.Song) (*music.Lyrics, error)
	CoverURL(ctx context.Context, song music.Song) (string, error)
	ParsePlaylist(ctx context.Context, link string) ([]music.Song, error)
}

// Registry is the fixed priority-ordered provider list. It is built
// once at startup and read-only afterwards.
type Registry struct {
	ordered []Provider
	byName  map[string]Provider
}

func NewRegistry(order []string, available ...Provider) *Registry {
	byName := make(map[string]Provider, len(available))
	for _, p := range available {
		byName[p.Describe().Name] = p
	}
	r := &Registry{byName: make(map[string]Provider)}
	for _, name := range order {
		p, ok := byName[name]
		if !ok {
			slog.Warn("provider in priority order is not configured", "provider", name)
			continue
		}
		r.ordered = append(r.ordered, p)
		r.byName[name] = p
	}
	return r
}

// Ordered returns providers in chain priority order.
func (r *Registry) Ordered() []Provider {
	out := make([]Provider, len(r.ordered))
	copy(out, r.ordered)
	return out
}

func (r *Registry) Get(name string) (Provider, bool) {
	p, ok := r.byName[name]
	return p, ok
}

func (r *Registry) Len() int { return len(r.ordered) }

// AllowHosts collects every host the media proxy may touch.
func (r *Registry) AllowHosts() []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(h string) {
		if h == "" {
			return
		}
		if _, ok := seen[h]; ok {
			return
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	for _, p := range r.ordered {
		d := p.Describe()
		for _, h := range d.AllowHosts {
			add(h)
		}
	}
	return out
}
