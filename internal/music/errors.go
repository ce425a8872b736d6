package music

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind buckets a failure for callers; individual provider errors are
// swallowed inside the resolution chain and only exhaustion surfaces.
type Kind string

const (
	KindNetwork    Kind = "network"    // transport or timeout failure
	KindUpstream   Kind = "upstream"   // provider answered with garbage or an error status
	KindUnresolved Kind = "unresolved" // every provider exhausted, nothing usable
	KindPlayback   Kind = "playback"   // the audio sink rejected the asset
)

type Error struct {
	Kind     Kind
	Op       string // "search", "resolve-url", "lyrics", "cover", "playlist"
	Provider string // empty for whole-chain failures
	Err      error
}

func (e *Error) Error() string {
	switch {
	case e.Provider != "" && e.Err != nil:
		return fmt.Sprintf("%s %s: %s: %v", e.Op, e.Provider, e.Kind, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

var errExhausted = errors.New("all providers exhausted")

// Unresolved is the typed outcome for a chain that ran out of
// providers; it is distinguishable from a network failure.
func Unresolved(op string) *Error {
	return &Error{Kind: KindUnresolved, Op: op, Err: errExhausted}
}

// Classify wraps a single provider failure as NETWORK or UPSTREAM.
func Classify(op, provider string, err error) *Error {
	kind := KindUpstream
	var ne net.Error
	if errors.As(err, &ne) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		kind = KindNetwork
	}
	return &Error{Kind: kind, Op: op, Provider: provider, Err: err}
}

// KindOf extracts the error kind, defaulting to NETWORK for plain
// transport errors that were never wrapped.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindNetwork
}

// UserMessage renders a human-readable notice distinct from the
// internal kind; the UI shows this verbatim.
func UserMessage(err error) string {
	switch KindOf(err) {
	case KindUnresolved:
		return "No playable version of this track could be found."
	case KindUpstream:
		return "A music source returned an unexpected response. Please try again."
	case KindPlayback:
		return "Playback failed, skipping to the next track."
	default:
		return "Network trouble while reaching the music sources. Check your connection."
	}
}
