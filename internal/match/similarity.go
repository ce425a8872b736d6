// Package match recovers full-length versions of preview-flagged songs
// by searching semantically equivalent tracks on alternate providers.
package match

import (
	"strings"
	"unicode"
)

const (
	containmentBase = 0.9
	shortPenalty    = 0.5
	// Below this many runes a Jaccard score over character sets says
	// very little, so it gets penalized.
	shortLen = 3
)

// normalizeTitle lowercases, drops bracketed qualifiers like "(Live)"
// or "[Remastered]", and strips whitespace and punctuation.
func normalizeTitle(s string) string {
	var b strings.Builder
	depth := 0
	for _, r := range strings.ToLower(s) {
		switch r {
		case '(', '[', '{', '（', '【':
			depth++
			continue
		case ')', ']', '}', '）', '】':
			if depth > 0 {
				depth--
			}
			continue
		}
		if depth > 0 {
			continue
		}
		if unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func runeSet(s string) map[rune]struct{} {
	set := make(map[rune]struct{}, len(s))
	for _, r := range s {
		set[r] = struct{}{}
	}
	return set
}

func jaccard(a, b string) float64 {
	sa, sb := runeSet(a), runeSet(b)
	if len(sa) == 0 || len(sb) == 0 {
		return 0
	}
	inter := 0
	for r := range sa {
		if _, ok := sb[r]; ok {
			inter++
		}
	}
	union := len(sa) + len(sb) - inter
	return float64(inter) / float64(union)
}

// Similarity scores two titles in [0,1]. Exact normalized match is 1.0;
// containment in either direction scores high, scaled by the length
// ratio of the shorter to the longer string; everything else falls back
// to Jaccard over character sets with a short-string penalty.
func Similarity(a, b string) float64 {
	na, nb := normalizeTitle(a), normalizeTitle(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1.0
	}
	la, lb := len([]rune(na)), len([]rune(nb))
	short, long := la, lb
	if short > long {
		short, long = long, short
	}
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		return containmentBase * float64(short) / float64(long)
	}
	score := jaccard(na, nb)
	if short < shortLen {
		score *= shortPenalty
	}
	return score
}

// ArtistBonus rewards candidates whose artist list matches the target
// artist: a strong title-style match earns the full bonus, a partial
// containment half of it.
func ArtistBonus(candidateArtists []string, targetArtist string) float64 {
	nt := normalizeTitle(targetArtist)
	if nt == "" {
		return 0
	}
	best := 0.0
	for _, a := range candidateArtists {
		na := normalizeTitle(a)
		if na == "" {
			continue
		}
		switch {
		case na == nt:
			return 0.2
		case strings.Contains(na, nt) || strings.Contains(nt, na):
			if best < 0.1 {
				best = 0.1
			}
		}
	}
	return best
}
