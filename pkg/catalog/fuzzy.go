package catalog

import (
	"fmt"
	"sort"

	"github.com/pmezard/go-difflib/difflib"
)

const (
	// DefaultMaxMatches is the number of near matches returned by Classify.
	DefaultMaxMatches = 3
	// DefaultCutoff is the minimum similarity ratio for a near match.
	DefaultCutoff = 0.4
)

type scoredMatch struct {
	value string
	score float64
}

// CloseMatches returns up to n entries of possibilities whose similarity ratio
// with word is at least cutoff, best first. Equal scores are ordered by
// descending string value.
func CloseMatches(word string, possibilities []string, n int, cutoff float64) ([]string, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: n must be > 0, got %d", ErrInvalidArgument, n)
	}
	if cutoff < 0 || cutoff > 1 {
		return nil, fmt.Errorf("%w: cutoff must be in [0.0, 1.0], got %v", ErrInvalidArgument, cutoff)
	}

	m := difflib.NewMatcher(nil, nil)
	m.SetSeq2(runeStrings(word))

	var scored []scoredMatch
	for _, p := range possibilities {
		m.SetSeq1(runeStrings(p))
		if m.RealQuickRatio() < cutoff || m.QuickRatio() < cutoff {
			continue
		}
		if r := m.Ratio(); r >= cutoff {
			scored = append(scored, scoredMatch{value: p, score: r})
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return scored[i].value > scored[j].value
	})
	if len(scored) > n {
		scored = scored[:n]
	}

	out := make([]string, len(scored))
	for i, s := range scored {
		out[i] = s.value
	}
	return out, nil
}

// Similarity returns the matching ratio 2*M/T of a and b, in [0,1].
func Similarity(a, b string) float64 {
	return difflib.NewMatcher(runeStrings(a), runeStrings(b)).Ratio()
}

// runeStrings splits s into one element per rune so the matcher compares
// characters rather than lines.
func runeStrings(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}
