package creators

import (
	"strings"

	"github.com/xrash/smetrics"

	"horse.fit/stash/internal/fingerprint"
)

const (
	containmentFloor = 0.7
	levenshteinFloor = 0.85
)

// NameScorer computes a similarity in [0,1] between two creator names.
// A score of 0 means the names are not comparable under the metric; the
// resolver applies its per-rule thresholds on top of this.
type NameScorer interface {
	Similarity(a, b string) float64
}

// LexicalScorer is the default scorer: exact match, substring
// containment, then normalized Levenshtein distance, in that order.
type LexicalScorer struct{}

func (LexicalScorer) Similarity(a, b string) float64 {
	left := fingerprint.NormalizeTitle(a)
	right := fingerprint.NormalizeTitle(b)
	if left == "" || right == "" {
		return 0
	}
	if left == right {
		return 1
	}

	shorter, longer := left, right
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}
	if strings.Contains(longer, shorter) {
		score := float64(len(shorter)) / float64(len(longer))
		if score > containmentFloor {
			return score
		}
	}

	distance := smetrics.WagnerFischer(left, right, 1, 1, 1)
	score := 1 - float64(distance)/float64(len(longer))
	if score > levenshteinFloor {
		return score
	}
	return 0
}
