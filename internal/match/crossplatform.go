package match

import (
	"context"
	"fmt"
	"math"
	"strings"

	"horse.fit/stash/internal/catalog"
)

const (
	// CrossPlatformThreshold is the stricter floor a cross-platform
	// candidate must reach before it is linked at all.
	CrossPlatformThreshold = 0.75

	// episodeGUIDBonus applies when both sides carry the same
	// externally derived episode identifier.
	episodeGUIDBonus = 0.15

	crossPlatformCandidateLimit = 500

	weightTitle    = 0.45
	weightDuration = 0.20
	weightDate     = 0.15
	weightEpisode  = 0.20

	// episodeMismatchCeiling caps confidence when both sides carry
	// episode numbers that disagree; conflicting numbering outweighs
	// every soft signal.
	episodeMismatchCeiling = 0.6
)

// crossPlatformPairs maps each platform to the counterpart it is
// routinely mirrored on. Only these pairs get the secondary pass.
var crossPlatformPairs = map[string]string{
	catalog.PlatformYouTube: catalog.PlatformSpotify,
	catalog.PlatformSpotify: catalog.PlatformYouTube,
}

// CrossPlatformScorer computes the confidence that two items on
// different platforms are the same content. Pluggable so the blend can
// be replaced without touching candidate selection.
type CrossPlatformScorer interface {
	Confidence(item, candidate *catalog.ContentItem) float64
}

// CrossPlatformMatchResult is the single best counterpart found on the
// paired platform, if any reached the threshold.
type CrossPlatformMatchResult struct {
	Item       catalog.ContentItem
	Confidence float64
}

// FindCrossPlatform runs the secondary pass: when the item's platform is
// one of a known pair, compare against existing items on the other
// platform only and return the single highest-confidence candidate at or
// above the cross-platform threshold.
func (m *Matcher) FindCrossPlatform(ctx context.Context, item *catalog.ContentItem) (*CrossPlatformMatchResult, error) {
	if m == nil || m.lookup == nil {
		return nil, fmt.Errorf("matcher is not initialized")
	}
	if item == nil {
		return nil, fmt.Errorf("item is required")
	}

	counterpart, ok := crossPlatformPairs[item.Platform]
	if !ok {
		return nil, nil
	}

	candidates, err := m.lookup.ListByPlatform(ctx, counterpart, crossPlatformCandidateLimit)
	if err != nil {
		return nil, fmt.Errorf("list %s candidates: %w", counterpart, err)
	}

	var best *CrossPlatformMatchResult
	for i := range candidates {
		candidate := &candidates[i]
		confidence := m.scorer.Confidence(item, candidate)
		if confidence < CrossPlatformThreshold {
			continue
		}
		if best == nil || confidence > best.Confidence {
			best = &CrossPlatformMatchResult{Item: *candidate, Confidence: confidence}
		}
	}
	return best, nil
}

// EpisodeAwareScorer blends normalized-title similarity, duration
// proximity, publish-date proximity, and episode-number agreement.
type EpisodeAwareScorer struct{}

func (EpisodeAwareScorer) Confidence(item, candidate *catalog.ContentItem) float64 {
	title := titleSimilarity(item.NormalizedTitle, candidate.NormalizedTitle)
	duration := durationProximity(item.DurationSeconds, candidate.DurationSeconds)
	date := publishDateProximity(item, candidate)

	episode := 0.5
	episodeConflict := false
	if item.EpisodeNumber != nil && candidate.EpisodeNumber != nil {
		if *item.EpisodeNumber == *candidate.EpisodeNumber {
			episode = 1
		} else {
			episode = 0
			episodeConflict = true
		}
	}

	confidence := weightTitle*title +
		weightDuration*duration +
		weightDate*date +
		weightEpisode*episode

	if episodeConflict && confidence > episodeMismatchCeiling {
		confidence = episodeMismatchCeiling
	}

	if item.EpisodeGUID != "" && candidate.EpisodeGUID != "" &&
		strings.EqualFold(item.EpisodeGUID, candidate.EpisodeGUID) {
		confidence += episodeGUIDBonus
	}

	return clamp01(confidence)
}

func titleSimilarity(left, right string) float64 {
	if left == "" || right == "" {
		return 0
	}
	if left == right {
		return 1
	}
	return trigramJaccard(left, right)
}

func trigramJaccard(left, right string) float64 {
	leftSet := trigramSet(left)
	rightSet := trigramSet(right)
	if len(leftSet) == 0 || len(rightSet) == 0 {
		return 0
	}

	intersection := 0
	for gram := range leftSet {
		if _, ok := rightSet[gram]; ok {
			intersection++
		}
	}
	if intersection == 0 {
		return 0
	}

	union := len(leftSet) + len(rightSet) - intersection
	if union <= 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func trigramSet(text string) map[string]struct{} {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	if len(runes) < 3 {
		return map[string]struct{}{string(runes): {}}
	}

	set := make(map[string]struct{}, len(runes)-2)
	for i := 0; i <= len(runes)-3; i++ {
		set[string(runes[i:i+3])] = struct{}{}
	}
	return set
}

func durationProximity(left, right int) float64 {
	if left <= 0 || right <= 0 {
		return 0.5
	}
	diff := math.Abs(float64(left - right))
	switch {
	case diff <= 5:
		return 1
	case diff <= 30:
		return 0.8
	case diff <= 120:
		return 0.5
	default:
		return 0
	}
}

func publishDateProximity(item, candidate *catalog.ContentItem) float64 {
	if item.PublishedAt == nil || candidate.PublishedAt == nil ||
		item.PublishedAt.IsZero() || candidate.PublishedAt.IsZero() {
		return 0.5
	}
	diff := math.Abs(item.PublishedAt.UTC().Sub(candidate.PublishedAt.UTC()).Hours())
	switch {
	case diff <= 48:
		return 1
	case diff <= 7*24:
		return 0.6
	default:
		return 0
	}
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
