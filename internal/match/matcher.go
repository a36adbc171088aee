package match

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"horse.fit/stash/internal/catalog"
)

const (
	// DefaultThreshold is the score at or above which the top candidate
	// is treated as an actionable duplicate.
	DefaultThreshold = 0.8

	scoreFingerprint  = 1.0
	scorePlatformID   = 1.0
	scoreURL          = 0.9
	scoreTitleCreator = 0.8

	ReasonFingerprint  = "exact fingerprint match"
	ReasonPlatformID   = "same platform ID"
	ReasonURL          = "same URL"
	ReasonTitleCreator = "same title and creator"
)

// Lookup is the read-only view over existing content items the matcher
// needs. The store adapter implements it; tests use an in-memory fake.
type Lookup interface {
	ByFingerprint(ctx context.Context, fingerprint string) ([]catalog.ContentItem, error)
	ByPlatformID(ctx context.Context, platform, externalID string) (*catalog.ContentItem, error)
	ByTitleCreator(ctx context.Context, normalizedTitle, creatorName string) ([]catalog.ContentItem, error)
	ByAnyURL(ctx context.Context, urls []string) ([]catalog.ContentItem, error)
	ListByPlatform(ctx context.Context, platform string, limit int) ([]catalog.ContentItem, error)
}

// Matcher scores a new content item against existing records.
type Matcher struct {
	lookup Lookup
	scorer CrossPlatformScorer
	logger zerolog.Logger
}

func NewMatcher(lookup Lookup, scorer CrossPlatformScorer, logger zerolog.Logger) *Matcher {
	if scorer == nil {
		scorer = EpisodeAwareScorer{}
	}
	return &Matcher{lookup: lookup, scorer: scorer, logger: logger}
}

// FindDuplicates evaluates every signal independently, takes the maximum
// score any single rule achieved per target, accumulates all triggered
// reasons, and returns candidates sorted by descending score.
func (m *Matcher) FindDuplicates(ctx context.Context, item *catalog.ContentItem) ([]catalog.MatchCandidate, error) {
	if m == nil || m.lookup == nil {
		return nil, fmt.Errorf("matcher is not initialized")
	}
	if item == nil {
		return nil, fmt.Errorf("item is required")
	}

	acc := newCandidateAccumulator()

	if item.ContentFingerprint != "" {
		hits, err := m.lookup.ByFingerprint(ctx, item.ContentFingerprint)
		if err != nil {
			return nil, fmt.Errorf("lookup by fingerprint: %w", err)
		}
		for _, hit := range hits {
			acc.add(hit.ID, scoreFingerprint, ReasonFingerprint)
		}
	}

	if item.Platform != "" && item.ExternalID != "" {
		hit, err := m.lookup.ByPlatformID(ctx, item.Platform, item.ExternalID)
		if err != nil {
			return nil, fmt.Errorf("lookup by platform id: %w", err)
		}
		if hit != nil {
			acc.add(hit.ID, scorePlatformID, ReasonPlatformID)
		}
	}

	if urls := candidateURLs(item); len(urls) > 0 {
		hits, err := m.lookup.ByAnyURL(ctx, urls)
		if err != nil {
			return nil, fmt.Errorf("lookup by url: %w", err)
		}
		for _, hit := range hits {
			acc.add(hit.ID, scoreURL, ReasonURL)
		}
	}

	if item.NormalizedTitle != "" && item.CreatorName != "" {
		hits, err := m.lookup.ByTitleCreator(ctx, item.NormalizedTitle, item.CreatorName)
		if err != nil {
			return nil, fmt.Errorf("lookup by title and creator: %w", err)
		}
		for _, hit := range hits {
			acc.add(hit.ID, scoreTitleCreator, ReasonTitleCreator)
		}
	}

	return acc.sorted(), nil
}

// candidateURLs collects the raw and canonical forms of the item's URL,
// deduplicated, so equality is checked across both shapes.
func candidateURLs(item *catalog.ContentItem) []string {
	seen := make(map[string]struct{}, 2)
	urls := make([]string, 0, 2)
	for _, u := range []string{item.URL, item.CanonicalURL} {
		trimmed := strings.TrimSpace(u)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		urls = append(urls, trimmed)
	}
	return urls
}

// candidateAccumulator keeps the max score and every triggered reason
// per target id. A stored record with the incoming item's own id is a
// legitimate candidate: a re-save derives the same id, and the merge
// path handles that case as a no-op enrichment.
type candidateAccumulator struct {
	scores  map[string]float64
	reasons map[string][]string
	order   []string
}

func newCandidateAccumulator() *candidateAccumulator {
	return &candidateAccumulator{
		scores:  make(map[string]float64),
		reasons: make(map[string][]string),
	}
}

func (a *candidateAccumulator) add(id string, score float64, reason string) {
	if id == "" {
		return
	}
	if _, seen := a.scores[id]; !seen {
		a.order = append(a.order, id)
	}
	if score > a.scores[id] {
		a.scores[id] = score
	}
	for _, existing := range a.reasons[id] {
		if existing == reason {
			return
		}
	}
	a.reasons[id] = append(a.reasons[id], reason)
}

func (a *candidateAccumulator) sorted() []catalog.MatchCandidate {
	candidates := make([]catalog.MatchCandidate, 0, len(a.order))
	for _, id := range a.order {
		candidates = append(candidates, catalog.MatchCandidate{
			ID:      id,
			Score:   a.scores[id],
			Reasons: a.reasons[id],
		})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	return candidates
}
