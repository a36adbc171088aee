package creators

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"horse.fit/stash/internal/canonical"
	"horse.fit/stash/internal/catalog"
	"horse.fit/stash/internal/globaltime"
)

const (
	sameDomainSimilarity    = 0.85
	relatedDomainSimilarity = 0.90
	noDomainSimilarity      = 0.95
)

// nameSuffixes are decorative words platforms append to channel names.
var nameSuffixes = []string{"official", "channel", "music", "podcast"}

// relatedDomainPairs maps domains that host the same service.
var relatedDomainPairs = map[string]string{
	"youtube.com": "youtu.be",
	"youtu.be":    "youtube.com",
	"twitter.com": "x.com",
	"x.com":       "twitter.com",
}

// RawCreator is an unresolved creator payload as supplied by a platform
// metadata fetcher.
type RawCreator struct {
	ID        string
	Platform  string
	Name      string
	Handle    string
	URL       string
	AvatarURL string
}

// Cache holds the canonical creators known during one resolution scope
// (a batch job or a request). It is an explicit collaborator, never a
// hidden singleton; callers decide its lifecycle.
type Cache struct {
	byID  map[string]*catalog.Creator
	order []string
}

func NewCache() *Cache {
	return &Cache{byID: make(map[string]*catalog.Creator)}
}

// Seed preloads a canonical creator, typically from the persisted store.
func (c *Cache) Seed(creator *catalog.Creator) {
	if c == nil || creator == nil || creator.ID == "" {
		return
	}
	if _, exists := c.byID[creator.ID]; !exists {
		c.order = append(c.order, creator.ID)
	}
	c.byID[creator.ID] = creator
}

func (c *Cache) Get(id string) (*catalog.Creator, bool) {
	if c == nil {
		return nil, false
	}
	creator, ok := c.byID[id]
	return creator, ok
}

// All returns cached creators in insertion order.
func (c *Cache) All() []*catalog.Creator {
	if c == nil {
		return nil
	}
	out := make([]*catalog.Creator, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id])
	}
	return out
}

func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return len(c.byID)
}

// Resolver maps raw creator payloads onto canonical creators, merging
// into an existing one when any matching rule fires.
type Resolver struct {
	cache  *Cache
	scorer NameScorer
	logger zerolog.Logger
}

func NewResolver(cache *Cache, scorer NameScorer, logger zerolog.Logger) *Resolver {
	if cache == nil {
		cache = NewCache()
	}
	if scorer == nil {
		scorer = LexicalScorer{}
	}
	return &Resolver{cache: cache, scorer: scorer, logger: logger}
}

// Resolve normalizes raw and either merges it into an existing canonical
// creator or caches it as a new one. The returned bool reports whether a
// merge happened.
func (r *Resolver) Resolve(raw RawCreator) (*catalog.Creator, bool, error) {
	normalized, err := normalizeRawCreator(raw)
	if err != nil {
		return nil, false, err
	}

	if existing, ok := r.cache.Get(normalized.ID); ok {
		r.mergeInto(existing, normalized)
		return existing, true, nil
	}

	if match := r.findBestMatch(normalized); match != nil {
		r.logger.Debug().
			Str("candidate_id", normalized.ID).
			Str("canonical_id", match.ID).
			Msg("creator resolved to existing canonical identity")
		r.mergeInto(match, normalized)
		return match, true, nil
	}

	now := globaltime.UTC()
	normalized.CreatedAt = now
	normalized.UpdatedAt = now
	r.cache.Seed(normalized)
	return normalized, false, nil
}

// findBestMatch applies the matching rules in priority order: handle
// equality wins outright; the domain-aware fuzzy rules compete on
// similarity and the single best-scoring candidate is taken (greedy, not
// a global assignment).
func (r *Resolver) findBestMatch(candidate *catalog.Creator) *catalog.Creator {
	candidateDomain := profileDomain(candidate.URL)

	var best *catalog.Creator
	var bestScore float64

	for _, existing := range r.cache.All() {
		if candidate.Handle != "" && existing.Handle != "" &&
			strings.EqualFold(candidate.Handle, existing.Handle) {
			return existing
		}

		threshold, applicable := ruleThreshold(candidateDomain, profileDomain(existing.URL))
		if !applicable {
			continue
		}
		score := r.scorer.Similarity(candidate.Name, existing.Name)
		if score <= threshold {
			continue
		}
		if best == nil || score > bestScore {
			best = existing
			bestScore = score
		}
	}
	return best
}

func ruleThreshold(left, right string) (float64, bool) {
	switch {
	case left != "" && left == right:
		return sameDomainSimilarity, true
	case left != "" && right != "" && relatedDomainPairs[left] == right:
		return relatedDomainSimilarity, true
	case left == "" && right == "":
		return noDomainSimilarity, true
	default:
		return 0, false
	}
}

// mergeInto folds the incoming creator into the existing canonical one.
// The existing id survives; scalar fields keep the longer non-empty
// value; platforms and external links are unioned.
func (r *Resolver) mergeInto(existing *catalog.Creator, incoming *catalog.Creator) {
	previousURL := existing.URL

	existing.Name = preferLonger(existing.Name, incoming.Name)
	existing.Handle = preferLonger(existing.Handle, incoming.Handle)
	existing.URL = preferLonger(existing.URL, incoming.URL)
	existing.AvatarURL = preferLonger(existing.AvatarURL, incoming.AvatarURL)

	for _, platform := range incoming.Platforms {
		if !existing.HasPlatform(platform) {
			existing.Platforms = append(existing.Platforms, platform)
		}
	}
	sort.Strings(existing.Platforms)

	links := incoming.ExternalLinks
	if previousURL != "" && existing.URL != previousURL {
		links = append(links, catalog.ExternalLink{URL: previousURL, Title: existing.Name})
	}
	if incoming.URL != "" && existing.URL != incoming.URL {
		links = append(links, catalog.ExternalLink{URL: incoming.URL, Title: incoming.Name})
	}
	for _, link := range links {
		existing.ExternalLinks = mergeExternalLink(existing.ExternalLinks, link)
	}

	existing.UpdatedAt = globaltime.UTC()
}

func mergeExternalLink(links []catalog.ExternalLink, link catalog.ExternalLink) []catalog.ExternalLink {
	if strings.TrimSpace(link.URL) == "" {
		return links
	}
	for i, existing := range links {
		if existing.URL == link.URL {
			links[i].Title = preferLonger(existing.Title, link.Title)
			return links
		}
	}
	return append(links, link)
}

func normalizeRawCreator(raw RawCreator) (*catalog.Creator, error) {
	name := strings.TrimSpace(raw.Name)
	handle := strings.TrimSpace(raw.Handle)

	if handle == "" && strings.HasPrefix(name, "@") {
		handle = strings.TrimPrefix(name, "@")
	}
	handle = strings.TrimPrefix(handle, "@")
	name = stripNameSuffixes(strings.TrimPrefix(name, "@"))

	if name == "" && handle == "" {
		return nil, fmt.Errorf("creator payload has no name or handle")
	}
	if name == "" {
		name = handle
	}

	profileURL := ""
	if trimmed := strings.TrimSpace(raw.URL); trimmed != "" {
		profileURL = canonical.Canonicalize(trimmed).Normalized
	}

	platform := strings.TrimSpace(strings.ToLower(raw.Platform))
	if platform == "" {
		platform = catalog.PlatformWeb
	}

	return &catalog.Creator{
		ID:        canonicalCreatorID(raw.ID, platform, handle, name),
		Name:      name,
		Handle:    handle,
		URL:       profileURL,
		AvatarURL: strings.TrimSpace(raw.AvatarURL),
		Platforms: []string{platform},
	}, nil
}

// canonicalCreatorID regenerates the id as {platform}:{slug}. The
// platform prefix of a source-supplied id is kept when present so
// re-resolving a stored creator is stable.
func canonicalCreatorID(sourceID, platform, handle, name string) string {
	prefix := platform
	if idx := strings.IndexByte(sourceID, ':'); idx > 0 {
		prefix = strings.ToLower(strings.TrimSpace(sourceID[:idx]))
	}

	slug := strings.ToLower(handle)
	if slug == "" {
		slug = strings.ReplaceAll(strings.ToLower(name), " ", "")
	}
	return prefix + ":" + slug
}

func stripNameSuffixes(name string) string {
	trimmed := strings.TrimSpace(name)
	for changed := true; changed; {
		changed = false
		for _, suffix := range nameSuffixes {
			if len(trimmed) <= len(suffix) {
				continue
			}
			tail := trimmed[len(trimmed)-len(suffix):]
			if strings.EqualFold(tail, suffix) {
				head := strings.TrimSpace(trimmed[:len(trimmed)-len(suffix)])
				if head != "" {
					trimmed = head
					changed = true
				}
			}
		}
	}
	return trimmed
}

func preferLonger(existing, incoming string) string {
	if len(strings.TrimSpace(incoming)) > len(strings.TrimSpace(existing)) {
		return strings.TrimSpace(incoming)
	}
	return strings.TrimSpace(existing)
}

func profileDomain(rawURL string) string {
	if strings.TrimSpace(rawURL) == "" {
		return ""
	}
	return canonical.Canonicalize(rawURL).Domain
}
