package merge

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"horse.fit/stash/internal/catalog"
	"horse.fit/stash/internal/match"
)

type memoryStore struct {
	items     map[string]*catalog.ContentItem
	bookmarks map[string]string // bookmark id -> content id
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		items:     make(map[string]*catalog.ContentItem),
		bookmarks: make(map[string]string),
	}
}

func (s *memoryStore) GetItem(_ context.Context, id string) (*catalog.ContentItem, error) {
	item, ok := s.items[id]
	if !ok {
		return nil, nil
	}
	clone := *item
	return &clone, nil
}

func (s *memoryStore) InsertItem(_ context.Context, item *catalog.ContentItem) error {
	for _, existing := range s.items {
		if existing.Platform == item.Platform && existing.ExternalID == item.ExternalID {
			return &ErrUniqueViolation{Platform: item.Platform, ExternalID: item.ExternalID}
		}
	}
	clone := *item
	s.items[item.ID] = &clone
	return nil
}

func (s *memoryStore) UpdateItem(_ context.Context, item *catalog.ContentItem) error {
	clone := *item
	s.items[item.ID] = &clone
	return nil
}

func (s *memoryStore) ReassignReferences(_ context.Context, fromID, toID string) error {
	for bookmarkID, contentID := range s.bookmarks {
		if contentID == fromID {
			s.bookmarks[bookmarkID] = toID
		}
	}
	return nil
}

func (s *memoryStore) DeleteItem(_ context.Context, id string) error {
	delete(s.items, id)
	return nil
}

func (s *memoryStore) asLookup() *storeLookup { return &storeLookup{store: s} }

type storeLookup struct {
	store *memoryStore
}

func (l *storeLookup) ByFingerprint(_ context.Context, fingerprint string) ([]catalog.ContentItem, error) {
	var hits []catalog.ContentItem
	for _, item := range l.store.items {
		if item.ContentFingerprint != "" && item.ContentFingerprint == fingerprint {
			hits = append(hits, *item)
		}
	}
	return hits, nil
}

func (l *storeLookup) ByPlatformID(_ context.Context, platform, externalID string) (*catalog.ContentItem, error) {
	for _, item := range l.store.items {
		if item.Platform == platform && item.ExternalID == externalID {
			clone := *item
			return &clone, nil
		}
	}
	return nil, nil
}

func (l *storeLookup) ByTitleCreator(_ context.Context, normalizedTitle, creatorName string) ([]catalog.ContentItem, error) {
	var hits []catalog.ContentItem
	for _, item := range l.store.items {
		if item.NormalizedTitle == normalizedTitle && item.CreatorName == creatorName {
			hits = append(hits, *item)
		}
	}
	return hits, nil
}

func (l *storeLookup) ByAnyURL(_ context.Context, urls []string) ([]catalog.ContentItem, error) {
	var hits []catalog.ContentItem
	for _, item := range l.store.items {
		for _, u := range urls {
			if item.URL == u || item.CanonicalURL == u {
				hits = append(hits, *item)
				break
			}
		}
	}
	return hits, nil
}

func (l *storeLookup) ListByPlatform(_ context.Context, platform string, limit int) ([]catalog.ContentItem, error) {
	var hits []catalog.ContentItem
	for _, item := range l.store.items {
		if item.Platform == platform {
			hits = append(hits, *item)
		}
		if limit > 0 && len(hits) >= limit {
			break
		}
	}
	return hits, nil
}

func TestResolveAndMaybeMerge_InsertsBelowThreshold(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	orch := NewOrchestrator(store, nil, zerolog.Nop())

	item := &catalog.ContentItem{
		ID:         "youtube-aaa",
		Platform:   "youtube",
		ExternalID: "aaa",
	}
	resolution, err := orch.ResolveAndMaybeMerge(context.Background(), item, nil, 0.8)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if resolution.Merged {
		t.Fatalf("did not expect a merge")
	}
	if resolution.PrimaryID != "youtube-aaa" {
		t.Fatalf("unexpected primary id: %q", resolution.PrimaryID)
	}
	if _, ok := store.items["youtube-aaa"]; !ok {
		t.Fatalf("expected item to be inserted")
	}
}

func TestResolveAndMaybeMerge_FillMissingNeverOverwrites(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	store.items["youtube-aaa"] = &catalog.ContentItem{
		ID:          "youtube-aaa",
		Platform:    "youtube",
		ExternalID:  "aaa",
		Description: "curated description",
		ViewCount:   100,
	}
	orch := NewOrchestrator(store, nil, zerolog.Nop())

	incoming := &catalog.ContentItem{
		ID:           "youtube-incoming",
		Platform:     "youtube",
		ExternalID:   "aaa",
		Description:  "",
		ThumbnailURL: "https://img.example.com/t.png",
		ViewCount:    250,
	}
	candidates := []catalog.MatchCandidate{{ID: "youtube-aaa", Score: 1.0, Reasons: []string{"same platform ID"}}}

	resolution, err := orch.ResolveAndMaybeMerge(context.Background(), incoming, candidates, 0.8)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if !resolution.Merged {
		t.Fatalf("expected a merge")
	}

	primary := store.items["youtube-aaa"]
	if primary.Description != "curated description" {
		t.Fatalf("fill-missing must not overwrite, got %q", primary.Description)
	}
	if primary.ThumbnailURL != "https://img.example.com/t.png" {
		t.Fatalf("expected empty thumbnail to be filled, got %q", primary.ThumbnailURL)
	}
	if primary.ViewCount != 250 {
		t.Fatalf("expected max engagement count, got %d", primary.ViewCount)
	}
}

func TestResolveAndMaybeMerge_CrossPlatformLinkSymmetry(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	store.items["youtube-aaa"] = &catalog.ContentItem{
		ID:         "youtube-aaa",
		Platform:   "youtube",
		ExternalID: "aaa",
		URL:        "https://youtube.com/watch?v=aaa",
	}
	orch := NewOrchestrator(store, nil, zerolog.Nop())

	incoming := &catalog.ContentItem{
		ID:         "spotify-bbb",
		Platform:   "spotify",
		ExternalID: "bbb",
		URL:        "https://open.spotify.com/episode/bbb",
	}
	candidates := []catalog.MatchCandidate{{ID: "youtube-aaa", Score: 0.92, Reasons: []string{"cross-platform content match"}}}

	resolution, err := orch.ResolveAndMaybeMerge(context.Background(), incoming, candidates, 0.8)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if !resolution.Merged {
		t.Fatalf("expected a merge")
	}

	primary := store.items["youtube-aaa"]
	if len(primary.CrossPlatformMatches) != 1 {
		t.Fatalf("expected one cross-platform entry, got %d", len(primary.CrossPlatformMatches))
	}
	entry := primary.CrossPlatformMatches[0]
	if entry.Platform != "spotify" || entry.ExternalID != "bbb" || entry.Confidence != 0.92 {
		t.Fatalf("unexpected link entry: %+v", entry)
	}

	// The reciprocal entry existed on the duplicate before absorption.
	if len(incoming.CrossPlatformMatches) != 1 || incoming.CrossPlatformMatches[0].Platform != "youtube" {
		t.Fatalf("expected reciprocal entry on the absorbed side, got %+v", incoming.CrossPlatformMatches)
	}

	// Never an entry for the item's own platform.
	for _, m := range primary.CrossPlatformMatches {
		if m.Platform == primary.Platform {
			t.Fatalf("primary links its own platform: %+v", m)
		}
	}
}

func TestResolveAndMaybeMerge_Idempotent(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	store.items["youtube-aaa"] = &catalog.ContentItem{
		ID:         "youtube-aaa",
		Platform:   "youtube",
		ExternalID: "aaa",
		ViewCount:  10,
	}
	store.items["spotify-bbb"] = &catalog.ContentItem{
		ID:         "spotify-bbb",
		Platform:   "spotify",
		ExternalID: "bbb",
	}
	store.bookmarks["bm-1"] = "spotify-bbb"
	orch := NewOrchestrator(store, nil, zerolog.Nop())

	duplicate := *store.items["spotify-bbb"]
	candidates := []catalog.MatchCandidate{{ID: "youtube-aaa", Score: 1.0, Reasons: []string{"exact fingerprint match"}}}

	first, err := orch.ResolveAndMaybeMerge(context.Background(), &duplicate, candidates, 0.8)
	if err != nil {
		t.Fatalf("first merge failed: %v", err)
	}
	if first.PrimaryID != "youtube-aaa" || !first.Merged {
		t.Fatalf("unexpected first resolution: %+v", first)
	}
	if store.bookmarks["bm-1"] != "youtube-aaa" {
		t.Fatalf("expected bookmark to be rewired, got %q", store.bookmarks["bm-1"])
	}
	if _, exists := store.items["spotify-bbb"]; exists {
		t.Fatalf("expected duplicate to be deleted")
	}

	snapshot := *store.items["youtube-aaa"]

	retry := duplicate
	second, err := orch.ResolveAndMaybeMerge(context.Background(), &retry, candidates, 0.8)
	if err != nil {
		t.Fatalf("second merge failed: %v", err)
	}
	if second.PrimaryID != first.PrimaryID {
		t.Fatalf("expected stable primary id, got %q", second.PrimaryID)
	}

	after := *store.items["youtube-aaa"]
	if len(after.CrossPlatformMatches) != len(snapshot.CrossPlatformMatches) {
		t.Fatalf("repeat merge duplicated cross-platform links: %+v", after.CrossPlatformMatches)
	}
	if after.ViewCount != snapshot.ViewCount {
		t.Fatalf("repeat merge changed fields: %+v", after)
	}
	if store.bookmarks["bm-1"] != "youtube-aaa" {
		t.Fatalf("bookmark rewiring must stay stable, got %q", store.bookmarks["bm-1"])
	}
}

func TestResolveAndMaybeMerge_UniqueViolationRecovers(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	store.items["youtube-aaa"] = &catalog.ContentItem{
		ID:                 "youtube-aaa",
		Platform:           "youtube",
		ExternalID:         "aaa",
		ContentFingerprint: "fp-1",
	}
	matcher := match.NewMatcher(store.asLookup(), nil, zerolog.Nop())
	orch := NewOrchestrator(store, matcher, zerolog.Nop())

	// The lookup that produced zero candidates raced with another
	// writer: insert collides, the orchestrator must recover by
	// re-running the lookup and merging.
	incoming := &catalog.ContentItem{
		ID:                 "youtube-race",
		Platform:           "youtube",
		ExternalID:         "aaa",
		ContentFingerprint: "fp-1",
	}
	resolution, err := orch.ResolveAndMaybeMerge(context.Background(), incoming, nil, 0.8)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if !resolution.Merged {
		t.Fatalf("expected recovery merge, got %+v", resolution)
	}
	if resolution.PrimaryID != "youtube-aaa" {
		t.Fatalf("unexpected primary: %q", resolution.PrimaryID)
	}
}

func TestResolveAndMaybeMerge_ResaveOfSameIDRecovers(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	store.items["youtube-aaa"] = &catalog.ContentItem{
		ID:                 "youtube-aaa",
		Platform:           "youtube",
		ExternalID:         "aaa",
		ContentFingerprint: "fp-1",
	}
	matcher := match.NewMatcher(store.asLookup(), nil, zerolog.Nop())
	orch := NewOrchestrator(store, matcher, zerolog.Nop())

	// The exact same item saved again derives the identical id; the
	// insert collides and the retry lookup must find the stored record
	// rather than erroring out.
	incoming := &catalog.ContentItem{
		ID:                 "youtube-aaa",
		Platform:           "youtube",
		ExternalID:         "aaa",
		ContentFingerprint: "fp-1",
	}
	resolution, err := orch.ResolveAndMaybeMerge(context.Background(), incoming, nil, 0.8)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if !resolution.Merged || resolution.PrimaryID != "youtube-aaa" {
		t.Fatalf("unexpected resolution: %+v", resolution)
	}
	if len(store.items) != 1 {
		t.Fatalf("expected exactly one stored item, got %d", len(store.items))
	}
}

func TestResolveAndMaybeMerge_AbsorbedLinksCarryOver(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	store.items["youtube-aaa"] = &catalog.ContentItem{
		ID:         "youtube-aaa",
		Platform:   "youtube",
		ExternalID: "aaa",
	}
	store.items["spotify-bbb"] = &catalog.ContentItem{
		ID:         "spotify-bbb",
		Platform:   "spotify",
		ExternalID: "bbb",
		CrossPlatformMatches: []catalog.CrossPlatformMatch{
			{Platform: "web", URL: "https://example.com/mirror", Confidence: 0.8},
			// Reciprocal entry pointing back at the primary; carrying it
			// over would make the primary reference itself.
			{Platform: "youtube", ExternalID: "aaa", Confidence: 0.9},
		},
	}
	orch := NewOrchestrator(store, nil, zerolog.Nop())

	duplicate := *store.items["spotify-bbb"]
	candidates := []catalog.MatchCandidate{{ID: "youtube-aaa", Score: 1.0, Reasons: []string{"exact fingerprint match"}}}

	resolution, err := orch.ResolveAndMaybeMerge(context.Background(), &duplicate, candidates, 0.8)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if !resolution.Merged {
		t.Fatalf("expected a merge")
	}

	primary := store.items["youtube-aaa"]
	if !primary.HasMatchFor("web", "", "https://example.com/mirror") {
		t.Fatalf("expected the duplicate's web link to carry over: %+v", primary.CrossPlatformMatches)
	}
	if !primary.HasMatchFor("spotify", "bbb", "") {
		t.Fatalf("expected a link to the absorbed spotify item: %+v", primary.CrossPlatformMatches)
	}
	for _, m := range primary.CrossPlatformMatches {
		if m.Platform == primary.Platform {
			t.Fatalf("primary links its own platform: %+v", m)
		}
	}
}
