package save

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/stash/internal/catalog"
	"horse.fit/stash/internal/match"
	"horse.fit/stash/internal/merge"
	payloadschema "horse.fit/stash/schema"
)

type memStore struct {
	items     map[string]*catalog.ContentItem
	bookmarks map[string]*string // "user|content" -> notes
	feeds     map[string]bool    // "slug|content"
}

func newMemStore() *memStore {
	return &memStore{
		items:     make(map[string]*catalog.ContentItem),
		bookmarks: make(map[string]*string),
		feeds:     make(map[string]bool),
	}
}

func (s *memStore) GetItem(_ context.Context, id string) (*catalog.ContentItem, error) {
	item, ok := s.items[id]
	if !ok {
		return nil, nil
	}
	clone := *item
	return &clone, nil
}

func (s *memStore) InsertItem(_ context.Context, item *catalog.ContentItem) error {
	for _, existing := range s.items {
		if existing.Platform == item.Platform && existing.ExternalID == item.ExternalID {
			return &merge.ErrUniqueViolation{Platform: item.Platform, ExternalID: item.ExternalID}
		}
	}
	clone := *item
	s.items[item.ID] = &clone
	return nil
}

func (s *memStore) UpdateItem(_ context.Context, item *catalog.ContentItem) error {
	clone := *item
	s.items[item.ID] = &clone
	return nil
}

func (s *memStore) ReassignReferences(_ context.Context, fromID, toID string) error {
	for key, notes := range s.bookmarks {
		if len(key) > len(fromID) && key[len(key)-len(fromID):] == fromID {
			user := key[:len(key)-len(fromID)]
			delete(s.bookmarks, key)
			s.bookmarks[user+toID] = notes
		}
	}
	return nil
}

func (s *memStore) DeleteItem(_ context.Context, id string) error {
	delete(s.items, id)
	return nil
}

func (s *memStore) SaveBookmark(_ context.Context, userID, contentID string, notes *string) error {
	key := userID + "|" + contentID
	if _, exists := s.bookmarks[key]; !exists {
		s.bookmarks[key] = notes
	}
	return nil
}

func (s *memStore) AddFeedEntry(_ context.Context, feedSlug, contentID string) error {
	s.feeds[feedSlug+"|"+contentID] = true
	return nil
}

func (s *memStore) ByFingerprint(_ context.Context, fingerprint string) ([]catalog.ContentItem, error) {
	var hits []catalog.ContentItem
	for _, item := range s.items {
		if item.ContentFingerprint != "" && item.ContentFingerprint == fingerprint {
			hits = append(hits, *item)
		}
	}
	return hits, nil
}

func (s *memStore) ByPlatformID(_ context.Context, platform, externalID string) (*catalog.ContentItem, error) {
	for _, item := range s.items {
		if item.Platform == platform && item.ExternalID == externalID {
			clone := *item
			return &clone, nil
		}
	}
	return nil, nil
}

func (s *memStore) ByTitleCreator(_ context.Context, normalizedTitle, creatorName string) ([]catalog.ContentItem, error) {
	var hits []catalog.ContentItem
	for _, item := range s.items {
		if item.NormalizedTitle == normalizedTitle && item.CreatorName == creatorName {
			hits = append(hits, *item)
		}
	}
	return hits, nil
}

func (s *memStore) ByAnyURL(_ context.Context, urls []string) ([]catalog.ContentItem, error) {
	var hits []catalog.ContentItem
	for _, item := range s.items {
		for _, u := range urls {
			if item.URL == u || item.CanonicalURL == u {
				hits = append(hits, *item)
				break
			}
		}
	}
	return hits, nil
}

func (s *memStore) ListByPlatform(_ context.Context, platform string, limit int) ([]catalog.ContentItem, error) {
	var hits []catalog.ContentItem
	for _, item := range s.items {
		if item.Platform == platform {
			hits = append(hits, *item)
		}
		if limit > 0 && len(hits) >= limit {
			break
		}
	}
	return hits, nil
}

type memCreatorStore struct {
	creators map[string]catalog.Creator
}

func newMemCreatorStore() *memCreatorStore {
	return &memCreatorStore{creators: make(map[string]catalog.Creator)}
}

func (s *memCreatorStore) ListCreators(_ context.Context) ([]catalog.Creator, error) {
	out := make([]catalog.Creator, 0, len(s.creators))
	for _, creator := range s.creators {
		out = append(out, creator)
	}
	return out, nil
}

func (s *memCreatorStore) UpsertCreator(_ context.Context, creator *catalog.Creator) error {
	s.creators[creator.ID] = *creator
	return nil
}

type memAudit struct {
	resolutions []merge.Resolution
}

func (a *memAudit) RecordResolution(_ context.Context, res merge.Resolution, _ string, _ float64) error {
	a.resolutions = append(a.resolutions, res)
	return nil
}

func newTestService(store *memStore, creatorStore *memCreatorStore, audit *memAudit) *Service {
	matcher := match.NewMatcher(store, nil, zerolog.Nop())
	orch := merge.NewOrchestrator(store, matcher, zerolog.Nop())
	return NewService(
		creatorStore, store, audit, store,
		matcher, orch, nil,
		Options{MatchThreshold: 0.8, FetchWebPreviews: false},
		zerolog.Nop(),
	)
}

func strPtr(v string) *string { return &v }
func intPtr(v int) *int       { return &v }

func TestSaveInsertsNewItem(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	svc := newTestService(store, newMemCreatorStore(), &memAudit{})

	result, err := svc.Save(context.Background(), &payloadschema.SaveItem{
		PayloadVersion: "v1",
		URL:            "https://www.youtube.com/watch?v=dQw4w9WgXcQ&si=tracking",
		UserID:         "user-1",
		Title:          strPtr("Never Gonna Give You Up"),
		Language:       strPtr("en"),
	})
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}

	if result.ContentID != "youtube-dQw4w9WgXcQ" {
		t.Fatalf("unexpected content id: %q", result.ContentID)
	}
	if result.Merged {
		t.Fatalf("first save must not merge")
	}

	item := store.items[result.ContentID]
	if item == nil {
		t.Fatalf("expected item to be stored")
	}
	if item.CanonicalURL != "https://youtube.com/watch?v=dQw4w9WgXcQ" {
		t.Fatalf("unexpected canonical url: %q", item.CanonicalURL)
	}
	if item.ContentFingerprint == "" {
		t.Fatalf("expected a fingerprint to be set")
	}
	if _, ok := store.bookmarks["user-1|youtube-dQw4w9WgXcQ"]; !ok {
		t.Fatalf("expected a bookmark for user-1")
	}
}

func TestSaveDeduplicatesURLVariants(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	svc := newTestService(store, newMemCreatorStore(), &memAudit{})

	first, err := svc.Save(context.Background(), &payloadschema.SaveItem{
		PayloadVersion: "v1",
		URL:            "https://www.youtube.com/watch?v=dQw4w9WgXcQ&utm_source=share",
		UserID:         "user-1",
		Title:          strPtr("Never Gonna Give You Up"),
		Language:       strPtr("en"),
	})
	if err != nil {
		t.Fatalf("first save failed: %v", err)
	}

	second, err := svc.Save(context.Background(), &payloadschema.SaveItem{
		PayloadVersion: "v1",
		URL:            "https://youtu.be/dQw4w9WgXcQ?si=abc123",
		UserID:         "user-2",
		Language:       strPtr("en"),
	})
	if err != nil {
		t.Fatalf("second save failed: %v", err)
	}

	if second.ContentID != first.ContentID {
		t.Fatalf("expected both saves to land on one item, got %q and %q", first.ContentID, second.ContentID)
	}
	if !second.Merged {
		t.Fatalf("expected the second save to take the merge path")
	}
	if len(store.items) != 1 {
		t.Fatalf("expected one stored item, got %d", len(store.items))
	}
	if len(store.bookmarks) != 2 {
		t.Fatalf("expected one bookmark per user, got %d", len(store.bookmarks))
	}
}

func TestSaveRepeatBySameUserIsIdempotent(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	svc := newTestService(store, newMemCreatorStore(), &memAudit{})

	payload := &payloadschema.SaveItem{
		PayloadVersion: "v1",
		URL:            "https://open.spotify.com/episode/5Xt5DX?si=share",
		UserID:         "user-1",
		Title:          strPtr("Deep Dive"),
		Language:       strPtr("en"),
	}

	first, err := svc.Save(context.Background(), payload)
	if err != nil {
		t.Fatalf("first save failed: %v", err)
	}
	second, err := svc.Save(context.Background(), payload)
	if err != nil {
		t.Fatalf("repeat save failed: %v", err)
	}

	if first.ContentID != second.ContentID {
		t.Fatalf("repeat save changed the content id")
	}
	if len(store.items) != 1 || len(store.bookmarks) != 1 {
		t.Fatalf("repeat save must not add rows: items=%d bookmarks=%d", len(store.items), len(store.bookmarks))
	}
}

func TestSaveUnparsableURLGetsSyntheticExternalID(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	svc := newTestService(store, newMemCreatorStore(), &memAudit{})

	// A channel URL carries no video id; the save must still succeed
	// with a synthetic id derived from the canonical URL.
	payload := &payloadschema.SaveItem{
		PayloadVersion: "v1",
		URL:            "https://www.youtube.com/@veritasium",
		UserID:         "user-1",
		Title:          strPtr("Veritasium"),
		Language:       strPtr("en"),
	}

	first, err := svc.Save(context.Background(), payload)
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if !strings.HasPrefix(first.ContentID, "youtube-") {
		t.Fatalf("unexpected content id: %q", first.ContentID)
	}

	second, err := svc.Save(context.Background(), payload)
	if err != nil {
		t.Fatalf("repeat save failed: %v", err)
	}
	if second.ContentID != first.ContentID {
		t.Fatalf("synthetic id not stable: %q vs %q", first.ContentID, second.ContentID)
	}
	if len(store.items) != 1 {
		t.Fatalf("expected one stored item, got %d", len(store.items))
	}
}

func TestSaveLinksCrossPlatformVariant(t *testing.T) {
	t.Parallel()

	published := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	episode := 42

	store := newMemStore()
	store.items["spotify-ep42"] = &catalog.ContentItem{
		ID:              "spotify-ep42",
		Platform:        "spotify",
		ExternalID:      "ep42",
		URL:             "https://open.spotify.com/episode/ep42",
		Title:           "The Future of AI",
		NormalizedTitle: "the future of ai",
		CreatorName:     "Lex Fridman",
		DurationSeconds: 3600,
		EpisodeNumber:   &episode,
		PublishedAt:     &published,
	}
	svc := newTestService(store, newMemCreatorStore(), &memAudit{})

	result, err := svc.Save(context.Background(), &payloadschema.SaveItem{
		PayloadVersion:  "v1",
		URL:             "https://www.youtube.com/watch?v=ytEp42",
		UserID:          "user-1",
		Title:           strPtr("The Future of AI"),
		DurationSeconds: intPtr(3605),
		EpisodeNumber:   intPtr(42),
		PublishedAt:     strPtr("2026-03-10T12:00:00Z"),
		Language:        strPtr("en"),
	})
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}

	if result.Merged {
		t.Fatalf("cross-platform variants must stay separate items")
	}
	if !result.CrossPlatformLinked {
		t.Fatalf("expected a cross-platform link")
	}
	if len(store.items) != 2 {
		t.Fatalf("expected two items, got %d", len(store.items))
	}

	youtubeItem := store.items["youtube-ytEp42"]
	spotifyItem := store.items["spotify-ep42"]
	if youtubeItem == nil || spotifyItem == nil {
		t.Fatalf("expected both platform items to exist")
	}
	if !youtubeItem.HasMatchFor("spotify", "ep42", "") {
		t.Fatalf("youtube item missing link to spotify: %+v", youtubeItem.CrossPlatformMatches)
	}
	if !spotifyItem.HasMatchFor("youtube", "ytEp42", "") {
		t.Fatalf("spotify item missing link to youtube: %+v", spotifyItem.CrossPlatformMatches)
	}
}

func TestSaveResolvesCreator(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	creatorStore := newMemCreatorStore()
	svc := newTestService(store, creatorStore, &memAudit{})

	result, err := svc.Save(context.Background(), &payloadschema.SaveItem{
		PayloadVersion: "v1",
		URL:            "https://www.youtube.com/watch?v=abc123xyz00",
		UserID:         "user-1",
		Title:          strPtr("Studio Session"),
		Language:       strPtr("en"),
		Creator: &payloadschema.SaveCreator{
			Name:   "Rick Astley Official",
			Handle: "RickAstleyVEVO",
		},
	})
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}

	if result.CreatorID != "youtube:rickastleyvevo" {
		t.Fatalf("unexpected creator id: %q", result.CreatorID)
	}
	stored, ok := creatorStore.creators[result.CreatorID]
	if !ok {
		t.Fatalf("expected creator to be upserted")
	}
	if stored.Name != "Rick Astley" {
		t.Fatalf("expected decorative suffix to be stripped, got %q", stored.Name)
	}

	item := store.items[result.ContentID]
	if item.CreatorID != result.CreatorID {
		t.Fatalf("item not attributed to resolved creator: %q", item.CreatorID)
	}
}

func TestSaveAddsFeedEntry(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	svc := newTestService(store, newMemCreatorStore(), &memAudit{})

	result, err := svc.Save(context.Background(), &payloadschema.SaveItem{
		PayloadVersion: "v1",
		URL:            "https://example.com/essay",
		UserID:         "user-1",
		Title:          strPtr("An Essay"),
		Language:       strPtr("en"),
		FeedSlug:       strPtr("reading-list"),
	})
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}

	if !store.feeds["reading-list|"+result.ContentID] {
		t.Fatalf("expected feed entry for reading-list")
	}
}
