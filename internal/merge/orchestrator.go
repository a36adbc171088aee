package merge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/stash/internal/catalog"
	"horse.fit/stash/internal/globaltime"
	"horse.fit/stash/internal/match"
)

// ReasonInsertedNew is recorded when no candidate reached the threshold
// and the item became a new canonical record.
const ReasonInsertedNew = "no duplicate above threshold; inserted as new"

// Store is the mutating capability surface the orchestrator needs.
// ReassignReferences must move every foreign reference (bookmarks, feed
// entries) from one content id to another and be a no-op when none
// remain, so a partially applied merge is safely resumable.
type Store interface {
	GetItem(ctx context.Context, id string) (*catalog.ContentItem, error)
	InsertItem(ctx context.Context, item *catalog.ContentItem) error
	UpdateItem(ctx context.Context, item *catalog.ContentItem) error
	ReassignReferences(ctx context.Context, fromID, toID string) error
	DeleteItem(ctx context.Context, id string) error
}

// ErrUniqueViolation is returned by Store.InsertItem when another writer
// already inserted the same (platform, externalId). The orchestrator
// treats it as a late-discovered match, not a failure.
type ErrUniqueViolation struct {
	Platform   string
	ExternalID string
}

func (e *ErrUniqueViolation) Error() string {
	return fmt.Sprintf("content item already exists for %s/%s", e.Platform, e.ExternalID)
}

// Resolution is the caller-visible outcome of ResolveAndMaybeMerge.
type Resolution struct {
	PrimaryID string
	Merged    bool
	Reasons   []string
}

// Orchestrator reconciles an incoming item with an actionable duplicate,
// or inserts it as a new canonical record.
type Orchestrator struct {
	store   Store
	matcher *match.Matcher
	logger  zerolog.Logger
}

func NewOrchestrator(store Store, matcher *match.Matcher, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{store: store, matcher: matcher, logger: logger}
}

// ResolveAndMaybeMerge is the engine's only mutating entry point. When
// the top candidate reaches threshold the incoming item is merged into
// that primary; otherwise the item is inserted as new. A unique-key
// violation on insert re-enters the merge path instead of failing.
func (o *Orchestrator) ResolveAndMaybeMerge(
	ctx context.Context,
	item *catalog.ContentItem,
	candidates []catalog.MatchCandidate,
	threshold float64,
) (Resolution, error) {
	if o == nil || o.store == nil {
		return Resolution{}, fmt.Errorf("orchestrator is not initialized")
	}
	if item == nil {
		return Resolution{}, fmt.Errorf("item is required")
	}
	if threshold <= 0 {
		threshold = match.DefaultThreshold
	}

	if len(candidates) > 0 && candidates[0].Score >= threshold {
		return o.mergeIntoPrimary(ctx, item, candidates[0])
	}

	if err := o.store.InsertItem(ctx, item); err != nil {
		var unique *ErrUniqueViolation
		if !errors.As(err, &unique) {
			return Resolution{}, fmt.Errorf("insert content item %s: %w", item.ID, err)
		}

		// Someone else inserted this item between the lookup and our
		// insert. Re-run the duplicate lookup and take the merge path.
		o.logger.Info().
			Str("item_id", item.ID).
			Msg("insert hit unique constraint; re-entering duplicate lookup")

		if o.matcher == nil {
			return Resolution{}, fmt.Errorf("insert conflict for %s and no matcher to recover with", item.ID)
		}
		retried, lookupErr := o.matcher.FindDuplicates(ctx, item)
		if lookupErr != nil {
			return Resolution{}, fmt.Errorf("re-run duplicate lookup for %s: %w", item.ID, lookupErr)
		}
		if len(retried) == 0 {
			return Resolution{}, fmt.Errorf("insert conflict for %s but no duplicate found on retry", item.ID)
		}
		return o.mergeIntoPrimary(ctx, item, retried[0])
	}

	return Resolution{
		PrimaryID: item.ID,
		Merged:    false,
		Reasons:   []string{ReasonInsertedNew},
	}, nil
}

func (o *Orchestrator) mergeIntoPrimary(
	ctx context.Context,
	incoming *catalog.ContentItem,
	candidate catalog.MatchCandidate,
) (Resolution, error) {
	primary, err := o.store.GetItem(ctx, candidate.ID)
	if err != nil {
		return Resolution{}, fmt.Errorf("load primary %s: %w", candidate.ID, err)
	}
	if primary == nil {
		return Resolution{}, fmt.Errorf("primary %s no longer exists", candidate.ID)
	}

	now := globaltime.UTC()
	reconcileFields(primary, incoming)

	if incoming.Platform != primary.Platform {
		linkCrossPlatform(primary, incoming, candidate.Score, now)
	}

	primary.UpdatedAt = now
	if err := o.store.UpdateItem(ctx, primary); err != nil {
		return Resolution{}, fmt.Errorf("update primary %s: %w", primary.ID, err)
	}

	// The duplicate may never have been persisted (fresh save) or may be
	// a stored record discovered late. Both paths are no-ops when
	// nothing references the id anymore, which makes re-running the
	// merge after a partial failure safe.
	if incoming.ID != "" && incoming.ID != primary.ID {
		if err := o.store.ReassignReferences(ctx, incoming.ID, primary.ID); err != nil {
			return Resolution{}, fmt.Errorf("rewire references %s -> %s: %w", incoming.ID, primary.ID, err)
		}
		if err := o.store.DeleteItem(ctx, incoming.ID); err != nil {
			return Resolution{}, fmt.Errorf("delete absorbed duplicate %s: %w", incoming.ID, err)
		}
	}

	o.logger.Info().
		Str("primary_id", primary.ID).
		Str("duplicate_id", incoming.ID).
		Float64("score", candidate.Score).
		Strs("reasons", candidate.Reasons).
		Msg("merged duplicate into primary")

	return Resolution{
		PrimaryID: primary.ID,
		Merged:    true,
		Reasons:   candidate.Reasons,
	}, nil
}

// reconcileFields combines the incoming item into the primary: maximum
// for engagement counters, fill-missing for descriptive fields, shallow
// union for metadata with incoming winning on key collision, and a
// guarded union of cross-platform links so entries the duplicate
// accumulated survive absorption. A populated primary field is never
// overwritten by enrichment data.
func reconcileFields(primary, incoming *catalog.ContentItem) {
	primary.ViewCount = maxInt64(primary.ViewCount, incoming.ViewCount)
	primary.LikeCount = maxInt64(primary.LikeCount, incoming.LikeCount)
	primary.CommentCount = maxInt64(primary.CommentCount, incoming.CommentCount)

	fillString(&primary.Title, incoming.Title)
	fillString(&primary.NormalizedTitle, incoming.NormalizedTitle)
	fillString(&primary.Description, incoming.Description)
	fillString(&primary.ThumbnailURL, incoming.ThumbnailURL)
	fillString(&primary.Language, incoming.Language)
	fillString(&primary.CreatorID, incoming.CreatorID)
	fillString(&primary.CreatorName, incoming.CreatorName)
	fillString(&primary.SeriesName, incoming.SeriesName)
	fillString(&primary.EpisodeGUID, incoming.EpisodeGUID)
	fillString(&primary.ContentFingerprint, incoming.ContentFingerprint)

	if primary.EpisodeNumber == nil && incoming.EpisodeNumber != nil {
		value := *incoming.EpisodeNumber
		primary.EpisodeNumber = &value
	}
	if primary.DurationSeconds == 0 && incoming.DurationSeconds > 0 {
		primary.DurationSeconds = incoming.DurationSeconds
	}
	if primary.PublishedAt == nil && incoming.PublishedAt != nil {
		value := *incoming.PublishedAt
		primary.PublishedAt = &value
	}

	if len(incoming.Metadata) > 0 {
		if primary.Metadata == nil {
			primary.Metadata = make(map[string]any, len(incoming.Metadata))
		}
		for key, value := range incoming.Metadata {
			primary.Metadata[key] = value
		}
	}

	for _, link := range incoming.CrossPlatformMatches {
		// An entry on the primary's own platform would point the record
		// at itself once the duplicate is absorbed.
		if link.Platform == primary.Platform {
			continue
		}
		if primary.HasMatchFor(link.Platform, link.ExternalID, link.URL) {
			continue
		}
		primary.CrossPlatformMatches = append(primary.CrossPlatformMatches, link)
	}
}

// linkCrossPlatform records the bidirectional match: one entry on the
// primary for the incoming platform, and the reciprocal entry on the
// incoming side before it is absorbed, so the link is symmetric even
// transiently. Duplicate entries are guarded by (platform, id-or-url).
func linkCrossPlatform(primary, incoming *catalog.ContentItem, confidence float64, now time.Time) {
	if !primary.HasMatchFor(incoming.Platform, incoming.ExternalID, incoming.URL) {
		primary.CrossPlatformMatches = append(primary.CrossPlatformMatches, catalog.CrossPlatformMatch{
			Platform:   incoming.Platform,
			ExternalID: incoming.ExternalID,
			URL:        incoming.URL,
			Confidence: confidence,
			AddedAt:    now,
		})
	}
	if !incoming.HasMatchFor(primary.Platform, primary.ExternalID, primary.URL) {
		incoming.CrossPlatformMatches = append(incoming.CrossPlatformMatches, catalog.CrossPlatformMatch{
			Platform:   primary.Platform,
			ExternalID: primary.ExternalID,
			URL:        primary.URL,
			Confidence: confidence,
			AddedAt:    now,
		})
	}
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func fillString(dst *string, value string) {
	if *dst == "" && value != "" {
		*dst = value
	}
}
