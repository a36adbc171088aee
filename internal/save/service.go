package save

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/stash/internal/canonical"
	"horse.fit/stash/internal/catalog"
	"horse.fit/stash/internal/creators"
	"horse.fit/stash/internal/fingerprint"
	"horse.fit/stash/internal/globaltime"
	"horse.fit/stash/internal/langdetect"
	"horse.fit/stash/internal/match"
	"horse.fit/stash/internal/merge"
	"horse.fit/stash/internal/reader"
	payloadschema "horse.fit/stash/schema"
)

// CreatorStore persists resolved creator identities.
type CreatorStore interface {
	ListCreators(ctx context.Context) ([]catalog.Creator, error)
	UpsertCreator(ctx context.Context, creator *catalog.Creator) error
}

// ReferenceStore records the user-facing references onto content items.
type ReferenceStore interface {
	SaveBookmark(ctx context.Context, userID, contentID string, notes *string) error
	AddFeedEntry(ctx context.Context, feedSlug, contentID string) error
}

// AuditStore appends one row per resolution outcome.
type AuditStore interface {
	RecordResolution(ctx context.Context, res merge.Resolution, duplicateID string, score float64) error
}

// ItemUpdater writes back the counterpart side of a cross-platform link.
type ItemUpdater interface {
	UpdateItem(ctx context.Context, item *catalog.ContentItem) error
}

// PreviewFetcher extracts a readable preview for web saves that arrive
// without a title.
type PreviewFetcher func(ctx context.Context, pageURL string) (*reader.Preview, error)

// Options tunes the save pipeline.
type Options struct {
	MatchThreshold   float64
	FetchWebPreviews bool
}

// Result is the outcome of one save request.
type Result struct {
	ContentID           string   `json:"content_id"`
	Merged              bool     `json:"merged"`
	Reasons             []string `json:"reasons"`
	CreatorID           string   `json:"creator_id,omitempty"`
	CrossPlatformLinked bool     `json:"cross_platform_linked"`
}

// Service runs the full save pipeline: canonicalize, enrich, resolve the
// creator, fingerprint, find duplicates, link cross-platform variants,
// merge or insert, and record the user's reference.
type Service struct {
	creatorStore CreatorStore
	refStore     ReferenceStore
	auditStore   AuditStore
	updater      ItemUpdater
	matcher      *match.Matcher
	orchestrator *merge.Orchestrator
	fetchPreview PreviewFetcher
	opts         Options
	logger       zerolog.Logger
}

func NewService(
	creatorStore CreatorStore,
	refStore ReferenceStore,
	auditStore AuditStore,
	updater ItemUpdater,
	matcher *match.Matcher,
	orchestrator *merge.Orchestrator,
	fetchPreview PreviewFetcher,
	opts Options,
	logger zerolog.Logger,
) *Service {
	if opts.MatchThreshold <= 0 {
		opts.MatchThreshold = match.DefaultThreshold
	}
	if fetchPreview == nil {
		fetchPreview = func(ctx context.Context, pageURL string) (*reader.Preview, error) {
			return reader.FetchPreview(ctx, pageURL)
		}
	}
	return &Service{
		creatorStore: creatorStore,
		refStore:     refStore,
		auditStore:   auditStore,
		updater:      updater,
		matcher:      matcher,
		orchestrator: orchestrator,
		fetchPreview: fetchPreview,
		opts:         opts,
		logger:       logger,
	}
}

// Save processes one validated save payload and returns the canonical
// content id the user's bookmark ended up pointing at.
func (s *Service) Save(ctx context.Context, payload *payloadschema.SaveItem) (*Result, error) {
	if payload == nil {
		return nil, fmt.Errorf("payload is required")
	}

	item, err := s.buildItem(ctx, payload)
	if err != nil {
		return nil, err
	}

	creatorID, err := s.resolveCreator(ctx, payload, item)
	if err != nil {
		return nil, err
	}

	item.NormalizedTitle = fingerprint.NormalizeTitle(item.Title)
	item.ContentFingerprint = fingerprint.Generate(fingerprint.Source{
		Platform:      item.Platform,
		ExternalID:    item.ExternalID,
		Title:         item.Title,
		CreatorName:   item.CreatorName,
		SeriesName:    item.SeriesName,
		EpisodeNumber: item.EpisodeNumber,
	})

	candidates, err := s.matcher.FindDuplicates(ctx, item)
	if err != nil {
		return nil, fmt.Errorf("find duplicates: %w", err)
	}

	linked, err := s.linkCrossPlatform(ctx, item, candidates)
	if err != nil {
		return nil, err
	}

	incomingID := item.ID
	var topScore float64
	if len(candidates) > 0 {
		topScore = candidates[0].Score
	}

	resolution, err := s.orchestrator.ResolveAndMaybeMerge(ctx, item, candidates, s.opts.MatchThreshold)
	if err != nil {
		return nil, fmt.Errorf("resolve item %s: %w", item.ID, err)
	}

	if s.auditStore != nil {
		duplicateID := ""
		if resolution.Merged {
			duplicateID = incomingID
		}
		if err := s.auditStore.RecordResolution(ctx, resolution, duplicateID, topScore); err != nil {
			// The save already landed; a missing audit row is log-worthy
			// but not fatal.
			s.logger.Warn().Err(err).Str("primary_id", resolution.PrimaryID).Msg("record resolution failed")
		}
	}

	if err := s.refStore.SaveBookmark(ctx, payload.UserID, resolution.PrimaryID, payload.Notes); err != nil {
		return nil, fmt.Errorf("save bookmark: %w", err)
	}
	if payload.FeedSlug != nil && strings.TrimSpace(*payload.FeedSlug) != "" {
		if err := s.refStore.AddFeedEntry(ctx, strings.TrimSpace(*payload.FeedSlug), resolution.PrimaryID); err != nil {
			return nil, fmt.Errorf("add feed entry: %w", err)
		}
	}

	s.logger.Info().
		Str("user_id", payload.UserID).
		Str("content_id", resolution.PrimaryID).
		Bool("merged", resolution.Merged).
		Bool("cross_platform_linked", linked).
		Msg("save processed")

	return &Result{
		ContentID:           resolution.PrimaryID,
		Merged:              resolution.Merged,
		Reasons:             resolution.Reasons,
		CreatorID:           creatorID,
		CrossPlatformLinked: linked,
	}, nil
}

// buildItem shapes the payload into a content item with platform,
// external id, canonical URL, and (for bare web saves) a fetched preview.
func (s *Service) buildItem(ctx context.Context, payload *payloadschema.SaveItem) (*catalog.ContentItem, error) {
	canonResult := canonical.Canonicalize(payload.URL)

	platform := canonResult.Platform
	if payload.Platform != nil && strings.TrimSpace(*payload.Platform) != "" {
		platform = strings.ToLower(strings.TrimSpace(*payload.Platform))
	}
	if platform == "" {
		platform = catalog.PlatformWeb
	}
	if !catalog.IsKnownPlatform(platform) {
		return nil, fmt.Errorf("unknown platform %q", platform)
	}

	externalID := ""
	if payload.ExternalID != nil {
		externalID = strings.TrimSpace(*payload.ExternalID)
	}
	if externalID == "" {
		externalID = deriveExternalID(platform, canonResult.Normalized)
	}
	if externalID == "" {
		externalID = syntheticExternalID(canonResult.Normalized)
	}

	now := globaltime.UTC()
	item := &catalog.ContentItem{
		ID:           catalog.ContentID(platform, externalID),
		Platform:     platform,
		ExternalID:   externalID,
		URL:          strings.TrimSpace(payload.URL),
		CanonicalURL: canonResult.Normalized,
		Title:        derefString(payload.Title),
		Description:  derefString(payload.Description),
		ThumbnailURL: derefString(payload.ThumbnailURL),
		Language:     strings.ToLower(derefString(payload.Language)),
		SeriesName:   derefString(payload.SeriesName),
		EpisodeGUID:  derefString(payload.EpisodeGUID),
		Metadata:     payload.Metadata,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if payload.DurationSeconds != nil {
		item.DurationSeconds = *payload.DurationSeconds
	}
	if payload.EpisodeNumber != nil {
		value := *payload.EpisodeNumber
		item.EpisodeNumber = &value
	}
	if payload.ViewCount != nil {
		item.ViewCount = *payload.ViewCount
	}
	if payload.LikeCount != nil {
		item.LikeCount = *payload.LikeCount
	}
	if payload.CommentCount != nil {
		item.CommentCount = *payload.CommentCount
	}
	if payload.PublishedAt != nil {
		published, err := time.Parse(time.RFC3339, strings.TrimSpace(*payload.PublishedAt))
		if err != nil {
			return nil, fmt.Errorf("parse published_at: %w", err)
		}
		utc := published.UTC()
		item.PublishedAt = &utc
	}

	languageSample := item.Title + " " + item.Description

	if platform == catalog.PlatformWeb && item.Title == "" && s.opts.FetchWebPreviews {
		preview, err := s.fetchPreview(ctx, item.CanonicalURL)
		if err != nil {
			s.logger.Warn().Err(err).Str("url", item.CanonicalURL).Msg("web preview fetch failed")
		} else if preview != nil {
			item.Title = preview.Title
			if item.Description == "" {
				item.Description = preview.Description
			}
			if preview.Text != "" {
				languageSample = preview.Text
			}
		}
	}

	if item.Language == "" {
		item.Language = langdetect.DetectISO6391(languageSample)
	}

	return item, nil
}

func (s *Service) resolveCreator(ctx context.Context, payload *payloadschema.SaveItem, item *catalog.ContentItem) (string, error) {
	if payload.Creator == nil {
		return "", nil
	}

	known, err := s.creatorStore.ListCreators(ctx)
	if err != nil {
		return "", fmt.Errorf("load creators: %w", err)
	}
	cache := creators.NewCache()
	for i := range known {
		cache.Seed(&known[i])
	}

	resolver := creators.NewResolver(cache, nil, s.logger)
	resolved, _, err := resolver.Resolve(creators.RawCreator{
		ID:        payload.Creator.ExternalID,
		Platform:  item.Platform,
		Name:      payload.Creator.Name,
		Handle:    payload.Creator.Handle,
		URL:       payload.Creator.ProfileURL,
		AvatarURL: payload.Creator.AvatarURL,
	})
	if err != nil {
		return "", fmt.Errorf("resolve creator: %w", err)
	}

	if err := s.creatorStore.UpsertCreator(ctx, resolved); err != nil {
		return "", err
	}

	item.CreatorID = resolved.ID
	item.CreatorName = resolved.Name
	return resolved.ID, nil
}

// linkCrossPlatform runs the secondary pass and, when a counterpart is
// found that is not already an actionable same-platform duplicate, writes
// the symmetric link on both sides. The incoming side persists when the
// item is inserted; the counterpart is updated in place.
func (s *Service) linkCrossPlatform(ctx context.Context, item *catalog.ContentItem, candidates []catalog.MatchCandidate) (bool, error) {
	result, err := s.matcher.FindCrossPlatform(ctx, item)
	if err != nil {
		return false, fmt.Errorf("cross-platform pass: %w", err)
	}
	if result == nil {
		return false, nil
	}
	for _, candidate := range candidates {
		// A candidate above the merge threshold absorbs the item outright;
		// the link would be superseded by the merge.
		if candidate.ID == result.Item.ID && candidate.Score >= s.opts.MatchThreshold {
			return false, nil
		}
	}

	now := globaltime.UTC()
	counterpart := result.Item

	changed := false
	if !item.HasMatchFor(counterpart.Platform, counterpart.ExternalID, counterpart.URL) {
		item.CrossPlatformMatches = append(item.CrossPlatformMatches, catalog.CrossPlatformMatch{
			Platform:   counterpart.Platform,
			ExternalID: counterpart.ExternalID,
			URL:        counterpart.URL,
			Confidence: result.Confidence,
			AddedAt:    now,
		})
		changed = true
	}
	if !counterpart.HasMatchFor(item.Platform, item.ExternalID, item.URL) {
		counterpart.CrossPlatformMatches = append(counterpart.CrossPlatformMatches, catalog.CrossPlatformMatch{
			Platform:   item.Platform,
			ExternalID: item.ExternalID,
			URL:        item.URL,
			Confidence: result.Confidence,
			AddedAt:    now,
		})
		counterpart.UpdatedAt = now
		if err := s.updater.UpdateItem(ctx, &counterpart); err != nil {
			return false, fmt.Errorf("update cross-platform counterpart %s: %w", counterpart.ID, err)
		}
		changed = true
	}

	if changed {
		s.logger.Info().
			Str("item_id", item.ID).
			Str("counterpart_id", counterpart.ID).
			Float64("confidence", result.Confidence).
			Msg("linked cross-platform variant")
	}
	return changed, nil
}

// deriveExternalID extracts the platform-native identifier from a
// canonicalized URL.
func deriveExternalID(platform, canonicalURL string) string {
	parsed, err := url.Parse(canonicalURL)
	if err != nil {
		return ""
	}

	switch platform {
	case catalog.PlatformYouTube:
		if id := parsed.Query().Get("v"); id != "" {
			return id
		}
		if id := parsed.Query().Get("list"); id != "" {
			return id
		}
	case catalog.PlatformSpotify:
		if segments := pathSegments(parsed.Path); len(segments) >= 2 {
			return segments[len(segments)-1]
		}
	case catalog.PlatformTwitter:
		segments := pathSegments(parsed.Path)
		for i, segment := range segments {
			if segment == "status" && i+1 < len(segments) {
				return segments[i+1]
			}
		}
		if len(segments) > 0 {
			return strings.Join(segments, "/")
		}
	case catalog.PlatformSubstack:
		if parsed.Host != "" {
			return parsed.Host + parsed.Path
		}
	case catalog.PlatformWeb:
		return canonicalURL
	}
	return ""
}

// syntheticExternalID stands in when no platform-native identifier can
// be parsed from the URL. Hashing the canonical form keeps the derived
// id stable across re-saves of the same page.
func syntheticExternalID(canonicalURL string) string {
	sum := sha256.Sum256([]byte(canonicalURL))
	return hex.EncodeToString(sum[:8])
}

func pathSegments(path string) []string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	segments := make([]string, 0, len(parts))
	for _, part := range parts {
		if part != "" {
			segments = append(segments, part)
		}
	}
	return segments
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return strings.TrimSpace(*value)
}
