package db

import (
	"context"
	"encoding/json"
	"fmt"

	"horse.fit/stash/internal/catalog"
	"horse.fit/stash/internal/match"
	"horse.fit/stash/internal/merge"
)

// ContentStore adapts the pool to the engine's lookup and mutation
// contracts. All row-shape handling lives here; the engine only ever
// sees catalog.ContentItem.
type ContentStore struct {
	pool *Pool
}

func NewContentStore(pool *Pool) *ContentStore {
	return &ContentStore{pool: pool}
}

func (s *ContentStore) GetItem(ctx context.Context, id string) (*catalog.ContentItem, error) {
	var row ContentItem
	err := s.pool.gdb.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if err != nil {
		if IsNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get content item %s: %w", id, err)
	}
	item, err := contentRowToDomain(row)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *ContentStore) InsertItem(ctx context.Context, item *catalog.ContentItem) error {
	row, err := contentDomainToRow(item)
	if err != nil {
		return err
	}
	if err := s.pool.gdb.WithContext(ctx).Create(&row).Error; err != nil {
		if IsUniqueViolation(err) {
			return &merge.ErrUniqueViolation{Platform: item.Platform, ExternalID: item.ExternalID}
		}
		return fmt.Errorf("insert content item %s: %w", item.ID, err)
	}
	return nil
}

func (s *ContentStore) UpdateItem(ctx context.Context, item *catalog.ContentItem) error {
	row, err := contentDomainToRow(item)
	if err != nil {
		return err
	}
	res := s.pool.gdb.WithContext(ctx).
		Model(&ContentItem{}).
		Where("id = ?", row.ID).
		Select("*").
		Omit("id", "created_at").
		Updates(&row)
	if res.Error != nil {
		return fmt.Errorf("update content item %s: %w", item.ID, res.Error)
	}
	return nil
}

// ReassignReferences moves every bookmark and feed-entry row from one
// content id to another. Rows whose target already carries an identical
// reference are dropped instead of moved, so the unique constraints
// hold and a retried rewire finds nothing left to do.
func (s *ContentStore) ReassignReferences(ctx context.Context, fromID, toID string) error {
	tx, err := s.pool.BeginTx(ctx, TxOptions{})
	if err != nil {
		return fmt.Errorf("begin rewire tx: %w", err)
	}

	statements := []struct {
		label string
		sql   string
	}{
		{
			label: "drop colliding bookmarks",
			sql: `
DELETE FROM stash.bookmarks b
WHERE b.content_id = $1
  AND EXISTS (
	SELECT 1 FROM stash.bookmarks other
	WHERE other.user_id = b.user_id
	  AND other.content_id = $2
)`,
		},
		{
			label: "rewire bookmarks",
			sql:   `UPDATE stash.bookmarks SET content_id = $2 WHERE content_id = $1`,
		},
		{
			label: "drop colliding feed entries",
			sql: `
DELETE FROM stash.feed_entries fe
WHERE fe.content_id = $1
  AND EXISTS (
	SELECT 1 FROM stash.feed_entries other
	WHERE other.feed_slug = fe.feed_slug
	  AND other.content_id = $2
)`,
		},
		{
			label: "rewire feed entries",
			sql:   `UPDATE stash.feed_entries SET content_id = $2 WHERE content_id = $1`,
		},
	}

	for _, stmt := range statements {
		if _, err := tx.Exec(ctx, stmt.sql, fromID, toID); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("%s %s -> %s: %w", stmt.label, fromID, toID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("commit rewire tx: %w", err)
	}
	return nil
}

func (s *ContentStore) DeleteItem(ctx context.Context, id string) error {
	if err := s.pool.gdb.WithContext(ctx).Where("id = ?", id).Delete(&ContentItem{}).Error; err != nil {
		return fmt.Errorf("delete content item %s: %w", id, err)
	}
	return nil
}

func (s *ContentStore) ByFingerprint(ctx context.Context, fingerprint string) ([]catalog.ContentItem, error) {
	if fingerprint == "" {
		return nil, nil
	}
	var rows []ContentItem
	err := s.pool.gdb.WithContext(ctx).
		Where("content_fingerprint = ?", fingerprint).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query by fingerprint: %w", err)
	}
	return contentRowsToDomain(rows)
}

func (s *ContentStore) ByPlatformID(ctx context.Context, platform, externalID string) (*catalog.ContentItem, error) {
	var row ContentItem
	err := s.pool.gdb.WithContext(ctx).
		Where("platform = ? AND external_id = ?", platform, externalID).
		Take(&row).Error
	if err != nil {
		if IsNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("query by platform id: %w", err)
	}
	item, err := contentRowToDomain(row)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *ContentStore) ByTitleCreator(ctx context.Context, normalizedTitle, creatorName string) ([]catalog.ContentItem, error) {
	if normalizedTitle == "" || creatorName == "" {
		return nil, nil
	}
	var rows []ContentItem
	err := s.pool.gdb.WithContext(ctx).
		Where("normalized_title = ? AND creator_name = ?", normalizedTitle, creatorName).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query by title and creator: %w", err)
	}
	return contentRowsToDomain(rows)
}

func (s *ContentStore) ByAnyURL(ctx context.Context, urls []string) ([]catalog.ContentItem, error) {
	if len(urls) == 0 {
		return nil, nil
	}
	var rows []ContentItem
	err := s.pool.gdb.WithContext(ctx).
		Where("url IN ? OR canonical_url IN ?", urls, urls).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query by url: %w", err)
	}
	return contentRowsToDomain(rows)
}

func (s *ContentStore) ListByPlatform(ctx context.Context, platform string, limit int) ([]catalog.ContentItem, error) {
	query := s.pool.gdb.WithContext(ctx).
		Where("platform = ?", platform).
		Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []ContentItem
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list %s items: %w", platform, err)
	}
	return contentRowsToDomain(rows)
}

// ContentListOptions controls catalog listing for the CLI and API.
type ContentListOptions struct {
	Platform string
	Limit    int
}

func (s *ContentStore) ListItems(ctx context.Context, opts ContentListOptions) ([]catalog.ContentItem, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	query := s.pool.gdb.WithContext(ctx).Order("created_at DESC").Limit(limit)
	if opts.Platform != "" {
		query = query.Where("platform = ?", opts.Platform)
	}
	var rows []ContentItem
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list content items: %w", err)
	}
	return contentRowsToDomain(rows)
}

func contentRowsToDomain(rows []ContentItem) ([]catalog.ContentItem, error) {
	items := make([]catalog.ContentItem, 0, len(rows))
	for _, row := range rows {
		item, err := contentRowToDomain(row)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func contentRowToDomain(row ContentItem) (catalog.ContentItem, error) {
	item := catalog.ContentItem{
		ID:                 row.ID,
		Platform:           row.Platform,
		ExternalID:         row.ExternalID,
		URL:                row.URL,
		CanonicalURL:       row.CanonicalURL,
		Title:              row.Title,
		NormalizedTitle:    row.NormalizedTitle,
		Description:        row.Description,
		ThumbnailURL:       row.ThumbnailURL,
		Language:           row.Language,
		DurationSeconds:    row.DurationSeconds,
		PublishedAt:        row.PublishedAt,
		CreatorID:          row.CreatorID,
		CreatorName:        row.CreatorName,
		SeriesName:         row.SeriesName,
		EpisodeNumber:      row.EpisodeNumber,
		EpisodeGUID:        row.EpisodeGUID,
		ContentFingerprint: row.ContentFingerprint,
		ViewCount:          row.ViewCount,
		LikeCount:          row.LikeCount,
		CommentCount:       row.CommentCount,
		CreatedAt:          row.CreatedAt,
		UpdatedAt:          row.UpdatedAt,
	}

	if len(row.Metadata) > 0 {
		if err := json.Unmarshal(row.Metadata, &item.Metadata); err != nil {
			return catalog.ContentItem{}, fmt.Errorf("decode metadata for %s: %w", row.ID, err)
		}
	}
	if len(row.CrossPlatformMatches) > 0 {
		if err := json.Unmarshal(row.CrossPlatformMatches, &item.CrossPlatformMatches); err != nil {
			return catalog.ContentItem{}, fmt.Errorf("decode cross-platform matches for %s: %w", row.ID, err)
		}
	}
	return item, nil
}

func contentDomainToRow(item *catalog.ContentItem) (ContentItem, error) {
	row := ContentItem{
		ID:                 item.ID,
		Platform:           item.Platform,
		ExternalID:         item.ExternalID,
		URL:                item.URL,
		CanonicalURL:       item.CanonicalURL,
		Title:              item.Title,
		NormalizedTitle:    item.NormalizedTitle,
		Description:        item.Description,
		ThumbnailURL:       item.ThumbnailURL,
		Language:           item.Language,
		DurationSeconds:    item.DurationSeconds,
		PublishedAt:        item.PublishedAt,
		CreatorID:          item.CreatorID,
		CreatorName:        item.CreatorName,
		SeriesName:         item.SeriesName,
		EpisodeNumber:      item.EpisodeNumber,
		EpisodeGUID:        item.EpisodeGUID,
		ContentFingerprint: item.ContentFingerprint,
		ViewCount:          item.ViewCount,
		LikeCount:          item.LikeCount,
		CommentCount:       item.CommentCount,
		CreatedAt:          item.CreatedAt,
		UpdatedAt:          item.UpdatedAt,
	}

	if len(item.Metadata) > 0 {
		encoded, err := json.Marshal(item.Metadata)
		if err != nil {
			return ContentItem{}, fmt.Errorf("encode metadata for %s: %w", item.ID, err)
		}
		row.Metadata = encoded
	}
	if len(item.CrossPlatformMatches) > 0 {
		encoded, err := json.Marshal(item.CrossPlatformMatches)
		if err != nil {
			return ContentItem{}, fmt.Errorf("encode cross-platform matches for %s: %w", item.ID, err)
		}
		row.CrossPlatformMatches = encoded
	}
	return row, nil
}

var (
	_ match.Lookup = (*ContentStore)(nil)
	_ merge.Store  = (*ContentStore)(nil)
)
