package db

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm/clause"

	"horse.fit/stash/internal/globaltime"
)

// BookmarkStore manages user bookmarks and feed entries, the two tables
// that reference content items.
type BookmarkStore struct {
	pool *Pool
}

func NewBookmarkStore(pool *Pool) *BookmarkStore {
	return &BookmarkStore{pool: pool}
}

// SaveBookmark records that a user saved a content item. Saving the same
// item twice, or a duplicate that resolved to an already-saved item, is a
// no-op rather than an error.
func (s *BookmarkStore) SaveBookmark(ctx context.Context, userID, contentID string, notes *string) error {
	row := Bookmark{
		UserID:    userID,
		ContentID: contentID,
		Notes:     notes,
		SavedAt:   globaltime.UTC(),
	}
	err := s.pool.gdb.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "content_id"}},
			DoNothing: true,
		}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("save bookmark %s/%s: %w", userID, contentID, err)
	}
	return nil
}

// BookmarkRef is a bookmark joined with nothing; content resolution is
// the caller's concern.
type BookmarkRef struct {
	BookmarkUUID string
	UserID       string
	ContentID    string
	Notes        *string
	SavedAt      time.Time
}

func (s *BookmarkStore) ListBookmarks(ctx context.Context, userID string, limit int) ([]BookmarkRef, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []Bookmark
	err := s.pool.gdb.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("saved_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list bookmarks for %s: %w", userID, err)
	}
	refs := make([]BookmarkRef, 0, len(rows))
	for _, row := range rows {
		refs = append(refs, BookmarkRef{
			BookmarkUUID: row.BookmarkUUID,
			UserID:       row.UserID,
			ContentID:    row.ContentID,
			Notes:        row.Notes,
			SavedAt:      row.SavedAt,
		})
	}
	return refs, nil
}

// AddFeedEntry places a content item into a named feed, once.
func (s *BookmarkStore) AddFeedEntry(ctx context.Context, feedSlug, contentID string) error {
	row := FeedEntry{
		FeedSlug:  feedSlug,
		ContentID: contentID,
		AddedAt:   globaltime.UTC(),
	}
	err := s.pool.gdb.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "feed_slug"}, {Name: "content_id"}},
			DoNothing: true,
		}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("add feed entry %s/%s: %w", feedSlug, contentID, err)
	}
	return nil
}

func (s *BookmarkStore) ListFeedEntries(ctx context.Context, feedSlug string, limit int) ([]FeedEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []FeedEntry
	err := s.pool.gdb.WithContext(ctx).
		Where("feed_slug = ?", feedSlug).
		Order("added_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list feed entries for %s: %w", feedSlug, err)
	}
	return rows, nil
}
