package db

import (
	"encoding/json"
	"time"
)

// ContentItem maps stash.content_items.
type ContentItem struct {
	ID                   string          `gorm:"column:id;type:text;primaryKey"`
	Platform             string          `gorm:"column:platform;type:text;not null;uniqueIndex:uq_content_platform_external,priority:1"`
	ExternalID           string          `gorm:"column:external_id;type:text;not null;uniqueIndex:uq_content_platform_external,priority:2"`
	URL                  string          `gorm:"column:url;type:text;not null;default:''"`
	CanonicalURL         string          `gorm:"column:canonical_url;type:text;not null;default:''"`
	Title                string          `gorm:"column:title;type:text;not null;default:''"`
	NormalizedTitle      string          `gorm:"column:normalized_title;type:text;not null;default:''"`
	Description          string          `gorm:"column:description;type:text;not null;default:''"`
	ThumbnailURL         string          `gorm:"column:thumbnail_url;type:text;not null;default:''"`
	Language             string          `gorm:"column:language;type:text;not null;default:''"`
	DurationSeconds      int             `gorm:"column:duration_seconds;type:integer;not null;default:0"`
	PublishedAt          *time.Time      `gorm:"column:published_at;type:timestamptz"`
	CreatorID            string          `gorm:"column:creator_id;type:text;not null;default:''"`
	CreatorName          string          `gorm:"column:creator_name;type:text;not null;default:''"`
	SeriesName           string          `gorm:"column:series_name;type:text;not null;default:''"`
	EpisodeNumber        *int            `gorm:"column:episode_number;type:integer"`
	EpisodeGUID          string          `gorm:"column:episode_guid;type:text;not null;default:''"`
	ContentFingerprint   string          `gorm:"column:content_fingerprint;type:text;not null;default:'';index:idx_content_fingerprint"`
	ViewCount            int64           `gorm:"column:view_count;type:bigint;not null;default:0"`
	LikeCount            int64           `gorm:"column:like_count;type:bigint;not null;default:0"`
	CommentCount         int64           `gorm:"column:comment_count;type:bigint;not null;default:0"`
	Metadata             json.RawMessage `gorm:"column:metadata;type:jsonb"`
	CrossPlatformMatches json.RawMessage `gorm:"column:cross_platform_matches;type:jsonb"`
	CreatedAt            time.Time       `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt            time.Time       `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (ContentItem) TableName() string { return "stash.content_items" }

// Creator maps stash.creators.
type Creator struct {
	ID            string          `gorm:"column:id;type:text;primaryKey"`
	Name          string          `gorm:"column:name;type:text;not null"`
	Handle        string          `gorm:"column:handle;type:text;not null;default:''"`
	URL           string          `gorm:"column:url;type:text;not null;default:''"`
	AvatarURL     string          `gorm:"column:avatar_url;type:text;not null;default:''"`
	Platforms     json.RawMessage `gorm:"column:platforms;type:jsonb"`
	ExternalLinks json.RawMessage `gorm:"column:external_links;type:jsonb"`
	CreatedAt     time.Time       `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (Creator) TableName() string { return "stash.creators" }

// Bookmark maps stash.bookmarks, a foreign reference onto content items.
type Bookmark struct {
	BookmarkID   int64     `gorm:"column:bookmark_id;primaryKey;autoIncrement"`
	BookmarkUUID string    `gorm:"column:bookmark_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	UserID       string    `gorm:"column:user_id;type:text;not null;uniqueIndex:uq_bookmark_user_content,priority:1"`
	ContentID    string    `gorm:"column:content_id;type:text;not null;uniqueIndex:uq_bookmark_user_content,priority:2;index:idx_bookmark_content"`
	Notes        *string   `gorm:"column:notes;type:text"`
	SavedAt      time.Time `gorm:"column:saved_at;type:timestamptz;not null;default:now()"`
}

func (Bookmark) TableName() string { return "stash.bookmarks" }

// FeedEntry maps stash.feed_entries, the second table holding foreign
// references onto content items.
type FeedEntry struct {
	FeedEntryID int64     `gorm:"column:feed_entry_id;primaryKey;autoIncrement"`
	FeedSlug    string    `gorm:"column:feed_slug;type:text;not null;uniqueIndex:uq_feed_entry,priority:1"`
	ContentID   string    `gorm:"column:content_id;type:text;not null;uniqueIndex:uq_feed_entry,priority:2;index:idx_feed_entry_content"`
	AddedAt     time.Time `gorm:"column:added_at;type:timestamptz;not null;default:now()"`
}

func (FeedEntry) TableName() string { return "stash.feed_entries" }

// MergeEvent maps stash.merge_events, the audit trail of resolution
// decisions.
type MergeEvent struct {
	MergeEventID int64           `gorm:"column:merge_event_id;primaryKey;autoIncrement"`
	PrimaryID    string          `gorm:"column:primary_id;type:text;not null"`
	DuplicateID  *string         `gorm:"column:duplicate_id;type:text"`
	Merged       bool            `gorm:"column:merged;type:boolean;not null"`
	Score        *float64        `gorm:"column:score;type:double precision"`
	Reasons      json.RawMessage `gorm:"column:reasons;type:jsonb"`
	CreatedAt    time.Time       `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (MergeEvent) TableName() string { return "stash.merge_events" }

func autoMigrateModels() []any {
	return []any{
		&ContentItem{},
		&Creator{},
		&Bookmark{},
		&FeedEntry{},
		&MergeEvent{},
	}
}
