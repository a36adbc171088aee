package httpapi

import (
	"time"

	"horse.fit/stash/internal/catalog"
)

type itemResponse struct {
	ContentID            string                       `json:"content_id"`
	Platform             string                       `json:"platform"`
	ExternalID           string                       `json:"external_id"`
	URL                  string                       `json:"url,omitempty"`
	CanonicalURL         string                       `json:"canonical_url,omitempty"`
	Title                string                       `json:"title,omitempty"`
	Description          string                       `json:"description,omitempty"`
	ThumbnailURL         string                       `json:"thumbnail_url,omitempty"`
	Language             string                       `json:"language,omitempty"`
	DurationSeconds      int                          `json:"duration_seconds,omitempty"`
	PublishedAt          *time.Time                   `json:"published_at,omitempty"`
	CreatorID            string                       `json:"creator_id,omitempty"`
	CreatorName          string                       `json:"creator_name,omitempty"`
	SeriesName           string                       `json:"series_name,omitempty"`
	EpisodeNumber        *int                         `json:"episode_number,omitempty"`
	ViewCount            int64                        `json:"view_count,omitempty"`
	LikeCount            int64                        `json:"like_count,omitempty"`
	CommentCount         int64                        `json:"comment_count,omitempty"`
	Metadata             map[string]any               `json:"metadata,omitempty"`
	CrossPlatformMatches []catalog.CrossPlatformMatch `json:"cross_platform_matches,omitempty"`
	CreatedAt            time.Time                    `json:"created_at"`
	UpdatedAt            time.Time                    `json:"updated_at"`
}

func buildItemResponse(item catalog.ContentItem) itemResponse {
	return itemResponse{
		ContentID:            item.ID,
		Platform:             item.Platform,
		ExternalID:           item.ExternalID,
		URL:                  item.URL,
		CanonicalURL:         item.CanonicalURL,
		Title:                item.Title,
		Description:          item.Description,
		ThumbnailURL:         item.ThumbnailURL,
		Language:             item.Language,
		DurationSeconds:      item.DurationSeconds,
		PublishedAt:          item.PublishedAt,
		CreatorID:            item.CreatorID,
		CreatorName:          item.CreatorName,
		SeriesName:           item.SeriesName,
		EpisodeNumber:        item.EpisodeNumber,
		ViewCount:            item.ViewCount,
		LikeCount:            item.LikeCount,
		CommentCount:         item.CommentCount,
		Metadata:             item.Metadata,
		CrossPlatformMatches: item.CrossPlatformMatches,
		CreatedAt:            item.CreatedAt,
		UpdatedAt:            item.UpdatedAt,
	}
}

func buildItemResponses(items []catalog.ContentItem) []itemResponse {
	responses := make([]itemResponse, 0, len(items))
	for _, item := range items {
		responses = append(responses, buildItemResponse(item))
	}
	return responses
}
