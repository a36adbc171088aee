package catalog

import (
	"strings"
	"time"
)

// Platform identifies the external service a content item or creator
// originates from.
const (
	PlatformYouTube  = "youtube"
	PlatformSpotify  = "spotify"
	PlatformTwitter  = "twitter"
	PlatformSubstack = "substack"
	PlatformWeb      = "web"
)

// KnownPlatforms lists every platform tag the engine recognizes.
func KnownPlatforms() []string {
	return []string{
		PlatformYouTube,
		PlatformSpotify,
		PlatformTwitter,
		PlatformSubstack,
		PlatformWeb,
	}
}

// IsKnownPlatform reports whether tag is one of the recognized platforms.
func IsKnownPlatform(tag string) bool {
	switch tag {
	case PlatformYouTube, PlatformSpotify, PlatformTwitter, PlatformSubstack, PlatformWeb:
		return true
	default:
		return false
	}
}

// CrossPlatformMatch records one platform variant known to represent the
// same content as the item that carries it. An item never carries an entry
// for its own platform.
type CrossPlatformMatch struct {
	Platform   string    `json:"platform"`
	ExternalID string    `json:"external_id"`
	URL        string    `json:"url,omitempty"`
	Confidence float64   `json:"confidence"`
	AddedAt    time.Time `json:"added_at"`
}

// ContentItem is one canonical piece of external content.
type ContentItem struct {
	ID                   string
	Platform             string
	ExternalID           string
	URL                  string
	CanonicalURL         string
	Title                string
	NormalizedTitle      string
	Description          string
	ThumbnailURL         string
	Language             string
	DurationSeconds      int
	PublishedAt          *time.Time
	CreatorID            string
	CreatorName          string
	SeriesName           string
	EpisodeNumber        *int
	EpisodeGUID          string
	ContentFingerprint   string
	ViewCount            int64
	LikeCount            int64
	CommentCount         int64
	Metadata             map[string]any
	CrossPlatformMatches []CrossPlatformMatch
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// ContentID derives the stable item id assigned at first insertion.
func ContentID(platform, externalID string) string {
	return strings.TrimSpace(platform) + "-" + strings.TrimSpace(externalID)
}

// HasMatchFor reports whether the item already links the given platform
// variant, identified by external id or URL.
func (c *ContentItem) HasMatchFor(platform, externalID, url string) bool {
	if c == nil {
		return false
	}
	for _, m := range c.CrossPlatformMatches {
		if m.Platform != platform {
			continue
		}
		if externalID != "" && m.ExternalID == externalID {
			return true
		}
		if url != "" && m.URL == url {
			return true
		}
	}
	return false
}

// ExternalLink is a labeled URL attached to a creator profile.
type ExternalLink struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

// Creator is the canonical identity for an author, channel, or show
// across platforms. Identity is append-only: once two raw creators have
// been clustered there is no unmerge.
type Creator struct {
	ID            string
	Name          string
	Handle        string
	URL           string
	AvatarURL     string
	Platforms     []string
	ExternalLinks []ExternalLink
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HasPlatform reports whether the creator is already known on platform.
func (c *Creator) HasPlatform(platform string) bool {
	if c == nil {
		return false
	}
	for _, p := range c.Platforms {
		if p == platform {
			return true
		}
	}
	return false
}

// MatchCandidate is one scored duplicate hypothesis produced by the
// matcher. Candidates are never mutated after creation.
type MatchCandidate struct {
	ID      string
	Score   float64
	Reasons []string
}
