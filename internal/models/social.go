package models

import (
	"time"
)

// ScheduledPost lifecycle states.
const (
	PostPending   = "pending"
	PostPosting   = "posting"
	PostPosted    = "posted"
	PostFailed    = "failed"
	PostCancelled = "cancelled"
)

// ScheduledPost is a piece of content queued for publication on a social
// platform at a specific time. Only pending posts are eligible for dispatch;
// a user may cancel a pending post, which excludes it from dispatch.
type ScheduledPost struct {
	ID                 string     `json:"id"`
	UserID             string     `json:"user_id"`
	AssetID            string     `json:"asset_id"`
	SocialConnectionID string     `json:"social_connection_id"`
	Platform           string     `json:"platform"`
	Content            string     `json:"content"`
	MediaURLs          []string   `json:"media_urls"`
	ScheduledFor       time.Time  `json:"scheduled_for"`
	Status             string     `json:"status"`
	PlatformPostID     *string    `json:"platform_post_id,omitempty"`
	Error              *string    `json:"error,omitempty"`
	PostedAt           *time.Time `json:"posted_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`

	// Connection is populated on dispatcher reads so publishing does not
	// need a second round trip per post.
	Connection *SocialConnection `json:"-"`
}

// SocialConnection holds a user's OAuth tokens for one platform. At most one
// connection exists per (user, platform); callbacks upsert on that pair.
type SocialConnection struct {
	ID             string         `json:"id"`
	UserID         string         `json:"user_id"`
	Platform       string         `json:"platform"`
	PlatformUserID string         `json:"platform_user_id"`
	Username       string         `json:"username"`
	AccessToken    string         `json:"-"`
	RefreshToken   *string        `json:"-"`
	TokenExpiry    *time.Time     `json:"token_expiry,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// ContentSummary is the analysis record produced by a summarize job.
type ContentSummary struct {
	ID              string    `json:"id"`
	CampaignID      string    `json:"campaign_id"`
	Summary         string    `json:"summary"`
	KeyPoints       []string  `json:"key_points"`
	Hooks           []string  `json:"hooks"`
	ChunksProcessed int       `json:"chunks_processed"`
	CreatedAt       time.Time `json:"created_at"`
}

// GeneratedAsset is one channel-specific piece of content produced by a
// generate_asset job.
type GeneratedAsset struct {
	ID         string    `json:"id"`
	CampaignID string    `json:"campaign_id"`
	Channel    string    `json:"channel"`
	Content    string    `json:"content"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

// EngagementMetrics is a point-in-time engagement snapshot fetched from a
// platform API.
type EngagementMetrics struct {
	Impressions int `json:"impressions"`
	Engagements int `json:"engagements"`
	Likes       int `json:"likes"`
	Shares      int `json:"shares"`
	Comments    int `json:"comments"`
	Clicks      int `json:"clicks"`
}

// PostMetrics is one append-only metrics row for a posted scheduled post.
// Rows are never overwritten; repeated collection builds a time series.
type PostMetrics struct {
	ID              string    `json:"id"`
	ScheduledPostID string    `json:"scheduled_post_id"`
	EngagementMetrics
	EngagementRate float64   `json:"engagement_rate"`
	CollectedAt    time.Time `json:"collected_at"`
}
