package post

import (
	"context"
	"time"
)

// Status of a scheduled post. Transitions are scheduled -> publishing ->
// published|failed, and only the claim moves a post out of scheduled.
type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusPublishing Status = "publishing"
	StatusPublished  Status = "published"
	StatusFailed     Status = "failed"
)

// AttachmentType is the closed set of media kinds.
type AttachmentType string

const (
	AttachmentImage AttachmentType = "image"
	AttachmentVideo AttachmentType = "video"
	AttachmentFile  AttachmentType = "file"
)

// ScheduledPost is content queued for a subscription's linked chat.
type ScheduledPost struct {
	ID             string                 `json:"id"`
	SubscriptionID string                 `json:"subscription_id"`
	Title          string                 `json:"title,omitempty"`
	Body           string                 `json:"body"`
	ScheduledFor   time.Time              `json:"scheduled_for"`
	Status         Status                 `json:"status"`
	PostedAt       *time.Time             `json:"posted_at,omitempty"`
	Extra          map[string]interface{} `json:"extra,omitempty"`
}

// Attachment belongs to a post; order is creation order.
type Attachment struct {
	PostID      string         `json:"scheduled_posts_id"`
	Type        AttachmentType `json:"attachment_type"`
	StoragePath string         `json:"storage_path"`
	CreatedAt   time.Time      `json:"created_at"`
}

type Repository interface {
	// ListDue returns ids of scheduled posts due at or before now, oldest first.
	ListDue(ctx context.Context, now time.Time, limit int) ([]string, error)
	// Claim moves one post from scheduled to publishing. It returns nil when
	// another worker already claimed it.
	Claim(ctx context.Context, id string) (*ScheduledPost, error)
	ListAttachments(ctx context.Context, postID string) ([]Attachment, error)
	MarkPublished(ctx context.Context, id string, at time.Time) error
	// MarkFailed merges diag into extra, keeping earlier keys.
	MarkFailed(ctx context.Context, id string, diag map[string]interface{}) error
	// FailStale fails publishing claims last touched before olderThan.
	FailStale(ctx context.Context, olderThan time.Time) (int64, error)
}
