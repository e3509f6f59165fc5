package link

import "time"

// ChatType is the Telegram chat kind.
type ChatType string

const (
	ChatTypePrivate    ChatType = "private"
	ChatTypeGroup      ChatType = "group"
	ChatTypeSupergroup ChatType = "supergroup"
	ChatTypeChannel    ChatType = "channel"
)

// Linkable reports whether a subscription may be linked to this chat kind.
func (t ChatType) Linkable() bool {
	return t == ChatTypeSupergroup || t == ChatTypeChannel
}

// Status is the lifecycle state of a subscription-to-chat link.
type Status string

const (
	StatusPending Status = "pending"
	StatusActive  Status = "active"
	StatusPaused  Status = "paused"
)

// StatusFor derives the link status from the bot's admin flag.
func StatusFor(botIsAdmin bool) Status {
	if botIsAdmin {
		return StatusActive
	}
	return StatusPending
}

// Session is a single-use, time-boxed link token issued by the dashboard.
type Session struct {
	ID             string    `json:"id"`
	SubscriptionID string    `json:"subscription_id"`
	CreatedBy      string    `json:"created_by"`
	Token          string    `json:"token"`
	ExpiresAt      time.Time `json:"expires_at"`
	Consumed       bool      `json:"consumed"`
	CreatedAt      time.Time `json:"created_at"`
}

// Usable reports whether the session can still be redeemed at now.
func (s *Session) Usable(now time.Time) bool {
	return !s.Consumed && now.Before(s.ExpiresAt)
}

// Chat is a resolved Telegram chat ready to be persisted as a link.
type Chat struct {
	ID         int64
	Type       ChatType
	Title      string
	BotIsAdmin bool
	// InviteLink is set only when the bot could create one
	InviteLink *string
}

// ChatLink binds one subscription to one Telegram chat.
type ChatLink struct {
	ID             string    `json:"id"`
	SubscriptionID string    `json:"subscription_id"`
	ChatID         int64     `json:"tg_chat_id"`
	ChatType       ChatType  `json:"tg_chat_type"`
	ChatTitle      string    `json:"tg_chat_title,omitempty"`
	BotIsAdmin     bool      `json:"bot_is_admin"`
	InviteLink     *string   `json:"invite_link,omitempty"`
	Status         Status    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TrackedChat is a chat the bot reports member counts for.
type TrackedChat struct {
	ChatID         int64
	SubscriptionID string
}

// PendingLink correlates a user's later chat selection with the token they
// started the conversation with.
type PendingLink struct {
	UserID    int64     `json:"user_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// WaitingChat remembers a selected chat where the bot is missing or not yet an
// admin, so a later bot status change can finish the link.
type WaitingChat struct {
	ChatID int64 `json:"chat_id"`
	UserID int64 `json:"user_id"`
	// NotifyChatID is where progress is reported (private chat or the group itself)
	NotifyChatID int64     `json:"notify_chat_id"`
	Token        string    `json:"token"`
	ExpiresAt    time.Time `json:"expires_at"`
}
