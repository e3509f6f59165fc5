package http

import "time"

// CreateLinkSessionRequest is sent by the dashboard when the owner clicks
// "Open Telegram".
type CreateLinkSessionRequest struct {
	SubscriptionID string `json:"subscriptionId" validate:"required,uuid" example:"4f0c6e1c-7c55-4d53-9a0e-2f8f1f7f3b9a"`
	UserID         string `json:"userId" validate:"required,max=128" example:"user_2b7c"`
}

// LinkSessionResponse carries the deep links for a new session.
type LinkSessionResponse struct {
	SessionID      string    `json:"sessionId" example:"0b8e3d5c-35c5-4a4e-a8a3-6d1cf7e0b0f1"`
	Token          string    `json:"token" example:"9f1c0a7e5b2d4c6f8a1b3d5e7f9a0c2e"`
	StartLink      string    `json:"startLink" example:"https://t.me/subs_bot?start=9f1c0a7e5b2d4c6f8a1b3d5e7f9a0c2e"`
	StartGroupLink string    `json:"startGroupLink"`
	ExpiresAt      time.Time `json:"expiresAt"`
}

type tokenURI struct {
	Token string `uri:"token" json:"token" validate:"required,len=32,hexadecimal"`
}

// DailyCountsResponse summarises a snapshot run.
type DailyCountsResponse struct {
	Processed int `json:"processed" example:"12"`
	Failed    int `json:"failed" example:"0"`
}

// StatusResponse is returned by the probes.
type StatusResponse struct {
	Status    string            `json:"status" example:"ok"`
	Service   string            `json:"service,omitempty" example:"tg-subscriptions-backend"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}
