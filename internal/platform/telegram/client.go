package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"
)

// Chat member statuses reported by the Bot API.
const (
	StatusCreator       = "creator"
	StatusAdministrator = "administrator"
	StatusMember        = "member"
	StatusRestricted    = "restricted"
	StatusLeft          = "left"
	StatusKicked        = "kicked"
)

// RPSError is returned when Telegram answers 429.
type RPSError struct {
	Method     string
	RetryAfter int
}

func (e *RPSError) Error() string {
	return fmt.Sprintf("telegram %s: too many requests, retry after %ds", e.Method, e.RetryAfter)
}

type Chat struct {
	ID    int64
	Type  string
	Title string
}

type ChatMember struct {
	UserID         int64
	Status         string
	CanInviteUsers bool
	CanManageChat  bool
}

// IsAdmin reports creator or administrator status.
func (m ChatMember) IsAdmin() bool {
	return m.Status == StatusCreator || m.Status == StatusAdministrator
}

// Client is a rate-limited Bot API client.
type Client struct {
	api     *tgbotapi.BotAPI
	limiter *rate.Limiter
}

// New connects to the Bot API and verifies the token with getMe.
func New(token string, sendRPS float64, debug bool) (*Client, error) {
	return NewWithEndpoint(token, tgbotapi.APIEndpoint, sendRPS, debug)
}

// NewWithEndpoint is New against a custom API endpoint format
// ("https://host/bot%s/%s").
func NewWithEndpoint(token, endpoint string, sendRPS float64, debug bool) (*Client, error) {
	api, err := tgbotapi.NewBotAPIWithAPIEndpoint(token, endpoint)
	if err != nil {
		return nil, fmt.Errorf("telegram getMe: %w", err)
	}
	api.Debug = debug

	limit, burst := rate.Inf, 1
	if sendRPS > 0 {
		limit = rate.Limit(sendRPS)
		burst = int(sendRPS)
		if burst < 1 {
			burst = 1
		}
	}
	return &Client{api: api, limiter: rate.NewLimiter(limit, burst)}, nil
}

func (c *Client) BotID() int64 { return c.api.Self.ID }

func (c *Client) Username() string { return c.api.Self.UserName }

func (c *Client) GetChat(ctx context.Context, chatID int64) (*Chat, error) {
	chat, err := c.api.GetChat(tgbotapi.ChatInfoConfig{ChatConfig: tgbotapi.ChatConfig{ChatID: chatID}})
	if err != nil {
		return nil, wrap("getChat", err)
	}
	return &Chat{ID: chat.ID, Type: chat.Type, Title: chat.Title}, nil
}

func (c *Client) GetChatMember(ctx context.Context, chatID, userID int64) (*ChatMember, error) {
	m, err := c.api.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{ChatID: chatID, UserID: userID},
	})
	if err != nil {
		return nil, wrap("getChatMember", err)
	}
	return &ChatMember{
		UserID:         userID,
		Status:         m.Status,
		CanInviteUsers: m.CanInviteUsers,
		CanManageChat:  m.CanManageChat,
	}, nil
}

func (c *Client) GetMemberCount(ctx context.Context, chatID int64) (int, error) {
	n, err := c.api.GetChatMembersCount(tgbotapi.ChatMemberCountConfig{ChatConfig: tgbotapi.ChatConfig{ChatID: chatID}})
	if err != nil {
		return 0, wrap("getChatMemberCount", err)
	}
	return n, nil
}

// CreateInviteLink creates a named, non-expiring invite link.
func (c *Client) CreateInviteLink(ctx context.Context, chatID int64, name string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	resp, err := c.api.Request(tgbotapi.CreateChatInviteLinkConfig{
		ChatConfig: tgbotapi.ChatConfig{ChatID: chatID},
		Name:       name,
	})
	if err != nil {
		return "", wrap("createChatInviteLink", err)
	}
	var link tgbotapi.ChatInviteLink
	if err := json.Unmarshal(resp.Result, &link); err != nil {
		return "", fmt.Errorf("decode invite link: %w", err)
	}
	return link.InviteLink, nil
}

func (c *Client) BanChatMember(ctx context.Context, chatID, userID int64) error {
	return c.request(ctx, "banChatMember", tgbotapi.BanChatMemberConfig{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{ChatID: chatID, UserID: userID},
	})
}

// UnbanChatMember lifts a ban so the user may rejoin after renewing.
func (c *Client) UnbanChatMember(ctx context.Context, chatID, userID int64) error {
	return c.request(ctx, "unbanChatMember", tgbotapi.UnbanChatMemberConfig{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{ChatID: chatID, UserID: userID},
		OnlyIfBanned:     true,
	})
}

func (c *Client) request(ctx context.Context, method string, cfg tgbotapi.Chattable) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	if _, err := c.api.Request(cfg); err != nil {
		return wrap(method, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method string, cfg tgbotapi.Chattable) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	if _, err := c.api.Send(cfg); err != nil {
		return wrap(method, err)
	}
	return nil
}

// SetWebhook registers url for update delivery.
func (c *Client) SetWebhook(url string) error {
	wh, err := tgbotapi.NewWebhook(url)
	if err != nil {
		return err
	}
	if _, err := c.api.Request(wh); err != nil {
		return wrap("setWebhook", err)
	}
	return nil
}

func wrap(method string, err error) error {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == 429 {
		return &RPSError{Method: method, RetryAfter: apiErr.RetryAfter}
	}
	return fmt.Errorf("telegram %s: %w", method, err)
}
