package chatresolver

import (
	"context"

	"github.com/rs/zerolog/log"

	apperrors "tg-subscriptions-backend/internal/common/errors"
	dl "tg-subscriptions-backend/internal/domain/link"
	"tg-subscriptions-backend/internal/platform/telegram"
)

// ChatAPI is the part of the Bot API the resolver needs.
type ChatAPI interface {
	BotID() int64
	GetChat(ctx context.Context, chatID int64) (*telegram.Chat, error)
	GetChatMember(ctx context.Context, chatID, userID int64) (*telegram.ChatMember, error)
	CreateInviteLink(ctx context.Context, chatID int64, name string) (string, error)
}

// BotStatus is the bot's standing in a chat.
type BotStatus string

const (
	BotNone   BotStatus = "none"
	BotMember BotStatus = "member"
	BotAdmin  BotStatus = "admin"
)

// ClassifyBotStatus maps a Bot API member status.
func ClassifyBotStatus(status string) BotStatus {
	switch status {
	case telegram.StatusCreator, telegram.StatusAdministrator:
		return BotAdmin
	case telegram.StatusMember, telegram.StatusRestricted:
		return BotMember
	default:
		return BotNone
	}
}

// Outcome is the result of a resolution: Resolved, BotMissing or Rejected.
type Outcome interface {
	isOutcome()
}

// Resolved carries a chat ready to be linked.
type Resolved struct {
	Chat      dl.Chat
	BotStatus BotStatus
}

// BotMissing means the user may link the chat but the bot is not in it.
type BotMissing struct {
	ChatID int64
	Type   dl.ChatType
	Title  string
}

// Rejected means the chat cannot be linked by this user.
type Rejected struct {
	Code   apperrors.ErrorCode
	ChatID int64
	Type   dl.ChatType
}

func (Resolved) isOutcome()   {}
func (BotMissing) isOutcome() {}
func (Rejected) isOutcome()   {}

// Err converts the rejection into an AppError.
func (r Rejected) Err() *apperrors.AppError {
	switch r.Code {
	case apperrors.ErrCodeUnsupportedChatType:
		return apperrors.New(r.Code, "only supergroups and channels can be linked").WithDetail("chat_type", string(r.Type))
	default:
		return apperrors.New(r.Code, "user is not an administrator of the chat").WithDetail("chat_id", r.ChatID)
	}
}

// Resolver checks that a user-selected chat can be linked.
type Resolver struct {
	api ChatAPI
}

func NewResolver(api ChatAPI) *Resolver {
	return &Resolver{api: api}
}

// Resolve verifies chat kind, the acting user's admin rights and the bot's
// standing. Only the chat and user lookups are fatal; a failed bot lookup
// counts as BotNone and a failed invite link is left empty.
func (r *Resolver) Resolve(ctx context.Context, chatID, actingUserID int64, inviteName string) (Outcome, error) {
	chat, err := r.api.GetChat(ctx, chatID)
	if err != nil {
		return nil, apperrors.NewTelegramAPIError("getChat", err)
	}
	chatType := dl.ChatType(chat.Type)
	if !chatType.Linkable() {
		return Rejected{Code: apperrors.ErrCodeUnsupportedChatType, ChatID: chatID, Type: chatType}, nil
	}

	user, err := r.api.GetChatMember(ctx, chatID, actingUserID)
	if err != nil {
		return nil, apperrors.NewTelegramAPIError("getChatMember", err)
	}
	if !user.IsAdmin() {
		return Rejected{Code: apperrors.ErrCodeUserNotAdmin, ChatID: chatID, Type: chatType}, nil
	}

	status := BotNone
	canInvite := false
	bot, err := r.api.GetChatMember(ctx, chatID, r.api.BotID())
	if err != nil {
		log.Debug().Err(err).Int64("chat_id", chatID).Msg("bot membership lookup failed, assuming absent")
	} else {
		status = ClassifyBotStatus(bot.Status)
		canInvite = bot.CanInviteUsers || bot.Status == telegram.StatusCreator
	}

	if status == BotNone {
		return BotMissing{ChatID: chatID, Type: chatType, Title: chat.Title}, nil
	}

	resolved := dl.Chat{
		ID:         chatID,
		Type:       chatType,
		Title:      chat.Title,
		BotIsAdmin: status == BotAdmin,
	}
	if resolved.BotIsAdmin && canInvite {
		link, err := r.api.CreateInviteLink(ctx, chatID, inviteName)
		if err != nil {
			log.Warn().Err(err).Int64("chat_id", chatID).Msg("invite link creation failed")
		} else if link != "" {
			resolved.InviteLink = &link
		}
	}
	return Resolved{Chat: resolved, BotStatus: status}, nil
}
