package bot

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	dl "tg-subscriptions-backend/internal/domain/link"
	"tg-subscriptions-backend/internal/platform/telegram"
	"tg-subscriptions-backend/internal/service/linking"
	"tg-subscriptions-backend/internal/service/membership"
)

const (
	msgHelp = "This bot links your subscription to a Telegram group or channel.\n\n" +
		"1. Open the dashboard and click “Open Telegram”.\n" +
		"2. Pick the chat your subscribers should join.\n" +
		"3. Make the bot an administrator of that chat.\n\n" +
		"Commands: /help, /ping"
	msgPong    = "pong 🏓"
	msgUnknown = "Unknown command. Send /help to see what I can do."
)

// Linking is the chat-linking conversation.
type Linking interface {
	HandleStart(ctx context.Context, ev linking.StartEvent) linking.State
	HandleChatShared(ctx context.Context, ev linking.ChatSharedEvent) linking.State
	HandleBotStatus(ctx context.Context, ev linking.BotStatusEvent) linking.State
}

// Members applies chat_member updates to counters.
type Members interface {
	HandleMemberUpdate(ctx context.Context, ev membership.MemberEvent) (membership.Transition, error)
}

type Replier interface {
	SendText(ctx context.Context, chatID int64, text string) error
}

// Router turns raw Bot API updates into linking and membership events.
type Router struct {
	linking Linking
	members Members
	reply   Replier
	log     zerolog.Logger
}

func NewRouter(l Linking, m Members, reply Replier) *Router {
	return &Router{
		linking: l,
		members: m,
		reply:   reply,
		log:     log.With().Str("component", "bot").Logger(),
	}
}

// HandleRaw decodes and dispatches one update. Undecodable updates are
// logged and dropped.
func (r *Router) HandleRaw(ctx context.Context, raw []byte) {
	u, err := telegram.DecodeUpdate(raw)
	if err != nil {
		r.log.Warn().Err(err).Msg("drop undecodable update")
		return
	}
	r.Handle(ctx, u)
}

func (r *Router) Handle(ctx context.Context, u *telegram.Update) {
	switch {
	case u.ChatShared != nil && u.Message != nil && u.Message.From != nil:
		state := r.linking.HandleChatShared(ctx, linking.ChatSharedEvent{
			UserID:       u.Message.From.ID,
			ChatID:       u.Message.Chat.ID,
			SharedChatID: u.ChatShared.ChatID,
		})
		r.log.Info().Int64("user_id", u.Message.From.ID).Int64("chat_id", u.ChatShared.ChatID).Str("state", string(state)).Msg("chat shared")
	case u.Message != nil:
		r.handleMessage(ctx, u.Message)
	case u.MyChatMember != nil:
		r.handleBotStatus(ctx, u.MyChatMember)
	case u.ChatMember != nil:
		r.handleMember(ctx, u.ChatMember)
	}
}

func (r *Router) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if !msg.IsCommand() || msg.From == nil || msg.Chat == nil {
		return
	}

	switch msg.Command() {
	case "start":
		state := r.linking.HandleStart(ctx, linking.StartEvent{
			UserID:   msg.From.ID,
			ChatID:   msg.Chat.ID,
			ChatType: dl.ChatType(msg.Chat.Type),
			Payload:  msg.CommandArguments(),
		})
		r.log.Info().Int64("user_id", msg.From.ID).Int64("chat_id", msg.Chat.ID).Str("state", string(state)).Msg("start handled")
	case "help":
		r.say(ctx, msg.Chat.ID, msgHelp)
	case "ping":
		r.say(ctx, msg.Chat.ID, msgPong)
	default:
		// groups see every bot's commands
		if msg.Chat.IsPrivate() {
			r.say(ctx, msg.Chat.ID, msgUnknown)
		}
	}
}

func (r *Router) handleBotStatus(ctx context.Context, upd *tgbotapi.ChatMemberUpdated) {
	state := r.linking.HandleBotStatus(ctx, linking.BotStatusEvent{
		ChatID:    upd.Chat.ID,
		ActorID:   upd.From.ID,
		OldStatus: upd.OldChatMember.Status,
		NewStatus: upd.NewChatMember.Status,
	})
	r.log.Info().
		Int64("chat_id", upd.Chat.ID).
		Str("old_status", upd.OldChatMember.Status).
		Str("new_status", upd.NewChatMember.Status).
		Str("state", string(state)).
		Msg("bot status changed")
}

func (r *Router) handleMember(ctx context.Context, upd *tgbotapi.ChatMemberUpdated) {
	if upd.NewChatMember.User == nil {
		return
	}
	ev := membership.MemberEvent{
		ChatID:    upd.Chat.ID,
		UserID:    upd.NewChatMember.User.ID,
		OldStatus: upd.OldChatMember.Status,
		NewStatus: upd.NewChatMember.Status,
	}
	tr, err := r.members.HandleMemberUpdate(ctx, ev)
	if err != nil {
		r.log.Error().Err(err).Int64("chat_id", ev.ChatID).Int64("user_id", ev.UserID).Msg("apply member update failed")
		return
	}
	if tr != membership.TransitionNone {
		r.log.Debug().Int64("chat_id", ev.ChatID).Int64("user_id", ev.UserID).Str("transition", string(tr)).Msg("member counted")
	}
}

func (r *Router) say(ctx context.Context, chatID int64, text string) {
	if err := r.reply.SendText(ctx, chatID, text); err != nil {
		r.log.Warn().Err(err).Int64("chat_id", chatID).Msg("send reply failed")
	}
}
