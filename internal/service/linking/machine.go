package linking

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	apperrors "tg-subscriptions-backend/internal/common/errors"
	dl "tg-subscriptions-backend/internal/domain/link"
	ds "tg-subscriptions-backend/internal/domain/subscription"
	"tg-subscriptions-backend/internal/service/chatresolver"
)

// State is where a linking conversation ended up after an event.
type State string

const (
	StateIdle                  State = "idle"
	StateAwaitingChatSelection State = "awaiting_chat_selection"
	StateAwaitingBot           State = "awaiting_bot"
	StateLinkedPending         State = "linked_pending"
	StateLinked                State = "linked"
	StateAlreadyLinked         State = "already_linked"
	StateFailedInvalidToken    State = "failed_invalid_token"
	StateFailed                State = "failed"
)

type Tokens interface {
	Consume(ctx context.Context, token string) (*dl.Session, error)
	MarkConsumed(ctx context.Context, sessionID string) error
	StartGroupLink(token string) string
}

type Subscriptions interface {
	GetSummary(ctx context.Context, id string) (*ds.Subscription, error)
}

type Links interface {
	Save(ctx context.Context, subscriptionID string, chat dl.Chat) error
	FindExisting(ctx context.Context, subscriptionID string) (*dl.ChatLink, error)
	FindByChat(ctx context.Context, chatID int64) (*dl.ChatLink, error)
	Pause(ctx context.Context, chatID int64) (bool, error)
}

type Resolver interface {
	Resolve(ctx context.Context, chatID, actingUserID int64, inviteName string) (chatresolver.Outcome, error)
}

type Baseline interface {
	SeedBaseline(ctx context.Context, chatID int64, subscriptionID string) error
}

// Notifier delivers replies to the user.
type Notifier interface {
	SendText(ctx context.Context, chatID int64, text string) error
	SendTextRemoveKeyboard(ctx context.Context, chatID int64, text string) error
	SendChatPicker(ctx context.Context, chatID int64, text string) error
}

// Deps groups the collaborators of the machine.
type Deps struct {
	Tokens        Tokens
	Pending       dl.PendingStore
	Subscriptions Subscriptions
	Links         Links
	Resolver      Resolver
	Baseline      Baseline
	Notifier      Notifier
}

type Options struct {
	// ConsumeOnPending consumes the token when a link is saved with a
	// non-admin bot instead of waiting for the promotion.
	ConsumeOnPending bool
}

// StartEvent is a /start command, optionally carrying a token.
type StartEvent struct {
	UserID   int64
	ChatID   int64
	ChatType dl.ChatType
	Payload  string
}

// ChatSharedEvent is the user's pick from the chat selection keyboard.
type ChatSharedEvent struct {
	UserID       int64
	ChatID       int64
	SharedChatID int64
}

// BotStatusEvent is a change of the bot's own membership in a chat.
type BotStatusEvent struct {
	ChatID    int64
	ActorID   int64
	OldStatus string
	NewStatus string
}

// Machine drives the conversation that binds a subscription to a chat.
// Conversation state lives in the pending store, so handlers are safe to call
// from any goroutine.
type Machine struct {
	deps Deps
	opts Options
	log  zerolog.Logger
}

func NewMachine(deps Deps, opts Options) *Machine {
	return &Machine{deps: deps, opts: opts, log: log.With().Str("component", "linking").Logger()}
}

// HandleStart handles /start. In a private chat the token opens a session
// and shows the chat picker; in a group the group itself is the selection.
func (m *Machine) HandleStart(ctx context.Context, ev StartEvent) State {
	token := strings.TrimSpace(ev.Payload)
	if token == "" {
		m.say(ctx, ev.ChatID, msgWelcome)
		return StateIdle
	}
	if ev.ChatType != dl.ChatTypePrivate {
		return m.selectChat(ctx, ev.UserID, ev.ChatID, token, ev.ChatID)
	}

	sess, state, ok := m.consume(ctx, ev.ChatID, token)
	if !ok {
		return state
	}

	err := m.deps.Pending.SavePending(ctx, dl.PendingLink{UserID: ev.UserID, Token: token, ExpiresAt: sess.ExpiresAt})
	if err != nil {
		m.log.Error().Err(err).Int64("user_id", ev.UserID).Msg("save pending link failed")
		m.say(ctx, ev.ChatID, msgTryAgain)
		return StateFailed
	}

	sub, err := m.deps.Subscriptions.GetSummary(ctx, sess.SubscriptionID)
	if err != nil {
		m.log.Error().Err(err).Str("subscription_id", sess.SubscriptionID).Msg("load subscription failed")
		m.say(ctx, ev.ChatID, msgTryAgain)
		return StateFailed
	}

	existing, err := m.deps.Links.FindExisting(ctx, sess.SubscriptionID)
	if err != nil {
		m.log.Error().Err(err).Str("subscription_id", sess.SubscriptionID).Msg("load existing link failed")
		m.say(ctx, ev.ChatID, msgTryAgain)
		return StateFailed
	}
	if existing != nil {
		m.say(ctx, ev.ChatID, alreadyLinked(existing))
		return StateAlreadyLinked
	}

	card := subscriptionCard(sub, m.deps.Tokens.StartGroupLink(token))
	if err := m.deps.Notifier.SendChatPicker(ctx, ev.ChatID, card); err != nil {
		m.log.Warn().Err(err).Int64("chat_id", ev.ChatID).Msg("send chat picker failed")
	}
	return StateAwaitingChatSelection
}

// HandleChatShared continues the user's pending session with the chat they picked.
func (m *Machine) HandleChatShared(ctx context.Context, ev ChatSharedEvent) State {
	p, err := m.deps.Pending.GetPending(ctx, ev.UserID)
	if err != nil {
		m.log.Error().Err(err).Int64("user_id", ev.UserID).Msg("load pending link failed")
		m.say(ctx, ev.ChatID, msgTryAgain)
		return StateFailed
	}
	if p == nil {
		m.say(ctx, ev.ChatID, msgNoPending)
		return StateFailedInvalidToken
	}
	return m.selectChat(ctx, ev.UserID, ev.ChatID, p.Token, ev.SharedChatID)
}

// HandleBotStatus reacts to the bot being added, promoted or removed.
func (m *Machine) HandleBotStatus(ctx context.Context, ev BotStatusEvent) State {
	status := chatresolver.ClassifyBotStatus(ev.NewStatus)
	if status == chatresolver.BotNone {
		paused, err := m.deps.Links.Pause(ctx, ev.ChatID)
		if err != nil {
			m.log.Error().Err(err).Int64("chat_id", ev.ChatID).Msg("pause link failed")
		} else if paused {
			m.log.Info().Int64("chat_id", ev.ChatID).Msg("bot removed, link paused")
		}
		return StateIdle
	}

	w, err := m.deps.Pending.GetWaitingChat(ctx, ev.ChatID)
	if err != nil {
		m.log.Error().Err(err).Int64("chat_id", ev.ChatID).Msg("load waiting chat failed")
	}
	if w != nil {
		return m.selectChat(ctx, w.UserID, w.NotifyChatID, w.Token, ev.ChatID)
	}

	if status != chatresolver.BotAdmin {
		return StateIdle
	}
	return m.promote(ctx, ev)
}

// promote upgrades an existing non-active link once the bot is an admin,
// without needing the original token.
func (m *Machine) promote(ctx context.Context, ev BotStatusEvent) State {
	link, err := m.deps.Links.FindByChat(ctx, ev.ChatID)
	if err != nil {
		m.log.Error().Err(err).Int64("chat_id", ev.ChatID).Msg("load link by chat failed")
		return StateFailed
	}
	if link == nil || (link.BotIsAdmin && link.Status == dl.StatusActive) {
		return StateIdle
	}

	outcome, err := m.deps.Resolver.Resolve(ctx, ev.ChatID, ev.ActorID, inviteName(link.SubscriptionID))
	if err != nil {
		m.log.Warn().Err(err).Int64("chat_id", ev.ChatID).Msg("resolve on promotion failed")
		return StateFailed
	}
	resolved, ok := outcome.(chatresolver.Resolved)
	if !ok || !resolved.Chat.BotIsAdmin {
		return StateIdle
	}
	if err := m.deps.Links.Save(ctx, link.SubscriptionID, resolved.Chat); err != nil {
		m.log.Error().Err(err).Int64("chat_id", ev.ChatID).Msg("save promoted link failed")
		return StateFailed
	}
	m.seed(ctx, resolved.Chat.ID, link.SubscriptionID)
	m.log.Info().Int64("chat_id", ev.ChatID).Str("subscription_id", link.SubscriptionID).Msg("link activated after promotion")
	return StateLinked
}

// selectChat runs the chat checks for token and persists the link.
func (m *Machine) selectChat(ctx context.Context, userID, notifyChatID int64, token string, chatID int64) State {
	sess, state, ok := m.consume(ctx, notifyChatID, token)
	if !ok {
		if state == StateFailedInvalidToken {
			m.forget(ctx, userID, chatID)
		}
		return state
	}

	existing, err := m.deps.Links.FindExisting(ctx, sess.SubscriptionID)
	if err != nil {
		m.log.Error().Err(err).Str("subscription_id", sess.SubscriptionID).Msg("load existing link failed")
		m.say(ctx, notifyChatID, msgTryAgain)
		return StateAwaitingChatSelection
	}
	// a pending link to this same chat may still be finished
	if existing != nil && (existing.ChatID != chatID || existing.BotIsAdmin) {
		m.forget(ctx, userID, chatID)
		m.say(ctx, notifyChatID, alreadyLinked(existing))
		return StateAlreadyLinked
	}

	outcome, err := m.deps.Resolver.Resolve(ctx, chatID, userID, inviteName(sess.SubscriptionID))
	if err != nil {
		m.log.Warn().Err(err).Int64("chat_id", chatID).Int64("user_id", userID).Msg("chat resolution failed")
		m.say(ctx, notifyChatID, msgCannotInspect)
		return StateAwaitingChatSelection
	}

	switch o := outcome.(type) {
	case chatresolver.Rejected:
		m.say(ctx, notifyChatID, rejection(o.Code))
		return StateAwaitingChatSelection
	case chatresolver.BotMissing:
		m.wait(ctx, chatID, userID, notifyChatID, sess)
		m.say(ctx, notifyChatID, addBotPrompt(o.Title))
		return StateAwaitingBot
	case chatresolver.Resolved:
		return m.persist(ctx, sess, userID, notifyChatID, o.Chat)
	}
	return StateFailed
}

func (m *Machine) persist(ctx context.Context, sess *dl.Session, userID, notifyChatID int64, chat dl.Chat) State {
	if err := m.deps.Links.Save(ctx, sess.SubscriptionID, chat); err != nil {
		m.log.Error().Err(err).Str("subscription_id", sess.SubscriptionID).Int64("chat_id", chat.ID).Msg("save link failed")
		m.say(ctx, notifyChatID, msgTryAgain)
		return StateAwaitingChatSelection
	}

	if !chat.BotIsAdmin {
		// a consumed token cannot finish the link later; promotion does it
		if m.opts.ConsumeOnPending {
			m.markConsumed(ctx, sess)
			m.forget(ctx, userID, chat.ID)
		} else {
			m.wait(ctx, chat.ID, userID, notifyChatID, sess)
		}
		m.say(ctx, notifyChatID, linkedPending(chat.Title))
		return StateLinkedPending
	}

	m.seed(ctx, chat.ID, sess.SubscriptionID)
	m.markConsumed(ctx, sess)
	m.forget(ctx, userID, chat.ID)
	if err := m.deps.Notifier.SendTextRemoveKeyboard(ctx, notifyChatID, linked(chat.Title, chat.InviteLink)); err != nil {
		m.log.Warn().Err(err).Int64("chat_id", notifyChatID).Msg("send reply failed")
	}
	m.log.Info().Str("subscription_id", sess.SubscriptionID).Int64("chat_id", chat.ID).Msg("chat linked")
	return StateLinked
}

// consume checks the token and reports the failure to the user.
func (m *Machine) consume(ctx context.Context, notifyChatID int64, token string) (*dl.Session, State, bool) {
	sess, err := m.deps.Tokens.Consume(ctx, token)
	if err == nil {
		return sess, "", true
	}
	if apperrors.HasCode(err, apperrors.ErrCodeInvalidOrExpired) {
		m.say(ctx, notifyChatID, msgInvalidToken)
		return nil, StateFailedInvalidToken, false
	}
	m.log.Error().Err(err).Msg("token lookup failed")
	m.say(ctx, notifyChatID, msgTryAgain)
	return nil, StateFailed, false
}

func (m *Machine) wait(ctx context.Context, chatID, userID, notifyChatID int64, sess *dl.Session) {
	err := m.deps.Pending.SaveWaitingChat(ctx, dl.WaitingChat{
		ChatID:       chatID,
		UserID:       userID,
		NotifyChatID: notifyChatID,
		Token:        sess.Token,
		ExpiresAt:    sess.ExpiresAt,
	})
	if err != nil {
		m.log.Warn().Err(err).Int64("chat_id", chatID).Msg("save waiting chat failed")
	}
}

func (m *Machine) seed(ctx context.Context, chatID int64, subscriptionID string) {
	if err := m.deps.Baseline.SeedBaseline(ctx, chatID, subscriptionID); err != nil {
		m.log.Warn().Err(err).Int64("chat_id", chatID).Msg("seed member baseline failed")
	}
}

func (m *Machine) markConsumed(ctx context.Context, sess *dl.Session) {
	if err := m.deps.Tokens.MarkConsumed(ctx, sess.ID); err != nil {
		m.log.Warn().Err(err).Str("session_id", sess.ID).Msg("mark token consumed failed")
	}
}

func (m *Machine) forget(ctx context.Context, userID, chatID int64) {
	m.forgetPending(ctx, userID)
	if err := m.deps.Pending.DeleteWaitingChat(ctx, chatID); err != nil {
		m.log.Warn().Err(err).Int64("chat_id", chatID).Msg("delete waiting chat failed")
	}
}

func (m *Machine) forgetPending(ctx context.Context, userID int64) {
	if err := m.deps.Pending.DeletePending(ctx, userID); err != nil {
		m.log.Warn().Err(err).Int64("user_id", userID).Msg("delete pending link failed")
	}
}

func (m *Machine) say(ctx context.Context, chatID int64, text string) {
	if err := m.deps.Notifier.SendText(ctx, chatID, text); err != nil {
		m.log.Warn().Err(err).Int64("chat_id", chatID).Msg("send reply failed")
	}
}

// inviteName fits Telegram's 32 character limit.
func inviteName(subscriptionID string) string {
	id := subscriptionID
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("subscription %s", id)
}
