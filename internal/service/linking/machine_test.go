package linking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "tg-subscriptions-backend/internal/common/errors"
	dl "tg-subscriptions-backend/internal/domain/link"
	ds "tg-subscriptions-backend/internal/domain/subscription"
	"tg-subscriptions-backend/internal/service/chatresolver"
)

const (
	userID  = int64(42)
	chatID  = int64(-100500)
	subID   = "4f0c6e1c-7c55-4d53-9a0e-2f8f1f7f3b9a"
	token   = "0123456789abcdef0123456789abcdef"
	otherID = int64(-100900)
)

type fakeTokens struct {
	mu       sync.Mutex
	sessions map[string]*dl.Session
}

func (f *fakeTokens) Consume(_ context.Context, tok string) (*dl.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[tok]
	if !ok || !s.Usable(time.Now()) {
		return nil, apperrors.NewInvalidOrExpiredError()
	}
	cp := *s
	return &cp, nil
}

func (f *fakeTokens) MarkConsumed(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.ID == id {
			s.Consumed = true
		}
	}
	return nil
}

func (f *fakeTokens) StartGroupLink(tok string) string { return "https://t.me/subs_bot?startgroup=" + tok }

func (f *fakeTokens) consumed(tok string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[tok].Consumed
}

type memPending struct {
	mu      sync.Mutex
	pending map[int64]dl.PendingLink
	waiting map[int64]dl.WaitingChat
}

func (p *memPending) SavePending(_ context.Context, v dl.PendingLink) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending[v.UserID] = v
	return nil
}

func (p *memPending) GetPending(_ context.Context, uid int64) (*dl.PendingLink, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if v, ok := p.pending[uid]; ok {
		return &v, nil
	}
	return nil, nil
}

func (p *memPending) DeletePending(_ context.Context, uid int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.pending, uid)
	return nil
}

func (p *memPending) SaveWaitingChat(_ context.Context, w dl.WaitingChat) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.waiting[w.ChatID] = w
	return nil
}

func (p *memPending) GetWaitingChat(_ context.Context, cid int64) (*dl.WaitingChat, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if v, ok := p.waiting[cid]; ok {
		return &v, nil
	}
	return nil, nil
}

func (p *memPending) DeleteWaitingChat(_ context.Context, cid int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.waiting, cid)
	return nil
}

type fakeSubs struct{}

func (fakeSubs) GetSummary(_ context.Context, id string) (*ds.Subscription, error) {
	return &ds.Subscription{ID: id, Name: "Pro <club>", PriceAmount: 9.99, PriceCurrency: "USD"}, nil
}

type memLinks struct {
	mu      sync.Mutex
	bySub   map[string]*dl.ChatLink
	saves   int
	saveErr error
}

func (l *memLinks) Save(_ context.Context, sid string, c dl.Chat) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.saveErr != nil {
		return l.saveErr
	}
	l.saves++
	l.bySub[sid] = &dl.ChatLink{
		SubscriptionID: sid, ChatID: c.ID, ChatType: c.Type, ChatTitle: c.Title,
		BotIsAdmin: c.BotIsAdmin, InviteLink: c.InviteLink, Status: dl.StatusFor(c.BotIsAdmin),
	}
	return nil
}

func (l *memLinks) FindExisting(_ context.Context, sid string) (*dl.ChatLink, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.bySub[sid], nil
}

func (l *memLinks) FindByChat(_ context.Context, cid int64) (*dl.ChatLink, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, v := range l.bySub {
		if v.ChatID == cid {
			return v, nil
		}
	}
	return nil, nil
}

func (l *memLinks) Pause(_ context.Context, cid int64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	changed := false
	for _, v := range l.bySub {
		if v.ChatID == cid && v.Status != dl.StatusPaused {
			v.Status = dl.StatusPaused
			changed = true
		}
	}
	return changed, nil
}

// fakeResolver answers from a per-chat outcome table.
type fakeResolver struct {
	outcomes map[int64]chatresolver.Outcome
	err      error
}

func (r *fakeResolver) Resolve(_ context.Context, cid, _ int64, _ string) (chatresolver.Outcome, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.outcomes[cid], nil
}

type fakeBaseline struct {
	seeded []int64
}

func (b *fakeBaseline) SeedBaseline(_ context.Context, cid int64, _ string) error {
	b.seeded = append(b.seeded, cid)
	return nil
}

type sent struct {
	chatID int64
	text   string
	kind   string
}

type recNotifier struct {
	mu   sync.Mutex
	msgs []sent
}

func (n *recNotifier) record(chatID int64, text, kind string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, sent{chatID, text, kind})
	return nil
}

func (n *recNotifier) SendText(_ context.Context, c int64, t string) error {
	return n.record(c, t, "text")
}

func (n *recNotifier) SendTextRemoveKeyboard(_ context.Context, c int64, t string) error {
	return n.record(c, t, "done")
}

func (n *recNotifier) SendChatPicker(_ context.Context, c int64, t string) error {
	return n.record(c, t, "picker")
}

func (n *recNotifier) last() sent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.msgs[len(n.msgs)-1]
}

type harness struct {
	m        *Machine
	tokens   *fakeTokens
	pending  *memPending
	links    *memLinks
	resolver *fakeResolver
	baseline *fakeBaseline
	notifier *recNotifier
}

func newHarness(opts Options) *harness {
	h := &harness{
		tokens: &fakeTokens{sessions: map[string]*dl.Session{
			token: {ID: "sess-1", SubscriptionID: subID, Token: token, ExpiresAt: time.Now().Add(30 * time.Minute)},
		}},
		pending:  &memPending{pending: map[int64]dl.PendingLink{}, waiting: map[int64]dl.WaitingChat{}},
		links:    &memLinks{bySub: map[string]*dl.ChatLink{}},
		resolver: &fakeResolver{outcomes: map[int64]chatresolver.Outcome{}},
		baseline: &fakeBaseline{},
		notifier: &recNotifier{},
	}
	h.m = NewMachine(Deps{
		Tokens:        h.tokens,
		Pending:       h.pending,
		Subscriptions: fakeSubs{},
		Links:         h.links,
		Resolver:      h.resolver,
		Baseline:      h.baseline,
		Notifier:      h.notifier,
	}, opts)
	return h
}

func (h *harness) start(ctx context.Context) State {
	return h.m.HandleStart(ctx, StartEvent{UserID: userID, ChatID: userID, ChatType: dl.ChatTypePrivate, Payload: token})
}

func (h *harness) share(ctx context.Context, cid int64) State {
	return h.m.HandleChatShared(ctx, ChatSharedEvent{UserID: userID, ChatID: userID, SharedChatID: cid})
}

func adminChat(invite *string) chatresolver.Resolved {
	return chatresolver.Resolved{
		Chat:      dl.Chat{ID: chatID, Type: dl.ChatTypeChannel, Title: "News", BotIsAdmin: true, InviteLink: invite},
		BotStatus: chatresolver.BotAdmin,
	}
}

func memberChat() chatresolver.Resolved {
	return chatresolver.Resolved{
		Chat:      dl.Chat{ID: chatID, Type: dl.ChatTypeChannel, Title: "News"},
		BotStatus: chatresolver.BotMember,
	}
}

func TestStartWithoutPayload(t *testing.T) {
	h := newHarness(Options{})

	state := h.m.HandleStart(context.Background(), StartEvent{UserID: userID, ChatID: userID, ChatType: dl.ChatTypePrivate})
	assert.Equal(t, StateIdle, state)
	assert.Equal(t, msgWelcome, h.notifier.last().text)
}

func TestStartInvalidToken(t *testing.T) {
	h := newHarness(Options{})

	state := h.m.HandleStart(context.Background(), StartEvent{UserID: userID, ChatID: userID, ChatType: dl.ChatTypePrivate, Payload: "nope"})
	assert.Equal(t, StateFailedInvalidToken, state)
	assert.Equal(t, msgInvalidToken, h.notifier.last().text)
	assert.Empty(t, h.pending.pending)
}

func TestStartShowsCardAndRemembersToken(t *testing.T) {
	h := newHarness(Options{})

	state := h.start(context.Background())
	assert.Equal(t, StateAwaitingChatSelection, state)

	last := h.notifier.last()
	assert.Equal(t, "picker", last.kind)
	assert.Contains(t, last.text, "Pro &lt;club&gt;")
	assert.Contains(t, last.text, "9.99 USD")
	assert.Equal(t, token, h.pending.pending[userID].Token)
	assert.False(t, h.tokens.consumed(token))
}

func TestStartAlreadyLinked(t *testing.T) {
	h := newHarness(Options{})
	h.links.bySub[subID] = &dl.ChatLink{SubscriptionID: subID, ChatID: otherID, ChatTitle: "Old", BotIsAdmin: true, Status: dl.StatusActive}

	state := h.start(context.Background())
	assert.Equal(t, StateAlreadyLinked, state)
	assert.Contains(t, h.notifier.last().text, "Old")
}

func TestChatSharedWithoutPendingSession(t *testing.T) {
	h := newHarness(Options{})

	state := h.share(context.Background(), chatID)
	assert.Equal(t, StateFailedInvalidToken, state)
	assert.Equal(t, msgNoPending, h.notifier.last().text)
}

func TestUserNotAdminWritesNoLink(t *testing.T) {
	h := newHarness(Options{})
	ctx := context.Background()
	h.resolver.outcomes[chatID] = chatresolver.Rejected{Code: apperrors.ErrCodeUserNotAdmin, ChatID: chatID}

	require.Equal(t, StateAwaitingChatSelection, h.start(ctx))
	state := h.share(ctx, chatID)

	assert.Equal(t, StateAwaitingChatSelection, state)
	assert.Equal(t, msgNotAdmin, h.notifier.last().text)
	assert.Zero(t, h.links.saves)
	assert.False(t, h.tokens.consumed(token))
}

func TestAdminWithInviteLinksAndConsumes(t *testing.T) {
	h := newHarness(Options{})
	ctx := context.Background()
	invite := "https://t.me/+abc"
	h.resolver.outcomes[chatID] = adminChat(&invite)

	require.Equal(t, StateAwaitingChatSelection, h.start(ctx))
	state := h.share(ctx, chatID)

	assert.Equal(t, StateLinked, state)
	l := h.links.bySub[subID]
	require.NotNil(t, l)
	assert.Equal(t, dl.StatusActive, l.Status)
	assert.Equal(t, &invite, l.InviteLink)
	assert.Equal(t, []int64{chatID}, h.baseline.seeded)
	assert.True(t, h.tokens.consumed(token))
	assert.Empty(t, h.pending.pending)

	last := h.notifier.last()
	assert.Equal(t, "done", last.kind)
	assert.Contains(t, last.text, invite)
}

func TestConsumeTwice(t *testing.T) {
	h := newHarness(Options{})
	ctx := context.Background()
	h.resolver.outcomes[chatID] = adminChat(nil)

	require.Equal(t, StateAwaitingChatSelection, h.start(ctx))
	require.Equal(t, StateLinked, h.share(ctx, chatID))

	assert.Equal(t, StateFailedInvalidToken, h.start(ctx))
	assert.Equal(t, msgInvalidToken, h.notifier.last().text)
}

func TestBotMissingThenAddedAsAdmin(t *testing.T) {
	h := newHarness(Options{})
	ctx := context.Background()
	h.resolver.outcomes[chatID] = chatresolver.BotMissing{ChatID: chatID, Type: dl.ChatTypeChannel, Title: "News"}

	require.Equal(t, StateAwaitingChatSelection, h.start(ctx))
	assert.Equal(t, StateAwaitingBot, h.share(ctx, chatID))
	require.Contains(t, h.pending.waiting, chatID)
	assert.Zero(t, h.links.saves)

	h.resolver.outcomes[chatID] = adminChat(nil)
	state := h.m.HandleBotStatus(ctx, BotStatusEvent{ChatID: chatID, ActorID: userID, OldStatus: "left", NewStatus: "administrator"})

	assert.Equal(t, StateLinked, state)
	assert.Equal(t, dl.StatusActive, h.links.bySub[subID].Status)
	assert.NotContains(t, h.pending.waiting, chatID)
	assert.Equal(t, userID, h.notifier.last().chatID)
}

func TestLinkedPendingThenPromoted(t *testing.T) {
	h := newHarness(Options{})
	ctx := context.Background()
	h.resolver.outcomes[chatID] = memberChat()

	require.Equal(t, StateAwaitingChatSelection, h.start(ctx))
	assert.Equal(t, StateLinkedPending, h.share(ctx, chatID))
	assert.Equal(t, dl.StatusPending, h.links.bySub[subID].Status)
	assert.False(t, h.tokens.consumed(token))
	assert.Empty(t, h.baseline.seeded)

	h.resolver.outcomes[chatID] = adminChat(nil)
	state := h.m.HandleBotStatus(ctx, BotStatusEvent{ChatID: chatID, ActorID: userID, OldStatus: "member", NewStatus: "administrator"})

	assert.Equal(t, StateLinked, state)
	assert.Equal(t, dl.StatusActive, h.links.bySub[subID].Status)
	assert.True(t, h.tokens.consumed(token))
	assert.Equal(t, 2, h.links.saves)
}

func TestConsumeOnPendingPromotesWithoutToken(t *testing.T) {
	h := newHarness(Options{ConsumeOnPending: true})
	ctx := context.Background()
	h.resolver.outcomes[chatID] = memberChat()

	require.Equal(t, StateAwaitingChatSelection, h.start(ctx))
	assert.Equal(t, StateLinkedPending, h.share(ctx, chatID))
	assert.True(t, h.tokens.consumed(token))
	assert.Empty(t, h.pending.waiting)

	h.resolver.outcomes[chatID] = adminChat(nil)
	state := h.m.HandleBotStatus(ctx, BotStatusEvent{ChatID: chatID, ActorID: userID, OldStatus: "member", NewStatus: "administrator"})

	assert.Equal(t, StateLinked, state)
	assert.True(t, h.links.bySub[subID].BotIsAdmin)
	assert.Equal(t, []int64{chatID}, h.baseline.seeded)
}

func TestSelectingAnotherChatWhenAlreadyLinked(t *testing.T) {
	h := newHarness(Options{})
	ctx := context.Background()
	h.resolver.outcomes[otherID] = adminChat(nil)

	require.Equal(t, StateAwaitingChatSelection, h.start(ctx))
	h.links.bySub[subID] = &dl.ChatLink{SubscriptionID: subID, ChatID: chatID, BotIsAdmin: true, Status: dl.StatusActive}

	assert.Equal(t, StateAlreadyLinked, h.share(ctx, otherID))
	assert.Zero(t, h.links.saves)
}

func TestResolutionFailureKeepsSession(t *testing.T) {
	h := newHarness(Options{})
	ctx := context.Background()
	h.resolver.err = errors.New("telegram down")

	require.Equal(t, StateAwaitingChatSelection, h.start(ctx))
	assert.Equal(t, StateAwaitingChatSelection, h.share(ctx, chatID))
	assert.Equal(t, msgCannotInspect, h.notifier.last().text)
	assert.Contains(t, h.pending.pending, userID)
}

func TestSaveFailureIsReported(t *testing.T) {
	h := newHarness(Options{})
	ctx := context.Background()
	h.resolver.outcomes[chatID] = adminChat(nil)
	h.links.saveErr = errors.New("db down")

	require.Equal(t, StateAwaitingChatSelection, h.start(ctx))
	assert.Equal(t, StateAwaitingChatSelection, h.share(ctx, chatID))
	assert.Equal(t, msgTryAgain, h.notifier.last().text)
	assert.False(t, h.tokens.consumed(token))
}

func TestStartInGroupSelectsThatGroup(t *testing.T) {
	h := newHarness(Options{})
	ctx := context.Background()
	h.resolver.outcomes[chatID] = chatresolver.Resolved{
		Chat:      dl.Chat{ID: chatID, Type: dl.ChatTypeSupergroup, Title: "Club", BotIsAdmin: true},
		BotStatus: chatresolver.BotAdmin,
	}

	state := h.m.HandleStart(ctx, StartEvent{UserID: userID, ChatID: chatID, ChatType: dl.ChatTypeSupergroup, Payload: token})
	assert.Equal(t, StateLinked, state)
	assert.Equal(t, chatID, h.notifier.last().chatID)
}

func TestBotRemovedPausesLink(t *testing.T) {
	h := newHarness(Options{})
	h.links.bySub[subID] = &dl.ChatLink{SubscriptionID: subID, ChatID: chatID, BotIsAdmin: true, Status: dl.StatusActive}

	state := h.m.HandleBotStatus(context.Background(), BotStatusEvent{ChatID: chatID, OldStatus: "administrator", NewStatus: "kicked"})
	assert.Equal(t, StateIdle, state)
	assert.Equal(t, dl.StatusPaused, h.links.bySub[subID].Status)
}

func TestInviteNameFitsLimit(t *testing.T) {
	assert.LessOrEqual(t, len(inviteName(subID)), 32)
}
