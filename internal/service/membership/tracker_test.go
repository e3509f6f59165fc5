package membership

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dl "tg-subscriptions-backend/internal/domain/link"
	dst "tg-subscriptions-backend/internal/domain/stats"
)

type fakeLinks struct {
	byChat map[int64]*dl.ChatLink
}

func (f *fakeLinks) FindByChat(_ context.Context, chatID int64) (*dl.ChatLink, error) {
	return f.byChat[chatID], nil
}

func (f *fakeLinks) Tracked(context.Context) ([]dl.TrackedChat, error) {
	var out []dl.TrackedChat
	for id, l := range f.byChat {
		out = append(out, dl.TrackedChat{ChatID: id, SubscriptionID: l.SubscriptionID})
	}
	return out, nil
}

// memStats reproduces the presence-table semantics of the SQL bump functions.
type memStats struct {
	mu       sync.Mutex
	stats    map[int64]*dst.ChatStats
	presence map[[2]int64]bool
	daily    map[string]int
}

func newMemStats() *memStats {
	return &memStats{stats: map[int64]*dst.ChatStats{}, presence: map[[2]int64]bool{}, daily: map[string]int{}}
}

func (m *memStats) UpsertBaseline(_ context.Context, s dst.ChatStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats[s.ChatID] = &s
	return nil
}

func (m *memStats) bump(chatID, userID int64, join bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := [2]int64{chatID, userID}
	present, seen := m.presence[key]
	if seen && present == join {
		return false
	}
	m.presence[key] = join
	if s, ok := m.stats[chatID]; ok {
		if join {
			s.LastCount++
		} else if s.LastCount > 0 {
			s.LastCount--
		}
	}
	return true
}

func (m *memStats) BumpJoined(_ context.Context, chatID, userID int64) (bool, error) {
	return m.bump(chatID, userID, true), nil
}

func (m *memStats) BumpLeft(_ context.Context, chatID, userID int64) (bool, error) {
	return m.bump(chatID, userID, false), nil
}

func (m *memStats) SaveDailyCount(_ context.Context, c dst.DailyCount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.daily[fmt.Sprintf("%s/%d", c.Day.Format(dst.DayLayout), c.ChatID)] = c.Count
	if s, ok := m.stats[c.ChatID]; ok {
		s.LastCount = c.Count
	}
	return nil
}

type fakeCounter struct {
	counts map[int64]int
	fail   map[int64]bool
}

func (f *fakeCounter) GetMemberCount(_ context.Context, chatID int64) (int, error) {
	if f.fail[chatID] {
		return 0, errors.New("chat not found")
	}
	return f.counts[chatID], nil
}

const chatID = int64(-100123)

func newTracker(counts map[int64]int) (*Tracker, *memStats) {
	links := &fakeLinks{byChat: map[int64]*dl.ChatLink{chatID: {SubscriptionID: "sub-1", ChatID: chatID}}}
	stats := newMemStats()
	tr := NewTracker(links, stats, &fakeCounter{counts: counts, fail: map[int64]bool{}})
	tr.now = func() time.Time { return time.Date(2026, 4, 5, 23, 30, 0, 0, time.UTC) }
	return tr, stats
}

func TestClassifyTransition(t *testing.T) {
	assert.Equal(t, TransitionJoined, ClassifyTransition("left", "member"))
	assert.Equal(t, TransitionJoined, ClassifyTransition("kicked", "member"))
	assert.Equal(t, TransitionLeft, ClassifyTransition("member", "left"))
	assert.Equal(t, TransitionLeft, ClassifyTransition("member", "kicked"))
	assert.Equal(t, TransitionNone, ClassifyTransition("member", "administrator"))
	assert.Equal(t, TransitionNone, ClassifyTransition("left", "kicked"))
	assert.Equal(t, TransitionNone, ClassifyTransition("member", "restricted"))
}

func TestJoinIncrementsOnce(t *testing.T) {
	tr, stats := newTracker(map[int64]int{chatID: 10})
	ctx := context.Background()
	require.NoError(t, tr.SeedBaseline(ctx, chatID, "sub-1"))

	ev := MemberEvent{ChatID: chatID, UserID: 7, OldStatus: "left", NewStatus: "member"}
	got, err := tr.HandleMemberUpdate(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, TransitionJoined, got)
	assert.Equal(t, 11, stats.stats[chatID].LastCount)

	got, err = tr.HandleMemberUpdate(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, TransitionNone, got)
	assert.Equal(t, 11, stats.stats[chatID].LastCount)
}

func TestLeaveDecrements(t *testing.T) {
	tr, stats := newTracker(map[int64]int{chatID: 10})
	ctx := context.Background()
	require.NoError(t, tr.SeedBaseline(ctx, chatID, "sub-1"))

	got, err := tr.HandleMemberUpdate(ctx, MemberEvent{ChatID: chatID, UserID: 7, OldStatus: "member", NewStatus: "kicked"})
	require.NoError(t, err)
	assert.Equal(t, TransitionLeft, got)
	assert.Equal(t, 9, stats.stats[chatID].LastCount)
}

func TestUntrackedChatIgnored(t *testing.T) {
	tr, stats := newTracker(nil)

	got, err := tr.HandleMemberUpdate(context.Background(), MemberEvent{ChatID: 555, UserID: 7, OldStatus: "left", NewStatus: "member"})
	require.NoError(t, err)
	assert.Equal(t, TransitionNone, got)
	assert.Empty(t, stats.presence)
}

func TestSaveDailyCountIdempotentPerDay(t *testing.T) {
	tr, stats := newTracker(map[int64]int{chatID: 10})
	ctx := context.Background()
	require.NoError(t, tr.SeedBaseline(ctx, chatID, "sub-1"))

	day := time.Date(2026, 4, 5, 8, 0, 0, 0, time.UTC)
	require.NoError(t, tr.SaveDailyCount(ctx, chatID, day, 12))
	require.NoError(t, tr.SaveDailyCount(ctx, chatID, day.Add(10*time.Hour), 15))

	assert.Len(t, stats.daily, 1)
	for _, v := range stats.daily {
		assert.Equal(t, 15, v)
	}
	assert.Equal(t, 15, stats.stats[chatID].LastCount)
}

func TestSnapshotDailyCountsSkipsFailures(t *testing.T) {
	links := &fakeLinks{byChat: map[int64]*dl.ChatLink{
		1: {SubscriptionID: "a", ChatID: 1},
		2: {SubscriptionID: "b", ChatID: 2},
		3: {SubscriptionID: "c", ChatID: 3},
	}}
	stats := newMemStats()
	counter := &fakeCounter{counts: map[int64]int{1: 5, 3: 7}, fail: map[int64]bool{2: true}}
	tr := NewTracker(links, stats, counter)

	res, err := tr.SnapshotDailyCounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DailyResult{Processed: 2, Failed: 1}, res)
	assert.Len(t, stats.daily, 2)
}
