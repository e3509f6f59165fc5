package publisher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dl "tg-subscriptions-backend/internal/domain/link"
	dp "tg-subscriptions-backend/internal/domain/post"
	"tg-subscriptions-backend/internal/platform/telegram"
)

const (
	subID  = "sub-1"
	chatID = int64(-1001)
	base   = "https://cdn.example.com/attachments"
)

// memPosts is a store whose Claim is a compare-and-set under a mutex.
type memPosts struct {
	mu          sync.Mutex
	posts       map[string]*dp.ScheduledPost
	attachments map[string][]dp.Attachment
	attachErr   error
	failedDiag  map[string]map[string]interface{}
}

func newMemPosts() *memPosts {
	return &memPosts{
		posts:       map[string]*dp.ScheduledPost{},
		attachments: map[string][]dp.Attachment{},
		failedDiag:  map[string]map[string]interface{}{},
	}
}

func (m *memPosts) add(id string, due time.Time, atts ...dp.Attachment) {
	m.posts[id] = &dp.ScheduledPost{
		ID: id, SubscriptionID: subID, Body: "<b>hello</b> " + id, ScheduledFor: due,
		Status: dp.StatusScheduled, Extra: map[string]interface{}{"author": "ops"},
	}
	m.attachments[id] = atts
}

func (m *memPosts) ListDue(_ context.Context, now time.Time, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []*dp.ScheduledPost
	for _, p := range m.posts {
		if p.Status == dp.StatusScheduled && !p.ScheduledFor.After(now) {
			due = append(due, p)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ScheduledFor.Before(due[j].ScheduledFor) })
	ids := make([]string, 0, limit)
	for _, p := range due {
		if len(ids) == limit {
			break
		}
		ids = append(ids, p.ID)
	}
	return ids, nil
}

func (m *memPosts) Claim(_ context.Context, id string) (*dp.ScheduledPost, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.posts[id]
	if !ok || p.Status != dp.StatusScheduled {
		return nil, nil
	}
	p.Status = dp.StatusPublishing
	cp := *p
	return &cp, nil
}

func (m *memPosts) ListAttachments(_ context.Context, id string) ([]dp.Attachment, error) {
	if m.attachErr != nil {
		return nil, m.attachErr
	}
	return m.attachments[id], nil
}

func (m *memPosts) MarkPublished(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.posts[id]
	p.Status = dp.StatusPublished
	p.PostedAt = &at
	return nil
}

func (m *memPosts) MarkFailed(_ context.Context, id string, diag map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.posts[id]
	p.Status = dp.StatusFailed
	for k, v := range diag {
		p.Extra[k] = v
	}
	m.failedDiag[id] = diag
	return nil
}

func (m *memPosts) FailStale(context.Context, time.Time) (int64, error) { return 0, nil }

func (m *memPosts) status(id string) dp.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.posts[id].Status
}

type fixedLinks struct {
	link *dl.ChatLink
}

func (f fixedLinks) FindExisting(context.Context, string) (*dl.ChatLink, error) {
	return f.link, nil
}

type call struct {
	method  string
	url     string
	caption string
	items   []telegram.MediaItem
}

type recSender struct {
	mu      sync.Mutex
	calls   []call
	failFor string
}

func (s *recSender) record(c call) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, c)
	if s.failFor != "" && strings.Contains(c.caption, s.failFor) {
		return errors.New("Bad Request: chat not found")
	}
	return nil
}

func (s *recSender) SendText(_ context.Context, _ int64, text string) error {
	return s.record(call{method: "text", caption: text})
}

func (s *recSender) SendPhoto(_ context.Context, _ int64, url, caption string) error {
	return s.record(call{method: "photo", url: url, caption: caption})
}

func (s *recSender) SendVideo(_ context.Context, _ int64, url, caption string) error {
	return s.record(call{method: "video", url: url, caption: caption})
}

func (s *recSender) SendDocument(_ context.Context, _ int64, url, caption string) error {
	return s.record(call{method: "document", url: url, caption: caption})
}

func (s *recSender) SendMediaGroup(_ context.Context, _ int64, items []telegram.MediaItem) error {
	return s.record(call{method: "group", caption: items[0].Caption, items: items})
}

func activeLink() fixedLinks {
	return fixedLinks{link: &dl.ChatLink{SubscriptionID: subID, ChatID: chatID, BotIsAdmin: true, Status: dl.StatusActive}}
}

func att(t dp.AttachmentType, path string) dp.Attachment {
	return dp.Attachment{Type: t, StoragePath: path}
}

func newDispatcher(posts *memPosts, links Links, sender *recSender, mode dp.MixedMediaMode) *Dispatcher {
	return NewDispatcher(posts, links, sender, Options{BatchLimit: 5, MixedMedia: mode, StorageBaseURL: base + "/"})
}

func TestRunOncePublishesByShape(t *testing.T) {
	past := time.Now().Add(-time.Minute)
	posts := newMemPosts()
	posts.add("text", past)
	posts.add("album", past.Add(time.Second), att(dp.AttachmentImage, "a.jpg"), att(dp.AttachmentImage, "https://img.example.com/b.jpg"))
	posts.add("video", past.Add(2*time.Second), att(dp.AttachmentVideo, "v.mp4"))
	sender := &recSender{}

	res, err := newDispatcher(posts, activeLink(), sender, dp.MixedMediaGroup).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Claimed: 3, Published: 3}, res)

	require.Len(t, sender.calls, 3)
	assert.Equal(t, "text", sender.calls[0].method)

	album := sender.calls[1]
	assert.Equal(t, "group", album.method)
	require.Len(t, album.items, 2)
	assert.Equal(t, base+"/a.jpg", album.items[0].URL)
	assert.Equal(t, "https://img.example.com/b.jpg", album.items[1].URL)
	assert.Equal(t, "<b>hello</b> album", album.items[0].Caption)
	assert.Empty(t, album.items[1].Caption)

	assert.Equal(t, call{method: "video", url: base + "/v.mp4", caption: "<b>hello</b> video"}, sender.calls[2])

	for _, id := range []string{"text", "album", "video"} {
		assert.Equal(t, dp.StatusPublished, posts.status(id))
		assert.NotNil(t, posts.posts[id].PostedAt)
	}
}

func TestRunOnceSkipsFuturePosts(t *testing.T) {
	posts := newMemPosts()
	posts.add("later", time.Now().Add(time.Hour))
	sender := &recSender{}

	res, err := newDispatcher(posts, activeLink(), sender, dp.MixedMediaGroup).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)
	assert.Equal(t, dp.StatusScheduled, posts.status("later"))
}

func TestFailureDoesNotAbortBatch(t *testing.T) {
	past := time.Now().Add(-time.Minute)
	posts := newMemPosts()
	posts.add("p1", past)
	posts.add("p2", past.Add(time.Second))
	posts.add("p3", past.Add(2*time.Second))
	sender := &recSender{failFor: "p2"}

	res, err := newDispatcher(posts, activeLink(), sender, dp.MixedMediaGroup).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Claimed: 3, Published: 2, Failed: 1}, res)

	assert.Equal(t, dp.StatusPublished, posts.status("p1"))
	assert.Equal(t, dp.StatusFailed, posts.status("p2"))
	assert.Equal(t, dp.StatusPublished, posts.status("p3"))

	extra := posts.posts["p2"].Extra
	assert.Equal(t, "ops", extra["author"])
	assert.Equal(t, "Bad Request: chat not found", extra["last_error"])
	assert.NotEmpty(t, extra["failed_at"])
}

func TestMissingLinkFailsPost(t *testing.T) {
	posts := newMemPosts()
	posts.add("p1", time.Now().Add(-time.Minute))

	res, err := newDispatcher(posts, fixedLinks{}, &recSender{}, dp.MixedMediaGroup).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Contains(t, posts.failedDiag["p1"]["last_error"], "no linked chat")
}

func TestAttachmentLoadErrorFailsPost(t *testing.T) {
	posts := newMemPosts()
	posts.add("p1", time.Now().Add(-time.Minute))
	posts.attachErr = errors.New("connection reset")
	sender := &recSender{}

	res, err := newDispatcher(posts, activeLink(), sender, dp.MixedMediaGroup).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Empty(t, sender.calls)
}

func TestLongErrorIsTruncated(t *testing.T) {
	posts := newMemPosts()
	posts.add("p1", time.Now().Add(-time.Minute))
	posts.attachErr = errors.New(strings.Repeat("x", 5000))

	_, err := newDispatcher(posts, activeLink(), &recSender{}, dp.MixedMediaGroup).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Len(t, posts.failedDiag["p1"]["last_error"], maxErrorLen)
}

func TestMixedMediaModes(t *testing.T) {
	videos := []dp.Attachment{att(dp.AttachmentVideo, "1.mp4"), att(dp.AttachmentVideo, "2.mp4")}

	t.Run("group", func(t *testing.T) {
		posts := newMemPosts()
		posts.add("p1", time.Now().Add(-time.Minute), videos...)
		sender := &recSender{}

		_, err := newDispatcher(posts, activeLink(), sender, dp.MixedMediaGroup).RunOnce(context.Background())
		require.NoError(t, err)
		require.Len(t, sender.calls, 1)
		assert.Equal(t, "group", sender.calls[0].method)
		assert.Equal(t, telegram.MediaVideo, sender.calls[0].items[0].Kind)
	})

	t.Run("text", func(t *testing.T) {
		posts := newMemPosts()
		posts.add("p1", time.Now().Add(-time.Minute), videos...)
		sender := &recSender{}

		_, err := newDispatcher(posts, activeLink(), sender, dp.MixedMediaText).RunOnce(context.Background())
		require.NoError(t, err)
		require.Len(t, sender.calls, 1)
		assert.Equal(t, "text", sender.calls[0].method)
	})
}

func TestLargeAlbumIsChunked(t *testing.T) {
	var images []dp.Attachment
	for i := 0; i < 21; i++ {
		images = append(images, att(dp.AttachmentImage, fmt.Sprintf("%02d.jpg", i)))
	}
	posts := newMemPosts()
	posts.add("p1", time.Now().Add(-time.Minute), images...)
	sender := &recSender{}

	_, err := newDispatcher(posts, activeLink(), sender, dp.MixedMediaGroup).RunOnce(context.Background())
	require.NoError(t, err)

	require.Len(t, sender.calls, 3)
	assert.Len(t, sender.calls[0].items, 10)
	assert.Equal(t, "<b>hello</b> p1", sender.calls[0].items[0].Caption)
	assert.Len(t, sender.calls[1].items, 10)
	assert.Empty(t, sender.calls[1].caption)
	assert.Equal(t, call{method: "photo", url: base + "/20.jpg"}, sender.calls[2])
}

func TestConcurrentDispatchersPublishOnce(t *testing.T) {
	posts := newMemPosts()
	past := time.Now().Add(-time.Minute)
	for i := 0; i < 20; i++ {
		posts.add(fmt.Sprintf("p%02d", i), past.Add(time.Duration(i)*time.Millisecond))
	}
	sender := &recSender{}

	const workers = 4
	results := make([]Result, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			d := NewDispatcher(posts, activeLink(), sender, Options{BatchLimit: 20})
			res, err := d.RunOnce(context.Background())
			assert.NoError(t, err)
			results[w] = res
		}(w)
	}
	wg.Wait()

	total := 0
	for _, r := range results {
		total += r.Published
	}
	assert.Equal(t, 20, total)
	assert.Len(t, sender.calls, 20)

	seen := map[string]int{}
	for _, c := range sender.calls {
		seen[c.caption]++
	}
	for caption, n := range seen {
		assert.Equal(t, 1, n, caption)
	}
}

func TestURLFor(t *testing.T) {
	d := NewDispatcher(newMemPosts(), fixedLinks{}, &recSender{}, Options{StorageBaseURL: base})

	assert.Equal(t, base+"/x/y.png", d.URLFor(att(dp.AttachmentImage, "/x/y.png")))
	assert.Equal(t, "http://plain.example.com/z.png", d.URLFor(att(dp.AttachmentImage, "http://plain.example.com/z.png")))
}
