package publisher

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	dl "tg-subscriptions-backend/internal/domain/link"
	dp "tg-subscriptions-backend/internal/domain/post"
	"tg-subscriptions-backend/internal/platform/telegram"
)

const (
	// Telegram accepts 2..10 items per album
	maxGroupSize = 10
	maxErrorLen  = 2000
)

// Sender is the subset of the bot transport used to publish posts.
type Sender interface {
	SendText(ctx context.Context, chatID int64, text string) error
	SendPhoto(ctx context.Context, chatID int64, url, caption string) error
	SendVideo(ctx context.Context, chatID int64, url, caption string) error
	SendDocument(ctx context.Context, chatID int64, url, caption string) error
	SendMediaGroup(ctx context.Context, chatID int64, items []telegram.MediaItem) error
}

// Links finds the chat a subscription publishes to.
type Links interface {
	FindExisting(ctx context.Context, subscriptionID string) (*dl.ChatLink, error)
}

type Options struct {
	BatchLimit     int
	MixedMedia     dp.MixedMediaMode
	StorageBaseURL string
}

// Result summarises one dispatcher tick.
type Result struct {
	Claimed   int `json:"claimed"`
	Published int `json:"published"`
	Failed    int `json:"failed"`
}

// Dispatcher claims due posts and publishes each to its subscription's chat.
// Claims are compare-and-set updates in the store, so any number of
// dispatchers may run against the same table.
type Dispatcher struct {
	posts  dp.Repository
	links  Links
	sender Sender
	opts   Options
	now    func() time.Time
	log    zerolog.Logger
}

func NewDispatcher(posts dp.Repository, links Links, sender Sender, opts Options) *Dispatcher {
	if opts.BatchLimit <= 0 {
		opts.BatchLimit = 5
	}
	if opts.MixedMedia == "" {
		opts.MixedMedia = dp.MixedMediaGroup
	}
	return &Dispatcher{
		posts:  posts,
		links:  links,
		sender: sender,
		opts:   opts,
		now:    time.Now,
		log:    log.With().Str("component", "publisher").Logger(),
	}
}

// RunOnce claims up to BatchLimit due posts and publishes them. A failing
// post never stops the rest of the batch.
func (d *Dispatcher) RunOnce(ctx context.Context) (Result, error) {
	var res Result

	claimed, err := d.ClaimDue(ctx)
	if err != nil {
		return res, err
	}
	res.Claimed = len(claimed)

	for _, p := range claimed {
		if err := d.Publish(ctx, p); err != nil {
			res.Failed++
			d.fail(ctx, p, err)
			continue
		}
		if err := d.posts.MarkPublished(ctx, p.ID, d.now().UTC()); err != nil {
			// the message is out; a retry would duplicate it
			d.log.Error().Err(err).Str("post_id", p.ID).Msg("mark post published failed")
		}
		res.Published++
		d.log.Info().Str("post_id", p.ID).Str("subscription_id", p.SubscriptionID).Msg("post published")
	}
	return res, nil
}

// ClaimDue returns the due posts this worker won. Posts claimed by someone
// else are skipped silently.
func (d *Dispatcher) ClaimDue(ctx context.Context) ([]*dp.ScheduledPost, error) {
	ids, err := d.posts.ListDue(ctx, d.now().UTC(), d.opts.BatchLimit)
	if err != nil {
		return nil, err
	}

	claimed := make([]*dp.ScheduledPost, 0, len(ids))
	for _, id := range ids {
		p, err := d.posts.Claim(ctx, id)
		if err != nil {
			d.log.Error().Err(err).Str("post_id", id).Msg("claim post failed")
			continue
		}
		if p == nil {
			d.log.Debug().Str("post_id", id).Msg("post claimed by another worker")
			continue
		}
		claimed = append(claimed, p)
	}
	return claimed, nil
}

// Publish sends one claimed post. It does not change the post's status.
func (d *Dispatcher) Publish(ctx context.Context, p *dp.ScheduledPost) error {
	link, err := d.links.FindExisting(ctx, p.SubscriptionID)
	if err != nil {
		return fmt.Errorf("load chat link: %w", err)
	}
	if link == nil {
		return fmt.Errorf("no linked chat for subscription %s", p.SubscriptionID)
	}
	if link.Status == dl.StatusPaused {
		return fmt.Errorf("chat %d is paused for subscription %s", link.ChatID, p.SubscriptionID)
	}

	attachments, err := d.posts.ListAttachments(ctx, p.ID)
	if err != nil {
		return fmt.Errorf("load attachments: %w", err)
	}

	chatID, text := link.ChatID, p.Body
	switch s := dp.Classify(attachments, d.opts.MixedMedia).(type) {
	case dp.TextOnly:
		return d.sender.SendText(ctx, chatID, text)
	case dp.PhotoGroup:
		return d.sendGroup(ctx, chatID, telegram.MediaPhoto, s.Photos, text)
	case dp.SinglePhoto:
		return d.sender.SendPhoto(ctx, chatID, d.URLFor(s.Photo), text)
	case dp.SingleVideo:
		return d.sender.SendVideo(ctx, chatID, d.URLFor(s.Video), text)
	case dp.SingleDocument:
		return d.sender.SendDocument(ctx, chatID, d.URLFor(s.Document), text)
	case dp.MediaGroup:
		kind := telegram.MediaVideo
		if s.Kind == dp.AttachmentFile {
			kind = telegram.MediaDocument
		}
		return d.sendGroup(ctx, chatID, kind, s.Items, text)
	case dp.Fallback:
		d.log.Warn().
			Str("post_id", p.ID).
			Int("dropped", len(s.Dropped)).
			Str("mode", string(d.opts.MixedMedia)).
			Msg("attachments cannot be sent together, publishing text only")
		return d.sender.SendText(ctx, chatID, text)
	}
	return fmt.Errorf("unhandled post shape")
}

// sendGroup sends items as albums of at most ten. Only the first item of the
// first album carries the caption; a lone trailing item goes out on its own.
func (d *Dispatcher) sendGroup(ctx context.Context, chatID int64, kind telegram.MediaKind, items []dp.Attachment, caption string) error {
	for start := 0; start < len(items); start += maxGroupSize {
		end := start + maxGroupSize
		if end > len(items) {
			end = len(items)
		}
		first := ""
		if start == 0 {
			first = caption
		}

		chunk := items[start:end]
		if len(chunk) == 1 {
			if err := d.sendSingle(ctx, chatID, kind, d.URLFor(chunk[0]), first); err != nil {
				return err
			}
			continue
		}

		media := make([]telegram.MediaItem, 0, len(chunk))
		for i, a := range chunk {
			item := telegram.MediaItem{Kind: kind, URL: d.URLFor(a)}
			if i == 0 {
				item.Caption = first
			}
			media = append(media, item)
		}
		if err := d.sender.SendMediaGroup(ctx, chatID, media); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) sendSingle(ctx context.Context, chatID int64, kind telegram.MediaKind, url, caption string) error {
	switch kind {
	case telegram.MediaVideo:
		return d.sender.SendVideo(ctx, chatID, url, caption)
	case telegram.MediaDocument:
		return d.sender.SendDocument(ctx, chatID, url, caption)
	default:
		return d.sender.SendPhoto(ctx, chatID, url, caption)
	}
}

// URLFor maps a storage path to a public URL. Absolute URLs pass through.
func (d *Dispatcher) URLFor(a dp.Attachment) string {
	if strings.HasPrefix(a.StoragePath, "http") {
		return a.StoragePath
	}
	return strings.TrimRight(d.opts.StorageBaseURL, "/") + "/" + strings.TrimLeft(a.StoragePath, "/")
}

func (d *Dispatcher) fail(ctx context.Context, p *dp.ScheduledPost, cause error) {
	msg := cause.Error()
	if len(msg) > maxErrorLen {
		msg = msg[:maxErrorLen]
	}
	diag := map[string]interface{}{
		"last_error": msg,
		"failed_at":  d.now().UTC().Format(time.RFC3339),
	}

	d.log.Error().Err(cause).Str("post_id", p.ID).Str("subscription_id", p.SubscriptionID).Msg("publish post failed")
	if err := d.posts.MarkFailed(ctx, p.ID, diag); err != nil {
		d.log.Error().Err(err).Str("post_id", p.ID).Msg("record post failure failed")
	}
}
