package telegram

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// MediaKind is a Bot API input media type.
type MediaKind string

const (
	MediaPhoto    MediaKind = "photo"
	MediaVideo    MediaKind = "video"
	MediaDocument MediaKind = "document"
)

// MediaItem is one entry of a media group. Caption is shown only on the
// first item by Telegram clients.
type MediaItem struct {
	Kind    MediaKind
	URL     string
	Caption string
}

// SendText sends an HTML message.
func (c *Client) SendText(ctx context.Context, chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	return c.send(ctx, "sendMessage", msg)
}

// SendTextRemoveKeyboard sends an HTML message and hides any reply keyboard.
func (c *Client) SendTextRemoveKeyboard(ctx context.Context, chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(true)
	return c.send(ctx, "sendMessage", msg)
}

// SendChatPicker sends text with a keyboard asking the user to pick a group
// or channel they administer.
func (c *Client) SendChatPicker(ctx context.Context, chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	msg.ReplyMarkup = chatPickerKeyboard()
	return c.send(ctx, "sendMessage", msg)
}

func (c *Client) SendPhoto(ctx context.Context, chatID int64, url, caption string) error {
	msg := tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(url))
	msg.Caption = caption
	msg.ParseMode = tgbotapi.ModeHTML
	return c.send(ctx, "sendPhoto", msg)
}

func (c *Client) SendVideo(ctx context.Context, chatID int64, url, caption string) error {
	msg := tgbotapi.NewVideo(chatID, tgbotapi.FileURL(url))
	msg.Caption = caption
	msg.ParseMode = tgbotapi.ModeHTML
	return c.send(ctx, "sendVideo", msg)
}

func (c *Client) SendDocument(ctx context.Context, chatID int64, url, caption string) error {
	msg := tgbotapi.NewDocument(chatID, tgbotapi.FileURL(url))
	msg.Caption = caption
	msg.ParseMode = tgbotapi.ModeHTML
	return c.send(ctx, "sendDocument", msg)
}

// SendMediaGroup sends 2 to 10 items as one album.
func (c *Client) SendMediaGroup(ctx context.Context, chatID int64, items []MediaItem) error {
	media := make([]interface{}, 0, len(items))
	for _, it := range items {
		file := tgbotapi.FileURL(it.URL)
		switch it.Kind {
		case MediaVideo:
			m := tgbotapi.NewInputMediaVideo(file)
			m.Caption, m.ParseMode = it.Caption, captionMode(it.Caption)
			media = append(media, m)
		case MediaDocument:
			m := tgbotapi.NewInputMediaDocument(file)
			m.Caption, m.ParseMode = it.Caption, captionMode(it.Caption)
			media = append(media, m)
		default:
			m := tgbotapi.NewInputMediaPhoto(file)
			m.Caption, m.ParseMode = it.Caption, captionMode(it.Caption)
			media = append(media, m)
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	if _, err := c.api.SendMediaGroup(tgbotapi.NewMediaGroup(chatID, media)); err != nil {
		return wrap("sendMediaGroup", err)
	}
	return nil
}

func captionMode(caption string) string {
	if caption == "" {
		return ""
	}
	return tgbotapi.ModeHTML
}
