package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
)

// AllowedUpdates are the update kinds the bot subscribes to. chat_member must
// be requested explicitly.
var AllowedUpdates = []string{"message", "my_chat_member", "chat_member"}

// ChatShared is the service message produced by a request_chat button.
type ChatShared struct {
	RequestID int   `json:"request_id"`
	ChatID    int64 `json:"chat_id"`
}

// Update is a Bot API update plus fields the client library does not model.
type Update struct {
	tgbotapi.Update
	ChatShared *ChatShared
}

// DecodeUpdate parses one raw update.
func DecodeUpdate(raw []byte) (*Update, error) {
	var u Update
	if err := json.Unmarshal(raw, &u.Update); err != nil {
		return nil, fmt.Errorf("decode update: %w", err)
	}
	var ext struct {
		Message *struct {
			ChatShared *ChatShared `json:"chat_shared"`
		} `json:"message"`
	}
	if err := json.Unmarshal(raw, &ext); err != nil {
		return nil, fmt.Errorf("decode update: %w", err)
	}
	if ext.Message != nil {
		u.ChatShared = ext.Message.ChatShared
	}
	return &u, nil
}

// Poll long-polls getUpdates and passes every raw update to handle, in order,
// until ctx is cancelled.
func (c *Client) Poll(ctx context.Context, timeoutSec int, handle func(ctx context.Context, raw []byte)) error {
	if _, err := c.api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		return wrap("deleteWebhook", err)
	}

	allowed, _ := json.Marshal(AllowedUpdates)
	offset := 0
	for {
		if ctx.Err() != nil {
			return nil
		}

		resp, err := c.api.MakeRequest("getUpdates", tgbotapi.Params{
			"offset":          strconv.Itoa(offset),
			"timeout":         strconv.Itoa(timeoutSec),
			"allowed_updates": string(allowed),
		})
		if err != nil {
			log.Warn().Err(err).Msg("getUpdates failed, retrying")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(3 * time.Second):
			}
			continue
		}

		var raws []json.RawMessage
		if err := json.Unmarshal(resp.Result, &raws); err != nil {
			return fmt.Errorf("decode getUpdates: %w", err)
		}
		for _, raw := range raws {
			var head struct {
				UpdateID int `json:"update_id"`
			}
			if err := json.Unmarshal(raw, &head); err != nil {
				log.Warn().Err(err).Msg("skip undecodable update")
				continue
			}
			if head.UpdateID >= offset {
				offset = head.UpdateID + 1
			}
			handle(ctx, raw)
		}
	}
}
