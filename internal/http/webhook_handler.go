package http

import (
	"context"
	"crypto/subtle"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"tg-subscriptions-backend/internal/common/errors"
)

// maxUpdateSize bounds a single webhook body.
const maxUpdateSize = 1 << 20

// UpdateQueue accepts raw updates for asynchronous processing.
type UpdateQueue interface {
	Enqueue(ctx context.Context, raw []byte) error
}

// WebhookHandler receives Bot API updates. The secret is part of the path
// registered with setWebhook, so unknown callers get a 404.
type WebhookHandler struct {
	secret string
	queue  UpdateQueue
}

func NewWebhookHandler(secret string, queue UpdateQueue) *WebhookHandler {
	return &WebhookHandler{secret: secret, queue: queue}
}

func (h *WebhookHandler) RegisterRoutes(router gin.IRoutes) {
	router.POST("/telegram/webhook/:secret", h.receive)
}

func (h *WebhookHandler) receive(c *gin.Context) {
	if subtle.ConstantTimeCompare([]byte(c.Param("secret")), []byte(h.secret)) != 1 {
		_ = c.Error(errors.New(errors.ErrCodeNotFound, "Not found"))
		return
	}

	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxUpdateSize))
	if err != nil || len(raw) == 0 {
		_ = c.Error(errors.NewValidationError("body", "must contain an update"))
		return
	}
	if err := h.queue.Enqueue(c.Request.Context(), raw); err != nil {
		_ = c.Error(errors.NewCacheError("enqueue_update", err))
		return
	}
	c.Status(http.StatusOK)
}
