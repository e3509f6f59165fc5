package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	qrcode "github.com/skip2/go-qrcode"

	"tg-subscriptions-backend/internal/common/errors"
	"tg-subscriptions-backend/internal/common/validation"
	"tg-subscriptions-backend/internal/service/linktoken"
)

const qrSize = 256

// LinkTokens issues link sessions.
type LinkTokens interface {
	Issue(ctx context.Context, subscriptionID, createdBy string) (*linktoken.Issued, error)
	StartLink(token string) string
}

type LinkSessionHandler struct {
	tokens LinkTokens
}

func NewLinkSessionHandler(tokens LinkTokens) *LinkSessionHandler {
	return &LinkSessionHandler{tokens: tokens}
}

func (h *LinkSessionHandler) RegisterRoutes(router *gin.RouterGroup) {
	sessions := router.Group("/link-session")
	{
		sessions.POST("", h.create)
		sessions.GET("/:token/qr.png", h.qr)
	}
}

// @Summary Create link session
// @Description Issues a one-time token and the bot deep links that start chat linking for a subscription.
// @Tags telegram
// @Accept json
// @Produce json
// @Param request body CreateLinkSessionRequest true "Subscription and requesting user"
// @Success 201 {object} LinkSessionResponse
// @Failure 400 {object} middleware.ErrorResponse "Invalid request"
// @Failure 500 {object} middleware.ErrorResponse "Internal server error"
// @Router /api/v1/telegram/link-session [post]
func (h *LinkSessionHandler) create(c *gin.Context) {
	var req CreateLinkSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errors.NewValidationError("body", "must be a JSON object"))
		return
	}
	if err := validation.Struct(req); err != nil {
		_ = c.Error(err)
		return
	}

	issued, err := h.tokens.Issue(c.Request.Context(), req.SubscriptionID, req.UserID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, LinkSessionResponse{
		SessionID:      issued.SessionID,
		Token:          issued.Token,
		StartLink:      issued.StartLink,
		StartGroupLink: issued.StartGroupLink,
		ExpiresAt:      issued.ExpiresAt,
	})
}

// @Summary Link session QR code
// @Description PNG QR code of the private-chat deep link, for opening the bot from another device.
// @Tags telegram
// @Produce png
// @Param token path string true "Link token"
// @Success 200 {file} binary
// @Failure 400 {object} middleware.ErrorResponse "Malformed token"
// @Router /api/v1/telegram/link-session/{token}/qr.png [get]
func (h *LinkSessionHandler) qr(c *gin.Context) {
	var uri tokenURI
	if err := c.ShouldBindUri(&uri); err != nil {
		_ = c.Error(errors.NewValidationError("token", "is required"))
		return
	}
	if err := validation.Struct(uri); err != nil {
		_ = c.Error(err)
		return
	}

	png, err := qrcode.Encode(h.tokens.StartLink(uri.Token), qrcode.Medium, qrSize)
	if err != nil {
		_ = c.Error(errors.Wrap(err, errors.ErrCodeInternal, "failed to render QR code"))
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}
