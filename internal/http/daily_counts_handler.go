package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"tg-subscriptions-backend/internal/service/membership"
)

// DailyCounts snapshots member counts of every tracked chat.
type DailyCounts interface {
	SnapshotDailyCounts(ctx context.Context) (membership.DailyResult, error)
}

type DailyCountsHandler struct {
	counts DailyCounts
}

func NewDailyCountsHandler(counts DailyCounts) *DailyCountsHandler {
	return &DailyCountsHandler{counts: counts}
}

func (h *DailyCountsHandler) RegisterRoutes(router *gin.RouterGroup) {
	// GET is kept for cron services that can only issue GET requests
	router.POST("/daily-counts", h.trigger)
	router.GET("/daily-counts", h.trigger)
}

// @Summary Trigger daily member counts
// @Description Stores today's member count for every tracked chat. Chats that fail are skipped and counted.
// @Tags telegram
// @Produce json
// @Success 200 {object} DailyCountsResponse
// @Failure 500 {object} middleware.ErrorResponse "Internal server error"
// @Router /api/v1/telegram/daily-counts [post]
func (h *DailyCountsHandler) trigger(c *gin.Context) {
	res, err := h.counts.SnapshotDailyCounts(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, DailyCountsResponse{Processed: res.Processed, Failed: res.Failed})
}
