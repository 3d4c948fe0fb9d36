package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"civicfund/pkg/outbox"
)

const defaultReplayLimit = 100

// OutboxReplayer 由 outbox.ReplayService 实现
type OutboxReplayer interface {
	ReplayEvent(ctx context.Context, eventID int64) error
	ReplayFailedEvents(ctx context.Context, limit int) (outbox.ReplayReport, error)
}

// AdminHandler 运维接口：重放投递失败的领域事件
type AdminHandler struct {
	replayer OutboxReplayer
	logger   *zap.Logger
}

func NewAdminHandler(replayer OutboxReplayer, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		replayer: replayer,
		logger:   logger,
	}
}

// ReplayOutboxEvent POST /admin/outbox/replay?id=123
func (h *AdminHandler) ReplayOutboxEvent(c *gin.Context) {
	eventID, err := strconv.ParseInt(c.Query("id"), 10, 64)
	if err != nil || eventID <= 0 {
		badRequest(c, "id must be a positive integer")
		return
	}

	err = h.replayer.ReplayEvent(c.Request.Context(), eventID)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"status": "replayed", "event_id": eventID})
	case errors.Is(err, outbox.ErrEventNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "outbox event not found", "event_id": eventID})
	case errors.Is(err, outbox.ErrAlreadySent):
		c.JSON(http.StatusConflict, gin.H{"error": "outbox event already sent", "event_id": eventID})
	default:
		h.logger.Error("Failed to replay outbox event", zap.Int64("event_id", eventID), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to replay event", "event_id": eventID})
	}
}

// ReplayFailedEvents POST /admin/outbox/replay-failed?limit=100
func (h *AdminHandler) ReplayFailedEvents(c *gin.Context) {
	limit, ok := queryInt(c, "limit", defaultReplayLimit)
	if !ok {
		return
	}
	if limit <= 0 || limit > 1000 {
		badRequest(c, "limit must be between 1 and 1000")
		return
	}

	report, err := h.replayer.ReplayFailedEvents(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to replay failed outbox events", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load failed events"})
		return
	}

	h.logger.Info("Failed outbox events replayed",
		zap.Int("scanned", report.Scanned),
		zap.Int("replayed", report.Replayed),
		zap.Int("still_failed", len(report.FailedIDs)),
	)
	c.JSON(http.StatusOK, gin.H{"report": report, "limit": limit})
}
