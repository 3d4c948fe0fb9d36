package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"civicfund/internal/model"
	"civicfund/internal/service/pledge"
)

// PledgeService 由 pledge.Ledger 实现
type PledgeService interface {
	RecordPledge(ctx context.Context, in pledge.RecordInput) (*model.Pledge, error)
	RecordPledgeEvent(ctx context.Context, pledgeID string, status model.PledgeStatus, at time.Time) (*model.Pledge, error)
	QueryByProject(ctx context.Context, projectID string, statuses ...model.PledgeStatus) ([]model.Pledge, error)
}

type PledgeHandler struct {
	svc    PledgeService
	logger *zap.Logger
}

func NewPledgeHandler(svc PledgeService, logger *zap.Logger) *PledgeHandler {
	return &PledgeHandler{svc: svc, logger: logger}
}

// ListByProject GET /api/v1/projects/:id/pledges?status=COMPLETED,REFUNDED
func (h *PledgeHandler) ListByProject(c *gin.Context) {
	var statuses []model.PledgeStatus
	if raw := c.Query("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			statuses = append(statuses, model.PledgeStatus(strings.ToUpper(strings.TrimSpace(s))))
		}
	}

	pledges, err := h.svc.QueryByProject(c.Request.Context(), c.Param("id"), statuses...)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pledges": pledges})
}

type recordPledgeRequest struct {
	PledgeID  string    `json:"pledge_id"`
	ProjectID string    `json:"project_id"`
	BackerID  string    `json:"backer_id"`
	Amount    int64     `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
}

// Record POST /api/v1/pledges（管理员转发支付服务的认捐）
func (h *PledgeHandler) Record(c *gin.Context) {
	var req recordPledgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}

	p, err := h.svc.RecordPledge(c.Request.Context(), pledge.RecordInput{
		PledgeID:  req.PledgeID,
		ProjectID: req.ProjectID,
		BackerID:  req.BackerID,
		Amount:    req.Amount,
		CreatedAt: req.CreatedAt,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"pledge": p})
}

type pledgeEventRequest struct {
	Status     model.PledgeStatus `json:"status"`
	OccurredAt time.Time          `json:"occurred_at"`
}

// RecordEvent POST /api/v1/pledges/:id/events（管理员转发支付回调）
func (h *PledgeHandler) RecordEvent(c *gin.Context) {
	var req pledgeEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}

	p, err := h.svc.RecordPledgeEvent(c.Request.Context(), c.Param("id"), req.Status, req.OccurredAt)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pledge": p})
}
