package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"civicfund/internal/model"
	"civicfund/internal/service/milestone"
)

// MilestoneService 由 milestone.Allocator 实现
type MilestoneService interface {
	CreateMilestone(ctx context.Context, caller model.Caller, projectID string, in milestone.CreateInput) (*model.Milestone, error)
	ListMilestones(ctx context.Context, projectID string) ([]model.Milestone, error)
}

type MilestoneHandler struct {
	svc    MilestoneService
	logger *zap.Logger
}

func NewMilestoneHandler(svc MilestoneService, logger *zap.Logger) *MilestoneHandler {
	return &MilestoneHandler{svc: svc, logger: logger}
}

type createMilestoneRequest struct {
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	TargetDate    *time.Time `json:"target_date"`
	FundingAmount int64      `json:"funding_amount"`
	OrderIndex    int        `json:"order_index"`
}

// Create POST /api/v1/projects/:id/milestones
func (h *MilestoneHandler) Create(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}

	var req createMilestoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}

	m, err := h.svc.CreateMilestone(c.Request.Context(), caller, c.Param("id"), milestone.CreateInput{
		Title:         req.Title,
		Description:   req.Description,
		TargetDate:    req.TargetDate,
		FundingAmount: req.FundingAmount,
		OrderIndex:    req.OrderIndex,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"milestone": m})
}

// List GET /api/v1/projects/:id/milestones
func (h *MilestoneHandler) List(c *gin.Context) {
	milestones, err := h.svc.ListMilestones(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"milestones": milestones})
}
