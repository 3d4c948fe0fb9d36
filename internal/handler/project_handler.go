package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"civicfund/internal/model"
	"civicfund/internal/service/project"
)

// ProjectService 由 project.Service 实现
type ProjectService interface {
	Create(ctx context.Context, caller model.Caller, in project.CreateInput) (*model.Project, error)
	Update(ctx context.Context, caller model.Caller, projectID string, in project.UpdateInput) (*model.Project, error)
	GetByID(ctx context.Context, projectID string) (*model.ProjectWithFunding, error)
	List(ctx context.Context, q model.ProjectQuery) (*model.ProjectPage, error)
}

type ProjectHandler struct {
	svc    ProjectService
	logger *zap.Logger
}

func NewProjectHandler(svc ProjectService, logger *zap.Logger) *ProjectHandler {
	return &ProjectHandler{svc: svc, logger: logger}
}

type createProjectRequest struct {
	CampaignID      *string   `json:"campaign_id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	FundingGoal     int64     `json:"funding_goal"`
	FundingDeadline time.Time `json:"funding_deadline"`
	City            *string   `json:"city"`
	State           *string   `json:"state"`
}

// Create POST /api/v1/projects
func (h *ProjectHandler) Create(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}

	var req createProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}

	p, err := h.svc.Create(c.Request.Context(), caller, project.CreateInput{
		CampaignID:      req.CampaignID,
		Title:           req.Title,
		Description:     req.Description,
		FundingGoal:     req.FundingGoal,
		FundingDeadline: req.FundingDeadline,
		City:            req.City,
		State:           req.State,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"project": p})
}

type updateProjectRequest struct {
	Title           *string              `json:"title"`
	Description     *string              `json:"description"`
	FundingGoal     *int64               `json:"funding_goal"`
	FundingDeadline *time.Time           `json:"funding_deadline"`
	Status          *model.ProjectStatus `json:"status"`
	City            *string              `json:"city"`
	State           *string              `json:"state"`
}

// Update PATCH /api/v1/projects/:id
func (h *ProjectHandler) Update(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}

	var req updateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}

	p, err := h.svc.Update(c.Request.Context(), caller, c.Param("id"), project.UpdateInput{
		Title:           req.Title,
		Description:     req.Description,
		FundingGoal:     req.FundingGoal,
		FundingDeadline: req.FundingDeadline,
		Status:          req.Status,
		City:            req.City,
		State:           req.State,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"project": p})
}

// Get GET /api/v1/projects/:id
func (h *ProjectHandler) Get(c *gin.Context) {
	p, err := h.svc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"project": p})
}

// List GET /api/v1/projects?status=&creator_id=&search=&city=&state=&sort=&order=&page=&limit=
func (h *ProjectHandler) List(c *gin.Context) {
	page, ok := queryInt(c, "page", 1)
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit", project.DefaultPageSize)
	if !ok {
		return
	}

	order := c.DefaultQuery("order", "desc")
	if order != "asc" && order != "desc" {
		badRequest(c, "order must be asc or desc")
		return
	}

	result, err := h.svc.List(c.Request.Context(), model.ProjectQuery{
		Filter: model.ProjectFilter{
			Status:    model.ProjectStatus(c.Query("status")),
			CreatorID: c.Query("creator_id"),
			Search:    c.Query("search"),
			City:      c.Query("city"),
			State:     c.Query("state"),
		},
		Page:       page,
		Limit:      limit,
		SortBy:     model.SortField(c.Query("sort")),
		Descending: order == "desc",
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.logger.Debug("ListProjects: success",
		zap.Int("page", result.Page),
		zap.Int("count", len(result.Projects)),
		zap.Int64("total", result.Total),
	)
	c.JSON(http.StatusOK, result)
}
