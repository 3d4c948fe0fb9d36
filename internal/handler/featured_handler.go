package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"civicfund/internal/model"
)

type FeaturedService interface {
	ListFeatured(ctx context.Context, limit int) ([]model.FeaturedProject, error)
}

type FeaturedHandler struct {
	svc    FeaturedService
	logger *zap.Logger
}

func NewFeaturedHandler(svc FeaturedService, logger *zap.Logger) *FeaturedHandler {
	return &FeaturedHandler{svc: svc, logger: logger}
}

// List GET /api/v1/featured-projects?limit=6
func (h *FeaturedHandler) List(c *gin.Context) {
	limit, ok := queryInt(c, "limit", 0)
	if !ok {
		return
	}

	items, err := h.svc.ListFeatured(c.Request.Context(), limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"projects": items})
}
