package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"civicfund/internal/handler"
	"civicfund/pkg/otel"
	"civicfund/pkg/rbac"
)

// ReadinessCheck 返回 nil 表示依赖可用
type ReadinessCheck func(ctx context.Context) error

type Handlers struct {
	Project   *handler.ProjectHandler
	Milestone *handler.MilestoneHandler
	Pledge    *handler.PledgeHandler
	Featured  *handler.FeaturedHandler
	// 内存存储模式下没有 outbox，可以为 nil
	Admin *handler.AdminHandler
}

type Options struct {
	JWTSecret string
	// key 会出现在 /readyz 的失败响应里，例如 db、mq
	Readiness map[string]ReadinessCheck
}

func NewRouter(h Handlers, opts Options, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), TraceMiddleware(), otel.GinMiddleware("/healthz", "/readyz", "/metrics"), AccessLog(logger))

	// Health endpoints (放在最前面)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
		defer cancel()

		for name, check := range opts.Readiness {
			if err := check(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": name + "_not_ready", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 只读接口公开
	public := r.Group("/api/v1")
	{
		public.GET("/projects", h.Project.List)
		public.GET("/projects/:id", h.Project.Get)
		public.GET("/projects/:id/milestones", h.Milestone.List)
		public.GET("/featured-projects", h.Featured.List)
	}

	api := r.Group("/api/v1")
	api.Use(AuthMiddleware(opts.JWTSecret))
	{
		api.POST("/projects", RequirePermission(rbac.PermissionCreateProject), h.Project.Create)
		api.PATCH("/projects/:id", RequirePermission(rbac.PermissionUpdateProject), h.Project.Update)
		api.POST("/projects/:id/milestones", RequirePermission(rbac.PermissionCreateMilestone), h.Milestone.Create)

		api.GET("/projects/:id/pledges", RequirePermission(rbac.PermissionReadPledges), h.Pledge.ListByProject)
		api.POST("/pledges", RequirePermission(rbac.PermissionRelayPledge), h.Pledge.Record)
		api.POST("/pledges/:id/events", RequirePermission(rbac.PermissionRelayPledge), h.Pledge.RecordEvent)
	}

	if h.Admin != nil {
		admin := r.Group("/admin")
		admin.Use(AuthMiddleware(opts.JWTSecret), RequirePermission(rbac.PermissionReplayOutbox))
		{
			admin.POST("/outbox/replay", h.Admin.ReplayOutboxEvent)
			admin.POST("/outbox/replay-failed", h.Admin.ReplayFailedEvents)
		}
	}

	return r
}
