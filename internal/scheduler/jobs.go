package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"civicfund/internal/model"
)

// FeaturedRefresher 由 featured.Engine 实现
type FeaturedRefresher interface {
	Refresh(ctx context.Context) error
}

// FeaturedWarmJob 定期重新计算推荐列表并写入缓存
type FeaturedWarmJob struct {
	engine   FeaturedRefresher
	interval time.Duration
}

func NewFeaturedWarmJob(engine FeaturedRefresher, interval time.Duration) *FeaturedWarmJob {
	return &FeaturedWarmJob{engine: engine, interval: interval}
}

func (j *FeaturedWarmJob) Name() string { return "featured_cache_warmer" }

func (j *FeaturedWarmJob) Schedule() gocron.JobDefinition {
	return gocron.DurationJob(j.interval)
}

func (j *FeaturedWarmJob) Execute(ctx context.Context) error {
	return j.engine.Refresh(ctx)
}

// GoalPromoter 由 project.Service 实现
type GoalPromoter interface {
	PromoteFullyFunded(ctx context.Context, system model.Caller) (int, error)
}

// GoalSweepJob 把资金已达标的 ACTIVE 项目推进到 FUNDED
type GoalSweepJob struct {
	projects GoalPromoter
	system   model.Caller
	interval time.Duration
	logger   *zap.Logger
}

func NewGoalSweepJob(projects GoalPromoter, systemUserID string, interval time.Duration, logger *zap.Logger) *GoalSweepJob {
	return &GoalSweepJob{
		projects: projects,
		system:   model.Caller{UserID: systemUserID, Admin: true},
		interval: interval,
		logger:   logger,
	}
}

func (j *GoalSweepJob) Name() string { return "goal_reached_sweep" }

func (j *GoalSweepJob) Schedule() gocron.JobDefinition {
	return gocron.DurationJob(j.interval)
}

func (j *GoalSweepJob) Execute(ctx context.Context) error {
	n, err := j.projects.PromoteFullyFunded(ctx, j.system)
	if err != nil {
		return err
	}
	j.logger.Debug("Goal sweep finished", zap.Int("promoted", n))
	return nil
}
