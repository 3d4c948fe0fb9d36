// Package featured 选出推荐展示的项目：募集中、未过期，按资金进度亲和度排序。
package featured

import (
	"context"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"civicfund/internal/model"
	"civicfund/pkg/apperr"
	"civicfund/pkg/logger"
)

// 资金进度落在 [BandLow, BandHigh] 区间内时按与 Peak 的距离打分
const (
	BandLow  = 50.0
	BandHigh = 90.0
	Peak     = 70.0
)

// Score 区间内 100 - |70 - pct|，区间外直接取 pct
func Score(pct float64) float64 {
	if pct >= BandLow && pct <= BandHigh {
		return 100 - math.Abs(Peak-pct)
	}
	return pct
}

type CandidateStore interface {
	ListFeaturedCandidates(ctx context.Context, now time.Time, limit int) ([]model.Project, error)
}

type Summarizer interface {
	SummarizeProjects(ctx context.Context, projects []model.Project) (map[string]model.FundingSummary, error)
}

// Cache 可选的结果缓存（按 limit 区分）
type Cache interface {
	Get(ctx context.Context, limit int) ([]model.FeaturedProject, bool)
	Set(ctx context.Context, limit int, items []model.FeaturedProject)
}

type Engine struct {
	store        CandidateStore
	summarizer   Summarizer
	cache        Cache
	defaultLimit int
	maxLimit     int
	now          func() time.Time
	logger       *zap.Logger
}

func NewEngine(store CandidateStore, summarizer Summarizer, defaultLimit, maxLimit int, logger *zap.Logger) *Engine {
	return &Engine{
		store:        store,
		summarizer:   summarizer,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
		now:          time.Now,
		logger:       logger,
	}
}

// WithCache 挂载缓存
func (e *Engine) WithCache(c Cache) *Engine {
	e.cache = c
	return e
}

// WithClock 替换时间源（测试用）
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

func (e *Engine) normalizeLimit(limit int) int {
	if limit <= 0 {
		return e.defaultLimit
	}
	return min(limit, e.maxLimit)
}

// ListFeatured 返回前 limit 个推荐项目；limit <= 0 使用默认值，超过上限时截断
func (e *Engine) ListFeatured(ctx context.Context, limit int) ([]model.FeaturedProject, error) {
	limit = e.normalizeLimit(limit)

	if e.cache != nil {
		if items, ok := e.cache.Get(ctx, limit); ok {
			return items, nil
		}
	}

	items, err := e.Rank(ctx, limit)
	if err != nil {
		return nil, err
	}

	if e.cache != nil {
		e.cache.Set(ctx, limit, items)
	}
	return items, nil
}

// Rank 不经过缓存直接计算
func (e *Engine) Rank(ctx context.Context, limit int) ([]model.FeaturedProject, error) {
	limit = e.normalizeLimit(limit)

	candidates, err := e.store.ListFeaturedCandidates(ctx, e.now(), 2*limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "list featured candidates", err)
	}

	summaries, err := e.summarizer.SummarizeProjects(ctx, candidates)
	if err != nil {
		return nil, err
	}

	ranked := make([]model.FeaturedProject, len(candidates))
	for i, p := range candidates {
		s := summaries[p.ID]
		ranked[i] = model.FeaturedProject{
			ProjectWithFunding: model.ProjectWithFunding{Project: p, Funding: s},
			Score:              Score(s.FundingPercentage),
		}
	}

	// 稳定排序：同分时保持候选集的创建时间顺序
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	logger.WithTrace(ctx, e.logger).Debug("Featured projects ranked",
		zap.Int("candidates", len(candidates)),
		zap.Int("returned", len(ranked)),
	)
	return ranked, nil
}

// Refresh 重新计算默认 limit 的结果并写入缓存（定时任务调用）
func (e *Engine) Refresh(ctx context.Context) error {
	if e.cache == nil {
		return nil
	}
	items, err := e.Rank(ctx, e.defaultLimit)
	if err != nil {
		return err
	}
	e.cache.Set(ctx, e.defaultLimit, items)
	return nil
}
