// Package funding 从认捐账本计算项目的资金汇总。
package funding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"civicfund/internal/model"
	"civicfund/pkg/apperr"
	"civicfund/pkg/metrics"
)

// Store 汇总所需的只读查询
type Store interface {
	GetFundingGoals(ctx context.Context, projectIDs []string) (map[string]int64, error)
	SumCompletedPledges(ctx context.Context, projectIDs []string) (map[string]model.FundingTotals, error)
}

type Aggregator struct {
	store  Store
	logger *zap.Logger
}

func NewAggregator(store Store, logger *zap.Logger) *Aggregator {
	return &Aggregator{store: store, logger: logger}
}

// Compute 由目标金额和 COMPLETED 汇总得出 FundingSummary
// goal <= 0 违反项目不变量，直接报错而不是返回 Inf/NaN
func Compute(projectID string, goal int64, totals model.FundingTotals) (model.FundingSummary, error) {
	if goal <= 0 {
		return model.FundingSummary{}, apperr.Newf(apperr.CodeInternal,
			"project %s has non-positive funding goal %d", projectID, goal)
	}
	return model.FundingSummary{
		CurrentFunding:    totals.Amount,
		BackerCount:       totals.Count,
		FundingPercentage: float64(totals.Amount) / float64(goal) * 100,
	}, nil
}

// Summarize 单个项目的资金汇总
func (a *Aggregator) Summarize(ctx context.Context, projectID string) (model.FundingSummary, error) {
	summaries, err := a.summarize(ctx, "single", []string{projectID})
	if err != nil {
		return model.FundingSummary{}, err
	}
	return summaries[projectID], nil
}

// SummarizeBatch 一次分组查询得到多个项目的汇总；没有 COMPLETED 认捐的项目返回零值
// 任何一个项目不存在都返回 NOT_FOUND
func (a *Aggregator) SummarizeBatch(ctx context.Context, projectIDs []string) (map[string]model.FundingSummary, error) {
	return a.summarize(ctx, "batch", projectIDs)
}

func (a *Aggregator) summarize(ctx context.Context, mode string, projectIDs []string) (map[string]model.FundingSummary, error) {
	ids := dedupe(projectIDs)
	if len(ids) == 0 {
		return map[string]model.FundingSummary{}, nil
	}

	goals, err := a.store.GetFundingGoals(ctx, ids)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "load funding goals", err)
	}
	for _, id := range ids {
		if _, ok := goals[id]; !ok {
			return nil, apperr.Newf(apperr.CodeNotFound, "project %s not found", id)
		}
	}
	return a.fold(ctx, mode, ids, goals)
}

// SummarizeProjects 为已加载的项目计算汇总，省去一次目标金额查询
func (a *Aggregator) SummarizeProjects(ctx context.Context, projects []model.Project) (map[string]model.FundingSummary, error) {
	goals := make(map[string]int64, len(projects))
	ids := make([]string, 0, len(projects))
	for _, p := range projects {
		if _, seen := goals[p.ID]; !seen {
			ids = append(ids, p.ID)
		}
		goals[p.ID] = p.FundingGoal
	}
	if len(ids) == 0 {
		return map[string]model.FundingSummary{}, nil
	}
	return a.fold(ctx, "batch", ids, goals)
}

func (a *Aggregator) fold(ctx context.Context, mode string, ids []string, goals map[string]int64) (map[string]model.FundingSummary, error) {
	start := time.Now()
	defer func() { metrics.RecordFundingSummaryDuration(mode, time.Since(start)) }()

	totals, err := a.store.SumCompletedPledges(ctx, ids)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "sum completed pledges", err)
	}

	summaries := make(map[string]model.FundingSummary, len(ids))
	var errs []error
	for _, id := range ids {
		s, err := Compute(id, goals[id], totals[id])
		if err != nil {
			a.logger.Error("Funding summary invariant violated", zap.String("project_id", id), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		summaries[id] = s
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("summarize %d projects: %w", len(ids), errors.Join(errs...))
	}
	return summaries, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
