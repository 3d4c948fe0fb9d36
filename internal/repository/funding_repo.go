package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"civicfund/internal/model"
)

// FundingRepository 资金汇总的只读查询，不加锁
type FundingRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewFundingRepository(db *pgxpool.Pool, logger *zap.Logger) *FundingRepository {
	return &FundingRepository{db: db, logger: logger}
}

// SumCompletedPledges 一次分组查询得到各项目 COMPLETED 认捐的金额和笔数
// 没有 COMPLETED 认捐的项目不出现在结果中
func (r *FundingRepository) SumCompletedPledges(ctx context.Context, projectIDs []string) (_ map[string]model.FundingTotals, err error) {
	ctx, done := instrument(ctx, "aggregate", "pledges")
	defer func() { done(err) }()

	totals := make(map[string]model.FundingTotals, len(projectIDs))
	if len(projectIDs) == 0 {
		return totals, nil
	}

	rows, err := r.db.Query(ctx, `
        SELECT project_id, COALESCE(SUM(amount), 0), COUNT(*)
        FROM pledges
        WHERE project_id = ANY($1) AND status = $2
        GROUP BY project_id
    `, projectIDs, model.PledgeStatusCompleted)
	if err != nil {
		r.logger.Error("Failed to sum pledges", zap.Int("projects", len(projectIDs)), zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id string
			t  model.FundingTotals
		)
		if err := rows.Scan(&id, &t.Amount, &t.Count); err != nil {
			return nil, err
		}
		totals[id] = t
	}
	return totals, rows.Err()
}

// GetFundingGoals 返回存在的项目的目标金额
func (r *FundingRepository) GetFundingGoals(ctx context.Context, projectIDs []string) (_ map[string]int64, err error) {
	ctx, done := instrument(ctx, "select", "projects")
	defer func() { done(err) }()

	goals := make(map[string]int64, len(projectIDs))
	if len(projectIDs) == 0 {
		return goals, nil
	}

	rows, err := r.db.Query(ctx, `SELECT id, funding_goal FROM projects WHERE id = ANY($1)`, projectIDs)
	if err != nil {
		r.logger.Error("Failed to load funding goals", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id   string
			goal int64
		)
		if err := rows.Scan(&id, &goal); err != nil {
			return nil, err
		}
		goals[id] = goal
	}
	return goals, rows.Err()
}
