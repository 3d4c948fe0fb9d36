package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"civicfund/pkg/metrics"
	"civicfund/pkg/otel"
)

// withTx 在单个事务中执行 fn；fn 返回错误时回滚
func withTx(ctx context.Context, db *pgxpool.Pool, fn func(tx pgx.Tx) error) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return mapError(err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return mapError(err)
	}

	return mapError(tx.Commit(ctx))
}

// instrument 为一次仓储操作记录 span 和耗时
func instrument(ctx context.Context, operation, table string) (context.Context, func(error)) {
	ctx, span := otel.DBSpan(ctx, operation, table)
	start := time.Now()
	return ctx, func(err error) {
		metrics.RecordDBQueryDuration(operation, table, time.Since(start))
		otel.EndDBSpan(span, err)
	}
}
