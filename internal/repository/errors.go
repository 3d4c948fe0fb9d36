package repository

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound 记录不存在（或外键指向的记录不存在）
	ErrNotFound = errors.New("record not found")
	// ErrConflict 事务因序列化失败 / 死锁 / 锁等待被中止，可以整体重试
	ErrConflict = errors.New("transaction conflict")
	// ErrDuplicate 主键重复
	ErrDuplicate = errors.New("duplicate record")
)

// mapError 把 pgx 错误归一到仓储层的哨兵错误，其他错误原样返回
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03":
			return fmt.Errorf("%w: %s", ErrConflict, pgErr.Message)
		case "23503":
			return fmt.Errorf("%w: %s", ErrNotFound, pgErr.Detail)
		case "23505":
			return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.Detail)
		}
	}
	return err
}
