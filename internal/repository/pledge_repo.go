package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"civicfund/internal/model"
	"civicfund/pkg/outbox"
)

// PledgeMutation 在持有认捐行锁时修改认捐
type PledgeMutation func(p *model.Pledge) ([]outbox.Message, error)

type PledgeRepository struct {
	db     *pgxpool.Pool
	outbox *outbox.Repository
	logger *zap.Logger
}

func NewPledgeRepository(db *pgxpool.Pool, outboxRepo *outbox.Repository, logger *zap.Logger) *PledgeRepository {
	return &PledgeRepository{
		db:     db,
		outbox: outboxRepo,
		logger: logger,
	}
}

const pledgeColumns = `id, project_id, backer_id, amount, status, created_at, updated_at, completed_at, refunded_at`

func scanPledge(row pgx.Row, p *model.Pledge) error {
	return row.Scan(
		&p.ID,
		&p.ProjectID,
		&p.BackerID,
		&p.Amount,
		&p.Status,
		&p.CreatedAt,
		&p.UpdatedAt,
		&p.CompletedAt,
		&p.RefundedAt,
	)
}

// InsertPledge 外键不存在返回 ErrNotFound，主键重复返回 ErrDuplicate
func (r *PledgeRepository) InsertPledge(ctx context.Context, p *model.Pledge, msgs []outbox.Message) (err error) {
	ctx, done := instrument(ctx, "insert", "pledges")
	defer func() { done(err) }()

	r.logger.Debug("Inserting pledge",
		zap.String("pledge_id", p.ID),
		zap.String("project_id", p.ProjectID),
		zap.Int64("amount", p.Amount),
	)

	err = withTx(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
            INSERT INTO pledges (id, project_id, backer_id, amount, status, created_at, updated_at)
            VALUES ($1, $2, $3, $4, $5, $6, $7)
        `,
			p.ID,
			p.ProjectID,
			p.BackerID,
			p.Amount,
			p.Status,
			p.CreatedAt,
			p.UpdatedAt,
		); err != nil {
			return err
		}
		return outbox.InsertMessagesInTx(ctx, tx, r.outbox, msgs)
	})
	if err != nil {
		if !errors.Is(err, ErrDuplicate) {
			r.logger.Error("Failed to insert pledge", zap.String("pledge_id", p.ID), zap.Error(err))
		}
		return err
	}

	r.logger.Info("Pledge inserted successfully",
		zap.String("pledge_id", p.ID),
		zap.String("project_id", p.ProjectID),
	)
	return nil
}

func (r *PledgeRepository) GetPledge(ctx context.Context, id string) (_ *model.Pledge, err error) {
	ctx, done := instrument(ctx, "select", "pledges")
	defer func() { done(err) }()

	var p model.Pledge
	if err := scanPledge(r.db.QueryRow(ctx, `SELECT `+pledgeColumns+` FROM pledges WHERE id = $1`, id), &p); err != nil {
		return nil, mapError(err)
	}
	return &p, nil
}

// UpdatePledge 只锁定单条认捐行
func (r *PledgeRepository) UpdatePledge(ctx context.Context, id string, fn PledgeMutation) (_ *model.Pledge, err error) {
	ctx, done := instrument(ctx, "update", "pledges")
	defer func() { done(err) }()

	r.logger.Debug("Updating pledge", zap.String("pledge_id", id))

	var updated model.Pledge
	err = withTx(ctx, r.db, func(tx pgx.Tx) error {
		var p model.Pledge
		row := tx.QueryRow(ctx, `SELECT `+pledgeColumns+` FROM pledges WHERE id = $1 FOR UPDATE`, id)
		if err := scanPledge(row, &p); err != nil {
			return err
		}

		msgs, err := fn(&p)
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `
            UPDATE pledges
            SET status = $2, updated_at = $3, completed_at = $4, refunded_at = $5
            WHERE id = $1
        `, p.ID, p.Status, p.UpdatedAt, p.CompletedAt, p.RefundedAt); err != nil {
			return err
		}
		if err := outbox.InsertMessagesInTx(ctx, tx, r.outbox, msgs); err != nil {
			return err
		}
		updated = p
		return nil
	})
	if err != nil {
		r.logger.Warn("Pledge update not applied", zap.String("pledge_id", id), zap.Error(err))
		return nil, err
	}

	r.logger.Info("Pledge updated successfully",
		zap.String("pledge_id", id),
		zap.String("status", string(updated.Status)),
	)
	return &updated, nil
}

// ListPledges 按项目查询认捐；statuses 为空表示不过滤
func (r *PledgeRepository) ListPledges(ctx context.Context, projectIDs []string, statuses []model.PledgeStatus) (_ []model.Pledge, err error) {
	ctx, done := instrument(ctx, "select", "pledges")
	defer func() { done(err) }()

	if len(projectIDs) == 0 {
		return []model.Pledge{}, nil
	}

	query := `SELECT ` + pledgeColumns + ` FROM pledges WHERE project_id = ANY($1)`
	args := []any{projectIDs}
	if len(statuses) > 0 {
		names := make([]string, len(statuses))
		for i, s := range statuses {
			names[i] = string(s)
		}
		query += ` AND status = ANY($2)`
		args = append(args, names)
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list pledges", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	pledges := make([]model.Pledge, 0)
	for rows.Next() {
		var p model.Pledge
		if err := scanPledge(rows, &p); err != nil {
			r.logger.Error("Failed to scan pledge", zap.Error(err))
			return nil, err
		}
		pledges = append(pledges, p)
	}
	return pledges, rows.Err()
}
