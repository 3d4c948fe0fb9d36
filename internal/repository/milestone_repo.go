package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"civicfund/internal/model"
	"civicfund/pkg/outbox"
)

// MilestoneGuard 在持有项目行锁时校验预算；返回错误则不写入
type MilestoneGuard func(p *model.Project, allocated int64) ([]outbox.Message, error)

type MilestoneRepository struct {
	db     *pgxpool.Pool
	outbox *outbox.Repository
	logger *zap.Logger
}

func NewMilestoneRepository(db *pgxpool.Pool, outboxRepo *outbox.Repository, logger *zap.Logger) *MilestoneRepository {
	return &MilestoneRepository{
		db:     db,
		outbox: outboxRepo,
		logger: logger,
	}
}

// CreateMilestone 锁定项目行后读取已分配总额、执行 guard、插入里程碑，全部在一个事务内
func (r *MilestoneRepository) CreateMilestone(ctx context.Context, m *model.Milestone, guard MilestoneGuard) (err error) {
	ctx, done := instrument(ctx, "insert", "project_milestones")
	defer func() { done(err) }()

	r.logger.Debug("Inserting milestone",
		zap.String("project_id", m.ProjectID),
		zap.String("title", m.Title),
		zap.Int64("funding_amount", m.FundingAmount),
		zap.Int("order_index", m.OrderIndex),
	)

	err = withTx(ctx, r.db, func(tx pgx.Tx) error {
		p, allocated, err := lockProject(ctx, tx, m.ProjectID)
		if err != nil {
			return err
		}

		msgs, err := guard(p, allocated)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
            INSERT INTO project_milestones (id, project_id, title, description, target_date,
                                            funding_amount, order_index, status, created_at)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        `,
			m.ID,
			m.ProjectID,
			m.Title,
			m.Description,
			m.TargetDate,
			m.FundingAmount,
			m.OrderIndex,
			m.Status,
			m.CreatedAt,
		)
		if err != nil {
			return err
		}
		return outbox.InsertMessagesInTx(ctx, tx, r.outbox, msgs)
	})
	if err != nil {
		r.logger.Warn("Milestone not created",
			zap.String("project_id", m.ProjectID),
			zap.Error(err),
		)
		return err
	}

	r.logger.Info("Milestone inserted successfully",
		zap.String("id", m.ID),
		zap.String("project_id", m.ProjectID),
	)
	return nil
}

func (r *MilestoneRepository) ListMilestones(ctx context.Context, projectID string) (_ []model.Milestone, err error) {
	ctx, done := instrument(ctx, "select", "project_milestones")
	defer func() { done(err) }()

	query := `
        SELECT id, project_id, title, description, target_date, funding_amount, order_index, status, created_at
        FROM project_milestones
        WHERE project_id = $1
        ORDER BY order_index ASC, created_at ASC, id ASC
    `

	rows, err := r.db.Query(ctx, query, projectID)
	if err != nil {
		r.logger.Error("Failed to find milestones", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	milestones := make([]model.Milestone, 0)
	for rows.Next() {
		var m model.Milestone
		if err := rows.Scan(
			&m.ID,
			&m.ProjectID,
			&m.Title,
			&m.Description,
			&m.TargetDate,
			&m.FundingAmount,
			&m.OrderIndex,
			&m.Status,
			&m.CreatedAt,
		); err != nil {
			r.logger.Error("Failed to scan milestone", zap.Error(err))
			return nil, err
		}
		milestones = append(milestones, m)
	}

	return milestones, rows.Err()
}
