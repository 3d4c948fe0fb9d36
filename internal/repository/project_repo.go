package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"civicfund/internal/model"
	"civicfund/pkg/outbox"
)

// ProjectMutation 在持有项目行锁的事务内修改项目
// allocated 为该项目现有里程碑金额之和；返回的消息与修改一起提交
type ProjectMutation func(p *model.Project, allocated int64) ([]outbox.Message, error)

type ProjectRepository struct {
	db     *pgxpool.Pool
	outbox *outbox.Repository
	logger *zap.Logger
}

func NewProjectRepository(db *pgxpool.Pool, outboxRepo *outbox.Repository, logger *zap.Logger) *ProjectRepository {
	return &ProjectRepository{
		db:     db,
		outbox: outboxRepo,
		logger: logger,
	}
}

const projectColumns = `id, title, description, funding_goal, funding_deadline, status,
        creator_id, campaign_id, city, state, created_at, updated_at`

func scanProject(row pgx.Row, p *model.Project) error {
	return row.Scan(
		&p.ID,
		&p.Title,
		&p.Description,
		&p.FundingGoal,
		&p.FundingDeadline,
		&p.Status,
		&p.CreatorID,
		&p.CampaignID,
		&p.City,
		&p.State,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
}

func (r *ProjectRepository) CreateProject(ctx context.Context, p *model.Project, msgs []outbox.Message) (err error) {
	ctx, done := instrument(ctx, "insert", "projects")
	defer func() { done(err) }()

	r.logger.Debug("Inserting project",
		zap.String("project_id", p.ID),
		zap.String("creator_id", p.CreatorID),
		zap.String("title", p.Title),
	)

	query := `
        INSERT INTO projects (id, title, description, funding_goal, funding_deadline, status,
                              creator_id, campaign_id, city, state, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
    `
	err = withTx(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, query,
			p.ID,
			p.Title,
			p.Description,
			p.FundingGoal,
			p.FundingDeadline,
			p.Status,
			p.CreatorID,
			p.CampaignID,
			p.City,
			p.State,
			p.CreatedAt,
			p.UpdatedAt,
		); err != nil {
			return err
		}
		return outbox.InsertMessagesInTx(ctx, tx, r.outbox, msgs)
	})
	if err != nil {
		r.logger.Error("Failed to insert project", zap.String("project_id", p.ID), zap.Error(err))
		return err
	}

	r.logger.Info("Project inserted successfully",
		zap.String("project_id", p.ID),
		zap.String("creator_id", p.CreatorID),
	)
	return nil
}

func (r *ProjectRepository) GetProject(ctx context.Context, id string) (_ *model.Project, err error) {
	ctx, done := instrument(ctx, "select", "projects")
	defer func() { done(err) }()

	var p model.Project
	row := r.db.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, id)
	if err := scanProject(row, &p); err != nil {
		err = mapError(err)
		if !errors.Is(err, ErrNotFound) {
			r.logger.Error("Failed to get project", zap.String("project_id", id), zap.Error(err))
		}
		return nil, err
	}
	return &p, nil
}

// UpdateProject 锁定项目行，读取现有里程碑总额，调用 fn，写回全部可变字段
func (r *ProjectRepository) UpdateProject(ctx context.Context, id string, fn ProjectMutation) (_ *model.Project, err error) {
	ctx, done := instrument(ctx, "update", "projects")
	defer func() { done(err) }()

	r.logger.Debug("Updating project", zap.String("project_id", id))

	var updated model.Project
	err = withTx(ctx, r.db, func(tx pgx.Tx) error {
		p, allocated, err := lockProject(ctx, tx, id)
		if err != nil {
			return err
		}

		msgs, err := fn(p, allocated)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
            UPDATE projects
            SET title = $2, description = $3, funding_goal = $4, funding_deadline = $5,
                status = $6, city = $7, state = $8, updated_at = $9
            WHERE id = $1
        `,
			p.ID,
			p.Title,
			p.Description,
			p.FundingGoal,
			p.FundingDeadline,
			p.Status,
			p.City,
			p.State,
			p.UpdatedAt,
		)
		if err != nil {
			return err
		}
		if err := outbox.InsertMessagesInTx(ctx, tx, r.outbox, msgs); err != nil {
			return err
		}
		updated = *p
		return nil
	})
	if err != nil {
		r.logger.Warn("Project update not applied", zap.String("project_id", id), zap.Error(err))
		return nil, err
	}

	r.logger.Info("Project updated successfully",
		zap.String("project_id", id),
		zap.String("status", string(updated.Status)),
	)
	return &updated, nil
}

// lockProject SELECT ... FOR UPDATE 项目行并计算已分配金额
func lockProject(ctx context.Context, tx pgx.Tx, id string) (*model.Project, int64, error) {
	var p model.Project
	row := tx.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1 FOR UPDATE`, id)
	if err := scanProject(row, &p); err != nil {
		return nil, 0, err
	}

	var allocated int64
	if err := tx.QueryRow(ctx,
		`SELECT COALESCE(SUM(funding_amount), 0) FROM project_milestones WHERE project_id = $1`,
		id,
	).Scan(&allocated); err != nil {
		return nil, 0, err
	}
	return &p, allocated, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// buildProjectFilter 生成 WHERE 子句，参数从 $1 开始
func buildProjectFilter(f model.ProjectFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.CreatorID != "" {
		add("creator_id = $%d", f.CreatorID)
	}
	if f.City != "" {
		add("LOWER(city) = LOWER($%d)", f.City)
	}
	if f.State != "" {
		add("LOWER(state) = LOWER($%d)", f.State)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		pattern := "%" + likeEscaper.Replace(s) + "%"
		args = append(args, pattern)
		n := len(args)
		conds = append(conds, fmt.Sprintf("(title ILIKE $%d OR description ILIKE $%d)", n, n))
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// ListProjects 返回一页项目和满足条件的总数
func (r *ProjectRepository) ListProjects(ctx context.Context, q model.ProjectQuery) (_ []model.Project, _ int64, err error) {
	ctx, done := instrument(ctx, "select", "projects")
	defer func() { done(err) }()

	where, args := buildProjectFilter(q.Filter)

	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM projects`+where, args...).Scan(&total); err != nil {
		r.logger.Error("Failed to count projects", zap.Error(err))
		return nil, 0, err
	}

	sortBy := q.SortBy
	if !sortBy.Valid() {
		sortBy = model.SortByCreatedAt
	}
	dir := "ASC"
	if q.Descending {
		dir = "DESC"
	}

	args = append(args, q.Limit, q.Offset())
	query := fmt.Sprintf(`SELECT %s FROM projects%s ORDER BY %s %s, id %s LIMIT $%d OFFSET $%d`,
		projectColumns, where, sortBy, dir, dir, len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list projects", zap.Error(err))
		return nil, 0, err
	}
	projects, err := collectProjects(rows)
	if err != nil {
		r.logger.Error("Failed to scan projects", zap.Error(err))
		return nil, 0, err
	}

	r.logger.Debug("Listed projects",
		zap.Int("count", len(projects)),
		zap.Int64("total", total),
	)
	return projects, total, nil
}

// ListFeaturedCandidates ACTIVE 且未过期的项目，最早创建的优先
func (r *ProjectRepository) ListFeaturedCandidates(ctx context.Context, now time.Time, limit int) (_ []model.Project, err error) {
	ctx, done := instrument(ctx, "select", "projects")
	defer func() { done(err) }()

	rows, err := r.db.Query(ctx, `
        SELECT `+projectColumns+`
        FROM projects
        WHERE status = $1 AND funding_deadline >= $2
        ORDER BY created_at ASC, id ASC
        LIMIT $3
    `, model.ProjectStatusActive, now, limit)
	if err != nil {
		r.logger.Error("Failed to list featured candidates", zap.Error(err))
		return nil, err
	}
	return collectProjects(rows)
}

func collectProjects(rows pgx.Rows) ([]model.Project, error) {
	defer rows.Close()

	projects := make([]model.Project, 0)
	for rows.Next() {
		var p model.Project
		if err := scanProject(rows, &p); err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}
