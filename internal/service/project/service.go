// Package project 管理项目的创建、字段修改和状态流转。
package project

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	mqcontracts "civicfund/contracts/mq"
	"civicfund/internal/model"
	"civicfund/internal/repository"
	"civicfund/internal/service/txretry"
	"civicfund/pkg/apperr"
	"civicfund/pkg/logger"
	"civicfund/pkg/metrics"
	"civicfund/pkg/outbox"
	"civicfund/pkg/trace"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
	// MaxOffset 超出后按校验错误拒绝，避免 OFFSET 溢出
	MaxOffset = math.MaxInt32
)

// Store 项目持久化
type Store interface {
	CreateProject(ctx context.Context, p *model.Project, msgs []outbox.Message) error
	GetProject(ctx context.Context, id string) (*model.Project, error)
	UpdateProject(ctx context.Context, id string, fn repository.ProjectMutation) (*model.Project, error)
	ListProjects(ctx context.Context, q model.ProjectQuery) ([]model.Project, int64, error)
}

// CampaignStore 只用于创建时的归属校验
type CampaignStore interface {
	GetCampaign(ctx context.Context, id string) (*model.Campaign, error)
}

// Summarizer 由 funding.Aggregator 实现
type Summarizer interface {
	SummarizeProjects(ctx context.Context, projects []model.Project) (map[string]model.FundingSummary, error)
}

type Service struct {
	store      Store
	campaigns  CampaignStore
	summarizer Summarizer
	limits     Limits
	retry      txretry.Policy
	now        func() time.Time
	logger     *zap.Logger
}

func NewService(store Store, campaigns CampaignStore, summarizer Summarizer, limits Limits, retry txretry.Policy, logger *zap.Logger) *Service {
	return &Service{
		store:      store,
		campaigns:  campaigns,
		summarizer: summarizer,
		limits:     limits,
		retry:      retry,
		now:        time.Now,
		logger:     logger,
	}
}

// WithClock 替换时间源（测试用）
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

type CreateInput struct {
	CampaignID      *string
	Title           string
	Description     string
	FundingGoal     int64
	FundingDeadline time.Time
	City            *string
	State           *string
}

// Create 新建 DRAFT 项目
func (s *Service) Create(ctx context.Context, caller model.Caller, in CreateInput) (*model.Project, error) {
	log := logger.WithTrace(ctx, s.logger)

	if caller.UserID == "" {
		return nil, apperr.New(apperr.CodePermissionDenied, "caller is not authenticated")
	}

	if in.CampaignID != nil {
		campaign, err := s.campaigns.GetCampaign(ctx, *in.CampaignID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, apperr.Newf(apperr.CodeNotFound, "campaign %s not found", *in.CampaignID)
			}
			return nil, apperr.Wrap(apperr.CodeInternal, "load campaign", err)
		}
		if campaign.OwnerID != caller.UserID {
			log.Warn("Create project denied: caller does not own campaign",
				zap.String("campaign_id", campaign.ID),
				zap.String("user_id", caller.UserID),
			)
			return nil, apperr.New(apperr.CodePermissionDenied, "only the campaign owner can add projects to it")
		}
	}

	now := s.now()
	if err := firstError(
		validateTitle(in.Title),
		validateDescription(in.Description),
		s.limits.validateGoal(in.FundingGoal),
		validateDeadline(in.FundingDeadline, now),
	); err != nil {
		return nil, err
	}

	p := &model.Project{
		ID:              uuid.NewString(),
		Title:           in.Title,
		Description:     in.Description,
		FundingGoal:     in.FundingGoal,
		FundingDeadline: in.FundingDeadline.UTC(),
		Status:          model.ProjectStatusDraft,
		CreatorID:       caller.UserID,
		CampaignID:      in.CampaignID,
		City:            in.City,
		State:           in.State,
		CreatedAt:       now.UTC(),
		UpdatedAt:       now.UTC(),
	}

	msg := outbox.Message{
		AggregateType: mqcontracts.AggregateProject,
		AggregateID:   p.ID,
		RoutingKey:    mqcontracts.RoutingProjectCreated,
		Payload: mqcontracts.ProjectCreatedPayload{
			ProjectID:   p.ID,
			CreatorID:   p.CreatorID,
			CampaignID:  deref(p.CampaignID),
			Title:       p.Title,
			FundingGoal: p.FundingGoal,
			Deadline:    p.FundingDeadline,
			CreatedAt:   p.CreatedAt,
			TraceID:     trace.FromContext(ctx),
		},
	}

	if err := s.store.CreateProject(ctx, p, []outbox.Message{msg}); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.Newf(apperr.CodeNotFound, "campaign %s not found", deref(in.CampaignID))
		}
		log.Error("Failed to create project", zap.Error(err))
		return nil, apperr.Wrap(apperr.CodeInternal, "create project", err)
	}

	log.Info("Project created",
		zap.String("project_id", p.ID),
		zap.String("creator_id", p.CreatorID),
		zap.Int64("funding_goal", p.FundingGoal),
	)
	return p, nil
}

// UpdateInput nil 字段表示不修改
type UpdateInput struct {
	Title           *string
	Description     *string
	FundingGoal     *int64
	FundingDeadline *time.Time
	Status          *model.ProjectStatus
	City            *string
	State           *string
}

func (in UpdateInput) empty() bool {
	return in.Title == nil && in.Description == nil && in.FundingGoal == nil &&
		in.FundingDeadline == nil && in.Status == nil && in.City == nil && in.State == nil
}

// Update 在项目行锁内完成权限、状态流转和字段校验，全部通过才写入
func (s *Service) Update(ctx context.Context, caller model.Caller, projectID string, in UpdateInput) (*model.Project, error) {
	log := logger.WithTrace(ctx, s.logger)

	if in.empty() {
		return nil, apperr.New(apperr.CodeValidation, "no fields to update")
	}

	var from model.ProjectStatus
	updated, err := txretry.Do(ctx, s.retry, "project_update", func() (*model.Project, error) {
		return s.store.UpdateProject(ctx, projectID, func(p *model.Project, allocated int64) ([]outbox.Message, error) {
			from = p.Status
			return s.applyUpdate(ctx, caller, p, allocated, in)
		})
	})
	if in.Status != nil {
		result := "applied"
		if err != nil {
			result = "rejected"
		}
		metrics.IncrementProjectTransition(string(from), string(*in.Status), result)
	}
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.Newf(apperr.CodeNotFound, "project %s not found", projectID)
		}
		if _, ok := apperr.As(err); ok {
			log.Info("Project update rejected", zap.String("project_id", projectID), zap.Error(err))
			return nil, err
		}
		log.Error("Failed to update project", zap.String("project_id", projectID), zap.Error(err))
		return nil, apperr.Wrap(apperr.CodeInternal, "update project", err)
	}

	log.Info("Project updated",
		zap.String("project_id", updated.ID),
		zap.String("from", string(from)),
		zap.String("status", string(updated.Status)),
		zap.String("user_id", caller.UserID),
	)
	return updated, nil
}

// applyUpdate 先校验全部字段，再一次性修改 p
func (s *Service) applyUpdate(ctx context.Context, caller model.Caller, p *model.Project, allocated int64, in UpdateInput) ([]outbox.Message, error) {
	if !caller.Admin && caller.UserID != p.CreatorID {
		return nil, apperr.New(apperr.CodePermissionDenied, "only the project creator or an administrator can update this project")
	}

	now := s.now()
	var msgs []outbox.Message

	if in.Status != nil {
		next := *in.Status
		if !next.Valid() {
			return nil, apperr.Newf(apperr.CodeValidation, "unknown project status %q", next).
				WithMetadata("field", "status")
		}
		if !p.Status.CanTransitionTo(next) {
			return nil, apperr.InvalidTransition(string(p.Status), string(next))
		}
		msgs = append(msgs, outbox.Message{
			AggregateType: mqcontracts.AggregateProject,
			AggregateID:   p.ID,
			RoutingKey:    mqcontracts.RoutingProjectStatusChanged,
			Payload: mqcontracts.ProjectStatusChangedPayload{
				ProjectID: p.ID,
				From:      string(p.Status),
				To:        string(next),
				ChangedBy: caller.UserID,
				ChangedAt: now.UTC(),
				TraceID:   trace.FromContext(ctx),
			},
		})
	}

	var checks []error
	if in.Title != nil {
		checks = append(checks, validateTitle(*in.Title))
	}
	if in.Description != nil {
		checks = append(checks, validateDescription(*in.Description))
	}
	if in.FundingGoal != nil {
		checks = append(checks, s.limits.validateGoal(*in.FundingGoal))
		if *in.FundingGoal < allocated {
			checks = append(checks, apperr.Newf(apperr.CodeValidation,
				"funding goal cannot be lower than the %d already allocated to milestones", allocated).
				WithMetadata("field", "funding_goal"))
		}
	}
	if in.FundingDeadline != nil {
		checks = append(checks, validateDeadline(*in.FundingDeadline, now))
	}
	if err := firstError(checks...); err != nil {
		return nil, err
	}

	if in.Status != nil {
		p.Status = *in.Status
	}
	if in.Title != nil {
		p.Title = *in.Title
	}
	if in.Description != nil {
		p.Description = *in.Description
	}
	if in.FundingGoal != nil {
		p.FundingGoal = *in.FundingGoal
	}
	if in.FundingDeadline != nil {
		p.FundingDeadline = in.FundingDeadline.UTC()
	}
	if in.City != nil {
		p.City = emptyToNil(*in.City)
	}
	if in.State != nil {
		p.State = emptyToNil(*in.State)
	}
	p.UpdatedAt = now.UTC()
	return msgs, nil
}

// GetByID 项目 + 实时资金汇总
func (s *Service) GetByID(ctx context.Context, projectID string) (*model.ProjectWithFunding, error) {
	p, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.Newf(apperr.CodeNotFound, "project %s not found", projectID)
		}
		return nil, apperr.Wrap(apperr.CodeInternal, "load project", err)
	}

	summaries, err := s.summarizer.SummarizeProjects(ctx, []model.Project{*p})
	if err != nil {
		return nil, err
	}
	return &model.ProjectWithFunding{Project: *p, Funding: summaries[p.ID]}, nil
}

// List 分页查询，每个项目附带资金汇总（一次分组查询）
func (s *Service) List(ctx context.Context, q model.ProjectQuery) (*model.ProjectPage, error) {
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.Limit <= 0 {
		q.Limit = DefaultPageSize
	}
	if q.Limit > MaxPageSize {
		q.Limit = MaxPageSize
	}
	if q.Page-1 > MaxOffset/q.Limit {
		return nil, apperr.Newf(apperr.CodeValidation, "page %d is out of range", q.Page).
			WithMetadata("field", "page")
	}
	if q.SortBy == "" {
		q.SortBy = model.SortByCreatedAt
	}
	if !q.SortBy.Valid() {
		return nil, apperr.Newf(apperr.CodeValidation, "unsupported sort field %q", q.SortBy).
			WithMetadata("field", "sort")
	}
	if q.Filter.Status != "" && !q.Filter.Status.Valid() {
		return nil, apperr.Newf(apperr.CodeValidation, "unknown project status %q", q.Filter.Status).
			WithMetadata("field", "status")
	}

	projects, total, err := s.store.ListProjects(ctx, q)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "list projects", err)
	}

	summaries, err := s.summarizer.SummarizeProjects(ctx, projects)
	if err != nil {
		return nil, err
	}

	items := make([]model.ProjectWithFunding, len(projects))
	for i, p := range projects {
		items[i] = model.ProjectWithFunding{Project: p, Funding: summaries[p.ID]}
	}

	return &model.ProjectPage{
		Projects: items,
		Total:    total,
		Page:     q.Page,
		Limit:    q.Limit,
		HasMore:  int64(q.Offset()+len(items)) < total,
	}, nil
}

// PromoteFullyFunded 把已达到目标金额的 ACTIVE 项目推进到 FUNDED
// 走正常的 Update 路径（系统管理员身份），返回成功推进的数量
func (s *Service) PromoteFullyFunded(ctx context.Context, system model.Caller) (int, error) {
	log := logger.WithTrace(ctx, s.logger)

	var ready []string
	for page := 1; ; page++ {
		result, err := s.List(ctx, model.ProjectQuery{
			Filter: model.ProjectFilter{Status: model.ProjectStatusActive},
			Page:   page,
			Limit:  MaxPageSize,
			SortBy: model.SortByCreatedAt,
		})
		if err != nil {
			return 0, err
		}
		for _, p := range result.Projects {
			if p.Funding.CurrentFunding >= p.FundingGoal {
				ready = append(ready, p.ID)
			}
		}
		if !result.HasMore {
			break
		}
	}

	funded := model.ProjectStatusFunded
	promoted := 0
	for _, id := range ready {
		if _, err := s.Update(ctx, system, id, UpdateInput{Status: &funded}); err != nil {
			// 期间被其他人改了状态，跳过
			log.Warn("Goal sweep skipped project", zap.String("project_id", id), zap.Error(err))
			continue
		}
		promoted++
	}

	if promoted > 0 {
		log.Info("Goal sweep promoted projects", zap.Int("count", promoted))
	}
	return promoted, nil
}

func firstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func emptyToNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
