// Package milestone 为项目分配资金里程碑，保证里程碑金额之和不超过目标金额。
package milestone

import (
	"context"
	"errors"
	"strconv"
	"time"
	"unicode/utf8"

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
	MaxTitleLength       = 200
	MaxDescriptionLength = 5000
)

type Store interface {
	GetProject(ctx context.Context, id string) (*model.Project, error)
	CreateMilestone(ctx context.Context, m *model.Milestone, guard repository.MilestoneGuard) error
	ListMilestones(ctx context.Context, projectID string) ([]model.Milestone, error)
}

type Allocator struct {
	store  Store
	retry  txretry.Policy
	now    func() time.Time
	logger *zap.Logger
}

func NewAllocator(store Store, retry txretry.Policy, logger *zap.Logger) *Allocator {
	return &Allocator{
		store:  store,
		retry:  retry,
		now:    time.Now,
		logger: logger,
	}
}

type CreateInput struct {
	Title         string
	Description   string
	TargetDate    *time.Time
	FundingAmount int64
	// 调用方决定顺序，不校验唯一或连续
	OrderIndex int
}

func (in CreateInput) validate() error {
	if n := utf8.RuneCountInString(in.Title); n == 0 || n > MaxTitleLength {
		return apperr.Newf(apperr.CodeValidation, "title must be between 1 and %d characters", MaxTitleLength).
			WithMetadata("field", "title")
	}
	if utf8.RuneCountInString(in.Description) > MaxDescriptionLength {
		return apperr.Newf(apperr.CodeValidation, "description must be at most %d characters", MaxDescriptionLength).
			WithMetadata("field", "description")
	}
	if in.FundingAmount < 0 {
		return apperr.New(apperr.CodeValidation, "funding amount must not be negative").
			WithMetadata("field", "funding_amount")
	}
	return nil
}

// BudgetExceeded 返回携带剩余可分配金额的错误
func BudgetExceeded(requested, maxAllowed int64) *apperr.Error {
	return apperr.Newf(apperr.CodeBudgetExceeded,
		"milestone amount %d exceeds the remaining budget; maximum allowable is %d", requested, maxAllowed).
		WithMetadata("max_allowed", strconv.FormatInt(maxAllowed, 10))
}

// CreateMilestone 只有项目创建者可以添加里程碑；不修改项目本身
func (a *Allocator) CreateMilestone(ctx context.Context, caller model.Caller, projectID string, in CreateInput) (*model.Milestone, error) {
	log := logger.WithTrace(ctx, a.logger)

	if err := in.validate(); err != nil {
		metrics.IncrementMilestoneAllocation("invalid")
		return nil, err
	}

	m := &model.Milestone{
		ID:            uuid.NewString(),
		ProjectID:     projectID,
		Title:         in.Title,
		Description:   in.Description,
		TargetDate:    in.TargetDate,
		FundingAmount: in.FundingAmount,
		OrderIndex:    in.OrderIndex,
		Status:        model.MilestoneStatusPending,
		CreatedAt:     a.now().UTC(),
	}

	_, err := txretry.Do(ctx, a.retry, "milestone_create", func() (struct{}, error) {
		return struct{}{}, a.store.CreateMilestone(ctx, m, func(p *model.Project, allocated int64) ([]outbox.Message, error) {
			if caller.UserID == "" || caller.UserID != p.CreatorID {
				return nil, apperr.New(apperr.CodePermissionDenied, "only the project creator can add milestones")
			}
			if allocated+m.FundingAmount > p.FundingGoal {
				return nil, BudgetExceeded(m.FundingAmount, max(p.FundingGoal-allocated, 0))
			}
			return []outbox.Message{{
				AggregateType: mqcontracts.AggregateMilestone,
				AggregateID:   m.ID,
				RoutingKey:    mqcontracts.RoutingMilestoneCreated,
				Payload: mqcontracts.MilestoneCreatedPayload{
					MilestoneID:   m.ID,
					ProjectID:     m.ProjectID,
					Title:         m.Title,
					FundingAmount: m.FundingAmount,
					OrderIndex:    m.OrderIndex,
					CreatedAt:     m.CreatedAt,
					TraceID:       trace.FromContext(ctx),
				},
			}}, nil
		})
	})
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			metrics.IncrementMilestoneAllocation("not_found")
			return nil, apperr.Newf(apperr.CodeNotFound, "project %s not found", projectID)
		case apperr.CodeOf(err) == apperr.CodeBudgetExceeded:
			metrics.IncrementMilestoneAllocation("budget_exceeded")
		case apperr.CodeOf(err) == apperr.CodePermissionDenied:
			metrics.IncrementMilestoneAllocation("denied")
		default:
			metrics.IncrementMilestoneAllocation("error")
		}
		if _, ok := apperr.As(err); ok {
			log.Info("Milestone rejected", zap.String("project_id", projectID), zap.Error(err))
			return nil, err
		}
		log.Error("Failed to create milestone", zap.String("project_id", projectID), zap.Error(err))
		return nil, apperr.Wrap(apperr.CodeInternal, "create milestone", err)
	}

	metrics.IncrementMilestoneAllocation("created")
	log.Info("Milestone created",
		zap.String("milestone_id", m.ID),
		zap.String("project_id", projectID),
		zap.Int64("funding_amount", m.FundingAmount),
	)
	return m, nil
}

// ListMilestones 按 order_index、创建时间排序
func (a *Allocator) ListMilestones(ctx context.Context, projectID string) ([]model.Milestone, error) {
	if _, err := a.store.GetProject(ctx, projectID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.Newf(apperr.CodeNotFound, "project %s not found", projectID)
		}
		return nil, apperr.Wrap(apperr.CodeInternal, "load project", err)
	}

	milestones, err := a.store.ListMilestones(ctx, projectID)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "list milestones", err)
	}
	return milestones, nil
}
