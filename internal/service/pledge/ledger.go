// Package pledge 维护认捐账本：记录新认捐、推进认捐状态、按项目查询。
package pledge

import (
	"context"
	"errors"
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

type Store interface {
	InsertPledge(ctx context.Context, p *model.Pledge, msgs []outbox.Message) error
	GetPledge(ctx context.Context, id string) (*model.Pledge, error)
	UpdatePledge(ctx context.Context, id string, fn repository.PledgeMutation) (*model.Pledge, error)
	ListPledges(ctx context.Context, projectIDs []string, statuses []model.PledgeStatus) ([]model.Pledge, error)
}

type Ledger struct {
	store  Store
	retry  txretry.Policy
	now    func() time.Time
	logger *zap.Logger
}

func NewLedger(store Store, retry txretry.Policy, logger *zap.Logger) *Ledger {
	return &Ledger{
		store:  store,
		retry:  retry,
		now:    time.Now,
		logger: logger,
	}
}

type RecordInput struct {
	// 支付服务给出的 ID；为空时生成
	PledgeID  string
	ProjectID string
	BackerID  string
	Amount    int64
	CreatedAt time.Time
}

// RecordPledge 追加一条 PENDING 认捐；同一 PledgeID 重复投递时返回已有记录
func (l *Ledger) RecordPledge(ctx context.Context, in RecordInput) (*model.Pledge, error) {
	log := logger.WithTrace(ctx, l.logger)

	if in.Amount <= 0 {
		return nil, apperr.New(apperr.CodeValidation, "pledge amount must be positive").
			WithMetadata("field", "amount")
	}
	if in.ProjectID == "" || in.BackerID == "" {
		return nil, apperr.New(apperr.CodeValidation, "project_id and backer_id are required")
	}

	id := in.PledgeID
	if id == "" {
		id = uuid.NewString()
	}
	createdAt := in.CreatedAt
	if createdAt.IsZero() {
		createdAt = l.now()
	}

	p := &model.Pledge{
		ID:        id,
		ProjectID: in.ProjectID,
		BackerID:  in.BackerID,
		Amount:    in.Amount,
		Status:    model.PledgeStatusPending,
		CreatedAt: createdAt.UTC(),
		UpdatedAt: createdAt.UTC(),
	}

	msg := l.ledgerMessage(ctx, mqcontracts.RoutingPledgeRecorded, p, "")
	if err := l.store.InsertPledge(ctx, p, []outbox.Message{msg}); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicate):
			existing, getErr := l.store.GetPledge(ctx, id)
			if getErr != nil {
				return nil, apperr.Wrap(apperr.CodeInternal, "load existing pledge", getErr)
			}
			log.Info("Pledge already recorded", zap.String("pledge_id", id))
			return existing, nil
		case errors.Is(err, repository.ErrNotFound):
			return nil, apperr.Newf(apperr.CodeNotFound, "project %s not found", in.ProjectID)
		}
		log.Error("Failed to record pledge", zap.String("pledge_id", id), zap.Error(err))
		return nil, apperr.Wrap(apperr.CodeInternal, "record pledge", err)
	}

	metrics.IncrementPledgeEvent(string(model.PledgeStatusPending), "recorded")
	log.Info("Pledge recorded",
		zap.String("pledge_id", p.ID),
		zap.String("project_id", p.ProjectID),
		zap.Int64("amount", p.Amount),
	)
	return p, nil
}

// RecordPledgeEvent 把认捐推进到 status；非法流转返回 INVALID_STATE_TRANSITION
// at 为零值时使用当前时间
func (l *Ledger) RecordPledgeEvent(ctx context.Context, pledgeID string, status model.PledgeStatus, at time.Time) (*model.Pledge, error) {
	log := logger.WithTrace(ctx, l.logger)

	if !status.Valid() {
		metrics.IncrementPledgeEvent(string(status), "invalid")
		return nil, apperr.Newf(apperr.CodeValidation, "unknown pledge status %q", status).
			WithMetadata("field", "status")
	}
	if at.IsZero() {
		at = l.now()
	}
	at = at.UTC()

	updated, err := txretry.Do(ctx, l.retry, "pledge_event", func() (*model.Pledge, error) {
		return l.store.UpdatePledge(ctx, pledgeID, func(p *model.Pledge) ([]outbox.Message, error) {
			if !p.Status.CanTransitionTo(status) {
				return nil, apperr.InvalidTransition(string(p.Status), string(status))
			}
			from := p.Status
			p.Apply(status, at)
			return []outbox.Message{l.ledgerMessage(ctx, mqcontracts.RoutingPledgeUpdated, p, from)}, nil
		})
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			metrics.IncrementPledgeEvent(string(status), "not_found")
			return nil, apperr.Newf(apperr.CodeNotFound, "pledge %s not found", pledgeID)
		}
		if e, ok := apperr.As(err); ok {
			metrics.IncrementPledgeEvent(string(status), "rejected")
			log.Info("Pledge event rejected", zap.String("pledge_id", pledgeID), zap.Error(e))
			return nil, err
		}
		metrics.IncrementPledgeEvent(string(status), "error")
		log.Error("Failed to apply pledge event", zap.String("pledge_id", pledgeID), zap.Error(err))
		return nil, apperr.Wrap(apperr.CodeInternal, "apply pledge event", err)
	}

	metrics.IncrementPledgeEvent(string(status), "applied")
	log.Info("Pledge status updated",
		zap.String("pledge_id", pledgeID),
		zap.String("status", string(updated.Status)),
	)
	return updated, nil
}

func (l *Ledger) ledgerMessage(ctx context.Context, routingKey string, p *model.Pledge, from model.PledgeStatus) outbox.Message {
	return outbox.Message{
		AggregateType: mqcontracts.AggregatePledge,
		AggregateID:   p.ID,
		RoutingKey:    routingKey,
		Payload: mqcontracts.PledgeLedgerPayload{
			PledgeID:   p.ID,
			ProjectID:  p.ProjectID,
			Amount:     p.Amount,
			From:       string(from),
			Status:     string(p.Status),
			OccurredAt: p.UpdatedAt,
			TraceID:    trace.FromContext(ctx),
		},
	}
}

// QueryByProject 只读；statuses 为空返回全部状态
func (l *Ledger) QueryByProject(ctx context.Context, projectID string, statuses ...model.PledgeStatus) ([]model.Pledge, error) {
	return l.QueryByProjects(ctx, []string{projectID}, statuses...)
}

func (l *Ledger) QueryByProjects(ctx context.Context, projectIDs []string, statuses ...model.PledgeStatus) ([]model.Pledge, error) {
	for _, s := range statuses {
		if !s.Valid() {
			return nil, apperr.Newf(apperr.CodeValidation, "unknown pledge status %q", s).
				WithMetadata("field", "status")
		}
	}
	pledges, err := l.store.ListPledges(ctx, projectIDs, statuses)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "query pledges", err)
	}
	return pledges, nil
}
