package outbox

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// ReplayStore 手动重放需要的 outbox 操作（*Repository 实现）
type ReplayStore interface {
	GetEventByID(ctx context.Context, eventID int64) (*Event, error)
	GetFailedEvents(ctx context.Context, limit int) ([]*Event, error)
	MarkAsSent(ctx context.Context, eventID int64) error
	MarkAsFailed(ctx context.Context, eventID int64, maxRetries int) error
}

// ReplayReport 批量重放的结果
type ReplayReport struct {
	Scanned   int     `json:"scanned"`
	Replayed  int     `json:"replayed"`
	FailedIDs []int64 `json:"failed_ids,omitempty"`
}

// ReplayService 管理端重放已放弃投递的事件
type ReplayService struct {
	store     ReplayStore
	publisher EventPublisher
	logger    *zap.Logger
}

func NewReplayService(store ReplayStore, publisher EventPublisher, logger *zap.Logger) *ReplayService {
	return &ReplayService{
		store:     store,
		publisher: publisher,
		logger:    logger,
	}
}

// ReplayEvent 立即重新发布一条事件；已发送的事件返回 ErrAlreadySent
func (s *ReplayService) ReplayEvent(ctx context.Context, eventID int64) error {
	event, err := s.store.GetEventByID(ctx, eventID)
	if err != nil {
		return err
	}
	if event.Status == StatusSent {
		return fmt.Errorf("%w: %d", ErrAlreadySent, eventID)
	}

	if err := publishEvent(ctx, s.publisher, event); err != nil {
		// 手动重放失败后停在 failed，不回到自动重试
		if markErr := s.store.MarkAsFailed(ctx, eventID, 0); markErr != nil {
			s.logger.Error("Failed to mark replayed event as failed",
				zap.Int64("event_id", eventID),
				zap.Error(markErr),
			)
		}
		return err
	}

	if err := s.store.MarkAsSent(ctx, eventID); err != nil {
		return fmt.Errorf("event %d published but not marked as sent: %w", eventID, err)
	}
	s.logger.Info("Outbox event replayed",
		zap.Int64("event_id", eventID),
		zap.String("routing_key", event.RoutingKey),
		zap.String("aggregate_id", event.AggregateID),
	)
	return nil
}

// ReplayFailedEvents 逐条重放最近的 failed 事件，单条失败不中断整批
func (s *ReplayService) ReplayFailedEvents(ctx context.Context, limit int) (ReplayReport, error) {
	events, err := s.store.GetFailedEvents(ctx, limit)
	if err != nil {
		return ReplayReport{}, err
	}

	report := ReplayReport{Scanned: len(events)}
	for _, event := range events {
		if err := s.ReplayEvent(ctx, event.ID); err != nil {
			s.logger.Warn("Replay failed",
				zap.Int64("event_id", event.ID),
				zap.String("routing_key", event.RoutingKey),
				zap.Error(err),
			)
			report.FailedIDs = append(report.FailedIDs, event.ID)
			continue
		}
		report.Replayed++
	}
	return report, nil
}
