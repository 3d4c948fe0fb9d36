package mqhandler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	mqcontracts "civicfund/contracts/mq"
	"civicfund/internal/model"
	"civicfund/internal/service/pledge"
	"civicfund/pkg/logger"
	"civicfund/pkg/trace"
)

// PledgeRecorder 由 pledge.Ledger 实现
type PledgeRecorder interface {
	RecordPledge(ctx context.Context, in pledge.RecordInput) (*model.Pledge, error)
}

const handlerPledgeCreated = "pledge_created"

type PledgeCreatedHandler struct {
	ledger PledgeRecorder
	guard  *Guard
	logger *zap.Logger
}

func NewPledgeCreatedHandler(ledger PledgeRecorder, guard *Guard, logger *zap.Logger) *PledgeCreatedHandler {
	return &PledgeCreatedHandler{ledger: ledger, guard: guard, logger: logger}
}

// Handle 支付服务创建认捐 → 账本追加 PENDING 记录
func (h *PledgeCreatedHandler) Handle(ctx context.Context, raw json.RawMessage) (err error) {
	defer recoverAsError(h.logger, handlerPledgeCreated, &err)

	var p mqcontracts.PledgeCreatedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return h.guard.deadLetter(ctx, handlerPledgeCreated, mqcontracts.RoutingPledgeCreated, raw, "json_decode_error",
			fmt.Errorf("bad_payload: %w", err))
	}
	if p.TraceID != "" {
		ctx = trace.WithContext(ctx, p.TraceID)
	}

	eventID := p.EventID
	if eventID == "" {
		eventID = p.PledgeID
	}

	logger.WithTrace(ctx, h.logger).Info("Handling pledge.created event",
		zap.String("event_id", eventID),
		zap.String("pledge_id", p.PledgeID),
		zap.String("project_id", p.ProjectID),
		zap.Int64("amount", p.Amount),
	)

	return h.guard.run(ctx, handlerPledgeCreated, mqcontracts.RoutingPledgeCreated, eventID, raw, nil, func(ctx context.Context) error {
		_, err := h.ledger.RecordPledge(ctx, pledge.RecordInput{
			PledgeID:  p.PledgeID,
			ProjectID: p.ProjectID,
			BackerID:  p.BackerID,
			Amount:    p.Amount,
			CreatedAt: p.CreatedAt,
		})
		return err
	})
}

// recoverAsError 把 panic 写回 handler 的返回值
func recoverAsError(log *zap.Logger, handler string, err *error) {
	if r := recover(); r != nil {
		log.Error("panic recovered in handler",
			zap.String("handler", handler),
			zap.Any("panic", r),
			zap.Time("at", time.Now()),
		)
		*err = &PanicError{Handler: handler, Value: r}
	}
}
