package mqhandler

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	mqcontracts "civicfund/contracts/mq"
	"civicfund/internal/model"
	"civicfund/pkg/apperr"
	"civicfund/pkg/logger"
	"civicfund/pkg/trace"
	"civicfund/pkg/util"
)

// PledgeEventRecorder 由 pledge.Ledger 实现
type PledgeEventRecorder interface {
	RecordPledgeEvent(ctx context.Context, pledgeID string, status model.PledgeStatus, at time.Time) (*model.Pledge, error)
}

const handlerPledgeStatus = "pledge_status_changed"

type PledgeStatusChangedHandler struct {
	ledger PledgeEventRecorder
	guard  *Guard
	logger *zap.Logger
}

func NewPledgeStatusChangedHandler(ledger PledgeEventRecorder, guard *Guard, logger *zap.Logger) *PledgeStatusChangedHandler {
	return &PledgeStatusChangedHandler{ledger: ledger, guard: guard, logger: logger}
}

// Handle 支付回调 → 推进认捐状态
// guard 之外的 panic 以错误返回，由消费者 nack
func (h *PledgeStatusChangedHandler) Handle(ctx context.Context, raw json.RawMessage) (err error) {
	defer recoverAsError(h.logger, handlerPledgeStatus, &err)

	var p mqcontracts.PledgeStatusChangedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return h.guard.deadLetter(ctx, handlerPledgeStatus, mqcontracts.RoutingPledgeStatusChanged, raw, "json_decode_error",
			fmt.Errorf("bad_payload: %w", err))
	}
	if p.TraceID != "" {
		ctx = trace.WithContext(ctx, p.TraceID)
	}

	status := model.PledgeStatus(strings.ToUpper(p.Status))
	eventID := p.EventID
	if eventID == "" {
		eventID = p.PledgeID + ":" + string(status)
	}

	logger.WithTrace(ctx, h.logger).Info("Handling pledge.status_changed event",
		zap.String("event_id", eventID),
		zap.String("pledge_id", p.PledgeID),
		zap.String("status", string(status)),
	)

	return h.guard.run(ctx, handlerPledgeStatus, mqcontracts.RoutingPledgeStatusChanged, eventID, raw, classifyStatusError, func(ctx context.Context) error {
		_, err := h.ledger.RecordPledgeEvent(ctx, p.PledgeID, status, p.OccurredAt)
		return err
	})
}

// classifyStatusError 状态回调可能先于 pledge.created 到达，认捐不存在时按可重试处理
func classifyStatusError(err error) (bool, string) {
	if apperr.CodeOf(err) == apperr.CodeNotFound {
		return true, "pledge_not_recorded_yet"
	}
	return util.IsRetryableError(err)
}
