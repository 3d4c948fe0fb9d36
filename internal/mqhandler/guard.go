package mqhandler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"civicfund/pkg/logger"
	"civicfund/pkg/util"
)

// Deduper 由 util.Deduper 实现
type Deduper interface {
	AcquireOnce(ctx context.Context, handler, eventID string) bool
	Release(ctx context.Context, handler, eventID string)
}

// RetryCounter 由 util.RetryCounter 实现
type RetryCounter interface {
	IncrementAndGet(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

// DeadLetterPublisher 由 mq.Publisher 实现
type DeadLetterPublisher interface {
	PublishToDLQ(ctx context.Context, routingKey string, payload []byte, originalError, failedAt string) error
}

// Guard 包住每个消费者的去重、重试计数和死信逻辑
// 返回 nil → ack；返回 error → nack 并重新入队
type Guard struct {
	deduper    Deduper
	retries    RetryCounter
	dlq        DeadLetterPublisher
	maxRetries int64
	logger     *zap.Logger
}

func NewGuard(deduper Deduper, retries RetryCounter, dlq DeadLetterPublisher, maxRetries int64, logger *zap.Logger) *Guard {
	return &Guard{
		deduper:    deduper,
		retries:    retries,
		dlq:        dlq,
		maxRetries: maxRetries,
		logger:     logger,
	}
}

// classifier 允许单个 handler 覆盖默认的错误分类
type classifier func(err error) (bool, string)

// PanicError handler 内部 panic，重投只会再次 panic，直接进 DLQ
type PanicError struct {
	Handler string
	Value   any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in %s: %v", e.Handler, e.Value)
}

// call 把 fn 的 panic 转成 *PanicError
func call(ctx context.Context, handler string, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Handler: handler, Value: r}
		}
	}()
	return fn(ctx)
}

func (g *Guard) run(ctx context.Context, handler, routingKey, eventID string, raw []byte, classify classifier, fn func(ctx context.Context) error) error {
	log := logger.WithTrace(ctx, g.logger)

	if eventID != "" && g.deduper != nil && !g.deduper.AcquireOnce(ctx, handler, eventID) {
		log.Info("Duplicate event skipped", zap.String("handler", handler), zap.String("event_id", eventID))
		return nil
	}

	err := call(ctx, handler, fn)
	retryKey := util.FormatRetryKey(handler, eventID)
	if err == nil {
		if eventID != "" && g.retries != nil {
			_ = g.retries.Reset(ctx, retryKey)
		}
		return nil
	}

	if classify == nil {
		classify = util.IsRetryableError
	}
	retryable, errType := classify(err)
	var panicErr *PanicError
	if errors.As(err, &panicErr) {
		retryable, errType = false, "handler_panic"
	}

	var attempt int64 = 1
	if retryable && eventID != "" && g.retries != nil {
		n, cerr := g.retries.IncrementAndGet(ctx, retryKey)
		if cerr != nil {
			log.Warn("Retry counter unavailable", zap.Error(cerr))
		} else {
			attempt = n
		}
	}

	log.Warn("Event handling failed",
		zap.String("handler", handler),
		zap.String("event_id", eventID),
		zap.String("error_type", errType),
		zap.Bool("retryable", retryable),
		zap.Int64("attempt", attempt),
		zap.Error(err),
	)

	if util.ShouldRetry(attempt, g.maxRetries, retryable) {
		// 释放去重锁，否则重新投递的消息会被当作重复
		if eventID != "" && g.deduper != nil {
			g.deduper.Release(ctx, handler, eventID)
		}
		return err
	}

	if dlqErr := g.deadLetter(ctx, handler, routingKey, raw, errType, err); dlqErr != nil {
		// DLQ 不可用时宁可重投也不 ack 丢消息
		if eventID != "" && g.deduper != nil {
			g.deduper.Release(ctx, handler, eventID)
		}
		return dlqErr
	}
	if eventID != "" && g.retries != nil {
		_ = g.retries.Reset(ctx, retryKey)
	}
	return nil
}

// deadLetter 只有 DLQ 发布失败时返回错误；未配置 DLQ 时记录后丢弃
func (g *Guard) deadLetter(ctx context.Context, handler, routingKey string, raw []byte, errType string, cause error) error {
	log := logger.WithTrace(ctx, g.logger)
	if g.dlq == nil {
		log.Error("Dropping event without DLQ",
			zap.String("handler", handler),
			zap.String("error_type", errType),
			zap.Error(cause),
		)
		return nil
	}
	if err := g.dlq.PublishToDLQ(ctx, routingKey, raw, cause.Error(), handler); err != nil {
		log.Error("Failed to publish to DLQ",
			zap.String("handler", handler),
			zap.String("routing_key", routingKey),
			zap.Error(err),
		)
		return fmt.Errorf("dead letter %s: %w", handler, err)
	}
	log.Info("Event sent to DLQ",
		zap.String("handler", handler),
		zap.String("routing_key", routingKey),
		zap.String("error_type", errType),
		zap.Time("at", time.Now().UTC()),
	)
	return nil
}
