// Package txretry 重试因事务冲突（序列化失败、死锁）而中止的操作。
package txretry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/attribute"

	"civicfund/internal/repository"
	"civicfund/pkg/apperr"
	"civicfund/pkg/metrics"
	"civicfund/pkg/otel"
)

// Policy 重试策略
type Policy struct {
	Attempts        uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultPolicy 3 次尝试，10ms 起步指数退避
func DefaultPolicy() Policy {
	return Policy{
		Attempts:        3,
		InitialInterval: 10 * time.Millisecond,
		MaxInterval:     200 * time.Millisecond,
	}
}

func (p Policy) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	return b
}

// Do 执行 fn；只有 repository.ErrConflict 会被重试，其余错误立即返回
// 重试耗尽后返回 CONCURRENCY_CONFLICT
func Do[T any](ctx context.Context, policy Policy, operation string, fn func() (T, error)) (T, error) {
	attempts := policy.Attempts
	if attempts == 0 {
		attempts = 1
	}

	ctx, span := otel.StartSpan(ctx, "txretry "+operation, attribute.String("operation", operation))
	defer span.End()

	tries := 0
	res, err := backoff.Retry(ctx, func() (T, error) {
		tries++
		v, err := fn()
		if err != nil && !errors.Is(err, repository.ErrConflict) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(policy.backOff()),
		backoff.WithMaxTries(attempts),
		backoff.WithNotify(func(error, time.Duration) {
			metrics.IncrementConcurrencyRetry(operation)
		}),
	)

	span.SetAttributes(attribute.Int("attempts", tries))

	// 最后一次尝试返回的错误不会被 Retry 拆开
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Err
	}
	if errors.Is(err, repository.ErrConflict) {
		span.RecordError(err)
		return res, apperr.Wrap(apperr.CodeConcurrencyConflict,
			operation+" conflicted with a concurrent update; retry the request", err)
	}
	return res, err
}
