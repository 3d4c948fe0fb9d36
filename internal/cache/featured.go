// Package cache 把推荐列表缓存到 Redis；Redis 故障时熔断，直接回源计算。
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"civicfund/internal/model"
	"civicfund/pkg/circuitbreaker"
	"civicfund/pkg/logger"
	"civicfund/pkg/metrics"
)

const keyPrefix = "civicfund:featured"

type FeaturedCache struct {
	rdb     *redis.Client
	ttl     time.Duration
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.Logger
}

func NewFeaturedCache(rdb *redis.Client, ttl time.Duration, breaker *circuitbreaker.CircuitBreaker, logger *zap.Logger) *FeaturedCache {
	if breaker == nil {
		breaker = circuitbreaker.New(circuitbreaker.DefaultConfig())
	}
	return &FeaturedCache{
		rdb:     rdb,
		ttl:     ttl,
		breaker: breaker,
		logger:  logger,
	}
}

func featuredKey(limit int) string {
	return fmt.Sprintf("%s:%d", keyPrefix, limit)
}

// Get 未命中、熔断或反序列化失败都按未命中处理
func (c *FeaturedCache) Get(ctx context.Context, limit int) ([]model.FeaturedProject, bool) {
	var raw []byte
	err := c.breaker.Execute(func() error {
		b, err := c.rdb.Get(ctx, featuredKey(limit)).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		raw = b
		return err
	})
	if err != nil {
		metrics.IncrementFeaturedCache("error")
		logger.WithTrace(ctx, c.logger).Warn("Featured cache read failed",
			zap.Int("limit", limit),
			zap.String("breaker", c.breaker.State().String()),
			zap.Error(err),
		)
		return nil, false
	}
	if raw == nil {
		metrics.IncrementFeaturedCache("miss")
		return nil, false
	}

	var items []model.FeaturedProject
	if err := json.Unmarshal(raw, &items); err != nil {
		metrics.IncrementFeaturedCache("error")
		c.logger.Warn("Discarding corrupt featured cache entry", zap.Int("limit", limit), zap.Error(err))
		return nil, false
	}
	metrics.IncrementFeaturedCache("hit")
	return items, true
}

// Set 写入失败只记录日志
func (c *FeaturedCache) Set(ctx context.Context, limit int, items []model.FeaturedProject) {
	if items == nil {
		items = []model.FeaturedProject{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		c.logger.Error("Failed to encode featured projects", zap.Error(err))
		return
	}

	err = c.breaker.Execute(func() error {
		return c.rdb.Set(ctx, featuredKey(limit), raw, c.ttl).Err()
	})
	if err != nil {
		logger.WithTrace(ctx, c.logger).Warn("Featured cache write failed",
			zap.Int("limit", limit),
			zap.String("breaker", c.breaker.State().String()),
			zap.Error(err),
		)
		return
	}
	c.logger.Debug("Featured cache updated", zap.Int("limit", limit), zap.Int("items", len(items)))
}
