// Package ratelimit keeps hot endpoints inside their redis-backed budgets
// and provides the distributed mutex used by background jobs.
package ratelimit

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/voyagekit/tariff/internal/config"
	"github.com/voyagekit/tariff/internal/observability/metrics"
)

const keyEvaluateAgency = "tariff:evaluate:agency:%s"

// EvaluateLimiter budgets evaluation traffic per agency. A nil limiter
// (no redis configured) allows everything, so single-node deployments run
// without redis.
type EvaluateLimiter struct {
	bucket  *TokenBucket
	holder  *config.EngineConfigHolder
	metrics *metrics.Metrics
}

func NewEvaluateLimiter(client *redis.Client, holder *config.EngineConfigHolder, m *metrics.Metrics) *EvaluateLimiter {
	if client == nil {
		return nil
	}
	return &EvaluateLimiter{
		bucket:  NewTokenBucket(client),
		holder:  holder,
		metrics: m,
	}
}

// Allow consumes one evaluation token for the agency. Redis trouble fails
// open: pricing availability beats strict limiting.
func (l *EvaluateLimiter) Allow(ctx context.Context, agencyID snowflake.ID) (*RateLimitResult, error) {
	if l == nil || l.bucket == nil {
		return &RateLimitResult{Allowed: true}, nil
	}

	cfg := l.holder.Get()
	key := fmt.Sprintf(keyEvaluateAgency, agencyID.String())

	res, err := l.bucket.Allow(ctx, key, float64(cfg.EvaluateRatePerSecond), cfg.EvaluateBurst)
	if err != nil {
		l.metrics.RecordRateLimitAllowed(ctx, agencyID.String(), "evaluate")
		return &RateLimitResult{Allowed: true}, err
	}

	if res.Allowed {
		l.metrics.RecordRateLimitAllowed(ctx, agencyID.String(), "evaluate")
	} else {
		l.metrics.RecordRateLimitDenied(ctx, agencyID.String(), "evaluate", "bucket_empty")
	}
	return res, nil
}

// NewRedisClient builds the shared client, or nil when redis is not
// configured.
func NewRedisClient(cfg config.Config) *redis.Client {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.RedisPassword),
		DB:       cfg.RedisDB,
	})
}
