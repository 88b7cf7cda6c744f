package repository

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/txix-open/isp-kit/json"
	"github.com/txix-open/isp-kit/log"
	"nport-service/domain"
)

const (
	fundKeyPrefix = "fund:"
	scanBatchSize = 100
)

// FundCache is the Redis variant of the fund result cache, shared between
// instances. Redis failures degrade to a miss, never to a request failure.
type FundCache struct {
	cli    redis.UniversalClient
	ttl    time.Duration
	logger log.Logger

	hits   atomic.Uint64
	misses atomic.Uint64
}

func NewFundCache(cli redis.UniversalClient, ttl time.Duration, logger log.Logger) *FundCache {
	return &FundCache{
		cli:    cli,
		ttl:    ttl,
		logger: logger,
	}
}

func (r *FundCache) Get(ctx context.Context, cik string) (*domain.FundResult, bool) {
	key, err := domain.NormalizeCik(cik)
	if err != nil {
		return nil, false
	}

	data, err := r.cli.Get(ctx, fundKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		r.misses.Add(1)
		return nil, false
	}
	if err != nil {
		r.logger.Warn(ctx, "fund cache: get", log.Any("error", err))
		r.misses.Add(1)
		return nil, false
	}

	result := domain.FundResult{}
	err = json.Unmarshal(data, &result)
	if err != nil {
		r.logger.Warn(ctx, "fund cache: unmarshal stored result", log.Any("error", err))
		r.misses.Add(1)
		return nil, false
	}

	r.hits.Add(1)
	return &result, true
}

func (r *FundCache) Put(ctx context.Context, cik string, result *domain.FundResult) {
	key, err := domain.NormalizeCik(cik)
	if err != nil {
		return
	}

	data, err := json.Marshal(result)
	if err != nil {
		r.logger.Warn(ctx, "fund cache: marshal result", log.Any("error", err))
		return
	}
	err = r.cli.SetEx(ctx, fundKeyPrefix+key, data, r.ttl).Err()
	if err != nil {
		r.logger.Warn(ctx, "fund cache: set", log.Any("error", err))
	}
}

func (r *FundCache) Stats(ctx context.Context) domain.CacheStats {
	size := 0
	iter := r.cli.Scan(ctx, 0, fundKeyPrefix+"*", scanBatchSize).Iterator()
	for iter.Next(ctx) {
		size++
	}
	if err := iter.Err(); err != nil {
		r.logger.Warn(ctx, "fund cache: scan", log.Any("error", err))
	}

	return domain.CacheStats{
		Hits:   r.hits.Load(),
		Misses: r.misses.Load(),
		Size:   size,
	}
}

func (r *FundCache) Clear(ctx context.Context) error {
	iter := r.cli.Scan(ctx, 0, fundKeyPrefix+"*", scanBatchSize).Iterator()
	keys := make([]string, 0)
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return errors.WithMessage(err, "fund cache: scan")
	}
	if len(keys) == 0 {
		return nil
	}
	err := r.cli.Del(ctx, keys...).Err()
	if err != nil {
		return errors.WithMessage(err, "fund cache: del")
	}
	return nil
}
