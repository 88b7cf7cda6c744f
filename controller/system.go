package controller

import (
	"net/http"

	"nport-service/request"
	"nport-service/service"
)

type System struct {
	limiter service.RateLimiter
	cache   service.FundCache
}

func NewSystem(limiter service.RateLimiter, cache service.FundCache) System {
	return System{
		limiter: limiter,
		cache:   cache,
	}
}

func (c System) Health(ctx *request.Context) error {
	return writeJson(ctx.ResponseWriter(), http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "nport-service",
	})
}

// RateLimitStats reports the caller's own usage, never another client's.
func (c System) RateLimitStats(ctx *request.Context) error {
	return writeJson(ctx.ResponseWriter(), http.StatusOK, c.limiter.Stats(ctx.ClientIp()))
}

func (c System) CacheInfo(ctx *request.Context) error {
	return writeJson(ctx.ResponseWriter(), http.StatusOK, c.cache.Stats(ctx.Context()))
}

func (c System) CacheClear(ctx *request.Context) error {
	err := c.cache.Clear(ctx.Context())
	if err != nil {
		return err
	}
	return writeJson(ctx.ResponseWriter(), http.StatusOK, map[string]string{
		"status": "cache cleared",
	})
}
