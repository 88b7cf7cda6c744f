package assembly

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/txix-open/isp-kit/log"
	"nport-service/cache"
	"nport-service/conf"
	"nport-service/controller"
	"nport-service/edgar"
	"nport-service/middleware"
	"nport-service/ratelimit"
	"nport-service/repository"
	"nport-service/service"
)

type Locator struct {
	logger  log.Logger
	limiter *ratelimit.Limiter
	cache   *cache.Cache
	tasks   *service.Tasks
}

func NewLocator(
	logger log.Logger,
	limiter *ratelimit.Limiter,
	cache *cache.Cache,
	tasks *service.Tasks,
) Locator {
	return Locator{
		logger:  logger,
		limiter: limiter,
		cache:   cache,
		tasks:   tasks,
	}
}

func (l Locator) Handler(config conf.Remote, redisCli redis.UniversalClient) http.Handler {
	var fundCache service.FundCache = l.cache
	if redisCli != nil {
		fundCache = repository.NewFundCache(redisCli, config.Cache.GetTtl(), l.logger)
	}

	filingLocator := edgar.NewLocator(config.Edgar)
	fetcher := edgar.NewFetcher(config.Edgar)
	parser := edgar.NewParser()

	holdingsService := service.NewHoldings(l.limiter, fundCache, filingLocator, fetcher, parser, l.tasks, l.logger)
	holdingsController := controller.NewHoldings(holdingsService, l.logger)
	systemController := controller.NewSystem(l.limiter, fundCache)

	endpoints := []struct {
		method  string
		path    string
		handler middleware.HandlerFunc
	}{
		{http.MethodGet, "/", systemController.Health},
		{http.MethodGet, "/holdings/{cik}", holdingsController.Get},
		{http.MethodGet, "/holdings/{cik}/stream", holdingsController.Stream},
		{http.MethodGet, "/holdings/{cik}/ws", holdingsController.StreamWs},
		{http.MethodPost, "/stream/{taskId}/cancel", holdingsController.Cancel},
		{http.MethodGet, "/stream/{taskId}/result", holdingsController.TaskResult},
		{http.MethodGet, "/rate-limit/stats", systemController.RateLimitStats},
		{http.MethodGet, "/cache/info", systemController.CacheInfo},
		{http.MethodDelete, "/cache/clear", systemController.CacheClear},
	}

	router := mux.NewRouter()
	for _, endpoint := range endpoints {
		handler := middleware.Chain(
			endpoint.handler,
			middleware.RequestId(),
			middleware.ClientIp(),
			middleware.Logger(l.logger, config.Logging.RequestLogEnable),
			middleware.ErrorHandler(l.logger),
		)
		entrypoint := middleware.Entrypoint(
			config.Http.MaxRequestBodySizeInMb*1024*1024, //nolint:gomnd
			handler,
			l.logger,
		)
		router.Handle(endpoint.path, entrypoint).Methods(endpoint.method)
	}

	return router
}
