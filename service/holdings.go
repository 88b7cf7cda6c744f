package service

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/txix-open/isp-kit/log"
	"nport-service/domain"
)

type FilingLocator interface {
	Locate(ctx context.Context, cik string) (*domain.FilingIndex, error)
}

type DocumentFetcher interface {
	Fetch(ctx context.Context, cik string, filing domain.FilingDescriptor) (*domain.RawDocument, error)
}

type HoldingsParser interface {
	Parse(raw *domain.RawDocument, limit int) (*domain.ParsedDocument, error)
}

type FundCache interface {
	Get(ctx context.Context, cik string) (*domain.FundResult, bool)
	Put(ctx context.Context, cik string, result *domain.FundResult)
	Stats(ctx context.Context) domain.CacheStats
	Clear(ctx context.Context) error
}

type RateLimiter interface {
	Allow(identity string) domain.RateLimitDecision
	Stats(identity string) domain.RateLimitStats
}

type StreamRequest struct {
	Cik      string
	Identity string
	TaskId   string
	Limit    int
}

// Holdings drives a holdings retrieval end to end: admission, cache lookup,
// filing location, then a sequential fetch-and-parse pass over every filing
// of the latest date. The streaming path reports each step as an event, the
// synchronous path returns the aggregate.
type Holdings struct {
	limiter RateLimiter
	cache   FundCache
	locator FilingLocator
	fetcher DocumentFetcher
	parser  HoldingsParser
	tasks   *Tasks
	logger  log.Logger
}

func NewHoldings(
	limiter RateLimiter,
	cache FundCache,
	locator FilingLocator,
	fetcher DocumentFetcher,
	parser HoldingsParser,
	tasks *Tasks,
	logger log.Logger,
) Holdings {
	return Holdings{
		limiter: limiter,
		cache:   cache,
		locator: locator,
		fetcher: fetcher,
		parser:  parser,
		tasks:   tasks,
		logger:  logger,
	}
}

// Stream starts a task and returns its ordered event channel. The channel is
// closed when the task ends; a cancelled task stops silently without a
// terminal event. Events already in flight when cancellation lands are the
// only ones a subscriber may still observe.
func (s Holdings) Stream(ctx context.Context, req StreamRequest) (*Task, <-chan domain.Event) {
	taskId := req.TaskId
	if taskId == "" {
		taskId = uuid.NewString()
	}
	task := s.tasks.Register(taskId)
	events := make(chan domain.Event)

	go func() {
		defer close(events)
		defer task.finish()

		emit := func(event domain.Event) bool {
			if task.Cancelled() || ctx.Err() != nil {
				return false
			}
			select {
			case events <- event:
				return true
			case <-ctx.Done():
				return false
			}
		}
		s.run(ctx, task, req, emit)
	}()

	return task, events
}

func (s Holdings) run(ctx context.Context, task *Task, req StreamRequest, emit func(domain.Event) bool) {
	decision := s.limiter.Allow(req.Identity)
	if !decision.Allowed {
		limited := domain.RateLimitedError{RetryAfter: decision.RetryAfter, FrozenUntil: decision.FrozenUntil}
		emit(domain.Event{
			Type:          domain.EventError,
			Message:       limited.Error(),
			StatusCode:    http.StatusTooManyRequests,
			RetryAfterSec: limited.RetryAfterSeconds(),
		})
		return
	}

	if cached, ok := s.cache.Get(ctx, req.Cik); ok {
		s.replay(task, cached, emit)
		return
	}

	started := time.Now()
	index, err := s.locator.Locate(ctx, req.Cik)
	if err != nil {
		message, statusCode := describeFatal(err)
		emit(domain.ErrorEvent(message, statusCode))
		return
	}
	task.setMetadata(req.Cik, index.RegistrantName, index.LatestDate)
	if !emit(domain.MetadataEvent(*index)) {
		return
	}

	allSucceeded := true
	for i, filing := range index.Filings {
		if task.Cancelled() || ctx.Err() != nil {
			return
		}

		group, err := s.processFiling(ctx, task, req, index, i, filing)
		if err != nil {
			if task.Cancelled() || ctx.Err() != nil {
				return
			}
			allSucceeded = false
			s.logger.Warn(ctx, "filing skipped",
				log.String("cik", req.Cik),
				log.String("accession", filing.AccessionNumber),
				log.Any("error", err),
			)
			if !emit(domain.WarningEvent(filing.AccessionNumber, err.Error())) {
				return
			}
			continue
		}
		if task.Cancelled() {
			return
		}

		task.addGroup(*group)
		if !emit(domain.ProgressEvent(i+1, len(index.Filings), filing.AccessionNumber)) {
			return
		}
		if !emit(domain.SeriesEvent(*group)) {
			return
		}
	}

	groups := task.Groups()
	if !emit(domain.CompleteEvent(len(groups), formatDuration(time.Since(started)))) {
		return
	}

	if allSucceeded && len(groups) > 0 && !task.Cancelled() {
		s.cache.Put(ctx, req.Cik, &domain.FundResult{
			Cik:            req.Cik,
			RegistrantName: index.RegistrantName,
			LatestDate:     index.LatestDate,
			FilingGroups:   groups,
			ProcessingTime: formatDuration(time.Since(started)),
		})
	}
}

// replay turns a cached result back into the canonical event sequence so a
// cache hit is indistinguishable from a fresh retrieval on the wire.
func (s Holdings) replay(task *Task, result *domain.FundResult, emit func(domain.Event) bool) {
	task.setMetadata(result.Cik, result.RegistrantName, result.LatestDate)
	if !emit(domain.Event{
		Type:           domain.EventMetadata,
		RegistrantName: result.RegistrantName,
		LatestDate:     result.LatestDate,
		TotalFilings:   len(result.FilingGroups),
	}) {
		return
	}
	for i, group := range result.FilingGroups {
		task.addGroup(group)
		if !emit(domain.ProgressEvent(i+1, len(result.FilingGroups), group.AccessionNumber)) {
			return
		}
		if !emit(domain.SeriesEvent(group)) {
			return
		}
	}
	emit(domain.CompleteEvent(len(result.FilingGroups), result.ProcessingTime))
}

// Get is the synchronous path. Per-filing failures degrade to a partial
// result instead of aborting, mirroring the warning events of the stream.
func (s Holdings) Get(ctx context.Context, req StreamRequest) (*domain.FundResult, error) {
	decision := s.limiter.Allow(req.Identity)
	if !decision.Allowed {
		return nil, domain.RateLimitedError{RetryAfter: decision.RetryAfter, FrozenUntil: decision.FrozenUntil}
	}

	if cached, ok := s.cache.Get(ctx, req.Cik); ok {
		return cached, nil
	}

	started := time.Now()
	index, err := s.locator.Locate(ctx, req.Cik)
	if err != nil {
		return nil, err
	}

	allSucceeded := true
	groups := make([]domain.FilingGroup, 0, len(index.Filings))
	for i, filing := range index.Filings {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		group, err := s.processFiling(ctx, nil, req, index, i, filing)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			allSucceeded = false
			s.logger.Warn(ctx, "filing skipped",
				log.String("cik", req.Cik),
				log.String("accession", filing.AccessionNumber),
				log.Any("error", err),
			)
			continue
		}
		groups = append(groups, *group)
	}
	if len(groups) == 0 {
		return nil, errors.WithMessagef(domain.ErrNoHoldings, "cik %s", req.Cik)
	}

	result := &domain.FundResult{
		Cik:            req.Cik,
		RegistrantName: index.RegistrantName,
		LatestDate:     index.LatestDate,
		FilingGroups:   groups,
		ProcessingTime: formatDuration(time.Since(started)),
		Partial:        !allSucceeded,
	}
	if allSucceeded {
		s.cache.Put(ctx, req.Cik, result)
	}
	return result, nil
}

func (s Holdings) Cancel(taskId string) error {
	if !s.tasks.Cancel(taskId) {
		return errors.WithMessagef(domain.ErrTaskNotFound, "task %s", taskId)
	}
	return nil
}

func (s Holdings) TaskResult(taskId string) (*domain.FundResult, error) {
	task, ok := s.tasks.Get(taskId)
	if !ok {
		return nil, errors.WithMessagef(domain.ErrTaskNotFound, "task %s", taskId)
	}
	return task.PartialResult(), nil
}

func (s Holdings) processFiling(
	ctx context.Context,
	task *Task,
	req StreamRequest,
	index *domain.FilingIndex,
	position int,
	filing domain.FilingDescriptor,
) (*domain.FilingGroup, error) {
	raw, err := s.fetcher.Fetch(ctx, req.Cik, filing)
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if task != nil && task.Cancelled() {
		return nil, errors.New("task cancelled")
	}

	parsed, err := s.parser.Parse(raw, req.Limit)
	if err != nil {
		return nil, errors.WithMessagef(err, "parse filing %s", filing.AccessionNumber)
	}
	if len(parsed.Holdings) == 0 {
		return nil, errors.Errorf("no holdings found in filing %s", filing.AccessionNumber)
	}

	seriesName := parsed.SeriesName
	if seriesName == "" {
		seriesName = fmt.Sprintf("Series %c", 'A'+position%26)
	}
	filingDate := parsed.ReportingPeriod
	if filingDate == "" {
		filingDate = index.LatestDate
	}

	return &domain.FilingGroup{
		Form:            filing.Form,
		SeriesName:      seriesName,
		AccessionNumber: filing.AccessionNumber,
		FilingUrl:       raw.Url,
		FilingDate:      filingDate,
		HoldingsCount:   len(parsed.Holdings),
		TotalAssets:     parsed.TotalAssets,
		Holdings:        parsed.Holdings,
	}, nil
}

// describeFatal maps a locator failure onto the terminal error event.
func describeFatal(err error) (string, int) {
	notFound := domain.NotFoundError{}
	if errors.As(err, &notFound) {
		return notFound.Message, http.StatusNotFound
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "sec api timed out", http.StatusGatewayTimeout
	}
	upstream := domain.UpstreamError{}
	if errors.As(err, &upstream) {
		return "sec api unavailable", http.StatusServiceUnavailable
	}
	return err.Error(), http.StatusInternalServerError
}

func formatDuration(elapsed time.Duration) string {
	return fmt.Sprintf("%.2fs", elapsed.Seconds())
}
