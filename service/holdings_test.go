package service_test

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/txix-open/isp-kit/test"
	"nport-service/domain"
	"nport-service/service"
)

type allowAll struct{}

func (allowAll) Allow(string) domain.RateLimitDecision {
	return domain.RateLimitDecision{Allowed: true}
}

func (allowAll) Stats(string) domain.RateLimitStats {
	return domain.RateLimitStats{}
}

type denyAll struct {
	retryAfter time.Duration
}

func (d denyAll) Allow(string) domain.RateLimitDecision {
	return domain.RateLimitDecision{Allowed: false, RetryAfter: d.retryAfter}
}

func (d denyAll) Stats(string) domain.RateLimitStats {
	return domain.RateLimitStats{}
}

type memoryCache struct {
	lock    sync.Mutex
	entries map[string]*domain.FundResult
	puts    int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string]*domain.FundResult)}
}

func (c *memoryCache) Get(_ context.Context, cik string) (*domain.FundResult, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()
	result, ok := c.entries[cik]
	return result, ok
}

func (c *memoryCache) Put(_ context.Context, cik string, result *domain.FundResult) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.entries[cik] = result
	c.puts++
}

func (c *memoryCache) Stats(context.Context) domain.CacheStats {
	return domain.CacheStats{}
}

func (c *memoryCache) Clear(context.Context) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.entries = make(map[string]*domain.FundResult)
	return nil
}

func (c *memoryCache) putCount() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.puts
}

type stubLocator struct {
	index *domain.FilingIndex
	err   error

	lock  sync.Mutex
	calls int
}

func (l *stubLocator) Locate(context.Context, string) (*domain.FilingIndex, error) {
	l.lock.Lock()
	l.calls++
	l.lock.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	return l.index, nil
}

func (l *stubLocator) callCount() int {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.calls
}

type stubFetcher struct {
	failing map[string]bool
	gates   map[string]chan struct{}
	arrived map[string]chan struct{}

	lock    sync.Mutex
	fetched []string
}

func (f *stubFetcher) Fetch(_ context.Context, _ string, filing domain.FilingDescriptor) (*domain.RawDocument, error) {
	f.lock.Lock()
	f.fetched = append(f.fetched, filing.AccessionNumber)
	f.lock.Unlock()

	if arrived := f.arrived[filing.AccessionNumber]; arrived != nil {
		close(arrived)
	}
	if gate := f.gates[filing.AccessionNumber]; gate != nil {
		<-gate
	}
	if f.failing[filing.AccessionNumber] {
		return nil, domain.DocumentUnavailableError{Accession: filing.AccessionNumber, LastStatus: http.StatusNotFound}
	}
	return &domain.RawDocument{
		Url:     "http://edgar.test/" + filing.AccessionNumber,
		Content: []byte(filing.AccessionNumber),
	}, nil
}

func (f *stubFetcher) fetchedAccessions() []string {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([]string(nil), f.fetched...)
}

type stubParser struct {
	docs map[string]*domain.ParsedDocument
}

func (p stubParser) Parse(raw *domain.RawDocument, _ int) (*domain.ParsedDocument, error) {
	doc, ok := p.docs[string(raw.Content)]
	if !ok {
		return &domain.ParsedDocument{Holdings: []domain.Holding{}}, nil
	}
	return doc, nil
}

func threeFilingIndex() *domain.FilingIndex {
	return &domain.FilingIndex{
		RegistrantName: "VANGUARD INDEX FUNDS",
		LatestDate:     "2024-06-30",
		Filings: []domain.FilingDescriptor{
			{Form: "NPORT-P", AccessionNumber: "0001-24-000001", FilingDate: "2024-06-30", PrimaryDocument: "primary_doc.xml"},
			{Form: "NPORT-P", AccessionNumber: "0001-24-000002", FilingDate: "2024-06-30", PrimaryDocument: "primary_doc.xml"},
			{Form: "NPORT-P", AccessionNumber: "0001-24-000003", FilingDate: "2024-06-30", PrimaryDocument: "primary_doc.xml"},
		},
	}
}

func parsedDoc(series string, value float64) *domain.ParsedDocument {
	return &domain.ParsedDocument{
		SeriesName:      series,
		ReportingPeriod: "2024-06-30",
		TotalAssets:     value,
		Holdings: []domain.Holding{
			{Cusip: "037833100", Title: "APPLE INC", Balance: &value, Value: &value},
		},
	}
}

func threeSeriesParser() stubParser {
	return stubParser{docs: map[string]*domain.ParsedDocument{
		"0001-24-000001": parsedDoc("Growth Fund", 100),
		"0001-24-000002": parsedDoc("Income Fund", 200),
		"0001-24-000003": parsedDoc("Balanced Fund", 300),
	}}
}

func newHoldings(
	t *testing.T,
	limiter service.RateLimiter,
	cache service.FundCache,
	locator service.FilingLocator,
	fetcher service.DocumentFetcher,
	parser service.HoldingsParser,
) service.Holdings {
	testInstance, _ := test.New(t)
	return service.NewHoldings(limiter, cache, locator, fetcher, parser, service.NewTasks(8), testInstance.Logger())
}

func collect(events <-chan domain.Event) []domain.Event {
	out := []domain.Event{}
	for event := range events {
		out = append(out, event)
	}
	return out
}

func eventTypes(events []domain.Event) []string {
	out := make([]string, 0, len(events))
	for _, event := range events {
		out = append(out, event.Type)
	}
	return out
}

func TestStreamThreeSeries(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	cache := newMemoryCache()
	holdings := newHoldings(t, allowAll{}, cache, &stubLocator{index: threeFilingIndex()}, &stubFetcher{}, threeSeriesParser())

	task, events := holdings.Stream(context.Background(), service.StreamRequest{Cik: "0000884394", Identity: "1.2.3.4"})
	received := collect(events)

	require.EqualValues([]string{
		"metadata",
		"progress", "series",
		"progress", "series",
		"progress", "series",
		"complete",
	}, eventTypes(received))

	require.EqualValues("VANGUARD INDEX FUNDS", received[0].RegistrantName)
	require.EqualValues(3, received[0].TotalFilings)
	require.EqualValues(1, received[1].Current)
	require.EqualValues(3, received[1].Total)
	require.EqualValues("Growth Fund", received[2].Data.SeriesName)
	require.EqualValues("http://edgar.test/0001-24-000001", received[2].Data.FilingUrl)
	require.EqualValues("Balanced Fund", received[6].Data.SeriesName)

	complete := received[7]
	require.NotNil(complete.TotalProcessed)
	require.EqualValues(3, *complete.TotalProcessed)
	require.NotEmpty(complete.ProcessingTime)

	require.EqualValues(1, cache.putCount())
	require.Len(task.Groups(), 3)
}

func TestStreamWarningSkipsSeriesAndCache(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	cache := newMemoryCache()
	fetcher := &stubFetcher{failing: map[string]bool{"0001-24-000002": true}}
	holdings := newHoldings(t, allowAll{}, cache, &stubLocator{index: threeFilingIndex()}, fetcher, threeSeriesParser())

	_, events := holdings.Stream(context.Background(), service.StreamRequest{Cik: "0000884394", Identity: "1.2.3.4"})
	received := collect(events)

	require.EqualValues([]string{
		"metadata",
		"progress", "series",
		"warning",
		"progress", "series",
		"complete",
	}, eventTypes(received))

	require.EqualValues("0001-24-000002", received[3].Accession)
	require.NotEmpty(received[3].Message)
	// totalProcessed counts successes only
	require.EqualValues(2, *received[6].TotalProcessed)

	// a partial run must never be cached
	require.EqualValues(0, cache.putCount())
}

func TestStreamCancelAfterFirstSeries(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	cache := newMemoryCache()
	gate := make(chan struct{})
	arrived := make(chan struct{})
	fetcher := &stubFetcher{
		gates:   map[string]chan struct{}{"0001-24-000002": gate},
		arrived: map[string]chan struct{}{"0001-24-000002": arrived},
	}
	holdings := newHoldings(t, allowAll{}, cache, &stubLocator{index: threeFilingIndex()}, fetcher, threeSeriesParser())

	task, events := holdings.Stream(context.Background(), service.StreamRequest{Cik: "0000884394", Identity: "1.2.3.4"})

	require.EqualValues("metadata", (<-events).Type)
	require.EqualValues("progress", (<-events).Type)
	require.EqualValues("series", (<-events).Type)

	// the second fetch is parked on the gate; cancel lands before it returns
	<-arrived
	task.Cancel()
	close(gate)

	remaining := collect(events)
	require.Empty(remaining)

	require.Len(task.Groups(), 1)
	require.EqualValues([]string{"0001-24-000001", "0001-24-000002"}, fetcher.fetchedAccessions())

	partial := task.PartialResult()
	require.True(partial.Partial)
	require.Len(partial.FilingGroups, 1)
	require.EqualValues("Growth Fund", partial.FilingGroups[0].SeriesName)
	require.EqualValues(0, cache.putCount())
}

func TestStreamCacheHitReplays(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	cache := newMemoryCache()
	cache.Put(context.Background(), "0000884394", &domain.FundResult{
		Cik:            "0000884394",
		RegistrantName: "VANGUARD INDEX FUNDS",
		LatestDate:     "2024-06-30",
		FilingGroups: []domain.FilingGroup{
			{SeriesName: "Growth Fund", AccessionNumber: "0001-24-000001"},
			{SeriesName: "Income Fund", AccessionNumber: "0001-24-000002"},
		},
		ProcessingTime: "1.25s",
	})
	locator := &stubLocator{index: threeFilingIndex()}
	holdings := newHoldings(t, allowAll{}, cache, locator, &stubFetcher{}, threeSeriesParser())

	_, events := holdings.Stream(context.Background(), service.StreamRequest{Cik: "0000884394", Identity: "1.2.3.4"})
	received := collect(events)

	require.EqualValues([]string{
		"metadata",
		"progress", "series",
		"progress", "series",
		"complete",
	}, eventTypes(received))
	require.EqualValues("1.25s", received[5].ProcessingTime)
	require.EqualValues(0, locator.callCount())
}

func TestStreamRateLimited(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	locator := &stubLocator{index: threeFilingIndex()}
	holdings := newHoldings(t, denyAll{retryAfter: 42 * time.Second}, newMemoryCache(), locator, &stubFetcher{}, threeSeriesParser())

	_, events := holdings.Stream(context.Background(), service.StreamRequest{Cik: "0000884394", Identity: "1.2.3.4"})
	received := collect(events)

	require.Len(received, 1)
	require.EqualValues("error", received[0].Type)
	require.EqualValues(http.StatusTooManyRequests, received[0].StatusCode)
	require.EqualValues(42, received[0].RetryAfterSec)
	require.EqualValues(0, locator.callCount())
}

func TestStreamNotFound(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	locator := &stubLocator{err: domain.NotFoundError{Message: "no NPORT filings found for cik 0000884394"}}
	holdings := newHoldings(t, allowAll{}, newMemoryCache(), locator, &stubFetcher{}, threeSeriesParser())

	_, events := holdings.Stream(context.Background(), service.StreamRequest{Cik: "0000884394", Identity: "1.2.3.4"})
	received := collect(events)

	require.Len(received, 1)
	require.EqualValues("error", received[0].Type)
	require.EqualValues(http.StatusNotFound, received[0].StatusCode)
	require.Contains(received[0].Message, "no NPORT filings")
}

func TestGetAggregatesAndCaches(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	cache := newMemoryCache()
	holdings := newHoldings(t, allowAll{}, cache, &stubLocator{index: threeFilingIndex()}, &stubFetcher{}, threeSeriesParser())

	result, err := holdings.Get(context.Background(), service.StreamRequest{Cik: "0000884394", Identity: "1.2.3.4"})
	require.NoError(err)
	require.Len(result.FilingGroups, 3)
	require.False(result.Partial)
	require.EqualValues(1, cache.putCount())

	cached, ok := cache.Get(context.Background(), "0000884394")
	require.True(ok)
	require.EqualValues(result, cached)
}

func TestGetPartialOnFilingFailure(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	cache := newMemoryCache()
	fetcher := &stubFetcher{failing: map[string]bool{"0001-24-000003": true}}
	holdings := newHoldings(t, allowAll{}, cache, &stubLocator{index: threeFilingIndex()}, fetcher, threeSeriesParser())

	result, err := holdings.Get(context.Background(), service.StreamRequest{Cik: "0000884394", Identity: "1.2.3.4"})
	require.NoError(err)
	require.Len(result.FilingGroups, 2)
	require.True(result.Partial)
	require.EqualValues(0, cache.putCount())
}

func TestGetNoHoldingsAtAll(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	fetcher := &stubFetcher{failing: map[string]bool{
		"0001-24-000001": true,
		"0001-24-000002": true,
		"0001-24-000003": true,
	}}
	holdings := newHoldings(t, allowAll{}, newMemoryCache(), &stubLocator{index: threeFilingIndex()}, fetcher, threeSeriesParser())

	_, err := holdings.Get(context.Background(), service.StreamRequest{Cik: "0000884394", Identity: "1.2.3.4"})
	require.ErrorIs(err, domain.ErrNoHoldings)
}

func TestGetRateLimited(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	holdings := newHoldings(t, denyAll{retryAfter: 30 * time.Second}, newMemoryCache(), &stubLocator{index: threeFilingIndex()}, &stubFetcher{}, threeSeriesParser())

	_, err := holdings.Get(context.Background(), service.StreamRequest{Cik: "0000884394", Identity: "1.2.3.4"})
	limited := domain.RateLimitedError{}
	require.ErrorAs(err, &limited)
	require.EqualValues(30, limited.RetryAfterSeconds())
}

func TestCancelUnknownTask(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	holdings := newHoldings(t, allowAll{}, newMemoryCache(), &stubLocator{index: threeFilingIndex()}, &stubFetcher{}, threeSeriesParser())
	err := holdings.Cancel("missing")
	require.ErrorIs(err, domain.ErrTaskNotFound)
}
