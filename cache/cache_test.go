package cache_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"nport-service/cache"
	"nport-service/domain"
)

func result(cik string) *domain.FundResult {
	return &domain.FundResult{Cik: cik, RegistrantName: "FUND " + cik}
}

func TestGetBasic(t *testing.T) {
	t.Parallel()
	require := require.New(t)
	ctx := context.Background()

	cache := cache.New(4)
	cache.Put(ctx, "884394", result("0000884394"))

	stored, ok := cache.Get(ctx, "884394")
	require.True(ok)
	require.EqualValues("FUND 0000884394", stored.RegistrantName)

	_, ok = cache.Get(ctx, "1234")
	require.False(ok)
}

func TestNormalizedKeysCollide(t *testing.T) {
	t.Parallel()
	require := require.New(t)
	ctx := context.Background()

	cache := cache.New(4)
	cache.Put(ctx, "884394", result("0000884394"))
	cache.Put(ctx, "0000884394", result("0000884394"))

	stats := cache.Stats(ctx)
	require.EqualValues(1, stats.Size)

	_, ok := cache.Get(ctx, "0884394")
	require.True(ok)
}

func TestLruEviction(t *testing.T) {
	t.Parallel()
	require := require.New(t)
	ctx := context.Background()

	cache := cache.New(3)
	for i := 1; i <= 3; i++ {
		cik := fmt.Sprintf("%d", i)
		cache.Put(ctx, cik, result(cik))
	}

	// touch the oldest entry so it survives the next insert
	_, ok := cache.Get(ctx, "1")
	require.True(ok)

	cache.Put(ctx, "4", result("4"))

	_, ok = cache.Get(ctx, "2")
	require.False(ok)
	_, ok = cache.Get(ctx, "1")
	require.True(ok)
	_, ok = cache.Get(ctx, "3")
	require.True(ok)
	_, ok = cache.Get(ctx, "4")
	require.True(ok)
	require.EqualValues(3, cache.Stats(ctx).Size)
}

func TestStatsAndClear(t *testing.T) {
	t.Parallel()
	require := require.New(t)
	ctx := context.Background()

	cache := cache.New(2)
	cache.Put(ctx, "1", result("1"))

	_, _ = cache.Get(ctx, "1")
	_, _ = cache.Get(ctx, "2")

	stats := cache.Stats(ctx)
	require.EqualValues(1, stats.Hits)
	require.EqualValues(1, stats.Misses)
	require.EqualValues(1, stats.Size)
	require.EqualValues(2, stats.Capacity)

	err := cache.Clear(ctx)
	require.NoError(err)
	require.EqualValues(0, cache.Stats(ctx).Size)

	_, ok := cache.Get(ctx, "1")
	require.False(ok)
}

func TestInvalidCikNeverStored(t *testing.T) {
	t.Parallel()
	require := require.New(t)
	ctx := context.Background()

	cache := cache.New(2)
	cache.Put(ctx, "not-a-cik", result("x"))
	require.EqualValues(0, cache.Stats(ctx).Size)

	_, ok := cache.Get(ctx, "not-a-cik")
	require.False(ok)
}
