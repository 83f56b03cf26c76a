package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sternrassler/web-cache-counter/pkg/counter"
	"github.com/Sternrassler/web-cache-counter/pkg/store"
)

func TestFetchAll_PreservesOrder(t *testing.T) {
	urls := []string{"http://a", "http://b", "http://c", "http://d"}
	fn := func(_ context.Context, url string) (string, error) {
		return "body of " + url, nil
	}

	results, err := FetchAll(context.Background(), fn, urls, DefaultConfig())
	require.NoError(t, err)
	require.Len(t, results, len(urls))

	for i, r := range results {
		assert.Equal(t, urls[i], r.URL)
		assert.Equal(t, "body of "+urls[i], r.Body)
		assert.NoError(t, r.Err)
	}
}

func TestFetchAll_CollectsPerURLErrors(t *testing.T) {
	boom := errors.New("boom")
	fn := func(_ context.Context, url string) (string, error) {
		if url == "http://bad" {
			return "", boom
		}
		return "ok", nil
	}

	results, err := FetchAll(context.Background(), fn, []string{"http://good", "http://bad", "http://good2"}, DefaultConfig())
	require.NoError(t, err)

	assert.NoError(t, results[0].Err)
	assert.ErrorIs(t, results[1].Err, boom)
	assert.NoError(t, results[2].Err)
	assert.Equal(t, "ok", results[2].Body)
}

func TestFetchAll_RespectsConcurrencyLimit(t *testing.T) {
	var inFlight, peak atomic.Int32
	fn := func(_ context.Context, _ string) (string, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
		return "", nil
	}

	urls := make([]string, 20)
	for i := range urls {
		urls[i] = fmt.Sprintf("http://u/%d", i)
	}

	_, err := FetchAll(context.Background(), fn, urls, Config{MaxConcurrency: 3})
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestFetchAll_PerCallTimeout(t *testing.T) {
	fn := func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}

	results, err := FetchAll(context.Background(), fn, []string{"http://slow"}, Config{MaxConcurrency: 1, Timeout: 20 * time.Millisecond})
	require.NoError(t, err)
	assert.ErrorIs(t, results[0].Err, context.DeadlineExceeded)
}

func TestFetchAll_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int32
	fn := func(_ context.Context, _ string) (string, error) {
		calls.Add(1)
		return "", nil
	}

	results, err := FetchAll(ctx, fn, []string{"http://a", "http://b"}, DefaultConfig())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(0), calls.Load())
	for _, r := range results {
		assert.ErrorIs(t, r.Err, context.Canceled)
	}
}

func TestFetchAll_WithCachingCounter(t *testing.T) {
	mem := store.NewMemoryStore()

	var mu sync.Mutex
	fetched := map[string]int{}
	fetch := func(_ context.Context, url string) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		fetched[url]++
		return "page " + url, nil
	}

	c, err := counter.New(mem, fetch, counter.DefaultConfig())
	require.NoError(t, err)

	urls := []string{"http://a", "http://b", "http://c"}
	ctx := context.Background()

	for round := 0; round < 2; round++ {
		results, err := FetchAll(ctx, c.Get, urls, DefaultConfig())
		require.NoError(t, err)
		for i, r := range results {
			assert.Equal(t, "page "+urls[i], r.Body)
		}
	}

	for _, u := range urls {
		n, err := c.Count(ctx, u)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
		assert.Equal(t, 1, fetched[u], "second round must be served from cache")
	}
}
