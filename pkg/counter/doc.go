// Package counter wraps a fetch function with a TTL cache and a per-URL
// call counter, both held in an external key-value store.
//
// Every call increments count:<url> first, then either returns the body
// stored at cache:<url> or invokes the wrapped function and stores its
// result there with a fixed expiration.
//
// # Basic Usage
//
//	redisClient, err := store.Connect(ctx, store.DefaultRedisConfig())
//	if err != nil {
//		return err
//	}
//
//	fetcher := fetch.New(fetch.DefaultConfig())
//	getPage, err := counter.Wrap(store.NewRedisStore(redisClient), fetcher.Fetch, counter.DefaultConfig())
//	if err != nil {
//		return err
//	}
//
//	body, err := getPage(ctx, "http://example.com")
//
// # Failure Handling
//
// Fetch errors reach the caller unchanged and nothing is cached, so the
// next call fetches again. The counter is not rolled back.
//
// Store errors follow Config.StorePolicy: StoreFailCall (default) returns
// them as *StoreError, StoreBypass logs them and fetches directly. Use
// errors.As with *StoreError to tell a store outage from a fetch failure.
//
// # Concurrency
//
// The counter is exact as long as the store's increment is atomic. The
// read-then-write on the cache is not: concurrent misses on one URL may
// all fetch, and the last write wins. CollapseDuplicates narrows this to
// one fetch per URL per process. A shared fetch outlives a cancelled
// caller and is bounded by the fetch function's own timeout.
//
// # Metrics
//
//   - webcount_cache_hits_total
//   - webcount_cache_misses_total
//   - webcount_fetch_errors_total
//   - webcount_store_errors_total{operation}
//   - webcount_fetch_duration_seconds
package counter
