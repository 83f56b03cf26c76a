package counter

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/Sternrassler/web-cache-counter/pkg/logging"
	"github.com/Sternrassler/web-cache-counter/pkg/store"
)

// DefaultExpiration is how long a fetched body stays cached.
const DefaultExpiration = 10 * time.Second

// FetchFunc retrieves the body behind a URL.
type FetchFunc func(ctx context.Context, url string) (string, error)

// StorePolicy decides what a call does when the store fails.
type StorePolicy string

const (
	// StoreFailCall returns store errors to the caller as *StoreError.
	StoreFailCall StorePolicy = "fail"

	// StoreBypass logs store errors and falls back to calling the fetch
	// function directly.
	StoreBypass StorePolicy = "bypass"
)

// ParseStorePolicy validates a policy name coming from flags or environment.
func ParseStorePolicy(s string) (StorePolicy, error) {
	switch StorePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case StoreFailCall, "":
		return StoreFailCall, nil
	case StoreBypass:
		return StoreBypass, nil
	default:
		return "", fmt.Errorf("unknown store policy %q (want fail or bypass)", s)
	}
}

// StoreError reports a failed store operation that ended a call under
// StoreFailCall. It unwraps to the store's error.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Config holds the caching counter configuration.
type Config struct {
	// Expiration is the TTL of cached bodies. Zero means DefaultExpiration.
	Expiration time.Duration

	// Namespace optionally prefixes both keys, see Keys.
	Namespace string

	// StorePolicy applies when the store returns an error. Empty means StoreFailCall.
	StorePolicy StorePolicy

	// CollapseDuplicates makes concurrent misses for the same URL within
	// this process share a single fetch. Every caller is still counted.
	CollapseDuplicates bool
}

// DefaultConfig returns the configuration of the plain cache-and-count wrapper.
func DefaultConfig() Config {
	return Config{
		Expiration:  DefaultExpiration,
		StorePolicy: StoreFailCall,
	}
}

// Result describes the outcome of one wrapped call.
type Result struct {
	// Body is the cached or freshly fetched body.
	Body string

	// Hit is true when Body came from the cache.
	Hit bool

	// Count is the call counter after this call's increment, or 0 if the
	// increment failed and the bypass policy let the call continue.
	Count int64
}

// CachingCounter wraps a FetchFunc with a TTL cache and a per-URL call
// counter. All state lives in the store; the wrapper itself holds none
// beyond its configuration.
type CachingCounter struct {
	store  store.Store
	fetch  FetchFunc
	keys   Keys
	config Config
	logger zerolog.Logger
	flight singleflight.Group
}

// New creates a caching counter around fetch.
func New(s store.Store, fetch FetchFunc, cfg Config) (*CachingCounter, error) {
	if s == nil {
		return nil, fmt.Errorf("store is required")
	}
	if fetch == nil {
		return nil, fmt.Errorf("fetch function is required")
	}
	if cfg.Expiration < 0 {
		return nil, fmt.Errorf("expiration must be >= 0 (got %v)", cfg.Expiration)
	}
	if cfg.Expiration == 0 {
		cfg.Expiration = DefaultExpiration
	}

	policy, err := ParseStorePolicy(string(cfg.StorePolicy))
	if err != nil {
		return nil, err
	}
	cfg.StorePolicy = policy

	return &CachingCounter{
		store:  s,
		fetch:  fetch,
		keys:   Keys{Namespace: cfg.Namespace},
		config: cfg,
		logger: logging.NewLogger("caching-counter"),
	}, nil
}

// Wrap returns fetch decorated with caching and counting, with the same
// signature as fetch.
func Wrap(s store.Store, fetch FetchFunc, cfg Config) (FetchFunc, error) {
	c, err := New(s, fetch, cfg)
	if err != nil {
		return nil, err
	}
	return c.Get, nil
}

// Get is the wrapped fetch. See Lookup.
func (c *CachingCounter) Get(ctx context.Context, url string) (string, error) {
	res, err := c.Lookup(ctx, url)
	if err != nil {
		return "", err
	}
	return res.Body, nil
}

// Lookup counts the call, then serves url from the cache or fetches and
// caches it.
//
// Errors from the fetch function are returned as is and leave the cache
// untouched, so the next call fetches again. The counter is never rolled
// back: it counts attempts, not successes.
func (c *CachingCounter) Lookup(ctx context.Context, url string) (Result, error) {
	var res Result

	count, err := c.store.Incr(ctx, c.keys.Count(url))
	if err != nil {
		if err := c.storeFailure("incr", url, err); err != nil {
			return Result{}, err
		}
	} else {
		res.Count = count
	}

	cacheKey := c.keys.Cache(url)
	cached, err := c.store.Get(ctx, cacheKey)
	switch {
	case err == nil:
		CacheHits.Inc()
		c.logger.Debug().
			Str("url", url).
			Int64("count", res.Count).
			Msg("Cache hit")
		res.Body = cached
		res.Hit = true
		return res, nil
	case errors.Is(err, store.ErrNotFound):
	default:
		if err := c.storeFailure("get", url, err); err != nil {
			return Result{}, err
		}
	}

	CacheMisses.Inc()
	c.logger.Debug().
		Str("url", url).
		Int64("count", res.Count).
		Msg("Cache miss")

	body, err := c.load(ctx, url)
	if err != nil {
		FetchErrors.Inc()
		return Result{}, err
	}

	if err := c.store.SetEx(ctx, cacheKey, body, c.config.Expiration); err != nil {
		if err := c.storeFailure("setex", url, err); err != nil {
			return Result{}, err
		}
	} else {
		c.logger.Debug().
			Str("url", url).
			Dur("ttl", c.config.Expiration).
			Msg("Cached response")
	}

	res.Body = body
	return res, nil
}

// load invokes the fetch function, sharing one call between concurrent
// misses when CollapseDuplicates is set. A shared call keeps the values of
// the context that started it but not its cancellation; each caller stops
// waiting when its own context ends.
func (c *CachingCounter) load(ctx context.Context, url string) (string, error) {
	if !c.config.CollapseDuplicates {
		return c.timedFetch(ctx, url)
	}

	ch := c.flight.DoChan(url, func() (any, error) {
		return c.timedFetch(context.WithoutCancel(ctx), url)
	})
	select {
	case r := <-ch:
		if r.Shared {
			c.logger.Debug().Str("url", url).Msg("Shared in-flight fetch")
		}
		if r.Err != nil {
			return "", r.Err
		}
		return r.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *CachingCounter) timedFetch(ctx context.Context, url string) (string, error) {
	start := time.Now()
	body, err := c.fetch(ctx, url)
	FetchDuration.Observe(time.Since(start).Seconds())
	return body, err
}

// storeFailure records a store error and applies the store policy.
// It returns a *StoreError when the call must fail, nil when it may go on.
func (c *CachingCounter) storeFailure(op, url string, err error) error {
	StoreErrors.WithLabelValues(op).Inc()

	if c.config.StorePolicy == StoreBypass {
		c.logger.Warn().
			Err(err).
			Str("operation", op).
			Str("url", url).
			Msg("Store error, bypassing cache")
		return nil
	}

	c.logger.Error().
		Err(err).
		Str("operation", op).
		Str("url", url).
		Msg("Store error")
	return &StoreError{Op: op, Err: err}
}

// Count returns the call counter for url without changing it.
func (c *CachingCounter) Count(ctx context.Context, url string) (int64, error) {
	v, err := c.store.Get(ctx, c.keys.Count(url))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}

	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse counter for %s: %w", url, err)
	}
	return n, nil
}

// Cached returns the cached body for url, if any, without counting a call.
func (c *CachingCounter) Cached(ctx context.Context, url string) (string, bool, error) {
	v, err := c.store.Get(ctx, c.keys.Cache(url))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return v, true, nil
}

// Config returns the effective configuration.
func (c *CachingCounter) Config() Config {
	return c.config
}
