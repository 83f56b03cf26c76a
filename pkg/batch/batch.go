// Package batch fans a wrapped fetch out over many URLs with bounded
// concurrency.
package batch

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/Sternrassler/web-cache-counter/pkg/counter"
)

// Config holds batch fetch configuration.
type Config struct {
	// MaxConcurrency is the maximum number of calls in flight.
	MaxConcurrency int

	// Timeout bounds each call. Zero means no per-call timeout.
	Timeout time.Duration
}

// DefaultConfig returns the default batch configuration.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 10,
		Timeout:        15 * time.Second,
	}
}

// Result is the outcome for one URL.
type Result struct {
	URL  string
	Body string
	Err  error
}

// FetchAll calls fn once per URL, at most cfg.MaxConcurrency at a time.
// Results keep the order of urls; a failing URL does not stop the others.
// If ctx ends early, URLs not yet started get ctx.Err() and FetchAll
// returns it as well.
func FetchAll(ctx context.Context, fn counter.FetchFunc, urls []string, cfg Config) ([]Result, error) {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = DefaultConfig().MaxConcurrency
	}

	start := time.Now()
	results := make([]Result, len(urls))

	var g errgroup.Group
	g.SetLimit(cfg.MaxConcurrency)

	for i, u := range urls {
		results[i].URL = u
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}

			callCtx := ctx
			if cfg.Timeout > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
				defer cancel()
			}

			body, err := fn(callCtx, u)
			if err != nil {
				log.Warn().Err(err).Str("url", u).Msg("Batch fetch failed")
				results[i].Err = err
				return nil
			}
			results[i].Body = body
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	log.Info().
		Int("urls", len(urls)).
		Int("failed", failed).
		Dur("duration", time.Since(start)).
		Msg("Batch fetch complete")

	if err := ctx.Err(); err != nil {
		return results, err
	}
	return results, nil
}
