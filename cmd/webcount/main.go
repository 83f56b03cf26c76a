// Command webcount fetches web pages through a Redis-backed cache that also
// counts how often each URL was requested.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/Sternrassler/web-cache-counter/pkg/counter"
	"github.com/Sternrassler/web-cache-counter/pkg/fetch"
	"github.com/Sternrassler/web-cache-counter/pkg/logging"
	"github.com/Sternrassler/web-cache-counter/pkg/store"
)

func main() {
	if err := newApp(os.Stdout).Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "webcount: %v\n", err)
		os.Exit(1)
	}
}

func envSource(key string) cli.ValueSourceChain {
	return cli.NewValueSourceChain(cli.EnvVar(key))
}

func newApp(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "webcount",
		Usage: "fetch web pages through a TTL cache with per-URL call counters",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "store",
				Usage:   "key-value backend: redis or memory",
				Value:   "redis",
				Sources: envSource("WEBCOUNT_STORE"),
			},
			&cli.StringFlag{
				Name:    "redis-addr",
				Usage:   "Redis address",
				Value:   store.DefaultRedisConfig().Addr,
				Sources: envSource("REDIS_ADDR"),
			},
			&cli.StringFlag{
				Name:    "redis-password",
				Usage:   "Redis password",
				Sources: envSource("REDIS_PASSWORD"),
			},
			&cli.IntFlag{
				Name:    "redis-db",
				Usage:   "Redis database number",
				Sources: envSource("REDIS_DB"),
			},
			&cli.DurationFlag{
				Name:    "expiration",
				Usage:   "how long fetched pages stay cached",
				Value:   counter.DefaultExpiration,
				Sources: envSource("WEBCOUNT_EXPIRATION"),
			},
			&cli.StringFlag{
				Name:    "namespace",
				Usage:   "optional prefix for cache and count keys",
				Sources: envSource("WEBCOUNT_NAMESPACE"),
			},
			&cli.StringFlag{
				Name:    "store-policy",
				Usage:   "on store errors: fail the call or bypass the cache",
				Value:   string(counter.StoreFailCall),
				Sources: envSource("WEBCOUNT_STORE_POLICY"),
			},
			&cli.BoolFlag{
				Name:  "collapse",
				Usage: "share one fetch between concurrent misses for the same URL",
			},
			&cli.StringFlag{
				Name:    "user-agent",
				Usage:   "User-Agent sent with fetches",
				Value:   fetch.DefaultUserAgent,
				Sources: envSource("USER_AGENT"),
			},
			&cli.DurationFlag{
				Name:    "timeout",
				Usage:   "timeout per fetch attempt",
				Value:   fetch.DefaultTimeout,
				Sources: envSource("WEBCOUNT_TIMEOUT"),
			},
			&cli.IntFlag{
				Name:  "retries",
				Usage: "extra attempts for server, rate limit and network errors",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "debug, info, warn or error",
				Value:   string(logging.LevelInfo),
				Sources: envSource("LOG_LEVEL"),
			},
			&cli.BoolFlag{
				Name:    "log-pretty",
				Usage:   "human-readable logs instead of JSON",
				Sources: envSource("LOG_PRETTY"),
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			level, err := logging.ParseLevel(cmd.String("log-level"))
			if err != nil {
				return ctx, err
			}
			logging.Setup(logging.Config{
				Level:  level,
				Pretty: cmd.Bool("log-pretty"),
				Output: os.Stderr,
			})
			return ctx, nil
		},
		Commands: []*cli.Command{
			getCommand(out),
			countCommand(out),
			serveCommand(),
		},
	}
}

func getCommand(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "fetch a URL through the cache and print the body and call count",
		ArgsUsage: "URL",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "times",
				Usage: "number of calls to make",
				Value: 2,
			},
			&cli.BoolFlag{
				Name:    "quiet",
				Aliases: []string{"q"},
				Usage:   "print only the count",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			url, err := urlArg(cmd)
			if err != nil {
				return err
			}

			c, closeFn, err := buildCounter(ctx, cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			for i := 0; i < cmd.Int("times"); i++ {
				res, err := c.Lookup(ctx, url)
				if err != nil {
					return err
				}
				if !cmd.Bool("quiet") {
					fmt.Fprintln(out, res.Body)
				}
				count, err := c.Count(ctx, url)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Count: %d\n", count)
			}
			return nil
		},
	}
}

func countCommand(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:      "count",
		Usage:     "print how many times a URL was requested",
		ArgsUsage: "URL",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			url, err := urlArg(cmd)
			if err != nil {
				return err
			}

			c, closeFn, err := buildCounter(ctx, cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			count, err := c.Count(ctx, url)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%d\n", count)
			return nil
		},
	}
}

func urlArg(cmd *cli.Command) (string, error) {
	if cmd.Args().Len() != 1 {
		return "", fmt.Errorf("%s: expected exactly one URL argument", cmd.Name)
	}
	return cmd.Args().First(), nil
}

// buildCounter wires store, fetcher and caching counter from flags. The
// returned func releases the store connection.
func buildCounter(ctx context.Context, cmd *cli.Command) (*counter.CachingCounter, func(), error) {
	policy, err := counter.ParseStorePolicy(cmd.String("store-policy"))
	if err != nil {
		return nil, nil, err
	}

	var (
		kv      store.Store
		closeFn = func() {}
	)
	switch strings.ToLower(cmd.String("store")) {
	case "redis":
		connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		cfg := store.RedisConfig{
			Addr:     cmd.String("redis-addr"),
			Password: cmd.String("redis-password"),
			DB:       cmd.Int("redis-db"),
		}
		redisClient, err := store.Connect(connectCtx, cfg)
		if err != nil {
			return nil, nil, err
		}
		log.Info().Str("addr", cfg.Addr).Msg("Connected to Redis")

		rs := store.NewRedisStore(redisClient)
		kv = rs
		closeFn = func() { _ = rs.Close() }
	case "memory":
		kv = store.NewMemoryStore()
	default:
		return nil, nil, fmt.Errorf("unknown store %q (want redis or memory)", cmd.String("store"))
	}

	fetchCfg := fetch.DefaultConfig()
	fetchCfg.UserAgent = cmd.String("user-agent")
	fetchCfg.Timeout = cmd.Duration("timeout")
	if n := cmd.Int("retries"); n > 0 {
		fetchCfg.Retry = fetch.DefaultRetryConfig()
		fetchCfg.Retry.MaxAttempts = n + 1
	}
	fetcher := fetch.New(fetchCfg)

	c, err := counter.New(kv, fetcher.Fetch, counter.Config{
		Expiration:         cmd.Duration("expiration"),
		Namespace:          cmd.String("namespace"),
		StorePolicy:        policy,
		CollapseDuplicates: cmd.Bool("collapse"),
	})
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return c, closeFn, nil
}
