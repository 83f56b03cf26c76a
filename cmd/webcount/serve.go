package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/Sternrassler/web-cache-counter/pkg/counter"
	"github.com/Sternrassler/web-cache-counter/pkg/metrics"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "serve cached pages and counters over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "port",
				Usage:   "listen port",
				Value:   "8080",
				Sources: envSource("PORT"),
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			c, closeFn, err := buildCounter(ctx, cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			srv := &http.Server{
				Addr:              ":" + cmd.String("port"),
				Handler:           newHandler(c),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				log.Info().Str("addr", srv.Addr).Msg("Starting webcount server")
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return fmt.Errorf("server failed: %w", err)
			case <-ctx.Done():
			}

			log.Info().Msg("Shutting down webcount server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
}

// newHandler exposes the caching counter:
//
//	GET /page?url=   cached or fetched body, X-Cache and X-Call-Count headers
//	GET /count?url=  {"url": ..., "count": n}
//	GET /health
//	GET /metrics
func newHandler(c *counter.CachingCounter) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /page", pageHandler(c))
	mux.HandleFunc("GET /count", countHandler(c))
	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

func pageHandler(c *counter.CachingCounter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		url := r.URL.Query().Get("url")
		if url == "" {
			http.Error(w, "missing url parameter", http.StatusBadRequest)
			return
		}

		res, err := c.Lookup(r.Context(), url)
		if err != nil {
			var storeErr *counter.StoreError
			if errors.As(err, &storeErr) {
				log.Error().Err(err).Str("url", url).Msg("Page lookup failed")
				http.Error(w, "lookup failed", http.StatusServiceUnavailable)
				return
			}
			http.Error(w, fmt.Sprintf("fetch failed: %v", err), http.StatusBadGateway)
			return
		}

		cacheStatus := "MISS"
		if res.Hit {
			cacheStatus = "HIT"
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("X-Cache", cacheStatus)
		w.Header().Set("X-Call-Count", strconv.FormatInt(res.Count, 10))
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(res.Body)); err != nil {
			log.Warn().Err(err).Msg("Failed to write response")
		}
	}
}

type countResponse struct {
	URL   string `json:"url"`
	Count int64  `json:"count"`
}

func countHandler(c *counter.CachingCounter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		url := r.URL.Query().Get("url")
		if url == "" {
			http.Error(w, "missing url parameter", http.StatusBadRequest)
			return
		}

		n, err := c.Count(r.Context(), url)
		if err != nil {
			log.Error().Err(err).Str("url", url).Msg("Count lookup failed")
			http.Error(w, "count lookup failed", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(countResponse{URL: url, Count: n}); err != nil {
			log.Warn().Err(err).Msg("Failed to write response")
		}
	}
}
