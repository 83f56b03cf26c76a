// Package fetch provides the HTTP GET collaborator wrapped by the caching
// counter: it returns the body of a URL as text, classifies failures and
// optionally retries them.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/web-cache-counter/pkg/logging"
)

// Prometheus metrics for outgoing requests.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webcount_http_requests_total",
		Help: "Total outgoing fetch requests by status",
	}, []string{"status"})

	requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "webcount_http_request_duration_seconds",
		Help:    "Outgoing fetch request duration in seconds",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
	})
)

const (
	// DefaultTimeout bounds a single request attempt.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxBodyBytes caps how much of a body is read (10 MiB).
	DefaultMaxBodyBytes = 10 << 20

	// DefaultUserAgent is sent when Config.UserAgent is empty.
	DefaultUserAgent = "web-cache-counter/0.1.0"
)

// Config holds the fetcher configuration.
type Config struct {
	// Timeout per attempt. Zero means DefaultTimeout.
	Timeout time.Duration

	// UserAgent header value.
	UserAgent string

	// MaxBodyBytes caps the body size. Zero means DefaultMaxBodyBytes.
	MaxBodyBytes int64

	// Retry controls retries of server, rate limit and network errors.
	Retry RetryConfig
}

// DefaultConfig returns a fetcher that tries each URL once.
func DefaultConfig() Config {
	return Config{
		Timeout:      DefaultTimeout,
		UserAgent:    DefaultUserAgent,
		MaxBodyBytes: DefaultMaxBodyBytes,
		Retry:        NoRetry(),
	}
}

// Fetcher performs GET requests and returns response bodies.
type Fetcher struct {
	httpClient *http.Client
	config     Config
	logger     zerolog.Logger
}

// New creates a fetcher. Zero values in cfg are replaced by defaults.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.Retry.MaxAttempts < 1 {
		cfg.Retry = NoRetry()
	}

	return &Fetcher{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		config:     cfg,
		logger:     logging.NewLogger("fetcher"),
	}
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (f *Fetcher) SetHTTPClient(client *http.Client) {
	f.httpClient = client
}

// Fetch returns the body of url. Non-2xx responses and transport failures
// are returned as *HTTPError.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	var body string
	err := retryWithBackoff(ctx, f.config.Retry, f.logger, func() error {
		b, err := f.get(ctx, url)
		if err != nil {
			return err
		}
		body = b
		return nil
	})
	if err != nil {
		f.logger.Error().Err(err).Str("url", url).Msg("Fetch failed")
		return "", err
	}
	return body, nil
}

// get performs a single attempt.
func (f *Fetcher) get(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.config.UserAgent)

	f.logger.Debug().Str("url", url).Msg("Executing fetch")

	start := time.Now()
	resp, err := f.httpClient.Do(req)
	requestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		requestsTotal.WithLabelValues("network_error").Inc()
		return "", &HTTPError{URL: url, ErrorClass: ErrorClassNetwork, Err: err}
	}
	defer resp.Body.Close()

	requestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a little so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

		class := classifyStatus(resp.StatusCode)
		f.logger.Warn().
			Str("url", url).
			Int("status_code", resp.StatusCode).
			Str("error_class", string(class)).
			Msg("Fetch returned error status")
		return "", &HTTPError{URL: url, StatusCode: resp.StatusCode, ErrorClass: class}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.config.MaxBodyBytes+1))
	if err != nil {
		return "", &HTTPError{URL: url, StatusCode: resp.StatusCode, ErrorClass: ErrorClassNetwork, Err: err}
	}
	if int64(len(data)) > f.config.MaxBodyBytes {
		return "", fmt.Errorf("fetch %s: %w (limit %d bytes)", url, ErrBodyTooLarge, f.config.MaxBodyBytes)
	}

	return string(data), nil
}
