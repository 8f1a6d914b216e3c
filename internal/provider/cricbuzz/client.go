// Package cricbuzz provides the HTTP client and payload normalizers for the
// Cricbuzz cricket API served through RapidAPI.
//
// Cricbuzz authenticates with RapidAPI headers, paginates archives with an
// opaque cursor, and returns the same entity in several JSON shapes depending
// on endpoint and API version. The client tags every failure with a Kind so
// callers can tell "rate limited" from "nothing there" from "garbage".
package cricbuzz

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cockroachdb/errors"
	"github.com/sony/gobreaker"

	"github.com/albapepper/cricket-livestats/internal/config"
	"github.com/albapepper/cricket-livestats/internal/metrics"
)

// DefaultHost is the RapidAPI host for Cricbuzz.
const DefaultHost = "cricbuzz-cricket.p.rapidapi.com"

// errTransient marks attempts worth retrying (network errors, 5xx).
var errTransient = errors.New("cricbuzz: transient failure")

// errGaveUp marks requests that exhausted their retries. Only these count
// against the circuit breaker.
var errGaveUp = errors.New("cricbuzz: retries exhausted")

// KindTransient is recorded in the trace for attempts that will be retried.
const KindTransient Kind = "transient"

// Config configures a Client.
type Config struct {
	APIKey            string
	Host              string
	BaseURL           string // defaults to https://<Host>
	Budget            int
	MaxPerRun         int
	RequestsPerMinute int
	MaxRetries        int // retries after the first attempt
	BackoffBase       time.Duration
	Timeout           time.Duration
	TraceSize         int
	BreakerThreshold  int           // consecutive given-up requests that open the breaker
	BreakerCooldown   time.Duration // how long the breaker stays open
	HTTPClient        *http.Client
	Clock             Clock
}

// ConfigFrom maps application config onto client config.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		APIKey:            cfg.RapidAPIKey,
		Host:              cfg.RapidAPIHost,
		Budget:            cfg.APIBudget,
		MaxPerRun:         cfg.MaxAPICalls,
		RequestsPerMinute: cfg.RequestsPerMinute,
		MaxRetries:        cfg.MaxRetries,
		BackoffBase:       cfg.BackoffBase,
		Timeout:           cfg.HTTPTimeout,
		TraceSize:         cfg.TraceSize,
		BreakerThreshold:  cfg.BreakerThreshold,
		BreakerCooldown:   cfg.BreakerCooldown,
	}
}

// Client is the HTTP client for Cricbuzz endpoints.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	host       string
	maxRetries int
	backoff    time.Duration
	clock      Clock
	limiter    *Limiter
	trace      *Trace
	breaker    *gobreaker.CircuitBreaker
	logger     *slog.Logger
}

// NewClient creates a Cricbuzz client that owns its limiter and call trace.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	host := cfg.Host
	if host == "" {
		host = DefaultHost
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://" + host
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 20 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = realClock{}
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 1 {
		maxRetries = 5
	}
	backoff := cfg.BackoffBase
	if backoff <= 0 {
		backoff = 800 * time.Millisecond
	}
	budget := cfg.Budget
	if budget <= 0 {
		budget = 8000
	}
	threshold := cfg.BreakerThreshold
	if threshold <= 0 {
		threshold = 3
	}
	cooldown := cfg.BreakerCooldown
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		host:       host,
		maxRetries: maxRetries,
		backoff:    backoff,
		clock:      clock,
		limiter: NewLimiter(LimiterConfig{
			Budget:            budget,
			MaxPerRun:         cfg.MaxPerRun,
			RequestsPerMinute: cfg.RequestsPerMinute,
		}, clock),
		trace: NewTrace(cfg.TraceSize),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "cricbuzz",
			MaxRequests: 1,
			Timeout:     cooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= uint32(threshold)
			},
			IsSuccessful: func(err error) bool {
				return !errors.Is(err, errGaveUp)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("Cricbuzz circuit breaker state changed", "from", from.String(), "to", to.String())
			},
		}),
		logger: logger,
	}
}

// Limiter returns the client's call limiter.
func (c *Client) Limiter() *Limiter { return c.limiter }

// Trace returns the client's bounded call trace.
func (c *Client) Trace() *Trace { return c.trace }

// get performs a paced, budgeted GET with retry, returning the raw JSON body.
// endpoint is a short label used in metrics and the trace. While the
// breaker is open, requests fail as no data without spending a call.
func (c *Client) get(ctx context.Context, endpoint, path string, params url.Values) ([]byte, error) {
	if c.apiKey == "" {
		return nil, errors.WithHint(ErrMissingCredentials, "set RAPIDAPI_KEY in the environment or .env file")
	}

	out, err := c.breaker.Execute(func() (any, error) {
		return c.fetch(ctx, endpoint, path, params)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = errors.Mark(errors.Wrapf(err, "GET %s", path), ErrNoData)
		return nil, errors.WithHint(err, "the provider kept failing; calls resume after the breaker cool-down")
	}
	if err != nil {
		return nil, err
	}
	return out.([]byte), nil
}

func (c *Client) fetch(ctx context.Context, endpoint, path string, params url.Values) ([]byte, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := c.limiter.Acquire(ctx); err != nil {
			return nil, err
		}

		start := c.clock.Now()
		status, body, reqErr := c.do(ctx, u)
		err := c.classify(ctx, path, status, body, reqErr)
		kind := KindOf(err)
		if errors.Is(err, errTransient) {
			kind = KindTransient
		}
		c.record(endpoint, u, attempt, status, kind, c.clock.Now().Sub(start))

		if err == nil {
			return body, nil
		}
		if !errors.Is(err, errTransient) {
			return nil, err
		}
		if attempt > c.maxRetries {
			err = errors.Mark(errors.Mark(errors.Wrapf(err, "gave up after %d attempts", attempt), ErrNoData), errGaveUp)
			return nil, errors.WithHint(err, "the provider kept failing; retry the run later")
		}

		backoff := time.Duration(attempt) * c.backoff
		c.logger.Warn("Cricbuzz request failed, retrying",
			"endpoint", endpoint, "attempt", attempt, "backoff", backoff, "error", err)
		if err := c.clock.Sleep(ctx, backoff); err != nil {
			return nil, err
		}
	}
}

// getJSON fetches path and decodes it into out.
func (c *Client) getJSON(ctx context.Context, endpoint, path string, params url.Values, out any) error {
	body, err := c.get(ctx, endpoint, path, params)
	if err != nil {
		return err
	}
	if err := sonic.Unmarshal(body, out); err != nil {
		return errors.Wrapf(ErrMalformed, "decode %s: %v", path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, u string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("X-RapidAPI-Key", c.apiKey)
	req.Header.Set("X-RapidAPI-Host", c.host)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, body, nil
}

// classify maps one attempt's outcome onto the error taxonomy.
func (c *Client) classify(ctx context.Context, path string, status int, body []byte, reqErr error) error {
	switch {
	case reqErr != nil:
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return errors.Mark(errors.Wrapf(reqErr, "GET %s", path), errTransient)
	case status == http.StatusTooManyRequests:
		return errors.WithHint(errors.Wrapf(ErrRateLimited, "GET %s", path),
			"the provider is throttling this key; wait about a minute before retrying")
	case status >= 500:
		return errors.Mark(errors.Newf("GET %s returned %d: %s", path, status, truncate(body, 200)), errTransient)
	case status < 200 || status > 299:
		return errors.Wrapf(ErrNoData, "GET %s returned %d: %s", path, status, truncate(body, 200))
	}

	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return errors.Wrapf(ErrMalformed, "GET %s returned an empty body", path)
	}
	if !sonic.Valid(body) {
		return errors.Wrapf(ErrMalformed, "GET %s returned invalid JSON: %s", path, truncate(body, 200))
	}
	return nil
}

func (c *Client) record(endpoint, u string, attempt, status int, kind Kind, d time.Duration) {
	seq := c.trace.Record(TraceEntry{
		At:       c.clock.Now(),
		Endpoint: endpoint,
		URL:      u,
		Attempt:  attempt,
		Status:   status,
		Kind:     kind,
		Duration: d,
	})
	metrics.APICallsTotal.WithLabelValues(endpoint, string(kind)).Inc()
	metrics.APICallDuration.WithLabelValues(endpoint).Observe(d.Seconds())
	metrics.APIBudgetUsed.Set(float64(c.limiter.Usage().Used))
	c.logger.Debug("Cricbuzz call", "seq", seq, "endpoint", endpoint, "status", status, "kind", kind)
}

// truncate returns a truncated string for error messages.
func truncate(b []byte, maxLen int) string {
	if len(b) <= maxLen {
		return string(b)
	}
	return string(b[:maxLen]) + "..."
}
