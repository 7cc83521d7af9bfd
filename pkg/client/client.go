// Package client provides the balldontlie HTTP client with rate limit
// gating, bounded timeouts, and failure classification.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/bdl-client/pkg/ratelimit"
	"github.com/Sternrassler/bdl-client/pkg/upstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultBaseURL is the balldontlie v1 API.
const DefaultBaseURL = "https://api.balldontlie.io/v1"

// maxBodyBytes bounds how much of a response body is read.
const maxBodyBytes = 8 << 20

var tracer = otel.Tracer("github.com/Sternrassler/bdl-client/pkg/client")

// Prometheus metrics for balldontlie client operations.
var (
	bdlRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bdl_requests_total",
		Help: "Total balldontlie requests by endpoint and status",
	}, []string{"endpoint", "status"})

	bdlRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bdl_request_duration_seconds",
		Help:    "balldontlie request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	bdlErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bdl_errors_total",
		Help: "Total balldontlie errors by class",
	}, []string{"class"})
)

// Client is the balldontlie API client.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	rateLimiter *ratelimit.Tracker
	config      Config
	logger      zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL of the API (default: DefaultBaseURL)
	BaseURL string

	// APIKey is sent in the Authorization header (REQUIRED)
	APIKey string

	// UserAgent header
	UserAgent string

	// Timeout bounds each call, retries included
	Timeout time.Duration

	// Retry configures retries of server errors
	Retry RetryConfig

	// RateLimiter gates requests; an in-memory tracker is used when nil
	RateLimiter *ratelimit.Tracker

	// HTTPClient overrides the transport (for testing)
	HTTPClient *http.Client
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(apiKey string) Config {
	return Config{
		BaseURL:   DefaultBaseURL,
		APIKey:    apiKey,
		UserAgent: "bdl-client/0.1.0",
		Timeout:   10 * time.Second,
		Retry:     DefaultRetryConfig(),
	}
}

// New creates a new balldontlie client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", cfg.BaseURL, err)
	}

	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be > 0 (got %v)", cfg.Timeout)
	}

	logger := log.With().Str("component", "bdl-client").Logger()

	rateLimiter := cfg.RateLimiter
	if rateLimiter == nil {
		rateLimiter = ratelimit.NewTracker(nil, logger)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		httpClient:  httpClient,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		rateLimiter: rateLimiter,
		config:      cfg,
		logger:      logger,
	}, nil
}

// Do performs a GET request to endpoint and returns the response body.
// Failures are *upstream.Error values classified as rate_limit, server,
// timeout, or client. A request is not sent while the rate limiter reports
// the quota as exhausted; a rate_limit error is returned instead.
func (c *Client) Do(ctx context.Context, endpoint string, query url.Values) ([]byte, error) {
	route := routeLabel(endpoint)

	ctx, span := tracer.Start(ctx, "bdl.Get",
		trace.WithAttributes(attribute.String("bdl.endpoint", endpoint)))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	startTime := time.Now()
	defer func() {
		bdlRequestDuration.WithLabelValues(route).Observe(time.Since(startTime).Seconds())
	}()

	// Step 1: Check Rate Limit
	allowed, wait, err := c.rateLimiter.ShouldAllowRequest(ctx)
	if err != nil {
		// The tracker is advisory; an unavailable store must not stop requests.
		c.logger.Warn().Err(err).Msg("Rate limit check failed, sending request anyway")
	} else if !allowed {
		bdlRequestsTotal.WithLabelValues(route, "blocked").Inc()
		bdlErrorsTotal.WithLabelValues(string(upstream.ErrorClassRateLimit)).Inc()
		blocked := &upstream.Error{
			StatusCode: http.StatusTooManyRequests,
			Class:      upstream.ErrorClassRateLimit,
			Message:    "request blocked locally until quota resets",
			RetryAfter: wait,
		}
		span.SetStatus(codes.Error, blocked.Error())
		return nil, blocked
	}

	// Step 2: Execute with retry
	reqURL := c.baseURL + "/" + strings.TrimLeft(endpoint, "/")
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("query", query.Encode()).
		Msg("Executing balldontlie request")

	var body []byte
	err = retryWithBackoff(ctx, c.config.Retry, func() error {
		b, reqErr := c.doOnce(ctx, reqURL, route)
		body = b
		return reqErr
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	return body, nil
}

// doOnce sends a single request.
func (c *Client) doOnce(ctx context.Context, reqURL, route string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &upstream.Error{Class: upstream.ErrorClassClient, Message: "create request", Err: err}
	}
	req.Header.Set("Authorization", c.config.APIKey)
	req.Header.Set("Accept", "application/json")
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		errClass := c.classifyError(nil, err)
		bdlErrorsTotal.WithLabelValues(string(errClass)).Inc()
		bdlRequestsTotal.WithLabelValues(route, "network_error").Inc()
		c.logger.Warn().Err(err).Str("endpoint", route).Msg("HTTP request failed")
		return nil, &upstream.Error{Class: errClass, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	// Update Rate Limit from headers
	if err := c.rateLimiter.UpdateFromHeaders(ctx, resp.Header); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to update rate limit from headers")
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		errClass := c.classifyError(nil, err)
		bdlErrorsTotal.WithLabelValues(string(errClass)).Inc()
		return nil, &upstream.Error{StatusCode: resp.StatusCode, Class: errClass, Message: "read response body", Err: err}
	}

	bdlRequestsTotal.WithLabelValues(route, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode != http.StatusOK {
		errClass := c.classifyError(resp, nil)
		bdlErrorsTotal.WithLabelValues(string(errClass)).Inc()

		ue := &upstream.Error{
			StatusCode: resp.StatusCode,
			Class:      errClass,
			Message:    statusMessage(resp.Status, body),
		}

		if errClass == upstream.ErrorClassRateLimit {
			ue.RetryAfter = ratelimit.ParseRetryAfter(resp.Header, time.Now())
			if err := c.rateLimiter.RecordRateLimited(ctx, ue.RetryAfter); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to record rate limit block")
			}
		}

		c.logger.Warn().
			Str("endpoint", route).
			Int("status", resp.StatusCode).
			Str("error_class", string(errClass)).
			Msg("balldontlie request error")
		return nil, ue
	}

	if !gjson.ValidBytes(body) {
		bdlErrorsTotal.WithLabelValues(string(upstream.ErrorClassServer)).Inc()
		return nil, &upstream.Error{
			StatusCode: resp.StatusCode,
			Class:      upstream.ErrorClassServer,
			Message:    "malformed JSON response",
		}
	}

	return body, nil
}

// classifyError categorizes a failure for observability and handling.
func (c *Client) classifyError(resp *http.Response, err error) upstream.ErrorClass {
	var class upstream.ErrorClass
	if err != nil {
		class = upstream.ClassOf(err)
		if class != upstream.ErrorClassTimeout {
			// Connection refused, reset, DNS: the upstream is unreachable
			class = upstream.ErrorClassServer
		}
	} else {
		class = upstream.ClassifyStatus(resp.StatusCode)
		if class == "" {
			// Any non-200 answer we cannot use is the upstream's fault
			class = upstream.ErrorClassServer
		}
	}

	c.logger.Debug().Str("class", string(class)).Msg("Error classified")
	return class
}

// GetTeam returns the raw "data" object of /teams/{id}.
func (c *Client) GetTeam(ctx context.Context, teamID int) ([]byte, error) {
	body, err := c.Do(ctx, fmt.Sprintf("/teams/%d", teamID), nil)
	if err != nil {
		return nil, err
	}

	data := gjson.GetBytes(body, "data")
	if !data.Exists() {
		return nil, &upstream.Error{
			StatusCode: http.StatusOK,
			Class:      upstream.ErrorClassServer,
			Message:    "team response missing data",
		}
	}
	return []byte(data.Raw), nil
}

// GetGames returns the raw "data" array of /games, or [] when absent.
func (c *Client) GetGames(ctx context.Context, q GamesQuery) ([]byte, error) {
	body, err := c.Do(ctx, "/games", q.Values())
	if err != nil {
		return nil, err
	}

	data := gjson.GetBytes(body, "data")
	if !data.Exists() {
		return []byte("[]"), nil
	}
	return []byte(data.Raw), nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// routeLabel reduces an endpoint to its first path segment for metric labels.
func routeLabel(endpoint string) string {
	route, _, _ := strings.Cut(strings.Trim(endpoint, "/"), "/")
	if route == "" {
		return "root"
	}
	return route
}

// statusMessage combines the status line with the start of the body.
func statusMessage(status string, body []byte) string {
	const maxSnippet = 200
	snippet := strings.TrimSpace(string(body))
	if snippet == "" {
		return status
	}
	if len(snippet) > maxSnippet {
		snippet = snippet[:maxSnippet] + "..."
	}
	return status + ": " + snippet
}
