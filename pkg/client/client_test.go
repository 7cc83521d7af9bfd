package client

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/bdl-client/internal/testutil"
	"github.com/Sternrassler/bdl-client/pkg/ratelimit"
	"github.com/Sternrassler/bdl-client/pkg/upstream"
	"github.com/rs/zerolog"
)

// newTestClient creates a client against baseURL with fast retries and an
// in-memory rate limiter.
func newTestClient(t *testing.T, baseURL string, mutate func(*Config)) *Client {
	t.Helper()

	cfg := DefaultConfig("test-key")
	cfg.BaseURL = baseURL
	cfg.Timeout = 2 * time.Second
	cfg.Retry = fastRetryConfig(2)
	cfg.RateLimiter = ratelimit.NewTracker(nil, zerolog.Nop())
	if mutate != nil {
		mutate(&cfg)
	}

	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		expectError bool
		errorMsg    string
	}{
		{
			name:        "valid config",
			config:      DefaultConfig("key"),
			expectError: false,
		},
		{
			name: "empty base url uses default",
			config: Config{
				APIKey:  "key",
				Timeout: time.Second,
			},
			expectError: false,
		},
		{
			name: "missing api key",
			config: Config{
				BaseURL: DefaultBaseURL,
				Timeout: time.Second,
			},
			expectError: true,
			errorMsg:    "api key is required",
		},
		{
			name: "invalid base url",
			config: Config{
				BaseURL: "not a url",
				APIKey:  "key",
				Timeout: time.Second,
			},
			expectError: true,
			errorMsg:    "invalid base url",
		},
		{
			name: "zero timeout",
			config: Config{
				APIKey: "key",
			},
			expectError: true,
			errorMsg:    "timeout must be > 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.config)

			if tt.expectError {
				if err == nil {
					t.Fatal("Expected error but got nil")
				}
				if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error containing %q, got %q", tt.errorMsg, err.Error())
				}
				return
			}

			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if c.baseURL != DefaultBaseURL {
				t.Errorf("baseURL = %q, want %q", c.baseURL, DefaultBaseURL)
			}
			if c.rateLimiter == nil {
				t.Error("Expected a default rate limiter")
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("secret")

	if cfg.APIKey != "secret" {
		t.Errorf("APIKey = %q, want %q", cfg.APIKey, "secret")
	}
	if cfg.BaseURL != DefaultBaseURL {
		t.Errorf("BaseURL = %q, want %q", cfg.BaseURL, DefaultBaseURL)
	}
	if cfg.Timeout != 10*time.Second {
		t.Errorf("Timeout = %v, want 10s", cfg.Timeout)
	}
	if cfg.Retry != DefaultRetryConfig() {
		t.Errorf("Retry = %+v, want %+v", cfg.Retry, DefaultRetryConfig())
	}
}

func TestClassifyError(t *testing.T) {
	c := newTestClient(t, "http://localhost", nil)

	tests := []struct {
		name       string
		statusCode int
		err        error
		expected   upstream.ErrorClass
	}{
		{name: "400 bad request", statusCode: 400, expected: upstream.ErrorClassClient},
		{name: "401 unauthorized", statusCode: 401, expected: upstream.ErrorClassClient},
		{name: "404 not found", statusCode: 404, expected: upstream.ErrorClassClient},
		{name: "429 too many requests", statusCode: 429, expected: upstream.ErrorClassRateLimit},
		{name: "500 internal error", statusCode: 500, expected: upstream.ErrorClassServer},
		{name: "503 unavailable", statusCode: 503, expected: upstream.ErrorClassServer},
		{name: "302 redirect", statusCode: 302, expected: upstream.ErrorClassServer},
		{name: "deadline exceeded", err: context.DeadlineExceeded, expected: upstream.ErrorClassTimeout},
		{name: "connection refused", err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, expected: upstream.ErrorClassServer},
		{name: "plain error", err: errors.New("boom"), expected: upstream.ErrorClassServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp *http.Response
			if tt.err == nil {
				resp = &http.Response{StatusCode: tt.statusCode}
			}

			if got := c.classifyError(resp, tt.err); got != tt.expected {
				t.Errorf("classifyError() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestDo_RequestHeaders(t *testing.T) {
	mock := testutil.NewMockBDL()
	defer mock.Close()

	c := newTestClient(t, mock.URL(), func(cfg *Config) {
		cfg.UserAgent = "TestApp/1.0"
	})

	if _, err := c.Do(context.Background(), "/teams/14", nil); err != nil {
		t.Fatalf("Do() error = %v", err)
	}

	headers := mock.LastRequestHeader()
	if got := headers.Get("Authorization"); got != "test-key" {
		t.Errorf("Authorization = %q, want %q", got, "test-key")
	}
	if got := headers.Get("User-Agent"); got != "TestApp/1.0" {
		t.Errorf("User-Agent = %q, want %q", got, "TestApp/1.0")
	}
	if got := headers.Get("Accept"); got != "application/json" {
		t.Errorf("Accept = %q, want %q", got, "application/json")
	}
}

func TestDo_RateLimitBlock(t *testing.T) {
	mock := testutil.NewMockBDL()
	defer mock.Close()

	tracker := ratelimit.NewTracker(nil, zerolog.Nop())
	if err := tracker.RecordRateLimited(context.Background(), 30*time.Second); err != nil {
		t.Fatalf("RecordRateLimited() error = %v", err)
	}

	c := newTestClient(t, mock.URL(), func(cfg *Config) {
		cfg.RateLimiter = tracker
	})

	_, err := c.Do(context.Background(), "/teams/14", nil)
	if !errors.Is(err, upstream.ErrRateLimited) {
		t.Fatalf("Expected rate limit error, got %v", err)
	}

	var ue *upstream.Error
	if !errors.As(err, &ue) {
		t.Fatalf("Expected *upstream.Error, got %T", err)
	}
	if ue.RetryAfter <= 0 || ue.RetryAfter > 30*time.Second {
		t.Errorf("RetryAfter = %v, want within (0, 30s]", ue.RetryAfter)
	}
	if mock.RequestCount() != 0 {
		t.Errorf("RequestCount = %d, want 0 (request should be blocked locally)", mock.RequestCount())
	}
}

func TestDo_RateLimitedResponse(t *testing.T) {
	mock := testutil.NewMockBDL()
	defer mock.Close()
	mock.SetTeamResponse(14, testutil.NewRateLimitResponse(30*time.Second))

	tracker := ratelimit.NewTracker(nil, zerolog.Nop())
	c := newTestClient(t, mock.URL(), func(cfg *Config) {
		cfg.RateLimiter = tracker
	})

	_, err := c.Do(context.Background(), "/teams/14", nil)
	if got := upstream.ClassOf(err); got != upstream.ErrorClassRateLimit {
		t.Fatalf("ClassOf() = %q, want %q (err = %v)", got, upstream.ErrorClassRateLimit, err)
	}

	var ue *upstream.Error
	if !errors.As(err, &ue) {
		t.Fatalf("Expected *upstream.Error, got %T", err)
	}
	if ue.StatusCode != http.StatusTooManyRequests {
		t.Errorf("StatusCode = %d, want 429", ue.StatusCode)
	}
	if ue.RetryAfter != 30*time.Second {
		t.Errorf("RetryAfter = %v, want 30s", ue.RetryAfter)
	}

	// 429 is not retried
	if mock.RequestCount() != 1 {
		t.Errorf("RequestCount = %d, want 1", mock.RequestCount())
	}

	allowed, _, err := tracker.ShouldAllowRequest(context.Background())
	if err != nil {
		t.Fatalf("ShouldAllowRequest() error = %v", err)
	}
	if allowed {
		t.Error("Expected tracker to block after a 429")
	}
}

func TestDo_RetryOnServerError(t *testing.T) {
	mock := testutil.NewMockBDL()
	defer mock.Close()
	mock.SetSequence("/teams/14",
		testutil.NewServerErrorResponse(),
		testutil.NewTeamResponse(testutil.LakersTeamJSON),
	)

	c := newTestClient(t, mock.URL(), nil)

	body, err := c.Do(context.Background(), "/teams/14", nil)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if !strings.Contains(string(body), "Lakers") {
		t.Errorf("body = %s, want the team payload", body)
	}
	if mock.RequestCount() != 2 {
		t.Errorf("RequestCount = %d, want 2", mock.RequestCount())
	}
}

func TestDo_RetryExhausted(t *testing.T) {
	mock := testutil.NewMockBDL()
	defer mock.Close()
	mock.SetTeamResponse(14, testutil.NewServerErrorResponse())

	c := newTestClient(t, mock.URL(), nil)

	_, err := c.Do(context.Background(), "/teams/14", nil)
	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("Expected ErrRetryExhausted, got %v", err)
	}
	if !errors.Is(err, upstream.ErrServer) {
		t.Errorf("Expected server error in chain, got %v", err)
	}
	if mock.RequestCount() != 2 {
		t.Errorf("RequestCount = %d, want 2", mock.RequestCount())
	}
}

func TestDo_NoRetryOnClientError(t *testing.T) {
	mock := testutil.NewMockBDL()
	defer mock.Close()
	mock.SetTeamResponse(14, testutil.NewUnauthorizedResponse())

	c := newTestClient(t, mock.URL(), nil)

	_, err := c.Do(context.Background(), "/teams/14", nil)
	if !errors.Is(err, upstream.ErrClient) {
		t.Errorf("Expected client error, got %v", err)
	}
	if upstream.IsTransient(err) {
		t.Error("401 should not be transient")
	}
	if mock.RequestCount() != 1 {
		t.Errorf("RequestCount = %d, want 1", mock.RequestCount())
	}
}

func TestDo_Timeout(t *testing.T) {
	mock := testutil.NewMockBDL()
	defer mock.Close()
	resp := testutil.NewTeamResponse(testutil.LakersTeamJSON)
	resp.Delay = 2 * time.Second
	mock.SetTeamResponse(14, resp)

	c := newTestClient(t, mock.URL(), func(cfg *Config) {
		cfg.Timeout = 50 * time.Millisecond
	})

	start := time.Now()
	_, err := c.Do(context.Background(), "/teams/14", nil)
	if got := upstream.ClassOf(err); got != upstream.ErrorClassTimeout {
		t.Errorf("ClassOf() = %q, want %q (err = %v)", got, upstream.ErrorClassTimeout, err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Do() took %v, want it bounded by the timeout", elapsed)
	}
}

func TestDo_MalformedJSON(t *testing.T) {
	mock := testutil.NewMockBDL()
	defer mock.Close()
	mock.SetTeamResponse(14, testutil.MockResponse{StatusCode: http.StatusOK, Body: `{"data":`})

	c := newTestClient(t, mock.URL(), func(cfg *Config) {
		cfg.Retry = fastRetryConfig(1)
	})

	_, err := c.Do(context.Background(), "/teams/14", nil)
	if !errors.Is(err, upstream.ErrServer) {
		t.Errorf("Expected server error for malformed body, got %v", err)
	}
}

func TestDo_UnreachableServer(t *testing.T) {
	mock := testutil.NewMockBDL()
	url := mock.URL()
	mock.Close()

	c := newTestClient(t, url, func(cfg *Config) {
		cfg.Retry = fastRetryConfig(1)
	})

	_, err := c.Do(context.Background(), "/teams/14", nil)
	if got := upstream.ClassOf(err); got != upstream.ErrorClassServer {
		t.Errorf("ClassOf() = %q, want %q (err = %v)", got, upstream.ErrorClassServer, err)
	}
	if !upstream.IsTransient(err) {
		t.Error("Connection failure should be transient")
	}
}

func TestGetTeam(t *testing.T) {
	mock := testutil.NewMockBDL()
	defer mock.Close()

	c := newTestClient(t, mock.URL(), nil)

	data, err := c.GetTeam(context.Background(), 14)
	if err != nil {
		t.Fatalf("GetTeam() error = %v", err)
	}
	if string(data) != testutil.LakersTeamJSON {
		t.Errorf("GetTeam() = %s, want %s", data, testutil.LakersTeamJSON)
	}
}

func TestGetTeam_MissingData(t *testing.T) {
	mock := testutil.NewMockBDL()
	defer mock.Close()
	mock.SetTeamResponse(14, testutil.MockResponse{StatusCode: http.StatusOK, Body: `{"error":"none"}`})

	c := newTestClient(t, mock.URL(), nil)

	_, err := c.GetTeam(context.Background(), 14)
	if !errors.Is(err, upstream.ErrServer) {
		t.Errorf("Expected server error for missing data, got %v", err)
	}
}

func TestGetGames(t *testing.T) {
	mock := testutil.NewMockBDL()
	defer mock.Close()
	mock.SetGamesResponse(testutil.NewGamesResponse(testutil.LakersGamesJSON))

	c := newTestClient(t, mock.URL(), nil)

	data, err := c.GetGames(context.Background(), GamesQuery{TeamID: 14, Season: 2024, PerPage: 25})
	if err != nil {
		t.Fatalf("GetGames() error = %v", err)
	}
	if string(data) != testutil.LakersGamesJSON {
		t.Errorf("GetGames() = %s, want %s", data, testutil.LakersGamesJSON)
	}

	query := mock.LastQuery()
	for param, want := range map[string]string{"team_ids[]": "14", "seasons[]": "2024", "per_page": "25"} {
		if got := query.Get(param); got != want {
			t.Errorf("query %s = %q, want %q", param, got, want)
		}
	}
}

func TestGetGames_MissingData(t *testing.T) {
	mock := testutil.NewMockBDL()
	defer mock.Close()
	mock.SetGamesResponse(testutil.MockResponse{StatusCode: http.StatusOK, Body: `{"meta":{}}`})

	c := newTestClient(t, mock.URL(), nil)

	data, err := c.GetGames(context.Background(), GamesQuery{TeamID: 14})
	if err != nil {
		t.Fatalf("GetGames() error = %v", err)
	}
	if string(data) != "[]" {
		t.Errorf("GetGames() = %s, want []", data)
	}
}

func TestGamesQuery_Values(t *testing.T) {
	postseason := true

	tests := []struct {
		name  string
		query GamesQuery
		want  string
	}{
		{"empty", GamesQuery{}, ""},
		{"team season page", GamesQuery{TeamID: 14, Season: 2024, PerPage: 25}, "per_page=25&seasons%5B%5D=2024&team_ids%5B%5D=14"},
		{
			"all fields",
			GamesQuery{TeamID: 14, Season: 2024, PerPage: 10, Cursor: 99, Postseason: &postseason, StartDate: "2025-04-01", EndDate: "2025-06-30"},
			"cursor=99&end_date=2025-06-30&per_page=10&postseason=true&seasons%5B%5D=2024&start_date=2025-04-01&team_ids%5B%5D=14",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.query.Values().Encode(); got != tt.want {
				t.Errorf("Values() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRouteLabel(t *testing.T) {
	tests := []struct {
		endpoint string
		want     string
	}{
		{"/teams/14", "teams"},
		{"/games", "games"},
		{"games/", "games"},
		{"/", "root"},
	}

	for _, tt := range tests {
		if got := routeLabel(tt.endpoint); got != tt.want {
			t.Errorf("routeLabel(%q) = %q, want %q", tt.endpoint, got, tt.want)
		}
	}
}
