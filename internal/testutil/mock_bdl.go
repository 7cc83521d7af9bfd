// Package testutil provides testing utilities for the balldontlie client.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"time"
)

// LakersTeamJSON is the /teams/14 "data" object.
const LakersTeamJSON = `{"id":14,"conference":"West","division":"Pacific","city":"Los Angeles","name":"Lakers","full_name":"Los Angeles Lakers","abbreviation":"LAL"}`

// LakersGamesJSON is a one-game /games "data" array.
const LakersGamesJSON = `[{"id":1001,"date":"2024-10-22","season":2024,"status":"Final","home_team_score":110,"visitor_team_score":103,"home_team":{"id":14,"abbreviation":"LAL"},"visitor_team":{"id":24,"abbreviation":"MIN"}}]`

// MockResponse defines the behavior for a mock balldontlie endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockBDL is a configurable mock balldontlie server for testing.
type MockBDL struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc

	requestCount      int
	lastRequestHeader http.Header
	lastQuery         url.Values
}

// NewMockBDL creates a new mock balldontlie server.
func NewMockBDL() *MockBDL {
	mock := &MockBDL{
		handlers: make(map[string]http.HandlerFunc),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.requestCount++
		mock.lastRequestHeader = r.Header.Clone()
		mock.lastQuery = r.URL.Query()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}

		mock.defaultHandler(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockBDL) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockBDL) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockBDL) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount = 0
	m.lastRequestHeader = nil
	m.lastQuery = nil
}

// SetHandler sets a custom handler for a specific path.
func (m *MockBDL) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockBDL) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, resp.write)
}

// SetSequence serves responses in order for a path; the last one repeats.
func (m *MockBDL) SetSequence(path string, resps ...MockResponse) {
	var (
		mu   sync.Mutex
		next int
	)
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		resp := resps[next]
		if next < len(resps)-1 {
			next++
		}
		mu.Unlock()
		resp.write(w, r)
	})
}

// SetTeamResponse configures the /teams/{id} response.
func (m *MockBDL) SetTeamResponse(teamID int, resp MockResponse) {
	m.SetResponse(fmt.Sprintf("/teams/%d", teamID), resp)
}

// SetGamesResponse configures the /games response.
func (m *MockBDL) SetGamesResponse(resp MockResponse) {
	m.SetResponse("/games", resp)
}

// RequestCount returns the number of requests made to the server.
func (m *MockBDL) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestCount
}

// LastRequestHeader returns the headers of the most recent request.
func (m *MockBDL) LastRequestHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastRequestHeader
}

// LastQuery returns the query of the most recent request.
func (m *MockBDL) LastQuery() url.Values {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastQuery
}

func (resp MockResponse) write(w http.ResponseWriter, r *http.Request) {
	if resp.Delay > 0 {
		select {
		case <-time.After(resp.Delay):
		case <-r.Context().Done():
			return
		}
	}

	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}

	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		_, _ = w.Write([]byte(resp.Body))
	}
}

// defaultHandler serves the Lakers team and an empty games page.
func (m *MockBDL) defaultHandler(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/teams/14":
		NewTeamResponse(LakersTeamJSON).write(w, r)
	case "/games":
		NewGamesResponse("[]").write(w, r)
	default:
		NewNotFoundResponse().write(w, r)
	}
}

func jsonHeaders(remaining int) map[string]string {
	return map[string]string{
		"Content-Type":          "application/json; charset=utf-8",
		"X-RateLimit-Limit":     "60",
		"X-RateLimit-Remaining": strconv.Itoa(remaining),
		"X-RateLimit-Reset":     "60",
	}
}

// NewTeamResponse wraps a team object in a 200 response.
func NewTeamResponse(team string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{"data":` + team + `}`,
		Headers:    jsonHeaders(59),
	}
}

// NewGamesResponse wraps a games array in a 200 response with cursor meta.
func NewGamesResponse(games string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{"data":` + games + `,"meta":{"per_page":25}}`,
		Headers:    jsonHeaders(59),
	}
}

// NewRateLimitResponse creates a 429 response with the given Retry-After.
func NewRateLimitResponse(retryAfter time.Duration) MockResponse {
	headers := jsonHeaders(0)
	headers["Retry-After"] = strconv.Itoa(int(retryAfter.Seconds()))
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error":"Too many requests"}`,
		Headers:    headers,
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error":"Internal server error"}`,
		Headers:    jsonHeaders(58),
	}
}

// NewUnauthorizedResponse creates a 401 response for a bad API key.
func NewUnauthorizedResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusUnauthorized,
		Body:       `{"error":"Unauthorized"}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

// NewNotFoundResponse creates a 404 response.
func NewNotFoundResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusNotFound,
		Body:       `{"error":"Not found"}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}
