package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for rate limit tracking.
var (
	bdlRateLimitRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bdl_rate_limit_remaining",
		Help: "Requests remaining in the current balldontlie quota window",
	})

	bdlRateLimitBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bdl_rate_limit_blocks_total",
		Help: "Total number of requests blocked locally while the quota was exhausted",
	})

	bdlRateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bdl_rate_limited_responses_total",
		Help: "Total number of 429 responses received from balldontlie",
	})
)

// stateRetention keeps state in Redis a while past its last relevant instant.
const stateRetention = 5 * time.Minute

// Tracker monitors the upstream quota and gates requests.
// With a Redis client the state is shared by every process using the same
// API key; without one it is kept in memory.
type Tracker struct {
	redis  *redis.Client
	logger zerolog.Logger
	now    func() time.Time

	mu    sync.Mutex
	local RateLimitState
}

// NewTracker creates a new rate limit tracker. redisClient may be nil.
func NewTracker(redisClient *redis.Client, logger zerolog.Logger) *Tracker {
	return &Tracker{
		redis:  redisClient,
		logger: logger,
		now:    time.Now,
	}
}

// SetClock replaces the time source (for testing).
func (t *Tracker) SetClock(now func() time.Time) {
	t.now = now
}

// GetState returns the current rate limit state.
// Returns an empty (unblocked) state if nothing has been recorded yet.
func (t *Tracker) GetState(ctx context.Context) (*RateLimitState, error) {
	if t.redis == nil {
		t.mu.Lock()
		defer t.mu.Unlock()
		state := t.local
		return &state, nil
	}

	data, err := t.redis.Get(ctx, RedisKeyState).Bytes()
	if errors.Is(err, redis.Nil) {
		t.logger.Debug().Msg("No rate limit state in Redis, assuming unblocked")
		return &RateLimitState{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get rate limit state: %w", err)
	}

	var state RateLimitState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parse rate limit state: %w", err)
	}
	return &state, nil
}

// maxUpdateAttempts bounds optimistic transaction retries against Redis.
const maxUpdateAttempts = 5

// update applies mutate to the stored state as one read-modify-write.
// In memory the lock is held throughout; in Redis the state key is WATCHed
// and the write is retried when another process changed it first.
func (t *Tracker) update(ctx context.Context, mutate func(state *RateLimitState, now time.Time)) (*RateLimitState, error) {
	if t.redis == nil {
		t.mu.Lock()
		defer t.mu.Unlock()
		state := t.local
		mutate(&state, t.now())
		t.local = state
		return &state, nil
	}

	var state RateLimitState
	txf := func(tx *redis.Tx) error {
		state = RateLimitState{}
		data, err := tx.Get(ctx, RedisKeyState).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return fmt.Errorf("get rate limit state: %w", err)
		default:
			if err := json.Unmarshal(data, &state); err != nil {
				return fmt.Errorf("parse rate limit state: %w", err)
			}
		}

		now := t.now()
		mutate(&state, now)

		data, err = json.Marshal(&state)
		if err != nil {
			return fmt.Errorf("marshal rate limit state: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, RedisKeyState, data, stateExpiry(&state, now))
			return nil
		})
		return err
	}

	for attempt := 1; attempt <= maxUpdateAttempts; attempt++ {
		err := t.redis.Watch(ctx, txf, RedisKeyState)
		if err == nil {
			return &state, nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return nil, fmt.Errorf("store rate limit state in redis: %w", err)
		}
		t.logger.Debug().Int("attempt", attempt).Msg("Rate limit state changed concurrently, retrying update")
	}
	return nil, fmt.Errorf("store rate limit state in redis: %w", redis.TxFailedErr)
}

// stateExpiry keeps the Redis key alive past the latest instant it describes.
func stateExpiry(state *RateLimitState, now time.Time) time.Duration {
	expiry := stateRetention
	for _, at := range []time.Time{state.BlockedUntil, state.ResetAt} {
		if d := at.Sub(now) + stateRetention; d > expiry {
			expiry = d
		}
	}
	return expiry
}

// UpdateFromHeaders records the quota reported by X-RateLimit-* headers.
// Responses without X-RateLimit-Remaining are ignored.
func (t *Tracker) UpdateFromHeaders(ctx context.Context, headers http.Header) error {
	remainStr := headers.Get("X-RateLimit-Remaining")
	if remainStr == "" {
		return nil
	}

	remain, err := strconv.Atoi(remainStr)
	if err != nil {
		return fmt.Errorf("parse X-RateLimit-Remaining header: %w", err)
	}

	resetStr := headers.Get("X-RateLimit-Reset")
	if resetStr == "" {
		return fmt.Errorf("X-RateLimit-Reset header missing")
	}
	reset, err := strconv.ParseInt(resetStr, 10, 64)
	if err != nil {
		return fmt.Errorf("parse X-RateLimit-Reset header: %w", err)
	}

	limit := 0
	if limitStr := headers.Get("X-RateLimit-Limit"); limitStr != "" {
		if limit, err = strconv.Atoi(limitStr); err != nil {
			return fmt.Errorf("parse X-RateLimit-Limit header: %w", err)
		}
	}

	state, err := t.update(ctx, func(state *RateLimitState, now time.Time) {
		state.Limit = limit
		state.Remaining = remain
		state.ResetAt = resetTime(now, reset)
		state.LastUpdate = now
	})
	if err != nil {
		return err
	}
	now := state.LastUpdate

	bdlRateLimitRemaining.Set(float64(remain))

	if state.Exhausted(now) {
		t.logger.Warn().
			Int("remaining", remain).
			Time("reset_at", state.ResetAt).
			Msg("balldontlie quota exhausted - requests will be blocked until reset")
	} else {
		t.logger.Debug().
			Int("remaining", remain).
			Int("limit", limit).
			Time("reset_at", state.ResetAt).
			Msg("balldontlie quota state updated")
	}

	return nil
}

// resetTime interprets X-RateLimit-Reset as a Unix timestamp when it looks
// like one, otherwise as seconds until reset.
func resetTime(now time.Time, v int64) time.Time {
	if v > 1_000_000_000 {
		return time.Unix(v, 0)
	}
	return now.Add(time.Duration(v) * time.Second)
}

// RecordRateLimited blocks requests for retryAfter after a 429 response.
// A non-positive retryAfter uses DefaultRetryAfter.
func (t *Tracker) RecordRateLimited(ctx context.Context, retryAfter time.Duration) error {
	if retryAfter <= 0 {
		retryAfter = DefaultRetryAfter
	}
	if retryAfter > MaxRetryAfter {
		retryAfter = MaxRetryAfter
	}

	state, err := t.update(ctx, func(state *RateLimitState, now time.Time) {
		if until := now.Add(retryAfter); until.After(state.BlockedUntil) {
			state.BlockedUntil = until
		}
	})
	if err != nil {
		return err
	}

	bdlRateLimitedTotal.Inc()
	t.logger.Warn().
		Dur("retry_after", retryAfter).
		Time("blocked_until", state.BlockedUntil).
		Msg("balldontlie rate limit hit - blocking requests")

	return nil
}

// ShouldAllowRequest reports whether a request may be sent now. When it may
// not, the returned duration is the wait until requests are allowed again.
func (t *Tracker) ShouldAllowRequest(ctx context.Context) (bool, time.Duration, error) {
	state, err := t.GetState(ctx)
	if err != nil {
		return false, 0, fmt.Errorf("get rate limit state: %w", err)
	}

	now := t.now()
	if state.IsBlocked(now) {
		wait := state.TimeUntilUnblocked(now)
		t.logger.Warn().
			Int("remaining", state.Remaining).
			Dur("wait_duration", wait).
			Msg("balldontlie rate limit active - blocking request")

		bdlRateLimitBlocksTotal.Inc()
		return false, wait, nil
	}

	return true, 0, nil
}

// ParseRetryAfter parses a Retry-After header given in seconds or as an
// HTTP date. Returns 0 when the header is absent or invalid.
func ParseRetryAfter(headers http.Header, now time.Time) time.Duration {
	v := headers.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
