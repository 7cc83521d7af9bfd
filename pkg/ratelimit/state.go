// Package ratelimit tracks the balldontlie request quota and gates requests.
// It reads the X-RateLimit-* and Retry-After headers so a client stops
// calling upstream while the quota is exhausted, instead of collecting more
// 429 responses.
package ratelimit

import (
	"time"
)

// RedisKeyState is where the shared state lives when a Redis client is configured.
const RedisKeyState = "bdl:rate_limit:state"

const (
	// DefaultRetryAfter is the block applied after a 429 without a usable
	// Retry-After header.
	DefaultRetryAfter = 60 * time.Second

	// MaxRetryAfter caps the block requested by upstream.
	MaxRetryAfter = 15 * time.Minute

	// ThresholdExhausted blocks requests when remaining quota falls to this value.
	ThresholdExhausted = 0

	// MaxQuotaAge is how long an exhausted quota observation keeps blocking
	// requests when no newer headers arrive.
	MaxQuotaAge = MaxRetryAfter
)

// RateLimitState represents the current upstream quota state.
type RateLimitState struct {
	// Limit is the request quota per window (X-RateLimit-Limit), 0 if unknown.
	Limit int `json:"limit"`

	// Remaining is the quota left in the window (X-RateLimit-Remaining).
	Remaining int `json:"remaining"`

	// ResetAt is when the quota window resets (X-RateLimit-Reset).
	ResetAt time.Time `json:"reset_at"`

	// BlockedUntil is set after a 429 response from Retry-After.
	BlockedUntil time.Time `json:"blocked_until"`

	// LastUpdate is when quota headers were last observed. Zero means the
	// quota has never been observed.
	LastUpdate time.Time `json:"last_update"`
}

// IsStale returns true if the state data is older than maxAge at now.
func (s *RateLimitState) IsStale(now time.Time, maxAge time.Duration) bool {
	return now.Sub(s.LastUpdate) > maxAge
}

// Exhausted reports whether the observed quota is used up for the current window.
func (s *RateLimitState) Exhausted(now time.Time) bool {
	if s.LastUpdate.IsZero() || s.IsStale(now, MaxQuotaAge) {
		return false
	}
	return s.Remaining <= ThresholdExhausted && now.Before(s.ResetAt)
}

// IsBlocked reports whether requests must not be sent at now.
func (s *RateLimitState) IsBlocked(now time.Time) bool {
	return now.Before(s.BlockedUntil) || s.Exhausted(now)
}

// UnblockAt returns when requests may be sent again.
func (s *RateLimitState) UnblockAt(now time.Time) time.Time {
	at := s.BlockedUntil
	if s.Exhausted(now) && s.ResetAt.After(at) {
		at = s.ResetAt
	}
	return at
}

// TimeUntilUnblocked returns the wait until requests may be sent.
// Returns 0 if requests are allowed now.
func (s *RateLimitState) TimeUntilUnblocked(now time.Time) time.Duration {
	if !s.IsBlocked(now) {
		return 0
	}
	return s.UnblockAt(now).Sub(now)
}
