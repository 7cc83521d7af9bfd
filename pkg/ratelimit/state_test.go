package ratelimit

import (
	"testing"
	"time"
)

var baseTime = time.Date(2024, 11, 1, 20, 0, 0, 0, time.UTC)

func TestRateLimitState_IsStale(t *testing.T) {
	tests := []struct {
		name     string
		state    *RateLimitState
		maxAge   time.Duration
		expected bool
	}{
		{
			name:     "fresh state",
			state:    &RateLimitState{LastUpdate: baseTime},
			maxAge:   5 * time.Minute,
			expected: false,
		},
		{
			name:     "stale state",
			state:    &RateLimitState{LastUpdate: baseTime.Add(-10 * time.Minute)},
			maxAge:   5 * time.Minute,
			expected: true,
		},
		{
			name:     "just under max age",
			state:    &RateLimitState{LastUpdate: baseTime.Add(-4 * time.Minute)},
			maxAge:   5 * time.Minute,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.state.IsStale(baseTime, tt.maxAge)
			if result != tt.expected {
				t.Errorf("IsStale() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestRateLimitState_IsBlocked(t *testing.T) {
	tests := []struct {
		name     string
		state    RateLimitState
		wantBlk  bool
		wantWait time.Duration
	}{
		{
			name:     "empty state",
			state:    RateLimitState{},
			wantBlk:  false,
			wantWait: 0,
		},
		{
			name: "quota available",
			state: RateLimitState{
				Remaining:  10,
				ResetAt:    baseTime.Add(30 * time.Second),
				LastUpdate: baseTime,
			},
			wantBlk:  false,
			wantWait: 0,
		},
		{
			name: "quota exhausted before reset",
			state: RateLimitState{
				Remaining:  0,
				ResetAt:    baseTime.Add(30 * time.Second),
				LastUpdate: baseTime,
			},
			wantBlk:  true,
			wantWait: 30 * time.Second,
		},
		{
			name: "quota exhausted after reset",
			state: RateLimitState{
				Remaining:  0,
				ResetAt:    baseTime.Add(-time.Second),
				LastUpdate: baseTime.Add(-time.Minute),
			},
			wantBlk:  false,
			wantWait: 0,
		},
		{
			name: "exhausted observation too old",
			state: RateLimitState{
				Remaining:  0,
				ResetAt:    baseTime.Add(time.Hour),
				LastUpdate: baseTime.Add(-MaxQuotaAge - time.Second),
			},
			wantBlk:  false,
			wantWait: 0,
		},
		{
			name: "retry-after block",
			state: RateLimitState{
				BlockedUntil: baseTime.Add(45 * time.Second),
			},
			wantBlk:  true,
			wantWait: 45 * time.Second,
		},
		{
			name: "retry-after block elapsed",
			state: RateLimitState{
				BlockedUntil: baseTime.Add(-time.Second),
			},
			wantBlk:  false,
			wantWait: 0,
		},
		{
			name: "longest of block and reset wins",
			state: RateLimitState{
				Remaining:    0,
				ResetAt:      baseTime.Add(90 * time.Second),
				LastUpdate:   baseTime,
				BlockedUntil: baseTime.Add(10 * time.Second),
			},
			wantBlk:  true,
			wantWait: 90 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.IsBlocked(baseTime); got != tt.wantBlk {
				t.Errorf("IsBlocked() = %v, want %v", got, tt.wantBlk)
			}
			if got := tt.state.TimeUntilUnblocked(baseTime); got != tt.wantWait {
				t.Errorf("TimeUntilUnblocked() = %v, want %v", got, tt.wantWait)
			}
		})
	}
}
