package cache

import (
	"testing"
	"time"
)

func TestCacheEntry_IsFresh(t *testing.T) {
	fetchedAt := time.Date(2024, 11, 1, 20, 0, 0, 0, time.UTC)
	ttl := 5 * time.Minute

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{
			name: "just fetched",
			now:  fetchedAt,
			want: true,
		},
		{
			name: "within ttl",
			now:  fetchedAt.Add(100 * time.Second),
			want: true,
		},
		{
			name: "one nanosecond before ttl",
			now:  fetchedAt.Add(ttl - time.Nanosecond),
			want: true,
		},
		{
			name: "exactly ttl",
			now:  fetchedAt.Add(ttl),
			want: false,
		},
		{
			name: "long expired",
			now:  fetchedAt.Add(time.Hour),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := CacheEntry{FetchedAt: fetchedAt}
			if got := entry.IsFresh(tt.now, ttl); got != tt.want {
				t.Errorf("IsFresh() = %v, want %v", got, tt.want)
			}
			if got := entry.IsStale(tt.now, ttl); got == tt.want {
				t.Errorf("IsStale() = %v, want %v", got, !tt.want)
			}
		})
	}
}

func TestCacheEntry_State(t *testing.T) {
	fetchedAt := time.Date(2024, 11, 1, 20, 0, 0, 0, time.UTC)
	entry := CacheEntry{FetchedAt: fetchedAt}

	if got := entry.State(fetchedAt.Add(time.Minute), DefaultTTL); got != StateFresh {
		t.Errorf("State() = %v, want %v", got, StateFresh)
	}
	if got := entry.State(fetchedAt.Add(6*time.Minute), DefaultTTL); got != StateStale {
		t.Errorf("State() = %v, want %v", got, StateStale)
	}
}

func TestCacheEntry_Age(t *testing.T) {
	fetchedAt := time.Date(2024, 11, 1, 20, 0, 0, 0, time.UTC)
	entry := CacheEntry{FetchedAt: fetchedAt}

	if got := entry.Age(fetchedAt.Add(400 * time.Second)); got != 400*time.Second {
		t.Errorf("Age() = %v, want %v", got, 400*time.Second)
	}
}
