package cache

import (
	"time"
)

// DefaultTTL is how long an entry is served without contacting upstream.
const DefaultTTL = 5 * time.Minute

// State is the derived freshness state of an entry.
type State string

const (
	// StateAbsent means no entry exists for the key.
	StateAbsent State = "absent"

	// StateFresh means the entry is younger than the TTL.
	StateFresh State = "fresh"

	// StateStale means the entry exists but is at least TTL old.
	StateStale State = "stale"
)

// CacheEntry is a cached upstream payload.
type CacheEntry struct {
	// Data is the upstream payload, stored and returned verbatim
	Data []byte `json:"data"`

	// FetchedAt is when the payload was successfully fetched
	FetchedAt time.Time `json:"fetched_at"`
}

// Age returns how long ago the entry was fetched.
func (e CacheEntry) Age(now time.Time) time.Duration {
	return now.Sub(e.FetchedAt)
}

// IsFresh reports whether the entry is younger than ttl at now.
func (e CacheEntry) IsFresh(now time.Time, ttl time.Duration) bool {
	return e.Age(now) < ttl
}

// IsStale reports whether the entry is at least ttl old at now.
func (e CacheEntry) IsStale(now time.Time, ttl time.Duration) bool {
	return !e.IsFresh(now, ttl)
}

// State returns StateFresh or StateStale.
func (e CacheEntry) State(now time.Time, ttl time.Duration) State {
	if e.IsFresh(now, ttl) {
		return StateFresh
	}
	return StateStale
}
