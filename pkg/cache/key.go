package cache

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
)

// CacheKey identifies a cached balldontlie response.
type CacheKey string

// Params describes an upstream request whose response can be cached.
type Params struct {
	// Endpoint is the API path (e.g., "/games" or "/teams/14")
	Endpoint string

	// TeamID is the balldontlie team id (14 for the Lakers)
	TeamID int

	// Season is the season start year (e.g., 2024)
	Season int

	// PerPage is the requested page size
	PerPage int

	// Query holds every other parameter that shapes the upstream response
	// (cursor, postseason, date range, ...).
	Query url.Values
}

// Key derives the cache key.
// Format: bdl:endpoint:team=14:season=2024:per_page=25?cursor=10&postseason=true
//
// Team, season and page size are always present. Query keys and the values
// under each key are sorted and escaped, so the key does not depend on
// parameter order and distinct parameter sets never share a key.
func (p Params) Key() CacheKey {
	var b strings.Builder
	b.WriteString("bdl:")
	b.WriteString(strings.Trim(p.Endpoint, "/"))
	fmt.Fprintf(&b, ":team=%d:season=%d:per_page=%d", p.TeamID, p.Season, p.PerPage)

	if len(p.Query) > 0 {
		sorted := make(url.Values, len(p.Query))
		for k, vs := range p.Query {
			vs = slices.Clone(vs)
			slices.Sort(vs)
			sorted[k] = vs
		}
		// Encode sorts by key and escapes keys and values.
		if enc := sorted.Encode(); enc != "" {
			b.WriteByte('?')
			b.WriteString(enc)
		}
	}

	return CacheKey(b.String())
}

// DeriveKey is Params.Key in function form.
func DeriveKey(p Params) CacheKey {
	return p.Key()
}

// String returns the key as a string.
func (k CacheKey) String() string {
	return string(k)
}
