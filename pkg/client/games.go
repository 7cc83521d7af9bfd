package client

import (
	"net/url"
	"strconv"
)

// GamesQuery selects games from the /games endpoint.
type GamesQuery struct {
	TeamID  int
	Season  int
	PerPage int

	// Cursor continues a previous page (meta.next_cursor), 0 for the first page
	Cursor int

	// Postseason restricts to regular season (false) or playoffs (true) when set
	Postseason *bool

	// StartDate and EndDate bound the game date (YYYY-MM-DD) when set
	StartDate string
	EndDate   string
}

// Values returns the upstream query parameters. Every field that changes
// the response is included.
func (q GamesQuery) Values() url.Values {
	v := url.Values{}
	if q.TeamID > 0 {
		v.Set("team_ids[]", strconv.Itoa(q.TeamID))
	}
	if q.Season > 0 {
		v.Set("seasons[]", strconv.Itoa(q.Season))
	}
	if q.PerPage > 0 {
		v.Set("per_page", strconv.Itoa(q.PerPage))
	}
	if q.Cursor > 0 {
		v.Set("cursor", strconv.Itoa(q.Cursor))
	}
	if q.Postseason != nil {
		v.Set("postseason", strconv.FormatBool(*q.Postseason))
	}
	if q.StartDate != "" {
		v.Set("start_date", q.StartDate)
	}
	if q.EndDate != "" {
		v.Set("end_date", q.EndDate)
	}
	return v
}
