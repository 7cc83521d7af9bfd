// Package service exposes the cached balldontlie reads used by the proxy.
package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/Sternrassler/bdl-client/pkg/cache"
	"github.com/Sternrassler/bdl-client/pkg/client"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// MaxPerPage is the largest page size balldontlie accepts.
const MaxPerPage = 100

// ErrInvalidQuery is returned for parameters that cannot produce a request.
var ErrInvalidQuery = errors.New("invalid query")

// Fetcher is the upstream capability used on a cache miss.
type Fetcher interface {
	GetTeam(ctx context.Context, teamID int) ([]byte, error)
	GetGames(ctx context.Context, q client.GamesQuery) ([]byte, error)
}

// Service serves team and games payloads through the cache resolver.
type Service struct {
	fetcher  Fetcher
	resolver *cache.Resolver
	logger   zerolog.Logger
}

// New creates a Service.
func New(fetcher Fetcher, resolver *cache.Resolver) *Service {
	return &Service{
		fetcher:  fetcher,
		resolver: resolver,
		logger:   log.With().Str("component", "service").Logger(),
	}
}

// TeamParams returns the cache params for a team lookup.
func TeamParams(teamID int) cache.Params {
	return cache.Params{
		Endpoint: "/teams",
		TeamID:   teamID,
	}
}

// GamesParams returns the cache params for a games query. Every value sent
// upstream is part of the key.
func GamesParams(q client.GamesQuery) cache.Params {
	extra := q.Values()
	extra.Del("team_ids[]")
	extra.Del("seasons[]")
	extra.Del("per_page")

	return cache.Params{
		Endpoint: "/games",
		TeamID:   q.TeamID,
		Season:   q.Season,
		PerPage:  q.PerPage,
		Query:    extra,
	}
}

// Team returns the team object for teamID.
func (s *Service) Team(ctx context.Context, teamID int) (cache.Result, error) {
	if teamID <= 0 {
		return cache.Result{}, fmt.Errorf("%w: team id must be positive (got %d)", ErrInvalidQuery, teamID)
	}

	res, err := s.resolver.ResolveParams(ctx, TeamParams(teamID), func(ctx context.Context) ([]byte, error) {
		return s.fetcher.GetTeam(ctx, teamID)
	})
	if err != nil {
		return cache.Result{}, err
	}

	s.logResult("team", strconv.Itoa(teamID), res)
	return res, nil
}

// Games returns the games array matching q.
func (s *Service) Games(ctx context.Context, q client.GamesQuery) (cache.Result, error) {
	if err := ValidateGamesQuery(q); err != nil {
		return cache.Result{}, err
	}

	res, err := s.resolver.ResolveParams(ctx, GamesParams(q), func(ctx context.Context) ([]byte, error) {
		return s.fetcher.GetGames(ctx, q)
	})
	if err != nil {
		return cache.Result{}, err
	}

	s.logResult("games", strconv.Itoa(q.TeamID), res)
	return res, nil
}

// ValidateGamesQuery rejects queries balldontlie would refuse.
func ValidateGamesQuery(q client.GamesQuery) error {
	if q.TeamID <= 0 {
		return fmt.Errorf("%w: team id must be positive (got %d)", ErrInvalidQuery, q.TeamID)
	}
	if q.Season < 0 {
		return fmt.Errorf("%w: season must not be negative (got %d)", ErrInvalidQuery, q.Season)
	}
	if q.PerPage < 0 || q.PerPage > MaxPerPage {
		return fmt.Errorf("%w: per_page must be between 0 (upstream default) and %d (got %d)", ErrInvalidQuery, MaxPerPage, q.PerPage)
	}
	if q.Cursor < 0 {
		return fmt.Errorf("%w: cursor must not be negative (got %d)", ErrInvalidQuery, q.Cursor)
	}
	return nil
}

func (s *Service) logResult(kind, teamID string, res cache.Result) {
	evt := s.logger.Debug()
	if res.Degraded() {
		evt = s.logger.Warn().Err(res.Err)
	}
	evt.Str("kind", kind).
		Str("team_id", teamID).
		Str("outcome", string(res.Outcome)).
		Time("fetched_at", res.FetchedAt).
		Msg("Served payload")
}
