package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/Sternrassler/bdl-client/pkg/cache"
	"github.com/Sternrassler/bdl-client/pkg/client"
	"github.com/Sternrassler/bdl-client/pkg/logging"
	"github.com/Sternrassler/bdl-client/pkg/metrics"
	"github.com/Sternrassler/bdl-client/pkg/service"
	"github.com/Sternrassler/bdl-client/pkg/upstream"
	"github.com/rs/zerolog"
)

// teamGamesService is the read API the handlers depend on.
type teamGamesService interface {
	Team(ctx context.Context, teamID int) (cache.Result, error)
	Games(ctx context.Context, q client.GamesQuery) (cache.Result, error)
}

// queryDefaults fill parameters the caller leaves out.
type queryDefaults struct {
	TeamID  int
	Season  int
	PerPage int
}

// handlers serves the proxy routes.
type handlers struct {
	svc      teamGamesService
	defaults queryDefaults
	ready    func(context.Context) error
	now      func() time.Time
	logger   zerolog.Logger
}

func newRouter(svc teamGamesService, defaults queryDefaults, ready func(context.Context) error, now func() time.Time) http.Handler {
	h := &handlers{
		svc:      svc,
		defaults: defaults,
		ready:    ready,
		now:      now,
		logger:   logging.NewLogger("http"),
	}

	mux := http.NewServeMux()
	mux.Handle("GET /health", metrics.Instrument("health", http.HandlerFunc(healthHandler)))
	mux.Handle("GET /ready", metrics.Instrument("ready", http.HandlerFunc(h.readyHandler)))
	mux.Handle("GET /metrics", metrics.Handler())
	mux.Handle("GET /api/team", metrics.Instrument("team", h.teamHandler(func(*http.Request) (int, error) {
		return defaults.TeamID, nil
	})))
	mux.Handle("GET /api/teams/{id}", metrics.Instrument("teams", h.teamHandler(func(r *http.Request) (int, error) {
		return parsePositive("id", r.PathValue("id"))
	})))
	mux.Handle("GET /api/games", metrics.Instrument("games", http.HandlerFunc(h.gamesHandler)))
	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

// readyHandler reports whether the shared rate limit store is reachable.
func (h *handlers) readyHandler(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.ready(ctx); err != nil {
			h.logger.Warn().Err(err).Msg("Readiness check failed")
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

func (h *handlers) teamHandler(teamID func(*http.Request) (int, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := teamID(r)
		if err != nil {
			h.writeError(w, err)
			return
		}

		res, err := h.svc.Team(r.Context(), id)
		if err != nil {
			h.writeError(w, err)
			return
		}
		h.writeResult(w, res)
	}
}

func (h *handlers) gamesHandler(w http.ResponseWriter, r *http.Request) {
	q, err := gamesQueryFromRequest(r, h.defaults)
	if err != nil {
		h.writeError(w, err)
		return
	}

	res, err := h.svc.Games(r.Context(), q)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeResult(w, res)
}

// gamesQueryFromRequest reads team_id, season, per_page, cursor, postseason,
// start_date and end_date from the query string.
func gamesQueryFromRequest(r *http.Request, defaults queryDefaults) (client.GamesQuery, error) {
	values := r.URL.Query()
	q := client.GamesQuery{
		TeamID:    defaults.TeamID,
		Season:    defaults.Season,
		PerPage:   defaults.PerPage,
		StartDate: values.Get("start_date"),
		EndDate:   values.Get("end_date"),
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{"team_id", &q.TeamID},
		{"season", &q.Season},
		{"per_page", &q.PerPage},
		{"cursor", &q.Cursor},
	}
	for _, p := range ints {
		raw := values.Get(p.name)
		if raw == "" {
			continue
		}
		v, err := parsePositive(p.name, raw)
		if err != nil {
			return client.GamesQuery{}, err
		}
		*p.dst = v
	}

	if raw := values.Get("postseason"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return client.GamesQuery{}, fmt.Errorf("%w: postseason must be a boolean (got %q)", service.ErrInvalidQuery, raw)
		}
		q.Postseason = &v
	}

	return q, nil
}

func parsePositive(name, raw string) (int, error) {
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer (got %q)", service.ErrInvalidQuery, name, raw)
	}
	return v, nil
}

// writeResult writes the cached payload verbatim with cache headers.
func (h *handlers) writeResult(w http.ResponseWriter, res cache.Result) {
	age := int64(h.now().Sub(res.FetchedAt) / time.Second)
	if age < 0 {
		age = 0
	}

	header := w.Header()
	header.Set("Content-Type", "application/json")
	header.Set("X-Cache", string(res.Outcome))
	header.Set("X-Cache-Age", strconv.FormatInt(age, 10))
	if res.Degraded() {
		header.Set("Warning", `110 - "Response is Stale"`)
	}

	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(res.Data); err != nil {
		h.logger.Warn().Err(err).Msg("Failed to write response")
	}
}

// writeError maps a failure to a status code: invalid input 400, upstream
// rate limit 503 with Retry-After, timeout 504, other upstream errors 502.
func (h *handlers) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	class := upstream.ClassOf(err)

	switch {
	case errors.Is(err, service.ErrInvalidQuery):
		status = http.StatusBadRequest
	case class == upstream.ErrorClassRateLimit:
		status = http.StatusServiceUnavailable
		retryAfter := time.Minute
		var ue *upstream.Error
		if errors.As(err, &ue) && ue.RetryAfter > 0 {
			retryAfter = ue.RetryAfter
		}
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
	case class == upstream.ErrorClassTimeout:
		status = http.StatusGatewayTimeout
	case class == upstream.ErrorClassServer, class == upstream.ErrorClassClient:
		status = http.StatusBadGateway
	}

	evt := h.logger.Warn()
	if status >= http.StatusInternalServerError {
		evt = h.logger.Error()
	}
	evt.Err(err).Int("status", status).Str("error_class", string(class)).Msg("Request failed")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
