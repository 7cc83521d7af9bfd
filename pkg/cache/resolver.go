package cache

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/bdl-client/pkg/upstream"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

var tracer = otel.Tracer("github.com/Sternrassler/bdl-client/pkg/cache")

// FetchFunc performs the upstream call for one key. It must enforce its own
// timeout and report failures as upstream errors (see package upstream).
type FetchFunc func(ctx context.Context) ([]byte, error)

// Outcome describes how a resolve was answered.
type Outcome string

const (
	// OutcomeFresh means a fresh entry was served without an upstream call.
	OutcomeFresh Outcome = "fresh"

	// OutcomeRefreshed means upstream was called and the result stored.
	OutcomeRefreshed Outcome = "refreshed"

	// OutcomeStale means upstream failed transiently and a stale entry was served.
	OutcomeStale Outcome = "stale"
)

// Result is the answer to a resolve.
type Result struct {
	Data      []byte
	Outcome   Outcome
	FetchedAt time.Time

	// Err is the upstream failure that caused a stale entry to be served.
	Err error
}

// Degraded reports whether the result is stale data served after a failure.
func (r Result) Degraded() bool {
	return r.Outcome == OutcomeStale
}

// Config holds resolver configuration.
type Config struct {
	// TTL is how long entries are served without contacting upstream
	TTL time.Duration

	// Clock returns the current time (default: time.Now)
	Clock func() time.Time

	// Coalesce shares one upstream call among concurrent resolves of a key
	Coalesce bool

	// Logger receives cache events (default: global logger, component "cache")
	Logger *zerolog.Logger
}

// DefaultConfig returns the default resolver configuration.
func DefaultConfig() Config {
	return Config{
		TTL:      DefaultTTL,
		Clock:    time.Now,
		Coalesce: true,
	}
}

// Resolver decides per request whether to serve cached data, call upstream,
// or fall back to stale data.
type Resolver struct {
	store    Store
	ttl      time.Duration
	now      func() time.Time
	coalesce bool
	group    singleflight.Group
	logger   zerolog.Logger
}

// NewResolver creates a resolver over store.
func NewResolver(store Store, cfg Config) *Resolver {
	if store == nil {
		panic("cache store cannot be nil")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	logger := log.With().Str("component", "cache").Logger()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	return &Resolver{
		store:    store,
		ttl:      cfg.TTL,
		now:      cfg.Clock,
		coalesce: cfg.Coalesce,
		logger:   logger,
	}
}

// TTL returns the configured freshness window.
func (r *Resolver) TTL() time.Duration {
	return r.ttl
}

// Resolve returns the payload for key, calling fetch only when no fresh
// entry exists.
func (r *Resolver) Resolve(ctx context.Context, key CacheKey, fetch FetchFunc) ([]byte, error) {
	res, err := r.ResolveResult(ctx, key, fetch)
	if err != nil {
		return nil, err
	}
	return res.Data, nil
}

// ResolveParams derives the key from params and resolves it.
func (r *Resolver) ResolveParams(ctx context.Context, params Params, fetch FetchFunc) (Result, error) {
	return r.ResolveResult(ctx, params.Key(), fetch)
}

// ResolveResult is Resolve with the outcome attached.
//
// A fresh entry is returned without calling fetch. Otherwise fetch runs; on
// success the result is stored and returned. On a transient failure
// (rate limit, server error, timeout) an existing stale entry is returned
// with OutcomeStale. Client errors, unclassified errors, and any failure
// without an entry are returned to the caller and leave the store untouched.
func (r *Resolver) ResolveResult(ctx context.Context, key CacheKey, fetch FetchFunc) (Result, error) {
	ctx, span := tracer.Start(ctx, "cache.Resolve",
		trace.WithAttributes(attribute.String("cache.key", key.String())))
	defer span.End()

	res, err := r.resolve(ctx, key, fetch)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}

	span.SetAttributes(attribute.String("cache.outcome", string(res.Outcome)))
	return res, nil
}

func (r *Resolver) resolve(ctx context.Context, key CacheKey, fetch FetchFunc) (Result, error) {
	now := r.now()
	entry, ok := r.store.Get(key)
	if ok && entry.IsFresh(now, r.ttl) {
		CacheHits.Inc()
		r.logger.Debug().
			Str("key", key.String()).
			Dur("age", entry.Age(now)).
			Msg("Cache hit")
		return Result{Data: entry.Data, Outcome: OutcomeFresh, FetchedAt: entry.FetchedAt}, nil
	}

	state := StateAbsent
	if ok {
		state = StateStale
	}
	CacheMisses.WithLabelValues(string(state)).Inc()
	r.logger.Debug().
		Str("key", key.String()).
		Str("state", string(state)).
		Msg("Cache miss")

	if !r.coalesce {
		return r.refresh(ctx, key, fetch)
	}

	// The shared fetch must not be cancelled because one waiting caller
	// went away; fetch bounds itself with its own timeout.
	flightCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan(key.String(), func() (any, error) {
		return r.refresh(flightCtx, key, fetch)
	})

	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case res := <-ch:
		if res.Shared {
			CoalescedRequests.Inc()
		}
		if res.Err != nil {
			return Result{}, res.Err
		}
		result := res.Val.(Result)
		if res.Shared {
			// Each waiter owns its payload.
			result.Data = bytes.Clone(result.Data)
		}
		return result, nil
	}
}

// refresh calls upstream for key and applies the fallback policy.
func (r *Resolver) refresh(ctx context.Context, key CacheKey, fetch FetchFunc) (Result, error) {
	// Another flight may have refreshed the key since the caller looked.
	if entry, ok := r.store.Get(key); ok && entry.IsFresh(r.now(), r.ttl) {
		return Result{Data: entry.Data, Outcome: OutcomeFresh, FetchedAt: entry.FetchedAt}, nil
	}

	data, err := fetch(ctx)
	if err == nil {
		fetchedAt := r.now()
		r.store.Put(key, data, fetchedAt)
		CacheRefreshes.Inc()
		r.logger.Info().
			Str("key", key.String()).
			Int("bytes", len(data)).
			Dur("ttl", r.ttl).
			Msg("Cached upstream response")
		return Result{Data: data, Outcome: OutcomeRefreshed, FetchedAt: fetchedAt}, nil
	}

	class := upstream.ClassOf(err)
	if class.Transient() {
		if entry, ok := r.store.Get(key); ok {
			StaleServed.WithLabelValues(string(class)).Inc()
			r.logger.Warn().
				Err(err).
				Str("key", key.String()).
				Str("error_class", string(class)).
				Dur("age", entry.Age(r.now())).
				Msg("Upstream failed, serving stale entry")
			return Result{
				Data:      entry.Data,
				Outcome:   OutcomeStale,
				FetchedAt: entry.FetchedAt,
				Err:       err,
			}, nil
		}
	}

	label := string(class)
	if label == "" {
		label = "unknown"
	}
	FetchErrors.WithLabelValues(label).Inc()
	r.logger.Warn().
		Err(err).
		Str("key", key.String()).
		Str("error_class", label).
		Msg("Upstream failed, no fallback")

	return Result{}, fmt.Errorf("resolve %s: %w", key, err)
}
