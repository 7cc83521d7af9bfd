package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/bdl-client/internal/config"
	"github.com/Sternrassler/bdl-client/internal/telemetry"
	"github.com/Sternrassler/bdl-client/pkg/cache"
	"github.com/Sternrassler/bdl-client/pkg/client"
	"github.com/Sternrassler/bdl-client/pkg/logging"
	"github.com/Sternrassler/bdl-client/pkg/ratelimit"
	"github.com/Sternrassler/bdl-client/pkg/service"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("bdl-proxy failed")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logging.Setup(logging.Config{
		Level:   logging.LogLevel(cfg.LogLevel),
		Pretty:  cfg.LogPretty,
		Output:  os.Stderr,
		Service: "bdl-proxy",
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, "bdl-proxy", cfg.TraceStdout, os.Stdout)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Warn().Err(err).Msg("Failed to flush traces")
		}
	}()

	// Optional Redis for a rate limit state shared between replicas
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse REDIS_URL: %w", err)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		log.Info().Str("addr", opts.Addr).Msg("Connected to Redis")
	}

	tracker := ratelimit.NewTracker(redisClient, logging.NewLogger("ratelimit"))

	clientCfg := client.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = cfg.BaseURL
	clientCfg.UserAgent = cfg.UserAgent
	clientCfg.Timeout = cfg.RequestTimeout
	clientCfg.Retry.MaxAttempts = cfg.MaxRetries + 1
	clientCfg.RateLimiter = tracker

	bdlClient, err := client.New(clientCfg)
	if err != nil {
		return fmt.Errorf("create balldontlie client: %w", err)
	}
	defer bdlClient.Close()

	resolver := cache.NewResolver(cache.NewMemoryStore(), cache.Config{
		TTL:      cfg.CacheTTL,
		Clock:    time.Now,
		Coalesce: cfg.CacheCoalesce,
	})
	svc := service.New(bdlClient, resolver)

	ready := func(ctx context.Context) error {
		if redisClient == nil {
			return nil
		}
		return redisClient.Ping(ctx).Err()
	}

	srv := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: newRouter(svc, queryDefaults{
			TeamID:  cfg.TeamID,
			Season:  cfg.Season,
			PerPage: cfg.PerPage,
		}, ready, time.Now),
		ReadHeaderTimeout: 5 * time.Second,
		// Upstream timeout plus headroom for retry backoff
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Dur("cache_ttl", cfg.CacheTTL).
			Int("team_id", cfg.TeamID).
			Bool("shared_rate_limit", redisClient != nil).
			Msg("Starting bdl proxy server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
