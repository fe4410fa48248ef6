// cmd/chat-server/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"lca-assistant/internal/common/config"
	"lca-assistant/internal/common/database"
	apphttp "lca-assistant/internal/common/http"
	"lca-assistant/internal/common/logger"
	"lca-assistant/internal/common/rowstore"
	"lca-assistant/internal/common/supabase"
	"lca-assistant/internal/transport/chat"

	llm "lca-assistant/internal/workers/ai-conversation/llm-fallback"
	ri "lca-assistant/internal/workers/ai-conversation/route-intent"
	qf "lca-assistant/internal/workers/data-access/query-filings"
	sc "lca-assistant/internal/workers/web-sources/scrape-counts"
)

const shutdownTimeout = 30 * time.Second

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

// storePinger is the part of a row store /ready can check.
type storePinger interface {
	rowstore.Store
	Ping(ctx context.Context) error
}

func newStore(ctx context.Context, cfg *config.Config, zapLog *zap.Logger) (storePinger, error) {
	switch cfg.Store.Driver {
	case config.StoreDriverPostgres:
		var pg *database.PostgresClient
		err := retryWithBackoff(func() error {
			var err error
			pg, err = database.NewPostgres(cfg.Store.Postgres)
			if err != nil {
				return err
			}
			return pg.Ping(ctx)
		}, 5, 2*time.Second, zapLog, "PostgreSQL connection")
		if err != nil {
			return nil, err
		}
		zapLog.Info("PostgreSQL row store connected")
		return pg, nil
	default:
		client, err := supabase.NewClient(cfg.Supabase.URL, cfg.Supabase.ServiceRoleKey, supabase.Options{
			Schema:  cfg.Supabase.Schema,
			Timeout: config.GetDuration(cfg.Supabase.Timeout),
		})
		if err != nil {
			return nil, err
		}
		zapLog.Info("Supabase REST row store configured", zap.String("schema", cfg.Supabase.Schema))
		return client, nil
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New("info", "console")
		bootLog.Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()

	// Wrap zap logger with our logger interface
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting chat server...",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	ctx := context.Background()

	// --- Row store ---
	store, err := newStore(ctx, cfg, zapLog)
	if err != nil {
		zapLog.Fatal("row store init failed", zap.Error(err))
	}
	defer store.Close()

	// --- Redis (rate limiting only) ---
	readyDeps := map[string]chat.Pinger{"store": store}
	var limiter *chat.RateLimiter
	if redis := database.NewRedis(cfg.Redis); redis != nil {
		if err := redis.Ping(ctx); err != nil {
			zapLog.Warn("redis unreachable, rate limiting fails open until it recovers", zap.Error(err))
		}
		defer redis.Close()
		readyDeps["redis"] = redis
		limiter = chat.NewRateLimiter(redis, cfg.Redis.RateLimitPerMinute, log)
	} else {
		zapLog.Info("redis not configured, rate limiting disabled")
	}

	// --- Workers ---
	filings := qf.NewHandler(
		&qf.Config{
			Timeout:      config.GetDuration(cfg.Supabase.Timeout),
			DefaultLimit: cfg.Agent.DefaultLimit,
		},
		store, log,
	)

	scraper := sc.NewHandler(
		&sc.Config{
			BaseURL:          cfg.Scrapers.BaseURL,
			TopEmployersPath: cfg.Scrapers.TopEmployersPath,
			Timeout:          config.GetDuration(cfg.Scrapers.Timeout),
		},
		apphttp.NewClient(config.GetDuration(cfg.Scrapers.Timeout), cfg.Scrapers.UserAgent),
		log,
	)

	var generator llm.Generator
	if cfg.GenAI.APIKey != "" {
		g, err := llm.NewGenAIGenerator(ctx, cfg.GenAI.APIKey)
		if err != nil {
			zapLog.Warn("GenAI client unavailable, falling back to help text", zap.Error(err))
		} else {
			generator = g
		}
	}
	fallback := llm.NewHandler(
		&llm.Config{
			APIKey:  cfg.GenAI.APIKey,
			Model:   cfg.GenAI.Model,
			Timeout: config.GetDuration(cfg.GenAI.Timeout),
		},
		generator, log,
	)

	router := ri.NewHandler(
		&ri.Config{
			DispatchTimeout:  config.GetDuration(cfg.Agent.DispatchTimeout),
			SampleLimit:      cfg.Agent.SampleLimit,
			FilingsSourceURL: cfg.Scrapers.DisclosurePageURL,
		},
		filings, scraper, fallback, log,
	)

	// --- HTTP ---
	server := chat.NewServer(
		cfg.Server,
		chat.NewHandler(router, config.GetDuration(cfg.Server.RequestTimeout), log),
		chat.NewChecker(cfg.App.Version, readyDeps),
		limiter,
		log,
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		zapLog.Info("Shutdown signal received, stopping chat server...")
	case err := <-errCh:
		if err != nil {
			zapLog.Error("chat server stopped unexpectedly", zap.Error(err))
		}
	}

	if err := server.Shutdown(context.Background(), shutdownTimeout); err != nil {
		zapLog.Error("Error shutting down chat server", zap.Error(err))
	}

	zapLog.Info("Chat server stopped gracefully")
}
