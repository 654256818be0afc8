package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/berios/subtitle-backend/internal/catalog"
	"github.com/berios/subtitle-backend/internal/config"
	"github.com/berios/subtitle-backend/internal/httpapi"
	"github.com/berios/subtitle-backend/internal/jobs"
	"github.com/berios/subtitle-backend/internal/kv"
	"github.com/berios/subtitle-backend/internal/persistence"
	"github.com/berios/subtitle-backend/internal/pipeline"
	"github.com/berios/subtitle-backend/internal/ratelimit"
	"github.com/berios/subtitle-backend/internal/session"
	"github.com/berios/subtitle-backend/pkg/log"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.NewFromEnv()
	if err != nil {
		log.Fatal("Failed to load configuration: %v", err)
	}

	// The shared cache survives a Redis outage by switching to the
	// in-process store for the rest of the process lifetime.
	redisClient := kv.NewRedisClientFromHostPort(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.DB)
	cache := kv.NewResilient(redisClient, kv.NewMemoryClient())

	store, err := persistence.NewSQLiteStore(cfg.Storage.DBPath)
	if err != nil {
		log.Fatal("Failed to open durable store: %v", err)
	}
	defer store.Close()

	runner, err := pipeline.NewCommandRunner(cfg.Jobs.PipelineCmd)
	if err != nil {
		log.Fatal("Failed to configure pipeline: %v", err)
	}

	resolver := jobs.NewResolver(cache, runner.Compute,
		jobs.WithDurableStore(store),
		jobs.WithExpire(cfg.Jobs.ExpireTime),
		jobs.WithMaxConcurrent(int64(cfg.Jobs.MaxConcurrent)),
	)
	defer resolver.Stop()

	limiter := ratelimit.New(cache, cfg.RateLimit.MaxRequests, cfg.RateLimit.Window)
	sessions := session.NewStore(cache, cfg.Session.TTL)

	catalogCache := catalog.NewCache(cache, store, cfg.Catalog.TTL)
	refresher, err := catalog.NewRefresher(catalogCache, cfg.Catalog.RefreshCron)
	if err != nil {
		log.Fatal("Failed to schedule catalog refresh: %v", err)
	}
	refresher.Start()
	defer refresher.Stop()

	server := httpapi.NewServer(resolver, limiter,
		httpapi.WithSessionStore(sessions),
		httpapi.WithCatalog(catalogCache),
		httpapi.WithDefaultLanguage(cfg.Jobs.TargetLanguage),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("Listening on %s", cfg.HTTP.Addr)
		errCh <- server.ListenAndServe(cfg.HTTP.Addr)
	}()

	select {
	case err := <-errCh:
		log.Fatal("HTTP server failed: %v", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Shutdown: %v", err)
	}
	log.Info("Server stopped")
}
