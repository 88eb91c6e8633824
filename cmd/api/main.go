package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dunamismax/pixelgrade/internal/api"
	"github.com/dunamismax/pixelgrade/internal/config"
	"github.com/dunamismax/pixelgrade/internal/enhance"
	"github.com/dunamismax/pixelgrade/internal/queue"
	"github.com/dunamismax/pixelgrade/internal/ratelimit"
	"github.com/dunamismax/pixelgrade/internal/storage"
	"github.com/dunamismax/pixelgrade/internal/store"
	"github.com/dunamismax/pixelgrade/internal/supersede"
	"github.com/dunamismax/pixelgrade/internal/telemetry"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg := config.Load()
	logger := log.New(os.Stdout, "[api] ", log.LstdFlags|log.Lmsgprefix)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TraceConfig{
		ServiceName:  "pixelgrade-api",
		Exporter:     cfg.Trace.Exporter,
		OTLPEndpoint: cfg.Trace.OTLPEndpoint,
		OTLPInsecure: cfg.Trace.OTLPInsecure,
		SampleRatio:  cfg.Trace.SampleRatio,
	}, logger)
	if err != nil {
		logger.Fatalf("tracing setup failed: %v", err)
	}

	if err := enhance.Startup(); err != nil {
		logger.Fatalf("image runtime startup failed: %v", err)
	}
	defer enhance.Shutdown()

	redisClient := redis.NewClient(cfg.Queue.RedisOptions())
	defer redisClient.Close()

	queueClient := queue.NewClient(cfg.Queue.RedisClientOpt(), cfg.Queue.Name)
	defer func() {
		if err := queueClient.Close(); err != nil {
			logger.Printf("queue client close error: %v", err)
		}
	}()

	jobStore, err := store.Open(ctx, cfg.Database.Backend, cfg.Database.DSN)
	if err != nil {
		logger.Fatalf("job store open failed backend=%s: %v", cfg.Database.Backend, err)
	}
	defer jobStore.Close()

	var objectStorage api.ObjectStorage
	storageClient, err := storage.NewClient(storage.Config{
		Endpoint:       cfg.Storage.Endpoint,
		Access:         cfg.Storage.AccessKey,
		Secret:         cfg.Storage.SecretKey,
		Bucket:         cfg.Storage.Bucket,
		Region:         cfg.Storage.Region,
		UseSSL:         cfg.Storage.UseSSL,
		MaxObjectBytes: cfg.Enhance.MaxBodyBytes,
	})
	if err != nil {
		logger.Printf("object storage disabled: %v", err)
	} else if err := storageClient.EnsureBucket(ctx); err != nil {
		logger.Printf("object storage disabled: %v", err)
	} else {
		objectStorage = storageClient
	}

	tracker, err := newTracker(cfg.Sequence, redisClient)
	if err != nil {
		logger.Fatalf("sequence tracker setup failed: %v", err)
	}

	var limiter api.RateLimiter
	bucket, err := ratelimit.NewRedisTokenBucket(redisClient, cfg.RateLimit.Capacity, cfg.RateLimit.Window, "")
	if err != nil {
		logger.Printf("rate limiting disabled: %v", err)
	} else {
		limiter = bucket
	}

	app := api.NewServer(logger, api.Options{
		QueueClient:           queueClient,
		JobStore:              jobStore,
		Storage:               objectStorage,
		Enhancer:              enhance.NewEnhancer(logger, enhance.Config{MaxSourcePixels: cfg.Enhance.MaxSourcePixels}),
		Tracker:               tracker,
		RateLimiter:           limiter,
		RateLimitUserIDHeader: cfg.RateLimit.UserHeader,
		EnhanceCost:           cfg.RateLimit.EnhanceCost,
		PresignTTL:            cfg.API.PresignTTL,
		MaxBodyBytes:          cfg.Enhance.MaxBodyBytes,
		EnhanceTimeout:        cfg.Enhance.Timeout,
	})

	httpServer := &http.Server{
		Addr:         cfg.API.Addr,
		Handler:      app.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.Enhance.Timeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Printf("listening on %s job_store=%s sequence=%s", cfg.API.Addr, cfg.Database.Backend, cfg.Sequence.Backend)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Println("shutting down")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Printf("tracing shutdown failed: %v", err)
	}
}

func newTracker(cfg config.SequenceConfig, client redis.UniversalClient) (supersede.Tracker, error) {
	if cfg.Backend == config.BackendMemory {
		return supersede.NewMemoryTracker(), nil
	}
	return supersede.NewRedisTracker(client, cfg.KeyPrefix, cfg.TTL)
}
