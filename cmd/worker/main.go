package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/dunamismax/pixelgrade/internal/config"
	"github.com/dunamismax/pixelgrade/internal/enhance"
	"github.com/dunamismax/pixelgrade/internal/storage"
	"github.com/dunamismax/pixelgrade/internal/store"
	"github.com/dunamismax/pixelgrade/internal/supersede"
	"github.com/dunamismax/pixelgrade/internal/telemetry"
	"github.com/dunamismax/pixelgrade/internal/webhook"
	"github.com/dunamismax/pixelgrade/internal/worker"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg := config.Load()
	logger := log.New(os.Stdout, "[worker] ", log.LstdFlags|log.Lmsgprefix)
	ctx := context.Background()

	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TraceConfig{
		ServiceName:  "pixelgrade-worker",
		Exporter:     cfg.Trace.Exporter,
		OTLPEndpoint: cfg.Trace.OTLPEndpoint,
		OTLPInsecure: cfg.Trace.OTLPInsecure,
		SampleRatio:  cfg.Trace.SampleRatio,
	}, logger)
	if err != nil {
		logger.Fatalf("tracing setup failed: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Printf("tracing shutdown failed: %v", err)
		}
	}()

	if err := enhance.Startup(); err != nil {
		logger.Fatalf("image runtime startup failed: %v", err)
	}
	defer enhance.Shutdown()

	jobStore, err := store.Open(ctx, cfg.Database.Backend, cfg.Database.DSN)
	if err != nil {
		logger.Fatalf("job store open failed backend=%s: %v", cfg.Database.Backend, err)
	}
	defer jobStore.Close()

	var tracker supersede.Tracker
	if cfg.Sequence.Backend == config.BackendMemory {
		tracker = supersede.NewMemoryTracker()
	} else {
		redisClient := redis.NewClient(cfg.Queue.RedisOptions())
		defer redisClient.Close()
		tracker, err = supersede.NewRedisTracker(redisClient, cfg.Sequence.KeyPrefix, cfg.Sequence.TTL)
		if err != nil {
			logger.Fatalf("sequence tracker setup failed: %v", err)
		}
	}

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
		logger.Printf("object storage disabled, only local_file jobs will run: %v", err)
		storageClient = nil
	}

	logger.Printf(
		"starting worker concurrency=%d max_active_jobs=%d queue=%s redis=%s job_store=%s sequence=%s",
		cfg.Worker.Concurrency,
		cfg.Worker.MaxActiveJobs,
		cfg.Queue.Name,
		cfg.Queue.RedisAddr,
		cfg.Database.Backend,
		cfg.Sequence.Backend,
	)

	srv, err := worker.NewServer(logger, cfg.Queue, cfg.Worker, worker.Deps{
		Enhancer: enhance.NewEnhancer(logger, enhance.Config{MaxSourcePixels: cfg.Enhance.MaxSourcePixels}),
		Tracker:  tracker,
		Storage:  storageClient,
		Webhook: webhook.NewClient(webhook.Config{
			SigningSecret:  cfg.Webhook.SigningSecret,
			Timeout:        cfg.Webhook.Timeout,
			MaxAttempts:    cfg.Webhook.MaxAttempts,
			InitialBackoff: cfg.Webhook.InitialBackoff,
			MaxBackoff:     cfg.Webhook.MaxBackoff,
		}),
		JobStore: jobStore,
	})
	if err != nil {
		logger.Fatalf("worker setup failed: %v", err)
	}

	metricsServer := &http.Server{
		Addr:              cfg.Worker.MetricsAddr,
		Handler:           metricsMux(srv.MetricsHandler()),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Printf("metrics listening on %s", cfg.Worker.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("metrics server failed: %v", err)
		}
	}()
	defer metricsServer.Close()

	// Run blocks until SIGINT or SIGTERM and drains in-flight tasks.
	if err := srv.Run(); err != nil {
		logger.Fatalf("worker failed: %v", err)
	}
}

func metricsMux(metrics http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", metrics)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	return mux
}
