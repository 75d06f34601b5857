// ClipForge Worker — выполняет jobs генерации.
//
// Worker:
//   - Забирает jobs из очереди блокирующим Pop
//   - Прогоняет stages pipeline через generation gateway
//   - Реализует retry с exponential backoff
//   - Публикует прогресс в Redis
//   - При shutdown дорабатывает текущий stage и возвращает job в очередь
//
// Workers масштабируются горизонтально.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clipforge/clipforge/internal/config"
	"github.com/clipforge/clipforge/internal/genclient"
	"github.com/clipforge/clipforge/internal/progress"
	"github.com/clipforge/clipforge/internal/queue"
	"github.com/clipforge/clipforge/internal/repo"
	"github.com/clipforge/clipforge/internal/stages"
	"github.com/clipforge/clipforge/internal/storage"
	"github.com/clipforge/clipforge/internal/telemetry"
	"github.com/clipforge/clipforge/internal/worker"
)

func main() {
	var workerID string
	flag.StringVar(&workerID, "worker-id", "", "worker identifier (overrides CLIPFORGE_WORKER_ID)")
	flag.Parse()

	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting clipforge-worker")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if workerID != "" {
		cfg.WorkerID = workerID
	}

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// DB pool
	pool, err := repo.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("database connected")

	store := repo.NewStore(pool)

	// Очередь jobs
	mqConn, err := queue.NewConnection(cfg.AMQPURL, logger)
	if err != nil {
		logger.Error("failed to connect to broker", "error", err)
		os.Exit(1)
	}
	defer mqConn.Close()
	logger.Info("broker connected")

	if err := queue.SetupTopology(mqConn); err != nil {
		logger.Error("failed to setup queue topology", "error", err)
		os.Exit(1)
	}
	jobQueue := queue.NewJobQueue(mqConn, logger)

	// Redis для публикации прогресса
	rdb, err := progress.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Warn("redis not available, progress events disabled", "error", err)
		rdb = nil
	} else {
		defer rdb.Close()
	}
	publisher := progress.NewPublisher(progress.Config{
		Client:    rdb,
		StatusTTL: cfg.StatusTTL,
		Logger:    logger,
	})

	// Generation gateway
	gateway, err := genclient.New(genclient.Options{
		BaseURL: cfg.GatewayURL,
		APIKey:  cfg.GatewayAPIKey,
		Timeout: cfg.GatewayTimeout,
		Logger:  logger,
	})
	if err != nil {
		logger.Error("failed to create gateway client", "error", err)
		os.Exit(1)
	}

	// Хранилище артефактов
	artifacts, err := storage.NewMinioStore(ctx, storage.MinioOptions{
		Endpoint:  cfg.StorageEndpoint,
		Bucket:    cfg.StorageBucket,
		AccessKey: cfg.StorageAccessKey,
		SecretKey: cfg.StorageSecretKey,
		UseSSL:    cfg.StorageUseSSL,
		PublicURL: cfg.StoragePublicURL,
	})
	if err != nil {
		logger.Error("failed to init artifact storage", "error", err)
		os.Exit(1)
	}

	// Создаём worker
	w := worker.New(worker.Config{
		WorkerID:       cfg.WorkerID,
		Store:          store,
		Queue:          jobQueue,
		Publisher:      publisher,
		Registry:       stages.NewRegistry(gateway, artifacts),
		PopTimeout:     cfg.PopTimeout,
		HealthInterval: cfg.HealthInterval,
		MaxAttempts:    cfg.MaxAttempts,
		BackoffBase:    cfg.BackoffBase,
		BackoffMax:     cfg.BackoffMax,
		Logger:         logger,
	})

	if err := w.Start(ctx); err != nil {
		logger.Error("failed to start worker", "error", err)
		os.Exit(1)
	}

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, _ *http.Request) {
		h := w.Health()
		status := http.StatusOK
		if !h.Healthy {
			status = http.StatusServiceUnavailable
		}
		rw.Header().Set("Content-Type", "application/json")
		rw.WriteHeader(status)
		json.NewEncoder(rw).Encode(h)
	})
	mux.Handle("/metrics", promhttp.Handler())

	addr := fmt.Sprintf(":%d", cfg.WorkerPort)
	go func() {
		logger.Info("listening", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()

	// Останавливаем worker: дорабатывает текущий stage и делает requeue
	w.Stop()
	logger.Info("clipforge-worker stopped")
}
