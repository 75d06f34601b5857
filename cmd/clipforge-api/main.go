// ClipForge API — HTTP API для постановки jobs и чтения их состояния.
//
// API:
//   - Создаёт jobs и ставит их в очередь
//   - Отдаёт состояние job со stages
//   - Отдаёт лёгкий статус для поллинга (Redis-кэш с fallback в БД)
//
// Выполнением jobs API не занимается — это дело воркеров.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clipforge/clipforge/internal/api"
	"github.com/clipforge/clipforge/internal/config"
	"github.com/clipforge/clipforge/internal/progress"
	"github.com/clipforge/clipforge/internal/queue"
	"github.com/clipforge/clipforge/internal/repo"
	"github.com/clipforge/clipforge/internal/telemetry"
)

var (
	startTime = time.Now()
	reqTotal  = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clipforge_api_http_requests_total",
		Help: "Total HTTP requests handled by clipforge-api",
	})
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting clipforge-api")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Подключаемся к базе данных
	pool, err := repo.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("connected to database")

	jobRepo := repo.NewJobRepo(pool)
	stageRepo := repo.NewStageRepo(pool)

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

	// Redis для статус-кэша (опционален: без него статус идёт из БД)
	var publisher *progress.Publisher
	rdb, err := progress.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Warn("redis not available, status cache disabled", "error", err)
	} else {
		defer rdb.Close()
		publisher = progress.NewPublisher(progress.Config{
			Client:    rdb,
			StatusTTL: cfg.StatusTTL,
			Logger:    logger,
		})
	}

	handler := api.NewHandler(api.Config{
		Jobs:      jobRepo,
		Stages:    stageRepo,
		Queue:     jobQueue,
		Publisher: publisher,
		Logger:    logger,
	})

	mux := http.NewServeMux()

	// Health и metrics
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		reqTotal.Inc()
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", time.Since(startTime))
	})
	mux.Handle("/metrics", promhttp.Handler())

	handler.RegisterRoutes(mux)

	addr := fmt.Sprintf(":%d", cfg.APIPort)
	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	// Graceful shutdown с таймаутом 10 секунд
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("stopped")
}
