// ClipForge Janitor — возвращает в очередь jobs, потерянные воркерами.
//
// Janitor:
//   - Находит jobs в PROCESSING с устаревшим heartbeat
//   - Ставит их обратно в очередь в статусе PENDING
//   - Работает в единственном экземпляре через advisory lock
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clipforge/clipforge/internal/config"
	"github.com/clipforge/clipforge/internal/janitor"
	"github.com/clipforge/clipforge/internal/progress"
	"github.com/clipforge/clipforge/internal/queue"
	"github.com/clipforge/clipforge/internal/repo"
	"github.com/clipforge/clipforge/internal/telemetry"
)

// janitorLockKey — advisory lock: janitor работает в одном экземпляре,
// чтобы не поставить один job в очередь дважды за тик.
const janitorLockKey int64 = 776677

func main() {
	logger := telemetry.SetupLogger()
	logger.Info("starting clipforge-janitor")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
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

	// Redis (опционален)
	var publisher *progress.Publisher
	rdb, err := progress.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Warn("redis not available, status events disabled", "error", err)
	} else {
		defer rdb.Close()
		publisher = progress.NewPublisher(progress.Config{
			Client:    rdb,
			StatusTTL: cfg.StatusTTL,
			Logger:    logger,
		})
	}

	j := janitor.New(janitor.Config{
		Jobs:              repo.NewJobRepo(pool),
		Queue:             jobQueue,
		Publisher:         publisher,
		Logger:            logger,
		VisibilityTimeout: cfg.VisibilityTimeout,
		BatchSize:         cfg.JanitorBatchSize,
	})

	// janitor loop
	go func() {
		tk := time.NewTicker(cfg.JanitorInterval)
		defer tk.Stop()

		var hasLock bool
		defer func() {
			if hasLock {
				_, _ = pool.Exec(context.Background(), "select pg_advisory_unlock($1)", janitorLockKey)
			}
		}()

		for {
			select {
			case <-tk.C:
				// пытаемся стать лидером (или подтвердить лидерство)
				if !hasLock {
					var ok bool
					if err := pool.QueryRow(ctx, "select pg_try_advisory_lock($1)", janitorLockKey).Scan(&ok); err != nil {
						logger.Error("advisory lock error", "error", err)
						continue
					}
					hasLock = ok
				}

				if !hasLock {
					// не лидер — пропускаем тик
					continue
				}

				if err := j.Tick(ctx); err != nil {
					logger.Error("janitor tick failed", "error", err)
				}

			case <-ctx.Done():
				return
			}
		}
	}()

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	addr := fmt.Sprintf(":%d", cfg.JanitorPort)
	go func() {
		logger.Info("listening", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("clipforge-janitor stopped")
}
