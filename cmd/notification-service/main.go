package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"queueline/internal/config"
	"queueline/internal/notify"
	"queueline/internal/store/postgres"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	config.LoadEnv()
	cfg := config.Load()
	if cfg.RedisAddr == "" {
		log.Fatalf("REDIS_ADDR is required")
	}

	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer pool.Close()

	store := postgres.NewStore(pool)
	worker := notify.NewWorker(
		notify.NewProvider(notify.ProviderConfig{
			Kind:         cfg.EmailProvider,
			WebhookURL:   cfg.WebhookURL,
			WebhookToken: cfg.WebhookToken,
		}),
		store,
		notify.WorkerConfig{
			From:            cfg.EmailFrom,
			OutboxRetention: cfg.OutboxRetention,
		},
	)

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.NotifConcurrency,
		Queues: map[string]int{
			"default": 3,
			"low":     1,
		},
	})
	mux := asynq.NewServeMux()
	worker.Register(mux)

	scheduler := asynq.NewScheduler(redisOpt, nil)
	if cfg.CleanupInterval > 0 {
		spec := fmt.Sprintf("@every %s", cfg.CleanupInterval)
		entryID, err := scheduler.Register(spec, notify.NewCleanupTask(), asynq.Queue("low"))
		if err != nil {
			log.Fatalf("schedule outbox cleanup: %v", err)
		}
		log.Printf("outbox cleanup scheduled entry_id=%s spec=%q", entryID, spec)
	}

	if err := scheduler.Start(); err != nil {
		log.Fatalf("scheduler start error: %v", err)
	}
	if err := srv.Start(mux); err != nil {
		log.Fatalf("worker start error: %v", err)
	}
	log.Printf("notification-service started concurrency=%d", cfg.NotifConcurrency)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	scheduler.Shutdown()
	srv.Shutdown()
}
