package main

import (
	"context"
	"expvar"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"queueline/internal/auth"
	"queueline/internal/config"
	"queueline/internal/httpapi"
	"queueline/internal/lifecycle"
	"queueline/internal/notify"
	"queueline/internal/store/postgres"
	"queueline/internal/telemetry"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	config.LoadEnv()
	cfg := config.Load()
	shutdownTelemetry := telemetry.Setup("booking-service")
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	if cfg.JWTSecret == "" {
		log.Fatalf("AUTH_JWT_SECRET is required")
	}

	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer pool.Close()

	store := postgres.NewStore(pool)

	rateCfg := httpapi.RateLimitConfig{
		IPPerMinute:       cfg.RateLimitPerMinute,
		IPBurst:           cfg.RateLimitBurst,
		BusinessPerMinute: cfg.TenantRateLimitPerMinute,
		BusinessBurst:     cfg.TenantRateLimitBurst,
	}
	limiter := httpapi.NewRateLimiter(rateCfg)

	var sender lifecycle.ConfirmationSender = notify.LogDispatcher{}
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisClient.Close()
		limiter = httpapi.NewRedisRateLimiter(redisClient, rateCfg)

		asynqClient := asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer asynqClient.Close()
		sender = notify.NewAsynqDispatcher(asynqClient, cfg.NotifMaxRetry)
	} else {
		log.Printf("REDIS_ADDR not set; confirmations are logged and rate limits are per instance")
	}

	svc := lifecycle.NewService(store, sender, lifecycle.Options{
		ServiceMinutes:    cfg.ServiceMinutes,
		AdmissionFailOpen: cfg.AdmissionFailOpen,
	})
	issuer := auth.NewIssuer(cfg.JWTSecret, cfg.CustomerTokenTTL)
	handler := httpapi.NewHandler(svc, issuer)

	mux := http.NewServeMux()
	mux.Handle("/metrics", expvar.Handler())
	mux.Handle("/", handler.Routes())

	otelHandler := otelhttp.NewHandler(httpapi.LoggingMiddleware(limiter.Middleware(httpapi.AuthMiddleware(issuer, mux))), "booking-service")
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelHandler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("booking-service listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
