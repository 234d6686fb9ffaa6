package main

import (
	"context"
	"errors"
	"expvar"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"queueline/internal/auth"
	"queueline/internal/config"
	"queueline/internal/feed"
	"queueline/internal/httpapi"
	"queueline/internal/hub"
	"queueline/internal/store/postgres"
	"queueline/internal/telemetry"

	"github.com/google/uuid"
	"github.com/igm/sockjs-go/sockjs"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	config.LoadEnv()
	cfg := config.Load()
	shutdownTelemetry := telemetry.Setup("realtime-service")
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer pool.Close()

	store := postgres.NewStore(pool)
	issuer := auth.NewIssuer(cfg.JWTSecret, cfg.CustomerTokenTTL)
	h := hub.New()
	expvar.Publish("realtime_clients", expvar.Func(func() any { return h.Clients() }))
	expvar.Publish("realtime_dropped_total", expvar.Func(func() any { return h.Dropped() }))

	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		IPPerMinute: cfg.RateLimitPerMinute,
		IPBurst:     cfg.RateLimitBurst,
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", expvar.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/realtime/", sockjs.NewHandler("/realtime", sockjs.DefaultOptions, func(session sockjs.Session) {
		serveSession(h, issuer, session)
	}))

	otelHandler := otelhttp.NewHandler(httpapi.LoggingMiddleware(limiter.Middleware(mux)), "realtime-service")
	server := &http.Server{
		Addr:        ":" + cfg.RealtimePort,
		Handler:     otelHandler,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := feed.New(feed.NewPGListener(pool), store, h.Broadcast, feed.Options{
		PollInterval: cfg.PollInterval,
		BatchSize:    cfg.BatchSize,
	})
	go changes.Run(ctx)

	go func() {
		log.Printf("realtime-service listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

// session is the part of sockjs.Session the hub needs.
type session interface {
	Recv() (string, error)
	Send(msg string) error
	Close(status uint32, reason string) error
}

func serveSession(h *hub.Hub, verifier hub.TokenVerifier, session session) {
	client := &hub.Client{ID: uuid.NewString(), Send: make(chan []byte, 16)}
	h.Register(client)
	defer h.Unregister(client)

	go func() {
		for msg := range client.Send {
			_ = session.Send(string(msg))
		}
	}()

	for {
		msg, err := session.Recv()
		if err != nil {
			return
		}
		parsed, ok := hub.ParseSubscribe([]byte(msg))
		if !ok {
			continue
		}
		if parsed.Action == "unsubscribe" {
			h.UpdateSubscription(client, hub.Subscription{})
			continue
		}
		sub, err := hub.Resolve(parsed, verifier)
		switch {
		case errors.Is(err, hub.ErrUnauthorized):
			_ = session.Close(4003, "access denied")
			return
		case err != nil:
			_ = session.Send(`{"type":"error","error":"` + err.Error() + `"}`)
			continue
		}
		h.UpdateSubscription(client, sub)
		_ = session.Send(`{"type":"subscribed"}`)
	}
}
