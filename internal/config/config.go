package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port                     string
	DatabaseURL              string
	JWTSecret                string
	CustomerTokenTTL         time.Duration
	ServiceMinutes           int
	AdmissionFailOpen        bool
	RateLimitPerMinute       int
	RateLimitBurst           int
	TenantRateLimitPerMinute int
	TenantRateLimitBurst     int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	RealtimePort string
	PollInterval time.Duration
	BatchSize    int

	NotifConcurrency int
	NotifMaxRetry    int
	EmailProvider    string
	EmailFrom        string
	WebhookURL       string
	WebhookToken     string
	OutboxRetention  time.Duration
	CleanupInterval  time.Duration
}

// LoadEnv reads a .env file into the process environment when one exists.
func LoadEnv() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("dotenv error: %v", err)
	}
}

func Load() Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	realtimePort := os.Getenv("REALTIME_PORT")
	if realtimePort == "" {
		realtimePort = "8085"
	}

	return Config{
		Port:                     port,
		DatabaseURL:              os.Getenv("DB_DSN"),
		JWTSecret:                os.Getenv("AUTH_JWT_SECRET"),
		CustomerTokenTTL:         time.Duration(readInt("CUSTOMER_TOKEN_TTL_HOURS", 24)) * time.Hour,
		ServiceMinutes:           readInt("QUEUE_SERVICE_MINUTES", 15),
		AdmissionFailOpen:        readBool("RESERVATION_ADMISSION_FAIL_OPEN", true),
		RateLimitPerMinute:       readInt("RATE_LIMIT_PER_MIN", 120),
		RateLimitBurst:           readInt("RATE_LIMIT_BURST", 30),
		TenantRateLimitPerMinute: readInt("TENANT_RATE_LIMIT_PER_MIN", 600),
		TenantRateLimitBurst:     readInt("TENANT_RATE_LIMIT_BURST", 120),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       readInt("REDIS_DB", 0),

		RealtimePort: realtimePort,
		PollInterval: readDurationSeconds("REALTIME_POLL_SECONDS", 3),
		BatchSize:    readInt("REALTIME_BATCH_SIZE", 100),

		NotifConcurrency: readInt("NOTIF_CONCURRENCY", 5),
		NotifMaxRetry:    readInt("NOTIF_MAX_RETRY", 3),
		EmailProvider:    os.Getenv("NOTIF_EMAIL_PROVIDER"),
		EmailFrom:        readString("NOTIF_EMAIL_FROM", "no-reply@queueline.local"),
		WebhookURL:       os.Getenv("NOTIF_WEBHOOK_URL"),
		WebhookToken:     os.Getenv("NOTIF_WEBHOOK_TOKEN"),
		OutboxRetention:  time.Duration(readInt("OUTBOX_RETENTION_HOURS", 168)) * time.Hour,
		CleanupInterval:  readDurationSeconds("OUTBOX_CLEANUP_INTERVAL_SECONDS", 3600),
	}
}

func readString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func readDurationSeconds(key string, fallback int) time.Duration {
	value := readInt(key, fallback)
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Second
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func readBool(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return value
}
