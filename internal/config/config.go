// Package config loads the process-wide configuration once at startup
// from the environment. Configuration is immutable after init: no hot
// reload, no per-request overrides.
//
// A single loader fails loud rather than falling back to a dev secret —
// a placeholder JWT secret reaching production is a fatal
// misconfiguration, not something to silently paper over.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	DatabaseURL string
	AppTZ       string
	Location    *time.Location

	JWTSecret string
	JWTAlg    string

	LivenessTokenTTL   time.Duration
	LivenessSessionTTL time.Duration

	SubsidyDailyCents int
	MaxMealCents      int
	MaxReceiptCents   int
	FaceDistThreshold float64

	TelegramBotToken string

	RedisAddr    string
	NATSURL      string
	HolidaysPath string

	PayLockoutThreshold int
	PayLockoutTTL       time.Duration

	HTTPAddr string
}

// Load reads Config from the environment, applying the documented
// defaults, and fails loud on a missing JWT_SECRET.
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		AppTZ:       getenvDefault("APP_TZ", "Europe/Moscow"),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		JWTAlg:      getenvDefault("JWT_ALG", "HS256"),

		LivenessTokenTTL:   time.Duration(getenvIntDefault("LIVENESS_TOKEN_TTL_SEC", 60)) * time.Second,
		LivenessSessionTTL: time.Duration(getenvIntDefault("LIVENESS_SESSION_TTL_SEC", 25)) * time.Second,

		SubsidyDailyCents: getenvIntDefault("SUBSIDY_DAILY_CENTS", 10_000),
		MaxMealCents:      getenvIntDefault("MAX_MEAL_CENTS", 100_000),
		MaxReceiptCents:   getenvIntDefault("MAX_RECEIPT_CENTS", 50_000),
		FaceDistThreshold: getenvFloatDefault("FACE_DIST_THRESHOLD", 0.52),

		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),

		RedisAddr:    getenvDefault("REDIS_ADDR", "localhost:6379"),
		NATSURL:      getenvDefault("NATS_URL", "nats://localhost:4222"),
		HolidaysPath: getenvDefault("HOLIDAYS_PATH", "config/holidays.yaml"),

		PayLockoutThreshold: getenvIntDefault("PAY_LOCKOUT_THRESHOLD", 5),
		PayLockoutTTL:       time.Duration(getenvIntDefault("PAY_LOCKOUT_TTL_SEC", 900)) * time.Second,

		HTTPAddr: getenvDefault("HTTP_ADDR", ":8080"),
	}

	if cfg.JWTAlg != "HS256" {
		return nil, fmt.Errorf("config: JWT_ALG must be HS256, got %q", cfg.JWTAlg)
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("config: JWT_SECRET is required and must not be empty")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("config: DATABASE_URL is required")
	}

	loc, err := time.LoadLocation(cfg.AppTZ)
	if err != nil {
		return nil, fmt.Errorf("config: invalid APP_TZ %q: %w", cfg.AppTZ, err)
	}
	cfg.Location = loc

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getenvFloatDefault(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}
