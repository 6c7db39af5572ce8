package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port                      string
	DatabaseURL               string
	DispatchPollInterval      time.Duration
	DispatchBatchSize         int
	DefaultPaymentMethod      string
	RateLimitPerMinute        int
	RateLimitBurst            int
	SessionRateLimitPerMinute int
	SessionRateLimitBurst     int
}

func Load() Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	return Config{
		Port:                      port,
		DatabaseURL:               os.Getenv("DB_DSN"),
		DispatchPollInterval:      readDurationMillis("DISPATCH_POLL_INTERVAL_MS", 200),
		DispatchBatchSize:         readInt("DISPATCH_BATCH_SIZE", 100),
		DefaultPaymentMethod:      readString("DEFAULT_PAYMENT_METHOD", "cash"),
		RateLimitPerMinute:        readInt("RATE_LIMIT_PER_MIN", 120),
		RateLimitBurst:            readInt("RATE_LIMIT_BURST", 30),
		SessionRateLimitPerMinute: readInt("SESSION_RATE_LIMIT_PER_MIN", 600),
		SessionRateLimitBurst:     readInt("SESSION_RATE_LIMIT_BURST", 120),
	}
}

func readString(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func readDurationMillis(key string, fallback int) time.Duration {
	value := readInt(key, fallback)
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Millisecond
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
