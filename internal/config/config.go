package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port        string
	DatabaseURL string

	DispatchScanInterval   time.Duration
	DispatchBatchSize      int
	EscalationAfter        time.Duration
	EscalationRadiusFactor float64

	RateLimitPerMinute         int
	RateLimitBurst             int
	TrackingRateLimitPerMinute int
	TrackingRateLimitBurst     int

	PollInterval  time.Duration
	PollBatchSize int

	NotifyInterval    time.Duration
	NotifyBatchSize   int
	NotifyMaxAttempts int
	SMSProvider       string
	EmailProvider     string
}

func Load() Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	return Config{
		Port:        port,
		DatabaseURL: os.Getenv("DB_DSN"),

		DispatchScanInterval:   readDurationSeconds("DISPATCH_SCAN_INTERVAL_SECONDS", 10),
		DispatchBatchSize:      readInt("DISPATCH_BATCH_SIZE", 50),
		EscalationAfter:        readDurationSeconds("ESCALATION_AFTER_SECONDS", 300),
		EscalationRadiusFactor: readFloat("ESCALATION_RADIUS_FACTOR", 1.5),

		RateLimitPerMinute:         readInt("RATE_LIMIT_PER_MIN", 120),
		RateLimitBurst:             readInt("RATE_LIMIT_BURST", 30),
		TrackingRateLimitPerMinute: readInt("TRACKING_RATE_LIMIT_PER_MIN", 60),
		TrackingRateLimitBurst:     readInt("TRACKING_RATE_LIMIT_BURST", 20),

		PollInterval:  readDurationSeconds("REALTIME_POLL_INTERVAL_SECONDS", 1),
		PollBatchSize: readInt("REALTIME_POLL_BATCH_SIZE", 100),

		NotifyInterval:    readDurationSeconds("NOTIFY_SCAN_INTERVAL_SECONDS", 5),
		NotifyBatchSize:   readInt("NOTIFY_BATCH_SIZE", 50),
		NotifyMaxAttempts: readInt("NOTIFY_MAX_ATTEMPTS", 3),
		SMSProvider:       os.Getenv("NOTIFY_SMS_PROVIDER"),
		EmailProvider:     os.Getenv("NOTIFY_EMAIL_PROVIDER"),
	}
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

func readFloat(key string, fallback float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return value
}
