package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application configuration.
type Config struct {
	Port     string
	Env      string
	LogLevel string

	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Booking policy
	BookingHorizonDays  int
	RequireConfirmation bool
	SlotLockWait        time.Duration
	SlotLockTTL         time.Duration

	// Expiry sweeper
	PendingTTL    time.Duration
	SweepInterval time.Duration
	SweepBatch    int

	// Outbox delivery
	OutboxBatch    int
	OutboxInterval time.Duration
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		BookingHorizonDays:  getEnvAsInt("BOOKING_HORIZON_DAYS", 30),
		RequireConfirmation: getEnvAsBool("REQUIRE_CONFIRMATION", false),
		SlotLockWait:        getEnvAsDuration("SLOT_LOCK_WAIT", 2*time.Second),
		SlotLockTTL:         getEnvAsDuration("SLOT_LOCK_TTL", 10*time.Second),

		PendingTTL:    getEnvAsDuration("PENDING_TTL", 24*time.Hour),
		SweepInterval: getEnvAsDuration("SWEEP_INTERVAL", time.Hour),
		SweepBatch:    getEnvAsInt("SWEEP_BATCH", 100),

		OutboxBatch:    getEnvAsInt("OUTBOX_BATCH", 25),
		OutboxInterval: getEnvAsDuration("OUTBOX_INTERVAL", 2*time.Second),
	}
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
