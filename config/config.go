package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the process configuration read from the environment.
type Config struct {
	Port     string
	Env      string
	LogLevel string

	CORSAllowedOrigins string

	PresenceSweepInterval time.Duration
	PresenceRetention     time.Duration
	PresenceSweepBatch    int
	TypingTTL             time.Duration
	RoomJoinHistory       int

	WSSendBuffer      int
	WSMaxMessageBytes int

	ShutdownTimeout time.Duration
}

// Load reads an optional .env file and then the environment.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, using environment variables")
	}
	return fromEnv(os.LookupEnv)
}

type lookupFunc func(key string) (string, bool)

func fromEnv(lookup lookupFunc) *Config {
	return &Config{
		Port:     getEnv(lookup, "PORT", "3000"),
		Env:      getEnv(lookup, "APP_ENV", "development"),
		LogLevel: strings.ToLower(getEnv(lookup, "LOG_LEVEL", "info")),

		CORSAllowedOrigins: getEnv(lookup, "CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173"),

		PresenceSweepInterval: getDuration(lookup, "PRESENCE_SWEEP_INTERVAL", 5*time.Minute, false),
		PresenceRetention:     getDuration(lookup, "PRESENCE_RETENTION", 30*time.Minute, false),
		PresenceSweepBatch:    getInt(lookup, "PRESENCE_SWEEP_BATCH", 256, false),
		TypingTTL:             getDuration(lookup, "TYPING_TTL", 10*time.Second, true),
		RoomJoinHistory:       getInt(lookup, "ROOM_JOIN_HISTORY", 20, false),

		WSSendBuffer:      getInt(lookup, "WS_SEND_BUFFER", 256, false),
		WSMaxMessageBytes: getInt(lookup, "WS_MAX_MESSAGE_BYTES", 64*1024, true),

		ShutdownTimeout: getDuration(lookup, "SHUTDOWN_TIMEOUT", 30*time.Second, false),
	}
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(lookup lookupFunc, key, fallback string) string {
	value, ok := lookup(key)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback
	}
	return strings.TrimSpace(value)
}

// getDuration parses a Go duration. Negative values, and zero unless
// allowZero is set, fall back to the default.
func getDuration(lookup lookupFunc, key string, fallback time.Duration, allowZero bool) time.Duration {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil || d < 0 || (d == 0 && !allowZero) {
		log.Printf("[config] Invalid %s=%q, using default %s", key, raw, fallback)
		return fallback
	}
	return d
}

func getInt(lookup lookupFunc, key string, fallback int, allowZero bool) int {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 0 || (n == 0 && !allowZero) {
		log.Printf("[config] Invalid %s=%q, using default %d", key, raw, fallback)
		return fallback
	}
	return n
}
