package config

import (
	"os"
	"time"
)

// Server captures process-level configuration. All values come from the
// environment so main stays lean.
type Server struct {
	Addr           string
	DatabaseURL    string
	RedisURL       string
	SessionTTL     time.Duration
	ConfigCacheTTL time.Duration
	RequestTimeout time.Duration

	// DevMode enables development conveniences: the logging OTP sender and
	// the debug code echo. Never enable in production.
	DevMode bool
}

// FromEnv builds a Server config from environment variables.
func FromEnv() Server {
	cfg := Server{
		Addr:           getEnv("KEYLINE_ADDR", ":8080"),
		DatabaseURL:    os.Getenv("KEYLINE_DATABASE_URL"),
		RedisURL:       os.Getenv("KEYLINE_REDIS_URL"),
		SessionTTL:     getDuration("KEYLINE_SESSION_TTL", 7*24*time.Hour),
		ConfigCacheTTL: getDuration("KEYLINE_CONFIG_CACHE_TTL", 30*time.Second),
		RequestTimeout: getDuration("KEYLINE_REQUEST_TIMEOUT", 15*time.Second),
		DevMode:        os.Getenv("KEYLINE_DEV_MODE") == "true",
	}
	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
