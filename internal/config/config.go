package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string
	Env  string

	// Database
	DatabaseURL   string
	MigrationsDir string

	// Redis
	RedisURL string

	// JWT
	JWTSecret string

	// Sessions
	SessionIdleAfter time.Duration

	LogLevel string
}

// TrackerConfig configures the terminal tracker client.
type TrackerConfig struct {
	APIURL      string
	WSURL       string
	APIToken    string
	HTTPTimeout time.Duration

	TickInterval time.Duration
	PollInterval time.Duration

	// Milestone credit policy
	MilestonePointsPerHour float64
	MilestoneMaxPoints     float64

	LogLevel string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	return &Config{
		Port:             getEnvOrDefault("PORT", "8080"),
		Env:              getEnvOrDefault("ENV", "development"),
		DatabaseURL:      mustGetEnv("DATABASE_URL"),
		MigrationsDir:    getEnvOrDefault("MIGRATIONS_DIR", "migrations"),
		RedisURL:         mustGetEnv("REDIS_URL"),
		JWTSecret:        mustGetEnv("JWT_SECRET"),
		SessionIdleAfter: getEnvAsDurationOrDefault("SESSION_IDLE_AFTER", 15*time.Minute),
		LogLevel:         getEnvOrDefault("LOG_LEVEL", "info"),
	}
}

// LoadJWTSecret reads only JWT_SECRET, for commands that sign tokens without
// starting the server.
func LoadJWTSecret() string {
	godotenv.Load()
	return mustGetEnv("JWT_SECRET")
}

func LoadTracker() *TrackerConfig {
	godotenv.Load()

	return &TrackerConfig{
		APIURL:                 getEnvOrDefault("API_URL", "http://localhost:8080/api/v1"),
		WSURL:                  getEnvOrDefault("WS_URL", "ws://localhost:8080/api/v1/ws"),
		APIToken:               mustGetEnv("API_TOKEN"),
		HTTPTimeout:            getEnvAsDurationOrDefault("HTTP_TIMEOUT", 15*time.Second),
		TickInterval:           getEnvAsDurationOrDefault("TICK_INTERVAL", time.Second),
		PollInterval:           getEnvAsDurationOrDefault("POLL_INTERVAL", 10*time.Second),
		MilestonePointsPerHour: getEnvAsFloatOrDefault("MILESTONE_POINTS_PER_HOUR", 10),
		MilestoneMaxPoints:     getEnvAsFloatOrDefault("MILESTONE_MAX_POINTS", 20),
		LogLevel:               getEnvOrDefault("LOG_LEVEL", "warn"),
	}
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvAsFloatOrDefault(key string, defaultVal float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil || f < 0 {
		return defaultVal
	}
	return f
}

// getEnvAsDurationOrDefault accepts Go durations ("90s") or plain seconds.
func getEnvAsDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(val); err == nil && d > 0 {
		return d
	}
	if n := getEnvAsIntOrDefault(key, 0); n > 0 {
		return time.Duration(n) * time.Second
	}
	return defaultVal
}
