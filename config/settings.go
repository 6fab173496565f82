package config

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// Settings is the single configuration structure for the whole process.
// Every environment variable the backend reads is enumerated here once;
// development/test/production differ only in the values, never in shape.
type Settings struct {
	APIPort string
	Env     string // "development" | "test" | "production"

	DBUser     string
	DBPassword string
	DBHost     string
	DBPort     string
	DBName     string

	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration
	DBConnMaxIdleTime time.Duration

	RedisAddress string

	CORSAllowedOrigins []string

	// Year range covered by the YearWeek backfill (inclusive).
	StartYear int
	EndYear   int

	CacheLifespan  time.Duration
	SkipMigrations bool
}

var (
	settings     *Settings
	settingsOnce sync.Once
)

func init() {
	// Load env from .env (no-op when the file is absent).
	godotenv.Load()
}

func GetSettings() *Settings {
	settingsOnce.Do(func() {
		settings = loadSettings()
	})
	return settings
}

func loadSettings() *Settings {
	return &Settings{
		APIPort: stringFromEnv("API_PORT", "8080"),
		Env:     stringFromEnv("GO_ENV", "development"),

		DBUser:     stringFromEnv("DB_USER", "root"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBHost:     stringFromEnv("DB_HOST", "127.0.0.1"),
		DBPort:     stringFromEnv("DB_PORT", "3306"),
		DBName:     stringFromEnv("DB_NAME", "trs"),

		DBMaxOpenConns:    intFromEnv("DB_MAX_OPEN_CONNS", 50),
		DBMaxIdleConns:    intFromEnv("DB_MAX_IDLE_CONNS", 25),
		DBConnMaxLifetime: time.Duration(intFromEnv("DB_CONN_MAX_LIFETIME_SECONDS", 300)) * time.Second,
		DBConnMaxIdleTime: time.Duration(intFromEnv("DB_CONN_MAX_IDLE_TIME_SECONDS", 60)) * time.Second,

		RedisAddress: stringFromEnv("REDIS_ADDRESS", "localhost:6379"),

		CORSAllowedOrigins: splitAndTrim(os.Getenv("CORS_ALLOWED_ORIGINS")),

		StartYear: intFromEnv("TRS_START_YEAR", 2000),
		EndYear:   intFromEnv("TRS_END_YEAR", time.Now().Year()+3),

		CacheLifespan:  time.Duration(intFromEnv("CACHE_LIFESPAN", 1)) * time.Hour,
		SkipMigrations: boolFromEnv("SKIP_MIGRATIONS"),
	}
}

func (s *Settings) IsProduction() bool {
	return strings.EqualFold(s.Env, "production")
}

func stringFromEnv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func intFromEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func boolFromEnv(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
