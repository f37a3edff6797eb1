package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds application level configuration loaded from environment variables.
type Config struct {
	ServerPort string

	DBDriver         string
	DatabaseURL      string
	DBConnectRetries int
	DBRetryInterval  time.Duration
	ResetDB          bool

	RedisAddr string
	RedisDB   int
	RedisPass string

	JWTSecret string
	TokenTTL  time.Duration

	UploadDir         string
	AllowedExtensions []string
	MaxUploadSize     int64

	CORSOrigins []string

	LateFeePerDay         decimal.Decimal
	OverdueReportSchedule string
	LogLevel              string
	SwaggerHost           string
}

// Load builds Config from environment with sensible defaults.
func Load() *Config {
	return &Config{
		ServerPort:       getEnv("SERVER_PORT", "8080"),
		DBDriver:         strings.ToLower(getEnv("DB_DRIVER", "mysql")),
		DatabaseURL:      getEnv("DATABASE_URL", "bookbase:bookbase@tcp(localhost:3306)/bookbase?charset=utf8mb4&parseTime=True&loc=UTC"),
		DBConnectRetries: getEnvInt("DB_CONNECT_RETRIES", 30),
		DBRetryInterval:  getEnvDuration("DB_RETRY_INTERVAL", 2*time.Second),
		ResetDB:          os.Getenv("RESET_DB") == "true",

		RedisAddr: os.Getenv("REDIS_ADDR"),
		RedisDB:   getEnvInt("REDIS_DB", 0),
		RedisPass: os.Getenv("REDIS_PASSWORD"),

		JWTSecret: getEnv("JWT_SECRET", "change-me"),
		TokenTTL:  getEnvDuration("TOKEN_TTL", 30*time.Minute),

		UploadDir:         getEnv("UPLOAD_DIR", "uploads/capas"),
		AllowedExtensions: getEnvList("ALLOWED_IMAGE_EXTENSIONS", []string{"jpg", "jpeg", "png", "gif"}),
		MaxUploadSize:     int64(getEnvInt("MAX_UPLOAD_SIZE", 5*1024*1024)),

		CORSOrigins: getEnvList("CORS_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),

		LateFeePerDay:         getEnvDecimal("LATE_FEE_PER_DAY", decimal.RequireFromString("0.50")),
		OverdueReportSchedule: getEnv("OVERDUE_REPORT_SCHEDULE", "@daily"),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		SwaggerHost:           os.Getenv("SWAGGER_HOST"),
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvDecimal(key string, def decimal.Decimal) decimal.Decimal {
	if v := os.Getenv(key); v != "" {
		if parsed, err := decimal.NewFromString(v); err == nil {
			return parsed
		}
	}
	return def
}

// getEnvList splits a comma separated value, dropping blanks.
func getEnvList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
