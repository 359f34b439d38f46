package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds application runtime configuration.
type Config struct {
	Env                 string
	HTTPPort            string
	DatabasePath        string
	DBBusyTimeout       time.Duration
	DBMaxOpenConns      int
	Timezone            string
	Location            *time.Location
	PriceUnitBasis      int64
	MenuTaxRate         decimal.Decimal
	DefaultUserID       int64
	SummaryMaxRangeDays int
	LogLevel            string
	LogFormat           string
	CORSAllowedOrigins  []string
	RateLimitPerMinute  int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	IdleTimeout         time.Duration
	ShutdownTimeout     time.Duration
	RequestTimeout      time.Duration
}

// Load reads environment variables and .env (if present).
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Env:                 getEnv("APP_ENV", "development"),
		HTTPPort:            getEnv("HTTP_PORT", "8080"),
		DatabasePath:        getEnv("DATABASE_PATH", "data/peony_cafe.db"),
		DBBusyTimeout:       getDuration("DB_BUSY_TIMEOUT", 5*time.Second),
		DBMaxOpenConns:      getEnvInt("DB_MAX_OPEN_CONNS", 4),
		Timezone:            getEnv("CAFE_TIMEZONE", "Asia/Tehran"),
		PriceUnitBasis:      int64(getEnvInt("PRICE_UNIT_BASIS", 1000)),
		DefaultUserID:       int64(getEnvInt("DEFAULT_USER_ID", 1)),
		SummaryMaxRangeDays: getEnvInt("SUMMARY_MAX_RANGE_DAYS", 366),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		LogFormat:           getEnv("LOG_FORMAT", "json"),
		CORSAllowedOrigins:  getEnvSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
		RateLimitPerMinute:  getEnvInt("RATE_LIMIT_PER_MINUTE", 200),
		ReadTimeout:         getDuration("HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:        getDuration("HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:         getDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout:     getDuration("HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),
		RequestTimeout:      getDuration("HTTP_REQUEST_TIMEOUT", 60*time.Second),
	}

	if strings.TrimSpace(cfg.DatabasePath) == "" {
		return cfg, errors.New("DATABASE_PATH is required")
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return cfg, fmt.Errorf("load CAFE_TIMEZONE %q: %w", cfg.Timezone, err)
	}
	cfg.Location = loc
	if cfg.PriceUnitBasis <= 0 {
		return cfg, errors.New("PRICE_UNIT_BASIS must be positive")
	}
	rate, err := decimal.NewFromString(getEnv("MENU_TAX_RATE", "0.09"))
	if err != nil {
		return cfg, fmt.Errorf("parse MENU_TAX_RATE: %w", err)
	}
	if rate.IsNegative() {
		return cfg, errors.New("MENU_TAX_RATE must not be negative")
	}
	cfg.MenuTaxRate = rate
	if cfg.SummaryMaxRangeDays <= 0 {
		cfg.SummaryMaxRangeDays = 366
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func getEnvInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvSlice(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func getDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		// Support seconds as integer without suffix.
		if secs, convErr := strconv.Atoi(val); convErr == nil {
			return time.Duration(secs) * time.Second
		}
		return fallback
	}
	return d
}
