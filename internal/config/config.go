package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
)

type Config struct {
	Env  string `validate:"oneof=development production test"`
	Port string `validate:"required,numeric"`

	Store     string `validate:"oneof=redis memory"`
	RedisURL  string `validate:"required_if=Store redis"`
	RedisPass string
	RedisDB   int `validate:"gte=0,lte=15"`

	JWTSecret string        `validate:"required,min=16"`
	JWTTTL    time.Duration `validate:"gt=0"`

	DBType string `validate:"oneof=sqlite postgres"`
	DBConn string `validate:"required"`

	CatalogPath string

	CrashWait     time.Duration `validate:"gt=0"`
	CrashCooldown time.Duration `validate:"gt=0"`
	CrashTick     time.Duration `validate:"gt=0"`

	// cents
	StartBalance int64 `validate:"gte=0"`
	MaxBet       int64 `validate:"gt=0"`

	RateLimitBets int `validate:"gt=0"`
}

var validate = validator.New()

func Load() (*Config, error) {
	var err error
	cfg := &Config{
		Env:         getEnv("ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		Store:       getEnv("STORE", "redis"),
		RedisURL:    getEnv("REDIS_URL", "localhost:6379"),
		RedisPass:   os.Getenv("REDIS_PASSWORD"),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		DBType:      getEnv("DB_TYPE", "sqlite"),
		DBConn:      getEnv("DB_CONN", "casino.db"),
		CatalogPath: os.Getenv("CATALOG_PATH"),
	}

	if cfg.RedisDB, err = getInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.RateLimitBets, err = getInt("RATE_LIMIT_BETS", 30); err != nil {
		return nil, err
	}
	if cfg.JWTTTL, err = getDuration("JWT_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.CrashWait, err = getDuration("CRASH_WAIT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.CrashCooldown, err = getDuration("CRASH_COOLDOWN", 3*time.Second); err != nil {
		return nil, err
	}
	if cfg.CrashTick, err = getDuration("CRASH_TICK", 100*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.StartBalance, err = getInt64("START_BALANCE", 100000); err != nil {
		return nil, err
	}
	if cfg.MaxBet, err = getInt64("MAX_BET", 1000000); err != nil {
		return nil, err
	}

	if cfg.JWTSecret == "" && cfg.Env != "production" {
		cfg.JWTSecret = "development-secret-change-me"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getInt64(key string, fallback int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
