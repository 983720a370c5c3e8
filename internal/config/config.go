// Package config loads all runtime settings from environment
// variables. Required settings fail loading with an error naming the
// variable; everything else carries a sane default.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Scheduler SchedulerConfig
	Telegram  TelegramConfig
	Messages  MessagesConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Address string
}

type DatabaseConfig struct {
	PostgresURL string
}

type RedisConfig struct {
	Enabled  bool
	Address  string
	Password string
	DB       int
	TTL      time.Duration
}

type SchedulerConfig struct {
	Interval    time.Duration
	BatchSize   int
	Concurrency int
	MaxRetries  int
}

type TelegramConfig struct {
	Token       string
	SendTimeout time.Duration
	RatePerSec  int
}

type MessagesConfig struct {
	ContentMax        int
	DefaultTimezone   string
	DefaultMaxPending int
}

type LoggingConfig struct {
	Level  string
	Format string
}

func LoadAll() (*Config, error) {
	var errs []error

	collect := func(key string, def int) int {
		v, err := getEnvInt(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}

	postgresURL, err := requireEnv("POSTGRES_URL")
	if err != nil {
		errs = append(errs, err)
	}
	token, err := requireEnv("TELEGRAM_TOKEN")
	if err != nil {
		errs = append(errs, err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Address: getEnv("SERVER_ADDRESS", ":8080"),
		},
		Database: DatabaseConfig{
			PostgresURL: postgresURL,
		},
		Scheduler: SchedulerConfig{
			Interval:    time.Duration(collect("SCHED_INTERVAL_SECONDS", 60)) * time.Second,
			BatchSize:   collect("SCHED_BATCH_SIZE", 100),
			Concurrency: collect("SCHED_CONCURRENCY", 4),
			MaxRetries:  collect("MAX_RETRY_ATTEMPTS", 3),
		},
		Telegram: TelegramConfig{
			Token:       token,
			SendTimeout: time.Duration(collect("SEND_TIMEOUT_SECONDS", 10)) * time.Second,
			RatePerSec:  collect("SEND_RATE_PER_SEC", 25),
		},
		Messages: MessagesConfig{
			ContentMax:        collect("CONTENT_MAX", 4096),
			DefaultTimezone:   getEnv("DEFAULT_TIMEZONE", "UTC"),
			DefaultMaxPending: collect("DEFAULT_MAX_PENDING", 10),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
	}

	redisCfg, redisErrs := loadRedisConfig()
	cfg.Redis = redisCfg
	errs = append(errs, redisErrs...)

	errs = append(errs, validate(cfg)...)

	if err := joinErrors(errs); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadRedisConfig() (RedisConfig, []error) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return RedisConfig{Enabled: false}, nil
	}

	var errs []error
	db, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		errs = append(errs, err)
	}
	ttl, err := getEnvInt("REDIS_TTL_SECONDS", 86400)
	if err != nil {
		errs = append(errs, err)
	}

	return RedisConfig{
		Enabled:  true,
		Address:  addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       db,
		TTL:      time.Duration(ttl) * time.Second,
	}, errs
}

func validate(cfg *Config) []error {
	var errs []error
	if cfg.Scheduler.BatchSize <= 0 {
		errs = append(errs, errors.New("SCHED_BATCH_SIZE must be > 0"))
	}
	if cfg.Scheduler.Interval <= 0 {
		errs = append(errs, errors.New("SCHED_INTERVAL_SECONDS must be > 0"))
	}
	if cfg.Scheduler.Concurrency <= 0 {
		errs = append(errs, errors.New("SCHED_CONCURRENCY must be > 0"))
	}
	if cfg.Scheduler.MaxRetries < 0 {
		errs = append(errs, errors.New("MAX_RETRY_ATTEMPTS must be >= 0"))
	}
	if cfg.Telegram.SendTimeout <= 0 {
		errs = append(errs, errors.New("SEND_TIMEOUT_SECONDS must be > 0"))
	}
	if cfg.Telegram.RatePerSec <= 0 {
		errs = append(errs, errors.New("SEND_RATE_PER_SEC must be > 0"))
	}
	if cfg.Messages.ContentMax <= 0 {
		errs = append(errs, errors.New("CONTENT_MAX must be > 0"))
	}
	if cfg.Messages.DefaultMaxPending <= 0 {
		errs = append(errs, errors.New("DEFAULT_MAX_PENDING must be > 0"))
	}
	if _, err := time.LoadLocation(cfg.Messages.DefaultTimezone); err != nil {
		errs = append(errs, fmt.Errorf("DEFAULT_TIMEZONE is not a valid IANA zone: %q", cfg.Messages.DefaultTimezone))
	}
	return errs
}

func requireEnv(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("missing required env var: %s", key)
	}
	return val, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid int for env %s: %q", key, v)
	}
	return i, nil
}

func joinErrors(errs []error) error {
	return errors.Join(errs...)
}
