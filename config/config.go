package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the resolved runtime configuration of the api process.
type Config struct {
	HTTPAddr    string
	DatabaseURL string
	MaxDBConns  int32
	RedisURL    string

	KafkaBrokers []string
	KafkaTopics  map[string]string

	JWTSecret string

	LedgerAdmin  string
	FeeRecipient string
	// LedgerAdminPassword, when set, provisions the admin principal at startup.
	LedgerAdminPassword string

	MediatorCacheTTL   time.Duration
	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
}

type configFile struct {
	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`
	Dependencies struct {
		PostgresURL  string   `yaml:"postgres_url"`
		MaxDBConns   int32    `yaml:"max_db_conns"`
		RedisURL     string   `yaml:"redis_url"`
		KafkaBrokers []string `yaml:"kafka_brokers"`
	} `yaml:"dependencies"`
	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"auth"`
	Ledger struct {
		Admin         string `yaml:"admin"`
		AdminPassword string `yaml:"admin_password"`
		FeeRecipient  string `yaml:"fee_recipient"`
	} `yaml:"ledger"`
	Mediator struct {
		CacheTTLSeconds int `yaml:"cache_ttl_seconds"`
	} `yaml:"mediator"`
	Outbox struct {
		PollSeconds int               `yaml:"poll_seconds"`
		BatchSize   int               `yaml:"batch_size"`
		MaxAttempts int               `yaml:"max_attempts"`
		Topics      map[string]string `yaml:"topics"`
	} `yaml:"outbox"`
}

// Load resolves configuration in priority order: defaults, file, env. A
// missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Config{
		HTTPAddr:           ":8080",
		MaxDBConns:         20,
		LedgerAdmin:        "ST1ADMIN",
		FeeRecipient:       "ST1FEEHANDLER",
		MediatorCacheTTL:   time.Minute,
		OutboxPollInterval: 2 * time.Second,
		OutboxBatchSize:    100,
		OutboxMaxAttempts:  5,
	}

	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := applyFile(&cfg, raw); err != nil {
				return Config{}, err
			}
		case errors.Is(err, fs.ErrNotExist):
		default:
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	cfg.DatabaseURL = envOrDefault("DATABASE_URL", cfg.DatabaseURL)
	cfg.HTTPAddr = envOrDefault("HTTP_ADDR", cfg.HTTPAddr)
	cfg.RedisURL = envOrDefault("REDIS_URL", cfg.RedisURL)
	cfg.KafkaBrokers = envCSV("KAFKA_BROKERS", cfg.KafkaBrokers)
	cfg.JWTSecret = envOrDefault("JWT_SECRET", cfg.JWTSecret)
	cfg.LedgerAdmin = envOrDefault("LEDGER_ADMIN", cfg.LedgerAdmin)
	cfg.LedgerAdminPassword = envOrDefault("LEDGER_ADMIN_PASSWORD", cfg.LedgerAdminPassword)
	cfg.FeeRecipient = envOrDefault("FEE_RECIPIENT", cfg.FeeRecipient)
	cfg.MediatorCacheTTL = time.Duration(envInt("MEDIATOR_CACHE_TTL_SECONDS", int(cfg.MediatorCacheTTL.Seconds()))) * time.Second
	cfg.OutboxPollInterval = time.Duration(envInt("OUTBOX_POLL_SECONDS", int(cfg.OutboxPollInterval.Seconds()))) * time.Second
	cfg.OutboxBatchSize = envInt("OUTBOX_BATCH_SIZE", cfg.OutboxBatchSize)

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("config: missing DATABASE_URL")
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("config: missing JWT_SECRET")
	}
	if cfg.MediatorCacheTTL <= 0 {
		return Config{}, fmt.Errorf("config: MEDIATOR_CACHE_TTL_SECONDS must be positive")
	}
	if cfg.LedgerAdmin == cfg.FeeRecipient {
		return Config{}, fmt.Errorf("config: admin and fee recipient must differ")
	}
	return cfg, nil
}

func applyFile(cfg *Config, raw []byte) error {
	var f configFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("config: parse file: %w", err)
	}
	if f.HTTP.Addr != "" {
		cfg.HTTPAddr = f.HTTP.Addr
	}
	if f.Dependencies.PostgresURL != "" {
		cfg.DatabaseURL = f.Dependencies.PostgresURL
	}
	if f.Dependencies.MaxDBConns > 0 {
		cfg.MaxDBConns = f.Dependencies.MaxDBConns
	}
	if f.Dependencies.RedisURL != "" {
		cfg.RedisURL = f.Dependencies.RedisURL
	}
	if len(f.Dependencies.KafkaBrokers) > 0 {
		cfg.KafkaBrokers = f.Dependencies.KafkaBrokers
	}
	if f.Auth.JWTSecret != "" {
		cfg.JWTSecret = f.Auth.JWTSecret
	}
	if f.Ledger.Admin != "" {
		cfg.LedgerAdmin = f.Ledger.Admin
	}
	if f.Ledger.AdminPassword != "" {
		cfg.LedgerAdminPassword = f.Ledger.AdminPassword
	}
	if f.Ledger.FeeRecipient != "" {
		cfg.FeeRecipient = f.Ledger.FeeRecipient
	}
	if f.Mediator.CacheTTLSeconds > 0 {
		cfg.MediatorCacheTTL = time.Duration(f.Mediator.CacheTTLSeconds) * time.Second
	}
	if f.Outbox.PollSeconds > 0 {
		cfg.OutboxPollInterval = time.Duration(f.Outbox.PollSeconds) * time.Second
	}
	if f.Outbox.BatchSize > 0 {
		cfg.OutboxBatchSize = f.Outbox.BatchSize
	}
	if f.Outbox.MaxAttempts > 0 {
		cfg.OutboxMaxAttempts = f.Outbox.MaxAttempts
	}
	if len(f.Outbox.Topics) > 0 {
		cfg.KafkaTopics = f.Outbox.Topics
	}
	return nil
}

func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

// envInt falls back on empty or invalid values.
func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func envCSV(name string, fallback []string) []string {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	parts := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	if len(parts) == 0 {
		return fallback
	}
	return parts
}
