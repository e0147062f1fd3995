package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

var envKeys = []string{
	"DATABASE_URL", "HTTP_ADDR", "REDIS_URL", "KAFKA_BROKERS", "JWT_SECRET",
	"LEDGER_ADMIN", "FEE_RECIPIENT", "MEDIATOR_CACHE_TTL_SECONDS",
	"OUTBOX_POLL_SECONDS", "OUTBOX_BATCH_SIZE", "LEDGER_ADMIN_PASSWORD",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/leaseflow")
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" || cfg.LedgerAdmin != "ST1ADMIN" || cfg.FeeRecipient != "ST1FEEHANDLER" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.MediatorCacheTTL != time.Minute || cfg.OutboxPollInterval != 2*time.Second || cfg.OutboxBatchSize != 100 {
		t.Fatalf("unexpected default durations %+v", cfg)
	}
	if cfg.RedisURL != "" || len(cfg.KafkaBrokers) != 0 {
		t.Fatalf("optional dependencies should default to disabled")
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, `
http:
  addr: ":9000"
dependencies:
  postgres_url: postgres://file/db
  redis_url: redis://file:6379/0
  kafka_brokers: [file-1:9092]
auth:
  jwt_secret: file-secret
ledger:
  admin: ST1FILEADMIN
mediator:
  cache_ttl_seconds: 30
outbox:
  batch_size: 10
  max_attempts: 3
  topics:
    resolution.proposed: leaseflow.resolutions
`)
	t.Setenv("KAFKA_BROKERS", "k1:9092, ,k2:9092")
	t.Setenv("OUTBOX_BATCH_SIZE", "25")
	t.Setenv("MEDIATOR_CACHE_TTL_SECONDS", "not-a-number")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":9000" || cfg.DatabaseURL != "postgres://file/db" || cfg.JWTSecret != "file-secret" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.LedgerAdmin != "ST1FILEADMIN" || cfg.OutboxMaxAttempts != 3 {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Fatalf("expected env brokers, got %v", cfg.KafkaBrokers)
	}
	if cfg.OutboxBatchSize != 25 {
		t.Fatalf("expected env batch size, got %d", cfg.OutboxBatchSize)
	}
	if cfg.MediatorCacheTTL != 30*time.Second {
		t.Fatalf("invalid env should keep file ttl, got %v", cfg.MediatorCacheTTL)
	}
	if cfg.KafkaTopics["resolution.proposed"] != "leaseflow.resolutions" {
		t.Fatalf("expected topic remap, got %v", cfg.KafkaTopics)
	}
}

func TestLoad_Validation(t *testing.T) {
	clearEnv(t)
	if _, err := Load(""); err == nil {
		t.Fatal("expected error without DATABASE_URL")
	}

	t.Setenv("DATABASE_URL", "postgres://x")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error without JWT_SECRET")
	}

	t.Setenv("JWT_SECRET", "s")
	t.Setenv("FEE_RECIPIENT", "ST1ADMIN")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error when admin and fee recipient match")
	}

	if _, err := Load(writeFile(t, "http: [")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoad_RejectsNonPositiveCacheTTL(t *testing.T) {
	for _, raw := range []string{"0", "-30"} {
		clearEnv(t)
		t.Setenv("DATABASE_URL", "postgres://x")
		t.Setenv("JWT_SECRET", "s")
		t.Setenv("MEDIATOR_CACHE_TTL_SECONDS", raw)
		if _, err := Load(""); err == nil {
			t.Fatalf("expected error for cache ttl %s", raw)
		}
	}
}

func TestLoad_AdminPassword(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://x")
	t.Setenv("JWT_SECRET", "s")

	cfg, err := Load(writeFile(t, "ledger:\n  admin_password: from-file\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LedgerAdminPassword != "from-file" {
		t.Fatalf("expected file password, got %q", cfg.LedgerAdminPassword)
	}

	t.Setenv("LEDGER_ADMIN_PASSWORD", "from-env")
	cfg, err = Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LedgerAdminPassword != "from-env" {
		t.Fatalf("expected env password, got %q", cfg.LedgerAdminPassword)
	}
}
