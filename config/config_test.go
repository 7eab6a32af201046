package config

import (
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

const testSecret = "config-test-secret-long-enough-for-hs256"

func TestLoadConfigRequiresSecret(t *testing.T) {
	t.Setenv("ROOMIFY_JWT_SECRET", "   ")

	_, err := LoadConfig()
	if !errors.Is(err, ErrMissingSecret) {
		t.Fatalf("expected ErrMissingSecret, got %v", err)
	}

	if _, err := LoadConfig(WithoutSecret()); err != nil {
		t.Fatalf("expected tooling config to load without a secret, got %v", err)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("ROOMIFY_JWT_SECRET", testSecret)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Auth.TokenTTL != 24*time.Hour {
		t.Fatalf("unexpected ttl %v", cfg.Auth.TokenTTL)
	}
	if cfg.Auth.LockoutThreshold != 5 || cfg.Auth.LockoutDuration != 30*time.Minute {
		t.Fatalf("unexpected lockout policy %d/%v", cfg.Auth.LockoutThreshold, cfg.Auth.LockoutDuration)
	}
	if cfg.Auth.EnforceActive {
		t.Fatalf("active enforcement must be off by default")
	}
	if cfg.Audit.Backend != "db" || cfg.Audit.Timeout != 3*time.Second {
		t.Fatalf("unexpected audit config %+v", cfg.Audit)
	}
	if cfg.Log.Level != slog.LevelInfo {
		t.Fatalf("unexpected log level %v", cfg.Log.Level)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("ROOMIFY_JWT_SECRET", testSecret)
	t.Setenv("ROOMIFY_JWT_TTL", "15m")
	t.Setenv("AUTH_LOCKOUT_THRESHOLD", "3")
	t.Setenv("AUTH_LOCKOUT_DURATION", "2s")
	t.Setenv("AUTH_ENFORCE_ACTIVE", "true")
	t.Setenv("AUDIT_BACKEND", "RabbitMQ")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Auth.TokenTTL != 15*time.Minute || cfg.Auth.LockoutThreshold != 3 || cfg.Auth.LockoutDuration != 2*time.Second {
		t.Fatalf("overrides not applied: %+v", cfg.Auth)
	}
	if !cfg.Auth.EnforceActive || cfg.Audit.Backend != "rabbitmq" || cfg.Log.Level != slog.LevelDebug {
		t.Fatalf("overrides not applied: %+v %+v %v", cfg.Auth, cfg.Audit, cfg.Log.Level)
	}
}

func TestLoadConfigReportsEveryBadValue(t *testing.T) {
	t.Setenv("ROOMIFY_JWT_SECRET", testSecret)
	t.Setenv("ROOMIFY_JWT_TTL", "forever")
	t.Setenv("AUTH_LOCKOUT_THRESHOLD", "five")
	t.Setenv("AUDIT_BACKEND", "kafka")

	_, err := LoadConfig()
	if err == nil {
		t.Fatalf("expected error")
	}
	for _, key := range []string{"ROOMIFY_JWT_TTL", "AUTH_LOCKOUT_THRESHOLD", "AUDIT_BACKEND"} {
		if !strings.Contains(err.Error(), key) {
			t.Fatalf("expected error to mention %s, got %v", key, err)
		}
	}
}

func TestLoadConfigRejectsShortSecret(t *testing.T) {
	t.Setenv("ROOMIFY_JWT_SECRET", "a")

	_, err := LoadConfig()
	if !errors.Is(err, ErrWeakSecret) {
		t.Fatalf("expected ErrWeakSecret, got %v", err)
	}

	t.Setenv("ROOMIFY_JWT_SECRET", strings.Repeat("k", MinSecretLength))
	if _, err := LoadConfig(); err != nil {
		t.Fatalf("expected a %d byte secret to load, got %v", MinSecretLength, err)
	}
}
