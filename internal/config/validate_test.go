package config

import (
	"strings"
	"testing"
)

// validConfig returns a minimal configuration that passes validation.
func validConfig() *Config {
	cfg := &Config{}
	cfg.Telegram.Token = "123:abc"
	cfg.Intra.Applications = []Application{{UID: "uid-1", Secret: "sec-1"}}
	cfg.Defaults()
	return cfg
}

func TestValidate_Valid(t *testing.T) {
	t.Parallel()

	if err := Validate(validConfig()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_MissingToken(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Telegram.Token = ""
	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "telegram.token") {
		t.Fatalf("error = %v, want telegram.token complaint", err)
	}
}

func TestValidate_NoApplications(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Intra.Applications = nil
	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "application") {
		t.Fatalf("error = %v, want applications complaint", err)
	}
}

func TestValidate_ApplicationMissingSecret(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Intra.Applications = []Application{{UID: "uid-1"}}
	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "secret") {
		t.Fatalf("error = %v, want secret complaint", err)
	}
}

func TestValidate_InvalidCacheBackend(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Cache.Backend = "memcached"
	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "cache backend") {
		t.Fatalf("error = %v, want backend complaint", err)
	}
}

func TestValidate_RedisBackendNeedsAddr(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Cache.Backend = "redis"
	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "cache.redis.addr") {
		t.Fatalf("error = %v, want redis addr complaint", err)
	}

	cfg.Cache.Redis.Addr = "localhost:6379"
	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error with addr set: %v", err)
	}
}

func TestValidate_TelemetryNeedsEndpoint(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Telemetry.Enabled = true
	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "telemetry.endpoint") {
		t.Fatalf("error = %v, want endpoint complaint", err)
	}
}

func TestValidate_ReportsAllProblemsAtOnce(t *testing.T) {
	t.Parallel()

	cfg := &Config{}
	cfg.Defaults()
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected errors")
	}
	msg := err.Error()
	for _, want := range []string{"telegram.token", "application"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error %q missing %q", msg, want)
		}
	}
}
