package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/digitaldrreamer/haveibeendrained-sub003/internal/domain"
)

func envMap(m map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestLoad(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		cfg, err := LoadWith("", "", envMap(nil))
		if err != nil {
			t.Fatalf("LoadWith failed: %v", err)
		}
		if cfg.Profile != domain.ProfileDevelopment {
			t.Errorf("expected development profile, got %s", cfg.Profile)
		}
		if cfg.Repository.Driver != "sqlite" {
			t.Errorf("expected sqlite, got %s", cfg.Repository.Driver)
		}
		if cfg.Analysis.TransactionLimit != 50 {
			t.Errorf("expected transaction limit 50, got %d", cfg.Analysis.TransactionLimit)
		}
	})

	t.Run("YAMLOverlay", func(t *testing.T) {
		path := writeFile(t, "config.yaml", `
server:
  port: 9090
analysis:
  transactionLimit: 120
  timeout: 45s
cache:
  localMaxSize: 500
`)
		cfg, err := LoadWith(path, "", envMap(nil))
		if err != nil {
			t.Fatalf("LoadWith failed: %v", err)
		}
		if cfg.Server.Port != 9090 {
			t.Errorf("expected port 9090, got %d", cfg.Server.Port)
		}
		if cfg.Analysis.TransactionLimit != 120 {
			t.Errorf("expected limit 120, got %d", cfg.Analysis.TransactionLimit)
		}
		if cfg.Analysis.Timeout != 45*time.Second {
			t.Errorf("expected timeout 45s, got %v", cfg.Analysis.Timeout)
		}
		if cfg.Cache.Type != "memory" {
			t.Errorf("expected untouched cache type, got %s", cfg.Cache.Type)
		}
	})

	t.Run("ProductionProfileFromFile", func(t *testing.T) {
		path := writeFile(t, "config.yaml", "profile: production\n")
		cfg, err := LoadWith(path, "", envMap(nil))
		if err != nil {
			t.Fatalf("LoadWith failed: %v", err)
		}
		if cfg.Repository.Driver != "postgres" {
			t.Errorf("expected postgres, got %s", cfg.Repository.Driver)
		}
		if cfg.EventBus.Type != "nats" {
			t.Errorf("expected nats, got %s", cfg.EventBus.Type)
		}
	})

	t.Run("EnvOverridesFile", func(t *testing.T) {
		path := writeFile(t, "config.yaml", "server:\n  port: 9090\n")
		cfg, err := LoadWith(path, "", envMap(map[string]string{
			"HIBD_PORT":             "7070",
			"HIBD_ANALYSIS_TIMEOUT": "5s",
			"HIBD_ALLOWED_ORIGINS":  "https://a.example, https://b.example",
			"HIBD_REQUIRE_API_KEY":  "true",
			"HIBD_DEBUG":            "true",
		}))
		if err != nil {
			t.Fatalf("LoadWith failed: %v", err)
		}
		if cfg.Server.Port != 7070 {
			t.Errorf("expected port 7070, got %d", cfg.Server.Port)
		}
		if cfg.Analysis.Timeout != 5*time.Second {
			t.Errorf("expected timeout 5s, got %v", cfg.Analysis.Timeout)
		}
		if len(cfg.Server.AllowedOrigins) != 2 || cfg.Server.AllowedOrigins[1] != "https://b.example" {
			t.Errorf("unexpected origins: %v", cfg.Server.AllowedOrigins)
		}
		if !cfg.Server.RequireAPIKey {
			t.Error("expected RequireAPIKey")
		}
		if cfg.Logging.Level != "debug" {
			t.Errorf("expected debug level, got %s", cfg.Logging.Level)
		}
	})

	t.Run("DotEnvFile", func(t *testing.T) {
		envFile := writeFile(t, ".env", "HIBD_RPC_ENDPOINT=https://rpc.example\nHIBD_PORT=6060\n")
		cfg, err := LoadWith("", envFile, envMap(map[string]string{"HIBD_PORT": "5050"}))
		if err != nil {
			t.Fatalf("LoadWith failed: %v", err)
		}
		if cfg.Solana.RPCEndpoint != "https://rpc.example" {
			t.Errorf("expected endpoint from .env, got %s", cfg.Solana.RPCEndpoint)
		}
		if cfg.Server.Port != 5050 {
			t.Errorf("expected process env to win, got %d", cfg.Server.Port)
		}
	})

	t.Run("MissingDotEnvIgnored", func(t *testing.T) {
		if _, err := LoadWith("", filepath.Join(t.TempDir(), ".env"), envMap(nil)); err != nil {
			t.Errorf("expected missing .env to be ignored, got %v", err)
		}
	})

	t.Run("InvalidEnvValue", func(t *testing.T) {
		_, err := LoadWith("", "", envMap(map[string]string{"HIBD_PORT": "eighty"}))
		if err == nil || !strings.Contains(err.Error(), "HIBD_PORT") {
			t.Errorf("expected HIBD_PORT error, got %v", err)
		}
	})

	t.Run("UnknownProfile", func(t *testing.T) {
		if _, err := LoadWith("", "", envMap(map[string]string{"HIBD_PROFILE": "staging"})); err == nil {
			t.Error("expected error for unknown profile")
		}
	})

	t.Run("MissingFile", func(t *testing.T) {
		if _, err := LoadWith("/nonexistent/config.yaml", "", envMap(nil)); err == nil {
			t.Error("expected error for missing config file")
		}
	})
}

func TestValidate(t *testing.T) {
	t.Run("DefaultsAreValid", func(t *testing.T) {
		if err := Validate(domain.DefaultConfig()); err != nil {
			t.Errorf("expected defaults to validate, got %v", err)
		}
		if err := Validate(domain.ProductionConfig()); err != nil {
			t.Errorf("expected production defaults to validate, got %v", err)
		}
	})

	t.Run("EmptyEndpointAllowed", func(t *testing.T) {
		cfg := domain.DefaultConfig()
		cfg.Solana.RPCEndpoint = ""
		if err := Validate(cfg); err != nil {
			t.Errorf("expected empty endpoint to validate, got %v", err)
		}
	})

	t.Run("ReportsAllErrors", func(t *testing.T) {
		cfg := domain.DefaultConfig()
		cfg.Server.Port = 0
		cfg.Solana.RegistryProgramID = "not-a-key"
		cfg.Analysis.TransactionLimit = 500
		cfg.Cache.Type = "memcached"

		err := Validate(cfg)
		if err == nil {
			t.Fatal("expected validation error")
		}
		for _, want := range []string{"server.port", "registryProgramId", "transactionLimit", "cache.type"} {
			if !strings.Contains(err.Error(), want) {
				t.Errorf("expected error to mention %s, got %v", want, err)
			}
		}
	})
}
