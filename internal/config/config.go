// Package config loads service configuration from defaults, an optional YAML
// file, a .env file and HIBD_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/digitaldrreamer/haveibeendrained-sub003/internal/domain"
	"github.com/gagliardetto/solana-go"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultEnvFile is read from the working directory when present.
const DefaultEnvFile = ".env"

// LookupFunc resolves an environment variable.
type LookupFunc func(key string) (string, bool)

// Load builds the configuration using the process environment.
func Load(path string) (*domain.Config, error) {
	return LoadWith(path, DefaultEnvFile, os.LookupEnv)
}

// LoadWith builds the configuration from an explicit YAML path, .env path and
// environment lookup. Empty paths are skipped. The process environment wins
// over values from the .env file.
func LoadWith(path, envFile string, lookup LookupFunc) (*domain.Config, error) {
	env, err := readEnvFile(envFile)
	if err != nil {
		return nil, err
	}
	get := func(key string) (string, bool) {
		if v, ok := lookup(key); ok {
			return v, true
		}
		v, ok := env[key]
		return v, ok
	}

	var raw []byte
	if path != "" {
		raw, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	profile, err := selectProfile(raw, get)
	if err != nil {
		return nil, err
	}

	cfg := domain.DefaultConfig()
	if profile == domain.ProfileProduction {
		cfg = domain.ProductionConfig()
	}

	if len(raw) > 0 {
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	cfg.Profile = profile

	if err := applyEnv(cfg, get); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readEnvFile(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	env, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read env file: %w", err)
	}
	return env, nil
}

// selectProfile picks the base defaults. HIBD_PROFILE overrides the file.
func selectProfile(raw []byte, get LookupFunc) (domain.Profile, error) {
	profile := domain.ProfileDevelopment
	if len(raw) > 0 {
		var head struct {
			Profile domain.Profile `yaml:"profile"`
		}
		if err := yaml.Unmarshal(raw, &head); err != nil {
			return "", fmt.Errorf("failed to parse config file: %w", err)
		}
		if head.Profile != "" {
			profile = head.Profile
		}
	}
	if v, ok := get("HIBD_PROFILE"); ok && v != "" {
		profile = domain.Profile(strings.ToLower(v))
	}
	switch profile {
	case domain.ProfileDevelopment, domain.ProfileProduction:
		return profile, nil
	default:
		return "", fmt.Errorf("unknown profile: %s", profile)
	}
}

// envBinding maps one variable onto a config field.
type envBinding struct {
	key   string
	apply func(v string) error
}

func applyEnv(cfg *domain.Config, get LookupFunc) error {
	bindings := []envBinding{
		{"HIBD_HOST", setString(&cfg.Server.Host)},
		{"HIBD_PORT", setInt(&cfg.Server.Port)},
		{"HIBD_ALLOWED_ORIGINS", setList(&cfg.Server.AllowedOrigins)},
		{"HIBD_REQUIRE_API_KEY", setBool(&cfg.Server.RequireAPIKey)},
		{"HIBD_REPORT_CACHE_TTL", setDuration(&cfg.Server.ReportCacheTTL)},

		{"HIBD_RPC_ENDPOINT", setString(&cfg.Solana.RPCEndpoint)},
		{"HIBD_RPC_API_KEY", setString(&cfg.Solana.APIKey)},
		{"HIBD_RPC_API_KEY_HEADER", setString(&cfg.Solana.APIKeyHeader)},
		{"HIBD_REGISTRY_PROGRAM_ID", setString(&cfg.Solana.RegistryProgramID)},
		{"HIBD_PROGRAM_AUTHORITY", setString(&cfg.Solana.ProgramAuthority)},
		{"HIBD_COMMITMENT", setString(&cfg.Solana.Commitment)},
		{"HIBD_FETCH_CONCURRENCY", setInt(&cfg.Solana.FetchConcurrency)},
		{"HIBD_LOOKUP_RETRIES", setInt(&cfg.Solana.LookupRetries)},

		{"HIBD_TRANSACTION_LIMIT", setInt(&cfg.Analysis.TransactionLimit)},
		{"HIBD_ANALYSIS_CONCURRENCY", setInt(&cfg.Analysis.Concurrency)},
		{"HIBD_ANALYSIS_TIMEOUT", setDuration(&cfg.Analysis.Timeout)},

		{"HIBD_DB_DRIVER", setString(&cfg.Repository.Driver)},
		{"HIBD_SQLITE_PATH", setString(&cfg.Repository.SQLitePath)},
		{"HIBD_DATABASE_URL", setString(&cfg.Repository.PostgresURL)},
		{"HIBD_POSTGRES_HOST", setString(&cfg.Repository.PostgresHost)},
		{"HIBD_POSTGRES_PORT", setInt(&cfg.Repository.PostgresPort)},
		{"HIBD_POSTGRES_USER", setString(&cfg.Repository.PostgresUser)},
		{"HIBD_POSTGRES_PASSWORD", setString(&cfg.Repository.PostgresPassword)},
		{"HIBD_POSTGRES_DB", setString(&cfg.Repository.PostgresDB)},

		{"HIBD_CACHE_TYPE", setString(&cfg.Cache.Type)},
		{"HIBD_REDIS_ADDR", setString(&cfg.Cache.RedisAddr)},
		{"HIBD_REDIS_PASSWORD", setString(&cfg.Cache.RedisPassword)},
		{"HIBD_REDIS_DB", setInt(&cfg.Cache.RedisDB)},

		{"HIBD_BUS_TYPE", setString(&cfg.EventBus.Type)},
		{"HIBD_NATS_URL", setString(&cfg.EventBus.NATSUrl)},
		{"HIBD_NATS_TOKEN", setString(&cfg.EventBus.NATSToken)},
		{"HIBD_NATS_QUEUE_GROUP", setString(&cfg.EventBus.NATSQueueGroup)},

		{"HIBD_RATE_LIMIT_ENABLED", setBool(&cfg.RateLimit.Enabled)},
		{"HIBD_RATE_LIMIT_ANONYMOUS", setInt(&cfg.RateLimit.AnonymousLimit)},
		{"HIBD_RATE_LIMIT_KEYED", setInt(&cfg.RateLimit.KeyedLimit)},

		{"HIBD_ALERTS_ENABLED", setBool(&cfg.Alerts.Enabled)},
		{"HIBD_ALERT_WORKERS", setInt(&cfg.Alerts.WorkerCount)},
		{"HIBD_ALERT_POLICY", setString(&cfg.Alerts.DefaultPolicy)},

		{"HIBD_LOG_LEVEL", setString(&cfg.Logging.Level)},
		{"HIBD_LOG_FORMAT", setString(&cfg.Logging.Format)},
		{"HIBD_TRACING_ENABLED", setBool(&cfg.Tracing.Enabled)},
		{"HIBD_METRICS_ENABLED", setBool(&cfg.Metrics.Enabled)},
	}

	for _, b := range bindings {
		v, ok := get(b.key)
		if !ok || v == "" {
			continue
		}
		if err := b.apply(v); err != nil {
			return fmt.Errorf("invalid %s: %w", b.key, err)
		}
	}

	// HIBD_DEBUG is a shortcut kept for local runs.
	if v, ok := get("HIBD_DEBUG"); ok && v == "true" {
		cfg.Logging.Level = "debug"
	}
	return nil
}

func setString(dst *string) func(string) error {
	return func(v string) error {
		*dst = v
		return nil
	}
}

func setInt(dst *int) func(string) error {
	return func(v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*dst = n
		return nil
	}
}

func setBool(dst *bool) func(string) error {
	return func(v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*dst = b
		return nil
	}
}

func setDuration(dst *time.Duration) func(string) error {
	return func(v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*dst = d
		return nil
	}
}

func setList(dst *[]string) func(string) error {
	return func(v string) error {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		*dst = out
		return nil
	}
}

// Validate reports every invalid setting at once. An empty RPC endpoint is
// allowed: analyses then fail as misconfigured instead of blocking startup.
func Validate(cfg *domain.Config) error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		add("server.port out of range: %d", cfg.Server.Port)
	}

	if _, err := solana.PublicKeyFromBase58(cfg.Solana.RegistryProgramID); err != nil {
		add("solana.registryProgramId: %v", err)
	}
	if cfg.Solana.ProgramAuthority != "" {
		if _, err := solana.PublicKeyFromBase58(cfg.Solana.ProgramAuthority); err != nil {
			add("solana.programAuthority: %v", err)
		}
	}
	switch cfg.Solana.Commitment {
	case "", "processed", "confirmed", "finalized":
	default:
		add("solana.commitment must be processed, confirmed or finalized: %s", cfg.Solana.Commitment)
	}

	if cfg.Analysis.TransactionLimit < 1 || cfg.Analysis.TransactionLimit > 200 {
		add("analysis.transactionLimit must be between 1 and 200: %d", cfg.Analysis.TransactionLimit)
	}
	if cfg.Analysis.Timeout < 0 {
		add("analysis.timeout must not be negative")
	}

	switch cfg.Repository.Driver {
	case "sqlite", "postgres":
	default:
		add("repository.driver must be sqlite or postgres: %s", cfg.Repository.Driver)
	}
	switch cfg.Cache.Type {
	case "memory", "redis":
	default:
		add("cache.type must be memory or redis: %s", cfg.Cache.Type)
	}
	switch cfg.EventBus.Type {
	case "channel", "nats":
	default:
		add("eventBus.type must be channel or nats: %s", cfg.EventBus.Type)
	}

	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		add("logging.level must be debug, info, warn or error: %s", cfg.Logging.Level)
	}
	switch cfg.Logging.Format {
	case "json", "text":
	default:
		add("logging.format must be json or text: %s", cfg.Logging.Format)
	}

	return errors.Join(errs...)
}
