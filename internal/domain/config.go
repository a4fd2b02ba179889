package domain

import (
	"time"
)

// Config holds the complete service configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server" yaml:"server"`

	// Profile selects the backing infrastructure defaults.
	Profile Profile `json:"profile" yaml:"profile"`

	// Chain access
	Solana   SolanaConfig   `json:"solana" yaml:"solana"`
	Analysis AnalysisConfig `json:"analysis" yaml:"analysis"`

	// Component configurations
	Repository RepositoryConfig `json:"repository" yaml:"repository"`
	Cache      CacheConfig      `json:"cache" yaml:"cache"`
	EventBus   EventBusConfig   `json:"eventBus" yaml:"eventBus"`
	RateLimit  RateLimitConfig  `json:"rateLimit" yaml:"rateLimit"`
	Alerts     AlertsConfig     `json:"alerts" yaml:"alerts"`

	// Observability
	Logging LoggingConfig `json:"logging" yaml:"logging"`
	Tracing TracingConfig `json:"tracing" yaml:"tracing"`
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
}

// Profile represents the deployment profile.
type Profile string

const (
	// ProfileDevelopment runs on SQLite, the in-memory cache and channels.
	ProfileDevelopment Profile = "development"

	// ProfileProduction runs on PostgreSQL, Redis and NATS.
	ProfileProduction Profile = "production"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host" yaml:"host"`
	Port         int    `json:"port" yaml:"port"`
	ReadTimeout  int    `json:"readTimeout" yaml:"readTimeout"`   // seconds
	WriteTimeout int    `json:"writeTimeout" yaml:"writeTimeout"` // seconds

	// AllowedOrigins for CORS; "*" allows any origin.
	AllowedOrigins []string `json:"allowedOrigins" yaml:"allowedOrigins"`

	// RequireAPIKey rejects requests without a valid X-API-Key header.
	RequireAPIKey bool `json:"requireApiKey" yaml:"requireApiKey"`

	// ReportCacheTTL is how long a fresh analysis is served from cache.
	ReportCacheTTL time.Duration `json:"reportCacheTtl" yaml:"reportCacheTtl"`
}

// SolanaConfig holds RPC and registry program settings.
type SolanaConfig struct {
	RPCEndpoint string `json:"rpcEndpoint" yaml:"rpcEndpoint"`

	// APIKey is sent in APIKeyHeader when set (hosted RPC providers).
	APIKey       string `json:"-" yaml:"apiKey"`
	APIKeyHeader string `json:"apiKeyHeader" yaml:"apiKeyHeader"`

	// RegistryProgramID is the base58 id of the drainer registry program.
	RegistryProgramID string `json:"registryProgramId" yaml:"registryProgramId"`

	// ProgramAuthority receives the anti-spam fee on report_drainer.
	ProgramAuthority string `json:"programAuthority" yaml:"programAuthority"`

	Commitment string `json:"commitment" yaml:"commitment"`

	// FetchConcurrency caps parallel getTransaction calls.
	FetchConcurrency int `json:"fetchConcurrency" yaml:"fetchConcurrency"`

	// Lookup cache and retry
	PositiveTTL   time.Duration `json:"positiveTtl" yaml:"positiveTtl"`
	NegativeTTL   time.Duration `json:"negativeTtl" yaml:"negativeTtl"`
	LookupRetries int           `json:"lookupRetries" yaml:"lookupRetries"`
}

// AnalysisConfig holds wallet analysis orchestration settings.
type AnalysisConfig struct {
	// TransactionLimit is the number of recent transactions fetched (1-200).
	TransactionLimit int `json:"transactionLimit" yaml:"transactionLimit"`

	// Concurrency caps parallel per-transaction classification.
	Concurrency int `json:"concurrency" yaml:"concurrency"`

	// Timeout is the overall analysis deadline.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// RateLimitConfig holds per-client request limits.
type RateLimitConfig struct {
	Enabled bool          `json:"enabled" yaml:"enabled"`
	Window  time.Duration `json:"window" yaml:"window"`

	// AnonymousLimit applies to callers without an API key (keyed by IP).
	AnonymousLimit int `json:"anonymousLimit" yaml:"anonymousLimit"`

	// KeyedLimit is the default for API keys without their own limit.
	KeyedLimit int `json:"keyedLimit" yaml:"keyedLimit"`
}

// AlertsConfig holds alert worker settings.
type AlertsConfig struct {
	Enabled     bool `json:"enabled" yaml:"enabled"`
	WorkerCount int  `json:"workerCount" yaml:"workerCount"`

	// DefaultPolicy is the CEL expression used when a subscription has none.
	DefaultPolicy string `json:"defaultPolicy" yaml:"defaultPolicy"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`   // debug, info, warn, error
	Format string `json:"format" yaml:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	ServiceName string `json:"serviceName" yaml:"serviceName"`
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"`
}

// DefaultRegistryProgramID is the deployed drainer registry program.
const DefaultRegistryProgramID = "BYbF6QC9PoeHGH4y1pLNC2YHBChpnFBq46vBydyBFxq2"

// DefaultAlertPolicy fires on any wallet that is not SAFE.
const DefaultAlertPolicy = `severity != "SAFE"`

// DefaultConfig returns the development configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			ReadTimeout:    30,
			WriteTimeout:   30,
			AllowedOrigins: []string{"*"},
			ReportCacheTTL: 5 * time.Minute,
		},
		Profile: ProfileDevelopment,
		Solana: SolanaConfig{
			RPCEndpoint:       "https://api.devnet.solana.com",
			APIKeyHeader:      "x-api-key",
			RegistryProgramID: DefaultRegistryProgramID,
			Commitment:        "confirmed",
			FetchConcurrency:  8,
			PositiveTTL:       time.Hour,
			NegativeTTL:       5 * time.Minute,
			LookupRetries:     2,
		},
		Analysis: AnalysisConfig{
			TransactionLimit: 50,
			Concurrency:      8,
			Timeout:          20 * time.Second,
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./haveibeendrained.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		RateLimit: RateLimitConfig{
			Enabled:        true,
			Window:         time.Minute,
			AnonymousLimit: 30,
			KeyedLimit:     300,
		},
		Alerts: AlertsConfig{
			Enabled:       true,
			WorkerCount:   2,
			DefaultPolicy: DefaultAlertPolicy,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "haveibeendrained",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// ProductionConfig returns the production configuration.
func ProductionConfig() *Config {
	cfg := DefaultConfig()
	cfg.Profile = ProfileProduction
	cfg.Solana.RPCEndpoint = "https://api.mainnet-beta.solana.com"
	cfg.Repository = RepositoryConfig{
		Driver:          "postgres",
		PostgresHost:    "localhost",
		PostgresPort:    5432,
		PostgresDB:      "haveibeendrained",
		PostgresSSLMode: "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       time.Minute,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}
