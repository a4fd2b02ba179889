// Package domain defines the core interfaces and types for wallet threat detection.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
type Repository interface {
	// Analysis history
	SaveAnalysis(ctx context.Context, analysis *Analysis) error
	GetAnalysis(ctx context.Context, id string) (*Analysis, error)
	ListAnalysesByWallet(ctx context.Context, wallet string, limit int) ([]*Analysis, error)

	// Alert subscriptions
	SaveSubscription(ctx context.Context, sub *AlertSubscription) error
	ListSubscriptionsByWallet(ctx context.Context, wallet string) ([]*AlertSubscription, error)
	DeleteSubscription(ctx context.Context, id string) error
	SaveDelivery(ctx context.Context, delivery *AlertDelivery) error

	// API keys
	SaveAPIKey(ctx context.Context, key *APIKey) error
	GetAPIKeyByHash(ctx context.Context, hash string) (*APIKey, error)

	// Report intents
	SaveReportIntent(ctx context.Context, intent *ReportIntent) error
	ListReportIntents(ctx context.Context, drainer string) ([]*ReportIntent, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// AlertSubscription asks for a notification when a wallet's analysis
// satisfies Policy, a CEL expression.
type AlertSubscription struct {
	ID        string    `json:"id"`
	Wallet    string    `json:"wallet"`
	Email     string    `json:"email"`
	Policy    string    `json:"policy"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"createdAt"`
}

// AlertDelivery records one alert fired for a subscription.
type AlertDelivery struct {
	ID             string    `json:"id"`
	SubscriptionID string    `json:"subscriptionId"`
	AnalysisID     string    `json:"analysisId"`
	Wallet         string    `json:"wallet"`
	Severity       RiskLabel `json:"severity"`
	OverallRisk    int       `json:"overallRisk"`
	Status         string    `json:"status"` // sent, failed
	CreatedAt      time.Time `json:"createdAt"`
}

// APIKey identifies a client. Only the SHA-256 hash of the raw key is stored.
type APIKey struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	KeyHash           string    `json:"-"`
	Tier              string    `json:"tier"`
	RequestsPerMinute int       `json:"requestsPerMinute"`
	Enabled           bool      `json:"enabled"`
	CreatedAt         time.Time `json:"createdAt"`
}

// ReportIntent records a prepared report_drainer instruction.
// The instruction itself is signed and broadcast elsewhere.
type ReportIntent struct {
	ID        string    `json:"id"`
	Drainer   string    `json:"drainer"`
	Reporter  string    `json:"reporter"`
	Lamports  *uint64   `json:"lamports,omitempty"`
	PDA       string    `json:"pda"`
	CreatedAt time.Time `json:"createdAt"`
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `json:"driver" yaml:"driver"`

	// SQLite specific
	SQLitePath string `json:"sqlitePath" yaml:"sqlitePath"`

	// PostgreSQL specific. PostgresURL overrides the individual fields.
	PostgresURL      string `json:"-" yaml:"postgresUrl"`
	PostgresHost     string `json:"postgresHost" yaml:"postgresHost"`
	PostgresPort     int    `json:"postgresPort" yaml:"postgresPort"`
	PostgresUser     string `json:"postgresUser" yaml:"postgresUser"`
	PostgresPassword string `json:"-" yaml:"postgresPassword"`
	PostgresDB       string `json:"postgresDb" yaml:"postgresDb"`
	PostgresSSLMode  string `json:"postgresSslMode" yaml:"postgresSslMode"`

	// Connection pool settings
	MaxOpenConns    int           `json:"maxOpenConns" yaml:"maxOpenConns"`
	MaxIdleConns    int           `json:"maxIdleConns" yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `json:"connMaxLifetime" yaml:"connMaxLifetime"`
}
