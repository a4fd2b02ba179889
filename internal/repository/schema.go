package repository

// Schema definitions for the analysis store.
// Compatible with both SQLite and PostgreSQL.

const schemaAnalyses = `
CREATE TABLE IF NOT EXISTS analyses (
    id TEXT PRIMARY KEY,
    wallet TEXT NOT NULL,
    phase TEXT NOT NULL,
    severity TEXT,
    overall_risk INTEGER NOT NULL DEFAULT 0,
    partial INTEGER NOT NULL DEFAULT 0,
    lookup_failures INTEGER NOT NULL DEFAULT 0,
    transaction_count INTEGER NOT NULL DEFAULT 0,
    payload TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_analyses_wallet ON analyses(wallet, created_at);
CREATE INDEX IF NOT EXISTS idx_analyses_severity ON analyses(severity);
`

const schemaAlertSubscriptions = `
CREATE TABLE IF NOT EXISTS alert_subscriptions (
    id TEXT PRIMARY KEY,
    wallet TEXT NOT NULL,
    email TEXT NOT NULL,
    policy TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_alert_subscriptions_wallet ON alert_subscriptions(wallet, enabled);
`

const schemaAlertDeliveries = `
CREATE TABLE IF NOT EXISTS alert_deliveries (
    id TEXT PRIMARY KEY,
    subscription_id TEXT NOT NULL,
    analysis_id TEXT NOT NULL,
    wallet TEXT NOT NULL,
    severity TEXT NOT NULL,
    overall_risk INTEGER NOT NULL,
    status TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_alert_deliveries_subscription ON alert_deliveries(subscription_id);
`

const schemaAPIKeys = `
CREATE TABLE IF NOT EXISTS api_keys (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    key_hash TEXT NOT NULL UNIQUE,
    tier TEXT NOT NULL,
    requests_per_minute INTEGER NOT NULL DEFAULT 0,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL
);
`

// schemaReportIntents records prepared report_drainer instructions.
// Lamports is stored as text so the full u64 range survives PostgreSQL BIGINT.
const schemaReportIntents = `
CREATE TABLE IF NOT EXISTS report_intents (
    id TEXT PRIMARY KEY,
    drainer TEXT NOT NULL,
    reporter TEXT NOT NULL,
    lamports TEXT,
    pda TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_report_intents_drainer ON report_intents(drainer, created_at);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaAnalyses,
		schemaAlertSubscriptions,
		schemaAlertDeliveries,
		schemaAPIKeys,
		schemaReportIntents,
	}
}
