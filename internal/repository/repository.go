// Package repository persists analyses, alert subscriptions, API keys and
// report intents.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/digitaldrreamer/haveibeendrained-sub003/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveAnalysis stores a finished or failed analysis. The full document is
// kept as JSON; the summary columns exist for listing and filtering.
func (r *SQLRepository) SaveAnalysis(ctx context.Context, a *domain.Analysis) error {
	if a == nil || a.ID == "" {
		return fmt.Errorf("%w: analysis id is required", ErrInvalidInput)
	}
	if a.Wallet == "" {
		return fmt.Errorf("%w: analysis wallet is required", ErrInvalidInput)
	}

	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to encode analysis: %w", err)
	}

	var severity sql.NullString
	var risk, txCount int
	if a.Report != nil {
		severity = sql.NullString{String: string(a.Report.Severity), Valid: true}
		risk = a.Report.OverallRisk
		txCount = a.Report.TransactionCount
	}

	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := `
		INSERT INTO analyses (
			id, wallet, phase, severity, overall_risk, partial,
			lookup_failures, transaction_count, payload, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		a.ID, a.Wallet, string(a.Phase), severity, risk, boolToInt(a.Partial),
		a.LookupFailures, txCount, string(payload), createdAt,
	)
	return err
}

// GetAnalysis retrieves an analysis by ID.
func (r *SQLRepository) GetAnalysis(ctx context.Context, id string) (*domain.Analysis, error) {
	query := `SELECT payload FROM analyses WHERE id = ?`

	var payload string
	err := r.db.QueryRowContext(ctx, r.rebind(query), id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return decodeAnalysis(payload)
}

// ListAnalysesByWallet returns the most recent analyses for a wallet, newest first.
func (r *SQLRepository) ListAnalysesByWallet(ctx context.Context, wallet string, limit int) ([]*domain.Analysis, error) {
	if wallet == "" {
		return nil, fmt.Errorf("%w: wallet is required", ErrInvalidInput)
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	query := `
		SELECT payload
		FROM analyses
		WHERE wallet = ?
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), wallet, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	analyses := []*domain.Analysis{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		a, err := decodeAnalysis(payload)
		if err != nil {
			return nil, err
		}
		analyses = append(analyses, a)
	}

	return analyses, rows.Err()
}

// SaveSubscription creates or updates an alert subscription.
func (r *SQLRepository) SaveSubscription(ctx context.Context, sub *domain.AlertSubscription) error {
	if sub == nil || sub.ID == "" || sub.Wallet == "" {
		return fmt.Errorf("%w: subscription id and wallet are required", ErrInvalidInput)
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO alert_subscriptions (id, wallet, email, policy, enabled, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			email = excluded.email,
			policy = excluded.policy,
			enabled = excluded.enabled
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		sub.ID, sub.Wallet, sub.Email, sub.Policy, boolToInt(sub.Enabled), sub.CreatedAt,
	)
	return err
}

// ListSubscriptionsByWallet returns the enabled subscriptions for a wallet.
func (r *SQLRepository) ListSubscriptionsByWallet(ctx context.Context, wallet string) ([]*domain.AlertSubscription, error) {
	query := `
		SELECT id, wallet, email, policy, enabled, created_at
		FROM alert_subscriptions
		WHERE wallet = ? AND enabled = 1
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), wallet)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []*domain.AlertSubscription
	for rows.Next() {
		var s domain.AlertSubscription
		var enabled int
		if err := rows.Scan(&s.ID, &s.Wallet, &s.Email, &s.Policy, &enabled, &s.CreatedAt); err != nil {
			return nil, err
		}
		s.Enabled = enabled == 1
		subs = append(subs, &s)
	}

	return subs, rows.Err()
}

// DeleteSubscription soft-deletes a subscription by setting enabled = 0.
func (r *SQLRepository) DeleteSubscription(ctx context.Context, id string) error {
	query := `UPDATE alert_subscriptions SET enabled = 0 WHERE id = ? AND enabled = 1`

	result, err := r.db.ExecContext(ctx, r.rebind(query), id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// SaveDelivery records an alert delivery attempt.
func (r *SQLRepository) SaveDelivery(ctx context.Context, d *domain.AlertDelivery) error {
	if d == nil || d.ID == "" || d.SubscriptionID == "" {
		return fmt.Errorf("%w: delivery id and subscription are required", ErrInvalidInput)
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO alert_deliveries (
			id, subscription_id, analysis_id, wallet, severity, overall_risk, status, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		d.ID, d.SubscriptionID, d.AnalysisID, d.Wallet,
		string(d.Severity), d.OverallRisk, d.Status, d.CreatedAt,
	)
	return err
}

// SaveAPIKey stores an API key record. The raw key is never persisted.
func (r *SQLRepository) SaveAPIKey(ctx context.Context, key *domain.APIKey) error {
	if key == nil || key.ID == "" || key.KeyHash == "" {
		return fmt.Errorf("%w: api key id and hash are required", ErrInvalidInput)
	}
	if key.CreatedAt.IsZero() {
		key.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO api_keys (id, name, key_hash, tier, requests_per_minute, enabled, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			tier = excluded.tier,
			requests_per_minute = excluded.requests_per_minute,
			enabled = excluded.enabled
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		key.ID, key.Name, key.KeyHash, key.Tier, key.RequestsPerMinute,
		boolToInt(key.Enabled), key.CreatedAt,
	)
	return err
}

// GetAPIKeyByHash looks up an enabled API key by the hash of its raw value.
func (r *SQLRepository) GetAPIKeyByHash(ctx context.Context, hash string) (*domain.APIKey, error) {
	query := `
		SELECT id, name, key_hash, tier, requests_per_minute, enabled, created_at
		FROM api_keys
		WHERE key_hash = ? AND enabled = 1
	`

	var k domain.APIKey
	var enabled int
	err := r.db.QueryRowContext(ctx, r.rebind(query), hash).Scan(
		&k.ID, &k.Name, &k.KeyHash, &k.Tier, &k.RequestsPerMinute, &enabled, &k.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	k.Enabled = enabled == 1
	return &k, nil
}

// SaveReportIntent records a prepared report_drainer instruction.
func (r *SQLRepository) SaveReportIntent(ctx context.Context, intent *domain.ReportIntent) error {
	if intent == nil || intent.ID == "" || intent.Drainer == "" {
		return fmt.Errorf("%w: intent id and drainer are required", ErrInvalidInput)
	}
	if intent.CreatedAt.IsZero() {
		intent.CreatedAt = time.Now().UTC()
	}

	var lamports sql.NullString
	if intent.Lamports != nil {
		lamports = sql.NullString{String: strconv.FormatUint(*intent.Lamports, 10), Valid: true}
	}

	query := `
		INSERT INTO report_intents (id, drainer, reporter, lamports, pda, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		intent.ID, intent.Drainer, intent.Reporter, lamports, intent.PDA, intent.CreatedAt,
	)
	return err
}

// ListReportIntents returns the intents prepared against a drainer, oldest first.
func (r *SQLRepository) ListReportIntents(ctx context.Context, drainer string) ([]*domain.ReportIntent, error) {
	query := `
		SELECT id, drainer, reporter, lamports, pda, created_at
		FROM report_intents
		WHERE drainer = ?
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), drainer)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var intents []*domain.ReportIntent
	for rows.Next() {
		var in domain.ReportIntent
		var lamports sql.NullString
		if err := rows.Scan(&in.ID, &in.Drainer, &in.Reporter, &lamports, &in.PDA, &in.CreatedAt); err != nil {
			return nil, err
		}
		if lamports.Valid {
			v, err := strconv.ParseUint(lamports.String, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("failed to parse lamports for intent %s: %w", in.ID, err)
			}
			in.Lamports = &v
		}
		intents = append(intents, &in)
	}

	return intents, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = strconv.AppendInt(result, int64(n), 10)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}

func decodeAnalysis(payload string) (*domain.Analysis, error) {
	var a domain.Analysis
	if err := json.Unmarshal([]byte(payload), &a); err != nil {
		return nil, fmt.Errorf("failed to decode analysis: %w", err)
	}
	return &a, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
