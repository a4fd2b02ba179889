// Package analysis runs the wallet analysis pipeline: fetch the recent
// history, classify every transaction, aggregate the evidence.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/digitaldrreamer/haveibeendrained-sub003/internal/aggregator"
	"github.com/digitaldrreamer/haveibeendrained-sub003/internal/detector"
	"github.com/digitaldrreamer/haveibeendrained-sub003/internal/domain"
	"github.com/digitaldrreamer/haveibeendrained-sub003/internal/metrics"
	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("haveibeendrained/analysis")

const (
	DefaultTransactionLimit = 50
	MaxTransactionLimit     = 200
	DefaultConcurrency      = 8
	DefaultTimeout          = 20 * time.Second
)

// Config holds orchestration limits.
type Config struct {
	TransactionLimit int
	Concurrency      int
	Timeout          time.Duration
}

// ConfigFrom converts the service configuration, applying defaults.
func ConfigFrom(c domain.AnalysisConfig) Config {
	return Config{
		TransactionLimit: c.TransactionLimit,
		Concurrency:      c.Concurrency,
		Timeout:          c.Timeout,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.TransactionLimit <= 0 {
		c.TransactionLimit = DefaultTransactionLimit
	}
	if c.TransactionLimit > MaxTransactionLimit {
		c.TransactionLimit = MaxTransactionLimit
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

// Option customizes an Analyzer.
type Option func(*Analyzer)

// WithPhaseHook registers a callback invoked on every phase transition.
func WithPhaseHook(fn func(id string, p domain.Phase)) Option {
	return func(a *Analyzer) { a.onPhase = fn }
}

// WithClock overrides the clock used for report timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) { a.now = now }
}

// Analyzer orchestrates a single wallet analysis. It holds no per-call state
// and is safe for concurrent use.
type Analyzer struct {
	provider domain.TransactionProvider
	oracle   domain.DrainerOracle
	cfg      Config
	onPhase  func(id string, p domain.Phase)
	now      func() time.Time
}

// New creates an Analyzer. A nil oracle disables the known-drainer check.
func New(provider domain.TransactionProvider, oracle domain.DrainerOracle, cfg Config, opts ...Option) *Analyzer {
	a := &Analyzer{
		provider: provider,
		oracle:   oracle,
		cfg:      cfg.withDefaults(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Config returns the effective configuration.
func (a *Analyzer) Config() Config {
	return a.cfg
}

// ValidateAddress checks that address is a base58 encoded 32-byte public key.
func ValidateAddress(address string) error {
	if address == "" {
		return domain.NewValidationError("address", "must not be empty")
	}
	if _, err := solana.PublicKeyFromBase58(address); err != nil {
		return domain.NewValidationError("address", "not a base58 encoded 32-byte public key")
	}
	return nil
}

// Analyze produces a risk report for address.
//
// Malformed addresses are rejected with a *domain.ValidationError before any
// work starts. A provider that is misconfigured fails the analysis; any other
// provider failure yields a SAFE report over zero transactions carrying the
// provider_unavailable warning. When the deadline expires mid-classification
// the report covers the transactions classified so far and is marked Partial.
func (a *Analyzer) Analyze(ctx context.Context, address string) (*domain.Analysis, error) {
	if err := ValidateAddress(address); err != nil {
		return nil, err
	}
	if a.provider == nil {
		return nil, fmt.Errorf("%w: no transaction provider", domain.ErrProviderMisconfigured)
	}

	start := time.Now()
	res := &domain.Analysis{
		ID:        uuid.New().String(),
		Wallet:    address,
		Phase:     domain.PhaseIdle,
		CreatedAt: a.now(),
	}

	ctx, span := tracer.Start(ctx, "analysis.Analyze")
	defer span.End()
	span.SetAttributes(
		attribute.String("analysis.id", res.ID),
		attribute.String("wallet.address", address),
	)

	metrics.AnalysesInFlight.Inc()
	defer metrics.AnalysesInFlight.Dec()

	runCtx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	fail := func(err error) (*domain.Analysis, error) {
		a.setPhase(res, domain.PhaseFailed)
		res.Error = err.Error()
		res.DurationMs = time.Since(start).Milliseconds()
		span.RecordError(err)
		span.SetStatus(codes.Error, "analysis failed")
		slog.Error("analysis failed", "analysis_id", res.ID, "wallet", address, "error", err)
		return res, err
	}

	a.setPhase(res, domain.PhaseFetching)
	txs, err := a.provider.Fetch(runCtx, address, a.cfg.TransactionLimit)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrProviderMisconfigured):
			return fail(err)
		case ctx.Err() != nil:
			return fail(ctx.Err())
		}
		slog.Warn("transaction provider unavailable", "analysis_id", res.ID, "wallet", address, "error", err)
		res.AddWarning(domain.WarningProviderUnavailable)
		if runCtx.Err() != nil {
			res.Partial = true
			res.AddWarning(domain.WarningDeadlineExceeded)
		}
		txs = nil
	}
	if len(txs) > a.cfg.TransactionLimit {
		txs = txs[:a.cfg.TransactionLimit]
	}

	a.setPhase(res, domain.PhaseClassifying)
	detections, outcome := a.classifyAll(runCtx, txs)
	res.LookupFailures = outcome.lookupFailures
	if outcome.lookupFailures > 0 {
		res.AddWarning(domain.WarningRegistryDegraded)
	}
	if outcome.incomplete {
		if ctx.Err() != nil {
			return fail(ctx.Err())
		}
		res.Partial = true
		res.AddWarning(domain.WarningDeadlineExceeded)
		slog.Warn("analysis deadline exceeded, returning partial report",
			"analysis_id", res.ID,
			"wallet", address,
			"classified", outcome.completed,
			"fetched", len(txs),
		)
	}

	a.setPhase(res, domain.PhaseAggregating)
	report, err := aggregator.Aggregate(detections, aggregator.Context{
		WalletAddress:    address,
		TransactionCount: len(txs),
		Now:              a.now(),
	})
	if err != nil {
		return fail(err)
	}

	res.Report = report
	res.DurationMs = time.Since(start).Milliseconds()
	a.setPhase(res, domain.PhaseDone)

	metrics.ObserveAnalysis(string(report.Severity), report.DetectionTypes(), time.Since(start))
	span.SetAttributes(
		attribute.Int("analysis.overall_risk", report.OverallRisk),
		attribute.String("analysis.severity", string(report.Severity)),
		attribute.Int("analysis.detections", len(report.Detections)),
		attribute.Bool("analysis.partial", res.Partial),
	)

	slog.Info("analysis completed",
		"analysis_id", res.ID,
		"wallet", address,
		"severity", report.Severity,
		"overall_risk", report.OverallRisk,
		"transactions", len(txs),
		"detections", len(report.Detections),
		"lookup_failures", res.LookupFailures,
		"partial", res.Partial,
		"duration_ms", res.DurationMs,
	)

	return res, nil
}

type classifyOutcome struct {
	completed      int
	lookupFailures int
	incomplete     bool
}

// classifyAll classifies txs with bounded parallelism. Results are stored by
// fetch index so the concatenated detections follow fetch order regardless of
// completion order. On deadline it returns whatever slots had completed.
func (a *Analyzer) classifyAll(ctx context.Context, txs []domain.TransactionRecord) ([]domain.Detection, classifyOutcome) {
	var out classifyOutcome
	if len(txs) == 0 {
		return []domain.Detection{}, out
	}

	var mu sync.Mutex
	slots := make([][]domain.Detection, len(txs))
	done := make([]bool, len(txs))

	var g errgroup.Group
	g.SetLimit(a.cfg.Concurrency)

	finished := make(chan struct{})
	go func() {
		defer close(finished)
		for i := range txs {
			i := i
			if ctx.Err() != nil {
				return
			}
			g.Go(func() error {
				if ctx.Err() != nil {
					return nil
				}
				dets, err := detector.Classify(ctx, &txs[i], a.oracle)
				// Lookups cut short by the deadline are not registry failures.
				cut := ctx.Err() != nil && err != nil

				mu.Lock()
				defer mu.Unlock()
				slots[i] = dets
				done[i] = !cut
				if !cut {
					out.lookupFailures += detector.LookupFailures(err)
				}
				return nil
			})
		}
		g.Wait()
	}()

	select {
	case <-finished:
	case <-ctx.Done():
	}

	mu.Lock()
	defer mu.Unlock()

	detections := make([]domain.Detection, 0, len(txs))
	for i := range txs {
		detections = append(detections, slots[i]...)
		if done[i] {
			out.completed++
		}
	}
	out.incomplete = out.completed < len(txs)
	return detections, out
}

func (a *Analyzer) setPhase(res *domain.Analysis, p domain.Phase) {
	res.Phase = p
	if a.onPhase != nil {
		a.onPhase(res.ID, p)
	}
}
