// Package worker delivers wallet alerts asynchronously from the event bus.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/digitaldrreamer/haveibeendrained-sub003/internal/alerts"
	"github.com/digitaldrreamer/haveibeendrained-sub003/internal/domain"
	"github.com/digitaldrreamer/haveibeendrained-sub003/internal/metrics"
	"github.com/google/uuid"
)

// Delivery statuses.
const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

// Notifier hands a fired alert to its recipient.
type Notifier interface {
	Notify(ctx context.Context, sub *domain.AlertSubscription, delivery *domain.AlertDelivery) error
}

// LogNotifier writes alerts to the structured log. Useful until a mail
// transport is configured.
type LogNotifier struct{}

// Notify implements Notifier.
func (LogNotifier) Notify(ctx context.Context, sub *domain.AlertSubscription, d *domain.AlertDelivery) error {
	slog.Info("wallet alert",
		"subscription_id", sub.ID,
		"email", sub.Email,
		"wallet", d.Wallet,
		"severity", d.Severity,
		"overall_risk", d.OverallRisk,
		"analysis_id", d.AnalysisID,
	)
	return nil
}

// Worker turns analysis.completed events into alert deliveries.
type Worker struct {
	bus      domain.EventBus
	repo     domain.Repository
	policies *alerts.Engine
	notifier Notifier

	defaultPolicy string
	sem           chan struct{}

	mu            sync.Mutex
	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// WorkerCount caps concurrently processed events.
	WorkerCount int

	// DefaultPolicy applies to subscriptions stored without a policy.
	DefaultPolicy string
}

// NewWorker creates a new alert worker. A nil notifier logs alerts.
func NewWorker(bus domain.EventBus, repo domain.Repository, policies *alerts.Engine, notifier Notifier) *Worker {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:      bus,
		repo:     repo,
		policies: policies,
		notifier: notifier,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start subscribes to analysis.completed events.
func (w *Worker) Start(cfg Config) error {
	if w.repo == nil || w.policies == nil {
		return fmt.Errorf("alert worker requires a repository and a policy engine")
	}

	count := cfg.WorkerCount
	if count <= 0 {
		count = 1
	}
	w.sem = make(chan struct{}, count)
	w.defaultPolicy = cfg.DefaultPolicy
	if w.defaultPolicy == "" {
		w.defaultPolicy = domain.DefaultAlertPolicy
	}

	sub, err := w.bus.Subscribe(w.ctx, domain.TopicAnalysisCompleted, w.dispatch)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.subscriptions = append(w.subscriptions, sub)
	w.mu.Unlock()

	slog.Info("alert worker started",
		"topic", domain.TopicAnalysisCompleted,
		"worker_count", count,
	)
	return nil
}

// dispatch hands the event to a bounded pool so a slow notifier does not
// stall the bus subscription.
func (w *Worker) dispatch(ctx context.Context, msg *domain.Message) error {
	select {
	case w.sem <- struct{}{}:
	case <-w.ctx.Done():
		return w.ctx.Err()
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer func() { <-w.sem }()
		if err := w.ProcessMessage(w.ctx, msg); err != nil {
			slog.Error("alert processing failed", "message_id", msg.ID, "error", err)
		}
	}()
	return nil
}

// ProcessMessage evaluates every subscription of the analysed wallet.
func (w *Worker) ProcessMessage(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var ev domain.AnalysisCompletedEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		return fmt.Errorf("failed to parse analysis event: %w", err)
	}
	if ev.Report == nil {
		return nil
	}

	subs, err := w.repo.ListSubscriptionsByWallet(ctx, ev.Wallet)
	if err != nil {
		return fmt.Errorf("failed to load subscriptions: %w", err)
	}
	if len(subs) == 0 {
		return nil
	}

	analysis := &domain.Analysis{
		ID:      ev.AnalysisID,
		Wallet:  ev.Wallet,
		Report:  ev.Report,
		Phase:   domain.PhaseDone,
		Partial: ev.Partial,

		LookupFailures: ev.LookupFailures,
		Warnings:       ev.Warnings,
	}

	fired := 0
	for _, sub := range subs {
		policy := sub.Policy
		if policy == "" {
			policy = w.defaultPolicy
		}

		match, err := w.policies.Evaluate(policy, analysis)
		if err != nil {
			slog.Warn("alert policy evaluation failed",
				"subscription_id", sub.ID,
				"error", err,
			)
			continue
		}
		if !match {
			continue
		}

		w.deliver(ctx, sub, analysis)
		fired++
	}

	slog.Debug("analysis event processed",
		"analysis_id", ev.AnalysisID,
		"wallet", ev.Wallet,
		"subscriptions", len(subs),
		"alerts", fired,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (w *Worker) deliver(ctx context.Context, sub *domain.AlertSubscription, a *domain.Analysis) {
	delivery := &domain.AlertDelivery{
		ID:             uuid.New().String(),
		SubscriptionID: sub.ID,
		AnalysisID:     a.ID,
		Wallet:         a.Wallet,
		Severity:       a.Report.Severity,
		OverallRisk:    a.Report.OverallRisk,
		Status:         StatusSent,
		CreatedAt:      time.Now().UTC(),
	}

	if err := w.notifier.Notify(ctx, sub, delivery); err != nil {
		delivery.Status = StatusFailed
		slog.Error("alert notification failed",
			"subscription_id", sub.ID,
			"wallet", a.Wallet,
			"error", err,
		)
	}
	metrics.AlertsTotal.WithLabelValues(delivery.Status).Inc()

	if err := w.repo.SaveDelivery(ctx, delivery); err != nil {
		slog.Error("failed to save alert delivery",
			"delivery_id", delivery.ID,
			"error", err,
		)
	}

	payload, err := json.Marshal(domain.AlertEvent{
		DeliveryID:     delivery.ID,
		SubscriptionID: sub.ID,
		AnalysisID:     a.ID,
		Wallet:         a.Wallet,
		Severity:       delivery.Severity,
		OverallRisk:    delivery.OverallRisk,
		Status:         delivery.Status,
	})
	if err != nil {
		slog.Error("failed to encode alert event",
			"delivery_id", delivery.ID,
			"error", err,
		)
		return
	}
	if err := w.bus.Publish(ctx, domain.TopicAlert, payload); err != nil {
		slog.Error("failed to publish alert",
			"delivery_id", delivery.ID,
			"error", err,
		)
	}
}

// Stop unsubscribes and waits for in-flight deliveries.
func (w *Worker) Stop() error {
	w.mu.Lock()
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil
	w.mu.Unlock()

	w.wg.Wait()
	w.cancel()

	slog.Info("alert worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
